package util

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/afero"
)

var (
	privateIPBlocks []*net.IPNet

	ErrInvalidPath      = errors.New("path cannot be empty string")
	ErrFileDoesNotExist = errors.New("file does not exist")
	ErrFileIsEmpty      = errors.New("file is empty")
	ErrPathIsDir        = errors.New("given path is a directory, not a file")
)

func init() {
	privateIPs, err := ParseSubnets(
		[]string{
			"10.0.0.0/8",     // RFC1918
			"172.16.0.0/12",  // RFC1918
			"192.168.0.0/16", // RFC1918
			"fc00::/7",       // IPv6 unique local addr
		})

	if err == nil {
		privateIPBlocks = privateIPs
	} else {
		panic(fmt.Sprintf("Error defining private IPs: %v", err.Error()))
	}
}

// ContainsIP checks if a collection of subnets contains an IP
func ContainsIP(subnets []*net.IPNet, ip net.IP) bool {
	// cache IPv4 conversion so it not performed every in every Contains call
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	for _, block := range subnets {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseSubnets parses the provided subnets into net.IPNet format
func ParseSubnets(subnets []string) ([]*net.IPNet, error) {
	var parsedSubnets []*net.IPNet

	for _, entry := range subnets {
		// Try to parse out CIDR range
		_, block, err := net.ParseCIDR(entry)

		// If there was an error, check if entry was an IP
		if err != nil {
			ipAddr := net.ParseIP(entry)
			if ipAddr == nil {
				return parsedSubnets, fmt.Errorf("error parsing entry: %s", err.Error())
			}

			// Check if it's an IPv4 or IPv6 address and append the appropriate subnet mask
			var subnetMask string
			if ipAddr.To4() != nil {
				subnetMask = "/32"
			} else {
				subnetMask = "/128"
			}

			// Append the subnet mask and parse as a CIDR range
			_, block, err = net.ParseCIDR(entry + subnetMask)

			if err != nil {
				return parsedSubnets, fmt.Errorf("error parsing entry: %s", err.Error())
			}
		}

		// Add CIDR range to the list
		parsedSubnets = append(parsedSubnets, block)
	}
	return parsedSubnets, nil
}

// IPIsPubliclyRoutable checks if an IP address is publicly routable. See privateIPBlocks.
func IPIsPubliclyRoutable(ip net.IP) bool {
	// cache IPv4 conversion so it not performed every in every ip.IsXXX method
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}

	if ContainsIP(privateIPBlocks, ip) {
		return false
	}
	return true
}

// IPIsPrivate reports whether an IP address falls in an RFC1918 or
// IPv6 unique local range, or is a loopback address.
func IPIsPrivate(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	return ContainsIP(privateIPBlocks, ip)
}

// ClampScore bounds an integer risk score to [0, 100]. Clamping is
// idempotent: ClampScore(ClampScore(x)) == ClampScore(x).
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RaiseScore adds a rule increase to a score and clamps the result.
// Raises are monotone: the result is never lower than the clamped input.
func RaiseScore(score int, raise int) int {
	return ClampScore(score + raise)
}

// FloorScore raises a score to at least the given floor and clamps.
func FloorScore(score int, floor int) int {
	if score < floor {
		score = floor
	}
	return ClampScore(score)
}

// RoundWeighted rounds a weighted float sum to the nearest integer.
func RoundWeighted(v float64) int {
	return int(math.Round(v))
}

// StripControlBytes removes ASCII and Unicode control characters from a string.
func StripControlBytes(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// TruncateString cuts a string down to at most max bytes without splitting
// a multi-byte rune at the boundary.
func TruncateString(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// back off a partial rune at the boundary
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// GetFileContents reads a file from the given filesystem and returns its contents
func GetFileContents(afs afero.Fs, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	exists, err := afero.Exists(afs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
	}

	isDir, err := afero.IsDir(afs, path)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, fmt.Errorf("%w: %s", ErrPathIsDir, path)
	}

	contents, err := afero.ReadFile(afs, path)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFileIsEmpty, path)
	}

	return contents, nil
}
