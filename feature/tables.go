package feature

import (
	"net"

	"github.com/xayone/riskd/util"
)

// Static network-prefix tables. Both are fixed for a given build; updating
// them means cutting a release, the same as the country-risk tables.
var (
	datacenterBlocks []*net.IPNet
	torExitBlocks    []*net.IPNet
)

func init() {
	var err error

	// major cloud/CDN ranges: Cloudflare, AWS/CloudFront, GCP, Azure,
	// DigitalOcean, Vultr, Linode, OVH, Hetzner
	datacenterBlocks, err = util.ParseSubnets([]string{
		"104.16.0.0/12",
		"172.64.0.0/13",
		"162.158.0.0/15",
		"198.41.128.0/17",
		"13.32.0.0/15",
		"52.84.0.0/15",
		"54.182.0.0/16",
		"54.192.0.0/16",
		"52.0.0.0/11",
		"54.64.0.0/11",
		"34.64.0.0/10",
		"35.184.0.0/13",
		"20.33.0.0/16",
		"40.64.0.0/10",
		"104.40.0.0/13",
		"134.209.0.0/16",
		"138.68.0.0/16",
		"159.65.0.0/16",
		"45.32.0.0/16",
		"45.63.0.0/16",
		"172.104.0.0/15",
		"139.162.0.0/16",
		"51.68.0.0/16",
		"51.75.0.0/16",
		"88.198.0.0/16",
		"95.216.0.0/16",
		"116.202.0.0/16",
	})
	if err != nil {
		panic("invalid datacenter prefix table: " + err.Error())
	}

	torExitBlocks, err = util.ParseSubnets([]string{
		"192.42.116.0/24",
		"199.87.154.0/24",
		"176.10.99.0/24",
		"185.220.100.0/22",
		"204.13.164.0/24",
		"171.25.193.0/24",
		"109.70.100.0/24",
	})
	if err != nil {
		panic("invalid tor exit prefix table: " + err.Error())
	}
}

// IsDatacenterIP reports whether an address falls in a known
// datacenter/CDN/VPN hosting range.
func IsDatacenterIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return util.ContainsIP(datacenterBlocks, ip)
}

// IsTorExitIP reports whether an address falls in a known Tor exit range.
func IsTorExitIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return util.ContainsIP(torExitBlocks, ip)
}
