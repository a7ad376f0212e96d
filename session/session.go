package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xayone/riskd/util"
)

const (
	// Timestamps must fall between Jan 1 2020 and Jan 1 2030 (milliseconds).
	MinTimestampMillis int64 = 1577836800000
	MaxTimestampMillis int64 = 1893456000000

	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	ErrInvalidIP        = errors.New("invalid IP address")
	ErrInvalidTimestamp = errors.New("timestamp out of range")
	ErrHistoryTooLarge  = errors.New("login history exceeds maximum length")
	ErrInvalidUserID    = errors.New("userId must be an email address")
	ErrInvalidStatus    = errors.New("login status must be success or failure")

	emailValidator = validator.New(validator.WithRequiredStructEnabled())

	scriptTagPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	sqlInjectPattern = regexp.MustCompile(`(?i)(DROP|DELETE|INSERT|UPDATE|SELECT)\s+(TABLE|FROM|INTO)`)
)

type (
	// Location is a geolocation record attached to a session or history item.
	Location struct {
		Country   string  `json:"country"`
		City      string  `json:"city"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}

	// Session is the current authentication attempt under evaluation.
	// IP, UserAgent and Timestamp are required; the remaining
	// client-fingerprint fields are optional and use pointer types so that
	// an absent value is distinguishable from a false/zero one.
	Session struct {
		IP        string `json:"ip"`
		UserAgent string `json:"userAgent"`
		Timestamp int64  `json:"timestamp"`

		AcceptLanguage      string   `json:"acceptLanguage,omitempty"`
		ScreenResolution    string   `json:"screenResolution,omitempty"`
		Timezone            string   `json:"timezone,omitempty"`
		Platform            string   `json:"platform,omitempty"`
		WebGLRenderer       string   `json:"webglRenderer,omitempty"`
		Fonts               []string `json:"fonts,omitempty"`
		CanvasFingerprint   string   `json:"canvasFingerprint,omitempty"`
		AudioFingerprint    string   `json:"audioFingerprint,omitempty"`
		Plugins             []string `json:"plugins,omitempty"`
		TouchSupport        *bool    `json:"touchSupport,omitempty"`
		DeviceMemory        *int     `json:"deviceMemory,omitempty"`
		HardwareConcurrency *int     `json:"hardwareConcurrency,omitempty"`
		Referrer            string   `json:"referrer,omitempty"`
		IsCookieEnabled     *bool    `json:"isCookieEnabled,omitempty"`
		IsJavaEnabled       *bool    `json:"isJavaEnabled,omitempty"`
		BrowserVersion      string   `json:"browserVersion,omitempty"`

		// Location is attached during enrichment, never read off the wire.
		Location *Location `json:"-"`
	}

	// HistoryItem is one prior login for the same principal.
	HistoryItem struct {
		IP          string   `json:"ip"`
		UserAgent   string   `json:"userAgent"`
		Timestamp   int64    `json:"timestamp"`
		Location    Location `json:"location"`
		LoginStatus string   `json:"loginStatus"`
	}

	// Request is the full analyze payload.
	Request struct {
		CurrentSession Session       `json:"currentSession"`
		LoginHistory   []HistoryItem `json:"loginHistory"`
		UserID         string        `json:"userId"`
	}

	// Scores holds the four factor scores and the fused overall score,
	// each an integer in [0, 100].
	Scores struct {
		IP          int `json:"ip"`
		Datetime    int `json:"datetime"`
		UserAgent   int `json:"userAgent"`
		Geolocation int `json:"geolocation"`
		Overall     int `json:"overall"`
	}
)

// Validate checks the request against the hard input constraints. It returns
// the first violation found; recoverable oddities (unlocated history, odd
// user agents) are left to the detectors.
func (r *Request) Validate(maxHistory int) error {
	if net.ParseIP(r.CurrentSession.IP) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, r.CurrentSession.IP)
	}

	if r.CurrentSession.Timestamp < MinTimestampMillis || r.CurrentSession.Timestamp > MaxTimestampMillis {
		return fmt.Errorf("%w: %d", ErrInvalidTimestamp, r.CurrentSession.Timestamp)
	}

	if len(r.LoginHistory) > maxHistory {
		return fmt.Errorf("%w: %d > %d", ErrHistoryTooLarge, len(r.LoginHistory), maxHistory)
	}

	if err := emailValidator.Var(r.UserID, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, r.UserID)
	}

	for i := range r.LoginHistory {
		status := r.LoginHistory[i].LoginStatus
		if status != StatusSuccess && status != StatusFailure {
			return fmt.Errorf("%w: %q at index %d", ErrInvalidStatus, status, i)
		}
	}

	return nil
}

// Sanitize scrubs control bytes, script tags and SQL keywords out of every
// string field and truncates the agent string. It mutates the request in
// place and must run after Validate.
func (r *Request) Sanitize(maxAgentLen int) {
	s := &r.CurrentSession
	s.UserAgent = util.TruncateString(cleanString(s.UserAgent), maxAgentLen)
	s.AcceptLanguage = cleanString(s.AcceptLanguage)
	s.ScreenResolution = cleanString(s.ScreenResolution)
	s.Timezone = cleanString(s.Timezone)
	s.Platform = cleanString(s.Platform)
	s.WebGLRenderer = cleanString(s.WebGLRenderer)
	s.CanvasFingerprint = cleanString(s.CanvasFingerprint)
	s.AudioFingerprint = cleanString(s.AudioFingerprint)
	s.Referrer = cleanString(s.Referrer)
	s.BrowserVersion = cleanString(s.BrowserVersion)
	for i := range s.Fonts {
		s.Fonts[i] = cleanString(s.Fonts[i])
	}
	for i := range s.Plugins {
		s.Plugins[i] = cleanString(s.Plugins[i])
	}

	for i := range r.LoginHistory {
		item := &r.LoginHistory[i]
		item.UserAgent = util.TruncateString(cleanString(item.UserAgent), maxAgentLen)
		item.Location.Country = cleanString(item.Location.Country)
		item.Location.City = cleanString(item.Location.City)
	}
}

// Time returns the session timestamp as a UTC time.
func (s *Session) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

// Time returns the history item timestamp as a UTC time.
func (h *HistoryItem) Time() time.Time {
	return time.UnixMilli(h.Timestamp).UTC()
}

// Located reports whether the history item carries usable coordinates.
// The zero point (0,0) doubles as the "unknown" sentinel.
func (h *HistoryItem) Located() bool {
	return h.Location.Latitude != 0 || h.Location.Longitude != 0
}

// Fingerprint hashes the client-fingerprint fields into a stable hex digest
// for audit correlation. Absent fields hash as empty strings.
func (s *Session) Fingerprint() string {
	h := sha256.New()
	parts := []string{
		s.ScreenResolution,
		s.Timezone,
		s.Platform,
		s.WebGLRenderer,
		formatIntPtr(s.HardwareConcurrency),
		formatIntPtr(s.DeviceMemory),
		formatBoolPtr(s.TouchSupport),
		s.CanvasFingerprint,
		s.AudioFingerprint,
	}
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SortedByTime returns a copy of the history ordered by ascending timestamp.
// Wire order is not guaranteed, so every consumer that cares must sort.
func SortedByTime(history []HistoryItem) []HistoryItem {
	sorted := make([]HistoryItem, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	return sorted
}

// MostRecent returns the latest history item, or nil for empty history.
func MostRecent(history []HistoryItem) *HistoryItem {
	var latest *HistoryItem
	for i := range history {
		if latest == nil || history[i].Timestamp > latest.Timestamp {
			latest = &history[i]
		}
	}
	return latest
}

// MostRecentLocated returns the latest history item with usable coordinates.
func MostRecentLocated(history []HistoryItem) *HistoryItem {
	var latest *HistoryItem
	for i := range history {
		if !history[i].Located() {
			continue
		}
		if latest == nil || history[i].Timestamp > latest.Timestamp {
			latest = &history[i]
		}
	}
	return latest
}

// UnknownLocation is the neutral enrichment result used when the
// geolocation collaborator misses or times out.
func UnknownLocation() *Location {
	return &Location{Country: "unknown", City: "unknown"}
}

func cleanString(s string) string {
	s = scriptTagPattern.ReplaceAllString(s, "")
	s = sqlInjectPattern.ReplaceAllString(s, "")
	return util.StripControlBytes(s)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatBoolPtr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
