package feature

import (
	"math"
	"strconv"
	"strings"

	ua "github.com/mileusna/useragent"

	"github.com/xayone/riskd/session"
)

// AgentFeatureCount is the fixed width of the client-agent factor vector.
const AgentFeatureCount = 23

const maxBrowserMajor = 200.0

// botKeywords are substrings whose presence in a lowercased agent string
// counts toward the automation signal.
var botKeywords = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget", "python",
	"java", "phantom", "headless", "selenium", "puppeteer",
}

// Agent distills the user agent string plus optional client fingerprint
// fields into the agent factor vector. A missing agent string yields the
// all-0.5 neutral vector.
func Agent(s *session.Session) []float64 {
	if strings.TrimSpace(s.UserAgent) == "" {
		v := make([]float64, AgentFeatureCount)
		for i := range v {
			v[i] = 0.5
		}
		return v
	}

	parsed := ua.Parse(s.UserAgent)
	lower := strings.ToLower(s.UserAgent)

	v := make([]float64, 0, AgentFeatureCount)
	v = append(v,
		boolFeature(parsed.Mobile),
		boolFeature(parsed.Tablet),
		boolFeature(parsed.Desktop),
		boolFeature(parsed.Bot),
	)

	// browser family one-hot; an unrecognized family leaves all four zero
	v = append(v,
		boolFeature(parsed.Name == ua.Chrome),
		boolFeature(parsed.Name == ua.Firefox),
		boolFeature(parsed.Name == ua.Safari),
		boolFeature(parsed.Name == ua.Edge),
	)

	// platform one-hot
	v = append(v,
		boolFeature(parsed.OS == ua.Windows),
		boolFeature(parsed.OS == ua.MacOS),
		boolFeature(parsed.OS == ua.Linux),
		boolFeature(parsed.OS == ua.Android),
		boolFeature(parsed.OS == ua.IOS),
	)

	v = append(v,
		math.Min(float64(majorVersion(parsed.Version))/maxBrowserMajor, 1),
		math.Min(float64(countBotKeywords(lower))/5.0, 1),
		shannonEntropy(s.UserAgent)/8.0,
		math.Min(float64(len(s.UserAgent))/1000.0, 1),
	)

	v = append(v,
		presenceFeature(s.CanvasFingerprint != "", s.CanvasFingerprint == "" && s.AudioFingerprint == "" && s.Platform == ""),
		pluginsFeature(s.Plugins),
		boolPtrFeature(s.IsCookieEnabled, 0),
		boolPtrFeature(s.TouchSupport, 0),
		concurrencyFeature(s.HardwareConcurrency),
		specialCharRatio(s.UserAgent),
	)

	return v
}

func majorVersion(version string) int {
	head, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func countBotKeywords(lowerAgent string) int {
	n := 0
	for _, kw := range botKeywords {
		if strings.Contains(lowerAgent, kw) {
			n++
		}
	}
	return n
}

// shannonEntropy is the byte-level entropy of the string in bits.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	total := float64(len(s))
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func specialCharRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	special := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		isAlnum := (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
		if !isAlnum && b != ' ' {
			special++
		}
	}
	return float64(special) / float64(len(s))
}

// presenceFeature maps an optional capability onto 1 when present, 0.5 when
// nothing about the client's capabilities was reported at all, and 0 when
// other fingerprint fields arrived without it.
func presenceFeature(present, allAbsent bool) float64 {
	if present {
		return 1
	}
	if allAbsent {
		return 0.5
	}
	return 0
}

func pluginsFeature(plugins []string) float64 {
	if plugins == nil {
		return 0.5
	}
	return math.Min(float64(len(plugins))/10.0, 1)
}

func boolPtrFeature(v *bool, absent float64) float64 {
	if v == nil {
		return absent
	}
	return boolFeature(*v)
}

func concurrencyFeature(v *int) float64 {
	if v == nil {
		return 0.5
	}
	return math.Min(float64(*v)/32.0, 1)
}
