package detector

import (
	"strings"

	ua "github.com/mileusna/useragent"

	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

// minBrowserMajor lists the oldest browser major version per family that a
// current, auto-updating install could plausibly report. Anything older is
// either a spoofed string or an unpatched client.
var minBrowserMajor = map[string]int{
	ua.Chrome:  100,
	ua.Firefox: 100,
	ua.Edge:    100,
	ua.Safari:  14,
	ua.Opera:   85,
}

// automationMarkers floor the score outright; version raises stack on top.
var (
	headlessMarkers = []string{"headless", "phantom", "selenium"}
	botToolMarkers  = []string{"puppeteer", "headlesschrome"}
)

func agentOverlay(base int, s *session.Session, history []session.HistoryItem) int {
	score := base

	agent := s.UserAgent
	lower := strings.ToLower(agent)
	parsed := ua.Parse(agent)

	if parsed.Bot {
		score = util.FloorScore(score, 80)
	}
	if containsAny(lower, headlessMarkers) {
		score = util.FloorScore(score, 85)
	}
	if containsAny(lower, botToolMarkers) {
		score = util.FloorScore(score, 90)
	}
	if len(agent) < 20 {
		score = util.FloorScore(score, 75)
	}

	if min, ok := minBrowserMajor[parsed.Name]; ok && majorVersionOf(parsed.Version) < min {
		score = util.RaiseScore(score, 20)
	}

	if s.TouchSupport != nil && *s.TouchSupport && parsed.OS == ua.Windows && !parsed.Mobile {
		score = util.RaiseScore(score, 15)
	}

	if distinctRecentAgents(history) > 5 {
		score = util.RaiseScore(score, 10)
	}

	return score
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func majorVersionOf(version string) int {
	head, _, _ := strings.Cut(version, ".")
	n := 0
	for _, r := range head {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// distinctRecentAgents counts distinct agent strings among the last ten
// logins.
func distinctRecentAgents(history []session.HistoryItem) int {
	sorted := session.SortedByTime(history)
	if len(sorted) > 10 {
		sorted = sorted[len(sorted)-10:]
	}
	seen := make(map[string]struct{}, len(sorted))
	for i := range sorted {
		seen[sorted[i].UserAgent] = struct{}{}
	}
	return len(seen)
}
