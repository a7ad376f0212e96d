package detector

import (
	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

func temporalOverlay(base int, s *session.Session, history []session.HistoryItem) int {
	score := base

	hour := s.Time().Hour()
	if hour >= 2 && hour <= 5 {
		score = util.RaiseScore(score, 20)
	}

	switch n := loginsInLastFiveMinutes(s, history); {
	case n > 5:
		score = util.RaiseScore(score, 30)
	case n >= 3:
		score = util.RaiseScore(score, 15)
	}

	if recentFailures(history) > 3 {
		score = util.RaiseScore(score, 20)
	}

	if hasBotCadence(history) {
		score = util.RaiseScore(score, 25)
	}

	return score
}

func loginsInLastFiveMinutes(s *session.Session, history []session.HistoryItem) int {
	n := 0
	for i := range history {
		age := s.Timestamp - history[i].Timestamp
		if age >= 0 && age < 300000 {
			n++
		}
	}
	return n
}

// recentFailures counts failed attempts among the last ten logins.
func recentFailures(history []session.HistoryItem) int {
	sorted := session.SortedByTime(history)
	if len(sorted) > 10 {
		sorted = sorted[len(sorted)-10:]
	}
	failures := 0
	for i := range sorted {
		if sorted[i].LoginStatus == session.StatusFailure {
			failures++
		}
	}
	return failures
}

// hasBotCadence reports whether the last six intervals between logins are
// all identical, a pattern humans do not produce.
func hasBotCadence(history []session.HistoryItem) bool {
	sorted := session.SortedByTime(history)
	if len(sorted) < 7 {
		return false
	}
	tail := sorted[len(sorted)-7:]
	interval := tail[1].Timestamp - tail[0].Timestamp
	if interval <= 0 {
		return false
	}
	for i := 2; i < len(tail); i++ {
		if tail[i].Timestamp-tail[i-1].Timestamp != interval {
			return false
		}
	}
	return true
}
