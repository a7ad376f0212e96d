package detector

import (
	"net"

	"github.com/xayone/riskd/feature"
	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

// networkOverlay holds the deployment-specific known-bad address list on top
// of the static prefix tables.
type networkOverlay struct {
	knownBad []*net.IPNet
}

func (o networkOverlay) apply(base int, s *session.Session, history []session.HistoryItem) int {
	score := base

	if ipInList(o.knownBad, s.IP) {
		score = util.RaiseScore(score, 30)
		score = util.FloorScore(score, 90)
	}

	ip := net.ParseIP(s.IP)
	if ip != nil {
		if feature.IsDatacenterIP(ip) {
			score = util.RaiseScore(score, 20)
		}
		if feature.IsTorExitIP(ip) {
			score = util.RaiseScore(score, 30)
		}
		if util.IPIsPrivate(ip) {
			score = util.RaiseScore(score, 10)
		}
	}

	if distinctAddressesLastHour(s, history) > 3 {
		score = util.RaiseScore(score, 20)
	}

	return score
}

func distinctAddressesLastHour(s *session.Session, history []session.HistoryItem) int {
	seen := make(map[string]struct{})
	for i := range history {
		age := s.Timestamp - history[i].Timestamp
		if age >= 0 && age < 3600000 {
			seen[history[i].IP] = struct{}{}
		}
	}
	return len(seen)
}
