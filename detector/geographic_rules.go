package detector

import (
	"github.com/xayone/riskd/geo"
	"github.com/xayone/riskd/session"
	"github.com/xayone/riskd/util"
)

type geographicOverlay struct {
	maxSpeedKmh     float64
	extremeSpeedKmh float64
}

func (o geographicOverlay) apply(base int, s *session.Session, history []session.HistoryItem) int {
	score := base

	loc := s.Location
	located := loc != nil && (loc.Latitude != 0 || loc.Longitude != 0)

	if located {
		if last := session.MostRecentLocated(history); last != nil {
			speed := geo.TravelSpeed(
				last.Location.Latitude, last.Location.Longitude,
				loc.Latitude, loc.Longitude,
				s.Timestamp-last.Timestamp,
			)
			// the physics floor is authoritative over any model base
			switch {
			case speed > o.extremeSpeedKmh:
				score = util.FloorScore(score, 95)
			case speed > o.maxSpeedKmh:
				score = util.FloorScore(score, 85)
			case speed > 500:
				score = util.RaiseScore(score, 20)
			}
		}
	}

	if loc != nil && geo.IsHighRiskCountry(loc.Country) {
		score = util.RaiseScore(score, 15)
	}

	if distinctCountriesLastDay(s, history) > 3 {
		score = util.RaiseScore(score, 20)
	}

	return score
}

func distinctCountriesLastDay(s *session.Session, history []session.HistoryItem) int {
	seen := make(map[string]struct{})
	for i := range history {
		age := s.Timestamp - history[i].Timestamp
		if age < 0 || age >= 86400000 {
			continue
		}
		if c := history[i].Location.Country; c != "" && c != "unknown" {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}
