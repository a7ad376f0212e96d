package feature

import (
	"math"

	"github.com/xayone/riskd/session"
)

// TemporalFeatureCount is the fixed width of the temporal factor vector.
const TemporalFeatureCount = 10

const (
	hoursPerWeek         = 168.0
	maxLoginVelocity     = 50.0 // logins per hour, before scaling
	maxWeeklyFrequency   = 70.0 // logins per week, before scaling
	circularHistoryDepth = 20   // how many recent hours feed the circular mean
)

// Temporal distills the session timestamp plus history into the temporal
// factor vector. All hour math is in UTC of the timestamp.
func Temporal(s *session.Session, history []session.HistoryItem) []float64 {
	now := s.Time()
	hour := now.Hour()
	// Monday is 0, matching the convention the models were trained with
	weekday := (int(now.Weekday()) + 6) % 7

	isWeekend := weekday >= 5
	isBusiness := hour >= 9 && hour <= 17
	isNight := hour >= 22 || hour <= 5

	hoursSinceLast := hoursPerWeek
	if last := session.MostRecent(history); last != nil {
		delta := float64(s.Timestamp-last.Timestamp) / 3600000.0
		if delta < 0 {
			delta = 0
		}
		hoursSinceLast = math.Min(delta, hoursPerWeek)
	}

	var count24h, countLastHour int
	for i := range history {
		age := s.Timestamp - history[i].Timestamp
		if age >= 0 && age < 86400000 {
			count24h++
		}
		if age >= 0 && age < 3600000 {
			countLastHour++
		}
	}
	velocity := math.Min(float64(count24h)/24.0, maxLoginVelocity)
	isBurst := countLastHour > 5

	return []float64{
		float64(hour) / 23.0,
		float64(weekday) / 6.0,
		boolFeature(isWeekend),
		boolFeature(isBusiness),
		boolFeature(isNight),
		hoursSinceLast / hoursPerWeek,
		velocity / maxLoginVelocity,
		boolFeature(isBurst),
		hourDeviation(hour, history),
		weeklyFrequency(s.Timestamp, history) / maxWeeklyFrequency,
	}
}

// hourDeviation measures how far the session hour sits from the circular
// mean of the most recent historical login hours, normalized to [0, 1].
// The mean is circular so 23:00 and 01:00 average to midnight, not noon.
func hourDeviation(hour int, history []session.HistoryItem) float64 {
	sorted := session.SortedByTime(history)
	if len(sorted) > circularHistoryDepth {
		sorted = sorted[len(sorted)-circularHistoryDepth:]
	}
	if len(sorted) == 0 {
		return 0
	}

	var sumSin, sumCos float64
	for i := range sorted {
		angle := 2 * math.Pi * float64(sorted[i].Time().Hour()) / 24.0
		sumSin += math.Sin(angle)
		sumCos += math.Cos(angle)
	}

	// all hours spread evenly around the clock; no meaningful mean
	if math.Hypot(sumSin, sumCos) < 1e-9 {
		return 0
	}

	meanAngle := math.Atan2(sumSin, sumCos)
	meanHour := meanAngle * 24.0 / (2 * math.Pi)
	if meanHour < 0 {
		meanHour += 24
	}

	diff := math.Abs(float64(hour) - meanHour)
	if diff > 12 {
		diff = 24 - diff
	}
	return diff / 12.0
}

// weeklyFrequency is the average number of logins per week over the span of
// the history, capped so the scalar stays bounded.
func weeklyFrequency(nowMillis int64, history []session.HistoryItem) float64 {
	if len(history) == 0 {
		return 0
	}
	earliest := history[0].Timestamp
	for i := range history {
		if history[i].Timestamp < earliest {
			earliest = history[i].Timestamp
		}
	}
	spanWeeks := float64(nowMillis-earliest) / (7 * 24 * 3600000.0)
	if spanWeeks < 1 {
		spanWeeks = 1
	}
	return math.Min(float64(len(history))/spanWeeks, maxWeeklyFrequency)
}
