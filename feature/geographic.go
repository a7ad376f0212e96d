package feature

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/xayone/riskd/geo"
	"github.com/xayone/riskd/session"
)

// GeographicFeatureCount is the fixed width of the geographic factor vector.
const GeographicFeatureCount = 9

// distanceScaleKm normalizes great-circle distances; 5000 km is roughly a
// transatlantic hop.
const distanceScaleKm = 5000.0

// Geographic distills the enriched session location plus located history
// into the geographic factor vector. An unknown current location neutralizes
// every location-dependent element so the model sees no false movement.
func Geographic(s *session.Session, history []session.HistoryItem) []float64 {
	loc := s.Location
	known := loc != nil && (loc.Latitude != 0 || loc.Longitude != 0)

	countries := make(map[string]struct{})
	cities := make(map[string]struct{})
	for i := range history {
		if c := history[i].Location.Country; c != "" {
			countries[c] = struct{}{}
		}
		if c := history[i].Location.City; c != "" {
			cities[c] = struct{}{}
		}
	}

	var (
		isNewCountry float64
		isNewCity    float64
		countryRisk  float64 = float64(geo.DefaultCountryRisk) / 100.0
	)
	if loc != nil && loc.Country != "" && loc.Country != "unknown" {
		_, seenCountry := countries[loc.Country]
		isNewCountry = boolFeature(!seenCountry)
		countryRisk = float64(geo.CountryRisk(loc.Country)) / 100.0
		if loc.City != "" && loc.City != "unknown" {
			_, seenCity := cities[loc.City]
			isNewCity = boolFeature(!seenCity)
		}
	}

	if !known {
		return []float64{isNewCountry, isNewCity, countryRisk, 0, 0, 0, 0, 0, 0}
	}

	var distances []float64
	for i := range history {
		if !history[i].Located() {
			continue
		}
		distances = append(distances, geo.Haversine(
			loc.Latitude, loc.Longitude,
			history[i].Location.Latitude, history[i].Location.Longitude,
		))
	}

	var avgDist, maxDist, stdDist float64
	if len(distances) > 0 {
		avgDist, _ = stats.Mean(distances)
		maxDist, _ = stats.Max(distances)
		if len(distances) > 1 {
			stdDist, _ = stats.StandardDeviation(distances)
		}
	}

	var speed, impossible float64
	if last := session.MostRecentLocated(history); last != nil {
		v := geo.TravelSpeed(
			last.Location.Latitude, last.Location.Longitude,
			loc.Latitude, loc.Longitude,
			s.Timestamp-last.Timestamp,
		)
		speed = math.Min(v/1000.0, 2)
		impossible = boolFeature(v > geo.MaxTravelSpeedKmh)
	}

	return []float64{
		isNewCountry,
		isNewCity,
		countryRisk,
		math.Min(avgDist/distanceScaleKm, 1),
		math.Min(maxDist/distanceScaleKm, 4),
		speed,
		impossible,
		math.Min(stdDist/distanceScaleKm, 1),
		centroidDistance(loc, history) / distanceScaleKm,
	}
}

// centroidDistance is the great-circle distance from the current location to
// the mean coordinate of the located history, capped at the distance scale.
func centroidDistance(loc *session.Location, history []session.HistoryItem) float64 {
	var sumLat, sumLon float64
	n := 0
	for i := range history {
		if !history[i].Located() {
			continue
		}
		sumLat += history[i].Location.Latitude
		sumLon += history[i].Location.Longitude
		n++
	}
	if n == 0 {
		return 0
	}
	d := geo.Haversine(loc.Latitude, loc.Longitude, sumLat/float64(n), sumLon/float64(n))
	return math.Min(d, distanceScaleKm)
}
