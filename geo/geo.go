package geo

import (
	"math"
)

const (
	// EarthRadiusKm is the mean radius of the spherical Earth model used
	// for great-circle distances.
	EarthRadiusKm = 6371.0

	// MaxTravelSpeedKmh is the fastest plausible commercial travel speed.
	// Anything above it between two located logins is impossible travel.
	MaxTravelSpeedKmh = 900.0

	// DefaultCountryRisk applies to countries absent from both risk tables.
	DefaultCountryRisk = 30
)

// highRiskCountries carries a risk of at least 50.
var highRiskCountries = map[string]int{
	"North Korea": 95,
	"Iran":        85,
	"Syria":       85,
	"Cuba":        70,
	"Sudan":       70,
	"Russia":      65,
	"Belarus":     60,
	"Myanmar":     60,
	"Venezuela":   55,
	"Crimea":      90,
}

// lowRiskCountries carries a risk of at most 15.
var lowRiskCountries = map[string]int{
	"United States":  10,
	"Canada":         10,
	"United Kingdom": 10,
	"Germany":        10,
	"France":         10,
	"Netherlands":    12,
	"Sweden":         10,
	"Norway":         10,
	"Denmark":        10,
	"Finland":        10,
	"Switzerland":    10,
	"Austria":        12,
	"Australia":      10,
	"New Zealand":    10,
	"Japan":          10,
	"South Korea":    12,
	"Singapore":      12,
	"Ireland":        12,
	"Belgium":        12,
	"Spain":          15,
	"Italy":          15,
	"Portugal":       15,
}

// Haversine returns the great-circle distance in kilometers between two
// points on a spherical Earth.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// TravelSpeed returns the speed in km/h required to cover the great-circle
// distance between two points in the given number of milliseconds. The time
// delta is floored at 1 ms so a zero delta yields a finite, very large speed.
func TravelSpeed(lat1, lon1, lat2, lon2 float64, deltaMillis int64) float64 {
	if deltaMillis < 0 {
		deltaMillis = -deltaMillis
	}
	if deltaMillis < 1 {
		deltaMillis = 1
	}

	distanceKm := Haversine(lat1, lon1, lat2, lon2)
	hours := float64(deltaMillis) / 3600000.0

	return distanceKm / hours
}

// IsImpossibleTravel reports whether the required travel speed between two
// located logins exceeds the maximum plausible speed.
func IsImpossibleTravel(lat1, lon1, lat2, lon2 float64, deltaMillis int64, maxSpeedKmh float64) bool {
	if maxSpeedKmh <= 0 {
		maxSpeedKmh = MaxTravelSpeedKmh
	}
	return TravelSpeed(lat1, lon1, lat2, lon2, deltaMillis) > maxSpeedKmh
}

// CountryRisk returns the static risk score for a country in [0, 100].
// Unknown countries score the neutral default.
func CountryRisk(country string) int {
	if risk, ok := highRiskCountries[country]; ok {
		return risk
	}
	if risk, ok := lowRiskCountries[country]; ok {
		return risk
	}
	return DefaultCountryRisk
}

// IsHighRiskCountry reports whether a country is in the high-risk table.
func IsHighRiskCountry(country string) bool {
	_, ok := highRiskCountries[country]
	return ok
}

// ValidCoordinates reports whether a latitude/longitude pair is in range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
