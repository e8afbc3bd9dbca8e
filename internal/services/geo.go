package services

import (
	"math"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

// TrailDistanceKm sums the great-circle distance between consecutive positions.
func TrailDistanceKm(trail []models.Position) float64 {
	total := 0.0
	for i := 1; i < len(trail); i++ {
		total += haversineDistance(trail[i-1].Latitude, trail[i-1].Longitude, trail[i].Latitude, trail[i].Longitude)
	}
	return total
}

// haversineDistance calculates distance between two points in km
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth radius in km

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
