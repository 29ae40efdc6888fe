package tracker

import "math"

// EarthRadiusKM is the mean Earth radius used for distance computation.
const EarthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// lat/lon points in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

// round2 rounds to two decimal places, the precision distances are stored at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
