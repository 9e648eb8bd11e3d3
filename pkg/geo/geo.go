// Package geo provides the great-circle math used by the surveillance layer:
// haversine distance in nautical miles, initial bearing, and the bounding box
// sent to area-query APIs.
package geo

import "math"

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// DistanceNM returns the great-circle distance between two WGS-84 points in
// nautical miles, using the haversine formula.
func DistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	φ1, λ1 := radians(lat1), radians(lon1)
	φ2, λ2 := radians(lat2), radians(lon2)

	dφ := φ2 - φ1
	dλ := λ2 - λ1

	a := math.Pow(math.Sin(dφ/2), 2) + math.Cos(φ1)*math.Cos(φ2)*math.Pow(math.Sin(dλ/2), 2)
	return EarthRadiusNM * 2 * math.Asin(math.Sqrt(a))
}

// BearingDeg returns the initial bearing from point 1 to point 2 in degrees,
// normalized to [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	φ1, λ1 := radians(lat1), radians(lon1)
	φ2, λ2 := radians(lat2), radians(lon2)

	dλ := λ2 - λ1
	y := math.Sin(dλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(dλ)
	bearing := degrees(math.Atan2(y, x))
	return math.Mod(bearing+360, 360)
}

// BoundingBox is a latitude/longitude rectangle around a center point.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Box computes the bounding box covering radiusNM nautical miles around
// (lat, lon). One minute of latitude is one nautical mile; longitude minutes
// shrink with the cosine of latitude.
func Box(lat, lon, radiusNM float64) BoundingBox {
	latDelta := radiusNM / 60.0
	lonDelta := radiusNM / (60.0 * math.Cos(radians(lat)))
	return BoundingBox{
		LatMin: lat - latDelta,
		LatMax: lat + latDelta,
		LonMin: lon - lonDelta,
		LonMax: lon + lonDelta,
	}
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
