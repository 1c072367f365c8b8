// Package geo provides great-circle geometry used by the conflict detector.
package geo

import "math"

const (
	// EarthRadiusNM is the mean Earth radius in nautical miles.
	EarthRadiusNM = 3440.065
)

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineNM returns the great-circle distance between two points in
// nautical miles.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	lat1Rad := toRad(lat1)
	lat2Rad := toRad(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusNM * c
}

// BearingDeg returns the initial bearing from point 1 to point 2 in degrees,
// normalized to [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRad(lat1)
	lat2Rad := toRad(lat2)
	dLon := toRad(lon2 - lon1)

	x := math.Sin(dLon) * math.Cos(lat2Rad)
	y := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)

	bearing := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// CompassName maps a bearing in degrees to one of the 16 compass points.
func CompassName(bearing float64) string {
	idx := int(math.Round(bearing/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

// Velocity is a ground-referenced velocity: speed in knots and track in
// degrees true.
type Velocity struct {
	GroundSpeedKt float64
	TrackDeg      float64
}

// Point is a position plus velocity, the inputs to ClosureRateKt.
type Point struct {
	Lat float64
	Lon float64
	Vel *Velocity
}

// ClosureRateKt returns the rate at which two aircraft are approaching each
// other in knots (positive = closing), computed by projecting the relative
// velocity onto the line-of-sight unit vector from p1 to p2. Returns false
// when either velocity is unknown or the points are effectively co-located.
func ClosureRateKt(p1, p2 Point) (float64, bool) {
	if p1.Vel == nil || p2.Vel == nil {
		return 0, false
	}

	// Flat-earth approximation is fine at conflict ranges (a few nm).
	// One degree of latitude is 60 nm; longitude shrinks with cos(lat).
	midLat := toRad((p1.Lat + p2.Lat) / 2)
	dx := (p2.Lon - p1.Lon) * 60 * math.Cos(midLat)
	dy := (p2.Lat - p1.Lat) * 60

	dist := math.Hypot(dx, dy)
	if dist < 1e-6 {
		return 0, false
	}
	ux := dx / dist
	uy := dy / dist

	// Track is degrees clockwise from north: east component uses sin,
	// north component uses cos.
	v1x := p1.Vel.GroundSpeedKt * math.Sin(toRad(p1.Vel.TrackDeg))
	v1y := p1.Vel.GroundSpeedKt * math.Cos(toRad(p1.Vel.TrackDeg))
	v2x := p2.Vel.GroundSpeedKt * math.Sin(toRad(p2.Vel.TrackDeg))
	v2y := p2.Vel.GroundSpeedKt * math.Cos(toRad(p2.Vel.TrackDeg))

	// Relative velocity of 2 w.r.t. 1 projected onto the line of sight.
	// A negative projection means the gap is shrinking, so closure is
	// the negation.
	rel := (v2x-v1x)*ux + (v2y-v1y)*uy
	return -rel, true
}

// TrackDiffDeg returns the absolute difference between two tracks,
// normalized to [0, 180].
func TrackDiffDeg(t1, t2 float64) float64 {
	diff := math.Abs(t1 - t2)
	diff = math.Mod(diff, 360)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}
