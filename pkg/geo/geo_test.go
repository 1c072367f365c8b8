package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineNM(t *testing.T) {
	// Same point.
	assert.InDelta(t, 0, HaversineNM(47.6, -122.3, 47.6, -122.3), 1e-9)

	// One degree of latitude is 60 nm by definition of the nautical mile.
	assert.InDelta(t, 60.0, HaversineNM(47.0, -122.3, 48.0, -122.3), 0.1)

	// KSEA to KPDX, roughly 117 nm.
	d := HaversineNM(47.4502, -122.3088, 45.5887, -122.5975)
	assert.InDelta(t, 112.5, d, 2.0)

	// Symmetric.
	assert.InDelta(t,
		HaversineNM(47.6, -122.3, 47.9, -121.9),
		HaversineNM(47.9, -121.9, 47.6, -122.3), 1e-9)
}

func TestBearingDeg(t *testing.T) {
	// Due north.
	assert.InDelta(t, 0, BearingDeg(47.0, -122.3, 48.0, -122.3), 0.01)
	// Due south.
	assert.InDelta(t, 180, BearingDeg(48.0, -122.3, 47.0, -122.3), 0.01)
	// Eastbound at low latitude difference.
	b := BearingDeg(47.6, -122.3, 47.6, -122.0)
	assert.InDelta(t, 90, b, 0.5)

	// Always normalized to [0, 360).
	b = BearingDeg(47.6, -122.0, 47.6, -122.3)
	assert.GreaterOrEqual(t, b, 0.0)
	assert.Less(t, b, 360.0)
	assert.InDelta(t, 270, b, 0.5)
}

func TestCompassName(t *testing.T) {
	cases := []struct {
		bearing float64
		want    string
	}{
		{0, "N"},
		{10, "N"},
		{12, "NNE"},
		{45, "NE"},
		{90, "E"},
		{135, "SE"},
		{180, "S"},
		{225, "SW"},
		{270, "W"},
		{315, "NW"},
		{340, "NNW"},
		{355, "N"}, // wraps back to north
		{359.9, "N"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompassName(tc.bearing), "bearing %.2f", tc.bearing)
	}
}

func TestClosureRateKt(t *testing.T) {
	// Head-on along an east-west line: closure is the sum of the speeds.
	p1 := Point{Lat: 47.0, Lon: -122.3, Vel: &Velocity{GroundSpeedKt: 200, TrackDeg: 90}}
	p2 := Point{Lat: 47.0, Lon: -122.2, Vel: &Velocity{GroundSpeedKt: 250, TrackDeg: 270}}

	rate, ok := ClosureRateKt(p1, p2)
	assert.True(t, ok)
	assert.InDelta(t, 450, rate, 1.0)

	// Diverging: both flying away from each other.
	p1.Vel.TrackDeg = 270
	p2.Vel.TrackDeg = 90
	rate, ok = ClosureRateKt(p1, p2)
	assert.True(t, ok)
	assert.InDelta(t, -450, rate, 1.0)

	// Parallel same-speed traffic neither closes nor opens.
	p1.Vel = &Velocity{GroundSpeedKt: 300, TrackDeg: 0}
	p2.Vel = &Velocity{GroundSpeedKt: 300, TrackDeg: 0}
	rate, ok = ClosureRateKt(p1, p2)
	assert.True(t, ok)
	assert.InDelta(t, 0, rate, 0.5)

	// Unknown velocity.
	p2.Vel = nil
	_, ok = ClosureRateKt(p1, p2)
	assert.False(t, ok)

	// Co-located points have no line of sight.
	p2 = p1
	_, ok = ClosureRateKt(p1, p2)
	assert.False(t, ok)
}

func TestClosureRateSymmetry(t *testing.T) {
	p1 := Point{Lat: 47.9377, Lon: -121.9687, Vel: &Velocity{GroundSpeedKt: 280, TrackDeg: 90}}
	p2 := Point{Lat: 47.9427, Lon: -121.9637, Vel: &Velocity{GroundSpeedKt: 290, TrackDeg: 270}}

	r12, ok1 := ClosureRateKt(p1, p2)
	r21, ok2 := ClosureRateKt(p2, p1)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.InDelta(t, r12, r21, 1e-9)
	assert.Greater(t, r12, 0.0)
}

func TestTrackDiffDeg(t *testing.T) {
	assert.InDelta(t, 0, TrackDiffDeg(90, 90), 1e-9)
	assert.InDelta(t, 180, TrackDiffDeg(0, 180), 1e-9)
	assert.InDelta(t, 20, TrackDiffDeg(350, 10), 1e-9)
	assert.InDelta(t, 90, TrackDiffDeg(45, 315), 1e-9)
	assert.InDelta(t, 180, TrackDiffDeg(90, 270), 1e-9)
}
