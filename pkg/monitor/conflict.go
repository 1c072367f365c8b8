package monitor

import (
	"fmt"
	"math"

	"github.com/skysentry/skysentry/pkg/geo"
	"github.com/skysentry/skysentry/pkg/telemetry"
)

const (
	// conflictMinAltFt excludes surface traffic from pairing. Aircraft on
	// the ground are still run through the single-aircraft checks.
	conflictMinAltFt = 500

	// airportTrafficAltFt / airportRangeNm / airportMinVsFpm shape the
	// takeoff-landing suppression: opposite-direction vertical traffic
	// co-located with a major airport is benign departure/arrival flow.
	airportTrafficAltFt = 3000
	airportRangeNm      = 5.0
	airportMinVsFpm     = 300

	// closeRangeNm: inside this radius the diverging-closure and
	// passed-each-other gates are skipped. A pair already inside the
	// conflict bubble should alert even if the instantaneous closure
	// estimate is noisy.
	closeRangeNm = 0.5

	// passedTrackDiffDeg rejects pairs whose tracks differ by more than
	// this; they have already passed each other.
	passedTrackDiffDeg = 150
)

// majorAirport is an entry in the fixed suppression table.
type majorAirport struct {
	ident string
	lat   float64
	lon   float64
}

// Large-hub airports with enough simultaneous arrival/departure traffic to
// make co-located opposite-direction pairs routine.
var majorAirports = []majorAirport{
	{"KATL", 33.6367, -84.4281},
	{"KBOS", 42.3656, -71.0096},
	{"KDEN", 39.8617, -104.6731},
	{"KDFW", 32.8968, -97.0380},
	{"KEWR", 40.6925, -74.1687},
	{"KIAH", 29.9844, -95.3414},
	{"KJFK", 40.6398, -73.7789},
	{"KLAS", 36.0801, -115.1522},
	{"KLAX", 33.9425, -118.4081},
	{"KMIA", 25.7932, -80.2906},
	{"KORD", 41.9786, -87.9048},
	{"KPHX", 33.4343, -112.0116},
	{"KSEA", 47.4502, -122.3088},
	{"KSFO", 37.6189, -122.3750},
	{"CYYZ", 43.6777, -79.6248},
	{"CYVR", 49.1939, -123.1844},
	{"EGLL", 51.4706, -0.4619},
	{"EDDF", 50.0333, 8.5706},
	{"LFPG", 49.0097, 2.5479},
	{"RJTT", 35.5523, 139.7800},
}

func nearMajorAirport(lat, lon float64) (string, bool) {
	for _, ap := range majorAirports {
		if geo.HaversineNM(lat, lon, ap.lat, ap.lon) <= airportRangeNm {
			return ap.ident, true
		}
	}
	return "", false
}

// detectConflicts runs the pairwise proximity analysis over the airborne
// subset of the batch.
func (m *Monitor) detectConflicts(samples []*telemetry.Sample) []candidate {
	airborne := make([]*telemetry.Sample, 0, len(samples))
	for _, s := range samples {
		if s.AltitudeFt >= conflictMinAltFt && s.HasValidPosition() {
			airborne = append(airborne, s)
		}
	}

	// Bounding box half-width in degrees for the cheap prefilter. One
	// degree of latitude is 60 nm.
	boxDeg := 2 * (m.thresholds.ProximityNm / 60)

	var out []candidate
	for i := 0; i < len(airborne); i++ {
		for j := i + 1; j < len(airborne); j++ {
			if c := m.checkPair(airborne[i], airborne[j], boxDeg); c != nil {
				out = append(out, *c)
			}
		}
	}
	return out
}

func (m *Monitor) checkPair(a, b *telemetry.Sample, boxDeg float64) *candidate {
	// Order the pair the way the canonical key does, so identity fields,
	// snapshots, and message text describe the same aircraft no matter how
	// the batch happened to be ordered.
	if b.ICAOHex < a.ICAOHex {
		a, b = b, a
	}

	// Cheap bounding box before any trigonometry.
	if math.Abs(*a.Lat-*b.Lat) > boxDeg || math.Abs(*a.Lon-*b.Lon) > boxDeg {
		return nil
	}

	distNm := geo.HaversineNM(*a.Lat, *a.Lon, *b.Lat, *b.Lon)
	if distNm > m.thresholds.ProximityNm {
		return nil
	}

	altDiff := abs(a.AltitudeFt - b.AltitudeFt)
	if altDiff > m.thresholds.AltitudeDiffFt {
		return nil
	}

	if m.isAirportTraffic(a, b) {
		return nil
	}

	closureKt, closureKnown := geo.ClosureRateKt(pairPoint(a), pairPoint(b))
	if distNm > closeRangeNm {
		if closureKnown && closureKt <= 0 {
			return nil // diverging
		}
		if a.TrackDeg != nil && b.TrackDeg != nil &&
			geo.TrackDiffDeg(*a.TrackDeg, *b.TrackDeg) > passedTrackDiffDeg {
			return nil // already passed each other
		}
	}

	key := canonicalPairKey(EventProximityConflict, a.ICAOHex, b.ICAOHex)

	var severity Severity
	switch {
	case distNm < 0.25 && altDiff < 300:
		severity = SeverityCritical
	case distNm < 0.35 || altDiff < 400:
		severity = SeverityWarning
	default:
		severity = SeverityLow
	}

	bearing := geo.BearingDeg(*a.Lat, *a.Lon, *b.Lat, *b.Lon)
	msg := fmt.Sprintf("%s and %s %.2f nm apart, %d ft vertical (%s of %s)",
		displayName(a.Callsign, a.ICAOHex), displayName(b.Callsign, b.ICAOHex),
		distNm, altDiff, geo.CompassName(bearing), displayName(a.Callsign, a.ICAOHex))

	details := map[string]any{
		"distance_nm": round2(distNm),
		"alt_diff_ft": altDiff,
		"bearing_deg": round2(bearing),
	}
	if closureKnown {
		details["closure_rate_kt"] = round2(closureKt)
		if closureKt >= m.thresholds.ClosureRateKt {
			msg += fmt.Sprintf(", closing at %.0f kt", closureKt)
		}
	}

	return &candidate{
		key:       key,
		eventType: EventProximityConflict,
		severity:  severity,
		icao:      a.ICAOHex,
		icao2:     b.ICAOHex,
		callsign:  a.Callsign,
		callsign2: b.Callsign,
		message:   msg,
		details:   details,
		aircraft:  snapshotOf(a),
		aircraft2: snapshotOf(b),
		cooldown:  true,
	}
}

// isAirportTraffic recognizes the benign takeoff/landing pattern: two low
// aircraft with meaningful opposite vertical rates, both sitting on top of a
// major airport.
func (m *Monitor) isAirportTraffic(a, b *telemetry.Sample) bool {
	if a.AltitudeFt >= airportTrafficAltFt || b.AltitudeFt >= airportTrafficAltFt {
		return false
	}
	if a.VerticalRate == nil || b.VerticalRate == nil {
		return false
	}
	vsA, vsB := *a.VerticalRate, *b.VerticalRate
	if vsA*vsB >= 0 {
		return false
	}
	if abs(vsA) < airportMinVsFpm && abs(vsB) < airportMinVsFpm {
		return false
	}

	_, aNear := nearMajorAirport(*a.Lat, *a.Lon)
	_, bNear := nearMajorAirport(*b.Lat, *b.Lon)
	return aNear && bNear
}

func pairPoint(s *telemetry.Sample) geo.Point {
	p := geo.Point{Lat: *s.Lat, Lon: *s.Lon}
	if s.GroundSpeedKt != nil && s.TrackDeg != nil {
		p.Vel = &geo.Velocity{GroundSpeedKt: *s.GroundSpeedKt, TrackDeg: *s.TrackDeg}
	}
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
