package monitor

import (
	"time"

	"github.com/skysentry/skysentry/pkg/telemetry"
)

const maxHistoryEntries = 10

// historySample is one timestamped reading in a sliding window.
type historySample struct {
	at    time.Time
	value int
}

// aircraftState is the short-horizon memory the monitor keeps per ICAO hex.
// Owned exclusively by the tracker; all access runs under the monitor lock.
type aircraftState struct {
	icaoHex    string
	callsign   string
	vsHistory  []historySample
	altHistory []historySample

	lat           *float64
	lon           *float64
	groundSpeedKt *float64
	trackDeg      *float64

	lastUpdate time.Time
}

// update folds one sample into the state, appending to the histories only
// when the respective value was reported.
func (st *aircraftState) update(s *telemetry.Sample, now time.Time) {
	if s.Callsign != "" {
		st.callsign = s.Callsign
	}
	if s.VerticalRate != nil {
		st.vsHistory = appendCapped(st.vsHistory, historySample{at: now, value: *s.VerticalRate})
	}
	st.altHistory = appendCapped(st.altHistory, historySample{at: now, value: s.AltitudeFt})

	st.lat = s.Lat
	st.lon = s.Lon
	st.groundSpeedKt = s.GroundSpeedKt
	st.trackDeg = s.TrackDeg
	st.lastUpdate = now
}

func appendCapped(h []historySample, s historySample) []historySample {
	h = append(h, s)
	if len(h) > maxHistoryEntries {
		h = h[len(h)-maxHistoryEntries:]
	}
	return h
}

// vsNear returns the vertical-speed sample closest to the target time, or the
// second-most-recent sample when nothing old enough exists. Returns false
// with fewer than two samples.
func (st *aircraftState) vsNear(target time.Time) (int, bool) {
	if len(st.vsHistory) < 2 {
		return 0, false
	}

	best := -1
	var bestDelta time.Duration
	for i, s := range st.vsHistory {
		if s.at.After(target) {
			continue
		}
		delta := target.Sub(s.at)
		if best == -1 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	if best == -1 {
		// No sample old enough; fall back to the second-most-recent.
		best = len(st.vsHistory) - 2
	}
	return st.vsHistory[best].value, true
}
