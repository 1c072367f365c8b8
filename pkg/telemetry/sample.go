// Package telemetry defines the ADS-B telemetry wire types consumed by the
// safety monitor.
package telemetry

import (
	"encoding/json"
	"strconv"
	"time"
)

// Sample is one aircraft's state vector within a batch. Fields that the feed
// may omit are pointers; absence disqualifies the aircraft from the checks
// that need them, never from the batch.
type Sample struct {
	ICAOHex       string   `json:"icao_hex"`
	Callsign      string   `json:"callsign,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	AltitudeFt    int      `json:"alt_ft"`
	VerticalRate  *int     `json:"vertical_rate,omitempty"` // fpm, + climb / - descend
	GroundSpeedKt *float64 `json:"gs_kt,omitempty"`
	TrackDeg      *float64 `json:"track,omitempty"`
	Squawk        string   `json:"squawk,omitempty"`
}

// Batch is one ingest cycle's worth of samples, published on the telemetry
// stream at the feed's natural cadence (~1 Hz).
type Batch struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Samples   []Sample  `json:"samples"`
}

// HasValidPosition reports whether the sample carries coordinates usable for
// geometric checks.
func (s *Sample) HasValidPosition() bool {
	if s.Lat == nil || s.Lon == nil {
		return false
	}
	return *s.Lat >= -90 && *s.Lat <= 90 && *s.Lon >= -180 && *s.Lon <= 180
}

// ParseAltitudeFt maps an upstream altitude value to feet. Feeds report
// "ground" (and occasionally other non-numeric sentinels) for aircraft on
// the surface; those map to 0.
func ParseAltitudeFt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	// "ground" and anything else unparseable
	return 0
}

// UnmarshalJSON accepts both numeric and sentinel altitude encodings.
func (s *Sample) UnmarshalJSON(data []byte) error {
	type alias Sample
	aux := struct {
		*alias
		AltitudeFt json.RawMessage `json:"alt_ft"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.AltitudeFt = ParseAltitudeFt(aux.AltitudeFt)
	return nil
}
