package monitor

import (
	"time"

	"github.com/skysentry/skysentry/pkg/telemetry"
)

// EventType identifies the condition a safety event reports.
type EventType string

const (
	EventEmergencySquawkHijack    EventType = "emergency_squawk_hijack"
	EventEmergencySquawkRadioFail EventType = "emergency_squawk_radio_failure"
	EventEmergencySquawkEmergency EventType = "emergency_squawk_emergency"
	EventExtremeVerticalSpeed     EventType = "extreme_vertical_speed"
	EventVerticalSpeedReversal    EventType = "vertical_speed_reversal"
	EventTcasResolutionAdvisory   EventType = "tcas_resolution_advisory"
	EventProximityConflict        EventType = "proximity_conflict"
)

// Severity ranks how urgently an event needs operator attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityLow      Severity = "low"
)

// Notification types sent to the broadcaster, one per lifecycle transition.
const (
	NotifyEventCreated  = "safety_event"
	NotifyEventUpdated  = "safety_event_updated"
	NotifyEventResolved = "safety_event_resolved"
)

// Snapshot is a point-in-time copy of an aircraft's telemetry, attached to
// events for audit.
type Snapshot struct {
	ICAOHex       string   `json:"icao_hex"`
	Callsign      string   `json:"callsign,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	AltitudeFt    int      `json:"alt_ft"`
	VerticalRate  *int     `json:"vertical_rate,omitempty"`
	GroundSpeedKt *float64 `json:"gs_kt,omitempty"`
	TrackDeg      *float64 `json:"track,omitempty"`
	Squawk        string   `json:"squawk,omitempty"`
}

func snapshotOf(s *telemetry.Sample) *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		ICAOHex:       s.ICAOHex,
		Callsign:      s.Callsign,
		Lat:           s.Lat,
		Lon:           s.Lon,
		AltitudeFt:    s.AltitudeFt,
		VerticalRate:  s.VerticalRate,
		GroundSpeedKt: s.GroundSpeedKt,
		TrackDeg:      s.TrackDeg,
		Squawk:        s.Squawk,
	}
}

// SafetyEvent is one live anomalous condition. Its ID is the canonical event
// key, so re-detection of the same condition refreshes rather than
// duplicates.
type SafetyEvent struct {
	ID           string         `json:"id"`
	EventType    EventType      `json:"event_type"`
	Severity     Severity       `json:"severity"`
	ICAOHex      string         `json:"icao_hex"`
	ICAOHex2     string         `json:"icao_hex2,omitempty"`
	Callsign     string         `json:"callsign,omitempty"`
	Callsign2    string         `json:"callsign2,omitempty"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Aircraft     *Snapshot      `json:"aircraft,omitempty"`
	Aircraft2    *Snapshot      `json:"aircraft2,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSeen     time.Time      `json:"last_seen"`
	Acknowledged bool           `json:"acknowledged"`
	ExternalID   string         `json:"external_id,omitempty"`
}

// clone returns a copy safe to hand to readers and collaborators while the
// monitor keeps mutating its own table.
func (e *SafetyEvent) clone() *SafetyEvent {
	cp := *e
	if e.Details != nil {
		cp.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	if e.Aircraft != nil {
		snap := *e.Aircraft
		cp.Aircraft = &snap
	}
	if e.Aircraft2 != nil {
		snap := *e.Aircraft2
		cp.Aircraft2 = &snap
	}
	return &cp
}

// canonicalKey builds the deduplication key for a single-aircraft event.
func canonicalKey(t EventType, icao string) string {
	return string(t) + ":" + icao
}

// canonicalPairKey builds the deduplication key for a paired event. The hex
// codes are ordered so that (a,b) and (b,a) map to the same key.
func canonicalPairKey(t EventType, icaoA, icaoB string) string {
	if icaoB < icaoA {
		icaoA, icaoB = icaoB, icaoA
	}
	return string(t) + ":" + icaoA + ":" + icaoB
}

// candidate is a detection result headed for the lifecycle manager. Events
// with cooldown=false (emergency squawks) are re-asserted every batch the
// condition holds.
type candidate struct {
	key       string
	eventType EventType
	severity  Severity
	icao      string
	icao2     string
	callsign  string
	callsign2 string
	message   string
	details   map[string]any
	aircraft  *Snapshot
	aircraft2 *Snapshot
	cooldown  bool
}
