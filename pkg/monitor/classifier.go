package monitor

import (
	"fmt"
	"time"

	"github.com/skysentry/skysentry/pkg/telemetry"
)

// Emergency transponder codes. 7500/7600/7700 are the standardized
// hijack / radio-failure / general-emergency squawks.
const (
	squawkHijack       = "7500"
	squawkRadioFailure = "7600"
	squawkEmergency    = "7700"
)

// reversalLookback is how far back the classifier compares vertical speed
// when testing for a reversal.
const reversalLookback = 4 * time.Second

// takeoffSuppressionAltFt: below this altitude a positive-rate "reversal" is
// normal rotation after takeoff, not an RA.
const takeoffSuppressionAltFt = 3000

func displayName(callsign, icao string) string {
	if callsign != "" {
		return callsign
	}
	return icao
}

// classifySample runs the single-aircraft checks for one sample against that
// aircraft's tracked state and returns zero or more candidates.
func (m *Monitor) classifySample(s *telemetry.Sample, st *aircraftState, now time.Time) []candidate {
	var out []candidate

	if c := m.checkEmergencySquawk(s); c != nil {
		out = append(out, *c)
	}

	if s.VerticalRate != nil {
		if c := m.checkExtremeVerticalSpeed(s); c != nil {
			out = append(out, *c)
		}
		if c := m.checkVerticalSpeedReversal(s, st, now); c != nil {
			out = append(out, *c)
		}
	}

	return out
}

// checkEmergencySquawk re-asserts the event every batch the code remains set.
// That is deliberate: an active emergency must stay on the wire, and the
// lifecycle refresh path makes the re-assertion idempotent.
func (m *Monitor) checkEmergencySquawk(s *telemetry.Sample) *candidate {
	var (
		eventType EventType
		severity  Severity
		condition string
	)

	switch s.Squawk {
	case squawkHijack:
		eventType, severity, condition = EventEmergencySquawkHijack, SeverityCritical, "hijack"
	case squawkRadioFailure:
		eventType, severity, condition = EventEmergencySquawkRadioFail, SeverityWarning, "radio failure"
	case squawkEmergency:
		eventType, severity, condition = EventEmergencySquawkEmergency, SeverityCritical, "emergency"
	default:
		return nil
	}

	return &candidate{
		key:       canonicalKey(eventType, s.ICAOHex),
		eventType: eventType,
		severity:  severity,
		icao:      s.ICAOHex,
		callsign:  s.Callsign,
		message: fmt.Sprintf("%s squawking %s (%s) at %d ft",
			displayName(s.Callsign, s.ICAOHex), s.Squawk, condition, s.AltitudeFt),
		details: map[string]any{
			"squawk":    s.Squawk,
			"condition": condition,
			"alt_ft":    s.AltitudeFt,
		},
		aircraft: snapshotOf(s),
		cooldown: false,
	}
}

func (m *Monitor) checkExtremeVerticalSpeed(s *telemetry.Sample) *candidate {
	vs := *s.VerticalRate
	mag := abs(vs)
	if mag < m.thresholds.VsExtremeThresholdFpm {
		return nil
	}

	severity := SeverityLow
	switch {
	case mag >= 8000:
		severity = SeverityCritical
	case mag >= 7000:
		severity = SeverityWarning
	}

	direction := "climbing"
	if vs < 0 {
		direction = "descending"
	}

	return &candidate{
		key:       canonicalKey(EventExtremeVerticalSpeed, s.ICAOHex),
		eventType: EventExtremeVerticalSpeed,
		severity:  severity,
		icao:      s.ICAOHex,
		callsign:  s.Callsign,
		message: fmt.Sprintf("%s %s at %d fpm at %d ft",
			displayName(s.Callsign, s.ICAOHex), direction, mag, s.AltitudeFt),
		details: map[string]any{
			"vertical_rate_fpm": vs,
			"direction":         direction,
			"alt_ft":            s.AltitudeFt,
		},
		aircraft: snapshotOf(s),
		cooldown: true,
	}
}

// checkVerticalSpeedReversal tests for a rapid vertical-rate sign reversal.
// A large symmetric reversal reads as a TCAS resolution advisory; a smaller
// one is reported as a plain reversal.
func (m *Monitor) checkVerticalSpeedReversal(s *telemetry.Sample, st *aircraftState, now time.Time) *candidate {
	currentVs := *s.VerticalRate
	prevVs, ok := st.vsNear(now.Add(-reversalLookback))
	if !ok {
		return nil
	}

	// Reversal requires an actual sign change.
	if prevVs*currentVs >= 0 {
		return nil
	}

	// Climbing at low altitude is normal takeoff behavior.
	if s.AltitudeFt < takeoffSuppressionAltFt && currentVs > 0 {
		return nil
	}

	tcasThreshold := m.thresholds.TcasVsThresholdFpm
	if abs(prevVs) >= tcasThreshold && abs(currentVs) >= tcasThreshold {
		return &candidate{
			key:       canonicalKey(EventTcasResolutionAdvisory, s.ICAOHex),
			eventType: EventTcasResolutionAdvisory,
			severity:  SeverityCritical,
			icao:      s.ICAOHex,
			callsign:  s.Callsign,
			message: fmt.Sprintf("%s suspected TCAS RA: vertical rate reversed from %d to %d fpm at %d ft",
				displayName(s.Callsign, s.ICAOHex), prevVs, currentVs, s.AltitudeFt),
			details: map[string]any{
				"previous_vs_fpm": prevVs,
				"current_vs_fpm":  currentVs,
				"alt_ft":          s.AltitudeFt,
			},
			aircraft: snapshotOf(s),
			cooldown: true,
		}
	}

	change := abs(currentVs - prevVs)
	if change < m.thresholds.VsChangeThresholdFpm {
		return nil
	}

	severity := SeverityLow
	if change >= 4000 {
		severity = SeverityWarning
	}

	return &candidate{
		key:       canonicalKey(EventVerticalSpeedReversal, s.ICAOHex),
		eventType: EventVerticalSpeedReversal,
		severity:  severity,
		icao:      s.ICAOHex,
		callsign:  s.Callsign,
		message: fmt.Sprintf("%s vertical rate reversed from %d to %d fpm (%d fpm change) at %d ft",
			displayName(s.Callsign, s.ICAOHex), prevVs, currentVs, change, s.AltitudeFt),
		details: map[string]any{
			"previous_vs_fpm": prevVs,
			"current_vs_fpm":  currentVs,
			"change_fpm":      change,
			"alt_ft":          s.AltitudeFt,
		},
		aircraft: snapshotOf(s),
		cooldown: true,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
