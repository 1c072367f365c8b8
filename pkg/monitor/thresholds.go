package monitor

import (
	"os"
	"strconv"
	"time"
)

// Thresholds holds every tunable the detection engine recognizes. Zero-config
// deployments run on DefaultThresholds; env overrides use the SAFETY_ prefix.
type Thresholds struct {
	// Vertical-speed classification, all in fpm.
	VsChangeThresholdFpm  int `json:"vs_change_threshold_fpm"`
	VsExtremeThresholdFpm int `json:"vs_extreme_threshold_fpm"`
	TcasVsThresholdFpm    int `json:"tcas_vs_threshold_fpm"`

	// Pairwise conflict geometry.
	ProximityNm    float64 `json:"proximity_nm"`
	AltitudeDiffFt int     `json:"altitude_diff_ft"`

	// Advisory only: quoted in conflict message text, never gates detection.
	ClosureRateKt float64 `json:"closure_rate_kt"`

	HistoryRetention time.Duration `json:"history_retention_sec"`
	EventCooldown    time.Duration `json:"event_cooldown_sec"`
	EventExpiry      time.Duration `json:"event_expiry_sec"`

	MonitoringEnabled bool `json:"monitoring_enabled"`
}

// DefaultThresholds returns the reference deployment's tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VsChangeThresholdFpm:  3000,
		VsExtremeThresholdFpm: 6000,
		TcasVsThresholdFpm:    1500,
		ProximityNm:           1.0,
		AltitudeDiffFt:        1000,
		ClosureRateKt:         100,
		HistoryRetention:      30 * time.Second,
		EventCooldown:         60 * time.Second,
		EventExpiry:           300 * time.Second,
		MonitoringEnabled:     true,
	}
}

// ThresholdsFromEnv overlays SAFETY_* environment variables onto the defaults.
func ThresholdsFromEnv() Thresholds {
	t := DefaultThresholds()
	t.VsChangeThresholdFpm = envInt("SAFETY_VS_CHANGE_THRESHOLD", t.VsChangeThresholdFpm)
	t.VsExtremeThresholdFpm = envInt("SAFETY_VS_EXTREME_THRESHOLD", t.VsExtremeThresholdFpm)
	t.TcasVsThresholdFpm = envInt("SAFETY_TCAS_VS_THRESHOLD", t.TcasVsThresholdFpm)
	t.ProximityNm = envFloat("SAFETY_PROXIMITY_NM", t.ProximityNm)
	t.AltitudeDiffFt = envInt("SAFETY_ALTITUDE_DIFF_FT", t.AltitudeDiffFt)
	t.ClosureRateKt = envFloat("SAFETY_CLOSURE_RATE_KT", t.ClosureRateKt)
	t.HistoryRetention = envSeconds("SAFETY_HISTORY_RETENTION_SEC", t.HistoryRetention)
	t.EventCooldown = envSeconds("SAFETY_EVENT_COOLDOWN_SEC", t.EventCooldown)
	t.EventExpiry = envSeconds("SAFETY_EVENT_EXPIRY_SEC", t.EventExpiry)
	if v := os.Getenv("SAFETY_MONITORING_ENABLED"); v != "" {
		t.MonitoringEnabled = v == "true" || v == "1"
	}
	return t
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
