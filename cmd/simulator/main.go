// Package main runs the telemetry simulator: it generates synthetic ADS-B
// traffic (plus injectable emergency and conflict scenarios) and publishes
// batches to the TELEMETRY stream for the safety monitor to consume.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skysentry/skysentry/pkg/natsutil"
	"github.com/skysentry/skysentry/pkg/telemetry"
)

// Config holds the simulator configuration.
type Config struct {
	NATSUrl       string
	BatchInterval time.Duration
	AircraftCount int

	// Scenario injection.
	EmergencyAfter time.Duration // one aircraft starts squawking 7700
	ConflictAfter  time.Duration // two aircraft converge head-on

	CenterLat float64
	CenterLon float64
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		NATSUrl:        getEnv("NATS_URL", "nats://localhost:4222"),
		BatchInterval:  envDuration("BATCH_INTERVAL", time.Second),
		AircraftCount:  envInt("AIRCRAFT_COUNT", 20),
		EmergencyAfter: envDuration("EMERGENCY_AFTER", 0),
		ConflictAfter:  envDuration("CONFLICT_AFTER", 0),
		CenterLat:      47.6,
		CenterLon:      -122.3,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// simAircraft is one synthetic track's mutable state.
type simAircraft struct {
	icaoHex    string
	callsign   string
	lat        float64
	lon        float64
	altitudeFt int
	vsFpm      int
	gsKt       float64
	trackDeg   float64
	squawk     string
}

func newFleet(cfg Config, rng *rand.Rand) []*simAircraft {
	fleet := make([]*simAircraft, 0, cfg.AircraftCount)
	for i := 0; i < cfg.AircraftCount; i++ {
		fleet = append(fleet, &simAircraft{
			icaoHex:    fmt.Sprintf("A%05X", rng.Intn(0xFFFFF)),
			callsign:   fmt.Sprintf("SIM%03d", i+1),
			lat:        cfg.CenterLat + (rng.Float64()-0.5)*2,
			lon:        cfg.CenterLon + (rng.Float64()-0.5)*2,
			altitudeFt: 5000 + rng.Intn(30000),
			vsFpm:      rng.Intn(2000) - 1000,
			gsKt:       250 + rng.Float64()*200,
			trackDeg:   rng.Float64() * 360,
			squawk:     "1200",
		})
	}
	return fleet
}

// step advances one aircraft by dt along its current track with small
// random drift.
func (a *simAircraft) step(dt time.Duration, rng *rand.Rand) {
	hours := dt.Hours()
	distNm := a.gsKt * hours

	rad := a.trackDeg * math.Pi / 180
	a.lat += distNm / 60 * math.Cos(rad)
	a.lon += distNm / 60 * math.Sin(rad) / math.Cos(a.lat*math.Pi/180)

	a.altitudeFt += int(float64(a.vsFpm) * dt.Minutes())
	if a.altitudeFt < 1000 {
		a.altitudeFt = 1000
		a.vsFpm = abs(a.vsFpm)
	}

	a.trackDeg = math.Mod(a.trackDeg+(rng.Float64()-0.5)*4+360, 360)
	a.vsFpm += rng.Intn(200) - 100
	if a.vsFpm > 3000 {
		a.vsFpm = 3000
	}
	if a.vsFpm < -3000 {
		a.vsFpm = -3000
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// injectConflict repositions the first two aircraft onto a head-on
// converging geometry about half a nautical mile apart.
func injectConflict(fleet []*simAircraft, cfg Config) {
	if len(fleet) < 2 {
		return
	}
	a, b := fleet[0], fleet[1]

	a.lat, a.lon = cfg.CenterLat, cfg.CenterLon
	a.altitudeFt = 10000
	a.trackDeg = 90
	a.gsKt = 280
	a.vsFpm = 0

	b.lat, b.lon = cfg.CenterLat+0.005, cfg.CenterLon+0.005
	b.altitudeFt = 10100
	b.trackDeg = 270
	b.gsKt = 290
	b.vsFpm = 0
}

func (a *simAircraft) sample() telemetry.Sample {
	lat, lon := a.lat, a.lon
	vs := a.vsFpm
	gs := a.gsKt
	track := a.trackDeg
	return telemetry.Sample{
		ICAOHex:       a.icaoHex,
		Callsign:      a.callsign,
		Lat:           &lat,
		Lon:           &lon,
		AltitudeFt:    a.altitudeFt,
		VerticalRate:  &vs,
		GroundSpeedKt: &gs,
		TrackDeg:      &track,
		Squawk:        a.squawk,
	}
}

func main() {
	cfg := DefaultConfig()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "simulator").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	nc, err := nats.Connect(cfg.NATSUrl, nats.Name("skysentry-simulator"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create JetStream context")
	}

	if err := natsutil.SetupStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup streams")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fleet := newFleet(cfg, rng)
	start := time.Now()

	log.Info().
		Int("aircraft", cfg.AircraftCount).
		Dur("interval", cfg.BatchInterval).
		Msg("Simulator started")

	ticker := time.NewTicker(cfg.BatchInterval)
	defer ticker.Stop()

	emergencyInjected := false
	conflictInjected := false

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Simulator stopped")
			return
		case <-ticker.C:
		}

		elapsed := time.Since(start)

		if cfg.EmergencyAfter > 0 && !emergencyInjected && elapsed >= cfg.EmergencyAfter {
			fleet[len(fleet)-1].squawk = "7700"
			emergencyInjected = true
			log.Info().Str("icao", fleet[len(fleet)-1].icaoHex).Msg("Injected emergency squawk")
		}

		if cfg.ConflictAfter > 0 && !conflictInjected && elapsed >= cfg.ConflictAfter {
			injectConflict(fleet, cfg)
			conflictInjected = true
			log.Info().Msg("Injected converging pair")
		}

		batch := telemetry.Batch{
			Source:    "simulator",
			Timestamp: time.Now().UTC(),
			Samples:   make([]telemetry.Sample, 0, len(fleet)),
		}
		for _, a := range fleet {
			a.step(cfg.BatchInterval, rng)
			batch.Samples = append(batch.Samples, a.sample())
		}

		payload, err := json.Marshal(batch)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal batch")
			continue
		}

		if _, err := js.Publish(ctx, natsutil.SubjectTelemetryBatch, payload); err != nil {
			log.Error().Err(err).Msg("Failed to publish batch")
		}
	}
}
