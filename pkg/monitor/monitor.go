// Package monitor implements the safety monitoring and conflict detection
// engine: per-aircraft state tracking, single-aircraft anomaly
// classification, pairwise proximity conflict detection, and the
// deduplicated event lifecycle.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/skysentry/skysentry/pkg/telemetry"
)

// cleanupMinInterval throttles the housekeeping sweep regardless of how
// often Cleanup is called.
const cleanupMinInterval = 5 * time.Second

// persistTimeout bounds each fire-and-forget collaborator call.
const persistTimeout = 5 * time.Second

// Store is the durable persistence collaborator. It assigns the stable
// external id returned by InsertEvent. The in-memory table stays
// authoritative when the store fails.
type Store interface {
	InsertEvent(ctx context.Context, ev *SafetyEvent) (externalID string, err error)
	SetAcknowledged(ctx context.Context, id string, acknowledged bool) error
	ResolveEvent(ctx context.Context, id string, resolvedAt time.Time) error
}

// Broadcaster is the pub/sub collaborator notified on every lifecycle
// transition.
type Broadcaster interface {
	Publish(ctx context.Context, notifyType string, ev *SafetyEvent) error
}

// Monitor owns all mutable detection state: the aircraft-state map, the
// cooldown table, and the active-event table, guarded by one lock. Batches
// are applied atomically with respect to concurrent readers.
type Monitor struct {
	mu sync.RWMutex

	thresholds Thresholds
	aircraft   map[string]*aircraftState
	cooldowns  map[string]time.Time
	events     map[string]*SafetyEvent

	lastCleanup time.Time

	store       Store
	broadcaster Broadcaster
	logger      zerolog.Logger

	// Injectable clock for tests.
	now func() time.Time

	batchesTotal    prometheus.Counter
	batchLatency    prometheus.Histogram
	eventsTotal     *prometheus.CounterVec
	activeEvents    prometheus.Gauge
	trackedAircraft prometheus.Gauge
}

// New creates a Monitor. Store and broadcaster may be nil; the monitor then
// runs detection-only, which is how the unit tests drive it.
func New(thresholds Thresholds, store Store, broadcaster Broadcaster, logger zerolog.Logger, reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		thresholds:  thresholds,
		aircraft:    make(map[string]*aircraftState),
		cooldowns:   make(map[string]time.Time),
		events:      make(map[string]*SafetyEvent),
		store:       store,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "monitor").Logger(),
		now:         func() time.Time { return time.Now().UTC() },

		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_batches_total",
			Help: "Total telemetry batches processed",
		}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "safety_batch_latency_seconds",
			Help:    "Batch processing latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_events_total",
			Help: "Safety events created, by type and severity",
		}, []string{"event_type", "severity"}),
		activeEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "safety_active_events",
			Help: "Number of live safety events",
		}),
		trackedAircraft: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "safety_tracked_aircraft",
			Help: "Number of aircraft with live tracked state",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.batchesTotal, m.batchLatency, m.eventsTotal, m.activeEvents, m.trackedAircraft)
	}
	return m
}

// ProcessBatch applies one telemetry batch: updates tracked state, runs the
// single-aircraft classifier and the pairwise conflict detector, and routes
// every candidate through the event lifecycle. The whole cycle holds the
// write lock so readers see batch boundaries, never intermediate state.
func (m *Monitor) ProcessBatch(samples []telemetry.Sample) {
	if !m.thresholds.MonitoringEnabled {
		return
	}

	start := time.Now()

	m.mu.Lock()
	now := m.now()

	var candidates []candidate
	current := make([]*telemetry.Sample, 0, len(samples))

	for i := range samples {
		s := &samples[i]
		if s.ICAOHex == "" {
			continue
		}
		current = append(current, s)

		st, ok := m.aircraft[s.ICAOHex]
		if !ok {
			st = &aircraftState{icaoHex: s.ICAOHex}
			m.aircraft[s.ICAOHex] = st
		}
		st.update(s, now)

		candidates = append(candidates, m.classifySample(s, st, now)...)
	}

	candidates = append(candidates, m.detectConflicts(current)...)

	var created, refreshed []*SafetyEvent
	for i := range candidates {
		if ev, isNew := m.applyCandidate(&candidates[i], now); ev != nil {
			if isNew {
				created = append(created, ev)
			} else {
				refreshed = append(refreshed, ev)
			}
		}
	}

	m.trackedAircraft.Set(float64(len(m.aircraft)))
	m.activeEvents.Set(float64(len(m.events)))
	m.mu.Unlock()

	// Collaborators run outside the lock so a slow store or broker can
	// never stall the next batch.
	for _, ev := range created {
		m.dispatchCreated(ev)
	}
	for _, ev := range refreshed {
		m.dispatchUpdated(ev)
	}

	m.batchesTotal.Inc()
	m.batchLatency.Observe(time.Since(start).Seconds())
}

// applyCandidate runs the per-key state machine. Returns the event clone to
// notify collaborators with, and whether it was newly created; (nil, false)
// means the candidate was suppressed.
func (m *Monitor) applyCandidate(c *candidate, now time.Time) (*SafetyEvent, bool) {
	if ev, ok := m.events[c.key]; ok {
		// Refresh: advance lastSeen and fold in the latest observation
		// without touching createdAt or acknowledged.
		ev.LastSeen = now
		ev.Severity = c.severity
		ev.Message = c.message
		ev.Aircraft = c.aircraft
		ev.Aircraft2 = c.aircraft2
		if ev.Details == nil {
			ev.Details = make(map[string]any, len(c.details))
		}
		for k, v := range c.details {
			ev.Details[k] = v
		}
		if c.cooldown {
			m.cooldowns[c.key] = now
		}
		return ev.clone(), false
	}

	if c.cooldown {
		if last, ok := m.cooldowns[c.key]; ok && now.Sub(last) < m.thresholds.EventCooldown {
			return nil, false
		}
		m.cooldowns[c.key] = now
	}

	ev := &SafetyEvent{
		ID:        c.key,
		EventType: c.eventType,
		Severity:  c.severity,
		ICAOHex:   c.icao,
		ICAOHex2:  c.icao2,
		Callsign:  c.callsign,
		Callsign2: c.callsign2,
		Message:   c.message,
		Details:   c.details,
		Aircraft:  c.aircraft,
		Aircraft2: c.aircraft2,
		CreatedAt: now,
		LastSeen:  now,
	}
	m.events[c.key] = ev

	m.eventsTotal.WithLabelValues(string(c.eventType), string(c.severity)).Inc()
	m.logger.Warn().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.EventType)).
		Str("severity", string(ev.Severity)).
		Str("icao", ev.ICAOHex).
		Msg(ev.Message)

	return ev.clone(), true
}

// dispatchCreated persists the new event and broadcasts its creation. The
// store's external id is written back onto the live event on success.
func (m *Monitor) dispatchCreated(ev *SafetyEvent) {
	if m.store != nil {
		go func(ev *SafetyEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()

			externalID, err := m.store.InsertEvent(ctx, ev)
			if err != nil {
				m.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to persist safety event")
				return
			}

			m.mu.Lock()
			if live, ok := m.events[ev.ID]; ok {
				live.ExternalID = externalID
			}
			m.mu.Unlock()
		}(ev)
	}
	m.broadcast(NotifyEventCreated, ev)
}

func (m *Monitor) dispatchUpdated(ev *SafetyEvent) {
	// Refreshes are not re-persisted; the store row captures creation and
	// the in-memory table is authoritative for live consumers.
	m.broadcast(NotifyEventUpdated, ev)
}

func (m *Monitor) broadcast(notifyType string, ev *SafetyEvent) {
	if m.broadcaster == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := m.broadcaster.Publish(ctx, notifyType, ev); err != nil {
			m.logger.Error().Err(err).
				Str("notify_type", notifyType).
				Str("event_id", ev.ID).
				Msg("Failed to broadcast safety event")
		}
	}()
}

// Cleanup sweeps stale aircraft state, cooldown entries, and expired events.
// Self-throttled: runs at most once per 5 seconds no matter how often the
// driver calls it.
func (m *Monitor) Cleanup() {
	m.mu.Lock()
	now := m.now()
	if now.Sub(m.lastCleanup) < cleanupMinInterval {
		m.mu.Unlock()
		return
	}
	m.lastCleanup = now

	for hex, st := range m.aircraft {
		if now.Sub(st.lastUpdate) > m.thresholds.HistoryRetention {
			delete(m.aircraft, hex)
		}
	}
	for key, last := range m.cooldowns {
		if now.Sub(last) > m.thresholds.HistoryRetention {
			delete(m.cooldowns, key)
		}
	}

	var expired []*SafetyEvent
	for key, ev := range m.events {
		if now.Sub(ev.LastSeen) > m.thresholds.EventExpiry {
			delete(m.events, key)
			expired = append(expired, ev.clone())
		}
	}

	m.trackedAircraft.Set(float64(len(m.aircraft)))
	m.activeEvents.Set(float64(len(m.events)))
	m.mu.Unlock()

	for _, ev := range expired {
		m.logger.Info().Str("event_id", ev.ID).Msg("Safety event expired")
		m.resolve(ev)
	}
}

func (m *Monitor) resolve(ev *SafetyEvent) {
	if m.store != nil {
		go func(id string, at time.Time) {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()

			if err := m.store.ResolveEvent(ctx, id, at); err != nil {
				m.logger.Error().Err(err).Str("event_id", id).Msg("Failed to mark event resolved")
			}
		}(ev.ID, m.now())
	}
	m.broadcast(NotifyEventResolved, ev)
}

// findLocked resolves an event by canonical key or by the persistence
// collaborator's external id. Callers hold at least the read lock.
func (m *Monitor) findLocked(id string) *SafetyEvent {
	if ev, ok := m.events[id]; ok {
		return ev
	}
	for _, ev := range m.events {
		if ev.ExternalID != "" && ev.ExternalID == id {
			return ev
		}
	}
	return nil
}

// GetActiveEvents returns the live event table, newest first. Acknowledged
// events are filtered out unless requested.
func (m *Monitor) GetActiveEvents(includeAcknowledged bool) []*SafetyEvent {
	m.mu.RLock()
	out := make([]*SafetyEvent, 0, len(m.events))
	for _, ev := range m.events {
		if ev.Acknowledged && !includeAcknowledged {
			continue
		}
		out = append(out, ev.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// AcknowledgeEvent marks an event acknowledged. Idempotent; the id may be
// the canonical key or the store's external id.
func (m *Monitor) AcknowledgeEvent(id string) (*SafetyEvent, bool) {
	return m.setAcknowledged(id, true)
}

// UnacknowledgeEvent clears the acknowledged flag. Idempotent.
func (m *Monitor) UnacknowledgeEvent(id string) (*SafetyEvent, bool) {
	return m.setAcknowledged(id, false)
}

func (m *Monitor) setAcknowledged(id string, acknowledged bool) (*SafetyEvent, bool) {
	m.mu.Lock()
	ev := m.findLocked(id)
	if ev == nil {
		m.mu.Unlock()
		return nil, false
	}
	changed := ev.Acknowledged != acknowledged
	ev.Acknowledged = acknowledged
	cp := ev.clone()
	m.mu.Unlock()

	if changed {
		if m.store != nil {
			go func(key string) {
				ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
				defer cancel()

				if err := m.store.SetAcknowledged(ctx, key, acknowledged); err != nil {
					m.logger.Error().Err(err).Str("event_id", key).Msg("Failed to persist acknowledgement")
				}
			}(cp.ID)
		}
		m.broadcast(NotifyEventUpdated, cp)
	}
	return cp, true
}

// ClearEvent removes an event immediately and broadcasts its resolution.
func (m *Monitor) ClearEvent(id string) bool {
	m.mu.Lock()
	ev := m.findLocked(id)
	if ev == nil {
		m.mu.Unlock()
		return false
	}
	delete(m.events, ev.ID)
	cp := ev.clone()
	m.activeEvents.Set(float64(len(m.events)))
	m.mu.Unlock()

	m.logger.Info().Str("event_id", cp.ID).Msg("Safety event cleared")
	m.resolve(cp)
	return true
}

// ClearAllEvents drops the whole active table, emitting a resolution for
// each event. Returns the number cleared.
func (m *Monitor) ClearAllEvents() int {
	m.mu.Lock()
	cleared := make([]*SafetyEvent, 0, len(m.events))
	for key, ev := range m.events {
		delete(m.events, key)
		cleared = append(cleared, ev.clone())
	}
	m.activeEvents.Set(0)
	m.mu.Unlock()

	for _, ev := range cleared {
		m.resolve(ev)
	}
	return len(cleared)
}

// Stats summarizes the monitor's live state for operators.
type Stats struct {
	TrackedAircraft    int              `json:"tracked_aircraft"`
	ActiveEvents       int              `json:"active_events"`
	AcknowledgedEvents int              `json:"acknowledged_events"`
	BySeverity         map[Severity]int `json:"by_severity"`
}

// GetStats returns current counts.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		TrackedAircraft: len(m.aircraft),
		ActiveEvents:    len(m.events),
		BySeverity:      map[Severity]int{SeverityCritical: 0, SeverityWarning: 0, SeverityLow: 0},
	}
	for _, ev := range m.events {
		if ev.Acknowledged {
			stats.AcknowledgedEvents++
		}
		stats.BySeverity[ev.Severity]++
	}
	return stats
}

// GetThresholds returns the engine's current tuning.
func (m *Monitor) GetThresholds() Thresholds {
	return m.thresholds
}
