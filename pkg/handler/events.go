package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skysentry/skysentry/pkg/monitor"
	"github.com/skysentry/skysentry/pkg/postgres"
)

// EventsHandler exposes the safety monitor's query surface over HTTP.
type EventsHandler struct {
	mon    *monitor.Monitor
	db     *postgres.Pool
	logger zerolog.Logger
}

// NewEventsHandler creates an EventsHandler. db may be nil when running
// without durable storage; the history endpoint then returns 404.
func NewEventsHandler(mon *monitor.Monitor, db *postgres.Pool, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		mon:    mon,
		db:     db,
		logger: logger.With().Str("handler", "safety_events").Logger(),
	}
}

// Routes returns the safety event routes.
func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/events", h.ListEvents)
	r.Delete("/events", h.ClearAllEvents)
	r.Get("/events/history", h.EventHistory)
	r.Get("/events/history/{eventId}", h.HistoricalEvent)
	r.Post("/events/{eventId}/ack", h.AcknowledgeEvent)
	r.Post("/events/{eventId}/unack", h.UnacknowledgeEvent)
	r.Delete("/events/{eventId}", h.ClearEvent)
	r.Get("/stats", h.GetStats)
	r.Get("/thresholds", h.GetThresholds)

	return r
}

// EventListResponse is the response for listing active events.
type EventListResponse struct {
	Events []*monitor.SafetyEvent `json:"events"`
	Count  int                    `json:"count"`
}

// ListEvents handles GET /api/v1/safety/events.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	includeAcked := r.URL.Query().Get("include_acknowledged") == "true"
	events := h.mon.GetActiveEvents(includeAcked)

	WriteJSON(w, http.StatusOK, EventListResponse{
		Events: events,
		Count:  len(events),
	})
}

// AcknowledgeEvent handles POST /api/v1/safety/events/{eventId}/ack.
func (h *EventsHandler) AcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventId")

	ev, ok := h.mon.AcknowledgeEvent(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "no active event with id "+id)
		return
	}

	h.logger.Info().Str("event_id", ev.ID).Msg("Event acknowledged")
	WriteSuccess(w, http.StatusOK, "acknowledged", ev)
}

// UnacknowledgeEvent handles POST /api/v1/safety/events/{eventId}/unack.
func (h *EventsHandler) UnacknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventId")

	ev, ok := h.mon.UnacknowledgeEvent(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "no active event with id "+id)
		return
	}

	WriteSuccess(w, http.StatusOK, "unacknowledged", ev)
}

// ClearEvent handles DELETE /api/v1/safety/events/{eventId}.
func (h *EventsHandler) ClearEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventId")

	if !h.mon.ClearEvent(id) {
		WriteError(w, http.StatusNotFound, "no active event with id "+id)
		return
	}

	h.logger.Info().Str("event_id", id).Msg("Event cleared by operator")
	WriteSuccess(w, http.StatusOK, "cleared", nil)
}

// ClearAllEvents handles DELETE /api/v1/safety/events.
func (h *EventsHandler) ClearAllEvents(w http.ResponseWriter, r *http.Request) {
	count := h.mon.ClearAllEvents()
	h.logger.Info().Int("count", count).Msg("All events cleared by operator")
	WriteSuccess(w, http.StatusOK, "cleared", map[string]int{"cleared": count})
}

// StatsResponse is the monitor's live counts plus store-derived totals.
type StatsResponse struct {
	monitor.Stats
	UnresolvedPersisted *int64 `json:"unresolved_persisted,omitempty"`
}

// GetStats handles GET /api/v1/safety/stats.
func (h *EventsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stats: h.mon.GetStats()}
	if h.db != nil {
		if n, err := h.db.CountUnresolved(r.Context()); err == nil {
			resp.UnresolvedPersisted = &n
		} else {
			h.logger.Warn().Err(err).Msg("Failed to count persisted events")
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetThresholds handles GET /api/v1/safety/thresholds.
func (h *EventsHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.mon.GetThresholds())
}

// EventHistory handles GET /api/v1/safety/events/history, serving the
// durable store rather than the in-memory table.
func (h *EventsHandler) EventHistory(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		WriteError(w, http.StatusNotFound, "durable event storage not configured")
		return
	}

	filter := postgres.EventFilter{
		EventType: r.URL.Query().Get("event_type"),
		Severity:  r.URL.Query().Get("severity"),
		ICAOHex:   r.URL.Query().Get("icao"),
	}

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if since, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = &since
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	rows, err := h.db.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to query event history")
		WriteError(w, http.StatusInternalServerError, "failed to query event history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"events": rows,
		"count":  len(rows),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// HistoricalEvent handles GET /api/v1/safety/events/history/{eventId},
// fetching a single persisted event by its store-assigned id.
func (h *EventsHandler) HistoricalEvent(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		WriteError(w, http.StatusNotFound, "durable event storage not configured")
		return
	}

	id := chi.URLParam(r, "eventId")
	row, err := h.db.GetEvent(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("event_id", id).Msg("Failed to fetch event")
		WriteError(w, http.StatusInternalServerError, "failed to fetch event")
		return
	}
	if row == nil {
		WriteError(w, http.StatusNotFound, "no persisted event with id "+id)
		return
	}

	WriteJSON(w, http.StatusOK, row)
}
