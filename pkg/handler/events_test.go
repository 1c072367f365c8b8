package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysentry/skysentry/pkg/monitor"
	"github.com/skysentry/skysentry/pkg/telemetry"
)

func f64p(v float64) *float64 { return &v }

func newTestAPI(t *testing.T) (http.Handler, *monitor.Monitor) {
	t.Helper()
	mon := monitor.New(monitor.DefaultThresholds(), nil, nil, zerolog.Nop(), nil)
	h := NewEventsHandler(mon, nil, zerolog.Nop())
	return h.Routes(), mon
}

func seedConflict(mon *monitor.Monitor) {
	mon.ProcessBatch([]telemetry.Sample{
		{ICAOHex: "A11111", Callsign: "ASA101", Lat: f64p(47.9377), Lon: f64p(-121.9687),
			AltitudeFt: 10000, GroundSpeedKt: f64p(280), TrackDeg: f64p(90)},
		{ICAOHex: "B22222", Callsign: "DAL202", Lat: f64p(47.9427), Lon: f64p(-121.9637),
			AltitudeFt: 10100, GroundSpeedKt: f64p(290), TrackDeg: f64p(270)},
	})
}

func TestListEventsEndpoint(t *testing.T) {
	api, mon := newTestAPI(t)
	seedConflict(mon)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EventListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "A11111", resp.Events[0].ICAOHex)
}

func TestAcknowledgeEndpoint(t *testing.T) {
	api, mon := newTestAPI(t)
	seedConflict(mon)

	events := mon.GetActiveEvents(true)
	require.Len(t, events, 1)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/"+events[0].ID+"/ack", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Acknowledged events drop out of the default listing.
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	var resp EventListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?include_acknowledged=true", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestAcknowledgeUnknownEvent(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/no-such-event/ack", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryUnavailableWithoutStore(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/history/some-id", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	api, mon := newTestAPI(t)
	seedConflict(mon)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TrackedAircraft)
	assert.Equal(t, 1, resp.ActiveEvents)
	// No store attached, so no persisted total.
	assert.Nil(t, resp.UnresolvedPersisted)
}

func TestClearAllEndpoint(t *testing.T) {
	api, mon := newTestAPI(t)
	seedConflict(mon)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, mon.GetActiveEvents(true))
}
