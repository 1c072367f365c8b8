package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleUnmarshalNumericAltitude(t *testing.T) {
	var s Sample
	err := json.Unmarshal([]byte(`{"icao_hex":"A1B2C3","alt_ft":35000,"squawk":"1200"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", s.ICAOHex)
	assert.Equal(t, 35000, s.AltitudeFt)
	assert.Equal(t, "1200", s.Squawk)
}

func TestSampleUnmarshalGroundSentinel(t *testing.T) {
	var s Sample
	err := json.Unmarshal([]byte(`{"icao_hex":"A1B2C3","alt_ft":"ground"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, 0, s.AltitudeFt)

	// Numeric string.
	err = json.Unmarshal([]byte(`{"icao_hex":"A1B2C3","alt_ft":"2500"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, 2500, s.AltitudeFt)

	// Absent.
	err = json.Unmarshal([]byte(`{"icao_hex":"A1B2C3"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, 0, s.AltitudeFt)
}

func TestHasValidPosition(t *testing.T) {
	lat, lon := 47.6, -122.3
	s := Sample{ICAOHex: "A1B2C3", Lat: &lat, Lon: &lon}
	assert.True(t, s.HasValidPosition())

	s.Lon = nil
	assert.False(t, s.HasValidPosition())

	bad := 91.0
	s.Lat, s.Lon = &bad, &lon
	assert.False(t, s.HasValidPosition())
}

func TestBatchRoundTrip(t *testing.T) {
	lat, lon := 47.6, -122.3
	vs := -1200
	b := Batch{
		Source:  "adsb-feed",
		Samples: []Sample{{ICAOHex: "ABC123", Callsign: "ASA101", Lat: &lat, Lon: &lon, AltitudeFt: 12000, VerticalRate: &vs}},
	}
	data, err := json.Marshal(b)
	require.NoError(t, err)

	var got Batch
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Samples, 1)
	assert.Equal(t, "ASA101", got.Samples[0].Callsign)
	assert.Equal(t, 12000, got.Samples[0].AltitudeFt)
	require.NotNil(t, got.Samples[0].VerticalRate)
	assert.Equal(t, -1200, *got.Samples[0].VerticalRate)
}
