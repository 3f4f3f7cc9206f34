package attmodels

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRPayload_GeneratorFormat(t *testing.T) {
	raw := `{"clase_id": 42, "profesor_id": 7, "latitud": "19.5", "longitud": "-99.25", "timestamp": "2026-10-19T08:00:00"}`

	var p QRPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.True(t, p.HasClaseID())
	assert.Equal(t, "42", string(p.ClaseID))
	loc, ok := p.ClassLocation()
	require.True(t, ok)
	assert.InDelta(t, 19.5, loc.Latitude, 1e-9)
	assert.InDelta(t, -99.25, loc.Longitude, 1e-9)
}

func TestQRPayload_MissingOrNullClaseID(t *testing.T) {
	for _, raw := range []string{`{}`, `{"clase_id": null}`} {
		var p QRPayload
		require.NoError(t, json.Unmarshal([]byte(raw), &p))
		assert.False(t, p.HasClaseID(), raw)
	}
}

func TestQRPayload_MalformedOptionalFieldsAreIgnored(t *testing.T) {
	tests := []string{
		`{"clase_id": 42, "latitud": "", "longitud": ""}`,
		`{"clase_id": 42, "latitud": "north", "longitud": -99.1}`,
		`{"clase_id": 42, "latitud": true, "longitud": null}`,
		`{"clase_id": 42, "latitud": 19.4}`,
		`{"clase_id": 42, "timestamp": 1729324800, "profesor_id": {"id": 7}}`,
	}

	for _, raw := range tests {
		var p QRPayload
		require.NoError(t, json.Unmarshal([]byte(raw), &p), raw)
		assert.True(t, p.HasClaseID(), raw)
		_, ok := p.ClassLocation()
		assert.False(t, ok, raw)
	}
}

func TestQRPayload_NumericCoordinates(t *testing.T) {
	var p QRPayload
	require.NoError(t, json.Unmarshal([]byte(`{"clase_id": "A1", "latitud": 19.4326, "longitud": " -99.1332 "}`), &p))

	loc, ok := p.ClassLocation()
	require.True(t, ok)
	assert.InDelta(t, 19.4326, loc.Latitude, 1e-9)
	assert.InDelta(t, -99.1332, loc.Longitude, 1e-9)
}

func TestLoginResponse_Destination(t *testing.T) {
	assert.Equal(t, DashboardProfesor, LoginResponse{Status: "success", Rol: "profesor"}.Destination())
	assert.Equal(t, DashboardAlumno, LoginResponse{Status: "success", Rol: "alumno"}.Destination())
	assert.Equal(t, DashboardAlumno, LoginResponse{Status: "success"}.Destination())
	assert.False(t, LoginResponse{Status: "error"}.Succeeded())
}
