package attmodels

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// QRPayload is the structured content of a class QR code
type QRPayload struct {
	ClaseID    json.RawMessage `json:"clase_id"`
	ProfesorID json.RawMessage `json:"profesor_id,omitempty"`
	Latitud    json.RawMessage `json:"latitud,omitempty"`
	Longitud   json.RawMessage `json:"longitud,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
}

// HasClaseID reports whether the payload names a class
func (p QRPayload) HasClaseID() bool {
	v := bytes.TrimSpace(p.ClaseID)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// ClassLocation returns the class coordinates embedded by the QR generator.
// Missing or unparseable coordinates yield false.
func (p QRPayload) ClassLocation() (GeoReading, bool) {
	lat, ok := parseCoordinate(p.Latitud)
	if !ok {
		return GeoReading{}, false
	}
	lon, ok := parseCoordinate(p.Longitud)
	if !ok {
		return GeoReading{}, false
	}
	return GeoReading{Latitude: lat, Longitude: lon}, true
}

// AttendanceSubmission is the body posted to the attendance endpoint
type AttendanceSubmission struct {
	ClaseID    json.RawMessage `json:"clase_id"`
	Latitud    float64         `json:"latitud"`
	Longitud   float64         `json:"longitud"`
	TelefonoID string          `json:"telefono_id"`
}

// AttendanceResponse is the server verdict on a submission
type AttendanceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// parseCoordinate accepts a JSON number or a numeric string; the class QR generator writes coordinates as strings
func parseCoordinate(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
