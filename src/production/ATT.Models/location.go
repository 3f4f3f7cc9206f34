package attmodels

import "time"

// GeoReading is a single position fix
type GeoReading struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
