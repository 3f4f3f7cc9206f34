package geolocation

import (
	"context"
	"math"
	"time"

	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
)

// ClassRadiusMeters is the distance from the class location the server accepts
const ClassRadiusMeters = 7.0

const earthRadiusMeters = 6371008.8

// Locator yields a single position reading
type Locator interface {
	CurrentPosition(ctx context.Context) (attmodels.GeoReading, error)
}

// StaticLocator always reports the configured position (fixed classroom kiosks)
type StaticLocator struct {
	reading attmodels.GeoReading
}

func NewStaticLocator(latitude, longitude, accuracy float64) *StaticLocator {
	return &StaticLocator{reading: attmodels.GeoReading{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  accuracy,
	}}
}

func (l *StaticLocator) CurrentPosition(ctx context.Context) (attmodels.GeoReading, error) {
	if err := ctx.Err(); err != nil {
		return attmodels.GeoReading{}, err
	}
	r := l.reading
	r.Timestamp = time.Now().UTC()
	return r, nil
}

// DistanceMeters is the haversine distance between two readings
func DistanceMeters(a, b attmodels.GeoReading) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
