package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
)

// ErrInvalidFix is returned for fixes outside the valid coordinate range
var ErrInvalidFix = errors.New("invalid GPS fix")

// gpsFix is the message a GPS daemon publishes on the fix topic
type gpsFix struct {
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
}

// MQTTLocator answers each request with the next fix published on the topic
type MQTTLocator struct {
	client mqtt.Client
	topic  string
	logger *logger.Logger

	mu      sync.Mutex
	waiters []chan attmodels.GeoReading
}

func NewMQTTLocator(client mqtt.Client, topic string, log *logger.Logger) *MQTTLocator {
	return &MQTTLocator{
		client: client,
		topic:  topic,
		logger: log.WithComponent("mqtt-locator"),
	}
}

// Start subscribes to the fix topic
func (l *MQTTLocator) Start() error {
	token := l.client.Subscribe(l.topic, 0, l.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.topic, token.Error())
	}
	l.logger.Logger.Info().Str("topic", l.topic).Msg("Subscribed to GPS fixes")
	return nil
}

// Stop unsubscribes from the fix topic
func (l *MQTTLocator) Stop() {
	if l.client != nil && l.client.IsConnected() {
		l.client.Unsubscribe(l.topic).Wait()
	}
}

// CurrentPosition blocks until a fix arrives or ctx is done. Cached fixes are never returned.
func (l *MQTTLocator) CurrentPosition(ctx context.Context) (attmodels.GeoReading, error) {
	ch := make(chan attmodels.GeoReading, 1)

	l.mu.Lock()
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		l.removeWaiter(ch)
		return attmodels.GeoReading{}, fmt.Errorf("waiting for GPS fix on %s: %w", l.topic, ctx.Err())
	}
}

func (l *MQTTLocator) removeWaiter(ch chan attmodels.GeoReading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

func (l *MQTTLocator) onMessage(_ mqtt.Client, m mqtt.Message) {
	reading, err := parseFix(m.Payload())
	if err != nil {
		l.logger.Logger.Warn().Err(err).Str("topic", m.Topic()).Str("payload", string(m.Payload())).Msg("Ignoring GPS fix")
		return
	}

	l.mu.Lock()
	waiters := l.waiters
	l.waiters = nil
	l.mu.Unlock()

	for _, w := range waiters {
		w <- reading
	}
}

func parseFix(payload []byte) (attmodels.GeoReading, error) {
	var fix gpsFix
	if err := json.Unmarshal(payload, &fix); err != nil {
		return attmodels.GeoReading{}, fmt.Errorf("%w: %v", ErrInvalidFix, err)
	}
	if fix.Latitude == nil || fix.Longitude == nil {
		return attmodels.GeoReading{}, fmt.Errorf("%w: missing coordinates", ErrInvalidFix)
	}
	if *fix.Latitude < -90 || *fix.Latitude > 90 || *fix.Longitude < -180 || *fix.Longitude > 180 {
		return attmodels.GeoReading{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidFix)
	}
	ts := fix.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return attmodels.GeoReading{
		Latitude:  *fix.Latitude,
		Longitude: *fix.Longitude,
		Accuracy:  fix.Accuracy,
		Timestamp: ts,
	}, nil
}
