package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/geolocation"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
)

// ErrInvalidQR is returned when the decoded text is not a class QR payload
var ErrInvalidQR = errors.New("invalid QR payload")

// AttendanceClient is the part of the API client the flow needs
type AttendanceClient interface {
	RegisterAttendance(ctx context.Context, submission attmodels.AttendanceSubmission) (*attmodels.AttendanceResponse, error)
}

// DeviceIDProvider yields the identifier sent with each submission
type DeviceIDProvider interface {
	DeviceID(ctx context.Context) (string, error)
}

// Outcome describes what happened to one decoded text
type Outcome struct {
	Submitted  bool                            `json:"submitted"`
	Notice     string                          `json:"notice,omitempty"`
	Submission *attmodels.AttendanceSubmission `json:"submission,omitempty"`
	Response   *attmodels.AttendanceResponse   `json:"response,omitempty"`
}

// Flow turns a decoded QR text into an attendance submission
type Flow struct {
	client     AttendanceClient
	locator    geolocation.Locator
	identity   DeviceIDProvider
	notifier   Notifier
	geoTimeout time.Duration
	apiTimeout time.Duration
	logger     *logger.Logger
}

// Config holds the per-step timeouts; zero disables a timeout
type Config struct {
	GeoTimeout time.Duration
	APITimeout time.Duration
}

func NewFlow(cfg Config, client AttendanceClient, locator geolocation.Locator, identity DeviceIDProvider, notifier Notifier, log *logger.Logger) *Flow {
	return &Flow{
		client:     client,
		locator:    locator,
		identity:   identity,
		notifier:   notifier,
		geoTimeout: cfg.GeoTimeout,
		apiTimeout: cfg.APITimeout,
		logger:     log.WithComponent("attendance"),
	}
}

// HandleDecoded processes one decoded QR text. Only an invalid payload and a
// server answer produce a notice; locator, identity and network failures are
// logged and returned.
func (f *Flow) HandleDecoded(ctx context.Context, text string) (*Outcome, error) {
	payload, err := ParsePayload(text)
	if err != nil {
		f.logger.Logger.Warn().Err(err).Msg("Scanned QR is not a class code")
		f.notifier.Notify(ctx, NoticeInvalidQR)
		return &Outcome{Notice: NoticeInvalidQR}, err
	}

	reading, err := f.position(ctx)
	if err != nil {
		f.logger.ErrorWithError(err, "Failed to get current position")
		return &Outcome{}, err
	}

	deviceID, err := f.identity.DeviceID(ctx)
	if err != nil {
		f.logger.ErrorWithError(err, "Failed to resolve device id")
		return &Outcome{}, err
	}

	f.logProximity(payload, reading)

	submission := attmodels.AttendanceSubmission{
		ClaseID:    payload.ClaseID,
		Latitud:    reading.Latitude,
		Longitud:   reading.Longitude,
		TelefonoID: deviceID,
	}

	resp, err := f.submit(ctx, submission)
	if err != nil {
		f.logger.Logger.Error().Err(err).RawJSON("clase_id", payload.ClaseID).Msg("Attendance submission failed")
		return &Outcome{Submitted: true, Submission: &submission}, err
	}

	notice := NoticeRegistered
	if !resp.Success {
		notice = RejectedNotice(resp.Message)
	}
	f.notifier.Notify(ctx, notice)

	f.logger.Logger.Info().
		RawJSON("clase_id", payload.ClaseID).
		Bool("success", resp.Success).
		Str("message", resp.Message).
		Msg("Attendance submission answered")

	return &Outcome{
		Submitted:  true,
		Notice:     notice,
		Submission: &submission,
		Response:   resp,
	}, nil
}

// ParsePayload accepts a JSON object carrying a non-null clase_id
func ParsePayload(text string) (*attmodels.QRPayload, error) {
	var payload attmodels.QRPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	if !payload.HasClaseID() {
		return nil, fmt.Errorf("%w: missing clase_id", ErrInvalidQR)
	}
	return &payload, nil
}

func (f *Flow) position(ctx context.Context) (attmodels.GeoReading, error) {
	if f.geoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.geoTimeout)
		defer cancel()
	}
	return f.locator.CurrentPosition(ctx)
}

func (f *Flow) submit(ctx context.Context, submission attmodels.AttendanceSubmission) (*attmodels.AttendanceResponse, error) {
	if f.apiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.apiTimeout)
		defer cancel()
	}
	return f.client.RegisterAttendance(ctx, submission)
}

// logProximity reports how far the reading is from the class location embedded in the QR
func (f *Flow) logProximity(payload *attmodels.QRPayload, reading attmodels.GeoReading) {
	class, ok := payload.ClassLocation()
	if !ok {
		return
	}
	d := geolocation.DistanceMeters(class, reading)
	event := f.logger.Logger.Debug()
	if d > geolocation.ClassRadiusMeters {
		event = f.logger.Logger.Warn()
	}
	event.Float64("distance_m", d).
		Float64("radius_m", geolocation.ClassRadiusMeters).
		Msg("Distance to class location")
}
