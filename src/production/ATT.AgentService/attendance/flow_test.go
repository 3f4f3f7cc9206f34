package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/client"
	"gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.AgentService/geolocation"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

type fixedID string

func (f fixedID) DeviceID(ctx context.Context) (string, error) { return string(f), nil }

type failingLocator struct{ err error }

func (l failingLocator) CurrentPosition(ctx context.Context) (attmodels.GeoReading, error) {
	return attmodels.GeoReading{}, l.err
}

type blockingLocator struct{}

func (blockingLocator) CurrentPosition(ctx context.Context) (attmodels.GeoReading, error) {
	<-ctx.Done()
	return attmodels.GeoReading{}, ctx.Err()
}

// attendanceServer answers with the given body and records every request body
func attendanceServer(t *testing.T, status int, body string) (*client.APIClient, *[]string) {
	t.Helper()
	var mu sync.Mutex
	bodies := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return client.NewAPIClient(client.Options{BaseURL: srv.URL, Timeout: 2 * time.Second}), &bodies
}

func newFlow(c AttendanceClient, loc geolocation.Locator, n Notifier) *Flow {
	return NewFlow(Config{GeoTimeout: time.Second, APITimeout: time.Second}, c, loc, fixedID("device_abc123xyz"), n, logger.NewNopLogger())
}

func TestHandleDecoded_Success(t *testing.T) {
	api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
	notifier := &recordingNotifier{}
	flow := newFlow(api, geolocation.NewStaticLocator(10.0, 20.0, 0), notifier)

	outcome, err := flow.HandleDecoded(context.Background(), `{"clase_id": "C1"}`)
	require.NoError(t, err)

	require.Len(t, *bodies, 1)
	assert.JSONEq(t, `{"clase_id":"C1","latitud":10.0,"longitud":20.0,"telefono_id":"device_abc123xyz"}`, (*bodies)[0])
	assert.Equal(t, []string{"✅ Asistencia registrada"}, notifier.notices)
	assert.True(t, outcome.Submitted)
	assert.Equal(t, NoticeRegistered, outcome.Notice)
}

func TestHandleDecoded_ServerRejection(t *testing.T) {
	api, bodies := attendanceServer(t, http.StatusBadRequest, `{"success": false, "message": "Fuera de rango"}`)
	notifier := &recordingNotifier{}
	flow := newFlow(api, geolocation.NewStaticLocator(10.0, 20.0, 0), notifier)

	outcome, err := flow.HandleDecoded(context.Background(), `{"clase_id": "C1"}`)
	require.NoError(t, err)

	assert.Len(t, *bodies, 1)
	assert.Equal(t, []string{"❌ Fuera de rango"}, notifier.notices)
	assert.False(t, outcome.Response.Success)
}

func TestHandleDecoded_InvalidPayloads(t *testing.T) {
	inputs := []string{
		"not json at all",
		`{"clase_id": "C1"`,
		`["C1"]`,
		`"C1"`,
		`42`,
		`{}`,
		`{"clase_id": null}`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
			notifier := &recordingNotifier{}
			flow := newFlow(api, geolocation.NewStaticLocator(10.0, 20.0, 0), notifier)

			outcome, err := flow.HandleDecoded(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidQR)
			assert.Equal(t, []string{"QR inválido"}, notifier.notices)
			assert.Empty(t, *bodies)
			assert.False(t, outcome.Submitted)
		})
	}
}

func TestHandleDecoded_NumericClaseIDForwardedVerbatim(t *testing.T) {
	api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
	flow := newFlow(api, geolocation.NewStaticLocator(19.4326, -99.1332, 0), &recordingNotifier{})

	qr := `{"clase_id": 17, "profesor_id": 3, "latitud": "19.4326", "longitud": "-99.1332", "timestamp": "2026-10-19T08:00:00"}`
	_, err := flow.HandleDecoded(context.Background(), qr)
	require.NoError(t, err)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte((*bodies)[0]), &sent))
	assert.Equal(t, float64(17), sent["clase_id"])
	assert.Len(t, sent, 4)
}

func TestHandleDecoded_MalformedOptionalFieldsStillSubmit(t *testing.T) {
	inputs := []string{
		`{"clase_id":42,"latitud":"","longitud":""}`,
		`{"clase_id":42,"timestamp":1729324800}`,
		`{"clase_id":42,"latitud":"north","longitud":false,"profesor_id":[1]}`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
			notifier := &recordingNotifier{}
			flow := newFlow(api, geolocation.NewStaticLocator(10.0, 20.0, 0), notifier)

			outcome, err := flow.HandleDecoded(context.Background(), in)
			require.NoError(t, err)

			require.Len(t, *bodies, 1)
			assert.JSONEq(t, `{"clase_id":42,"latitud":10.0,"longitud":20.0,"telefono_id":"device_abc123xyz"}`, (*bodies)[0])
			assert.Equal(t, []string{"✅ Asistencia registrada"}, notifier.notices)
			assert.True(t, outcome.Submitted)
		})
	}
}

func TestHandleDecoded_LocatorFailureIsSilent(t *testing.T) {
	api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
	notifier := &recordingNotifier{}
	flow := newFlow(api, failingLocator{err: errors.New("permission denied")}, notifier)

	_, err := flow.HandleDecoded(context.Background(), `{"clase_id": "C1"}`)
	require.Error(t, err)
	assert.Empty(t, notifier.notices)
	assert.Empty(t, *bodies)
}

func TestHandleDecoded_LocatorTimeout(t *testing.T) {
	api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
	flow := NewFlow(Config{GeoTimeout: 20 * time.Millisecond}, api, blockingLocator{}, fixedID("device_abc123xyz"), &recordingNotifier{}, logger.NewNopLogger())

	_, err := flow.HandleDecoded(context.Background(), `{"clase_id": "C1"}`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, *bodies)
}

func TestHandleDecoded_NetworkFailureIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	notifier := &recordingNotifier{}
	api := client.NewAPIClient(client.Options{BaseURL: url, Timeout: time.Second})
	flow := newFlow(api, geolocation.NewStaticLocator(10.0, 20.0, 0), notifier)

	outcome, err := flow.HandleDecoded(context.Background(), `{"clase_id": "C1"}`)
	require.Error(t, err)
	assert.Empty(t, notifier.notices)
	assert.True(t, outcome.Submitted)
}

func TestHandleDecoded_RepeatedScansAreNotDeduplicated(t *testing.T) {
	api, bodies := attendanceServer(t, http.StatusOK, `{"success": true}`)
	flow := newFlow(api, geolocation.NewStaticLocator(10.0, 20.0, 0), &recordingNotifier{})

	for i := 0; i < 3; i++ {
		_, err := flow.HandleDecoded(context.Background(), `{"clase_id": "C1"}`)
		require.NoError(t, err)
	}
	assert.Len(t, *bodies, 3)
}

func TestMultiNotifierAndConsole(t *testing.T) {
	var buf syncBuffer
	rec := &recordingNotifier{}
	MultiNotifier{NewConsoleNotifier(&buf), rec}.Notify(context.Background(), RejectedNotice("Ya registraste asistencia"))

	assert.Equal(t, "❌ Ya registraste asistencia\n", buf.String())
	assert.Equal(t, []string{"❌ Ya registraste asistencia"}, rec.notices)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
