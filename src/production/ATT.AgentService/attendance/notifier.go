package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
)

// Notice texts shown to the user
const (
	NoticeInvalidQR  = "QR inválido"
	NoticeRegistered = "✅ Asistencia registrada"
	noticeRejected   = "❌ "
)

// RejectedNotice formats the notice for a server-side rejection
func RejectedNotice(message string) string {
	return noticeRejected + message
}

// Notifier shows a notice to the user
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// ConsoleNotifier writes each notice on its own line
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

func (n *ConsoleNotifier) Notify(ctx context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, message)
}

// MQTTNotifier publishes notices to <topic>/<telefono_id> for a kiosk display
type MQTTNotifier struct {
	client   mqtt.Client
	topic    string
	deviceID func(ctx context.Context) (string, error)
	logger   *logger.Logger
}

func NewMQTTNotifier(client mqtt.Client, topic string, deviceID func(ctx context.Context) (string, error), log *logger.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client:   client,
		topic:    topic,
		deviceID: deviceID,
		logger:   log.WithComponent("mqtt-notifier"),
	}
}

func (n *MQTTNotifier) Notify(ctx context.Context, message string) {
	if n.client == nil || !n.client.IsConnected() {
		return
	}

	id, err := n.deviceID(ctx)
	if err != nil {
		n.logger.ErrorWithError(err, "Failed to resolve device id for notice")
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"telefono_id": id,
		"message":     message,
		"timestamp":   time.Now().UTC(),
	})
	if err != nil {
		n.logger.ErrorWithError(err, "Failed to marshal notice payload")
		return
	}

	topic := fmt.Sprintf("%s/%s", n.topic, id)
	token := n.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		n.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to publish notice")
	}
}

// MultiNotifier fans a notice out to several notifiers
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, message string) {
	for _, n := range m {
		n.Notify(ctx, message)
	}
}
