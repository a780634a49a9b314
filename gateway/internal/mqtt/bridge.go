package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/hydrolab/stationlink/gateway/internal/config"
	"github.com/hydrolab/stationlink/gateway/internal/status"
	"github.com/hydrolab/stationlink/gateway/internal/task"
	"github.com/hydrolab/stationlink/pkg/types"
)

const (
	connectWait    = 5 * time.Second
	publishWait    = 10 * time.Second
	disconnectWait = 1000 // ms
)

// Dispatcher queues control tasks.
type Dispatcher interface {
	Dispatch(t task.ControlTask) (int, error)
}

// Bridge connects the gateway to an MQTT broker.
type Bridge struct {
	client     pahomqtt.Client
	qos        byte
	dispatcher Dispatcher

	topicMetrics string
	topicHealth  string
	topicTask    string
}

// New builds a Bridge for cfg. Connect must be called before use.
func New(cfg config.MQTTConfig, workstation string, d Dispatcher) *Bridge {
	b := newBridge(cfg, workstation, d)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "stationlink-" + uuid.NewString()
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if pw := cfg.Password(); pw != "" {
		opts.SetPassword(pw)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		slog.Info("mqtt: connected, subscribing", "topic", b.topicTask)
		if err := b.subscribe(); err != nil {
			slog.Error("mqtt: subscribe failed", "err", err)
		}
	})
	opts.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		slog.Warn("mqtt: connection lost", "err", err)
	})
	b.client = pahomqtt.NewClient(opts)
	return b
}

func newBridge(cfg config.MQTTConfig, workstation string, d Dispatcher) *Bridge {
	base := fmt.Sprintf("%s/%s", cfg.TopicPrefix, workstation)
	return &Bridge{
		qos:          byte(cfg.QoS),
		dispatcher:   d,
		topicMetrics: base + "/metrics",
		topicHealth:  base + "/health",
		topicTask:    base + "/task",
	}
}

// Connect starts the connection. If the broker is not reachable within a few
// seconds the client keeps retrying in the background and Connect returns
// nil; only a configuration error is returned.
func (b *Bridge) Connect(ctx context.Context) error {
	tok := b.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt: connect: %w", err)
		}
	case <-time.After(connectWait):
		slog.Warn("mqtt: broker not reachable yet, retrying in background")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Disconnect closes the connection.
func (b *Bridge) Disconnect() {
	if b.client.IsConnected() {
		b.client.Disconnect(disconnectWait)
		slog.Info("mqtt: disconnected")
	}
}

func (b *Bridge) subscribe() error {
	tok := b.client.Subscribe(b.topicTask, b.qos, b.onTask)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topicTask, err)
	}
	return nil
}

// Ship publishes a batch to the metrics topic without waiting.
func (b *Bridge) Ship(batch types.Batch) {
	payload, err := json.Marshal(batch)
	if err != nil {
		slog.Error("mqtt: encode batch", "err", err)
		return
	}
	b.publish(b.topicMetrics, false, payload)
}

type healthEnvelope struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
}

// PublishHealth publishes h as the retained health message. Its signature
// matches status.HealthStatus.OnChange.
func (b *Bridge) PublishHealth(_, h status.Health) {
	payload, err := json.Marshal(healthEnvelope{Code: h.Code, Message: h.Message, Since: h.Since})
	if err != nil {
		slog.Error("mqtt: encode health", "err", err)
		return
	}
	b.publish(b.topicHealth, true, payload)
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	if !b.client.IsConnectionOpen() {
		slog.Debug("mqtt: not connected, message dropped", "topic", topic)
		return
	}
	tok := b.client.Publish(topic, b.qos, retained, payload)
	go func() {
		if !tok.WaitTimeout(publishWait) {
			slog.Warn("mqtt: publish not acknowledged", "topic", topic)
			return
		}
		if err := tok.Error(); err != nil {
			slog.Error("mqtt: publish failed", "topic", topic, "err", err)
		}
	}()
}

func (b *Bridge) onTask(_ pahomqtt.Client, msg pahomqtt.Message) {
	var t task.ControlTask
	if err := json.Unmarshal(msg.Payload(), &t); err != nil {
		slog.Warn("mqtt: invalid task payload", "topic", msg.Topic(), "err", err)
		return
	}
	n, err := b.dispatcher.Dispatch(t)
	if err != nil {
		slog.Warn("mqtt: task rejected", "action", t.Action, "target", t.Target, "err", err)
		return
	}
	slog.Info("mqtt: task queued", "action", t.Action, "target", t.Target, "commands", n)
}
