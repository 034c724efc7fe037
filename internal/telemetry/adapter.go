package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"homeguard/internal/config"
	"homeguard/internal/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// ButtonPressed is the only doorbell payload that counts as a press.
	ButtonPressed = "PRESSED"
	// BuzzerOn and BuzzerOff mirror alarm state to the buzzer actuator.
	BuzzerOn  = "ON"
	BuzzerOff = "OFF"

	publishAckTimeout = 5 * time.Second
	disconnectQuiesce = 250
)

// ErrNotConnected is returned when publishing without broker session.
var ErrNotConnected = errors.New("telemetry broker not connected")

// Sink receives parsed sensor readings and connection transitions.
type Sink interface {
	HandleDoor(reading domain.DoorReading)
	HandleLPG(ppm float64)
	HandleSmoke(ppm float64)
	HandleButtonPressed()
	HandleTelemetryConnection(connected bool, reason string)
}

// brokerClient is the subset of the paho client used after connect.
type brokerClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Adapter bridges MQTT sensor topics into Sink and mirrors alarm to buzzer.
// Params: telemetry config, sink and logger.
// Returns: telemetry channel adapter.
type Adapter struct {
	cfg    config.TelemetryConfig
	qos    byte
	sink   Sink
	logger *slog.Logger

	mu         sync.Mutex
	client     brokerClient
	alarmKnown bool
	lastAlarm  bool
}

// NewAdapter creates adapter without connecting.
// Params: telemetry config, sink for readings and logger.
// Returns: adapter ready for Connect.
func NewAdapter(cfg config.TelemetryConfig, sink Sink, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		qos:    byte(cfg.QoS),
		sink:   sink,
		logger: logger.With("component", "telemetry"),
	}
}

// Connect opens broker session and subscribes sensor topics on every (re)connect.
// Params: context bounding the initial wait.
// Returns: broker error; a slow broker keeps connecting in background and returns nil.
func (a *Adapter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(a.cfg.Broker)
	opts.SetClientID(a.cfg.ClientID)
	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
	}
	if a.cfg.Password != "" {
		opts.SetPassword(a.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(a.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		reason := "connection lost"
		if err != nil {
			reason = err.Error()
		}
		a.logger.Warn("mqtt connection lost", "broker", a.cfg.Broker, "error", reason)
		a.sink.HandleTelemetryConnection(false, reason)
	})

	client := mqtt.NewClient(opts)
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	token := client.Connect()
	timer := time.NewTimer(time.Duration(a.cfg.ConnectTimeoutSec) * time.Second)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect mqtt broker %s: %w", a.cfg.Broker, err)
		}
	case <-timer.C:
		a.logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", a.cfg.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (a *Adapter) onConnect(client mqtt.Client) {
	filters := map[string]byte{
		a.cfg.Topics.Door:   a.qos,
		a.cfg.Topics.LPG:    a.qos,
		a.cfg.Topics.Smoke:  a.qos,
		a.cfg.Topics.Button: a.qos,
	}
	token := client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		a.HandleMessage(msg.Topic(), msg.Payload())
	})
	go func() {
		if token.WaitTimeout(publishAckTimeout) && token.Error() != nil {
			a.logger.Error("mqtt subscribe failed", "error", token.Error().Error())
		}
	}()
	a.logger.Info("mqtt connected", "broker", a.cfg.Broker)
	a.sink.HandleTelemetryConnection(true, "")
}

// HandleMessage routes one inbound payload by topic.
// Params: topic and raw payload.
// Returns: none; unknown topics and unrecognised payloads are ignored.
func (a *Adapter) HandleMessage(topic string, payload []byte) {
	text := string(payload)
	switch topic {
	case a.cfg.Topics.Door:
		a.sink.HandleDoor(domain.ParseDoorReading(text))
	case a.cfg.Topics.LPG:
		a.sink.HandleLPG(ParsePPM(text))
	case a.cfg.Topics.Smoke:
		a.sink.HandleSmoke(ParsePPM(text))
	case a.cfg.Topics.Button:
		if text == ButtonPressed {
			a.sink.HandleButtonPressed()
			return
		}
		a.logger.Debug("button payload ignored", "payload", text)
	default:
		a.logger.Debug("mqtt message on unexpected topic", "topic", topic)
	}
}

// ParsePPM parses gas concentration payload.
// Params: payload text.
// Returns: parsed value, or 0 for non-numeric, non-finite or negative input.
func ParsePPM(payload string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

// Publish sends one message when the broker session is open.
// Params: topic and message text.
// Returns: ErrNotConnected when dropped; delivery errors are logged asynchronously.
func (a *Adapter) Publish(topic, message string) error {
	return a.publish(topic, message, false)
}

// MirrorAlarm publishes buzzer ON/OFF when alarm state differs from the last mirrored value.
// Params: current alarm flag.
// Returns: none; a dropped publish is not retried.
func (a *Adapter) MirrorAlarm(active bool) {
	a.mu.Lock()
	if a.alarmKnown && a.lastAlarm == active {
		a.mu.Unlock()
		return
	}
	a.alarmKnown = true
	a.lastAlarm = active
	a.mu.Unlock()

	payload := BuzzerOff
	if active {
		payload = BuzzerOn
	}
	_ = a.publish(a.cfg.Topics.Buzzer, payload, true)
}

func (a *Adapter) publish(topic, message string, retained bool) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		a.logger.Error("mqtt publish dropped: not connected", "topic", topic, "payload", message)
		return ErrNotConnected
	}
	token := client.Publish(topic, a.qos, retained, message)
	// Never block here: publish may run inside a paho message callback.
	go func() {
		if token.WaitTimeout(publishAckTimeout) && token.Error() != nil {
			a.logger.Error("mqtt publish failed", "topic", topic, "error", token.Error().Error())
		}
	}()
	a.logger.Debug("mqtt published", "topic", topic, "payload", message)
	return nil
}

// Close disconnects from broker.
// Params: none.
// Returns: nil.
func (a *Adapter) Close() error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()
	if client != nil {
		client.Disconnect(disconnectQuiesce)
	}
	return nil
}
