package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sane2mqtt/internal/scanner"
)

// sinkTimeout bounds a single audit write.
const sinkTimeout = 2 * time.Second

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes the subscription for a topic pattern.
	Unsubscribe(topic string) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// CommandLogger persists handled commands.
// It is optional - if nil, commands are not audited.
type CommandLogger interface {
	LogCommand(ctx context.Context, rec CommandRecord) error
}

// Metrics receives command counters.
// It is optional - if nil, no metrics are written.
type Metrics interface {
	RecordCommand(command string, outcome Outcome)
}

// commandHandler carries out one command and reports how it went.
type commandHandler func(payload []byte) (Outcome, string)

// Options holds configuration for creating a router.
type Options struct {
	// Topics is the topic layout under the configured base.
	Topics mqtt.Topics

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Registry holds the enumerated devices.
	Registry *scanner.Registry

	// QoS is used for the command subscription and device replies.
	QoS byte

	// Logger is optional structured logger.
	Logger Logger

	// CommandLogger is an optional audit sink.
	CommandLogger CommandLogger

	// Metrics is an optional metrics sink.
	Metrics Metrics
}

// Router dispatches inbound commands and publishes device data.
//
// Thread Safety: All methods are safe for concurrent use.
type Router struct {
	topics   mqtt.Topics
	mqtt     MQTTClient
	registry *scanner.Registry
	qos      byte
	handlers map[string]commandHandler

	audit   CommandLogger
	metrics Metrics

	stopped  bool
	stopMu   sync.RWMutex
	stopOnce sync.Once

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// NewRouter creates a router. Call Start once the session is up.
func NewRouter(opts Options) (*Router, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Topics.Base() == "" {
		return nil, fmt.Errorf("base topic is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", opts.QoS)
	}

	r := &Router{
		topics:   opts.Topics,
		mqtt:     opts.MQTTClient,
		registry: opts.Registry,
		qos:      opts.QoS,
		audit:    opts.CommandLogger, // May be nil (optional)
		metrics:  opts.Metrics,       // May be nil (optional)
		logger:   opts.Logger,
	}

	r.handlers = map[string]commandHandler{
		CommandListDevices: r.handleListDevices,
		CommandSetDevice:   r.handleSetDevice,
	}

	return r, nil
}

// Start subscribes to the command namespace.
// It is safe to call on every (re)connect.
func (r *Router) Start() error {
	topic := r.topics.AllCommands()
	if err := r.mqtt.Subscribe(topic, r.qos, r.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	r.logInfo("subscribed to commands", "topic", topic)
	return nil
}

// OnConnect subscribes and publishes the current registry contents.
// Wire it to the connection manager's connect callback.
func (r *Router) OnConnect() {
	if err := r.Start(); err != nil {
		r.logError("failed to subscribe to commands", err)
		return
	}
	if err := r.PublishDevices(); err != nil {
		r.logError("failed to publish devices", err)
	}
}

// Stop makes the router ignore further messages and drops the command
// subscription. A command already being handled runs to completion.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.stopMu.Lock()
		r.stopped = true
		r.stopMu.Unlock()

		if err := r.mqtt.Unsubscribe(r.topics.AllCommands()); err != nil {
			r.logError("failed to unsubscribe from commands", err)
		}
		r.logInfo("router stopped")
	})
}

func (r *Router) isStopped() bool {
	r.stopMu.RLock()
	defer r.stopMu.RUnlock()
	return r.stopped
}

// PublishDevices publishes the aggregate list on <base>/devices followed by
// one <base>/device message per device, all from one registry snapshot.
func (r *Router) PublishDevices() error {
	devices := r.registry.Devices()

	list, err := scanner.MarshalTuples(devices)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishDevices, err)
	}
	if err := r.mqtt.Publish(r.topics.Devices(), list, r.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishDevices, r.topics.Devices(), err)
	}

	for i, d := range devices {
		payload, err := json.Marshal(scanner.NewDeviceMessage(i, d))
		if err != nil {
			return fmt.Errorf("%w: device %d: %w", ErrPublishDevices, i, err)
		}
		if err := r.mqtt.Publish(r.topics.Device(), payload, r.qos, false); err != nil {
			return fmt.Errorf("%w: device %d: %w", ErrPublishDevices, i, err)
		}
	}

	r.logDebug("published devices", "count", len(devices))
	return nil
}

// handleMessage routes an inbound MQTT message to its command handler.
func (r *Router) handleMessage(topic string, payload []byte) {
	if r.isStopped() {
		r.logDebug("router stopped, dropping message", "topic", topic)
		return
	}

	name, ok := r.topics.CommandName(topic)
	if !ok {
		r.logInfo("ignoring message outside command namespace", "topic", topic)
		return
	}

	received := time.Now().UTC()

	handler, ok := r.handlers[name]
	if !ok {
		r.logInfo("unknown command", "command", name, "topic", topic)
		r.report(CommandRecord{
			Command:    name,
			Topic:      topic,
			Payload:    string(payload),
			Outcome:    OutcomeIgnored,
			Detail:     "unknown command",
			ReceivedAt: received,
		})
		return
	}

	r.logDebug("received command", "command", name, "payload", string(payload))

	outcome, detail := handler(payload)
	r.report(CommandRecord{
		Command:    name,
		Topic:      topic,
		Payload:    string(payload),
		Outcome:    outcome,
		Detail:     detail,
		ReceivedAt: received,
	})
}

// handleListDevices publishes the registry. The payload is ignored.
func (r *Router) handleListDevices(_ []byte) (Outcome, string) {
	if err := r.PublishDevices(); err != nil {
		r.logError("list_devices failed", err)
		return OutcomeRejected, err.Error()
	}
	return OutcomeOK, fmt.Sprintf("%d devices", r.registry.Len())
}

// handleSetDevice selects the active device from a decimal index payload.
// Invalid or out-of-range indexes leave the selection unchanged.
func (r *Router) handleSetDevice(payload []byte) (Outcome, string) {
	index, err := parseIndex(payload)
	if err != nil {
		r.logError("set_device rejected", err)
		return OutcomeRejected, err.Error()
	}

	if err := r.registry.SetActive(index); err != nil {
		r.logError("set_device rejected", err)
		return OutcomeRejected, err.Error()
	}

	d, _ := r.registry.ActiveDevice()
	r.logInfo("active device set",
		"index", index,
		"port", d.Port,
		"vendor", d.Vendor,
		"pid", d.ProductID,
		"type", d.Type)

	return OutcomeOK, d.String()
}

// parseIndex reads a decimal integer, ignoring surrounding whitespace.
func parseIndex(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	index, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIndex, s)
	}
	return index, nil
}

// report hands a command record to the optional sinks.
func (r *Router) report(rec CommandRecord) {
	if r.metrics != nil {
		r.metrics.RecordCommand(rec.Command, rec.Outcome)
	}

	if r.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := r.audit.LogCommand(ctx, rec); err != nil {
		r.logError("failed to audit command", err)
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (r *Router) logInfo(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (r *Router) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (r *Router) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
