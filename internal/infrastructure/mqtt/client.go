package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// ConnectionState is the broker session state as seen by the bridge.
type ConnectionState int

const (
	// StateDisconnected is the initial state and the state after shutdown or loss.
	StateDisconnected ConnectionState = iota
	// StateConnecting covers the initial dial and library-driven reconnects.
	StateConnecting
	// StateConnected means the broker acknowledged the session.
	StateConnected
)

// String returns a lowercase name suitable for logs.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// newPahoClient builds the underlying library client. Tests replace it.
var newPahoClient = pahomqtt.NewClient

// Client owns the bridge's single broker session.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state  ConnectionState
	connMu sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for connection and handler diagnostics (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex

	// inbox feeds the dispatch worker; see subscribe.go.
	inbox        chan inbound
	dispatchStop chan struct{}
	dispatchDone chan struct{}
	startOnce    sync.Once
	stopOnce     sync.Once
	dispatching  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the client's dispatch worker, one at a time in arrival
// order, so they may publish and wait for the broker's acknowledgement.
// A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// NewClient prepares a session for the broker in cfg with presence on
// <base>/state. Nothing is dialled until Connect.
//
// The last-will ("offline", QoS 1, retained) is registered here so that it
// is part of every connect packet, including library reconnects.
//
// Returns ErrInvalidCredentials when only one of username and password is set
// and ErrInvalidTopic when base is empty once trailing slashes are removed.
func NewClient(cfg config.MQTTConfig, base string) (*Client, error) {
	topics := NewTopics(base)
	if topics.Base() == "" {
		return nil, ErrInvalidTopic
	}
	if err := validateCredentials(cfg.Auth); err != nil {
		return nil, err
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, topics.State())

	c := &Client{
		cfg:           cfg,
		options:       opts,
		topics:        topics,
		subscriptions: make(map[string]subscription),
		inbox:         make(chan inbound, inboxSize),
		dispatchStop:  make(chan struct{}),
		dispatchDone:  make(chan struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.setState(StateConnecting)
		if logger := c.getLogger(); logger != nil {
			logger.Info("reconnecting to MQTT broker", "broker", brokerURL(c.cfg))
		}
	})

	c.client = newPahoClient(opts)
	return c, nil
}

// Connect dials the broker and waits for the session to be acknowledged.
//
// The wait ends early when ctx is done. Any failure, including an
// unreachable broker or rejected credentials, is returned wrapped in
// ErrConnectionFailed and leaves the client disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.startDispatch()
	c.setState(StateConnecting)

	token := c.client.Connect()

	timer := time.NewTimer(defaultConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-timer.C:
		c.client.Disconnect(0)
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler may not have run yet. A session that was lost
	// in the meantime stays Disconnected.
	c.transition(StateConnecting, StateConnected)
	return nil
}

// handleConnect runs on every (re)connect: presence first, then the
// tracked subscriptions, then the caller's callback.
func (c *Client) handleConnect() {
	c.setState(StateConnected)

	if err := c.publishPresence(PresenceOnline); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("publishing online presence failed", "topic", c.topics.State(), "error", err)
		}
	}

	c.restoreSubscriptions()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishPresence writes a retained presence value to <base>/state.
// It bypasses the IsConnected check so it can run inside the connect handler.
func (c *Client) publishPresence(p Presence) error {
	token := c.client.Publish(c.topics.State(), presenceQoS, true, string(p))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s presence: timeout after %v", ErrPublishFailed, p, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s presence: %w", ErrPublishFailed, p, err)
	}
	return nil
}

// DisconnectGracefully publishes "offline" to <base>/state (best effort)
// and closes the session.
//
// Only the first call does anything; later calls return nil. A failed
// offline publish is returned but never prevents the disconnect.
func (c *Client) DisconnectGracefully() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.closeErr = c.disconnect()
	})
	if !first {
		return nil
	}
	return c.closeErr
}

// Close is DisconnectGracefully for use with defer and io.Closer.
func (c *Client) Close() error {
	return c.DisconnectGracefully()
}

func (c *Client) disconnect() error {
	if c.client == nil {
		return nil
	}

	// A handler already running finishes and its replies go out before "offline".
	c.stopDispatch()

	var err error
	if c.IsConnected() {
		err = c.publishPresence(PresenceOffline)
		if err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("publishing offline presence failed", "topic", c.topics.State(), "error", err)
			}
		}
	}

	// Disconnect with quiesce period for pending operations
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)

	return err
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the last known connection state.
func (c *Client) State() ConnectionState {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state
}

func (c *Client) setState(s ConnectionState) {
	c.connMu.Lock()
	c.state = s
	c.connMu.Unlock()
}

// transition moves to next only from the expected state.
func (c *Client) transition(from, next ConnectionState) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.state != from {
		return false
	}
	c.state = next
	return true
}

// IsConnected reports whether the session is up, both by our own
// bookkeeping and according to the client library.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state == StateConnected && c.client != nil && c.client.IsConnected()
}

// Topics returns the topic layout this client was built for.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect, after the
// online presence has been published.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and handler diagnostics.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
