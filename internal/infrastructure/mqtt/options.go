package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive applies when the configuration leaves keepalive unset.
	defaultKeepAlive = 60 * time.Second

	// defaultMaxReconnectDelay applies when reconnect.max_delay is unset.
	defaultMaxReconnectDelay = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// presenceQoS is used for online, offline and the last-will.
	presenceQoS = 1

	// clientIDPrefix prefixes generated client IDs.
	clientIDPrefix = "sane2mqtt-"

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Presence is the payload published to <base>/state.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// validateCredentials rejects a username without a password and vice versa.
func validateCredentials(auth config.MQTTAuthConfig) error {
	if (auth.Username == "") != (auth.Password == "") {
		return ErrInvalidCredentials
	}
	return nil
}

// brokerURL returns tcp:// or ssl:// depending on the TLS setting.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// clientID returns the configured ID or a generated "sane2mqtt-xxxxxxxx".
func clientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return clientIDPrefix + uuid.NewString()[:8]
}

// buildClientOptions creates paho MQTT options from the bridge config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Ordered, serial message delivery
//   - Library reconnect after the first successful connect (if enabled)
//   - TLS configuration (if enabled)
//
// The initial connect is never retried: an unreachable broker at startup
// is reported to the caller.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(clientID(cfg))

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Commands must be handled one at a time in arrival order
	opts.SetOrderMatters(true)

	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.Reconnect.Enabled)
	maxDelay := time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	if maxDelay <= 0 {
		maxDelay = defaultMaxReconnectDelay
	}
	opts.SetMaxReconnectInterval(maxDelay)

	// Connection timeout
	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := cfg.GetKeepAlive()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// TLS configuration if enabled
	if cfg.Broker.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tlsMinVersion,
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// configureLWT registers "offline" on the presence topic as the last-will.
//
// The broker publishes it if the client disconnects unexpectedly
// (crash, network failure, etc.).
//
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, stateTopic string) {
	opts.SetWill(stateTopic, string(PresenceOffline), presenceQoS, true)
}
