// Command sane2mqtt bridges SANE scanner devices to an MQTT broker.
//
// It enumerates scanners once at startup, announces itself with a retained
// online/offline state message backed by a last-will, and answers device
// listing and selection commands published under the base topic.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	_ "github.com/nerrad567/sane2mqtt/migrations"

	"github.com/nerrad567/sane2mqtt/internal/audit"
	"github.com/nerrad567/sane2mqtt/internal/bridge"
	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sane2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/sane2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/sane2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/sane2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sane2mqtt/internal/scanner"
	"github.com/nerrad567/sane2mqtt/internal/shutdown"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// shutdownSignals end the bridge gracefully.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until shutdown.
// It returns nil after a graceful shutdown and an error for any startup failure.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting sane2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	coordinator := shutdown.New()
	coordinator.SetLogger(log)
	stopWatching := coordinator.Watch(ctx, shutdownSignals...)
	defer stopWatching()

	// Configuration problems surface here, before any network attempt.
	mqttClient, err := mqtt.NewClient(cfg.MQTT, cfg.BaseTopic())
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	mqttClient.SetLogger(log)

	registry, err := loadRegistry(ctx, cfg.Scanner, log)
	if err != nil {
		return err
	}

	var (
		db            *database.DB
		commandLogger bridge.CommandLogger
	)
	if cfg.Audit.Enabled {
		db, err = openAuditDB(ctx, cfg.Audit)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing audit database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing audit database", "error", closeErr)
			}
		}()
		commandLogger = audit.NewSQLiteRepository(db.DB)
		log.Info("command audit enabled", "path", db.Path())
	}

	var (
		influxClient *influxdb.Client
		metrics      bridge.Metrics
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		influxClient.WriteDeviceCount(registry.Len())
		metrics = &commandMetrics{client: influxClient}
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	router, err := bridge.NewRouter(bridge.Options{
		Topics:        mqttClient.Topics(),
		MQTTClient:    &mqttBridgeAdapter{client: mqttClient},
		Registry:      registry,
		QoS:           byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
		Logger:        log.With("component", "router"),
		CommandLogger: commandLogger,
		Metrics:       metrics,
	})
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	// The connect callback runs after "online" is published, so command
	// subscriptions always follow the presence announcement.
	mqttClient.SetOnConnect(router.OnConnect)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Error("MQTT disconnected", "error", err)
	})

	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"state_topic", mqttClient.Topics().State(),
	)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("health check failed", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	err = coordinator.Run(ctx, func() error {
		router.Stop()
		log.Info("disconnecting from MQTT")
		return mqttClient.DisconnectGracefully()
	})
	if err != nil {
		log.Warn("offline presence not confirmed by broker", "error", err)
	}

	log.Info("sane2mqtt stopped")
	return nil
}

// loadRegistry enumerates scanners into a fresh registry. Enumeration
// failures are logged and leave the registry empty.
func loadRegistry(ctx context.Context, cfg config.ScannerConfig, log *logging.Logger) (*scanner.Registry, error) {
	enumerator, err := scanner.NewEnumerator(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating enumerator: %w", err)
	}

	registry := scanner.NewRegistry()
	count := scanner.Load(ctx, enumerator, registry, log)
	log.Info("device registry initialised", "source", cfg.Source, "devices", count)
	for i, d := range registry.Devices() {
		log.Debug("device", "id", i, "device", d.String())
	}
	return registry, nil
}

// openAuditDB opens the command audit database and applies migrations.
func openAuditDB(ctx context.Context, cfg config.AuditConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// healthCheck verifies the infrastructure connections.
// db and influxClient may be nil when their features are disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the router's
// MQTTClient interface. The infrastructure handler returns an error; the
// router's handlers don't.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// commandMetrics feeds router command outcomes into InfluxDB.
type commandMetrics struct {
	client *influxdb.Client
}

// RecordCommand implements bridge.Metrics.
func (m *commandMetrics) RecordCommand(command string, outcome bridge.Outcome) {
	m.client.WriteCommandMetric(command, string(outcome))
}
