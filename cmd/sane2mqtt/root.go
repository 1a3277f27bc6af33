package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// configEnvVar names the config file when --config is not given.
const configEnvVar = "SANE2MQTT_CONFIG"

// cliFlags holds the raw command-line values. Only flags the user actually
// set are applied over the file and environment configuration.
type cliFlags struct {
	configPath string
	server     string
	port       int
	keepalive  int
	topic      string
	username   string
	password   string
	logLevel   string
	verbose    bool
}

// newRootCommand builds the sane2mqtt command.
func newRootCommand() *cobra.Command {
	flags := &cliFlags{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "sane2mqtt",
		Short: "Bridge SANE scanners to an MQTT broker",
		Long: `sane2mqtt enumerates the scanners SANE can see and exposes them on MQTT.

Clients publish to <topic>/in/list_devices to receive the device list on
<topic>/devices and <topic>/device, and to <topic>/in/set_device with a device
index to select the active scanner. Bridge liveness is kept in the retained
<topic>/state message (online/offline).`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	bindConfigFlag(cmd.PersistentFlags(), flags)
	bindFlags(cmd.Flags(), flags, defaults)
	cmd.AddCommand(newAuditCommand(flags))
	return cmd
}

// bindConfigFlag registers --config, shared with the subcommands.
func bindConfigFlag(f *pflag.FlagSet, flags *cliFlags) {
	f.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file (env "+configEnvVar+")")
}

// bindFlags registers the bridge's command-line flags. Defaults mirror
// config.Default so --help shows the effective values.
func bindFlags(f *pflag.FlagSet, flags *cliFlags, defaults *config.Config) {
	f.StringVarP(&flags.server, "server", "s", defaults.MQTT.Broker.Host, "MQTT broker host")
	f.IntVar(&flags.port, "port", defaults.MQTT.Broker.Port, "MQTT broker port")
	f.IntVarP(&flags.keepalive, "keepalive", "k", defaults.MQTT.KeepAlive, "MQTT keepalive in seconds")
	f.StringVarP(&flags.topic, "topic", "t", defaults.Bridge.Topic, "base topic")
	f.StringVarP(&flags.username, "username", "u", "", "MQTT username (requires --password)")
	f.StringVarP(&flags.password, "password", "p", "", "MQTT password (requires --username)")
	f.StringVarP(&flags.logLevel, "loglevel", "l", defaults.Logging.Level, "log level: debug, info, warn, error or 10-50")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")
}

// loadConfig layers defaults, the config file, the environment and the
// explicitly set flags, then validates the result.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	path := getConfigPath(flags.configPath)

	cfg, err := config.Read(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	applyFlags(cmd, cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getConfigPath returns the --config value, falling back to SANE2MQTT_CONFIG.
// An empty result means no config file.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(configEnvVar)
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *cliFlags) {
	changed := cmd.Flags().Changed

	if changed("server") {
		cfg.MQTT.Broker.Host = flags.server
	}
	if changed("port") {
		cfg.MQTT.Broker.Port = flags.port
	}
	if changed("keepalive") {
		cfg.MQTT.KeepAlive = flags.keepalive
	}
	if changed("topic") {
		cfg.Bridge.Topic = flags.topic
	}
	if changed("username") {
		cfg.MQTT.Auth.Username = flags.username
	}
	if changed("password") {
		cfg.MQTT.Auth.Password = flags.password
	}
	if changed("loglevel") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("verbose") {
		cfg.Logging.Verbose = flags.verbose
	}
}
