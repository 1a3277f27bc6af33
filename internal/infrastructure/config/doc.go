// Package config handles loading and validating sane2mqtt configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables
//   - Validation of broker credentials, topic prefix and ranges
//   - Default value handling
//
// Command-line flags are applied by the caller between Read and Validate,
// so every source goes through the same validation before any network
// connection is attempted.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Read(path) // path may be empty
//	if err != nil {
//	    return err
//	}
//	cfg.MQTT.Broker.Host = "broker.local"
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
