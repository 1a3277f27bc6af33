// Package logging provides structured logging for sane2mqtt.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "error"     # debug, info, warn, error (or 10, 20, 30, 40, 50)
//	  format: "text"     # text, json
//	  output: "stderr"   # stdout, stderr
//	  verbose: false     # forces debug
//
// The numeric levels match the scale accepted by the --loglevel flag.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected", "broker", addr)
//	logger.Error("set_device rejected", "payload", p, "error", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
