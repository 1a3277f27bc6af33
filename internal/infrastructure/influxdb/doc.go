// Package influxdb writes bridge telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and a health check.
//
// # Measurements
//
//   - sane_commands: one point per handled command, tagged by command and
//     outcome, with an integer count field of 1.
//   - sane_devices: the number of devices enumerated at startup.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric("set_device", "ok")
//
// # Thread Safety
//
// All methods are safe for concurrent use. Write errors are delivered
// asynchronously to the callback registered with SetOnError.
package influxdb
