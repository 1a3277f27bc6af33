package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommands = "sane_commands"
	MeasurementDevices  = "sane_devices"
)

// WriteCommandMetric records one handled command.
//
//	client.WriteCommandMetric("set_device", "rejected")
func (c *Client) WriteCommandMetric(command, outcome string) {
	c.WritePoint(MeasurementCommands,
		map[string]string{
			"command": command,
			"outcome": outcome,
		},
		map[string]interface{}{
			"count": int64(1),
		},
	)
}

// WriteDeviceCount records how many devices the registry holds.
func (c *Client) WriteDeviceCount(n int) {
	c.WritePoint(MeasurementDevices, nil, map[string]interface{}{
		"count": int64(n),
	})
}

// WritePoint writes a point stamped with the current time.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
