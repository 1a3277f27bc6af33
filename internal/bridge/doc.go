// Package bridge routes MQTT commands to the scanner registry.
//
// The Router subscribes to <base>/in/# and dispatches each message by the
// topic suffix after <base>/in/:
//
//	<base>/in/list_devices  ──▶ publish <base>/devices, then <base>/device per device
//	<base>/in/set_device    ──▶ select the active device by index
//	anything else           ──▶ logged at info level and ignored
//
// Command failures are logged and never answered on the wire. Every
// command outcome is offered to the optional CommandLogger and Metrics
// sinks; their failures are logged and never affect the command.
//
// The router talks to the broker only through the MQTTClient interface,
// which the ConnectionManager satisfies via a small adapter in main.
package bridge
