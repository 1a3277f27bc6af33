// Package mqtt owns the bridge's broker session.
//
// This package manages:
//   - Connection to the broker, failing fast when it is unreachable
//   - Presence on <base>/state: "online" retained on every connect,
//     "offline" retained on graceful shutdown
//   - The "offline" last-will registered for the same topic, so observers
//     see the bridge go offline even when the process dies
//   - Topic subscriptions, restored after the client library reconnects
//   - A dispatch worker that runs message handlers off the library's
//     network loop, one at a time in arrival order
//
// # Presence
//
//	connect ──▶ publish <base>/state "online" ──▶ restore subscriptions ──▶ OnConnect callback
//	DisconnectGracefully ──▶ publish <base>/state "offline" ──▶ disconnect
//	crash / network loss ──▶ broker publishes last-will "offline"
//
// Subscriptions made from the OnConnect callback therefore always follow
// the presence announcement.
//
// # Handlers
//
//	paho callback ──▶ inbox (256, drop + warn when full) ──▶ worker ──▶ handler
//
// Handlers may publish and wait for acknowledgement. DisconnectGracefully
// lets a running handler finish before "offline" goes out.
//
// # Usage
//
//	client, err := mqtt.NewClient(cfg.MQTT, cfg.BaseTopic())
//	if err != nil {
//	    return err // credentials or topic problem, nothing was dialled
//	}
//	client.SetOnConnect(func() { router.Start() })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.DisconnectGracefully()
package mqtt
