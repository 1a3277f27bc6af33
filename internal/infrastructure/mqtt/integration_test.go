//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:       1,
		KeepAlive: 10,
		Reconnect: config.MQTTReconnectConfig{
			Enabled:  true,
			MaxDelay: 5,
		},
	}
}

func connectIntegration(t *testing.T, clientID, base string) *Client {
	t.Helper()
	client, err := NewClient(integrationConfig(clientID), base)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client
}

// TestIntegration_PresenceLifecycle verifies an observer sees the retained
// "online" after connect and "offline" after a graceful disconnect.
func TestIntegration_PresenceLifecycle(t *testing.T) {
	base := "sane2mqtt-int/presence"

	observer := connectIntegration(t, "sane2mqtt-int-observer", "sane2mqtt-int/observer")
	defer observer.Close()

	received := make(chan string, 4)
	err := observer.Subscribe(base+"/state", 1, func(_ string, p []byte) error {
		received <- string(p)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	bridge := connectIntegration(t, "sane2mqtt-int-bridge", base)

	waitForMessage(t, received, "online")

	if err := bridge.DisconnectGracefully(); err != nil {
		t.Fatalf("DisconnectGracefully() error = %v", err)
	}

	waitForMessage(t, received, "offline")
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	pubClient := connectIntegration(t, "sane2mqtt-int-pub", "sane2mqtt-int/pub")
	defer pubClient.Close()

	subClient := connectIntegration(t, "sane2mqtt-int-sub", "sane2mqtt-int/sub")
	defer subClient.Close()

	topic := subClient.Topics().Command("list_devices")
	expected := "test-message-12345"

	received := make(chan string, 1)
	var once sync.Once

	err := subClient.Subscribe(subClient.Topics().AllCommands(), 1, func(_ string, p []byte) error {
		once.Do(func() {
			received <- string(p)
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitForMessage(t, received, expected)
}

func waitForMessage(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %q", want)
		}
	}
}
