package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// fakeToken is a paho token that is either already complete or completes
// when its done channel is closed.
type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakeEvent records one call made against the fake broker session.
type fakeEvent struct {
	kind     string // publish, subscribe, unsubscribe, disconnect
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakePaho implements pahomqtt.Client without a network.
// Connect runs the OnConnect handler synchronously before returning.
//
// With holdAcks set, Publish returns tokens that stay pending until
// ackPending is called, the way paho completes a QoS 1 token only when its
// network loop reads the PUBACK.
type fakePaho struct {
	mu           sync.Mutex
	opts         *pahomqtt.ClientOptions
	connected    bool
	connectToken *fakeToken
	publishErr   error
	events       []fakeEvent
	handlers     map[string]pahomqtt.MessageHandler
	holdAcks     bool
	unacked      []*fakeToken
	afterConnect func()
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	tok := f.connectToken
	f.mu.Unlock()
	if tok != nil {
		return tok
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	f.mu.Lock()
	hook := f.afterConnect
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return doneToken(nil)
}

func (f *fakePaho) Disconnect(_ uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.events = append(f.events, fakeEvent{kind: "disconnect"})
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.events = append(f.events, fakeEvent{kind: "publish", topic: topic, payload: body, qos: qos, retained: retained})
	if f.holdAcks {
		tok := &fakeToken{err: f.publishErr, done: make(chan struct{})}
		f.unacked = append(f.unacked, tok)
		return tok
	}
	return doneToken(f.publishErr)
}

// setHoldAcks switches between immediate and deferred publish tokens.
func (f *fakePaho) setHoldAcks(hold bool) {
	f.mu.Lock()
	f.holdAcks = hold
	f.mu.Unlock()
}

// ackPending completes every publish token handed out so far.
func (f *fakePaho) ackPending() {
	f.mu.Lock()
	pending := f.unacked
	f.unacked = nil
	f.mu.Unlock()
	for _, tok := range pending {
		close(tok.done)
	}
}

func (f *fakePaho) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]pahomqtt.MessageHandler)
	}
	f.handlers[topic] = callback
	f.events = append(f.events, fakeEvent{kind: "subscribe", topic: topic, qos: qos})
	return doneToken(nil)
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return doneToken(nil)
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
		f.events = append(f.events, fakeEvent{kind: "unsubscribe", topic: topic})
	}
	return doneToken(nil)
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver simulates an inbound message on a subscribed topic.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(f, fakeMessage{topic: topic, payload: payload})
	}
}

// loseConnection simulates a dropped session followed by the library's reconnect.
func (f *fakePaho) loseConnection(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	if f.opts.OnConnectionLost != nil {
		f.opts.OnConnectionLost(f, err)
	}
}

func (f *fakePaho) reconnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
}

func (f *fakePaho) snapshot() []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeEvent, len(f.events))
	copy(out, f.events)
	return out
}

// publishes returns the payloads published on topic, in order.
func (f *fakePaho) publishes(topic string) []string {
	var out []string
	for _, e := range f.snapshot() {
		if e.kind == "publish" && e.topic == topic {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakePaho) count(kind, topic, payload string) int {
	n := 0
	for _, e := range f.snapshot() {
		if e.kind == kind && e.topic == topic && (payload == "" || e.payload == payload) {
			n++
		}
	}
	return n
}

// unitConfig returns an MQTT configuration that never reaches a network.
func unitConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "sane2mqtt-test",
		},
		QoS:       1,
		KeepAlive: 60,
		Reconnect: config.MQTTReconnectConfig{
			Enabled:  true,
			MaxDelay: 5,
		},
	}
}

// newFakeClient builds a Client for base "sane" whose session is a fakePaho.
func newFakeClient(t *testing.T, cfg config.MQTTConfig) (*Client, *fakePaho) {
	t.Helper()

	fake := &fakePaho{}
	orig := newPahoClient
	newPahoClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		fake.opts = o
		return fake
	}
	t.Cleanup(func() { newPahoClient = orig })

	client, err := NewClient(cfg, "sane")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, fake
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	infos  []string
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) counts() (errs, warns int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors), len(l.warns)
}

func (l *mockLogger) warned(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warns {
		if w == msg {
			return true
		}
	}
	return false
}
