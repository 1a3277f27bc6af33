package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// inboxSize bounds the messages waiting for the dispatch worker.
const inboxSize = 256

// inbound is one received message on its way to a handler.
type inbound struct {
	handler MessageHandler
	topic   string
	payload []byte
}

// Subscribe registers a handler for messages on topic, which may contain
// the + and # wildcards.
//
// The paho callback only queues the message. A single dispatch worker,
// started by Connect, runs handlers one at a time in arrival order, so a
// handler can publish replies without stalling the library's network loop.
//
// Subscriptions are restored after the client library reconnects.
//
//	err := client.Subscribe(client.Topics().AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := waitToken(token); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe stops delivery for a topic pattern passed to Subscribe.
// Messages already queued for the dispatch worker are still handled.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	c.forget(topic)

	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(c.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// forget drops topic from the set restored on reconnect.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// waitToken waits for a subscribe or unsubscribe acknowledgement.
func waitToken(token pahomqtt.Token) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("timeout after %v", defaultPublishTimeout)
	}
	return token.Error()
}

// wrapHandler adapts handler to paho. The returned callback never blocks:
// it queues a copy of the message, or drops it with a warning when the
// inbox is full or the worker has stopped.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		m := inbound{
			handler: handler,
			topic:   msg.Topic(),
			payload: append([]byte(nil), msg.Payload()...),
		}

		select {
		case <-c.dispatchStop:
			return
		default:
		}

		select {
		case c.inbox <- m:
		default:
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT inbox full, dropping message", "topic", m.topic, "capacity", inboxSize)
			}
		}
	}
}

// startDispatch launches the dispatch worker once.
func (c *Client) startDispatch() {
	c.startOnce.Do(func() {
		c.dispatching.Store(true)
		go c.dispatch()
	})
}

// stopDispatch stops the worker and waits for the handler it is running,
// if any. Queued messages that were not started are discarded.
func (c *Client) stopDispatch() {
	c.stopOnce.Do(func() {
		close(c.dispatchStop)
	})
	if c.dispatching.Load() {
		<-c.dispatchDone
	}
}

func (c *Client) dispatch() {
	defer close(c.dispatchDone)
	for {
		select {
		case <-c.dispatchStop:
			return
		case m := <-c.inbox:
			c.runHandler(m)
		}
	}
}

// runHandler calls one handler with panic recovery and error logging.
func (c *Client) runHandler(m inbound) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", m.topic, "panic", r)
			}
		}
	}()

	if err := m.handler(m.topic, m.payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error", "topic", m.topic, "error", err)
		}
	}
}
