package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// Protocol is the name stamped on messages received over MQTT.
const Protocol = "mqtt"

// handleTimeout bounds the handling of one inbound message.
const handleTimeout = 30 * time.Second

// Client is the part of *mqtt.Client the transport uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Handler receives decoded inbound messages.
type Handler interface {
	Handle(ctx context.Context, m *message.Message)
}

// Logger is the optional logger of the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTT implements correlation.Sender on an MQTT client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MQTT struct {
	client Client
	local  message.Address
	qos    byte
	inbox  string

	mu      sync.RWMutex
	handler Handler
	started bool
	closed  bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewMQTT creates a transport for the node at local.
func NewMQTT(client Client, local message.Address, qos byte) *MQTT {
	return &MQTT{
		client: client,
		local:  local,
		qos:    qos,
		inbox:  InboxTopic(local),
	}
}

// InboxTopic is the topic the node at addr receives on.
func InboxTopic(addr message.Address) string {
	t := mqtt.Topics{}
	return t.Inbox(t.NodeID(addr.String()))
}

// SetLogger sets the logger.
func (t *MQTT) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

func (t *MQTT) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

// Inbox returns the topic of the local node.
func (t *MQTT) Inbox() string {
	return t.inbox
}

// Start subscribes to the local inbox and delivers inbound messages to h.
func (t *MQTT) Start(h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.started {
		return nil
	}
	if err := t.client.Subscribe(t.inbox, t.qos, t.receive); err != nil {
		return fmt.Errorf("subscribing to %s: %w", t.inbox, err)
	}
	t.handler = h
	t.started = true
	return nil
}

// Stop unsubscribes from the inbox. Send fails afterwards.
func (t *MQTT) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if !t.started {
		return nil
	}
	t.started = false
	if err := t.client.Unsubscribe(t.inbox); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", t.inbox, err)
	}
	return nil
}

// Send publishes m to the inbox of its receiver.
func (t *MQTT) Send(ctx context.Context, m *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Receiver.IsZero() {
		return fmt.Errorf("%w: %s", ErrNoReceiver, m.Path)
	}

	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if m.Sender.IsZero() {
		m.Sender = t.local
	}
	payload, err := message.Marshal(m)
	if err != nil {
		return err
	}
	if err := t.client.Publish(InboxTopic(m.Receiver), payload, t.qos, false); err != nil {
		return fmt.Errorf("sending %s to %s: %w", m.Path, m.Receiver, err)
	}
	if logger := t.getLogger(); logger != nil {
		logger.Debug("message sent", "path", m.Path, "to", m.Receiver.String(), "uid", m.UID)
	}
	return nil
}

// receive is the inbox subscription handler. A payload that does not
// decode is dropped; the error is logged by the client.
func (t *MQTT) receive(_ string, payload []byte) error {
	m, err := message.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("decoding inbox message: %w", err)
	}
	m.Protocol = Protocol

	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		return nil
	}

	if !m.Receiver.IsZero() && m.Receiver != t.local {
		if logger := t.getLogger(); logger != nil {
			logger.Warn("message for another node on inbox", "path", m.Path, "receiver", m.Receiver.String())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	h.Handle(ctx, m)
	return nil
}
