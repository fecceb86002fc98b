package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// DefaultTimeout is how long Wait blocks for a reply.
const DefaultTimeout = time.Second

// Sender transmits a message to its receiver.
type Sender interface {
	Send(ctx context.Context, m *message.Message) error
}

// Observer receives request statistics. *metrics.Metrics satisfies it.
type Observer interface {
	ObservePending(n int)
	ObserveReply(seconds float64)
	ObserveTimeout()
}

// Logger is the optional logger of the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures an Engine.
type Options struct {
	Sender Sender

	// Local is stamped as sender on outgoing messages that have none.
	Local message.Address

	// Timeout is the reply timeout of every request. Default: DefaultTimeout.
	Timeout time.Duration

	// KeyByPath correlates requests without a uid by their path instead of
	// assigning one. Only one request per path may then be pending.
	KeyByPath bool

	Observer Observer
	Logger   Logger
}

// Engine correlates outgoing requests with their replies.
//
// A request expecting a reply registers a Future under its uid (assigned
// when empty) or, with KeyByPath, under its path. Every inbound message is
// offered to Resolve; the first match removes the Future and resolves it.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Engine struct {
	sender    Sender
	local     message.Address
	timeout   time.Duration
	keyByPath bool
	observer  Observer

	mu      sync.Mutex
	pending map[string]*Future
	closed  bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates an engine.
func New(opts Options) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		sender:    opts.Sender,
		local:     opts.Local,
		timeout:   timeout,
		keyByPath: opts.KeyByPath,
		observer:  opts.Observer,
		pending:   make(map[string]*Future),
		logger:    opts.Logger,
	}
}

// SetLogger replaces the logger.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// Local returns the address stamped on outgoing messages.
func (e *Engine) Local() message.Address {
	return e.local
}

// Timeout returns the reply timeout.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Send transmits m. When replyExpected is true it returns the Future the
// reply will resolve; otherwise the returned Future is nil.
func (e *Engine) Send(ctx context.Context, m *message.Message, replyExpected bool) (*Future, error) {
	if m.Receiver.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoReceiver, m.Path)
	}
	if m.Sender.IsZero() {
		m.Sender = e.local
	}

	if !replyExpected {
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, e.sender.Send(ctx, m)
	}

	if m.UID == "" && !e.keyByPath {
		m.UID = uuid.NewString()
	}
	key := m.UID
	if key == "" {
		key = m.Path
	}
	f := newFuture(key, m, e.timeout)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := e.pending[key]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFuture, key)
	}
	// Registered before sending so a fast reply finds it.
	e.pending[key] = f
	n := len(e.pending)
	e.mu.Unlock()
	e.observePending(n)

	if err := e.sender.Send(ctx, m); err != nil {
		e.remove(f)
		f.resolve(nil, err)
		return nil, err
	}
	return f, nil
}

// Resolve offers an inbound message to the pending futures. It reports
// whether a future matched; unmatched messages are left to the caller.
func (e *Engine) Resolve(m *message.Message) bool {
	key := m.UID
	if key == "" {
		key = m.BasePath()
	}

	e.mu.Lock()
	f, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	n := len(e.pending)
	e.mu.Unlock()

	if !ok {
		if logger := e.getLogger(); logger != nil {
			logger.Debug("no pending request for message", "path", m.Path, "uid", m.UID)
		}
		return false
	}
	e.observePending(n)

	var err error
	if m.IsError() {
		err = &RemoteError{Path: m.BasePath(), Description: m.ErrorDescription()}
	}
	if f.resolve(m, err) && e.observer != nil {
		e.observer.ObserveReply(time.Since(f.sent).Seconds())
	}
	return true
}

// Wait blocks until f is resolved, its timeout expires or ctx ends. On
// expiry the future is removed, so a late reply matches nothing.
func (e *Engine) Wait(ctx context.Context, f *Future) (*message.Message, error) {
	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case <-f.done:
	case <-timer.C:
		e.remove(f)
		if f.resolve(nil, fmt.Errorf("%w: %s to %s", ErrCommunicationTimeout, f.request.Path, f.request.Receiver)) {
			if e.observer != nil {
				e.observer.ObserveTimeout()
			}
			if logger := e.getLogger(); logger != nil {
				logger.Warn("request timed out", "path", f.request.Path, "receiver", f.request.Receiver.String(), "timeout", f.timeout)
			}
		}
	case <-ctx.Done():
		e.remove(f)
		f.resolve(nil, ctx.Err())
	}
	return f.Result()
}

// Request sends m and waits for its reply.
func (e *Engine) Request(ctx context.Context, m *message.Message) (*message.Message, error) {
	f, err := e.Send(ctx, m, true)
	if err != nil {
		return nil, err
	}
	return e.Wait(ctx, f)
}

// Pending returns the number of requests awaiting a reply.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close fails every pending request with ErrClosed and rejects new ones.
func (e *Engine) Close() {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]*Future)
	e.closed = true
	e.mu.Unlock()

	for _, f := range pending {
		f.resolve(nil, ErrClosed)
	}
	e.observePending(0)
}

func (e *Engine) remove(f *Future) {
	e.mu.Lock()
	if e.pending[f.key] == f {
		delete(e.pending, f.key)
	}
	n := len(e.pending)
	e.mu.Unlock()
	e.observePending(n)
}

func (e *Engine) observePending(n int) {
	if e.observer != nil {
		e.observer.ObservePending(n)
	}
}
