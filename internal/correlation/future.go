package correlation

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// Future is one request awaiting its reply. It is resolved exactly once.
type Future struct {
	key     string
	request *message.Message
	timeout time.Duration
	sent    time.Time

	once   sync.Once
	done   chan struct{}
	result *message.Message
	err    error
}

func newFuture(key string, req *message.Message, timeout time.Duration) *Future {
	return &Future{
		key:     key,
		request: req,
		timeout: timeout,
		sent:    time.Now(),
		done:    make(chan struct{}),
	}
}

// Key is the correlation key: the uid of the request, or its path.
func (f *Future) Key() string { return f.key }

// Request returns the message the future waits a reply for.
func (f *Future) Request() *message.Message { return f.request }

// Timeout is how long Wait blocks for this future.
func (f *Future) Timeout() time.Duration { return f.timeout }

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the reply, or the error it resolved with. It is only
// meaningful after Done is closed.
func (f *Future) Result() (*message.Message, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
		return nil, nil
	}
}

// resolve sets the outcome. Later calls are ignored and return false.
func (f *Future) resolve(reply *message.Message, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.result, f.err = reply, err
		close(f.done)
		resolved = true
	})
	return resolved
}
