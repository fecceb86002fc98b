package slave

import (
	"context"
	"time"
)

// DefaultBridgeSize is the queue capacity of a Bridge.
const DefaultBridgeSize = 64

// bridgeReceiveTimeout bounds a blocking receive so the loop re-checks
// its stop signal.
const bridgeReceiveTimeout = 2 * time.Second

// Op is the driver operation of a Request.
type Op int

// Bridge operations.
const (
	OpGet Op = iota
	OpSet
	OpCall
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpCall:
		return "call"
	}
	return "unknown"
}

// Result completes a Request.
type Result struct {
	Value any
	Err   error
}

// Request is one driver operation queued on a Bridge.
type Request struct {
	Op     Op
	Key    string
	Value  any
	Method string

	result chan Result
}

// NewGet builds a request reading key.
func NewGet(key string) *Request {
	return &Request{Op: OpGet, Key: key, result: make(chan Result, 1)}
}

// NewSet builds a request writing value to key.
func NewSet(key string, value any) *Request {
	return &Request{Op: OpSet, Key: key, Value: value, result: make(chan Result, 1)}
}

// NewCall builds a request running a named driver method ("ping").
func NewCall(method string) *Request {
	return &Request{Op: OpCall, Method: method, result: make(chan Result, 1)}
}

// Done delivers the result once the request ran.
func (r *Request) Done() <-chan Result {
	return r.result
}

// complete delivers res. Only the first call has an effect.
func (r *Request) complete(res Result) {
	select {
	case r.result <- res:
	default:
	}
}

// Wait blocks until the request completed or ctx ends.
func (r *Request) Wait(ctx context.Context) (any, error) {
	select {
	case res := <-r.result:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Bridge is the FIFO queue serialising the driver operations of one slave.
type Bridge struct {
	queue chan *Request
}

// NewBridge creates a bridge holding up to size requests.
func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = DefaultBridgeSize
	}
	return &Bridge{queue: make(chan *Request, size)}
}

// Put enqueues r, blocking while the queue is full.
func (b *Bridge) Put(ctx context.Context, r *Request) error {
	select {
	case b.queue <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next request. It returns false after timeout or
// once done is closed.
func (b *Bridge) Receive(done <-chan struct{}, timeout time.Duration) (*Request, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-b.queue:
		return r, true
	case <-timer.C:
		return nil, false
	case <-done:
		return nil, false
	}
}

// Len returns the number of queued requests.
func (b *Bridge) Len() int {
	return len(b.queue)
}

// drain fails every queued request with err.
func (b *Bridge) drain(err error) {
	for {
		select {
		case r := <-b.queue:
			r.complete(Result{Err: err})
		default:
			return
		}
	}
}
