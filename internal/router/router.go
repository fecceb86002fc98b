package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// ErrInvalidFilter is returned by Register for filters without a target.
var ErrInvalidFilter = errors.New("invalid filter")

// HandlerFunc handles a dispatched message.
type HandlerFunc func(ctx context.Context, m *message.Message)

// Filter selects the messages a handler receives.
type Filter struct {
	// Name identifies the filter in logs.
	Name string

	// Protocol restricts the filter to one transport. Empty accepts any.
	Protocol string

	// Alias is matched against the message path: exactly, or as a
	// segment prefix when Prefix is set ("/slave" accepts "/slave/get").
	Alias  string
	Prefix bool

	// Sender restricts the filter to one remote, given as "host" or
	// "host:port". Empty accepts any.
	Sender string

	// MinArgs is the minimum number of arguments of an accepted message.
	MinArgs int

	// Exclusive stops the dispatch after this filter accepted a message.
	Exclusive bool

	Target HandlerFunc
}

// Accepts reports whether the filter selects m.
func (f Filter) Accepts(m *message.Message) bool {
	if f.Protocol != "" && f.Protocol != m.Protocol {
		return false
	}
	if !f.matchPath(m.Path) {
		return false
	}
	if f.Sender != "" && f.Sender != m.Sender.Host && f.Sender != m.Sender.String() {
		return false
	}
	return len(m.Args) >= f.MinArgs
}

func (f Filter) matchPath(path string) bool {
	if path == f.Alias {
		return true
	}
	if !f.Prefix {
		return false
	}
	prefix := strings.TrimSuffix(f.Alias, "/")
	return strings.HasPrefix(path, prefix+"/")
}

// Logger is the optional logger of the router.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Router dispatches messages to an ordered list of filters.
//
// Filters are scanned in registration order and every accepting filter's
// target runs, until an accepting exclusive filter ends the scan. Filters
// with side effects for all messages (resetting a timeout clock) are
// registered first.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Targets run on the
//     dispatching goroutine.
type Router struct {
	mu      sync.RWMutex
	filters []Filter

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates an empty router.
func New() *Router {
	return &Router{}
}

// SetLogger sets the logger used for unmatched messages and handler panics.
func (r *Router) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Router) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// Register appends f to the filter list.
func (r *Router) Register(f Filter) error {
	if f.Target == nil {
		return fmt.Errorf("%w: %q has no target", ErrInvalidFilter, f.Name)
	}
	if f.Alias == "" && !f.Prefix {
		return fmt.Errorf("%w: %q has no alias", ErrInvalidFilter, f.Name)
	}
	if f.MinArgs < 0 {
		return fmt.Errorf("%w: %q has a negative argument count", ErrInvalidFilter, f.Name)
	}

	r.mu.Lock()
	r.filters = append(r.filters, f)
	r.mu.Unlock()
	return nil
}

// Filters returns a copy of the filter list in dispatch order.
func (r *Router) Filters() []Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Filter, len(r.filters))
	copy(out, r.filters)
	return out
}

// Dispatch runs the targets of the filters accepting m and returns how
// many ran.
func (r *Router) Dispatch(ctx context.Context, m *message.Message) int {
	r.mu.RLock()
	filters := r.filters
	r.mu.RUnlock()

	n := 0
	for _, f := range filters {
		if !f.Accepts(m) {
			continue
		}
		r.run(ctx, f, m)
		n++
		if f.Exclusive {
			break
		}
	}

	if n == 0 {
		if logger := r.getLogger(); logger != nil {
			logger.Debug("no filter accepted message", "path", m.Path, "sender", m.Sender.String())
		}
	}
	return n
}

// run calls the target of f, keeping a panicking target from stopping the
// dispatch of later messages.
func (r *Router) run(ctx context.Context, f Filter, m *message.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			if logger := r.getLogger(); logger != nil {
				logger.Error("message handler panic recovered", "filter", f.Name, "path", m.Path, "panic", rec)
			}
		}
	}()
	f.Target(ctx, m)
}
