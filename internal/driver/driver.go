package driver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Type names a driver implementation.
type Type string

// Known driver types.
const (
	// TypeModbus drives a local drive over Modbus TCP.
	TypeModbus Type = "modbus"

	// TypeRemote drives the drive of another machine through its
	// /slave/* commands.
	TypeRemote Type = "remote"
)

// ParseType validates a driver type name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeModbus, TypeRemote:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Driver gives keyed access to the attributes of one drive.
//
// Keys are netdata keys ("velocity_ref", "command:enable"). Values are
// float64, int64 or bool; Set also accepts anything netdata.Coerce
// understands.
type Driver interface {
	Connect(ctx context.Context) error
	Close() error
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) error
	Attributes() []netdata.Attribute
}

// Pinger is implemented by drivers that can measure their round trip.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Observer receives one call per driver operation. *metrics.Metrics
// satisfies it.
type Observer interface {
	ObserveDriver(op string, seconds float64, err error)
}

// Config locates a drive.
type Config struct {
	Host    string
	Port    int
	UnitID  uint8
	Timeout time.Duration

	// Options carries free-form per-slave overrides.
	Options map[string]string
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Factory builds an unconnected driver.
type Factory func(cfg Config) (Driver, error)

// Registry maps driver types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

// Register installs the factory of t, replacing any previous one.
func (r *Registry) Register(t Type, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// New builds a driver of type t.
func (r *Registry) New(t Type, cfg Config) (Driver, error) {
	r.mu.RLock()
	f, ok := r.factories[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return f(cfg)
}

// Types lists the registered types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}
