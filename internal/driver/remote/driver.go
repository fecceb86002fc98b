package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Requester sends a message and waits for its reply.
// *correlation.Engine satisfies it.
type Requester interface {
	Request(ctx context.Context, m *message.Message) (*message.Message, error)
}

// Options configures a Driver.
type Options struct {
	Requester Requester
	Target    message.Address

	// Map lists the attributes of the remote drive. Nil uses
	// netdata.Default().
	Map *netdata.Map

	Observer driver.Observer
}

// Driver operates the drive of another machine through its /slave/*
// commands. Keys are passed verbatim, so "machine:velocity_ref" is routed
// by the remote machine.
type Driver struct {
	requester Requester
	target    message.Address
	nmap      *netdata.Map
	observer  driver.Observer

	mu        sync.RWMutex
	connected bool
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Pinger = (*Driver)(nil)
)

// New creates a driver for the machine at opts.Target.
func New(opts Options) *Driver {
	m := opts.Map
	if m == nil {
		m = netdata.Default()
	}
	return &Driver{
		requester: opts.Requester,
		target:    opts.Target,
		nmap:      m,
		observer:  opts.Observer,
	}
}

// Factory returns a driver.Factory building remote drivers on requester.
func Factory(requester Requester, observer driver.Observer) driver.Factory {
	return func(cfg driver.Config) (driver.Driver, error) {
		port := cfg.Port
		if port == 0 {
			port = message.DefaultPort
		}
		if cfg.Host == "" {
			return nil, fmt.Errorf("%w: remote driver needs a host", driver.ErrDriver)
		}
		return New(Options{
			Requester: requester,
			Target:    message.Address{Host: cfg.Host, Port: port},
			Observer:  observer,
		}), nil
	}
}

// Target returns the address of the remote machine.
func (d *Driver) Target() message.Address {
	return d.target
}

// Connect marks the driver usable. The transport is connectionless;
// reachability is checked with Ping.
func (d *Driver) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	return nil
}

// Close marks the driver unusable.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return nil
}

// Attributes lists the keys of the remote drive map.
func (d *Driver) Attributes() []netdata.Attribute {
	return d.nmap.Attributes()
}

// Get reads key on the remote machine.
func (d *Driver) Get(ctx context.Context, key string) (v any, err error) {
	start := time.Now()
	defer func() { d.observe("remote_get", start, err) }()

	reply, err := d.request(ctx, message.New(message.PathSlaveGet, key))
	if err != nil {
		return nil, err
	}
	// /slave/get/ok key value
	if len(reply.Args) < 2 {
		return nil, fmt.Errorf("%w: %s reply has %d arguments", driver.ErrDriver, reply.Path, len(reply.Args))
	}
	return reply.Args[1], nil
}

// Set writes value to key on the remote machine.
func (d *Driver) Set(ctx context.Context, key string, value any) (err error) {
	start := time.Now()
	defer func() { d.observe("remote_set", start, err) }()

	_, err = d.request(ctx, message.New(message.PathSlaveSet, key, value))
	return err
}

// Ping measures the round trip to the remote machine.
func (d *Driver) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := d.request(ctx, message.New(message.PathSlavePing)); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Serialnumber asks the remote machine for its serial number.
func (d *Driver) Serialnumber(ctx context.Context) (string, error) {
	v, err := d.Get(ctx, "machine:serialnumber")
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: serialnumber is %T", driver.ErrDriver, v)
	}
	return s, nil
}

func (d *Driver) request(ctx context.Context, m *message.Message) (*message.Message, error) {
	d.mu.RLock()
	connected := d.connected
	d.mu.RUnlock()
	if !connected {
		return nil, driver.ErrNotConnected
	}

	reply, err := d.requester.Request(ctx, m.To(d.target))
	if err != nil {
		return nil, fmt.Errorf("%w: %s to %s: %w", driver.ErrDriver, m.Path, d.target, err)
	}
	return reply, nil
}

func (d *Driver) observe(op string, start time.Time, err error) {
	if d.observer != nil {
		d.observer.ObserveDriver(op, time.Since(start).Seconds(), err)
	}
}
