package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Logger is the optional logger of the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Driver.
type Options struct {
	Backend Backend

	// Map describes the drive registers. Nil uses netdata.Default().
	Map *netdata.Map

	Retry    driver.RetryPolicy
	Observer driver.Observer
	Logger   Logger
}

// Driver maps netdata keys onto register blocks of a Modbus drive.
//
// Composite blocks are rebuilt from the last written word, so writing one
// subkey keeps its siblings. Forget fields are pulsed and never cached as
// set; unique fields are not rewritten when unchanged.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Writes are serialised so a
//     read-modify-write of a composite block is atomic.
type Driver struct {
	backend  Backend
	nmap     *netdata.Map
	retry    driver.RetryPolicy
	observer driver.Observer

	mu        sync.Mutex
	cache     map[string]uint32
	connected bool

	logger   Logger
	loggerMu sync.RWMutex
}

var _ driver.Driver = (*Driver)(nil)

// New creates an unconnected driver.
func New(opts Options) *Driver {
	m := opts.Map
	if m == nil {
		m = netdata.Default()
	}
	return &Driver{
		backend:  opts.Backend,
		nmap:     m,
		retry:    opts.Retry,
		observer: opts.Observer,
		cache:    make(map[string]uint32),
		logger:   opts.Logger,
	}
}

// Factory returns a driver.Factory building TCP drivers that share m,
// retry and observer.
func Factory(m *netdata.Map, retry driver.RetryPolicy, observer driver.Observer, logger Logger) driver.Factory {
	return func(cfg driver.Config) (driver.Driver, error) {
		return New(Options{
			Backend:  NewTCPBackend(cfg),
			Map:      m,
			Retry:    retry,
			Observer: observer,
			Logger:   logger,
		}), nil
	}
}

// SetLogger replaces the logger.
func (d *Driver) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Driver) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

// Connect connects the backend following the retry policy.
func (d *Driver) Connect(ctx context.Context) error {
	err := d.retry.Do(ctx, func() error {
		return d.backend.Connect(ctx)
	}, func(err error, next time.Duration) {
		if logger := d.getLogger(); logger != nil {
			logger.Warn("drive connection failed, retrying", "error", err, "retry_in", next)
		}
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()

	if logger := d.getLogger(); logger != nil {
		logger.Info("drive connected", "map", d.nmap.Name())
	}
	return nil
}

// Close disconnects the backend and forgets the cache.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.connected = false
	d.cache = make(map[string]uint32)
	d.mu.Unlock()
	return d.backend.Close()
}

// Attributes lists the keys of the netdata map.
func (d *Driver) Attributes() []netdata.Attribute {
	return d.nmap.Attributes()
}

// Map returns the netdata map of the drive.
func (d *Driver) Map() *netdata.Map {
	return d.nmap
}

func (d *Driver) observe(op string, start time.Time, err error) {
	if d.observer != nil {
		d.observer.ObserveDriver(op, time.Since(start).Seconds(), err)
	}
}

func (d *Driver) isConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Get reads key from the drive. A bare composite section returns a map of
// its readable subkeys.
func (d *Driver) Get(ctx context.Context, key string) (v any, err error) {
	start := time.Now()
	defer func() { d.observe("get", start, err) }()

	ref, err := d.nmap.Resolve(key)
	if err != nil {
		return nil, err
	}
	if !d.isConnected() {
		return nil, driver.ErrNotConnected
	}

	if ref.Whole {
		fields := readableFields(ref.Section)
		if len(fields) == 0 {
			return nil, &driver.WriteOnlyError{Key: key}
		}
		word, err := d.readWord(ctx, ref.Section)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			out[f.Name] = netdata.Extract(word, f)
		}
		return out, nil
	}

	if !ref.Field.Access.Readable() {
		return nil, &driver.WriteOnlyError{Key: key}
	}
	word, err := d.readWord(ctx, ref.Section)
	if err != nil {
		return nil, err
	}
	return netdata.Extract(word, ref.Field), nil
}

// Set writes value to key.
func (d *Driver) Set(ctx context.Context, key string, value any) (err error) {
	start := time.Now()
	defer func() { d.observe("set", start, err) }()

	ref, err := d.nmap.Resolve(key)
	if err != nil {
		return err
	}
	if ref.Whole {
		return fmt.Errorf("%w: %s", driver.ErrSubkeyRequired, key)
	}
	if !ref.Field.Access.Writable() {
		return &driver.ReadOnlyError{Key: key}
	}
	v, err := netdata.Coerce(ref.Field, value)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return driver.ErrNotConnected
	}

	s := ref.Section
	if !s.Composite() {
		word := netdata.EncodeWord(ref.Field, v)
		if err := d.writeWord(ctx, s, word); err != nil {
			return err
		}
		d.cache[s.Name] = word
		return nil
	}

	base, cached, err := d.baseWord(ctx, s)
	if err != nil {
		return err
	}

	f := ref.Field
	if f.Unique && cached && netdata.Extract(base, f) == v {
		if logger := d.getLogger(); logger != nil {
			logger.Debug("unique key unchanged, write skipped", "key", key, "value", v)
		}
		return nil
	}

	word := netdata.Insert(base, f, v)
	if err := d.writeWord(ctx, s, word); err != nil {
		return err
	}

	if f.Forget {
		word = netdata.Insert(word, f, netdata.DecodeWord(f, 0))
		if err := d.writeWord(ctx, s, word); err != nil {
			// The bit may still be set on the drive; the next write of
			// the block clears it.
			d.cache[s.Name] = word
			return err
		}
	}
	d.cache[s.Name] = word
	return nil
}

// Cached returns the last written value of key without touching the drive.
func (d *Driver) Cached(key string) (any, bool) {
	ref, err := d.nmap.Resolve(key)
	if err != nil || ref.Whole {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	word, ok := d.cache[ref.Section.Name]
	if !ok {
		return nil, false
	}
	return netdata.Extract(word, ref.Field), true
}

// baseWord returns the word a composite write starts from: the cached
// word, or the drive's current word with forget fields cleared. Callers
// hold d.mu.
func (d *Driver) baseWord(ctx context.Context, s *netdata.Section) (word uint32, cached bool, err error) {
	if word, ok := d.cache[s.Name]; ok {
		return word, true, nil
	}
	if len(readableFields(s)) == 0 {
		return 0, false, nil
	}

	word, err = d.readWord(ctx, s)
	if err != nil {
		return 0, false, err
	}
	for _, f := range s.Fields() {
		if f.Forget {
			word = netdata.Insert(word, f, netdata.DecodeWord(f, 0))
		}
	}
	d.cache[s.Name] = word
	return word, true, nil
}

func (d *Driver) readWord(ctx context.Context, s *netdata.Section) (uint32, error) {
	data, err := d.backend.ReadBlock(ctx, s.Address())
	if err != nil {
		return 0, err
	}
	word, err := netdata.Word(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", driver.ErrDriver, err)
	}
	return word, nil
}

func (d *Driver) writeWord(ctx context.Context, s *netdata.Section, word uint32) error {
	return d.backend.WriteBlock(ctx, s.Address(), netdata.Block(word))
}

func readableFields(s *netdata.Section) []netdata.Field {
	var out []netdata.Field
	for _, f := range s.Fields() {
		if f.Access.Readable() {
			out = append(out, f)
		}
	}
	return out
}
