package modbus

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	gomodbus "github.com/goburrow/modbus"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Backend reads and writes whole netdata blocks.
type Backend interface {
	Connect(ctx context.Context) error
	Close() error
	ReadBlock(ctx context.Context, address uint16) ([]byte, error)
	WriteBlock(ctx context.Context, address uint16, data []byte) error
}

// TCPBackend talks Modbus TCP to a drive using holding registers
// (function codes 3 and 16).
type TCPBackend struct {
	address string
	unitID  uint8
	timeout time.Duration

	mu      sync.Mutex
	handler *gomodbus.TCPClientHandler
	client  gomodbus.Client
}

// NewTCPBackend creates an unconnected backend for cfg. A zero unit id is
// derived from the drive address.
func NewTCPBackend(cfg driver.Config) *TCPBackend {
	unitID := cfg.UnitID
	if unitID == 0 {
		unitID = UnitIDFromHost(cfg.Host)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &TCPBackend{
		address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		unitID:  unitID,
		timeout: timeout,
	}
}

// UnitIDFromHost returns the last octet of an IPv4 host, or 1.
func UnitIDFromHost(host string) uint8 {
	ip := net.ParseIP(host).To4()
	if ip == nil || ip[3] == 0 {
		return 1
	}
	return ip[3]
}

// Connect opens the TCP connection.
func (b *TCPBackend) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handler != nil {
		b.handler.Close() //nolint:errcheck // reconnecting
	}

	h := gomodbus.NewTCPClientHandler(b.address)
	h.Timeout = b.timeout
	h.SlaveId = b.unitID
	if err := h.Connect(); err != nil {
		return fmt.Errorf("%w: connecting %s: %w", driver.ErrDriver, b.address, err)
	}
	b.handler = h
	b.client = gomodbus.NewClient(h)
	return nil
}

// Close closes the connection.
func (b *TCPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handler == nil {
		return nil
	}
	err := b.handler.Close()
	b.handler, b.client = nil, nil
	return err
}

// ReadBlock reads the two registers at address.
func (b *TCPBackend) ReadBlock(ctx context.Context, address uint16) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil, driver.ErrNotConnected
	}
	data, err := b.client.ReadHoldingRegisters(address, netdata.RegistersPerNetdata)
	if err != nil {
		return nil, fmt.Errorf("%w: reading registers %d: %w", driver.ErrDriver, address, err)
	}
	if len(data) != netdata.BlockSize {
		return nil, fmt.Errorf("%w: reading registers %d: got %d bytes", driver.ErrDriver, address, len(data))
	}
	return data, nil
}

// WriteBlock writes the two registers at address.
func (b *TCPBackend) WriteBlock(ctx context.Context, address uint16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) != netdata.BlockSize {
		return fmt.Errorf("%w: block of %d bytes", driver.ErrDriver, len(data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return driver.ErrNotConnected
	}
	if _, err := b.client.WriteMultipleRegisters(address, netdata.RegistersPerNetdata, data); err != nil {
		return fmt.Errorf("%w: writing registers %d: %w", driver.ErrDriver, address, err)
	}
	return nil
}
