package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSetpoint   = "slave_setpoint"
	MeasurementPing       = "slave_ping"
	MeasurementSlaveError = "slave_error"
	MeasurementFatal      = "machine_fatal"
	MeasurementDrive      = "drive_value"
)

// WritePoint records an arbitrary point with the node tag added.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	all["node"] = c.node

	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, ts))
}

// WriteSetpoint records a value forwarded by a master to a slave.
func (c *Client) WriteSetpoint(slave, key string, value any) {
	c.WritePoint(MeasurementSetpoint,
		map[string]string{"slave": slave, "key": key},
		map[string]any{"value": value},
		time.Now())
}

// WritePingLatency records the round trip of a /slave/ping.
func (c *Client) WritePingLatency(slave string, rtt time.Duration) {
	c.WritePoint(MeasurementPing,
		map[string]string{"slave": slave},
		map[string]any{"rtt_ms": float64(rtt.Microseconds()) / 1000},
		time.Now())
}

// WriteSlaveError records a failed driver operation on a slave.
func (c *Client) WriteSlaveError(slave, op string, consecutive int) {
	c.WritePoint(MeasurementSlaveError,
		map[string]string{"slave": slave, "op": op},
		map[string]any{"consecutive": consecutive},
		time.Now())
}

// WriteFatal records a trip of the fleet-wide fatal state.
func (c *Client) WriteFatal(cause string) {
	c.WritePoint(MeasurementFatal,
		nil,
		map[string]any{"cause": cause, "tripped": true},
		time.Now())
}

// WriteDriveValue records a value read from the local drive.
func (c *Client) WriteDriveValue(key string, value float64) {
	c.WritePoint(MeasurementDrive,
		map[string]string{"key": key},
		map[string]any{"value": value},
		time.Now())
}
