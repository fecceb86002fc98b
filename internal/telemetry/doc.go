// Package telemetry fans machine events out to Prometheus and InfluxDB.
//
// Recorder implements the telemetry and observer interfaces of the
// machine, slave, driver and correlation packages. Either backend may be
// absent: events for a missing backend are dropped.
//
// Sampler periodically reads a fixed set of drive keys and records their
// numeric values as drive_value points.
package telemetry
