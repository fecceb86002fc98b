// Package influxdb records motion telemetry in InfluxDB 2.x.
//
// A master records every setpoint it forwards to a slave, the latency of
// slave pings, slave driver errors and trips of the fleet-wide fatal
// state. Points are tagged with the node that wrote them.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, "10.0.0.12_6969")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSetpoint("10.0.0.13:6969", "velocity_ref", 1500.0)
package influxdb
