// Package api implements the HTTP admin API of a motion node.
//
// This package provides:
//   - Machine status, key reads and writes, operating mode changes
//   - Slave registry listing, registration and removal
//   - The attribute map of the local drive
//   - Process report (/api/v1/system) and Prometheus metrics (/metrics)
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// Every write goes through the same Machine methods the protocol commands
// use, so key routing, access checks and the fatal interlock apply to HTTP
// callers too.
package api
