// Package metrics exposes Prometheus collectors for a motion node.
//
// Collectors live on a private registry served by Handler, so tests can
// create independent instances and assert with prometheus/testutil.
package metrics
