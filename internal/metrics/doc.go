// Package metrics exposes run progress as Prometheus collectors.
//
// Collectors are registered on a caller-supplied registry (or a private one),
// never the global default, so concurrent runs and tests do not collide.
// A finished run can be dumped in the node-exporter textfile format with
// WriteTextfile.
package metrics
