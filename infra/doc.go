// Package infra holds the adapters between the simulation core and the
// outside world: report handlers, metrics sinks, the status server and the
// zerolog logger. Core packages never import infra.
package infra
