// Package metrics defines the sinks that observe a simulation run. A sink
// receives one TickStats per tick and, when it implements RunRecorder, the
// start and end of each run. Sinks are built from configuration through a
// registry; several configured sinks are combined in a MultiSink.
package metrics
