// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the orchestrator uses to report the attempt lifecycle.
// Events are batched on a background goroutine and fanned out to pluggable
// sinks such as structured logs, Prometheus metrics, or an in-memory ring
// served by the debug listener.
package progress
