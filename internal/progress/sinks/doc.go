// Package sinks implements concrete progress consumers: structured logging,
// Prometheus metrics, and a bounded in-memory ring for the debug listener.
// Each sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
