package emit

// Emitter receives observability events from run execution.
//
// Emitters enable pluggable backends:
//   - Logging: stdout, files (LogEmitter)
//   - Distributed tracing: OpenTelemetry (OTelEmitter)
//   - In-memory capture for tests and dashboards (BufferedEmitter)
//   - Discard (NullEmitter)
//
// Implementations should be:
//   - Non-blocking: never stall the superstep loop
//   - Thread-safe: dispatches within a superstep run concurrently
//   - Resilient: a failing backend must not crash the run
type Emitter interface {
	// Emit sends one observability event to the backend. Emit must not
	// panic; backend errors are handled internally.
	Emit(event Event)
}
