package pulse

// EdgeHandler receives the monotonic millisecond timestamp of one raw sensor
// edge. Implementations must be fast and non-blocking; debounce happens in
// the Counter, not here.
type EdgeHandler func(nowMillis int64)

// Source delivers raw sensor edges to a handler.
type Source interface {
	// Start begins edge delivery. The handler is invoked once per detected
	// rising edge until Close is called.
	Start(handler EdgeHandler) error

	// Close stops edge delivery and releases hardware resources.
	Close() error
}
