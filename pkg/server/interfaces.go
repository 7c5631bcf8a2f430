package server

// Conn is the transport-side handle for one connected client. The event
// loop is the only writer; implementations only need to make Close safe
// to call concurrently with a write.
type Conn interface {
	// WriteText delivers one text frame. Delivery is best-effort: the
	// broadcast path deliberately discards per-recipient errors.
	WriteText(data []byte) error
	Close() error
}
