// Package device abstracts the physical link a frame travels over. The
// frame dispatcher only needs PrepareTx/Transmit/Received (frame.Device);
// this package adds Poll, which implementations use to pull bytes off the
// wire into an internal buffer so Received can be a cheap non-blocking
// check, matching the teacher's `cs104` split between a blocking I/O
// goroutine and a non-blocking consumer.
package device

// Device is implemented by every link backend this master can use: an
// in-memory loopback for tests, and a raw AF_PACKET socket on Linux.
type Device interface {
	// PrepareTx returns a buffer of at least n bytes the caller may write
	// the next outgoing frame into before calling Transmit.
	PrepareTx(n int) ([]byte, error)
	// Transmit sends the first n bytes prepared by PrepareTx.
	Transmit(n int) error
	// Poll pulls at most one frame off the underlying link into the
	// device's internal buffer, making it visible to Received. It never
	// blocks past the supplied deadline semantics of the implementation.
	Poll()
	// Received returns the most recently polled frame, if any, and clears
	// it — a second call without an intervening Poll returns ok=false.
	Received() ([]byte, bool)
	// Close releases any underlying OS resources.
	Close() error
}
