package device

// Loopback is an in-memory Device for tests and the simulated-ring examples:
// whatever is transmitted becomes available as received, optionally passed
// through a Respond hook first so tests can model slave behaviour (flipping
// payload bytes, bumping a working counter, dropping frames entirely).
type Loopback struct {
	buf [1536]byte

	// Respond, if set, is invoked with a copy of every transmitted frame
	// before it is queued for Received. Returning false drops the frame,
	// simulating a broken ring segment.
	Respond func(frame []byte) bool

	pending []byte
	closed  bool
}

// NewLoopback constructs a ready-to-use Loopback device.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) PrepareTx(n int) ([]byte, error) {
	if n > len(l.buf) {
		return nil, ErrFrameTooLarge
	}
	return l.buf[:n], nil
}

func (l *Loopback) Transmit(n int) error {
	frame := make([]byte, n)
	copy(frame, l.buf[:n])
	if l.Respond != nil {
		if !l.Respond(frame) {
			return nil
		}
	}
	l.pending = frame
	return nil
}

// Poll is a no-op for Loopback: Transmit already queues the response
// synchronously, since there is no real link latency to wait out.
func (l *Loopback) Poll() {}

func (l *Loopback) Received() ([]byte, bool) {
	if l.pending == nil {
		return nil, false
	}
	f := l.pending
	l.pending = nil
	return f, true
}

func (l *Loopback) Close() error {
	l.closed = true
	return nil
}
