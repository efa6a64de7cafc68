package frame

import (
	"time"

	"github.com/go-ecat/ecmaster/ecerr"
	"github.com/go-ecat/ecmaster/wire"
)

// Device is the narrow surface the dispatcher needs from a network device:
// a buffer to fill before transmit, and a non-blocking check for a received
// frame. The device package provides implementations; frame depends only on
// this interface to stay test-friendly without importing raw sockets.
type Device interface {
	PrepareTx(n int) ([]byte, error)
	Transmit(n int) error
	Received() ([]byte, bool)
}

// DefaultTimeout is the time a dispatcher waits for a frame to return around
// the ring before declaring the descriptors that rode it timed out.
const DefaultTimeout = 2 * time.Millisecond

// outstanding is one transmitted frame awaiting its response, in the exact
// sub-command order it was sent with — the ring always returns a frame with
// the same shape it was sent with, so a FIFO match against the frame that
// produced it is sufficient (spec.md §4.2).
type outstanding struct {
	descs  []*Descriptor
	sentAt time.Time
}

// Dispatcher owns the pool <-> device boundary: it encodes pending
// descriptors into a frame, hands it to the device, and reconciles whatever
// comes back against the frame that produced it.
type Dispatcher struct {
	pool    *Pool
	dev     Device
	timeout time.Duration

	pending []outstanding
	encBuf  [wire.MaxFrameSize]byte
}

// NewDispatcher builds a Dispatcher over pool and dev with DefaultTimeout.
func NewDispatcher(pool *Pool, dev Device) *Dispatcher {
	return &Dispatcher{pool: pool, dev: dev, timeout: DefaultTimeout}
}

// SetTimeout overrides the dispatch timeout (tests use this to avoid
// depending on wall-clock delay).
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Send encodes descs into one frame and transmits it, advancing each
// descriptor to PhaseSent and recording the frame as outstanding.
func (d *Dispatcher) Send(now time.Time, descs []*Descriptor) error {
	if len(descs) == 0 {
		return nil
	}
	subs := make([]wire.SubCommand, len(descs))
	for i, desc := range descs {
		subs[i] = desc.subCommand()
	}
	n, err := wire.EncodeFrame(d.encBuf[:], subs)
	if err != nil {
		return ecerr.New(ecerr.KindProtocolViolation, "frame", err)
	}

	tx, err := d.dev.PrepareTx(n)
	if err != nil {
		return ecerr.New(ecerr.KindLinkDown, "frame", err)
	}
	copy(tx, d.encBuf[:n])
	if err := d.dev.Transmit(n); err != nil {
		return ecerr.New(ecerr.KindLinkDown, "frame", err)
	}

	for _, desc := range descs {
		desc.Phase = PhaseSent
		desc.sentAt = now
	}
	d.pending = append(d.pending, outstanding{descs: descs, sentAt: now})
	return nil
}

// Poll drains at most one received frame from the device and reconciles it
// against the oldest outstanding frame (the match path), then sweeps any
// frame that has exceeded the dispatch timeout (the timeout path). It
// returns the number of descriptors resolved this call: those matched as
// PhaseReceived plus those swept as PhaseTimeout.
func (d *Dispatcher) Poll(now time.Time) (int, error) {
	matched := 0
	if data, ok := d.dev.Received(); ok {
		n, err := d.matchOldest(data)
		matched += n
		if err != nil {
			return matched, err
		}
	}
	matched += d.sweepTimeouts(now)
	return matched, nil
}

// matchOldest reconciles a received frame against the oldest pending frame.
// A decode anomaly means the ring's shape no longer matches what was sent
// (spec.md's topology-change path): the frame is dropped, every descriptor
// that rode it is marked PhaseError, and the caller learns via the returned
// error so it can trigger re-discovery.
func (d *Dispatcher) matchOldest(data []byte) (int, error) {
	if len(d.pending) == 0 {
		return 0, nil
	}
	head := d.pending[0]
	expect := make([]wire.SubCommand, len(head.descs))
	for i, desc := range head.descs {
		expect[i] = desc.subCommand()
	}

	if err := wire.DecodeInto(data, expect); err != nil {
		for _, desc := range head.descs {
			desc.Phase = PhaseError
		}
		d.pending = d.pending[1:]
		return 0, ecerr.New(ecerr.KindTopologyChanged, "frame", err)
	}

	for i, desc := range head.descs {
		desc.WorkingCounter = expect[i].WorkingCounter
		desc.payloadLen = copy(desc.payload[:], expect[i].Payload)
		desc.Phase = PhaseReceived
	}
	d.pending = d.pending[1:]
	return len(head.descs), nil
}

// sweepTimeouts removes every pending frame older than the dispatch timeout
// and marks its descriptors PhaseTimeout.
func (d *Dispatcher) sweepTimeouts(now time.Time) int {
	n := 0
	kept := d.pending[:0]
	for _, f := range d.pending {
		if now.Sub(f.sentAt) > d.timeout {
			for _, desc := range f.descs {
				desc.Phase = PhaseTimeout
				n++
			}
			continue
		}
		kept = append(kept, f)
	}
	d.pending = kept
	return n
}

// PendingFrames reports how many frames are currently awaiting a response.
func (d *Dispatcher) PendingFrames() int {
	return len(d.pending)
}
