package master

import (
	"fmt"
	"time"

	"github.com/go-ecat/ecmaster/coe"
	"github.com/go-ecat/ecmaster/frame"
	"github.com/go-ecat/ecmaster/mailbox"
	"github.com/go-ecat/ecmaster/wire"
)

// registerRoundTrips bounds how many dispatcher polls a register transaction
// waits through before giving up. The dispatcher's own send/sweep timeout
// resolves the descriptor long before this bound is reached on a live link;
// it exists only to keep a dead link from spinning forever.
const registerRoundTrips = 64

// registerTransactor issues one dedicated single-sub-command frame per
// register access, through the same pool and dispatcher the cyclic engine
// uses. It implements lifecycle.Transport directly, and backs the coeAdapter
// that approximates object-dictionary access as register-addressed access
// (see DESIGN.md).
type registerTransactor struct {
	m *Master
}

func newRegisterTransactor(m *Master) *registerTransactor {
	return &registerTransactor{m: m}
}

// WriteRegister implements lifecycle.Transport.
func (r *registerTransactor) WriteRegister(station, offset uint16, data []byte) error {
	_, err := r.roundTrip(wire.OpNodeWrite, station, offset, data)
	return err
}

// ReadRegister implements lifecycle.Transport.
func (r *registerTransactor) ReadRegister(station, offset uint16, length int) ([]byte, error) {
	return r.roundTrip(wire.OpNodeRead, station, offset, make([]byte, length))
}

func (r *registerTransactor) roundTrip(op wire.Opcode, station, offset uint16, payload []byte) ([]byte, error) {
	d, err := r.m.pool.Acquire()
	if err != nil {
		return nil, err
	}
	d.Opcode = op
	d.Addr = wire.PhysicalAddr(station, offset)
	d.SetPayload(payload)

	now := time.Now()
	if err := r.m.dispatcher.Send(now, []*frame.Descriptor{d}); err != nil {
		d.Phase = frame.PhaseError
		r.m.pool.Release(d)
		return nil, err
	}

	for i := 0; i < registerRoundTrips && !d.Phase.IsTerminal(); i++ {
		now = time.Now()
		r.m.dispatcher.Poll(now)
	}

	if !d.Phase.IsTerminal() {
		r.m.pool.Release(d)
		return nil, fmt.Errorf("master: register transaction at 0x%04x did not resolve", offset)
	}

	var result []byte
	var outcome error
	switch d.Phase {
	case frame.PhaseReceived:
		result = append([]byte(nil), d.Payload()...)
	case frame.PhaseTimeout:
		outcome = fmt.Errorf("master: register transaction at 0x%04x timed out", offset)
	default:
		outcome = fmt.Errorf("master: register transaction at 0x%04x failed", offset)
	}
	r.m.pool.Release(d)
	return result, outcome
}

// registerStepper adapts a register read or write to mailbox.Stepper,
// completing in a single Step call since registerTransactor already
// performs the whole round trip synchronously.
type registerStepper struct {
	rt      *registerTransactor
	station uint16
	offset  uint16
	length  int
	write   []byte

	result []byte
	req    *mailbox.Request
}

// SetRequest binds the Request this stepper ultimately resolves, so a
// successful read can hand its bytes back through Request.Payload without
// every caller needing a stepper-specific accessor (see hostapi).
func (s *registerStepper) SetRequest(r *mailbox.Request) { s.req = r }

func (s *registerStepper) Step(now time.Time) (done, failed bool, abort mailbox.AbortCode, err error) {
	_ = now
	if s.write != nil {
		if err := s.rt.WriteRegister(s.station, s.offset, s.write); err != nil {
			return true, true, mailbox.AbortProtocolError, err
		}
		return true, false, mailbox.AbortNone, nil
	}
	data, err := s.rt.ReadRegister(s.station, s.offset, s.length)
	if err != nil {
		return true, true, mailbox.AbortProtocolError, err
	}
	s.result = data
	if s.req != nil {
		s.req.Payload = data
	}
	return true, false, mailbox.AbortNone, nil
}

// Result returns the bytes read by a completed register read stepper.
func (s *registerStepper) Result() []byte {
	return s.result
}

// parameterStepper adapts a parameter-object (object dictionary) read or
// write to mailbox.Stepper, through the coe.Transactor-shaped adapter over
// register access.
type parameterStepper struct {
	t        coe.Transactor
	index    uint16
	subindex uint8
	write    []byte

	result []byte
	req    *mailbox.Request
}

// SetRequest binds the Request this stepper ultimately resolves (see
// registerStepper.SetRequest).
func (s *parameterStepper) SetRequest(r *mailbox.Request) { s.req = r }

func (s *parameterStepper) Step(now time.Time) (done, failed bool, abort mailbox.AbortCode, err error) {
	_ = now
	if s.write != nil {
		if err := s.t.WriteEntry(s.index, s.subindex, s.write); err != nil {
			return true, true, mailbox.AbortProtocolError, err
		}
		return true, false, mailbox.AbortNone, nil
	}
	data, err := s.t.ReadEntry(s.index, s.subindex)
	if err != nil {
		return true, true, mailbox.AbortProtocolError, err
	}
	s.result = data
	if s.req != nil {
		s.req.Payload = data
	}
	return true, false, mailbox.AbortNone, nil
}

// Result returns the bytes read by a completed parameter-object read
// stepper.
func (s *parameterStepper) Result() []byte {
	return s.result
}
