// Package master implements the cyclic engine (component C8) and the
// application façade (component C10): composing and dispatching the
// process-image frame once per tick, reconciling working-counter status,
// and driving the acyclic arbiter and per-slave lifecycle FSMs from the
// same scheduling loop (spec.md §4.8, §4.10, §5).
package master

import (
	"time"

	"github.com/go-ecat/ecmaster/domain"
	"github.com/go-ecat/ecmaster/frame"
	"github.com/go-ecat/ecmaster/wire"
)

// WKCStatus is the three-valued working-counter aggregation spec.md §9
// fixes in place of the source's several slightly different schemes.
type WKCStatus uint8

const (
	WKCZero WKCStatus = iota
	WKCIncomplete
	WKCComplete
)

func (s WKCStatus) String() string {
	switch s {
	case WKCZero:
		return "zero"
	case WKCIncomplete:
		return "incomplete"
	case WKCComplete:
		return "complete"
	default:
		return "wkc<invalid>"
	}
}

// TickStatus is the outcome of one Tick call (spec.md §4.10).
type TickStatus uint8

const (
	TickOK TickStatus = iota
	TickPartial
	TickTimedOut
	TickLinkDown
)

func (s TickStatus) String() string {
	switch s {
	case TickOK:
		return "ok"
	case TickPartial:
		return "partial"
	case TickTimedOut:
		return "timed_out"
	case TickLinkDown:
		return "link_down"
	default:
		return "tick<invalid>"
	}
}

// domainRuntime pairs a registered domain with its expected working counter
// and the frame descriptor it rides each tick.
type domainRuntime struct {
	dom        *domain.Domain
	expectWKC  uint16
	desc       *frame.Descriptor
	lastStatus WKCStatus
}

// maxFrameBudget is the remaining-capacity bound spec.md §4.8 step 2
// applies when appending acyclic sub-commands to the cyclic frame.
const maxFrameBudget = 1470

// Tick runs one cyclic exchange: compose each domain's logical-read-write
// sub-command, append whatever acyclic sub-commands mailboxReady returns
// within the frame budget (none: acyclic requests travel in their own
// frames, see mailboxReady), dispatch, and reconcile results. It never
// allocates descriptors beyond the pool's fixed set and returns promptly —
// timeout is enforced by the dispatcher's configured budget, not by this
// call blocking.
func (m *Master) Tick(now time.Time) (TickStatus, error) {
	if !m.activated {
		return TickLinkDown, errNotActivated
	}
	start := now

	used := 0
	var descs []*frame.Descriptor

	for _, dr := range m.domains {
		d, err := m.pool.Acquire()
		if err != nil {
			m.releaseAll(descs)
			return TickLinkDown, err
		}
		d.Opcode = wire.OpLogicalReadWrite
		d.Addr = wire.LogicalAddr(dr.dom.LogicalBase())
		d.SetPayload(dr.dom.Image())
		dr.desc = d
		used += wire.SubCommandHeaderSize + len(dr.dom.Image()) + wire.WorkingCounterSize
		descs = append(descs, d)
	}

	for _, sub := range m.mailboxReady(maxFrameBudget - used) {
		used += wire.SubCommandHeaderSize + len(sub.Payload) + wire.WorkingCounterSize
		descs = append(descs, sub)
	}

	if len(descs) == 0 {
		return TickOK, nil
	}

	if err := m.dispatcher.Send(now, descs); err != nil {
		m.releaseAll(descs)
		return TickLinkDown, err
	}

	matched, err := m.dispatcher.Poll(now)
	status := TickOK
	if err != nil {
		status = TickPartial
	}
	if matched < len(descs) {
		status = TickPartial
	}

	for _, dr := range m.domains {
		switch dr.desc.Phase {
		case frame.PhaseReceived:
			copy(dr.dom.Image(), dr.desc.Payload())
			dr.lastStatus = classifyWKC(dr.desc.WorkingCounter, dr.expectWKC)
		case frame.PhaseTimeout:
			dr.lastStatus = WKCZero
			status = TickTimedOut
		case frame.PhaseError:
			dr.lastStatus = WKCZero
			status = TickPartial
		}
		if dr.desc.Phase.IsTerminal() {
			m.pool.Release(dr.desc)
		}
		dr.desc = nil
		m.metrics.observeDomain(dr.dom.Name, dr.lastStatus)
	}

	m.reconcileMailbox(now, descs)
	m.releaseTerminalMailbox(descs)

	m.metrics.observeTick(status, now.Sub(start))
	m.metrics.observeInFlight(m.pool.InFlight())

	return status, nil
}

// classifyWKC maps a received working counter against what was expected
// into the three-valued status spec.md §9 calls for.
func classifyWKC(got, expect uint16) WKCStatus {
	switch {
	case got == 0:
		return WKCZero
	case got < expect:
		return WKCIncomplete
	default:
		return WKCComplete
	}
}

func (m *Master) releaseAll(descs []*frame.Descriptor) {
	for _, d := range descs {
		d.Phase = frame.PhaseError
		m.pool.Release(d)
	}
}
