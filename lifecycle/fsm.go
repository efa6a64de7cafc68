// Package lifecycle drives each slave's mandatory state progression
// (component C5): unknown -> init -> preop -> safeop -> op, with an
// acknowledge recovery transition when a slave refuses a requested change.
// The FSM is cooperative: Step issues at most one wire transaction and
// returns; nothing here blocks on I/O (spec.md §4.5).
package lifecycle

import (
	"fmt"

	"github.com/go-ecat/ecmaster/coe"
	"github.com/go-ecat/ecmaster/slave"
)

// MaxRetries bounds how many times the FSM retries a state change that is
// refused or not yet reported before giving up (spec.md §4.5). Each retry
// is one Step call, so retries are spaced by whatever cadence the caller
// steps the FSM at; the FSM itself does not read RetryInterval.
const (
	MaxRetries    = 100
	RetryInterval = 10_000 // nanoseconds (10 microseconds); not consulted by the FSM
)

// Register offsets the core uses to drive a slave through its lifecycle
// (spec.md §6).
const (
	RegControl = 0x0120
	RegStatus  = 0x0130
)

// status bits within RegStatus.
const (
	statusChangeRefused = 0x10
)

type step uint8

const (
	stepWriteControl step = iota
	stepPollStatus
	stepAcknowledgeWrite
	stepAcknowledgePoll
	stepRunPreOpConfig
	stepRunSafeOpConfig
	stepEnterOp
	stepSettled
)

// Transport is the narrow wire access the FSM needs to drive a state
// change: node-level register read/write, addressed by station address.
type Transport interface {
	WriteRegister(station uint16, offset uint16, data []byte) error
	ReadRegister(station uint16, offset uint16, length int) ([]byte, error)
}

// FSM drives one slave's lifecycle. It embeds the sub-tasks gated by state
// entry: the parameter-object sub-FSM at preop, and sync-manager page
// writes at safeop. No memory-mapper pages are written.
type FSM struct {
	s *slave.Slave

	step    step
	retries int

	// pendingPreOp drives the parameter-object read/config pass while the
	// FSM sits at preop, one coe.Transactor-backed action per Step.
	pendingPreOp *preOpDriver

	// safeOpPages is the precomputed list of 8-byte sync-manager pages
	// remaining to issue at safeop; it holds no memory-mapper pages.
	safeOpPages [][]byte
	safeOpIdx   int

	lastErr error
}

// New constructs an FSM that will drive s toward target.
func New(s *slave.Slave, target slave.State) *FSM {
	s.TargetState = target
	return &FSM{s: s, step: stepWriteControl}
}

// Done reports whether the slave has reached its target state (or a
// terminal failure state after exhausting retries).
func (f *FSM) Done() bool {
	return f.s.CurrentState == f.s.TargetState || f.lastErr != nil
}

// Err returns the last failure the FSM gave up on, if any.
func (f *FSM) Err() error {
	return f.lastErr
}

// Retarget redirects a settled or in-progress FSM toward a new target
// state, restarting the step machine from its first stage. Used by the
// host-interface "state" command to request a lifecycle change on a
// slave already under management.
func (f *FSM) Retarget(target slave.State) {
	f.s.TargetState = target
	f.step = stepWriteControl
	f.retries = 0
	f.lastErr = nil
}

// Step executes at most one wire transaction and returns. It must be called
// repeatedly (typically once per master tick) until Done reports true.
func (f *FSM) Step(t Transport) {
	if f.Done() {
		return
	}
	switch f.step {
	case stepWriteControl:
		f.writeControl(t)
	case stepPollStatus:
		f.pollStatus(t)
	case stepAcknowledgeWrite:
		f.acknowledgeWrite(t)
	case stepAcknowledgePoll:
		f.acknowledgePoll(t)
	case stepRunPreOpConfig:
		f.runPreOpConfig(t)
	case stepRunSafeOpConfig:
		f.runSafeOpConfig(t)
	case stepEnterOp:
		f.enterOp()
	}
}

func (f *FSM) nextRequestedState() slave.State {
	return f.s.CurrentState + 1
}

func (f *FSM) writeControl(t Transport) {
	target := f.nextRequestedState()
	err := t.WriteRegister(f.s.StationAddress, RegControl, []byte{byte(target)})
	if err != nil {
		f.fail(fmt.Errorf("lifecycle: write control state=%s: %w", target, err))
		return
	}
	f.step = stepPollStatus
}

func (f *FSM) pollStatus(t Transport) {
	b, err := t.ReadRegister(f.s.StationAddress, RegStatus, 1)
	if err != nil {
		f.fail(fmt.Errorf("lifecycle: poll status: %w", err))
		return
	}
	status := b[0]
	if status&statusChangeRefused != 0 {
		f.step = stepAcknowledgeWrite
		return
	}
	want := f.nextRequestedState()
	if slave.State(status&0x0F) != want {
		f.retries++
		if f.retries >= MaxRetries {
			f.fail(fmt.Errorf("lifecycle: state %s not reached after %d retries", want, MaxRetries))
		}
		return // stay in stepPollStatus; caller retries next tick
	}
	f.retries = 0
	f.onStateEntered(want)
}

func (f *FSM) acknowledgeWrite(t Transport) {
	err := t.WriteRegister(f.s.StationAddress, RegControl, []byte{byte(slave.StateAcknowledge)})
	if err != nil {
		f.fail(fmt.Errorf("lifecycle: acknowledge write: %w", err))
		return
	}
	f.step = stepAcknowledgePoll
}

func (f *FSM) acknowledgePoll(t Transport) {
	b, err := t.ReadRegister(f.s.StationAddress, RegStatus, 1)
	if err != nil {
		f.fail(fmt.Errorf("lifecycle: acknowledge poll: %w", err))
		return
	}
	if b[0]&statusChangeRefused != 0 {
		f.retries++
		if f.retries >= MaxRetries {
			f.fail(fmt.Errorf("lifecycle: acknowledge did not clear refusal after %d retries", MaxRetries))
			return
		}
		f.step = stepAcknowledgeWrite
		return
	}
	f.retries = 0
	f.step = stepWriteControl
}

// onStateEntered records the transition and, for states with a gated
// sub-task, starts it instead of immediately proceeding.
func (f *FSM) onStateEntered(newState slave.State) {
	f.s.CurrentState = newState
	switch newState {
	case slave.StateInit:
		// Clear mailbox, reset error counters: modeled as already done by
		// the write/poll transaction itself (no further transfer needed).
		f.advanceOrFinish()
	case slave.StatePreOp:
		f.pendingPreOp = newPreOpDriver(f.s)
		f.step = stepRunPreOpConfig
	case slave.StateSafeOp:
		f.safeOpPages = buildSafeOpPages(f.s)
		f.safeOpIdx = 0
		f.step = stepRunSafeOpConfig
	case slave.StateOp:
		f.step = stepEnterOp
	default:
		f.advanceOrFinish()
	}
}

func (f *FSM) advanceOrFinish() {
	if f.s.CurrentState == f.s.TargetState {
		return
	}
	f.step = stepWriteControl
}

func (f *FSM) runPreOpConfig(t Transport) {
	tx, ok := t.(coe.Transactor)
	if !ok && (f.pendingPreOp.reading != nil || f.pendingPreOp.configuring != nil) {
		f.fail(fmt.Errorf("lifecycle: preop configuration: transport has no object-dictionary access"))
		return
	}
	done, err := f.pendingPreOp.step(tx)
	if err != nil {
		f.fail(fmt.Errorf("lifecycle: preop configuration: %w", err))
		return
	}
	if done {
		f.advanceOrFinish()
	}
}

func (f *FSM) runSafeOpConfig(t Transport) {
	if f.safeOpIdx >= len(f.safeOpPages) {
		f.advanceOrFinish()
		return
	}
	page := f.safeOpPages[f.safeOpIdx]
	// Page writes are laid out contiguously starting at the sync-manager
	// register file; see buildSafeOpPages for the exact offsets used.
	offset := uint16(0x0600 + f.safeOpIdx*len(page))
	if err := t.WriteRegister(f.s.StationAddress, offset, page); err != nil {
		f.fail(fmt.Errorf("lifecycle: safeop page %d: %w", f.safeOpIdx, err))
		return
	}
	f.safeOpIdx++
	if f.safeOpIdx >= len(f.safeOpPages) {
		f.advanceOrFinish()
	}
}

func (f *FSM) enterOp() {
	f.s.CurrentState = slave.StateOp
}

func (f *FSM) fail(err error) {
	f.lastErr = err
}

// preOpDriver wraps the nested read/config parameter-object sub-FSM for
// every non-mailbox sync manager of a slave, running them in sync-manager
// index order.
type preOpDriver struct {
	s           *slave.Slave
	smIdx       int
	reading     *coe.ReadPassFSM
	configuring *coe.ConfigPassFSM
	desired     []slave.PDODescriptor
}

func newPreOpDriver(s *slave.Slave) *preOpDriver {
	d := &preOpDriver{s: s}
	d.startNextSyncManager()
	return d
}

func (d *preOpDriver) startNextSyncManager() {
	for d.smIdx < len(d.s.SyncManagers) {
		sm := d.s.SyncManagers[d.smIdx]
		if !sm.ReservedMbox {
			d.reading = coe.NewReadPassFSM(sm.Index)
			return
		}
		d.smIdx++
	}
	d.reading = nil
}

// step performs one dictionary access and reports whether the whole preop
// pass (every non-mailbox sync manager) has finished.
func (d *preOpDriver) step(t coe.Transactor) (bool, error) {
	if d.reading != nil {
		if err := d.reading.Step(t); err != nil {
			return false, err
		}
		if !d.reading.Done() {
			return false, nil
		}
		current := d.reading.Result()
		desired := d.s.SyncManagers[d.smIdx].PDOs
		d.s.SyncManagers[d.smIdx].PDOs = current
		if coe.EqualAssignment(current, desired) {
			d.reading = nil
			d.smIdx++
			d.startNextSyncManager()
			return d.reading == nil && d.configuring == nil, nil
		}
		d.desired = desired
		d.configuring = coe.NewConfigPassFSM(d.s.SyncManagers[d.smIdx].Index, desired)
		d.reading = nil
		return false, nil
	}
	if d.configuring != nil {
		if err := d.configuring.Step(t); err != nil {
			return false, err
		}
		if !d.configuring.Done() {
			return false, nil
		}
		d.s.SyncManagers[d.smIdx].PDOs = d.desired
		d.configuring = nil
		d.desired = nil
		d.smIdx++
		d.startNextSyncManager()
		return d.reading == nil && d.configuring == nil, nil
	}
	return true, nil
}

// buildSafeOpPages lays out one 8-byte sync-manager configuration page per
// sync manager of a slave, in sync-manager order (physical start, length,
// direction byte, status byte, enable word). It builds no memory-mapper
// pages.
func buildSafeOpPages(s *slave.Slave) [][]byte {
	pages := make([][]byte, 0, len(s.SyncManagers))
	for _, sm := range s.SyncManagers {
		page := make([]byte, 8)
		putU16(page[0:2], sm.PhysStart)
		putU16(page[2:4], sm.Length)
		if sm.Direction == slave.DirectionOutput {
			page[4] = 1
		}
		page[5] = 0
		if sm.Enable {
			putU16(page[6:8], 1)
		}
		pages = append(pages, page)
	}
	return pages
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
