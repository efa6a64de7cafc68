package coe

import (
	"fmt"

	"github.com/go-ecat/ecmaster/slave"
)

type readPhase uint8

const (
	readPhaseCount readPhase = iota
	readPhaseIndex
	readPhaseEntryCount
	readPhaseEntry
	readPhaseDone
)

// ReadPassFSM walks a sync manager's current parameter-object assignment
// one dictionary access at a time (spec.md §4.6 "Read pass"). Construct one
// per sync manager being (re)read, then call Step repeatedly until Done
// reports true.
type ReadPassFSM struct {
	syncIndex int

	phase readPhase
	count int
	pos   int

	curPDOIndex uint16
	entryCount  int
	entryPos    int
	curEntries  []slave.PDOEntry

	result []slave.PDODescriptor
}

// NewReadPassFSM starts a read pass for the given sync manager index.
func NewReadPassFSM(syncIndex int) *ReadPassFSM {
	return &ReadPassFSM{syncIndex: syncIndex}
}

// Done reports whether the read pass has finished.
func (f *ReadPassFSM) Done() bool {
	return f.phase == readPhaseDone
}

// Result returns the parameter-object assignment accumulated so far; it is
// complete only once Done reports true.
func (f *ReadPassFSM) Result() []slave.PDODescriptor {
	return f.result
}

// Step performs exactly one dictionary access through t and advances the
// FSM by one micro-step. Calling Step after Done is a no-op.
func (f *ReadPassFSM) Step(t Transactor) error {
	switch f.phase {
	case readPhaseCount:
		b, err := t.ReadEntry(assignmentIndex(f.syncIndex), 0)
		if err != nil {
			return fmt.Errorf("coe: read assignment count sm=%d: %w", f.syncIndex, err)
		}
		if len(b) != 1 {
			return fmt.Errorf("coe: assignment count sm=%d: expected 1 byte, got %d", f.syncIndex, len(b))
		}
		f.count = int(b[0])
		f.pos = 1
		if f.count == 0 {
			f.phase = readPhaseDone
			return nil
		}
		f.phase = readPhaseIndex
		return nil

	case readPhaseIndex:
		b, err := t.ReadEntry(assignmentIndex(f.syncIndex), uint8(f.pos))
		if err != nil {
			return fmt.Errorf("coe: read assignment[%d] sm=%d: %w", f.pos, f.syncIndex, err)
		}
		if len(b) != 2 {
			return fmt.Errorf("coe: assignment[%d] sm=%d: expected 2 bytes, got %d", f.pos, f.syncIndex, len(b))
		}
		f.curPDOIndex = getU16(b)
		f.phase = readPhaseEntryCount
		return nil

	case readPhaseEntryCount:
		b, err := t.ReadEntry(f.curPDOIndex, 0)
		if err != nil {
			return fmt.Errorf("coe: read entry count pdo=0x%04x: %w", f.curPDOIndex, err)
		}
		if len(b) != 1 {
			return fmt.Errorf("coe: entry count pdo=0x%04x: expected 1 byte, got %d", f.curPDOIndex, len(b))
		}
		f.entryCount = int(b[0])
		f.entryPos = 1
		f.curEntries = nil
		if f.entryCount == 0 {
			f.finishPDO()
			return nil
		}
		f.phase = readPhaseEntry
		return nil

	case readPhaseEntry:
		b, err := t.ReadEntry(f.curPDOIndex, uint8(f.entryPos))
		if err != nil {
			return fmt.Errorf("coe: read entry pdo=0x%04x pos=%d: %w", f.curPDOIndex, f.entryPos, err)
		}
		if len(b) != 4 {
			return fmt.Errorf("coe: entry pdo=0x%04x pos=%d: expected 4 bytes, got %d", f.curPDOIndex, f.entryPos, len(b))
		}
		f.curEntries = append(f.curEntries, decodePDOEntry(getU32(b)))
		f.entryPos++
		if f.entryPos > f.entryCount {
			f.finishPDO()
			return nil
		}
		return nil

	default:
		return nil
	}
}

// finishPDO appends the just-completed parameter-object to the result and
// moves on to the next assignment slot, or finishes the read pass.
func (f *ReadPassFSM) finishPDO() {
	f.result = append(f.result, slave.PDODescriptor{Index: f.curPDOIndex, Entries: f.curEntries})
	f.pos++
	if f.pos > f.count {
		f.phase = readPhaseDone
		return
	}
	f.phase = readPhaseIndex
}

// ConfigPassFSM writes a desired parameter-object assignment to a sync
// manager's dictionary entries (spec.md §4.6 "Configuration pass"). The
// full sequence of writes is precomputed at construction time since the
// desired assignment is known upfront; Step issues one write per call.
type ConfigPassFSM struct {
	syncIndex int
	actions   []func(Transactor) error
	cursor    int
}

// NewConfigPassFSM builds a ConfigPassFSM that writes desired to sync
// manager syncIndex, following spec.md §4.6 steps 3-5 in order: clear the
// assignment, write every parameter-object's entries and entry count, then
// write the assignment index list and final count.
func NewConfigPassFSM(syncIndex int, desired []slave.PDODescriptor) *ConfigPassFSM {
	f := &ConfigPassFSM{syncIndex: syncIndex}

	f.actions = append(f.actions, func(t Transactor) error {
		return t.WriteEntry(assignmentIndex(syncIndex), 0, []byte{0})
	})

	// Per-entry writes only apply when this mapping also redefines the
	// parameter-object's own entries; a PDO assigned with no entries is
	// assumed already configured on the slave (spec.md §8 scenario S2).
	for _, pdo := range desired {
		pdo := pdo
		if len(pdo.Entries) == 0 {
			continue
		}
		for pos, e := range pdo.Entries {
			pos, e := pos, e
			f.actions = append(f.actions, func(t Transactor) error {
				return t.WriteEntry(pdo.Index, uint8(pos+1), putU32(nil, encodePDOEntry(e)))
			})
		}
		f.actions = append(f.actions, func(t Transactor) error {
			return t.WriteEntry(pdo.Index, 0, []byte{byte(len(pdo.Entries))})
		})
	}

	for pos, pdo := range desired {
		pos, pdo := pos, pdo
		f.actions = append(f.actions, func(t Transactor) error {
			return t.WriteEntry(assignmentIndex(syncIndex), uint8(pos+1), putU16(nil, pdo.Index))
		})
	}
	f.actions = append(f.actions, func(t Transactor) error {
		return t.WriteEntry(assignmentIndex(syncIndex), 0, []byte{byte(len(desired))})
	})

	return f
}

// Done reports whether every write has been issued.
func (f *ConfigPassFSM) Done() bool {
	return f.cursor >= len(f.actions)
}

// Step issues the next pending write. Calling Step after Done is a no-op.
func (f *ConfigPassFSM) Step(t Transactor) error {
	if f.Done() {
		return nil
	}
	err := f.actions[f.cursor](t)
	f.cursor++
	if err != nil {
		return fmt.Errorf("coe: configuration write sm=%d step=%d: %w", f.syncIndex, f.cursor-1, err)
	}
	return nil
}
