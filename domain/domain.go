// Package domain implements process-image domains (component C7): a
// contiguous buffer that application code reads and writes, backed by one
// or more slave memory-mapper entries whose logical addresses are assigned
// by a simple bump allocator at activation time (spec.md §3, §4.7).
package domain

import (
	"fmt"

	"github.com/go-ecat/ecmaster/slave"
)

// Entry is one memory-mapper registration within a domain: which slave and
// sync manager it relocates, and the logical offset the allocator assigned
// it once the domain is activated.
type Entry struct {
	RingPosition int
	SyncIndex    int
	Direction    slave.Direction
	Length       uint16

	// LogicalOffset is this entry's byte offset within the domain's image,
	// assigned by Activate in registration order. Valid only once the
	// domain is frozen.
	LogicalOffset uint32
}

// Domain is a named contiguous process-image region. Entries are added by
// application declarations before activation; Activate freezes their
// offsets and sizes the backing image buffer exactly once.
type Domain struct {
	Name    string
	entries []*Entry
	image   []byte
	frozen  bool

	// logicalBase is this domain's position within the master-wide
	// logical address space, assigned once across all domains at
	// activation (spec.md §4.8: the cyclic engine addresses a whole
	// domain with one logical-read-write sub-command).
	logicalBase uint32
}

// SetLogicalBase assigns the domain's master-wide logical base address.
// Called by the master at activation, after every domain has been sized.
func (d *Domain) SetLogicalBase(base uint32) {
	d.logicalBase = base
}

// LogicalBase returns the domain's master-wide logical base address.
func (d *Domain) LogicalBase() uint32 {
	return d.logicalBase
}

// New constructs an empty, unfrozen Domain.
func New(name string) *Domain {
	return &Domain{Name: name}
}

// Register adds a memory-mapper entry to the domain in declaration order.
// It returns an error if the domain was already activated — spec.md §3
// freezes logical addresses at activation, so no further entries may join
// afterward.
func (d *Domain) Register(ringPosition, syncIndex int, direction slave.Direction, length uint16) (*Entry, error) {
	if d.frozen {
		return nil, fmt.Errorf("domain %q: cannot register after activation", d.Name)
	}
	e := &Entry{RingPosition: ringPosition, SyncIndex: syncIndex, Direction: direction, Length: length}
	d.entries = append(d.entries, e)
	return e, nil
}

// Activate walks the registered entries in insertion order, assigning each
// a logical offset equal to the running byte cursor, and allocates the
// image buffer. Calling Activate more than once is a no-op.
func (d *Domain) Activate() {
	if d.frozen {
		return
	}
	var cursor uint32
	for _, e := range d.entries {
		e.LogicalOffset = cursor
		cursor += uint32(e.Length)
	}
	d.image = make([]byte, cursor)
	d.frozen = true
}

// Entries returns the domain's registered entries in declaration order.
func (d *Domain) Entries() []*Entry {
	return d.entries
}

// Image returns the domain's backing buffer. It is empty until Activate has
// run.
func (d *Domain) Image() []byte {
	return d.image
}

// Size returns the domain's total byte size, valid once activated.
func (d *Domain) Size() int {
	return len(d.image)
}

// IsActivated reports whether Activate has run.
func (d *Domain) IsActivated() bool {
	return d.frozen
}
