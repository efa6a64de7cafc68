package frame

import (
	"github.com/go-ecat/ecmaster/ecerr"
)

// PoolSize is the number of descriptors held by a Pool — one per possible
// 8-bit wire index, so the index space can never be oversubscribed.
const PoolSize = 256

// Pool is a fixed set of reusable Descriptors. Acquire/Release never
// allocate once the pool is constructed; the index assigned on Acquire
// increases monotonically (mod 256) across the pool's lifetime so that a
// stale response carrying an old index is never confused with a fresh one
// until the index space wraps.
type Pool struct {
	slots []Descriptor
	free  []int // stack of free slot indices
	next  uint8 // next index to hand out
}

// NewPool constructs a Pool with PoolSize descriptors, all free.
func NewPool() *Pool {
	p := &Pool{
		slots: make([]Descriptor, PoolSize),
		free:  make([]int, PoolSize),
	}
	for i := range p.free {
		p.free[i] = PoolSize - 1 - i
	}
	return p
}

// Acquire reserves a descriptor and assigns it the next wire index. It
// returns ecerr.KindResourceExhausted if every descriptor is currently
// in flight.
func (p *Pool) Acquire() (*Descriptor, error) {
	if len(p.free) == 0 {
		return nil, ecerr.Newf(ecerr.KindResourceExhausted, "frame", "no free descriptors in pool of %d", PoolSize)
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	d := &p.slots[slot]
	d.reset()
	d.slot = slot
	d.Index = p.next
	d.Phase = PhaseQueued
	p.next++
	return d, nil
}

// Release returns d to the free pool. The caller must not use d again after
// Release; d.Phase must already be terminal.
func (p *Pool) Release(d *Descriptor) {
	d.reset()
	p.free = append(p.free, d.slot)
}

// InFlight returns the number of descriptors currently checked out.
func (p *Pool) InFlight() int {
	return PoolSize - len(p.free)
}

// ByIndex scans the pool for the in-flight descriptor carrying the given
// wire index, or nil if none matches. The dispatcher does not use it: it
// reconciles a received frame against the oldest outstanding frame in send
// order (see Dispatcher.matchOldest).
func (p *Pool) ByIndex(index uint8) *Descriptor {
	for i := range p.slots {
		d := &p.slots[i]
		if d.Phase >= PhaseSent && !d.Phase.IsTerminal() && d.Index == index {
			return d
		}
	}
	return nil
}

// EachInFlight calls fn for every descriptor currently at or past
// PhaseSent and not yet terminal, in slot order.
func (p *Pool) EachInFlight(fn func(*Descriptor)) {
	for i := range p.slots {
		d := &p.slots[i]
		if d.Phase >= PhaseSent && !d.Phase.IsTerminal() {
			fn(d)
		}
	}
}
