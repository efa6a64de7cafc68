// Package frame owns the fixed pool of reusable frame descriptors and the
// dispatcher that assigns indices, sends, and matches responses back to the
// in-flight request that issued them (spec.md §4.2, component C2).
package frame

import (
	"time"

	"github.com/go-ecat/ecmaster/wire"
)

// Phase is a frame descriptor's lifecycle state. Once Phase >= PhaseSent the
// descriptor's Index is stable until a terminal phase is observed
// (spec.md §3 invariant).
type Phase uint8

const (
	PhaseReady Phase = iota
	PhaseQueued
	PhaseSent
	PhaseReceived
	PhaseTimeout
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseQueued:
		return "queued"
	case PhaseSent:
		return "sent"
	case PhaseReceived:
		return "received"
	case PhaseTimeout:
		return "timeout"
	case PhaseError:
		return "error"
	default:
		return "phase<invalid>"
	}
}

// IsTerminal reports whether p is one of the phases spec.md §4.2 recognizes
// as resolving an in-flight descriptor.
func (p Phase) IsTerminal() bool {
	return p == PhaseReceived || p == PhaseTimeout || p == PhaseError
}

// MaxPayload is the largest payload a single descriptor can carry.
const MaxPayload = wire.MaxSubCommandPayload

// Descriptor describes one in-flight (or idle) sub-command. The payload
// buffer is fixed-size and reused across the descriptor's lifetime — no
// allocation happens when a descriptor is recycled.
type Descriptor struct {
	Opcode wire.Opcode
	Addr   wire.Address

	// Index is the assigned command index (0-255), valid once Phase has
	// reached PhaseSent.
	Index uint8

	payload    [MaxPayload]byte
	payloadLen int

	WorkingCounter uint16
	Phase          Phase

	sentAt time.Time

	slot int // pool slot, stable for the descriptor's lifetime
}

// Payload returns the descriptor's current payload as a slice view over its
// fixed backing array — valid until the descriptor is reset.
func (d *Descriptor) Payload() []byte {
	return d.payload[:d.payloadLen]
}

// SetPayload copies data into the descriptor's backing array and records its
// length. Data longer than MaxPayload is an invalid-argument condition the
// caller must avoid; SetPayload panics rather than silently truncating,
// mirroring the codec's ErrPayloadTooLarge check at encode time.
func (d *Descriptor) SetPayload(data []byte) {
	if len(data) > MaxPayload {
		panic("frame: payload exceeds MaxPayload")
	}
	d.payloadLen = copy(d.payload[:], data)
}

// reset returns the descriptor to PhaseReady for reuse.
func (d *Descriptor) reset() {
	d.Opcode = 0
	d.Addr = wire.Address{}
	d.Index = 0
	d.payloadLen = 0
	d.WorkingCounter = 0
	d.Phase = PhaseReady
	d.sentAt = time.Time{}
}

// subCommand builds the wire.SubCommand view used by the codec, sharing the
// descriptor's backing payload array so encode/decode touch no new memory.
func (d *Descriptor) subCommand() wire.SubCommand {
	return wire.SubCommand{
		Opcode:         d.Opcode,
		Index:          d.Index,
		Addr:           d.Addr,
		Payload:        d.payload[:d.payloadLen],
		WorkingCounter: d.WorkingCounter,
	}
}
