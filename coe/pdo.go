// Package coe implements the parameter-object ("PDO") sub-FSM (component
// C6): reading a sync manager's current parameter-object assignment from a
// slave's object dictionary, comparing it against the application's desired
// assignment, and — if they differ — writing the desired assignment back.
// Every dictionary access is a single service-channel transfer and a
// suspension point; nothing here blocks.
package coe

import (
	"github.com/go-ecat/ecmaster/slave"
)

// Transactor performs one object-dictionary access at a time. Each call
// models exactly one service-channel transfer (spec.md §4.6): the lifecycle
// FSM that drives a ReadPassFSM's or ConfigPassFSM's Step calls Transactor
// once per Step, never
// batching multiple dictionary accesses into one call.
type Transactor interface {
	ReadEntry(index uint16, subindex uint8) ([]byte, error)
	WriteEntry(index uint16, subindex uint8, data []byte) error
}

// assignmentIndex returns the dictionary index holding sync manager
// syncIndex's parameter-object assignment list (spec.md §6).
func assignmentIndex(syncIndex int) uint16 {
	return 0x1C10 + uint16(syncIndex)
}

// decodePDOEntry splits a 4-byte little-endian entry descriptor into its
// index/subindex/bit-length triple, per spec.md §4.6 step 3.
func decodePDOEntry(raw uint32) slave.PDOEntry {
	return slave.PDOEntry{
		Index:     uint16(raw >> 16),
		SubIndex:  uint8(raw >> 8),
		BitLength: uint8(raw),
	}
}

// encodePDOEntry is the inverse of decodePDOEntry, used by the
// configuration pass to write an entry descriptor back.
func encodePDOEntry(e slave.PDOEntry) uint32 {
	return uint32(e.Index)<<16 | uint32(e.SubIndex)<<8 | uint32(e.BitLength)
}

func putU16(b []byte, v uint16) []byte {
	if b == nil {
		b = make([]byte, 2)
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	return b
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putU32(b []byte, v uint32) []byte {
	if b == nil {
		b = make([]byte, 4)
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return b
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// EqualAssignment implements spec.md §4.6's "differs" equality test: two
// parameter-object assignments are equal iff they name the same
// parameter-object indices in the same order, and within each
// parameter-object the entries compare equal as (index, subindex,
// bit_length) triples in order.
func EqualAssignment(a, b []slave.PDODescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index {
			return false
		}
		if len(a[i].Entries) != len(b[i].Entries) {
			return false
		}
		for j := range a[i].Entries {
			ea, eb := a[i].Entries[j], b[i].Entries[j]
			if ea.Index != eb.Index || ea.SubIndex != eb.SubIndex || ea.BitLength != eb.BitLength {
				return false
			}
		}
	}
	return true
}
