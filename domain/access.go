package domain

import (
	"fmt"

	"github.com/go-ecat/ecmaster/wire"
)

// errOutOfRange reports an access past the domain's allocated image.
func errOutOfRange(domainName string, offset, width int, size int) error {
	return fmt.Errorf("domain %q: access at offset %d width %d exceeds image size %d", domainName, offset, width, size)
}

// Uint8At reads a single byte at byteOffset.
func (d *Domain) Uint8At(byteOffset int) (uint8, error) {
	if byteOffset < 0 || byteOffset >= len(d.image) {
		return 0, errOutOfRange(d.Name, byteOffset, 1, len(d.image))
	}
	return d.image[byteOffset], nil
}

// SetUint8At writes a single byte at byteOffset.
func (d *Domain) SetUint8At(byteOffset int, v uint8) error {
	if byteOffset < 0 || byteOffset >= len(d.image) {
		return errOutOfRange(d.Name, byteOffset, 1, len(d.image))
	}
	d.image[byteOffset] = v
	return nil
}

// Uint16At reads a little-endian 16-bit value at byteOffset.
func (d *Domain) Uint16At(byteOffset int) (uint16, error) {
	if byteOffset < 0 || byteOffset+2 > len(d.image) {
		return 0, errOutOfRange(d.Name, byteOffset, 2, len(d.image))
	}
	b := d.image[byteOffset : byteOffset+2]
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// SetUint16At writes a little-endian 16-bit value at byteOffset.
func (d *Domain) SetUint16At(byteOffset int, v uint16) error {
	if byteOffset < 0 || byteOffset+2 > len(d.image) {
		return errOutOfRange(d.Name, byteOffset, 2, len(d.image))
	}
	b := d.image[byteOffset : byteOffset+2]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	return nil
}

// Uint32At reads a little-endian 32-bit value at byteOffset.
func (d *Domain) Uint32At(byteOffset int) (uint32, error) {
	if byteOffset < 0 || byteOffset+4 > len(d.image) {
		return 0, errOutOfRange(d.Name, byteOffset, 4, len(d.image))
	}
	b := d.image[byteOffset : byteOffset+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// SetUint32At writes a little-endian 32-bit value at byteOffset.
func (d *Domain) SetUint32At(byteOffset int, v uint32) error {
	if byteOffset < 0 || byteOffset+4 > len(d.image) {
		return errOutOfRange(d.Name, byteOffset, 4, len(d.image))
	}
	b := d.image[byteOffset : byteOffset+4]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return nil
}

// BitAt reads a single bit at (byteOffset, bit), resolving to the
// wire-level bit convention used by process-image I/O (spec.md §9).
func (d *Domain) BitAt(byteOffset int, bit uint) (bool, error) {
	b, err := d.Uint8At(byteOffset)
	if err != nil {
		return false, err
	}
	return wire.ReadBit(b, bit) == 1, nil
}

// SetBitAt sets or clears a single bit at (byteOffset, bit).
func (d *Domain) SetBitAt(byteOffset int, bit uint, v bool) error {
	b, err := d.Uint8At(byteOffset)
	if err != nil {
		return err
	}
	return d.SetUint8At(byteOffset, wire.WriteBit(b, bit, v))
}
