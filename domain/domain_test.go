package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ecat/ecmaster/slave"
)

// TestAllocate_S3 reproduces spec.md §8 scenario S3: two entries of length
// 6 and 10 bytes land at offsets 0 and 6, for a total image size of 16.
func TestAllocate_S3(t *testing.T) {
	d := New("outputs")
	e1, err := d.Register(0, 2, slave.DirectionOutput, 6)
	require.NoError(t, err)
	e2, err := d.Register(1, 2, slave.DirectionOutput, 10)
	require.NoError(t, err)

	d.Activate()

	assert.Equal(t, uint32(0), e1.LogicalOffset)
	assert.Equal(t, uint32(6), e2.LogicalOffset)
	assert.Equal(t, 16, d.Size())
}

func TestRegisterAfterActivateFails(t *testing.T) {
	d := New("outputs")
	d.Activate()
	_, err := d.Register(0, 0, slave.DirectionOutput, 2)
	assert.Error(t, err)
}

func TestAccessRoundTrip(t *testing.T) {
	d := New("mixed")
	_, err := d.Register(0, 2, slave.DirectionOutput, 8)
	require.NoError(t, err)
	d.Activate()

	require.NoError(t, d.SetUint8At(0, 0x42))
	v8, err := d.Uint8At(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), v8)

	require.NoError(t, d.SetUint16At(2, 0xBEEF))
	v16, err := d.Uint16At(2)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v16)

	require.NoError(t, d.SetUint32At(4, 0xDEADBEEF))
	v32, err := d.Uint32At(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	require.NoError(t, d.SetBitAt(0, 7, true))
	bit, err := d.BitAt(0, 7)
	require.NoError(t, err)
	assert.True(t, bit)
	v8, _ = d.Uint8At(0)
	assert.Equal(t, uint8(0xC2), v8)
}

func TestAccessOutOfRange(t *testing.T) {
	d := New("tiny")
	_, err := d.Register(0, 2, slave.DirectionOutput, 1)
	require.NoError(t, err)
	d.Activate()

	_, err = d.Uint16At(0)
	assert.Error(t, err)
	_, err = d.Uint8At(5)
	assert.Error(t, err)
}
