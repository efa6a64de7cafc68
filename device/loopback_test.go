package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackRoundTrip(t *testing.T) {
	l := NewLoopback()
	l.Respond = func(frame []byte) bool {
		frame[0] ^= 0xFF
		return true
	}

	tx, err := l.PrepareTx(4)
	require.NoError(t, err)
	copy(tx, []byte{1, 2, 3, 4})
	require.NoError(t, l.Transmit(4))

	got, ok := l.Received()
	require.True(t, ok)
	assert.Equal(t, []byte{0xFE, 2, 3, 4}, got)

	_, ok = l.Received()
	assert.False(t, ok, "second Received without a new Transmit must report nothing pending")
}

func TestLoopbackDroppedFrame(t *testing.T) {
	l := NewLoopback()
	l.Respond = func([]byte) bool { return false }

	tx, err := l.PrepareTx(2)
	require.NoError(t, err)
	copy(tx, []byte{9, 9})
	require.NoError(t, l.Transmit(2))

	_, ok := l.Received()
	assert.False(t, ok)
}

func TestLoopbackFrameTooLarge(t *testing.T) {
	l := NewLoopback()
	_, err := l.PrepareTx(len(l.buf) + 1)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
