package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ecat/ecmaster/wire"
)

// loopbackDevice is a minimal in-memory Device: Transmit immediately makes
// the written bytes available to Received, optionally mutating them first
// to simulate a ring response.
type loopbackDevice struct {
	buf     [2048]byte
	mutate  func(frame []byte)
	pending []byte
	drop    bool
}

func (l *loopbackDevice) PrepareTx(n int) ([]byte, error) {
	return l.buf[:n], nil
}

func (l *loopbackDevice) Transmit(n int) error {
	if l.drop {
		return nil
	}
	frame := make([]byte, n)
	copy(frame, l.buf[:n])
	if l.mutate != nil {
		l.mutate(frame)
	}
	l.pending = frame
	return nil
}

func (l *loopbackDevice) Received() ([]byte, bool) {
	if l.pending == nil {
		return nil, false
	}
	f := l.pending
	l.pending = nil
	return f, true
}

func TestDispatcherSendMatch(t *testing.T) {
	pool := NewPool()
	dev := &loopbackDevice{mutate: func(f []byte) {
		// Working counter for the single 2-byte-payload sub-command sits
		// right after its header and payload: 2 (frame header) + 10
		// (sub-command header) + 2 (payload) = offset 14.
		f[14] = 1
	}}
	disp := NewDispatcher(pool, dev)

	d, err := pool.Acquire()
	require.NoError(t, err)
	d.Opcode = wire.OpAutoIncRead
	d.Addr = wire.AutoIncrementAddr(0, 0x130)
	d.SetPayload(make([]byte, 2))

	now := time.Unix(0, 0)
	require.NoError(t, disp.Send(now, []*Descriptor{d}))
	assert.Equal(t, PhaseSent, d.Phase)

	matched, err := disp.Poll(now)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Equal(t, PhaseReceived, d.Phase)
	assert.Equal(t, uint16(1), d.WorkingCounter)
}

func TestDispatcherTimeout(t *testing.T) {
	pool := NewPool()
	dev := &loopbackDevice{drop: true}
	disp := NewDispatcher(pool, dev)
	disp.SetTimeout(time.Millisecond)

	d, err := pool.Acquire()
	require.NoError(t, err)
	d.Opcode = wire.OpBroadcastRead
	d.Addr = wire.BroadcastAddr(0)

	start := time.Unix(0, 0)
	require.NoError(t, disp.Send(start, []*Descriptor{d}))

	matched, err := disp.Poll(start.Add(2 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Equal(t, PhaseTimeout, d.Phase)
	assert.Equal(t, 0, disp.PendingFrames())
}

func TestDispatcherTopologyChange(t *testing.T) {
	pool := NewPool()
	dev := &loopbackDevice{mutate: func(f []byte) {
		// Corrupt the opcode byte so the decode no longer matches what
		// was sent, simulating a ring whose shape changed mid-exchange.
		f[2] = byte(wire.OpNodeWrite)
	}}
	disp := NewDispatcher(pool, dev)

	d, err := pool.Acquire()
	require.NoError(t, err)
	d.Opcode = wire.OpAutoIncRead
	d.Addr = wire.AutoIncrementAddr(0, 0)
	d.SetPayload(make([]byte, 2))

	now := time.Unix(0, 0)
	require.NoError(t, disp.Send(now, []*Descriptor{d}))

	_, err = disp.Poll(now)
	assert.Error(t, err)
	assert.Equal(t, PhaseError, d.Phase)
	assert.Equal(t, 0, disp.PendingFrames())
}

func TestPoolAcquireRelease(t *testing.T) {
	pool := NewPool()
	var acquired []*Descriptor
	for i := 0; i < PoolSize; i++ {
		d, err := pool.Acquire()
		require.NoError(t, err)
		acquired = append(acquired, d)
	}
	_, err := pool.Acquire()
	assert.Error(t, err)

	d := acquired[0]
	d.Phase = PhaseReceived
	pool.Release(d)

	d2, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, PhaseQueued, d2.Phase)
}

func TestPoolIndexMonotonic(t *testing.T) {
	pool := NewPool()
	d1, err := pool.Acquire()
	require.NoError(t, err)
	first := d1.Index
	d1.Phase = PhaseReceived
	pool.Release(d1)

	d2, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, first+1, d2.Index)
}
