package master

import (
	"testing"
	"time"

	"github.com/go-ecat/ecmaster/slave"
	"github.com/go-ecat/ecmaster/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDevice is a frame.Device test double that echoes back whatever it
// is sent, forcing the working counter of the single sub-command to a
// scripted value each call — used to drive the tick-by-tick working-counter
// transitions without a real device.
type scriptedDevice struct {
	txBuf       [wire.MaxFrameSize]byte
	pending     []byte
	payloadLen  int
	nextWKC     uint16
}

func (d *scriptedDevice) PrepareTx(n int) ([]byte, error) {
	return d.txBuf[:n], nil
}

func (d *scriptedDevice) Transmit(n int) error {
	frame := append([]byte(nil), d.txBuf[:n]...)
	offset := wire.FrameHeaderSize + wire.SubCommandHeaderSize + d.payloadLen
	frame[offset] = byte(d.nextWKC)
	frame[offset+1] = byte(d.nextWKC >> 8)
	d.pending = frame
	return nil
}

func (d *scriptedDevice) Received() ([]byte, bool) {
	if d.pending == nil {
		return nil, false
	}
	f := d.pending
	d.pending = nil
	return f, true
}

func newTickMaster(t *testing.T) (*Master, *scriptedDevice) {
	t.Helper()
	dev := &scriptedDevice{payloadLen: 4}
	m := NewMaster(dev)

	dom, err := m.RegisterDomain("outputs")
	require.NoError(t, err)
	_, err = dom.Register(0, 0, slave.DirectionInput, 2)
	require.NoError(t, err)
	_, err = dom.Register(1, 0, slave.DirectionInput, 2)
	require.NoError(t, err)

	_, err = m.RegisterSlave(SlaveSpec{RingPosition: 0, Vendor: 1, Product: 1, Domain: "outputs"})
	require.NoError(t, err)
	_, err = m.RegisterSlave(SlaveSpec{RingPosition: 1, Vendor: 1, Product: 2, Domain: "outputs"})
	require.NoError(t, err)

	require.NoError(t, m.Activate())
	return m, dev
}

// TestTick_S6 reproduces spec.md §8 scenario S6: a working counter one
// short of expected marks the domain incomplete; once every slave responds
// the following tick, it becomes complete. The bytes belonging to the
// non-responding slave are left untouched across the transition.
func TestTick_S6(t *testing.T) {
	m, dev := newTickMaster(t)
	dom, ok := m.Domain("outputs")
	require.True(t, ok)

	require.NoError(t, dom.SetUint8At(2, 0xAB)) // slave 1's byte, never rewritten by either tick
	require.NoError(t, dom.SetUint8At(0, 0x01)) // slave 0's byte

	dev.nextWKC = 1 // one slave responded, expected 2: incomplete
	now1 := time.Unix(0, 0)
	status, err := m.Tick(now1)
	require.NoError(t, err)
	assert.Equal(t, TickOK, status)

	wkc, ok := m.DomainStatus("outputs")
	require.True(t, ok)
	assert.Equal(t, WKCIncomplete, wkc)
	b, err := dom.Uint8At(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b)

	dev.nextWKC = 2 // both slaves responded: complete
	now2 := now1.Add(time.Millisecond)
	status, err = m.Tick(now2)
	require.NoError(t, err)
	assert.Equal(t, TickOK, status)

	wkc, ok = m.DomainStatus("outputs")
	require.True(t, ok)
	assert.Equal(t, WKCComplete, wkc)
	b, err = dom.Uint8At(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b)
}

// TestTick_ZeroWKC verifies a fully unresponsive ring is reported as zero,
// not incomplete.
func TestTick_ZeroWKC(t *testing.T) {
	m, dev := newTickMaster(t)
	dev.nextWKC = 0

	status, err := m.Tick(time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, TickOK, status)

	wkc, ok := m.DomainStatus("outputs")
	require.True(t, ok)
	assert.Equal(t, WKCZero, wkc)
}

func TestTick_NotActivated(t *testing.T) {
	dev := &scriptedDevice{payloadLen: 4}
	m := NewMaster(dev)
	_, err := m.Tick(time.Unix(0, 0))
	assert.ErrorIs(t, err, errNotActivated)
}

func TestRegisterSlave_MismatchRejected(t *testing.T) {
	m := NewMaster(&scriptedDevice{})
	_, err := m.RegisterSlave(SlaveSpec{RingPosition: 0, Vendor: 1, Product: 1})
	require.NoError(t, err)
	_, err = m.RegisterSlave(SlaveSpec{RingPosition: 0, Vendor: 1, Product: 2})
	assert.ErrorIs(t, err, errMismatch)
}

func TestRequestMaster_ExclusivityRegistry(t *testing.T) {
	m1, err := RequestMaster(7, &scriptedDevice{})
	require.NoError(t, err)
	require.NotNil(t, m1)

	_, err = RequestMaster(7, &scriptedDevice{})
	assert.ErrorIs(t, err, errBusy)

	Release(7)
	m2, err := RequestMaster(7, &scriptedDevice{})
	require.NoError(t, err)
	assert.NotNil(t, m2)
	Release(7)
}
