package hostapi

import (
	"testing"

	"github.com/go-ecat/ecmaster/mailbox"
	"github.com/go-ecat/ecmaster/master"
	"github.com/go-ecat/ecmaster/slave"
	"github.com/go-ecat/ecmaster/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoDevice is a frame.Device test double that always responds with the
// same payload it was sent and a scripted working counter, regardless of
// sub-command shape — enough to drive register round trips of any length.
type echoDevice struct {
	txBuf   [wire.MaxFrameSize]byte
	pending []byte
	nextWKC uint16
}

func (d *echoDevice) PrepareTx(n int) ([]byte, error) { return d.txBuf[:n], nil }

func (d *echoDevice) Transmit(n int) error {
	frame := append([]byte(nil), d.txBuf[:n]...)
	// The header's 11-bit length covers the sub-command bytes before the
	// working counter; any zero padding up to the minimum frame size follows.
	offset := wire.FrameHeaderSize + int(uint16(frame[0])|uint16(frame[1])<<8)&0x7FF
	frame[offset] = byte(d.nextWKC)
	frame[offset+1] = byte(d.nextWKC >> 8)
	d.pending = frame
	return nil
}

func (d *echoDevice) Received() ([]byte, bool) {
	if d.pending == nil {
		return nil, false
	}
	f := d.pending
	d.pending = nil
	return f, true
}

func newClient(t *testing.T) (*Client, *master.Master) {
	t.Helper()
	dev := &echoDevice{nextWKC: 1}
	m := master.NewMaster(dev)
	_, err := m.RegisterSlave(master.SlaveSpec{RingPosition: 0, Vendor: 1, Product: 2})
	require.NoError(t, err)
	require.NoError(t, m.Activate())
	return New(m), m
}

func TestModuleInfo(t *testing.T) {
	c, _ := newClient(t)
	info := c.ModuleInfo()
	assert.True(t, info.Activated)
	assert.Equal(t, 1, info.SlaveCount)
}

func TestSlaves_SortedByRingPosition(t *testing.T) {
	dev := &echoDevice{nextWKC: 1}
	m := master.NewMaster(dev)
	_, err := m.RegisterSlave(master.SlaveSpec{RingPosition: 2, Vendor: 1, Product: 1})
	require.NoError(t, err)
	_, err = m.RegisterSlave(master.SlaveSpec{RingPosition: 0, Vendor: 1, Product: 2})
	require.NoError(t, err)
	c := New(m)

	s := c.Slaves()
	require.Len(t, s, 2)
	assert.Equal(t, 0, s[0].RingPosition)
	assert.Equal(t, 2, s[1].RingPosition)
}

func TestState_UnknownSlave(t *testing.T) {
	c, _ := newClient(t)
	_, _, ok := c.State(99)
	assert.False(t, ok)
}

func TestRequestState_RetargetsFSM(t *testing.T) {
	c, m := newClient(t)
	require.NoError(t, c.RequestState(0, slave.StateInit))
	fsm := m.LifecycleFSM(0)
	require.NotNil(t, fsm)
	assert.False(t, fsm.Done())
}

func TestRequestState_UnknownSlaveErrors(t *testing.T) {
	c, _ := newClient(t)
	err := c.RequestState(99, slave.StateOp)
	assert.Error(t, err)
}

func TestIssueAndAwait_ParameterWrite(t *testing.T) {
	c, _ := newClient(t)
	req := c.IssueParameterWrite(0, 0x6000, 1, []byte{0xAA})
	err := c.Await(req, 1000)
	require.NoError(t, err)
	assert.Equal(t, mailbox.PhaseSuccess, c.Poll(req))
}

func TestForwardMailbox_Write(t *testing.T) {
	c, _ := newClient(t)
	frame := []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0xAB, 0xCD}
	resp, err := c.ForwardMailbox(frame)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestForwardMailbox_Read(t *testing.T) {
	c, _ := newClient(t)
	frame := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x04}
	resp, err := c.ForwardMailbox(frame)
	require.NoError(t, err)
	assert.Len(t, resp, 4)
}

func TestForwardMailbox_TooShort(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.ForwardMailbox([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestMasterCount(t *testing.T) {
	before := MasterCount()
	m, err := master.RequestMaster(42, &echoDevice{})
	require.NoError(t, err)
	assert.Equal(t, before+1, MasterCount())
	master.Release(42)
	assert.Equal(t, before, MasterCount())
	_ = m
}
