package master

import (
	"testing"
	"time"

	"github.com/go-ecat/ecmaster/mailbox"
	"github.com/go-ecat/ecmaster/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoDevice is a frame.Device test double for exercising acyclic
// single-sub-command round trips (register/parameter/file transactions),
// as opposed to scriptedDevice's fixed cyclic-tick payload shape: it derives
// the payload length from whatever frame size it is handed rather than
// assuming one fixed length, since a file transfer's chunks vary in size.
type echoDevice struct {
	txBuf   [wire.MaxFrameSize]byte
	pending []byte
	nextWKC uint16
}

func (d *echoDevice) PrepareTx(n int) ([]byte, error) {
	return d.txBuf[:n], nil
}

func (d *echoDevice) Transmit(n int) error {
	frame := append([]byte(nil), d.txBuf[:n]...)
	payloadLen := n - wire.FrameHeaderSize - wire.SubCommandHeaderSize - wire.WorkingCounterSize
	offset := wire.FrameHeaderSize + wire.SubCommandHeaderSize + payloadLen
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

// driveMailbox steps the acyclic arbiter until req is terminal or budget
// steps elapse, mirroring hostapi.Client.Await without importing hostapi
// (master must not depend on its own consumers).
func driveMailbox(m *Master, req *mailbox.Request, budget int) {
	now := time.Unix(0, 0)
	for i := 0; i < budget && !req.Phase.IsTerminal(); i++ {
		now = now.Add(time.Millisecond)
		m.StepMailbox(now)
	}
}

func newFileMaster(t *testing.T) *Master {
	t.Helper()
	dev := &echoDevice{nextWKC: 1}
	m := NewMaster(dev)
	_, err := m.RegisterSlave(SlaveSpec{RingPosition: 0, Vendor: 1, Product: 1})
	require.NoError(t, err)
	require.NoError(t, m.Activate())
	return m
}

// TestIssueFileWrite_MultiChunk writes a file larger than fileChunkSize and
// checks the stepper advances progress one chunk per Step call rather than
// resolving the whole transfer in a single round trip.
func TestIssueFileWrite_MultiChunk(t *testing.T) {
	m := newFileMaster(t)

	data := make([]byte, fileChunkSize+fileChunkSize/2) // 1.5 chunks
	for i := range data {
		data[i] = byte(i)
	}

	req := m.IssueFileWrite(0, "firmware.bin", data)
	assert.Equal(t, mailbox.KindFileWrite, req.Kind)

	// Admission: the arbiter's first Step only promotes the request to
	// PhaseBusy, it does not run the stepper yet.
	m.StepMailbox(time.Unix(0, 0))
	assert.Equal(t, mailbox.PhaseBusy, req.Phase)

	// The next Step moves only the first chunk, so the transfer is still
	// busy afterwards rather than resolved in one round trip.
	m.StepMailbox(time.Unix(0, 0))
	assert.Equal(t, mailbox.PhaseBusy, req.Phase)

	driveMailbox(m, req, 1000)
	require.Equal(t, mailbox.PhaseSuccess, req.Phase)
	require.NoError(t, req.LastErr)
}

// TestIssueFileRead_ExplicitLength reads a length known up front (this
// build has no remote file-size discovery, see master/file.go) and checks
// the assembled result is exactly that many bytes, chunked across more than
// one Step call.
func TestIssueFileRead_ExplicitLength(t *testing.T) {
	m := newFileMaster(t)

	length := fileChunkSize + 10
	req := m.IssueFileRead(0, "firmware.bin", length)
	driveMailbox(m, req, 1000)

	require.Equal(t, mailbox.PhaseSuccess, req.Phase)
	require.NoError(t, req.LastErr)
	assert.Len(t, req.Payload, length)
}

// TestIssueFileRead_ShorterThanOneChunk checks a read smaller than
// fileChunkSize resolves in the minimum number of chunks without
// over-reading.
func TestIssueFileRead_ShorterThanOneChunk(t *testing.T) {
	m := newFileMaster(t)

	req := m.IssueFileRead(0, "manifest.txt", 37)
	driveMailbox(m, req, 1000)

	require.Equal(t, mailbox.PhaseSuccess, req.Phase)
	assert.Len(t, req.Payload, 37)
}

// TestIssueFileWrite_EmptyFile checks a zero-length write resolves
// immediately without ever calling WriteRegister.
func TestIssueFileWrite_EmptyFile(t *testing.T) {
	m := newFileMaster(t)

	req := m.IssueFileWrite(0, "empty.bin", nil)
	driveMailbox(m, req, 10)

	require.Equal(t, mailbox.PhaseSuccess, req.Phase)
}
