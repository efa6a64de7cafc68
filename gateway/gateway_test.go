package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ecat/ecmaster/hostapi"
	"github.com/go-ecat/ecmaster/master"
	"github.com/go-ecat/ecmaster/wire"
)

// echoDevice always answers a frame with the payload it was sent and a
// fixed working counter, enough to drive hostapi.ForwardMailbox's register
// round trips without a real ring.
type echoDevice struct {
	txBuf   [wire.MaxFrameSize]byte
	pending []byte
}

func (d *echoDevice) PrepareTx(n int) ([]byte, error) { return d.txBuf[:n], nil }

func (d *echoDevice) Transmit(n int) error {
	frame := append([]byte(nil), d.txBuf[:n]...)
	// The header's 11-bit length covers the sub-command bytes before the
	// working counter; any zero padding up to the minimum frame size follows.
	offset := wire.FrameHeaderSize + int(uint16(frame[0])|uint16(frame[1])<<8)&0x7FF
	frame[offset] = 1
	frame[offset+1] = 0
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	m := master.NewMaster(&echoDevice{})
	require.NoError(t, m.Activate())
	return NewServer(hostapi.New(m), "127.0.0.1:0")
}

func TestHeaderRoundTrip(t *testing.T) {
	raw := make([]byte, 2)
	encodeHeaderInto(raw, 1234, 17)
	length, typ := decodeHeader(raw)
	assert.Equal(t, uint16(1234), length)
	assert.Equal(t, uint8(17), typ)
}

// TestHandleFrame_S5 reproduces spec.md §8 scenario S5: a 16-byte gateway
// request yields a response whose header length field is L-2 and whose
// type field matches the request's.
func TestHandleFrame_S5(t *testing.T) {
	s := newTestServer(t)

	payload := make([]byte, 14) // station=0, offset=0, read flag, length=4
	payload[4] = 0x00           // read
	payload[5] = 0x00
	payload[6] = 0x04

	req := make([]byte, HeaderSize+len(payload))
	encodeHeaderInto(req, uint16(len(payload)), 5)
	copy(req[HeaderSize:], payload)
	require.Len(t, req, 16)

	reply, err := s.handleFrame(req)
	require.NoError(t, err)

	length, typ := decodeHeader(reply)
	assert.Equal(t, uint16(len(reply)-HeaderSize), length)
	assert.Equal(t, uint8(5), typ)
	assert.Equal(t, int(length), len(reply)-HeaderSize)
}

func TestHandleFrame_RejectsOversized(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleFrame(make([]byte, MaxFrameSize+1))
	assert.Error(t, err)
}

func TestHandleFrame_RejectsShortOfHeader(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleFrame([]byte{0x01})
	assert.Error(t, err)
}

// TestServer_ClientCap verifies the 16-concurrent-TCP-client cap: the 17th
// simultaneous connection is refused.
func TestServer_ClientCap(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Serve(ctx)
	select {
	case <-s.WaitReady():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	defer s.Stop()

	addr := s.tcpListener.Addr().String()

	conns := make([]net.Conn, 0, MaxClients)
	for i := 0; i < MaxClients; i++ {
		c, err := net.DialTimeout("tcp", addr, time.Second)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	extra, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer extra.Close()

	_ = extra.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = extra.Read(buf)
	assert.Error(t, err) // rejected: connection closed without data
}
