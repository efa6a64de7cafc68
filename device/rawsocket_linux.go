//go:build linux

package device

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// etherTypeFieldbus is the EtherType this master's frames are sent under,
// matching the real ring protocol's reserved assignment (0x88A4) so that a
// packet capture on the interface is immediately recognizable.
const etherTypeFieldbus = 0x88a4

// broadcastAddr is the destination MAC address used for every transmitted
// frame; the ring loops it back to the master regardless of destination, so
// broadcast keeps every slave's forwarding logic uniform.
var broadcastAddr = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// RawSocket is a Device backed by an AF_PACKET socket bound to a specific
// network interface — the production backend on Linux hosts.
type RawSocket struct {
	fd        int
	ifIndex   int
	localAddr [6]byte

	txBuf [1536]byte
	rxBuf [1536]byte

	pending []byte
}

// OpenRawSocket opens a raw AF_PACKET/SOCK_RAW socket on the given
// interface, bound to etherTypeFieldbus so the kernel only delivers this
// master's own frames back to it.
func OpenRawSocket(ifaceName string) (*RawSocket, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("device: lookup interface %q: %w", ifaceName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(etherTypeFieldbus)))
	if err != nil {
		return nil, fmt.Errorf("device: open raw socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(etherTypeFieldbus),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("device: bind interface %q: %w", ifaceName, err)
	}

	var hw [6]byte
	copy(hw[:], iface.HardwareAddr)

	return &RawSocket{fd: fd, ifIndex: iface.Index, localAddr: hw}, nil
}

func (r *RawSocket) PrepareTx(n int) ([]byte, error) {
	const ethHeaderLen = 14
	if ethHeaderLen+n > len(r.txBuf) {
		return nil, ErrFrameTooLarge
	}
	copy(r.txBuf[0:6], broadcastAddr[:])
	copy(r.txBuf[6:12], r.localAddr[:])
	r.txBuf[12] = byte(etherTypeFieldbus >> 8)
	r.txBuf[13] = byte(etherTypeFieldbus)
	return r.txBuf[ethHeaderLen : ethHeaderLen+n], nil
}

func (r *RawSocket) Transmit(n int) error {
	const ethHeaderLen = 14
	addr := unix.SockaddrLinklayer{Ifindex: r.ifIndex, Halen: 6}
	copy(addr.Addr[:], broadcastAddr[:])
	return unix.Sendto(r.fd, r.txBuf[:ethHeaderLen+n], 0, &addr)
}

// Poll performs a single non-blocking recvfrom, filling the internal
// receive buffer if a frame is waiting; EAGAIN/EWOULDBLOCK means nothing
// has arrived yet, which is not an error at this layer.
func (r *RawSocket) Poll() {
	n, _, err := unix.Recvfrom(r.fd, r.rxBuf[:], unix.MSG_DONTWAIT)
	if err != nil || n < 14 {
		return
	}
	r.pending = append([]byte(nil), r.rxBuf[14:n]...)
}

func (r *RawSocket) Received() ([]byte, bool) {
	if r.pending == nil {
		return nil, false
	}
	f := r.pending
	r.pending = nil
	return f, true
}

func (r *RawSocket) Close() error {
	return unix.Close(r.fd)
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | (v>>8)&0x00ff
}
