//go:build linux

package gateway

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenConfig returns a net.ListenConfig whose Control sets SO_REUSEADDR on
// the listening socket before bind, matching spec.md §6's "TCP uses
// TCP_NODELAY and SO_REUSEADDR" — the same raw-socket-option convention
// device.OpenRawSocket already uses via golang.org/x/sys/unix.
func listenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
}
