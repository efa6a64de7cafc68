//go:build !linux

package gateway

import "net"

// listenConfig falls back to the zero-value ListenConfig on non-Linux
// builds: SO_REUSEADDR is set only where device.OpenRawSocket's raw-socket
// backend is even available (see reuseaddr_linux.go).
func listenConfig() *net.ListenConfig {
	return &net.ListenConfig{}
}
