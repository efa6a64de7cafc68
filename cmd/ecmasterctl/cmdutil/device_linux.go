//go:build linux

package cmdutil

import "github.com/go-ecat/ecmaster/device"

// openNetworkDevice binds a raw AF_PACKET socket to the named interface.
func openNetworkDevice(iface string) (device.Device, error) {
	return device.OpenRawSocket(iface)
}
