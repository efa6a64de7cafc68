//go:build !linux

package cmdutil

import (
	"fmt"

	"github.com/go-ecat/ecmaster/device"
)

// openNetworkDevice has no non-Linux backend: raw AF_PACKET sockets are a
// Linux-only facility, same as device.OpenRawSocket itself.
func openNetworkDevice(iface string) (device.Device, error) {
	return nil, fmt.Errorf("cmdutil: raw network device %q requires a Linux host", iface)
}
