// Package cmdutil holds the flag state and master-connection plumbing
// shared by every ecmasterctl subcommand, the same role
// dittofsctl/cmdutil plays for dfsctl's subcommand tree.
package cmdutil

import (
	"fmt"
	"time"

	"github.com/go-ecat/ecmaster/config"
	"github.com/go-ecat/ecmaster/device"
	"github.com/go-ecat/ecmaster/frame"
	"github.com/go-ecat/ecmaster/hostapi"
	"github.com/go-ecat/ecmaster/master"
)

// Flags stores the global flag values every subcommand reads, synced by the
// root command's PersistentPreRun.
var Flags = &GlobalFlags{}

// GlobalFlags holds the values of ecmasterctl's global options (spec.md
// §6: master index, slave selector, verbosity).
type GlobalFlags struct {
	MasterIndex int
	Slave       string
	Quiet       bool
	Verbose     bool
	DebugLevel  int
	ConfigPath  string
	SettleTicks int
}

// polledDevice adapts a device.Device (which pulls bytes off the wire via
// Poll) into the narrower frame.Device the dispatcher consumes, so a
// connected subcommand sees fresh data without master needing to know
// about Poll at all.
type polledDevice struct {
	device.Device
}

func (p polledDevice) Received() ([]byte, bool) {
	p.Device.Poll()
	return p.Device.Received()
}

// Session is a connected, activated master ready for one subcommand's
// queries or mutations, along with the resources to release when done.
type Session struct {
	Master *master.Master
	Client *hostapi.Client
	dev    device.Device
	owned  bool
}

// Connect builds a device from configuration, claims the master at
// Flags.MasterIndex through the exclusivity registry, registers the
// static slave topology, activates the ring, and runs a short settling
// window of ticks so discovery-dependent queries (state, sdo) see
// populated slave state. There is no persistent master process in this
// build for a one-shot command to attach to, so each invocation opens its
// own session against the configured link and tears it down on Close —
// see DESIGN.md's cmd/ecmasterctl entry.
func Connect() (*Session, error) {
	cfg, err := config.Load(Flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	dev, err := BuildDevice(cfg.Network)
	if err != nil {
		return nil, err
	}

	m, err := master.RequestMaster(Flags.MasterIndex, dev)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("cmdutil: master %d: %w", Flags.MasterIndex, err)
	}
	m.SetDebugLevel(Flags.DebugLevel)

	for _, sc := range cfg.Slaves {
		if _, err := m.RegisterDomain(sc.Domain); err != nil {
			master.Release(Flags.MasterIndex)
			_ = dev.Close()
			return nil, err
		}
		if _, err := m.RegisterSlave(master.SlaveSpec{
			RingPosition: sc.RingPosition,
			Vendor:       sc.Vendor,
			Product:      sc.Product,
			Domain:       sc.Domain,
		}); err != nil {
			master.Release(Flags.MasterIndex)
			_ = dev.Close()
			return nil, err
		}
	}

	if err := m.Activate(); err != nil {
		master.Release(Flags.MasterIndex)
		_ = dev.Close()
		return nil, err
	}

	settle := Flags.SettleTicks
	if settle <= 0 {
		settle = 10
	}
	rt := m.NewRegisterTransactor()
	now := time.Now()
	for i := 0; i < settle; i++ {
		now = now.Add(cfg.TickInterval)
		m.Tick(now)
		m.StepLifecycles(rt)
	}

	return &Session{Master: m, Client: hostapi.New(m), dev: dev, owned: true}, nil
}

// Close releases the master back to the exclusivity registry and closes
// the underlying link.
func (s *Session) Close() {
	if s == nil {
		return
	}
	if s.owned {
		_ = s.Master.Deactivate()
		master.Release(Flags.MasterIndex)
	}
	if s.dev != nil {
		_ = s.dev.Close()
	}
}

// BuildDevice builds a frame-ready device for the given NIC name (empty for
// an in-memory loopback). A network device is wrapped so Received polls
// fresh data first; the loopback is returned unwrapped.
func BuildDevice(network string) (device.Device, error) {
	if network == "" {
		return device.NewLoopback(), nil
	}
	dev, err := openNetworkDevice(network)
	if err != nil {
		return nil, err
	}
	return polledDevice{dev}, nil
}

var _ frame.Device = polledDevice{}
