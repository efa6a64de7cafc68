// Package hostapi exposes the master's host-interface command surface as a
// plain Go API instead of the ioctl-equivalent device file spec.md §6
// describes: module info, slave enumeration, sync-manager/mapper/PDO
// inspection, acyclic request issue/poll/data/state, mailbox-gateway
// forwarding, and master count. There is no kernel driver underneath this
// build, so Client wraps a *master.Master directly; cmd/ecmasterctl and
// gateway are both consumers, mirroring spec.md §1's description of the
// real ioctl surface's consumers.
package hostapi

import (
	"fmt"
	"time"

	"github.com/go-ecat/ecmaster/mailbox"
	"github.com/go-ecat/ecmaster/master"
	"github.com/go-ecat/ecmaster/slave"
)

// Client is the host-interface handle bound to one master instance.
type Client struct {
	m *master.Master
}

// New wraps m as a host-interface client.
func New(m *master.Master) *Client {
	return &Client{m: m}
}

// ModuleInfo summarizes a master instance's module-info command response.
type ModuleInfo struct {
	Activated   bool
	DomainCount int
	SlaveCount  int
	DebugLevel  int
}

// ModuleInfo returns the master's module info.
func (c *Client) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		Activated:   c.m.Activated(),
		DomainCount: len(c.m.DomainNames()),
		SlaveCount:  len(c.m.Slaves()),
		DebugLevel:  c.m.DebugLevel(),
	}
}

// Domains lists the name of every registered domain.
func (c *Client) Domains() []string {
	return c.m.DomainNames()
}

// DomainStatus returns the working-counter status of the domain named
// name, as of the most recent tick.
func (c *Client) DomainStatus(name string) (master.WKCStatus, bool) {
	return c.m.DomainStatus(name)
}

// SlaveInfo is one slave enumeration row.
type SlaveInfo struct {
	RingPosition int
	StationAddr  uint16
	VendorID     uint32
	ProductCode  uint32
	CurrentState slave.State
	TargetState  slave.State
}

// Slaves enumerates every registered slave, sorted by ring position.
func (c *Client) Slaves() []SlaveInfo {
	all := c.m.Slaves()
	out := make([]SlaveInfo, 0, len(all))
	for pos, s := range all {
		out = append(out, SlaveInfo{
			RingPosition: pos,
			StationAddr:  s.StationAddress,
			VendorID:     s.Identity.VendorID,
			ProductCode:  s.Identity.ProductCode,
			CurrentState: s.CurrentState,
			TargetState:  s.TargetState,
		})
	}
	sortSlaveInfo(out)
	return out
}

func sortSlaveInfo(s []SlaveInfo) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].RingPosition < s[j-1].RingPosition; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// SyncManagers returns the sync-manager inspection rows for the slave at
// ringPosition.
func (c *Client) SyncManagers(ringPosition int) ([]slave.SyncManager, bool) {
	s, ok := c.m.Slaves()[ringPosition]
	if !ok {
		return nil, false
	}
	return s.SyncManagers, true
}

// Mappers returns the memory-mapper inspection rows for the slave at
// ringPosition.
func (c *Client) Mappers(ringPosition int) ([]slave.MemoryMapperEntry, bool) {
	s, ok := c.m.Slaves()[ringPosition]
	if !ok {
		return nil, false
	}
	return s.Mappers, true
}

// PDOs returns every parameter-object descriptor currently assigned across
// the slave's sync managers at ringPosition.
func (c *Client) PDOs(ringPosition int) ([]slave.PDODescriptor, bool) {
	s, ok := c.m.Slaves()[ringPosition]
	if !ok {
		return nil, false
	}
	var pdos []slave.PDODescriptor
	for _, sm := range s.SyncManagers {
		pdos = append(pdos, sm.PDOs...)
	}
	return pdos, true
}

// State returns the current and target lifecycle state of the slave at
// ringPosition.
func (c *Client) State(ringPosition int) (current, target slave.State, ok bool) {
	s, found := c.m.Slaves()[ringPosition]
	if !found {
		return 0, 0, false
	}
	return s.CurrentState, s.TargetState, true
}

// RequestState retargets the slave's lifecycle FSM at ringPosition toward
// target; the FSM makes progress on subsequent StepLifecycles/Tick calls.
func (c *Client) RequestState(ringPosition int, target slave.State) error {
	f := c.m.LifecycleFSM(ringPosition)
	if f == nil {
		return fmt.Errorf("hostapi: no slave registered at ring position %d", ringPosition)
	}
	f.Retarget(target)
	return nil
}

// IssueParameterRead enqueues a parameter-object read, as Master does.
func (c *Client) IssueParameterRead(ringPosition int, index uint16, subindex uint8) *mailbox.Request {
	return c.m.IssueParameterRead(ringPosition, index, subindex)
}

// IssueParameterWrite enqueues a parameter-object write.
func (c *Client) IssueParameterWrite(ringPosition int, index uint16, subindex uint8, data []byte) *mailbox.Request {
	return c.m.IssueParameterWrite(ringPosition, index, subindex, data)
}

// IssueServiceChannelRead enqueues a service-channel read.
func (c *Client) IssueServiceChannelRead(ringPosition int, index uint16, subindex uint8) *mailbox.Request {
	return c.m.IssueServiceChannelRead(ringPosition, index, subindex)
}

// IssueServiceChannelWrite enqueues a service-channel write.
func (c *Client) IssueServiceChannelWrite(ringPosition int, index uint16, subindex uint8, data []byte) *mailbox.Request {
	return c.m.IssueServiceChannelWrite(ringPosition, index, subindex, data)
}

// IssueFileRead enqueues a file (FoE) read of the first length bytes of
// fileName, as Master does.
func (c *Client) IssueFileRead(ringPosition int, fileName string, length int) *mailbox.Request {
	return c.m.IssueFileRead(ringPosition, fileName, length)
}

// IssueFileWrite enqueues a file (FoE) write of data as fileName.
func (c *Client) IssueFileWrite(ringPosition int, fileName string, data []byte) *mailbox.Request {
	return c.m.IssueFileWrite(ringPosition, fileName, data)
}

// Poll reports a request's current phase without blocking — the "poll"
// half of the issue/poll/data/state command group.
func (c *Client) Poll(req *mailbox.Request) mailbox.Phase {
	return req.Phase
}

// Data returns the bytes a completed read request resolved to, if any.
func (c *Client) Data(req *mailbox.Request) []byte {
	return req.Payload
}

// Await drives the master's acyclic arbiter until req reaches a terminal
// phase or budget steps elapse, for callers with no running Tick loop of
// their own (a one-shot command-line invocation, for instance).
func (c *Client) Await(req *mailbox.Request, budget int) error {
	now := time.Now()
	for i := 0; i < budget && !req.Phase.IsTerminal(); i++ {
		now = now.Add(time.Millisecond)
		c.m.StepMailbox(now)
	}
	if !req.Phase.IsTerminal() {
		return fmt.Errorf("hostapi: request did not resolve within %d steps", budget)
	}
	if req.Phase == mailbox.PhaseFailed {
		return fmt.Errorf("hostapi: request failed: %w", req.LastErr)
	}
	return nil
}

// ForwardMailbox services one raw mailbox-gateway frame synchronously,
// standing in for the ioctl the gateway otherwise forwards into (spec.md
// §6 "Gateway protocol"). The frame layout is this build's own invented
// envelope, since spec.md treats the gateway as an external adapter and
// does not fix one: byte 0-1 station address, byte 2-3 register offset,
// byte 4 flags (bit0 set selects write), remaining bytes are either the
// data to write or, for a read, a 2-byte big-endian read length.
func (c *Client) ForwardMailbox(frame []byte) ([]byte, error) {
	const headerLen = 5
	if len(frame) < headerLen {
		return nil, fmt.Errorf("hostapi: mailbox frame too short: %d bytes", len(frame))
	}
	station := uint16(frame[0])<<8 | uint16(frame[1])
	offset := uint16(frame[2])<<8 | uint16(frame[3])
	write := frame[4]&0x01 != 0

	rt := c.m.NewRegisterTransactor()
	if write {
		data := frame[headerLen:]
		if err := rt.WriteRegister(station, offset, data); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if len(frame) < headerLen+2 {
		return nil, fmt.Errorf("hostapi: mailbox read frame missing length field")
	}
	length := int(frame[headerLen])<<8 | int(frame[headerLen+1])
	return rt.ReadRegister(station, offset, length)
}

// MasterCount returns how many master instances are currently claimed via
// the master package's exclusivity registry.
func MasterCount() int {
	return master.RegisteredCount()
}
