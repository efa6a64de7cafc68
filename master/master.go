package master

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ecat/ecmaster/coe"
	"github.com/go-ecat/ecmaster/domain"
	"github.com/go-ecat/ecmaster/frame"
	"github.com/go-ecat/ecmaster/lifecycle"
	"github.com/go-ecat/ecmaster/mailbox"
	"github.com/go-ecat/ecmaster/slave"
)

var (
	errNotActivated  = errors.New("master: not activated")
	errAlreadyActive = errors.New("master: already activated")
	errBusy          = errors.New("master: index already in use")
	errMismatch      = errors.New("master: slave identity mismatch")
)

// registryMu guards the package-level exclusivity registry RequestMaster
// implements, matching spec.md §4.10's "busy until released" contract.
var (
	registryMu sync.Mutex
	registry   = map[int]*Master{}
)

// RequestMaster claims exclusive use of the master instance at index,
// returning errBusy if it is already claimed.
func RequestMaster(index int, dev frame.Device) (*Master, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, taken := registry[index]; taken {
		return nil, errBusy
	}
	m := newMaster(dev)
	registry[index] = m
	return m, nil
}

// Release returns the master at index to the idle pool.
func Release(index int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, index)
}

// RegisteredCount reports how many master instances are currently claimed,
// the "master count" host-interface command spec.md §6 lists.
func RegisteredCount() int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return len(registry)
}

// Master is the application façade (component C10) over the cyclic engine,
// acyclic arbiter, and per-slave lifecycle FSMs. All master-owned state is
// guarded by mu, acquired non-blockingly (try-lock) from the realtime tick
// path and blockingly from any servicing goroutine, per spec.md §5.
type Master struct {
	mu sync.Mutex

	dev        frame.Device
	pool       *frame.Pool
	dispatcher *frame.Dispatcher

	domains []*domainRuntime
	slaves  map[int]*slave.Slave
	fsms    map[int]*lifecycle.FSM
	arbiter *mailbox.Arbiter

	activated  bool
	debugLevel int

	metrics *metrics
}

func newMaster(dev frame.Device) *Master {
	pool := frame.NewPool()
	return &Master{
		dev:        dev,
		pool:       pool,
		dispatcher: frame.NewDispatcher(pool, dev),
		slaves:     map[int]*slave.Slave{},
		fsms:       map[int]*lifecycle.FSM{},
		arbiter:    mailbox.NewArbiter(),
	}
}

// NewMaster constructs a standalone Master without the RequestMaster
// exclusivity registry — used by tests and embedders that manage their own
// lifetime.
func NewMaster(dev frame.Device) *Master {
	return newMaster(dev)
}

// TryLock attempts to acquire the master lock without blocking, for the
// realtime tick path.
func (m *Master) TryLock() bool {
	return m.mu.TryLock()
}

// Lock blockingly acquires the master lock, for the optional servicing
// path.
func (m *Master) Lock() {
	m.mu.Lock()
}

// Unlock releases the master lock.
func (m *Master) Unlock() {
	m.mu.Unlock()
}

// SetDebugLevel sets the diagnostic verbosity level (0-3).
func (m *Master) SetDebugLevel(level int) {
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}
	m.debugLevel = level
}

// DebugLevel returns the current diagnostic verbosity level.
func (m *Master) DebugLevel() int {
	return m.debugLevel
}

// RegisterDomain creates (or returns the existing) domain named name.
func (m *Master) RegisterDomain(name string) (*domain.Domain, error) {
	if m.activated {
		return nil, errAlreadyActive
	}
	for _, dr := range m.domains {
		if dr.dom.Name == name {
			return dr.dom, nil
		}
	}
	d := domain.New(name)
	m.domains = append(m.domains, &domainRuntime{dom: d})
	return d, nil
}

// SlaveSpec describes one slave to register, matching spec.md §4.10's
// register_slave contract.
type SlaveSpec struct {
	RingPosition int
	Vendor       uint32
	Product      uint32
	Domain       string
}

// RegisterSlave registers a single slave, failing if a slave already
// registered at the same ring position carries a different vendor/product.
func (m *Master) RegisterSlave(spec SlaveSpec) (*slave.Slave, error) {
	if existing, ok := m.slaves[spec.RingPosition]; ok {
		if existing.Identity.VendorID != spec.Vendor || existing.Identity.ProductCode != spec.Product {
			return nil, fmt.Errorf("%w: ring position %d", errMismatch, spec.RingPosition)
		}
		return existing, nil
	}
	s := &slave.Slave{
		RingPosition: spec.RingPosition,
		Identity:     slave.Identity{VendorID: spec.Vendor, ProductCode: spec.Product},
		ConfigRef:    slave.ConfigRef{Vendor: spec.Vendor, Product: spec.Product, Domain: spec.Domain},
	}
	m.slaves[spec.RingPosition] = s
	return s, nil
}

// RegisterSlaveList registers every spec in specs, returning the count that
// succeeded; a mismatch for one slave does not abort the rest.
func (m *Master) RegisterSlaveList(specs []SlaveSpec) int {
	n := 0
	for _, spec := range specs {
		if _, err := m.RegisterSlave(spec); err == nil {
			n++
		}
	}
	return n
}

// Activate freezes every domain's memory-mapper layout, assigns each
// domain a master-wide logical base address, and starts a lifecycle FSM
// driving every registered slave toward operational state.
func (m *Master) Activate() error {
	if m.activated {
		return errAlreadyActive
	}
	var cursor uint32
	for _, dr := range m.domains {
		dr.dom.Activate()
		dr.dom.SetLogicalBase(cursor)
		cursor += uint32(dr.dom.Size())
		dr.expectWKC = uint16(len(dr.dom.Entries()))
	}
	for pos, s := range m.slaves {
		m.fsms[pos] = lifecycle.New(s, slave.StateOp)
	}
	m.activated = true
	return nil
}

// Deactivate drives every slave back to init and leaves cyclic mode. It
// runs the lifecycle FSMs to completion synchronously, bounded by a
// generous step budget, since graceful shutdown is not a hard-realtime
// path (spec.md §5).
func (m *Master) Deactivate() error {
	if !m.activated {
		return nil
	}
	rt := newRegisterTransactor(m)
	for pos, s := range m.slaves {
		f := lifecycle.New(s, slave.StateInit)
		for i := 0; i < 10_000 && !f.Done(); i++ {
			f.Step(rt)
		}
		m.fsms[pos] = f
	}
	m.activated = false
	return nil
}

// Activated reports whether Activate has run without a matching
// Deactivate.
func (m *Master) Activated() bool {
	return m.activated
}

// DomainNames returns the name of every registered domain.
func (m *Master) DomainNames() []string {
	names := make([]string, 0, len(m.domains))
	for _, dr := range m.domains {
		names = append(names, dr.dom.Name)
	}
	return names
}

// Domain returns the registered domain named name, if any.
func (m *Master) Domain(name string) (*domain.Domain, bool) {
	for _, dr := range m.domains {
		if dr.dom.Name == name {
			return dr.dom, true
		}
	}
	return nil, false
}

// DomainStatus returns the working-counter status domain name carried away
// from the most recent tick.
func (m *Master) DomainStatus(name string) (WKCStatus, bool) {
	for _, dr := range m.domains {
		if dr.dom.Name == name {
			return dr.lastStatus, true
		}
	}
	return 0, false
}

// Slaves returns every registered slave, keyed by ring position.
func (m *Master) Slaves() map[int]*slave.Slave {
	return m.slaves
}

// LifecycleFSM returns the lifecycle FSM driving the slave at ringPosition,
// if any.
func (m *Master) LifecycleFSM(ringPosition int) *lifecycle.FSM {
	return m.fsms[ringPosition]
}

// StepLifecycles advances every slave's lifecycle FSM by one step, using
// the dedicated register transactor. The application calls this once per
// tick alongside Tick to make configuration progress outside the
// hard-realtime image exchange.
func (m *Master) StepLifecycles(rt lifecycle.Transport) {
	for _, f := range m.fsms {
		if !f.Done() {
			f.Step(rt)
		}
	}
}

// NewRegisterTransactor returns a lifecycle.Transport/coe.Transactor-style
// helper bound to this master's dispatcher, issuing one dedicated
// single-sub-command frame per register access. Exposed for callers that
// drive lifecycle FSMs or acyclic issuers directly.
func (m *Master) NewRegisterTransactor() *registerTransactor {
	return newRegisterTransactor(m)
}

// coeTransactorFor adapts the register transactor to coe.Transactor for a
// specific slave's station address, approximating the object-dictionary
// service channel as register-addressed access (see DESIGN.md).
func (m *Master) coeTransactorFor(station uint16) coe.Transactor {
	return &coeAdapter{station: station, rt: newRegisterTransactor(m)}
}

type coeAdapter struct {
	station uint16
	rt      *registerTransactor
}

func (c *coeAdapter) ReadEntry(index uint16, subindex uint8) ([]byte, error) {
	return c.rt.ReadRegister(c.station, index+uint16(subindex), 0)
}

func (c *coeAdapter) WriteEntry(index uint16, subindex uint8, data []byte) error {
	return c.rt.WriteRegister(c.station, index+uint16(subindex), data)
}

// mailboxReady returns the acyclic sub-commands ready to piggyback on this
// tick's frame within the given byte budget. The current implementation
// services acyclic requests through their own dedicated frames (see
// registerTransactor) rather than packing them into the cyclic frame; this
// keeps the cyclic image exchange simple at the cost of the literal
// single-frame-per-tick packing spec.md §4.8 describes. See DESIGN.md.
func (m *Master) mailboxReady(budget int) []*frame.Descriptor {
	_ = budget
	return nil
}

// reconcileMailbox advances the acyclic arbiter once per tick, after the
// cyclic frame has been dispatched (spec.md §5 ordering guarantee).
func (m *Master) reconcileMailbox(now time.Time, _ []*frame.Descriptor) {
	m.StepMailbox(now)
}

// StepMailbox advances the acyclic arbiter by one step, for callers driving
// it outside the Tick loop — a one-shot command-line issuer has no running
// cyclic engine to piggyback on, so it steps the arbiter itself (see
// hostapi.Client.Await).
func (m *Master) StepMailbox(now time.Time) int {
	return m.arbiter.Step(now)
}

// releaseTerminalMailbox is a hook reserved for descriptor bookkeeping if
// mailbox sub-commands are ever packed directly into the cyclic frame; the
// current arbiter design owns no frame descriptors itself (spec.md §4.9).
func (m *Master) releaseTerminalMailbox(_ []*frame.Descriptor) {}

// IssueParameterRead enqueues a parameter-object read for ringPosition and
// returns the request handle.
func (m *Master) IssueParameterRead(ringPosition int, index uint16, subindex uint8) *mailbox.Request {
	return m.issue(mailbox.KindParameterRead, ringPosition, &parameterStepper{
		t: m.coeTransactorFor(m.stationOf(ringPosition)), index: index, subindex: subindex,
	})
}

// IssueParameterWrite enqueues a parameter-object write.
func (m *Master) IssueParameterWrite(ringPosition int, index uint16, subindex uint8, data []byte) *mailbox.Request {
	return m.issue(mailbox.KindParameterWrite, ringPosition, &parameterStepper{
		t: m.coeTransactorFor(m.stationOf(ringPosition)), index: index, subindex: subindex, write: data,
	})
}

// IssueRegisterRead enqueues a raw register read.
func (m *Master) IssueRegisterRead(ringPosition int, offset uint16, length int) *mailbox.Request {
	return m.issue(mailbox.KindRegisterRead, ringPosition, &registerStepper{
		rt: newRegisterTransactor(m), station: m.stationOf(ringPosition), offset: offset, length: length,
	})
}

// IssueRegisterWrite enqueues a raw register write.
func (m *Master) IssueRegisterWrite(ringPosition int, offset uint16, data []byte) *mailbox.Request {
	return m.issue(mailbox.KindRegisterWrite, ringPosition, &registerStepper{
		rt: newRegisterTransactor(m), station: m.stationOf(ringPosition), offset: offset, write: data,
	})
}

// IssueServiceChannelRead enqueues a service-channel read, identical in
// shape to a parameter-object read but with the shorter default response
// timeout spec.md §4.9 gives service-channel transfers.
func (m *Master) IssueServiceChannelRead(ringPosition int, index uint16, subindex uint8) *mailbox.Request {
	return m.issue(mailbox.KindServiceChannelRead, ringPosition, &parameterStepper{
		t: m.coeTransactorFor(m.stationOf(ringPosition)), index: index, subindex: subindex,
	})
}

// IssueServiceChannelWrite enqueues a service-channel write.
func (m *Master) IssueServiceChannelWrite(ringPosition int, index uint16, subindex uint8, data []byte) *mailbox.Request {
	return m.issue(mailbox.KindServiceChannelWrite, ringPosition, &parameterStepper{
		t: m.coeTransactorFor(m.stationOf(ringPosition)), index: index, subindex: subindex, write: data,
	})
}

// requestBinder lets a stepper capture the Request it resolves, so a
// successful read can hand its result back through Request.Payload — the
// only channel hostapi needs to retrieve acyclic read results generically.
type requestBinder interface {
	SetRequest(*mailbox.Request)
}

func (m *Master) issue(kind mailbox.Kind, ringPosition int, stepper mailbox.Stepper) *mailbox.Request {
	req := mailbox.NewRequest(kind, ringPosition, stepper, 0, mailbox.DefaultResponseTimeout(kind))
	if binder, ok := stepper.(requestBinder); ok {
		binder.SetRequest(req)
	}
	m.arbiter.Enqueue(req)
	return req
}

func (m *Master) stationOf(ringPosition int) uint16 {
	if s, ok := m.slaves[ringPosition]; ok {
		return s.StationAddress
	}
	return 0
}
