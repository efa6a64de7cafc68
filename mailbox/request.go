// Package mailbox implements the acyclic request arbiter (component C9):
// a per-slave queue of mailbox-style transfers (parameter-object reads and
// writes, register peeks/pokes, file transfer, service-channel access),
// serviced round-robin across slaves with at most one outstanding request
// per slave (spec.md §4.9).
package mailbox

import "time"

// Kind tags the protocol a Request speaks. Each kind advances through its
// own protocol-specific state machine, one sub-command per tick.
type Kind uint8

const (
	KindParameterRead Kind = iota
	KindParameterWrite
	KindRegisterRead
	KindRegisterWrite
	KindFileRead
	KindFileWrite
	KindServiceChannelRead
	KindServiceChannelWrite
)

func (k Kind) String() string {
	switch k {
	case KindParameterRead:
		return "parameter_read"
	case KindParameterWrite:
		return "parameter_write"
	case KindRegisterRead:
		return "register_read"
	case KindRegisterWrite:
		return "register_write"
	case KindFileRead:
		return "file_read"
	case KindFileWrite:
		return "file_write"
	case KindServiceChannelRead:
		return "service_channel_read"
	case KindServiceChannelWrite:
		return "service_channel_write"
	default:
		return "kind<invalid>"
	}
}

// Phase is a request's position in its lifecycle (spec.md §3 "Acyclic
// request").
type Phase uint8

const (
	PhaseInit Phase = iota
	PhaseQueued
	PhaseBusy
	PhaseSuccess
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseQueued:
		return "queued"
	case PhaseBusy:
		return "busy"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	default:
		return "phase<invalid>"
	}
}

// IsTerminal reports whether p resolves the request.
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseFailed
}

// AbortCode gives a coarse reason for a failed request.
type AbortCode uint8

const (
	AbortNone AbortCode = iota
	AbortIssueTimeout
	AbortResponseTimeout
	AbortProtocolError
	AbortSlaveNotReady
)

// Stepper is the protocol-specific state machine a Request drives. Each
// call to Step executes at most one sub-command and reports whether the
// request has finished (successfully or not).
type Stepper interface {
	Step(now time.Time) (done bool, failed bool, abort AbortCode, err error)
}

// Request is one acyclic transfer, queued per-slave and serviced FIFO
// within that slave (spec.md §4.9).
type Request struct {
	Kind         Kind
	RingPosition int

	Payload    []byte
	UsedLength int

	Phase     Phase
	Abort     AbortCode
	LastErr   error

	IssuedAt         time.Time
	IssueTimeout     time.Duration // 0 disables the queue-wait timer
	ResponseTimeout  time.Duration
	lastStepAt       time.Time

	stepper Stepper
}

// NewRequest creates a queued Request for ringPosition with the given
// protocol stepper and timeouts. responseTimeout follows spec.md §4.9's
// defaults: 3s for parameter objects, 1s for service channel.
func NewRequest(kind Kind, ringPosition int, stepper Stepper, issueTimeout, responseTimeout time.Duration) *Request {
	return &Request{
		Kind:            kind,
		RingPosition:    ringPosition,
		Phase:           PhaseQueued,
		IssueTimeout:    issueTimeout,
		ResponseTimeout: responseTimeout,
		stepper:         stepper,
	}
}

// DefaultResponseTimeout returns spec.md §4.9's default response-timeout
// for the given request kind.
func DefaultResponseTimeout(k Kind) time.Duration {
	switch k {
	case KindParameterRead, KindParameterWrite:
		return 3000 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}
