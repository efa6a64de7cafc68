// Package ecerr defines the master's error-kind taxonomy and propagation
// helpers. Every fault the core raises is one of the Kind values below;
// components attach their own context (component name, slave, domain) by
// wrapping with New and the With* chain.
package ecerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the fault categories a tick or acyclic request can raise.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindLinkDown means the NIC is unavailable; the master stays active
	// and retries on the next tick.
	KindLinkDown
	// KindTimeout means no response arrived within the dispatch budget.
	KindTimeout
	// KindTopologyChanged means a received frame's index does not match
	// the frame in flight; the ring changed shape mid-exchange.
	KindTopologyChanged
	// KindWorkingCounterShort means fewer slaves processed a sub-command
	// than expected.
	KindWorkingCounterShort
	// KindProtocolViolation means a response was malformed; the frame is
	// dropped and the NIC told to discard.
	KindProtocolViolation
	// KindConfigurationRejected means a slave refused a state change or
	// PDO configuration step.
	KindConfigurationRejected
	// KindCapabilityMissing means a slave lacks a feature required by the
	// requested configuration.
	KindCapabilityMissing
	// KindInvalidArgument means the caller passed a bad argument; it
	// surfaces synchronously with no state change.
	KindInvalidArgument
	// KindResourceExhausted means the frame pool or another bounded
	// resource has no capacity left.
	KindResourceExhausted
)

var kindNames = [...]string{
	"unknown",
	"link_down",
	"timeout",
	"topology_changed",
	"working_counter_short",
	"protocol_violation",
	"configuration_rejected",
	"capability_missing",
	"invalid_argument",
	"resource_exhausted",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind<invalid>"
}

// Error is the wrapped, context-carrying error type the master returns.
// Component identifies which part of the master raised it (e.g. "frame",
// "lifecycle", "coe"); Slave is a ring position (-1 if not applicable);
// Domain is a domain name ("" if not applicable).
type Error struct {
	Kind      Kind
	Component string
	Slave     int
	Domain    string
	Err       error
}

// New creates an Error of the given kind, wrapping cause. Slave is set to -1
// (not applicable) by default; chain WithSlave/WithDomain to attach context.
func New(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Slave: -1, Err: cause}
}

// Newf creates an Error from a formatted message instead of an existing
// cause.
func Newf(kind Kind, component, format string, args ...any) *Error {
	return New(kind, component, fmt.Errorf(format, args...))
}

// WithSlave returns a copy of e tagged with the given ring position.
func (e *Error) WithSlave(ringPosition int) *Error {
	c := *e
	c.Slave = ringPosition
	return &c
}

// WithDomain returns a copy of e tagged with the given domain name.
func (e *Error) WithDomain(domain string) *Error {
	c := *e
	c.Domain = domain
	return &c
}

// Error implements error.
func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Component, e.Kind)
	if e.Slave >= 0 {
		s += fmt.Sprintf(" slave=%d", e.Slave)
	}
	if e.Domain != "" {
		s += fmt.Sprintf(" domain=%s", e.Domain)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel causes used when no richer wrapped error is available.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrResourceExhausted   = errors.New("resource exhausted")
	ErrTopologyChanged     = errors.New("topology changed")
	ErrWorkingCounterShort = errors.New("working counter short")
)
