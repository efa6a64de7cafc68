package mailbox

import "time"

// perSlaveQueue holds one slave's pending requests, FIFO, plus whichever
// request is currently outstanding (at most one, per spec.md §4.9).
type perSlaveQueue struct {
	ringPosition int
	pending      []*Request // queued, not yet outstanding
	outstanding  *Request
}

// Arbiter multiplexes acyclic requests across slaves: one outstanding
// transfer per slave at a time, slaves serviced round-robin, requests
// within a slave serviced FIFO.
type Arbiter struct {
	queues []*perSlaveQueue
	cursor int // round-robin position into queues
}

// NewArbiter constructs an empty Arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

func (a *Arbiter) queueFor(ringPosition int) *perSlaveQueue {
	for _, q := range a.queues {
		if q.ringPosition == ringPosition {
			return q
		}
	}
	q := &perSlaveQueue{ringPosition: ringPosition}
	a.queues = append(a.queues, q)
	return q
}

// Enqueue adds req to its target slave's queue.
func (a *Arbiter) Enqueue(req *Request) {
	q := a.queueFor(req.RingPosition)
	q.pending = append(q.pending, req)
}

// Cancel removes req from its slave's pending queue if it has not yet gone
// outstanding. A request already in PhaseBusy is not honored — it is left
// to complete and then discarded, per spec.md §4.9's cancellation
// asymmetry, so its queue-wait timer does not leave the slave's
// service-channel half-open.
func (a *Arbiter) Cancel(req *Request) {
	if req.Phase == PhaseBusy {
		return
	}
	q := a.queueFor(req.RingPosition)
	for i, r := range q.pending {
		if r == req {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			req.Phase = PhaseFailed
			req.Abort = AbortSlaveNotReady
			return
		}
	}
}

// Step advances at most one outstanding (or about-to-become-outstanding)
// request per call, round-robin across slaves, and reports how many
// requests reached a terminal phase this call.
func (a *Arbiter) Step(now time.Time) int {
	if len(a.queues) == 0 {
		return 0
	}
	resolved := 0
	n := len(a.queues)
	for i := 0; i < n; i++ {
		idx := (a.cursor + i) % n
		q := a.queues[idx]

		if q.outstanding == nil {
			if len(q.pending) == 0 {
				continue
			}
			req := q.pending[0]
			if req.IssueTimeout > 0 && !req.IssuedAt.IsZero() && now.Sub(req.IssuedAt) > req.IssueTimeout {
				q.pending = q.pending[1:]
				req.Phase = PhaseFailed
				req.Abort = AbortIssueTimeout
				resolved++
				continue
			}
			// Admitting a request into the busy phase is itself this
			// call's action; its protocol stepper runs starting next
			// call, so admission and stepping never share one Step call.
			q.pending = q.pending[1:]
			q.outstanding = req
			req.Phase = PhaseBusy
			if req.IssuedAt.IsZero() {
				req.IssuedAt = now
			}
			req.lastStepAt = now
			a.cursor = (idx + 1) % n
			return resolved
		}

		req := q.outstanding
		if req.ResponseTimeout > 0 && now.Sub(req.lastStepAt) > req.ResponseTimeout {
			req.Phase = PhaseFailed
			req.Abort = AbortResponseTimeout
			q.outstanding = nil
			resolved++
			a.cursor = (idx + 1) % n
			return resolved
		}

		done, failed, abort, err := req.stepper.Step(now)
		req.lastStepAt = now
		if done {
			if failed {
				req.Phase = PhaseFailed
				req.Abort = abort
				req.LastErr = err
			} else {
				req.Phase = PhaseSuccess
			}
			q.outstanding = nil
			resolved++
		}
		a.cursor = (idx + 1) % n
		return resolved
	}
	return resolved
}

// Outstanding returns the currently outstanding request for ringPosition,
// if any.
func (a *Arbiter) Outstanding(ringPosition int) *Request {
	q := a.queueFor(ringPosition)
	return q.outstanding
}

// Pending returns the number of not-yet-outstanding requests queued for
// ringPosition.
func (a *Arbiter) Pending(ringPosition int) int {
	q := a.queueFor(ringPosition)
	return len(q.pending)
}
