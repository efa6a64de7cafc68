package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStepper finishes successfully after N calls to Step.
type countingStepper struct {
	remaining int
}

func (s *countingStepper) Step(now time.Time) (done, failed bool, abort AbortCode, err error) {
	s.remaining--
	if s.remaining <= 0 {
		return true, false, AbortNone, nil
	}
	return false, false, AbortNone, nil
}

func TestArbiterSingleOutstandingPerSlave(t *testing.T) {
	a := NewArbiter()
	r1 := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 1}, 0, 0)
	r2 := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 1}, 0, 0)
	a.Enqueue(r1)
	a.Enqueue(r2)

	now := time.Unix(0, 0)
	a.Step(now) // r1 becomes outstanding (admission only, not yet stepped)
	assert.Equal(t, r1, a.Outstanding(0))
	assert.Equal(t, 1, a.Pending(0))

	a.Step(now) // r1 finishes
	assert.Equal(t, PhaseSuccess, r1.Phase)
	assert.Nil(t, a.Outstanding(0))

	a.Step(now) // r2 becomes outstanding (FIFO within slave)
	assert.Equal(t, r2, a.Outstanding(0))
}

func TestArbiterRoundRobinAcrossSlaves(t *testing.T) {
	a := NewArbiter()
	r0 := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 5}, 0, 0)
	r1 := NewRequest(KindServiceChannelRead, 1, &countingStepper{remaining: 5}, 0, 0)
	a.Enqueue(r0)
	a.Enqueue(r1)

	now := time.Unix(0, 0)
	a.Step(now) // slave 0 picked up
	assert.Equal(t, r0, a.Outstanding(0))
	assert.Nil(t, a.Outstanding(1))

	a.Step(now) // round-robin moves to slave 1
	assert.Equal(t, r1, a.Outstanding(1))
}

func TestArbiterResponseTimeout(t *testing.T) {
	a := NewArbiter()
	req := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 100}, 0, time.Millisecond)
	a.Enqueue(req)

	start := time.Unix(0, 0)
	a.Step(start)
	assert.Equal(t, PhaseBusy, req.Phase)

	a.Step(start.Add(5 * time.Millisecond))
	assert.Equal(t, PhaseFailed, req.Phase)
	assert.Equal(t, AbortResponseTimeout, req.Abort)
}

func TestArbiterIssueTimeout(t *testing.T) {
	a := NewArbiter()
	req := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 1}, time.Millisecond, 0)
	req.IssuedAt = time.Unix(0, 0)
	a.Enqueue(req)

	a.Step(time.Unix(0, 0).Add(5 * time.Millisecond))
	assert.Equal(t, PhaseFailed, req.Phase)
	assert.Equal(t, AbortIssueTimeout, req.Abort)
}

func TestArbiterCancelQueuedVsBusy(t *testing.T) {
	a := NewArbiter()
	r1 := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 5}, 0, 0)
	r2 := NewRequest(KindServiceChannelRead, 0, &countingStepper{remaining: 5}, 0, 0)
	a.Enqueue(r1)
	a.Enqueue(r2)

	now := time.Unix(0, 0)
	a.Step(now) // r1 goes busy
	require.Equal(t, PhaseBusy, r1.Phase)

	a.Cancel(r2) // still queued: honored
	assert.Equal(t, PhaseFailed, r2.Phase)
	assert.Equal(t, 0, a.Pending(0))

	a.Cancel(r1) // already busy: not honored
	assert.Equal(t, PhaseBusy, r1.Phase)
}
