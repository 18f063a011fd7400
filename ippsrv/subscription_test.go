package ippsrv

import (
	"testing"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_ZeroLeaseIsIndefinite(t *testing.T) {
	sys := NewSystem(nil)
	s := NewSubscription(sys, 1, "alice", 0)
	assert.False(t, s.expired(time.Now().AddDate(1, 0, 0)), "lease 0 means until shutdown (§6)")
	assert.EqualValues(t, 0, leaseForWire(s.leaseSeconds))
}

func TestSubscription_FiniteLeaseExpires(t *testing.T) {
	sys := NewSystem(nil)
	s := NewSubscription(sys, 1, "alice", 1)
	assert.False(t, s.expired(time.Now()))
	assert.True(t, s.expired(time.Now().Add(2*time.Second)))
}

func TestSubscription_SequenceNumbersAreMonotoneAndBounded(t *testing.T) {
	sys := NewSystem(nil)
	s := NewSubscription(sys, 1, "alice", 0)

	s.appendEvent("job-state-changed", &goipp.Message{})
	s.appendEvent("job-completed", &goipp.Message{})
	s.appendEvent("printer-state-changed", &goipp.Message{})

	require.Equal(t, int64(1), s.firstSequence)
	require.Equal(t, int64(3), s.lastSequence)

	events := s.eventsSince(0)
	require.Len(t, events, 3)
	for _, e := range events {
		vv, ok := findAttr(e.Operation, "notify-sequence-number")
		require.True(t, ok)
		seq := int64(vv[0].V.(goipp.Integer))
		assert.GreaterOrEqual(t, seq, s.firstSequence, "§8 invariant 3")
		assert.LessOrEqual(t, seq, s.lastSequence, "§8 invariant 3")
	}
}

func TestSubscription_EventsSinceFiltersByRequestedSequence(t *testing.T) {
	sys := NewSystem(nil)
	s := NewSubscription(sys, 1, "alice", 0)
	s.appendEvent("a", &goipp.Message{})
	s.appendEvent("b", &goipp.Message{})
	s.appendEvent("c", &goipp.Message{})

	events := s.eventsSince(3)
	require.Len(t, events, 1)
}

func TestSubscription_Matches(t *testing.T) {
	sys := NewSystem(nil)
	p1 := NewPrinter(sys, "p1", "print")
	p2 := NewPrinter(sys, "p2", "print")
	j := NewJob(p1, 1, "alice")

	scoped := NewSubscription(sys, 1, "alice", 0)
	scoped.Printer = p1
	assert.True(t, scoped.matches(p1, j))
	assert.False(t, scoped.matches(p2, nil))

	unscoped := NewSubscription(sys, 2, "alice", 0)
	assert.True(t, unscoped.matches(p1, j))
	assert.True(t, unscoped.matches(p2, nil))
}
