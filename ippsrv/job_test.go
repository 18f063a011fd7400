package ippsrv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrinter(t *testing.T) *Printer {
	t.Helper()
	return NewPrinter(nil, "test printer", "print")
}

func TestJob_SubmitIsPendingWithIncomingReasons(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")

	assert.Equal(t, JobPending, j.State)
	assert.Contains(t, j.Reasons(), JSRJobIncoming)
	assert.Contains(t, j.Reasons(), JSRJobDataInsufficient)
	assert.False(t, j.IsCompleted())
}

func TestJob_HoldThenReleaseFollowsS1(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")
	ctx := context.Background()

	require.NoError(t, j.sm.Event(ctx, jobEvtHold))
	assert.Equal(t, JobPendingHeld, j.State)
	assert.Contains(t, j.Reasons(), JSRJobHeldUntilSpecified)

	require.NoError(t, j.sm.Event(ctx, jobEvtRelease))
	assert.Equal(t, JobPending, j.State)

	require.NoError(t, j.sm.Event(ctx, jobEvtStartProc))
	assert.Equal(t, JobProcessing, j.State)
	assert.Equal(t, j.ID, p.processingJob)

	require.NoError(t, j.sm.Event(ctx, jobEvtFinish))
	assert.Equal(t, JobCompleted, j.State)
	assert.True(t, j.IsCompleted())
}

func TestJob_DataCompleteWhileHeldMovesToPending(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")
	ctx := context.Background()

	require.NoError(t, j.sm.Event(ctx, jobEvtHold))
	require.NoError(t, j.sm.Event(ctx, jobEvtDataComplete))
	assert.Equal(t, JobPending, j.State)
}

func TestJob_TerminalStatesAreSticky(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")
	ctx := context.Background()

	require.NoError(t, j.Cancel(ctx, false))
	assert.Equal(t, JobCanceled, j.State)
	assert.True(t, j.IsCompleted())

	err := j.Cancel(ctx, false)
	assert.Error(t, err, "canceling an already-terminal job must be rejected (§8 invariant 1)")
	assert.Equal(t, JobCanceled, j.State)
}

func TestJob_CancelWhileProcessingDefersToStopPoint(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")
	ctx := context.Background()

	require.NoError(t, j.sm.Event(ctx, jobEvtStartProc))
	require.NoError(t, j.Cancel(ctx, false))

	// S2: immediate effect is the processing-to-stop-point reason, not a
	// terminal state; the real transition waits for FinishCancel.
	assert.Equal(t, JobProcessing, j.State)
	assert.Contains(t, j.Reasons(), JSRProcessingToStopPoint)
	assert.True(t, j.cancelRequested)

	require.NoError(t, j.FinishCancel(ctx))
	assert.Equal(t, JobCanceled, j.State)
	assert.Contains(t, j.Reasons(), JSRJobCanceledByUser)
}

func TestJob_CancelByOperatorRecordsReason(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")
	ctx := context.Background()

	require.NoError(t, j.Cancel(ctx, true))
	assert.Contains(t, j.Reasons(), JSRJobCanceledByOperator)
}

func TestJob_FinishCancelIsNoopWithoutPriorCancel(t *testing.T) {
	p := newTestPrinter(t)
	j := NewJob(p, 1, "alice")
	ctx := context.Background()

	require.NoError(t, j.sm.Event(ctx, jobEvtStartProc))
	require.NoError(t, j.FinishCancel(ctx))
	assert.Equal(t, JobProcessing, j.State, "FinishCancel without a pending cancel must not transition the job")
}
