package ippsrv

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/looplab/fsm"
)

// cancelSignal is sent to a processing job's transform child on Cancel-Job
// (§5 "Cancellation & timeouts").
var cancelSignal = syscall.SIGTERM

// JobState is the Job's job-state value (RFC 8011 §5.3.7).
type JobState int32

const (
	JobPending JobState = iota + 3
	JobPendingHeld
	JobProcessing
	JobProcessingStopped
	JobCanceled
	JobAborted
	JobCompleted
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobPendingHeld:
		return "pending-held"
	case JobProcessing:
		return "processing"
	case JobProcessingStopped:
		return "processing-stopped"
	case JobCanceled:
		return "canceled"
	case JobAborted:
		return "aborted"
	case JobCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// JobStateReason is a job-state-reasons bitset member (§3 Job).
type JobStateReason string

const (
	JSRNone                  JobStateReason = "none"
	JSRJobIncoming           JobStateReason = "job-incoming"
	JSRJobDataInsufficient   JobStateReason = "job-data-insufficient"
	JSRDocumentAccessError   JobStateReason = "document-access-error"
	JSRSubmissionInterrupted JobStateReason = "submission-interrupted"
	JSRJobHeldUntilSpecified JobStateReason = "job-held-until-specified"
	JSRJobQueued             JobStateReason = "job-queued"
	JSRJobTransforming       JobStateReason = "job-transforming"
	JSRJobPrinting           JobStateReason = "job-printing"
	JSRFetchable             JobStateReason = "job-fetchable"
	JSRProcessingToStopPoint JobStateReason = "processing-to-stop-point"
	JSRJobStopped            JobStateReason = "job-stopped"
	JSRJobCanceledByUser     JobStateReason = "job-canceled-by-user"
	JSRJobCanceledByOperator JobStateReason = "job-canceled-by-operator"
	JSRAbortedBySystem       JobStateReason = "aborted-by-system"
	JSRDocumentFormatError   JobStateReason = "document-format-error"
	JSRJobCompletedSuccess   JobStateReason = "job-completed-successfully"
	JSRJobCompletedWarnings  JobStateReason = "job-completed-with-warnings"
	JSRJobCompletedErrors    JobStateReason = "job-completed-with-errors"
)

const (
	jobEvtSubmit       = "submit"
	jobEvtHold         = "hold"
	jobEvtRelease      = "release"
	jobEvtDataComplete = "data-complete"
	jobEvtStartProc    = "start-proc"
	jobEvtStop         = "stop"
	jobEvtFinish       = "finish"
	jobEvtCancel       = "cancel"
	jobEvtAbort        = "abort"
)

// jobFsmEvents implements the §4.3 Job transition table.
var jobFsmEvents = []fsm.EventDesc{
	{Name: jobEvtHold, Src: []string{JobPending.String()}, Dst: JobPendingHeld.String()},
	{Name: jobEvtRelease, Src: []string{JobPendingHeld.String()}, Dst: JobPending.String()},
	{Name: jobEvtDataComplete, Src: []string{JobPendingHeld.String()}, Dst: JobPending.String()},
	{Name: jobEvtStartProc, Src: []string{JobPending.String(), JobProcessingStopped.String()}, Dst: JobProcessing.String()},
	{Name: jobEvtStop, Src: []string{JobProcessing.String()}, Dst: JobProcessingStopped.String()},
	{Name: jobEvtFinish, Src: []string{JobProcessing.String()}, Dst: JobCompleted.String()},
	{Name: jobEvtCancel, Src: []string{JobPending.String(), JobPendingHeld.String(), JobProcessing.String(), JobProcessingStopped.String()}, Dst: JobCanceled.String()},
	{Name: jobEvtAbort, Src: []string{JobPending.String(), JobPendingHeld.String(), JobProcessing.String(), JobProcessingStopped.String()}, Dst: JobAborted.String()},
}

// Job is a single IPP Job object owned by exactly one Printer (§3 Job).
type Job struct {
	mu sync.Mutex

	ID      JobID
	UUID    string
	Printer *Printer // weak back-reference; owning store is the Printer's

	Username string
	Priority int

	JobAttrs      goipp.Attributes
	DocumentAttrs goipp.Attributes

	State        JobState
	stateReasons map[JobStateReason]bool

	Created    time.Time
	Processing time.Time
	Completed  time.Time
	HoldUntil  time.Time

	FormatSupplied string
	FormatDetected string
	Format         string

	SpoolPath string
	Filename  string

	ImpressionsCompleted int

	cancelRequested     bool
	pendingCancelReason JobStateReason

	// proxy/fetch state (§4.8)
	DeviceUUID    string
	DeviceState   string
	DeviceReasons []string
	DeviceMessage string

	transformCmd *exec.Cmd

	sm *fsm.FSM
}

// NewJob constructs a Job in the pending state, owned by p.
func NewJob(p *Printer, id JobID, username string) *Job {
	j := &Job{
		ID:           id,
		UUID:         jobUUID(p.Name, id),
		Printer:      p,
		Username:     username,
		State:        JobPending,
		stateReasons: map[JobStateReason]bool{JSRJobIncoming: true, JSRJobDataInsufficient: true},
		Created:      time.Now(),
	}
	j.sm = j.makeFSM()
	return j
}

func (j *Job) makeFSM() *fsm.FSM {
	lg := slog.With("job", j.ID, "printer", j.Printer.Name)
	return fsm.NewFSM(
		JobPending.String(),
		jobFsmEvents,
		fsm.Callbacks{
			jobEvtHold: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job held")
				j.State = JobPendingHeld
				j.setReasons(JSRJobHeldUntilSpecified)
			},
			jobEvtRelease: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job released")
				j.State = JobPending
				j.HoldUntil = time.Time{}
				j.setReasons(JSRJobQueued)
			},
			jobEvtDataComplete: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job data complete while held")
				j.State = JobPending
				j.setReasons(JSRJobQueued)
			},
			jobEvtStartProc: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job processing started")
				j.State = JobProcessing
				j.Processing = time.Now()
				j.setReasons(JSRJobPrinting, JSRJobTransforming)
				j.Printer.noteJobStart(ctx, j.ID)
			},
			jobEvtStop: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job processing stopped")
				j.State = JobProcessingStopped
				j.setReasons(JSRJobStopped)
				j.Printer.noteJobDrain(ctx)
			},
			jobEvtFinish: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job completed")
				j.State = JobCompleted
				j.Completed = time.Now()
				j.setReasons(JSRJobCompletedSuccess)
				j.Printer.noteJobDrain(ctx)
			},
			jobEvtCancel: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job canceled")
				wasProcessing := j.State == JobProcessing
				j.State = JobCanceled
				reason := JSRJobCanceledByUser
				if len(e.Args) > 0 {
					if r, ok := e.Args[0].(JobStateReason); ok {
						reason = r
					}
				}
				j.setReasons(reason)
				j.Completed = time.Now()
				if wasProcessing {
					j.Printer.noteJobDrain(ctx)
				}
			},
			jobEvtAbort: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "job aborted")
				wasProcessing := j.State == JobProcessing
				j.State = JobAborted
				j.setReasons(JSRAbortedBySystem)
				j.Completed = time.Now()
				if wasProcessing {
					j.Printer.noteJobDrain(ctx)
				}
			},
		},
	)
}

func (j *Job) setReasons(rs ...JobStateReason) {
	j.stateReasons = make(map[JobStateReason]bool, len(rs))
	for _, r := range rs {
		j.stateReasons[r] = true
	}
}

func (j *Job) addReason(r JobStateReason) {
	if j.stateReasons == nil {
		j.stateReasons = map[JobStateReason]bool{}
	}
	j.stateReasons[r] = true
}

func (j *Job) removeReason(r JobStateReason) {
	delete(j.stateReasons, r)
}

func (j *Job) Reasons() []JobStateReason {
	out := make([]JobStateReason, 0, len(j.stateReasons))
	for r, set := range j.stateReasons {
		if set {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = append(out, JSRNone)
	}
	return out
}

// IsCompleted reports whether the job is in a terminal state (§8 invariant 1).
func (j *Job) IsCompleted() bool {
	return j.State == JobCompleted || j.State == JobCanceled || j.State == JobAborted
}

// Cancel applies the §4.3/§5 cancel semantics: terminal states are
// rejected; a processing job is flagged and sent SIGTERM, with the actual
// transition deferred until the transform child exits (see transform
// package's exit handler, which consults pendingCancelReason).
func (j *Job) Cancel(ctx context.Context, byOperator bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.IsCompleted() {
		return errNotPossible(fmt.Sprintf("job %d is already in a terminal state", j.ID))
	}
	reason := JSRJobCanceledByUser
	if byOperator {
		reason = JSRJobCanceledByOperator
	}
	if j.State == JobProcessing {
		j.cancelRequested = true
		j.pendingCancelReason = reason
		j.addReason(JSRProcessingToStopPoint)
		if j.transformCmd != nil && j.transformCmd.Process != nil {
			_ = j.transformCmd.Process.Signal(cancelSignal)
		}
		return nil
	}
	return j.sm.Event(ctx, jobEvtCancel, reason)
}

// FinishCancel is called by the Transform Supervisor once the child exits
// after Cancel flagged a processing job; it performs the deferred
// transition.
func (j *Job) FinishCancel(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.cancelRequested {
		return nil
	}
	reason := j.pendingCancelReason
	if reason == "" {
		reason = JSRJobCanceledByUser
	}
	return j.sm.Event(ctx, jobEvtCancel, reason)
}

func (j *Job) attributes(baseURL string) goipp.Attributes {
	var attrs goipp.Attributes
	a := adder(&attrs)
	addTime := func(name string, t time.Time) {
		if t.IsZero() {
			a(name, goipp.TagNoValue, goipp.Void{})
			return
		}
		a(name, goipp.TagInteger, goipp.Integer(int32(t.Unix())))
	}
	a("job-id", goipp.TagInteger, goipp.Integer(j.ID))
	a("job-uri", goipp.TagURI, goipp.String(fmt.Sprintf("%s%s/%d", baseURL, j.Printer.Path, j.ID)))
	a("job-state", goipp.TagEnum, goipp.Integer(j.State))
	a("job-state-reasons", goipp.TagKeyword, stringsToValues(reasonStrings(j.Reasons()))...)
	a("job-printer-uri", goipp.TagURI, goipp.String(baseURL+j.Printer.Path))
	a("job-originating-user-name", goipp.TagName, goipp.String(j.Username))
	addTime("time-at-creation", j.Created)
	addTime("time-at-processing", j.Processing)
	addTime("time-at-completed", j.Completed)
	a("job-impressions-completed", goipp.TagInteger, goipp.Integer(j.ImpressionsCompleted))
	if j.Format != "" {
		a("job-document-format", goipp.TagMimeType, goipp.String(j.Format))
	}
	attrs = append(attrs, j.JobAttrs...)
	return attrs
}
