package ippsrv

import (
	"context"
	"log/slog"

	"github.com/OpenPrinting/goipp"
	"github.com/OpenPrinting/ippd/transform"
)

// startProcessing advances a job from pending to processing and, if its
// printer has a TransformCmd configured, runs it under the supervisor;
// otherwise the job finishes immediately, matching a proxy-only printer
// that has no local rendering path (§4.9).
func (d *Dispatcher) startProcessing(ctx context.Context, j *Job) {
	j.mu.Lock()
	pending := j.State == JobPending
	j.mu.Unlock()
	if !pending {
		return
	}
	_ = j.sm.Event(ctx, jobEvtStartProc)

	p := j.Printer
	p.RLock()
	cmdName := p.TransformCmd
	deviceURI := p.DeviceURI
	outputType := p.OutputType
	p.RUnlock()
	printerAttrs := ippAttrsOf(p.attributes(d.baseURI))

	if cmdName == "" || d.supervisor == nil {
		_ = j.sm.Event(ctx, jobEvtFinish)
		return
	}

	j.mu.Lock()
	spoolPath := j.SpoolPath
	contentType := j.Format
	jobAttrs := ippAttrsOf(j.attributes(d.baseURI))
	j.mu.Unlock()

	go d.runTransform(j, cmdName, spoolPath, contentType, deviceURI, outputType, jobAttrs, printerAttrs)
}

func (d *Dispatcher) runTransform(j *Job, cmdName, spoolPath, contentType, deviceURI, outputType string, jobAttrs, printerAttrs []transform.Attr) {
	cmd, err := d.supervisor.Run(context.Background(), cmdName, spoolPath, contentType, deviceURI, outputType, jobAttrs, printerAttrs, nil, transform.Callbacks{
		OnAttr:  func(name, value string) { d.applyTransformAttr(j, name, value) },
		OnState: func(keywords []string, sign byte, replace bool) { d.applyTransformState(j, keywords, sign, replace) },
		OnExit:  func(err error, viaCancel bool) { d.finishProcessing(j, err, viaCancel) },
	})
	if err != nil {
		slog.Error("failed to start transform", "job", j.ID, "printer", j.Printer.Name, "error", err)
		d.finishProcessing(j, err, false)
		return
	}
	j.mu.Lock()
	j.transformCmd = cmd
	j.mu.Unlock()
}

// applyTransformAttr handles one `ATTR: name=value` report (§4.9): the
// impressions-completed counter updates the job directly, job-impressions
// is stored as an integer job attribute, and everything else is folded
// into the job's reported attributes as a keyword/string.
func (d *Dispatcher) applyTransformAttr(j *Job, name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if transform.AttrIsInteger(name) {
		if n, err := transform.ParseInt(value); err == nil {
			if name == "job-impressions-completed" {
				j.ImpressionsCompleted = n
			} else {
				replaceAttr(&j.JobAttrs, name, goipp.TagInteger, goipp.Integer(n))
			}
		}
		return
	}
	replaceAttr(&j.JobAttrs, name, goipp.TagKeyword, goipp.String(value))
}

// applyTransformState handles one `STATE:` report, folding the reported
// keywords into the job's state-reasons (§4.9): a bare "-error" keyword
// (no job-state-reason suffix survives trimming) aborts the job outright,
// matching a transform that fails outright rather than reporting a
// specific condition.
func (d *Dispatcher) applyTransformState(j *Job, keywords []string, sign byte, replace bool) {
	if sign == '-' && len(keywords) == 0 {
		_ = j.sm.Event(context.Background(), jobEvtAbort)
		return
	}
	j.mu.Lock()
	for _, kw := range keywords {
		switch sign {
		case '+':
			j.addReason(JobStateReason(kw))
		case '-':
			j.removeReason(JobStateReason(kw))
		default:
			j.addReason(JobStateReason(kw))
		}
	}
	j.mu.Unlock()
}

// finishProcessing is the Transform Supervisor's exit callback: a prior
// Cancel-Job defers its transition until here (Job.FinishCancel); absent
// that, the job completes or aborts depending on the child's outcome.
func (d *Dispatcher) finishProcessing(j *Job, err error, viaCancel bool) {
	ctx := context.Background()
	j.mu.Lock()
	cancelPending := j.cancelRequested
	j.mu.Unlock()
	if cancelPending {
		_ = j.FinishCancel(ctx)
		return
	}
	if err != nil && !viaCancel {
		j.mu.Lock()
		j.addReason(JSRDocumentFormatError)
		j.mu.Unlock()
		_ = j.sm.Event(ctx, jobEvtAbort)
		return
	}
	_ = j.sm.Event(ctx, jobEvtFinish)
}

// ippAttrsOf flattens an attribute group into the name=value pairs the
// Transform Supervisor serializes into the child's environment (§4.9);
// multi-valued attributes are joined with commas.
func ippAttrsOf(attrs goipp.Attributes) []transform.Attr {
	out := make([]transform.Attr, 0, len(attrs))
	for _, a := range attrs {
		if len(a.Values) == 0 {
			continue
		}
		s := a.Values[0].V.String()
		for _, v := range a.Values[1:] {
			s += "," + v.V.String()
		}
		out = append(out, transform.Attr{Name: a.Name, Value: s})
	}
	return out
}
