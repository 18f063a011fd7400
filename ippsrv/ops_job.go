package ippsrv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/OpenPrinting/ippd/ingest"
)

func (d *Dispatcher) registerJobOps() {
	d.handlers[goipp.OpPrintJob] = d.handlePrintJob
	d.handlers[goipp.OpPrintUri] = d.handlePrintURI
	d.handlers[goipp.OpCreateJob] = d.handleCreateJob
	d.handlers[goipp.OpSendDocument] = d.handleSendDocument
	d.handlers[goipp.OpSendUri] = d.handleSendURI
	d.handlers[goipp.OpValidateJob] = d.handleValidateJob
	d.handlers[goipp.OpValidateDocument] = d.handleValidateJob
	d.handlers[goipp.OpCancelJob] = d.handleCancelJob
	d.handlers[goipp.OpCancelCurrentJob] = d.handleCancelCurrentJob
	d.handlers[goipp.OpCancelDocument] = d.handleCancelJob
	d.handlers[goipp.OpCancelJobs] = d.handleCancelJobs
	d.handlers[goipp.OpCancelMyJobs] = d.handleCancelMyJobs
	d.handlers[goipp.OpHoldJob] = d.handleHoldJob
	d.handlers[goipp.OpReleaseJob] = d.handleReleaseJob
	d.handlers[goipp.OpHoldNewJobs] = d.handleHoldNewJobs
	d.handlers[goipp.OpReleaseHeldNewJobs] = d.handleReleaseHeldNewJobs
	d.handlers[goipp.OpSetJobAttributes] = d.handleSetJobAttributes
	d.handlers[goipp.OpSetDocumentAttributes] = d.handleSetJobAttributes
	d.handlers[goipp.OpGetJobAttributes] = d.handleGetJobAttributes
	d.handlers[goipp.OpGetJobs] = d.handleGetJobs
	d.handlers[goipp.OpGetDocuments] = d.handleGetDocuments
	d.handlers[goipp.OpGetDocumentAttributes] = d.handleGetJobAttributes
}

func jobAttributesResponse(c *Client, requestID uint32, j *Job, baseURI string) *goipp.Message {
	resp := baseResponse(goipp.StatusOk, requestID)
	requested, _ := extractStrings(c.Request.Operation, "requested-attributes")
	attrs := j.attributes(baseURI)
	resp.Job = append(resp.Job, filterRequested(attrs, requested)...)
	return resp
}

// handlePrintJob ingests the HTTP body inline, creating and filling a job
// in one request (§4.5 Print-Job/Print-URI, §4.6 item 1).
func (d *Dispatcher) handlePrintJob(ctx context.Context, c *Client) *goipp.Message {
	p := c.Printer
	p.Lock()
	if !p.IsAccepting || p.IsDeleted {
		p.Unlock()
		return d.errorResponse(c.Request.RequestID, errNotAcceptingJobs("printer is not accepting jobs"))
	}
	p.nextJobID++
	id := p.nextJobID
	j := NewJob(p, id, c.Username)
	if name, err := extractValue[goipp.String](c.Request.Operation, "job-name"); err == nil {
		a := adder(&j.JobAttrs)
		a("job-name", goipp.TagName, goipp.String(name))
	}
	applyHoldUntil(ctx, j, c.Request.Operation)
	p.jobsByID.Put(id, j)
	p.activeOrder = append(p.activeOrder, id)
	p.Unlock()

	detected, format := detectFormat(c.Body, c.Request.Operation)
	path, _, err := d.docs.SpoolInline(p.Name, int(id), format, bytes.NewReader(c.Body))
	if err != nil {
		j.mu.Lock()
		j.addReason(JSRDocumentAccessError)
		j.mu.Unlock()
		_ = j.sm.Event(context.Background(), jobEvtAbort)
		return d.errorResponse(c.Request.RequestID, errNotPossible("failed to spool document: "+err.Error()))
	}

	j.mu.Lock()
	j.Format = format
	j.FormatDetected = detected
	j.SpoolPath = path
	j.Filename = path
	j.mu.Unlock()

	if j.State == JobPending {
		d.startProcessing(context.Background(), j)
	}

	d.sys.reaper(time.Now())
	return jobAttributesResponse(c, c.Request.RequestID, j, d.baseURI)
}

// handlePrintURI fetches the document from document-uri instead of the
// HTTP body (§4.6 items 2-3), then proceeds exactly as Print-Job.
func (d *Dispatcher) handlePrintURI(ctx context.Context, c *Client) *goipp.Message {
	docURI, err := extractValue[goipp.String](c.Request.Operation, "document-uri")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("document-uri required"))
	}
	body, ferr := d.fetchDocumentURI(ctx, c.Printer.Name, int(c.Printer.nextJobID+1), string(docURI))
	if ferr != nil {
		return d.errorResponse(c.Request.RequestID, errDocumentAccess(ferr.Error()))
	}
	c.Body = body
	return d.handlePrintJob(ctx, c)
}

// fetchDocumentURI dispatches a document-uri to the file: or http(s):
// ingestion path and returns the fetched bytes for the caller to treat
// like an inline body.
func (d *Dispatcher) fetchDocumentURI(ctx context.Context, printerName string, jobID int, rawURI string) ([]byte, error) {
	if strings.HasPrefix(rawURI, "file:") {
		f, _, err := ingest.ResolveFileURI(rawURI, d.fileURIRoots)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	path, _, err := d.docs.FetchHTTPDocument(ctx, printerName, jobID, rawURI, "")
	if err != nil {
		return nil, err
	}
	defer d.docs.Remove(path)
	return os.ReadFile(path)
}

// handleCreateJob creates a job shell without document data; the document
// arrives via a subsequent Send-Document/Send-URI (§4.5).
func (d *Dispatcher) handleCreateJob(ctx context.Context, c *Client) *goipp.Message {
	p := c.Printer
	p.Lock()
	if !p.IsAccepting || p.IsDeleted {
		p.Unlock()
		return d.errorResponse(c.Request.RequestID, errNotAcceptingJobs("printer is not accepting jobs"))
	}
	p.nextJobID++
	id := p.nextJobID
	j := NewJob(p, id, c.Username)
	applyHoldUntil(ctx, j, c.Request.Operation)
	p.jobsByID.Put(id, j)
	p.activeOrder = append(p.activeOrder, id)
	p.Unlock()
	return jobAttributesResponse(c, c.Request.RequestID, j, d.baseURI)
}

// handleSendDocument accepts the document body for a previously created
// job; a second call without the job already awaiting data is rejected.
func (d *Dispatcher) handleSendDocument(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no job specified"))
	}
	j := c.Job
	j.mu.Lock()
	if j.SpoolPath != "" || j.Filename != "" {
		j.mu.Unlock()
		return d.errorResponse(c.Request.RequestID, errNotSupported("multiple-jobs-not-supported"))
	}
	printerName, jobID := j.Printer.Name, int(j.ID)
	j.mu.Unlock()

	last, _ := extractValue[goipp.Boolean](c.Request.Operation, "last-document")
	detected, format := detectFormat(c.Body, c.Request.Operation)
	path, _, err := d.docs.SpoolInline(printerName, jobID, format, bytes.NewReader(c.Body))
	if err != nil {
		j.mu.Lock()
		j.addReason(JSRDocumentAccessError)
		j.mu.Unlock()
		return d.errorResponse(c.Request.RequestID, errNotPossible("failed to spool document: "+err.Error()))
	}

	j.mu.Lock()
	j.Format = format
	j.FormatDetected = detected
	j.SpoolPath = path
	j.Filename = path
	held := j.State == JobPendingHeld
	j.mu.Unlock()

	if !bool(last) {
		return baseResponse(goipp.StatusErrorBadRequest, c.Request.RequestID)
	}
	if !held {
		d.startProcessing(ctx, j)
	}
	return jobAttributesResponse(c, c.Request.RequestID, j, d.baseURI)
}

// handleSendURI fetches the document from document-uri (§4.6 items 2-3)
// instead of reading the HTTP body, then proceeds as Send-Document.
func (d *Dispatcher) handleSendURI(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no job specified"))
	}
	docURI, err := extractValue[goipp.String](c.Request.Operation, "document-uri")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("document-uri required"))
	}
	body, ferr := d.fetchDocumentURI(ctx, c.Job.Printer.Name, int(c.Job.ID), string(docURI))
	if ferr != nil {
		return d.errorResponse(c.Request.RequestID, errDocumentAccess(ferr.Error()))
	}
	c.Body = body
	return d.handleSendDocument(ctx, c)
}

func (d *Dispatcher) handleValidateJob(ctx context.Context, c *Client) *goipp.Message {
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleCancelJob(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	if err := c.Job.Cancel(ctx, requireAuth(c, d.sys.AdminGroup) == nil); err != nil {
		if oe, ok := err.(*opError); ok {
			return d.errorResponse(c.Request.RequestID, oe)
		}
		return baseResponse(goipp.StatusErrorInternal, c.Request.RequestID)
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleCancelCurrentJob(ctx context.Context, c *Client) *goipp.Message {
	p := c.Printer
	p.mu.RLock()
	id := p.processingJob
	p.mu.RUnlock()
	if id == 0 {
		return d.errorResponse(c.Request.RequestID, errNotPossible("no job currently processing"))
	}
	j, _ := p.jobsByID.Get(id)
	c.Job = j
	return d.handleCancelJob(ctx, c)
}

// handleCancelJobs batches Cancel-Jobs/Cancel-My-Jobs: all good ids are
// only applied if no bad id is present (§4.5).
func (d *Dispatcher) handleCancelJobs(ctx context.Context, c *Client) *goipp.Message {
	return d.cancelJobsFiltered(ctx, c, "")
}

func (d *Dispatcher) handleCancelMyJobs(ctx context.Context, c *Client) *goipp.Message {
	return d.cancelJobsFiltered(ctx, c, c.Username)
}

func (d *Dispatcher) cancelJobsFiltered(ctx context.Context, c *Client, owner string) *goipp.Message {
	p := c.Printer
	var targets []*Job
	var bad goipp.Attributes
	for _, j := range p.jobsByID.List() {
		if owner != "" && j.Username != owner {
			continue
		}
		if j.IsCompleted() {
			var a goipp.Attribute
			a.Name = "job-id"
			a.Values.Add(goipp.TagInteger, goipp.Integer(j.ID))
			bad = append(bad, a)
			continue
		}
		targets = append(targets, j)
	}
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	if len(bad) > 0 {
		resp.Unsupported = append(resp.Unsupported, bad...)
		return resp
	}
	for _, j := range targets {
		_ = j.Cancel(ctx, owner == "")
	}
	return resp
}

func (d *Dispatcher) handleHoldJob(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	applyHoldUntil(ctx, c.Job, c.Request.Operation)
	if c.Job.State == JobPending {
		if err := c.Job.sm.Event(ctx, jobEvtHold); err != nil {
			return d.errorResponse(c.Request.RequestID, errNotPossible(err.Error()))
		}
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleReleaseJob(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	if c.Job.State == JobPendingHeld {
		if err := c.Job.sm.Event(ctx, jobEvtRelease); err != nil {
			return d.errorResponse(c.Request.RequestID, errNotPossible(err.Error()))
		}
		d.startProcessing(ctx, c.Job)
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleHoldNewJobs(ctx context.Context, c *Client) *goipp.Message {
	c.Printer.Lock()
	c.Printer.IsAccepting = false
	c.Printer.stateReasons[PSRHoldNewJobs] = true
	c.Printer.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleReleaseHeldNewJobs(ctx context.Context, c *Client) *goipp.Message {
	c.Printer.Lock()
	c.Printer.IsAccepting = true
	delete(c.Printer.stateReasons, PSRHoldNewJobs)
	c.Printer.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleSetJobAttributes(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	c.Job.mu.Lock()
	defer c.Job.mu.Unlock()
	for _, attr := range c.Request.Job {
		replaceAttr(&c.Job.JobAttrs, attr.Name, attr.Values[0].T, valuesOf(attr.Values)...)
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleGetJobAttributes(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	return jobAttributesResponse(c, c.Request.RequestID, c.Job, d.baseURI)
}

// handleGetJobs applies which-jobs/my-jobs filtering and paging (§4.5,
// §8 invariant 6).
func (d *Dispatcher) handleGetJobs(ctx context.Context, c *Client) *goipp.Message {
	which, _ := extractValue[goipp.String](c.Request.Operation, "which-jobs")
	myJobsOnly, _ := extractValue[goipp.Boolean](c.Request.Operation, "my-jobs")
	requested, _ := extractStrings(c.Request.Operation, "requested-attributes")
	limit, hasLimit := extractValue[goipp.Integer](c.Request.Operation, "limit")

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	n := 0
	for _, j := range c.Printer.jobsByID.List() {
		if bool(myJobsOnly) && j.Username != c.Username {
			continue
		}
		switch string(which) {
		case "completed":
			if !j.IsCompleted() {
				continue
			}
		case "not-completed", "":
			if j.IsCompleted() {
				continue
			}
		}
		if hasLimit && n >= int(limit) {
			break
		}
		n++
		resp.Job = append(resp.Job, filterRequested(j.attributes(d.baseURI), requested)...)
	}
	slog.DebugContext(ctx, "get-jobs", "printer", c.Printer.Name, "count", n)
	return resp
}

func (d *Dispatcher) handleGetDocuments(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	a := adder(&resp.Document)
	a("document-number", goipp.TagInteger, goipp.Integer(1))
	a("document-format", goipp.TagMimeType, goipp.String(c.Job.Format))
	return resp
}

func applyHoldUntil(ctx context.Context, j *Job, ops goipp.Attributes) {
	v, err := extractValue[goipp.String](ops, "job-hold-until")
	if err != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	switch string(v) {
	case "", "no-hold":
		return
	case "indefinite":
		j.HoldUntil = time.Now().AddDate(100, 0, 0)
	default:
		j.HoldUntil = time.Now().Add(time.Minute)
	}
	_ = j.sm.Event(ctx, jobEvtHold)
}

func valuesOf(vv goipp.Values) []goipp.Value {
	out := make([]goipp.Value, len(vv))
	for i, v := range vv {
		out[i] = v.V
	}
	return out
}

// filterRequested applies requested-attributes filtering; an empty or
// "all" request returns attrs unchanged.
func filterRequested(attrs goipp.Attributes, requested []string) goipp.Attributes {
	if len(requested) == 0 {
		return attrs
	}
	for _, r := range requested {
		if r == "all" {
			return attrs
		}
	}
	want := map[string]bool{}
	for _, r := range requested {
		want[r] = true
	}
	var out goipp.Attributes
	for _, a := range attrs {
		if want[a.Name] {
			out = append(out, a)
		}
	}
	return out
}
