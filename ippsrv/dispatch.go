package ippsrv

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/OpenPrinting/goipp"
	"github.com/OpenPrinting/ippd/ingest"
	"github.com/OpenPrinting/ippd/transform"
)

// HandlerFunc processes one already-resolved request and returns the
// response message to encode.
type HandlerFunc func(ctx context.Context, c *Client) *goipp.Message

// Dispatcher is the Operation Dispatcher (§4.5): it validates request
// framing, resolves the target object, applies shutdown gating, and routes
// to the handler registered for the operation code.
type Dispatcher struct {
	sys          *System
	baseURI      string
	docs         *ingest.Store
	fileURIRoots []string
	supervisor   *transform.Supervisor
	handlers     map[goipp.Op]HandlerFunc
}

// NewDispatcher builds a Dispatcher with the full operation catalog wired
// in (see ops_*.go). docs spools inline and fetched document bodies;
// fileURIRoots is the configured allow-list for file: URI ingestion;
// supervisor runs each printer's configured transform program once a job
// starts processing (§4.9). A nil supervisor is valid: jobs with no
// TransformCmd configured finish immediately (proxy-only deployments).
func NewDispatcher(sys *System, baseURI string, docs *ingest.Store, fileURIRoots []string, supervisor *transform.Supervisor) *Dispatcher {
	d := &Dispatcher{sys: sys, baseURI: baseURI, docs: docs, fileURIRoots: fileURIRoots, supervisor: supervisor, handlers: map[goipp.Op]HandlerFunc{}}
	d.registerJobOps()
	d.registerPrinterOps()
	d.registerSystemOps()
	d.registerSubscriptionOps()
	d.registerResourceOps()
	d.registerProxyOps()
	return d
}

// Dispatch runs the full §4.5 validation pipeline over req and returns the
// response message. body is the already-read remainder of the HTTP request
// following the parsed IPP header, handed to document-consuming handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request, req *goipp.Message, body []byte, username string) *goipp.Message {
	lg := slog.With("op", req.Code, "request-id", req.RequestID)

	if req.RequestID == 0 {
		lg.WarnContext(ctx, "zero request-id")
		return baseResponse(goipp.StatusErrorBadRequest, req.RequestID)
	}

	major := int(req.Version >> 8)
	if major != 1 && major != 2 {
		return baseResponse(goipp.StatusErrorVersionNotSupported, req.RequestID)
	}

	if len(req.Operation) < 3 {
		return baseResponse(goipp.StatusErrorBadRequest, req.RequestID)
	}
	if req.Operation[0].Name != "attributes-charset" || req.Operation[1].Name != "attributes-natural-language" {
		return baseResponse(goipp.StatusErrorBadRequest, req.RequestID)
	}
	charset, err := extractValue[goipp.String](req.Operation[:1], "attributes-charset")
	if err != nil || (charset != "us-ascii" && charset != "utf-8") {
		return baseResponse(goipp.StatusErrorCharset, req.RequestID)
	}

	targetURI, err := firstURIAttribute(req.Operation)
	if err != nil {
		return baseResponse(goipp.StatusErrorBadRequest, req.RequestID)
	}

	c := &Client{
		HTTP:     r,
		Request:  req,
		Body:     body,
		Username: username,
		System:   d.sys,
	}

	if err := d.resolveTarget(c, targetURI); err != nil {
		if oe, ok := err.(*opError); ok {
			return d.errorResponse(req.RequestID, oe)
		}
		return baseResponse(goipp.StatusErrorNotFound, req.RequestID)
	}

	if c.Printer != nil {
		c.Printer.RLock()
		shutdown := c.Printer.IsShutdown
		c.Printer.RUnlock()
		if shutdown && goipp.Op(req.Code) != goipp.OpStartupPrinter {
			return baseResponse(goipp.StatusErrorServiceUnavailable, req.RequestID)
		}
	}

	h, ok := d.handlers[goipp.Op(req.Code)]
	if !ok {
		return baseResponse(goipp.StatusErrorOperationNotSupported, req.RequestID)
	}
	return h(ctx, c)
}

func (d *Dispatcher) errorResponse(requestID uint32, oe *opError) *goipp.Message {
	resp := baseResponse(oe.status, requestID)
	if oe.attr != nil {
		a := adder(&resp.Unsupported)
		a(oe.attr.Name, oe.attr.Values[0].T, oe.attr.Values[0].V)
	}
	return resp
}

// firstURIAttribute finds the first system-uri/printer-uri/job-uri in the
// operation group, tolerating later placement (§4.5 item 3, relaxed mode).
func firstURIAttribute(ops goipp.Attributes) (string, error) {
	for _, name := range []string{"printer-uri", "job-uri", "system-uri", "resource-uri"} {
		if v, err := extractValue[goipp.String](ops, name); err == nil {
			return string(v), nil
		}
	}
	return "", errBadRequest("no target URI attribute present")
}

// resolveTarget maps a target URI's path to a System/Printer/Job (§4.5
// item 5).
func (d *Dispatcher) resolveTarget(c *Client, rawURI string) error {
	path := rawURI
	if idx := strings.Index(rawURI, "://"); idx >= 0 {
		rest := rawURI[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		} else {
			path = "/"
		}
	}

	switch {
	case path == "/ipp/system":
		return nil
	case strings.HasPrefix(path, "/ipp/print/"), strings.HasPrefix(path, "/ipp/print3d/"), strings.HasPrefix(path, "/ipp/faxout/"):
		printerPath, jobIDStr, hasJob := splitJobSuffix(path)
		p, ok := d.sys.PrinterByPath(printerPath)
		if !ok {
			return errNotFound("no such printer: " + printerPath)
		}
		c.Printer = p
		if hasJob {
			id, err := strconv.Atoi(jobIDStr)
			if err != nil {
				return errBadRequest("malformed job id in URI")
			}
			j, ok := p.jobsByID.Get(JobID(id))
			if !ok {
				return errNotFound("no such job")
			}
			c.Job = j
		}
		return nil
	default:
		return errNotFound("unrecognized resource path: " + path)
	}
}

func splitJobSuffix(path string) (printerPath, jobID string, hasJob bool) {
	segs := strings.Split(strings.TrimSuffix(path, "/"), "/")
	last := segs[len(segs)-1]
	if _, err := strconv.Atoi(last); err == nil && len(segs) > 3 {
		return strings.Join(segs[:len(segs)-1], "/"), last, true
	}
	return path, "", false
}
