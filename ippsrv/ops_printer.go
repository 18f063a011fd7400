package ippsrv

import (
	"context"

	"github.com/OpenPrinting/goipp"
)

func (d *Dispatcher) registerPrinterOps() {
	d.handlers[goipp.OpGetPrinterAttributes] = d.handleGetPrinterAttributes
	d.handlers[goipp.OpGetPrinterSupportedValues] = d.handleGetPrinterSupportedValues
	d.handlers[goipp.OpGetPrinters] = d.handleGetPrinters
	d.handlers[goipp.OpSetPrinterAttributes] = d.handleSetPrinterAttributes
	d.handlers[goipp.OpCreatePrinter] = d.handleCreatePrinter
	d.handlers[goipp.OpDeletePrinter] = d.handleDeletePrinter
	d.handlers[goipp.OpIdentifyPrinter] = d.handleIdentifyPrinter

	d.handlers[goipp.OpEnablePrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		p.Lock()
		p.IsAccepting = true
		p.Unlock()
		return nil
	})
	d.handlers[goipp.OpDisablePrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		p.Lock()
		p.IsAccepting = false
		p.Unlock()
		return nil
	})
	d.handlers[goipp.OpPausePrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		return p.Pause(ctx, false)
	})
	d.handlers[goipp.OpPausePrinterAfterCurrentJob] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		return p.Pause(ctx, true)
	})
	d.handlers[goipp.OpResumePrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		return p.Resume(ctx)
	})
	d.handlers[goipp.OpRestartPrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		if err := p.Shutdown(ctx); err != nil {
			return err
		}
		return p.Startup(ctx)
	})
	d.handlers[goipp.OpShutdownPrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		return p.Shutdown(ctx)
	})
	d.handlers[goipp.OpStartupPrinter] = d.adminPrinterOp(func(ctx context.Context, p *Printer) error {
		return p.Startup(ctx)
	})
	d.handlers[goipp.OpShutdownOnePrinter] = d.handlers[goipp.OpShutdownPrinter]
	d.handlers[goipp.OpStartupOnePrinter] = d.handlers[goipp.OpStartupPrinter]

	d.handlers[goipp.OpDisableAllPrinters] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		p.Lock()
		p.IsAccepting = false
		p.Unlock()
		return nil
	})
	d.handlers[goipp.OpEnableAllPrinters] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		p.Lock()
		p.IsAccepting = true
		p.Unlock()
		return nil
	})
	d.handlers[goipp.OpPauseAllPrinters] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		return p.Pause(ctx, false)
	})
	d.handlers[goipp.OpPauseAllPrintersAfterCurrentJob] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		return p.Pause(ctx, true)
	})
	d.handlers[goipp.OpResumeAllPrinters] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		return p.Resume(ctx)
	})
	d.handlers[goipp.OpShutdownAllPrinters] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		return p.Shutdown(ctx)
	})
	d.handlers[goipp.OpStartupAllPrinters] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		return p.Startup(ctx)
	})
	d.handlers[goipp.OpRestartSystem] = d.adminAllPrintersOp(func(ctx context.Context, p *Printer) error {
		if err := p.Shutdown(ctx); err != nil {
			return err
		}
		return p.Startup(ctx)
	})
}

// adminPrinterOp wraps a single-printer admin-gated state transition with
// the §4.4 admin-group authorization prologue.
func (d *Dispatcher) adminPrinterOp(fn func(ctx context.Context, p *Printer) error) HandlerFunc {
	return func(ctx context.Context, c *Client) *goipp.Message {
		if err := requireAuth(c, d.sys.AdminGroup); err != nil {
			return d.errorResponse(c.Request.RequestID, err.(*opError))
		}
		if err := fn(ctx, c.Printer); err != nil {
			return d.errorResponse(c.Request.RequestID, errNotPossible(err.Error()))
		}
		return baseResponse(goipp.StatusOk, c.Request.RequestID)
	}
}

func (d *Dispatcher) adminAllPrintersOp(fn func(ctx context.Context, p *Printer) error) HandlerFunc {
	return func(ctx context.Context, c *Client) *goipp.Message {
		if err := requireAuth(c, d.sys.AdminGroup); err != nil {
			return d.errorResponse(c.Request.RequestID, err.(*opError))
		}
		for _, p := range d.sys.Printers() {
			_ = fn(ctx, p)
		}
		return baseResponse(goipp.StatusOk, c.Request.RequestID)
	}
}

func (d *Dispatcher) handleGetPrinterAttributes(ctx context.Context, c *Client) *goipp.Message {
	requested, _ := extractStrings(c.Request.Operation, "requested-attributes")
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Printer = filterRequested(c.Printer.attributes(d.baseURI), requested)
	return resp
}

func (d *Dispatcher) handleGetPrinterSupportedValues(ctx context.Context, c *Client) *goipp.Message {
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	a := adder(&resp.Printer)
	a("operations-supported", goipp.TagEnum, supportedOperationValues(d.handlers)...)
	a("ipp-versions-supported", goipp.TagKeyword, goipp.String("1.1"), goipp.String("2.0"))
	return resp
}

func supportedOperationValues(handlers map[goipp.Op]HandlerFunc) []goipp.Value {
	out := make([]goipp.Value, 0, len(handlers))
	for op := range handlers {
		out = append(out, goipp.Integer(op))
	}
	return out
}

// handleGetPrinters filters by printer-geo-location (within
// requested-distance) and pages with first-index (the number of matching
// printers to skip) and limit (§4.5 Get-Printers). The printer-ids,
// printer-location and document-format operation attributes are not
// used as filters.
func (d *Dispatcher) handleGetPrinters(ctx context.Context, c *Client) *goipp.Message {
	requested, _ := extractStrings(c.Request.Operation, "requested-attributes")
	geo, hasGeo := extractValue[goipp.String](c.Request.Operation, "printer-geo-location")
	var radius float64
	if r, err := extractValue[goipp.Integer](c.Request.Operation, "requested-distance"); err == nil {
		radius = float64(r)
	}
	firstIndex := 0
	if v, err := extractValue[goipp.Integer](c.Request.Operation, "first-index"); err == nil {
		firstIndex = int(v)
	}
	limit := -1
	if v, err := extractValue[goipp.Integer](c.Request.Operation, "limit"); err == nil {
		limit = int(v)
	}

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	n := 0
	emitted := 0
	for _, p := range d.sys.Printers() {
		if hasGeo {
			pv, err := extractValue[goipp.String](p.Attrs, "printer-geo-location")
			if err != nil || geoDistance(string(geo), string(pv)) > radius {
				continue
			}
		}
		if n < firstIndex {
			n++
			continue
		}
		if limit >= 0 && emitted >= limit {
			break
		}
		n++
		emitted++
		resp.Printer = append(resp.Printer, filterRequested(p.attributes(d.baseURI), requested)...)
	}
	return resp
}

func (d *Dispatcher) handleSetPrinterAttributes(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	c.Printer.Lock()
	defer c.Printer.Unlock()
	for _, attr := range c.Request.Printer {
		replaceAttr(&c.Printer.Attrs, attr.Name, attr.Values[0].T, valuesOf(attr.Values)...)
	}
	d.sys.bumpConfigChange()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleCreatePrinter(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	name, err := extractValue[goipp.String](c.Request.Operation, "printer-name")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("printer-name required"))
	}
	p := NewPrinter(d.sys, string(name), "print")
	p.Attrs = append(p.Attrs, c.Request.Printer...)
	d.sys.CreatePrinter(p)
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Printer = p.attributes(d.baseURI)
	return resp
}

func (d *Dispatcher) handleDeletePrinter(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	c.Printer.Lock()
	c.Printer.IsDeleted = true
	c.Printer.stateReasons[PSRDeleting] = true
	for _, j := range c.Printer.jobsByID.List() {
		if !j.IsCompleted() {
			_ = j.Cancel(ctx, true)
		}
	}
	c.Printer.Unlock()
	for _, s := range d.sys.Subscriptions() {
		if s.Printer == c.Printer {
			s.renew(30)
		}
	}
	d.sys.DeletePrinter(c.Printer)
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

// handleIdentifyPrinter latches the request and its message and raises the
// identify-printer-requested reason (§4.5). It does this whether or not
// the printer has output devices; no local beep or display is produced.
func (d *Dispatcher) handleIdentifyPrinter(ctx context.Context, c *Client) *goipp.Message {
	p := c.Printer
	p.Lock()
	p.IdentifyPending = true
	if msg, err := extractValue[goipp.String](c.Request.Operation, "message"); err == nil {
		p.IdentifyMessage = string(msg)
	}
	p.stateReasons[PSRIdentifyRequested] = true
	p.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}
