package ippsrv

import (
	"bytes"
	"context"

	"github.com/OpenPrinting/goipp"
)

func (d *Dispatcher) registerResourceOps() {
	d.handlers[goipp.OpCreateResource] = d.handleCreateResource
	d.handlers[goipp.OpSendResourceData] = d.handleSendResourceData
	d.handlers[goipp.OpInstallResource] = d.handleInstallResource
	d.handlers[goipp.OpCancelResource] = d.handleCancelResource
	d.handlers[goipp.OpSetResourceAttributes] = d.handleSetResourceAttributes
	d.handlers[goipp.OpGetResourceAttributes] = d.handleGetResourceAttributes
	d.handlers[goipp.OpGetResources] = d.handleGetResources
	d.handlers[goipp.OpAllocatePrinterResources] = d.handleAllocatePrinterResources
	d.handlers[goipp.OpDeallocatePrinterResources] = d.handleDeallocatePrinterResources
}

func resourceFromRequest(d *Dispatcher, c *Client) (*Resource, error) {
	id, err := extractValue[goipp.Integer](c.Request.Operation, "resource-id")
	if err != nil {
		return nil, errBadRequest("resource-id required")
	}
	r, ok := d.sys.Resource(ResourceID(id))
	if !ok {
		return nil, errNotFound("no such resource")
	}
	return r, nil
}

func (d *Dispatcher) handleCreateResource(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	typ, _ := extractValue[goipp.String](c.Request.Operation, "resource-type")
	id := d.sys.NewResourceID()
	r := NewResource(id, ResourceType(typ))
	if format, err := extractValue[goipp.String](c.Request.Operation, "resource-format"); err == nil {
		r.Format = string(format)
	}
	d.sys.AddResource(r)
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Resource = r.attributes()
	return resp
}

func (d *Dispatcher) handleSendResourceData(ctx context.Context, c *Client) *goipp.Message {
	r, err := resourceFromRequest(d, c)
	if err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	r.mu.Lock()
	format := r.Format
	r.mu.Unlock()

	path, _, serr := d.docs.SpoolInline("resource", int(r.ID), format, bytes.NewReader(c.Body))
	if serr != nil {
		return d.errorResponse(c.Request.RequestID, errDocumentAccess("failed to spool resource data: "+serr.Error()))
	}

	r.mu.Lock()
	r.Path = path
	r.mu.Unlock()
	if err := r.sm.Event(ctx, resourceEvtDataSent); err != nil {
		return d.errorResponse(c.Request.RequestID, errNotPossible(err.Error()))
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleInstallResource(ctx context.Context, c *Client) *goipp.Message {
	r, err := resourceFromRequest(d, c)
	if err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	if err := r.sm.Event(ctx, resourceEvtInstall); err != nil {
		return d.errorResponse(c.Request.RequestID, errNotPossible(err.Error()))
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleCancelResource(ctx context.Context, c *Client) *goipp.Message {
	r, err := resourceFromRequest(d, c)
	if err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	if err := r.Cancel(ctx); err != nil {
		return d.errorResponse(c.Request.RequestID, errNotPossible(err.Error()))
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleSetResourceAttributes(ctx context.Context, c *Client) *goipp.Message {
	r, err := resourceFromRequest(d, c)
	if err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	if name, err := extractValue[goipp.String](c.Request.Resource, "resource-name"); err == nil {
		r.mu.Lock()
		r.Name = string(name)
		r.mu.Unlock()
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleGetResourceAttributes(ctx context.Context, c *Client) *goipp.Message {
	r, err := resourceFromRequest(d, c)
	if err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Resource = r.attributes()
	return resp
}

func (d *Dispatcher) handleGetResources(ctx context.Context, c *Client) *goipp.Message {
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	for _, r := range d.sys.Resources() {
		resp.Resource = append(resp.Resource, r.attributes()...)
	}
	return resp
}

func (d *Dispatcher) handleAllocatePrinterResources(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	ids, err := extractValues[goipp.Integer](c.Request.Operation, "resource-ids")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("resource-ids required"))
	}
	c.Printer.Lock()
	for _, idv := range ids {
		id := ResourceID(idv)
		if r, ok := d.sys.Resource(id); ok && r.State() == ResourceInstalled {
			c.Printer.resourceIDs = append(c.Printer.resourceIDs, id)
			r.mu.Lock()
			r.UseCount++
			r.mu.Unlock()
		}
	}
	c.Printer.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleDeallocatePrinterResources(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	ids, err := extractValues[goipp.Integer](c.Request.Operation, "resource-ids")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("resource-ids required"))
	}
	c.Printer.Lock()
	remaining := c.Printer.resourceIDs[:0]
	want := map[ResourceID]bool{}
	for _, idv := range ids {
		want[ResourceID(idv)] = true
	}
	for _, id := range c.Printer.resourceIDs {
		if want[id] {
			if r, ok := d.sys.Resource(id); ok {
				r.Release(ctx)
			}
			continue
		}
		remaining = append(remaining, id)
	}
	c.Printer.resourceIDs = remaining
	c.Printer.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}
