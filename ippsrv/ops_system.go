package ippsrv

import (
	"context"

	"github.com/OpenPrinting/goipp"
)

func (d *Dispatcher) registerSystemOps() {
	d.handlers[goipp.OpGetSystemAttributes] = d.handleGetSystemAttributes
	d.handlers[goipp.OpGetSystemSupportedValues] = d.handleGetSystemSupportedValues
	d.handlers[goipp.OpSetSystemAttributes] = d.handleSetSystemAttributes
}

func (d *Dispatcher) handleGetSystemAttributes(ctx context.Context, c *Client) *goipp.Message {
	requested, _ := extractStrings(c.Request.Operation, "requested-attributes")
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.System = filterRequested(d.sys.attributes(), requested)
	return resp
}

func (d *Dispatcher) handleGetSystemSupportedValues(ctx context.Context, c *Client) *goipp.Message {
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	a := adder(&resp.System)
	a("operations-supported", goipp.TagEnum, supportedOperationValues(d.handlers)...)
	return resp
}

func (d *Dispatcher) handleSetSystemAttributes(ctx context.Context, c *Client) *goipp.Message {
	if err := requireAuth(c, d.sys.AdminGroup); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	d.sys.mu.Lock()
	for _, attr := range c.Request.System {
		replaceAttr(&d.sys.Attrs, attr.Name, attr.Values[0].T, valuesOf(attr.Values)...)
	}
	d.sys.mu.Unlock()
	d.sys.bumpConfigChange()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}
