package ippsrv

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/OpenPrinting/goipp"
	"github.com/OpenPrinting/ippd/transform"
)

func (d *Dispatcher) registerProxyOps() {
	d.handlers[goipp.OpRegisterOutputDevice] = d.handleRegisterOutputDevice
	d.handlers[goipp.OpDeregisterOutputDevice] = d.handleDeregisterOutputDevice
	d.handlers[goipp.OpFetchJob] = d.handleFetchJob
	d.handlers[goipp.OpFetchDocument] = d.handleFetchDocument
	d.handlers[goipp.OpAcknowledgeJob] = d.handleAcknowledgeJob
	d.handlers[goipp.OpAcknowledgeDocument] = d.handleAcknowledgeDocument
	d.handlers[goipp.OpAcknowledgeIdentifyPrinter] = d.handleAcknowledgeIdentifyPrinter
	d.handlers[goipp.OpUpdateActiveJobs] = d.handleUpdateActiveJobs
	d.handlers[goipp.OpUpdateJobStatus] = d.handleUpdateJobStatus
	d.handlers[goipp.OpUpdateDocumentStatus] = d.handleUpdateDocumentStatus
	// NOTE: the upstream op catalog carries a known typo on this constant's
	// case (OpupdateOutputDeviceAttributes); the real package spells it
	// OpUpdateOutputDeviceAttributes.
	d.handlers[goipp.OpUpdateOutputDeviceAttributes] = d.handleUpdateOutputDeviceAttributes
	d.handlers[goipp.OpGetOutputDeviceAttributes] = d.handleGetOutputDeviceAttributes
}

func requireProxyGroup(c *Client, p *Printer) error {
	if p.ProxyGroup == "" {
		return errNotAuthorized("printer has no proxy group configured")
	}
	return requireAuth(c, p.ProxyGroup)
}

// handleRegisterOutputDevice binds a device to the first printer with
// proxy capacity, or creates an implicit one under /ipp/print/{uuid-suffix}
// (§4.8 item 1).
func (d *Dispatcher) handleRegisterOutputDevice(ctx context.Context, c *Client) *goipp.Message {
	uuidVal, err := extractValue[goipp.String](c.Request.Operation, "output-device-uuid")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("output-device-uuid required"))
	}
	devUUID := strings.TrimPrefix(string(uuidVal), "urn:uuid:")

	var target *Printer
	if c.Printer != nil {
		target = c.Printer
	} else {
		for _, p := range d.sys.Printers() {
			if p.ProxyGroup != "" && (p.MaxDevices == 0 || p.devices.Len() < p.MaxDevices) {
				target = p
				break
			}
		}
	}
	if target == nil {
		suffix := devUUID
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		target = NewPrinter(d.sys, suffix, "print")
		target.ProxyGroup = "proxy"
		d.sys.CreatePrinter(target)
	}

	dev := NewDevice(target, devUUID)
	target.devices.Put(devUUID, dev)

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Printer = target.attributes(d.baseURI)
	return resp
}

func (d *Dispatcher) handleDeregisterOutputDevice(ctx context.Context, c *Client) *goipp.Message {
	uuidVal, err := extractValue[goipp.String](c.Request.Operation, "output-device-uuid")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("output-device-uuid required"))
	}
	devUUID := strings.TrimPrefix(string(uuidVal), "urn:uuid:")
	if c.Printer != nil {
		c.Printer.devices.Delete(devUUID)
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

// handleFetchJob returns job attributes if fetchable and unassigned or
// already assigned to the requesting device (§4.8 item 2).
func (d *Dispatcher) handleFetchJob(ctx context.Context, c *Client) *goipp.Message {
	if err := requireProxyGroup(c, c.Printer); err != nil {
		return d.errorResponse(c.Request.RequestID, err.(*opError))
	}
	devUUID := strings.TrimPrefix(deviceUUIDFromHeader(c), "urn:uuid:")
	for _, j := range c.Printer.jobsByID.List() {
		j.mu.Lock()
		fetchable := j.stateReasons[JSRFetchable]
		assigned := j.DeviceUUID == "" || j.DeviceUUID == devUUID
		j.mu.Unlock()
		if fetchable && assigned {
			resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
			resp.Job = j.attributes(d.baseURI)
			return resp
		}
	}
	return d.errorResponse(c.Request.RequestID, errNotFetchable("no fetchable job for this device"))
}

func (d *Dispatcher) handleAcknowledgeJob(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	devUUID := strings.TrimPrefix(deviceUUIDFromHeader(c), "urn:uuid:")
	c.Job.mu.Lock()
	c.Job.DeviceUUID = devUUID
	c.Job.removeReason(JSRFetchable)
	c.Job.mu.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

// handleFetchDocument streams the spool file, or a raster intermediate if
// the device's document-format-accepted doesn't include the job's native
// format (§4.8 item 4). The raster transform itself lives in the transform
// package; this handler negotiates the representation and, when FetchWriter
// is wired by the transport, streams the resulting bytes.
func (d *Dispatcher) handleFetchDocument(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	c.Job.mu.Lock()
	spoolPath := c.Job.SpoolPath
	nativeFormat := c.Job.Format
	c.Job.mu.Unlock()

	accepted, _ := extractStrings(c.Request.Operation, "document-format-accepted")
	format := nativeFormat
	needsRaster := len(accepted) > 0 && !containsString(accepted, format)
	if needsRaster {
		format = pickRasterIntermediate(accepted)
	}

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	a := adder(&resp.Operation)
	a("compression", goipp.TagKeyword, goipp.String("none"))
	a("document-format", goipp.TagMimeType, goipp.String(format))

	if c.FetchWriter == nil || spoolPath == "" {
		return resp
	}
	data, err := os.ReadFile(spoolPath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read spooled document for fetch", "job", c.Job.ID, "error", err)
		return resp
	}
	if needsRaster {
		data, err = transform.RasterIntermediate(ctx, nil, format, data, nil)
		if err != nil {
			slog.ErrorContext(ctx, "failed to rasterize document for fetch", "job", c.Job.ID, "error", err)
			return resp
		}
	}
	if _, err := c.FetchWriter.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to stream fetched document", "job", c.Job.ID, "error", err)
	}
	return resp
}

func pickRasterIntermediate(accepted []string) string {
	for _, candidate := range []string{"image/urf", "image/pwg-raster", "application/vnd.hp-pcl"} {
		if containsString(accepted, candidate) {
			return candidate
		}
	}
	return "application/octet-stream"
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (d *Dispatcher) handleAcknowledgeDocument(ctx context.Context, c *Client) *goipp.Message {
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleAcknowledgeIdentifyPrinter(ctx context.Context, c *Client) *goipp.Message {
	c.Printer.Lock()
	c.Printer.IdentifyPending = false
	delete(c.Printer.stateReasons, PSRIdentifyRequested)
	c.Printer.Unlock()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

// handleUpdateJobStatus/handleUpdateDocumentStatus accept job-impressions
// -completed and output-device-job-state(-reasons), raising job-progress /
// job-state-changed events (§4.8 item 5).
func (d *Dispatcher) handleUpdateJobStatus(ctx context.Context, c *Client) *goipp.Message {
	if c.Job == nil {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such job"))
	}
	if n, err := extractValue[goipp.Integer](c.Request.Operation, "job-impressions-completed"); err == nil {
		c.Job.mu.Lock()
		c.Job.ImpressionsCompleted = int(n)
		c.Job.mu.Unlock()
	}
	if st, err := extractValue[goipp.String](c.Request.Operation, "output-device-job-state"); err == nil {
		c.Job.mu.Lock()
		c.Job.DeviceState = string(st)
		c.Job.mu.Unlock()
	}
	if reasons, err := extractStrings(c.Request.Operation, "output-device-job-state-reasons"); err == nil {
		c.Job.mu.Lock()
		c.Job.DeviceReasons = reasons
		c.Job.mu.Unlock()
	}
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleUpdateDocumentStatus(ctx context.Context, c *Client) *goipp.Message {
	return d.handleUpdateJobStatus(ctx, c)
}

// handleUpdateActiveJobs reconciles the device's claimed job list against
// the printer's (§4.8 item 6).
func (d *Dispatcher) handleUpdateActiveJobs(ctx context.Context, c *Client) *goipp.Message {
	devUUID := strings.TrimPrefix(deviceUUIDFromHeader(c), "urn:uuid:")
	claimed, _ := extractValues[goipp.Integer](c.Request.Operation, "job-ids")
	claimedSet := map[JobID]bool{}
	for _, v := range claimed {
		claimedSet[JobID(v)] = true
	}

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	var unsupported goipp.Attributes
	var omitted []goipp.Value

	for _, j := range c.Printer.jobsByID.List() {
		j.mu.Lock()
		assignedToDevice := j.DeviceUUID == devUUID
		state := j.State
		id := j.ID
		j.mu.Unlock()
		if !assignedToDevice {
			continue
		}
		if !claimedSet[id] {
			omitted = append(omitted, goipp.Integer(id))
			continue
		}
		if state == JobCompleted || state == JobCanceled || state == JobAborted {
			var a goipp.Attribute
			a.Name = "job-id"
			a.Values.Add(goipp.TagInteger, goipp.Integer(id))
			unsupported = append(unsupported, a)
		}
	}
	resp.Unsupported = unsupported
	if len(omitted) > 0 {
		a := adder(&resp.Operation)
		a("job-ids", goipp.TagInteger, omitted...)
	}
	return resp
}

// handleUpdateOutputDeviceAttributes applies a sparse or plain
// printer-group update to the device's stored attributes and
// re-aggregates device state into the printer (§4.8 item 7).
func (d *Dispatcher) handleUpdateOutputDeviceAttributes(ctx context.Context, c *Client) *goipp.Message {
	devUUID := strings.TrimPrefix(deviceUUIDFromHeader(c), "urn:uuid:")
	dev, ok := c.Printer.devices.Get(devUUID)
	if !ok {
		return d.errorResponse(c.Request.RequestID, errNotFound("device not registered"))
	}

	var subs []*Subscription
	for _, sub := range d.sys.Subscriptions() {
		if sub.matches(c.Printer, nil) {
			subs = append(subs, sub)
		}
	}
	for _, attr := range c.Request.Printer {
		name, index, endIndex := parseSparseName(attr.Name)
		isDelete := len(attr.Values) > 0 && attr.Values[0].T == goipp.TagDeleteAttr
		var values []goipp.Value
		var tag goipp.Tag
		if !isDelete && len(attr.Values) > 0 {
			tag = attr.Values[0].T
			values = valuesOf(attr.Values)
		}
		dev.applySparseUpdate(name, index, endIndex, tag, values, isDelete)
		// §9: every accepted attribute produces printer-config-changed; a
		// name beginning with printer-state additionally raises
		// printer-state-changed. (The source's own gating condition for this
		// branch is a negated-boolean tautology; we do not replicate it.)
		for _, sub := range subs {
			sub.appendEvent("printer-config-changed", &goipp.Message{})
			if strings.HasPrefix(name, "printer-state") {
				sub.appendEvent("printer-state-changed", &goipp.Message{})
			}
		}
	}

	if st, err := extractValue[goipp.Integer](c.Request.Printer, "printer-state"); err == nil {
		dev.mu.Lock()
		dev.State = PrinterState(st)
		dev.mu.Unlock()
	}

	d.sys.bumpConfigChange()
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleGetOutputDeviceAttributes(ctx context.Context, c *Client) *goipp.Message {
	devUUID := strings.TrimPrefix(deviceUUIDFromHeader(c), "urn:uuid:")
	dev, ok := c.Printer.devices.Get(devUUID)
	if !ok {
		return d.errorResponse(c.Request.RequestID, errNotFound("device not registered"))
	}
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Printer = dev.attributes()
	return resp
}

// deviceUUIDFromHeader extracts output-device-uuid from the operation
// group, the conventional way a proxy identifies itself on every call
// after Register-Output-Device.
func deviceUUIDFromHeader(c *Client) string {
	v, _ := extractValue[goipp.String](c.Request.Operation, "output-device-uuid")
	return string(v)
}

// parseSparseName splits name.N or name.N-M into (name, N, M); plain names
// yield index -1.
func parseSparseName(raw string) (name string, index, endIndex int) {
	dot := strings.LastIndex(raw, ".")
	if dot < 0 {
		return raw, -1, -1
	}
	suffix := raw[dot+1:]
	if dash := strings.Index(suffix, "-"); dash >= 0 {
		lo, err1 := strconv.Atoi(suffix[:dash])
		hi, err2 := strconv.Atoi(suffix[dash+1:])
		if err1 == nil && err2 == nil {
			return raw[:dot], lo, hi
		}
	}
	if n, err := strconv.Atoi(suffix); err == nil {
		return raw[:dot], n, n
	}
	return raw, -1, -1
}
