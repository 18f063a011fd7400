package ippsrv

import (
	"context"
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *System, *Printer) {
	t.Helper()
	sys := NewSystem(NewMemAuthorizer(map[string][]string{"admin": {"system"}}))
	p := NewPrinter(sys, "lp1", "print")
	sys.CreatePrinter(p)
	d := NewDispatcher(sys, "http://localhost", nil, nil, nil)
	return d, sys, p
}

func baseRequest(op goipp.Op, printerURI string) *goipp.Message {
	m := goipp.NewRequest(goipp.DefaultVersion, op, 1)
	a := adder(&m.Operation)
	a("attributes-charset", goipp.TagCharset, ippUTF8)
	a("attributes-natural-language", goipp.TagLanguage, ippENUS)
	a("printer-uri", goipp.TagURI, goipp.String(printerURI))
	return m
}

func TestDispatch_zeroRequestIDIsBadRequest(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	req := baseRequest(goipp.OpGetPrinterAttributes, "http://localhost/ipp/print/lp1")
	req.RequestID = 0
	resp := d.Dispatch(context.Background(), nil, req, nil, "")
	assert.Equal(t, goipp.StatusErrorBadRequest, resp.Code)
}

func TestDispatch_unsupportedVersionMajor(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	req := baseRequest(goipp.OpGetPrinterAttributes, "http://localhost/ipp/print/lp1")
	req.Version = 0x0300
	resp := d.Dispatch(context.Background(), nil, req, nil, "")
	assert.Equal(t, goipp.StatusErrorVersionNotSupported, resp.Code)
}

func TestDispatch_missingCharsetOrderIsBadRequest(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	m := goipp.NewRequest(goipp.DefaultVersion, goipp.OpGetPrinterAttributes, 1)
	a := adder(&m.Operation)
	a("printer-uri", goipp.TagURI, goipp.String("http://localhost/ipp/print/lp1"))
	a("attributes-charset", goipp.TagCharset, ippUTF8)
	resp := d.Dispatch(context.Background(), nil, m, nil, "")
	assert.Equal(t, goipp.StatusErrorBadRequest, resp.Code)
}

func TestDispatch_unsupportedCharset(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	m := goipp.NewRequest(goipp.DefaultVersion, goipp.OpGetPrinterAttributes, 1)
	a := adder(&m.Operation)
	a("attributes-charset", goipp.TagCharset, goipp.String("iso-8859-1"))
	a("attributes-natural-language", goipp.TagLanguage, ippENUS)
	a("printer-uri", goipp.TagURI, goipp.String("http://localhost/ipp/print/lp1"))
	resp := d.Dispatch(context.Background(), nil, m, nil, "")
	assert.Equal(t, goipp.StatusErrorCharset, resp.Code)
}

func TestDispatch_unknownPrinterIsNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	req := baseRequest(goipp.OpGetPrinterAttributes, "http://localhost/ipp/print/nosuchprinter")
	resp := d.Dispatch(context.Background(), nil, req, nil, "")
	assert.Equal(t, goipp.StatusErrorNotFound, resp.Code)
}

func TestDispatch_shutdownPrinterRejectsAllButStartup(t *testing.T) {
	d, _, p := newTestDispatcher(t)
	require.NoError(t, p.Shutdown(context.Background()))

	req := baseRequest(goipp.OpGetPrinterAttributes, "http://localhost/ipp/print/lp1")
	resp := d.Dispatch(context.Background(), nil, req, nil, "")
	assert.Equal(t, goipp.StatusErrorServiceUnavailable, resp.Code)

	startup := baseRequest(goipp.OpStartupPrinter, "http://localhost/ipp/print/lp1")
	resp = d.Dispatch(context.Background(), nil, startup, nil, "admin")
	assert.Equal(t, goipp.StatusOk, resp.Code)
	assert.Equal(t, PrinterIdle, p.State())
}

func TestDispatch_getPrinterAttributesSucceeds(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	req := baseRequest(goipp.OpGetPrinterAttributes, "http://localhost/ipp/print/lp1")
	resp := d.Dispatch(context.Background(), nil, req, nil, "alice")
	require.Equal(t, goipp.StatusOk, resp.Code)
	vv, ok := findAttr(resp.Printer, "printer-name")
	require.True(t, ok)
	assert.Equal(t, goipp.String("lp1"), vv[0].V)
}

func TestDispatch_adminOpRejectsNonAdmin(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	req := baseRequest(goipp.OpPausePrinter, "http://localhost/ipp/print/lp1")
	resp := d.Dispatch(context.Background(), nil, req, nil, "alice")
	assert.Equal(t, goipp.StatusErrorNotAuthorized, resp.Code)
}

func TestDispatch_adminOpAllowsAdmin(t *testing.T) {
	d, _, p := newTestDispatcher(t)
	req := baseRequest(goipp.OpPausePrinter, "http://localhost/ipp/print/lp1")
	resp := d.Dispatch(context.Background(), nil, req, nil, "admin")
	assert.Equal(t, goipp.StatusOk, resp.Code)
	assert.Equal(t, PrinterStopped, p.State())
}
