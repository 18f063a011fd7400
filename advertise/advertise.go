// Package advertise publishes IPP printers over DNS-SD/mDNS so clients on
// the local network can discover them without a configured URI, the way
// AirPrint- and IPP-Everywhere-capable printers advertise themselves.
//
// This is a peripheral discovery mechanism, not part of the core IPP
// protocol surface: ippsrv never imports this package directly, and a
// System can run perfectly well with no Advertiser at all (e.g. behind a
// print queue manager that already knows every printer's URI).
package advertise

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/grandcat/zeroconf"
)

// Printer is the subset of ippsrv.Printer an Advertiser needs; it avoids
// an import of ippsrv so advertise stays an optional leaf dependency.
type Printer interface {
	PrinterName() string
	PrinterPath() string
	MakeAndModel() string
	DocumentFormats() []string
}

// Advertiser registers and withdraws DNS-SD service records.
type Advertiser interface {
	Register(p Printer) error
	Shutdown()
}

const (
	serviceType = "_ipp._tcp"
	domain      = "local."
)

// zeroconfAdvertiser registers one _ipp._tcp service per Printer.
type zeroconfAdvertiser struct {
	host    string
	port    int
	servers map[string]*zeroconf.Server
}

var _ Advertiser = (*zeroconfAdvertiser)(nil)

// New returns an Advertiser that registers services reachable at
// http://host:port/<printer-path>.
func New(host string, port int) Advertiser {
	return &zeroconfAdvertiser{host: host, port: port, servers: map[string]*zeroconf.Server{}}
}

func (a *zeroconfAdvertiser) Register(p Printer) error {
	rp := strings.TrimPrefix(p.PrinterPath(), "/")
	txt := []string{
		"txtvers=1",
		"qtotal=1",
		"rp=" + rp,
		"ty=" + p.MakeAndModel(),
		"product=(" + p.MakeAndModel() + ")",
		fmt.Sprintf("adminurl=http://%s:%d%s", a.host, a.port, p.PrinterPath()),
		"priority=0",
		"kind=document,envelope",
		"pdl=" + formatList(p.DocumentFormats()),
		"papermax=legal-A4",
		"URF=V1.4,W8,SRGB24",
		"air=none",
	}
	srv, err := zeroconf.Register(p.PrinterName(), serviceType, domain, a.port, txt, nil)
	if err != nil {
		return fmt.Errorf("advertise: register %s: %w", p.PrinterName(), err)
	}
	a.servers[p.PrinterName()] = srv
	slog.Info("advertised printer", "name", p.PrinterName(), "path", p.PrinterPath())
	return nil
}

func formatList(formats []string) string {
	if len(formats) == 0 {
		return "application/pdf,image/urf"
	}
	return strings.Join(formats, ",")
}

func (a *zeroconfAdvertiser) Shutdown() {
	for name, srv := range a.servers {
		srv.Shutdown()
		delete(a.servers, name)
	}
}
