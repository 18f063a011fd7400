// Package ippsrv implements an IPP/2.x System, Printer, Job, Subscription
// and Resource server, including the Proxy/Fetch protocol for pull-based
// output devices.
package ippsrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/OpenPrinting/ippd/ingest"
	"github.com/OpenPrinting/ippd/transform"
	"github.com/rusq/httpex"
)

var MaxDocumentSize int64 = 104857600

const reaperInterval = 5 * time.Second

type Server struct {
	sys  *System
	disp *Dispatcher
	srv  *http.Server

	stop chan struct{}

	debug   bool
	dumpdir string

	binDir   string
	logLevel string
}

const (
	hdrContentType = "Content-Type"
	ippMIMEType    = "application/ipp"
)

// Option is the server option.
type Option func(*Server)

func WithDebug(b bool) Option {
	return func(s *Server) {
		s.debug = b
	}
}

// WithDumpDir allows to set the directory for protocol dumps.
// If not specified, a temporary directory will be used.
func WithDumpDir(dir string) Option {
	return func(s *Server) {
		s.dumpdir = dir
	}
}

// WithTransformBinDir sets the directory the Transform Supervisor
// searches for each printer's TransformCmd (§4.9); empty uses PATH.
func WithTransformBinDir(dir string) Option {
	return func(s *Server) {
		s.binDir = dir
	}
}

// WithTransformLogLevel sets the SERVER_LOGLEVEL environment variable
// passed to transform children.
func WithTransformLogLevel(level string) Option {
	return func(s *Server) {
		s.logLevel = level
	}
}

// New returns a new IPP server fronting sys at baseURI (e.g.
// "http://localhost:631"), spooling documents under spoolDir and
// permitting file: URI ingestion only under fileURIRoots.
func New(sys *System, baseURI, spoolDir string, fileURIRoots []string, opts ...Option) (*Server, error) {
	docs, err := ingest.NewStore(spoolDir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		sys:  sys,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	supervisor := &transform.Supervisor{BinDir: s.binDir, LogLevel: s.logLevel}
	s.disp = NewDispatcher(sys, baseURI, docs, fileURIRoots, supervisor)
	if s.debug {
		if s.dumpdir != "" {
			if err := os.MkdirAll(s.dumpdir, 0700); err != nil {
				return nil, fmt.Errorf("error creating requested dump directory: %w", err)
			}
		} else {
			d, err := os.MkdirTemp("", "protodump-*")
			if err != nil {
				return nil, fmt.Errorf("error creating temporary dump directory: %w", err)
			}
			s.dumpdir = d
		}
		slog.Info("protocol dump", "directory", s.dumpdir)
	}

	m := http.NewServeMux()
	m.HandleFunc("/", s.handleIPP)
	srv := &http.Server{
		Handler: httpex.LogMiddleware(m, log.Default()),
	}
	s.srv = srv

	go sys.RunReaper(reaperInterval, s.stop)

	return s, nil
}

// Info is the SIGINFO response for the server.
func (s *Server) Info(w io.Writer) {
	fmt.Fprintf(w, "*** IPP Server Info ***\n")
	fmt.Fprintf(w, "Printers:\n")
	for _, p := range s.sys.Printers() {
		fmt.Fprintf(w, "  - %s (%s) state=%s jobs=%d\n", p.Name, p.Path, p.State(), p.queuedJobCountLocked())
	}
	fmt.Fprintf(w, "Server Address: %s\n", s.srv.Addr)
	fmt.Fprintf(w, "Debug Mode: %t\n", s.debug)
	fmt.Fprintf(w, "Max Document Size: %d bytes\n", MaxDocumentSize)
}

func httpError(w http.ResponseWriter, code int) {
	http.Error(w, fmt.Sprintf("%d %s", code, http.StatusText(code)), code)
}

// handleIPP is the sole HTTP entry point: every IPP request, regardless of
// target object, arrives as a POST with an "application/ipp" body and is
// handed to the Dispatcher after decoding (§4.5).
func (s *Server) handleIPP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed)
		return
	}
	if r.Body == nil {
		httpError(w, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var msg goipp.Message
	if err := msg.Decode(r.Body); err != nil {
		httpError(w, http.StatusBadRequest)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, MaxDocumentSize))
	if err != nil {
		slog.WarnContext(r.Context(), "failed to read document payload", "error", err)
	}

	if s.debug {
		t := time.Now()
		dumpIPPFile(
			filepath.Join(s.dumpdir, fmt.Sprintf("request_%d_%04x.ipp", t.Unix(), msg.Code)),
			&msg,
		)
		dumpfile(
			filepath.Join(s.dumpdir, fmt.Sprintf("request_%d_%04x.json", t.Unix(), msg.Code)),
			&msg,
		)
	}

	username := basicAuthUsername(r)

	w.Header().Set(hdrContentType, ippMIMEType)
	resp := s.disp.Dispatch(r.Context(), r, &msg, payload, username)
	if err := resp.Encode(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// basicAuthUsername extracts the client-asserted user name from HTTP Basic
// credentials, the transport-level authentication scheme assumed by §4.4's
// "requesting-user-name matches the authenticated identity" checks. Bearer
// or client-certificate schemes would plug in here the same way.
func basicAuthUsername(r *http.Request) string {
	user, _, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	return user
}

func (s *Server) ListenAndServe(addr string) error {
	s.srv.Addr = addr
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	close(s.stop)

	var errs error
	if err := s.srv.Shutdown(sctx); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}
