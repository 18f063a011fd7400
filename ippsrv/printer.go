package ippsrv

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/looplab/fsm"
)

// PrinterState is the Printer's IPP printer-state value (RFC 8011 §5.4.15).
type PrinterState int32

const (
	PrinterIdle PrinterState = iota + 3 // 3 is "idle" per RFC 8011
	PrinterProcessing
	PrinterStopped
)

func (s PrinterState) String() string {
	switch s {
	case PrinterIdle:
		return "idle"
	case PrinterProcessing:
		return "processing"
	case PrinterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PrinterStateReason is a printer-state-reasons bitset member (§3 Printer).
type PrinterStateReason string

const (
	PSRNone               PrinterStateReason = "none"
	PSRHoldNewJobs        PrinterStateReason = "hold-new-jobs"
	PSRIdentifyRequested  PrinterStateReason = "identify-printer-requested"
	PSRMovingToPaused     PrinterStateReason = "moving-to-paused"
	PSRPaused             PrinterStateReason = "paused"
	PSRDeleting           PrinterStateReason = "deleting"
	PSRShutdown           PrinterStateReason = "shutdown"
	PSRConnectingToDevice PrinterStateReason = "connecting-to-device"
)

const (
	evtPrinterPause  = "pause"
	evtPrinterResume = "resume"
	evtPrinterStart  = "start" // first job dispatched
	evtPrinterDrain  = "drain" // last job drains
	evtPrinterDown   = "shutdown"
)

var printerFsmEvents = []fsm.EventDesc{
	{Name: evtPrinterStart, Src: []string{PrinterIdle.String()}, Dst: PrinterProcessing.String()},
	{Name: evtPrinterDrain, Src: []string{PrinterProcessing.String()}, Dst: PrinterIdle.String()},
	{Name: evtPrinterPause, Src: []string{PrinterIdle.String(), PrinterProcessing.String()}, Dst: PrinterStopped.String()},
	{Name: evtPrinterResume, Src: []string{PrinterStopped.String()}, Dst: PrinterIdle.String()},
	{Name: evtPrinterDown, Src: []string{PrinterIdle.String(), PrinterProcessing.String(), PrinterStopped.String()}, Dst: PrinterStopped.String()},
}

// Printer is a logical IPP Printer object hosted under the System (§3).
type Printer struct {
	mu sync.RWMutex

	ID   PrinterID
	UUID string
	Name string
	Path string // /ipp/{print|print3d}/{name}
	Kind string // "print" or "print3d"

	Attrs goipp.Attributes

	state        PrinterState
	stateReasons map[PrinterStateReason]bool
	IsAccepting  bool
	IsShutdown   bool
	IsDeleted    bool

	ProxyGroup string
	PrintGroup string
	MaxDevices int

	// TransformCmd, if set, is the external rendering program run for
	// each processing job (§4.9); empty means the printer has no local
	// rendering path (proxy-only, or a bare test printer).
	TransformCmd string
	DeviceURI    string
	OutputType   string

	IdentifyPending bool
	IdentifyMessage string

	jobsByID      *store[JobID, Job]
	nextJobID     JobID
	activeOrder   []JobID // sorted by priority then id
	processingJob JobID

	devices *store[string, Device]

	resourceIDs []ResourceID

	sys *System
	sm  *fsm.FSM

	started time.Time
}

var printerNameSanitizer = regexp.MustCompile(`[\x00-\x20#/\x7f]`)

// SanitizePrinterName replaces any control character, '#', '/' or DEL in a
// submitted printer-name with '_' before it is used to form a resource
// path (§6 "Printer names").
func SanitizePrinterName(name string) string {
	return printerNameSanitizer.ReplaceAllString(name, "_")
}

// NewPrinter constructs a Printer in the idle state, not yet registered
// with any System.
func NewPrinter(sys *System, name, kind string) *Printer {
	safe := SanitizePrinterName(name)
	if kind == "" {
		kind = "print"
	}
	p := &Printer{
		Name:         safe,
		Kind:         kind,
		Path:         "/ipp/" + kind + "/" + safe,
		UUID:         printerUUID(safe),
		IsAccepting:  true,
		stateReasons: map[PrinterStateReason]bool{},
		jobsByID:     newStore[JobID, Job](),
		devices:      newStore[string, Device](),
		sys:          sys,
		started:      time.Now(),
	}
	p.sm = p.makeFSM()
	return p
}

func (p *Printer) makeFSM() *fsm.FSM {
	lg := slog.With("printer", p.Name)
	return fsm.NewFSM(
		PrinterIdle.String(),
		printerFsmEvents,
		fsm.Callbacks{
			evtPrinterStart: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "printer processing started")
				p.state = PrinterProcessing
			},
			evtPrinterDrain: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "printer idle")
				p.state = PrinterIdle
			},
			evtPrinterPause: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "printer paused")
				p.state = PrinterStopped
				p.stateReasons[PSRPaused] = true
				delete(p.stateReasons, PSRMovingToPaused)
			},
			evtPrinterResume: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "printer resumed")
				p.state = PrinterIdle
				delete(p.stateReasons, PSRPaused)
			},
			evtPrinterDown: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "printer shut down")
				p.state = PrinterStopped
				p.IsShutdown = true
				p.stateReasons[PSRShutdown] = true
			},
		},
	)
}

func (p *Printer) Lock()    { p.mu.Lock() }
func (p *Printer) Unlock()  { p.mu.Unlock() }
func (p *Printer) RLock()   { p.mu.RLock() }
func (p *Printer) RUnlock() { p.mu.RUnlock() }

func (p *Printer) State() PrinterState { return p.state }

func (p *Printer) UpTime() int { return int(time.Since(p.started).Seconds()) }

// PrinterName and PrinterPath satisfy advertise.Printer without exposing
// the Name/Path fields through method names that would collide with them.
func (p *Printer) PrinterName() string { return p.Name }
func (p *Printer) PrinterPath() string { return p.Path }

// MakeAndModel returns printer-make-and-model from the configured
// attribute passthrough, or the printer name if none was set.
func (p *Printer) MakeAndModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := findAttr(p.Attrs, "printer-make-and-model"); ok && len(v) > 0 {
		if s, ok := v[0].V.(goipp.String); ok {
			return string(s)
		}
	}
	return p.Name
}

// DocumentFormats returns document-format-supported from the configured
// attribute passthrough, for an advertiser's "pdl=" TXT record.
func (p *Printer) DocumentFormats() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := findAttr(p.Attrs, "document-format-supported")
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, val := range v {
		if s, ok := val.V.(goipp.String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

func (p *Printer) StateReasons() []PrinterStateReason {
	out := make([]PrinterStateReason, 0, len(p.stateReasons))
	for r, set := range p.stateReasons {
		if set {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = append(out, PSRNone)
	}
	return out
}

// effectiveState applies §8 invariant 4: reported printer-state is the max
// of the local state and the aggregated device state, using idle <
// processing < stopped.
func (p *Printer) effectiveState() PrinterState {
	st := p.state
	for _, d := range p.devices.List() {
		if d.State > st {
			st = d.State
		}
	}
	return st
}

// Pause transitions the printer to stopped, optionally deferring until the
// current job finishes.
func (p *Printer) Pause(ctx context.Context, afterCurrentJob bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if afterCurrentJob && p.processingJob != 0 {
		p.stateReasons[PSRMovingToPaused] = true
		return nil
	}
	return p.sm.Event(ctx, evtPrinterPause)
}

func (p *Printer) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sm.Event(ctx, evtPrinterResume)
}

func (p *Printer) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sm.Event(ctx, evtPrinterDown)
}

func (p *Printer) Startup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.IsShutdown = false
	delete(p.stateReasons, PSRShutdown)
	if p.state == PrinterStopped {
		return p.sm.Event(ctx, evtPrinterResume)
	}
	return nil
}

// noteJobStart/noteJobDrain drive the idle<->processing transition as jobs
// start and finish (§4.3 Printer).
func (p *Printer) noteJobStart(ctx context.Context, id JobID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processingJob = id
	if p.state == PrinterIdle {
		_ = p.sm.Event(ctx, evtPrinterStart)
	}
}

func (p *Printer) noteJobDrain(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processingJob = 0
	if p.state == PrinterProcessing && !p.hasQueuedJobs() {
		_ = p.sm.Event(ctx, evtPrinterDrain)
		if p.stateReasons[PSRMovingToPaused] {
			_ = p.sm.Event(ctx, evtPrinterPause)
		}
	}
}

func (p *Printer) hasQueuedJobs() bool {
	for _, id := range p.activeOrder {
		j, ok := p.jobsByID.Get(id)
		if ok && (j.State == JobPending || j.State == JobProcessing) {
			return true
		}
	}
	return false
}

// attributes renders the Printer's response attribute group (§4.5
// Get-Printer-Attributes et al.), reflecting synthesized derived values.
func (p *Printer) attributes(baseURI string) goipp.Attributes {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var attrs goipp.Attributes
	a := adder(&attrs)
	a("printer-uri-supported", goipp.TagURI, goipp.String(baseURI+p.Path))
	a("uri-authentication-supported", goipp.TagKeyword, ippNone)
	a("uri-security-supported", goipp.TagKeyword, ippNone)
	a("printer-name", goipp.TagName, goipp.String(p.Name))
	a("printer-state", goipp.TagEnum, goipp.Integer(p.effectiveState()))
	a("printer-state-reasons", goipp.TagKeyword, stringsToValues(reasonStrings(p.StateReasons()))...)
	a("printer-is-accepting-jobs", goipp.TagBoolean, goipp.Boolean(p.IsAccepting && !p.IsDeleted))
	a("printer-up-time", goipp.TagInteger, goipp.Integer(p.UpTime()))
	a("printer-uuid", goipp.TagURI, goipp.String("urn:uuid:"+p.UUID))
	a("queued-job-count", goipp.TagInteger, goipp.Integer(p.queuedJobCountLocked()))
	attrs = append(attrs, p.Attrs...)
	return attrs
}

func reasonStrings[T ~string](rs []T) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func (p *Printer) queuedJobCountLocked() int {
	n := 0
	for _, id := range p.activeOrder {
		j, ok := p.jobsByID.Get(id)
		if ok && j.State <= JobProcessingStopped {
			n++
		}
	}
	return n
}

func (p *Printer) tickHolds(now time.Time) {
	for _, j := range p.jobsByID.List() {
		j.mu.Lock()
		if j.State == JobPendingHeld && !j.HoldUntil.IsZero() && now.After(j.HoldUntil) {
			_ = j.sm.Event(context.Background(), jobEvtRelease)
		}
		j.mu.Unlock()
	}
}

// pruneCompleted removes finished jobs from the active ordering list
// (history is retained in jobsByID, per §5 periodic maintenance).
func (p *Printer) pruneCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.activeOrder[:0]
	for _, id := range p.activeOrder {
		j, ok := p.jobsByID.Get(id)
		if ok && !j.IsCompleted() {
			kept = append(kept, id)
		}
	}
	p.activeOrder = kept
}
