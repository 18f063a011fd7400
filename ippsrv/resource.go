package ippsrv

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OpenPrinting/goipp"
	"github.com/looplab/fsm"
)

// ResourceType is a Resource's resource-type value (§3 Resource).
type ResourceType string

const (
	ResourceStaticImage     ResourceType = "static-image"
	ResourceStaticICC       ResourceType = "static-icc-profile"
	ResourceStaticStrings   ResourceType = "static-strings"
	ResourceTemplatePrinter ResourceType = "template-printer"
	ResourceTemplateJob     ResourceType = "template-job"
	ResourceTemplateDoc     ResourceType = "template-document"
)

// ResourceState is a Resource's resource-state value (§4.3 Resource).
type ResourceState int32

const (
	ResourcePending ResourceState = iota + 3
	ResourceAvailable
	ResourceInstalled
	ResourceCanceled
	ResourceAborted
)

func (s ResourceState) String() string {
	switch s {
	case ResourcePending:
		return "pending"
	case ResourceAvailable:
		return "available"
	case ResourceInstalled:
		return "installed"
	case ResourceCanceled:
		return "canceled"
	case ResourceAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	resourceEvtDataSent = "data-sent" // pending -> available
	resourceEvtInstall  = "install"   // available -> installed
	resourceEvtCancel   = "cancel"
	resourceEvtAbort    = "abort"
)

var resourceFsmEvents = []fsm.EventDesc{
	{Name: resourceEvtDataSent, Src: []string{ResourcePending.String()}, Dst: ResourceAvailable.String()},
	{Name: resourceEvtInstall, Src: []string{ResourceAvailable.String()}, Dst: ResourceInstalled.String()},
	{Name: resourceEvtCancel, Src: []string{ResourcePending.String(), ResourceAvailable.String(), ResourceInstalled.String()}, Dst: ResourceCanceled.String()},
	{Name: resourceEvtAbort, Src: []string{ResourcePending.String(), ResourceAvailable.String(), ResourceInstalled.String()}, Dst: ResourceAborted.String()},
}

// Resource is a server-managed file or template referenced by Printers
// (§3 Resource).
type Resource struct {
	mu sync.Mutex

	ID   ResourceID
	UUID string
	Type ResourceType

	Format   string
	Path     string
	Name     string
	Sig      string
	UseCount int

	state ResourceState

	// cancelPending defers the cancel transition while UseCount > 0, per
	// §4.3 "Cancel while use > 0 defers the transition until use drops".
	cancelPending bool

	sm *fsm.FSM
}

// NewResource constructs a Resource in the pending state.
func NewResource(id ResourceID, typ ResourceType) *Resource {
	r := &Resource{
		ID:    id,
		UUID:  resourceUUID(id),
		Type:  typ,
		state: ResourcePending,
	}
	r.sm = r.makeFSM()
	return r
}

func (r *Resource) makeFSM() *fsm.FSM {
	lg := slog.With("resource", r.ID)
	return fsm.NewFSM(
		ResourcePending.String(),
		resourceFsmEvents,
		fsm.Callbacks{
			resourceEvtDataSent: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "resource data received")
				r.state = ResourceAvailable
			},
			resourceEvtInstall: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "resource installed")
				r.state = ResourceInstalled
			},
			resourceEvtCancel: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "resource canceled")
				r.state = ResourceCanceled
			},
			resourceEvtAbort: func(ctx context.Context, e *fsm.Event) {
				lg.InfoContext(ctx, "resource aborted")
				r.state = ResourceAborted
			},
		},
	)
}

func (r *Resource) State() ResourceState { return r.state }

// Cancel defers the transition if the resource is still in use.
func (r *Resource) Cancel(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UseCount > 0 {
		r.cancelPending = true
		return nil
	}
	return r.sm.Event(ctx, resourceEvtCancel)
}

// Release decrements UseCount and applies a deferred cancel once the
// resource is no longer in use.
func (r *Resource) Release(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UseCount > 0 {
		r.UseCount--
	}
	if r.cancelPending && r.UseCount == 0 {
		_ = r.sm.Event(ctx, resourceEvtCancel)
		r.cancelPending = false
	}
}

func (r *Resource) attributes() goipp.Attributes {
	var attrs goipp.Attributes
	a := adder(&attrs)
	a("resource-id", goipp.TagInteger, goipp.Integer(r.ID))
	a("resource-uuid", goipp.TagURI, goipp.String("urn:uuid:"+r.UUID))
	a("resource-type", goipp.TagKeyword, goipp.String(r.Type))
	a("resource-state", goipp.TagEnum, goipp.Integer(r.State()))
	a("resource-format", goipp.TagMimeType, goipp.String(r.Format))
	return attrs
}
