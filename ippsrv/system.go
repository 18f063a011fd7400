package ippsrv

import (
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"
)

// System is the process-wide singleton holding system attributes, the
// default-printer reference, the config-change counter, and the object
// stores for Printers, Subscriptions, and Resources (§3 System).
type System struct {
	mu sync.RWMutex

	Attrs              goipp.Attributes
	DefaultPrinter     PrinterID
	ConfigChangeCount  int32
	ConfigChangeDate   time.Time
	Started            time.Time

	Authorizer   Authorizer
	AdminGroup   string

	printersByID   *store[PrinterID, Printer]
	printersByPath *store[string, Printer]
	printersByUUID *store[string, Printer]
	nextPrinterID  PrinterID

	subscriptions *store[SubscriptionID, Subscription]
	nextSubID     SubscriptionID

	resourcesByID   *store[ResourceID, Resource]
	resourcesByUUID *store[string, Resource]
	nextResourceID  ResourceID

	notify *notifyCond
}

// NewSystem creates an empty System ready to host Printers.
func NewSystem(authz Authorizer) *System {
	if authz == nil {
		authz = NewMemAuthorizer(nil)
	}
	s := &System{
		Started:         time.Now(),
		Authorizer:      authz,
		AdminGroup:      "system",
		printersByID:    newStore[PrinterID, Printer](),
		printersByPath:  newStore[string, Printer](),
		printersByUUID:  newStore[string, Printer](),
		subscriptions:   newStore[SubscriptionID, Subscription](),
		resourcesByID:   newStore[ResourceID, Resource](),
		resourcesByUUID: newStore[string, Resource](),
		notify:          newNotifyCond(),
	}
	return s
}

func (s *System) upTime() int {
	return int(time.Since(s.Started).Seconds())
}

func (s *System) bumpConfigChange() {
	s.mu.Lock()
	s.ConfigChangeCount++
	s.ConfigChangeDate = time.Now()
	s.mu.Unlock()
}

// CreatePrinter allocates a PrinterID and registers p under its resource
// path and UUID. Called by the Create-Printer handler and by startup
// config bootstrapping.
func (s *System) CreatePrinter(p *Printer) {
	s.mu.Lock()
	s.nextPrinterID++
	p.ID = s.nextPrinterID
	if s.DefaultPrinter == 0 {
		s.DefaultPrinter = p.ID
	}
	s.mu.Unlock()

	s.printersByID.Put(p.ID, p)
	s.printersByPath.Put(p.Path, p)
	s.printersByUUID.Put(p.UUID, p)
	s.bumpConfigChange()
}

func (s *System) PrinterByPath(path string) (*Printer, bool) {
	return s.printersByPath.Get(path)
}

func (s *System) PrinterByID(id PrinterID) (*Printer, bool) {
	return s.printersByID.Get(id)
}

func (s *System) PrinterByUUID(uuid string) (*Printer, bool) {
	return s.printersByUUID.Get(uuid)
}

func (s *System) Printers() []*Printer {
	return s.printersByID.List()
}

// DeletePrinter removes p from the System's stores (§4.2 deletion rules);
// the caller is responsible for the is_deleted flag and job draining.
func (s *System) DeletePrinter(p *Printer) {
	s.printersByID.Delete(p.ID)
	s.printersByPath.Delete(p.Path)
	s.printersByUUID.Delete(p.UUID)
	s.bumpConfigChange()
}

func (s *System) NewSubscriptionID() SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	return s.nextSubID
}

func (s *System) AddSubscription(sub *Subscription) {
	s.subscriptions.Put(sub.ID, sub)
}

func (s *System) Subscription(id SubscriptionID) (*Subscription, bool) {
	return s.subscriptions.Get(id)
}

func (s *System) Subscriptions() []*Subscription {
	return s.subscriptions.List()
}

func (s *System) RemoveSubscription(id SubscriptionID) {
	s.subscriptions.Delete(id)
}

func (s *System) NewResourceID() ResourceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextResourceID++
	return s.nextResourceID
}

func (s *System) AddResource(r *Resource) {
	s.resourcesByID.Put(r.ID, r)
	s.resourcesByUUID.Put(r.UUID, r)
}

func (s *System) Resource(id ResourceID) (*Resource, bool) {
	return s.resourcesByID.Get(id)
}

func (s *System) ResourceByUUID(uuid string) (*Resource, bool) {
	return s.resourcesByUUID.Get(uuid)
}

func (s *System) Resources() []*Resource {
	return s.resourcesByID.List()
}

func (s *System) RemoveResource(r *Resource) {
	s.resourcesByID.Delete(r.ID)
	s.resourcesByUUID.Delete(r.UUID)
}

// reaper runs periodically, advancing job hold timers, reaping expired
// subscriptions, and trimming completed jobs from printer active lists
// (§5 "a periodic thread advances hold_until timers...").
func (s *System) reaper(now time.Time) {
	for _, sub := range s.Subscriptions() {
		if sub.expired(now) {
			s.RemoveSubscription(sub.ID)
		}
	}
	for _, p := range s.Printers() {
		p.tickHolds(now)
		p.pruneCompleted()
	}
}

// attributes renders the System's response attribute group (§4.5
// Get-System-Attributes), including the system-configured-printers
// collection and a rolled-up printer-state.
func (s *System) attributes() goipp.Attributes {
	var attrs goipp.Attributes
	a := adder(&attrs)
	a("system-up-time", goipp.TagInteger, goipp.Integer(s.upTime()))
	a("system-config-change-time", goipp.TagInteger, goipp.Integer(int32(s.ConfigChangeDate.Unix())))
	a("system-config-change-date-time", goipp.TagDateTime, goipp.Time{Time: s.ConfigChangeDate})
	a("system-default-printer-id", goipp.TagInteger, goipp.Integer(s.DefaultPrinter))

	rollup := PrinterIdle
	names := make([]string, 0, s.printersByID.Len())
	for _, p := range s.Printers() {
		names = append(names, p.Name)
		if st := p.effectiveState(); st > rollup {
			rollup = st
		}
	}
	a("system-configured-printers", goipp.TagKeyword, stringsToValues(names)...)
	a("printer-state", goipp.TagEnum, goipp.Integer(rollup))
	attrs = append(attrs, s.Attrs...)
	return attrs
}

// RunReaper blocks, running the periodic maintenance pass every interval
// until stop is closed.
func (s *System) RunReaper(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			s.reaper(now)
		}
	}
}
