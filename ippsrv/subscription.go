package ippsrv

import (
	"math"
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"
)

// indefiniteLease represents notify-lease-duration=0, "until shutdown"
// (§6), stored internally as math.MaxInt64 rather than literal zero.
const indefiniteLease = math.MaxInt64

// Subscription is a standing request to collect state-change events,
// delivered via the pull-only Get-Notifications operation (§3, §4.7).
type Subscription struct {
	mu sync.Mutex

	ID       SubscriptionID
	UUID     string
	Username string

	Printer *Printer // optional scope
	Job     *Job     // optional scope

	EventMask []string
	Charset   string
	Language  string
	UserData  []byte

	PullInterval time.Duration
	leaseSeconds int64
	expire       time.Time

	firstSequence int64
	lastSequence  int64
	log           []goipp.Message

	sys *System
}

// NewSubscription constructs a live Subscription with the given lease (0
// meaning indefinite, per §6).
func NewSubscription(sys *System, id SubscriptionID, username string, leaseSeconds int64) *Subscription {
	if leaseSeconds <= 0 {
		leaseSeconds = indefiniteLease
	}
	s := &Subscription{
		ID:           id,
		UUID:         subscriptionUUID(id),
		Username:     username,
		leaseSeconds: leaseSeconds,
		sys:          sys,
	}
	s.renew(leaseSeconds)
	return s
}

func (s *Subscription) renew(leaseSeconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if leaseSeconds <= 0 {
		leaseSeconds = indefiniteLease
	}
	s.leaseSeconds = leaseSeconds
	if leaseSeconds == indefiniteLease {
		s.expire = time.Now().AddDate(100, 0, 0)
		return
	}
	s.expire = time.Now().Add(time.Duration(leaseSeconds) * time.Second)
}

func (s *Subscription) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expire)
}

// matches reports whether the subscription is scoped to (and therefore
// should record) an event on the given printer/job combination.
func (s *Subscription) matches(p *Printer, j *Job) bool {
	if s.Printer != nil && s.Printer != p {
		return false
	}
	if s.Job != nil && s.Job != j {
		return false
	}
	return true
}

// appendEvent appends msg to the subscription's log under its own write
// lock (§5 "Events are appended to a subscription under that
// subscription's write lock; sequence numbers are therefore monotone per
// subscription"), and wakes any long-poll waiters.
func (s *Subscription) appendEvent(eventName string, msg *goipp.Message) {
	s.mu.Lock()
	s.lastSequence++
	if s.firstSequence == 0 {
		s.firstSequence = s.lastSequence
	}
	seq := s.lastSequence
	a := adder(&msg.Operation)
	a("notify-subscription-id", goipp.TagInteger, goipp.Integer(s.ID))
	a("notify-sequence-number", goipp.TagInteger, goipp.Integer(seq))
	a("notify-subscribed-event", goipp.TagKeyword, goipp.String(eventName))
	s.log = append(s.log, *msg)
	s.mu.Unlock()

	if s.sys != nil {
		s.sys.notify.Broadcast()
	}
}

// eventsSince returns events with sequence >= max(since, firstSequence)
// (§4.7 Get-Notifications).
func (s *Subscription) eventsSince(since int64) []goipp.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	floor := since
	if s.firstSequence > floor {
		floor = s.firstSequence
	}
	var out []goipp.Message
	for i, m := range s.log {
		seq := s.firstSequence + int64(i)
		if seq >= floor {
			out = append(out, m)
		}
	}
	return out
}

func (s *Subscription) attributes() goipp.Attributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	var attrs goipp.Attributes
	a := adder(&attrs)
	a("notify-subscription-id", goipp.TagInteger, goipp.Integer(s.ID))
	a("notify-events", goipp.TagKeyword, stringsToValues(s.EventMask)...)
	a("notify-lease-duration", goipp.TagInteger, goipp.Integer(leaseForWire(s.leaseSeconds)))
	a("notify-time-interval", goipp.TagInteger, goipp.Integer(int32(s.PullInterval.Seconds())))
	if s.Printer != nil {
		a("notify-printer-uri", goipp.TagURI, goipp.String(s.Printer.Path))
	}
	if s.Job != nil {
		a("notify-job-id", goipp.TagInteger, goipp.Integer(s.Job.ID))
	}
	return attrs
}

func leaseForWire(lease int64) int32 {
	if lease >= indefiniteLease {
		return 0
	}
	return int32(lease)
}
