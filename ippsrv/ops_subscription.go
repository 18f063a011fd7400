package ippsrv

import (
	"context"
	"time"

	"github.com/OpenPrinting/goipp"
)

func (d *Dispatcher) registerSubscriptionOps() {
	d.handlers[goipp.OpCreatePrinterSubscriptions] = d.handleCreateSubscriptions
	d.handlers[goipp.OpCreateJobSubscriptions] = d.handleCreateSubscriptions
	d.handlers[goipp.OpCreateResourceSubscriptions] = d.handleCreateSubscriptions
	d.handlers[goipp.OpCreateSystemSubscriptions] = d.handleCreateSubscriptions
	d.handlers[goipp.OpGetSubscriptionAttributes] = d.handleGetSubscriptionAttributes
	d.handlers[goipp.OpGetSubscriptions] = d.handleGetSubscriptions
	d.handlers[goipp.OpRenewSubscription] = d.handleRenewSubscription
	d.handlers[goipp.OpCancelSubscription] = d.handleCancelSubscription
	d.handlers[goipp.OpGetNotifications] = d.handleGetNotifications
}

// handleCreateSubscriptions accepts a sequence of subscription-template
// groups carried as successive Subscription attribute groups (§4.7).
func (d *Dispatcher) handleCreateSubscriptions(ctx context.Context, c *Client) *goipp.Message {
	templates := splitSubscriptionTemplates(c.Request.Subscription)
	if len(templates) == 0 {
		templates = []goipp.Attributes{nil}
	}

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	succeeded := 0
	for _, tmpl := range templates {
		status, sub := d.createOneSubscription(c, tmpl)
		group := adder(&resp.Subscription)
		group("notify-status-code", goipp.TagEnum, goipp.Integer(status))
		if sub != nil {
			succeeded++
			resp.Subscription = append(resp.Subscription, sub.attributes()...)
		}
	}

	switch {
	case succeeded == 0:
		resp.Code = goipp.Code(goipp.StatusErrorIgnoredAllSubscriptions)
	case succeeded < len(templates):
		resp.Code = goipp.Code(goipp.StatusOkIgnoredSubscriptions)
	}
	return resp
}

func splitSubscriptionTemplates(attrs goipp.Attributes) []goipp.Attributes {
	var groups []goipp.Attributes
	var cur goipp.Attributes
	for _, a := range attrs {
		// A repeated attribute name starts the next template group.
		if _, seen := findAttr(cur, a.Name); seen {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, a)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func (d *Dispatcher) createOneSubscription(c *Client, tmpl goipp.Attributes) (goipp.Status, *Subscription) {
	if hasAttr(tmpl, "notify-recipient-uri") {
		return goipp.StatusErrorAttributesOrValues, nil
	}
	if method, err := extractValue[goipp.String](tmpl, "notify-pull-method"); err != nil || string(method) != "ippget" {
		return goipp.StatusErrorAttributesOrValues, nil
	}
	if charset, err := extractValue[goipp.String](tmpl, "notify-charset"); err == nil {
		if charset != "us-ascii" && charset != "utf-8" {
			return goipp.StatusErrorCharset, nil
		}
	}
	if lang, err := extractValue[goipp.String](tmpl, "notify-natural-language"); err == nil && string(lang) != "en" {
		return goipp.StatusErrorAttributesOrValues, nil
	}
	if userData, err := extractValue[goipp.String](tmpl, "notify-user-data"); err == nil && len(userData) > 63 {
		return goipp.StatusErrorAttributesOrValues, nil
	}
	lease := int64(0)
	if v, err := extractValue[goipp.Integer](tmpl, "notify-lease-duration"); err == nil {
		if v < 0 {
			return goipp.StatusErrorAttributesOrValues, nil
		}
		lease = int64(v)
	}

	id := d.sys.NewSubscriptionID()
	sub := NewSubscription(d.sys, id, c.Username, lease)
	sub.Printer = c.Printer
	sub.Job = c.Job
	if events, err := extractStrings(tmpl, "notify-events"); err == nil {
		sub.EventMask = events
	}
	d.sys.AddSubscription(sub)
	return goipp.StatusOk, sub
}

func (d *Dispatcher) handleGetSubscriptionAttributes(ctx context.Context, c *Client) *goipp.Message {
	id, err := extractValue[goipp.Integer](c.Request.Operation, "notify-subscription-id")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("notify-subscription-id required"))
	}
	sub, ok := d.sys.Subscription(SubscriptionID(id))
	if !ok {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such subscription"))
	}
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	resp.Subscription = sub.attributes()
	return resp
}

func (d *Dispatcher) handleGetSubscriptions(ctx context.Context, c *Client) *goipp.Message {
	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	for _, sub := range d.sys.Subscriptions() {
		if c.Printer != nil && sub.Printer != c.Printer {
			continue
		}
		resp.Subscription = append(resp.Subscription, sub.attributes()...)
	}
	return resp
}

func (d *Dispatcher) handleRenewSubscription(ctx context.Context, c *Client) *goipp.Message {
	id, err := extractValue[goipp.Integer](c.Request.Operation, "notify-subscription-id")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("notify-subscription-id required"))
	}
	sub, ok := d.sys.Subscription(SubscriptionID(id))
	if !ok {
		return d.errorResponse(c.Request.RequestID, errNotFound("no such subscription"))
	}
	lease := int64(0)
	if v, err := extractValue[goipp.Integer](c.Request.Operation, "notify-lease-duration"); err == nil {
		lease = int64(v)
	}
	sub.renew(lease)
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

func (d *Dispatcher) handleCancelSubscription(ctx context.Context, c *Client) *goipp.Message {
	id, err := extractValue[goipp.Integer](c.Request.Operation, "notify-subscription-id")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("notify-subscription-id required"))
	}
	d.sys.RemoveSubscription(SubscriptionID(id))
	return baseResponse(goipp.StatusOk, c.Request.RequestID)
}

// handleGetNotifications implements the pull-only event drain, blocking on
// the process-wide notification signal up to 30s when notify-wait is set
// and nothing has accrued yet (§4.7, §5).
func (d *Dispatcher) handleGetNotifications(ctx context.Context, c *Client) *goipp.Message {
	ids, err := extractValues[goipp.Integer](c.Request.Operation, "notify-subscription-ids")
	if err != nil {
		return d.errorResponse(c.Request.RequestID, errBadRequest("notify-subscription-ids required"))
	}
	seqs, _ := extractValues[goipp.Integer](c.Request.Operation, "notify-sequence-numbers")
	wait, _ := extractValue[goipp.Boolean](c.Request.Operation, "notify-wait")

	collect := func() []goipp.Message {
		var events []goipp.Message
		for i, idv := range ids {
			sub, ok := d.sys.Subscription(SubscriptionID(idv))
			if !ok {
				continue
			}
			since := int64(0)
			if i < len(seqs) {
				since = int64(seqs[i])
			}
			events = append(events, sub.eventsSince(since)...)
		}
		return events
	}

	events := collect()
	if len(events) == 0 && bool(wait) {
		deadline := time.NewTimer(30 * time.Second)
		defer deadline.Stop()
		select {
		case <-d.sys.notify.Chan():
			events = collect()
		case <-deadline.C:
		case <-ctx.Done():
		}
	}

	resp := baseResponse(goipp.StatusOk, c.Request.RequestID)
	a := adder(&resp.Operation)
	a("notify-get-interval", goipp.TagInteger, goipp.Integer(30))
	a("printer-up-time", goipp.TagInteger, goipp.Integer(d.sys.upTime()))
	for i := range events {
		resp.EventNotification = append(resp.EventNotification, events[i].Operation...)
	}
	return resp
}
