package ippsrv

import (
	"net/http"

	"github.com/OpenPrinting/goipp"
)

// Client is the per-request context passed to every operation handler: the
// transport handle, the parsed request, the response under construction,
// the authenticated user (if any), and the objects resolved from the
// request URI. A Client is never retained past the request it serves.
type Client struct {
	HTTP     *http.Request
	Request  *goipp.Message
	Body     []byte
	Username string

	System       *System
	Printer      *Printer
	Job          *Job
	Resource     *Resource
	Subscription *Subscription

	// FetchWriter is set by the transport for Fetch-Document streaming
	// responses; a handler writes document bytes directly to it instead
	// of returning them in the response message body.
	FetchWriter interface {
		Write([]byte) (int, error)
	}
}

func (c *Client) inGroup(group string) bool {
	if c.System == nil || c.System.Authorizer == nil {
		return false
	}
	return c.System.Authorizer.InGroup(c.Username, group)
}

func (c *Client) authenticated() bool {
	return c.Username != ""
}
