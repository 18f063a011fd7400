package ippsrv

import (
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"
)

// Device is a remote Output Device proxied behind a Printer with a
// proxy_group (§3 Output Device, §4.8 Proxy/Fetch Protocol).
type Device struct {
	mu sync.RWMutex

	UUID    string
	Printer *Printer

	Attrs goipp.Attributes

	State   PrinterState
	Reasons []string

	LastSeen time.Time
}

// NewDevice constructs a Device bound to p.
func NewDevice(p *Printer, deviceUUID string) *Device {
	return &Device{
		UUID:     deviceUUIDFromString(deviceUUID),
		Printer:  p,
		State:    PrinterIdle,
		LastSeen: time.Now(),
	}
}

// applySparseUpdate applies a single Update-Output-Device-Attributes
// attribute, which is either a plain name (whole-attribute replace-or-
// delete) or a sparse name.N / name.N-M indexed update (§4.8 item 7).
func (d *Device) applySparseUpdate(name string, index, endIndex int, tag goipp.Tag, values []goipp.Value, isDelete bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index < 0 { // plain name: whole-attribute replace or delete
		if isDelete {
			deleteAttr(&d.Attrs, name)
			return
		}
		replaceAttr(&d.Attrs, name, tag, values...)
		return
	}

	// name.N indices are 1-based; convert to 0-based value positions.
	if index < 1 {
		return
	}
	index--
	endIndex--

	existing, _ := findAttr(d.Attrs, name)
	var merged goipp.Values
	merged = append(merged, existing...)

	if endIndex < index {
		endIndex = index
	}
	need := endIndex + 1
	for len(merged) < need {
		merged.Add(goipp.TagUnknown, goipp.Void{})
	}
	for i := index; i <= endIndex; i++ {
		vi := i - index
		if vi < len(values) {
			merged[i].T = tag
			merged[i].V = values[vi]
		}
	}
	if isDelete {
		out := make(goipp.Values, 0, len(merged))
		for i, v := range merged {
			if i < index || i > endIndex {
				out = append(out, v)
			}
		}
		merged = out
	}

	deleteAttr(&d.Attrs, name)
	if len(merged) > 0 {
		d.Attrs.Add(goipp.Attribute{Name: name, Values: merged})
	}
}

func (d *Device) attributes() goipp.Attributes {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var attrs goipp.Attributes
	a := adder(&attrs)
	a("output-device-uuid", goipp.TagURI, goipp.String("urn:uuid:"+d.UUID))
	a("output-device-state", goipp.TagEnum, goipp.Integer(d.State))
	attrs = append(attrs, d.Attrs...)
	return attrs
}
