package ippsrv

// Supplemental helpers for attribute construction and extraction.

import (
	"fmt"

	"github.com/OpenPrinting/goipp"
)

const (
	ippNone  goipp.String = "none"
	ippUTF8  goipp.String = "utf-8"
	ippENUS  goipp.String = "en-us"
	ippPDF   goipp.String = "application/pdf"
	ippOctet goipp.String = "application/octet-stream"
)

// adder returns a function that appends attributes to an attribute group
// in place.
func adder(op *goipp.Attributes) func(name string, tag goipp.Tag, values ...goipp.Value) {
	return func(name string, tag goipp.Tag, values ...goipp.Value) {
		if len(values) == 0 {
			values = []goipp.Value{goipp.String("")}
		}
		attr := goipp.MakeAttribute(name, tag, values[0])
		for _, v := range values[1:] {
			attr.Values.Add(tag, v)
		}
		op.Add(attr)
	}
}

func stringsToValues[S ~[]E, E ~string](strs S) []goipp.Value {
	values := make([]goipp.Value, len(strs))
	for i, s := range strs {
		values[i] = goipp.String(s)
	}
	return values
}

// baseResponse builds a response message carrying the mandatory
// operation-group triplet and the given status code.
func baseResponse(status goipp.Status, requestID uint32) *goipp.Message {
	m := goipp.NewResponse(goipp.DefaultVersion, status, requestID)
	a := adder(&m.Operation)
	a("attributes-charset", goipp.TagCharset, ippUTF8)
	a("attributes-natural-language", goipp.TagLanguage, ippENUS)
	return m
}

func findAttr(attrs goipp.Attributes, name string) (goipp.Values, bool) {
	for _, attr := range attrs {
		if attr.Name == name && len(attr.Values) > 0 {
			return attr.Values, true
		}
	}
	return nil, false
}

func hasAttr(attrs goipp.Attributes, name string) bool {
	_, ok := findAttr(attrs, name)
	return ok
}

func extractValue[T any](attrs goipp.Attributes, name string) (T, error) {
	var zero T
	vv, ok := findAttr(attrs, name)
	if !ok {
		return zero, fmt.Errorf("attribute %q not found", name)
	}
	if len(vv) > 1 {
		return zero, fmt.Errorf("attribute %q has multiple values: %d", name, len(vv))
	}
	val, ok := vv[0].V.(T)
	if !ok {
		return zero, fmt.Errorf("attribute %q is not of type %T: %T", name, zero, vv[0].V)
	}
	return val, nil
}

func extractValues[T any](attrs goipp.Attributes, name string) ([]T, error) {
	vv, ok := findAttr(attrs, name)
	if !ok {
		return nil, fmt.Errorf("attribute %q not found", name)
	}
	out := make([]T, 0, len(vv))
	for _, v := range vv {
		val, ok := v.V.(T)
		if !ok {
			return nil, fmt.Errorf("attribute %q has a value not of type %T: %T", name, *new(T), v.V)
		}
		out = append(out, val)
	}
	return out, nil
}

func extractStrings(attrs goipp.Attributes, name string) ([]string, error) {
	vv, err := extractValues[goipp.String](attrs, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vv))
	for i, v := range vv {
		out[i] = string(v)
	}
	return out, nil
}

// replaceAttr removes any existing attribute of the given name and, if any
// values are given, appends it back with the new values. Used for Set-xxx
// operations and sparse device-attribute replacement.
func replaceAttr(attrs *goipp.Attributes, name string, tag goipp.Tag, values ...goipp.Value) {
	deleteAttr(attrs, name)
	if len(values) == 0 {
		return
	}
	adder(attrs)(name, tag, values...)
}

func deleteAttr(attrs *goipp.Attributes, name string) {
	filtered := make(goipp.Attributes, 0, len(*attrs))
	for _, a := range *attrs {
		if a.Name != name {
			filtered = append(filtered, a)
		}
	}
	*attrs = filtered
}
