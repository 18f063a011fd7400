package ippsrv

import (
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveKeywordValues(vals ...string) goipp.Values {
	var vv goipp.Values
	for _, v := range vals {
		vv.Add(goipp.TagKeyword, goipp.String(v))
	}
	return vv
}

func TestDevice_SparseUpdate_insertPreservesOtherIndices(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	d := NewDevice(p, "")
	d.Attrs = goipp.Attributes{{
		Name:   "media-ready",
		Values: fiveKeywordValues("a", "b", "c", "d", "e"),
	}}

	// S5: replace index 3 (1-based per §4.8 item 7 / §8 round-trip law)
	d.applySparseUpdate("media-ready", 3, 3, goipp.TagKeyword, []goipp.Value{goipp.String("na_letter_8.5x11in")}, false)

	vv, ok := findAttr(d.Attrs, "media-ready")
	require.True(t, ok)
	require.Len(t, vv, 5)
	assert.Equal(t, goipp.String("a"), vv[0].V)
	assert.Equal(t, goipp.String("b"), vv[1].V)
	assert.Equal(t, goipp.String("na_letter_8.5x11in"), vv[2].V)
	assert.Equal(t, goipp.String("e"), vv[4].V)
}

func TestDevice_SparseUpdate_growsAttributeWhenIndexBeyondEnd(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	d := NewDevice(p, "")
	d.Attrs = goipp.Attributes{{
		Name:   "media-ready",
		Values: fiveKeywordValues("a", "b", "c", "d", "e"),
	}}

	d.applySparseUpdate("media-ready", 6, 6, goipp.TagKeyword, []goipp.Value{goipp.String("f")}, false)

	vv, _ := findAttr(d.Attrs, "media-ready")
	require.Len(t, vv, 6)
	assert.Equal(t, goipp.String("f"), vv[5].V)
}

func TestDevice_SparseUpdate_deleteRemovesOnlyIndexedRange(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	d := NewDevice(p, "")
	d.Attrs = goipp.Attributes{{
		Name:   "media-ready",
		Values: fiveKeywordValues("a", "b", "c", "d", "e"),
	}}

	d.applySparseUpdate("media-ready", 1, 2, goipp.TagKeyword, nil, true)

	vv, _ := findAttr(d.Attrs, "media-ready")
	require.Len(t, vv, 3)
	assert.Equal(t, goipp.String("c"), vv[0].V)
	assert.Equal(t, goipp.String("d"), vv[1].V)
	assert.Equal(t, goipp.String("e"), vv[2].V)
}

func TestDevice_SparseUpdate_plainNameReplacesWholeAttribute(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	d := NewDevice(p, "")
	d.Attrs = goipp.Attributes{{Name: "printer-state-message", Values: goipp.Values{{T: goipp.TagText, V: goipp.String("old")}}}}

	d.applySparseUpdate("printer-state-message", -1, -1, goipp.TagText, []goipp.Value{goipp.String("new")}, false)

	vv, ok := findAttr(d.Attrs, "printer-state-message")
	require.True(t, ok)
	assert.Equal(t, goipp.String("new"), vv[0].V)
}

func TestDevice_SparseUpdate_plainNameDeleteRemovesAttribute(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	d := NewDevice(p, "")
	d.Attrs = goipp.Attributes{{Name: "printer-state-message", Values: goipp.Values{{T: goipp.TagText, V: goipp.String("old")}}}}

	d.applySparseUpdate("printer-state-message", -1, -1, goipp.TagDeleteAttr, nil, true)

	_, ok := findAttr(d.Attrs, "printer-state-message")
	assert.False(t, ok)
}
