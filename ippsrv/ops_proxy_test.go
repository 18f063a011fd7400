package ippsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSparseName_plainNameHasNoIndex(t *testing.T) {
	name, idx, end := parseSparseName("media-ready")
	assert.Equal(t, "media-ready", name)
	assert.Equal(t, -1, idx)
	assert.Equal(t, -1, end)
}

func TestParseSparseName_singleIndex(t *testing.T) {
	name, idx, end := parseSparseName("media-ready.3")
	assert.Equal(t, "media-ready", name)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 3, end)
}

func TestParseSparseName_indexRange(t *testing.T) {
	name, idx, end := parseSparseName("media-ready.2-4")
	assert.Equal(t, "media-ready", name)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 4, end)
}

func TestParseSparseName_nonNumericSuffixIsPlainName(t *testing.T) {
	name, idx, end := parseSparseName("printer-state-changed")
	assert.Equal(t, "printer-state-changed", name)
	assert.Equal(t, -1, idx)
	assert.Equal(t, -1, end)
}
