package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAttrLine(t *testing.T) {
	var got []string
	parseAttrLine("job-impressions-completed=3 marker-levels=45", func(name, value string) {
		got = append(got, name+"="+value)
	})
	assert.Equal(t, []string{"job-impressions-completed=3", "marker-levels=45"}, got)
}

func TestParseStateLine(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantKeywords []string
		wantSign     byte
		wantReplace  bool
	}{
		{
			name:         "replace whole set",
			line:         "media-empty-warning,toner-low-report",
			wantKeywords: []string{"media-empty", "toner-low"},
			wantSign:     0,
			wantReplace:  true,
		},
		{
			name:         "add one",
			line:         "+media-jam-error",
			wantKeywords: []string{"media-jam"},
			wantSign:     '+',
			wantReplace:  false,
		},
		{
			name:         "remove one",
			line:         "-media-jam-error",
			wantKeywords: []string{"media-jam"},
			wantSign:     '-',
			wantReplace:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKeywords []string
			var gotSign byte
			var gotReplace bool
			parseStateLine(tt.line, func(keywords []string, sign byte, replace bool) {
				gotKeywords = keywords
				gotSign = sign
				gotReplace = replace
			})
			assert.Equal(t, tt.wantKeywords, gotKeywords)
			assert.Equal(t, tt.wantSign, gotSign)
			assert.Equal(t, tt.wantReplace, gotReplace)
		})
	}
}

func TestParseStateLine_bareErrorIsFailureSentinel(t *testing.T) {
	var got []string
	var gotSign byte
	ok := false
	parseStateLine("-error", func(keywords []string, sign byte, replace bool) {
		got = keywords
		gotSign = sign
		ok = true
	})
	assert.True(t, ok)
	assert.Empty(t, got)
	assert.Equal(t, byte('-'), gotSign)
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv("application/pdf", "usb://device", "document", "info",
		[]Attr{{Name: "job-id", Value: "7"}},
		[]Attr{{Name: "printer-name", Value: "lp1"}},
	)
	assert.Contains(t, env, "CONTENT_TYPE=application/pdf")
	assert.Contains(t, env, "DEVICE_URI=usb://device")
	assert.Contains(t, env, "OUTPUT_TYPE=document")
	assert.Contains(t, env, "SERVER_LOGLEVEL=info")
	assert.Contains(t, env, "IPP_JOB_ID=7")
	assert.Contains(t, env, "IPP_PRINTER_NAME=lp1")
}

func TestAttrIsInteger(t *testing.T) {
	assert.True(t, AttrIsInteger("job-impressions-completed"))
	assert.False(t, AttrIsInteger("marker-levels"))
}
