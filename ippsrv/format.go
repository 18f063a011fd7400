package ippsrv

import (
	"bytes"

	"github.com/OpenPrinting/goipp"
)

// detectFormat implements §4.6's magic-number sniff: if the supplied
// document-format is absent or application/octet-stream, the first bytes
// of body are matched against known magic numbers. It returns the
// detected MIME type (empty if undetected/not needed) and the format to
// record on the job.
func detectFormat(body []byte, ops goipp.Attributes) (detected, format string) {
	supplied, _ := extractValue[goipp.String](ops, "document-format")
	format = string(supplied)
	if format != "" && format != string(ippOctet) {
		return "", format
	}
	head := body
	if len(head) > 8 {
		head = head[:8]
	}
	detected = sniffMagic(head)
	if detected != "" {
		format = detected
	} else if format == "" {
		format = string(ippOctet)
	}
	return detected, format
}

func sniffMagic(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(head, []byte("%!")):
		return "application/postscript"
	case len(head) >= 4 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF && head[3] >= 0xE0 && head[3] <= 0xEF:
		return "image/jpeg"
	case bytes.HasPrefix(head, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(head, []byte("RAS2")):
		return "image/pwg-raster"
	case bytes.HasPrefix(head, []byte("UNIRAST")):
		return "image/urf"
	default:
		return ""
	}
}
