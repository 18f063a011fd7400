package ippsrv

import (
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
)

func opsWithFormat(format string) goipp.Attributes {
	if format == "" {
		return nil
	}
	return goipp.Attributes{attr("document-format", goipp.TagMimeType, goipp.String(format))}
}

func TestDetectFormat_trustsExplicitSupportedFormat(t *testing.T) {
	detected, format := detectFormat([]byte("%PDF-1.4"), opsWithFormat("application/postscript"))
	assert.Empty(t, detected, "no sniff when a non-octet-stream format was supplied")
	assert.Equal(t, "application/postscript", format)
}

func TestDetectFormat_sniffsWhenOctetStream(t *testing.T) {
	detected, format := detectFormat([]byte("%PDF-1.4\n..."), opsWithFormat("application/octet-stream"))
	assert.Equal(t, "application/pdf", detected)
	assert.Equal(t, "application/pdf", format)
}

func TestDetectFormat_sniffsWhenAbsent(t *testing.T) {
	detected, format := detectFormat([]byte{0x89, 0x50, 0x4E, 0x47, 0, 0, 0, 0}, nil)
	assert.Equal(t, "image/png", detected)
	assert.Equal(t, "image/png", format)
}

func TestDetectFormat_jpegRequiresMarkerInRange(t *testing.T) {
	assert.Equal(t, "image/jpeg", sniffMagic([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/jpeg", sniffMagic([]byte{0xFF, 0xD8, 0xFF, 0xEF}))
	assert.Equal(t, "", sniffMagic([]byte{0xFF, 0xD8, 0xFF, 0xF0}))
}

func TestDetectFormat_pwgAndURF(t *testing.T) {
	assert.Equal(t, "image/pwg-raster", sniffMagic([]byte("RAS2....")))
	assert.Equal(t, "image/urf", sniffMagic([]byte("UNIRAST.")))
}

func TestDetectFormat_fallsBackToOctetStreamWhenUndetected(t *testing.T) {
	detected, format := detectFormat([]byte("plain text body"), nil)
	assert.Empty(t, detected)
	assert.Equal(t, "application/octet-stream", format)
}
