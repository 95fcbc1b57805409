package imaging

import (
	"bytes"
	"strings"
)

// Format is a supported image container format.
type Format uint8

// Supported formats. The zero value is not a format.
const (
	JPEG Format = iota + 1
	PNG
	WebP
	AVIF
)

// numFormats sizes the per-format dispatch tables.
const numFormats = int(AVIF) + 1

var allFormats = []Format{JPEG, PNG, WebP, AVIF}

// Formats returns every supported format in a fixed order.
func Formats() []Format {
	out := make([]Format, len(allFormats))
	copy(out, allFormats)
	return out
}

var formatNames = [numFormats]string{
	JPEG: "jpeg",
	PNG:  "png",
	WebP: "webp",
	AVIF: "avif",
}

var contentTypes = [numFormats]string{
	JPEG: "image/jpeg",
	PNG:  "image/png",
	WebP: "image/webp",
	AVIF: "image/avif",
}

// mimeFormats maps declared content types to formats.
var mimeFormats = map[string]Format{
	"image/jpeg": JPEG,
	"image/jpg":  JPEG,
	"image/png":  PNG,
	"image/webp": WebP,
	"image/avif": AVIF,
}

// queryFormats maps the values accepted by the format query parameter.
var queryFormats = map[string]Format{
	"jpeg": JPEG,
	"jpg":  JPEG,
	"png":  PNG,
	"webp": WebP,
	"avif": AVIF,
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f >= JPEG && f <= AVIF
}

func (f Format) String() string {
	if !f.Valid() {
		return "unknown"
	}
	return formatNames[f]
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if !f.Valid() {
		return "application/octet-stream"
	}
	return contentTypes[f]
}

// ParseFormat parses a format name as accepted in query strings.
func ParseFormat(s string) (Format, bool) {
	f, ok := queryFormats[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

var (
	sigJPEG = []byte{0xff, 0xd8, 0xff}
	sigPNG  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
)

// Detect identifies the container format of data. A recognised declared
// content type wins over the byte signatures; otherwise signatures are
// checked in a fixed order. The boolean is false when nothing matches.
func Detect(data []byte, declared string) (Format, bool) {
	if declared != "" {
		mime, _, _ := strings.Cut(declared, ";")
		if f, ok := mimeFormats[strings.ToLower(strings.TrimSpace(mime))]; ok {
			return f, true
		}
	}

	switch {
	case bytes.HasPrefix(data, sigJPEG):
		return JPEG, true
	case bytes.HasPrefix(data, sigPNG):
		return PNG, true
	case isWebP(data):
		return WebP, true
	case isAVIF(data):
		return AVIF, true
	}
	return 0, false
}

// isWebP matches a RIFF container with the WEBP form type. The chunk size
// at offset 4 is not checked.
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// isAVIF matches an ISO-BMFF ftyp box whose major brand is an AV1 image brand.
func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "avif", "avis", "av01":
		return true
	}
	return false
}
