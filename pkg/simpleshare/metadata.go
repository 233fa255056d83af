package simpleshare

import (
	"encoding/base64"
	"mime"
	"strings"
	"unicode"
)

var wordDecoder = new(mime.WordDecoder)

// EncodeMetadataValue makes v safe for object metadata, which S3 and GCS
// transport as ASCII HTTP headers. Printable ASCII is kept as is; anything
// else becomes a single RFC 2047 "B" encoded-word.
func EncodeMetadataValue(v string) string {
	if isPrintableASCII(v) && !strings.HasPrefix(v, "=?") {
		return v
	}
	return "=?utf-8?b?" + base64.StdEncoding.EncodeToString([]byte(v)) + "?="
}

// DecodeMetadataValue reverses EncodeMetadataValue. Values that are not
// encoded-words are returned unchanged.
func DecodeMetadataValue(v string) string {
	if !strings.HasPrefix(v, "=?") || !strings.HasSuffix(v, "?=") {
		return v
	}
	decoded, err := wordDecoder.Decode(v)
	if err != nil {
		return v
	}
	return decoded
}

func isPrintableASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
