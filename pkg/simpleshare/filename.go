package simpleshare

import (
	"mime"
	"strings"
)

// knownExtensions covers content types whose subtype is not the usual extension.
var knownExtensions = map[string]string{
	"text/plain":      ".txt",
	"text/markdown":   ".md",
	"text/javascript": ".js",
	"image/jpeg":      ".jpg",
	"image/svg+xml":   ".svg",
	"image/x-icon":    ".ico",
	"audio/mpeg":      ".mp3",
	"video/quicktime": ".mov",

	"application/gzip":              ".gz",
	"application/x-7z-compressed":   ".7z",
	"application/x-zip-compressed":  ".zip",
	"application/msword":            ".doc",
	"application/vnd.ms-excel":      ".xls",
	"application/vnd.ms-powerpoint": ".ppt",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
}

// ExtensionFor derives a file extension (with dot) from a content type.
// It returns "" for application/octet-stream and unparseable types.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if mediaType == DefaultContentType {
		return ""
	}
	if ext, ok := knownExtensions[mediaType]; ok {
		return ext
	}

	_, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || subtype == "" {
		return ""
	}
	subtype = strings.TrimPrefix(subtype, "x-")
	if i := strings.IndexByte(subtype, '+'); i > 0 {
		subtype = subtype[:i]
	}
	if strings.ContainsAny(subtype, "./\\") || subtype == "" {
		return ""
	}
	return "." + subtype
}

// ContentDisposition builds an attachment disposition carrying name.
// ASCII names go in a quoted filename parameter; other names get an ASCII
// fallback plus an RFC 5987 filename* parameter.
func ContentDisposition(name string) string {
	ascii := true
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 || name[i] < 0x20 || name[i] == 0x7f {
			ascii = false
			break
		}
	}

	quoted := quoteFilename(name)
	if ascii {
		return `attachment; filename="` + quoted + `"`
	}
	return `attachment; filename="` + quoted + `"; filename*=UTF-8''` + extValue(name)
}

// extValue percent-encodes every byte outside the RFC 5987 attr-char set.
func extValue(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// quoteFilename escapes a filename for a quoted-string, replacing
// non-ASCII runes with '_'.
func quoteFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r >= 0x7f:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
