package simpleshare

import (
	"net/url"
	"strings"
)

const (
	DefaultSharePath    = "/api/share"
	DefaultDownloadPath = "/api/download"

	// PublicIDParam is the query parameter carrying the storage key
	PublicIDParam = "publicId"
)

// Links builds the caller-facing references to the share and download
// endpoints for a storage key.
type Links struct {
	BaseURL      string // e.g. "https://files.example.com"; empty yields relative links
	SharePath    string
	DownloadPath string
}

// ShareURL returns the share page reference for key.
func (l Links) ShareURL(key string) string {
	return l.build(l.SharePath, DefaultSharePath, key)
}

// DownloadURL returns the download reference for key.
func (l Links) DownloadURL(key string) string {
	return l.build(l.DownloadPath, DefaultDownloadPath, key)
}

func (l Links) build(path, fallback, key string) string {
	if path == "" {
		path = fallback
	}
	q := url.Values{PublicIDParam: []string{key}}
	return strings.TrimRight(l.BaseURL, "/") + path + "?" + q.Encode()
}
