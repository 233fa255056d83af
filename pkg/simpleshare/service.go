package simpleshare

import (
	"context"
)

// Service defines the main interface for the simple-share library.
//
// Every operation is stateless: it talks to the BlobStore and returns.
// A Service is safe for concurrent use.
type Service interface {
	// IssueUpload validates req, mints a fresh storage key and returns a
	// write credential for it. It never touches object bytes.
	IssueUpload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// Resolve fetches metadata for key and decodes the display name
	Resolve(ctx context.Context, key string) (*ResolvedObject, error)

	// IssueDownload resolves key and returns a read credential for the caller to fetch
	IssueDownload(ctx context.Context, key string) (*DownloadTicket, error)

	// OpenDownload resolves key and opens the object body through a read credential
	OpenDownload(ctx context.Context, key string) (*Download, error)

	// Share resolves key for the share page
	Share(ctx context.Context, key string) (*SharePage, error)
}
