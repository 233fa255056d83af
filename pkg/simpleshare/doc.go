// Package simpleshare brokers short-lived, single-object storage credentials
// so that file bytes move directly between browsers and object storage.
//
// The Service interface covers three brokers. The upload broker validates a
// display name and content type, mints a salted storage key and returns a
// write credential. The download broker resolves a key back to its display
// name (synthesizing an extension from the content type when the uploader's
// name had none) and either proxies the object body or hands out a read
// credential. The share broker resolves a key for the HTML share page.
//
// Storage Keys
//
// Keys embed the uploader's display name together with a millisecond
// timestamp and random hex, inserted before the extension:
//
//	"photo.jpg" -> "photo-1718000000000-a1b2c3d4e5f6.jpg"
//
// See the objectkey subpackage for encoding and decoding. The key is the
// only identifier a recipient ever sees; there is no database.
//
// Backends
//
// BlobStore implementations live under storage/: memory and fs for local
// development, s3, minio and gcs for hosted object storage.
package simpleshare
