// Package presigned provides HMAC-signed, time-limited URLs for storage
// backends that have no signing of their own, such as the local filesystem.
//
// A signed URL covers the HTTP method, the path and every query parameter,
// so an upload URL can bind the object's content type and metadata:
//
//	signer := presigned.New(
//	    presigned.WithSecretKey(secret),
//	    presigned.WithBaseURL("http://localhost:8080"),
//	)
//	url, expiresAt, err := signer.SignURL("PUT", signer.Path(key), url.Values{"ct": {"image/png"}}, time.Hour)
//
// Handlers serve the signed URLs on a chi router:
//
//	presigned.NewHandlers(signer, store).Mount(r)
//
// Client performs uploads against write credentials with retry.
package presigned
