package storage

import "io"

// BlobStore holds the physical artifact bytes. Which engine backs it
// (local filesystem vs. object storage) is a deployment decision; the
// workflow core only ever sees keys.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}
