// Package storage defines the Store interface for avatar object storage.
//
// New backends are added by implementing Store and registering with the
// factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Store, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init(),
// so adding a backend requires no changes to the factory or main package.
package storage

import (
	"context"
	"io"
	"time"
)

// Store is the interface avatar storage backends implement. Avatars are small
// images written once per upload and read often, so backends optimize for
// cheap URL generation over streaming throughput.
type Store interface {
	// Put stores an object and returns the storage result with path and checksum
	Put(ctx context.Context, path string, reader io.Reader, size int64, contentType string) (*PutResult, error)

	// Open retrieves an object and returns a reader
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// URL returns a download URL for the object. Cloud backends generate a
	// signed URL valid for the given TTL; the local backend returns a path
	// served by the API itself.
	URL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists checks whether an object is present at the path
	Exists(ctx context.Context, path string) (bool, error)
}

// PutResult contains information about a stored object
type PutResult struct {
	// Path is the storage path where the object was stored
	Path string

	// Size is the object size in bytes
	Size int64

	// Checksum is the SHA256 hash of the object contents
	Checksum string
}
