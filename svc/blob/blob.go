package blob

import (
	"context"
)

// PutResult describes one stored blob.
type PutResult struct {
	URL      string
	Pathname string
	Size     int64
}

// Store is the object-store contract: key-based put and delete. Delete of a
// missing key is not an error.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (PutResult, error)
	Delete(ctx context.Context, pathname string) error
}
