package storage

import (
	"context"
	"errors"

	"github.com/i5heu/simplechain/pkg/types"
)

var (
	// ErrNotFound is returned when no block is stored under the requested height.
	ErrNotFound = errors.New("storage: height not found")
	// ErrStoreIO wraps every failure of the underlying key-value backend.
	ErrStoreIO = errors.New("storage: io error")
)

// Store is the persistent key-value store the chain is written to. Keys are
// block heights, values are serialized blocks. A returned error from Put or
// PutIfAbsent means the value is not durable; a nil error means a following
// Count or Scan observes it.
type Store interface {
	// Put writes value under height, overwriting what is there.
	Put(ctx context.Context, height types.Height, value []byte) error

	// PutIfAbsent writes value only if nothing is stored under height yet and
	// reports whether it wrote.
	PutIfAbsent(ctx context.Context, height types.Height, value []byte) (bool, error)

	// Get returns the value stored under height or ErrNotFound.
	Get(ctx context.Context, height types.Height) ([]byte, error)

	// Scan calls fn for every stored block. The order is unspecified.
	// Returning an error from fn stops the scan and is returned unchanged.
	Scan(ctx context.Context, fn func(height types.Height, value []byte) error) error

	// Count returns the number of stored blocks.
	Count(ctx context.Context) (uint64, error)

	Close() error
}
