package storage

import (
	"bytes"
	"fmt"

	"github.com/i5heu/simplechain/pkg/types"
)

// BlockPrefix namespaces block keys so a store directory can hold other data.
const BlockPrefix = "block:"

// GenerateKeyFromHeight returns the store key of the block at height.
func GenerateKeyFromHeight(height types.Height) []byte {
	return append([]byte(BlockPrefix), height.Bytes()...)
}

// HeightFromKey is the inverse of GenerateKeyFromHeight.
func HeightFromKey(key []byte) (types.Height, error) {
	if !bytes.HasPrefix(key, []byte(BlockPrefix)) {
		return 0, fmt.Errorf("key %x has no %q prefix", key, BlockPrefix)
	}

	var height types.Height
	if err := height.FromBytes(key[len(BlockPrefix):]); err != nil {
		return 0, err
	}
	return height, nil
}

// IOError wraps err with ErrStoreIO, keeping the cause in the chain.
func IOError(op string, height types.Height, err error) error {
	return fmt.Errorf("%w: %s height %d: %w", ErrStoreIO, op, height, err)
}
