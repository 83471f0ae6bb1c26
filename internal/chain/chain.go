// Package chain builds and verifies a hash linked chain of blocks on top of
// a storage.Store. The store is the only state: nothing is cached between
// calls, so every height is derived from a fresh scan.
//
// An Engine does no locking. Mutating calls (Initialize, AddBlock) must be
// serialized by the caller; two concurrent appends race on the height.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"

	"github.com/sirupsen/logrus"
)

// ErrChainCorrupt is returned when the stored chain breaks one of its
// invariants in a way that prevents an operation from completing, e.g. the
// predecessor of a new block is missing.
var ErrChainCorrupt = errors.New("chain: corrupt")

type Config struct {
	Store  storage.Store
	Logger *logrus.Logger
	// Now is the clock used for block timestamps. Defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	store storage.Store
	log   *logrus.Logger
	now   func() time.Time
}

func New(conf Config) (*Engine, error) {
	if conf.Store == nil {
		return nil, errors.New("chain: no store configured")
	}
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}

	return &Engine{
		store: conf.Store,
		log:   conf.Logger,
		now:   conf.Now,
	}, nil
}

// Initialize writes the genesis block if the store is empty. The write is
// conditional, so a genesis that appears between the height check and the
// write is kept and the new one is discarded.
func (e *Engine) Initialize(ctx context.Context) error {
	height, err := e.ChainHeight(ctx)
	if err != nil {
		return fmt.Errorf("error reading chain height: %w", err)
	}
	if height > 0 {
		e.log.WithFields(logrus.Fields{"height": height}).Debug("chain already initialized")
		return nil
	}

	genesis := types.Block{
		Height: 0,
		Body:   types.GenesisBody,
		Time:   types.TimestampFromTime(e.now()),
	}
	if err := genesis.Seal(); err != nil {
		return fmt.Errorf("error hashing genesis block: %w", err)
	}

	value, err := types.Encode(genesis)
	if err != nil {
		return err
	}

	written, err := e.store.PutIfAbsent(ctx, 0, value)
	if err != nil {
		return fmt.Errorf("error writing genesis block: %w", err)
	}
	if !written {
		e.log.Warn("genesis block appeared concurrently, keeping the stored one")
		return nil
	}

	e.log.WithFields(logrus.Fields{
		"hash": genesis.Hash,
		"time": genesis.Time,
	}).Info("genesis block created")
	return nil
}

// ChainHeight returns the number of stored blocks. It scans the whole store.
func (e *Engine) ChainHeight(ctx context.Context) (uint64, error) {
	return e.store.Count(ctx)
}

// AddBlock appends a block carrying body to the chain and returns it with
// height, time, previous hash and hash filled in.
func (e *Engine) AddBlock(ctx context.Context, body string) (types.Block, error) {
	height, err := e.ChainHeight(ctx)
	if err != nil {
		return types.Block{}, fmt.Errorf("error reading chain height: %w", err)
	}

	block := types.NewBlock(body)
	block.Height = types.Height(height)
	block.Time = types.TimestampFromTime(e.now())

	if height > 0 {
		prev, err := e.GetBlock(ctx, types.Height(height-1))
		if errors.Is(err, storage.ErrNotFound) {
			return types.Block{}, fmt.Errorf("%w: predecessor of height %d: %w", ErrChainCorrupt, height, err)
		}
		if err != nil {
			return types.Block{}, fmt.Errorf("error reading predecessor of height %d: %w", height, err)
		}
		block.PreviousBlockHash = prev.Hash
	}

	if err := block.Seal(); err != nil {
		return types.Block{}, fmt.Errorf("error hashing block %d: %w", height, err)
	}

	value, err := types.Encode(block)
	if err != nil {
		return types.Block{}, err
	}

	written, err := e.store.PutIfAbsent(ctx, block.Height, value)
	if err != nil {
		return types.Block{}, fmt.Errorf("error writing block %d: %w", height, err)
	}
	if !written {
		// the count is lower than the highest key, so some height is missing
		return types.Block{}, fmt.Errorf("%w: height %d is already taken", ErrChainCorrupt, height)
	}

	e.log.WithFields(logrus.Fields{
		"height":            block.Height,
		"hash":              block.Hash,
		"previousBlockHash": block.PreviousBlockHash,
	}).Debug("block added")

	return block, nil
}

// GetBlock returns the block stored at height. It fails with
// storage.ErrNotFound if there is none and with ErrChainCorrupt if the stored
// value cannot be decoded.
func (e *Engine) GetBlock(ctx context.Context, height types.Height) (types.Block, error) {
	value, err := e.store.Get(ctx, height)
	if err != nil {
		return types.Block{}, err
	}

	block, err := types.Decode(value)
	if err != nil {
		return types.Block{}, fmt.Errorf("%w: height %d: %w", ErrChainCorrupt, height, err)
	}
	return block, nil
}

// AppendVerified appends a block that already carries its height, time and
// hashes, e.g. one read back from a backup. The block must sit at the current
// chain height, hash to its stored hash and link to the current last block;
// otherwise nothing is written and ErrChainCorrupt is returned.
func (e *Engine) AppendVerified(ctx context.Context, block types.Block) error {
	height, err := e.ChainHeight(ctx)
	if err != nil {
		return fmt.Errorf("error reading chain height: %w", err)
	}

	if uint64(block.Height) != height {
		return fmt.Errorf("%w: block height %d does not follow chain height %d", ErrChainCorrupt, block.Height, height)
	}
	if !block.Validate() {
		return fmt.Errorf("%w: block %d does not match its hash", ErrChainCorrupt, block.Height)
	}

	expectedPrev := ""
	if height > 0 {
		prev, err := e.GetBlock(ctx, types.Height(height-1))
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: predecessor of height %d: %w", ErrChainCorrupt, height, err)
		}
		if err != nil {
			return fmt.Errorf("error reading predecessor of height %d: %w", height, err)
		}
		expectedPrev = prev.Hash
	}
	if block.PreviousBlockHash != expectedPrev {
		return fmt.Errorf("%w: block %d does not link to its predecessor", ErrChainCorrupt, block.Height)
	}

	value, err := types.Encode(block)
	if err != nil {
		return err
	}

	written, err := e.store.PutIfAbsent(ctx, block.Height, value)
	if err != nil {
		return fmt.Errorf("error writing block %d: %w", block.Height, err)
	}
	if !written {
		return fmt.Errorf("%w: height %d is already taken", ErrChainCorrupt, block.Height)
	}
	return nil
}
