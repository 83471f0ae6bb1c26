/*
Package simplechain is a private, append-only chain of hash linked blocks
persisted in an embedded key-value store.

A Chain is safe for concurrent use: calls that write are serialized, reads
go straight to the store.
*/
package simplechain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/i5heu/simplechain/internal/backup"
	"github.com/i5heu/simplechain/internal/chain"
	"github.com/i5heu/simplechain/internal/keyValStore"
	"github.com/i5heu/simplechain/internal/levelStore"
	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotStarted = errors.New("simplechain: chain not started")
	ErrClosed     = errors.New("simplechain: chain closed")

	// ErrNotFound is returned when no block exists at the requested height.
	ErrNotFound = storage.ErrNotFound
	// ErrStoreIO wraps failures of the underlying store.
	ErrStoreIO = storage.ErrStoreIO
	// ErrChainCorrupt is returned when the stored chain breaks an invariant.
	ErrChainCorrupt = chain.ErrChainCorrupt
	// ErrInvalidBlock is returned for bodies that cannot be stored unchanged,
	// e.g. invalid UTF-8.
	ErrInvalidBlock = types.ErrInvalidBlock
)

// Finding and Report describe the outcome of a validation pass.
type (
	Finding = chain.Finding
	Report  = chain.Report
)

// Chain is the handle of a block chain. It owns the store and the engine
// working on it.
type Chain struct {
	log    *logrus.Logger
	config Config

	// writeMu is held by every call that writes, the engine itself does
	// not lock.
	writeMu sync.Mutex
	store   storage.Store
	engine  *chain.Engine
	backup  *backup.Manager

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	startErr  error
	closeOnce sync.Once
}

// New validates the configuration. It does not touch the disk; call Start.
func New(conf Config) (*Chain, error) {
	if !conf.InMemory && len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Backend == "" {
		conf.Backend = BackendBadger
	}
	if conf.Backend != BackendBadger && conf.Backend != BackendLevelDB {
		return nil, fmt.Errorf("unknown backend %q", conf.Backend)
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}

	return &Chain{
		log:    conf.Logger,
		config: conf,
		backup: backup.NewManager(conf.Logger),
	}, nil
}

// Start opens the store and creates the genesis block if the store is empty.
// Only the first call has an effect; later calls return its error.
func (c *Chain) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		c.startErr = c.start(ctx)
		if c.startErr == nil {
			c.started.Store(true)
		}
	})
	return c.startErr
}

func (c *Chain) start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}

	engine, err := chain.New(chain.Config{
		Store:  store,
		Logger: c.log,
		Now:    c.config.Now,
	})
	if err != nil {
		store.Close()
		return err
	}

	if !c.config.SkipGenesis {
		c.writeMu.Lock()
		err = engine.Initialize(ctx)
		c.writeMu.Unlock()
		if err != nil {
			store.Close()
			return fmt.Errorf("init chain: %w", err)
		}
	}

	c.store = store
	c.engine = engine

	c.log.WithFields(logrus.Fields{
		"backend":  c.config.Backend,
		"paths":    c.config.Paths,
		"inMemory": c.config.InMemory,
	}).Info("chain started")
	return nil
}

func (c *Chain) openStore() (storage.Store, error) {
	if !c.config.InMemory {
		if err := os.MkdirAll(c.config.Paths[0], 0o700); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", c.config.Paths[0], err)
		}
	}

	switch c.config.Backend {
	case BackendLevelDB:
		path := ""
		if !c.config.InMemory {
			path = c.config.Paths[0]
		}
		return levelStore.New(levelStore.Config{
			Path:        path,
			InMemory:    c.config.InMemory,
			AsyncWrites: c.config.AsyncWrites,
			Logger:      c.log,
		})
	default:
		return keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            c.config.Paths,
			MinimumFreeSpace: c.config.MinimumFreeGB,
			InMemory:         c.config.InMemory,
			AsyncWrites:      c.config.AsyncWrites,
			Logger:           c.log,
		})
	}
}

func (c *Chain) ready() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// Initialize creates the genesis block if the chain is empty. Start already
// does this unless Config.SkipGenesis is set.
func (c *Chain) Initialize(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.engine.Initialize(ctx)
}

// AddBlock appends a block with the given body and returns it.
func (c *Chain) AddBlock(ctx context.Context, body string) (types.Block, error) {
	if err := c.ready(); err != nil {
		return types.Block{}, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.engine.AddBlock(ctx, body)
}

func (c *Chain) GetBlock(ctx context.Context, height types.Height) (types.Block, error) {
	if err := c.ready(); err != nil {
		return types.Block{}, err
	}
	return c.engine.GetBlock(ctx, height)
}

// ChainHeight returns the number of blocks in the chain.
func (c *Chain) ChainHeight(ctx context.Context) (uint64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.engine.ChainHeight(ctx)
}

func (c *Chain) ValidateBlock(ctx context.Context, height types.Height) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.engine.ValidateBlock(ctx, height)
}

// ValidateChain returns the heights of all invalid blocks.
func (c *Chain) ValidateChain(ctx context.Context) ([]types.Height, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.engine.ValidateChain(ctx)
}

func (c *Chain) ValidateChainReport(ctx context.Context) (Report, error) {
	if err := c.ready(); err != nil {
		return Report{}, err
	}
	return c.engine.ValidateChainReport(ctx)
}

// Export writes a compressed backup of the chain to w. Appends wait until
// the export is done so the backup is a consistent snapshot.
func (c *Chain) Export(ctx context.Context, w io.Writer) (uint64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.backup.Export(ctx, c.engine, w)
}

// Import appends the blocks of a backup that the chain does not hold yet.
func (c *Chain) Import(ctx context.Context, r io.Reader) (uint64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.backup.Import(ctx, r, c.engine)
}

// Stats returns the operation counters of the store.
func (c *Chain) Stats() storage.Stats {
	if c.ready() != nil {
		return storage.Stats{}
	}
	if sp, ok := c.store.(storage.StatsProvider); ok {
		return sp.Stats()
	}
	return storage.Stats{}
}

// Close closes the store. Further calls return ErrClosed.
func (c *Chain) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if c.store != nil {
			err = c.store.Close()
		}
		c.log.Debug("chain closed")
	})
	return err
}
