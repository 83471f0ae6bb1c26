package simplechain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/i5heu/simplechain/pkg/logging"
	"github.com/i5heu/simplechain/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startChain(t *testing.T, conf Config) *Chain {
	t.Helper()
	if conf.Logger == nil {
		conf.Logger = logging.Discard()
	}
	c, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "paths are required on disk")

	_, err = New(Config{InMemory: true, Backend: "rocksdb"})
	assert.Error(t, err)

	c, err := New(Config{InMemory: true})
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, c.config.Backend)
}

func TestChain_NotStartedAndClosed(t *testing.T) {
	ctx := context.Background()
	c, err := New(Config{InMemory: true, Logger: logging.Discard()})
	require.NoError(t, err)

	_, err = c.AddBlock(ctx, "A")
	assert.True(t, errors.Is(err, ErrNotStarted))
	_, err = c.ChainHeight(ctx)
	assert.True(t, errors.Is(err, ErrNotStarted))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.AddBlock(ctx, "A")
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = c.ValidateChain(ctx)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, uint64(0), c.Stats().Reads)
}

func TestChain_FailedStartIsReported(t *testing.T) {
	ctx := context.Background()
	// a regular file where the data directory should be
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	c, err := New(Config{Paths: []string{path}, Logger: logging.Discard()})
	require.NoError(t, err)
	defer c.Close()

	firstErr := c.Start(ctx)
	require.Error(t, firstErr)
	assert.Equal(t, firstErr, c.Start(ctx), "a retry must not report success")

	_, err = c.AddBlock(ctx, "A")
	assert.True(t, errors.Is(err, ErrNotStarted))
}

func TestChain_PersistsAcrossRestarts(t *testing.T) {
	for _, backend := range []Backend{BackendBadger, BackendLevelDB} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			conf := Config{Paths: []string{dir}, Backend: backend, Logger: logging.Discard()}

			c, err := New(conf)
			require.NoError(t, err)
			require.NoError(t, c.Start(ctx))
			a, err := c.AddBlock(ctx, "A")
			require.NoError(t, err)
			_, err = c.AddBlock(ctx, "B")
			require.NoError(t, err)
			require.NoError(t, c.Close())

			c, err = New(conf)
			require.NoError(t, err)
			require.NoError(t, c.Start(ctx))
			defer c.Close()

			height, err := c.ChainHeight(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), height, "restart must not add a second genesis")

			stored, err := c.GetBlock(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, a, stored)

			invalid, err := c.ValidateChain(ctx)
			require.NoError(t, err)
			assert.Empty(t, invalid)
		})
	}
}

func TestChain_ConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	c := startChain(t, Config{InMemory: true})

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := c.AddBlock(ctx, fmt.Sprintf("writer %d block %d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	height, err := c.ChainHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers*perWriter+1), height)

	report, err := c.ValidateChainReport(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid(), "findings: %v", report.Findings)
}

func TestChain_ValidateBlock(t *testing.T) {
	ctx := context.Background()
	c := startChain(t, Config{InMemory: true, Backend: BackendLevelDB})
	_, err := c.AddBlock(ctx, "A")
	require.NoError(t, err)

	valid, err := c.ValidateBlock(ctx, 1)
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = c.ValidateBlock(ctx, 2)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestChain_ExportImport(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1530311457, 0)
	src := startChain(t, Config{InMemory: true, Now: func() time.Time { return now }})
	for _, body := range []string{"Test Block - 1", "Test Block - 2", "Test Block - 3"} {
		_, err := src.AddBlock(ctx, body)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	exported, err := src.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), exported)

	dst := startChain(t, Config{InMemory: true, Backend: BackendLevelDB, SkipGenesis: true})
	height, err := dst.ChainHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height)

	imported, err := dst.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), imported)

	for h := types.Height(0); h < 4; h++ {
		want, err := src.GetBlock(ctx, h)
		require.NoError(t, err)
		got, err := dst.GetBlock(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// the restored chain keeps growing from the imported tip
	next, err := dst.AddBlock(ctx, "after import")
	require.NoError(t, err)
	assert.Equal(t, types.Height(4), next.Height)
}

func TestChain_SkipGenesisThenInitialize(t *testing.T) {
	ctx := context.Background()
	c := startChain(t, Config{InMemory: true, SkipGenesis: true})

	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Initialize(ctx))

	height, err := c.ChainHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)

	genesis, err := c.GetBlock(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, types.GenesisBody, genesis.Body)
}

func TestChain_Stats(t *testing.T) {
	ctx := context.Background()
	c := startChain(t, Config{InMemory: true})
	_, err := c.AddBlock(ctx, "A")
	require.NoError(t, err)

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.Writes, uint64(2))
	assert.Greater(t, stats.Reads, uint64(0))
}
