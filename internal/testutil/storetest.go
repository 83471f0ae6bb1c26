package testutil

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreSuite checks the storage.Store contract against a fresh store
// returned by newStore for every subtest.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, 0)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, 3, []byte("three")))

		value, err := s.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []byte("three"), value)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, 1, []byte("old")))
		require.NoError(t, s.Put(ctx, 1, []byte("new")))

		value, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), value)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		s := newStore(t)
		written, err := s.PutIfAbsent(ctx, 0, []byte("first"))
		require.NoError(t, err)
		assert.True(t, written)

		written, err = s.PutIfAbsent(ctx, 0, []byte("second"))
		require.NoError(t, err)
		assert.False(t, written)

		value, err := s.Get(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), value)
	})

	t.Run("CountAndScan", func(t *testing.T) {
		s := newStore(t)
		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), count)

		// heights above 255 make sure keys are not compared as single bytes
		heights := []types.Height{0, 1, 2, 255, 256, 1000}
		for _, h := range heights {
			require.NoError(t, s.Put(ctx, h, []byte(h.String())))
		}

		count, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(heights)), count)

		var seen []types.Height
		err = s.Scan(ctx, func(height types.Height, value []byte) error {
			assert.Equal(t, height.String(), string(value))
			seen = append(seen, height)
			return nil
		})
		require.NoError(t, err)

		sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
		assert.Equal(t, heights, seen)
	})

	t.Run("ScanStopsOnCallbackError", func(t *testing.T) {
		s := newStore(t)
		for h := types.Height(0); h < 5; h++ {
			require.NoError(t, s.Put(ctx, h, []byte("x")))
		}

		stop := errors.New("stop")
		calls := 0
		err := s.Scan(ctx, func(types.Height, []byte) error {
			calls++
			return stop
		})
		assert.Equal(t, stop, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := s.Put(cctx, 0, []byte("x"))
		assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)

		_, err = s.Get(cctx, 0)
		assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		sp, ok := s.(storage.StatsProvider)
		if !ok {
			t.Skip("store does not count operations")
		}
		require.NoError(t, s.Put(ctx, 0, []byte("x")))
		_, err := s.Get(ctx, 0)
		require.NoError(t, err)

		stats := sp.Stats()
		assert.GreaterOrEqual(t, stats.Writes, uint64(1))
		assert.GreaterOrEqual(t, stats.Reads, uint64(1))
	})
}
