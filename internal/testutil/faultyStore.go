package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"
)

// ErrInjected is the cause of every failure produced by FaultyStore.
var ErrInjected = errors.New("injected failure")

// FaultyStore wraps a storage.Store and fails selected operations.
type FaultyStore struct {
	storage.Store

	mu         sync.Mutex
	failGet    map[types.Height]bool
	hideGet    map[types.Height]bool
	failPut    bool
	failCount  bool
	countDelta int64
}

func NewFaultyStore(inner storage.Store) *FaultyStore {
	return &FaultyStore{
		Store:   inner,
		failGet: map[types.Height]bool{},
		hideGet: map[types.Height]bool{},
	}
}

// FailGet makes Get of height return a storage.ErrStoreIO error.
func (f *FaultyStore) FailGet(height types.Height) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet[height] = true
}

// HideGet makes Get of height return storage.ErrNotFound while Count still
// includes it.
func (f *FaultyStore) HideGet(height types.Height) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hideGet[height] = true
}

func (f *FaultyStore) FailPut(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = fail
}

func (f *FaultyStore) FailCount(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCount = fail
}

// SkewCount adds delta to every Count result.
func (f *FaultyStore) SkewCount(delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countDelta = delta
}

func (f *FaultyStore) Get(ctx context.Context, height types.Height) ([]byte, error) {
	f.mu.Lock()
	fail, hide := f.failGet[height], f.hideGet[height]
	f.mu.Unlock()

	if fail {
		return nil, storage.IOError("get", height, ErrInjected)
	}
	if hide {
		return nil, storage.ErrNotFound
	}
	return f.Store.Get(ctx, height)
}

func (f *FaultyStore) Put(ctx context.Context, height types.Height, value []byte) error {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()

	if fail {
		return storage.IOError("put", height, ErrInjected)
	}
	return f.Store.Put(ctx, height, value)
}

func (f *FaultyStore) PutIfAbsent(ctx context.Context, height types.Height, value []byte) (bool, error) {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()

	if fail {
		return false, storage.IOError("put if absent", height, ErrInjected)
	}
	return f.Store.PutIfAbsent(ctx, height, value)
}

func (f *FaultyStore) Count(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	fail, delta := f.failCount, f.countDelta
	f.mu.Unlock()

	if fail {
		return 0, storage.IOError("count", 0, ErrInjected)
	}
	count, err := f.Store.Count(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(int64(count) + delta), nil
}
