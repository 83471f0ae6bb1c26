package keyValStore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
	// InMemory keeps everything in RAM; Paths and MinimumFreeSpace are ignored.
	InMemory bool
	// AsyncWrites lets badger acknowledge writes before they hit the disk.
	AsyncWrites bool
}

// KeyValStore is a storage.Store on top of BadgerDB.
type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
	closeOnce    sync.Once
}

var _ storage.Store = (*KeyValStore)(nil)

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.Logger = nil
	opts.SyncWrites = !config.AsyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger: %w", err)
	}

	k := &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}

	if !config.InMemory {
		if err := k.displayDiskUsage(config.Paths); err != nil {
			db.Close()
			return nil, err
		}
	}

	return k, nil
}

func (k *KeyValStore) Put(ctx context.Context, height types.Height, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(storage.GenerateKeyFromHeight(height), value)
	})
	if err != nil {
		return storage.IOError("put", height, err)
	}
	return nil
}

func (k *KeyValStore) PutIfAbsent(ctx context.Context, height types.Height, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	atomic.AddUint64(&k.writeCounter, 1)

	key := storage.GenerateKeyFromHeight(height)
	written := false
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		// a concurrent transaction wrote the key first
		k.log.WithFields(logrus.Fields{"height": height}).Debug("conditional put lost a write conflict")
		return false, nil
	}
	if err != nil {
		return false, storage.IOError("put if absent", height, err)
	}
	return written, nil
}

func (k *KeyValStore) Get(ctx context.Context, height types.Height) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddUint64(&k.readCounter, 1)

	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storage.GenerateKeyFromHeight(height))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", storage.ErrNotFound, height)
	}
	if err != nil {
		return nil, storage.IOError("get", height, err)
	}
	return value, nil
}

func (k *KeyValStore) Scan(ctx context.Context, fn func(height types.Height, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(storage.BlockPrefix)

	var callbackErr error
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				callbackErr = err
				return nil
			}
			atomic.AddUint64(&k.readCounter, 1)

			item := it.Item()
			height, err := storage.HeightFromKey(item.Key())
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(height, v); err != nil {
				callbackErr = err
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scan: %w", storage.ErrStoreIO, err)
	}
	return callbackErr
}

// Count iterates over the keys only, values stay on disk.
func (k *KeyValStore) Count(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := []byte(storage.BlockPrefix)

	var count uint64
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", storage.ErrStoreIO, err)
	}
	atomic.AddUint64(&k.readCounter, 1)
	return count, nil
}

// Stats returns the number of read and write operations since the store was opened.
func (k *KeyValStore) Stats() storage.Stats {
	return storage.Stats{
		Reads:  atomic.LoadUint64(&k.readCounter),
		Writes: atomic.LoadUint64(&k.writeCounter),
	}
}

func (k *KeyValStore) Close() error {
	var err error
	k.closeOnce.Do(func() {
		if cleanErr := k.Clean(); cleanErr != nil {
			k.log.WithError(cleanErr).Warn("cleaning badger before close failed")
		}
		err = k.badgerDB.Close()
	})
	return err
}

// Clean syncs the value log and runs one round of value-log garbage collection.
func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	k.log.Debug("DB cleaned")
	return nil
}
