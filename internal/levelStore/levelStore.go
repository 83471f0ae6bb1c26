// Package levelStore implements storage.Store on goleveldb, the storage engine
// the chain format was first written against.
package levelStore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type Config struct {
	// Path is the database directory. Ignored if InMemory is set.
	Path     string
	InMemory bool
	// AsyncWrites skips the fsync after every write.
	AsyncWrites bool
	Logger      *logrus.Logger
}

// LevelStore is a storage.Store backed by LevelDB.
type LevelStore struct {
	db           *leveldb.DB
	log          *logrus.Logger
	writeOptions *opt.WriteOptions

	// conditional writes are a read followed by a write
	writeMu sync.Mutex

	readCounter  uint64
	writeCounter uint64
	closeOnce    sync.Once
}

var _ storage.Store = (*LevelStore)(nil)

func New(config Config) (*LevelStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	var (
		db  *leveldb.DB
		err error
	)
	if config.InMemory {
		db, err = leveldb.Open(lvlstorage.NewMemStorage(), nil)
	} else {
		if config.Path == "" {
			return nil, errors.New("no path provided in configuration")
		}
		db, err = leveldb.OpenFile(config.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}

	config.Logger.WithFields(logrus.Fields{
		"path":     config.Path,
		"inMemory": config.InMemory,
	}).Debug("LevelDB opened")

	return &LevelStore{
		db:           db,
		log:          config.Logger,
		writeOptions: &opt.WriteOptions{Sync: !config.AsyncWrites},
	}, nil
}

func (s *LevelStore) Put(ctx context.Context, height types.Height, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	atomic.AddUint64(&s.writeCounter, 1)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Put(storage.GenerateKeyFromHeight(height), value, s.writeOptions); err != nil {
		return storage.IOError("put", height, err)
	}
	return nil
}

func (s *LevelStore) PutIfAbsent(ctx context.Context, height types.Height, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	atomic.AddUint64(&s.writeCounter, 1)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := storage.GenerateKeyFromHeight(height)
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return false, storage.IOError("put if absent", height, err)
	}
	if exists {
		return false, nil
	}

	if err := s.db.Put(key, value, s.writeOptions); err != nil {
		return false, storage.IOError("put if absent", height, err)
	}
	return true, nil
}

func (s *LevelStore) Get(ctx context.Context, height types.Height) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddUint64(&s.readCounter, 1)

	value, err := s.db.Get(storage.GenerateKeyFromHeight(height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", storage.ErrNotFound, height)
	}
	if err != nil {
		return nil, storage.IOError("get", height, err)
	}
	return value, nil
}

func (s *LevelStore) Scan(ctx context.Context, fn func(height types.Height, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(storage.BlockPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		atomic.AddUint64(&s.readCounter, 1)

		height, err := storage.HeightFromKey(iter.Key())
		if err != nil {
			return fmt.Errorf("%w: scan: %w", storage.ErrStoreIO, err)
		}

		// the iterator reuses its buffers
		value := append([]byte(nil), iter.Value()...)
		if err := fn(height, value); err != nil {
			return err
		}
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: scan: %w", storage.ErrStoreIO, err)
	}
	return nil
}

func (s *LevelStore) Count(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(storage.BlockPrefix)), &opt.ReadOptions{DontFillCache: true})
	defer iter.Release()

	var count uint64
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		count++
	}

	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("%w: count: %w", storage.ErrStoreIO, err)
	}
	atomic.AddUint64(&s.readCounter, 1)
	return count, nil
}

func (s *LevelStore) Stats() storage.Stats {
	return storage.Stats{
		Reads:  atomic.LoadUint64(&s.readCounter),
		Writes: atomic.LoadUint64(&s.writeCounter),
	}
}

// Close closes the database. Calling it more than once is a no-op.
func (s *LevelStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
