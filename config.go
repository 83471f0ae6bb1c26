package simplechain

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Backend selects the key-value store the chain is persisted in.
type Backend string

const (
	BackendBadger  Backend = "badger"
	BackendLevelDB Backend = "leveldb"
)

// Config configures a chain. Only Paths[0] is used at the moment.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// Backend defaults to BackendBadger.
	Backend Backend
	// MinimumFreeGB is a free-space threshold checked when the badger store opens.
	MinimumFreeGB int
	// InMemory keeps the store in RAM; Paths may be empty.
	InMemory bool
	// AsyncWrites trades durability of the latest writes for speed.
	AsyncWrites bool
	// SkipGenesis leaves an empty store empty on Start, e.g. before an import.
	SkipGenesis bool
	// Logger is optional. If nil, a logrus logger writing to stderr is used.
	Logger *logrus.Logger
	// Now overrides the clock used for block timestamps.
	Now func() time.Time
}

func defaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	return logger
}
