package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	// DataPath is the directory of the block store.
	DataPath string `yaml:"dataPath"`
	// Backend is "badger" or "leveldb".
	Backend       string `yaml:"backend"`
	MinimumFreeGB int    `yaml:"minimumFreeGB"`
	AsyncWrites   bool   `yaml:"asyncWrites"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`

	// Driver settings of the run command
	BlockInterval time.Duration `yaml:"blockInterval"`
	BlockCount    int           `yaml:"blockCount"`
}

const (
	DefaultDataPath      = "./chaindata"
	DefaultBackend       = "badger"
	DefaultLogLevel      = "info"
	DefaultBlockInterval = 10 * time.Second
	DefaultBlockCount    = 3
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataPath:      DefaultDataPath,
		Backend:       DefaultBackend,
		LogLevel:      DefaultLogLevel,
		BlockInterval: DefaultBlockInterval,
		BlockCount:    DefaultBlockCount,
	}
}

// Load reads a YAML configuration file. Missing fields keep their defaults,
// fields present in the file win even when they hold a zero value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}

	config := Default()
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return Config{}, fmt.Errorf("error parsing config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("dataPath must not be empty")
	}

	switch c.Backend {
	case "badger", "leveldb":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.BlockInterval < 0 {
		return fmt.Errorf("blockInterval must not be negative")
	}

	if c.BlockCount < 0 {
		return fmt.Errorf("blockCount must not be negative")
	}

	if c.MinimumFreeGB < 0 {
		return fmt.Errorf("minimumFreeGB must not be negative")
	}

	return nil
}
