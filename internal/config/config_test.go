package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultDataPath, c.DataPath)
	assert.Equal(t, DefaultBackend, c.Backend)
	assert.Equal(t, DefaultLogLevel, c.LogLevel)
	assert.Equal(t, DefaultBlockInterval, c.BlockInterval)
	assert.Equal(t, DefaultBlockCount, c.BlockCount)
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
dataPath: /var/lib/simplechain
backend: leveldb
minimumFreeGB: 2
asyncWrites: true
logLevel: debug
logJSON: true
blockInterval: 1s
blockCount: 5
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		DataPath:      "/var/lib/simplechain",
		Backend:       "leveldb",
		MinimumFreeGB: 2,
		AsyncWrites:   true,
		LogLevel:      "debug",
		LogJSON:       true,
		BlockInterval: time.Second,
		BlockCount:    5,
	}, c)
}

func TestLoad_PartialUsesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "dataPath: ./other\n"))
	require.NoError(t, err)
	assert.Equal(t, "./other", c.DataPath)
	assert.Equal(t, DefaultBackend, c.Backend)
	assert.Equal(t, DefaultBlockCount, c.BlockCount)
}

func TestLoad_ExplicitZeroes(t *testing.T) {
	c, err := Load(writeConfig(t, "blockCount: 0\nblockInterval: 0s\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.BlockCount)
	assert.Equal(t, time.Duration(0), c.BlockInterval)
	assert.Equal(t, DefaultDataPath, c.DataPath)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "backend: [not, a, string]\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "unknownKey: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "backend: rocksdb\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "blockCount: -1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "dataPath: \"\"\n"))
	assert.Error(t, err)
}
