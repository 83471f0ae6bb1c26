package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/i5heu/simplechain"
	"github.com/i5heu/simplechain/internal/keyValStore"
	"github.com/i5heu/simplechain/pkg/logging"
	"github.com/i5heu/simplechain/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunAndValidate(t *testing.T) {
	for _, backend := range []string{"badger", "leveldb"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			out, err := execute(t, "run", "--data", dir, "--backend", backend, "--interval", "1ms", "--count", "3")
			require.NoError(t, err)
			assert.Contains(t, out, "No errors detected in 4 blocks")

			out, err = execute(t, "height", "--data", dir, "--backend", backend)
			require.NoError(t, err)
			assert.Equal(t, "4", strings.TrimSpace(out))

			out, err = execute(t, "get", "2", "--data", dir, "--backend", backend)
			require.NoError(t, err)
			assert.Contains(t, out, `"body": "Test Block - 2"`)
		})
	}
}

func TestAddAndGet(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "add", "hello", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"height": 1`)

	_, err = execute(t, "get", "7", "--data", dir)
	assert.ErrorIs(t, err, simplechain.ErrNotFound)

	_, err = execute(t, "get", "abc", "--data", dir)
	assert.Error(t, err)
}

func TestValidateReportsTampering(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run", "--data", dir, "--interval", "1ms", "--count", "3")
	require.NoError(t, err)

	ctx := context.Background()
	store, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:  []string{dir},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)
	raw, err := store.Get(ctx, 1)
	require.NoError(t, err)
	block, err := types.Decode(raw)
	require.NoError(t, err)
	block.Body = "Induced chain error"
	raw, err = types.Encode(block)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, 1, raw))
	require.NoError(t, store.Close())

	out, err := execute(t, "validate", "--data", dir)
	assert.ErrorIs(t, err, errInvalidChain)
	assert.Contains(t, out, "Block errors = 1")
	assert.Contains(t, out, "Blocks: [1]")
}

func TestImportOwnBackupIsNoop(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "chain.bak")

	_, err := execute(t, "run", "--data", dir, "--interval", "1ms", "--count", "2")
	require.NoError(t, err)
	_, err = execute(t, "export", file, "--data", dir)
	require.NoError(t, err)

	out, err := execute(t, "import", file, "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 blocks")

	out, err = execute(t, "validate", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No errors detected in 3 blocks")
}

func TestExportImport(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	file := filepath.Join(t.TempDir(), "chain.bak")

	_, err := execute(t, "run", "--data", src, "--interval", "1ms", "--count", "2")
	require.NoError(t, err)

	out, err := execute(t, "export", file, "--data", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 blocks")

	out, err = execute(t, "import", file, "--data", dst, "--backend", "leveldb")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 blocks")

	out, err = execute(t, "validate", "--data", dst, "--backend", "leveldb")
	require.NoError(t, err)
	assert.Contains(t, out, "No errors detected in 3 blocks")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(t.TempDir(), "simplechain.yaml")
	conf := "dataPath: " + dir + "\nbackend: leveldb\nblockInterval: 1ms\nblockCount: 1\n"
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0o600))

	out, err := execute(t, "run", "--config", confPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No errors detected in 2 blocks")

	_, err = execute(t, "height", "--backend", "rocksdb", "--data", dir)
	assert.Error(t, err)

	// blockCount 0 from the file is kept, only the genesis exists
	emptyDir := t.TempDir()
	zeroConf := filepath.Join(t.TempDir(), "zero.yaml")
	require.NoError(t, os.WriteFile(zeroConf, []byte("dataPath: "+emptyDir+"\nblockCount: 0\n"), 0o600))
	out, err = execute(t, "run", "--config", zeroConf)
	require.NoError(t, err)
	assert.Contains(t, out, "No errors detected in 1 blocks")
}
