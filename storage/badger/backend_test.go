package badger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		backend, err := OpenBackend("", true)
		require.NoError(t, err)
		assert.False(t, backend.IsClosed())
		require.NoError(t, backend.Close())
		assert.True(t, backend.IsClosed())
	})

	t.Run("creates nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "db")
		backend, err := OpenBackend(dir, false, WithSyncWrites(true))
		require.NoError(t, err)
		defer backend.Close()

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("path is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		_, err := OpenBackend(file, false)
		assert.ErrorContains(t, err, "not a directory")
	})

	t.Run("empty path on disk", func(t *testing.T) {
		_, err := OpenBackend("", false)
		assert.Error(t, err)
	})
}

func TestSlogAdapter_TrimsNewline(t *testing.T) {
	var buf bytes.Buffer
	adapter := &slogAdapter{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	adapter.Warningf("value log %d rotated\n", 3)
	assert.Contains(t, buf.String(), `msg="value log 3 rotated"`)
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	adapter.Infof("chatty\n")
	assert.Empty(t, buf.String(), "badger info is logged at debug")
}

func TestWithTx_WriteThenRead(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	var got []byte
	err = backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, backend.DropPrefix([]byte("k")))
	err = backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("k"))
		return err
	}, false)
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestKeys_TablePrefixesDoNotOverlap(t *testing.T) {
	assert.NotEqual(t, string(makeRecordPrefix("food")), string(makeRecordPrefix("food101"))[:len(makeRecordPrefix("food"))])
	assert.Equal(t, "vrec:food:a", string(makeRecordKey("food", "a")))
	assert.Equal(t, "vidx:food:emb_coarse", string(makeIndexKey("food", "emb_coarse")))
}
