package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/cacheplayer/pkg/storage"
)

func TestFileAppendAndReadRange(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "nested", "asset.mp4")

	f, err := storage.OpenFile(path)
	r.NoError(err)
	defer f.Close()

	r.Equal(int64(0), f.Size())
	_, err = os.Stat(path)
	r.True(os.IsNotExist(err), "file is created lazily")

	r.NoError(f.Append([]byte("hello, ")))
	r.NoError(f.Append([]byte("world!")))
	r.Equal(int64(13), f.Size())

	b, err := f.ReadRange(7, 6)
	r.NoError(err)
	r.Equal([]byte("world!"), b)

	b, err = f.ReadRange(0, 13)
	r.NoError(err)
	r.Equal([]byte("hello, world!"), b)

	_, err = f.ReadRange(10, 4)
	r.ErrorIs(err, storage.ErrOutOfRange)
}

func TestFileReopenKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asset.mp3")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	f, err := storage.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, int64(10), f.Size())
	b, err := f.ReadRange(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), b)

	require.NoError(t, f.Append([]byte("ab")))
	b, err = f.ReadRange(8, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("89ab"), b)
}

func TestFileDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asset.mp4")
	f, err := storage.OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Append([]byte("partial")))
	require.NoError(t, f.Delete())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, int64(0), f.Size())

	// deleting twice is harmless
	assert.NoError(t, f.Delete())
}

func TestOpenFileRejectsDirectory(t *testing.T) {
	_, err := storage.OpenFile(t.TempDir())
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	m := storage.NewMemory("mem")
	require.NoError(t, m.Append([]byte("abc")))
	b, err := m.ReadRange(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("bc"), b)

	_, err = m.ReadRange(2, 2)
	assert.ErrorIs(t, err, storage.ErrOutOfRange)

	require.NoError(t, m.Delete())
	assert.True(t, m.Deleted())
	assert.Equal(t, int64(0), m.Size())
}
