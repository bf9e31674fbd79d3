package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	data []byte
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("connection reset")
	}
	r.done = true
	return copy(p, r.data), nil
}

func listNames(t *testing.T, fs afero.Fs, dir string) []string {
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPutWritesBlob(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewBlobStore(fs, "uploads")
	content := bytes.Repeat([]byte("x"), 1024)

	name, written, err := store.Put(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), written)
	assert.Len(t, name, 36)

	path := store.Resolve(name)
	assert.Equal(t, filepath.Join("uploads", name), path)
	assert.True(t, store.Exists(path))

	f, err := store.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Equal(t, []string{name}, listNames(t, fs, "uploads"))
}

func TestPutGeneratesDistinctNames(t *testing.T) {
	store := NewBlobStore(afero.NewMemMapFs(), "uploads")

	a, _, err := store.Put(bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	b, _, err := store.Put(bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPutFailureLeavesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewBlobStore(fs, "uploads")

	_, _, err := store.Put(&failingReader{data: []byte("partial")})
	require.Error(t, err)
	assert.Empty(t, listNames(t, fs, "uploads"))
}

func TestPutReadOnlyFs(t *testing.T) {
	store := NewBlobStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "uploads")

	_, _, err := store.Put(bytes.NewReader([]byte("data")))
	assert.Error(t, err)
}

func TestExistsIgnoresDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("uploads/dir", 0755))
	store := NewBlobStore(fs, "uploads")

	assert.False(t, store.Exists("uploads/dir"))
	assert.False(t, store.Exists("uploads/missing"))
}

func TestDelete(t *testing.T) {
	store := NewBlobStore(afero.NewMemMapFs(), "uploads")

	name, _, err := store.Put(bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	path := store.Resolve(name)

	require.NoError(t, store.Delete(path))
	assert.False(t, store.Exists(path))

	// 重复删除不报错
	assert.NoError(t, store.Delete(path))
}

func TestDeleteReadOnlyFs(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "uploads/blob", []byte("data"), 0644))
	store := NewBlobStore(afero.NewReadOnlyFs(base), "uploads")

	err := store.Delete("uploads/blob")
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
