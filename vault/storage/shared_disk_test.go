package storage

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedDiskReadWrite(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	path := DocumentPath("report.txt")
	content := []byte("some document content")

	exists, err := store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Write(path, bytes.NewReader(content)))

	exists, err = store.Exists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := store.Size(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	reader, err := store.Read(path)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestSharedDiskOverwrite(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	path := DocumentPath("notes.txt")
	require.NoError(t, store.Write(path, bytes.NewReader([]byte("first"))))
	require.NoError(t, store.Write(path, bytes.NewReader([]byte("second version"))))

	reader, err := store.Read(path)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "second version", string(data))
}

func TestSharedDiskDelete(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	path := DocumentPath("temp.txt")
	require.NoError(t, store.Write(path, bytes.NewReader([]byte("data"))))
	require.NoError(t, store.Delete(path))

	exists, err := store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Read(path)
	assert.Error(t, err)
}

func TestSharedDiskUsage(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	stats, err := store.Usage()
	require.NoError(t, err)
	assert.Greater(t, stats.TotalBytes, uint64(0))
	assert.LessOrEqual(t, stats.FreeBytes, stats.TotalBytes)
}
