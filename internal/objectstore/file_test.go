package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringReadCloser struct{ io.Reader }

func (stringReadCloser) Close() error { return nil }

func TestFileStore_PutOpenStat_ContentAddressed(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	body := "resume contents for a candidate"

	ref, err := store.Put(ctx, stringReadCloser{strings.NewReader(body)}, "text/plain")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.FileID)
	assert.Equal(t, ref.FileID, ref.Checksum)

	r, err := store.OpenRead(ctx, ref.FileID)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	stat, err := store.Stat(ctx, ref.FileID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), stat.Size)
	assert.Equal(t, "text/plain", stat.ContentType)
}

func TestFileStore_PutIsContentAddressed_IdenticalBytesSameKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref1, err := store.Put(ctx, stringReadCloser{strings.NewReader("same content")}, "text/plain")
	require.NoError(t, err)
	ref2, err := store.Put(ctx, stringReadCloser{strings.NewReader("same content")}, "text/plain")
	require.NoError(t, err)

	assert.Equal(t, ref1.FileID, ref2.FileID)
}

func TestFileStore_OpenRead_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.OpenRead(context.Background(), "does-not-exist")
	assert.Error(t, err)
}
