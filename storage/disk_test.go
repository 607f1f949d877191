package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "foto_abc.jpg", "image/jpeg", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/foto_abc.jpg", url)

	data, err := store.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestDiskStoreRejectsForeignURL(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "https://elsewhere.example/x.jpg")
	assert.Error(t, err)
}

func TestDiskStoreFlattensKeyPaths(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	// path components in keys must not escape the upload dir
	url, err := store.Put(context.Background(), "../../etc/x.jpg", "image/jpeg", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/x.jpg", url)
}
