package index

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wheelhouse/wheelhouse/internal/werror"
)

func TestIndexPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	catalog, err := OpenSQLiteCatalog(":memory:")
	require.NoError(t, err)
	defer catalog.Close()

	idx := New(store, catalog)

	key := SourceKey("curdling (==0.1.2)")
	locator, err := idx.Put(ctx, key, strings.NewReader("source archive bytes"))
	require.NoError(t, err)

	got, err := idx.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, locator, got)

	reader, err := idx.Open(ctx, got)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "source archive bytes", string(data))
}

func TestIndexMiss(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	catalog, err := OpenSQLiteCatalog(":memory:")
	require.NoError(t, err)
	defer catalog.Close()

	idx := New(store, catalog)
	_, err = idx.Get(ctx, WheelKey("curdling"))
	require.True(t, werror.IsNotFound(err))
}

func TestKeyShapes(t *testing.T) {
	require.Equal(t, "curdling;~whl", SourceKey("curdling"))
	require.Equal(t, "curdling;whl", WheelKey("curdling"))
	require.True(t, IsWheelKey("curdling;whl"))
	require.False(t, IsWheelKey("curdling;~whl"))
}
