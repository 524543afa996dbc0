package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junjiewwang/classgraph/internal/storage"
)

func TestLocalElement_GetResource_FoundAndNotFound(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "com/example/Foo.class")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte{1, 2, 3}, 0o644))

	elem := NewLocalElement(dir)

	res, ok, err := elem.GetResource(context.Background(), "com/example/Foo.class")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "com/example/Foo.class", res.Path())

	data, err := res.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, ok, err = elem.GetResource(context.Background(), "missing/Bar.class")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalElement_ModuleNameRoundtrip(t *testing.T) {
	elem := NewLocalElement(t.TempDir())
	assert.Equal(t, "", elem.ModuleName())
	elem.SetModuleName("com.example.mymodule")
	assert.Equal(t, "com.example.mymodule", elem.ModuleName())
}

func TestCachedElement_GetResource_FetchesFromStorage(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "classes/com/example/Foo.class", strings.NewReader("classbytes")))

	elem := NewCachedElement(store, "classes")

	res, ok, err := elem.GetResource(ctx, "com/example/Foo.class")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := res.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "classbytes", string(data))

	_, ok, err = elem.GetResource(ctx, "com/example/Missing.class")
	require.NoError(t, err)
	assert.False(t, ok)
}
