package snapshots_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/propsync/internal/snapshots"
	"github.com/agentstation/propsync/pkg/reconcile"
)

func stores(t *testing.T) map[string]snapshots.Store {
	t.Helper()

	file, err := snapshots.OpenSQLite(filepath.Join(t.TempDir(), "state", "snapshots.db"))
	require.NoError(t, err)
	mem, err := snapshots.OpenSQLite(":memory:")
	require.NoError(t, err)

	all := map[string]snapshots.Store{
		"memory":        snapshots.NewMemory(),
		"sqlite":        file,
		"sqlite-memory": mem,
	}
	t.Cleanup(func() {
		for _, s := range all {
			_ = s.Close()
		}
	})
	return all
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing snapshot", func(t *testing.T) {
				snap, err := store.Get(ctx, "missing.md")
				require.NoError(t, err)
				assert.Nil(t, snap)
			})

			t.Run("put and get", func(t *testing.T) {
				want := reconcile.NewSnapshot([]string{"status", "été", "tags"})
				require.NoError(t, store.Put(ctx, "notes/a.md", want))

				got, err := store.Get(ctx, "notes/a.md")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, want.Keys, got.Keys)
				assert.WithinDuration(t, want.UpdatedAt, got.UpdatedAt, time.Second)
			})

			t.Run("put replaces", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "notes/a.md", reconcile.NewSnapshot([]string{"only"})))
				got, err := store.Get(ctx, "notes/a.md")
				require.NoError(t, err)
				assert.Equal(t, []string{"only"}, got.Keys)
			})

			t.Run("empty keys round trip", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "empty.md", reconcile.Snapshot{}))
				got, err := store.Get(ctx, "empty.md")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.True(t, got.Empty())
			})

			t.Run("rename", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "old.md", reconcile.NewSnapshot([]string{"k"})))
				require.NoError(t, store.Put(ctx, "new.md", reconcile.NewSnapshot([]string{"stale"})))
				require.NoError(t, store.Rename(ctx, "old.md", "new.md"))

				old, err := store.Get(ctx, "old.md")
				require.NoError(t, err)
				assert.Nil(t, old)

				moved, err := store.Get(ctx, "new.md")
				require.NoError(t, err)
				assert.Equal(t, []string{"k"}, moved.Keys)
			})

			t.Run("rename missing keeps target", func(t *testing.T) {
				require.NoError(t, store.Rename(ctx, "ghost.md", "new.md"))
				kept, err := store.Get(ctx, "new.md")
				require.NoError(t, err)
				assert.Equal(t, []string{"k"}, kept.Keys)
			})

			t.Run("documents", func(t *testing.T) {
				docs, err := store.Documents(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"empty.md", "new.md", "notes/a.md"}, docs)
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, store.Delete(ctx, "notes/a.md"))
				require.NoError(t, store.Delete(ctx, "notes/a.md"))
				got, err := store.Get(ctx, "notes/a.md")
				require.NoError(t, err)
				assert.Nil(t, got)
			})
		})
	}
}

func TestMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	store := snapshots.NewMemory()

	keys := []string{"a", "b"}
	require.NoError(t, store.Put(ctx, "doc.md", reconcile.Snapshot{Keys: keys}))
	keys[0] = "mutated"

	got, err := store.Get(ctx, "doc.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Keys)

	got.Keys[1] = "mutated"
	again, _ := store.Get(ctx, "doc.md")
	assert.Equal(t, []string{"a", "b"}, again.Keys)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	store := snapshots.NewMemory()
	require.NoError(t, store.Close())

	_, err := store.Get(ctx, "doc.md")
	assert.Error(t, err)
	assert.Error(t, store.Put(ctx, "doc.md", reconcile.Snapshot{}))
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	first, err := snapshots.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "doc.md", reconcile.NewSnapshot([]string{"status"})))
	require.NoError(t, first.Close())

	second, err := snapshots.OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, path, second.Path())
	got, err := second.Get(ctx, "doc.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"status"}, got.Keys)
}
