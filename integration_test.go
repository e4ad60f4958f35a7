package propsync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/propsync"
	"github.com/agentstation/propsync/internal/snapshots"
	"github.com/agentstation/propsync/internal/vault"
	"github.com/agentstation/propsync/internal/watcher"
	"github.com/agentstation/propsync/pkg/logging"
)

func writeVaultFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func openVaultClient(t *testing.T, root, db string, opts ...propsync.Option) (propsync.Client, *vault.Vault) {
	t.Helper()
	v, err := vault.Open(root)
	require.NoError(t, err)
	store, err := snapshots.OpenSQLite(db)
	require.NoError(t, err)

	opts = append([]propsync.Option{
		propsync.WithDocuments(v),
		propsync.WithSnapshotStore(store),
		propsync.WithLogger(logging.NewNopLogger()),
	}, opts...)
	c, err := propsync.New(opts...)
	require.NoError(t, err)
	return c, v
}

// Snapshots survive a restart, so a field removed from the body while the
// process was down is still removed from the header afterwards.
func TestVaultSnapshotsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	db := filepath.Join(t.TempDir(), "snapshots.db")
	writeVaultFile(t, root, "note.md", "---\nauthor: me\n---\nstatus:: draft\nrating:: 4\n")

	c, v := openVaultClient(t, root, db)
	result, err := c.Reconcile(ctx, "note.md")
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Equal(t, 2, result.Decision.Summary.Added)
	require.NoError(t, c.Close())

	h, err := v.ReadHeader(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "status", "rating"}, h.Keys())

	writeVaultFile(t, root, "note.md", "---\nauthor: me\nstatus: draft\nrating: 4\n---\nstatus:: final\n")

	c, v = openVaultClient(t, root, db)
	defer c.Close()
	result, err = c.Reconcile(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Decision.Summary.Updated)
	assert.Equal(t, 1, result.Decision.Summary.Removed)

	h, err = v.ReadHeader(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "status"}, h.Keys())
	status, _ := h.Get("status")
	assert.Equal(t, "final", status.Str())
}

func TestVaultSyncAll(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "kind:: alpha\n")
	writeVaultFile(t, root, "sub/b.md", "kind:: beta\n")
	writeVaultFile(t, root, "sub/c.md", "---\ndataview_properties_ignore: true\n---\nkind:: gamma\n")
	writeVaultFile(t, root, ".hidden/d.md", "kind:: delta\n")

	c, v := openVaultClient(t, root, ":memory:")
	defer c.Close()

	docs, err := v.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "sub/b.md", "sub/c.md"}, docs)

	results, err := c.ReconcileAll(ctx, docs)
	require.NoError(t, err)
	totals := propsync.Total(results)
	assert.Equal(t, 3, totals.Documents)
	assert.Equal(t, 2, totals.Written)
	assert.Equal(t, 1, totals.Excluded)

	data, err := os.ReadFile(filepath.Join(root, "sub", "c.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "kind: gamma")
}

func TestVaultWatch(t *testing.T) {
	root := t.TempDir()
	c, v := openVaultClient(t, root, ":memory:", propsync.WithDebounce(10*time.Millisecond))
	defer c.Close()

	w := watcher.New(c, v, watcher.WithLogger(logging.NewNopLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}

	writeVaultFile(t, root, "live.md", "mood:: calm\n")

	assert.Eventually(t, func() bool {
		h, err := v.ReadHeader(context.Background(), "live.md")
		if err != nil || h == nil {
			return false
		}
		mood, ok := h.Get("mood")
		return ok && mood.Str() == "calm"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
