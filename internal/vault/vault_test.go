package vault_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/propsync/internal/vault"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func openVault(t *testing.T) (*vault.Vault, string) {
	t.Helper()
	root := t.TempDir()
	v, err := vault.Open(root)
	require.NoError(t, err)
	return v, root
}

func TestOpen(t *testing.T) {
	_, err := vault.Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	root := t.TempDir()
	writeFile(t, root, "file.md", "x")
	_, err = vault.Open(filepath.Join(root, "file.md"))
	assert.True(t, errors.IsValidationError(err))

	v, err := vault.Open(root, vault.WithExtension("markdown"))
	require.NoError(t, err)
	assert.Equal(t, ".markdown", v.Extension())
}

func TestIdentity(t *testing.T) {
	v, root := openVault(t)

	id, err := v.ID(filepath.Join(root, "notes", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", id)

	_, err = v.ID(filepath.Dir(root))
	assert.Error(t, err)

	p, err := v.Path("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "notes", "a.md"), p)

	for _, bad := range []string{"", "../escape.md", "notes/../a.md", "/abs.md"} {
		_, err := v.Path(bad)
		assert.Error(t, err, bad)
	}

	assert.True(t, v.IsDocument("notes/a.md"))
	assert.False(t, v.IsDocument("notes/a.canvas"))
	assert.False(t, v.IsDocument(".obsidian/workspace.md"))
	assert.False(t, v.IsDocument("notes/.hidden.md"))
}

func TestList(t *testing.T) {
	v, root := openVault(t)
	writeFile(t, root, "b.md", "")
	writeFile(t, root, "a/c.md", "")
	writeFile(t, root, "a/image.png", "")
	writeFile(t, root, ".obsidian/plugins.md", "")
	writeFile(t, root, ".propsync/state.md", "")

	docs, err := v.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c.md", "b.md"}, docs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		content string
		header  string
		body    string
		ok      bool
	}{
		{"frontmatter", "---\na: 1\n---\nbody\n", "a: 1\n", "body\n", true},
		{"empty block", "---\n---\nbody", "", "body", true},
		{"dots close", "---\na: 1\n...\nbody", "a: 1\n", "body", true},
		{"crlf", "---\r\na: 1\r\n---\r\nbody", "a: 1\r\n", "body", true},
		{"no trailing newline", "---\na: 1\n---", "a: 1\n", "", true},
		{"none", "# Title\n", "", "# Title\n", false},
		{"unclosed", "---\na: 1\n", "", "---\na: 1\n", false},
		{"not first line", "\n---\na: 1\n---\n", "", "\n---\na: 1\n---\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body, ok := vault.Split(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.header, header)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestReadHeader(t *testing.T) {
	v, root := openVault(t)
	ctx := context.Background()

	writeFile(t, root, "with.md", "---\nzeta: 1\nalpha: [a, b]\nnested:\n  k: v\n---\nbody")
	writeFile(t, root, "without.md", "body")
	writeFile(t, root, "scalar.md", "---\njust a string\n---\n")
	writeFile(t, root, "broken.md", "---\na: [unclosed\n---\n")

	header, err := v.ReadHeader(ctx, "with.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "nested"}, header.Keys())
	zeta, _ := header.Get("zeta")
	assert.Equal(t, float64(1), zeta.Num())

	header, err = v.ReadHeader(ctx, "without.md")
	require.NoError(t, err)
	assert.Nil(t, header)

	_, err = v.ReadHeader(ctx, "scalar.md")
	var parseErr *errors.ParseError
	assert.True(t, errors.As(err, &parseErr))

	_, err = v.ReadHeader(ctx, "broken.md")
	assert.Error(t, err)

	_, err = v.ReadHeader(ctx, "missing.md")
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateHeader(t *testing.T) {
	ctx := context.Background()

	t.Run("adds frontmatter", func(t *testing.T) {
		v, root := openVault(t)
		writeFile(t, root, "doc.md", "# Title\nstatus:: done\n")

		err := v.UpdateHeader(ctx, "doc.md", func(h *fields.Map) error {
			h.Set("status", fields.String("done"))
			h.Set("tags", fields.List(fields.String("a"), fields.String("b")))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "---\nstatus: done\ntags:\n  - a\n  - b\n---\n# Title\nstatus:: done\n", readFile(t, root, "doc.md"))
	})

	t.Run("keeps key order", func(t *testing.T) {
		v, root := openVault(t)
		writeFile(t, root, "doc.md", "---\nzeta: 1\nalpha: x\n---\nbody\n")

		err := v.UpdateHeader(ctx, "doc.md", func(h *fields.Map) error {
			h.Set("zeta", fields.Number(2))
			h.Set("new", fields.Bool(true))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "---\nzeta: 2\nalpha: x\nnew: true\n---\nbody\n", readFile(t, root, "doc.md"))
	})

	t.Run("removes empty frontmatter", func(t *testing.T) {
		v, root := openVault(t)
		writeFile(t, root, "doc.md", "---\nonly: x\n---\nbody\n")

		err := v.UpdateHeader(ctx, "doc.md", func(h *fields.Map) error {
			h.Delete("only")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "body\n", readFile(t, root, "doc.md"))
	})

	t.Run("transform error leaves file", func(t *testing.T) {
		v, root := openVault(t)
		writeFile(t, root, "doc.md", "---\na: 1\n---\n")
		boom := errors.New("boom")

		err := v.UpdateHeader(ctx, "doc.md", func(h *fields.Map) error {
			h.Delete("a")
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "---\na: 1\n---\n", readFile(t, root, "doc.md"))
	})

	t.Run("keeps permissions and leaves no temp files", func(t *testing.T) {
		v, root := openVault(t)
		writeFile(t, root, "dir/doc.md", "body")
		require.NoError(t, os.Chmod(filepath.Join(root, "dir", "doc.md"), 0o600))

		require.NoError(t, v.UpdateHeader(ctx, "dir/doc.md", func(h *fields.Map) error {
			h.Set("k", fields.String("v"))
			return nil
		}))

		info, err := os.Stat(filepath.Join(root, "dir", "doc.md"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		entries, err := os.ReadDir(filepath.Join(root, "dir"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestRenderLink(t *testing.T) {
	v, _ := openVault(t)
	out, err := v.RenderLink(context.Background(), "doc.md", fields.Link{Path: "folder/Note.md", Display: "Note"})
	require.NoError(t, err)
	assert.Equal(t, "[[folder/Note|Note]]", out)
}
