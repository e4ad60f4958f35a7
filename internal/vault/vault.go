// Package vault adapts a directory of markdown documents to the client:
// it lists documents, reads and atomically rewrites their YAML frontmatter
// and extracts inline fields from their bodies.
package vault

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
)

// Vault is a markdown document tree. Document identities are slash-separated
// paths relative to the root, extension included.
type Vault struct {
	root string
	ext  string
}

// Option configures a Vault.
type Option func(*Vault)

// WithExtension sets the document extension, ".md" by default.
func WithExtension(ext string) Option {
	return func(v *Vault) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext != "" {
			v.ext = ext
		}
	}
}

// Open returns the vault rooted at root, which must be an existing directory.
func Open(root string, opts ...Option) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapIO("resolve", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.WrapIO("stat", abs, err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidationError("vault", root, "not a directory")
	}

	v := &Vault{root: abs, ext: constants.DefaultDocumentExtension}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string {
	return v.root
}

// Extension returns the document extension.
func (v *Vault) Extension() string {
	return v.ext
}

// ID converts a filesystem path, absolute or relative to the working
// directory, into a document identity.
func (v *Vault) ID(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.WrapIO("resolve", p, err)
	}
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", errors.NewValidationError("path", p, "outside the vault")
	}
	return filepath.ToSlash(rel), nil
}

// Path converts a document identity into a filesystem path.
func (v *Vault) Path(doc string) (string, error) {
	clean := path.Clean("/" + doc)[1:]
	if clean == "" || clean != doc {
		return "", errors.NewValidationError("document", doc, "not a clean vault-relative path")
	}
	return filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

// IsDocument reports whether the identity names a document the vault
// manages: the right extension and no hidden path segment.
func (v *Vault) IsDocument(doc string) bool {
	if !strings.HasSuffix(doc, v.ext) {
		return false
	}
	return !slices.ContainsFunc(strings.Split(doc, "/"), hidden)
}

func hidden(segment string) bool {
	return strings.HasPrefix(segment, ".")
}

// List returns every document in the vault, sorted.
func (v *Vault) List(ctx context.Context) ([]string, error) {
	var docs []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == v.root {
			return nil
		}
		if d.IsDir() {
			if hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		if doc := filepath.ToSlash(rel); v.IsDocument(doc) {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WrapIO("list", v.root, err)
	}
	slices.Sort(docs)
	return docs, nil
}

// read loads a document's content.
func (v *Vault) read(doc string) (string, os.FileMode, error) {
	p, err := v.Path(doc)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, errors.NewNotFoundError("document", doc)
		}
		return "", 0, errors.WrapIO("stat", p, err)
	}
	if info.Size() > constants.MaxDocumentSize {
		return "", 0, errors.NewValidationError("document", doc, "too large")
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", 0, errors.WrapIO("read", p, err)
	}
	return string(data), info.Mode().Perm(), nil
}

// write replaces a document's content through a temporary file in the same
// directory so readers never observe a partial write.
func (v *Vault) write(doc, content string, mode os.FileMode) error {
	p, err := v.Path(doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return errors.WrapIO("create", "temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = tmp.Close() }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("write", tmpPath, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("chmod", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("rename", p, err)
	}
	return nil
}

// RenderLink writes a link the way the vault's own links are written: the
// document extension is dropped from the target.
func (v *Vault) RenderLink(_ context.Context, _ string, link fields.Link) (string, error) {
	link.Path = strings.TrimSuffix(filepath.ToSlash(link.Path), v.ext)
	return link.Render(), nil
}
