package forms

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
)

//go:embed assets/*.pdf
var embedded embed.FS

// Templates is the Form Template Store. Templates are immutable PDF assets
// addressed by file name.
type Templates struct {
	fsys fs.FS
	root string
}

// EmbeddedTemplates serves the templates compiled into the binary.
func EmbeddedTemplates() *Templates {
	sub, err := fs.Sub(embedded, "assets")
	if err != nil {
		panic(fmt.Sprintf("forms: embedded assets: %v", err))
	}
	return &Templates{fsys: sub, root: "embedded"}
}

// DirTemplates serves templates from a directory on disk, for trying a new
// template revision without rebuilding.
func DirTemplates(dir string) *Templates {
	return &Templates{fsys: os.DirFS(dir), root: dir}
}

// TemplatesFromFS wraps an arbitrary file system.
func TemplatesFromFS(fsys fs.FS, root string) *Templates {
	return &Templates{fsys: fsys, root: root}
}

// Open reads a template. A missing file yields ErrTemplateNotFound.
func (t *Templates) Open(name string) ([]byte, error) {
	clean := path.Clean(name)
	if !fs.ValidPath(clean) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrTemplateNotFound, name)
	}
	data, err := fs.ReadFile(t.fsys, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, t.root, clean)
		}
		return nil, fmt.Errorf("read template %s: %w", clean, err)
	}
	return data, nil
}

// List returns the template file names in the store.
func (t *Templates) List() ([]string, error) {
	matches, err := fs.Glob(t.fsys, "*.pdf")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return matches, nil
}
