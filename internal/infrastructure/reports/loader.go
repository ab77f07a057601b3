// Package reports reads plain-text report files from a directory tree.
package reports

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

// Extensions lists the file types Load picks up.
var Extensions = []string{".md", ".txt"}

type File struct {
	// Name is slash-separated and relative to the loader root.
	Name string
	Text string
}

type Loader struct {
	fsys fs.FS
}

// New roots a loader at dir. Paths never escape dir.
func New(dir string) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open report dir: %w", err)
	}
	if !info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open report dir", fmt.Errorf("%s is not a directory", dir))
	}
	return &Loader{fsys: os.DirFS(dir)}, nil
}

func NewFS(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Load returns every non-empty report file in name order. Files that are not
// valid UTF-8 fail the whole load.
func (l *Loader) Load() ([]File, error) {
	var out []File
	err := fs.WalkDir(l.fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supported(name) {
			return nil
		}
		raw, err := fs.ReadFile(l.fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if !utf8.Valid(raw) {
			return domain.WrapError(domain.ErrInvalidInput, "load reports", fmt.Errorf("%s is not UTF-8 text", name))
		}
		text := strings.TrimSpace(strings.TrimPrefix(string(raw), "\ufeff"))
		if text == "" {
			return nil
		}
		out = append(out, File{Name: name, Text: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func supported(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
