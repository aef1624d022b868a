package transform

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aymerick/raymond"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

// PartialExtensions are the file extensions loaded as partial templates.
var PartialExtensions = []string{".handlebars", ".hbs"}

// Markup renders Handlebars pages with a shared data context, named
// partials and helpers.
type Markup struct {
	root    string
	dirs    []string
	data    map[string]any
	helpers map[string]any

	mu       sync.RWMutex
	partials map[string]string
}

// MarkupOptions configures NewMarkup.
type MarkupOptions struct {
	// Root is the project directory partial directories are relative to.
	Root string

	// PartialDirs are scanned recursively by LoadPartials. A partial's name
	// is its path below the directory without extension: app/partials/nav.hbs
	// is {{> nav}}, app/partials/blog/card.hbs is {{> blog/card}}.
	PartialDirs []string

	// Data is the render context shared by every page.
	Data map[string]any

	Helpers *Helpers
}

// NewMarkup creates a markup renderer. Partials are not read until
// LoadPartials is called.
func NewMarkup(opts MarkupOptions) *Markup {
	m := &Markup{
		root:     opts.Root,
		dirs:     opts.PartialDirs,
		data:     opts.Data,
		partials: make(map[string]string),
	}
	if opts.Helpers != nil {
		m.helpers = opts.Helpers.Template()
	} else {
		m.helpers = make(map[string]any, len(builtinHelpers))
		for name, fn := range builtinHelpers {
			m.helpers[name] = fn
		}
	}
	return m
}

// LoadPartials (re)reads every partial directory. Missing directories are
// skipped. Call it before each markup run so edited partials are picked up.
func (m *Markup) LoadPartials() error {
	partials := make(map[string]string)

	for _, dir := range m.dirs {
		base := filepath.Join(m.root, filepath.FromSlash(dir))
		fsys := os.DirFS(base)
		err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == "." && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() || !isPartial(p) {
				return nil
			}
			content, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(p, path.Ext(p))
			if _, dup := partials[name]; !dup {
				partials[name] = string(content)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("loading partials from %s: %w", dir, err)
		}
	}

	m.mu.Lock()
	m.partials = partials
	m.mu.Unlock()
	return nil
}

// Partials returns the loaded partial names, sorted.
func (m *Markup) Partials() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.partials))
	for name := range m.partials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render is the markup stage: it renders f as a Handlebars template.
func (m *Markup) Render(f pipeline.File) (pipeline.File, error) {
	tpl, err := raymond.Parse(string(f.Contents))
	if err != nil {
		return pipeline.File{}, fmt.Errorf("parsing template: %w", err)
	}

	m.mu.RLock()
	partials := maps.Clone(m.partials)
	m.mu.RUnlock()

	tpl.RegisterHelpers(m.helpers)
	tpl.RegisterPartials(partials)

	out, err := tpl.Exec(m.data)
	if err != nil {
		return pipeline.File{}, fmt.Errorf("rendering template: %w", err)
	}
	f.Contents = []byte(out)
	return f, nil
}

// MergeData merges render contexts. Later maps override earlier ones.
func MergeData(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

func isPartial(p string) bool {
	ext := path.Ext(p)
	for _, e := range PartialExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
