package transform

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestMarkup(t *testing.T, helpers map[string]string) (*Markup, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "app/partials/nav.handlebars", `<nav>{{siteName}}</nav>`)
	writeFile(t, root, "app/partials/blog/card.hbs", `<article>{{title}}</article>`)
	writeFile(t, root, "app/partials/notes.txt", `ignored`)

	var h *Helpers
	if helpers != nil {
		var err error
		h, err = NewHelpers(helpers)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(h.Close)
	}

	m := NewMarkup(MarkupOptions{
		Root:        root,
		PartialDirs: []string{"app/partials", "missing/partials"},
		Data: MergeData(
			map[string]any{"siteName": "Example", "title": "Hello"},
			map[string]any{"env": map[string]string{"SITE_API": "https://api.example.com"}},
		),
		Helpers: h,
	})
	if err := m.LoadPartials(); err != nil {
		t.Fatalf("LoadPartials: %v", err)
	}
	return m, root
}

func TestMarkupLoadPartials(t *testing.T) {
	m, _ := newTestMarkup(t, nil)
	if got := m.Partials(); !reflect.DeepEqual(got, []string{"blog/card", "nav"}) {
		t.Errorf("Partials = %v", got)
	}
}

func TestMarkupRender(t *testing.T) {
	m, _ := newTestMarkup(t, map[string]string{"shout": "return string.upper(s) .. '!'"})

	src := `{{> nav}}{{> blog/card}}<p>{{uppercase title}} {{shout siteName}}</p><a href="{{env.SITE_API}}">api</a>`
	f, err := m.Render(pipeline.File{Source: "app/index.handlebars", Path: "index.handlebars", Contents: []byte(src)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := `<nav>Example</nav><article>Hello</article><p>HELLO EXAMPLE!</p><a href="https://api.example.com">api</a>`
	if string(f.Contents) != want {
		t.Errorf("got  %s\nwant %s", f.Contents, want)
	}
	if f.Path != "index.handlebars" {
		t.Errorf("Render must not rename, got %q", f.Path)
	}
}

func TestMarkupRenderErrors(t *testing.T) {
	m, _ := newTestMarkup(t, map[string]string{"boom": "error('kaboom')"})

	tests := map[string]string{
		"parse":           `{{#if}}`,
		"missing partial": `{{> nowhere}}`,
		"helper failure":  `{{boom "x"}}`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Render(pipeline.File{Contents: []byte(src)}); err == nil {
				t.Errorf("expected error for %q", src)
			}
		})
	}
}

func TestMarkupReloadPicksUpEdits(t *testing.T) {
	m, root := newTestMarkup(t, nil)
	writeFile(t, root, "app/partials/nav.handlebars", `<nav>v2</nav>`)

	if err := m.LoadPartials(); err != nil {
		t.Fatal(err)
	}
	f, err := m.Render(pipeline.File{Contents: []byte(`{{> nav}}`)})
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Contents) != `<nav>v2</nav>` {
		t.Errorf("got %s", f.Contents)
	}
}

func TestMarkupPipeline(t *testing.T) {
	m, _ := newTestMarkup(t, nil)
	src := "<html>\n  <body>\n    <h1>  {{siteName}}  </h1>\n  </body>\n</html>\n"

	f, err := pipeline.Apply(
		pipeline.File{Source: "app/index.handlebars", Path: "index.handlebars", Contents: []byte(src)},
		m.Render, MinifyHTML(NewMinifier()), pipeline.Rename(".html"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if f.Path != "index.html" {
		t.Errorf("Path = %q", f.Path)
	}
	if strings.Contains(string(f.Contents), "\n  ") {
		t.Errorf("output not minified: %q", f.Contents)
	}
	if !strings.Contains(string(f.Contents), "Example") {
		t.Errorf("output = %q", f.Contents)
	}
}

func TestMergeData(t *testing.T) {
	got := MergeData(map[string]any{"a": 1, "b": 1}, nil, map[string]any{"b": 2})
	if !reflect.DeepEqual(got, map[string]any{"a": 1, "b": 2}) {
		t.Errorf("MergeData = %v", got)
	}
}
