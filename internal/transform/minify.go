package transform

import (
	"fmt"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

const (
	mediaHTML = "text/html"
	mediaSVG  = "image/svg+xml"
)

// NewMinifier returns a minifier for HTML and SVG. Inline <style> and
// <script> blocks are minified as well.
func NewMinifier() *minify.M {
	m := minify.New()
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	m.AddFunc(mediaSVG, svg.Minify)
	return m
}

// MinifyHTML is the markup minification stage.
func MinifyHTML(m *minify.M) pipeline.Stage {
	return func(f pipeline.File) (pipeline.File, error) {
		out, err := m.Bytes(mediaHTML, f.Contents)
		if err != nil {
			return pipeline.File{}, fmt.Errorf("minifying html: %w", err)
		}
		f.Contents = out
		return f, nil
	}
}
