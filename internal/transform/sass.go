package transform

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/bep/godartsass/v2"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

// Sass compiles SCSS and indented Sass through an external Dart Sass
// process. The transpiler multiplexes calls, so one Sass serves every
// concurrent style file.
type Sass struct {
	root         string
	includePaths []string
	transpiler   *godartsass.Transpiler
}

// StartSass launches the Dart Sass binary. includePaths are relative to root.
// Sass @warn and @debug output is forwarded to logger.
func StartSass(binary, root string, includePaths []string, logger *slog.Logger) (*Sass, error) {
	opts := godartsass.Options{DartSassEmbeddedFilename: binary}
	if logger != nil {
		opts.LogEventHandler = func(ev godartsass.LogEvent) {
			switch ev.Type {
			case godartsass.LogEventTypeDebug:
				logger.Debug("sass", "msg", ev.Message)
			default:
				logger.Warn("sass", "msg", ev.Message)
			}
		}
	}

	tr, err := godartsass.Start(opts)
	if err != nil {
		return nil, fmt.Errorf("starting dart sass %q: %w", binary, err)
	}

	abs := make([]string, 0, len(includePaths))
	for _, p := range includePaths {
		abs = append(abs, filepath.Join(root, filepath.FromSlash(p)))
	}
	return &Sass{root: root, includePaths: abs, transpiler: tr}, nil
}

// Compile is the Sass stage. Plain .css files pass through. The source map
// is inlined as a data URL so the following CSS stage can chain it.
func (s *Sass) Compile(f pipeline.File) (pipeline.File, error) {
	syntax := godartsass.SourceSyntaxSCSS
	switch path.Ext(f.Source) {
	case ".sass":
		syntax = godartsass.SourceSyntaxSASS
	case ".css":
		return f, nil
	}

	abs := filepath.Join(s.root, filepath.FromSlash(f.Source))
	res, err := s.transpiler.Execute(godartsass.Args{
		Source:          string(f.Contents),
		URL:             "file://" + filepath.ToSlash(abs),
		SourceSyntax:    syntax,
		OutputStyle:     godartsass.OutputStyleExpanded,
		EnableSourceMap: true,
		IncludePaths:    append([]string{filepath.Dir(abs)}, s.includePaths...),
	})
	if err != nil {
		return pipeline.File{}, fmt.Errorf("compiling sass: %w", err)
	}

	var b strings.Builder
	b.WriteString(res.CSS)
	if res.SourceMap != "" {
		b.WriteString("\n/*# sourceMappingURL=data:application/json;base64,")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(res.SourceMap)))
		b.WriteString(" */\n")
	}
	f.Contents = []byte(b.String())
	return f, nil
}

// Close stops the Dart Sass process.
func (s *Sass) Close() error {
	return s.transpiler.Close()
}
