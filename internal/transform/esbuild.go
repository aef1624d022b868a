package transform

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var engineSpec = regexp.MustCompile(`^([a-z]+)([0-9]+(?:\.[0-9]+)*)$`)

// ParseEngines converts engine specs such as "chrome58" or "safari11.1".
func ParseEngines(specs []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(specs))
	for _, spec := range specs {
		m := engineSpec.FindStringSubmatch(spec)
		if m == nil {
			return nil, fmt.Errorf("invalid engine '%s'", spec)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown engine '%s'", m[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// ParseTarget converts a language target such as "es2015".
func ParseTarget(s string) (api.Target, error) {
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown target '%s'", s)
	}
	return t, nil
}

// Script downlevels and minifies JavaScript.
type Script struct {
	Target api.Target
}

// Compile is the script stage. The output carries an external source map.
func (s *Script) Compile(f pipeline.File) (pipeline.File, error) {
	result := api.Transform(string(f.Contents), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            s.Target,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        f.Source,
		LegalComments:     api.LegalCommentsEndOfFile,
	})
	if err := messagesError(result.Errors); err != nil {
		return pipeline.File{}, err
	}
	f.Contents = result.Code
	f.SourceMap = result.Map
	return f, nil
}

// Style lowers nesting, adds vendor prefixes for the configured engines and
// minifies CSS.
type Style struct {
	Engines []api.Engine

	// Preprocessed is set when a Sass stage runs first. Without it, warnings
	// on .scss and .sass sources fail the file: esbuild passes Sass-only
	// syntax through with a warning.
	Preprocessed bool
}

// Compile is the stylesheet stage. An inline sourceMappingURL left by a
// preceding Sass stage is chained into the external map.
func (s *Style) Compile(f pipeline.File) (pipeline.File, error) {
	result := api.Transform(string(f.Contents), api.TransformOptions{
		Loader:           api.LoaderCSS,
		Engines:          s.Engines,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		Sourcemap:        api.SourceMapExternal,
		Sourcefile:       f.Source,
	})
	msgs := result.Errors
	if !s.Preprocessed && isSass(f.Source) {
		msgs = append(msgs, result.Warnings...)
	}
	if err := messagesError(msgs); err != nil {
		return pipeline.File{}, err
	}
	f.Contents = result.Code
	f.SourceMap = result.Map
	return f, nil
}

func isSass(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".scss", ".sass":
		return true
	}
	return false
}

// messagesError folds esbuild messages into one error.
func messagesError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	errs := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		if loc := msg.Location; loc != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, msg.Text))
			continue
		}
		errs = append(errs, errors.New(msg.Text))
	}
	return errors.Join(errs...)
}
