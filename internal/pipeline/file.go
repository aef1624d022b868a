// Package pipeline implements the generic transform task: expand a source
// set, skip files the cache has already seen, run each remaining file through
// an ordered list of stages and write the result beneath a destination.
package pipeline

import (
	"fmt"
	"path"
	"strings"
)

// File is the value passed between stages.
type File struct {
	// Source is the input path relative to the project root, slash separated.
	Source string

	// Path is the output path relative to the task destination. Stages that
	// rename or re-extension a file change Path only.
	Path string

	Contents []byte

	// SourceMap is written next to the output as Path + ".map" when set.
	SourceMap []byte
}

// Stage is a single transformation step. Stages must not retain f.
type Stage func(f File) (File, error)

// Apply runs f through stages in order, stopping at the first error.
func Apply(f File, stages ...Stage) (File, error) {
	for _, stage := range stages {
		var err error
		f, err = stage(f)
		if err != nil {
			return File{}, err
		}
	}
	return f, nil
}

// Rename replaces the extension of the output path, e.g. ".handlebars" to ".html".
func Rename(ext string) Stage {
	return func(f File) (File, error) {
		f.Path = strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
		return f, nil
	}
}

// Suffix inserts s before the extension of the output path: app.css becomes
// app.min.css for Suffix(".min").
func Suffix(s string) Stage {
	return func(f File) (File, error) {
		ext := path.Ext(f.Path)
		f.Path = strings.TrimSuffix(f.Path, ext) + s + ext
		return f, nil
	}
}

// MapKind selects the comment syntax of a sourceMappingURL annotation.
type MapKind int

const (
	MapJS MapKind = iota
	MapCSS
)

// LinkSourceMap appends a sourceMappingURL comment that points at the sibling
// .map file. Files without a source map pass through unchanged.
func LinkSourceMap(kind MapKind) Stage {
	return func(f File) (File, error) {
		if len(f.SourceMap) == 0 {
			return f, nil
		}
		name := path.Base(f.Path) + ".map"

		var comment string
		switch kind {
		case MapJS:
			comment = "//# sourceMappingURL=" + name + "\n"
		case MapCSS:
			comment = "/*# sourceMappingURL=" + name + " */\n"
		default:
			return File{}, fmt.Errorf("unknown source map kind %d", kind)
		}

		out := make([]byte, 0, len(f.Contents)+len(comment)+1)
		out = append(out, f.Contents...)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		f.Contents = append(out, comment...)
		return f, nil
	}
}
