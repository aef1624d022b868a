package pipeline

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SourceSet is a list of include globs and exclude globs, relative to the
// project root. Exclusions are written with a leading "!" in configuration.
type SourceSet struct {
	Include []string
	Exclude []string
}

// ParseSources splits configured patterns into includes and exclusions.
func ParseSources(patterns []string) SourceSet {
	var s SourceSet
	for _, p := range patterns {
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			s.Exclude = append(s.Exclude, CleanPattern(rest))
			continue
		}
		s.Include = append(s.Include, CleanPattern(p))
	}
	return s
}

// CleanPattern drops leading "./" elements. Paths handed to an fs.FS never
// carry them, so "./js/*.js" would otherwise match nothing.
func CleanPattern(p string) string {
	for {
		rest, ok := strings.CutPrefix(p, "./")
		if !ok {
			return p
		}
		p = strings.TrimLeft(rest, "/")
	}
}

// Match is one expanded source file.
type Match struct {
	// Source is the path relative to the project root.
	Source string

	// Rel is the path relative to the static base of the glob that matched,
	// which is the layout preserved beneath the destination.
	Rel string
}

// Expand resolves the source set against fsys. Results are de-duplicated
// (first matching include wins) and sorted by source path.
func (s SourceSet) Expand(fsys fs.FS) ([]Match, error) {
	seen := make(map[string]bool)
	var matches []Match

	for _, pattern := range s.Include {
		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		base, _ := doublestar.SplitPattern(pattern)

		for _, src := range found {
			if seen[src] || s.excluded(src) {
				continue
			}
			seen[src] = true
			matches = append(matches, Match{Source: src, Rel: relToBase(base, src)})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Source < matches[j].Source
	})
	return matches, nil
}

// Matches reports whether rel (slash separated, relative to the project
// root) belongs to the set.
func (s SourceSet) Matches(rel string) bool {
	if s.excluded(rel) {
		return false
	}
	for _, pattern := range s.Include {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
	}
	return false
}

// Rel returns rel relative to the base of the first include that matches it.
func (s SourceSet) Rel(rel string) (string, bool) {
	for _, pattern := range s.Include {
		if doublestar.MatchUnvalidated(pattern, rel) {
			base, _ := doublestar.SplitPattern(pattern)
			return relToBase(base, rel), true
		}
	}
	return "", false
}

// Bases returns the static directory prefix of every include, sorted and
// de-duplicated. These are the directories a watcher needs to observe.
func (s SourceSet) Bases() []string {
	seen := make(map[string]bool)
	var bases []string
	for _, pattern := range s.Include {
		base, _ := doublestar.SplitPattern(pattern)
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	sort.Strings(bases)
	return bases
}

func (s SourceSet) excluded(rel string) bool {
	for _, pattern := range s.Exclude {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
	}
	return false
}

func relToBase(base, src string) string {
	if base == "." || base == "" {
		return src
	}
	if rel, ok := strings.CutPrefix(src, base+"/"); ok {
		return rel
	}
	return path.Base(src)
}
