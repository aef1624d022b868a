package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bianoble/sitepipe/internal/cache"
	"github.com/bianoble/sitepipe/internal/sandbox"
)

// Task transforms one class of source files into a destination directory.
// A Task is immutable once built and safe to run concurrently with other
// tasks; runs of the same Task must be serialized by the caller.
type Task struct {
	Name    string
	Root    *sandbox.Root
	Sources SourceSet
	Dest    string // relative to Root
	Stages  []Stage
	Cache   cache.Store
	Logger  *slog.Logger

	// Concurrency bounds the number of files processed at once.
	// Zero means runtime.NumCPU().
	Concurrency int
}

// Matches reports whether rel, relative to the project root, is one of the
// task's sources.
func (t *Task) Matches(rel string) bool {
	return t.Sources.Matches(filepath.ToSlash(rel))
}

// Run processes every source file. Per-file stage failures are logged and
// collected in Result.Failed; the remaining files still run. A failed write
// is reported as a *DestinationError once all files have finished.
func (t *Task) Run(ctx context.Context) (*Result, error) {
	logger := t.logger()
	result := &Result{Task: t.Name}

	matches, err := t.Sources.Expand(os.DirFS(t.Root.Dir()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}

	var (
		mu      sync.Mutex
		destErr *DestinationError
	)

	limit := t.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, m := range matches {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outs, in, skipped, ferr, werr := t.process(m)

			mu.Lock()
			defer mu.Unlock()
			result.BytesIn += in
			switch {
			case skipped:
				result.Skipped = append(result.Skipped, m.Source)
				logger.Debug("unchanged", "task", t.Name, "file", m.Source)
			case ferr != nil:
				fe := FileError{Task: t.Name, File: m.Source, Err: ferr}
				result.Failed = append(result.Failed, fe)
				logger.Error("transform failed", "task", t.Name, "file", m.Source, "err", ferr)
			case werr != nil:
				if destErr == nil {
					destErr = werr
				}
				logger.Error("write failed", "task", t.Name, "file", m.Source, "err", werr)
			default:
				for _, o := range outs {
					result.Written = append(result.Written, o)
					result.BytesOut += o.Size
					logger.Debug("wrote", "task", t.Name, "file", o.Path, "bytes", o.Size)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Written, func(i, j int) bool { return result.Written[i].Path < result.Written[j].Path })
	sort.Strings(result.Skipped)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].File < result.Failed[j].File })

	if destErr != nil {
		return result, destErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// process runs a single file. It returns the outputs written, the size of
// the source read, and which of skip, transform failure or write failure
// happened.
func (t *Task) process(m Match) (outs []Output, in int64, skipped bool, ferr error, werr *DestinationError) {
	content, err := os.ReadFile(filepath.Join(t.Root.Dir(), filepath.FromSlash(m.Source)))
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading source: %w", err), nil
	}
	in = int64(len(content))

	sig := cache.Signature(content)
	if t.Cache != nil && !t.Cache.ShouldProcess(t.Name, m.Source, sig) {
		return nil, in, true, nil, nil
	}

	f, err := Apply(File{Source: m.Source, Path: m.Rel, Contents: content}, t.Stages...)
	if err != nil {
		return nil, in, false, err, nil
	}

	target := path.Join(t.Dest, f.Path)
	if err := t.Root.WriteFile(target, f.Contents, 0644); err != nil {
		return nil, in, false, nil, &DestinationError{Task: t.Name, Path: target, Err: err}
	}
	outs = append(outs, Output{Source: m.Source, Path: target, Size: int64(len(f.Contents))})

	if len(f.SourceMap) > 0 {
		mapTarget := target + ".map"
		if err := t.Root.WriteFile(mapTarget, f.SourceMap, 0644); err != nil {
			return nil, in, false, nil, &DestinationError{Task: t.Name, Path: mapTarget, Err: err}
		}
		outs = append(outs, Output{Source: m.Source, Path: mapTarget, Size: int64(len(f.SourceMap))})
	}

	if t.Cache != nil {
		t.Cache.Record(t.Name, m.Source, sig)
	}
	return outs, in, false, nil, nil
}

func (t *Task) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.New(slog.DiscardHandler)
}
