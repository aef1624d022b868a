package sitepipe

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

// Report collects the results of every transform that ran during one
// Client.Run. A task that runs more than once, as during a watch session,
// accumulates.
type Report struct {
	mu      sync.Mutex
	results map[string]*pipeline.Result
}

func newReport() *Report {
	return &Report{results: make(map[string]*pipeline.Result)}
}

func (r *Report) add(res *pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.results[res.Task]; ok {
		prev.Merge(res)
		return
	}
	cp := *res
	cp.Written = append([]pipeline.Output(nil), res.Written...)
	cp.Skipped = append([]string(nil), res.Skipped...)
	cp.Failed = append([]pipeline.FileError(nil), res.Failed...)
	r.results[res.Task] = &cp
}

// Results returns a copy of every task result, sorted by task name.
func (r *Report) Results() []pipeline.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]pipeline.Result, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

// Failed returns every per-file failure, ordered by task then file.
func (r *Report) Failed() []pipeline.FileError {
	var failed []pipeline.FileError
	for _, res := range r.Results() {
		failed = append(failed, res.Failed...)
	}
	return failed
}

// Summary renders a one-line overview such as
// "4 written (12 kB -> 3.1 kB), 2 unchanged, 1 failed".
func (r *Report) Summary() string {
	var (
		written, skipped, failed int
		in, out                  int64
	)
	for _, res := range r.Results() {
		written += len(res.Written)
		skipped += len(res.Skipped)
		failed += len(res.Failed)
		in += res.BytesIn
		out += res.BytesOut
	}
	return fmt.Sprintf("%d written (%s -> %s), %d unchanged, %d failed",
		written, humanize.Bytes(uint64(in)), humanize.Bytes(uint64(out)), skipped, failed)
}

// FailedError reports a one-shot run that completed with per-file failures.
type FailedError struct {
	Task   string
	Failed []pipeline.FileError
}

func (e *FailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d file(s) failed", e.Task, len(e.Failed))
	for _, f := range e.Failed {
		fmt.Fprintf(&b, "\n  - %s", f.Error())
	}
	return b.String()
}
