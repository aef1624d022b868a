// Package watch re-runs transform tasks when their sources change and
// signals a reloader once each rebuild has finished.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	Idle State = iota
	Watching
	Rebuilding
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case Rebuilding:
		return "rebuilding"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Subscription binds a source set to the task it triggers. Run receives the
// changed path relative to the project root.
type Subscription struct {
	Name    string
	Sources pipeline.SourceSet
	Run     func(ctx context.Context, changed string) (*pipeline.Result, error)
}

// Reloader is notified after a rebuild wrote files. paths are relative to
// the project root.
type Reloader interface {
	Reload(paths ...string)
}

// Loop watches the sources of its subscriptions. Rebuilds of one
// subscription are serialized; different subscriptions rebuild
// concurrently. A rebuild always finishes before its reload is sent.
type Loop struct {
	Root          string
	Subscriptions []Subscription
	Reloader      Reloader
	Debounce      time.Duration
	Logger        *slog.Logger

	initOnce sync.Once
	locks    []sync.Mutex

	state  atomic.Int32
	active atomic.Int32

	gate     sync.Mutex // guards stopping and inflight.Add
	stopping bool
	inflight sync.WaitGroup
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		l.locks = make([]sync.Mutex, len(l.Subscriptions))
		if l.Logger == nil {
			l.Logger = slog.New(slog.DiscardHandler)
		}
	})
}

// Run watches until ctx is cancelled. On return every watch is released
// and all in-flight rebuilds have finished.
func (l *Loop) Run(ctx context.Context) error {
	l.init()

	w, err := newDirWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	for _, sub := range l.Subscriptions {
		for _, base := range sub.Sources.Bases() {
			if err := w.addRecursive(filepath.Join(l.Root, filepath.FromSlash(base))); err != nil {
				_ = w.close()
				return fmt.Errorf("watching %s: %w", base, err)
			}
		}
	}

	// Rebuilds run detached from ctx so cancellation never interrupts a
	// write; they are awaited below instead.
	rebuildCtx := context.WithoutCancel(ctx)
	deb := newDebouncer(l.Debounce, func(rel string) {
		l.gate.Lock()
		if l.stopping {
			l.gate.Unlock()
			return
		}
		l.inflight.Add(1)
		l.gate.Unlock()

		defer l.inflight.Done()
		l.Trigger(rebuildCtx, rel)
	})

	l.gate.Lock()
	l.stopping = false
	l.gate.Unlock()
	l.state.Store(int32(Watching))
	l.Logger.Info("watching", "dirs", w.watched(), "subscriptions", len(l.Subscriptions))

	events, errs := w.fsw.Events, w.fsw.Errors
	for {
		select {
		case <-ctx.Done():
			l.gate.Lock()
			l.stopping = true
			l.gate.Unlock()
			deb.stop()
			err := w.close()
			l.inflight.Wait()
			l.state.Store(int32(Stopped))
			l.Logger.Info("watch stopped")
			return err

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if err := w.addRecursive(ev.Name); err != nil {
					l.Logger.Warn("watching new directory failed", "path", ev.Name, "err", err)
				}
			}
			rel, err := filepath.Rel(l.Root, ev.Name)
			if err != nil {
				continue
			}
			deb.add(filepath.ToSlash(rel))

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			l.Logger.Warn("file watcher error", "err", err)
		}
	}
}

// Trigger rebuilds every subscription whose sources contain rel, then sends
// one reload per rebuild that wrote files. It returns the number of
// subscriptions that matched.
func (l *Loop) Trigger(ctx context.Context, rel string) int {
	l.init()
	rel = filepath.ToSlash(rel)

	var (
		wg      sync.WaitGroup
		matched int
	)
	for i := range l.Subscriptions {
		sub := &l.Subscriptions[i]
		if !sub.Sources.Matches(rel) {
			continue
		}
		matched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.rebuild(ctx, i, sub, rel)
		}()
	}
	wg.Wait()

	if matched == 0 {
		l.Logger.Debug("no subscription for change", "file", rel)
	}
	return matched
}

func (l *Loop) rebuild(ctx context.Context, i int, sub *Subscription, rel string) {
	l.locks[i].Lock()
	defer l.locks[i].Unlock()

	l.enter()
	start := time.Now()
	l.Logger.Info("rebuilding", "task", sub.Name, "file", rel)
	res, err := sub.Run(ctx, rel)
	l.leave()

	if err != nil {
		l.Logger.Error("rebuild failed", "task", sub.Name, "file", rel, "err", err)
	}
	if res == nil || len(res.Written) == 0 {
		l.Logger.Debug("nothing to reload", "task", sub.Name)
		return
	}

	paths := make([]string, 0, len(res.Written))
	for _, o := range res.Written {
		paths = append(paths, o.Path)
	}
	l.Logger.Info("rebuilt", "task", sub.Name, "files", len(paths), "elapsed", time.Since(start).Round(time.Millisecond))
	if l.Reloader != nil {
		l.Reloader.Reload(paths...)
	}
}

func (l *Loop) enter() {
	if l.active.Add(1) == 1 {
		l.state.CompareAndSwap(int32(Watching), int32(Rebuilding))
	}
}

func (l *Loop) leave() {
	if l.active.Add(-1) == 0 {
		l.state.CompareAndSwap(int32(Rebuilding), int32(Watching))
	}
}
