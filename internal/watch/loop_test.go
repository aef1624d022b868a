package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

// fakeReloader records reloads and, for each, whether the rebuilt output
// already existed when the reload arrived.
type fakeReloader struct {
	mu      sync.Mutex
	root    string
	calls   [][]string
	existed []bool
	ch      chan struct{}
}

func newFakeReloader(root string) *fakeReloader {
	return &fakeReloader{root: root, ch: make(chan struct{}, 16)}
}

func (f *fakeReloader) Reload(paths ...string) {
	f.mu.Lock()
	f.calls = append(f.calls, paths)
	ok := true
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(f.root, p)); err != nil {
			ok = false
		}
	}
	f.existed = append(f.existed, ok)
	f.mu.Unlock()
	f.ch <- struct{}{}
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeReloader) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

// copyTask writes every changed source to dist/ with a delay, so a reload
// sent before the write finished would be observable.
func copySubscription(root, name, pattern string, runs *int32) Subscription {
	return Subscription{
		Name:    name,
		Sources: pipeline.ParseSources([]string{pattern}),
		Run: func(ctx context.Context, changed string) (*pipeline.Result, error) {
			atomic.AddInt32(runs, 1)
			time.Sleep(30 * time.Millisecond)
			out := filepath.Join("dist", name+".out")
			if err := os.MkdirAll(filepath.Join(root, "dist"), 0755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(filepath.Join(root, out), []byte(name), 0644); err != nil {
				return nil, err
			}
			return &pipeline.Result{Task: name, Written: []pipeline.Output{{Path: filepath.ToSlash(out)}}}, nil
		},
	}
}

func TestTriggerRebuildsBeforeReload(t *testing.T) {
	root := t.TempDir()
	rel := newFakeReloader(root)
	var runs int32
	l := &Loop{
		Root:          root,
		Subscriptions: []Subscription{copySubscription(root, "style", "scss/**/*.scss", &runs)},
		Reloader:      rel,
	}

	if n := l.Trigger(context.Background(), "scss/app.scss"); n != 1 {
		t.Fatalf("matched = %d", n)
	}
	if rel.count() != 1 {
		t.Fatalf("reloads = %d", rel.count())
	}
	if !rel.existed[0] {
		t.Error("reload arrived before the rebuilt output was written")
	}
	if rel.calls[0][0] != "dist/style.out" {
		t.Errorf("reload paths = %v", rel.calls[0])
	}

	if n := l.Trigger(context.Background(), "js/app.js"); n != 0 {
		t.Errorf("unrelated change matched %d subscriptions", n)
	}
}

func TestTriggerFailureDoesNotReload(t *testing.T) {
	rel := newFakeReloader(t.TempDir())
	l := &Loop{
		Subscriptions: []Subscription{{
			Name:    "script",
			Sources: pipeline.ParseSources([]string{"js/*.js"}),
			Run: func(ctx context.Context, changed string) (*pipeline.Result, error) {
				return &pipeline.Result{Task: "script"}, errors.New("boom")
			},
		}},
		Reloader: rel,
	}
	l.Trigger(context.Background(), "js/broken.js")
	if rel.count() != 0 {
		t.Error("a rebuild that wrote nothing must not reload")
	}
}

func TestTriggerSerializesPerSubscription(t *testing.T) {
	var inside, overlap int32
	l := &Loop{
		Subscriptions: []Subscription{{
			Name:    "style",
			Sources: pipeline.ParseSources([]string{"scss/*.scss"}),
			Run: func(ctx context.Context, changed string) (*pipeline.Result, error) {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil, nil
			},
		}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Trigger(context.Background(), "scss/app.scss")
		}()
	}
	wg.Wait()
	if overlap != 0 {
		t.Error("rebuilds of one subscription overlapped")
	}
}

func TestRunWatchesAndStops(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "scss"), 0755); err != nil {
		t.Fatal(err)
	}
	rel := newFakeReloader(root)
	var runs int32
	l := &Loop{
		Root:          root,
		Subscriptions: []Subscription{copySubscription(root, "style", "scss/**/*.scss", &runs)},
		Reloader:      rel,
		Debounce:      50 * time.Millisecond,
	}
	if l.State() != Idle {
		t.Fatalf("initial state = %v", l.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for l.State() != Watching {
		if time.Now().After(deadline) {
			t.Fatal("loop never started watching")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Rapid writes to one file coalesce into a single rebuild.
	src := filepath.Join(root, "scss", "app.scss")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(src, []byte("a{}"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	rel.wait(t)
	if !rel.existed[0] {
		t.Error("reload arrived before the rebuilt output was written")
	}

	// A directory created during the session is watched too.
	if err := os.MkdirAll(filepath.Join(root, "scss", "partials"), 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "scss", "partials", "nav.scss"), []byte("b{}"), 0644); err != nil {
		t.Fatal(err)
	}
	rel.wait(t)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if l.State() != Stopped {
		t.Errorf("state = %v, want stopped", l.State())
	}
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Errorf("runs = %d, want 2 (one per debounced change)", got)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var mu sync.Mutex
	fired := map[string]int{}
	d := newDebouncer(30*time.Millisecond, func(p string) {
		mu.Lock()
		fired[p]++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		d.add("a")
		time.Sleep(5 * time.Millisecond)
	}
	d.add("b")
	if d.pendingCount() != 2 {
		t.Errorf("pending = %d", d.pendingCount())
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired["a"] != 1 || fired["b"] != 1 {
		t.Errorf("fired = %v", fired)
	}
}

func TestDebouncerReplacesFiredTimer(t *testing.T) {
	var fired int32
	d := newDebouncer(5*time.Millisecond, func(string) { atomic.AddInt32(&fired, 1) })
	d.add("a")

	// Hold the lock until the first timer has fired and its callback is
	// blocked, then add the same path again.
	d.mu.Lock()
	time.Sleep(40 * time.Millisecond)
	d.addLocked("a")
	d.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired = %d, want 1", got)
	}
	if d.pendingCount() != 0 {
		t.Errorf("pending = %d", d.pendingCount())
	}
}

func TestDebouncerStop(t *testing.T) {
	var fired int32
	d := newDebouncer(20*time.Millisecond, func(string) { atomic.AddInt32(&fired, 1) })
	d.add("a")
	d.stop()
	d.add("b")
	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("stopped debouncer fired")
	}
}

func TestStateString(t *testing.T) {
	if Rebuilding.String() != "rebuilding" || State(9).String() != "State(9)" {
		t.Error("unexpected State strings")
	}
}
