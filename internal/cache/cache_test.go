package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestShouldProcessUnknownFile(t *testing.T) {
	m := NewMemory()
	if !m.ShouldProcess("style", "scss/app.scss", Signature([]byte("a"))) {
		t.Fatal("unknown file should be processed")
	}
}

func TestRecordThenSkip(t *testing.T) {
	m := NewMemory()
	sig := Signature([]byte("body { color: red }"))

	m.Record("style", "scss/app.scss", sig)

	if m.ShouldProcess("style", "scss/app.scss", sig) {
		t.Error("unchanged file should be skipped")
	}
	if !m.ShouldProcess("style", "scss/app.scss", Signature([]byte("body { color: blue }"))) {
		t.Error("changed file should be processed")
	}
}

func TestTasksArePartitioned(t *testing.T) {
	m := NewMemory()
	sig := Signature([]byte("x"))
	m.Record("script", "shared/x", sig)

	if !m.ShouldProcess("style", "shared/x", sig) {
		t.Error("an entry for one task must not satisfy another task")
	}
}

func TestForgetAndReset(t *testing.T) {
	m := NewMemory()
	sig := Signature([]byte("x"))
	m.Record("markup", "a.handlebars", sig)
	m.Record("markup", "b.handlebars", sig)
	m.Record("image", "c.png", sig)

	m.Forget("markup", "a.handlebars")
	if !m.ShouldProcess("markup", "a.handlebars", sig) {
		t.Error("forgotten entry should be processed again")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}

	m.ForgetTask("markup")
	if !m.ShouldProcess("markup", "b.handlebars", sig) {
		t.Error("entries of a forgotten task should be processed again")
	}
	if m.ShouldProcess("image", "c.png", sig) {
		t.Error("ForgetTask dropped another task's entry")
	}

	m.Reset()
	if m.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", m.Len())
	}
	if len(m.Tasks()) != 0 {
		t.Errorf("Tasks after Reset = %v", m.Tasks())
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(task int) {
			defer wg.Done()
			name := fmt.Sprintf("task-%d", task)
			for j := 0; j < 100; j++ {
				p := fmt.Sprintf("file-%d", j)
				sig := Signature([]byte(p))
				if m.ShouldProcess(name, p, sig) {
					m.Record(name, p, sig)
				}
			}
		}(i)
	}
	wg.Wait()

	if m.Len() != 800 {
		t.Errorf("Len = %d, want 800", m.Len())
	}
}

func TestSignature(t *testing.T) {
	got := Signature([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Errorf("Signature = %s, want %s", got, want)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cache.yaml")

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Len() != 0 {
		t.Fatalf("new store Len = %d", f.Len())
	}

	sig := Signature([]byte("content"))
	f.Record("script", "js/app.js", sig)
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ShouldProcess("script", "js/app.js", sig) {
		t.Error("persisted entry should survive reopen")
	}
	if reopened.Path() != path {
		t.Errorf("Path = %q", reopened.Path())
	}
}

func TestFileSaveAfterReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Record("image", "a.png", Signature([]byte("a")))
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}

	f.Reset()
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 0 {
		t.Errorf("Len = %d, want 0 after reset", reopened.Len())
	}
}

func TestOpenInvalidState(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "version: [", "parsing cache state"},
		{"bad version", "version: 9\n", "unsupported version"},
		{"bad signature", "version: 1\ntasks:\n  style:\n    a.scss: abc\n", "malformed signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Open(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestStoreInterface(t *testing.T) {
	var _ Store = NewMemory()
	var _ Store = &File{Memory: NewMemory()}
}
