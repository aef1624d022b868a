package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// stateVersion is the only state file layout understood by File.
const stateVersion = 1

// state is the on-disk layout of a persistent cache.
type state struct {
	Version int                          `yaml:"version"`
	Tasks   map[string]map[string]string `yaml:"tasks,omitempty"`
}

// File is a Store persisted to a YAML state file between runs.
// Entries live in memory and are written back by Save.
type File struct {
	*Memory
	path string
}

// Open loads the state file at path. A missing file yields an empty store.
func Open(path string) (*File, error) {
	f := &File{Memory: NewMemory(), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache state %s: %w", path, err)
	}

	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing cache state %s: %w", path, err)
	}
	if errs := validateState(&st); len(errs) > 0 {
		return nil, &StateError{Path: path, Errors: errs}
	}

	for task, byPath := range st.Tasks {
		for p, sig := range byPath {
			f.Record(task, p, sig)
		}
	}
	return f, nil
}

// Path returns the state file path.
func (f *File) Path() string {
	return f.path
}

// Save writes the state file atomically using a temp file and rename.
func (f *File) Save() error {
	st := state{Version: stateVersion, Tasks: f.snapshot()}
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("marshaling cache state: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating cache state directory %s: %w", dir, err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp cache state %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp cache state to %s: %w", f.path, err)
	}

	return nil
}

// StateError holds validation failures for a persisted cache.
type StateError struct {
	Path   string
	Errors []string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cache state %s is invalid:\n  - %s", e.Path, strings.Join(e.Errors, "\n  - "))
}

func validateState(st *state) []string {
	var errs []string

	if st.Version != stateVersion {
		errs = append(errs, fmt.Sprintf("unsupported version %d — only version %d is supported", st.Version, stateVersion))
	}
	for task, byPath := range st.Tasks {
		if task == "" {
			errs = append(errs, "entry with empty task name")
		}
		for p, sig := range byPath {
			if len(sig) != 64 {
				errs = append(errs, fmt.Sprintf("task '%s': file '%s' has a malformed signature", task, p))
			}
		}
	}

	return errs
}
