package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher watches directory trees with fsnotify. fsnotify is not
// recursive, so every directory is added individually and directories
// created later are added as they appear.
type dirWatcher struct {
	fsw   *fsnotify.Watcher
	paths map[string]bool
}

func newDirWatcher() (*dirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &dirWatcher{fsw: fsw, paths: make(map[string]bool)}, nil
}

// addRecursive watches dir and all directories below it. Hidden
// directories are skipped. A missing dir is not an error.
func (w *dirWatcher) addRecursive(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if w.paths[p] {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return err
		}
		w.paths[p] = true
		return nil
	})
}

func (w *dirWatcher) watched() int {
	return len(w.paths)
}

func (w *dirWatcher) close() error {
	return w.fsw.Close()
}
