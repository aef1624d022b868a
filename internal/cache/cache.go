// Package cache records which source files each task has already processed.
//
// Entries are keyed by (task, source path) and hold the sha256 signature of
// the file content seen at the last successful transform. A file must be
// processed when no entry exists for it or when its signature changed.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// Store is the contract shared by every task: consult before transforming,
// record after a successful write.
type Store interface {
	// ShouldProcess reports whether path must be (re)processed by task.
	// Unknown files are always processed.
	ShouldProcess(task, path, signature string) bool

	// Record stores the signature of a successfully processed file.
	Record(task, path, signature string)

	// Forget drops a single entry so the next run reprocesses the file.
	Forget(task, path string)

	// ForgetTask drops every entry of task.
	ForgetTask(task string)

	// Reset drops every entry.
	Reset()

	// Len returns the number of entries across all tasks.
	Len() int
}

// Memory is an in-memory Store. It is safe for concurrent use; tasks are
// partitioned by name so concurrent tasks never touch the same keys.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]string // task -> path -> signature
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string]string)}
}

func (m *Memory) ShouldProcess(task, path, signature string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.entries[task][path]
	return !ok || stored != signature
}

func (m *Memory) Record(task, path, signature string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byPath, ok := m.entries[task]
	if !ok {
		byPath = make(map[string]string)
		m.entries[task] = byPath
	}
	byPath[path] = signature
}

func (m *Memory) Forget(task, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries[task], path)
}

func (m *Memory) ForgetTask(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, task)
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]map[string]string)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, byPath := range m.entries {
		n += len(byPath)
	}
	return n
}

// Tasks returns the task names that have at least one entry, sorted.
func (m *Memory) Tasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for name, byPath := range m.entries {
		if len(byPath) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// snapshot copies the entries for serialization.
func (m *Memory) snapshot() map[string]map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]string, len(m.entries))
	for task, byPath := range m.entries {
		if len(byPath) == 0 {
			continue
		}
		cp := make(map[string]string, len(byPath))
		for p, sig := range byPath {
			cp[p] = sig
		}
		out[task] = cp
	}
	return out
}

// Signature computes the SHA256 hash of content and returns the hex string.
func Signature(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
