package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Overlay is a read-only snapshot of the environment entries whose names
// carry the application prefix. It is built once at startup and handed to
// the markup stage; nothing reads the process environment after that.
type Overlay struct {
	values map[string]string
}

// NewOverlay filters environ (KEY=VALUE entries, as from os.Environ) and the
// entries read from a .env file by prefix. Process entries win over the file.
// An empty prefix yields an empty overlay rather than exposing everything.
func NewOverlay(prefix string, environ []string, dotenv map[string]string) Overlay {
	values := make(map[string]string)
	if prefix == "" {
		return Overlay{values: values}
	}

	for k, v := range dotenv {
		if strings.HasPrefix(k, prefix) {
			values[k] = v
		}
	}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		values[k] = v
	}
	return Overlay{values: values}
}

// ReadDotEnv reads a .env file. A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dotenv %s: %w", path, err)
	}
	return values, nil
}

// Get returns the value of a single overlay entry.
func (o Overlay) Get(key string) (string, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Map returns a copy of the overlay entries.
func (o Overlay) Map() map[string]string {
	out := make(map[string]string, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Keys returns the overlay entry names in sorted order.
func (o Overlay) Keys() []string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyEnv applies SITEPIPE_* overrides on top of the merged file config.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("SITEPIPE_DEST"); ok && v != "" {
		cfg.Dest = v
	}
	if v, ok := lookup("SITEPIPE_ADDR"); ok && v != "" {
		cfg.Serve.Addr = v
	}
	if v, ok := lookup("SITEPIPE_CACHE_FILE"); ok {
		cfg.Cache.File = v
	}
	if v, ok := lookup("SITEPIPE_DEBOUNCE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SITEPIPE_DEBOUNCE: %w", err)
		}
		cfg.Serve.Debounce = Duration(d)
	}
	if v, ok := lookup("SITEPIPE_GZIP"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SITEPIPE_GZIP: %w", err)
		}
		cfg.Serve.Gzip = &b
	}
	return nil
}

// LookupIn adapts a KEY=VALUE slice to the lookup signature used by ApplyEnv.
func LookupIn(environ []string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		for i := len(environ) - 1; i >= 0; i-- {
			k, v, ok := strings.Cut(environ[i], "=")
			if ok && k == key {
				return v, true
			}
		}
		return "", false
	}
}
