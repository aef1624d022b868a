package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Parse reads a sitepipe.yaml file without applying defaults or validation.
// Unknown keys are rejected so typos surface before any task runs.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return &cfg, nil
}

// Load reads a sitepipe.yaml file, merges it over the built-in defaults and
// validates the result.
func Load(path string) (*Config, error) {
	fileCfg, err := Parse(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Merge(Defaults(), fileCfg)
	if err != nil {
		return nil, fmt.Errorf("merging config %s: %w", path, err)
	}
	implicitVersion(cfg)

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return cfg, nil
}

// implicitVersion treats a config that never declares a version as version 1.
func implicitVersion(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

var (
	enginePattern = regexp.MustCompile(`^(chrome|edge|firefox|ie|ios|node|opera|safari)[0-9]+(\.[0-9]+)*$`)
	helperPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// KnownTargets lists the script targets accepted in script.target.
var KnownTargets = []string{
	"es5", "es2015", "es2016", "es2017", "es2018", "es2019", "es2020",
	"es2021", "es2022", "es2023", "es2024", "esnext",
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d — only version 1 is supported", cfg.Version))
	}

	switch {
	case cfg.Dest == "":
		errs = append(errs, "'dest' is required")
	case filepath.IsAbs(cfg.Dest):
		errs = append(errs, fmt.Sprintf("dest '%s' must be relative to the project root", cfg.Dest))
	default:
		clean := filepath.Clean(cfg.Dest)
		if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			errs = append(errs, fmt.Sprintf("dest '%s' must name a directory inside the project root", cfg.Dest))
		}
	}

	errs = append(errs, validateClass("markup", cfg.Markup.Src, cfg.Markup.Dest)...)
	errs = append(errs, validateClass("style", cfg.Style.Src, cfg.Style.Dest)...)
	errs = append(errs, validateClass("script", cfg.Script.Src, cfg.Script.Dest)...)
	errs = append(errs, validateClass("image", cfg.Image.Src, cfg.Image.Dest)...)
	errs = append(errs, validateClass("lib", cfg.Lib.Src, cfg.Lib.Dest)...)

	for _, dir := range cfg.Markup.Partials {
		if !isRelative(dir) {
			errs = append(errs, fmt.Sprintf("markup: partials directory '%s' must be relative to the project root", dir))
		}
	}
	for _, name := range sortedKeys(cfg.Markup.Helpers) {
		if !helperPattern.MatchString(name) {
			errs = append(errs, fmt.Sprintf("markup: helper name '%s' must be an identifier", name))
		}
		if strings.TrimSpace(cfg.Markup.Helpers[name]) == "" {
			errs = append(errs, fmt.Sprintf("markup: helper '%s' has an empty body", name))
		}
	}

	for _, eng := range cfg.Style.Engines {
		if !enginePattern.MatchString(eng) {
			errs = append(errs, fmt.Sprintf("style: invalid engine '%s' — use a name and version such as 'chrome58' or 'safari11'", eng))
		}
	}

	if !knownTarget(cfg.Script.Target) {
		errs = append(errs, fmt.Sprintf("script: unknown target '%s' — must be one of: %s", cfg.Script.Target, strings.Join(KnownTargets, ", ")))
	}

	if cfg.Image.JPEGQuality < 1 || cfg.Image.JPEGQuality > 100 {
		errs = append(errs, fmt.Sprintf("image: jpeg_quality %d out of range — must be between 1 and 100", cfg.Image.JPEGQuality))
	}

	if len(cfg.Vendor.Packages) > 0 || cfg.Vendor.Manifest != "" {
		if !isRelative(cfg.Vendor.Store) {
			errs = append(errs, fmt.Sprintf("vendor: store '%s' must be a relative directory", cfg.Vendor.Store))
		}
		if !isRelative(cfg.Vendor.Staging) {
			errs = append(errs, fmt.Sprintf("vendor: staging '%s' must be a relative directory", cfg.Vendor.Staging))
		}
	}
	for _, id := range sortedKeys(cfg.Vendor.Packages) {
		if sub := cfg.Vendor.Packages[id]; sub != "" && !isRelative(sub) {
			errs = append(errs, fmt.Sprintf("vendor: package '%s' maps to '%s' which is not a relative directory", id, sub))
		}
	}
	for _, id := range sortedKeys(cfg.Vendor.Files) {
		if _, ok := cfg.Vendor.Packages[id]; !ok && cfg.Vendor.Manifest == "" {
			errs = append(errs, fmt.Sprintf("vendor: files declared for '%s' which is not a listed package", id))
		}
		for _, pattern := range cfg.Vendor.Files[id] {
			if !doublestar.ValidatePattern(pattern) {
				errs = append(errs, fmt.Sprintf("vendor: invalid file pattern '%s' for package '%s'", pattern, id))
			}
		}
	}

	if cfg.Serve.Addr == "" {
		errs = append(errs, "serve: 'addr' is required")
	}
	if cfg.Serve.Debounce <= 0 {
		errs = append(errs, "serve: 'debounce' must be a positive duration")
	}

	return errs
}

func validateClass(class string, src []string, dest string) []string {
	var errs []string

	if len(src) == 0 {
		errs = append(errs, fmt.Sprintf("%s: at least one 'src' pattern is required", class))
	}
	includes := 0
	for _, pattern := range src {
		p := strings.TrimPrefix(pattern, "!")
		if p == pattern {
			includes++
		}
		if p == "" || !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Sprintf("%s: invalid pattern '%s'", class, pattern))
		}
		if filepath.IsAbs(p) || strings.HasPrefix(p, "../") {
			errs = append(errs, fmt.Sprintf("%s: pattern '%s' must be relative to the project root", class, pattern))
		}
	}
	if len(src) > 0 && includes == 0 {
		errs = append(errs, fmt.Sprintf("%s: 'src' contains only exclusions", class))
	}

	if dest != "" && !isRelative(dest) {
		errs = append(errs, fmt.Sprintf("%s: dest '%s' must be a relative directory", class, dest))
	}

	return errs
}

func isRelative(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

func knownTarget(t string) bool {
	for _, k := range KnownTargets {
		if t == k {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
