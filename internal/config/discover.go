package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const configFileName = "sitepipe.yaml"
const configDirName = "sitepipe"

// ConfigLevel represents the precedence level of a configuration file.
type ConfigLevel string

const (
	LevelUser    ConfigLevel = "user"
	LevelProject ConfigLevel = "project"
)

// ConfigLayerInfo describes a discovered config file and its load status.
type ConfigLayerInfo struct {
	Err    error // non-nil if the file exists but failed to load
	Path   string
	Level  ConfigLevel
	Loaded bool
}

// DiscoverOptions controls how config paths are discovered.
type DiscoverOptions struct {
	// ProjectPath is the project-level config path (required).
	ProjectPath string

	// UserConfigPath overrides the default user config path.
	// Empty means use the OS default. Set to a nonexistent path to skip.
	UserConfigPath string

	// NoInherit skips the user-level layer.
	NoInherit bool

	// LookupEnv resolves environment overrides. Nil disables them.
	LookupEnv func(string) (string, bool)
}

// DiscoverPaths returns the ordered list of config file paths to check,
// from lowest precedence (user) to highest (project).
// Paths are deduplicated by resolved absolute path.
func DiscoverPaths(opts DiscoverOptions) []ConfigLayerInfo {
	var layers []ConfigLayerInfo
	seen := make(map[string]bool)

	addLayer := func(level ConfigLevel, path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		layers = append(layers, ConfigLayerInfo{
			Path:  path,
			Level: level,
		})
	}

	if !opts.NoInherit {
		userPath := opts.UserConfigPath
		if userPath == "" {
			userPath = defaultUserConfigPath()
		}
		addLayer(LevelUser, userPath)
	}

	// Project-level config (always last, highest precedence).
	addLayer(LevelProject, opts.ProjectPath)

	return layers
}

// LoadLayered merges the built-in defaults, an optional user-level config and
// the required project config, then applies environment overrides and
// validates the result. The returned layers report what was loaded.
func LoadLayered(opts DiscoverOptions) (*Config, []ConfigLayerInfo, error) {
	layers := DiscoverPaths(opts)
	configs := []*Config{Defaults()}

	for i := range layers {
		layer := &layers[i]
		cfg, err := Parse(layer.Path)
		if err != nil {
			if layer.Level != LevelProject && errors.Is(err, os.ErrNotExist) {
				continue
			}
			layer.Err = err
			return nil, layers, err
		}
		layer.Loaded = true
		configs = append(configs, cfg)
	}

	merged, err := MergeAll(configs)
	if err != nil {
		return nil, layers, err
	}
	implicitVersion(merged)

	if opts.LookupEnv != nil {
		if err := ApplyEnv(merged, opts.LookupEnv); err != nil {
			return nil, layers, err
		}
	}

	if errs := Validate(merged); len(errs) > 0 {
		return nil, layers, &ValidationError{Errors: errs}
	}

	return merged, layers, nil
}

// defaultUserConfigPath returns the platform-standard user config path.
func defaultUserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, configFileName)
}

// EnvNoInherit returns true if SITEPIPE_NO_INHERIT is set to "1" or "true".
func EnvNoInherit(lookup func(string) (string, bool)) bool {
	v, _ := lookup("SITEPIPE_NO_INHERIT")
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true"
}

// DefaultConfigFile is the project config file name.
func DefaultConfigFile() string {
	return configFileName
}

// ProjectRoot returns the directory containing the config file.
func ProjectRoot(configPath string) (string, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("resolving config path: %w", err)
	}
	return filepath.Dir(abs), nil
}
