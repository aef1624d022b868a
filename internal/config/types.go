package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the sitepipe.yaml configuration file.
type Config struct {
	Version   int    `yaml:"version"`
	Dest      string `yaml:"dest"`
	EnvPrefix string `yaml:"env_prefix,omitempty"`
	DotEnv    string `yaml:"dotenv,omitempty"`

	Cache  Cache  `yaml:"cache,omitempty"`
	Markup Markup `yaml:"markup"`
	Style  Style  `yaml:"style"`
	Script Script `yaml:"script"`
	Image  Image  `yaml:"image"`
	Lib    Lib    `yaml:"lib"`
	Vendor Vendor `yaml:"vendor,omitempty"`
	Serve  Serve  `yaml:"serve,omitempty"`
}

// Cache selects the cache store. An empty File keeps entries in memory only.
type Cache struct {
	File string `yaml:"file,omitempty"`
}

// Markup configures the Handlebars task.
type Markup struct {
	Src      []string          `yaml:"src"`
	Partials []string          `yaml:"partials,omitempty"`
	Dest     string            `yaml:"dest,omitempty"`
	Data     map[string]any    `yaml:"data,omitempty"`
	Helpers  map[string]string `yaml:"helpers,omitempty"` // name -> Lua function body over `s`
}

// Style configures the stylesheet task.
type Style struct {
	Src        []string `yaml:"src"`
	Dest       string   `yaml:"dest,omitempty"`
	SassBinary string   `yaml:"sass_binary,omitempty"`
	Engines    []string `yaml:"engines,omitempty"` // e.g. "chrome58", "safari11"
}

// Script configures the script task.
type Script struct {
	Src    []string `yaml:"src"`
	Dest   string   `yaml:"dest,omitempty"`
	Target string   `yaml:"target,omitempty"` // e.g. "es2015"
}

// Image configures the image task.
type Image struct {
	Src         []string `yaml:"src"`
	Dest        string   `yaml:"dest,omitempty"`
	JPEGQuality int      `yaml:"jpeg_quality,omitempty"`
}

// Lib configures the library copy task.
type Lib struct {
	Src  []string `yaml:"src"`
	Dest string   `yaml:"dest,omitempty"`
}

// Vendor configures vendor resolution from the dependency store.
type Vendor struct {
	Store    string              `yaml:"store,omitempty"`
	Staging  string              `yaml:"staging,omitempty"`
	Manifest string              `yaml:"manifest,omitempty"`
	Packages map[string]string   `yaml:"packages,omitempty"` // dependency id -> staging subdirectory
	Files    map[string][]string `yaml:"files,omitempty"`    // dependency id -> globs inside the package
}

// Serve configures the development server and watch loop.
type Serve struct {
	Addr     string   `yaml:"addr,omitempty"`
	Debounce Duration `yaml:"debounce,omitempty"`
	Gzip     *bool    `yaml:"gzip,omitempty"`
}

// GzipEnabled reports whether responses should be compressed. Defaults to true.
func (s Serve) GzipEnabled() bool {
	return s.Gzip == nil || *s.Gzip
}

// Duration is a time.Duration that unmarshals from strings like "150ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
