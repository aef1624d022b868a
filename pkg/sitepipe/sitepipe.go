// Package sitepipe provides the public Go library API for sitepipe.
//
// sitepipe builds a static site from Handlebars pages, stylesheets, scripts,
// images and vendored libraries, and serves it with live reload while
// sources change. This package assembles the configured tasks into a graph
// and runs them by name.
//
// # Basic Usage
//
//	client, err := sitepipe.New(sitepipe.Options{
//	    ConfigPath: "sitepipe.yaml",
//	    Logger:     logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// One-shot build: clean, then every transform in parallel.
//	err = client.Run(ctx, "build")
//
//	// Build, then serve with live reload until ctx is cancelled.
//	err = client.Run(ctx, "default")
package sitepipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tdewolff/minify/v2"

	"github.com/bianoble/sitepipe/internal/cache"
	"github.com/bianoble/sitepipe/internal/config"
	"github.com/bianoble/sitepipe/internal/graph"
	"github.com/bianoble/sitepipe/internal/pipeline"
	"github.com/bianoble/sitepipe/internal/sandbox"
	"github.com/bianoble/sitepipe/internal/transform"
	"github.com/bianoble/sitepipe/internal/vendor"
)

// Options configures a sitepipe client.
type Options struct {
	// ProjectRoot is the directory all configured paths are relative to.
	// If empty, defaults to the directory containing ConfigPath.
	ProjectRoot string

	// ConfigPath is the path to the config file. Default: "sitepipe.yaml".
	ConfigPath string

	// UserConfigPath overrides the user-level config location.
	UserConfigPath string

	// NoInherit skips the user-level config.
	NoInherit bool

	// Environ is the environment snapshot (KEY=VALUE entries) used for
	// SITEPIPE_* overrides and the template overlay. Nil means os.Environ().
	Environ []string

	// Addr overrides serve.addr when non-empty.
	Addr string

	Logger *slog.Logger
}

// Client is the main entry point for the sitepipe library. Build it with
// New and release it with Close.
type Client struct {
	cfg     *config.Config
	layers  []config.ConfigLayerInfo
	root    *sandbox.Root
	overlay config.Overlay
	logger  *slog.Logger

	store   cache.Store
	persist *cache.File
	mapping vendor.Mapping

	helpers  *transform.Helpers
	sass     *transform.Sass
	markup   *transform.Markup
	minifier *minify.M

	tasks   map[string]*pipeline.Task
	runners map[string]runner
	locks   map[string]*sync.Mutex
	graph   *graph.Graph

	mu     sync.Mutex
	report *Report
}

// New loads the layered configuration, snapshots the environment, opens the
// cache and builds the task graph. Any failure here is a setup error: no
// task has run yet.
func New(opts Options) (*Client, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultConfigFile()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	rootDir := opts.ProjectRoot
	if rootDir == "" {
		var err error
		rootDir, err = config.ProjectRoot(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	lookup := config.LookupIn(environ)
	cfg, layers, err := config.LoadLayered(config.DiscoverOptions{
		ProjectPath:    opts.ConfigPath,
		UserConfigPath: opts.UserConfigPath,
		NoInherit:      opts.NoInherit || config.EnvNoInherit(lookup),
		LookupEnv:      lookup,
	})
	if err != nil {
		return nil, err
	}
	if opts.Addr != "" {
		cfg.Serve.Addr = opts.Addr
	}

	root, err := sandbox.New(rootDir)
	if err != nil {
		return nil, fmt.Errorf("opening project root: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		layers: layers,
		root:   root,
		logger: opts.Logger,
		report: newReport(),
	}
	if err := c.setup(environ); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) setup(environ []string) error {
	cfg := c.cfg

	var dotenv map[string]string
	if cfg.DotEnv != "" {
		var err error
		dotenv, err = config.ReadDotEnv(c.abs(cfg.DotEnv))
		if err != nil {
			return err
		}
	}
	c.overlay = config.NewOverlay(cfg.EnvPrefix, environ, dotenv)

	if cfg.Cache.File != "" {
		f, err := cache.Open(c.abs(cfg.Cache.File))
		if err != nil {
			return fmt.Errorf("initializing cache: %w", err)
		}
		c.store, c.persist = f, f
	} else {
		c.store = cache.NewMemory()
	}

	mapping := vendor.Merge(vendor.Mapping(cfg.Vendor.Packages))
	if cfg.Vendor.Manifest != "" {
		manifest, err := vendor.LoadManifest(c.abs(cfg.Vendor.Manifest))
		if err != nil {
			return err
		}
		mapping = vendor.Merge(manifest, mapping)
	}
	c.mapping = mapping

	helpers, err := transform.NewHelpers(cfg.Markup.Helpers)
	if err != nil {
		return err
	}
	c.helpers = helpers

	engines, err := transform.ParseEngines(cfg.Style.Engines)
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}
	target, err := transform.ParseTarget(cfg.Script.Target)
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}

	if cfg.Style.SassBinary != "" {
		sass, err := transform.StartSass(cfg.Style.SassBinary, c.root.Dir(), pipeline.ParseSources(cfg.Style.Src).Bases(), c.logger)
		if err != nil {
			return err
		}
		c.sass = sass
	}

	c.buildTasks(engines, target)
	c.runners["vendor"] = &vendor.Resolver{
		Root:    c.root,
		Store:   cfg.Vendor.Store,
		Staging: cfg.Vendor.Staging,
		Mapping: mapping,
		Files:   cfg.Vendor.Files,
		Cache:   c.store,
		Logger:  c.logger,
	}
	c.locks["vendor"] = &sync.Mutex{}

	g, err := graph.New(c.defs(), c.logger)
	if err != nil {
		return fmt.Errorf("building task graph: %w", err)
	}
	c.graph = g
	return nil
}

// abs resolves a configured path against the project root.
func (c *Client) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root.Dir(), filepath.FromSlash(p))
}

// Run executes the named task or alias. It returns setup, destination and
// graph errors as-is. One-shot tasks that finished with per-file failures
// return a *FailedError; serve and watch sessions only log them.
func (c *Client) Run(ctx context.Context, name string) error {
	c.mu.Lock()
	c.report = newReport()
	c.mu.Unlock()

	if err := c.graph.Run(ctx, name); err != nil {
		return err
	}

	canonical, _ := c.graph.Resolve(name)
	if sessionTasks[canonical] {
		return nil
	}
	if failed := c.Report().Failed(); len(failed) > 0 {
		return &FailedError{Task: canonical, Failed: failed}
	}
	return nil
}

// Report returns the results of the current or most recent Run.
func (c *Client) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Tasks returns the registered task definitions in registration order.
func (c *Client) Tasks() []graph.Def {
	return c.graph.Defs()
}

// Resolve maps a task name or alias to its canonical name.
func (c *Client) Resolve(name string) (string, bool) {
	return c.graph.Resolve(name)
}

// Refs returns the tasks the named task refers to directly.
func (c *Client) Refs(name string) []string {
	return c.graph.Refs(name)
}

// Layers reports which config files were consulted.
func (c *Client) Layers() []config.ConfigLayerInfo {
	return c.layers
}

// Overlay returns the environment snapshot exposed to templates.
func (c *Client) Overlay() config.Overlay {
	return c.overlay
}

// Dependencies returns the vendor dependency ids and their staging
// subdirectories.
func (c *Client) Dependencies() vendor.Mapping {
	return c.mapping
}

// CacheEntries returns the number of cached signatures.
func (c *Client) CacheEntries() int {
	return c.store.Len()
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// ProjectRoot returns the resolved project directory.
func (c *Client) ProjectRoot() string {
	return c.root.Dir()
}

// Close stops the Sass process and the helper runtime and persists the
// cache when it is file-backed.
func (c *Client) Close() error {
	var errs []error
	if c.helpers != nil {
		c.helpers.Close()
	}
	if c.sass != nil {
		if err := c.sass.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stopping sass: %w", err))
		}
	}
	if c.persist != nil {
		if err := c.persist.Save(); err != nil {
			errs = append(errs, fmt.Errorf("saving cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
