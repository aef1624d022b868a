package sitepipe

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/bianoble/sitepipe/internal/graph"
	"github.com/bianoble/sitepipe/internal/pipeline"
	"github.com/bianoble/sitepipe/internal/transform"
)

// sessionTasks never finish on their own. Per-file failures during a
// session are logged and do not fail the run.
var sessionTasks = map[string]bool{
	"serve":   true,
	"watch":   true,
	"default": true,
}

// stylePartials keeps Sass partials out of the style outputs; they are
// compiled through the files that import them.
const stylePartials = "!**/_*.{scss,sass}"

// runner is one runnable transform: a pipeline task or the vendor resolver.
type runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// markupRunner rereads partials before every run so edits are picked up.
type markupRunner struct {
	task   *pipeline.Task
	markup *transform.Markup
}

func (r markupRunner) Run(ctx context.Context) (*pipeline.Result, error) {
	if err := r.markup.LoadPartials(); err != nil {
		return nil, fmt.Errorf("loading partials: %w", err)
	}
	return r.task.Run(ctx)
}

func (c *Client) buildTasks(engines []api.Engine, target api.Target) {
	cfg := c.cfg
	c.minifier = transform.NewMinifier()
	c.markup = transform.NewMarkup(transform.MarkupOptions{
		Root:        c.root.Dir(),
		PartialDirs: cfg.Markup.Partials,
		Data:        c.templateData(),
		Helpers:     c.helpers,
	})

	style := &transform.Style{Engines: engines, Preprocessed: c.sass != nil}
	styleStages := []pipeline.Stage{style.Compile, pipeline.Rename(".css"), pipeline.Suffix(".min"), pipeline.LinkSourceMap(pipeline.MapCSS)}
	if c.sass != nil {
		styleStages = append([]pipeline.Stage{c.sass.Compile}, styleStages...)
	}
	script := &transform.Script{Target: target}
	image := &transform.Image{JPEGQuality: cfg.Image.JPEGQuality, Minifier: c.minifier}

	c.tasks = map[string]*pipeline.Task{
		"markup": c.newTask("markup", cfg.Markup.Src, cfg.Markup.Dest,
			c.markup.Render, transform.MinifyHTML(c.minifier), pipeline.Rename(".html")),
		"style": c.newTask("style", append(append([]string(nil), cfg.Style.Src...), stylePartials), cfg.Style.Dest,
			styleStages...),
		"script": c.newTask("script", cfg.Script.Src, cfg.Script.Dest,
			script.Compile, pipeline.Suffix(".min"), pipeline.LinkSourceMap(pipeline.MapJS)),
		"image": c.newTask("image", cfg.Image.Src, cfg.Image.Dest, image.Optimize),
		"lib":   c.newTask("lib", cfg.Lib.Src, cfg.Lib.Dest),
	}

	c.runners = make(map[string]runner, len(c.tasks)+1)
	c.locks = make(map[string]*sync.Mutex, len(c.tasks)+1)
	for name, t := range c.tasks {
		c.runners[name] = t
		c.locks[name] = &sync.Mutex{}
	}
	c.runners["markup"] = markupRunner{task: c.tasks["markup"], markup: c.markup}
}

func (c *Client) newTask(name string, src []string, dest string, stages ...pipeline.Stage) *pipeline.Task {
	return &pipeline.Task{
		Name:    name,
		Root:    c.root,
		Sources: pipeline.ParseSources(src),
		Dest:    path.Join(c.cfg.Dest, dest),
		Stages:  stages,
		Cache:   c.store,
		Logger:  c.logger,
	}
}

// templateData is the render context of every page: the output folders,
// the configured data and the environment overlay under "env".
func (c *Client) templateData() map[string]any {
	folders := map[string]any{
		"styleFolder":  c.cfg.Style.Dest,
		"scriptFolder": c.cfg.Script.Dest,
		"imageFolder":  c.cfg.Image.Dest,
	}
	env := make(map[string]any)
	for k, v := range c.overlay.Map() {
		env[k] = v
	}
	return transform.MergeData(folders, c.cfg.Markup.Data, map[string]any{"env": env})
}

func (c *Client) defs() []graph.Def {
	return []graph.Def{
		{Name: "clean", Description: "Remove the build output and reset the cache", Node: graph.Func(c.clean)},
		{Name: "markup", Aliases: []string{"handlebars"}, Description: "Render Handlebars pages to minified HTML", Node: graph.Func(c.action("markup"))},
		{Name: "style", Description: "Compile, prefix and minify stylesheets", Node: graph.Func(c.action("style"))},
		{Name: "script", Description: "Downlevel and minify scripts", Node: graph.Func(c.action("script"))},
		{Name: "image", Aliases: []string{"assets"}, Description: "Optimize images", Node: graph.Func(c.action("image"))},
		{Name: "vendor", Description: "Stage dependency files into the library tree", Node: graph.Func(c.action("vendor"))},
		{Name: "lib", Description: "Stage vendor files, then copy the library tree", Node: graph.Series(
			graph.Ref("vendor"),
			graph.Func(c.action("lib")),
		)},
		{Name: "build", Description: "Clean, then run every transform", Node: graph.Series(
			graph.Ref("clean"),
			graph.Parallel(graph.Ref("markup"), graph.Ref("script"), graph.Ref("style"), graph.Ref("image"), graph.Ref("lib")),
		)},
		{Name: "serve", Description: "Serve the output with live reload while watching sources", Node: graph.Func(c.serve)},
		{Name: "watch", Description: "Rebuild on source changes without serving", Node: graph.Func(c.watch)},
		{Name: "default", Description: "Build, then serve", Node: graph.Series(graph.Ref("build"), graph.Ref("serve"))},
	}
}

func (c *Client) action(name string) graph.Action {
	return func(ctx context.Context) error {
		_, err := c.runTask(ctx, name)
		return err
	}
}

// runTask runs one transform, serialized with other runs of the same
// transform, and records its result in the current report.
func (c *Client) runTask(ctx context.Context, name string) (*pipeline.Result, error) {
	mu := c.locks[name]
	mu.Lock()
	defer mu.Unlock()

	res, err := c.runners[name].Run(ctx)
	if res != nil {
		c.Report().add(res)
		c.logger.Info("task result",
			"task", name,
			"written", len(res.Written),
			"skipped", len(res.Skipped),
			"failed", len(res.Failed),
			"in", humanize.Bytes(uint64(res.BytesIn)),
			"out", humanize.Bytes(uint64(res.BytesOut)),
		)
	}
	return res, err
}

func (c *Client) clean(ctx context.Context) error {
	if err := c.root.RemoveAll(c.cfg.Dest); err != nil {
		return fmt.Errorf("removing %s: %w", c.cfg.Dest, err)
	}
	c.store.Reset()
	c.logger.Info("cleaned", "dir", c.cfg.Dest)
	return nil
}
