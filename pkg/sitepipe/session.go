package sitepipe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bianoble/sitepipe/internal/devserver"
	"github.com/bianoble/sitepipe/internal/pipeline"
	"github.com/bianoble/sitepipe/internal/watch"
)

// watched lists the transforms a watch session rebuilds.
var watched = []string{"markup", "style", "script", "image"}

// Watcher returns a watch loop over the markup, style, script and image
// sources that notifies r after each rebuild. r may be nil.
func (c *Client) Watcher(r watch.Reloader) *watch.Loop {
	return &watch.Loop{
		Root:          c.root.Dir(),
		Subscriptions: c.subscriptions(),
		Reloader:      r,
		Debounce:      time.Duration(c.cfg.Serve.Debounce),
		Logger:        c.logger,
	}
}

// subscriptions watch more than each task compiles: markup partials and
// Sass partials are not outputs themselves, so a change to one forgets the
// task's cache entries and every page or stylesheet is rebuilt.
func (c *Client) subscriptions() []watch.Subscription {
	subs := make([]watch.Subscription, 0, len(watched))
	for _, name := range watched {
		task := c.tasks[name]
		sources := pipeline.SourceSet{Include: append([]string(nil), task.Sources.Include...)}
		if name == "markup" {
			for _, dir := range c.cfg.Markup.Partials {
				sources.Include = append(sources.Include, pipeline.CleanPattern(strings.TrimSuffix(dir, "/")+"/**/*"))
			}
		}
		subs = append(subs, watch.Subscription{
			Name:    name,
			Sources: sources,
			Run: func(ctx context.Context, changed string) (*pipeline.Result, error) {
				if !task.Matches(changed) {
					c.store.ForgetTask(name)
				}
				return c.runTask(ctx, name)
			},
		})
	}
	return subs
}

// serve runs the dev server and the watch loop until ctx is cancelled.
func (c *Client) serve(ctx context.Context) error {
	if err := c.root.MkdirAll(c.cfg.Dest, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.cfg.Dest, err)
	}
	dir, err := c.root.Resolve(c.cfg.Dest)
	if err != nil {
		return err
	}

	srv := devserver.New(devserver.Config{
		Dir:    dir,
		Prefix: c.cfg.Dest,
		Addr:   c.cfg.Serve.Addr,
		Gzip:   c.cfg.Serve.GzipEnabled(),
	}, c.logger)
	loop := c.Watcher(srv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })
	return g.Wait()
}

func (c *Client) watch(ctx context.Context) error {
	return c.Watcher(nil).Run(ctx)
}
