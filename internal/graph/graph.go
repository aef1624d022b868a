// Package graph runs named tasks composed in series and in parallel.
//
// A graph is built once from a list of definitions and validated before
// anything runs: names must be unique, compositions non-empty, references
// must name known tasks and must not form a cycle.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Action is the body of a task.
type Action func(ctx context.Context) error

type nodeKind int

const (
	kindFunc nodeKind = iota + 1
	kindRef
	kindSeries
	kindParallel
)

// Node is an action, a reference to a named task, or a composition.
type Node struct {
	kind     nodeKind
	action   Action
	ref      string
	children []Node
}

// Func wraps an action.
func Func(fn Action) Node { return Node{kind: kindFunc, action: fn} }

// Ref refers to another named task (or alias).
func Ref(name string) Node { return Node{kind: kindRef, ref: name} }

// Series runs nodes in order, stopping at the first error.
func Series(nodes ...Node) Node { return Node{kind: kindSeries, children: nodes} }

// Parallel runs nodes concurrently and waits for all of them. Errors are
// joined; one failing child does not cancel the others.
func Parallel(nodes ...Node) Node { return Node{kind: kindParallel, children: nodes} }

// Def is a named task.
type Def struct {
	Name        string
	Aliases     []string
	Description string
	Node        Node
}

// Graph is a validated, immutable set of task definitions.
type Graph struct {
	defs    []Def
	byName  map[string]int
	aliases map[string]string
	logger  *slog.Logger
}

// New validates defs and returns the graph. logger may be nil.
func New(defs []Def, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Graph{
		defs:    append([]Def(nil), defs...),
		byName:  make(map[string]int, len(defs)),
		aliases: make(map[string]string),
		logger:  logger,
	}

	for i, d := range g.defs {
		if d.Name == "" {
			return nil, invalidf("task %d has an empty name", i)
		}
		if g.taken(d.Name) {
			return nil, invalidf("duplicate task name '%s'", d.Name)
		}
		g.byName[d.Name] = i
		for _, a := range d.Aliases {
			if a == "" || g.taken(a) {
				return nil, invalidf("task '%s': alias '%s' is empty or already used", d.Name, a)
			}
			g.aliases[a] = d.Name
		}
	}

	for _, d := range g.defs {
		if err := g.validateNode(d.Name, d.Node); err != nil {
			return nil, err
		}
	}
	if path := g.findCycle(); path != nil {
		return nil, cycleError(path)
	}
	return g, nil
}

func (g *Graph) taken(name string) bool {
	_, isName := g.byName[name]
	_, isAlias := g.aliases[name]
	return isName || isAlias
}

func (g *Graph) validateNode(owner string, n Node) error {
	switch n.kind {
	case kindFunc:
		if n.action == nil {
			return invalidf("task '%s': nil action", owner)
		}
	case kindRef:
		if _, ok := g.Resolve(n.ref); !ok {
			return invalidf("task '%s' references unknown task '%s'", owner, n.ref)
		}
	case kindSeries, kindParallel:
		if len(n.children) == 0 {
			return invalidf("task '%s': empty composition", owner)
		}
		for _, c := range n.children {
			if err := g.validateNode(owner, c); err != nil {
				return err
			}
		}
	default:
		return invalidf("task '%s': zero node", owner)
	}
	return nil
}

// findCycle returns one reference cycle as a list of task names, or nil.
// Tasks are visited in name order so the reported cycle is stable.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.defs))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, ref := range g.Refs(name) {
			switch color[ref] {
			case white:
				if visit(ref) {
					return true
				}
			case gray:
				for i, s := range stack {
					if s == ref {
						cycle = append(append([]string(nil), stack[i:]...), ref)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	names := make([]string, 0, len(g.byName))
	for name := range g.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if color[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}

// Resolve maps a task name or alias to its canonical name.
func (g *Graph) Resolve(name string) (string, bool) {
	if _, ok := g.byName[name]; ok {
		return name, true
	}
	canonical, ok := g.aliases[name]
	return canonical, ok
}

// Defs returns the definitions in declaration order.
func (g *Graph) Defs() []Def {
	return append([]Def(nil), g.defs...)
}

// Refs returns the canonical names a task references directly, sorted and
// de-duplicated. Unknown names return nil.
func (g *Graph) Refs(name string) []string {
	canonical, ok := g.Resolve(name)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var walk func(n Node)
	walk = func(n Node) {
		switch n.kind {
		case kindRef:
			if c, ok := g.Resolve(n.ref); ok {
				seen[c] = true
			}
		case kindSeries, kindParallel:
			for _, c := range n.children {
				walk(c)
			}
		}
	}
	walk(g.defs[g.byName[canonical]].Node)

	refs := make([]string, 0, len(seen))
	for r := range seen {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return refs
}

// Run executes the named task.
func (g *Graph) Run(ctx context.Context, name string) error {
	canonical, ok := g.Resolve(name)
	if !ok {
		return fmt.Errorf("%w '%s'", ErrUnknownTask, name)
	}
	return g.runNamed(ctx, canonical)
}

func (g *Graph) runNamed(ctx context.Context, name string) error {
	start := time.Now()
	g.logger.Info("starting", "task", name)

	err := g.runNode(ctx, g.defs[g.byName[name]].Node)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err == nil {
		g.logger.Info("finished", "task", name, "elapsed", elapsed)
		return nil
	}

	var te *TaskError
	if errors.As(err, &te) {
		g.logger.Info("aborted", "task", name, "elapsed", elapsed)
		return err
	}
	g.logger.Error("task failed", "task", name, "elapsed", elapsed, "err", err)
	return &TaskError{Task: name, Err: err}
}

func (g *Graph) runNode(ctx context.Context, n Node) error {
	switch n.kind {
	case kindFunc:
		if err := ctx.Err(); err != nil {
			return err
		}
		return n.action(ctx)
	case kindRef:
		canonical, _ := g.Resolve(n.ref)
		return g.runNamed(ctx, canonical)
	case kindSeries:
		for _, c := range n.children {
			if err := g.runNode(ctx, c); err != nil {
				return err
			}
		}
		return nil
	case kindParallel:
		var (
			eg   errgroup.Group
			mu   sync.Mutex
			errs []error
		)
		for _, c := range n.children {
			eg.Go(func() error {
				if err := g.runNode(ctx, c); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = eg.Wait()
		return errors.Join(errs...)
	}
	return fmt.Errorf("%w: zero node", ErrInvalidGraph)
}
