package plugins

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/internal/ycheck/engine"
	"github.com/scitix/snapcheck/internal/ycheck/scenarios"
	"github.com/scitix/snapcheck/pkg/hostfacts"
	"github.com/scitix/snapcheck/pkg/issues"
	"github.com/scitix/snapcheck/pkg/searchtools"
)

const IssuesKey = "potential-issues"

type Options struct {
	DefsPath            string
	MaxParallel         int
	AgentErrorKeyByTime bool
	Search              searchtools.Options
}

// Runner runs plugins against one snapshot and records their issues.
type Runner struct {
	opts    Options
	facts   *hostfacts.Provider
	store   *issues.Store
	checker *scenarios.Checker
}

func NewRunner(facts *hostfacts.Provider, store *issues.Store, opts Options) *Runner {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.Search.MaxParallel < 1 {
		opts.Search.MaxParallel = opts.MaxParallel
	}
	env := &engine.Env{Facts: facts, Search: opts.Search}
	return &Runner{
		opts:    opts,
		facts:   facts,
		store:   store,
		checker: scenarios.NewChecker(opts.DefsPath, env, opts.MaxParallel),
	}
}

func (r *Runner) Facts() *hostfacts.Provider {
	return r.facts
}

func (r *Runner) Options() Options {
	return r.opts
}

func (r *Runner) Checker() *scenarios.Checker {
	return r.checker
}

// Plugins lists every plugin with a collector or scenario definitions.
func (r *Runner) Plugins() ([]string, error) {
	seen := map[string]bool{}
	for name := range collectors {
		seen[name] = true
	}
	defined, err := r.checker.Plugins()
	if err != nil {
		return nil, err
	}
	for _, name := range defined {
		seen[name] = true
	}

	plugins := make([]string, 0, len(seen))
	for name := range seen {
		plugins = append(plugins, name)
	}
	sort.Strings(plugins)
	return plugins, nil
}

// Run collects the summary of a plugin and evaluates its scenarios. Issues
// raised by the plugin are included in the summary under IssuesKey. Invalid
// definitions fail the plugin; failing scenarios are only logged.
func (r *Runner) Run(ctx context.Context, plugin string) (map[string]interface{}, error) {
	summary := map[string]interface{}{}
	for _, c := range collectors[plugin] {
		out, err := c.Collect(ctx, r)
		if err != nil {
			klog.Warningf("plugin %s: collector %s failed: %v", plugin, c.Name(), err)
			continue
		}
		for k, v := range out {
			summary[k] = v
		}
	}

	if err := r.checker.Run(ctx, plugin, r.store); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var contained scenarios.ScenarioErrors
		if !errors.As(err, &contained) {
			return summary, err
		}
		klog.Warningf("plugin %s: %d scenario failure(s): %v", plugin, len(contained), err)
	}

	if byType := r.store.ByType(plugin); len(byType) > 0 {
		summary[IssuesKey] = byType
	}
	return summary, nil
}

// RunAll runs plugins on a bounded pool. A failing plugin is reported in the
// returned error and omitted from the results; other plugins are unaffected.
func (r *Runner) RunAll(ctx context.Context, plugins []string) (map[string]map[string]interface{}, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]map[string]interface{}, len(plugins))
		errs    []error
	)

	g := errgroup.Group{}
	g.SetLimit(r.opts.MaxParallel)
	for _, plugin := range plugins {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			klog.V(2).Infof("running plugin %s", plugin)
			summary, err := r.Run(ctx, plugin)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				klog.Errorf("plugin %s failed: %v", plugin, err)
				errs = append(errs, err)
				return nil
			}
			if len(summary) > 0 {
				results[plugin] = summary
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, errors.Join(errs...)
}
