package engine

import (
	"context"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/searchtools"
)

// CheckGroup owns the checks of a section and the result collection of
// their single shared search pass.
type CheckGroup struct {
	path   string
	env    *Env
	checks []*Check
	byName map[string]*Check

	input       *Input
	initialised bool
	results     *searchtools.ResultCollection
}

func loadCheckGroup(path string, n *yaml.Node, env *Env, vars map[string]interface{}) (*CheckGroup, error) {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, definitionErrorf(path, "no checks defined")
	}

	g := &CheckGroup{path: path, env: env, byName: make(map[string]*Check, len(pairs))}
	for _, p := range pairs {
		c, err := loadCheck(joinPath(path, p.key), p.key, p.value, g, vars)
		if err != nil {
			return nil, err
		}
		g.checks = append(g.checks, c)
		g.byName[p.key] = c
	}
	return g, nil
}

// Initialise registers every member search with one searcher, using input
// for checks without their own, runs a single search pass and publishes the
// collection to the group. Checks must not be evaluated before it returns.
func (g *CheckGroup) Initialise(ctx context.Context, input *Input) error {
	if g.initialised {
		return nil
	}
	g.input = input

	searcher := searchtools.NewFileSearcher(g.env.Search)
	for _, c := range g.checks {
		if c.search == nil {
			continue
		}
		in := c.Input()
		if in == nil {
			return definitionErrorf(c.path, "search check has no input")
		}
		def, err := c.search.Definition()
		if err != nil {
			return err
		}
		in.register(searcher, g.env.Facts.DataRoot(), def)
	}

	results := &searchtools.ResultCollection{}
	if !searcher.Empty() {
		klog.V(3).Infof("running search pass for %s", g.path)
		results = searcher.Search(ctx)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.results = results
	g.initialised = true
	klog.V(4).Infof("check group %s initialised with %d results", g.path, results.Len())
	return nil
}

func (g *CheckGroup) collection() (*searchtools.ResultCollection, error) {
	if !g.initialised {
		return nil, definitionErrorf(g.path, "checks read before initialisation")
	}
	return g.results, nil
}

// Checks returns the member checks in definition order.
func (g *CheckGroup) Checks() ([]*Check, error) {
	if !g.initialised {
		return nil, definitionErrorf(g.path, "checks read before initialisation")
	}
	return g.checks, nil
}

// Names returns the check names in definition order.
func (g *CheckGroup) Names() []string {
	names := make([]string, 0, len(g.checks))
	for _, c := range g.checks {
		names = append(names, c.name)
	}
	return names
}

// Get returns a member check by name.
func (g *CheckGroup) Get(name string) (*Check, bool) {
	c, ok := g.byName[name]
	return c, ok
}
