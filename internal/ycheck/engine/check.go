package engine

import (
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/metrics"
)

// Check is the smallest evaluable rule. It resolves to a boolean through its
// search or its requires, computed once and cached under "result".
type Check struct {
	name string
	path string

	search   *Search
	requires *Requires
	input    *Input

	group *CheckGroup
	cache *Cache
}

func loadCheck(path, name string, n *yaml.Node, group *CheckGroup, vars map[string]interface{}) (*Check, error) {
	c := &Check{name: name, path: path, group: group, cache: NewCache()}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(path, kindCheck, pairs); err != nil {
		return nil, err
	}

	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		switch p.key {
		case "input":
			if c.input, err = loadInput(keyPath, p.value, vars); err != nil {
				return nil, err
			}
		case "search":
			if c.search, err = loadSearch(keyPath, joinPath(path, "search"), p.value, vars); err != nil {
				return nil, err
			}
		case "requires":
			if c.requires, err = loadRequires(keyPath, p.value, group.env, vars); err != nil {
				return nil, err
			}
		}
	}

	if c.search != nil && c.requires != nil {
		return nil, definitionErrorf(path, "check declares both search and requires")
	}
	return c, nil
}

func (c *Check) Name() string {
	return c.name
}

func (c *Check) Path() string {
	return c.path
}

func (c *Check) Cache() *Cache {
	return c.cache
}

func (c *Check) Search() *Search {
	return c.search
}

// Input returns the check's own input, falling back to the group input.
func (c *Check) Input() *Input {
	if c.input != nil {
		return c.input
	}
	return c.group.input
}

// Result returns the outcome of the check. Search backed checks may only be
// evaluated once their group has been initialised.
func (c *Check) Result() (bool, error) {
	return memoize(c.cache, "result", c.evaluate)
}

func (c *Check) evaluate() (bool, error) {
	var (
		result bool
		err    error
	)

	switch {
	case c.search != nil:
		coll, cerr := c.group.collection()
		if cerr != nil {
			return false, cerr
		}
		results := c.search.publish(coll.FindByTag(c.search.Tag()))
		c.cache.Set("search", c.search.Cache())
		result = len(results) > 0
	case c.requires != nil:
		result, err = c.requires.Passes()
		c.cache.Set("requires", c.requires.Cache())
		if err != nil {
			metrics.OnCheckError()
			return false, &EvaluationError{Property: c.path, Reason: "requires failed", Err: err}
		}
	default:
		metrics.OnCheckError()
		return false, &EvaluationError{Property: c.path, Reason: "no supported property on check"}
	}

	klog.V(4).Infof("check %s result=%v", c.path, result)
	metrics.OnCheckResult(result)
	return result, nil
}
