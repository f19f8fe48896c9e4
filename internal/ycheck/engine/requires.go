package engine

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/hostfacts"
)

// Predicate is a host fact test used in requires trees. It records the facts
// it looked at in cache.
type Predicate interface {
	Passes(facts FactProvider, cache *Cache) (bool, error)
}

// PredicateFactory builds a predicate from its definition.
type PredicateFactory func(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error)

var predicates = make(map[string]PredicateFactory)

func RegisterPredicate(name string, factory PredicateFactory) error {
	if _, ok := predicates[name]; ok {
		return fmt.Errorf("predicate %s already registered", name)
	}

	predicates[name] = factory
	return nil
}

// Requires is a boolean tree of predicates. Its cache holds "passes" and a
// nested cache per predicate, keyed by predicate name.
type Requires struct {
	path  string
	facts FactProvider
	root  requirement
	cache *Cache

	seen map[string]int
}

type requirement interface {
	passes(r *Requires) (bool, error)
}

type allOf []requirement

func (a allOf) passes(r *Requires) (bool, error) {
	for _, req := range a {
		ok, err := req.passes(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type anyOf []requirement

func (a anyOf) passes(r *Requires) (bool, error) {
	for _, req := range a {
		ok, err := req.passes(r)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type notOf struct {
	req requirement
}

func (n notOf) passes(r *Requires) (bool, error) {
	ok, err := n.req.passes(r)
	return !ok && err == nil, err
}

type predicateNode struct {
	name  string
	pred  Predicate
	cache *Cache
}

func (p *predicateNode) passes(r *Requires) (bool, error) {
	return memoize(p.cache, "passes", func() (bool, error) {
		ok, err := p.pred.Passes(r.facts, p.cache)
		if errors.Is(err, hostfacts.ErrNoSource) {
			klog.V(2).Infof("%s: %s has no data: %v", r.path, p.name, err)
			return false, nil
		}
		return ok, err
	})
}

func loadRequires(path string, n *yaml.Node, env *Env, vars map[string]interface{}) (*Requires, error) {
	r := &Requires{path: path, facts: env.Facts, cache: NewCache(), seen: map[string]int{}}
	root, err := r.parse(path, n, vars)
	if err != nil {
		return nil, err
	}
	r.root = root
	return r, nil
}

func (r *Requires) parse(path string, n *yaml.Node, vars map[string]interface{}) (requirement, error) {
	n = resolveNode(n)
	if n != nil && n.Kind == yaml.SequenceNode {
		var all allOf
		for i, item := range n.Content {
			req, err := r.parse(fmt.Sprintf("%s[%d]", path, i), item, vars)
			if err != nil {
				return nil, err
			}
			all = append(all, req)
		}
		if len(all) == 0 {
			return nil, definitionErrorf(path, "empty requires list")
		}
		return all, nil
	}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, definitionErrorf(path, "empty requires")
	}

	var all allOf
	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		var req requirement
		switch p.key {
		case "and", "or":
			items := []*yaml.Node{p.value}
			if v := resolveNode(p.value); v != nil && v.Kind == yaml.SequenceNode {
				items = v.Content
			}
			var reqs []requirement
			for i, item := range items {
				sub, err := r.parse(fmt.Sprintf("%s[%d]", keyPath, i), item, vars)
				if err != nil {
					return nil, err
				}
				reqs = append(reqs, sub)
			}
			if p.key == "and" {
				req = allOf(reqs)
			} else {
				req = anyOf(reqs)
			}
		case "not":
			sub, err := r.parse(keyPath, p.value, vars)
			if err != nil {
				return nil, err
			}
			req = notOf{req: sub}
		default:
			factory, ok := predicates[p.key]
			if !ok {
				return nil, definitionErrorf(keyPath, "unknown requires predicate %q", p.key)
			}
			pred, err := factory(keyPath, p.value, vars)
			if err != nil {
				return nil, err
			}
			req = &predicateNode{name: p.key, pred: pred, cache: r.predicateCache(p.key)}
		}
		all = append(all, req)
	}

	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

// predicateCache creates the cache of a predicate. Repeated predicates get a
// numeric suffix: apt, apt_2, apt_3.
func (r *Requires) predicateCache(name string) *Cache {
	r.seen[name]++
	key := name
	if r.seen[name] > 1 {
		key = fmt.Sprintf("%s_%d", name, r.seen[name])
	}
	c := NewCache()
	r.cache.Set(key, c)
	return c
}

func (r *Requires) Cache() *Cache {
	return r.cache
}

// Passes evaluates the tree once; AND and OR short-circuit.
func (r *Requires) Passes() (bool, error) {
	return memoize(r.cache, "passes", func() (bool, error) {
		ok, err := r.root.passes(r)
		if err != nil {
			return false, &EvaluationError{Property: r.path, Reason: "requires evaluation failed", Err: err}
		}
		klog.V(4).Infof("requires %s passes=%v", r.path, ok)
		return ok, nil
	})
}
