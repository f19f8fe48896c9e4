package engine

import (
	"context"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/issues"
)

var reservedNames = map[string]bool{"vars": true, "requires": true, "checks": true}

// Section is a node of the definition tree. Sections inherit vars, input
// and requires from their ancestors.
type Section struct {
	name   string
	path   string
	parent *Section
	env    *Env

	vars      map[string]interface{}
	input     *Input
	requires  *Requires
	checks    *CheckGroup
	scenarios []*Scenario
	children  []*Section
}

// LoadSection builds the section tree rooted at n.
func LoadSection(name string, n *yaml.Node, env *Env) (*Section, error) {
	s, err := loadSection(name, name, n, nil, env)
	if err != nil {
		return nil, err
	}
	if err := checkSearchTags(s, map[string]string{}); err != nil {
		return nil, err
	}
	return s, nil
}

// checkSearchTags rejects a search tag used by more than one check in the
// tree. Results are looked up by tag, so a shared tag mixes their matches.
func checkSearchTags(s *Section, seen map[string]string) error {
	if s.checks != nil {
		for _, c := range s.checks.checks {
			if c.search == nil {
				continue
			}
			if other, ok := seen[c.search.tag]; ok {
				return definitionErrorf(c.search.path, "search tag %q already used by %s", c.search.tag, other)
			}
			seen[c.search.tag] = c.search.path
		}
	}
	for _, child := range s.children {
		if err := checkSearchTags(child, seen); err != nil {
			return err
		}
	}
	return nil
}

func loadSection(path, name string, n *yaml.Node, parent *Section, env *Env) (*Section, error) {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, definitionErrorf(path, "empty section")
	}

	s := &Section{name: name, path: path, parent: parent, env: env, vars: map[string]interface{}{}}
	if parent != nil {
		for k, v := range parent.vars {
			s.vars[k] = v
		}
	}

	overrides := map[string]*yaml.Node{}
	var children []pair
	for _, p := range pairs {
		switch {
		case accepts(kindSection, p.key):
			overrides[p.key] = p.value
		case resolveNode(p.value) != nil && resolveNode(p.value).Kind == yaml.MappingNode:
			children = append(children, p)
		default:
			return nil, definitionErrorf(joinPath(path, p.key), "unknown override kind %q", p.key)
		}
	}

	if n, ok := overrides["vars"]; ok {
		vars := map[string]interface{}{}
		if err := n.Decode(&vars); err != nil {
			return nil, definitionErrorf(joinPath(path, "vars"), "%v", err)
		}
		for k, v := range vars {
			s.vars[k] = v
		}
	}
	if n, ok := overrides["input"]; ok {
		if s.input, err = loadInput(joinPath(path, "input"), n, s.vars); err != nil {
			return nil, err
		}
	}
	if n, ok := overrides["requires"]; ok {
		if s.requires, err = loadRequires(joinPath(path, "requires"), n, env, s.vars); err != nil {
			return nil, err
		}
	}
	if n, ok := overrides["checks"]; ok {
		if s.checks, err = loadCheckGroup(joinPath(path, "checks"), n, env, s.vars); err != nil {
			return nil, err
		}
		for _, name := range s.checks.Names() {
			if reservedNames[name] {
				return nil, definitionErrorf(joinPath(path, "checks", name), "%q is a reserved name", name)
			}
		}
		for _, c := range s.checks.checks {
			if c.search != nil && c.input == nil && s.Input() == nil {
				return nil, definitionErrorf(c.path, "search check has no input")
			}
		}
	}
	if n, ok := overrides["scenarios"]; ok {
		spairs, err := mappingPairs(joinPath(path, "scenarios"), n)
		if err != nil {
			return nil, err
		}
		for _, sp := range spairs {
			sc, err := loadScenario(joinPath(path, "scenarios", sp.key), sp.key, sp.value, s)
			if err != nil {
				return nil, err
			}
			s.scenarios = append(s.scenarios, sc)
		}
	}

	for _, c := range children {
		child, err := loadSection(joinPath(path, c.key), c.key, c.value, s, env)
		if err != nil {
			return nil, err
		}
		s.children = append(s.children, child)
	}
	return s, nil
}

func (s *Section) Name() string {
	return s.name
}

func (s *Section) Path() string {
	return s.path
}

func (s *Section) Parent() *Section {
	return s.parent
}

func (s *Section) Children() []*Section {
	return s.children
}

func (s *Section) Vars() map[string]interface{} {
	return s.vars
}

// Input returns the nearest input declared on this section or an ancestor.
func (s *Section) Input() *Input {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.input != nil {
			return cur.input
		}
	}
	return nil
}

// Requires returns the nearest requires declared on this section or an
// ancestor.
func (s *Section) Requires() *Requires {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.requires != nil {
			return cur.requires
		}
	}
	return nil
}

func (s *Section) CheckGroup() *CheckGroup {
	return s.checks
}

func (s *Section) Scenarios() []*Scenario {
	return s.scenarios
}

// Runnable returns every section in the tree that defines scenarios, in
// definition order.
func (s *Section) Runnable() []*Section {
	var out []*Section
	if len(s.scenarios) > 0 {
		out = append(out, s)
	}
	for _, c := range s.children {
		out = append(out, c.Runnable()...)
	}
	return out
}

// Initialise runs the search pass of the section's checks.
func (s *Section) Initialise(ctx context.Context) error {
	if s.checks == nil {
		return nil
	}
	return s.checks.Initialise(ctx, s.Input())
}

// Gate reports whether the requires of this section and all its ancestors
// pass.
func (s *Section) Gate() (bool, error) {
	var gates []*Requires
	for cur := s; cur != nil; cur = cur.parent {
		if cur.requires != nil {
			gates = append([]*Requires{cur.requires}, gates...)
		}
	}
	for _, g := range gates {
		ok, err := g.Passes()
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Run evaluates the section's scenarios in definition order and adds the
// raised issues to sink. Scenario failures are logged and returned joined;
// they do not stop later scenarios.
func (s *Section) Run(ctx context.Context, plugin string, sink issues.Sink) error {
	ok, err := s.Gate()
	if err != nil {
		return err
	}
	if !ok {
		klog.V(2).Infof("section %s requirements not met, skipping %d scenario(s)", s.path, len(s.scenarios))
		return nil
	}
	if err := s.Initialise(ctx); err != nil {
		return err
	}

	var errs []error
	for _, sc := range s.scenarios {
		issue, err := sc.Evaluate(plugin)
		if err != nil {
			klog.Errorf("scenario %s failed: %v", sc.path, err)
			errs = append(errs, err)
			continue
		}
		if issue == nil {
			continue
		}
		if err := sink.Add(*issue); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Section) knows(name string) bool {
	if name == "requires" {
		return s.Requires() != nil
	}
	if s.checks == nil {
		return false
	}
	_, ok := s.checks.Get(name)
	return ok
}

func (s *Section) resolveName(name string) (bool, error) {
	if name == "requires" {
		r := s.Requires()
		if r == nil {
			return false, &EvaluationError{Property: s.path, Reason: "no requires defined"}
		}
		return r.Passes()
	}
	if s.checks != nil {
		if c, ok := s.checks.Get(name); ok {
			return c.Result()
		}
	}
	return false, &EvaluationError{Property: s.path, Reason: "unknown check " + name}
}

// isReference reports whether a format value addresses a cache.
func (s *Section) isReference(value string) bool {
	if strings.HasPrefix(value, "@") {
		return true
	}
	head, _, ok := strings.Cut(value, ".")
	return ok && (reservedNames[head] || s.knows(head))
}

// Resolve reads a cache reference such as "@checks.c1.search.num_results",
// "c1.search.results_group_0", "requires.apt.version" or "@vars.name".
func (s *Section) Resolve(ref string) (interface{}, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "@"), ".")
	if parts[0] == "checks" {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return nil, &CacheReferenceError{Ref: ref, Reason: "incomplete reference"}
	}

	var cache *Cache
	switch parts[0] {
	case "vars":
		v, ok := s.vars[parts[1]]
		if !ok || len(parts) > 2 {
			return nil, &CacheReferenceError{Ref: ref, Reason: "undefined variable"}
		}
		return v, nil
	case "requires":
		if r := s.Requires(); r != nil {
			cache = r.Cache()
		}
	default:
		if s.checks != nil {
			if c, ok := s.checks.Get(parts[0]); ok {
				cache = c.Cache()
			}
		}
	}
	if cache == nil {
		return nil, &CacheReferenceError{Ref: ref, Reason: "unknown property " + parts[0]}
	}

	v, ok := cache.Lookup(parts[1:])
	if !ok {
		return nil, &CacheReferenceError{Ref: ref, Reason: "not populated"}
	}
	if _, nested := v.(*Cache); nested {
		return nil, &CacheReferenceError{Ref: ref, Reason: "reference does not address a value"}
	}
	return v, nil
}
