package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// resolver returns the outcome of a named check or of "requires".
type resolver func(name string) (bool, error)

type decision interface {
	eval(resolve resolver) (bool, error)
}

type nameDecision string

func (d nameDecision) eval(resolve resolver) (bool, error) {
	return resolve(string(d))
}

type allDecision []decision

func (d allDecision) eval(resolve resolver) (bool, error) {
	for _, sub := range d {
		ok, err := sub.eval(resolve)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type anyDecision []decision

func (d anyDecision) eval(resolve resolver) (bool, error) {
	for _, sub := range d {
		ok, err := sub.eval(resolve)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type notDecision struct {
	d decision
}

func (d notDecision) eval(resolve resolver) (bool, error) {
	ok, err := d.d.eval(resolve)
	return !ok && err == nil, err
}

// exprDecision is a boolean expression over names, e.g. "a and not b".
type exprDecision struct {
	src     string
	names   []string
	program *vm.Program
}

func (d *exprDecision) eval(resolve resolver) (bool, error) {
	env := make(map[string]interface{}, len(d.names))
	for _, name := range d.names {
		ok, err := resolve(name)
		if err != nil {
			return false, err
		}
		env[name] = ok
	}
	out, err := expr.Run(d.program, env)
	if err != nil {
		return false, fmt.Errorf("decision %q: %w", d.src, err)
	}
	return out.(bool), nil
}

var (
	nameExpr     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	logicalWords = regexp.MustCompile(`\b(AND|OR|NOT)\b`)
)

type identCollector struct {
	seen  map[string]bool
	names []string
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && !c.seen[id.Value] {
		c.seen[id.Value] = true
		c.names = append(c.names, id.Value)
	}
}

func compileDecision(path, src string, known func(string) bool) (decision, error) {
	src = logicalWords.ReplaceAllStringFunc(src, strings.ToLower)
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, definitionErrorf(path, "invalid decision %q: %v", src, err)
	}

	collector := &identCollector{seen: map[string]bool{}}
	ast.Walk(&tree.Node, collector)

	env := make(map[string]interface{}, len(collector.names))
	for _, name := range collector.names {
		if !known(name) {
			return nil, definitionErrorf(path, "decision references unknown name %q", name)
		}
		env[name] = false
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, definitionErrorf(path, "invalid decision %q: %v", src, err)
	}
	return &exprDecision{src: src, names: collector.names, program: program}, nil
}

// loadDecision accepts a name, an expression string, a list (all must hold)
// or a mapping of and/or/not.
func loadDecision(path string, n *yaml.Node, known func(string) bool) (decision, error) {
	n = resolveNode(n)
	if s, ok := scalarString(n); ok {
		s = strings.TrimSpace(s)
		if nameExpr.MatchString(s) && !logicalWords.MatchString(s) {
			if !known(s) {
				return nil, definitionErrorf(path, "decision references unknown name %q", s)
			}
			return nameDecision(s), nil
		}
		return compileDecision(path, s, known)
	}

	if n != nil && n.Kind == yaml.SequenceNode {
		subs, err := loadDecisionList(path, n.Content, known)
		if err != nil {
			return nil, err
		}
		return allDecision(subs), nil
	}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, definitionErrorf(path, "empty decision")
	}

	var all allDecision
	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		items := []*yaml.Node{p.value}
		if v := resolveNode(p.value); v != nil && v.Kind == yaml.SequenceNode {
			items = v.Content
		}
		switch p.key {
		case "and", "or":
			subs, err := loadDecisionList(keyPath, items, known)
			if err != nil {
				return nil, err
			}
			if p.key == "and" {
				all = append(all, allDecision(subs))
			} else {
				all = append(all, anyDecision(subs))
			}
		case "not":
			sub, err := loadDecision(keyPath, p.value, known)
			if err != nil {
				return nil, err
			}
			all = append(all, notDecision{d: sub})
		default:
			return nil, definitionErrorf(keyPath, "unknown decision operator %q", p.key)
		}
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

func loadDecisionList(path string, items []*yaml.Node, known func(string) bool) ([]decision, error) {
	if len(items) == 0 {
		return nil, definitionErrorf(path, "empty decision list")
	}
	subs := make([]decision, 0, len(items))
	for i, item := range items {
		sub, err := loadDecision(fmt.Sprintf("%s[%d]", path, i), item, known)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
