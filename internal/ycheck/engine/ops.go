package engine

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type op struct {
	name string
	arg  string
}

// opChain applies operators in order, each to the output of the previous
// one. The chain passes when its final value is truthy.
type opChain []op

var opArity = map[string]int{
	"eq": 1, "ne": 1, "lt": 1, "le": 1, "gt": 1, "ge": 1, "contains": 1,
	"truth": 0, "not": 0,
}

// loadOps reads [[op, arg], [op]] lists. A bare [op, arg] pair is also
// accepted.
func loadOps(path string, n *yaml.Node, vars map[string]interface{}) (opChain, error) {
	n = resolveNode(n)
	if n == nil || n.Kind != yaml.SequenceNode || len(n.Content) == 0 {
		return nil, definitionErrorf(path, "ops must be a non-empty list")
	}
	items := n.Content
	if first := resolveNode(items[0]); first.Kind == yaml.ScalarNode {
		items = []*yaml.Node{n}
	}

	var chain opChain
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		parts, err := stringList(itemPath, item)
		if err != nil {
			return nil, err
		}
		arity, ok := opArity[parts[0]]
		if !ok {
			return nil, definitionErrorf(itemPath, "unknown operator %q", parts[0])
		}
		if len(parts)-1 != arity {
			return nil, definitionErrorf(itemPath, "operator %s takes %d argument(s)", parts[0], arity)
		}
		o := op{name: parts[0]}
		if arity == 1 {
			if o.arg, err = expandVar(itemPath, parts[1], vars); err != nil {
				return nil, err
			}
		}
		chain = append(chain, o)
	}
	return chain, nil
}

func (c opChain) eval(actual interface{}) bool {
	cur := actual
	for _, o := range c {
		cur = o.apply(cur)
	}
	return truthy(cur)
}

func (o op) apply(v interface{}) interface{} {
	switch o.name {
	case "eq":
		return compareValues(v, o.arg) == 0
	case "ne":
		return compareValues(v, o.arg) != 0
	case "lt":
		return compareValues(v, o.arg) < 0
	case "le":
		return compareValues(v, o.arg) <= 0
	case "gt":
		return compareValues(v, o.arg) > 0
	case "ge":
		return compareValues(v, o.arg) >= 0
	case "contains":
		return strings.Contains(fmt.Sprint(v), o.arg)
	case "truth":
		return truthy(v)
	case "not":
		return !truthy(v)
	}
	return false
}

// compareValues compares numerically when both sides are numbers and as
// strings otherwise.
func compareValues(a interface{}, b string) int {
	as := strings.TrimSpace(fmt.Sprint(a))
	b = strings.TrimSpace(b)

	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(as, b)
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no", "off", "n":
			return false
		}
		return true
	}
	return true
}
