package engine

import (
	"strings"

	"gopkg.in/yaml.v3"
)

type pair struct {
	key   string
	value *yaml.Node
}

func resolveNode(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	n = resolveNode(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// mappingPairs returns the entries of a mapping node in definition order.
func mappingPairs(path string, n *yaml.Node) ([]pair, error) {
	n = resolveNode(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, definitionErrorf(path, "expected a mapping")
	}

	seen := make(map[string]bool, len(n.Content)/2)
	pairs := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolveNode(n.Content[i])
		if key == nil || key.Kind != yaml.ScalarNode {
			return nil, definitionErrorf(path, "mapping keys must be scalars")
		}
		if seen[key.Value] {
			return nil, definitionErrorf(path, "duplicate key %q", key.Value)
		}
		seen[key.Value] = true
		pairs = append(pairs, pair{key: key.Value, value: n.Content[i+1]})
	}
	return pairs, nil
}

func scalarString(n *yaml.Node) (string, bool) {
	n = resolveNode(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	return n.Value, true
}

// stringList accepts a scalar or a sequence of scalars.
func stringList(path string, n *yaml.Node) ([]string, error) {
	n = resolveNode(n)
	if s, ok := scalarString(n); ok {
		return []string{s}, nil
	}
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil, definitionErrorf(path, "expected a string or a list of strings")
	}

	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		s, ok := scalarString(item)
		if !ok {
			return nil, definitionErrorf(path, "expected a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func joinPath(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
