package engine

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/scitix/snapcheck/pkg/searchtools"
)

// Search is the search property of a check.
type Search struct {
	path string

	tag         string
	exprs       []string
	hint        string
	start       string
	end         string
	constraints searchtools.Constraints

	cache *Cache
}

func loadSearch(path, defaultTag string, n *yaml.Node, vars map[string]interface{}) (*Search, error) {
	s := &Search{path: path, tag: defaultTag, cache: NewCache()}

	if expr, ok := scalarString(n); ok {
		s.exprs = []string{expr}
	} else {
		pairs, err := mappingPairs(path, n)
		if err != nil {
			return nil, err
		}
		if err := checkKeys(path, kindSearch, pairs); err != nil {
			return nil, err
		}
		for _, p := range pairs {
			keyPath := joinPath(path, p.key)
			switch p.key {
			case "expr", "exprs":
				exprs, err := stringList(keyPath, p.value)
				if err != nil {
					return nil, err
				}
				s.exprs = append(s.exprs, exprs...)
			case "hint", "tag", "start", "end":
				v, ok := scalarString(p.value)
				if !ok {
					return nil, definitionErrorf(keyPath, "expected a string")
				}
				switch p.key {
				case "hint":
					s.hint = v
				case "tag":
					s.tag = v
				case "start":
					s.start = v
				case "end":
					s.end = v
				}
			case "constraints":
				c, err := loadConstraints(keyPath, p.value)
				if err != nil {
					return nil, err
				}
				s.constraints = c
			}
		}
	}

	for i, e := range s.exprs {
		expanded, err := expandVar(path, e, vars)
		if err != nil {
			return nil, err
		}
		s.exprs[i] = expanded
	}
	var err error
	if s.hint, err = expandVar(path, s.hint, vars); err != nil {
		return nil, err
	}

	switch {
	case s.start == "" && s.end != "":
		return nil, definitionErrorf(path, "end marker without start marker")
	case s.start != "" && len(s.exprs) > 0:
		return nil, definitionErrorf(path, "expr and start/end markers are mutually exclusive")
	case s.start == "" && len(s.exprs) == 0:
		return nil, definitionErrorf(path, "search declares no expression")
	}

	// compile once so invalid expressions fail at load time
	if _, err := s.Definition(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Search) Tag() string {
	return s.tag
}

func (s *Search) Cache() *Cache {
	return s.cache
}

// Definition builds the search engine definition for this search.
func (s *Search) Definition() (searchtools.Definition, error) {
	if s.start != "" {
		def, err := searchtools.NewSequenceSearchDef(s.tag, s.start, s.end)
		if err != nil {
			return nil, definitionErrorf(s.path, "%v", err)
		}
		return def, nil
	}
	def, err := searchtools.NewSearchDef(s.tag, s.hint, s.exprs...)
	if err != nil {
		return nil, definitionErrorf(s.path, "%v", err)
	}
	return def, nil
}

// publish filters raw results through the constraints and caches the
// aggregated values.
func (s *Search) publish(raw []searchtools.SearchResult) []searchtools.SearchResult {
	results := s.constraints.Apply(raw)

	var groups []map[string]bool
	for _, r := range results {
		for i, v := range r.Values() {
			for len(groups) <= i {
				groups = append(groups, map[string]bool{})
			}
			groups[i][v] = true
		}
	}

	s.cache.Set("tag", s.tag)
	s.cache.Set("num_results", len(results))
	for i, g := range groups {
		values := make([]string, 0, len(g))
		for v := range g {
			values = append(values, v)
		}
		sort.Strings(values)
		s.cache.Set(fmt.Sprintf("results_group_%d", i), values)
	}

	files := map[string]bool{}
	for _, r := range results {
		files[r.Source] = true
	}
	s.cache.Set("num_files", len(files))
	return results
}

func loadConstraints(path string, n *yaml.Node) (searchtools.Constraints, error) {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(path, kindConstraints, pairs); err != nil {
		return nil, err
	}

	var raw struct {
		MinResults        int     `yaml:"min-results"`
		SearchPeriodHours float64 `yaml:"search-period-hours"`
		TimestampGroups   []int   `yaml:"timestamp-groups"`
		TimestampFormat   string  `yaml:"timestamp-format"`
		Value             *struct {
			Group  int    `yaml:"group"`
			Equals string `yaml:"equals"`
			Regex  string `yaml:"regex"`
		} `yaml:"value"`
	}
	if err := n.Decode(&raw); err != nil {
		return nil, definitionErrorf(path, "%v", err)
	}

	var constraints searchtools.Constraints
	if raw.Value != nil {
		f := searchtools.ValueFilter{Group: raw.Value.Group, Equals: raw.Value.Equals}
		if raw.Value.Regex != "" {
			if f.Regex, err = regexp.Compile(raw.Value.Regex); err != nil {
				return nil, definitionErrorf(joinPath(path, "value"), "%v", err)
			}
		}
		constraints = append(constraints, f)
	}
	if raw.SearchPeriodHours > 0 {
		constraints = append(constraints, searchtools.SearchPeriod{
			Hours:           raw.SearchPeriodHours,
			TimestampGroups: raw.TimestampGroups,
			Layout:          raw.TimestampFormat,
		})
	}
	if raw.MinResults > 0 {
		constraints = append(constraints, searchtools.MinResults{Count: raw.MinResults})
	}
	return constraints, nil
}
