package searchtools

import (
	"regexp"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/tools"
)

// Constraint is a post filter applied to the raw results of a tag.
type Constraint interface {
	Apply(results []SearchResult) []SearchResult
}

// Constraints applies each constraint in order.
type Constraints []Constraint

func (c Constraints) Apply(results []SearchResult) []SearchResult {
	for _, constraint := range c {
		if len(results) == 0 {
			break
		}
		results = constraint.Apply(results)
	}
	return results
}

// MinResults drops every result unless at least Count results remain.
type MinResults struct {
	Count int
}

func (m MinResults) Apply(results []SearchResult) []SearchResult {
	if len(results) < m.Count {
		klog.V(4).Infof("min-results constraint not met: %d < %d", len(results), m.Count)
		return nil
	}
	return results
}

// ValueFilter keeps results whose captured value at Group equals Equals or
// matches Regex.
type ValueFilter struct {
	Group  int
	Equals string
	Regex  *regexp.Regexp
}

func (f ValueFilter) Apply(results []SearchResult) []SearchResult {
	var out []SearchResult
	for _, r := range results {
		v, ok := r.Get(f.Group)
		if !ok {
			continue
		}
		if f.Regex != nil {
			if f.Regex.MatchString(v) {
				out = append(out, r)
			}
			continue
		}
		if v == f.Equals {
			out = append(out, r)
		}
	}
	return out
}

// SearchPeriod keeps results whose timestamp falls within Hours of the most
// recent result. The timestamp is built by joining the values of
// TimestampGroups with a space and parsing them with Layout. Results without
// a parseable timestamp are dropped.
type SearchPeriod struct {
	Hours           float64
	TimestampGroups []int
	Layout          string
}

func (p SearchPeriod) Apply(results []SearchResult) []SearchResult {
	layout := p.Layout
	if layout == "" {
		layout = tools.TimestampLayout
	}
	groups := p.TimestampGroups
	if len(groups) == 0 {
		groups = []int{0}
	}

	type stamped struct {
		ts     time.Time
		result SearchResult
	}

	var (
		all    []stamped
		latest time.Time
	)
	for _, r := range results {
		parts := make([]string, 0, len(groups))
		for _, g := range groups {
			if v, ok := r.Get(g); ok {
				parts = append(parts, v)
			}
		}
		ts, err := time.Parse(layout, strings.Join(parts, " "))
		if err != nil {
			klog.V(4).Infof("search result %s:%d has no usable timestamp: %v", r.Source, r.LineNo, err)
			continue
		}
		if ts.After(latest) {
			latest = ts
		}
		all = append(all, stamped{ts: ts, result: r})
	}

	cutoff := latest.Add(-time.Duration(p.Hours * float64(time.Hour)))
	var out []SearchResult
	for _, s := range all {
		if !s.ts.Before(cutoff) {
			out = append(out, s.result)
		}
	}
	return out
}
