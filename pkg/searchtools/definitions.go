package searchtools

import (
	"fmt"
	"regexp"
	"strings"
)

// Definition is something the FileSearcher can match against a file. A fresh
// matcher is created for every file so definitions are safe to share across
// concurrent scans.
type Definition interface {
	Tag() string
	newMatcher(source string) matcher
}

type matcher interface {
	feed(lineNo int, line string) []SearchResult
	finish() []SearchResult
}

// SearchDef matches single lines against one or more expressions. The first
// expression that matches a line produces the result for that line.
type SearchDef struct {
	tag      string
	hint     string
	patterns []*regexp.Regexp
}

func NewSearchDef(tag string, hint string, exprs ...string) (*SearchDef, error) {
	if tag == "" {
		return nil, fmt.Errorf("search definition requires a tag")
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("search definition %s has no expressions", tag)
	}

	def := &SearchDef{tag: tag, hint: hint}
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("search definition %s: invalid expression %q: %w", tag, expr, err)
		}
		def.patterns = append(def.patterns, re)
	}
	return def, nil
}

func (d *SearchDef) Tag() string {
	return d.tag
}

func (d *SearchDef) newMatcher(source string) matcher {
	return &lineMatcher{def: d, source: source}
}

type lineMatcher struct {
	def    *SearchDef
	source string
}

func (m *lineMatcher) feed(lineNo int, line string) []SearchResult {
	if m.def.hint != "" && !strings.Contains(line, m.def.hint) {
		return nil
	}
	for _, re := range m.def.patterns {
		if values, ok := capture(re, line); ok {
			return []SearchResult{NewSearchResult(m.def.tag, m.source, lineNo, values...)}
		}
	}
	return nil
}

func (m *lineMatcher) finish() []SearchResult {
	return nil
}

func capture(re *regexp.Regexp, line string) ([]string, bool) {
	sub := re.FindStringSubmatch(line)
	if sub == nil {
		return nil, false
	}
	if len(sub) == 1 {
		return sub, true
	}
	return sub[1:], true
}

// SequenceSearchDef matches blocks of lines opened by a start expression and
// closed by an end expression. Each complete block is a single result.
//
// Without an end expression a block runs until the next start or the end of
// the file. With an end expression a block still open at the end of the file
// is discarded.
type SequenceSearchDef struct {
	tag   string
	start *regexp.Regexp
	end   *regexp.Regexp
}

func NewSequenceSearchDef(tag, start, end string) (*SequenceSearchDef, error) {
	if tag == "" {
		return nil, fmt.Errorf("sequence definition requires a tag")
	}
	if start == "" {
		return nil, fmt.Errorf("sequence definition %s requires a start expression", tag)
	}

	def := &SequenceSearchDef{tag: tag}
	var err error
	if def.start, err = regexp.Compile(start); err != nil {
		return nil, fmt.Errorf("sequence definition %s: invalid start %q: %w", tag, start, err)
	}
	if end != "" {
		if def.end, err = regexp.Compile(end); err != nil {
			return nil, fmt.Errorf("sequence definition %s: invalid end %q: %w", tag, end, err)
		}
	}
	return def, nil
}

func (d *SequenceSearchDef) Tag() string {
	return d.tag
}

func (d *SequenceSearchDef) newMatcher(source string) matcher {
	return &blockMatcher{def: d, source: source}
}

type blockMatcher struct {
	def    *SequenceSearchDef
	source string

	open      bool
	startLine int
	values    []string
	lines     []string
}

func (m *blockMatcher) feed(lineNo int, line string) []SearchResult {
	var out []SearchResult

	if values, ok := capture(m.def.start, line); ok {
		// an unterminated block is only emitted when no end marker is defined
		if m.open && m.def.end == nil {
			out = append(out, m.emit(nil))
		}
		m.open = true
		m.startLine = lineNo
		m.values = values
		m.lines = []string{line}
		return out
	}

	if !m.open {
		return nil
	}

	m.lines = append(m.lines, line)
	if m.def.end != nil {
		if values, ok := capture(m.def.end, line); ok {
			out = append(out, m.emit(values))
		}
	}
	return out
}

func (m *blockMatcher) finish() []SearchResult {
	if m.open && m.def.end == nil {
		return []SearchResult{m.emit(nil)}
	}
	return nil
}

func (m *blockMatcher) emit(endValues []string) SearchResult {
	values := append(append([]string(nil), m.values...), endValues...)
	r := NewSearchResult(m.def.tag, m.source, m.startLine, values...)
	r.Lines = m.lines

	m.open = false
	m.values = nil
	m.lines = nil
	return r
}
