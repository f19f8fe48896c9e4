package searchtools

import (
	"errors"
	"fmt"
)

var ErrSearchIO = errors.New("SearchIOError")

// SearchIOError is recorded when a target file cannot be read. Only the
// searches bound to that file are affected.
type SearchIOError struct {
	Path string
	Err  error
}

func (e *SearchIOError) Error() string {
	return fmt.Sprintf("search io error on %s: %v", e.Path, e.Err)
}

func (e *SearchIOError) Unwrap() error {
	return e.Err
}

func (e *SearchIOError) Is(target error) bool {
	return target == ErrSearchIO
}

// SearchResult is a single match of a tagged definition.
type SearchResult struct {
	Tag    string
	Source string
	LineNo int

	// Lines holds every line of a block match. Empty for single line matches.
	Lines []string

	values []string
}

// Get returns the captured value at idx. Index 0 is the first capture group,
// or the whole match when the expression has no groups.
func (r SearchResult) Get(idx int) (string, bool) {
	if idx < 0 || idx >= len(r.values) {
		return "", false
	}
	return r.values[idx], true
}

func (r SearchResult) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

func NewSearchResult(tag, source string, lineNo int, values ...string) SearchResult {
	return SearchResult{Tag: tag, Source: source, LineNo: lineNo, values: values}
}

// ResultCollection is the read-only output of one search pass.
type ResultCollection struct {
	byTag map[string][]SearchResult
	files []string
	errs  []error
}

func newResultCollection() *ResultCollection {
	return &ResultCollection{byTag: make(map[string][]SearchResult)}
}

func (c *ResultCollection) FindByTag(tag string) []SearchResult {
	if c == nil {
		return nil
	}
	results := c.byTag[tag]
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out
}

// Files lists every file that was scanned, in scan order.
func (c *ResultCollection) Files() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.files...)
}

// Errors returns the SearchIOErrors recorded during the pass.
func (c *ResultCollection) Errors() []error {
	if c == nil {
		return nil
	}
	return append([]error(nil), c.errs...)
}

func (c *ResultCollection) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, r := range c.byTag {
		n += len(r)
	}
	return n
}
