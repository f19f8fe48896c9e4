package engine

import (
	"errors"
	"fmt"
)

var (
	ErrDefinition     = errors.New("DefinitionError")
	ErrEvaluation     = errors.New("EvaluationError")
	ErrCacheReference = errors.New("CacheReferenceError")
)

// DefinitionError reports a malformed or ambiguous rule definition. Path is
// the dotted location of the offending node.
type DefinitionError struct {
	Path   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("definition error at %s: %s", e.Path, e.Reason)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition
}

// EvaluationError reports a property that could not be evaluated.
type EvaluationError struct {
	Property string
	Reason   string
	Err      error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error in %s: %s: %v", e.Property, e.Reason, e.Err)
	}
	return fmt.Sprintf("evaluation error in %s: %s", e.Property, e.Reason)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// CacheReferenceError reports a reference to a cache key that was never
// populated.
type CacheReferenceError struct {
	Ref    string
	Reason string
}

func (e *CacheReferenceError) Error() string {
	return fmt.Sprintf("cache reference %q: %s", e.Ref, e.Reason)
}

func (e *CacheReferenceError) Is(target error) bool {
	return target == ErrCacheReference
}

func definitionErrorf(path, format string, args ...interface{}) error {
	return &DefinitionError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
