package issues

import "errors"

var (
	ErrEmptyPlugin = errors.New("EmptyPlugin")
	ErrEmptyType   = errors.New("EmptyType")
)

// Issue is a finding raised by a fired scenario conclusion. Issues are never
// modified after they are created.
type Issue struct {
	Type   string `yaml:"type" json:"type"`
	Desc   string `yaml:"desc" json:"desc"`
	Plugin string `yaml:"-" json:"-"`
	Origin string `yaml:"origin,omitempty" json:"origin,omitempty"`
}

// Sink is what the evaluation engine needs to record issues.
type Sink interface {
	Add(issue Issue) error
}
