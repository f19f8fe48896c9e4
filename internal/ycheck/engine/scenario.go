package engine

import (
	"errors"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/issues"
	"github.com/scitix/snapcheck/pkg/metrics"
	"github.com/scitix/snapcheck/tools"
)

// Scenario combines check outcomes into at most one issue.
type Scenario struct {
	name    string
	path    string
	section *Section

	decision    decision
	conclusions []*Conclusion
	cache       *Cache
}

func loadScenario(path, name string, n *yaml.Node, s *Section) (*Scenario, error) {
	sc := &Scenario{name: name, path: path, section: s, cache: NewCache()}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(path, kindScenario, pairs); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		switch p.key {
		case "decision":
			if sc.decision, err = loadDecision(keyPath, p.value, s.knows); err != nil {
				return nil, err
			}
		case "conclusions":
			cpairs, err := mappingPairs(keyPath, p.value)
			if err != nil {
				return nil, err
			}
			for _, cp := range cpairs {
				c, err := loadConclusion(joinPath(keyPath, cp.key), cp.key, cp.value, s)
				if err != nil {
					return nil, err
				}
				sc.conclusions = append(sc.conclusions, c)
			}
		}
	}

	if sc.decision == nil {
		return nil, definitionErrorf(path, "scenario has no decision")
	}
	if len(sc.conclusions) == 0 {
		return nil, definitionErrorf(path, "scenario has no conclusions")
	}
	return sc, nil
}

func (sc *Scenario) Name() string {
	return sc.name
}

func (sc *Scenario) Path() string {
	return sc.path
}

func (sc *Scenario) Cache() *Cache {
	return sc.cache
}

// Evaluate runs the scenario once and returns the issue raised by the first
// conclusion whose guard holds, or nil when nothing fired.
func (sc *Scenario) Evaluate(plugin string) (*issues.Issue, error) {
	return memoize(sc.cache, "issue", func() (*issues.Issue, error) {
		issue, err := sc.evaluate(plugin)
		metrics.OnScenario(plugin, issue != nil)
		return issue, err
	})
}

func (sc *Scenario) evaluate(plugin string) (*issues.Issue, error) {
	fired, err := sc.decision.eval(sc.section.resolveName)
	if err != nil {
		return nil, wrapEvaluation(sc.path, err)
	}
	sc.cache.Set("result", fired)
	if !fired {
		klog.V(4).Infof("scenario %s did not fire", sc.path)
		return nil, nil
	}

	for _, c := range sc.conclusions {
		if c.guard != nil {
			ok, err := c.guard.eval(sc.section.resolveName)
			if err != nil {
				return nil, wrapEvaluation(c.path, err)
			}
			if !ok {
				continue
			}
		}

		msg, err := c.render(sc.section)
		if err != nil {
			return nil, err
		}
		sc.cache.Set("conclusion", c.name)
		klog.V(2).Infof("scenario %s concluded %s", sc.path, c.name)
		return &issues.Issue{Type: c.issueType, Desc: msg, Plugin: plugin, Origin: sc.path}, nil
	}

	klog.V(3).Infof("scenario %s fired but no conclusion matched", sc.path)
	return nil, nil
}

func wrapEvaluation(path string, err error) error {
	if errors.Is(err, ErrEvaluation) || errors.Is(err, ErrDefinition) || errors.Is(err, ErrCacheReference) {
		return err
	}
	return &EvaluationError{Property: path, Reason: "decision failed", Err: err}
}

type formatEntry struct {
	key   string
	value interface{}
}

// Conclusion raises an issue of a given type with a rendered message.
type Conclusion struct {
	name string
	path string

	guard      decision
	issueType  string
	message    string
	formatDict []formatEntry
	cache      *Cache
}

func loadConclusion(path, name string, n *yaml.Node, s *Section) (*Conclusion, error) {
	c := &Conclusion{name: name, path: path, cache: NewCache()}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(path, kindConclusion, pairs); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		switch p.key {
		case "decision":
			if c.guard, err = loadDecision(keyPath, p.value, s.knows); err != nil {
				return nil, err
			}
		case "raises":
			if err := c.loadRaises(keyPath, p.value); err != nil {
				return nil, err
			}
		}
	}

	if c.issueType == "" {
		return nil, definitionErrorf(path, "conclusion raises no issue type")
	}
	if _, err := template.New(path).Funcs(templateFuncs(nil)).Funcs(template.FuncMap{"keep": strings.TrimSpace}).Parse(c.message); err != nil {
		return nil, definitionErrorf(path, "invalid message template: %v", err)
	}
	return c, nil
}

func (c *Conclusion) loadRaises(path string, n *yaml.Node) error {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return err
	}
	if err := checkKeys(path, kindRaises, pairs); err != nil {
		return err
	}
	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		switch p.key {
		case "type", "message":
			v, ok := scalarString(p.value)
			if !ok {
				return definitionErrorf(keyPath, "expected a string")
			}
			if p.key == "type" {
				c.issueType = v
			} else {
				c.message = v
			}
		case "format-dict":
			entries, err := mappingPairs(keyPath, p.value)
			if err != nil {
				return err
			}
			for _, e := range entries {
				var v interface{}
				if err := e.value.Decode(&v); err != nil {
					return definitionErrorf(joinPath(keyPath, e.key), "%v", err)
				}
				c.formatDict = append(c.formatDict, formatEntry{key: e.key, value: v})
			}
		}
	}
	return nil
}

func templateFuncs(s *Section) template.FuncMap {
	return template.FuncMap{
		"ref": func(path string) (interface{}, error) {
			v, err := s.Resolve(path)
			return displayValue(v), err
		},
		"join": strings.Join,
	}
}

// render resolves the format dict and renders the message. Any unresolved
// reference fails the conclusion.
func (c *Conclusion) render(s *Section) (string, error) {
	data := make(map[string]interface{}, len(c.formatDict))
	for _, e := range c.formatDict {
		v := e.value
		if ref, ok := v.(string); ok && s.isReference(ref) {
			resolved, err := s.Resolve(ref)
			if err != nil {
				return "", err
			}
			v = resolved
		}
		data[e.key] = displayValue(v)
	}

	msg, err := tools.RenderTemplate(c.path, c.message, data, templateFuncs(s))
	if err != nil {
		if errors.Is(err, ErrCacheReference) {
			return "", err
		}
		return "", &EvaluationError{Property: c.path, Reason: "message rendering failed", Err: err}
	}
	c.cache.Set("message", msg)
	return msg, nil
}

func displayValue(v interface{}) interface{} {
	if values, ok := v.([]string); ok {
		return strings.Join(values, ", ")
	}
	return v
}
