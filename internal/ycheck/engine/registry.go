package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/scitix/snapcheck/pkg/hostfacts"
	"github.com/scitix/snapcheck/pkg/searchtools"
)

type propertyKind string

const (
	kindSection     propertyKind = "section"
	kindInput       propertyKind = "input"
	kindCheck       propertyKind = "check"
	kindSearch      propertyKind = "search"
	kindConstraints propertyKind = "constraints"
	kindScenario    propertyKind = "scenario"
	kindConclusion  propertyKind = "conclusion"
	kindRaises      propertyKind = "raises"
)

// catalog lists the override keys each property accepts. It is filled by
// init functions and read-only afterwards.
var catalog = map[propertyKind]map[string]bool{}

func registerProperty(kind propertyKind, keys ...string) {
	if _, ok := catalog[kind]; ok {
		panic(fmt.Sprintf("property %s already registered", kind))
	}
	catalog[kind] = make(map[string]bool, len(keys))
	for _, k := range keys {
		catalog[kind][k] = true
	}
}

func accepts(kind propertyKind, key string) bool {
	return catalog[kind][key]
}

// checkKeys rejects entries the property does not know about.
func checkKeys(path string, kind propertyKind, pairs []pair) error {
	for _, p := range pairs {
		if !accepts(kind, p.key) {
			return definitionErrorf(joinPath(path, p.key), "unknown %s key %q", kind, p.key)
		}
	}
	return nil
}

func init() {
	registerProperty(kindSection, "vars", "input", "requires", "checks", "scenarios")
	registerProperty(kindInput, "path", "paths", "options")
	registerProperty(kindCheck, "search", "requires", "input")
	registerProperty(kindSearch, "expr", "exprs", "hint", "tag", "start", "end", "constraints")
	registerProperty(kindConstraints, "min-results", "value", "search-period-hours", "timestamp-groups", "timestamp-format")
	registerProperty(kindScenario, "decision", "conclusions")
	registerProperty(kindConclusion, "decision", "raises")
	registerProperty(kindRaises, "type", "message", "format-dict")
}

// FactProvider answers host fact queries against the snapshot.
type FactProvider interface {
	DataRoot() string
	Exists(rel string) bool
	PackageVersion(name string) (string, bool, error)
	SnapVersion(name string) (string, bool, error)
	UnitFileState(unit string) (string, bool, error)
	Sysctl(key string) (string, bool, error)
	ConfigValue(path, key string) (string, bool, error)
	KernelCmdline() ([]string, error)
	Uptime() (hostfacts.Uptime, bool)
}

// Env is shared by every section of a plugin.
type Env struct {
	Facts  FactProvider
	Search searchtools.Options
}

var varRef = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)$`)

// expandVar replaces a "$name" value with the variable it names.
func expandVar(path, value string, vars map[string]interface{}) (string, error) {
	m := varRef.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return value, nil
	}
	v, ok := vars[m[1]]
	if !ok {
		return "", definitionErrorf(path, "undefined variable %q", m[1])
	}
	return fmt.Sprint(v), nil
}
