package engine

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/hostfacts"
)

func init() {
	RegisterPredicate("apt", newAptPredicate)
	RegisterPredicate("snap", newSnapPredicate)
	RegisterPredicate("systemd", newSystemdPredicate)
	RegisterPredicate("sysctl", newSysctlPredicate)
	RegisterPredicate("config", newConfigPredicate)
	RegisterPredicate("path", newPathPredicate)
	RegisterPredicate("cmdline", newCmdlinePredicate)
	RegisterPredicate("uptime", newUptimePredicate)
}

// versionRange holds inclusive or exclusive bounds on a version. min and max
// are aliases of ge and le.
type versionRange struct {
	bounds     map[string]string
	constraint *semver.Constraints
}

var rangeOps = map[string]string{
	"eq": "eq", "lt": "lt", "le": "le", "gt": "gt", "ge": "ge", "min": "ge", "max": "le",
}

func (vr versionRange) contains(version string, compare func(a, b string) int) bool {
	for op, bound := range vr.bounds {
		c := compare(version, bound)
		var ok bool
		switch op {
		case "eq":
			ok = c == 0
		case "lt":
			ok = c < 0
		case "le":
			ok = c <= 0
		case "gt":
			ok = c > 0
		case "ge":
			ok = c >= 0
		}
		if !ok {
			return false
		}
	}
	if vr.constraint != nil {
		v, err := semver.NewVersion(version)
		if err != nil || !vr.constraint.Check(v) {
			return false
		}
	}
	return true
}

type packageRequirement struct {
	name   string
	ranges []versionRange
}

// versionPredicate requires a set of packages to be installed, optionally
// within one of several version ranges.
type versionPredicate struct {
	kind     string
	packages []packageRequirement
	lookup   func(facts FactProvider, name string) (string, bool, error)
	compare  func(a, b string) int
}

func loadPackages(path string, n *yaml.Node, vars map[string]interface{}, allowConstraint bool) ([]packageRequirement, error) {
	n = resolveNode(n)
	if n != nil && n.Kind != yaml.MappingNode {
		names, err := stringList(path, n)
		if err != nil {
			return nil, err
		}
		var pkgs []packageRequirement
		for _, name := range names {
			pkgs = append(pkgs, packageRequirement{name: name})
		}
		return pkgs, nil
	}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	var pkgs []packageRequirement
	for _, p := range pairs {
		pkgPath := joinPath(path, p.key)
		pkg := packageRequirement{name: p.key}

		var items []*yaml.Node
		if v := resolveNode(p.value); v != nil && v.Kind == yaml.SequenceNode {
			items = v.Content
		} else if !isNull(p.value) {
			items = []*yaml.Node{p.value}
		}
		for i, item := range items {
			rangePath := fmt.Sprintf("%s[%d]", pkgPath, i)
			bounds, err := mappingPairs(rangePath, item)
			if err != nil {
				return nil, err
			}
			vr := versionRange{bounds: map[string]string{}}
			for _, b := range bounds {
				value, ok := scalarString(b.value)
				if !ok {
					return nil, definitionErrorf(joinPath(rangePath, b.key), "expected a version")
				}
				if value, err = expandVar(rangePath, value, vars); err != nil {
					return nil, err
				}
				if b.key == "constraint" && allowConstraint {
					if vr.constraint, err = semver.NewConstraint(value); err != nil {
						return nil, definitionErrorf(joinPath(rangePath, b.key), "%v", err)
					}
					continue
				}
				op, ok := rangeOps[b.key]
				if !ok {
					return nil, definitionErrorf(joinPath(rangePath, b.key), "unknown version bound %q", b.key)
				}
				vr.bounds[op] = value
			}
			pkg.ranges = append(pkg.ranges, vr)
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// Passes records the package that decided the result: the first one that
// fails, or the last one checked when all pass.
func (p *versionPredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	for i, pkg := range p.packages {
		version, installed, err := p.lookup(facts, pkg.name)
		if err != nil {
			return false, err
		}
		passes := installed && p.inRange(pkg, version)
		if !installed {
			klog.V(3).Infof("%s %s not installed", p.kind, pkg.name)
		}
		if !passes || i == len(p.packages)-1 {
			cache.Set("package", pkg.name)
			if installed {
				cache.Set("version", version)
			}
		}
		if !passes {
			return false, nil
		}
	}
	return true, nil
}

func (p *versionPredicate) inRange(pkg packageRequirement, version string) bool {
	if len(pkg.ranges) == 0 {
		return true
	}
	for _, vr := range pkg.ranges {
		if vr.contains(version, p.compare) {
			return true
		}
	}
	return false
}

func newAptPredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	pkgs, err := loadPackages(path, n, vars, false)
	if err != nil {
		return nil, err
	}
	return &versionPredicate{
		kind:     "apt",
		packages: pkgs,
		lookup: func(facts FactProvider, name string) (string, bool, error) {
			return facts.PackageVersion(name)
		},
		compare: hostfacts.CompareDebVersions,
	}, nil
}

// compareSnapVersions uses semantic versioning when both sides parse and
// falls back to dpkg ordering otherwise.
func compareSnapVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return hostfacts.CompareDebVersions(a, b)
}

func newSnapPredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	pkgs, err := loadPackages(path, n, vars, true)
	if err != nil {
		return nil, err
	}
	return &versionPredicate{
		kind:     "snap",
		packages: pkgs,
		lookup: func(facts FactProvider, name string) (string, bool, error) {
			return facts.SnapVersion(name)
		},
		compare: compareSnapVersions,
	}, nil
}

type unitState struct {
	unit  string
	state string
	op    string
}

// systemdPredicate checks unit file states. A unit without an expected
// state must exist and be neither disabled nor masked.
type systemdPredicate struct {
	units []unitState
}

func newSystemdPredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	n = resolveNode(n)
	p := &systemdPredicate{}
	if n != nil && n.Kind != yaml.MappingNode {
		names, err := stringList(path, n)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			p.units = append(p.units, unitState{unit: name})
		}
		return p, nil
	}

	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		us := unitState{unit: pair.key, op: "eq"}
		if s, ok := scalarString(pair.value); ok {
			us.state = s
		} else {
			var spec struct {
				State string `yaml:"state"`
				Op    string `yaml:"op"`
			}
			if err := pair.value.Decode(&spec); err != nil {
				return nil, definitionErrorf(joinPath(path, pair.key), "%v", err)
			}
			us.state = spec.State
			if spec.Op != "" {
				us.op = spec.Op
			}
		}
		if us.op != "eq" && us.op != "ne" {
			return nil, definitionErrorf(joinPath(path, pair.key), "unsupported op %q", us.op)
		}
		if us.state, err = expandVar(path, us.state, vars); err != nil {
			return nil, err
		}
		p.units = append(p.units, us)
	}
	return p, nil
}

func (p *systemdPredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	for i, us := range p.units {
		state, ok, err := facts.UnitFileState(us.unit)
		if err != nil {
			return false, err
		}

		var passes bool
		switch {
		case us.state == "":
			passes = ok && state != "disabled" && state != "masked"
		case us.op == "ne":
			passes = !ok || state != us.state
		default:
			passes = ok && state == us.state
		}
		if !passes || i == len(p.units)-1 {
			cache.Set("service", us.unit)
			cache.Set("state", state)
		}
		if !passes {
			return false, nil
		}
	}
	return true, nil
}

type keyOps struct {
	key string
	ops opChain
}

// loadKeyOps reads a mapping of key to either an expected value or
// {ops: [...]}.
func loadKeyOps(path string, n *yaml.Node, vars map[string]interface{}) ([]keyOps, error) {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	var out []keyOps
	for _, p := range pairs {
		keyPath := joinPath(path, p.key)
		ko := keyOps{key: p.key}
		if v, ok := scalarString(p.value); ok {
			if v, err = expandVar(keyPath, v, vars); err != nil {
				return nil, err
			}
			ko.ops = opChain{{name: "eq", arg: v}}
		} else {
			sub, err := mappingPairs(keyPath, p.value)
			if err != nil {
				return nil, err
			}
			for _, s := range sub {
				if s.key != "ops" {
					return nil, definitionErrorf(joinPath(keyPath, s.key), "unknown key %q", s.key)
				}
				if ko.ops, err = loadOps(joinPath(keyPath, "ops"), s.value, vars); err != nil {
					return nil, err
				}
			}
		}
		out = append(out, ko)
	}
	return out, nil
}

type sysctlPredicate struct {
	keys []keyOps
}

func newSysctlPredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	keys, err := loadKeyOps(path, n, vars)
	if err != nil {
		return nil, err
	}
	return &sysctlPredicate{keys: keys}, nil
}

func (p *sysctlPredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	for i, k := range p.keys {
		value, ok, err := facts.Sysctl(k.key)
		if err != nil {
			return false, err
		}
		passes := ok && k.ops.eval(value)
		if !passes || i == len(p.keys)-1 {
			cache.Set("key", k.key)
			cache.Set("value", value)
		}
		if !passes {
			return false, nil
		}
	}
	return true, nil
}

// configPredicate compares a value read from a key/value config file. With
// neither value nor ops the key must be set to something truthy.
type configPredicate struct {
	file string
	key  string
	ops  opChain
}

func newConfigPredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	p := &configPredicate{}
	for _, pair := range pairs {
		keyPath := joinPath(path, pair.key)
		switch pair.key {
		case "path", "key", "value":
			v, ok := scalarString(pair.value)
			if !ok {
				return nil, definitionErrorf(keyPath, "expected a string")
			}
			if v, err = expandVar(keyPath, v, vars); err != nil {
				return nil, err
			}
			switch pair.key {
			case "path":
				p.file = v
			case "key":
				p.key = v
			case "value":
				p.ops = opChain{{name: "eq", arg: v}}
			}
		case "ops":
			if p.ops, err = loadOps(keyPath, pair.value, vars); err != nil {
				return nil, err
			}
		default:
			return nil, definitionErrorf(keyPath, "unknown config key %q", pair.key)
		}
	}
	if p.file == "" || p.key == "" {
		return nil, definitionErrorf(path, "config requires path and key")
	}
	return p, nil
}

func (p *configPredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	cache.Set("path", p.file)
	cache.Set("key", p.key)
	if !facts.Exists(p.file) {
		klog.V(3).Infof("config file %s not found", p.file)
		return false, nil
	}
	value, ok, err := facts.ConfigValue(p.file, p.key)
	if err != nil {
		return false, err
	}
	cache.Set("value", value)
	if !ok {
		return false, nil
	}
	if len(p.ops) == 0 {
		return truthy(value), nil
	}
	return p.ops.eval(value), nil
}

type pathPredicate struct {
	paths []string
}

func newPathPredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	paths, err := stringList(path, n)
	if err != nil {
		return nil, err
	}
	for i := range paths {
		if paths[i], err = expandVar(path, paths[i], vars); err != nil {
			return nil, err
		}
	}
	return &pathPredicate{paths: paths}, nil
}

func (p *pathPredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	for i, path := range p.paths {
		exists := facts.Exists(path)
		if !exists || i == len(p.paths)-1 {
			cache.Set("path", path)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

// cmdlinePredicate requires boot parameters. "key=value" must appear
// verbatim; a bare "key" matches with or without a value.
type cmdlinePredicate struct {
	params []string
}

func newCmdlinePredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	params, err := stringList(path, n)
	if err != nil {
		return nil, err
	}
	for i := range params {
		if params[i], err = expandVar(path, params[i], vars); err != nil {
			return nil, err
		}
	}
	return &cmdlinePredicate{params: params}, nil
}

func (p *cmdlinePredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	cmdline, err := facts.KernelCmdline()
	if err != nil {
		return false, err
	}
	cache.Set("cmdline", strings.Join(cmdline, " "))

	for i, want := range p.params {
		found := false
		for _, have := range cmdline {
			if have == want || (!strings.Contains(want, "=") && strings.HasPrefix(have, want+"=")) {
				found = true
				break
			}
		}
		if !found || i == len(p.params)-1 {
			cache.Set("param", want)
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// uptimePredicate applies ops to the host uptime in the configured unit.
type uptimePredicate struct {
	unit string
	ops  opChain
}

func newUptimePredicate(path string, n *yaml.Node, vars map[string]interface{}) (Predicate, error) {
	pairs, err := mappingPairs(path, n)
	if err != nil {
		return nil, err
	}
	p := &uptimePredicate{unit: "minutes"}
	for _, pair := range pairs {
		keyPath := joinPath(path, pair.key)
		switch pair.key {
		case "unit":
			v, _ := scalarString(pair.value)
			if v != "seconds" && v != "minutes" && v != "hours" {
				return nil, definitionErrorf(keyPath, "unsupported unit %q", v)
			}
			p.unit = v
		case "ops":
			if p.ops, err = loadOps(keyPath, pair.value, vars); err != nil {
				return nil, err
			}
		default:
			return nil, definitionErrorf(keyPath, "unknown uptime key %q", pair.key)
		}
	}
	if len(p.ops) == 0 {
		return nil, definitionErrorf(path, "uptime requires ops")
	}
	return p, nil
}

func (p *uptimePredicate) Passes(facts FactProvider, cache *Cache) (bool, error) {
	uptime, ok := facts.Uptime()
	if !ok {
		return false, nil
	}

	value := uptime.Minutes
	switch p.unit {
	case "seconds":
		value = uptime.Seconds()
	case "hours":
		value = uptime.Hours()
	}
	cache.Set("unit", p.unit)
	cache.Set("uptime", value)
	cache.Set("loadavg", uptime.LoadAvg)
	return p.ops.eval(value), nil
}
