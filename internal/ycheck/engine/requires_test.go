package engine

import (
	"errors"
	"strings"
	"testing"
)

func loadTestRequires(t *testing.T, env *Env, src string) *Requires {
	t.Helper()
	r, err := loadRequires("test.requires", parseNode(t, src), env, map[string]interface{}{"governor": "performance"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return r
}

const dpkgList = `ii  cpufrequtils  008-1build1        amd64  cpufreq utils
ii  openssh-server 1:8.2p1-4ubuntu0.5 amd64  ssh
`

const snapList = `Name     Version  Rev   Tracking      Publisher  Notes
kubelet  1.23.3   2398  1.23/stable   canonical  classic
lxd      git-abc  100   latest/edge   canonical  -
`

const unitFileList = `UNIT FILE           STATE    VENDOR PRESET
ondemand.service    enabled  enabled
apport.service      masked   enabled
`

var factFiles = map[string]string{
	"etc/present":                                    "",
	"proc/cmdline":                                   "BOOT_IMAGE=/vmlinuz root=/dev/sda1 isolcpus=2-3 quiet\n",
	"sos_commands/dpkg/dpkg_-l":                      dpkgList,
	"sos_commands/snap/snap_list_--all":              snapList,
	"sos_commands/systemd/systemctl_list-unit-files": unitFileList,
	"sos_commands/kernel/sysctl_-a":                  "vm.swappiness = 60\nnet.ipv4.ip_forward = 1\n",
	"etc/default/cpufrequtils":                       "GOVERNOR=\"performance\"\n",
	"uptime":                                         " 10:44:11 up 3 days,  2:10,  2 users,  load average: 1.00, 0.50, 0.25\n",
}

func TestRequiresBooleanAlgebra(t *testing.T) {
	env := newTestEnv(t, factFiles)
	cases := []struct {
		name string
		src  string
		want bool
	}{
		{"leaf true", "path: etc/present", true},
		{"leaf false", "path: etc/absent", false},
		{"double negation true", "not: {not: {path: etc/present}}", true},
		{"double negation false", "not: {not: {path: etc/absent}}", false},
		{"and", "and: [{path: etc/present}, {path: etc/absent}]", false},
		{"and reversed", "and: [{path: etc/absent}, {path: etc/present}]", false},
		{"or", "or: [{path: etc/absent}, {path: etc/present}]", true},
		{"or reversed", "or: [{path: etc/present}, {path: etc/absent}]", true},
		{"implicit and", "{path: etc/present, cmdline: quiet}", true},
		{"list is and", "[{path: etc/present}, {path: etc/absent}]", false},
		{"not or", "not: {or: [{path: etc/absent}, {cmdline: nosmt}]}", true},
		{"and not", "and: [{not: {path: etc/absent}}, {not: {cmdline: nosmt}}]", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := loadTestRequires(t, env, c.src)
			got, err := r.Passes()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("want %v got %v", c.want, got)
			}
			if v, ok := r.Cache().Get("passes"); !ok || v != got {
				t.Errorf("passes not cached: %v", v)
			}
		})
	}
}

func TestRequiresPredicates(t *testing.T) {
	env := newTestEnv(t, factFiles)
	cases := []struct {
		name string
		src  string
		want bool
	}{
		{"apt installed", "apt: cpufrequtils", true},
		{"apt missing", "apt: [cpufrequtils, tuned]", false},
		{"apt in range", "apt: {cpufrequtils: [{min: '008', max: '009'}]}", true},
		{"apt below range", "apt: {openssh-server: [{ge: '1:9.0'}]}", false},
		{"apt second range", "apt: {openssh-server: [{lt: '1:8.0'}, {gt: '1:8.2', lt: '1:8.3'}]}", true},
		{"snap version", "snap: {kubelet: {ge: 1.23.0}}", true},
		{"snap constraint", "snap: {kubelet: {constraint: '>= 1.22, < 1.23'}}", false},
		{"snap non semver", "snap: {lxd: {eq: git-abc}}", true},
		{"systemd enabled", "systemd: ondemand", true},
		{"systemd masked", "systemd: apport", false},
		{"systemd state", "systemd: {apport: masked}", true},
		{"systemd ne", "systemd: {ondemand: {state: disabled, op: ne}}", true},
		{"sysctl eq", "sysctl: {vm.swappiness: 60}", true},
		{"sysctl ops", "sysctl: {vm.swappiness: {ops: [[lt, 30]]}}", false},
		{"config value", "config: {path: etc/default/cpufrequtils, key: GOVERNOR, value: $governor}", true},
		{"config ops", "config: {path: etc/default/cpufrequtils, key: GOVERNOR, ops: [[contains, power]]}", true},
		{"config missing file", "config: {path: etc/default/absent, key: GOVERNOR}", false},
		{"cmdline key", "cmdline: isolcpus", true},
		{"cmdline pair", "cmdline: [isolcpus=2-3, quiet]", true},
		{"cmdline absent", "cmdline: nosmt", false},
		{"uptime minutes", "uptime: {ops: [[gt, 4000]]}", true},
		{"uptime hours", "uptime: {unit: hours, ops: [[lt, 24]]}", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := loadTestRequires(t, env, c.src)
			got, err := r.Passes()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("want %v got %v", c.want, got)
			}
		})
	}
}

func TestRequiresPredicateCache(t *testing.T) {
	env := newTestEnv(t, factFiles)
	r := loadTestRequires(t, env, `
and:
  - apt: {openssh-server: [{ge: '1:8.0'}]}
  - apt: cpufrequtils
  - systemd: apport
`)
	if ok, _ := r.Passes(); ok {
		t.Fatalf("apport is masked, want false")
	}

	want := map[string]interface{}{
		"apt.version":    "1:8.2p1-4ubuntu0.5",
		"apt_2.package":  "cpufrequtils",
		"systemd.state":  "masked",
		"systemd.passes": false,
	}
	for ref, v := range want {
		got, ok := r.Cache().Lookup(strings.Split(ref, "."))
		if !ok || got != v {
			t.Errorf("%s: want %v got %v (%v)", ref, v, got, ok)
		}
	}
}

func TestRequiresRecordsDecidingItem(t *testing.T) {
	env := newTestEnv(t, factFiles)
	cases := []struct {
		name   string
		src    string
		passes bool
		want   map[string]interface{}
		absent []string
	}{
		{
			name:   "apt missing second package",
			src:    "apt: [cpufrequtils, tuned]",
			want:   map[string]interface{}{"apt.package": "tuned"},
			absent: []string{"apt.version"},
		},
		{
			name: "apt second package out of range",
			src:  "apt: {cpufrequtils: null, openssh-server: [{lt: '1:8.0'}]}",
			want: map[string]interface{}{"apt.package": "openssh-server", "apt.version": "1:8.2p1-4ubuntu0.5"},
		},
		{
			name:   "apt all installed",
			src:    "apt: [cpufrequtils, openssh-server]",
			passes: true,
			want:   map[string]interface{}{"apt.package": "openssh-server", "apt.version": "1:8.2p1-4ubuntu0.5"},
		},
		{
			name: "systemd second unit masked",
			src:  "systemd: [ondemand, apport]",
			want: map[string]interface{}{"systemd.service": "apport", "systemd.state": "masked"},
		},
		{
			name: "sysctl second key differs",
			src:  "sysctl: {vm.swappiness: '60', net.ipv4.ip_forward: '0'}",
			want: map[string]interface{}{"sysctl.key": "net.ipv4.ip_forward", "sysctl.value": "1"},
		},
		{
			name: "path second missing",
			src:  "path: [etc/present, etc/absent]",
			want: map[string]interface{}{"path.path": "etc/absent"},
		},
		{
			name: "cmdline second missing",
			src:  "cmdline: [quiet, nosmt]",
			want: map[string]interface{}{"cmdline.param": "nosmt"},
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r := loadTestRequires(t, env, tt.src)
			ok, err := r.Passes()
			if err != nil || ok != tt.passes {
				t.Fatalf("Passes() = %v, %v, want %v", ok, err, tt.passes)
			}
			for ref, v := range tt.want {
				got, found := r.Cache().Lookup(strings.Split(ref, "."))
				if !found || got != v {
					t.Errorf("%s: want %v got %v (%v)", ref, v, got, found)
				}
			}
			for _, ref := range tt.absent {
				if got, found := r.Cache().Lookup(strings.Split(ref, ".")); found {
					t.Errorf("%s: want unset got %v", ref, got)
				}
			}
		})
	}
}

func TestRequiresShortCircuit(t *testing.T) {
	env := newTestEnv(t, factFiles)
	r := loadTestRequires(t, env, "or: [{path: etc/present}, {apt: cpufrequtils}]")
	if ok, _ := r.Passes(); !ok {
		t.Fatal("want true")
	}
	if _, ok := r.Cache().Lookup([]string{"apt", "passes"}); ok {
		t.Errorf("second branch of or should not be evaluated")
	}
}

func TestRequiresNoSource(t *testing.T) {
	env := newTestEnv(t, nil)
	r := loadTestRequires(t, env, "apt: cpufrequtils")
	if ok, err := r.Passes(); ok || err != nil {
		t.Errorf("want false without error, got %v (%v)", ok, err)
	}
}

func TestRegisterPredicateDuplicate(t *testing.T) {
	err := RegisterPredicate("apt", newAptPredicate)
	if err == nil || !strings.Contains(err.Error(), "apt") {
		t.Errorf("want an error naming apt, got %v", err)
	}
}

func TestRequiresDefinitionErrors(t *testing.T) {
	env := newTestEnv(t, factFiles)
	for name, src := range map[string]string{
		"unknown predicate":  "kernel: 5.15",
		"unknown operator":   "sysctl: {vm.swappiness: {ops: [[approx, 60]]}}",
		"operator arity":     "sysctl: {vm.swappiness: {ops: [[truth, 1]]}}",
		"bad constraint":     "snap: {kubelet: {constraint: '>>> 1'}}",
		"unknown bound":      "apt: {cpufrequtils: [{around: '008'}]}",
		"undefined variable": "config: {path: etc/x, key: K, value: $nope}",
		"empty":              "{}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := loadRequires("test.requires", parseNode(t, src), env, nil)
			if !errors.Is(err, ErrDefinition) {
				t.Errorf("want DefinitionError got %v", err)
			}
		})
	}
}

func TestOpChain(t *testing.T) {
	cases := []struct {
		ops    opChain
		actual interface{}
		want   bool
	}{
		{opChain{{name: "eq", arg: "60"}}, "60", true},
		{opChain{{name: "eq", arg: "60"}}, 60, true},
		{opChain{{name: "lt", arg: "9"}}, "10", false},
		{opChain{{name: "lt", arg: "b"}}, "a", true},
		{opChain{{name: "ge", arg: "1.5"}}, "1.50", true},
		{opChain{{name: "contains", arg: "perf"}}, "performance", true},
		{opChain{{name: "truth"}}, "off", false},
		{opChain{{name: "truth"}, {name: "not"}}, "", true},
		{opChain{{name: "eq", arg: "1"}, {name: "not"}}, "1", false},
		{nil, "yes", true},
	}
	for _, c := range cases {
		if got := c.ops.eval(c.actual); got != c.want {
			t.Errorf("%v on %v: want %v got %v", c.ops, c.actual, c.want, got)
		}
	}
}
