package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
)

const logLine = "2024-01-01 ERROR disk full\n"

func TestCheckSearchResult(t *testing.T) {
	cases := []struct {
		pattern string
		want    bool
	}{
		{"ERROR", true},
		{"CRITICAL", false},
	}
	for _, c := range cases {
		t.Run(c.pattern, func(t *testing.T) {
			env := newTestEnv(t, map[string]string{"var/log/app.log": logLine})
			s := mustLoad(t, env, fmt.Sprintf(`
input: {path: var/log/app.log}
checks:
  check1:
    search:
      expr: '%s'
      tag: t1
`, c.pattern))

			check := mustCheck(t, s, "check1")
			got, err := check.Result()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("want %v got %v", c.want, got)
			}
		})
	}
}

func TestCheckResultGroups(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": `2024-01-01 ERROR disk sda full
2024-01-01 ERROR disk sdb full
2024-01-02 INFO disk sdc ok
2024-01-02 ERROR disk sda full
`})
	s := mustLoad(t, env, `
input: {path: var/log/app.log}
checks:
  check1:
    search: 'ERROR disk (\S+) full'
`)
	check := mustCheck(t, s, "check1")

	if _, err := s.Resolve("check1.search.num_results"); !errors.Is(err, ErrCacheReference) {
		t.Errorf("want CacheReferenceError before evaluation, got %v", err)
	}

	if ok, err := check.Result(); err != nil || !ok {
		t.Fatalf("want true got %v %v", ok, err)
	}

	num, err := s.Resolve("check1.search.num_results")
	if err != nil || num != 3 {
		t.Errorf("num_results: want 3 got %v (%v)", num, err)
	}
	group, err := s.Resolve("@checks.check1.search.results_group_0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(group, []string{"sda", "sdb"}) {
		t.Errorf("results_group_0: want [sda sdb] got %v", group)
	}
	if tag, _ := s.Resolve("check1.search.tag"); tag != "test.checks.check1.search" {
		t.Errorf("unexpected default tag %v", tag)
	}
}

func TestCheckIdempotent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": logLine})
	s := mustLoad(t, env, `
input: {path: var/log/app.log}
checks:
  check1:
    search: ERROR
`)
	check := mustCheck(t, s, "check1")

	first, err := check.Result()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(env.Facts.DataRoot() + "/var/log/app.log"); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialise(context.Background()); err != nil {
		t.Fatal(err)
	}
	second, err := check.Result()
	if err != nil || second != first {
		t.Errorf("result changed: %v -> %v (%v)", first, second, err)
	}
	if v, ok := check.Cache().Get("result"); !ok || v != first {
		t.Errorf("result not cached: %v %v", v, ok)
	}
}

func TestCheckGroupSingleScan(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": logLine + "2024-01-01 WARN disk slow\n"})
	s := mustLoad(t, env, `
input: {path: var/log/app.log}
checks:
  errors: {search: ERROR}
  warnings: {search: WARN}
  missing: {search: PANIC}
  disk: {search: 'disk (\w+)'}
`)
	mustCheck(t, s, "disk")

	if files := s.CheckGroup().results.Files(); len(files) != 1 {
		t.Errorf("want a single scanned file, got %v", files)
	}

	checks, err := s.CheckGroup().Checks()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"errors": true, "warnings": true, "missing": false, "disk": true}
	for _, c := range checks {
		got, err := c.Result()
		if err != nil || got != want[c.Name()] {
			t.Errorf("%s: want %v got %v (%v)", c.Name(), want[c.Name()], got, err)
		}
	}
	if group, _ := s.Resolve("disk.search.results_group_0"); !reflect.DeepEqual(group, []string{"full", "slow"}) {
		t.Errorf("unexpected group %v", group)
	}
}

func TestCheckInputOverride(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"var/log/a.log": "nothing here\n",
		"var/log/b.log": logLine,
	})
	s := mustLoad(t, env, `
input: {path: var/log/a.log}
checks:
  inherited: {search: ERROR}
  own:
    input: var/log/b.log
    search: ERROR
`)
	mustCheck(t, s, "own")
	for name, want := range map[string]bool{"inherited": false, "own": true} {
		c, _ := s.CheckGroup().Get(name)
		if got, err := c.Result(); err != nil || got != want {
			t.Errorf("%s: want %v got %v (%v)", name, want, got, err)
		}
	}
}

func TestCheckBeforeInitialise(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": logLine})
	s := mustLoad(t, env, `
input: {path: var/log/app.log}
checks:
  check1: {search: ERROR}
`)
	if _, err := s.CheckGroup().Checks(); !errors.Is(err, ErrDefinition) {
		t.Errorf("Checks: want DefinitionError got %v", err)
	}
	c, _ := s.CheckGroup().Get("check1")
	if _, err := c.Result(); !errors.Is(err, ErrDefinition) {
		t.Errorf("Result: want DefinitionError got %v", err)
	}
}

func TestCheckWithoutProperty(t *testing.T) {
	env := newTestEnv(t, nil)
	s := mustLoad(t, env, `
checks:
  empty: {input: var/log/app.log}
`)
	c := mustCheck(t, s, "empty")
	_, err := c.Result()
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || !errors.Is(err, ErrEvaluation) {
		t.Errorf("want EvaluationError got %v", err)
	}
}

func TestCheckMissingFile(t *testing.T) {
	env := newTestEnv(t, nil)
	s := mustLoad(t, env, `
input: {path: var/log/absent.log}
checks:
  check1: {search: ERROR}
`)
	c := mustCheck(t, s, "check1")
	if got, err := c.Result(); err != nil || got {
		t.Errorf("want false without error, got %v (%v)", got, err)
	}
	if errs := s.CheckGroup().results.Errors(); len(errs) != 1 {
		t.Errorf("want one recorded search error, got %v", errs)
	}
}

func TestCheckVars(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": logLine})
	s := mustLoad(t, env, `
vars:
  pattern: 'disk (\w+)'
  logfile: var/log/app.log
input: {path: $logfile}
checks:
  check1: {search: $pattern}
`)
	c := mustCheck(t, s, "check1")
	if got, err := c.Result(); err != nil || !got {
		t.Errorf("want true got %v (%v)", got, err)
	}
	if v, err := s.Resolve("@vars.logfile"); err != nil || v != "var/log/app.log" {
		t.Errorf("unexpected var %v (%v)", v, err)
	}
}

func TestCheckConstraints(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": `2024-01-01 10:00:00 ERROR sda
2024-01-03 10:00:00 ERROR sdb
2024-01-03 11:00:00 ERROR sda
`})
	cases := []struct {
		name        string
		constraints string
		want        int
	}{
		{"value equals", "{value: {group: 1, equals: sda}}", 2},
		{"value regex", "{value: {group: 1, regex: 'sd[b]'}}", 1},
		{"period", "{search-period-hours: 24}", 2},
		{"min results met", "{min-results: 3}", 3},
		{"min results not met", "{min-results: 4}", 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := mustLoad(t, env, fmt.Sprintf(`
input: {path: var/log/app.log}
checks:
  check1:
    search:
      expr: '^(\S+ \S+) ERROR (\S+)'
      constraints: %s
`, c.constraints))
			check := mustCheck(t, s, "check1")
			got, err := check.Result()
			if err != nil {
				t.Fatal(err)
			}
			if got != (c.want > 0) {
				t.Errorf("result: want %v got %v", c.want > 0, got)
			}
			if n, _ := s.Resolve("check1.search.num_results"); n != c.want {
				t.Errorf("num_results: want %d got %v", c.want, n)
			}
		})
	}
}

func TestCheckDeterminism(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"var/log/app.log":            logLine,
		"sos_commands/dpkg/dpkg_-l": "ii  openssh-server  1:8.2p1-4ubuntu0.5  amd64  ssh\n",
	})
	src := `
input: {path: var/log/app.log}
checks:
  c1: {search: ERROR}
  c2: {search: CRITICAL}
  c3: {requires: {apt: openssh-server}}
  c4: {requires: {apt: {openssh-server: [{lt: '1:8.0'}]}}}
`
	outcome := func() ([]string, []bool) {
		s := mustLoad(t, env, src)
		mustCheck(t, s, "c1")
		checks, _ := s.CheckGroup().Checks()
		var results []bool
		for _, c := range checks {
			r, err := c.Result()
			if err != nil {
				t.Fatal(err)
			}
			results = append(results, r)
		}
		return s.CheckGroup().Names(), results
	}

	names1, results1 := outcome()
	names2, results2 := outcome()
	if !reflect.DeepEqual(names1, names2) || !reflect.DeepEqual(results1, results2) {
		t.Errorf("outcomes differ: %v %v / %v %v", names1, results1, names2, results2)
	}
	if !reflect.DeepEqual(results1, []bool{true, false, true, false}) {
		t.Errorf("unexpected results %v", results1)
	}
}

func TestCheckBlockSearch(t *testing.T) {
	env := newTestEnv(t, map[string]string{"var/log/app.log": `begin job 1
step
end status=ok
begin job 2
step
end status=failed
`})
	s := mustLoad(t, env, `
input: {path: var/log/app.log}
checks:
  jobs:
    search:
      start: '^begin job (\d+)'
      end: '^end status=(\w+)'
      constraints: {value: {group: 1, equals: failed}}
`)
	c := mustCheck(t, s, "jobs")
	if got, err := c.Result(); err != nil || !got {
		t.Fatalf("want true got %v (%v)", got, err)
	}
	if v, _ := s.Resolve("jobs.search.results_group_0"); !reflect.DeepEqual(v, []string{"2"}) {
		t.Errorf("unexpected job ids %v", v)
	}
}
