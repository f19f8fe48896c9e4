package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/scitix/snapcheck/pkg/hostfacts"
	"github.com/scitix/snapcheck/pkg/issues"
	"github.com/scitix/snapcheck/pkg/searchtools"
)

func newTestEnv(t *testing.T, files map[string]string) *Env {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &Env{
		Facts:  hostfacts.NewProvider(root),
		Search: searchtools.Options{MaxParallel: 2, MaxLogrotateDepth: 7},
	}
}

func parseNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	return &doc
}

func mustLoad(t *testing.T, env *Env, src string) *Section {
	t.Helper()
	s, err := LoadSection("test", parseNode(t, src), env)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return s
}

func mustCheck(t *testing.T, s *Section, name string) *Check {
	t.Helper()
	if err := s.Initialise(context.Background()); err != nil {
		t.Fatalf("initialise failed: %v", err)
	}
	c, ok := s.CheckGroup().Get(name)
	if !ok {
		t.Fatalf("check %s not found", name)
	}
	return c
}

func runSection(t *testing.T, s *Section) ([]issues.Issue, error) {
	t.Helper()
	store := issues.NewStore()
	err := s.Run(context.Background(), "test", store)
	return store.Plugin("test"), err
}
