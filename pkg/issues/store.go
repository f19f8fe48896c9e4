package issues

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/metrics"
)

// Store accumulates the issues of a run grouped by plugin. It is safe for
// concurrent use.
type Store struct {
	mu     sync.RWMutex
	runID  string
	issues map[string][]Issue
}

func NewStore() *Store {
	return &Store{
		runID:  uuid.New().String(),
		issues: make(map[string][]Issue),
	}
}

func (s *Store) RunID() string {
	return s.runID
}

func (s *Store) Add(issue Issue) error {
	if issue.Plugin == "" {
		return ErrEmptyPlugin
	}
	if issue.Type == "" {
		return ErrEmptyType
	}

	s.mu.Lock()
	s.issues[issue.Plugin] = append(s.issues[issue.Plugin], issue)
	s.mu.Unlock()

	klog.V(2).Infof("issue raised by %s: %s: %s", issue.Plugin, issue.Type, issue.Desc)
	metrics.OnIssue(issue.Plugin, issue.Type)
	return nil
}

// Plugin returns the issues of a single plugin in the order they were added.
func (s *Store) Plugin(plugin string) []Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Issue(nil), s.issues[plugin]...)
}

// All returns every issue grouped by plugin.
func (s *Store) All() map[string][]Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Issue, len(s.issues))
	for plugin, issues := range s.issues {
		out[plugin] = append([]Issue(nil), issues...)
	}
	return out
}

// Plugins lists the plugins that raised at least one issue, sorted.
func (s *Store) Plugins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plugins := make([]string, 0, len(s.issues))
	for p := range s.issues {
		plugins = append(plugins, p)
	}
	sort.Strings(plugins)
	return plugins
}

// ByType groups the descriptions of a plugin's issues by issue type, which is
// how they are presented in a summary.
func (s *Store) ByType(plugin string) map[string][]string {
	out := make(map[string][]string)
	for _, issue := range s.Plugin(plugin) {
		out[issue.Type] = append(out[issue.Type], issue.Desc)
	}
	return out
}

type storeFile struct {
	RunID  string             `yaml:"run-id"`
	Issues map[string][]Issue `yaml:"issues"`
}

// Save writes the store to path as YAML.
func (s *Store) Save(path string) error {
	content, err := yaml.Marshal(storeFile{RunID: s.runID, Issues: s.All()})
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// Load reads a store previously written by Save.
func Load(path string) (*Store, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f storeFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("invalid issues file %s: %w", path, err)
	}

	s := &Store{runID: f.RunID, issues: make(map[string][]Issue)}
	for plugin, issues := range f.Issues {
		for _, issue := range issues {
			issue.Plugin = plugin
			s.issues[plugin] = append(s.issues[plugin], issue)
		}
	}
	return s, nil
}
