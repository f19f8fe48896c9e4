package scenarios

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/internal/ycheck/engine"
	"github.com/scitix/snapcheck/pkg/issues"
)

// Checker loads the scenario definitions of a plugin and runs them.
type Checker struct {
	defsPath    string
	env         *engine.Env
	maxParallel int
}

func NewChecker(defsPath string, env *engine.Env, maxParallel int) *Checker {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Checker{defsPath: defsPath, env: env, maxParallel: maxParallel}
}

func (c *Checker) pluginDir(plugin string) string {
	return filepath.Join(c.defsPath, "scenarios", plugin)
}

// Plugins lists the plugins that have scenario definitions.
func (c *Checker) Plugins() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.defsPath, "scenarios"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var plugins []string
	for _, e := range entries {
		if e.IsDir() {
			plugins = append(plugins, e.Name())
		}
	}
	return plugins, nil
}

// Load builds the section tree of a plugin. Directories and files become
// sections named after them. A plugin without definitions yields nil.
func (c *Checker) Load(plugin string) (*engine.Section, error) {
	dir := c.pluginDir(plugin)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		klog.V(2).Infof("plugin %s has no scenario definitions", plugin)
		return nil, nil
	}

	root, err := buildNode(dir)
	if err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	return engine.LoadSection(plugin, root, c.env)
}

func buildNode(dir string) (*yaml.Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		var (
			name  string
			child *yaml.Node
		)
		switch ext := filepath.Ext(e.Name()); {
		case e.IsDir():
			if child, err = buildNode(path); err != nil {
				return nil, err
			}
			if len(child.Content) == 0 {
				continue
			}
			name = e.Name()
		case ext == ".yaml" || ext == ".yml":
			if child, err = loadFile(path); err != nil {
				return nil, err
			}
			if child == nil {
				klog.Warningf("skipping empty definition file %s", path)
				continue
			}
			name = strings.TrimSuffix(e.Name(), ext)
		default:
			continue
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, child)
	}
	return node, nil
}

func loadFile(path string) (*yaml.Node, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, &engine.DefinitionError{Path: path, Reason: err.Error()}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// Run evaluates every runnable section of a plugin. Section requires are
// checked serially first; the remaining sections run on a bounded pool and
// their issues are added to sink in definition order once all complete.
// Definition load errors fail the whole plugin; other failures are returned
// as ScenarioErrors after the issues have been recorded.
func (c *Checker) Run(ctx context.Context, plugin string, sink issues.Sink) error {
	root, err := c.Load(plugin)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", plugin, err)
	}
	if root == nil {
		return nil
	}

	var (
		sections []*engine.Section
		errs     []error
	)
	for _, s := range root.Runnable() {
		ok, err := s.Gate()
		if err != nil {
			klog.Errorf("section %s requires failed: %v", s.Path(), err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			klog.V(2).Infof("section %s requirements not met", s.Path())
			continue
		}
		sections = append(sections, s)
	}

	buffers := make([]*buffer, len(sections))
	sectionErrs := make([]error, len(sections))
	g := errgroup.Group{}
	g.SetLimit(c.maxParallel)
	for i, s := range sections {
		buffers[i] = &buffer{}
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sectionErrs[i] = s.Run(ctx, plugin, buffers[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for i, b := range buffers {
		for _, issue := range b.issues {
			if err := sink.Add(issue); err != nil {
				errs = append(errs, err)
			}
		}
		if sectionErrs[i] != nil {
			errs = append(errs, sectionErrs[i])
		}
	}
	klog.V(2).Infof("plugin %s: ran %d section(s)", plugin, len(sections))
	if len(errs) > 0 {
		return ScenarioErrors(errs)
	}
	return nil
}

// ScenarioErrors collects the failures of individual sections and
// scenarios. They never prevent other scenarios from running.
type ScenarioErrors []error

func (e ScenarioErrors) Error() string {
	return errors.Join(e...).Error()
}

func (e ScenarioErrors) Unwrap() []error {
	return e
}

// Validate loads the definitions of a plugin without evaluating them.
func (c *Checker) Validate(plugin string) error {
	_, err := c.Load(plugin)
	return err
}

type buffer struct {
	issues []issues.Issue
}

func (b *buffer) Add(issue issues.Issue) error {
	b.issues = append(b.issues, issue)
	return nil
}
