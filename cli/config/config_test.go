package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func newFlags(c *SnapCheckConfig) *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&c.ConfigFile, "config", "", "")
	flags.String("data-root", c.DataRoot, "")
	flags.String("defs-path", c.DefsPath, "")
	flags.Int("max-parallel-tasks", c.MaxParallelTasks, "")
	flags.Int("max-logrotate-depth", c.MaxLogrotateDepth, "")
	flags.Bool("all-logs", false, "")
	flags.StringSlice("plugin", nil, "")
	flags.String("format", c.Format, "")
	flags.Bool("minimal-mode", false, "")
	return flags
}

func TestCompleteDefaults(t *testing.T) {
	c := LoadConfig()
	flags := newFlags(c)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Complete(flags); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if c.DataRoot != "/" {
		t.Errorf("DataRoot = %q, want /", c.DataRoot)
	}
	if c.MaxLogrotateDepth != 7 || c.MaxParallelTasks != 8 {
		t.Errorf("got depth %d parallel %d, want 7 and 8", c.MaxLogrotateDepth, c.MaxParallelTasks)
	}
	if c.Format != FormatYAML {
		t.Errorf("Format = %q, want yaml", c.Format)
	}
	if filepath.Base(c.DefsPath) != "defs" {
		t.Errorf("DefsPath = %q, want a defs directory", c.DefsPath)
	}
	if len(c.Plugins) != 0 {
		t.Errorf("Plugins = %v, want none", c.Plugins)
	}
}

func TestCompletePriority(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "snapcheck.yaml")
	content := "data-root: " + dir + "\nformat: json\nmax-parallel-tasks: 3\nmax-logrotate-depth: 2\nplugin: [kernel]\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SNAPCHECK_MAX_PARALLEL_TASKS", "5")
	t.Setenv("SNAPCHECK_MINIMAL_MODE", "true")

	c := LoadConfig()
	flags := newFlags(c)
	if err := flags.Parse([]string{"--config", cfgFile, "--max-logrotate-depth", "1"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Complete(flags); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"file", c.DataRoot, dir},
		{"file format", c.Format, FormatJSON},
		{"file slice", c.Plugins, []string{"kernel"}},
		{"env over file", c.MaxParallelTasks, 5},
		{"env only", c.MinimalMode, true},
		{"flag over file", c.MaxLogrotateDepth, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	opts := c.RunnerOptions()
	if opts.MaxParallel != 5 || opts.Search.MaxLogrotateDepth != 1 || opts.Search.MaxParallel != 5 {
		t.Errorf("RunnerOptions() = %+v", opts)
	}
}

func TestCompleteInvalid(t *testing.T) {
	tests := map[string][]string{
		"format":       {"--format", "xml"},
		"parallel":     {"--max-parallel-tasks", "0"},
		"depth":        {"--max-logrotate-depth", "-1"},
		"data root":    {"--data-root", "/does/not/exist"},
		"missing file": {"--config", "/does/not/exist.yaml"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			c := LoadConfig()
			flags := newFlags(c)
			if err := flags.Parse(args); err != nil {
				t.Fatal(err)
			}
			if err := c.Complete(flags); err == nil {
				t.Errorf("Complete(%v) expected error", args)
			}
		})
	}
}
