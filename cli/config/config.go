package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/internal/plugins"
	"github.com/scitix/snapcheck/pkg/searchtools"
)

const EnvPrefix = "SNAPCHECK"

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

type SnapCheckConfig struct {
	ConfigFile string
	Debug      bool

	DataRoot            string
	DefsPath            string
	AllLogs             bool
	MaxLogrotateDepth   int
	MaxParallelTasks    int
	AgentErrorKeyByTime bool
	Plugins             []string

	Format          string
	MinimalMode     bool
	Save            bool
	IssuesFile      string
	MetricsTextfile string
}

func LoadConfig() *SnapCheckConfig {
	return &SnapCheckConfig{
		DataRoot:          "/",
		DefsPath:          GetDefaultDefsPath(),
		MaxLogrotateDepth: 7,
		MaxParallelTasks:  8,
		Format:            FormatYAML,
	}
}

// GetDefaultDefsPath returns the defs directory next to the executable.
func GetDefaultDefsPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "defs"
	}
	return filepath.Join(filepath.Dir(exe), "defs")
}

// Complete reads the config file and environment into c. Values explicitly
// set on the command line win over env vars, which win over the config file.
func (c *SnapCheckConfig) Complete(flags *pflag.FlagSet) error {
	v := viper.New()
	c.setDefaults(v)
	if err := initConfig(v, c.ConfigFile, flags); err != nil {
		return err
	}

	c.Debug = v.GetBool("debug")
	c.DataRoot = v.GetString("data-root")
	c.DefsPath = v.GetString("defs-path")
	c.AllLogs = v.GetBool("all-logs")
	c.MaxLogrotateDepth = v.GetInt("max-logrotate-depth")
	c.MaxParallelTasks = v.GetInt("max-parallel-tasks")
	c.AgentErrorKeyByTime = v.GetBool("agent-error-key-by-time")
	c.Plugins = v.GetStringSlice("plugin")
	c.Format = strings.ToLower(v.GetString("format"))
	c.MinimalMode = v.GetBool("minimal-mode")
	c.Save = v.GetBool("save")
	c.IssuesFile = v.GetString("issues-file")
	c.MetricsTextfile = v.GetString("metrics-textfile")

	if c.Debug {
		if err := flag.CommandLine.Set("v", "4"); err != nil {
			klog.Warningf("Failed to raise log verbosity: %v", err)
		}
	}
	return c.validate()
}

// setDefaults registers the current values so keys without a flag on the
// running command still resolve.
func (c *SnapCheckConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("data-root", c.DataRoot)
	v.SetDefault("defs-path", c.DefsPath)
	v.SetDefault("all-logs", c.AllLogs)
	v.SetDefault("max-logrotate-depth", c.MaxLogrotateDepth)
	v.SetDefault("max-parallel-tasks", c.MaxParallelTasks)
	v.SetDefault("agent-error-key-by-time", c.AgentErrorKeyByTime)
	v.SetDefault("plugin", c.Plugins)
	v.SetDefault("format", c.Format)
	v.SetDefault("minimal-mode", c.MinimalMode)
	v.SetDefault("save", c.Save)
	v.SetDefault("issues-file", c.IssuesFile)
	v.SetDefault("metrics-textfile", c.MetricsTextfile)
}

func (c *SnapCheckConfig) validate() error {
	if c.Format != FormatYAML && c.Format != FormatJSON {
		return fmt.Errorf("invalid format %q, should be yaml/json", c.Format)
	}
	if c.MaxParallelTasks < 1 {
		return fmt.Errorf("max-parallel-tasks must be positive, got %d", c.MaxParallelTasks)
	}
	if c.MaxLogrotateDepth < 0 {
		return fmt.Errorf("max-logrotate-depth cannot be negative, got %d", c.MaxLogrotateDepth)
	}
	if _, err := os.Stat(c.DataRoot); err != nil {
		return fmt.Errorf("invalid data-root: %w", err)
	}
	return nil
}

// RunnerOptions maps the configuration onto plugin runner options.
func (c *SnapCheckConfig) RunnerOptions() plugins.Options {
	return plugins.Options{
		DefsPath:            c.DefsPath,
		MaxParallel:         c.MaxParallelTasks,
		AgentErrorKeyByTime: c.AgentErrorKeyByTime,
		Search: searchtools.Options{
			AllLogs:           c.AllLogs,
			MaxLogrotateDepth: c.MaxLogrotateDepth,
			MaxParallel:       c.MaxParallelTasks,
		},
	}
}

// initConfig reads the config file (if set) and binds all pflags to v so
// that config-file values fill in any flag that was not explicitly set on the
// CLI.  Priority: CLI flag > env var > config file > flag default.
func initConfig(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		klog.V(2).Infof("Using config file: %s", v.ConfigFileUsed())
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr := v.BindPFlag(f.Name, f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}
