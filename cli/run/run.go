package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/cli/config"
	"github.com/scitix/snapcheck/internal/plugins"
	"github.com/scitix/snapcheck/pkg/hostfacts"
	"github.com/scitix/snapcheck/pkg/issues"
	"github.com/scitix/snapcheck/pkg/metrics"
	"github.com/scitix/snapcheck/tools"
)

func NewCommand(config *config.SnapCheckConfig, use string) *cobra.Command {
	o := &runOptions{
		config: config,
		out:    os.Stdout,
	}

	c := &cobra.Command{
		Use:   use + " [plugin...]",
		Short: "Run plugins against a snapshot and report the summary",
		Run: func(cmd *cobra.Command, args []string) {
			if err := o.complete(args); err != nil {
				klog.Fatalf("%v", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go tools.HandleInterrupt(ctx, cancel, func(code int) {
				klog.Flush()
				os.Exit(code)
			})

			if err := o.run(ctx); err != nil {
				klog.Fatalf("Run failed: %v", err)
			}
		},
		Example: `snapcheck run --data-root /tmp/sosreport-host1 --plugin kernel --plugin openstack
snapcheck run --minimal-mode --format json`,
	}

	c.Flags().Bool("all-logs", false, "Include the logrotate history of every searched file.")
	c.Flags().Int("max-logrotate-depth", config.MaxLogrotateDepth, "Max rotated files scanned per path.")
	c.Flags().Bool("agent-error-key-by-time", false, "Key agent errors by date and time instead of date.")
	c.Flags().StringSlice("plugin", nil, "Plugin to run, may be repeated. Runs all plugins if unset.")
	c.Flags().String("format", config.Format, "Output format, yaml or json.")
	c.Flags().Bool("minimal-mode", false, "Only output potential issues.")
	c.Flags().Bool("save", false, "Write the summary to <name>.summary instead of stdout.")
	c.Flags().String("issues-file", "", "Persist raised issues to this file.")
	c.Flags().String("metrics-textfile", "", "Write run metrics to this textfile.")

	return c
}

type runOptions struct {
	plugins []string

	config *config.SnapCheckConfig
	out    io.Writer
}

// positional plugins are appended to --plugin
func (o *runOptions) complete(args []string) error {
	o.plugins = append(append([]string{}, o.config.Plugins...), args...)
	for _, p := range o.plugins {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("plugin name cannot be empty")
		}
	}
	return nil
}

func (o *runOptions) run(ctx context.Context) error {
	facts := hostfacts.NewProvider(o.config.DataRoot)
	store := issues.NewStore()
	runner := plugins.NewRunner(facts, store, o.config.RunnerOptions())

	names := o.plugins
	if len(names) == 0 {
		var err error
		if names, err = runner.Plugins(); err != nil {
			return err
		}
	}
	klog.V(2).InfoS("Starting run", "run-id", store.RunID(), "data-root", o.config.DataRoot, "plugins", names)

	results, err := runner.RunAll(ctx, names)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		// failed plugins are omitted from results
		klog.Errorf("Some plugins failed: %v", err)
	}

	summary := buildSummary(results, store, o.config.MinimalMode)
	content, mErr := encode(summary, o.config.Format)
	if mErr != nil {
		return mErr
	}

	if o.config.Save {
		path := summaryFileName(facts)
		if wErr := os.WriteFile(path, content, 0o644); wErr != nil {
			return wErr
		}
		klog.Infof("Summary saved to %s", path)
	} else if _, wErr := o.out.Write(content); wErr != nil {
		return wErr
	}

	if o.config.IssuesFile != "" {
		if sErr := store.Save(o.config.IssuesFile); sErr != nil {
			return fmt.Errorf("save issues: %w", sErr)
		}
	}
	if o.config.MetricsTextfile != "" {
		if mErr := metrics.WriteTextfile(o.config.MetricsTextfile); mErr != nil {
			return fmt.Errorf("write metrics: %w", mErr)
		}
	}
	return err
}

// buildSummary keeps only the issues of each plugin in minimal mode.
func buildSummary(results map[string]map[string]interface{}, store *issues.Store, minimal bool) map[string]interface{} {
	summary := make(map[string]interface{}, len(results))
	if !minimal {
		for plugin, out := range results {
			summary[plugin] = out
		}
		return summary
	}

	for _, plugin := range store.Plugins() {
		if _, ok := results[plugin]; !ok {
			continue
		}
		summary[plugin] = map[string]interface{}{
			plugins.IssuesKey: store.ByType(plugin),
		}
	}
	return summary
}

func encode(summary map[string]interface{}, format string) ([]byte, error) {
	switch format {
	case config.FormatJSON:
		content, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(content, '\n'), nil
	case config.FormatYAML:
		if len(summary) == 0 {
			return []byte("{}\n"), nil
		}
		return yaml.Marshal(summary)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func summaryFileName(facts *hostfacts.Provider) string {
	name := facts.Hostname()
	if name == "" {
		name = filepath.Base(filepath.Clean(facts.DataRoot()))
	}
	if name == "" || name == string(filepath.Separator) || name == "." {
		name = "snapcheck"
	}
	return name + ".summary"
}
