package cli

import (
	"flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/cli/config"
	"github.com/scitix/snapcheck/cli/defs"
	"github.com/scitix/snapcheck/cli/run"
	"github.com/scitix/snapcheck/version"
)

func NewCommand(name string) *cobra.Command {
	f := config.LoadConfig()
	c := &cobra.Command{
		Use:     name,
		Short:   "Analyse a machine snapshot against YAML rule definitions",
		Long:    "Analyse a live host or a sosreport-style snapshot and report potential issues found by YAML rule definitions",
		Version: version.RELEASE,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := f.Complete(cmd.Flags()); err != nil {
				klog.Fatalf("Complete config failed: %v", err)
			}
		},
		SilenceUsage: true,
	}

	c.PersistentFlags().StringVar(&f.ConfigFile, "config", "", "Path to the configuration file.")
	c.PersistentFlags().Bool("debug", false, "Enable debug logging, same as -v=4.")
	c.PersistentFlags().String("data-root", f.DataRoot, "Root of the snapshot to analyse, / for the live host.")
	c.PersistentFlags().String("defs-path", f.DefsPath, "Root of the rule definitions.")
	c.PersistentFlags().Int("max-parallel-tasks", f.MaxParallelTasks, "Max plugins, sections and files processed concurrently.")

	c.AddCommand(
		run.NewCommand(f, "run"),
		defs.NewCommand(f),
	)
	c.SetVersionTemplate(version.String() + "\n")

	// init add the klog flags
	klog.InitFlags(flag.CommandLine)
	c.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	return c
}
