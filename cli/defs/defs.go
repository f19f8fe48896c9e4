package defs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/cli/config"
	"github.com/scitix/snapcheck/internal/ycheck/engine"
	"github.com/scitix/snapcheck/internal/ycheck/scenarios"
	"github.com/scitix/snapcheck/pkg/hostfacts"
)

func NewCommand(config *config.SnapCheckConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "defs",
		Short: "Manage snapcheck rule definitions",
	}

	c.AddCommand(
		NewValidateCommand(config, "validate"),
	)

	return c
}

func NewValidateCommand(config *config.SnapCheckConfig, use string) *cobra.Command {
	o := &validateOptions{
		config: config,
		out:    os.Stdout,
	}

	return &cobra.Command{
		Use:   use + " [plugin...]",
		Short: "Load rule definitions and report definition errors without evaluating them",
		Run: func(cmd *cobra.Command, args []string) {
			if err := o.run(args); err != nil {
				klog.Fatalf("Validate failed: %v", err)
			}
		},
		Example: `snapcheck defs validate --defs-path ./defs
snapcheck defs validate openstack kernel`,
	}
}

type validateOptions struct {
	config *config.SnapCheckConfig
	out    io.Writer
}

func (o *validateOptions) run(plugins []string) error {
	env := &engine.Env{Facts: hostfacts.NewProvider(o.config.DataRoot)}
	checker := scenarios.NewChecker(o.config.DefsPath, env, o.config.MaxParallelTasks)

	if len(plugins) == 0 {
		var err error
		if plugins, err = checker.Plugins(); err != nil {
			return err
		}
	}

	var errs []error
	for _, plugin := range plugins {
		if err := checker.Validate(plugin); err != nil {
			fmt.Fprintf(o.out, "%s: INVALID: %v\n", plugin, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(o.out, "%s: OK\n", plugin)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d plugin(s) invalid: %w", len(errs), len(plugins), errors.Join(errs...))
	}
	return nil
}
