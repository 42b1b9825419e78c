package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const rootLongDescription = `Guardian keeps a machine-readable snapshot of a repository fresh for coding
agents: file inventory, inferred purposes, symbols, tech stack, quality
findings and plan compliance. Outputs are written under the state directory
(.guardian by default).`

// app carries what every command needs after flags and config are merged.
type app struct {
	root string
	opts guardian.Options
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "guardian",
		Short:         "Repository snapshot and quality guardian",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP(rootFlagName, "r", v.GetString(rootFlagName), "project root directory")
	bindFlagToConfig(v, cmd.PersistentFlags().Lookup(rootFlagName), rootFlagName)
	cmd.PersistentFlags().BoolP(verboseFlagName, "v", v.GetBool(verboseFlagName), "log at debug level")
	bindFlagToConfig(v, cmd.PersistentFlags().Lookup(verboseFlagName), verboseFlagName)

	cmd.AddCommand(
		newScanCmd(v),
		newWatchCmd(v),
		newQualityCmd(v),
		newStatusCmd(v),
		newPlanCmd(v),
		newInitCmd(v),
		newVersionCmd(),
	)
	return cmd
}

// bindFlagToConfig wires a cobra flag to a viper key so config and env values feed it.
func bindFlagToConfig(v *viper.Viper, flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

// loadApp resolves options and configures logging into the state directory.
func loadApp(v *viper.Viper) (*app, error) {
	opts, err := loadOptions(v)
	if err != nil {
		return nil, err
	}
	root := v.GetString(rootFlagName)
	if root == "" {
		root = "."
	}
	configureLogger(v, opts.StatePath(root, opts.LogFile), v.GetBool(verboseFlagName))
	return &app{root: root, opts: opts}, nil
}

// Execute runs the guardian CLI and exits non-zero on failure.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd(viper.GetViper()).ExecuteContext(ctx); err != nil {
		if err.Error() != "" {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		cancel()
		os.Exit(exitCode(err))
	}
}

// exitError carries a specific process exit code. An empty message means the
// command already reported the outcome.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}
