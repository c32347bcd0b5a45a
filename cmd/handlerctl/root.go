package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ehs-handlers/internal/logger"
)

type globalFlags struct {
	org      string
	workflow string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "handlerctl",
		Short:        "Resolve EHS workflow handlers from snapshot files",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.org, "org", "", "Organisation snapshot YAML (departments, users) (required)")
	cmd.PersistentFlags().StringVar(&g.workflow, "workflow", "", "Workflow steps YAML (required)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log strategy diagnostics to stderr")
	_ = cmd.MarkPersistentFlagRequired("org")
	_ = cmd.MarkPersistentFlagRequired("workflow")

	cmd.AddCommand(newResolveCmd(g), newApproversCmd(g))
	return cmd
}

func (g *globalFlags) logger() zerolog.Logger {
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	return logger.New(logger.Config{
		Level:       level,
		Environment: "development",
		ServiceName: "handlerctl",
		Output:      os.Stderr,
	}).Logger
}
