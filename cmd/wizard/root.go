package main

import (
	"io"
	"os"

	"github.com/amp-labs/wizard/cli"
	"github.com/amp-labs/wizard/config"
	"github.com/amp-labs/wizard/flows"
	"github.com/amp-labs/wizard/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const appName = "wizard"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	fs         afero.Fs
	configPath string
	stdout     io.Writer
	stderr     io.Writer
	prompter   cli.Prompter

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&app{fs: afero.NewOsFs(), stdout: os.Stdout, stderr: os.Stderr})
}

func newRootCommandWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Multi-step wizard flows with validated steps and cancellable actions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.fs, a.configPath, cmd.Flags())
			if err != nil {
				return err
			}

			a.cfg = cfg

			logger.ConfigureLogging(appName,
				logger.WithJSON(cfg.Log.JSON),
				logger.WithLevel(cfg.LogLevel()),
				logger.WithOutput(a.stderr))

			return nil
		},
	}

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log.json", false, "log as JSON")

	root.AddCommand(
		newServeCommand(a),
		newRunCommand(a),
		newFlowsCommand(a),
		newDiagramCommand(a),
		newLintCommand(a),
	)

	return root
}

func (a *app) catalog() (*flows.Catalog, error) {
	tokens, err := a.cfg.TokenIssuer()
	if err != nil {
		return nil, err
	}

	return flows.NewCatalog(a.cfg.FlowOptions(tokens))
}
