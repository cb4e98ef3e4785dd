package main

import (
	"context"
	"fmt"

	"github.com/amp-labs/wizard/cli"
	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: "Walk through a flow in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompter := a.prompter
			if prompter == nil {
				prompter = cli.NewTerminal()
			}

			return a.run(cmd.Context(), args[0], prompter)
		},
	}

	cmd.Flags().Duration("actions.timeout", statemachine.DefaultActionTimeout, "collaborator call timeout")

	return cmd
}

func (a *app) run(ctx context.Context, flow string, prompter cli.Prompter) error {
	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	cfg, err := catalog.Config(flow)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	ctx = logger.WithFlow(logger.WithSessionID(ctx, id), flow)

	m, err := catalog.NewMachine(flow,
		statemachine.WithSessionID(id),
		statemachine.WithTimeout(a.cfg.Actions.Timeout),
		statemachine.WithLogger(statemachine.NewDefaultLogger(logger.Get(ctx))),
		statemachine.WithNavigator(statemachine.NavigatorFunc(func(_ context.Context, destination string) {
			logger.Get(ctx).Debug("Flow finished", "destination", destination)
		})))
	if err != nil {
		return err
	}

	defer func() { _ = m.Close() }()

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("starting %s: %w", flow, err)
	}

	driver := &cli.Driver{
		Machine:  m,
		Config:   cfg,
		Prompter: prompter,
		Out:      a.stdout,
	}

	return driver.Run(ctx)
}
