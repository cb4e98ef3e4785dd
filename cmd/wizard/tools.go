package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/amp-labs/wizard/statemachine/validator"
	"github.com/amp-labs/wizard/statemachine/visualizer"
	"github.com/spf13/cobra"
)

var errLintFailed = errors.New("lint failed")

func newFlowsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List the built-in flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			for _, name := range catalog.Names() {
				cfg, err := catalog.Config(name)
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "%s\t%s\n", name, cfg.Description)
			}

			return w.Flush()
		},
	}
}

func newDiagramCommand(a *app) *cobra.Command {
	var (
		file      string
		direction string
		theme     string
		fenced    bool
		noActions bool
	)

	cmd := &cobra.Command{
		Use:   "diagram [flow]",
		Short: "Print a Mermaid state diagram of a flow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := visualizer.DefaultOptions().
				WithDirection(direction).
				WithTheme(theme).
				WithFenced(fenced).
				WithShowActions(!noActions)

			var (
				diagram string
				err     error
			)

			switch {
			case file != "":
				diagram, err = visualizer.GenerateMermaidFromFile(a.fs, file, opts)
			case len(args) == 1:
				diagram, err = a.builtinDiagram(args[0], opts)
			default:
				return errors.New("name a flow or pass --file")
			}

			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), diagram)

			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "flow definition file instead of a built-in flow")
	flags.StringVar(&direction, "direction", "TB", "diagram direction (TB, LR)")
	flags.StringVar(&theme, "theme", "default", "color theme")
	flags.BoolVar(&fenced, "fenced", false, "wrap in a ```mermaid block")
	flags.BoolVar(&noActions, "no-actions", false, "hide step actions")

	return cmd
}

func (a *app) builtinDiagram(flow string, opts visualizer.Options) (string, error) {
	catalog, err := a.catalog()
	if err != nil {
		return "", err
	}

	cfg, err := catalog.Config(flow)
	if err != nil {
		return "", err
	}

	return visualizer.GenerateMermaidWithOptions(cfg, opts)
}

func newLintCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "lint [file...]",
		Short: "Check flow definitions; the built-in flows when no file is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}

			reg := catalog.Registry()

			type linted struct {
				name   string
				result validator.ValidationResult
			}

			var results []linted

			if len(args) == 0 {
				for _, name := range catalog.Names() {
					cfg, err := catalog.Config(name)
					if err != nil {
						return err
					}

					rules := validator.DefaultRules(reg)
					if strict {
						results = append(results, linted{name, validator.ValidateWithRulesStrict(cfg, rules)})
					} else {
						results = append(results, linted{name, validator.ValidateWithRules(cfg, rules)})
					}
				}
			}

			for _, path := range args {
				// A file that fails to load is reported like any other error.
				result, _ := validator.ValidateFile(a.fs, path, reg, strict)
				results = append(results, linted{path, result})
			}

			failed := false
			out := cmd.OutOrStdout()

			for _, l := range results {
				fmt.Fprintf(out, "%s: %s", l.name, l.result.String())

				if l.result.HasErrors() {
					failed = true
				}
			}

			if failed {
				return errLintFailed
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")

	return cmd
}
