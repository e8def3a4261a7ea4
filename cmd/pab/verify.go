package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pabench/internal/app"
	"pabench/internal/domain"
	"pabench/internal/engine"
	"pabench/internal/snapshot"
)

const (
	exitFailed      = 1
	exitUnavailable = 2
)

func loadScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-scenario <scenario-id>",
		Short: "Push a scenario's seed state into the mailbox and calendar instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Scenario(args[0]); err != nil {
					return err
				}
				inst, err := resolveInstances(ctx, e)
				if err != nil {
					return &exitError{code: exitUnavailable, err: err}
				}
				sc, err := e.LoadScenario(ctx, args[0], inst)
				if err != nil {
					if errors.Is(err, engine.ErrStateUnavailable) {
						return &exitError{code: exitUnavailable, err: err}
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"scenario_id": sc.ID,
						"kind":        sc.Expect.Kind,
						"today":       sc.Today,
						"mailbox":     inst.Endpoints.Mailbox,
						"calendar":    inst.Endpoints.Calendar,
					})
				}
				fmt.Printf("Loaded %s (%s)\n", sc.ID, sc.Expect.Kind)
				fmt.Printf("  mailbox:  %s\n  calendar: %s\n", inst.Endpoints.Mailbox, inst.Endpoints.Calendar)
				if sc.Description != "" {
					fmt.Printf("Task: %s\n", sc.Description)
				}
				return nil
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	var seed bool
	var statePath string
	cmd := &cobra.Command{
		Use:   "verify <scenario-id>",
		Short: "Score the current mailbox and calendar state against a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed && statePath != "" {
				return fmt.Errorf("--seed and --state are mutually exclusive")
			}
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := runVerify(ctx, e, args[0], seed, statePath)
				if err != nil {
					return err
				}
				if err := printRun(run); err != nil {
					return err
				}
				if !run.Passed {
					return &exitError{code: exitFailed}
				}
				return nil
			})
			var ee *exitError
			if err != nil && !errors.As(err, &ee) {
				// Anything that kept the checks from running is not a task failure.
				return &exitError{code: exitUnavailable, err: err}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "score the scenario's own seed state instead of the instances")
	cmd.Flags().StringVar(&statePath, "state", "", "score a combined snapshot file instead of the instances")
	return cmd
}

// runVerify picks the state source. Scenario errors are reported before any
// instance is contacted.
func runVerify(ctx context.Context, e engine.Engine, id string, seed bool, statePath string) (domain.Run, error) {
	if _, err := e.Scenario(id); err != nil {
		return domain.Run{}, &exitError{code: exitUnavailable, err: err}
	}
	switch {
	case seed:
		return e.VerifySeed(ctx, id)
	case statePath != "":
		data, err := os.ReadFile(statePath)
		if err != nil {
			return domain.Run{}, &exitError{code: exitUnavailable, err: err}
		}
		st, err := snapshot.Decode(data, e.Config.State)
		if err != nil {
			return domain.Run{}, &exitError{code: exitUnavailable, err: fmt.Errorf("%s: %w", statePath, err)}
		}
		return e.Verify(ctx, id, st, domain.SourceFile)
	}
	inst, err := resolveInstances(ctx, e)
	if err != nil {
		return domain.Run{}, &exitError{code: exitUnavailable, err: err}
	}
	run, err := e.VerifyLive(ctx, id, inst)
	if err != nil {
		if errors.Is(err, engine.ErrStateUnavailable) {
			return domain.Run{}, &exitError{code: exitUnavailable, err: err}
		}
		return domain.Run{}, err
	}
	return run, nil
}

// resolveInstances settles the instance URLs once so a missing URL is
// reported as a configuration problem rather than a failed fetch.
func resolveInstances(ctx context.Context, e engine.Engine) (engine.Instances, error) {
	live := liveInstances(e.Config)
	ep, err := app.ResolveEndpoints(ctx, live.Options, live.Client)
	if err != nil {
		if errors.Is(err, app.ErrEndpointsUndefined) {
			return engine.Instances{}, fmt.Errorf("configuration: %w", err)
		}
		return engine.Instances{}, err
	}
	return engine.Instances{Client: live.Client, Endpoints: ep}, nil
}

func printRun(run domain.Run) error {
	if viper.GetBool("json") {
		return printJSON(run)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Check", "Result", "Reason"})
	for _, c := range run.Checks {
		tw.AppendRow(table.Row{c.Name, verdictLabel(c.Verdict), c.Reason})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 80}})
	tw.Render()
	fmt.Printf("%s  reward=%.2f  %s\n", verdictLabel(run.Passed), run.Reward, run.Message)
	fmt.Printf("run %s (%s, %s)\n", run.ID, run.ScenarioID, strings.ToLower(run.Source))
	return nil
}
