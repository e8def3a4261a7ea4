package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pabench/internal/db"
	"pabench/internal/engine"
	"pabench/internal/migrate"
	"pabench/internal/repo"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace, database and scenario status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				version, err := migrate.Version(ctx, e.DB)
				if err != nil {
					return err
				}
				latest, err := migrate.Latest()
				if err != nil {
					return err
				}
				ids, err := e.Loader.List()
				if err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				status := map[string]any{
					"workspace":      workspace,
					"database":       db.Path(workspace),
					"schema_version": version,
					"schema_latest":  latest,
					"data_path":      e.Loader.BasePath,
					"scenarios":      len(ids),
				}
				if viper.GetBool("json") {
					return printJSON(status)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				for _, k := range []string{"workspace", "database", "schema_version", "schema_latest", "data_path", "scenarios"} {
					tw.AppendRow(table.Row{k, status[k]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "scenario", Short: "Inspect scenarios"}
	cmd.AddCommand(scenarioListCmd())
	cmd.AddCommand(scenarioShowCmd())
	return cmd
}

type scenarioRow struct {
	ID          string `json:"id"`
	Kind        string `json:"kind,omitempty"`
	Today       string `json:"today,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

func scenarioListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenarios under the data path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.Loader.List()
				if err != nil {
					return err
				}
				rows := make([]scenarioRow, 0, len(ids))
				for _, id := range ids {
					sc, err := e.Scenario(id)
					if err != nil {
						rows = append(rows, scenarioRow{ID: id, Error: err.Error()})
						continue
					}
					rows = append(rows, scenarioRow{ID: id, Kind: string(sc.Expect.Kind), Today: sc.Today, Description: sc.Description})
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Today", "Task"})
				for _, r := range rows {
					desc := r.Description
					if r.Error != "" {
						desc = "invalid: " + r.Error
					}
					tw.AppendRow(table.Row{r.ID, r.Kind, r.Today, desc})
				}
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 70}})
				tw.Render()
				return nil
			})
		},
	}
}

func scenarioShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <scenario-id>",
		Short: "Show a scenario's task and expected outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sc, err := e.Scenario(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(sc)
			})
		},
	}
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "runs", Short: "Inspect recorded verification runs"}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsStatsCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var scenarioID, passed string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.RunFilters{ScenarioID: scenarioID, Limit: limit}
			if passed != "" {
				v, err := strconv.ParseBool(passed)
				if err != nil {
					return fmt.Errorf("--passed must be true or false")
				}
				f.Passed = &v
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				runs, err := r.ListRuns(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Scenario", "Kind", "Source", "Reward", "Result", "Created"})
				for _, run := range runs {
					tw.AppendRow(table.Row{run.ID, run.ScenarioID, run.Kind, run.Source, fmt.Sprintf("%.2f", run.Reward), verdictLabel(run.Passed), run.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scenarioID, "scenario", "", "filter by scenario id")
	cmd.Flags().StringVar(&passed, "passed", "", "filter by outcome (true|false)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				run, err := r.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printRun(run)
			})
		},
	}
}

func runsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Pass rate and mean reward per scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				stats, err := r.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Scenario", "Runs", "Passed", "Mean reward", "Last run"})
				for _, s := range stats {
					tw.AppendRow(table.Row{s.ScenarioID, s.Runs, s.Passed, fmt.Sprintf("%.3f", s.MeanReward), s.LastRunAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.ScenarioID, "scenario", "", "scenario id")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}
