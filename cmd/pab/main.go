package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"pabench/internal/app"
	"pabench/internal/config"
	"pabench/internal/db"
	"pabench/internal/engine"
	"pabench/internal/migrate"
	"pabench/internal/repo"
	"pabench/internal/scenario"
	"pabench/internal/worlds"
)

var rootCmd = &cobra.Command{
	Use:   "pab",
	Short: "PA Bench verifier CLI",
	Long: `pab scores how well an agent handled an email and calendar task.
- Scenario: a directory under the data path holding data.json (seed mailbox and calendar), task.json (what the agent is asked to do) and verifier.yml (what a correct outcome looks like).
- load-scenario pushes a scenario's seed state into running mailbox and calendar instances.
- verify reads the state back and runs the checks for the scenario's kind; reward is the share of checks that passed.
- Runs and an event log are kept in the workspace database (.pab/pab.db).
- Exit codes for verify: 0 all checks passed, 1 some check failed, 2 the state could not be evaluated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintln(os.Stderr, "error:", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("data-path", "", "scenario directory (overrides pab.yml data_path)")
	flags.String("gmail-url", "", "mailbox instance URL (overrides GMAIL_INSTANCE_URL)")
	flags.String("calendar-url", "", "calendar instance URL (overrides CALENDAR_INSTANCE_URL)")
	flags.String("worlds-base-url", "", "worlds API base URL used to create instances")
	flags.String("env-file", "", "dotenv file holding instance URLs")
	for _, name := range []string{"workspace", "json", "data-path", "gmail-url", "calendar-url", "worlds-base-url", "env-file"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(loadScenarioCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(statusCmd())
}

// --- helpers ---

// loadConfig reads pab.yml when present and applies flag overrides.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(viper.GetString("data-path")); v != "" {
		cfg.DataPath = v
	}
	if v := strings.TrimSpace(viper.GetString("worlds-base-url")); v != "" {
		cfg.Worlds.BaseURL = v
	}
	if v := strings.TrimSpace(viper.GetString("env-file")); v != "" {
		cfg.Worlds.EnvFile = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func dataPath(workspace string, cfg *config.Config) string {
	if filepath.IsAbs(cfg.DataPath) {
		return cfg.DataPath
	}
	return filepath.Join(workspace, cfg.DataPath)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	e := engine.New(conn, cfg, scenario.NewLoader(dataPath(workspace, cfg), cfg.State))
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// liveInstances builds the state source for the configured instances.
// Flags win over pab.yml, which wins over the environment.
func liveInstances(cfg *config.Config) app.Live {
	workspace := viper.GetString("workspace")
	opts := app.EndpointOptionsFromConfig(workspace, cfg)
	if v := strings.TrimSpace(viper.GetString("gmail-url")); v != "" {
		opts.MailboxURL = v
	}
	if v := strings.TrimSpace(viper.GetString("calendar-url")); v != "" {
		opts.CalendarURL = v
	}
	client := worlds.New(cfg.Worlds.Timeout())
	if cfg.Worlds.HostTemplate != "" {
		client.HostTemplate = cfg.Worlds.HostTemplate
	}
	return app.Live{Options: opts, Client: client}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func colorize() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func verdictLabel(ok bool) string {
	label, color := "FAIL", text.Colors{text.FgRed, text.Bold}
	if ok {
		label, color = "PASS", text.Colors{text.FgGreen, text.Bold}
	}
	if !colorize() {
		return label
	}
	return color.Sprint(label)
}
