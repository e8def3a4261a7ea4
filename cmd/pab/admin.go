package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pabench/internal/config"
	"pabench/internal/domain"
	"pabench/internal/engine"
	"pabench/internal/server"
	"pabench/internal/snapshot"
)

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Convert calendar state to and from iCalendar",
	}
	cmd.AddCommand(calendarExportCmd())
	cmd.AddCommand(calendarImportCmd())
	return cmd
}

func calendarExportCmd() *cobra.Command {
	var out string
	var live bool
	cmd := &cobra.Command{
		Use:   "export <scenario-id>",
		Short: "Write a scenario's seed calendar (or the live one) as .ics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sc, err := e.Scenario(args[0])
				if err != nil {
					return err
				}
				var st snapshot.State
				if live {
					inst, err := resolveInstances(ctx, e)
					if err != nil {
						return err
					}
					st, err = inst.FetchState(ctx)
					if err != nil {
						return err
					}
				} else {
					st, err = sc.SeedState()
					if err != nil {
						return err
					}
				}
				var w io.Writer = os.Stdout
				toFile := out != "" && out != "-"
				if toFile {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				n, err := snapshot.EncodeICS(w, st.Events, e.Now())
				if err != nil {
					return err
				}
				if toFile {
					fmt.Fprintf(os.Stderr, "wrote %d of %d events to %s\n", n, len(st.Events), out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&live, "live", false, "export the calendar instance instead of the seed")
	return cmd
}

func calendarImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Print the events of an .ics file in calendar state form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			events, err := snapshot.DecodeICS(f)
			if err != nil {
				return err
			}
			if events == nil {
				events = []domain.Event{}
			}
			return printJSON(map[string]any{"events": events})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage pab.yml",
		Long:  "pab.yml sets where scenarios live, the snapshot keys for each service, how instances are reached or created, the API server and outbound webhooks. Every field has a default, so the file is optional.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pab.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Server.JWTSecret != "" {
				shown.Server.JWTSecret = "********"
			}
			return printJSONOrTable(shown)
		},
	}
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate pab.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if file != "" {
				_, err = config.FromFile(file)
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "validate this file instead of the workspace pab.yml")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{JWTSecret: jwtSecret(e.Config), Disabled: noAuth}
				if authCfg.JWTSecret == "" && !noAuth {
					return fmt.Errorf("PAB_JWT_SECRET or server.jwt_secret is required for bearer auth (or pass --no-auth)")
				}
				logger := log.New(os.Stderr, "pab ", log.LstdFlags)
				e.Logger = logger
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     authCfg,
					Live:     liveInstances(e.Config),
					Context:  ctx,
					Logger:   logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving PA Bench verifier on http://%s%s (OpenAPI at /openapi.json, docs at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "disable bearer auth")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject, roles string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := jwtSecret(cfg)
			if secret == "" {
				return fmt.Errorf("PAB_JWT_SECRET or server.jwt_secret is required")
			}
			var roleList []string
			for _, r := range strings.Split(roles, ",") {
				if r = strings.TrimSpace(r); r != "" {
					roleList = append(roleList, r)
				}
			}
			token, err := server.SignToken(secret, subject, roleList, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "subject": subject, "roles": roleList})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "pab", "token subject")
	cmd.Flags().StringVar(&roles, "roles", "", "comma-separated roles")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func jwtSecret(cfg *config.Config) string {
	if v := strings.TrimSpace(viper.GetString("jwt_secret")); v != "" {
		return v
	}
	return cfg.Server.JWTSecret
}
