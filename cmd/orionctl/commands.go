package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orion-triage-server/internal/app"
	"github.com/orion-triage-server/internal/config"
	"github.com/orion-triage-server/internal/database"
	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/logging"
	"github.com/orion-triage-server/internal/setup"
)

// cli carries what PersistentPreRunE loads for every subcommand.
type cli struct {
	configFile string
	envFile    string
	cfg        *domain.Config
	logger     *logrus.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "orionctl",
		Short:         "Operate the emergency triage server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	root.AddCommand(c.trainCmd(), c.predictCmd(), c.reportCmd(), c.migrateCmd(), c.mcpCmd())
	return root
}

func (c *cli) load() error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}

	manager, err := config.NewManagerFromFile(c.configFile)
	if err != nil {
		return err
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	c.cfg = manager.GetConfig()

	// Command output goes to stdout; logs stay on stderr.
	logCfg := c.cfg.Logging
	if out := strings.ToLower(logCfg.Output); out == "" || out == "stdout" {
		logCfg.Output = "stderr"
	}
	c.logger, err = logging.New(logCfg)
	return err
}

func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to release resources")
		}
	}()
	return fn(a)
}

func (c *cli) trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train <history.csv>",
		Short: "Rebuild the demand baseline from a historical CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening training data: %w", err)
			}
			defer f.Close()

			return c.withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Forecaster.Train(cmd.Context(), f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func (c *cli) predictCmd() *cobra.Command {
	var (
		at      string
		factors domain.EnvironmentalFactors
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict patient demand and staffing for one hour",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return domain.NewValidationError("at", "target time must be RFC 3339", at)
				}
				target = parsed
			}

			return c.withApp(cmd.Context(), func(a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Forecaster.Predict(target, factors))
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "target time in RFC 3339 (default: now)")
	cmd.Flags().StringVar(&factors.Weather, "weather", "sunny", "sunny, rainy or storm")
	cmd.Flags().StringVar(&factors.Traffic, "traffic", "low", "low, medium or high")
	cmd.Flags().StringVar(&factors.Event, "event", "none", "none, concert, protest or holiday")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the monthly operations report from the decision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			period := time.Now().UTC()
			if month != "" {
				parsed, err := decisionlog.ParsePeriod(month)
				if err != nil {
					return err
				}
				period = parsed
			}

			store, err := decisionlog.Open(c.cfg.DecisionLog)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			report := decisionlog.BuildMonthlyReport(decisionlog.FilterMonth(records, period))
			report.Period = period.Format("2006-01")
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	run := func(fn func(ctx context.Context, r *database.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			runner, err := database.NewMigrationRunner(database.URL(c.cfg.Database), c.cfg.Database.MigrationsPath, c.logger)
			if err != nil {
				return err
			}
			defer runner.Close()
			return fn(cmd.Context(), runner)
		}
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: run(func(ctx context.Context, r *database.MigrationRunner) error {
			return r.Down(ctx, steps)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, r *database.MigrationRunner) error {
			return r.Up(ctx)
		}),
	}, down, &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, r *database.MigrationRunner) error {
				status, err := r.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			})(cmd, args)
		},
	})
	return cmd
}

func (c *cli) mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage the MCP server registration in a desktop client",
	}

	var opts setup.Options
	install := &cobra.Command{
		Use:   "install",
		Short: "Register the MCP server in the client configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.configFile != "" {
				abs, err := filepath.Abs(c.configFile)
				if err != nil {
					return err
				}
				opts.Env = map[string]string{config.FileEnvVar: abs}
			}
			path, err := setup.Register(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %q in %s\n", nameOrDefault(opts.ServerName), path)
			return nil
		},
	}
	install.Flags().StringVar(&opts.ConfigPath, "client-config", "", "client config file (default: platform location)")
	install.Flags().StringVar(&opts.ServerName, "name", setup.DefaultServerName, "registration name")
	install.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to the mcp-server binary")

	var clientConfig, name string
	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the MCP server from the client configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := setup.Unregister(clientConfig, name)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%q was not registered\n", nameOrDefault(name))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", nameOrDefault(name))
			return nil
		},
	}
	uninstall.Flags().StringVar(&clientConfig, "client-config", "", "client config file (default: platform location)")
	uninstall.Flags().StringVar(&name, "name", setup.DefaultServerName, "registration name")

	cmd.AddCommand(install, uninstall)
	return cmd
}

func nameOrDefault(name string) string {
	if name == "" {
		return setup.DefaultServerName
	}
	return name
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
