package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensei-edu/sensei-api/internal/di"
	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/tools/loadgen"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sensei-api",
		Short:         "Teacher session tracking API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSweepCommand(),
		newReportCommand(),
		newTokenCommand(),
		newLoadgenCommand(),
	)
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the session expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, cleanup, err := di.InitializeApp(cmd.Context())
			if err != nil {
				return err
			}
			application.Cleanup = cleanup
			return application.Run(cmd.Context())
		},
	}
}

// withCLI builds the maintenance dependencies and releases them after fn.
func withCLI(ctx context.Context, fn func(ctx context.Context, cli *di.CLI) error) error {
	cli, cleanup, err := di.InitializeCLI(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, cli)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCLI(cmd.Context(), func(ctx context.Context, cli *di.CLI) error {
				if err := repository.AutoMigrate(cli.DB.WithContext(ctx)); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				cli.Logger.InfoContext(ctx, "database migrated", "driver", cli.Config.DatabaseDriver)
				return nil
			})
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-sessions",
		Short: "Expire sessions left open past the idle timeout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCLI(cmd.Context(), func(ctx context.Context, cli *di.CLI) error {
				n, err := cli.Sweeper.SweepOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s)\n", n)
				return nil
			})
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		username string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			return withCLI(cmd.Context(), func(ctx context.Context, cli *di.CLI) error {
				if !cli.Config.IsDevelopment() {
					return fmt.Errorf("token minting is disabled for APP_ENV=%s", cli.Config.AppEnv)
				}
				if ttl <= 0 {
					ttl = cli.Config.JWTAccessTTL
				}
				token, err := cli.JWT.SignAccessToken("", username, role, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "token subject username")
	cmd.Flags().StringVar(&role, "role", "teacher", "role claim (teacher|admin|superadmin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to JWT_ACCESS_TTL")
	return cmd
}

func newLoadgenCommand() *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive simulated teacher traffic against a running API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := loadgen.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderLoadgenResult(res))
			if res.Failures > 0 {
				return fmt.Errorf("%d of %d requests failed", res.Failures, res.TotalRequests)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Token, "token", "", "bearer token (see the token command)")
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: mixed|write|read|export")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to generate traffic")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 10, "requests per second across all workers")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "simulated teachers")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "random seed")
	return cmd
}
