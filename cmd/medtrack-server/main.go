package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/domain/dashboard"
	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/domain/settings"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/platform/snapshot"
	"github.com/medtrack/medtrack/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "medtrack-server",
		Short:        "Clinical case follow-up scheduling API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(snapshotCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// bootstrap loads and validates configuration and opens the pool. The caller
// closes the pool.
func bootstrap(ctx context.Context, logger zerolog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(newLogger())
		},
	}
}

func runServer(logger zerolog.Logger) error {
	ctx := context.Background()
	a, err := bootstrap(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.pool.Close()
	logger.Info().Msg("connected to database")

	if err := a.settings.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed default roles: %w", err)
	}

	e, err := a.router()
	if err != nil {
		return err
	}

	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", a.cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFS(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFS(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				if s.Drifted {
					status = "changed"
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default roles and apply an optional role file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			logger := newLogger()
			ctx := context.Background()

			a, err := bootstrap(ctx, logger)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			if err := a.settings.EnsureDefaults(ctx); err != nil {
				return err
			}
			if file == "" {
				file = a.cfg.RoleSeedFile
			}
			if file == "" {
				fmt.Println("Default roles are in place.")
				return nil
			}
			seeds, err := settings.LoadSeedFile(file)
			if err != nil {
				return err
			}
			if err := a.settings.ApplySeed(ctx, auth.SystemActor("seed"), seeds); err != nil {
				return err
			}
			fmt.Printf("Applied %d role(s) from %s.\n", len(seeds), file)
			return nil
		},
	}
	cmd.Flags().String("file", "", "YAML file of role capabilities (defaults to ROLE_SEED_FILE)")
	return cmd
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the follow-up dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOfFlag, _ := cmd.Flags().GetString("as-of")
			lookahead, _ := cmd.Flags().GetInt("lookahead")
			logger := newLogger()
			ctx := context.Background()

			a, err := bootstrap(ctx, logger)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			asOf, err := parseAsOf(asOfFlag, a.clock)
			if err != nil {
				return err
			}
			board, err := a.board.Build(ctx, asOf, lookahead)
			if err != nil {
				return err
			}
			return dashboard.Render(cmd.OutOrStdout(), board)
		},
	}
	cmd.Flags().String("as-of", "", "Reference date (YYYY-MM-DD), defaults to today")
	cmd.Flags().Int("lookahead", -1, "Upcoming window in days, defaults to LOOKAHEAD_DAYS")
	return cmd
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump or restore the database",
	}

	manager := func() (*snapshot.Manager, func(), error) {
		logger := newLogger()
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		pool, err := openPool(context.Background(), cfg)
		if err != nil {
			return nil, nil, err
		}
		m := snapshot.NewManager(snapshot.Config{
			DatabaseURL: cfg.DatabaseURL,
			PGDumpPath:  cfg.PGDumpPath,
			PGRestore:   cfg.PGRestorePath,
		}, snapshot.ExecRunner{}, snapshot.NewPoolInspector(pool), logger)
		return m, pool.Close, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dump <file>",
		Short: "Write a custom-format archive of the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := manager()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := m.Dump(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Snapshot written to %s.\n", args[0])
			return nil
		},
	})

	restoreCmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore an archive written by snapshot dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clean, _ := cmd.Flags().GetBool("clean")
			m, closeFn, err := manager()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := m.Restore(cmd.Context(), args[0], clean); err != nil {
				return err
			}
			fmt.Printf("Snapshot %s restored.\n", args[0])
			return nil
		},
	}
	restoreCmd.Flags().Bool("clean", false, "Drop existing objects before restoring")
	cmd.AddCommand(restoreCmd)

	return cmd
}

// migrationFS returns dir as a file system, or the embedded migrations when
// dir is empty.
func migrationFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func parseAsOf(value string, clock func() time.Time) (time.Time, error) {
	if value == "" {
		return followup.Day(clock()), nil
	}
	t, err := followup.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q, want YYYY-MM-DD", value)
	}
	return t, nil
}
