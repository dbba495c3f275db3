// Package snapshot dumps and restores the database with the PostgreSQL
// client tools.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	ErrDumpMissing    = errors.New("snapshot file does not exist")
	ErrTargetNotEmpty = errors.New("target database already holds cases; pass --clean to replace them")
	ErrSchemaPresent  = errors.New("target database already has the schema; pass --clean to replace it")
)

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec and folds stderr into the error.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}

// Target describes what the restore would land on.
type Target struct {
	SchemaPresent bool
	Cases         int
}

// TargetInspector reports the state of the target database.
type TargetInspector interface {
	Inspect(ctx context.Context) (Target, error)
}

type poolInspector struct{ pool *pgxpool.Pool }

// NewPoolInspector inspects the target through pool.
func NewPoolInspector(pool *pgxpool.Pool) TargetInspector {
	return poolInspector{pool: pool}
}

func (p poolInspector) Inspect(ctx context.Context) (Target, error) {
	var t Target
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('clinical_case') IS NOT NULL`).Scan(&t.SchemaPresent); err != nil {
		return Target{}, fmt.Errorf("inspect target: %w", err)
	}
	if !t.SchemaPresent {
		return t, nil
	}
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clinical_case`).Scan(&t.Cases); err != nil {
		return Target{}, fmt.Errorf("count cases: %w", err)
	}
	return t, nil
}

// Config names the tools and the database to operate on.
type Config struct {
	DatabaseURL string
	PGDumpPath  string
	PGRestore   string
}

type Manager struct {
	cfg    Config
	runner Runner
	target TargetInspector
	logger zerolog.Logger
}

func NewManager(cfg Config, runner Runner, target TargetInspector, logger zerolog.Logger) *Manager {
	if cfg.PGDumpPath == "" {
		cfg.PGDumpPath = "pg_dump"
	}
	if cfg.PGRestore == "" {
		cfg.PGRestore = "pg_restore"
	}
	return &Manager{cfg: cfg, runner: runner, target: target, logger: logger}
}

// Dump writes a custom-format archive of the database to path.
func (m *Manager) Dump(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("snapshot dump: output path is required")
	}
	args := []string{"--format=custom", "--no-owner", "--file=" + path, "--dbname=" + m.cfg.DatabaseURL}
	if err := m.runner.Run(ctx, m.cfg.PGDumpPath, args...); err != nil {
		return fmt.Errorf("snapshot dump: %w", err)
	}
	m.logger.Info().Str("path", path).Msg("snapshot written")
	return nil
}

// Restore loads the archive at path. Without clean the target must not have
// the schema yet, and a target that holds cases is reported as such. The restore runs in one transaction so
// a failure leaves the target as it was.
func (m *Manager) Restore(ctx context.Context, path string, clean bool) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDumpMissing, path)
	}
	if err != nil {
		return fmt.Errorf("snapshot restore: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("snapshot restore: %s is a directory", path)
	}

	if !clean {
		t, err := m.target.Inspect(ctx)
		if err != nil {
			return fmt.Errorf("snapshot restore: %w", err)
		}
		if t.Cases > 0 {
			return fmt.Errorf("%w (%d found)", ErrTargetNotEmpty, t.Cases)
		}
		if t.SchemaPresent {
			return ErrSchemaPresent
		}
	}

	args := []string{"--no-owner", "--single-transaction", "--exit-on-error", "--dbname=" + m.cfg.DatabaseURL}
	if clean {
		args = append(args, "--clean", "--if-exists")
	}
	args = append(args, path)
	if err := m.runner.Run(ctx, m.cfg.PGRestore, args...); err != nil {
		return fmt.Errorf("snapshot restore: %w", err)
	}
	m.logger.Info().Str("path", path).Bool("clean", clean).Msg("snapshot restored")
	return nil
}
