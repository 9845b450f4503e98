// Package main implements the maintenance CLI for the Voyage platform.
//
// It runs periodic housekeeping tasks against the production database.
// Intended to be invoked from a scheduled job (EventBridge or cron):
//
//	go run ./cmd/ops/maintenance -task=purge-sessions
//	go run ./cmd/ops/maintenance -task=all -dry-run
//
// Tasks:
//
//	purge-sessions   delete expired session rows
//	purge-shares     delete share links whose voyage was soft-deleted
//	all              run every task
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"voyage/internal/auth"
	"voyage/internal/config"
	"voyage/internal/db"
)

// taskTimeout bounds a single maintenance task.
const taskTimeout = 5 * time.Minute

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	task := fs.String("task", "all", "task to run: purge-sessions, purge-shares, all")
	dryRun := fs.Bool("dry-run", false, "report what would be deleted without deleting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	m := &maintenance{pool: pool, logger: logger, dryRun: *dryRun}

	switch *task {
	case "purge-sessions":
		return m.purgeSessions(ctx)
	case "purge-shares":
		return m.purgeOrphanedShares(ctx)
	case "all":
		if err := m.purgeSessions(ctx); err != nil {
			return err
		}
		return m.purgeOrphanedShares(ctx)
	default:
		return fmt.Errorf("unknown task %q", *task)
	}
}

type maintenance struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	dryRun bool
}

// purgeSessions removes expired session rows. Orphaned rows are harmless
// (validation rejects them) but they accumulate.
func (m *maintenance) purgeSessions(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	if m.dryRun {
		var count int64
		err := m.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM sessions WHERE expires_at < NOW()`,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("counting expired sessions: %w", err)
		}
		m.logger.Info("dry run: expired sessions", "count", count)
		return nil
	}

	sessions := auth.NewSessionService(
		db.NewSessionRepository(m.pool),
		nil,
		auth.DefaultSessionConfig(),
		nil,
		m.logger,
	)
	purged, err := sessions.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purging sessions: %w", err)
	}
	m.logger.Info("expired sessions purged", "count", purged)
	return nil
}

// purgeOrphanedShares deletes share links pointing at soft-deleted voyages.
// The public view already rejects them; this reclaims the rows and frees the
// tokens.
func (m *maintenance) purgeOrphanedShares(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	if m.dryRun {
		var count int64
		err := m.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM share_links s
			 JOIN voyages v ON v.id = s.voyage_id
			 WHERE v.deleted_at IS NOT NULL`,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("counting orphaned share links: %w", err)
		}
		m.logger.Info("dry run: orphaned share links", "count", count)
		return nil
	}

	tag, err := m.pool.Exec(ctx,
		`DELETE FROM share_links s
		 USING voyages v
		 WHERE v.id = s.voyage_id AND v.deleted_at IS NOT NULL`,
	)
	if err != nil {
		return fmt.Errorf("deleting orphaned share links: %w", err)
	}
	m.logger.Info("orphaned share links purged", "count", tag.RowsAffected())
	return nil
}
