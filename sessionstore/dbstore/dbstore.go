// Package dbstore implements sessionstore.Store against a Postgres table:
// row per session, atomic deactivate-prior-actives on save, and an hourly
// cleanup job.
package dbstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/sessionstore"
)

// Config parametrizes the cleanup job: retention window, cron schedule,
// and whether cleanup runs automatically.
type Config struct {
	RetentionDays int
	CleanupCron   string // robfig/cron schedule expression, default hourly
	AutoCleanup   bool
}

func DefaultConfig() Config {
	return Config{
		RetentionDays: 30,
		CleanupCron:   "@hourly",
		AutoCleanup:   true,
	}
}

// DBStore persists sessions as rows in the `broker_sessions` table.
// Grounded on abdulloh5007-tradepl's TokenStore (pgxpool.Pool-backed
// QueryRow/Scan pattern) for the query shape, and aristath-sentinel's
// scheduler package for the robfig/cron-driven cleanup job.
type DBStore struct {
	pool   *pgxpool.Pool
	cron   *cron.Cron
	logger zerolog.Logger
	cfg    Config
}

// New builds a DBStore against pool and, if cfg.AutoCleanup is set,
// starts the hourly deactivate-expired + delete-stale-inactive job.
func New(pool *pgxpool.Pool, cfg Config, logger zerolog.Logger) (*DBStore, error) {
	s := &DBStore{
		pool:   pool,
		logger: logger.With().Str("component", "sessionstore.dbstore").Logger(),
		cfg:    cfg,
	}

	if cfg.AutoCleanup {
		s.cron = cron.New(cron.WithSeconds())
		_, err := s.cron.AddFunc(cfg.CleanupCron, s.runCleanup)
		if err != nil {
			return nil, err
		}
		s.cron.Start()
	}

	return s, nil
}

// Save inserts record and atomically deactivates any previously active row
// for the same owner, inside a single transaction.
func (s *DBStore) Save(ctx context.Context, record sessionstore.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE broker_sessions
		SET active = false, termination_reason = 'superseded'
		WHERE owner = $1 AND active = true
	`, record.Owner); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO broker_sessions
			(owner, token, hash, created_at, expires_at, last_refresh_at,
			 websocket_connected, websocket_last_connected_at, active, termination_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		record.Owner, record.Token, record.Hash, record.CreatedAt, record.ExpiresAt,
		record.LastRefreshAt, record.WebsocketConnected, record.WebsocketLastConnectedAt,
		record.Active, record.TerminationReason,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Load returns the most-recent active row for owner.
func (s *DBStore) Load(ctx context.Context, owner string) (sessionstore.Record, error) {
	var r sessionstore.Record
	err := s.pool.QueryRow(ctx, `
		SELECT owner, token, hash, created_at, expires_at, last_refresh_at,
		       websocket_connected, websocket_last_connected_at, active, termination_reason
		FROM broker_sessions
		WHERE owner = $1 AND active = true
		ORDER BY created_at DESC
		LIMIT 1
	`, owner).Scan(
		&r.Owner, &r.Token, &r.Hash, &r.CreatedAt, &r.ExpiresAt, &r.LastRefreshAt,
		&r.WebsocketConnected, &r.WebsocketLastConnectedAt, &r.Active, &r.TerminationReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessionstore.Record{}, sessionstore.ErrNotFound
		}
		return sessionstore.Record{}, err
	}
	return r, nil
}

// Deactivate marks the active row for owner inactive with reason, without
// deleting it.
func (s *DBStore) Deactivate(ctx context.Context, owner string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE broker_sessions
		SET active = false, termination_reason = $2
		WHERE owner = $1 AND active = true
	`, owner, reason)
	return err
}

// runCleanup deactivates rows past ExpiresAt still marked active, and
// deletes inactive rows older than the retention window. Scheduled hourly
// by default.
func (s *DBStore) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE broker_sessions
		SET active = false, termination_reason = 'expired'
		WHERE active = true AND expires_at < NOW()
	`)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to deactivate expired sessions")
	} else if tag.RowsAffected() > 0 {
		s.logger.Info().Int64("rows", tag.RowsAffected()).Msg("deactivated expired sessions")
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	tag, err = s.pool.Exec(ctx, `
		DELETE FROM broker_sessions
		WHERE active = false AND created_at < $1
	`, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to delete stale sessions")
	} else if tag.RowsAffected() > 0 {
		s.logger.Info().Int64("rows", tag.RowsAffected()).Msg("deleted stale inactive sessions")
	}
}

// Close stops the cleanup scheduler (if running). The pool is owned by the
// caller and is not closed here.
func (s *DBStore) Close() error {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	return nil
}
