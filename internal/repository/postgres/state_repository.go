package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"camwatch/internal/model"
	"camwatch/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateRepository stores the alert state in PostgreSQL.
type StateRepository struct {
	pool *pgxpool.Pool
}

func NewStateRepository(ctx context.Context, databaseURL string, maxConns int32) (*StateRepository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	repo := &StateRepository{pool: pool}
	if err := repo.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return repo, nil
}

func (repo *StateRepository) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS alert_state (
  id SMALLINT PRIMARY KEY CHECK (id = 1),
  consecutive_danger_count INTEGER NOT NULL DEFAULT 0,
  last_danger_level TEXT NOT NULL DEFAULT '',
  last_alert_sent_at TIMESTAMPTZ,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS alert_history (
  seq BIGSERIAL PRIMARY KEY,
  record_id TEXT NOT NULL DEFAULT '',
  timestamp TIMESTAMPTZ NOT NULL,
  danger_level TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  reason TEXT NOT NULL
);
`

	_, err := repo.pool.Exec(ctx, schema)
	return err
}

func (repo *StateRepository) Load(ctx context.Context) (model.AlertState, error) {
	var (
		state    model.AlertState
		level    string
		lastSent *time.Time
	)
	err := repo.pool.QueryRow(ctx, `
SELECT consecutive_danger_count, last_danger_level, last_alert_sent_at
FROM alert_state WHERE id = 1
`).Scan(&state.ConsecutiveDangerCount, &level, &lastSent)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AlertState{}, repository.ErrStateNotFound
	}
	if err != nil {
		return model.AlertState{}, fmt.Errorf("select alert state: %w", err)
	}
	state.LastLevel = model.StoredDangerLevel(level)
	state.ConsecutiveDangerCount = max(state.ConsecutiveDangerCount, 0)
	state.LastAlertSentAt = lastSent

	rows, err := repo.pool.Query(ctx, `
SELECT record_id, timestamp, danger_level, description, reason
FROM alert_history
ORDER BY seq ASC
`)
	if err != nil {
		return model.AlertState{}, fmt.Errorf("select alert history: %w", err)
	}
	defer rows.Close()

	state.AlertHistory = []model.AlertRecord{}
	for rows.Next() {
		var (
			record      model.AlertRecord
			dangerLevel string
			reason      string
		)
		if err := rows.Scan(&record.ID, &record.Timestamp, &dangerLevel, &record.Description, &reason); err != nil {
			return model.AlertState{}, err
		}
		record.DangerLevel = model.DangerLevel(dangerLevel)
		record.Reason = model.NormalizeReason(reason)
		state.AlertHistory = append(state.AlertHistory, record)
	}

	if err := rows.Err(); err != nil {
		return model.AlertState{}, err
	}

	return state, nil
}

// Save rewrites the state row and the history inside one transaction.
func (repo *StateRepository) Save(ctx context.Context, state model.AlertState) error {
	tx, err := repo.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO alert_state (id, consecutive_danger_count, last_danger_level, last_alert_sent_at, updated_at)
VALUES (1, $1, $2, $3, NOW())
ON CONFLICT (id) DO UPDATE SET
  consecutive_danger_count = EXCLUDED.consecutive_danger_count,
  last_danger_level = EXCLUDED.last_danger_level,
  last_alert_sent_at = EXCLUDED.last_alert_sent_at,
  updated_at = EXCLUDED.updated_at
`, state.ConsecutiveDangerCount, string(state.LastLevel), state.LastAlertSentAt); err != nil {
		return fmt.Errorf("upsert alert state: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("clear alert history: %w", err)
	}

	if len(state.AlertHistory) > 0 {
		batch := &pgx.Batch{}
		for _, record := range state.AlertHistory {
			batch.Queue(`
INSERT INTO alert_history (record_id, timestamp, danger_level, description, reason)
VALUES ($1, $2, $3, $4, $5)
`, record.ID, record.Timestamp, string(record.DangerLevel), record.Description, string(record.Reason))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert alert history: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (repo *StateRepository) Delete(ctx context.Context) error {
	tx, err := repo.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("delete alert history: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM alert_state`); err != nil {
		return fmt.Errorf("delete alert state: %w", err)
	}
	return tx.Commit(ctx)
}

func (repo *StateRepository) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return repo.pool.Ping(pingCtx)
}

func (repo *StateRepository) Close() {
	repo.pool.Close()
}

var _ repository.StateRepository = (*StateRepository)(nil)
