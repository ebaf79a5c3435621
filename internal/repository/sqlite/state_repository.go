package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"camwatch/internal/model"
	"camwatch/internal/repository"
)

// StateRepository implements repository.StateRepository for SQLite.
// The state lives in a single alert_state row; history rows are rewritten on every save.
type StateRepository struct {
	db *DB
}

// NewStateRepository creates a new SQLite state repository.
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{db: db}
}

// Load reads the state row and its history in insertion order.
func (r *StateRepository) Load(ctx context.Context) (model.AlertState, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		state      model.AlertState
		level      string
		lastSentMs sql.NullInt64
	)
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT consecutive_danger_count, last_danger_level, last_alert_sent_at
		FROM alert_state WHERE id = 1
	`).Scan(&state.ConsecutiveDangerCount, &level, &lastSentMs)

	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertState{}, repository.ErrStateNotFound
	}
	if err != nil {
		return model.AlertState{}, fmt.Errorf("failed to get alert state: %w", err)
	}

	state.LastLevel = model.StoredDangerLevel(level)
	state.ConsecutiveDangerCount = max(state.ConsecutiveDangerCount, 0)
	if lastSentMs.Valid {
		sentAt := time.UnixMilli(lastSentMs.Int64)
		state.LastAlertSentAt = &sentAt
	}

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT record_id, timestamp, danger_level, description, reason
		FROM alert_history ORDER BY seq ASC
	`)
	if err != nil {
		return model.AlertState{}, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	state.AlertHistory = []model.AlertRecord{}
	for rows.Next() {
		var (
			record      model.AlertRecord
			timestampMs int64
			dangerLevel string
			reason      string
		)
		if err := rows.Scan(&record.ID, &timestampMs, &dangerLevel, &record.Description, &reason); err != nil {
			return model.AlertState{}, fmt.Errorf("failed to scan alert record: %w", err)
		}
		record.Timestamp = time.UnixMilli(timestampMs)
		record.DangerLevel = model.DangerLevel(dangerLevel)
		record.Reason = model.NormalizeReason(reason)
		state.AlertHistory = append(state.AlertHistory, record)
	}
	if err := rows.Err(); err != nil {
		return model.AlertState{}, fmt.Errorf("failed to read alert history: %w", err)
	}

	return state, nil
}

// Save replaces the state row and the history in one transaction.
func (r *StateRepository) Save(ctx context.Context, state model.AlertState) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lastSentMs sql.NullInt64
	if state.LastAlertSentAt != nil {
		lastSentMs = sql.NullInt64{Int64: state.LastAlertSentAt.UnixMilli(), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO alert_state (id, consecutive_danger_count, last_danger_level, last_alert_sent_at, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			consecutive_danger_count = excluded.consecutive_danger_count,
			last_danger_level = excluded.last_danger_level,
			last_alert_sent_at = excluded.last_alert_sent_at,
			updated_at = excluded.updated_at
	`, state.ConsecutiveDangerCount, string(state.LastLevel), lastSentMs); err != nil {
		return fmt.Errorf("failed to upsert alert state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("failed to clear alert history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alert_history (record_id, timestamp, danger_level, description, reason)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range state.AlertHistory {
		if _, err := stmt.ExecContext(ctx,
			record.ID,
			record.Timestamp.UnixMilli(),
			string(record.DangerLevel),
			record.Description,
			string(record.Reason),
		); err != nil {
			return fmt.Errorf("failed to insert alert record: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes the state row and all history.
func (r *StateRepository) Delete(ctx context.Context) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("failed to delete alert history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_state`); err != nil {
		return fmt.Errorf("failed to delete alert state: %w", err)
	}
	return tx.Commit()
}

var _ repository.StateRepository = (*StateRepository)(nil)
