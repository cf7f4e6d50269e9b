package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"espresso_rig/internal/models"
)

// StateSQLite keeps one row: the last checkpointed CombinedState.
type StateSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db, now: time.Now}
}

// constants and helpers for clarity and reuse
const (
	rigStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO rig_state (id, captured_at, device, shot, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			captured_at=excluded.captured_at,
			device=excluded.device,
			shot=excluded.shot,
			saved_at=excluded.saved_at
	`

	selectStateSQL = `
		SELECT captured_at, device, shot
		FROM rig_state WHERE id=?
	`
)

// marshalJSON encodes one half of the state for a TEXT column.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Save upserts the rig_state row (id always 1). Timestamps are stored as UTC.
func (r *StateSQLite) Save(ctx context.Context, st models.CombinedState) error {
	deviceJSON, err := marshalJSON(st.Device)
	if err != nil {
		return fmt.Errorf("encode device status: %w", err)
	}
	shotJSON, err := marshalJSON(st.Shot)
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		rigStateRowID,
		st.Timestamp.UTC(),
		deviceJSON,
		shotJSON,
		r.now().UTC(),
	)
	return err
}

// Load fetches the checkpoint; ok is false when none was saved yet.
func (r *StateSQLite) Load(ctx context.Context) (models.CombinedState, bool, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, rigStateRowID)

	var (
		st         models.CombinedState
		deviceJSON string
		shotJSON   string
	)
	if err := row.Scan(&st.Timestamp, &deviceJSON, &shotJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CombinedState{}, false, nil // no checkpoint yet
		}
		return models.CombinedState{}, false, err
	}

	if err := json.Unmarshal([]byte(deviceJSON), &st.Device); err != nil {
		return models.CombinedState{}, false, fmt.Errorf("decode device status: %w", err)
	}
	if err := json.Unmarshal([]byte(shotJSON), &st.Shot); err != nil {
		return models.CombinedState{}, false, fmt.Errorf("decode telemetry: %w", err)
	}
	st.Timestamp = st.Timestamp.UTC()

	return st, true, nil
}
