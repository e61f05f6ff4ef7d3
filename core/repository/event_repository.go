package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"ai-testbench/core/models"
)

// EventRepository handles database operations for result transition events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListResultEvents retrieves transition events for a result, newest first
func (r *EventRepository) ListResultEvents(ctx context.Context, resultID string, limit int) ([]models.ResultEvent, error) {
	query := `
		SELECT id, result_id, at, from_status, to_status, reason, meta_json
		FROM result_events
		WHERE result_id = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, resultID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ResultEvent
	for rows.Next() {
		var event models.ResultEvent
		var fromStatus sql.NullString
		var reason sql.NullString
		var metaJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.ResultID,
			&event.At,
			&fromStatus,
			&event.ToStatus,
			&reason,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if fromStatus.Valid {
			status := models.ResultStatus(fromStatus.String)
			event.FromStatus = &status
		}
		if reason.Valid {
			event.Reason = reason.String
		}
		if len(metaJSON) > 0 {
			if err := unmarshalJSON(metaJSON, &event.MetaJSON); err != nil {
				return nil, err
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// createResultEventTx records a transition event inside the caller's
// transaction so the event log stays consistent with the status column
func createResultEventTx(ctx context.Context, tx *sql.Tx, resultID string, fromStatus *models.ResultStatus, toStatus models.ResultStatus, reason string, meta map[string]interface{}) error {
	query := `
		INSERT INTO result_events (result_id, from_status, to_status, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`

	var fromStatusStr *string
	if fromStatus != nil {
		s := string(*fromStatus)
		fromStatusStr = &s
	}

	metaJSON, err := marshalJSON(meta)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, resultID, fromStatusStr, toStatus, reason, metaJSON)
	return err
}

func unmarshalJSON(data []byte, dst *map[string]interface{}) error {
	return json.Unmarshal(data, dst)
}
