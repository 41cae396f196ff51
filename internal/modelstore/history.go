package modelstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// EvaluationRecord is one persisted training evaluation for a stored
// model version.
type EvaluationRecord struct {
	ID          string          `json:"evaluation_id"`
	Model       string          `json:"model"`
	Version     int             `json:"version"`
	Accuracy    float64         `json:"accuracy"`
	Loss        float64         `json:"loss"`
	SampleCount int             `json:"sample_count"`
	MetricsJSON json.RawMessage `json:"metrics,omitempty"`
	CreatedAt   int64           `json:"created_at"`
}

// History records model evaluations in a SQLite database.
type History struct {
	db *sql.DB
}

// OpenHistory opens (or creates) the history database at path and applies
// any pending schema migrations.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// Insert persists a new evaluation. An empty ID gets a generated UUID and
// a zero CreatedAt is stamped with the current time.
func (h *History) Insert(rec *EvaluationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}

	var metricsStr interface{}
	if len(rec.MetricsJSON) > 0 {
		metricsStr = string(rec.MetricsJSON)
	}

	return retryOnBusy(func() error {
		_, err := h.db.Exec(`
			INSERT INTO model_evaluations (
				evaluation_id, model, version, accuracy, loss,
				sample_count, metrics_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Model, rec.Version, rec.Accuracy, rec.Loss,
			rec.SampleCount, metricsStr, rec.CreatedAt,
		)
		return err
	})
}

// ListByModel returns all evaluations for a model, newest first.
func (h *History) ListByModel(model string) ([]*EvaluationRecord, error) {
	rows, err := h.db.Query(`
		SELECT evaluation_id, model, version, accuracy, loss,
		       sample_count, metrics_json, created_at
		FROM model_evaluations
		WHERE model = ?
		ORDER BY created_at DESC`, model)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var recs []*EvaluationRecord
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Latest returns the most recent evaluation for a model, or nil when the
// model has none.
func (h *History) Latest(model string) (*EvaluationRecord, error) {
	row := h.db.QueryRow(`
		SELECT evaluation_id, model, version, accuracy, loss,
		       sample_count, metrics_json, created_at
		FROM model_evaluations
		WHERE model = ?
		ORDER BY created_at DESC
		LIMIT 1`, model)

	var rec EvaluationRecord
	var metricsStr sql.NullString
	err := row.Scan(
		&rec.ID, &rec.Model, &rec.Version, &rec.Accuracy, &rec.Loss,
		&rec.SampleCount, &metricsStr, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}
	if metricsStr.Valid {
		rec.MetricsJSON = json.RawMessage(metricsStr.String)
	}
	return &rec, nil
}

// Delete removes an evaluation by ID.
func (h *History) Delete(evaluationID string) error {
	return retryOnBusy(func() error {
		result, err := h.db.Exec(`DELETE FROM model_evaluations WHERE evaluation_id = ?`, evaluationID)
		if err != nil {
			return fmt.Errorf("delete evaluation: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("evaluation %s not found", evaluationID)
		}
		return nil
	})
}

// scanEvaluation scans an evaluation row from a sql.Rows cursor.
func scanEvaluation(rows *sql.Rows) (*EvaluationRecord, error) {
	var rec EvaluationRecord
	var metricsStr sql.NullString
	err := rows.Scan(
		&rec.ID, &rec.Model, &rec.Version, &rec.Accuracy, &rec.Loss,
		&rec.SampleCount, &metricsStr, &rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan evaluation row: %w", err)
	}
	if metricsStr.Valid {
		rec.MetricsJSON = json.RawMessage(metricsStr.String)
	}
	return &rec, nil
}
