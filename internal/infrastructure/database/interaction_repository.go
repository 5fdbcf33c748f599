package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/errors"
)

// InteractionRecord is one persisted request/response exchange, keeping
// both the observed outcome and the natural (pre-injection) outcome.
type InteractionRecord struct {
	ID               uuid.UUID          `json:"id"`
	SessionID        string             `json:"session_id"`
	RequestMessage   string             `json:"request_message"`
	Response         string             `json:"response"`
	Status           agent.Status       `json:"status"`
	NaturalStatus    agent.Status       `json:"natural_status"`
	NaturalResponse  string             `json:"natural_response,omitempty"`
	FailureMode      *agent.FailureMode `json:"failure_mode,omitempty"`
	InjectionApplied bool               `json:"injection_applied"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	TokenCount       int                `json:"token_count"`
	Model            string             `json:"model"`
	Metadata         map[string]any     `json:"metadata,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// FailureStat is one row of the failure analytics aggregation.
type FailureStat struct {
	FailureMode string  `json:"failure_mode"`
	Status      string  `json:"status"`
	Count       int64   `json:"count"`
	AvgLatency  float64 `json:"avg_processing_time_ms"`
}

// InteractionRepository persists interaction records in PostgreSQL.
type InteractionRepository struct {
	db *pgxpool.Pool
}

func NewInteractionRepository(db *pgxpool.Pool) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Save appends one interaction record.
func (r *InteractionRepository) Save(ctx context.Context, rec *InteractionRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return errors.NewInternalError("failed to marshal interaction metadata").WithCause(err)
	}

	var failureMode sql.NullString
	if rec.FailureMode != nil {
		failureMode = sql.NullString{String: string(*rec.FailureMode), Valid: true}
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO agent_interactions (
			id, session_id, request_message, response, status,
			natural_status, natural_response, failure_mode, injection_applied,
			processing_time_ms, token_count, model, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.SessionID, rec.RequestMessage, rec.Response, string(rec.Status),
		string(rec.NaturalStatus), rec.NaturalResponse, failureMode, rec.InjectionApplied,
		rec.ProcessingTimeMs, rec.TokenCount, rec.Model, metadata, rec.CreatedAt)

	if err != nil {
		return errors.NewInternalError("failed to save interaction").WithCause(err)
	}
	return nil
}

// ListBySession returns a session's interactions in chronological order.
func (r *InteractionRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*InteractionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, request_message, response, status,
		       natural_status, natural_response, failure_mode, injection_applied,
		       processing_time_ms, token_count, model, metadata, created_at
		FROM agent_interactions
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to query interactions").WithCause(err)
	}
	defer rows.Close()

	var records []*InteractionRecord
	for rows.Next() {
		var rec InteractionRecord
		var status, naturalStatus string
		var failureMode sql.NullString
		var metadata json.RawMessage

		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.RequestMessage, &rec.Response,
			&status, &naturalStatus, &rec.NaturalResponse, &failureMode, &rec.InjectionApplied,
			&rec.ProcessingTimeMs, &rec.TokenCount, &rec.Model, &metadata, &rec.CreatedAt); err != nil {
			return nil, errors.NewInternalError("failed to scan interaction").WithCause(err)
		}

		rec.Status = agent.Status(status)
		rec.NaturalStatus = agent.Status(naturalStatus)
		if failureMode.Valid {
			mode := agent.FailureMode(failureMode.String)
			rec.FailureMode = &mode
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, errors.NewInternalError("failed to unmarshal interaction metadata").WithCause(err)
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// FailureAnalytics aggregates injected failures by mode and status over
// the trailing window.
func (r *InteractionRepository) FailureAnalytics(ctx context.Context, since time.Time) ([]FailureStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT failure_mode, status, COUNT(*), AVG(processing_time_ms)
		FROM agent_interactions
		WHERE injection_applied AND failure_mode IS NOT NULL AND created_at >= $1
		GROUP BY failure_mode, status
		ORDER BY COUNT(*) DESC
	`, since)
	if err != nil {
		return nil, errors.NewInternalError("failed to query failure analytics").WithCause(err)
	}
	defer rows.Close()

	var stats []FailureStat
	for rows.Next() {
		var s FailureStat
		if err := rows.Scan(&s.FailureMode, &s.Status, &s.Count, &s.AvgLatency); err != nil {
			return nil, errors.NewInternalError("failed to scan failure stat").WithCause(err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
