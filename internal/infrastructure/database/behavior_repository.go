package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probelab/agent-testbed/internal/domain/behavior"
	"github.com/probelab/agent-testbed/internal/errors"
)

// BehaviorRepository persists interaction behaviors, anomaly detections,
// and per-session baselines.
type BehaviorRepository struct {
	db *pgxpool.Pool
}

func NewBehaviorRepository(db *pgxpool.Pool) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// SaveBehavior appends one behavior log row.
func (r *BehaviorRepository) SaveBehavior(ctx context.Context, b *behavior.InteractionBehavior) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO behavior_log (
			id, session_id, response_latency, message_length, conversation_turns,
			clarification_frequency, topic_switches, confidence_expressions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), b.SessionID, b.ResponseLatency, b.MessageLength, b.ConversationTurns,
		b.ClarificationFreq, b.TopicSwitches, b.ConfidenceExpressions, b.Timestamp)

	if err != nil {
		return errors.NewInternalError("failed to save behavior").WithCause(err)
	}
	return nil
}

// SaveAnomalies appends one row per fired anomaly in the report.
func (r *BehaviorRepository) SaveAnomalies(ctx context.Context, report *behavior.AnomalyReport) error {
	for _, a := range report.Anomalies {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return errors.NewInternalError("failed to marshal anomaly details").WithCause(err)
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO anomaly_log (
				id, session_id, anomaly_type, score, description, details, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), report.SessionID, a.Type, a.Score, a.Description, details, report.Timestamp)
		if err != nil {
			return errors.NewInternalError("failed to save anomaly").WithCause(err)
		}
	}
	return nil
}

// UpsertBaseline creates or replaces the session's baseline row.
func (r *BehaviorRepository) UpsertBaseline(ctx context.Context, b *behavior.BehavioralBaseline) error {
	pattern, err := json.Marshal(b.ConfidencePattern)
	if err != nil {
		return errors.NewInternalError("failed to marshal confidence pattern").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO behavioral_baselines (
			session_id, avg_response_latency, message_length_min, message_length_max,
			normal_clarification_rate, standard_conversation_depth, confidence_pattern,
			interaction_count, established_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			avg_response_latency = EXCLUDED.avg_response_latency,
			message_length_min = EXCLUDED.message_length_min,
			message_length_max = EXCLUDED.message_length_max,
			normal_clarification_rate = EXCLUDED.normal_clarification_rate,
			standard_conversation_depth = EXCLUDED.standard_conversation_depth,
			confidence_pattern = EXCLUDED.confidence_pattern,
			interaction_count = EXCLUDED.interaction_count,
			last_updated = EXCLUDED.last_updated
	`, b.SessionID, b.AvgResponseLatency, b.TypicalMessageRange.Min, b.TypicalMessageRange.Max,
		b.NormalClarification, b.StandardDepth, pattern,
		b.InteractionCount, b.EstablishedAt, b.LastUpdated)

	if err != nil {
		return errors.NewInternalError("failed to upsert baseline").WithCause(err)
	}
	return nil
}

// GetBaseline loads the session's persisted baseline.
func (r *BehaviorRepository) GetBaseline(ctx context.Context, sessionID string) (*behavior.BehavioralBaseline, error) {
	var b behavior.BehavioralBaseline
	var pattern json.RawMessage

	err := r.db.QueryRow(ctx, `
		SELECT session_id, avg_response_latency, message_length_min, message_length_max,
		       normal_clarification_rate, standard_conversation_depth, confidence_pattern,
		       interaction_count, established_at, last_updated
		FROM behavioral_baselines
		WHERE session_id = $1
	`, sessionID).Scan(&b.SessionID, &b.AvgResponseLatency,
		&b.TypicalMessageRange.Min, &b.TypicalMessageRange.Max,
		&b.NormalClarification, &b.StandardDepth, &pattern,
		&b.InteractionCount, &b.EstablishedAt, &b.LastUpdated)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("baseline not found")
		}
		return nil, errors.NewInternalError("failed to get baseline").WithCause(err)
	}

	if len(pattern) > 0 {
		if err := json.Unmarshal(pattern, &b.ConfidencePattern); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal confidence pattern").WithCause(err)
		}
	}
	return &b, nil
}

// AnomalyCounts aggregates anomaly rows by type over the trailing window.
func (r *BehaviorRepository) AnomalyCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT anomaly_type, COUNT(*)
		FROM anomaly_log
		WHERE created_at >= $1
		GROUP BY anomaly_type
	`, since)
	if err != nil {
		return nil, errors.NewInternalError("failed to query anomaly counts").WithCause(err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var anomalyType string
		var count int64
		if err := rows.Scan(&anomalyType, &count); err != nil {
			return nil, errors.NewInternalError("failed to scan anomaly count").WithCause(err)
		}
		counts[anomalyType] = count
	}
	return counts, rows.Err()
}
