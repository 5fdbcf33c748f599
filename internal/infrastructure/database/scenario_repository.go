package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/errors"
)

// ScenarioRepository persists failure scenario definitions.
type ScenarioRepository struct {
	db *pgxpool.Pool
}

func NewScenarioRepository(db *pgxpool.Pool) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

// Save creates or updates a scenario by id.
func (r *ScenarioRepository) Save(ctx context.Context, s *agent.FailureScenario) error {
	modes, err := json.Marshal(s.Modes)
	if err != nil {
		return errors.NewInternalError("failed to marshal scenario modes").WithCause(err)
	}
	multipliers, err := json.Marshal(s.Multipliers)
	if err != nil {
		return errors.NewInternalError("failed to marshal scenario multipliers").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO failure_scenarios (
			id, name, description, modes, multipliers, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			modes = EXCLUDED.modes,
			multipliers = EXCLUDED.multipliers,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.Name, s.Description, modes, multipliers, s.CreatedAt, s.UpdatedAt)

	if err != nil {
		return errors.NewInternalError("failed to save scenario").WithCause(err)
	}
	return nil
}

// GetByID loads one scenario.
func (r *ScenarioRepository) GetByID(ctx context.Context, id uuid.UUID) (*agent.FailureScenario, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, modes, multipliers, created_at, updated_at
		FROM failure_scenarios
		WHERE id = $1
	`, id)
	return scanScenario(row)
}

// List returns all scenarios ordered by creation time.
func (r *ScenarioRepository) List(ctx context.Context) ([]*agent.FailureScenario, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, modes, multipliers, created_at, updated_at
		FROM failure_scenarios
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errors.NewInternalError("failed to query scenarios").WithCause(err)
	}
	defer rows.Close()

	var scenarios []*agent.FailureScenario
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

// Delete removes a scenario by id.
func (r *ScenarioRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM failure_scenarios WHERE id = $1`, id)
	if err != nil {
		return errors.NewInternalError("failed to delete scenario").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("scenario not found")
	}
	return nil
}

func scanScenario(row pgx.Row) (*agent.FailureScenario, error) {
	var s agent.FailureScenario
	var modes, multipliers json.RawMessage

	err := row.Scan(&s.ID, &s.Name, &s.Description, &modes, &multipliers, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("scenario not found")
		}
		return nil, errors.NewInternalError("failed to scan scenario").WithCause(err)
	}

	if err := json.Unmarshal(modes, &s.Modes); err != nil {
		return nil, errors.NewInternalError("failed to unmarshal scenario modes").WithCause(err)
	}
	if len(multipliers) > 0 {
		if err := json.Unmarshal(multipliers, &s.Multipliers); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal scenario multipliers").WithCause(err)
		}
	}
	return &s, nil
}
