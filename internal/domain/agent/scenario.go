package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureScenario is a named, reusable configuration of failure modes and
// probability multipliers that a test run can apply to sessions.
type FailureScenario struct {
	ID          uuid.UUID               `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Modes       []FailureMode           `json:"modes"`
	Multipliers map[FailureMode]float64 `json:"multipliers,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// NewFailureScenario validates the mode list and builds a scenario.
func NewFailureScenario(name, description string, modes []FailureMode) (*FailureScenario, error) {
	if name == "" {
		return nil, fmt.Errorf("scenario name cannot be empty")
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("scenario must include at least one failure mode")
	}
	for _, m := range modes {
		if !m.Valid() {
			return nil, fmt.Errorf("unknown failure mode %q", m)
		}
	}
	now := time.Now().UTC()
	return &FailureScenario{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Modes:       modes,
		Multipliers: map[FailureMode]float64{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MultiplierFor returns the configured probability multiplier for a mode,
// defaulting to 1.0 when none was set.
func (s *FailureScenario) MultiplierFor(mode FailureMode) float64 {
	if s == nil || s.Multipliers == nil {
		return 1.0
	}
	if mult, ok := s.Multipliers[mode]; ok {
		return mult
	}
	return 1.0
}
