package validation

import (
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/metrics"
	"github.com/probelab/agent-testbed/internal/service/behavioral"
)

// NewStandardValidator assembles the full strategy set used for
// customer-service agent responses. The behavioral strategies are
// registered only when a tracker is supplied.
func NewStandardValidator(registry *metrics.Registry, tracker *behavioral.Tracker, detector *behavioral.AnomalyDetector, logger *zap.Logger) *Validator {
	v := NewValidator(registry, logger)
	scorer := NewQualityScorer()

	v.Register(LevelFormat, NewFormatStrategy())
	v.Register(LevelContent, NewCustomerServiceStrategy())
	v.Register(LevelContent, NewCoherenceStrategy())
	v.Register(LevelContent, NewQualityStrategy(scorer, 0.3))
	v.Register(LevelContent, NewConfidenceStrategy())

	if tracker != nil && detector != nil {
		v.Register(LevelBehavioral, NewAnomalyStrategy(tracker, detector, logger))
		v.Register(LevelBehavioral, NewConsistencyStrategy(tracker))
	}
	return v
}

// NewBasicValidator keeps only the essential format and coherence
// checks.
func NewBasicValidator(registry *metrics.Registry, logger *zap.Logger) *Validator {
	v := NewValidator(registry, logger)
	v.Register(LevelFormat, NewFormatStrategy())
	v.Register(LevelContent, NewCoherenceStrategy())
	return v
}

// NewQualityFocusedValidator keeps the quality and confidence checks
// plus the format gate.
func NewQualityFocusedValidator(registry *metrics.Registry, logger *zap.Logger) *Validator {
	v := NewValidator(registry, logger)
	v.Register(LevelFormat, NewFormatStrategy())
	v.Register(LevelContent, NewQualityStrategy(NewQualityScorer(), 0.3))
	v.Register(LevelContent, NewConfidenceStrategy())
	return v
}
