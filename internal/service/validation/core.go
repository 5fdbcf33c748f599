package validation

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/metrics"
)

// Level orders validation strategies by cost. A run executes every
// registered strategy whose level does not exceed the requested
// maximum, cheapest first.
type Level int

const (
	LevelFormat Level = iota + 1
	LevelContent
	LevelSemantic
	LevelExpert
	LevelBehavioral
)

var levelNames = map[Level]string{
	LevelFormat:     "format",
	LevelContent:    "content",
	LevelSemantic:   "semantic",
	LevelExpert:     "expert",
	LevelBehavioral: "behavioral",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown validation level %q", s)
}

// Result is the outcome of a single strategy or of a full pipeline run.
type Result struct {
	Passed     bool           `json:"passed"`
	Confidence float64        `json:"confidence"`
	Errors     []string       `json:"errors"`
	Warnings   []string       `json:"warnings"`
	Level      Level          `json:"validation_level"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Context carries the interaction being validated. Fields are optional;
// strategies degrade to text-only heuristics when session data is
// absent.
type Context struct {
	SessionID        string
	Request          *agent.AgentRequest
	Response         *agent.AgentResponse
	History          []agent.Message
	ProcessingTimeMs float64
	Timestamp        time.Time
}

// Strategy is a single validation check. Validate inspects the output
// text and returns its verdict; a non-nil error means the strategy
// itself failed to run, which the validator records without aborting
// the pipeline.
type Strategy interface {
	Name() string
	Validate(output string, vctx Context) (Result, error)
}

type registration struct {
	level    Level
	strategy Strategy
}

// historyWindow bounds the retained run results used for Stats.
const historyWindow = 100

// Validator runs registered strategies in level order up to a caller
// supplied maximum level.
type Validator struct {
	logger   *zap.Logger
	registry *metrics.Registry

	mu         sync.Mutex
	strategies []registration
	history    []Result
}

// NewValidator returns an empty validator. Both logger and registry
// may be nil.
func NewValidator(registry *metrics.Registry, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger, registry: registry}
}

// Register adds a strategy at the given level. Strategies at the same
// level run in registration order.
func (v *Validator) Register(level Level, s Strategy) {
	v.mu.Lock()
	v.strategies = append(v.strategies, registration{level: level, strategy: s})
	v.mu.Unlock()
	v.logger.Info("registered validation strategy",
		zap.String("level", level.String()),
		zap.String("strategy", s.Name()))
}

// Validate runs every strategy at or below maxLevel, cheapest level
// first, and folds the individual verdicts into one result. A failing
// strategy contributes its errors and drags the confidence down to its
// own; a strategy that errors out contributes a synthetic error and a
// 0.8 confidence penalty.
func (v *Validator) Validate(output string, vctx Context, maxLevel Level) Result {
	timer := v.durationTimer(maxLevel)
	start := time.Now()

	var errs, warnings []string
	confidence := 1.0

	for _, reg := range v.ordered() {
		if reg.level > maxLevel {
			break
		}
		result, err := reg.strategy.Validate(output, vctx)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Strategy error in %s: %v", reg.strategy.Name(), err))
			confidence *= 0.8
			v.logger.Error("validation strategy failed",
				zap.String("strategy", reg.strategy.Name()),
				zap.Error(err))
			continue
		}
		if !result.Passed {
			errs = append(errs, result.Errors...)
			if result.Confidence < confidence {
				confidence = result.Confidence
			}
		}
		warnings = append(warnings, result.Warnings...)
		v.logger.Debug("validation strategy completed",
			zap.String("strategy", reg.strategy.Name()),
			zap.String("level", reg.level.String()),
			zap.Bool("passed", result.Passed),
			zap.Float64("confidence", result.Confidence))
	}

	final := Result{
		Passed:     len(errs) == 0,
		Confidence: confidence,
		Errors:     errs,
		Warnings:   warnings,
		Level:      maxLevel,
		Metadata: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"duration":  time.Since(start).Seconds(),
		},
	}

	if timer != nil {
		timer.ObserveDuration()
	}
	if v.registry != nil {
		v.registry.ValidationConfidence.WithLabelValues(maxLevel.String()).Observe(final.Confidence)
	}

	v.record(final)
	return final
}

// Stats summarizes recent pipeline runs.
func (v *Validator) Stats() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.history) == 0 {
		return map[string]any{"total_validations": 0}
	}

	passed := 0
	sumConfidence := 0.0
	for _, r := range v.history {
		if r.Passed {
			passed++
		}
		sumConfidence += r.Confidence
	}

	recent := v.history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	return map[string]any{
		"total_validations":  len(v.history),
		"pass_rate":          float64(passed) / float64(len(v.history)),
		"average_confidence": sumConfidence / float64(len(v.history)),
		"recent_validations": append([]Result(nil), recent...),
	}
}

func (v *Validator) ordered() []registration {
	v.mu.Lock()
	defer v.mu.Unlock()

	ordered := append([]registration(nil), v.strategies...)
	// Stable by level, preserving registration order within a level.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1].level > ordered[j].level; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	return ordered
}

func (v *Validator) record(r Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history = append(v.history, r)
	if len(v.history) > historyWindow {
		v.history = v.history[len(v.history)-historyWindow:]
	}
}

func (v *Validator) durationTimer(maxLevel Level) *metrics.Timer {
	if v.registry == nil {
		return nil
	}
	return metrics.StartTimer(v.registry.ValidationDuration.WithLabelValues(maxLevel.String()))
}
