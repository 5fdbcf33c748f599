package behavioral

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/behavior"
	"github.com/probelab/agent-testbed/internal/infrastructure/sessionstore"
)

// BaselineManager establishes and incrementally updates per-session
// behavioral baselines, and scores how far a new behavior deviates from
// one.
type BaselineManager struct {
	minInteractions int
	updateFrequency time.Duration

	baselines sessionstore.Store[*behavior.BehavioralBaseline]
	logger    *zap.Logger
	now       func() time.Time
}

func NewBaselineManager(minInteractions int, updateFrequency time.Duration, logger *zap.Logger) *BaselineManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minInteractions < 1 {
		minInteractions = 10
	}
	if updateFrequency <= 0 {
		updateFrequency = 6 * time.Hour
	}
	return &BaselineManager{
		minInteractions: minInteractions,
		updateFrequency: updateFrequency,
		baselines:       sessionstore.NewMemoryStore[*behavior.BehavioralBaseline](),
		logger:          logger,
		now:             time.Now,
	}
}

// EstablishBaseline builds a baseline from a session's history, or
// returns nil when there is not yet enough data.
func (m *BaselineManager) EstablishBaseline(sessionID string, behaviors []behavior.InteractionBehavior) *behavior.BehavioralBaseline {
	if len(behaviors) < m.minInteractions {
		m.logger.Debug("insufficient interactions for baseline establishment",
			zap.String("session_id", sessionID),
			zap.Int("interaction_count", len(behaviors)),
			zap.Int("min_required", m.minInteractions))
		return nil
	}

	latencies := make([]float64, len(behaviors))
	lengths := make([]int, len(behaviors))
	clarifications := make([]float64, len(behaviors))
	depths := make([]float64, len(behaviors))
	confidences := make([]int, len(behaviors))
	for i, b := range behaviors {
		latencies[i] = b.ResponseLatency
		lengths[i] = b.MessageLength
		clarifications[i] = b.ClarificationFreq
		depths[i] = float64(b.ConversationTurns)
		confidences[i] = b.ConfidenceExpressions
	}

	sortedLengths := append([]int(nil), lengths...)
	sort.Ints(sortedLengths)

	now := m.now()
	baseline := &behavior.BehavioralBaseline{
		SessionID:          sessionID,
		AvgResponseLatency: mean(latencies),
		TypicalMessageRange: behavior.LengthRange{
			Min: sortedLengths[0],
			Max: sortedLengths[len(sortedLengths)-1],
		},
		NormalClarification: mean(clarifications),
		StandardDepth:       int(mean(depths)),
		ConfidencePattern:   analyzeConfidencePattern(confidences),
		InteractionCount:    len(behaviors),
		EstablishedAt:       now,
		LastUpdated:         now,
	}

	m.baselines.Set(sessionID, baseline)

	m.logger.Info("established behavioral baseline",
		zap.String("session_id", sessionID),
		zap.Float64("avg_latency", baseline.AvgResponseLatency),
		zap.Int("length_min", baseline.TypicalMessageRange.Min),
		zap.Int("length_max", baseline.TypicalMessageRange.Max),
		zap.Float64("clarification_rate", baseline.NormalClarification),
		zap.Int("interaction_count", len(behaviors)))

	return baseline
}

// UpdateBaseline blends new behaviors into an existing baseline at 30%
// new / 70% existing weighting, no more often than the configured
// update frequency. Conversation depth is deliberately never revised
// after establishment.
func (m *BaselineManager) UpdateBaseline(sessionID string, newBehaviors []behavior.InteractionBehavior) *behavior.BehavioralBaseline {
	existing, ok := m.baselines.Get(sessionID)
	if !ok {
		return m.EstablishBaseline(sessionID, newBehaviors)
	}

	if m.now().Sub(existing.LastUpdated) < m.updateFrequency {
		return existing
	}

	if len(newBehaviors) == 0 {
		return existing
	}

	const (
		recentWeight   = 0.3
		existingWeight = 0.7
	)

	newLatencies := make([]float64, len(newBehaviors))
	newLengths := make([]int, len(newBehaviors))
	newClarifications := make([]float64, len(newBehaviors))
	newConfidences := make([]int, len(newBehaviors))
	for i, b := range newBehaviors {
		newLatencies[i] = b.ResponseLatency
		newLengths[i] = b.MessageLength
		newClarifications[i] = b.ClarificationFreq
		newConfidences[i] = b.ConfidenceExpressions
	}

	sort.Ints(newLengths)
	q1 := newLengths[len(newLengths)/4]
	q3 := newLengths[3*len(newLengths)/4]

	updated := &behavior.BehavioralBaseline{
		SessionID: sessionID,
		AvgResponseLatency: existingWeight*existing.AvgResponseLatency +
			recentWeight*mean(newLatencies),
		TypicalMessageRange: behavior.LengthRange{
			Min: int(existingWeight*float64(existing.TypicalMessageRange.Min) + recentWeight*float64(q1)),
			Max: int(existingWeight*float64(existing.TypicalMessageRange.Max) + recentWeight*float64(q3)),
		},
		NormalClarification: existingWeight*existing.NormalClarification +
			recentWeight*mean(newClarifications),
		StandardDepth: existing.StandardDepth,
		ConfidencePattern: blendConfidencePatterns(
			existing.ConfidencePattern,
			analyzeConfidencePattern(newConfidences),
			existingWeight, recentWeight),
		InteractionCount: existing.InteractionCount + len(newBehaviors),
		EstablishedAt:    existing.EstablishedAt,
		LastUpdated:      m.now(),
	}

	m.baselines.Set(sessionID, updated)

	m.logger.Info("updated behavioral baseline",
		zap.String("session_id", sessionID),
		zap.Float64("new_avg_latency", updated.AvgResponseLatency),
		zap.Int("new_behaviors_count", len(newBehaviors)))

	return updated
}

// DetectDeviation scores a behavior against a baseline in [0,1]: four
// clamped component deviations weighted 0.3 latency, 0.2 length, 0.3
// clarification, 0.2 confidence.
func (m *BaselineManager) DetectDeviation(current behavior.InteractionBehavior, baseline *behavior.BehavioralBaseline) float64 {
	latencyDev := math.Abs(current.ResponseLatency-baseline.AvgResponseLatency) /
		math.Max(baseline.AvgResponseLatency, 1)

	var lengthDev float64
	minLen, maxLen := baseline.TypicalMessageRange.Min, baseline.TypicalMessageRange.Max
	switch {
	case current.MessageLength < minLen:
		lengthDev = float64(minLen-current.MessageLength) / math.Max(float64(minLen), 1)
	case current.MessageLength > maxLen:
		lengthDev = float64(current.MessageLength-maxLen) / math.Max(float64(maxLen), 1)
	}

	clarificationDev := math.Abs(current.ClarificationFreq - baseline.NormalClarification)

	baselineConfidence := baseline.ConfidencePattern["average"]
	confidenceDev := math.Abs(float64(current.ConfidenceExpressions)-baselineConfidence) /
		math.Max(baselineConfidence+1, 1)

	deviations := []float64{
		math.Min(latencyDev, 1.0),
		math.Min(lengthDev, 1.0),
		math.Min(clarificationDev, 1.0),
		math.Min(confidenceDev, 1.0),
	}
	weights := []float64{0.3, 0.2, 0.3, 0.2}

	overall := 0.0
	for i, d := range deviations {
		overall += d * weights[i]
	}

	m.logger.Debug("calculated behavioral deviation",
		zap.String("session_id", current.SessionID),
		zap.Float64("overall_deviation", overall),
		zap.Float64("latency_deviation", deviations[0]),
		zap.Float64("length_deviation", deviations[1]),
		zap.Float64("clarification_deviation", deviations[2]),
		zap.Float64("confidence_deviation", deviations[3]))

	return overall
}

// GetBaseline returns the session's baseline, nil when none exists.
func (m *BaselineManager) GetBaseline(sessionID string) *behavior.BehavioralBaseline {
	b, _ := m.baselines.Get(sessionID)
	return b
}

// HasBaseline reports whether the session has an established baseline.
func (m *BaselineManager) HasBaseline(sessionID string) bool {
	_, ok := m.baselines.Get(sessionID)
	return ok
}

// RemoveBaseline drops the session's baseline; idempotent.
func (m *BaselineManager) RemoveBaseline(sessionID string) {
	m.baselines.Delete(sessionID)
	m.logger.Info("removed behavioral baseline", zap.String("session_id", sessionID))
}

func analyzeConfidencePattern(confidences []int) map[string]float64 {
	if len(confidences) == 0 {
		return map[string]float64{"average": 0, "variance": 0, "max": 0, "min": 0}
	}

	values := make([]float64, len(confidences))
	minV, maxV := confidences[0], confidences[0]
	for i, c := range confidences {
		values[i] = float64(c)
		if c < minV {
			minV = c
		}
		if c > maxV {
			maxV = c
		}
	}

	return map[string]float64{
		"average":  mean(values),
		"variance": sampleVariance(values),
		"max":      float64(maxV),
		"min":      float64(minV),
	}
}

func blendConfidencePatterns(existing, fresh map[string]float64, existingWeight, newWeight float64) map[string]float64 {
	blended := make(map[string]float64, len(existing))
	for key, ev := range existing {
		if nv, ok := fresh[key]; ok {
			blended[key] = existingWeight*ev + newWeight*nv
		} else {
			blended[key] = ev
		}
	}
	return blended
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - avg
		sum += d * d
	}
	return sum / float64(len(values)-1)
}
