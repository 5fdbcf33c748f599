package behavioral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectResponseLoopsExactRepetition(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	loop := analyzer.DetectResponseLoops([]string{"hello", "same answer", "same answer", "same answer"})
	require.NotNil(t, loop)
	assert.Equal(t, "exact_repetition", loop.LoopType)
	assert.Equal(t, 3, loop.PatternLength)
	assert.Equal(t, 1.0, loop.Confidence)
	assert.Equal(t, "same answer", loop.Details["repeated_text"])
}

func TestDetectResponseLoopsAlternatingPattern(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	loop := analyzer.DetectResponseLoops([]string{"A", "B", "A", "B"})
	require.NotNil(t, loop)
	assert.Equal(t, "alternating_pattern", loop.LoopType)
	assert.Equal(t, 2, loop.PatternLength)
	assert.Equal(t, 0.9, loop.Confidence)
}

func TestDetectResponseLoopsLowDiversity(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	// 2 distinct texts across 5 responses, no exact triple.
	loop := analyzer.DetectResponseLoops([]string{"A", "B", "A", "B", "A"})
	require.NotNil(t, loop)
	assert.Equal(t, "low_diversity", loop.LoopType)
	assert.Equal(t, 5, loop.PatternLength)
	assert.InDelta(t, 1.0-0.4, loop.Confidence, 1e-9)
	assert.InDelta(t, 0.4, loop.Details["uniqueness_ratio"].(float64), 1e-9)
}

func TestDetectResponseLoopsRequiresThreeResponses(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	assert.Nil(t, analyzer.DetectResponseLoops(nil))
	assert.Nil(t, analyzer.DetectResponseLoops([]string{"A", "B"}))
}

func TestDetectResponseLoopsVariedResponses(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	loop := analyzer.DetectResponseLoops([]string{"A", "B", "C", "D", "E"})
	assert.Nil(t, loop)
}

func TestDetectBehavioralDriftInsufficientData(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	drift := analyzer.DetectBehavioralDrift(uniformBehaviors("s1", 3, 100, 50, 1), 24)
	assert.Equal(t, "insufficient_data", drift.DriftType)
	assert.Zero(t, drift.OverallDrift)
	assert.Contains(t, drift.ContributingFactors, "Insufficient data for drift analysis")
}

func TestDetectBehavioralDriftLatencyShift(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	behaviors := uniformBehaviors("s1", 8, 100, 50, 1)
	for i := 4; i < 8; i++ {
		behaviors[i].ResponseLatency = 300
	}

	drift := analyzer.DetectBehavioralDrift(behaviors, 24)
	assert.Equal(t, "latency", drift.DriftType)
	assert.Greater(t, drift.OverallDrift, 0.0)
	assert.Contains(t, drift.ContributingFactors, "Significant latency drift: 2.00")
	assert.InDelta(t, 0.8, drift.Confidence, 1e-9)
}

func TestDetectBehavioralDriftStableBehaviors(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	drift := analyzer.DetectBehavioralDrift(uniformBehaviors("s1", 8, 100, 50, 1), 24)
	assert.InDelta(t, 0.0, drift.OverallDrift, 1e-9)
	assert.Empty(t, drift.ContributingFactors)
}

func TestDetectBehavioralDriftOutsideWindow(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	behaviors := uniformBehaviors("s1", 8, 100, 50, 1)
	for i := range behaviors {
		behaviors[i].Timestamp = time.Now().Add(-48 * time.Hour)
	}

	drift := analyzer.DetectBehavioralDrift(behaviors, 24)
	assert.Equal(t, "insufficient_recent_data", drift.DriftType)
}

func TestCalculateConsistencyScore(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	assert.Equal(t, 1.0, analyzer.CalculateConsistencyScore(nil))
	assert.Equal(t, 1.0, analyzer.CalculateConsistencyScore(uniformBehaviors("s1", 1, 100, 50, 1)))

	identical := uniformBehaviors("s1", 6, 100, 50, 1)
	assert.InDelta(t, 1.0, analyzer.CalculateConsistencyScore(identical), 1e-9)

	erratic := uniformBehaviors("s1", 6, 100, 50, 1)
	for i := range erratic {
		erratic[i].ResponseLatency = float64(10 * (i + 1) * (i + 1))
		erratic[i].MessageLength = 10 * (i + 1)
		erratic[i].ConfidenceExpressions = i * 3
	}
	assert.Less(t, analyzer.CalculateConsistencyScore(erratic), analyzer.CalculateConsistencyScore(identical))
}

func TestIdentifyInteractionPatternsRequiresThree(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	assert.Empty(t, analyzer.IdentifyInteractionPatterns(uniformBehaviors("s1", 2, 100, 50, 1)))
}

func TestIdentifyInteractionPatternsUniformBehaviors(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	patterns := analyzer.IdentifyInteractionPatterns(uniformBehaviors("s1", 5, 100, 60, 2))
	require.Len(t, patterns, 2)

	types := []string{patterns[0].PatternType, patterns[1].PatternType}
	assert.Contains(t, types, "message_length")
	assert.Contains(t, types, "confidence_expression")
	for _, p := range patterns {
		assert.Equal(t, "s1", p.SessionID)
		assert.InDelta(t, 1.0, p.PatternStrength, 1e-9)
		assert.Equal(t, 5, p.RepetitionCount)
	}
}

func TestIdentifyInteractionPatternsClarificationTrend(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	behaviors := uniformBehaviors("s1", 5, 100, 50, 1)
	for i := range behaviors {
		behaviors[i].ClarificationFreq = 0.1 * float64(i)
		// break the other pattern checks
		behaviors[i].MessageLength = []int{10, 100, 300, 40, 150}[i]
		behaviors[i].ConfidenceExpressions = i
	}

	patterns := analyzer.IdentifyInteractionPatterns(behaviors)
	require.Len(t, patterns, 1)
	assert.Equal(t, "clarification_trend", patterns[0].PatternType)
	assert.Equal(t, 1.0, patterns[0].PatternStrength)
	assert.Equal(t, "increasing", patterns[0].Metadata["trend_direction"])
}

func TestAnalyzeConversationFlowEmpty(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	flow := analyzer.AnalyzeConversationFlow(nil)
	assert.Empty(t, flow.SessionID)
	assert.Empty(t, flow.TurnTaking)
}

func TestAnalyzeConversationFlowUniform(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	behaviors := uniformBehaviors("s1", 4, 100, 200, 1)
	for i := range behaviors {
		behaviors[i].ClarificationFreq = 0
	}

	flow := analyzer.AnalyzeConversationFlow(behaviors)
	assert.Equal(t, "s1", flow.SessionID)
	assert.InDelta(t, 1.0, flow.FlowConsistency, 1e-9)
	assert.InDelta(t, 1.0, flow.TopicCoherence, 1e-9)
	assert.InDelta(t, 1.0, flow.EngagementLevel, 1e-9)
	assert.InDelta(t, 1.0, flow.ResponseRhythm, 1e-9)
	assert.Equal(t, []int{1, 2, 3, 4}, flow.TurnTaking)
}

func TestAnalyzeConversationFlowTopicSwitchesLowerCoherence(t *testing.T) {
	analyzer := NewTemporalAnalyzer()

	behaviors := uniformBehaviors("s1", 4, 100, 200, 1)
	behaviors[1].TopicSwitches = 1
	behaviors[3].TopicSwitches = 1

	flow := analyzer.AnalyzeConversationFlow(behaviors)
	assert.InDelta(t, 0.5, flow.TopicCoherence, 1e-9)
}
