package behavioral

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/probelab/agent-testbed/internal/domain/behavior"
)

// TemporalAnalyzer computes flow, drift, pattern, consistency, and loop
// measures over a behavior sequence. Stateless; all methods are pure
// functions of their input.
type TemporalAnalyzer struct {
	now func() time.Time
}

func NewTemporalAnalyzer() *TemporalAnalyzer {
	return &TemporalAnalyzer{now: time.Now}
}

// AnalyzeConversationFlow summarizes response rhythm, topic coherence,
// and engagement for a session's behaviors.
func (a *TemporalAnalyzer) AnalyzeConversationFlow(behaviors []behavior.InteractionBehavior) behavior.ConversationFlowMetrics {
	if len(behaviors) == 0 {
		return behavior.ConversationFlowMetrics{TurnTaking: []int{}}
	}

	latencies := floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return b.ResponseLatency })
	lengths := floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return float64(b.MessageLength) })
	clarifications := floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return b.ClarificationFreq })

	totalSwitches := 0
	turns := make([]int, len(behaviors))
	for i, b := range behaviors {
		totalSwitches += b.TopicSwitches
		turns[i] = b.ConversationTurns
	}

	flowConsistency := 1.0
	rhythm := 1.0
	if len(behaviors) >= 2 {
		latencyConsistency := 1.0 - coefficientOfVariation(latencies)
		lengthConsistency := 1.0 - coefficientOfVariation(lengths)
		flowConsistency = (latencyConsistency + lengthConsistency) / 2
		rhythm = latencyConsistency
	}

	switchRate := float64(totalSwitches) / float64(len(behaviors))
	coherence := math.Max(0, 1.0-switchRate)

	lengthScore := math.Min(mean(lengths)/200.0, 1.0)
	clarificationScore := math.Max(0, 1.0-mean(clarifications))
	engagement := (lengthScore + clarificationScore) / 2

	return behavior.ConversationFlowMetrics{
		SessionID:       behaviors[0].SessionID,
		FlowConsistency: flowConsistency,
		TopicCoherence:  coherence,
		EngagementLevel: engagement,
		TurnTaking:      turns,
		ResponseRhythm:  rhythm,
	}
}

// DetectBehavioralDrift compares the early and late halves of the
// behaviors inside the trailing window across four dimensions.
func (a *TemporalAnalyzer) DetectBehavioralDrift(behaviors []behavior.InteractionBehavior, windowHours float64) behavior.DriftScore {
	sessionID := ""
	if len(behaviors) > 0 {
		sessionID = behaviors[0].SessionID
	}

	if len(behaviors) < 4 {
		return behavior.DriftScore{
			SessionID:           sessionID,
			DriftType:           "insufficient_data",
			TimeWindowHours:     windowHours,
			ContributingFactors: []string{"Insufficient data for drift analysis"},
		}
	}

	cutoff := a.now().Add(-time.Duration(windowHours * float64(time.Hour)))
	var recent []behavior.InteractionBehavior
	for _, b := range behaviors {
		if !b.Timestamp.Before(cutoff) {
			recent = append(recent, b)
		}
	}

	if len(recent) < 2 {
		return behavior.DriftScore{
			SessionID:           sessionID,
			DriftType:           "insufficient_recent_data",
			TimeWindowHours:     windowHours,
			ContributingFactors: []string{"Insufficient recent data"},
		}
	}

	mid := len(recent) / 2
	early, late := recent[:mid], recent[mid:]

	latencyDrift := relativeDrift(
		meanField(early, func(b behavior.InteractionBehavior) float64 { return b.ResponseLatency }),
		meanField(late, func(b behavior.InteractionBehavior) float64 { return b.ResponseLatency }))
	lengthDrift := relativeDrift(
		meanField(early, func(b behavior.InteractionBehavior) float64 { return float64(b.MessageLength) }),
		meanField(late, func(b behavior.InteractionBehavior) float64 { return float64(b.MessageLength) }))

	earlyClar := meanField(early, func(b behavior.InteractionBehavior) float64 { return b.ClarificationFreq })
	lateClar := meanField(late, func(b behavior.InteractionBehavior) float64 { return b.ClarificationFreq })
	clarificationDrift := math.Abs(lateClar - earlyClar)

	earlyConf := meanField(early, func(b behavior.InteractionBehavior) float64 { return float64(b.ConfidenceExpressions) })
	lateConf := meanField(late, func(b behavior.InteractionBehavior) float64 { return float64(b.ConfidenceExpressions) })
	var confidenceDrift float64
	if earlyConf == 0 {
		confidenceDrift = math.Abs(lateConf - earlyConf)
	} else {
		confidenceDrift = math.Abs(lateConf-earlyConf) / (earlyConf + 1)
	}

	overall := (latencyDrift + lengthDrift + clarificationDrift + confidenceDrift) / 4

	driftType, factors := classifyDrift(latencyDrift, lengthDrift, clarificationDrift, confidenceDrift)

	return behavior.DriftScore{
		SessionID:           sessionID,
		OverallDrift:        overall,
		DriftType:           driftType,
		TimeWindowHours:     windowHours,
		Confidence:          math.Min(float64(len(recent))/10.0, 1.0),
		ContributingFactors: factors,
	}
}

// IdentifyInteractionPatterns runs three independent pattern checks over
// at least three behaviors.
func (a *TemporalAnalyzer) IdentifyInteractionPatterns(behaviors []behavior.InteractionBehavior) []behavior.PatternAnalysis {
	var patterns []behavior.PatternAnalysis
	if len(behaviors) < 3 {
		return patterns
	}

	if p := identifyLengthPattern(behaviors); p != nil {
		patterns = append(patterns, *p)
	}
	if p := identifyClarificationTrend(behaviors); p != nil {
		patterns = append(patterns, *p)
	}
	if p := identifyConfidencePattern(behaviors); p != nil {
		patterns = append(patterns, *p)
	}

	return patterns
}

// CalculateConsistencyScore converts per-dimension coefficients of
// variation into a single consistency score; fewer than two behaviors
// are trivially consistent.
func (a *TemporalAnalyzer) CalculateConsistencyScore(behaviors []behavior.InteractionBehavior) float64 {
	if len(behaviors) < 2 {
		return 1.0
	}

	dimensions := [][]float64{
		floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return b.ResponseLatency }),
		floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return float64(b.MessageLength) }),
		floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return b.ClarificationFreq }),
		floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return float64(b.ConfidenceExpressions) }),
	}

	total := 0.0
	for _, values := range dimensions {
		total += math.Max(0, 1.0-coefficientOfVariation(values))
	}
	return total / float64(len(dimensions))
}

// DetectResponseLoops runs exact-text loop detection over recent
// responses (chronological order). Low diversity takes precedence over
// the alternating check when both would match.
func (a *TemporalAnalyzer) DetectResponseLoops(recentResponses []string) *behavior.LoopDetection {
	if len(recentResponses) < 3 {
		return nil
	}

	lastThree := recentResponses[len(recentResponses)-3:]
	if lastThree[0] == lastThree[1] && lastThree[1] == lastThree[2] {
		return &behavior.LoopDetection{
			LoopType:      "exact_repetition",
			PatternLength: 3,
			Confidence:    1.0,
			Details:       map[string]any{"repeated_text": truncate(lastThree[0], 100)},
		}
	}

	if len(recentResponses) >= 5 {
		lastFive := recentResponses[len(recentResponses)-5:]
		unique := make(map[string]struct{}, 5)
		for _, r := range lastFive {
			unique[r] = struct{}{}
		}
		ratio := float64(len(unique)) / float64(len(lastFive))
		if ratio < 0.6 {
			return &behavior.LoopDetection{
				LoopType:      "low_diversity",
				PatternLength: 5,
				Confidence:    1.0 - ratio,
				Details:       map[string]any{"uniqueness_ratio": ratio},
			}
		}
	}

	if len(recentResponses) >= 4 {
		lastFour := recentResponses[len(recentResponses)-4:]
		if lastFour[0] == lastFour[2] && lastFour[1] == lastFour[3] {
			return &behavior.LoopDetection{
				LoopType:      "alternating_pattern",
				PatternLength: 2,
				Confidence:    0.9,
				Details: map[string]any{
					"pattern_texts": []string{truncate(lastFour[0], 50), truncate(lastFour[1], 50)},
				},
			}
		}
	}

	return nil
}

func relativeDrift(earlyAvg, lateAvg float64) float64 {
	if earlyAvg == 0 {
		return 0
	}
	return math.Abs(lateAvg-earlyAvg) / earlyAvg
}

// classifyDrift names the dominant dimension; ties break in the fixed
// order latency, length, clarification, confidence.
func classifyDrift(latency, length, clarification, confidence float64) (string, []string) {
	names := []string{"latency", "length", "clarification", "confidence"}
	values := []float64{latency, length, clarification, confidence}

	maxIdx := 0
	for i, v := range values {
		if v > values[maxIdx] {
			maxIdx = i
		}
	}

	var factors []string
	for i, v := range values {
		if v > 0.2 {
			factors = append(factors, fmt.Sprintf("Significant %s drift: %.2f", names[i], v))
		}
	}

	return names[maxIdx], factors
}

func identifyLengthPattern(behaviors []behavior.InteractionBehavior) *behavior.PatternAnalysis {
	buckets := make([]string, len(behaviors))
	for i, b := range behaviors {
		switch {
		case b.MessageLength < 50:
			buckets[i] = "short"
		case b.MessageLength < 200:
			buckets[i] = "medium"
		default:
			buckets[i] = "long"
		}
	}

	strength := patternStrength(buckets)
	if strength <= 0.6 {
		return nil
	}

	return &behavior.PatternAnalysis{
		SessionID:       behaviors[0].SessionID,
		PatternType:     "message_length",
		PatternStrength: strength,
		RepetitionCount: len(behaviors),
		LastOccurrence:  behaviors[len(behaviors)-1].Timestamp,
		Metadata:        map[string]any{"length_distribution": buckets},
	}
}

func identifyClarificationTrend(behaviors []behavior.InteractionBehavior) *behavior.PatternAnalysis {
	if len(behaviors) < 3 {
		return nil
	}
	values := floatField(behaviors, func(b behavior.InteractionBehavior) float64 { return b.ClarificationFreq })

	trend := trendStrength(values)
	if math.Abs(trend) <= 0.6 {
		return nil
	}

	direction := "decreasing"
	if trend > 0 {
		direction = "increasing"
	}

	return &behavior.PatternAnalysis{
		SessionID:       behaviors[0].SessionID,
		PatternType:     "clarification_trend",
		PatternStrength: math.Abs(trend),
		RepetitionCount: len(behaviors),
		LastOccurrence:  behaviors[len(behaviors)-1].Timestamp,
		Metadata:        map[string]any{"trend_direction": direction},
	}
}

func identifyConfidencePattern(behaviors []behavior.InteractionBehavior) *behavior.PatternAnalysis {
	labels := make([]string, len(behaviors))
	counts := make([]int, len(behaviors))
	for i, b := range behaviors {
		labels[i] = strconv.Itoa(b.ConfidenceExpressions)
		counts[i] = b.ConfidenceExpressions
	}

	strength := patternStrength(labels)
	if strength <= 0.5 {
		return nil
	}

	return &behavior.PatternAnalysis{
		SessionID:       behaviors[0].SessionID,
		PatternType:     "confidence_expression",
		PatternStrength: strength,
		RepetitionCount: len(behaviors),
		LastOccurrence:  behaviors[len(behaviors)-1].Timestamp,
		Metadata:        map[string]any{"confidence_levels": counts},
	}
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	if avg == 0 {
		return 0
	}
	return math.Sqrt(sampleVariance(values)) / avg
}

// patternStrength is the fraction of unordered index pairs whose labels
// are equal.
func patternStrength(sequence []string) float64 {
	if len(sequence) < 2 {
		return 0
	}

	matched, total := 0, 0
	for i := 0; i < len(sequence)-1; i++ {
		for j := i + 1; j < len(sequence); j++ {
			if sequence[i] == sequence[j] {
				matched++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// trendStrength is positive for increasing sequences, negative for
// decreasing, based on consecutive step directions.
func trendStrength(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	increases, decreases, total := 0, 0, 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			increases++
		} else if values[i] < values[i-1] {
			decreases++
		}
		total++
	}
	if total == 0 {
		return 0
	}
	return float64(increases-decreases) / float64(total)
}

func floatField(behaviors []behavior.InteractionBehavior, f func(behavior.InteractionBehavior) float64) []float64 {
	values := make([]float64, len(behaviors))
	for i, b := range behaviors {
		values[i] = f(b)
	}
	return values
}

func meanField(behaviors []behavior.InteractionBehavior, f func(behavior.InteractionBehavior) float64) float64 {
	return mean(floatField(behaviors, f))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
