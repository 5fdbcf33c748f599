package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/behavior"
	"github.com/probelab/agent-testbed/internal/service/behavioral"
)

var bridgeClarificationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(could you|can you|please)\s+(clarify|explain)`),
	regexp.MustCompile(`\b(what do you mean|unclear)`),
	regexp.MustCompile(`\?`),
}

var bridgeConfidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(i think|i believe|probably|likely|maybe)`),
	regexp.MustCompile(`\b(definitely|certainly|absolutely|sure)`),
	regexp.MustCompile(`\b(not sure|uncertain|might be)`),
}

// AnomalyStrategy bridges the behavioral anomaly detector into the
// validation pipeline. It judges interaction patterns, not content.
type AnomalyStrategy struct {
	tracker  *behavioral.Tracker
	detector *behavioral.AnomalyDetector
	logger   *zap.Logger
}

// NewAnomalyStrategy wires an existing tracker and detector into a
// validation strategy so one behavioral state serves both paths.
func NewAnomalyStrategy(tracker *behavioral.Tracker, detector *behavioral.AnomalyDetector, logger *zap.Logger) *AnomalyStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnomalyStrategy{tracker: tracker, detector: detector, logger: logger}
}

func (s *AnomalyStrategy) Name() string { return "behavioral_anomaly" }

func (s *AnomalyStrategy) Validate(output string, vctx Context) (Result, error) {
	sessionID := vctx.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}

	current := s.currentBehavior(output, vctx, sessionID)
	history := s.tracker.RecentBehaviors(sessionID, 50)
	responses := s.tracker.RecentResponses(sessionID, 5)

	report := s.detector.DetectAnomalies(sessionID, current, history, responses)

	var errs, warnings []string
	for _, anomaly := range report.Anomalies {
		message := fmt.Sprintf("%s (score: %.2f)", anomaly.Description, anomaly.Score)
		if anomaly.Score >= 0.8 {
			errs = append(errs, message)
		} else {
			warnings = append(warnings, message)
		}
	}
	for _, rec := range report.Recommendations {
		warnings = append(warnings, "Recommendation: "+rec)
	}

	passed := report.OverallScore < 0.7

	s.logger.Debug("behavioral anomaly validation completed",
		zap.String("session_id", sessionID),
		zap.Bool("passed", passed),
		zap.Float64("overall_score", report.OverallScore),
		zap.Int("anomaly_count", len(report.Anomalies)))

	return Result{
		Passed:     passed,
		Confidence: report.Confidence,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelBehavioral,
		Metadata: map[string]any{
			"overall_anomaly_score": report.OverallScore,
			"anomaly_count":         len(report.Anomalies),
			"anomaly_scores":        report.Scores,
			"session_id":            sessionID,
			"detection_timestamp":   report.Timestamp,
		},
	}, nil
}

// currentBehavior prefers a full tracked interaction when the context
// carries the request/response pair, and falls back to text-only
// heuristics otherwise.
func (s *AnomalyStrategy) currentBehavior(output string, vctx Context, sessionID string) behavior.InteractionBehavior {
	if vctx.Request != nil && vctx.Response != nil {
		return s.tracker.TrackInteraction(sessionID, vctx.Request, vctx.Response)
	}

	timestamp := vctx.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return behavior.InteractionBehavior{
		SessionID:             sessionID,
		ResponseLatency:       vctx.ProcessingTimeMs,
		MessageLength:         len(output),
		ConversationTurns:     len(vctx.History),
		ClarificationFreq:     clarificationFrequency(output),
		ConfidenceExpressions: confidenceExpressions(output),
		Timestamp:             timestamp,
	}
}

// clarificationFrequency is a coarse per-10-words rate used only when
// no tracked behavior is available.
func clarificationFrequency(text string) float64 {
	lower := strings.ToLower(text)
	count := 0
	for _, pattern := range bridgeClarificationPatterns {
		count += len(pattern.FindAllString(lower, -1))
	}
	words := float64(len(strings.Fields(text))) / 10.0
	if words < 1 {
		words = 1
	}
	return float64(count) / words
}

func confidenceExpressions(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, pattern := range bridgeConfidencePatterns {
		count += len(pattern.FindAllString(lower, -1))
	}
	return count
}

// ConsistencyStrategy checks that the session's recent behaviors stay
// self-similar. Sessions with fewer than three interactions pass with
// reduced confidence.
type ConsistencyStrategy struct {
	tracker  *behavioral.Tracker
	temporal *behavioral.TemporalAnalyzer
}

func NewConsistencyStrategy(tracker *behavioral.Tracker) *ConsistencyStrategy {
	return &ConsistencyStrategy{tracker: tracker, temporal: behavioral.NewTemporalAnalyzer()}
}

func (s *ConsistencyStrategy) Name() string { return "interaction_consistency" }

func (s *ConsistencyStrategy) Validate(_ string, vctx Context) (Result, error) {
	sessionID := vctx.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}

	sessionMetrics := s.tracker.SessionMetrics(sessionID)
	if sessionMetrics.InteractionCount < 3 {
		return Result{
			Passed:     true,
			Confidence: 0.5,
			Warnings:   []string{"Insufficient interactions for consistency analysis"},
			Level:      LevelBehavioral,
			Metadata:   map[string]any{"interaction_count": sessionMetrics.InteractionCount},
		}, nil
	}

	recent := s.tracker.RecentBehaviors(sessionID, 10)
	score := s.temporal.CalculateConsistencyScore(recent)

	passed := score >= 0.6
	confidence := float64(sessionMetrics.InteractionCount) / 10.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	var errs, warnings []string
	if !passed {
		errs = append(errs, fmt.Sprintf("Low interaction consistency detected (score: %.2f)", score))
	} else if score < 0.8 {
		warnings = append(warnings, fmt.Sprintf("Moderate consistency issues (score: %.2f)", score))
	}

	return Result{
		Passed:     passed,
		Confidence: confidence,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelBehavioral,
		Metadata: map[string]any{
			"consistency_score": score,
			"interaction_count": sessionMetrics.InteractionCount,
		},
	}, nil
}
