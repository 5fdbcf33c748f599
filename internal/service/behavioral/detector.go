package behavioral

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/behavior"
)

const (
	defaultAnomalyThreshold = 0.7
	defaultDriftThreshold   = 0.8
	outlierZThreshold       = 2.0
)

// AnomalyDetector orchestrates baseline, drift, pattern, statistical,
// and loop checks into one composite result per interaction.
type AnomalyDetector struct {
	baselines *BaselineManager
	temporal  *TemporalAnalyzer

	anomalyThreshold float64
	driftThreshold   float64
	driftWindowHours float64

	logger *zap.Logger
	now    func() time.Time
}

func NewAnomalyDetector(baselines *BaselineManager, temporal *TemporalAnalyzer, anomalyThreshold, driftThreshold float64, logger *zap.Logger) *AnomalyDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if anomalyThreshold <= 0 {
		anomalyThreshold = defaultAnomalyThreshold
	}
	if driftThreshold <= 0 {
		driftThreshold = defaultDriftThreshold
	}
	return &AnomalyDetector{
		baselines:        baselines,
		temporal:         temporal,
		anomalyThreshold: anomalyThreshold,
		driftThreshold:   driftThreshold,
		driftWindowHours: 24,
		logger:           logger,
		now:              time.Now,
	}
}

// DetectAnomalies runs every applicable check and aggregates the fired
// ones. The overall score is the maximum per-type score, never a sum.
func (d *AnomalyDetector) DetectAnomalies(sessionID string, current behavior.InteractionBehavior, history []behavior.InteractionBehavior, recentResponses []string) behavior.AnomalyReport {
	report := behavior.AnomalyReport{
		SessionID: sessionID,
		Timestamp: d.now(),
		Anomalies: []behavior.Anomaly{},
		Scores:    map[string]float64{},
	}

	if a := d.detectBaselineAnomaly(current, history); a != nil {
		report.Anomalies = append(report.Anomalies, *a)
		report.Scores[behavior.AnomalyBaselineDeviation] = a.Score
	}

	if a := d.detectDriftAnomaly(history); a != nil {
		report.Anomalies = append(report.Anomalies, *a)
		report.Scores[behavior.AnomalyTemporalDrift] = a.Score
	}

	if a := d.detectPatternAnomaly(history); a != nil {
		report.Anomalies = append(report.Anomalies, *a)
		report.Scores[behavior.AnomalyPattern] = a.Score
	}

	if a := d.detectStatisticalAnomaly(current, history); a != nil {
		report.Anomalies = append(report.Anomalies, *a)
		report.Scores[behavior.AnomalyStatisticalOutlier] = a.Score
	}

	if len(recentResponses) > 0 {
		if a := d.detectLoopAnomaly(recentResponses); a != nil {
			report.Anomalies = append(report.Anomalies, *a)
			report.Scores[behavior.AnomalyResponseLoop] = a.Score
		}
	}

	for _, score := range report.Scores {
		if score > report.OverallScore {
			report.OverallScore = score
		}
	}

	report.Confidence = d.calculateConfidence(history)
	report.Recommendations = d.generateRecommendations(&report)

	d.logger.Info("anomaly detection completed",
		zap.String("session_id", sessionID),
		zap.Int("anomalies_count", len(report.Anomalies)),
		zap.Float64("overall_score", report.OverallScore),
		zap.Float64("confidence", report.Confidence))

	return report
}

// UpdateThresholds adjusts the detection thresholds at runtime.
func (d *AnomalyDetector) UpdateThresholds(anomalyThreshold, driftThreshold float64) {
	d.anomalyThreshold = anomalyThreshold
	d.driftThreshold = driftThreshold
	d.logger.Info("updated anomaly detection thresholds",
		zap.Float64("anomaly_threshold", anomalyThreshold),
		zap.Float64("drift_threshold", driftThreshold))
}

func (d *AnomalyDetector) detectBaselineAnomaly(current behavior.InteractionBehavior, history []behavior.InteractionBehavior) *behavior.Anomaly {
	baseline := d.baselines.GetBaseline(current.SessionID)
	if baseline == nil {
		if len(history) >= d.baselines.minInteractions {
			baseline = d.baselines.EstablishBaseline(current.SessionID, history)
		}
		if baseline == nil {
			return nil
		}
	}

	deviation := d.baselines.DetectDeviation(current, baseline)
	if deviation < d.anomalyThreshold {
		return nil
	}

	return &behavior.Anomaly{
		Type:        behavior.AnomalyBaselineDeviation,
		Score:       deviation,
		Description: "Behavior deviates significantly from established baseline",
		Details: map[string]any{
			"current_latency":        current.ResponseLatency,
			"baseline_latency":       baseline.AvgResponseLatency,
			"current_length":         current.MessageLength,
			"baseline_length_range":  baseline.TypicalMessageRange,
			"current_clarification":  current.ClarificationFreq,
			"baseline_clarification": baseline.NormalClarification,
		},
	}
}

func (d *AnomalyDetector) detectDriftAnomaly(history []behavior.InteractionBehavior) *behavior.Anomaly {
	if len(history) < 4 {
		return nil
	}

	drift := d.temporal.DetectBehavioralDrift(history, d.driftWindowHours)
	if drift.OverallDrift < d.driftThreshold {
		return nil
	}

	return &behavior.Anomaly{
		Type:        behavior.AnomalyTemporalDrift,
		Score:       drift.OverallDrift,
		Description: fmt.Sprintf("Significant behavioral drift detected: %s", drift.DriftType),
		Details: map[string]any{
			"drift_type":           drift.DriftType,
			"time_window_hours":    drift.TimeWindowHours,
			"confidence":           drift.Confidence,
			"contributing_factors": drift.ContributingFactors,
		},
	}
}

// detectPatternAnomaly only treats a strong clarification trend as
// inherently problematic; other pattern types are informational.
func (d *AnomalyDetector) detectPatternAnomaly(history []behavior.InteractionBehavior) *behavior.Anomaly {
	patterns := d.temporal.IdentifyInteractionPatterns(history)

	for _, p := range patterns {
		if p.PatternStrength > 0.8 && p.PatternType == "clarification_trend" {
			return &behavior.Anomaly{
				Type:        behavior.AnomalyPattern,
				Score:       p.PatternStrength,
				Description: fmt.Sprintf("Problematic interaction pattern detected: %s", p.PatternType),
				Details: map[string]any{
					"pattern_type":     p.PatternType,
					"pattern_strength": p.PatternStrength,
					"repetition_count": p.RepetitionCount,
					"metadata":         p.Metadata,
				},
			}
		}
	}
	return nil
}

func (d *AnomalyDetector) detectStatisticalAnomaly(current behavior.InteractionBehavior, history []behavior.InteractionBehavior) *behavior.Anomaly {
	if len(history) < 3 {
		return nil
	}

	var outliers []string

	latencies := floatField(history, func(b behavior.InteractionBehavior) float64 { return b.ResponseLatency })
	if isOutlier(current.ResponseLatency, latencies) {
		outliers = append(outliers, "response_latency")
	}

	lengths := floatField(history, func(b behavior.InteractionBehavior) float64 { return float64(b.MessageLength) })
	if isOutlier(float64(current.MessageLength), lengths) {
		outliers = append(outliers, "message_length")
	}

	clarifications := floatField(history, func(b behavior.InteractionBehavior) float64 { return b.ClarificationFreq })
	if isOutlier(current.ClarificationFreq, clarifications) {
		outliers = append(outliers, "clarification_frequency")
	}

	if len(outliers) == 0 {
		return nil
	}

	return &behavior.Anomaly{
		Type:        behavior.AnomalyStatisticalOutlier,
		Score:       float64(len(outliers)) / 4.0,
		Description: fmt.Sprintf("Statistical outliers detected in: %s", strings.Join(outliers, ", ")),
		Details: map[string]any{
			"outlier_metrics": outliers,
			"current_values": map[string]any{
				"latency":       current.ResponseLatency,
				"length":        current.MessageLength,
				"clarification": current.ClarificationFreq,
				"confidence":    current.ConfidenceExpressions,
			},
		},
	}
}

func (d *AnomalyDetector) detectLoopAnomaly(recentResponses []string) *behavior.Anomaly {
	loop := d.temporal.DetectResponseLoops(recentResponses)
	if loop == nil {
		return nil
	}

	details := map[string]any{
		"loop_type":      loop.LoopType,
		"pattern_length": loop.PatternLength,
		"confidence":     loop.Confidence,
	}
	for k, v := range loop.Details {
		details[k] = v
	}

	return &behavior.Anomaly{
		Type:        behavior.AnomalyResponseLoop,
		Score:       loop.Confidence,
		Description: fmt.Sprintf("Response loop detected: %s", loop.LoopType),
		Details:     details,
	}
}

// isOutlier applies a modified Z-score test (median/MAD, constant
// 0.6745). MAD of zero or fewer than 3 samples never flags.
func isOutlier(value float64, historical []float64) bool {
	if len(historical) < 3 {
		return false
	}

	sorted := append([]float64(nil), historical...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	deviations := make([]float64, len(historical))
	for i, v := range historical {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)
	mad := deviations[len(deviations)/2]

	if mad == 0 {
		return false
	}

	modifiedZ := 0.6745 * (value - median) / mad
	return math.Abs(modifiedZ) > outlierZThreshold
}

func (d *AnomalyDetector) calculateConfidence(history []behavior.InteractionBehavior) float64 {
	dataConfidence := math.Min(float64(len(history))/20.0, 1.0)

	recency := 0.0
	if len(history) > 0 {
		latest := history[len(history)-1]
		sinceLatest := d.now().Sub(latest.Timestamp).Seconds()
		recency = math.Max(0, 1.0-sinceLatest/86400)
	}

	return (dataConfidence + recency) / 2.0
}

func (d *AnomalyDetector) generateRecommendations(report *behavior.AnomalyReport) []string {
	var recommendations []string

	if report.OverallScore >= 0.8 {
		recommendations = append(recommendations, "High anomaly score detected - immediate investigation recommended")
	}

	for _, a := range report.Anomalies {
		switch a.Type {
		case behavior.AnomalyBaselineDeviation:
			recommendations = append(recommendations, "Monitor agent performance for consistency issues")
		case behavior.AnomalyTemporalDrift:
			recommendations = append(recommendations, "Check for gradual degradation in agent behavior over time")
		case behavior.AnomalyPattern:
			recommendations = append(recommendations, "Investigate repetitive problematic interaction patterns")
		case behavior.AnomalyStatisticalOutlier:
			recommendations = append(recommendations, "Review outlier behaviors for potential system issues")
		case behavior.AnomalyResponseLoop:
			recommendations = append(recommendations, "Agent appears stuck in response loop - restart or reset session")
		}
	}

	if report.Confidence < 0.5 {
		recommendations = append(recommendations, "Low confidence in results - collect more behavioral data")
	}

	if len(recommendations) == 0 {
		recommendations = append(recommendations, "No significant anomalies detected - continue monitoring")
	}

	return recommendations
}
