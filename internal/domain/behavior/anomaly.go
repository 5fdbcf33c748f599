package behavior

import "time"

// Anomaly types reported by the detector.
const (
	AnomalyBaselineDeviation  = "baseline_deviation"
	AnomalyTemporalDrift      = "temporal_drift"
	AnomalyPattern            = "pattern_anomaly"
	AnomalyStatisticalOutlier = "statistical_anomaly"
	AnomalyResponseLoop       = "response_loop"
)

// Anomaly is one fired detection with its score and machine-readable
// detail for reconstructing the description.
type Anomaly struct {
	Type        string         `json:"type"`
	Score       float64        `json:"score"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// AnomalyReport is the composite result of one detection pass. The
// overall score is the maximum of the per-type scores so a single
// strong signal is never diluted by quiet checks.
type AnomalyReport struct {
	SessionID       string             `json:"session_id"`
	Timestamp       time.Time          `json:"timestamp"`
	Anomalies       []Anomaly          `json:"anomalies"`
	Scores          map[string]float64 `json:"scores"`
	OverallScore    float64            `json:"overall_score"`
	Confidence      float64            `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
}

// MonitoringResult bundles everything the monitoring pipeline produces
// for a single tracked interaction.
type MonitoringResult struct {
	Behavior       *InteractionBehavior `json:"behavior,omitempty"`
	Anomalies      *AnomalyReport       `json:"anomalies,omitempty"`
	SessionMetrics SessionMetrics       `json:"session_metrics"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
}
