package behavior

import "time"

// ConversationFlowMetrics summarizes the rhythm and coherence of a
// session's conversation so far.
type ConversationFlowMetrics struct {
	SessionID       string  `json:"session_id"`
	FlowConsistency float64 `json:"flow_consistency"`
	TopicCoherence  float64 `json:"topic_coherence"`
	EngagementLevel float64 `json:"engagement_level"`
	TurnTaking      []int   `json:"turn_taking_pattern"`
	ResponseRhythm  float64 `json:"response_rhythm"`
}

// DriftScore measures behavioral change between the early and late
// halves of a session's recent history. Computed on demand.
type DriftScore struct {
	SessionID           string   `json:"session_id"`
	OverallDrift        float64  `json:"overall_drift"`
	DriftType           string   `json:"drift_type"`
	TimeWindowHours     float64  `json:"time_window_hours"`
	Confidence          float64  `json:"confidence"`
	ContributingFactors []string `json:"contributing_factors"`
}

// PatternAnalysis describes a recurring structure found in a session's
// behavior sequence.
type PatternAnalysis struct {
	SessionID       string         `json:"session_id"`
	PatternType     string         `json:"pattern_type"`
	PatternStrength float64        `json:"pattern_strength"`
	RepetitionCount int            `json:"repetition_count"`
	LastOccurrence  time.Time      `json:"last_occurrence"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// LoopDetection reports a repeated or low-diversity response loop.
type LoopDetection struct {
	LoopType      string         `json:"loop_type"`
	PatternLength int            `json:"pattern_length"`
	Confidence    float64        `json:"confidence"`
	Details       map[string]any `json:"details,omitempty"`
}
