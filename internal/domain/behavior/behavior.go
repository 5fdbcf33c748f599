package behavior

import "time"

// InteractionBehavior captures the observable telemetry of a single
// conversational turn. Records are immutable once created.
type InteractionBehavior struct {
	SessionID             string    `json:"session_id"`
	ResponseLatency       float64   `json:"response_latency"`
	MessageLength         int       `json:"message_length"`
	ConversationTurns     int       `json:"conversation_turns"`
	ClarificationFreq     float64   `json:"clarification_frequency"`
	TopicSwitches         int       `json:"topic_switches"`
	ConfidenceExpressions int       `json:"confidence_expressions"`
	Timestamp             time.Time `json:"timestamp"`
}

// SessionMetrics aggregates a session's tracked behaviors. An empty
// session yields the zero value with InteractionCount 0.
type SessionMetrics struct {
	SessionID            string               `json:"session_id"`
	InteractionCount     int                  `json:"interaction_count"`
	AvgResponseLatency   float64              `json:"avg_response_latency"`
	AvgMessageLength     float64              `json:"avg_message_length"`
	AvgClarificationFreq float64              `json:"avg_clarification_frequency"`
	AvgConfidenceExpr    float64              `json:"avg_confidence_expressions"`
	TotalTopicSwitches   int                  `json:"total_topic_switches"`
	LatestBehavior       *InteractionBehavior `json:"latest_behavior,omitempty"`
}
