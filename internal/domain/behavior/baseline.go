package behavior

import "time"

// LengthRange is the expected message-length band for a session.
type LengthRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// BehavioralBaseline is the per-session statistical summary of normal
// behavior used as a deviation reference. At most one exists per session
// and it is only created once enough history has accumulated.
type BehavioralBaseline struct {
	SessionID           string             `json:"session_id"`
	AvgResponseLatency  float64            `json:"avg_response_latency"`
	TypicalMessageRange LengthRange        `json:"typical_message_length_range"`
	NormalClarification float64            `json:"normal_clarification_rate"`
	StandardDepth       int                `json:"standard_conversation_depth"`
	ConfidencePattern   map[string]float64 `json:"confidence_pattern"`
	InteractionCount    int                `json:"interaction_count"`
	EstablishedAt       time.Time          `json:"established_at"`
	LastUpdated         time.Time          `json:"last_updated"`
}
