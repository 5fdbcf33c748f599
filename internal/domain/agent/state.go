package agent

// AgentState is the durable per-session conversation state kept between
// turns. It is persisted to Redis so a session survives process restarts.
type AgentState struct {
	SessionID     string         `json:"session_id"`
	History       []Message      `json:"history"`
	Context       map[string]any `json:"context"`
	FailureCount  int            `json:"failure_count"`
	RecoveryCount int            `json:"recovery_count"`
}

// NewAgentState returns the empty starting state for a session.
func NewAgentState(sessionID string) *AgentState {
	return &AgentState{
		SessionID: sessionID,
		History:   []Message{},
		Context:   map[string]any{},
	}
}
