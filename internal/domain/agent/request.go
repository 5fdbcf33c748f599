package agent

// Status is the terminal disposition of a single agent turn.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// AgentRequest is one user turn addressed to the agent.
type AgentRequest struct {
	SessionID   string         `json:"session_id"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	FailureMode *FailureMode   `json:"failure_mode,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Model       string         `json:"model"`
}

// AgentResponse is the outcome of processing one AgentRequest. When a
// failure was injected, NaturalStatus and NaturalResponse preserve what
// the agent would have returned without interference.
type AgentResponse struct {
	SessionID               string         `json:"session_id"`
	Response                string         `json:"response"`
	Status                  Status         `json:"status"`
	NaturalStatus           Status         `json:"natural_status"`
	FailureMode             *FailureMode   `json:"failure_mode,omitempty"`
	FailureInjectionApplied bool           `json:"failure_injection_applied"`
	NaturalResponse         string         `json:"natural_response,omitempty"`
	ProcessingTimeMs        float64        `json:"processing_time_ms"`
	TokenCount              int            `json:"token_count"`
	ModelUsed               string         `json:"model_used"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// Message is a single entry in a session's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
