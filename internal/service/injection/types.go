package injection

import (
	"time"

	"github.com/probelab/agent-testbed/internal/domain/agent"
)

// modeConfig is one catalog entry: the failure category, its base
// probability, and the category-specific payload.
type modeConfig struct {
	failureType    agent.FailureType
	probability    float64
	responses      []string
	timeoutMin     time.Duration
	timeoutMax     time.Duration
	tokenThreshold int
	errorMessage   string
	maxIterations  int
}

// sessionState tracks per-session injection bookkeeping. Created lazily
// on the first probabilistic evaluation, reset explicitly.
type sessionState struct {
	FailureCount          int               `json:"failure_count"`
	LastFailureTime       time.Time         `json:"last_failure_time"`
	LastFailureMode       agent.FailureMode `json:"last_failure_mode"`
	ClarificationRequests int               `json:"clarification_requests"`
	MessageCount          int               `json:"message_count"`
}

// catalog returns the static failure scenario configuration, keyed by
// mode. Read-only at runtime except for probability multipliers applied
// at evaluation time.
func catalog() map[agent.FailureMode]*modeConfig {
	return map[agent.FailureMode]*modeConfig{
		agent.ModeHallucination: {
			failureType: agent.FailureTypeOutputQuality,
			probability: 0.3,
			responses: []string{
				"Our premium service includes quantum encryption and time-travel backup features.",
				"According to the recent study by the Institute of Digital Wellness (which doesn't exist), 95% of users prefer this approach.",
				"This feature was actually invented by Steve Jobs in 2025 during his posthumous innovation period.",
				"The algorithm uses advanced AI trained on data from parallel universes to ensure accuracy.",
			},
		},
		agent.ModeIncorrectReasoning: {
			failureType: agent.FailureTypeOutputQuality,
			probability: 0.25,
			responses: []string{
				"Since you're having login issues, you should definitely delete your account and create a new one.",
				"The best way to fix network connectivity is to increase your password complexity.",
				"If the application is slow, try using it on a different day of the week.",
				"This error occurs because your computer's time zone is incompatible with our servers.",
			},
		},
		agent.ModeOffTopic: {
			failureType: agent.FailureTypeOutputQuality,
			probability: 0.2,
			responses: []string{
				"That reminds me of a great recipe for chocolate chip cookies! Would you like me to share it?",
				"Speaking of your technical issue, have you considered taking up meditation? It really helps with stress.",
				"You know, the weather has been quite unpredictable lately. How's the weather where you are?",
				"This is similar to my favorite movie plot. Have you seen The Matrix? It's all about questioning reality.",
			},
		},
		agent.ModeInfiniteLoop: {
			failureType: agent.FailureTypeBehavioral,
			probability: 0.2,
			responses: []string{
				"Could you please clarify what you mean by that?",
				"I need a bit more information to help you better.",
				"Can you provide more details about your specific situation?",
				"To better assist you, could you elaborate on your request?",
			},
			maxIterations: 3,
		},
		agent.ModeRefusingProgress: {
			failureType: agent.FailureTypeBehavioral,
			probability: 0.15,
			responses: []string{
				"I'm not comfortable making assumptions about your specific use case.",
				"This seems like it might require specialized knowledge that I don't possess.",
				"I'd rather not guess at the solution - you should contact a human expert.",
				"This is beyond my capabilities and I cannot provide useful assistance.",
			},
		},
		agent.ModeAPITimeout: {
			failureType:  agent.FailureTypeIntegration,
			probability:  0.1,
			timeoutMin:   5 * time.Second,
			timeoutMax:   15 * time.Second,
			errorMessage: "External API request timed out",
		},
		agent.ModeAuthError: {
			failureType:  agent.FailureTypeIntegration,
			probability:  0.08,
			errorMessage: "Authentication failed: Invalid API key",
		},
		agent.ModeServiceUnavailable: {
			failureType:  agent.FailureTypeIntegration,
			probability:  0.12,
			errorMessage: "Service temporarily unavailable: 503 Service Unavailable",
		},
		agent.ModeTokenLimit: {
			failureType:    agent.FailureTypeResource,
			probability:    0.05,
			tokenThreshold: 1000,
			errorMessage:   "Token limit exceeded",
		},
		agent.ModeMemoryExhaustion: {
			failureType:  agent.FailureTypeResource,
			probability:  0.03,
			errorMessage: "Memory limit exceeded: Unable to process request",
		},
		agent.ModeRateLimiting: {
			failureType:  agent.FailureTypeResource,
			probability:  0.07,
			errorMessage: "Rate limit exceeded: Please try again later",
		},
	}
}
