package chat

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/infrastructure/database"
)

// ChatCompleter is the slice of the LLM client the service depends on.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// InteractionStore persists completed turns for offline analysis.
type InteractionStore interface {
	Save(ctx context.Context, rec *database.InteractionRecord) error
}

// Service runs the simulated customer-service agent: one turn in, one
// turn out, with failure injection and behavioral monitoring applied
// along the way.
type Service interface {
	// ProcessRequest handles one user turn end to end. The returned
	// response always carries both the observed outcome and, when an
	// injection fired, the natural response the model actually produced.
	ProcessRequest(ctx context.Context, req *agent.AgentRequest) (*agent.AgentResponse, error)

	// ResetSession discards all per-session state: conversation history,
	// failure counters, injector bookkeeping, and behavioral baselines.
	ResetSession(ctx context.Context, sessionID string) error

	// SessionState returns the live conversation state, or nil when the
	// session has none.
	SessionState(ctx context.Context, sessionID string) (*agent.AgentState, error)

	// PingLLM issues a minimal completion to verify upstream health and
	// reports the round-trip time and the serving model.
	PingLLM(ctx context.Context) (time.Duration, string, error)
}
