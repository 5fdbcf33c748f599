package injection

import (
	"context"

	"github.com/probelab/agent-testbed/internal/domain/agent"
)

// Service decides whether to inject a failure into a turn and
// synthesizes the corrupted outcome when one is selected.
type Service interface {
	// ShouldInject decides whether a failure fires for this turn. A
	// non-nil forced mode always injects that mode; otherwise the
	// probabilistic evaluator runs when enabled.
	ShouldInject(sessionID, message string, forced *agent.FailureMode) (bool, agent.FailureMode)

	// Apply synthesizes the outcome for a selected mode: a replacement
	// response for output-quality and behavioral modes, or a Fault for
	// integration and resource modes. The api_timeout mode blocks for
	// its simulated duration before returning.
	Apply(ctx context.Context, sessionID string, mode agent.FailureMode, naturalResponse string, tokenCount int) agent.InjectionOutcome

	// SetScenario restricts probabilistic injection to a scenario's
	// modes and multipliers; nil clears the restriction.
	SetScenario(scenario *agent.FailureScenario)

	// ScenarioName reports the active scenario name, "default" if none.
	ScenarioName() string

	// ResetSession discards the session's injection state.
	ResetSession(sessionID string)
}
