package behavioral

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/domain/behavior"
	"github.com/probelab/agent-testbed/internal/infrastructure/sessionstore"
)

// maxStoredResponses bounds the per-session response-text history kept
// for loop detection. Eviction is FIFO.
const maxStoredResponses = 10

var clarificationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(could you|can you|please)\s+(clarify|explain|tell me more)`),
	regexp.MustCompile(`\b(what do you mean|i don't understand|unclear)`),
	regexp.MustCompile(`\?(.*?)\?`),
	regexp.MustCompile(`\b(help me understand|need more information)`),
}

var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(i think|i believe|i assume|probably|likely|maybe|perhaps)`),
	regexp.MustCompile(`\b(definitely|certainly|absolutely|sure|confident)`),
	regexp.MustCompile(`\b(not sure|uncertain|unclear|might be|could be)`),
	regexp.MustCompile(`\b(in my opinion|from my perspective)`),
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {},
}

// Tracker converts each request/response pair into an
// InteractionBehavior record and keeps a rolling per-session history.
type Tracker struct {
	behaviors sessionstore.Store[[]behavior.InteractionBehavior]
	responses sessionstore.Store[[]string]
	logger    *zap.Logger
	now       func() time.Time
}

func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		behaviors: sessionstore.NewMemoryStore[[]behavior.InteractionBehavior](),
		responses: sessionstore.NewMemoryStore[[]string](),
		logger:    logger,
		now:       time.Now,
	}
}

// TrackInteraction computes and records the behavioral metrics for one
// completed turn.
func (t *Tracker) TrackInteraction(sessionID string, request *agent.AgentRequest, response *agent.AgentResponse) behavior.InteractionBehavior {
	history, _ := t.behaviors.Get(sessionID)
	turns := len(history) + 1

	b := behavior.InteractionBehavior{
		SessionID:             sessionID,
		ResponseLatency:       response.ProcessingTimeMs,
		MessageLength:         len(response.Response),
		ConversationTurns:     turns,
		ClarificationFreq:     clarificationFrequency(response.Response, turns),
		TopicSwitches:         detectTopicSwitch(request.Message, response.Response),
		ConfidenceExpressions: countConfidenceExpressions(response.Response),
		Timestamp:             t.now(),
	}

	t.behaviors.Set(sessionID, append(history, b))

	texts, _ := t.responses.Get(sessionID)
	texts = append(texts, response.Response)
	if len(texts) > maxStoredResponses {
		texts = texts[len(texts)-maxStoredResponses:]
	}
	t.responses.Set(sessionID, texts)

	t.logger.Debug("tracked interaction behavior",
		zap.String("session_id", sessionID),
		zap.Float64("response_latency_ms", b.ResponseLatency),
		zap.Int("message_length", b.MessageLength),
		zap.Float64("clarification_frequency", b.ClarificationFreq),
		zap.Int("confidence_expressions", b.ConfidenceExpressions))

	return b
}

// SessionMetrics aggregates a session's tracked behaviors; unknown
// sessions yield the zero shape rather than an error.
func (t *Tracker) SessionMetrics(sessionID string) behavior.SessionMetrics {
	history, _ := t.behaviors.Get(sessionID)
	metrics := behavior.SessionMetrics{SessionID: sessionID}
	if len(history) == 0 {
		return metrics
	}

	var latency, length, clarification, confidence float64
	for _, b := range history {
		latency += b.ResponseLatency
		length += float64(b.MessageLength)
		clarification += b.ClarificationFreq
		confidence += float64(b.ConfidenceExpressions)
		metrics.TotalTopicSwitches += b.TopicSwitches
	}

	n := float64(len(history))
	metrics.InteractionCount = len(history)
	metrics.AvgResponseLatency = latency / n
	metrics.AvgMessageLength = length / n
	metrics.AvgClarificationFreq = clarification / n
	metrics.AvgConfidenceExpr = confidence / n
	latest := history[len(history)-1]
	metrics.LatestBehavior = &latest

	return metrics
}

// RecentBehaviors returns up to count of the session's latest behaviors
// in chronological order.
func (t *Tracker) RecentBehaviors(sessionID string, count int) []behavior.InteractionBehavior {
	history, _ := t.behaviors.Get(sessionID)
	if len(history) > count {
		history = history[len(history)-count:]
	}
	out := make([]behavior.InteractionBehavior, len(history))
	copy(out, history)
	return out
}

// RecentResponses returns up to count of the session's latest response
// texts in chronological order.
func (t *Tracker) RecentResponses(sessionID string, count int) []string {
	texts, _ := t.responses.Get(sessionID)
	if len(texts) > count {
		texts = texts[len(texts)-count:]
	}
	out := make([]string, len(texts))
	copy(out, texts)
	return out
}

// ClearSession drops both per-session histories; idempotent.
func (t *Tracker) ClearSession(sessionID string) {
	t.behaviors.Delete(sessionID)
	t.responses.Delete(sessionID)
	t.logger.Info("cleared behavioral data for session", zap.String("session_id", sessionID))
}

func clarificationFrequency(response string, totalTurns int) float64 {
	lower := strings.ToLower(response)
	count := 0
	for _, p := range clarificationPatterns {
		count += len(p.FindAllString(lower, -1))
	}
	turns := totalTurns
	if turns < 1 {
		turns = 1
	}
	freq := float64(count) / float64(turns)
	if freq > 1.0 {
		freq = 1.0
	}
	return freq
}

// detectTopicSwitch flags a switch when the response shares almost no
// vocabulary with the user's message despite being substantial. It only
// considers the current turn, not prior ones.
func detectTopicSwitch(userMessage, agentResponse string) int {
	userWords := wordSet(userMessage)
	responseWords := wordSet(agentResponse)

	if len(userWords) == 0 {
		return 0
	}

	overlap := 0
	for w := range userWords {
		if _, ok := responseWords[w]; ok {
			overlap++
		}
	}
	overlapRatio := float64(overlap) / float64(len(userWords))

	if overlapRatio < 0.2 && len(strings.Fields(agentResponse)) > 10 {
		return 1
	}
	return 0
}

func wordSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopWords[w]; !stop {
			words[w] = struct{}{}
		}
	}
	return words
}

func countConfidenceExpressions(response string) int {
	lower := strings.ToLower(response)
	count := 0
	for _, p := range confidencePatterns {
		count += len(p.FindAllString(lower, -1))
	}
	return count
}
