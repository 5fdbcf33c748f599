package chat

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/infrastructure/cache"
	"github.com/probelab/agent-testbed/internal/infrastructure/config"
	"github.com/probelab/agent-testbed/internal/infrastructure/database"
	"github.com/probelab/agent-testbed/internal/service/injection"
)

type fakeLLM struct {
	reply string
	err   error

	requests []openai.ChatCompletionRequest
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

type fakeInteractionStore struct {
	records []*database.InteractionRecord
}

func (f *fakeInteractionStore) Save(_ context.Context, rec *database.InteractionRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func testStateStore(t *testing.T) *cache.AgentStateStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewAgentStateStore(cache.NewRedisCacheFromClient(client, zap.NewNop()), zap.NewNop())
}

func newTestChatService(t *testing.T, llm ChatCompleter, store InteractionStore) Service {
	t.Helper()
	llmCfg := &config.LLMConfig{
		DefaultModel:   "gpt-4o-mini",
		MaxTokens:      500,
		RequestTimeout: time.Second,
	}
	valCfg := &config.ValidationConfig{MaxLevel: "content", MinQuality: 0.3}
	injector := injection.NewService(false, 1.0, zap.NewNop())
	return NewService(llmCfg, valCfg, llm, injector, testStateStore(t), store, nil, nil, nil, zap.NewNop())
}

func TestProcessRequestSuccess(t *testing.T) {
	llm := &fakeLLM{reply: "Your order ships tomorrow."}
	store := &fakeInteractionStore{}
	svc := newTestChatService(t, llm, store)

	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "Where is my order?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Your order ships tomorrow.", resp.Response)
	assert.Equal(t, agent.StatusSuccess, resp.Status)
	assert.Equal(t, agent.StatusSuccess, resp.NaturalStatus)
	assert.Equal(t, resp.Response, resp.NaturalResponse)
	assert.False(t, resp.FailureInjectionApplied)
	assert.Equal(t, "gpt-4o-mini", resp.ModelUsed)

	state, err := svc.SessionState(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Len(t, state.History, 2)
	assert.Equal(t, "user", state.History[0].Role)
	assert.Equal(t, "Where is my order?", state.History[0].Content)
	assert.Equal(t, "assistant", state.History[1].Role)

	require.Len(t, store.records, 1)
	assert.Equal(t, "s1", store.records[0].SessionID)
	assert.Equal(t, agent.StatusSuccess, store.records[0].Status)
	assert.False(t, store.records[0].InjectionApplied)
}

func TestProcessRequestSendsSystemPromptAndHistory(t *testing.T) {
	llm := &fakeLLM{reply: "Sure."}
	svc := newTestChatService(t, llm, nil)

	for i := 0; i < 5; i++ {
		_, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
			SessionID: "s1",
			Message:   "hello again",
		})
		require.NoError(t, err)
	}

	last := llm.requests[len(llm.requests)-1]
	require.NotEmpty(t, last.Messages)
	assert.Equal(t, openai.ChatMessageRoleSystem, last.Messages[0].Role)
	// System prompt plus at most six trailing history messages.
	assert.LessOrEqual(t, len(last.Messages), 7)
	assert.Equal(t, float32(0.7), last.Temperature)
	assert.Equal(t, 500, last.MaxTokens)
}

func TestProcessRequestForcedOutputQualityInjection(t *testing.T) {
	llm := &fakeLLM{reply: "The natural answer."}
	store := &fakeInteractionStore{}
	svc := newTestChatService(t, llm, store)

	mode := agent.ModeOffTopic
	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID:   "s1",
		Message:     "Where is my order?",
		FailureMode: &mode,
	})
	require.NoError(t, err)

	assert.True(t, resp.FailureInjectionApplied)
	assert.Equal(t, agent.StatusFailure, resp.Status)
	assert.Equal(t, agent.StatusSuccess, resp.NaturalStatus)
	assert.Equal(t, "The natural answer.", resp.NaturalResponse)
	assert.NotEqual(t, resp.NaturalResponse, resp.Response)
	require.NotNil(t, resp.FailureMode)
	assert.Equal(t, agent.ModeOffTopic, *resp.FailureMode)

	// The injected turn, not the natural one, lands in history.
	state, err := svc.SessionState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, resp.Response, state.History[1].Content)
}

func TestProcessRequestForcedIntegrationFault(t *testing.T) {
	llm := &fakeLLM{reply: "The natural answer."}
	svc := newTestChatService(t, llm, nil)

	mode := agent.ModeAuthError
	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID:   "s1",
		Message:     "Where is my order?",
		FailureMode: &mode,
	})
	require.NoError(t, err)

	assert.Equal(t, agent.StatusError, resp.Status)
	assert.Equal(t, "Service error: Authentication failed: Invalid API key", resp.Response)
	assert.Equal(t, "The natural answer.", resp.NaturalResponse)
	assert.True(t, resp.FailureInjectionApplied)
}

func TestProcessRequestNaturalTimeout(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	svc := newTestChatService(t, llm, nil)

	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, timeoutResponse, resp.Response)
	assert.Equal(t, agent.StatusTimeout, resp.Status)
	assert.Equal(t, agent.StatusTimeout, resp.NaturalStatus)
	require.NotNil(t, resp.FailureMode)
	assert.Equal(t, agent.ModeAPITimeout, *resp.FailureMode)
	assert.False(t, resp.FailureInjectionApplied)
}

func TestProcessRequestNaturalRateLimit(t *testing.T) {
	llm := &fakeLLM{err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited"}}
	svc := newTestChatService(t, llm, nil)

	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, rateLimitResponse, resp.Response)
	assert.Equal(t, agent.StatusFailure, resp.Status)
	require.NotNil(t, resp.FailureMode)
	assert.Equal(t, agent.ModeRateLimiting, *resp.FailureMode)
}

func TestProcessRequestUpstreamErrorFallback(t *testing.T) {
	llm := &fakeLLM{err: &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "boom"}}
	svc := newTestChatService(t, llm, nil)

	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, troubleResponse, resp.Response)
	assert.Equal(t, agent.StatusFailure, resp.Status)
	require.NotNil(t, resp.FailureMode)
	assert.Equal(t, agent.ModeServiceUnavailable, *resp.FailureMode)
}

func TestProcessRequestEmptyCompletion(t *testing.T) {
	svc := newTestChatService(t, &zeroChoiceLLM{}, nil)

	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, troubleResponse, resp.Response)
	assert.Equal(t, agent.StatusFailure, resp.Status)
}

type zeroChoiceLLM struct{}

func (z *zeroChoiceLLM) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestResetSessionClearsState(t *testing.T) {
	llm := &fakeLLM{reply: "hi"}
	svc := newTestChatService(t, llm, nil)

	_, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "hello",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ResetSession(context.Background(), "s1"))

	state, err := svc.SessionState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestProcessRequestValidationMetadata(t *testing.T) {
	llm := &fakeLLM{reply: "I can help with that. Try restarting the router."}
	svc := newTestChatService(t, llm, nil)

	resp, err := svc.ProcessRequest(context.Background(), &agent.AgentRequest{
		SessionID: "s1",
		Message:   "My internet is down.",
	})
	require.NoError(t, err)

	// No validator is wired in this fixture, so metadata stays empty.
	assert.NotContains(t, resp.Metadata, "validation")
}

func TestPingLLM(t *testing.T) {
	llm := &fakeLLM{reply: "pong"}
	svc := newTestChatService(t, llm, nil)

	elapsed, model, err := svc.PingLLM(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	assert.Equal(t, "gpt-4o-mini", model)

	last := llm.requests[len(llm.requests)-1]
	assert.Equal(t, "ping", last.Messages[0].Content)
	assert.Equal(t, 5, last.MaxTokens)
}

func TestTokenCounterCountsConversation(t *testing.T) {
	counter := NewTokenCounter()

	history := []agent.Message{
		{Role: "user", Content: "Where is my order?"},
		{Role: "assistant", Content: "It ships tomorrow."},
	}
	total := counter.CountConversation("gpt-4o-mini", history)
	assert.Greater(t, total, 0)

	single, _ := counter.CountText("gpt-4o-mini", "Where is my order?")
	assert.Greater(t, single, 0)
	assert.Less(t, single, total)
}
