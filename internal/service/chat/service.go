package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/infrastructure/cache"
	"github.com/probelab/agent-testbed/internal/infrastructure/config"
	"github.com/probelab/agent-testbed/internal/infrastructure/database"
	"github.com/probelab/agent-testbed/internal/metrics"
	"github.com/probelab/agent-testbed/internal/service/behavioral"
	"github.com/probelab/agent-testbed/internal/service/injection"
	"github.com/probelab/agent-testbed/internal/service/validation"
)

const systemPrompt = "You are a helpful customer service agent. You assist users " +
	"with their questions and problems in a friendly, professional manner. " +
	"Keep your responses concise but helpful. If you don't know something, " +
	"admit it and offer to escalate or find more information."

const (
	timeoutResponse   = "I'm experiencing some delays right now. Please try your request again in a moment."
	rateLimitResponse = "I'm currently handling a high volume of requests. Please try again in a few minutes."
	troubleResponse   = "I'm sorry, I'm having trouble processing your request right now. Please try again in a moment."
)

// historyWindow is how many trailing messages are replayed to the LLM
// per turn (three exchanges).
const historyWindow = 6

type service struct {
	llm          ChatCompleter
	injector     injection.Service
	states       *cache.AgentStateStore
	interactions InteractionStore
	monitor      *behavioral.MonitoringService
	validator    *validation.Validator
	registry     *metrics.Registry
	tokens       *TokenCounter

	defaultModel   string
	maxTokens      int
	requestTimeout time.Duration
	maxLevel       validation.Level

	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the chat orchestrator. The monitor, validator,
// registry, and interaction store are optional; a nil collaborator
// disables its concern without affecting the turn pipeline.
func NewService(
	llmCfg *config.LLMConfig,
	valCfg *config.ValidationConfig,
	llm ChatCompleter,
	injector injection.Service,
	states *cache.AgentStateStore,
	interactions InteractionStore,
	monitor *behavioral.MonitoringService,
	validator *validation.Validator,
	registry *metrics.Registry,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxLevel := validation.LevelContent
	if valCfg != nil {
		if parsed, err := validation.ParseLevel(valCfg.MaxLevel); err == nil {
			maxLevel = parsed
		} else {
			logger.Warn("invalid validation max level, using content", zap.String("configured", valCfg.MaxLevel))
		}
	}
	return &service{
		llm:            llm,
		injector:       injector,
		states:         states,
		interactions:   interactions,
		monitor:        monitor,
		validator:      validator,
		registry:       registry,
		tokens:         NewTokenCounter(),
		defaultModel:   llmCfg.DefaultModel,
		maxTokens:      llmCfg.MaxTokens,
		requestTimeout: llmCfg.RequestTimeout,
		maxLevel:       maxLevel,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *service) ProcessRequest(ctx context.Context, req *agent.AgentRequest) (resp *agent.AgentResponse, err error) {
	start := s.now()
	if req.Model == "" {
		req.Model = s.defaultModel
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in chat processing",
				zap.String("session_id", req.SessionID),
				zap.Any("panic", r))
			resp = s.errorResponse(ctx, req, fmt.Errorf("%v", r), start)
			err = nil
		}
	}()

	state, loadErr := s.states.LoadState(ctx, req.SessionID)
	if loadErr != nil {
		return s.errorResponse(ctx, req, loadErr, start), nil
	}
	if state == nil {
		state = agent.NewAgentState(req.SessionID)
		if req.Context != nil {
			state.Context = req.Context
		}
	}

	if cpErr := s.states.SaveCheckpoint(ctx, "pre_request", state); cpErr != nil {
		s.logger.Warn("pre-request checkpoint failed",
			zap.String("session_id", req.SessionID),
			zap.Error(cpErr))
	}

	state.History = append(state.History, agent.Message{Role: "user", Content: req.Message})

	inject, mode := s.injector.ShouldInject(req.SessionID, req.Message, req.FailureMode)
	tokenCount := s.tokens.CountConversation(req.Model, state.History)

	// The natural response is always produced first so the testbed can
	// report what the model would have said without interference.
	natural := s.generateNatural(ctx, req, state, tokenCount)

	response := natural
	if inject {
		response = s.applyInjection(ctx, req, state, mode, natural, tokenCount)
	}
	response.ProcessingTimeMs = float64(s.now().Sub(start).Milliseconds())

	state.History = append(state.History, agent.Message{Role: "assistant", Content: response.Response})
	if saveErr := s.states.SaveState(ctx, state); saveErr != nil {
		s.logger.Warn("state save failed",
			zap.String("session_id", req.SessionID),
			zap.Error(saveErr))
	}

	s.persist(ctx, req, response)
	s.recordRequest(response)

	if s.monitor != nil {
		s.monitor.ProcessInteraction(ctx, req.SessionID, req, response)
	}
	s.validateResponse(response, state)

	return response, nil
}

// generateNatural calls the upstream LLM with the trailing history and
// maps upstream failures onto canned agent responses.
func (s *service) generateNatural(ctx context.Context, req *agent.AgentRequest, state *agent.AgentState, tokenCount int) *agent.AgentResponse {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	recent := state.History
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	for _, msg := range recent {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > s.maxTokens {
		maxTokens = s.maxTokens
	}

	callCtx := ctx
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	s.logger.Info("llm call",
		zap.String("session_id", req.SessionID),
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)))

	completion, err := s.llm.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return s.naturalFailure(req, tokenCount, err)
	}
	if len(completion.Choices) == 0 {
		return s.naturalFailure(req, tokenCount, errors.New("empty completion"))
	}

	if s.registry != nil && completion.Usage.TotalTokens > 0 {
		s.registry.TokenConsumption.WithLabelValues(req.Model, "prompt").Add(float64(completion.Usage.PromptTokens))
		s.registry.TokenConsumption.WithLabelValues(req.Model, "completion").Add(float64(completion.Usage.CompletionTokens))
	}

	text := completion.Choices[0].Message.Content
	s.logger.Info("llm call succeeded",
		zap.String("session_id", req.SessionID),
		zap.Int("response_length", len(text)))

	return &agent.AgentResponse{
		SessionID:       req.SessionID,
		Response:        text,
		Status:          agent.StatusSuccess,
		NaturalStatus:   agent.StatusSuccess,
		NaturalResponse: text,
		TokenCount:      tokenCount,
		ModelUsed:       req.Model,
	}
}

// naturalFailure maps an upstream error to the canned response the
// agent shows users, tagged with the equivalent failure mode so the
// analytics can distinguish natural failures from injected ones.
func (s *service) naturalFailure(req *agent.AgentRequest, tokenCount int, err error) *agent.AgentResponse {
	s.logger.Error("llm call failed",
		zap.String("session_id", req.SessionID),
		zap.Error(err))

	var text string
	var status agent.Status
	var mode agent.FailureMode

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		text, status, mode = timeoutResponse, agent.StatusTimeout, agent.ModeAPITimeout
	case isRateLimited(err):
		text, status, mode = rateLimitResponse, agent.StatusFailure, agent.ModeRateLimiting
	default:
		text, status, mode = troubleResponse, agent.StatusFailure, agent.ModeServiceUnavailable
	}

	if s.registry != nil {
		s.registry.FailureInjections.WithLabelValues(string(mode), "natural").Inc()
	}

	return &agent.AgentResponse{
		SessionID:       req.SessionID,
		Response:        text,
		Status:          status,
		NaturalStatus:   status,
		FailureMode:     &mode,
		NaturalResponse: text,
		TokenCount:      tokenCount,
		ModelUsed:       req.Model,
	}
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// applyInjection corrupts the natural response per the selected mode.
// Output-quality and behavioral modes substitute degraded text;
// integration and resource modes surface as service errors.
func (s *service) applyInjection(ctx context.Context, req *agent.AgentRequest, state *agent.AgentState, mode agent.FailureMode, natural *agent.AgentResponse, tokenCount int) *agent.AgentResponse {
	state.FailureCount++
	if _, err := s.states.IncrementFailureCount(ctx, req.SessionID); err != nil {
		s.logger.Warn("failure counter update failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
	}

	if s.registry != nil {
		s.registry.FailureInjections.WithLabelValues(string(mode), s.injector.ScenarioName()).Inc()
	}

	outcome := s.injector.Apply(ctx, req.SessionID, mode, natural.Response, tokenCount)

	response := &agent.AgentResponse{
		SessionID:               req.SessionID,
		Status:                  agent.StatusFailure,
		NaturalStatus:           natural.Status,
		FailureMode:             &mode,
		FailureInjectionApplied: true,
		NaturalResponse:         natural.Response,
		TokenCount:              tokenCount,
		ModelUsed:               req.Model,
	}

	if outcome.Fault != nil {
		response.Response = fmt.Sprintf("Service error: %s", outcome.Fault.Message)
		response.Status = agent.StatusError
		return response
	}
	response.Response = outcome.Response
	return response
}

// errorResponse is the terminal fallback for unexpected processing
// failures. The interaction is still persisted so the failure shows up
// in analytics.
func (s *service) errorResponse(ctx context.Context, req *agent.AgentRequest, cause error, start time.Time) *agent.AgentResponse {
	s.logger.Error("unexpected error in chat processing",
		zap.String("session_id", req.SessionID),
		zap.Error(cause))

	response := &agent.AgentResponse{
		SessionID:        req.SessionID,
		Response:         fmt.Sprintf("I encountered an unexpected error: %v", cause),
		Status:           agent.StatusError,
		NaturalStatus:    agent.StatusError,
		ProcessingTimeMs: float64(s.now().Sub(start).Milliseconds()),
		ModelUsed:        req.Model,
	}
	s.persist(ctx, req, response)
	s.recordRequest(response)
	return response
}

func (s *service) persist(ctx context.Context, req *agent.AgentRequest, resp *agent.AgentResponse) {
	if s.interactions == nil {
		return
	}
	rec := &database.InteractionRecord{
		SessionID:        req.SessionID,
		RequestMessage:   req.Message,
		Response:         resp.Response,
		Status:           resp.Status,
		NaturalStatus:    resp.NaturalStatus,
		NaturalResponse:  resp.NaturalResponse,
		FailureMode:      resp.FailureMode,
		InjectionApplied: resp.FailureInjectionApplied,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		TokenCount:       resp.TokenCount,
		Model:            resp.ModelUsed,
	}
	if err := s.interactions.Save(ctx, rec); err != nil {
		s.logger.Warn("interaction persistence failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
	}
}

func (s *service) recordRequest(resp *agent.AgentResponse) {
	if s.registry == nil {
		return
	}
	failureType := "none"
	if resp.FailureMode != nil {
		failureType = string(resp.FailureMode.Type())
	}
	s.registry.AgentRequests.WithLabelValues(failureType, string(resp.Status)).Inc()
}

// validateResponse runs the output validator after the turn completes.
// Verdicts are logged, not enforced; the testbed wants degraded output
// to flow so the detectors can catch it.
func (s *service) validateResponse(resp *agent.AgentResponse, state *agent.AgentState) {
	if s.validator == nil {
		return
	}
	verdict := s.validator.Validate(resp.Response, validation.Context{
		SessionID:        resp.SessionID,
		History:          state.History,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		Timestamp:        s.now(),
	}, s.maxLevel)

	if !verdict.Passed {
		s.logger.Warn("response failed validation",
			zap.String("session_id", resp.SessionID),
			zap.Float64("confidence", verdict.Confidence),
			zap.Strings("errors", verdict.Errors))
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	resp.Metadata["validation"] = map[string]any{
		"passed":     verdict.Passed,
		"confidence": verdict.Confidence,
		"warnings":   len(verdict.Warnings),
	}
}

func (s *service) ResetSession(ctx context.Context, sessionID string) error {
	if err := s.states.DeleteState(ctx, sessionID); err != nil {
		return err
	}
	if err := s.states.ResetFailureCount(ctx, sessionID); err != nil {
		return err
	}
	s.injector.ResetSession(sessionID)
	if s.monitor != nil {
		s.monitor.ClearSession(sessionID)
	}
	s.logger.Info("session reset", zap.String("session_id", sessionID))
	return nil
}

func (s *service) SessionState(ctx context.Context, sessionID string) (*agent.AgentState, error) {
	return s.states.LoadState(ctx, sessionID)
}

func (s *service) PingLLM(ctx context.Context) (time.Duration, string, error) {
	start := s.now()
	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.defaultModel,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens:   5,
		Temperature: 0.1,
	})
	if err != nil {
		return 0, "", err
	}
	return s.now().Sub(start), completion.Model, nil
}
