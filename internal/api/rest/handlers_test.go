package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/infrastructure/config"
	"github.com/probelab/agent-testbed/internal/service/injection"
)

type stubChatService struct {
	lastRequest *agent.AgentRequest
	resetCalls  []string
	pingErr     error
}

func (s *stubChatService) ProcessRequest(_ context.Context, req *agent.AgentRequest) (*agent.AgentResponse, error) {
	s.lastRequest = req
	return &agent.AgentResponse{
		SessionID:     req.SessionID,
		Response:      "stub reply",
		Status:        agent.StatusSuccess,
		NaturalStatus: agent.StatusSuccess,
		ModelUsed:     "gpt-4o-mini",
	}, nil
}

func (s *stubChatService) ResetSession(_ context.Context, sessionID string) error {
	s.resetCalls = append(s.resetCalls, sessionID)
	return nil
}

func (s *stubChatService) SessionState(_ context.Context, sessionID string) (*agent.AgentState, error) {
	return nil, nil
}

func (s *stubChatService) PingLLM(_ context.Context) (time.Duration, string, error) {
	if s.pingErr != nil {
		return 0, "", s.pingErr
	}
	return 5 * time.Millisecond, "gpt-4o-mini", nil
}

func newTestRouter(t *testing.T, chatSvc *stubChatService, db, redisPing Pinger) http.Handler {
	t.Helper()
	handler := NewHandler(HandlerDeps{
		Chat:      chatSvc,
		Injector:  injection.NewService(false, 1.0, zap.NewNop()),
		DBPing:    db,
		RedisPing: redisPing,
		Logger:    zap.NewNop(),
	})
	cfg := &config.ServerConfig{Port: 8080}
	return NewRouter(cfg, handler, nil, zap.NewNop())
}

func TestChatEndpoint(t *testing.T) {
	chatSvc := &stubChatService{}
	router := newTestRouter(t, chatSvc, nil, nil)

	body := `{"session_id":"s1","message":"Where is my order?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp agent.AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "stub reply", resp.Response)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChatEndpointRequiresMessage(t *testing.T) {
	router := newTestRouter(t, &stubChatService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"session_id":"s1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message is required")
}

func TestChatEndpointGeneratesSessionID(t *testing.T) {
	chatSvc := &stubChatService{}
	router := newTestRouter(t, chatSvc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, chatSvc.lastRequest)
	assert.NotEmpty(t, chatSvc.lastRequest.SessionID)
}

func TestChatEndpointRejectsUnknownFailureMode(t *testing.T) {
	router := newTestRouter(t, &stubChatService{}, nil, nil)

	body := `{"message":"hi","failure_mode":"nonsense"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown failure mode")
}

func TestResetSessionEndpoint(t *testing.T) {
	chatSvc := &stubChatService{}
	router := newTestRouter(t, chatSvc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/reset/s42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s42"}, chatSvc.resetCalls)
	assert.Contains(t, rec.Body.String(), "reset successfully")
}

func TestSessionBehaviorUnavailableWithoutMonitor(t *testing.T) {
	router := newTestRouter(t, &stubChatService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/behavior", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestValidationStatsUnavailableWithoutValidator(t *testing.T) {
	router := newTestRouter(t, &stubChatService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/validation/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpointHealthy(t *testing.T) {
	ok := PingerFunc(func(context.Context) error { return nil })
	router := newTestRouter(t, &stubChatService{}, ok, ok)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthEndpointUnhealthyDatabase(t *testing.T) {
	down := PingerFunc(func(context.Context) error { return errors.New("connection refused") })
	ok := PingerFunc(func(context.Context) error { return nil })
	router := newTestRouter(t, &stubChatService{}, down, ok)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRecoveryMiddlewareReturnsJSONError(t *testing.T) {
	var handler http.Handler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler = NewChain(RecoveryMiddleware(zap.NewNop())).Then(handler)

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRequestIDMiddlewareHonorsIncomingHeader(t *testing.T) {
	var seen string
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})
	handler = RequestIDMiddleware()(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", seen)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &stubChatService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
