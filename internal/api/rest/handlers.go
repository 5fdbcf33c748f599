package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/infrastructure/database"
	"github.com/probelab/agent-testbed/internal/service/behavioral"
	"github.com/probelab/agent-testbed/internal/service/chat"
	"github.com/probelab/agent-testbed/internal/service/injection"
	"github.com/probelab/agent-testbed/internal/service/validation"
)

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler bundles the HTTP-facing services.
type Handler struct {
	chat      chat.Service
	injector  injection.Service
	monitor   *behavioral.MonitoringService
	validator *validation.Validator

	interactions *database.InteractionRepository
	behaviors    *database.BehaviorRepository
	scenarios    *database.ScenarioRepository

	dbPing    Pinger
	redisPing Pinger

	logger *zap.Logger
}

// HandlerDeps names the collaborators a Handler needs. Optional fields
// may be nil; the affected endpoints degrade or report unavailable.
type HandlerDeps struct {
	Chat         chat.Service
	Injector     injection.Service
	Monitor      *behavioral.MonitoringService
	Validator    *validation.Validator
	Interactions *database.InteractionRepository
	Behaviors    *database.BehaviorRepository
	Scenarios    *database.ScenarioRepository
	DBPing       Pinger
	RedisPing    Pinger
	Logger       *zap.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chat:         deps.Chat,
		injector:     deps.Injector,
		monitor:      deps.Monitor,
		validator:    deps.Validator,
		interactions: deps.Interactions,
		behaviors:    deps.Behaviors,
		scenarios:    deps.Scenarios,
		dbPing:       deps.DBPing,
		redisPing:    deps.RedisPing,
		logger:       logger,
	}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	if req.Message == "" {
		writeBadRequest(w, r, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.FailureMode != nil && !req.FailureMode.Valid() {
		writeBadRequest(w, r, "unknown failure mode")
		return
	}

	h.logger.Info("processing chat request",
		zap.String("session_id", req.SessionID),
		zap.Int("message_length", len(req.Message)))

	resp, err := h.chat.ProcessRequest(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeBadRequest(w, r, "session_id is required")
		return
	}
	if err := h.chat.ResetSession(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Session " + sessionID + " reset successfully",
	})
}

func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	var records []*database.InteractionRecord
	if h.interactions != nil {
		var err error
		records, err = h.interactions.ListBySession(r.Context(), sessionID, 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	state, err := h.chat.SessionState(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"interactions":  records,
		"current_state": state,
	})
}

func (h *Handler) handleSessionBehavior(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "behavioral monitoring disabled"})
		return
	}
	sessionID := r.PathValue("session_id")
	writeJSON(w, http.StatusOK, h.monitor.SessionAnalysis(sessionID))
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.scenarios.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"active":    h.injector.ScenarioName(),
	})
}

type createScenarioRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Modes       []string           `json:"modes"`
	Multipliers map[string]float64 `json:"multipliers,omitempty"`
}

func (h *Handler) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req createScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	modes := make([]agent.FailureMode, 0, len(req.Modes))
	for _, raw := range req.Modes {
		mode, err := agent.ParseFailureMode(raw)
		if err != nil {
			writeBadRequest(w, r, err.Error())
			return
		}
		modes = append(modes, mode)
	}

	scenario, err := agent.NewFailureScenario(req.Name, req.Description, modes)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	for raw, mult := range req.Multipliers {
		mode, err := agent.ParseFailureMode(raw)
		if err != nil {
			writeBadRequest(w, r, err.Error())
			return
		}
		scenario.Multipliers[mode] = mult
	}

	if err := h.scenarios.Save(r.Context(), scenario); err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Info("failure scenario created", zap.String("name", scenario.Name))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Scenario '" + scenario.Name + "' created successfully",
		"id":      scenario.ID,
	})
}

func (h *Handler) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w, r, "invalid scenario id")
		return
	}
	if err := h.scenarios.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scenario deleted"})
}

func (h *Handler) handleActivateScenario(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w, r, "invalid scenario id")
		return
	}
	scenario, err := h.scenarios.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.injector.SetScenario(scenario)
	h.logger.Info("failure scenario activated", zap.String("name", scenario.Name))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Scenario '" + scenario.Name + "' activated",
	})
}

func (h *Handler) handleDeactivateScenario(w http.ResponseWriter, r *http.Request) {
	h.injector.SetScenario(nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scenario restrictions cleared"})
}

func (h *Handler) handleFailureAnalytics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, r, "hours must be a positive integer")
			return
		}
		hours = parsed
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	stats, err := h.interactions.FailureAnalytics(r.Context(), since)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var anomalies map[string]int64
	if h.behaviors != nil {
		anomalies, err = h.behaviors.AnomalyCounts(r.Context(), since)
		if err != nil {
			h.logger.Warn("anomaly counts unavailable", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"time_range_hours": hours,
		"failures":         stats,
		"anomaly_counts":   anomalies,
	})
}

func (h *Handler) handleValidationStats(w http.ResponseWriter, r *http.Request) {
	if h.validator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "validation disabled"})
		return
	}
	writeJSON(w, http.StatusOK, h.validator.Stats())
}

type healthCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	TimeMs int64  `json:"response_time_ms,omitempty"`
	Model  string `json:"model,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := map[string]healthCheck{}
	healthy := true

	check := func(name string, p Pinger) {
		if p == nil {
			checks[name] = healthCheck{Status: "unknown"}
			return
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = healthCheck{Status: "unhealthy", Error: err.Error()}
			healthy = false
			return
		}
		checks[name] = healthCheck{Status: "healthy"}
	}
	check("database", h.dbPing)
	check("redis", h.redisPing)

	if elapsed, model, err := h.chat.PingLLM(ctx); err != nil {
		checks["llm"] = healthCheck{Status: "unhealthy", Error: err.Error()}
		healthy = false
	} else {
		checks["llm"] = healthCheck{Status: "healthy", TimeMs: elapsed.Milliseconds(), Model: model}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
