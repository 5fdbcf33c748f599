package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
)

const (
	stateKeyPrefix      = "agent_state:"
	checkpointKeyPrefix = "checkpoint:"
	failureKeyPrefix    = "failure_count:"

	stateTTL      = time.Hour
	checkpointTTL = 2 * time.Hour
	failureTTL    = time.Hour
)

// AgentStateStore persists per-session conversation state, named
// checkpoints, and failure counters in the cache. TTL expiry is owned
// here, not by callers.
type AgentStateStore struct {
	cache  Cache
	logger *zap.Logger
}

func NewAgentStateStore(cache Cache, logger *zap.Logger) *AgentStateStore {
	return &AgentStateStore{cache: cache, logger: logger}
}

func stateKey(sessionID string) string {
	return stateKeyPrefix + sessionID
}

func checkpointKey(sessionID, name string) string {
	return checkpointKeyPrefix + sessionID + ":" + name
}

func failureKey(sessionID string) string {
	return failureKeyPrefix + sessionID
}

// SaveState stores the session state, refreshing its TTL.
func (s *AgentStateStore) SaveState(ctx context.Context, state *agent.AgentState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("state with session id is required")
	}
	return s.cache.SetJSON(ctx, stateKey(state.SessionID), state, stateTTL)
}

// LoadState returns the stored state, or (nil, nil) when none exists.
func (s *AgentStateStore) LoadState(ctx context.Context, sessionID string) (*agent.AgentState, error) {
	var state agent.AgentState
	err := s.cache.GetJSON(ctx, stateKey(sessionID), &state)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// DeleteState removes the session state; missing keys are not an error.
func (s *AgentStateStore) DeleteState(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, stateKey(sessionID))
}

// SaveCheckpoint snapshots an in-memory state under a name, whether or
// not it has been saved yet.
func (s *AgentStateStore) SaveCheckpoint(ctx context.Context, name string, state *agent.AgentState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("state with session id is required")
	}
	return s.cache.SetJSON(ctx, checkpointKey(state.SessionID, name), state, checkpointTTL)
}

// CreateCheckpoint snapshots the current session state under a name.
func (s *AgentStateStore) CreateCheckpoint(ctx context.Context, sessionID, name string) error {
	state, err := s.LoadState(ctx, sessionID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no state to checkpoint for session %s", sessionID)
	}
	return s.cache.SetJSON(ctx, checkpointKey(sessionID, name), state, checkpointTTL)
}

// RestoreCheckpoint replaces the live session state with a named snapshot.
func (s *AgentStateStore) RestoreCheckpoint(ctx context.Context, sessionID, name string) (*agent.AgentState, error) {
	var state agent.AgentState
	if err := s.cache.GetJSON(ctx, checkpointKey(sessionID, name), &state); err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("checkpoint %s not found for session %s", name, sessionID)
		}
		return nil, err
	}
	if err := s.SaveState(ctx, &state); err != nil {
		return nil, err
	}
	s.logger.Info("checkpoint restored",
		zap.String("session_id", sessionID),
		zap.String("checkpoint", name))
	return &state, nil
}

// IncrementFailureCount bumps the session's failure counter and
// refreshes its TTL.
func (s *AgentStateStore) IncrementFailureCount(ctx context.Context, sessionID string) (int64, error) {
	count, err := s.cache.Increment(ctx, failureKey(sessionID))
	if err != nil {
		return 0, err
	}
	if err := s.cache.Expire(ctx, failureKey(sessionID), failureTTL); err != nil && !IsNotFound(err) {
		s.logger.Warn("failed to refresh failure counter ttl",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return count, nil
}

// GetFailureCount returns the session's failure counter, 0 when unset.
func (s *AgentStateStore) GetFailureCount(ctx context.Context, sessionID string) (int64, error) {
	raw, err := s.cache.Get(ctx, failureKey(sessionID))
	if err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt failure counter for session %s: %w", sessionID, err)
	}
	return count, nil
}

// ResetFailureCount clears the session's failure counter.
func (s *AgentStateStore) ResetFailureCount(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, failureKey(sessionID))
}
