package injection

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/infrastructure/sessionstore"
)

const defaultCooldown = 30 * time.Second

type service struct {
	probabilistic  bool
	rateMultiplier float64
	cooldown       time.Duration

	states sessionstore.Store[*sessionState]
	modes  map[agent.FailureMode]*modeConfig
	logger *zap.Logger

	now   func() time.Time
	rng   *rand.Rand
	rngMu sync.Mutex

	scenarioMu sync.RWMutex
	scenario   *agent.FailureScenario
}

// Option customizes a Service, mainly for deterministic tests.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithRand overrides the random source.
func WithRand(rng *rand.Rand) Option {
	return func(s *service) { s.rng = rng }
}

// WithTimeoutRange overrides the simulated api_timeout block duration.
func WithTimeoutRange(min, max time.Duration) Option {
	return func(s *service) {
		cfg := s.modes[agent.ModeAPITimeout]
		cfg.timeoutMin = min
		cfg.timeoutMax = max
	}
}

// WithCooldown overrides the per-session injection cooldown.
func WithCooldown(d time.Duration) Option {
	return func(s *service) { s.cooldown = d }
}

// NewService builds a failure injector. With probabilistic disabled,
// only explicitly forced modes ever inject.
func NewService(probabilistic bool, rateMultiplier float64, logger *zap.Logger, opts ...Option) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{
		probabilistic:  probabilistic,
		rateMultiplier: rateMultiplier,
		cooldown:       defaultCooldown,
		states:         sessionstore.NewMemoryStore[*sessionState](),
		modes:          catalog(),
		logger:         logger,
		now:            time.Now,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ShouldInject(sessionID, message string, forced *agent.FailureMode) (bool, agent.FailureMode) {
	if forced != nil {
		s.logger.Info("forced failure mode activated",
			zap.String("session_id", sessionID),
			zap.String("failure_mode", string(*forced)))
		return true, *forced
	}

	if s.probabilistic {
		return s.evaluateProbabilistic(sessionID)
	}

	return false, ""
}

func (s *service) evaluateProbabilistic(sessionID string) (bool, agent.FailureMode) {
	state, ok := s.states.Get(sessionID)
	if !ok {
		state = &sessionState{}
		s.states.Set(sessionID, state)
	}
	state.MessageCount++

	now := s.now()
	if !state.LastFailureTime.IsZero() {
		sinceLast := now.Sub(state.LastFailureTime)
		if sinceLast < s.cooldown {
			s.logger.Debug("failure cooldown active",
				zap.String("session_id", sessionID),
				zap.Duration("cooldown_remaining", s.cooldown-sinceLast))
			return false, ""
		}
	}

	scenario := s.activeScenario()

	// Declaration order is the tie-break: the first mode whose roll
	// lands under its adjusted probability wins.
	for _, mode := range agent.AllFailureModes() {
		if scenario != nil && !scenarioIncludes(scenario, mode) {
			continue
		}

		cfg := s.modes[mode]
		adjusted := cfg.probability * s.rateMultiplier * scenario.MultiplierFor(mode)

		// A session already looping is more likely to keep looping.
		if mode == agent.ModeInfiniteLoop && state.ClarificationRequests >= 1 {
			adjusted *= 2.0
		}

		// Damp immediate repetition of the same mode.
		if state.LastFailureMode == mode {
			adjusted *= 0.3
		}

		if s.roll() < adjusted {
			state.FailureCount++
			state.LastFailureTime = now
			state.LastFailureMode = mode

			if mode == agent.ModeInfiniteLoop {
				state.ClarificationRequests++
			} else {
				state.ClarificationRequests = 0
			}

			s.logger.Info("probabilistic failure triggered",
				zap.String("session_id", sessionID),
				zap.String("failure_mode", string(mode)),
				zap.Float64("probability", adjusted),
				zap.Int("session_failure_count", state.FailureCount))
			return true, mode
		}
	}

	return false, ""
}

func (s *service) Apply(ctx context.Context, sessionID string, mode agent.FailureMode, naturalResponse string, tokenCount int) agent.InjectionOutcome {
	cfg, ok := s.modes[mode]
	if !ok {
		return agent.InjectionOutcome{Injected: false, Response: naturalResponse}
	}

	switch cfg.failureType {
	case agent.FailureTypeOutputQuality, agent.FailureTypeBehavioral:
		replacement := s.pick(cfg.responses)
		s.logger.Warn("injecting degraded response",
			zap.String("session_id", sessionID),
			zap.String("failure_mode", string(mode)),
			zap.Int("original_length", len(naturalResponse)))
		return agent.InjectionOutcome{Injected: true, Mode: mode, Response: replacement}

	case agent.FailureTypeIntegration:
		var delay time.Duration
		if mode == agent.ModeAPITimeout {
			delay = s.timeoutDelay(cfg)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		s.logger.Warn("injecting integration failure",
			zap.String("session_id", sessionID),
			zap.String("failure_mode", string(mode)))
		return agent.InjectionOutcome{
			Injected: true,
			Mode:     mode,
			Fault:    &agent.Fault{Kind: mode, Message: cfg.errorMessage},
			Delay:    delay,
		}

	case agent.FailureTypeResource:
		msg := cfg.errorMessage
		if mode == agent.ModeTokenLimit {
			msg = fmt.Sprintf("%s: %d/%d tokens used", cfg.errorMessage, tokenCount, cfg.tokenThreshold)
		}
		s.logger.Warn("injecting resource failure",
			zap.String("session_id", sessionID),
			zap.String("failure_mode", string(mode)),
			zap.Int("token_count", tokenCount))
		return agent.InjectionOutcome{
			Injected: true,
			Mode:     mode,
			Fault:    &agent.Fault{Kind: mode, Message: msg},
		}
	}

	return agent.InjectionOutcome{Injected: false, Response: naturalResponse}
}

func (s *service) SetScenario(scenario *agent.FailureScenario) {
	s.scenarioMu.Lock()
	defer s.scenarioMu.Unlock()
	s.scenario = scenario
}

func (s *service) ScenarioName() string {
	s.scenarioMu.RLock()
	defer s.scenarioMu.RUnlock()
	if s.scenario == nil {
		return "default"
	}
	return s.scenario.Name
}

func (s *service) ResetSession(sessionID string) {
	s.states.Delete(sessionID)
	s.logger.Debug("session state reset", zap.String("session_id", sessionID))
}

func (s *service) activeScenario() *agent.FailureScenario {
	s.scenarioMu.RLock()
	defer s.scenarioMu.RUnlock()
	return s.scenario
}

func scenarioIncludes(scenario *agent.FailureScenario, mode agent.FailureMode) bool {
	for _, m := range scenario.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *service) roll() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *service) pick(options []string) string {
	if len(options) == 0 {
		return "I understand your request and I'm processing it now."
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return options[s.rng.Intn(len(options))]
}

func (s *service) timeoutDelay(cfg *modeConfig) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	span := cfg.timeoutMax - cfg.timeoutMin
	if span <= 0 {
		return cfg.timeoutMin
	}
	return cfg.timeoutMin + time.Duration(s.rng.Float64()*float64(span))
}
