package behavioral

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
	"github.com/probelab/agent-testbed/internal/domain/behavior"
	"github.com/probelab/agent-testbed/internal/infrastructure/config"
	"github.com/probelab/agent-testbed/internal/metrics"
)

// BehaviorStore is the durable sink for behavioral telemetry. Failures
// here never abort the monitoring pipeline.
type BehaviorStore interface {
	SaveBehavior(ctx context.Context, b *behavior.InteractionBehavior) error
	SaveAnomalies(ctx context.Context, report *behavior.AnomalyReport) error
	UpsertBaseline(ctx context.Context, b *behavior.BehavioralBaseline) error
}

// MonitoringService binds the pure analytics components to metrics and
// persistence. Both collaborators are optional; analytics runs the same
// without them.
type MonitoringService struct {
	tracker   *Tracker
	baselines *BaselineManager
	temporal  *TemporalAnalyzer
	detector  *AnomalyDetector

	registry *metrics.Registry
	store    BehaviorStore

	metricsEnabled     bool
	persistenceEnabled bool

	logger *zap.Logger
}

func NewMonitoringService(cfg *config.BehavioralConfig, registry *metrics.Registry, store BehaviorStore, logger *zap.Logger) *MonitoringService {
	if logger == nil {
		logger = zap.NewNop()
	}

	baselines := NewBaselineManager(cfg.MinInteractions, cfg.UpdateFrequency, logger)
	temporal := NewTemporalAnalyzer()

	return &MonitoringService{
		tracker:            NewTracker(logger),
		baselines:          baselines,
		temporal:           temporal,
		detector:           NewAnomalyDetector(baselines, temporal, cfg.AnomalyThreshold, cfg.DriftThreshold, logger),
		registry:           registry,
		store:              store,
		metricsEnabled:     cfg.MetricsEnabled,
		persistenceEnabled: cfg.PersistenceEnabled,
		logger:             logger,
	}
}

// Tracker exposes the interaction tracker for session reset wiring.
func (s *MonitoringService) Tracker() *Tracker {
	return s.tracker
}

// Baselines exposes the baseline manager for session reset wiring.
func (s *MonitoringService) Baselines() *BaselineManager {
	return s.baselines
}

// ProcessInteraction runs the full per-turn monitoring pipeline:
// track, detect, emit metrics, persist. Any failure degrades to a safe
// empty result; the chat response itself is never blocked on analytics.
func (s *MonitoringService) ProcessInteraction(ctx context.Context, sessionID string, request *agent.AgentRequest, response *agent.AgentResponse) (result behavior.MonitoringResult) {
	result = behavior.MonitoringResult{Metadata: map[string]any{}}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("behavioral monitoring failed",
				zap.String("session_id", sessionID),
				zap.Any("panic", r))
			result = behavior.MonitoringResult{
				Anomalies: &behavior.AnomalyReport{
					SessionID: sessionID,
					Anomalies: []behavior.Anomaly{},
				},
				Metadata: map[string]any{"error": fmt.Sprint(r)},
			}
		}
	}()

	tracked := s.tracker.TrackInteraction(sessionID, request, response)
	result.Behavior = &tracked

	history := s.tracker.RecentBehaviors(sessionID, 10)
	recentResponses := s.tracker.RecentResponses(sessionID, 5)

	report := s.detector.DetectAnomalies(sessionID, tracked, history, recentResponses)
	result.Anomalies = &report

	if s.metricsEnabled && s.registry != nil {
		s.recordMetrics(tracked, &report, response)
	}

	if s.persistenceEnabled && s.store != nil {
		s.persist(ctx, tracked, &report, history)
	}

	result.SessionMetrics = s.tracker.SessionMetrics(sessionID)
	result.Metadata["metrics_recorded"] = s.metricsEnabled && s.registry != nil
	result.Metadata["data_persisted"] = s.persistenceEnabled && s.store != nil
	result.Metadata["processing_timestamp"] = time.Now().Format(time.RFC3339)

	return result
}

// SessionAnalysis returns the tracked metrics, recent behaviors, and
// baseline for a session.
func (s *MonitoringService) SessionAnalysis(sessionID string) map[string]any {
	analysis := map[string]any{
		"session_id":         sessionID,
		"metrics":            s.tracker.SessionMetrics(sessionID),
		"recent_behaviors":   s.tracker.RecentBehaviors(sessionID, 10),
		"analysis_timestamp": time.Now().Format(time.RFC3339),
	}
	if baseline := s.baselines.GetBaseline(sessionID); baseline != nil {
		analysis["baseline"] = baseline
	}
	return analysis
}

// ClearSession drops in-memory behavioral state; persisted rows remain.
func (s *MonitoringService) ClearSession(sessionID string) {
	s.tracker.ClearSession(sessionID)
	s.baselines.RemoveBaseline(sessionID)
}

func (s *MonitoringService) recordMetrics(tracked behavior.InteractionBehavior, report *behavior.AnomalyReport, response *agent.AgentResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("failed to record behavioral metrics",
				zap.String("session_id", tracked.SessionID),
				zap.Any("panic", r))
		}
	}()

	s.registry.ResponseLatency.WithLabelValues(response.ModelUsed).
		Observe(tracked.ResponseLatency / 1000.0)
	s.registry.MessageLength.WithLabelValues(string(response.Status)).
		Observe(float64(tracked.MessageLength))
	s.registry.ConsistencyScore.Observe(1.0 - tracked.ClarificationFreq)

	if tracked.TopicSwitches > 0 {
		s.registry.FlowDisruptions.WithLabelValues("topic_switch").Inc()
	}

	for _, a := range report.Anomalies {
		s.registry.BehavioralAnomalies.WithLabelValues(a.Type, "behavioral").Inc()

		switch a.Type {
		case behavior.AnomalyResponseLoop:
			loopType := "unknown"
			if v, ok := a.Details["loop_type"].(string); ok {
				loopType = v
			}
			s.registry.FlowDisruptions.WithLabelValues("loop_" + loopType).Inc()
		case behavior.AnomalyBaselineDeviation:
			s.registry.FlowDisruptions.WithLabelValues("baseline_deviation").Inc()
		case behavior.AnomalyTemporalDrift:
			s.registry.DriftScore.Observe(a.Score)
		}
	}
}

func (s *MonitoringService) persist(ctx context.Context, tracked behavior.InteractionBehavior, report *behavior.AnomalyReport, history []behavior.InteractionBehavior) {
	if err := s.store.SaveBehavior(ctx, &tracked); err != nil {
		s.logger.Warn("failed to persist behavior",
			zap.String("session_id", tracked.SessionID),
			zap.Error(err))
	}

	if len(report.Anomalies) > 0 {
		if err := s.store.SaveAnomalies(ctx, report); err != nil {
			s.logger.Warn("failed to persist anomalies",
				zap.String("session_id", tracked.SessionID),
				zap.Error(err))
		}
	}

	if len(history) >= s.baselines.minInteractions {
		if baseline := s.baselines.EstablishBaseline(tracked.SessionID, history); baseline != nil {
			if err := s.store.UpsertBaseline(ctx, baseline); err != nil {
				s.logger.Warn("failed to upsert baseline",
					zap.String("session_id", tracked.SessionID),
					zap.Error(err))
			}
		}
	}
}

// Status reports the monitoring configuration and live session counts.
func (s *MonitoringService) Status() map[string]any {
	return map[string]any{
		"service_active":      true,
		"metrics_enabled":     s.metricsEnabled,
		"persistence_enabled": s.persistenceEnabled,
		"min_interactions":    s.baselines.minInteractions,
		"anomaly_threshold":   s.detector.anomalyThreshold,
		"drift_threshold":     s.detector.driftThreshold,
	}
}
