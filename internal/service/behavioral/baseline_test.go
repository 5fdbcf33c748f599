package behavioral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/behavior"
)

func uniformBehaviors(sessionID string, n int, latency float64, length, confidence int) []behavior.InteractionBehavior {
	behaviors := make([]behavior.InteractionBehavior, n)
	for i := range behaviors {
		behaviors[i] = behavior.InteractionBehavior{
			SessionID:             sessionID,
			ResponseLatency:       latency,
			MessageLength:         length,
			ConversationTurns:     i + 1,
			ClarificationFreq:     0.1,
			ConfidenceExpressions: confidence,
			Timestamp:             time.Now(),
		}
	}
	return behaviors
}

func TestEstablishBaselineRequiresMinimumInteractions(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	baseline := mgr.EstablishBaseline("s1", uniformBehaviors("s1", 9, 100, 50, 1))
	assert.Nil(t, baseline)
	assert.False(t, mgr.HasBaseline("s1"))

	baseline = mgr.EstablishBaseline("s1", uniformBehaviors("s1", 10, 100, 50, 1))
	require.NotNil(t, baseline)
	assert.True(t, mgr.HasBaseline("s1"))
	assert.Equal(t, baseline, mgr.GetBaseline("s1"))
}

func TestEstablishBaselineStatistics(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	behaviors := uniformBehaviors("s1", 10, 200, 80, 2)
	behaviors[3].ResponseLatency = 400
	behaviors[3].MessageLength = 20
	behaviors[7].MessageLength = 140

	baseline := mgr.EstablishBaseline("s1", behaviors)
	require.NotNil(t, baseline)

	assert.InDelta(t, 220.0, baseline.AvgResponseLatency, 1e-9)
	assert.Equal(t, 20, baseline.TypicalMessageRange.Min)
	assert.Equal(t, 140, baseline.TypicalMessageRange.Max)
	assert.InDelta(t, 0.1, baseline.NormalClarification, 1e-9)
	assert.Equal(t, 10, baseline.InteractionCount)
	assert.InDelta(t, 2.0, baseline.ConfidencePattern["average"], 1e-9)
	assert.Equal(t, 2.0, baseline.ConfidencePattern["max"])
	assert.Equal(t, 2.0, baseline.ConfidencePattern["min"])
}

func TestEstablishBaselineIdenticalBehaviorsCollapseRange(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	baseline := mgr.EstablishBaseline("s1", uniformBehaviors("s1", 12, 150, 60, 1))
	require.NotNil(t, baseline)

	assert.Equal(t, 60, baseline.TypicalMessageRange.Min)
	assert.Equal(t, 60, baseline.TypicalMessageRange.Max)
	assert.Zero(t, baseline.ConfidencePattern["variance"])
}

func TestDetectDeviationZeroAtBaseline(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	behaviors := uniformBehaviors("s1", 10, 100, 50, 1)
	baseline := mgr.EstablishBaseline("s1", behaviors)
	require.NotNil(t, baseline)

	dev := mgr.DetectDeviation(behaviors[0], baseline)
	assert.InDelta(t, 0.0, dev, 1e-9)
}

func TestDetectDeviationGrowsWithLatency(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	behaviors := uniformBehaviors("s1", 10, 100, 50, 1)
	baseline := mgr.EstablishBaseline("s1", behaviors)
	require.NotNil(t, baseline)

	slow := behaviors[0]
	slow.ResponseLatency = 150
	slower := behaviors[0]
	slower.ResponseLatency = 190

	devSlow := mgr.DetectDeviation(slow, baseline)
	devSlower := mgr.DetectDeviation(slower, baseline)

	assert.Greater(t, devSlow, 0.0)
	assert.Greater(t, devSlower, devSlow)
	assert.LessOrEqual(t, devSlower, 1.0)
}

func TestDetectDeviationLengthOutsideRange(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	behaviors := uniformBehaviors("s1", 10, 100, 100, 1)
	baseline := mgr.EstablishBaseline("s1", behaviors)
	require.NotNil(t, baseline)

	within := behaviors[0]
	within.MessageLength = 100
	short := behaviors[0]
	short.MessageLength = 10

	assert.Greater(t, mgr.DetectDeviation(short, baseline), mgr.DetectDeviation(within, baseline))
}

func TestUpdateBaselineBlendsRecentBehaviors(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())
	current := time.Now()
	mgr.now = func() time.Time { return current }

	baseline := mgr.EstablishBaseline("s1", uniformBehaviors("s1", 10, 100, 50, 1))
	require.NotNil(t, baseline)

	current = current.Add(7 * time.Hour)
	updated := mgr.UpdateBaseline("s1", uniformBehaviors("s1", 10, 200, 50, 1))
	require.NotNil(t, updated)

	// 0.7*100 + 0.3*200
	assert.InDelta(t, 130.0, updated.AvgResponseLatency, 1e-9)
	assert.Equal(t, 20, updated.InteractionCount)
	assert.Equal(t, baseline.EstablishedAt, updated.EstablishedAt)
}

func TestUpdateBaselineRespectsUpdateFrequency(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())
	current := time.Now()
	mgr.now = func() time.Time { return current }

	baseline := mgr.EstablishBaseline("s1", uniformBehaviors("s1", 10, 100, 50, 1))
	require.NotNil(t, baseline)

	current = current.Add(time.Hour)
	updated := mgr.UpdateBaseline("s1", uniformBehaviors("s1", 10, 500, 50, 1))
	assert.Equal(t, baseline, updated)
	assert.InDelta(t, 100.0, updated.AvgResponseLatency, 1e-9)
}

func TestUpdateBaselineEmptyBatchUnchanged(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())
	current := time.Now()
	mgr.now = func() time.Time { return current }

	baseline := mgr.EstablishBaseline("s1", uniformBehaviors("s1", 10, 100, 50, 1))
	require.NotNil(t, baseline)

	current = current.Add(7 * time.Hour)
	updated := mgr.UpdateBaseline("s1", nil)
	assert.Equal(t, baseline, updated)
}

func TestUpdateBaselineWithoutExistingEstablishes(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	baseline := mgr.UpdateBaseline("fresh", uniformBehaviors("fresh", 10, 100, 50, 1))
	require.NotNil(t, baseline)
	assert.True(t, mgr.HasBaseline("fresh"))
}

func TestUpdateBaselineHoldsStandardDepth(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())
	current := time.Now()
	mgr.now = func() time.Time { return current }

	baseline := mgr.EstablishBaseline("s1", uniformBehaviors("s1", 10, 100, 50, 1))
	require.NotNil(t, baseline)
	originalDepth := baseline.StandardDepth

	deeper := uniformBehaviors("s1", 10, 100, 50, 1)
	for i := range deeper {
		deeper[i].ConversationTurns = 50 + i
	}
	current = current.Add(7 * time.Hour)
	updated := mgr.UpdateBaseline("s1", deeper)
	require.NotNil(t, updated)
	assert.Equal(t, originalDepth, updated.StandardDepth)

	current = current.Add(7 * time.Hour)
	again := mgr.UpdateBaseline("s1", deeper)
	require.NotNil(t, again)
	assert.Equal(t, originalDepth, again.StandardDepth)
}

func TestRemoveBaseline(t *testing.T) {
	mgr := NewBaselineManager(10, 6*time.Hour, zap.NewNop())

	require.NotNil(t, mgr.EstablishBaseline("s1", uniformBehaviors("s1", 10, 100, 50, 1)))
	mgr.RemoveBaseline("s1")
	assert.False(t, mgr.HasBaseline("s1"))
	assert.Nil(t, mgr.GetBaseline("s1"))

	// idempotent
	mgr.RemoveBaseline("s1")
}
