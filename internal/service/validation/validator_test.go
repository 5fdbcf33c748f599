package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStrategy struct {
	name   string
	result Result
	err    error
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Validate(_ string, _ Context) (Result, error) {
	s.calls++
	return s.result, s.err
}

func passingStub(name string) *stubStrategy {
	return &stubStrategy{name: name, result: Result{Passed: true, Confidence: 0.9}}
}

func TestValidateStopsAtMaxLevel(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	format := passingStub("format")
	content := passingStub("content")
	behavioral := passingStub("behavioral")
	v.Register(LevelFormat, format)
	v.Register(LevelContent, content)
	v.Register(LevelBehavioral, behavioral)

	result := v.Validate("some output", Context{}, LevelContent)

	assert.True(t, result.Passed)
	assert.Equal(t, LevelContent, result.Level)
	assert.Equal(t, 1, format.calls)
	assert.Equal(t, 1, content.calls)
	assert.Equal(t, 0, behavioral.calls)
}

func TestValidateRunsCheapestLevelFirst(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	var order []string
	record := func(name string, level Level) {
		v.Register(level, &orderedStub{name: name, order: &order})
	}
	// Registered out of level order on purpose.
	record("expert", LevelExpert)
	record("format", LevelFormat)
	record("content-a", LevelContent)
	record("content-b", LevelContent)

	v.Validate("output", Context{}, LevelBehavioral)

	assert.Equal(t, []string{"format", "content-a", "content-b", "expert"}, order)
}

type orderedStub struct {
	name  string
	order *[]string
}

func (s *orderedStub) Name() string { return s.name }

func (s *orderedStub) Validate(_ string, _ Context) (Result, error) {
	*s.order = append(*s.order, s.name)
	return Result{Passed: true, Confidence: 1.0}, nil
}

func TestValidateAccumulatesFailures(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	v.Register(LevelFormat, &stubStrategy{
		name:   "failing",
		result: Result{Passed: false, Confidence: 0.3, Errors: []string{"bad format"}},
	})
	v.Register(LevelContent, &stubStrategy{
		name:   "warning-only",
		result: Result{Passed: true, Confidence: 0.9, Warnings: []string{"borderline"}},
	})

	result := v.Validate("output", Context{}, LevelContent)

	assert.False(t, result.Passed)
	assert.Equal(t, []string{"bad format"}, result.Errors)
	assert.Equal(t, []string{"borderline"}, result.Warnings)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
}

func TestValidateConfidenceIsMinimumOfFailures(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	v.Register(LevelFormat, &stubStrategy{
		name:   "fail-low",
		result: Result{Passed: false, Confidence: 0.2, Errors: []string{"first"}},
	})
	v.Register(LevelContent, &stubStrategy{
		name:   "fail-high",
		result: Result{Passed: false, Confidence: 0.5, Errors: []string{"second"}},
	})

	result := v.Validate("output", Context{}, LevelContent)

	assert.Equal(t, []string{"first", "second"}, result.Errors)
	assert.InDelta(t, 0.2, result.Confidence, 1e-9)
}

func TestValidateStrategyErrorPenalizesConfidence(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	v.Register(LevelFormat, &stubStrategy{name: "broken", err: errors.New("boom")})
	v.Register(LevelContent, passingStub("fine"))

	result := v.Validate("output", Context{}, LevelContent)

	assert.False(t, result.Passed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Strategy error in broken: boom", result.Errors[0])
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestValidateEmptyPipelinePasses(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	result := v.Validate("anything", Context{}, LevelExpert)

	assert.True(t, result.Passed)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.Empty(t, result.Errors)
}

func TestStats(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())

	stats := v.Stats()
	assert.Equal(t, 0, stats["total_validations"])

	v.Register(LevelFormat, passingStub("ok"))
	v.Register(LevelContent, &stubStrategy{
		name:   "fail",
		result: Result{Passed: false, Confidence: 0.0, Errors: []string{"nope"}},
	})

	for i := 0; i < 3; i++ {
		v.Validate("output", Context{}, LevelFormat)
	}
	v.Validate("output", Context{}, LevelContent)

	stats = v.Stats()
	assert.Equal(t, 4, stats["total_validations"])
	assert.InDelta(t, 0.75, stats["pass_rate"].(float64), 1e-9)
	assert.InDelta(t, 0.75, stats["average_confidence"].(float64), 1e-9)
}

func TestStatsHistoryIsBounded(t *testing.T) {
	v := NewValidator(nil, zap.NewNop())
	v.Register(LevelFormat, passingStub("ok"))

	for i := 0; i < historyWindow+20; i++ {
		v.Validate(fmt.Sprintf("output %d", i), Context{}, LevelFormat)
	}

	stats := v.Stats()
	assert.Equal(t, historyWindow, stats["total_validations"])
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]Level{
		"format":     LevelFormat,
		"content":    LevelContent,
		"semantic":   LevelSemantic,
		"expert":     LevelExpert,
		"behavioral": LevelBehavioral,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}
