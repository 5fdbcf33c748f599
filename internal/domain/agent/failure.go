package agent

import (
	"fmt"
	"time"
)

// FailureType groups failure modes by the layer of the system they disrupt.
type FailureType string

const (
	FailureTypeOutputQuality FailureType = "output_quality"
	FailureTypeBehavioral    FailureType = "behavioral"
	FailureTypeIntegration   FailureType = "integration"
	FailureTypeResource      FailureType = "resource"
)

// FailureMode identifies a concrete injectable failure.
type FailureMode string

const (
	ModeHallucination      FailureMode = "hallucination"
	ModeIncorrectReasoning FailureMode = "incorrect_reasoning"
	ModeOffTopic           FailureMode = "off_topic"
	ModeInfiniteLoop       FailureMode = "infinite_loop"
	ModeRefusingProgress   FailureMode = "refusing_progress"
	ModeAPITimeout         FailureMode = "api_timeout"
	ModeAuthError          FailureMode = "auth_error"
	ModeServiceUnavailable FailureMode = "service_unavailable"
	ModeTokenLimit         FailureMode = "token_limit"
	ModeMemoryExhaustion   FailureMode = "memory_exhaustion"
	ModeRateLimiting       FailureMode = "rate_limiting"
)

// AllFailureModes lists every registered mode in evaluation order. When
// multiple probabilistic modes could fire on the same turn, the earliest
// one in this order wins.
func AllFailureModes() []FailureMode {
	return []FailureMode{
		ModeHallucination,
		ModeIncorrectReasoning,
		ModeOffTopic,
		ModeInfiniteLoop,
		ModeRefusingProgress,
		ModeAPITimeout,
		ModeAuthError,
		ModeServiceUnavailable,
		ModeTokenLimit,
		ModeMemoryExhaustion,
		ModeRateLimiting,
	}
}

var modeTypes = map[FailureMode]FailureType{
	ModeHallucination:      FailureTypeOutputQuality,
	ModeIncorrectReasoning: FailureTypeOutputQuality,
	ModeOffTopic:           FailureTypeOutputQuality,
	ModeInfiniteLoop:       FailureTypeBehavioral,
	ModeRefusingProgress:   FailureTypeBehavioral,
	ModeAPITimeout:         FailureTypeIntegration,
	ModeAuthError:          FailureTypeIntegration,
	ModeServiceUnavailable: FailureTypeIntegration,
	ModeTokenLimit:         FailureTypeResource,
	ModeMemoryExhaustion:   FailureTypeResource,
	ModeRateLimiting:       FailureTypeResource,
}

// Type reports which failure type the mode belongs to.
func (m FailureMode) Type() FailureType {
	return modeTypes[m]
}

// Valid reports whether the mode is one of the registered failure modes.
func (m FailureMode) Valid() bool {
	_, ok := modeTypes[m]
	return ok
}

// ParseFailureMode converts a wire string into a FailureMode.
func ParseFailureMode(s string) (FailureMode, error) {
	m := FailureMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown failure mode %q", s)
	}
	return m, nil
}

// Fault describes an integration or resource failure that surfaces as a
// service error rather than degraded output text.
type Fault struct {
	Kind    FailureMode `json:"kind"`
	Message string      `json:"message"`
}

func (f Fault) Error() string {
	return f.Message
}

// InjectionOutcome is the tagged result of a single injection evaluation.
// Exactly one of Response and Fault is meaningful when Injected is true:
// output-quality and behavioral modes carry a replacement Response, while
// integration and resource modes carry a Fault.
type InjectionOutcome struct {
	Injected bool          `json:"injected"`
	Mode     FailureMode   `json:"mode,omitempty"`
	Response string        `json:"response,omitempty"`
	Fault    *Fault        `json:"fault,omitempty"`
	Delay    time.Duration `json:"-"`
}
