package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var repeatedCharPattern = regexp.MustCompile(`(.)\1{15,}`)

// FormatStrategy checks structural soundness of the response text
// before more expensive checks run.
type FormatStrategy struct {
	MaxLength int
}

// NewFormatStrategy returns a format check with the default 5000-char
// length cutoff.
func NewFormatStrategy() *FormatStrategy {
	return &FormatStrategy{MaxLength: 5000}
}

func (s *FormatStrategy) Name() string { return "format" }

func (s *FormatStrategy) Validate(output string, _ Context) (Result, error) {
	var errs, warnings []string

	if output == "" {
		return Result{
			Passed:     false,
			Confidence: 0.0,
			Errors:     []string{"Empty output"},
			Level:      LevelFormat,
			Metadata:   map[string]any{"length": 0},
		}, nil
	}

	if len(output) > s.MaxLength {
		warnings = append(warnings, fmt.Sprintf("Very long response (%d chars)", len(output)))
	}
	if strings.TrimSpace(output) != output {
		warnings = append(warnings, "Leading/trailing whitespace")
	}
	if strings.Count(output, `"`)%2 != 0 {
		warnings = append(warnings, "Unmatched quotes detected")
	}
	if repeatedCharPattern.MatchString(output) {
		errs = append(errs, "Excessive character repetition detected")
	}

	confidence := 0.9
	if len(errs) > 0 {
		confidence = 0.3
	}
	return Result{
		Passed:     len(errs) == 0,
		Confidence: confidence,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelFormat,
		Metadata: map[string]any{
			"length":         len(output),
			"warnings_count": len(warnings),
		},
	}, nil
}

var inappropriatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(fuck|shit|damn|hell)\b`),
	regexp.MustCompile(`\b(stupid|idiot|moron)\b`),
	regexp.MustCompile(`\b(go away|shut up|leave me alone)\b`),
}

var assistancePhrases = []string{"let me", "i can", "try", "help you", "contact"}

// CustomerServiceStrategy flags language a support agent must never
// emit and limitation admissions that offer no way forward.
type CustomerServiceStrategy struct{}

func NewCustomerServiceStrategy() *CustomerServiceStrategy { return &CustomerServiceStrategy{} }

func (s *CustomerServiceStrategy) Name() string { return "customer_service" }

func (s *CustomerServiceStrategy) Validate(output string, _ Context) (Result, error) {
	var errs, warnings []string
	lower := strings.ToLower(output)

	for _, pattern := range inappropriatePatterns {
		if pattern.MatchString(lower) {
			errs = append(errs, "Inappropriate language detected")
		}
	}

	if strings.Contains(lower, "i don't know") || strings.Contains(lower, "i can't help") {
		offersHelp := false
		for _, phrase := range assistancePhrases {
			if strings.Contains(lower, phrase) {
				offersHelp = true
				break
			}
		}
		if !offersHelp {
			warnings = append(warnings, "Response admits limitation without offering assistance")
		}
	}

	confidence := 0.9
	if len(errs) > 0 {
		confidence = 0.4
	}
	if len(warnings) > 0 {
		confidence *= 0.8
	}
	return Result{
		Passed:     len(errs) == 0,
		Confidence: confidence,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelContent,
		Metadata:   map[string]any{"response_length": len(output)},
	}, nil
}

var punctuationRunPattern = regexp.MustCompile(`[!?]{3,}`)

// CoherenceStrategy catches garbled responses: duplicated sentences,
// space-free gibberish, and punctuation runs.
type CoherenceStrategy struct{}

func NewCoherenceStrategy() *CoherenceStrategy { return &CoherenceStrategy{} }

func (s *CoherenceStrategy) Name() string { return "coherence" }

func (s *CoherenceStrategy) Validate(output string, _ Context) (Result, error) {
	var errs, warnings []string

	var sentences []string
	for _, part := range strings.Split(output, ".") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}

	if len(sentences) == 0 {
		return Result{
			Passed:     false,
			Confidence: 0.1,
			Errors:     []string{"No complete sentences found"},
			Level:      LevelContent,
			Metadata:   map[string]any{"sentence_count": 0},
		}, nil
	}

	if len(sentences) > 1 {
		seen := make(map[string]struct{}, len(sentences))
		for _, sentence := range sentences {
			seen[sentence] = struct{}{}
		}
		if len(seen) != len(sentences) {
			errs = append(errs, "Duplicate sentences detected")
		}
	}
	if len(output) > 20 && !strings.Contains(output, " ") {
		errs = append(errs, "Response appears to be gibberish (no spaces)")
	}
	if punctuationRunPattern.MatchString(output) {
		warnings = append(warnings, "Excessive punctuation detected")
	}

	confidence := 0.8
	if len(errs) > 0 {
		confidence = 0.3
	}
	if len(warnings) > 0 {
		confidence *= 0.9
	}
	return Result{
		Passed:     len(errs) == 0,
		Confidence: confidence,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelContent,
		Metadata: map[string]any{
			"sentence_count":  len(sentences),
			"coherence_score": confidence,
		},
	}, nil
}
