package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var helpfulPhrases = []string{
	"i can help", "let me", "here's how", "you can", "try this",
	"i'll", "would you like", "i suggest", "i recommend",
	"here are", "the steps are", "to do this",
}

var unhelpfulPhrases = []string{
	"i don't know", "i can't help", "impossible", "not possible",
	"i'm not sure", "i have no idea", "can't do that",
}

var alternativePhrases = []string{"however", "but", "alternatively", "instead", "contact", "escalate"}

var contradictionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\byes\b.*\bno\b`),
	regexp.MustCompile(`\bno\b.*\byes\b`),
	regexp.MustCompile(`\bcan\b.*\bcannot\b`),
	regexp.MustCompile(`\bcannot\b.*\bcan\b`),
	regexp.MustCompile(`\bwill\b.*\bwon't\b`),
	regexp.MustCompile(`\bwon't\b.*\bwill\b`),
	regexp.MustCompile(`\bis\b.*\bisn't\b`),
	regexp.MustCompile(`\bisn't\b.*\bis\b`),
}

var acknowledgmentPhrases = []string{
	"regarding", "about your", "for your", "to answer",
	"you asked", "your question", "your request",
}

var genericPhrases = []string{
	"thank you for contacting", "is there anything else",
	"i'm here to help", "how can i assist",
}

// QualityScorer computes helpfulness, consistency, and relevance
// heuristics over response text.
type QualityScorer struct{}

func NewQualityScorer() *QualityScorer { return &QualityScorer{} }

// ScoreHelpfulness scores how actionable the response is. Unhelpful
// phrasing is forgiven when an alternative is offered.
func (q *QualityScorer) ScoreHelpfulness(text string) float64 {
	if len(strings.TrimSpace(text)) < 3 {
		return 0.0
	}
	lower := strings.ToLower(text)

	helpfulCount := 0
	for _, phrase := range helpfulPhrases {
		if strings.Contains(lower, phrase) {
			helpfulCount++
		}
	}
	unhelpfulCount := 0
	for _, phrase := range unhelpfulPhrases {
		if strings.Contains(lower, phrase) {
			unhelpfulCount++
		}
	}

	score := float64(helpfulCount) * 0.3
	if score > 1.0 {
		score = 1.0
	}

	if unhelpfulCount > 0 {
		hasAlternative := false
		for _, phrase := range alternativePhrases {
			if strings.Contains(lower, phrase) {
				hasAlternative = true
				break
			}
		}
		if hasAlternative {
			if score < 0.6 {
				score = 0.6
			}
		} else {
			score -= float64(unhelpfulCount) * 0.2
			if score < 0.1 {
				score = 0.1
			}
		}
	}
	return score
}

// ScoreConsistency penalizes short texts that contradict themselves.
func (q *QualityScorer) ScoreConsistency(text string) float64 {
	if len(strings.TrimSpace(text)) < 10 {
		return 1.0
	}
	lower := strings.ToLower(text)

	for _, pattern := range contradictionPatterns {
		if pattern.MatchString(lower) {
			// Contradictions in short text are much more likely real.
			if len(strings.Fields(lower)) < 50 {
				return 0.7
			}
			break
		}
	}
	return 1.0
}

// ScoreRelevance estimates how directly the response addresses the
// conversation. Context is thin here, so the score stays coarse.
func (q *QualityScorer) ScoreRelevance(text string) float64 {
	if text == "" {
		return 0.0
	}
	lower := strings.ToLower(text)
	score := 0.7

	for _, phrase := range acknowledgmentPhrases {
		if strings.Contains(lower, phrase) {
			score += 0.2
			if score > 1.0 {
				score = 1.0
			}
			break
		}
	}
	if len(text) < 100 {
		for _, phrase := range genericPhrases {
			if strings.Contains(lower, phrase) {
				score *= 0.8
				break
			}
		}
	}
	return score
}

// OverallQuality weights the three component scores. Helpfulness
// dominates.
func (q *QualityScorer) OverallQuality(text string) float64 {
	return q.ScoreHelpfulness(text)*0.5 +
		q.ScoreConsistency(text)*0.3 +
		q.ScoreRelevance(text)*0.2
}

// QualityStrategy fails responses whose weighted quality score falls
// below the configured floor.
type QualityStrategy struct {
	scorer     *QualityScorer
	minQuality float64
}

func NewQualityStrategy(scorer *QualityScorer, minQuality float64) *QualityStrategy {
	return &QualityStrategy{scorer: scorer, minQuality: minQuality}
}

func (s *QualityStrategy) Name() string { return "quality" }

func (s *QualityStrategy) Validate(output string, _ Context) (Result, error) {
	var errs, warnings []string

	helpfulness := s.scorer.ScoreHelpfulness(output)
	consistency := s.scorer.ScoreConsistency(output)
	relevance := s.scorer.ScoreRelevance(output)
	quality := helpfulness*0.5 + consistency*0.3 + relevance*0.2

	if quality < s.minQuality {
		errs = append(errs, fmt.Sprintf("Low quality score: %.2f", quality))
	} else if quality < 0.6 {
		warnings = append(warnings, fmt.Sprintf("Medium quality score: %.2f", quality))
	}

	return Result{
		Passed:     len(errs) == 0,
		Confidence: quality,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelContent,
		Metadata: map[string]any{
			"quality_score": quality,
			"helpfulness":   helpfulness,
			"consistency":   consistency,
			"relevance":     relevance,
		},
	}, nil
}

var overconfidentPhrases = []string{
	"definitely", "certainly", "absolutely", "100%", "without doubt",
	"guaranteed", "always", "never", "impossible", "certain",
}

var uncertaintyPhrases = []string{
	"might", "could", "possibly", "perhaps", "maybe", "uncertain",
	"unclear", "approximately", "roughly", "probably",
}

var uncertaintyAcknowledgments = []string{
	"i'm not sure", "i don't know", "uncertain", "unclear",
	"needs verification", "might be wrong", "let me check",
}

// ConfidenceStrategy checks that the response's certainty register
// matches its content: hedged claims must be acknowledged as such, and
// absolute claims are penalized.
type ConfidenceStrategy struct{}

func NewConfidenceStrategy() *ConfidenceStrategy { return &ConfidenceStrategy{} }

func (s *ConfidenceStrategy) Name() string { return "confidence" }

func (s *ConfidenceStrategy) Validate(output string, _ Context) (Result, error) {
	var errs, warnings []string
	lower := strings.ToLower(output)

	overconfident := 0
	for _, phrase := range overconfidentPhrases {
		if strings.Contains(lower, phrase) {
			overconfident++
		}
	}
	uncertain := false
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			uncertain = true
			break
		}
	}
	acknowledged := false
	for _, phrase := range uncertaintyAcknowledgments {
		if strings.Contains(lower, phrase) {
			acknowledged = true
			break
		}
	}

	if overconfident > 2 {
		warnings = append(warnings, "Multiple overconfident statements detected")
	}
	if uncertain && !acknowledged {
		errs = append(errs, "Uncertain content presented as fact")
	}

	score := 0.7
	score -= 0.1 * float64(overconfident)
	if uncertain && acknowledged {
		score += 0.1
	}
	if uncertain && !acknowledged {
		score -= 0.2
	}
	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}

	return Result{
		Passed:     len(errs) == 0,
		Confidence: score,
		Errors:     errs,
		Warnings:   warnings,
		Level:      LevelContent,
		Metadata: map[string]any{
			"overconfident_phrases":    overconfident,
			"uncertain_content":        uncertain,
			"uncertainty_acknowledged": acknowledged,
			"text_length":              len(output),
		},
	}, nil
}
