package grading

import (
	"context"
	"fmt"
	"strings"
)

// Question types known to the platform.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeFillInBlank    = "fill_in_blank"
	TypeMatching       = "matching"
	TypeEssay          = "essay"
	TypeSpeaking       = "speaking"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type      string
	Points    float64
	AnswerKey string
}

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  float64  // points awarded automatically
	MaxPoints   float64  // the question's max points
	NeedsManual bool     // true if instructor review is required
	Correct     *bool    // nil when the question was not auto-graded
	Feedback    []string // optional notes
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, response string) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response string) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response string) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, response)
}

type Option func(map[string]Strategy)

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(questionType string, s Strategy) Option {
	return func(m map[string]Strategy) { m[questionType] = s }
}

// NewDefaultGrader installs built-in strategies: exact match for the
// auto-gradable types, manual review for everything else.
func NewDefaultGrader(opts ...Option) Grader {
	m := map[string]Strategy{
		TypeMultipleChoice: exactMatchStrategy{},
		TypeTrueFalse:      exactMatchStrategy{},
		TypeFillInBlank:    fillInBlankStrategy{},
		TypeMatching:       manualStrategy{},
		TypeEssay:          manualStrategy{},
		TypeSpeaking:       manualStrategy{},
	}
	for _, o := range opts {
		o(m)
	}
	return &defaultGrader{strategies: m}
}

// IsAutoGradable reports whether the default grader scores t without an instructor.
func IsAutoGradable(t string) bool {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse, TypeFillInBlank:
		return true
	}
	return false
}

// --- Strategies ---

type exactMatchStrategy struct{}

func (exactMatchStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	return binary(q, answersMatch(response, q.AnswerKey)), nil
}

type fillInBlankStrategy struct{}

func (fillInBlankStrategy) Grade(_ context.Context, q Q, response string) (Result, error) {
	return binary(q, CheckFillInBlankAnswer(response, q.AnswerKey)), nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(_ context.Context, q Q, _ string) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

// CheckFillInBlankAnswer applies the same rule as choice questions: trimmed,
// case-insensitive equality with the canonical answer. No fuzzy matching.
func CheckFillInBlankAnswer(answer, correct string) bool {
	return answersMatch(answer, correct)
}

func answersMatch(answer, correct string) bool {
	a := strings.TrimSpace(answer)
	if a == "" {
		return false
	}
	return strings.EqualFold(a, strings.TrimSpace(correct))
}

// binary awards all or nothing.
func binary(q Q, ok bool) Result {
	res := Result{MaxPoints: q.Points, Correct: &ok}
	if ok {
		res.AutoPoints = q.Points
	}
	return res
}

// ValidateManualScore checks an instructor-entered score.
func ValidateManualScore(score float64) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("score must be between 0 and 100, got %v", score)
	}
	return nil
}
