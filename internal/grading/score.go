package grading

import (
	"context"
	"fmt"
)

// Item is one question of a submission, paired with the learner's response.
type Item struct {
	ExamQuestionID string
	Q              Q
	Response       string
}

// ItemResult is the graded form of an Item.
type ItemResult struct {
	ExamQuestionID string
	Response       string
	Result
}

// Summary aggregates a whole submission.
type Summary struct {
	TotalScore       float64
	MaxScore         float64
	Score            string // percentage with two decimals, e.g. "87.50"
	Percent          float64
	AutoGradedCount  int
	ManualGradeCount int
	Items            []ItemResult
}

// Score grades every item in order. Every question contributes its points to
// MaxScore whether or not it was answered; only correct auto-graded answers
// contribute to TotalScore.
func Score(ctx context.Context, g Grader, items []Item) (Summary, error) {
	sum := Summary{Items: make([]ItemResult, 0, len(items))}
	for _, it := range items {
		res, err := g.Grade(ctx, it.Q, it.Response)
		if err != nil {
			return Summary{}, fmt.Errorf("grade %s: %w", it.ExamQuestionID, err)
		}
		sum.MaxScore += it.Q.Points
		if res.NeedsManual {
			sum.ManualGradeCount++
		} else {
			sum.AutoGradedCount++
			sum.TotalScore += res.AutoPoints
		}
		sum.Items = append(sum.Items, ItemResult{ExamQuestionID: it.ExamQuestionID, Response: it.Response, Result: res})
	}
	sum.Percent = Percent(sum.TotalScore, sum.MaxScore)
	sum.Score = FormatScore(sum.TotalScore, sum.MaxScore)
	return sum, nil
}

// Percent is total/max*100, or 0 when max is 0.
func Percent(total, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return total / max * 100
}

// Points converts a percentage back to points out of max.
func Points(percent, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return percent / 100 * max
}

// FormatScore renders Percent with two decimals.
func FormatScore(total, max float64) string {
	return fmt.Sprintf("%.2f", Percent(total, max))
}
