package grading

import (
	"context"
	"testing"
)

func TestScore_AllCorrect(t *testing.T) {
	items := []Item{
		{ExamQuestionID: "a", Q: Q{Type: TypeMultipleChoice, Points: 20, AnswerKey: "A"}, Response: "A"},
		{ExamQuestionID: "b", Q: Q{Type: TypeMultipleChoice, Points: 30, AnswerKey: "B"}, Response: "b"},
	}
	sum, err := Score(context.Background(), NewDefaultGrader(), items)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if sum.Score != "100.00" {
		t.Errorf("score = %q, want 100.00", sum.Score)
	}
	if sum.TotalScore != 50 || sum.MaxScore != 50 {
		t.Errorf("total/max = %v/%v, want 50/50", sum.TotalScore, sum.MaxScore)
	}
	if sum.ManualGradeCount != 0 || sum.AutoGradedCount != 2 {
		t.Errorf("auto/manual = %d/%d", sum.AutoGradedCount, sum.ManualGradeCount)
	}
}

func TestScore_EssayPendingManual(t *testing.T) {
	items := []Item{
		{ExamQuestionID: "essay", Q: Q{Type: TypeEssay, Points: 10}, Response: "my essay"},
		{ExamQuestionID: "mc", Q: Q{Type: TypeMultipleChoice, Points: 10, AnswerKey: "yes"}, Response: "yes"},
	}
	sum, err := Score(context.Background(), NewDefaultGrader(), items)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if sum.Score != "50.00" {
		t.Errorf("score = %q, want 50.00", sum.Score)
	}
	if sum.ManualGradeCount != 1 {
		t.Errorf("manual = %d, want 1", sum.ManualGradeCount)
	}
}

func TestScore_NoQuestions(t *testing.T) {
	sum, err := Score(context.Background(), NewDefaultGrader(), nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if sum.Score != "0.00" || sum.Percent != 0 {
		t.Errorf("empty exam score = %q (%v), want 0.00", sum.Score, sum.Percent)
	}
}

func TestScore_Deterministic(t *testing.T) {
	items := []Item{
		{ExamQuestionID: "1", Q: Q{Type: TypeTrueFalse, Points: 3, AnswerKey: "false"}, Response: "false"},
		{ExamQuestionID: "2", Q: Q{Type: TypeFillInBlank, Points: 7, AnswerKey: "gone"}, Response: "went"},
		{ExamQuestionID: "3", Q: Q{Type: TypeMultipleChoice, Points: 5, AnswerKey: "C"}, Response: ""},
	}
	g := NewDefaultGrader()
	first, err := Score(context.Background(), g, items)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Score(context.Background(), g, items)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if again.Score != first.Score || again.TotalScore != first.TotalScore || again.MaxScore != first.MaxScore {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
	if first.Score != "20.00" {
		t.Errorf("score = %q, want 20.00", first.Score)
	}
}

func TestFormatScore(t *testing.T) {
	if got := FormatScore(1, 3); got != "33.33" {
		t.Errorf("FormatScore(1,3) = %q", got)
	}
	if got := FormatScore(5, 0); got != "0.00" {
		t.Errorf("FormatScore(5,0) = %q", got)
	}
}

func TestPoints(t *testing.T) {
	cases := []struct{ percent, max, want float64 }{
		{100, 50, 50},
		{50, 20, 10},
		{0, 20, 0},
		{80, 0, 0},
	}
	for _, c := range cases {
		if got := Points(c.percent, c.max); got != c.want {
			t.Errorf("Points(%v, %v) = %v, want %v", c.percent, c.max, got, c.want)
		}
		if c.max > 0 && Percent(Points(c.percent, c.max), c.max) != c.percent {
			t.Errorf("Percent does not invert Points for %v/%v", c.percent, c.max)
		}
	}
}
