package grading

import (
	"context"
	"testing"
)

func TestDefaultGrader_ByType(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()

	tests := []struct {
		name       string
		q          Q
		response   string
		wantPoints float64
		wantManual bool
		wantOK     *bool
	}{
		{name: "mc exact", q: Q{Type: TypeMultipleChoice, Points: 5, AnswerKey: "Paris"}, response: "Paris", wantPoints: 5, wantOK: boolPtr(true)},
		{name: "mc case and spaces", q: Q{Type: TypeMultipleChoice, Points: 5, AnswerKey: "Paris"}, response: "  pARIS ", wantPoints: 5, wantOK: boolPtr(true)},
		{name: "mc wrong", q: Q{Type: TypeMultipleChoice, Points: 5, AnswerKey: "Paris"}, response: "Lyon", wantPoints: 0, wantOK: boolPtr(false)},
		{name: "true_false", q: Q{Type: TypeTrueFalse, Points: 2, AnswerKey: "true"}, response: "TRUE", wantPoints: 2, wantOK: boolPtr(true)},
		{name: "fill in blank", q: Q{Type: TypeFillInBlank, Points: 3, AnswerKey: "went"}, response: "Went", wantPoints: 3, wantOK: boolPtr(true)},
		{name: "fill in blank no fuzzy", q: Q{Type: TypeFillInBlank, Points: 3, AnswerKey: "went"}, response: "wnet", wantPoints: 0, wantOK: boolPtr(false)},
		{name: "unanswered", q: Q{Type: TypeFillInBlank, Points: 3, AnswerKey: "went"}, response: "", wantPoints: 0, wantOK: boolPtr(false)},
		{name: "essay", q: Q{Type: TypeEssay, Points: 10}, response: "long text", wantManual: true},
		{name: "matching", q: Q{Type: TypeMatching, Points: 10, AnswerKey: "a-1,b-2"}, response: "a-1,b-2", wantManual: true},
		{name: "speaking", q: Q{Type: TypeSpeaking, Points: 10}, response: "", wantManual: true},
		{name: "unknown type", q: Q{Type: "hotspot", Points: 1}, response: "x", wantManual: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(ctx, tc.q, tc.response)
			if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if res.AutoPoints != tc.wantPoints {
				t.Errorf("points = %v, want %v", res.AutoPoints, tc.wantPoints)
			}
			if res.NeedsManual != tc.wantManual {
				t.Errorf("needsManual = %v, want %v", res.NeedsManual, tc.wantManual)
			}
			if res.MaxPoints != tc.q.Points {
				t.Errorf("maxPoints = %v, want %v", res.MaxPoints, tc.q.Points)
			}
			switch {
			case tc.wantOK == nil && res.Correct != nil:
				t.Errorf("correct = %v, want nil", *res.Correct)
			case tc.wantOK != nil && (res.Correct == nil || *res.Correct != *tc.wantOK):
				t.Errorf("correct = %v, want %v", res.Correct, *tc.wantOK)
			}
		})
	}
}

func TestWithStrategyOverrides(t *testing.T) {
	g := NewDefaultGrader(WithStrategy(TypeEssay, exactMatchStrategy{}))
	res, err := g.Grade(context.Background(), Q{Type: TypeEssay, Points: 4, AnswerKey: "ok"}, "ok")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.NeedsManual || res.AutoPoints != 4 {
		t.Fatalf("override not applied: %+v", res)
	}
}

func TestCheckFillInBlankAnswer(t *testing.T) {
	if !CheckFillInBlankAnswer(" Blue ", "blue") {
		t.Error("expected trimmed case-insensitive match")
	}
	if CheckFillInBlankAnswer("blue sky", "blue") {
		t.Error("unexpected partial match")
	}
}

func TestValidateManualScore_Boundaries(t *testing.T) {
	for _, ok := range []float64{0, 55.5, 100} {
		if err := ValidateManualScore(ok); err != nil {
			t.Errorf("ValidateManualScore(%v) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []float64{-0.01, 100.01} {
		if err := ValidateManualScore(bad); err == nil {
			t.Errorf("ValidateManualScore(%v) = nil, want error", bad)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
