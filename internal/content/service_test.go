package content

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/grading"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	for _, acc := range []string{"acc-1", "acc-2"} {
		mustExec(t, dbh, `INSERT INTO accounts (id,username,password_hash,role,created_at) VALUES ($1,$2,'x','instructor',0)`, acc, acc)
		mustExec(t, dbh, `INSERT INTO instructors (id,account_id) VALUES ($1,$2)`, "ins-"+acc, acc)
	}
	svc := NewService(NewSQLStore(dbh), nil)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc, dbh
}

func mustExec(t *testing.T, dbh *sql.DB, q string, args ...any) {
	t.Helper()
	if _, err := dbh.ExecContext(context.Background(), q, args...); err != nil {
		t.Fatalf("exec %q: %v", q, err)
	}
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected status %d, got nil error", status)
	}
	if got := apperr.StatusOf(err, 0); got != status {
		t.Fatalf("status = %d (%v), want %d", got, err, status)
	}
}

func mcInput(opts ...OptionInput) QuestionInput {
	return QuestionInput{Content: "Capital of France?", Type: grading.TypeMultipleChoice, Level: LevelEasy, Point: 10, Options: opts}
}

func TestCreateQuestion_MultipleChoiceInvariants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateQuestion(ctx, "acc-1", mcInput(OptionInput{Content: "Paris", IsCorrect: true}))
	wantStatus(t, err, http.StatusBadRequest)

	_, err = svc.CreateQuestion(ctx, "acc-1", mcInput(OptionInput{Content: "Paris"}, OptionInput{Content: "Lyon"}))
	wantStatus(t, err, http.StatusBadRequest)

	q, err := svc.CreateQuestion(ctx, "acc-1", mcInput(OptionInput{Content: "Lyon"}, OptionInput{Content: "Paris", IsCorrect: true}))
	if err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	if q.CorrectAnswer != "Paris" {
		t.Errorf("correct answer = %q, want first correct option", q.CorrectAnswer)
	}
	got, err := svc.store.GetQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if len(got.Options) != 2 || got.Options[0].Content != "Lyon" || !got.Options[1].IsCorrect {
		t.Errorf("options not stored in order: %+v", got.Options)
	}
}

func TestCreateQuestion_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := []QuestionInput{
		{Content: "", Type: grading.TypeEssay, Level: LevelEasy},
		{Content: "x", Type: "hotspot", Level: LevelEasy},
		{Content: "x", Type: grading.TypeEssay, Level: "Insane"},
		{Content: "x", Type: grading.TypeEssay, Level: LevelHard, Point: 100.5},
		{Content: "x", Type: grading.TypeFillInBlank, Level: LevelHard, Point: 5},
	}
	for _, in := range cases {
		_, err := svc.CreateQuestion(ctx, "acc-1", in)
		wantStatus(t, err, http.StatusBadRequest)
	}
	if _, err := svc.CreateQuestion(ctx, "nobody", QuestionInput{Content: "x", Type: grading.TypeEssay, Level: LevelEasy}); err == nil {
		t.Fatal("expected unknown instructor to fail")
	} else {
		wantStatus(t, err, http.StatusNotFound)
	}
}

func TestQuestionOwnershipAndSoftDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	q, err := svc.CreateQuestion(ctx, "acc-1", QuestionInput{Content: "Describe", Type: grading.TypeEssay, Level: LevelMedium, Point: 5})
	if err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	wantStatus(t, svc.DeleteQuestion(ctx, "acc-2", q.ID), http.StatusForbidden)

	if err := svc.DeleteQuestion(ctx, "acc-1", q.ID); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}
	list, err := svc.ListQuestions(ctx, "acc-1", QuestionFilter{Status: QuestionInactive})
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 1 || list[0].ID != q.ID {
		t.Fatalf("inactive list = %+v", list)
	}
}

func TestSectionHierarchy_TwoLevels(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e, err := svc.CreateExam(ctx, "acc-1", ExamInput{Title: "Mid-term", Type: ExamTypeExam})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if e.Status != ExamDraft {
		t.Errorf("default status = %q", e.Status)
	}
	parent, err := svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionReading, Title: "Part 1"})
	if err != nil {
		t.Fatalf("CreateSection parent: %v", err)
	}
	child, err := svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionReading, Title: "1a", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("CreateSection child: %v", err)
	}
	_, err = svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionReading, ParentID: &child.ID})
	wantStatus(t, err, http.StatusBadRequest)

	other, err := svc.CreateExam(ctx, "acc-1", ExamInput{Title: "Other", Type: ExamTypeAssignment})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	_, err = svc.CreateSection(ctx, "acc-1", other.ID, SectionInput{Type: SectionWriting, ParentID: &parent.ID})
	wantStatus(t, err, http.StatusBadRequest)

	second, err := svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionWriting, Title: "Part 2", OrderIndex: 1})
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	_, err = svc.UpdateSection(ctx, "acc-1", parent.ID, SectionInput{Type: SectionReading, ParentID: &second.ID})
	wantStatus(t, err, http.StatusBadRequest)

	_, err = svc.CreateSection(ctx, "acc-2", e.ID, SectionInput{Type: SectionReading})
	wantStatus(t, err, http.StatusForbidden)

	q1, _ := svc.CreateQuestion(ctx, "acc-1", QuestionInput{Content: "parent q", Type: grading.TypeEssay, Level: LevelEasy, Point: 5})
	q2, _ := svc.CreateQuestion(ctx, "acc-1", QuestionInput{Content: "child q", Type: grading.TypeTrueFalse, Level: LevelEasy, Point: 5, CorrectAnswer: "true"})
	if _, err := svc.AddQuestionToSection(ctx, "acc-1", parent.ID, q1.ID, nil); err != nil {
		t.Fatalf("AddQuestionToSection: %v", err)
	}
	if _, err := svc.AddQuestionToSection(ctx, "acc-1", child.ID, q2.ID, nil); err != nil {
		t.Fatalf("AddQuestionToSection: %v", err)
	}
	_, err = svc.AddQuestionToSection(ctx, "acc-1", child.ID, q2.ID, nil)
	wantStatus(t, err, http.StatusConflict)

	tree, err := svc.InstructorHierarchy(ctx, "acc-1", e.ID)
	if err != nil {
		t.Fatalf("InstructorHierarchy: %v", err)
	}
	if len(tree) != 2 || tree[0].ID != parent.ID || tree[1].ID != second.ID {
		t.Fatalf("roots = %+v", tree)
	}
	if len(tree[0].Questions) != 1 || tree[0].Questions[0].Question.ID != q1.ID {
		t.Errorf("parent questions = %+v", tree[0].Questions)
	}
	if len(tree[0].Children) != 1 || len(tree[0].Children[0].Questions) != 1 {
		t.Fatalf("children = %+v", tree[0].Children)
	}
	if tree[0].Children[0].Questions[0].Question.CorrectAnswer != "true" {
		t.Error("instructor view should include the canonical answer")
	}
}

func TestDeleteSection_Cascades(t *testing.T) {
	svc, dbh := newTestService(t)
	ctx := context.Background()
	e, _ := svc.CreateExam(ctx, "acc-1", ExamInput{Title: "Quiz", Type: ExamTypeExam})
	parent, _ := svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionListening})
	child, _ := svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionListening, ParentID: &parent.ID})
	q, _ := svc.CreateQuestion(ctx, "acc-1", QuestionInput{Content: "Say hi", Type: grading.TypeSpeaking, Level: LevelEasy, Point: 1})
	if _, err := svc.AddQuestionToSection(ctx, "acc-1", parent.ID, q.ID, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddQuestionToSection(ctx, "acc-1", child.ID, q.ID, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.DeleteSection(ctx, "acc-1", parent.ID); err != nil {
		t.Fatalf("DeleteSection: %v", err)
	}
	var sections, links int
	_ = dbh.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_sections WHERE exam_id=$1`, e.ID).Scan(&sections)
	_ = dbh.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_questions WHERE exam_id=$1`, e.ID).Scan(&links)
	if sections != 0 || links != 0 {
		t.Fatalf("after cascade: sections=%d links=%d", sections, links)
	}
	if _, err := svc.store.GetQuestion(ctx, q.ID); err != nil {
		t.Fatalf("question itself should survive: %v", err)
	}
}

func TestArchiveUnarchiveDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e, _ := svc.CreateExam(ctx, "acc-1", ExamInput{Title: "Final", Type: ExamTypeExam})

	_, err := svc.ArchiveExam(ctx, "acc-2", e.ID)
	wantStatus(t, err, http.StatusForbidden)
	_, err = svc.ArchiveExam(ctx, "acc-1", "missing")
	wantStatus(t, err, http.StatusNotFound)

	if got, err := svc.DeleteExam(ctx, "acc-1", e.ID); err != nil || got.Status != ExamArchived {
		t.Fatalf("DeleteExam = %+v, %v", got, err)
	}
	if got, err := svc.UnarchiveExam(ctx, "acc-1", e.ID); err != nil || got.Status != ExamDraft {
		t.Fatalf("UnarchiveExam = %+v, %v", got, err)
	}
	list, err := svc.ListExams(ctx, "acc-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListExams = %+v, %v", list, err)
	}
}

func TestReorderExamQuestion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e, _ := svc.CreateExam(ctx, "acc-1", ExamInput{Title: "Quiz", Type: ExamTypeExam})
	sec, _ := svc.CreateSection(ctx, "acc-1", e.ID, SectionInput{Type: SectionReading})
	var ids []string
	for _, c := range []string{"a", "b"} {
		q, _ := svc.CreateQuestion(ctx, "acc-1", QuestionInput{Content: c, Type: grading.TypeFillInBlank, Level: LevelEasy, Point: 1, CorrectAnswer: c})
		eq, err := svc.AddQuestionToSection(ctx, "acc-1", sec.ID, q.ID, nil)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, eq.ID)
	}
	if _, err := svc.ReorderExamQuestion(ctx, "acc-1", ids[0], 5); err != nil {
		t.Fatalf("ReorderExamQuestion: %v", err)
	}
	tree, _ := svc.GetHierarchy(ctx, e.ID, nil)
	if tree[0].Questions[0].ExamQuestionID != ids[1] {
		t.Fatalf("reorder not applied: %+v", tree[0].Questions)
	}
	if err := svc.RemoveQuestionFromSection(ctx, "acc-1", sec.ID, "missing"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestShuffler_StableForSeed(t *testing.T) {
	build := func() []SectionNode {
		n := SectionNode{Section: Section{ID: "s1"}}
		for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
			n.Questions = append(n.Questions, SectionQuestion{ExamQuestionID: id, Question: Question{
				Options: []Option{{ID: id + "1"}, {ID: id + "2"}, {ID: id + "3"}},
			}})
		}
		return []SectionNode{n}
	}
	order := func(nodes []SectionNode) string {
		s := ""
		for _, q := range nodes[0].Questions {
			s += q.ExamQuestionID + q.Question.Options[0].ID
		}
		return s
	}
	a, b := build(), build()
	Shuffler{Seed: 42, Questions: true, Options: true}.Apply(a)
	Shuffler{Seed: 42, Questions: true, Options: true}.Apply(b)
	if order(a) != order(b) {
		t.Fatalf("same seed gave different orders: %s vs %s", order(a), order(b))
	}
	plain := build()
	Shuffler{Seed: 42}.Apply(plain)
	if order(plain) != order(build()) {
		t.Fatal("shuffler with no flags must not reorder")
	}
}
