package instance

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/content"
	"github.com/mind-engage/mindengage-training/internal/db"
)

type fixture struct {
	svc    *Service
	dbh    *sql.DB
	examID string
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	for _, q := range []string{
		`INSERT INTO accounts (id,username,password_hash,role,created_at) VALUES ('acc-i','teach','x','instructor',0)`,
		`INSERT INTO accounts (id,username,password_hash,role,created_at) VALUES ('acc-o','other','x','instructor',0)`,
		`INSERT INTO instructors (id,account_id) VALUES ('ins-1','acc-i')`,
		`INSERT INTO instructors (id,account_id) VALUES ('ins-2','acc-o')`,
		`INSERT INTO courses (id,name) VALUES ('course-1','English')`,
		`INSERT INTO classes (id,course_id,name) VALUES ('class-1','course-1','A1')`,
		`INSERT INTO classes (id,course_id,name) VALUES ('class-2','course-1','A2')`,
		`INSERT INTO units (id,course_id,title) VALUES ('unit-1','course-1','Unit 1')`,
	} {
		if _, err := dbh.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	csvc := content.NewService(content.NewSQLStore(dbh), nil)
	exam, err := csvc.CreateExam(ctx, "acc-i", content.ExamInput{Title: "Midterm", Type: content.ExamTypeExam})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	clock := time.Unix(1_700_000_000, 0)
	f := &fixture{svc: NewService(NewSQLStore(dbh), csvc, nil), dbh: dbh, examID: exam.ID, clock: &clock}
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

func (f *fixture) examStatus(t *testing.T) string {
	t.Helper()
	var s string
	if err := f.dbh.QueryRowContext(context.Background(), `SELECT status FROM exams WHERE id=$1`, f.examID).Scan(&s); err != nil {
		t.Fatalf("exam status: %v", err)
	}
	return s
}

func ptr(v int64) *int64 { return &v }

func TestCreate_ClassUnitExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{})
	if apperr.StatusOf(err, 0) != http.StatusBadRequest {
		t.Fatalf("neither target: %v", err)
	}
	_, err = f.svc.Create(ctx, "acc-i", f.examID, CreateInput{ClassIDs: []string{"class-1"}, UnitIDs: []string{"unit-1"}})
	if apperr.StatusOf(err, 0) != http.StatusBadRequest {
		t.Fatalf("both targets: %v", err)
	}

	list, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{ClassIDs: []string{"class-1", "class-2"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(list) != 2 || list[0].UnitID != nil || *list[1].ClassID != "class-2" || list[0].Attempt != 1 {
		t.Fatalf("created = %+v", list)
	}

	// The schema enforces the same rule even if the service is bypassed.
	_, err = f.dbh.ExecContext(ctx, `INSERT INTO exam_instances (id,exam_id,class_id,unit_id,attempt,status,created_at,updated_at)
		VALUES ('raw',$1,'class-1','unit-1',1,'Scheduled',0,0)`, f.examID)
	if err == nil {
		t.Fatal("expected CHECK constraint to reject class and unit together")
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   CreateInput
		want int
	}{
		{"window inverted", CreateInput{UnitIDs: []string{"unit-1"}, StartTime: ptr(10), EndTime: ptr(5)}, http.StatusBadRequest},
		{"negative attempt", CreateInput{UnitIDs: []string{"unit-1"}, Attempt: -1}, http.StatusBadRequest},
		{"unknown class", CreateInput{ClassIDs: []string{"nope"}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, "acc-i", f.examID, tc.in)
			if got := apperr.StatusOf(err, 0); got != tc.want {
				t.Fatalf("status = %d (%v), want %d", got, err, tc.want)
			}
		})
	}
	_, err := f.svc.Create(ctx, "acc-o", f.examID, CreateInput{UnitIDs: []string{"unit-1"}})
	if apperr.StatusOf(err, 0) != http.StatusForbidden {
		t.Fatalf("non-owner: %v", err)
	}
}

func TestOpenCloseNow_ReturnFalseFromWrongState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{UnitIDs: []string{"unit-1"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := list[0].ID

	if ok, err := f.svc.CloseNow(ctx, "acc-i", id); err != nil || ok {
		t.Fatalf("CloseNow from Scheduled = %v, %v; want false, nil", ok, err)
	}
	if ok, err := f.svc.OpenNow(ctx, "acc-i", id); err != nil || !ok {
		t.Fatalf("OpenNow = %v, %v", ok, err)
	}
	if got := f.examStatus(t); got != content.ExamPublished {
		t.Errorf("exam status after open = %q, want Published", got)
	}
	if ok, _ := f.svc.OpenNow(ctx, "acc-i", id); ok {
		t.Fatal("second OpenNow should report false")
	}
	if ok, err := f.svc.CloseNow(ctx, "acc-i", id); err != nil || !ok {
		t.Fatalf("CloseNow = %v, %v", ok, err)
	}
	inst, _ := f.svc.store.Get(ctx, id)
	if inst.Status != StatusClosed || inst.EndTime == nil || *inst.EndTime != f.clock.Unix() {
		t.Fatalf("closed instance = %+v", inst)
	}
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Unix()
	if _, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{ClassIDs: []string{"class-1"}, StartTime: ptr(now - 60), EndTime: ptr(now + 3600)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{ClassIDs: []string{"class-2"}, StartTime: ptr(now + 60)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if first.Opened != 1 || first.Closed != 0 || first.Published != 1 {
		t.Fatalf("first sweep = %+v", first)
	}
	second, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if second != (SweepResult{}) {
		t.Fatalf("second sweep changed rows: %+v", second)
	}

	*f.clock = f.clock.Add(2 * time.Hour)
	third, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if third.Opened != 1 || third.Closed != 1 {
		t.Fatalf("later sweep = %+v", third)
	}
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(f.svc, time.Millisecond, nil).Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestUpdate_StatusOnlyThroughOpenClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{ClassIDs: []string{"class-1"}})
	if err != nil {
		t.Fatal(err)
	}
	id := list[0].ID

	for _, st := range []string{StatusOpen, StatusClosed} {
		_, err := f.svc.Update(ctx, "acc-i", id, UpdateInput{Status: st, Attempt: 1})
		if !apperr.Is(err, http.StatusBadRequest) {
			t.Fatalf("update to %s: %v", st, err)
		}
	}
	if got := f.examStatus(t); got != content.ExamDraft {
		t.Fatalf("exam status = %s, want Draft", got)
	}

	// Echoing the current status is accepted.
	if _, err := f.svc.Update(ctx, "acc-i", id, UpdateInput{Status: StatusScheduled, Attempt: 2}); err != nil {
		t.Fatalf("update keeping status: %v", err)
	}
	if ok, err := f.svc.OpenNow(ctx, "acc-i", id); err != nil || !ok {
		t.Fatalf("OpenNow = %v, %v", ok, err)
	}
	if got := f.examStatus(t); got != content.ExamPublished {
		t.Fatalf("exam status after open = %s", got)
	}
}

func TestUpdate_KeepsAttemptWhenOmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list, err := f.svc.Create(ctx, "acc-i", f.examID, CreateInput{ClassIDs: []string{"class-1"}, Attempt: 3})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Update(ctx, "acc-i", list[0].ID, UpdateInput{IsRandomQuestion: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Attempt != 3 || !got.IsRandomQuestion {
		t.Fatalf("updated = %+v", got)
	}
	if _, err := f.svc.Update(ctx, "acc-i", list[0].ID, UpdateInput{Attempt: -1}); !apperr.Is(err, http.StatusBadRequest) {
		t.Fatalf("negative attempt: %v", err)
	}
}
