package instance

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mind-engage/mindengage-training/internal/db"
)

const (
	StatusScheduled = "Scheduled"
	StatusOpen      = "Open"
	StatusClosed    = "Closed"
)

var ErrNotFound = errors.New("exam instance not found")

// Instance is one scheduled occurrence of an exam, bound to exactly one of
// a class or a unit. Nil times mean the window is open on that side.
type Instance struct {
	ID               string  `json:"id"`
	ExamID           string  `json:"examId"`
	ClassID          *string `json:"classId"`
	UnitID           *string `json:"unitId"`
	StartTime        *int64  `json:"startTime"`
	EndTime          *int64  `json:"endTime"`
	IsRandomQuestion bool    `json:"isRandomQuestion"`
	IsRandomAnswer   bool    `json:"isRandomAnswer"`
	Attempt          int     `json:"attempt"`
	Status           string  `json:"status"`
	CreatedAt        int64   `json:"createdAt"`
	UpdatedAt        int64   `json:"updatedAt"`
}

// Started reports whether now is at or past the start time.
func (in Instance) Started(now int64) bool {
	return in.StartTime == nil || now >= *in.StartTime
}

// Ended reports whether now is past the end time.
func (in Instance) Ended(now int64) bool {
	return in.EndTime != nil && now > *in.EndTime
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh}
}

const instanceCols = `id,exam_id,class_id,unit_id,start_time,end_time,is_random_question,is_random_answer,attempt,status,created_at,updated_at`

// Columns lists the instance columns qualified by alias, in the order Scan
// expects them.
func Columns(alias string) string {
	cols := strings.Split(instanceCols, ",")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ",")
}

// Row is satisfied by *sql.Row and *sql.Rows.
type Row interface {
	Scan(dest ...any) error
}

// Scan reads an instance from row, followed by any extra columns.
func Scan(row Row, extra ...any) (Instance, error) {
	var in Instance
	var classID, unitID sql.NullString
	var start, end sql.NullInt64
	dest := []any{&in.ID, &in.ExamID, &classID, &unitID, &start, &end,
		&in.IsRandomQuestion, &in.IsRandomAnswer, &in.Attempt, &in.Status, &in.CreatedAt, &in.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return Instance{}, err
	}
	if classID.Valid {
		in.ClassID = &classID.String
	}
	if unitID.Valid {
		in.UnitID = &unitID.String
	}
	in.StartTime, in.EndTime = db.Int64Ptr(start), db.Int64Ptr(end)
	return in, nil
}

func optString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return db.NullString(*p)
}

// CreateAll inserts every instance in one transaction after checking that
// each referenced class or unit exists.
func (s *SQLStore) CreateAll(ctx context.Context, list []Instance) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, in := range list {
			if err := targetExists(ctx, tx, in); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO exam_instances (`+instanceCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				in.ID, in.ExamID, optString(in.ClassID), optString(in.UnitID), db.NullInt64(in.StartTime), db.NullInt64(in.EndTime),
				in.IsRandomQuestion, in.IsRandomAnswer, in.Attempt, in.Status, in.CreatedAt, in.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrTargetNotFound is returned by CreateAll when a class or unit id is unknown.
type ErrTargetNotFound struct {
	Kind, ID string
}

func (e ErrTargetNotFound) Error() string { return e.Kind + " " + e.ID + " not found" }

func targetExists(ctx context.Context, q db.Queryer, in Instance) error {
	table, kind, id := "classes", "class", ""
	if in.ClassID != nil {
		id = *in.ClassID
	} else if in.UnitID != nil {
		table, kind, id = "units", "unit", *in.UnitID
	}
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTargetNotFound{Kind: kind, ID: id}
	}
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Instance, error) {
	in, err := Scan(s.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM exam_instances WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	return in, err
}

func (s *SQLStore) ListByExam(ctx context.Context, examID string) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+instanceCols+` FROM exam_instances WHERE exam_id=$1 ORDER BY created_at, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Instance{}
	for rows.Next() {
		in, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQLStore) Update(ctx context.Context, in Instance) error {
	_, err := s.db.ExecContext(ctx, `UPDATE exam_instances SET start_time=$1, end_time=$2, is_random_question=$3,
		is_random_answer=$4, attempt=$5, status=$6, updated_at=$7 WHERE id=$8`,
		db.NullInt64(in.StartTime), db.NullInt64(in.EndTime), in.IsRandomQuestion, in.IsRandomAnswer, in.Attempt, in.Status, in.UpdatedAt, in.ID)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM exam_instances WHERE id=$1`, id)
	return err
}

const promoteDraftExams = `UPDATE exams SET status='Published', updated_at=$1
	WHERE status='Draft' AND id IN (SELECT exam_id FROM exam_instances WHERE status='Open')`

// OpenNow moves a Scheduled instance to Open with start time now. It
// reports false when the instance was not Scheduled.
func (s *SQLStore) OpenNow(ctx context.Context, id string, now int64) (bool, error) {
	var opened bool
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE exam_instances SET status='Open', start_time=$1, updated_at=$1
			WHERE id=$2 AND status='Scheduled'`, now, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		opened = true
		_, err = tx.ExecContext(ctx, promoteDraftExams, now)
		return err
	})
	return opened, err
}

// CloseNow moves an Open instance to Closed with end time now.
func (s *SQLStore) CloseNow(ctx context.Context, id string, now int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE exam_instances SET status='Closed', end_time=$1, updated_at=$1
		WHERE id=$2 AND status='Open'`, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SweepResult counts rows changed by one sweep.
type SweepResult struct {
	Opened    int64 `json:"opened"`
	Closed    int64 `json:"closed"`
	Published int64 `json:"published"`
}

// Sweep applies the time-driven transitions. Rows already in their target
// state are excluded by the WHERE clauses, so repeating it changes nothing.
func (s *SQLStore) Sweep(ctx context.Context, now int64) (SweepResult, error) {
	var out SweepResult
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		steps := []struct {
			n     *int64
			query string
		}{
			{&out.Opened, `UPDATE exam_instances SET status='Open', updated_at=$1
				WHERE status='Scheduled' AND (start_time IS NULL OR start_time <= $1)
				AND (end_time IS NULL OR end_time > $1)`},
			{&out.Closed, `UPDATE exam_instances SET status='Closed', updated_at=$1
				WHERE status IN ('Scheduled','Open') AND end_time IS NOT NULL AND end_time <= $1`},
			{&out.Published, promoteDraftExams},
		}
		for _, st := range steps {
			res, err := tx.ExecContext(ctx, st.query, now)
			if err != nil {
				return err
			}
			if *st.n, err = res.RowsAffected(); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
