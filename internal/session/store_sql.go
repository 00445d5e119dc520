package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/grading"
	"github.com/mind-engage/mindengage-training/internal/instance"
)

var (
	ErrLearnerNotFound = errors.New("learner not found")
	ErrResultNotFound  = errors.New("result not found")
)

// Enrollment statuses that grant access to an instance.
const activeEnrollment = `('ACTIVE','ONGOING','Enrolled')`

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh}
}

func (s *SQLStore) LearnerIDForAccount(ctx context.Context, accountID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM learners WHERE account_id=$1`, accountID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLearnerNotFound
	}
	return id, err
}

// HasAccess reports whether the learner holds an active enrollment that the
// instance targets: the class itself, or any class of the unit's course.
func (s *SQLStore) HasAccess(ctx context.Context, learnerID string, in instance.Instance) (bool, error) {
	var n int
	var err error
	switch {
	case in.ClassID != nil:
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments
			WHERE class_id=$1 AND learner_id=$2 AND status IN `+activeEnrollment, *in.ClassID, learnerID).Scan(&n)
	case in.UnitID != nil:
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments en
			JOIN classes c ON c.id = en.class_id
			JOIN units u ON u.course_id = c.course_id
			WHERE u.id=$1 AND en.learner_id=$2 AND en.status IN `+activeEnrollment, *in.UnitID, learnerID).Scan(&n)
	}
	return n > 0, err
}

// ListAvailable returns instances of published Exam-type templates the
// learner can reach, with the exam's summary.
func (s *SQLStore) ListAvailable(ctx context.Context, learnerID string, now int64) ([]Available, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+instance.Columns("i")+`, e.title, e.description, e.type
		FROM exam_instances i
		JOIN exams e ON e.id = i.exam_id
		WHERE e.type='Exam' AND e.status='Published'
		  AND (i.status IN ('Open','Closed')
		       OR (i.status='Scheduled' AND (i.start_time IS NULL OR i.start_time <= $2)
		           AND (i.end_time IS NULL OR i.end_time >= $2)))
		  AND (i.class_id IN (SELECT class_id FROM enrollments WHERE learner_id=$1 AND status IN `+activeEnrollment+`)
		       OR i.unit_id IN (SELECT u.id FROM units u
		                        JOIN classes c ON c.course_id = u.course_id
		                        JOIN enrollments en ON en.class_id = c.id
		                        WHERE en.learner_id=$1 AND en.status IN `+activeEnrollment+`))
		ORDER BY i.start_time, i.id`, learnerID, now)
	if err != nil {
		return nil, err
	}
	out := []Available{}
	for rows.Next() {
		var a Available
		in, err := instance.Scan(rows, &a.Exam.Title, &a.Exam.Description, &a.Exam.Type)
		if err != nil {
			rows.Close()
			return nil, err
		}
		a.Instance = in
		a.Exam.ID = in.ExamID
		out = append(out, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	used, err := s.attemptsByExam(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	drafts, err := s.examsWithDrafts(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].UsedAttempt = used[out[i].Exam.ID]
		out[i].RemainingAttempt = remaining(out[i].Instance.Attempt, out[i].UsedAttempt)
		out[i].HasDraft = drafts[out[i].Exam.ID]
	}
	return out, nil
}

func (s *SQLStore) attemptsByExam(ctx context.Context, learnerID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exam_id, COUNT(*) FROM exam_results WHERE learner_id=$1 GROUP BY exam_id`, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *SQLStore) examsWithDrafts(ctx context.Context, learnerID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT eq.exam_id FROM exam_answers a
		JOIN exam_questions eq ON eq.id = a.exam_question_id
		WHERE a.learner_id=$1`, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// CountAttempts is the number of results the learner has for the exam.
func (s *SQLStore) CountAttempts(ctx context.Context, q db.Queryer, learnerID, examID string) (int, error) {
	if q == nil {
		q = s.db
	}
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_results WHERE learner_id=$1 AND exam_id=$2`, learnerID, examID).Scan(&n)
	return n, err
}

// ExamQuestionIDs returns the set of exam question ids that belong to the exam.
func (s *SQLStore) ExamQuestionIDs(ctx context.Context, q db.Queryer, examID string) (map[string]bool, error) {
	if q == nil {
		q = s.db
	}
	rows, err := q.QueryContext(ctx, `SELECT id FROM exam_questions WHERE exam_id=$1`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// SaveAnswers upserts each answer; the last write wins.
func (s *SQLStore) SaveAnswers(ctx context.Context, q db.Queryer, learnerID string, answers []AnswerInput, now int64) error {
	if q == nil {
		q = s.db
	}
	for _, a := range answers {
		if _, err := q.ExecContext(ctx, `INSERT INTO exam_answers (learner_id, exam_question_id, answer, updated_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (learner_id, exam_question_id) DO UPDATE SET answer=excluded.answer, updated_at=excluded.updated_at`,
			learnerID, a.ExamQuestionID, a.Answer, now); err != nil {
			return err
		}
	}
	return nil
}

// DraftAnswers maps exam question id to the learner's saved answer.
func (s *SQLStore) DraftAnswers(ctx context.Context, learnerID, examID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a.exam_question_id, a.answer FROM exam_answers a
		JOIN exam_questions eq ON eq.id = a.exam_question_id
		WHERE a.learner_id=$1 AND eq.exam_id=$2`, learnerID, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var id, ans string
		if err := rows.Scan(&id, &ans); err != nil {
			return nil, err
		}
		out[id] = ans
	}
	return out, rows.Err()
}

// Seed returns the learner's ordering seed for the instance, storing
// candidate when none exists yet. Concurrent first fetches agree on one seed.
func (s *SQLStore) Seed(ctx context.Context, learnerID, instanceID string, candidate, now int64) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO exam_instance_seeds (learner_id, instance_id, seed, created_at)
		VALUES ($1,$2,$3,$4) ON CONFLICT (learner_id, instance_id) DO NOTHING`, learnerID, instanceID, candidate, now); err != nil {
		return 0, err
	}
	var seed int64
	err := s.db.QueryRowContext(ctx, `SELECT seed FROM exam_instance_seeds WHERE learner_id=$1 AND instance_id=$2`,
		learnerID, instanceID).Scan(&seed)
	return seed, err
}

// ClearDraft removes the learner's saved answers for the exam and their
// ordering seed for the instance. Results and submissions are kept.
func (s *SQLStore) ClearDraft(ctx context.Context, q db.Queryer, learnerID, examID, instanceID string) error {
	if err := s.ClearAnswers(ctx, q, learnerID, examID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `DELETE FROM exam_instance_seeds WHERE learner_id=$1 AND instance_id=$2`, learnerID, instanceID)
	return err
}

// ClearAnswers drops the learner's saved answers for an exam.
func (s *SQLStore) ClearAnswers(ctx context.Context, q db.Queryer, learnerID, examID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM exam_answers WHERE learner_id=$1
		AND exam_question_id IN (SELECT id FROM exam_questions WHERE exam_id=$2)`, learnerID, examID)
	return err
}

// GradingItems joins every question of the exam with the learner's saved
// answer (empty when unanswered), in section and order-index order.
func (s *SQLStore) GradingItems(ctx context.Context, q db.Queryer, learnerID, examID string) ([]grading.Item, error) {
	rows, err := q.QueryContext(ctx, `SELECT eq.id, qu.type, qu.point, qu.correct_answer, COALESCE(a.answer, '')
		FROM exam_questions eq
		JOIN questions qu ON qu.id = eq.question_id
		LEFT JOIN exam_answers a ON a.exam_question_id = eq.id AND a.learner_id=$1
		WHERE eq.exam_id=$2
		ORDER BY eq.section_id, eq.order_index, eq.id`, learnerID, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []grading.Item
	for rows.Next() {
		var it grading.Item
		if err := rows.Scan(&it.ExamQuestionID, &it.Q.Type, &it.Q.Points, &it.Q.AnswerKey, &it.Response); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// InsertAttempt writes the submission, its graded answers, its assets and
// the result row. A duplicate attempt number surfaces as a unique violation.
func (s *SQLStore) InsertAttempt(ctx context.Context, q db.Queryer, sub Submission, items []grading.ItemResult, res Result) error {
	content := ""
	if len(sub.Content) > 0 {
		content = string(sub.Content)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO submissions
		(id, learner_id, exam_id, instance_id, status, score, feedback, content, duration_sec, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sub.ID, sub.LearnerID, sub.ExamID, sub.InstanceID, sub.Status, sub.Score, sub.Feedback, content, sub.DurationSec, sub.SubmittedAt); err != nil {
		return err
	}
	for _, it := range items {
		var correct sql.NullBool
		if it.Correct != nil {
			correct = sql.NullBool{Bool: *it.Correct, Valid: true}
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO submission_answers
			(submission_id, exam_question_id, answer, is_correct, earned_point, needs_manual)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			sub.ID, it.ExamQuestionID, it.Response, correct, it.AutoPoints, it.NeedsManual); err != nil {
			return err
		}
	}
	for _, a := range sub.Assets {
		if _, err := q.ExecContext(ctx, `INSERT INTO submission_assets (id, submission_id, kind, file_url) VALUES ($1,$2,$3,$4)`,
			a.ID, sub.ID, a.Kind, a.FileURL); err != nil {
			return err
		}
	}
	_, err := q.ExecContext(ctx, `INSERT INTO exam_results
		(id, learner_id, exam_id, instance_id, submission_id, attempt_no, score, total_score, max_score, status, feedback, graded_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		res.ID, res.LearnerID, res.ExamID, res.InstanceID, res.SubmissionID, res.AttemptNo, res.Score, res.TotalScore, res.MaxScore,
		res.Status, res.Feedback, res.GradedBy, res.CreatedAt, res.UpdatedAt)
	return err
}

const resultCols = `r.id, r.learner_id, r.exam_id, r.instance_id, r.submission_id, r.attempt_no, r.score, r.total_score,
	r.max_score, r.status, r.feedback, r.graded_by, r.created_at, r.updated_at`

func scanResult(row instance.Row, extra ...any) (Result, error) {
	var r Result
	dest := []any{&r.ID, &r.LearnerID, &r.ExamID, &r.InstanceID, &r.SubmissionID, &r.AttemptNo, &r.Score, &r.TotalScore,
		&r.MaxScore, &r.Status, &r.Feedback, &r.GradedBy, &r.CreatedAt, &r.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return r, err
}

// LatestResult returns the learner's highest-numbered attempt on the exam.
func (s *SQLStore) LatestResult(ctx context.Context, learnerID, examID string) (Result, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, `SELECT `+resultCols+` FROM exam_results r
		WHERE r.learner_id=$1 AND r.exam_id=$2 ORDER BY r.attempt_no DESC LIMIT 1`, learnerID, examID))
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrResultNotFound
	}
	return r, err
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (Result, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, `SELECT `+resultCols+` FROM exam_results r WHERE r.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrResultNotFound
	}
	return r, err
}

func (s *SQLStore) History(ctx context.Context, learnerID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultCols+`, e.title FROM exam_results r
		JOIN exams e ON e.id = r.exam_id
		WHERE r.learner_id=$1 ORDER BY r.created_at DESC, r.attempt_no DESC`, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		r, err := scanResult(rows, &h.ExamTitle)
		if err != nil {
			return nil, err
		}
		h.Result = r
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLStore) ResultsForExam(ctx context.Context, examID string) ([]ExamResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultCols+`, l.full_name FROM exam_results r
		JOIN learners l ON l.id = r.learner_id
		WHERE r.exam_id=$1 ORDER BY l.full_name, r.attempt_no`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ExamResultRow{}
	for rows.Next() {
		var row ExamResultRow
		r, err := scanResult(rows, &row.LearnerName)
		if err != nil {
			return nil, err
		}
		row.Result = r
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	var sub Submission
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT id, learner_id, exam_id, instance_id, status, score, feedback, content, duration_sec, submitted_at
		FROM submissions WHERE id=$1`, id).
		Scan(&sub.ID, &sub.LearnerID, &sub.ExamID, &sub.InstanceID, &sub.Status, &sub.Score, &sub.Feedback, &content, &sub.DurationSec, &sub.SubmittedAt)
	if err != nil {
		return Submission{}, err
	}
	if content != "" {
		sub.Content = json.RawMessage(content)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, file_url FROM submission_assets WHERE submission_id=$1 ORDER BY id`, id)
	if err != nil {
		return Submission{}, err
	}
	defer rows.Close()
	sub.Assets = []Asset{}
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.Kind, &a.FileURL); err != nil {
			return Submission{}, err
		}
		sub.Assets = append(sub.Assets, a)
	}
	return sub, rows.Err()
}

func (s *SQLStore) SubmittedAnswers(ctx context.Context, submissionID string) (map[string]submittedAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exam_question_id, answer, is_correct, earned_point, needs_manual
		FROM submission_answers WHERE submission_id=$1`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]submittedAnswer{}
	for rows.Next() {
		var id string
		var a submittedAnswer
		var correct sql.NullBool
		if err := rows.Scan(&id, &a.Answer, &correct, &a.EarnedPoint, &a.NeedsManual); err != nil {
			return nil, err
		}
		if correct.Valid {
			v := correct.Bool
			a.IsCorrect = &v
		}
		out[id] = a
	}
	return out, rows.Err()
}

// GradeResult overwrites the result's score and feedback and mirrors the
// score onto its submission.
func (s *SQLStore) GradeResult(ctx context.Context, q db.Queryer, r Result) error {
	if _, err := q.ExecContext(ctx, `UPDATE exam_results SET score=$1, total_score=$2, feedback=$3, status=$4, graded_by=$5, updated_at=$6
		WHERE id=$7`, r.Score, r.TotalScore, r.Feedback, r.Status, r.GradedBy, r.UpdatedAt, r.ID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `UPDATE submissions SET score=$1, feedback=$2 WHERE id=$3`, r.Score, r.Feedback, r.SubmissionID)
	return err
}

func remaining(quota, used int) int {
	if used >= quota {
		return 0
	}
	return quota - used
}
