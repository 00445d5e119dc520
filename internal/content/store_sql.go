package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-training/internal/db"
)

var (
	ErrExamNotFound         = errors.New("exam not found")
	ErrSectionNotFound      = errors.New("section not found")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrExamQuestionNotFound = errors.New("exam question not found")
	ErrInstructorNotFound   = errors.New("instructor not found")
)

// SQLStore persists exam content. It trusts its caller: ownership and
// validation happen in Service.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh}
}

func (s *SQLStore) InstructorIDForAccount(ctx context.Context, accountID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM instructors WHERE account_id=$1`, accountID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInstructorNotFound
	}
	return id, err
}

// ---- exams ----

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO exams (id,instructor_id,title,description,status,type,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.InstructorID, e.Title, e.Description, e.Status, e.Type, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *SQLStore) UpdateExam(ctx context.Context, e Exam) error {
	_, err := s.db.ExecContext(ctx, `UPDATE exams SET title=$1, description=$2, status=$3, type=$4, updated_at=$5 WHERE id=$6`,
		e.Title, e.Description, e.Status, e.Type, e.UpdatedAt, e.ID)
	return err
}

func (s *SQLStore) SetExamStatus(ctx context.Context, id, status string, now int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE exams SET status=$1, updated_at=$2 WHERE id=$3`, status, now, id)
	return err
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	var e Exam
	err := s.db.QueryRowContext(ctx, `SELECT id,instructor_id,title,description,status,type,created_at,updated_at
		FROM exams WHERE id=$1`, id).
		Scan(&e.ID, &e.InstructorID, &e.Title, &e.Description, &e.Status, &e.Type, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrExamNotFound
	}
	return e, err
}

func (s *SQLStore) ListExams(ctx context.Context, instructorID string) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,instructor_id,title,description,status,type,created_at,updated_at
		FROM exams WHERE instructor_id=$1 ORDER BY created_at DESC, id`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Exam{}
	for rows.Next() {
		var e Exam
		if err := rows.Scan(&e.ID, &e.InstructorID, &e.Title, &e.Description, &e.Status, &e.Type, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- sections ----

func (s *SQLStore) CreateSection(ctx context.Context, sec Section) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO exam_sections (id,exam_id,parent_id,type,title,order_index,file_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sec.ID, sec.ExamID, nullableID(sec.ParentID), sec.Type, sec.Title, sec.OrderIndex, sec.FileURL)
	return err
}

func (s *SQLStore) UpdateSection(ctx context.Context, sec Section) error {
	_, err := s.db.ExecContext(ctx, `UPDATE exam_sections SET parent_id=$1, type=$2, title=$3, order_index=$4, file_url=$5 WHERE id=$6`,
		nullableID(sec.ParentID), sec.Type, sec.Title, sec.OrderIndex, sec.FileURL, sec.ID)
	return err
}

func (s *SQLStore) GetSection(ctx context.Context, id string) (Section, error) {
	var sec Section
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id,exam_id,parent_id,type,title,order_index,file_url FROM exam_sections WHERE id=$1`, id).
		Scan(&sec.ID, &sec.ExamID, &parent, &sec.Type, &sec.Title, &sec.OrderIndex, &sec.FileURL)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, ErrSectionNotFound
	}
	if err != nil {
		return Section{}, err
	}
	sec.ParentID = idPtr(parent)
	return sec, nil
}

func (s *SQLStore) ListSections(ctx context.Context, examID string) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,exam_id,parent_id,type,title,order_index,file_url
		FROM exam_sections WHERE exam_id=$1 ORDER BY order_index, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Section{}
	for rows.Next() {
		var sec Section
		var parent sql.NullString
		if err := rows.Scan(&sec.ID, &sec.ExamID, &parent, &sec.Type, &sec.Title, &sec.OrderIndex, &sec.FileURL); err != nil {
			return nil, err
		}
		sec.ParentID = idPtr(parent)
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountChildren(ctx context.Context, sectionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_sections WHERE parent_id=$1`, sectionID).Scan(&n)
	return n, err
}

// DeleteSection removes a section. For a top-level section it first removes
// its questions, its children's questions and its children.
func (s *SQLStore) DeleteSection(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		steps := []struct {
			what  string
			query string
		}{
			{"own questions", `DELETE FROM exam_questions WHERE section_id=$1`},
			{"child questions", `DELETE FROM exam_questions WHERE section_id IN (SELECT id FROM exam_sections WHERE parent_id=$1)`},
			{"children", `DELETE FROM exam_sections WHERE parent_id=$1`},
			{"section", `DELETE FROM exam_sections WHERE id=$1`},
		}
		for _, st := range steps {
			if _, err := tx.ExecContext(ctx, st.query, id); err != nil {
				return fmt.Errorf("delete %s: %w", st.what, err)
			}
		}
		return nil
	})
}

// ---- questions ----

func (s *SQLStore) CreateQuestion(ctx context.Context, q Question) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions
			(id,instructor_id,content,type,correct_answer,topic,level,point,status,created_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			q.ID, q.InstructorID, q.Content, q.Type, q.CorrectAnswer, q.Topic, q.Level, q.Point, q.Status, q.CreatedAt, q.UpdatedAt); err != nil {
			return err
		}
		return insertOptions(ctx, tx, q.ID, q.Options)
	})
}

// UpdateQuestion rewrites the question and replaces its option set.
func (s *SQLStore) UpdateQuestion(ctx context.Context, q Question) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE questions SET content=$1, type=$2, correct_answer=$3, topic=$4, level=$5,
			point=$6, status=$7, updated_at=$8 WHERE id=$9`,
			q.Content, q.Type, q.CorrectAnswer, q.Topic, q.Level, q.Point, q.Status, q.UpdatedAt, q.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id=$1`, q.ID); err != nil {
			return err
		}
		return insertOptions(ctx, tx, q.ID, q.Options)
	})
}

func insertOptions(ctx context.Context, tx *sql.Tx, questionID string, opts []Option) error {
	for i, o := range opts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO question_options (id,question_id,content,is_correct,order_index)
			VALUES ($1,$2,$3,$4,$5)`, o.ID, questionID, o.Content, o.IsCorrect, i); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) SetQuestionStatus(ctx context.Context, id, status string, now int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE questions SET status=$1, updated_at=$2 WHERE id=$3`, status, now, id)
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	var q Question
	err := s.db.QueryRowContext(ctx, `SELECT id,instructor_id,content,type,correct_answer,topic,level,point,status,created_at,updated_at
		FROM questions WHERE id=$1`, id).
		Scan(&q.ID, &q.InstructorID, &q.Content, &q.Type, &q.CorrectAnswer, &q.Topic, &q.Level, &q.Point, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, err
	}
	opts, err := s.optionsFor(ctx, `WHERE o.question_id=$1`, id)
	if err != nil {
		return Question{}, err
	}
	q.Options = opts[q.ID]
	return q, nil
}

type QuestionFilter struct {
	Topic  string
	Type   string
	Level  string
	Status string
}

func (s *SQLStore) ListQuestions(ctx context.Context, instructorID string, f QuestionFilter) ([]Question, error) {
	where := []string{"instructor_id=$1"}
	args := []any{instructorID}
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("topic", f.Topic)
	add("type", f.Type)
	add("level", f.Level)
	add("status", f.Status)

	rows, err := s.db.QueryContext(ctx, `SELECT id,instructor_id,content,type,correct_answer,topic,level,point,status,created_at,updated_at
		FROM questions WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	out := []Question{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.InstructorID, &q.Content, &q.Type, &q.CorrectAnswer, &q.Topic, &q.Level, &q.Point, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	opts, err := s.optionsFor(ctx, `JOIN questions q ON q.id=o.question_id WHERE q.instructor_id=$1`, instructorID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Options = opts[out[i].ID]
	}
	return out, nil
}

// optionsFor loads options grouped by question id. clause filters the
// question_options rows (aliased o).
func (s *SQLStore) optionsFor(ctx context.Context, clause string, args ...any) (map[string][]Option, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT o.id,o.question_id,o.content,o.is_correct FROM question_options o `+clause+
		` ORDER BY o.question_id, o.order_index`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]Option{}
	for rows.Next() {
		var o Option
		var qid string
		if err := rows.Scan(&o.ID, &qid, &o.Content, &o.IsCorrect); err != nil {
			return nil, err
		}
		out[qid] = append(out[qid], o)
	}
	return out, rows.Err()
}

// ---- question <-> section ----

func (s *SQLStore) AddExamQuestion(ctx context.Context, eq ExamQuestion) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO exam_questions (id,exam_id,section_id,question_id,order_index)
		VALUES ($1,$2,$3,$4,$5)`, eq.ID, eq.ExamID, eq.SectionID, eq.QuestionID, eq.OrderIndex)
	return err
}

func (s *SQLStore) NextQuestionOrder(ctx context.Context, sectionID string) (int, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(order_index) FROM exam_questions WHERE section_id=$1`, sectionID).Scan(&n); err != nil {
		return 0, err
	}
	if !n.Valid {
		return 0, nil
	}
	return int(n.Int64) + 1, nil
}

func (s *SQLStore) RemoveExamQuestion(ctx context.Context, sectionID, questionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exam_questions WHERE section_id=$1 AND question_id=$2`, sectionID, questionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) GetExamQuestion(ctx context.Context, id string) (ExamQuestion, error) {
	var eq ExamQuestion
	err := s.db.QueryRowContext(ctx, `SELECT id,exam_id,section_id,question_id,order_index FROM exam_questions WHERE id=$1`, id).
		Scan(&eq.ID, &eq.ExamID, &eq.SectionID, &eq.QuestionID, &eq.OrderIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return ExamQuestion{}, ErrExamQuestionNotFound
	}
	return eq, err
}

func (s *SQLStore) SetExamQuestionOrder(ctx context.Context, id string, order int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE exam_questions SET order_index=$1 WHERE id=$2`, order, id)
	return err
}

// ---- hierarchy ----

// Hierarchy loads every section of the exam with its directly attached
// questions (including canonical answers and options), arranged as parents
// with children. Ordering is by order index; reshuffling is the caller's job.
func (s *SQLStore) Hierarchy(ctx context.Context, examID string) ([]SectionNode, error) {
	sections, err := s.ListSections(ctx, examID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT eq.id, eq.section_id, eq.order_index,
			q.id, q.instructor_id, q.content, q.type, q.correct_answer, q.topic, q.level, q.point, q.status, q.created_at, q.updated_at
		FROM exam_questions eq
		JOIN questions q ON q.id = eq.question_id
		WHERE eq.exam_id=$1
		ORDER BY eq.section_id, eq.order_index, eq.id`, examID)
	if err != nil {
		return nil, err
	}
	bySection := map[string][]SectionQuestion{}
	for rows.Next() {
		var sq SectionQuestion
		var sectionID string
		q := &sq.Question
		if err := rows.Scan(&sq.ExamQuestionID, &sectionID, &sq.OrderIndex,
			&q.ID, &q.InstructorID, &q.Content, &q.Type, &q.CorrectAnswer, &q.Topic, &q.Level, &q.Point, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		bySection[sectionID] = append(bySection[sectionID], sq)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	opts, err := s.optionsFor(ctx, `WHERE o.question_id IN (SELECT question_id FROM exam_questions WHERE exam_id=$1)`, examID)
	if err != nil {
		return nil, err
	}
	for sid, qs := range bySection {
		for i := range qs {
			qs[i].Question.Options = opts[qs[i].Question.ID]
		}
		bySection[sid] = qs
	}
	return BuildTree(sections, bySection), nil
}

// BuildTree arranges flat sections (already ordered) into parent nodes with
// their children. Sections whose parent is missing are treated as top level.
func BuildTree(sections []Section, questions map[string][]SectionQuestion) []SectionNode {
	known := make(map[string]bool, len(sections))
	for _, sec := range sections {
		known[sec.ID] = true
	}
	children := map[string][]SectionNode{}
	var roots []Section
	for _, sec := range sections {
		if sec.ParentID != nil && known[*sec.ParentID] {
			children[*sec.ParentID] = append(children[*sec.ParentID], node(sec, questions))
			continue
		}
		roots = append(roots, sec)
	}
	out := make([]SectionNode, 0, len(roots))
	for _, sec := range roots {
		n := node(sec, questions)
		n.Children = children[sec.ID]
		out = append(out, n)
	}
	return out
}

func node(sec Section, questions map[string][]SectionQuestion) SectionNode {
	qs := questions[sec.ID]
	if qs == nil {
		qs = []SectionQuestion{}
	}
	return SectionNode{Section: sec, Questions: qs}
}

func nullableID(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return db.NullString(*p)
}

func idPtr(n sql.NullString) *string {
	if !n.Valid || n.String == "" {
		return nil
	}
	v := n.String
	return &v
}
