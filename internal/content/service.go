package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/grading"
)

type ExamInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Type        string `json:"type"`
}

type SectionInput struct {
	ParentID   *string `json:"parentId"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	OrderIndex int     `json:"orderIndex"`
	FileURL    string  `json:"fileUrl"`
}

type OptionInput struct {
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionInput struct {
	Content       string        `json:"content"`
	Type          string        `json:"type"`
	CorrectAnswer string        `json:"correctAnswer"`
	Topic         string        `json:"topic"`
	Level         string        `json:"level"`
	Point         float64       `json:"point"`
	Status        string        `json:"status"`
	Options       []OptionInput `json:"options"`
}

// Service applies ownership and validation rules on top of SQLStore.
// Every method that takes accountID resolves it to an instructor first.
type Service struct {
	store *SQLStore
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store *SQLStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, now: time.Now}
}

func (s *Service) instructorID(ctx context.Context, accountID string) (string, error) {
	id, err := s.store.InstructorIDForAccount(ctx, accountID)
	if errors.Is(err, ErrInstructorNotFound) {
		return "", apperr.NotFound("instructor not found")
	}
	if err != nil {
		return "", fmt.Errorf("resolve instructor: %w", err)
	}
	return id, nil
}

// CheckExamOwnership loads the exam and verifies instructorID owns it.
func (s *Service) CheckExamOwnership(ctx context.Context, examID, instructorID string) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if errors.Is(err, ErrExamNotFound) {
		return Exam{}, apperr.NotFound("exam not found")
	}
	if err != nil {
		return Exam{}, fmt.Errorf("load exam: %w", err)
	}
	if e.InstructorID != instructorID {
		return Exam{}, apperr.Forbidden("you do not own this exam")
	}
	return e, nil
}

// OwnedExam resolves the instructor for accountID and checks they own examID.
func (s *Service) OwnedExam(ctx context.Context, accountID, examID string) (Exam, error) {
	iid, err := s.instructorID(ctx, accountID)
	if err != nil {
		return Exam{}, err
	}
	return s.CheckExamOwnership(ctx, examID, iid)
}

// ---- exams ----

func validateExam(in *ExamInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperr.Invalid("title is required")
	}
	if in.Status == "" {
		in.Status = ExamDraft
	}
	if !examStatuses[in.Status] {
		return apperr.Invalid("invalid exam status %q", in.Status)
	}
	if !examTypes[in.Type] {
		return apperr.Invalid("invalid exam type %q", in.Type)
	}
	return nil
}

func (s *Service) CreateExam(ctx context.Context, accountID string, in ExamInput) (Exam, error) {
	iid, err := s.instructorID(ctx, accountID)
	if err != nil {
		return Exam{}, err
	}
	if err := validateExam(&in); err != nil {
		return Exam{}, err
	}
	now := s.now().Unix()
	e := Exam{
		ID:           uuid.NewString(),
		InstructorID: iid,
		Title:        in.Title,
		Description:  in.Description,
		Status:       in.Status,
		Type:         in.Type,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("create exam: %w", err)
	}
	return e, nil
}

func (s *Service) UpdateExam(ctx context.Context, accountID, examID string, in ExamInput) (Exam, error) {
	e, err := s.OwnedExam(ctx, accountID, examID)
	if err != nil {
		return Exam{}, err
	}
	if in.Status == "" {
		in.Status = e.Status
	}
	if err := validateExam(&in); err != nil {
		return Exam{}, err
	}
	e.Title, e.Description, e.Status, e.Type = in.Title, in.Description, in.Status, in.Type
	e.UpdatedAt = s.now().Unix()
	if err := s.store.UpdateExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("update exam: %w", err)
	}
	return e, nil
}

func (s *Service) setExamStatus(ctx context.Context, accountID, examID, status string) (Exam, error) {
	e, err := s.OwnedExam(ctx, accountID, examID)
	if err != nil {
		return Exam{}, err
	}
	e.Status = status
	e.UpdatedAt = s.now().Unix()
	if err := s.store.SetExamStatus(ctx, examID, status, e.UpdatedAt); err != nil {
		return Exam{}, fmt.Errorf("set exam status: %w", err)
	}
	s.log.Info("exam status changed", "exam", examID, "status", status)
	return e, nil
}

func (s *Service) ArchiveExam(ctx context.Context, accountID, examID string) (Exam, error) {
	return s.setExamStatus(ctx, accountID, examID, ExamArchived)
}

func (s *Service) UnarchiveExam(ctx context.Context, accountID, examID string) (Exam, error) {
	return s.setExamStatus(ctx, accountID, examID, ExamDraft)
}

// DeleteExam never removes rows; exams are archived instead.
func (s *Service) DeleteExam(ctx context.Context, accountID, examID string) (Exam, error) {
	return s.ArchiveExam(ctx, accountID, examID)
}

func (s *Service) ListExams(ctx context.Context, accountID string) ([]Exam, error) {
	iid, err := s.instructorID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListExams(ctx, iid)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return out, nil
}

func (s *Service) GetExam(ctx context.Context, accountID, examID string) (Exam, error) {
	return s.OwnedExam(ctx, accountID, examID)
}

// GetHierarchy returns the exam's section tree with canonical answers
// included. Callers serving learners must strip them. A nil random keeps
// the stored order.
func (s *Service) GetHierarchy(ctx context.Context, examID string, random *Shuffler) ([]SectionNode, error) {
	nodes, err := s.store.Hierarchy(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy: %w", err)
	}
	if random != nil {
		random.Apply(nodes)
	}
	return nodes, nil
}

func (s *Service) InstructorHierarchy(ctx context.Context, accountID, examID string) ([]SectionNode, error) {
	if _, err := s.OwnedExam(ctx, accountID, examID); err != nil {
		return nil, err
	}
	return s.GetHierarchy(ctx, examID, nil)
}

// ---- sections ----

func (s *Service) validateSection(ctx context.Context, examID, selfID string, in *SectionInput) error {
	if !sectionTypes[in.Type] {
		return apperr.Invalid("invalid section type %q", in.Type)
	}
	if in.ParentID != nil && *in.ParentID == "" {
		in.ParentID = nil
	}
	if in.ParentID == nil {
		return nil
	}
	if *in.ParentID == selfID {
		return apperr.Invalid("section cannot be its own parent")
	}
	parent, err := s.store.GetSection(ctx, *in.ParentID)
	if errors.Is(err, ErrSectionNotFound) {
		return apperr.NotFound("parent section not found")
	}
	if err != nil {
		return fmt.Errorf("load parent section: %w", err)
	}
	if parent.ExamID != examID {
		return apperr.Invalid("parent section belongs to another exam")
	}
	if parent.ParentID != nil {
		return apperr.Invalid("sections nest at most two levels")
	}
	if selfID != "" {
		n, err := s.store.CountChildren(ctx, selfID)
		if err != nil {
			return fmt.Errorf("count children: %w", err)
		}
		if n > 0 {
			return apperr.Invalid("a section with children cannot become a child")
		}
	}
	return nil
}

func (s *Service) CreateSection(ctx context.Context, accountID, examID string, in SectionInput) (Section, error) {
	if _, err := s.OwnedExam(ctx, accountID, examID); err != nil {
		return Section{}, err
	}
	if err := s.validateSection(ctx, examID, "", &in); err != nil {
		return Section{}, err
	}
	sec := Section{
		ID:         uuid.NewString(),
		ExamID:     examID,
		ParentID:   in.ParentID,
		Type:       in.Type,
		Title:      in.Title,
		OrderIndex: in.OrderIndex,
		FileURL:    in.FileURL,
	}
	if err := s.store.CreateSection(ctx, sec); err != nil {
		return Section{}, fmt.Errorf("create section: %w", err)
	}
	return sec, nil
}

func (s *Service) ownedSection(ctx context.Context, accountID, sectionID string) (Section, error) {
	sec, err := s.store.GetSection(ctx, sectionID)
	if errors.Is(err, ErrSectionNotFound) {
		return Section{}, apperr.NotFound("section not found")
	}
	if err != nil {
		return Section{}, fmt.Errorf("load section: %w", err)
	}
	if _, err := s.OwnedExam(ctx, accountID, sec.ExamID); err != nil {
		return Section{}, err
	}
	return sec, nil
}

func (s *Service) UpdateSection(ctx context.Context, accountID, sectionID string, in SectionInput) (Section, error) {
	sec, err := s.ownedSection(ctx, accountID, sectionID)
	if err != nil {
		return Section{}, err
	}
	if err := s.validateSection(ctx, sec.ExamID, sec.ID, &in); err != nil {
		return Section{}, err
	}
	sec.ParentID, sec.Type, sec.Title, sec.OrderIndex, sec.FileURL = in.ParentID, in.Type, in.Title, in.OrderIndex, in.FileURL
	if err := s.store.UpdateSection(ctx, sec); err != nil {
		return Section{}, fmt.Errorf("update section: %w", err)
	}
	return sec, nil
}

func (s *Service) DeleteSection(ctx context.Context, accountID, sectionID string) error {
	if _, err := s.ownedSection(ctx, accountID, sectionID); err != nil {
		return err
	}
	if err := s.store.DeleteSection(ctx, sectionID); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	s.log.Info("section deleted", "section", sectionID)
	return nil
}

// ---- questions ----

func validateQuestion(in *QuestionInput) error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return apperr.Invalid("content is required")
	}
	if !questionTypes[in.Type] {
		return apperr.Invalid("invalid question type %q", in.Type)
	}
	if !levels[in.Level] {
		return apperr.Invalid("invalid level %q", in.Level)
	}
	if in.Point < 0 || in.Point > 100 {
		return apperr.Invalid("point must be between 0 and 100")
	}
	if in.Status == "" {
		in.Status = QuestionActive
	}
	if !questionStatuses[in.Status] {
		return apperr.Invalid("invalid question status %q", in.Status)
	}

	if in.Type != grading.TypeMultipleChoice {
		in.Options = nil
	} else {
		if len(in.Options) < 2 {
			return apperr.Invalid("multiple_choice needs at least 2 options")
		}
		firstCorrect := ""
		correct := 0
		for _, o := range in.Options {
			if strings.TrimSpace(o.Content) == "" {
				return apperr.Invalid("option content is required")
			}
			if o.IsCorrect {
				if correct == 0 {
					firstCorrect = o.Content
				}
				correct++
			}
		}
		if correct == 0 {
			return apperr.Invalid("multiple_choice needs at least 1 correct option")
		}
		if strings.TrimSpace(in.CorrectAnswer) == "" {
			in.CorrectAnswer = firstCorrect
		}
	}
	if grading.IsAutoGradable(in.Type) && strings.TrimSpace(in.CorrectAnswer) == "" {
		return apperr.Invalid("correctAnswer is required for %s", in.Type)
	}
	return nil
}

func buildOptions(in []OptionInput) []Option {
	if len(in) == 0 {
		return nil
	}
	out := make([]Option, len(in))
	for i, o := range in {
		out[i] = Option{ID: uuid.NewString(), Content: o.Content, IsCorrect: o.IsCorrect}
	}
	return out
}

func (s *Service) CreateQuestion(ctx context.Context, accountID string, in QuestionInput) (Question, error) {
	iid, err := s.instructorID(ctx, accountID)
	if err != nil {
		return Question{}, err
	}
	if err := validateQuestion(&in); err != nil {
		return Question{}, err
	}
	now := s.now().Unix()
	q := Question{
		ID:            uuid.NewString(),
		InstructorID:  iid,
		Content:       in.Content,
		Type:          in.Type,
		CorrectAnswer: in.CorrectAnswer,
		Topic:         in.Topic,
		Level:         in.Level,
		Point:         in.Point,
		Status:        in.Status,
		Options:       buildOptions(in.Options),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *Service) ownedQuestion(ctx context.Context, accountID, questionID string) (Question, error) {
	iid, err := s.instructorID(ctx, accountID)
	if err != nil {
		return Question{}, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if errors.Is(err, ErrQuestionNotFound) {
		return Question{}, apperr.NotFound("question not found")
	}
	if err != nil {
		return Question{}, fmt.Errorf("load question: %w", err)
	}
	if q.InstructorID != iid {
		return Question{}, apperr.Forbidden("you do not own this question")
	}
	return q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, accountID, questionID string, in QuestionInput) (Question, error) {
	q, err := s.ownedQuestion(ctx, accountID, questionID)
	if err != nil {
		return Question{}, err
	}
	if err := validateQuestion(&in); err != nil {
		return Question{}, err
	}
	q.Content, q.Type, q.CorrectAnswer = in.Content, in.Type, in.CorrectAnswer
	q.Topic, q.Level, q.Point, q.Status = in.Topic, in.Level, in.Point, in.Status
	q.Options = buildOptions(in.Options)
	q.UpdatedAt = s.now().Unix()
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return Question{}, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// DeleteQuestion marks the question Inactive; it stays attached to any
// section it already belongs to.
func (s *Service) DeleteQuestion(ctx context.Context, accountID, questionID string) error {
	if _, err := s.ownedQuestion(ctx, accountID, questionID); err != nil {
		return err
	}
	if err := s.store.SetQuestionStatus(ctx, questionID, QuestionInactive, s.now().Unix()); err != nil {
		return fmt.Errorf("deactivate question: %w", err)
	}
	return nil
}

func (s *Service) ListQuestions(ctx context.Context, accountID string, f QuestionFilter) ([]Question, error) {
	iid, err := s.instructorID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListQuestions(ctx, iid, f)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}

// ---- question <-> section ----

// AddQuestionToSection appends the question to the section, or places it at
// order when given.
func (s *Service) AddQuestionToSection(ctx context.Context, accountID, sectionID, questionID string, order *int) (ExamQuestion, error) {
	sec, err := s.ownedSection(ctx, accountID, sectionID)
	if err != nil {
		return ExamQuestion{}, err
	}
	q, err := s.ownedQuestion(ctx, accountID, questionID)
	if err != nil {
		return ExamQuestion{}, err
	}
	if q.Status != QuestionActive {
		return ExamQuestion{}, apperr.Invalid("question is inactive")
	}
	eq := ExamQuestion{ID: uuid.NewString(), ExamID: sec.ExamID, SectionID: sec.ID, QuestionID: q.ID}
	if order != nil {
		eq.OrderIndex = *order
	} else if eq.OrderIndex, err = s.store.NextQuestionOrder(ctx, sec.ID); err != nil {
		return ExamQuestion{}, fmt.Errorf("next order: %w", err)
	}
	if err := s.store.AddExamQuestion(ctx, eq); err != nil {
		if db.IsUniqueViolation(err) {
			return ExamQuestion{}, apperr.Conflict("question already in section")
		}
		return ExamQuestion{}, fmt.Errorf("add exam question: %w", err)
	}
	return eq, nil
}

func (s *Service) RemoveQuestionFromSection(ctx context.Context, accountID, sectionID, questionID string) error {
	if _, err := s.ownedSection(ctx, accountID, sectionID); err != nil {
		return err
	}
	ok, err := s.store.RemoveExamQuestion(ctx, sectionID, questionID)
	if err != nil {
		return fmt.Errorf("remove exam question: %w", err)
	}
	if !ok {
		return apperr.NotFound("question is not in this section")
	}
	return nil
}

func (s *Service) ReorderExamQuestion(ctx context.Context, accountID, examQuestionID string, order int) (ExamQuestion, error) {
	eq, err := s.store.GetExamQuestion(ctx, examQuestionID)
	if errors.Is(err, ErrExamQuestionNotFound) {
		return ExamQuestion{}, apperr.NotFound("exam question not found")
	}
	if err != nil {
		return ExamQuestion{}, fmt.Errorf("load exam question: %w", err)
	}
	if _, err := s.OwnedExam(ctx, accountID, eq.ExamID); err != nil {
		return ExamQuestion{}, err
	}
	if err := s.store.SetExamQuestionOrder(ctx, eq.ID, order); err != nil {
		return ExamQuestion{}, fmt.Errorf("reorder: %w", err)
	}
	eq.OrderIndex = order
	return eq, nil
}
