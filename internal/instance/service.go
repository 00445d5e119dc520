package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/content"
)

// CreateInput targets either units or classes; one instance is created per id.
type CreateInput struct {
	UnitIDs          []string `json:"unitIds"`
	ClassIDs         []string `json:"classIds"`
	StartTime        *int64   `json:"startTime"`
	EndTime          *int64   `json:"endTime"`
	IsRandomQuestion bool     `json:"isRandomQuestion"`
	IsRandomAnswer   bool     `json:"isRandomAnswer"`
	Attempt          int      `json:"attempt"`
}

// UpdateInput replaces the window and options. Attempt 0 keeps the stored
// quota; Status, when set, must equal the current status.
type UpdateInput struct {
	StartTime        *int64 `json:"startTime"`
	EndTime          *int64 `json:"endTime"`
	IsRandomQuestion bool   `json:"isRandomQuestion"`
	IsRandomAnswer   bool   `json:"isRandomAnswer"`
	Attempt          int    `json:"attempt"`
	Status           string `json:"status"`
}

// ExamOwner is the slice of the content service the instance manager needs.
type ExamOwner interface {
	OwnedExam(ctx context.Context, accountID, examID string) (content.Exam, error)
}

type Service struct {
	store *SQLStore
	exams ExamOwner
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store *SQLStore, exams ExamOwner, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, exams: exams, log: log, now: time.Now}
}

func validateWindow(start, end *int64, attempt *int) error {
	if *attempt == 0 {
		*attempt = 1
	}
	if *attempt < 1 {
		return apperr.Invalid("attempt must be at least 1")
	}
	if start != nil && end != nil && *start >= *end {
		return apperr.Invalid("startTime must be before endTime")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, accountID, examID string, in CreateInput) ([]Instance, error) {
	exam, err := s.exams.OwnedExam(ctx, accountID, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == content.ExamArchived {
		return nil, apperr.Invalid("exam is archived")
	}
	if (len(in.UnitIDs) == 0) == (len(in.ClassIDs) == 0) {
		return nil, apperr.Invalid("provide either unitIds or classIds, not both")
	}
	if err := validateWindow(in.StartTime, in.EndTime, &in.Attempt); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	base := Instance{
		ExamID:           examID,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		IsRandomQuestion: in.IsRandomQuestion,
		IsRandomAnswer:   in.IsRandomAnswer,
		Attempt:          in.Attempt,
		Status:           StatusScheduled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var list []Instance
	for _, id := range in.ClassIDs {
		inst := base
		inst.ID = uuid.NewString()
		inst.ClassID = &id
		list = append(list, inst)
	}
	for _, id := range in.UnitIDs {
		inst := base
		inst.ID = uuid.NewString()
		inst.UnitID = &id
		list = append(list, inst)
	}
	if err := s.store.CreateAll(ctx, list); err != nil {
		var nf ErrTargetNotFound
		if errors.As(err, &nf) {
			return nil, apperr.NotFound("%s", nf.Error())
		}
		return nil, fmt.Errorf("create instances: %w", err)
	}
	s.log.Info("exam instances created", "exam", examID, "count", len(list))
	return list, nil
}

func (s *Service) owned(ctx context.Context, accountID, id string) (Instance, error) {
	inst, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Instance{}, apperr.NotFound("exam instance not found")
	}
	if err != nil {
		return Instance{}, fmt.Errorf("load instance: %w", err)
	}
	if _, err := s.exams.OwnedExam(ctx, accountID, inst.ExamID); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

func (s *Service) Update(ctx context.Context, accountID, id string, in UpdateInput) (Instance, error) {
	inst, err := s.owned(ctx, accountID, id)
	if err != nil {
		return Instance{}, err
	}
	// Status changes only through OpenNow, CloseNow and Sweep.
	if in.Status != "" && in.Status != inst.Status {
		return Instance{}, apperr.Invalid("status cannot be changed here; use open-now or close-now")
	}
	if in.Attempt == 0 {
		in.Attempt = inst.Attempt
	}
	if err := validateWindow(in.StartTime, in.EndTime, &in.Attempt); err != nil {
		return Instance{}, err
	}
	inst.StartTime, inst.EndTime = in.StartTime, in.EndTime
	inst.IsRandomQuestion, inst.IsRandomAnswer = in.IsRandomQuestion, in.IsRandomAnswer
	inst.Attempt = in.Attempt
	inst.UpdatedAt = s.now().Unix()
	if err := s.store.Update(ctx, inst); err != nil {
		return Instance{}, fmt.Errorf("update instance: %w", err)
	}
	return inst, nil
}

func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	if _, err := s.owned(ctx, accountID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, accountID, examID string) ([]Instance, error) {
	if _, err := s.exams.OwnedExam(ctx, accountID, examID); err != nil {
		return nil, err
	}
	out, err := s.store.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

// OpenNow reports false, without error, when the instance is not Scheduled.
func (s *Service) OpenNow(ctx context.Context, accountID, id string) (bool, error) {
	if _, err := s.owned(ctx, accountID, id); err != nil {
		return false, err
	}
	ok, err := s.store.OpenNow(ctx, id, s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("open instance: %w", err)
	}
	if ok {
		s.log.Info("exam instance opened", "instance", id)
	}
	return ok, nil
}

// CloseNow reports false, without error, when the instance is not Open.
func (s *Service) CloseNow(ctx context.Context, accountID, id string) (bool, error) {
	if _, err := s.owned(ctx, accountID, id); err != nil {
		return false, err
	}
	ok, err := s.store.CloseNow(ctx, id, s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("close instance: %w", err)
	}
	if ok {
		s.log.Info("exam instance closed", "instance", id)
	}
	return ok, nil
}

func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	res, err := s.store.Sweep(ctx, s.now().Unix())
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep instances: %w", err)
	}
	return res, nil
}
