package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/content"
	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/eventlog"
	"github.com/mind-engage/mindengage-training/internal/grading"
	"github.com/mind-engage/mindengage-training/internal/instance"
	"github.com/mind-engage/mindengage-training/internal/storage"
)

// ExamOwner checks an instructor's ownership of an exam.
type ExamOwner interface {
	OwnedExam(ctx context.Context, accountID, examID string) (content.Exam, error)
}

type Service struct {
	db        *sql.DB
	store     *SQLStore
	content   *content.SQLStore
	instances *instance.SQLStore
	owner     ExamOwner
	grader    grading.Grader
	events    *eventlog.Repo
	log       *slog.Logger
	now       func() time.Time
	newSeed   func() int64
}

type Deps struct {
	DB        *sql.DB
	Content   *content.SQLStore
	Instances *instance.SQLStore
	Owner     ExamOwner
	Grader    grading.Grader
	Events    *eventlog.Repo
	Log       *slog.Logger
}

func NewService(d Deps) *Service {
	if d.Grader == nil {
		d.Grader = grading.NewDefaultGrader()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Events == nil {
		d.Events = eventlog.NewRepo(d.DB, "")
	}
	return &Service{
		db:        d.DB,
		store:     NewSQLStore(d.DB),
		content:   d.Content,
		instances: d.Instances,
		owner:     d.Owner,
		grader:    d.Grader,
		events:    d.Events,
		log:       d.Log,
		now:       time.Now,
		newSeed:   rand.Int63,
	}
}

func (s *Service) learnerID(ctx context.Context, accountID string) (string, error) {
	id, err := s.store.LearnerIDForAccount(ctx, accountID)
	if errors.Is(err, ErrLearnerNotFound) {
		return "", apperr.NotFound("learner not found")
	}
	if err != nil {
		return "", fmt.Errorf("resolve learner: %w", err)
	}
	return id, nil
}

func (s *Service) loadInstance(ctx context.Context, instanceID string) (instance.Instance, content.Exam, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if errors.Is(err, instance.ErrNotFound) {
		return instance.Instance{}, content.Exam{}, apperr.NotFound("exam instance not found")
	}
	if err != nil {
		return instance.Instance{}, content.Exam{}, fmt.Errorf("load instance: %w", err)
	}
	exam, err := s.content.GetExam(ctx, inst.ExamID)
	if errors.Is(err, content.ErrExamNotFound) {
		return instance.Instance{}, content.Exam{}, apperr.NotFound("exam not found")
	}
	if err != nil {
		return instance.Instance{}, content.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	return inst, exam, nil
}

func (s *Service) checkEnrolled(ctx context.Context, learnerID string, inst instance.Instance) error {
	ok, err := s.store.HasAccess(ctx, learnerID, inst)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return apperr.Forbidden("you are not enrolled in a class for this exam")
	}
	return nil
}

// access resolves the learner and instance and checks that the exam is
// published and the learner enrolled. Each failure has its own error.
func (s *Service) access(ctx context.Context, accountID, instanceID string) (string, instance.Instance, content.Exam, error) {
	lid, err := s.learnerID(ctx, accountID)
	if err != nil {
		return "", instance.Instance{}, content.Exam{}, err
	}
	inst, exam, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return "", instance.Instance{}, content.Exam{}, err
	}
	if exam.Status != content.ExamPublished {
		return "", instance.Instance{}, content.Exam{}, apperr.Invalid("exam is not published")
	}
	if err := s.checkEnrolled(ctx, lid, inst); err != nil {
		return "", instance.Instance{}, content.Exam{}, err
	}
	return lid, inst, exam, nil
}

// LearnerID resolves an account to its learner id.
func (s *Service) LearnerID(ctx context.Context, accountID string) (string, error) {
	return s.learnerID(ctx, accountID)
}

// CheckAccess runs the same checks as fetching the exam and returns the
// learner id. Attachment uploads use it before storing anything.
func (s *Service) CheckAccess(ctx context.Context, accountID, instanceID string) (string, error) {
	lid, _, _, err := s.access(ctx, accountID, instanceID)
	return lid, err
}

// OwnsInstance checks that the account is the instructor who owns the
// exam the instance belongs to.
func (s *Service) OwnsInstance(ctx context.Context, accountID, instanceID string) error {
	inst, err := s.instances.Get(ctx, instanceID)
	if errors.Is(err, instance.ErrNotFound) {
		return apperr.NotFound("exam instance not found")
	}
	if err != nil {
		return fmt.Errorf("load instance: %w", err)
	}
	_, err = s.owner.OwnedExam(ctx, accountID, inst.ExamID)
	return err
}

func summary(e content.Exam) ExamSummary {
	return ExamSummary{ID: e.ID, Title: e.Title, Description: e.Description, Type: e.Type}
}

func (s *Service) ListAvailable(ctx context.Context, accountID string) ([]Available, error) {
	lid, err := s.learnerID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListAvailable(ctx, lid, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	return out, nil
}

// GetExamToDo serves the exam tree for answering: canonical answers are
// stripped and saved drafts merged in. Randomized instances are ordered by
// the learner's persisted seed.
func (s *Service) GetExamToDo(ctx context.Context, accountID, instanceID string) (ExamToDo, error) {
	lid, inst, exam, err := s.access(ctx, accountID, instanceID)
	if err != nil {
		return ExamToDo{}, err
	}
	now := s.now().Unix()
	switch {
	case !inst.Started(now):
		return ExamToDo{}, apperr.Invalid("exam has not started yet")
	case inst.Ended(now):
		return ExamToDo{}, apperr.Invalid("exam has ended")
	case inst.Status == instance.StatusClosed:
		return ExamToDo{}, apperr.Invalid("exam instance is closed")
	}

	var random *content.Shuffler
	if inst.IsRandomQuestion || inst.IsRandomAnswer {
		seed, err := s.store.Seed(ctx, lid, inst.ID, s.newSeed(), now)
		if err != nil {
			return ExamToDo{}, fmt.Errorf("load seed: %w", err)
		}
		random = &content.Shuffler{Seed: seed, Questions: inst.IsRandomQuestion, Options: inst.IsRandomAnswer}
	}
	nodes, err := s.content.Hierarchy(ctx, exam.ID)
	if err != nil {
		return ExamToDo{}, fmt.Errorf("load hierarchy: %w", err)
	}
	if random != nil {
		random.Apply(nodes)
	}
	drafts, err := s.store.DraftAnswers(ctx, lid, exam.ID)
	if err != nil {
		return ExamToDo{}, fmt.Errorf("load drafts: %w", err)
	}
	used, err := s.store.CountAttempts(ctx, nil, lid, exam.ID)
	if err != nil {
		return ExamToDo{}, fmt.Errorf("count attempts: %w", err)
	}
	return ExamToDo{
		Instance:         inst,
		Exam:             summary(exam),
		UsedAttempt:      used,
		RemainingAttempt: remaining(inst.Attempt, used),
		Sections:         learnerSections(nodes, drafts),
	}, nil
}

func learnerSections(nodes []content.SectionNode, drafts map[string]string) []LearnerSection {
	out := make([]LearnerSection, 0, len(nodes))
	for _, n := range nodes {
		ls := LearnerSection{
			ID: n.ID, ParentID: n.ParentID, Type: n.Type, Title: n.Title, OrderIndex: n.OrderIndex, FileURL: n.FileURL,
			Questions: make([]LearnerQuestion, 0, len(n.Questions)),
		}
		for _, sq := range n.Questions {
			lq := LearnerQuestion{
				ExamQuestionID: sq.ExamQuestionID,
				QuestionID:     sq.Question.ID,
				Content:        sq.Question.Content,
				Type:           sq.Question.Type,
				Point:          sq.Question.Point,
			}
			for _, o := range sq.Question.Options {
				lq.Options = append(lq.Options, LearnerOption{ID: o.ID, Content: o.Content})
			}
			if a, ok := drafts[sq.ExamQuestionID]; ok {
				lq.LearnerAnswer = &a
			}
			ls.Questions = append(ls.Questions, lq)
		}
		if len(n.Children) > 0 {
			ls.Children = learnerSections(n.Children, drafts)
		}
		out = append(out, ls)
	}
	return out
}

func (s *Service) validateAnswers(ctx context.Context, q db.Queryer, examID string, answers []AnswerInput) error {
	if len(answers) == 0 {
		return nil
	}
	ids, err := s.store.ExamQuestionIDs(ctx, q, examID)
	if err != nil {
		return fmt.Errorf("load exam questions: %w", err)
	}
	for _, a := range answers {
		if !ids[a.ExamQuestionID] {
			return apperr.Invalid("examQuestionId %q is not part of this exam", a.ExamQuestionID)
		}
	}
	return nil
}

// SaveAnswers upserts draft answers. Only access is checked, not the time
// window.
func (s *Service) SaveAnswers(ctx context.Context, accountID, instanceID string, answers []AnswerInput) (int, error) {
	lid, _, exam, err := s.access(ctx, accountID, instanceID)
	if err != nil {
		return 0, err
	}
	if err := s.validateAnswers(ctx, nil, exam.ID, answers); err != nil {
		return 0, err
	}
	if err := s.store.SaveAnswers(ctx, nil, lid, answers, s.now().Unix()); err != nil {
		return 0, fmt.Errorf("save answers: %w", err)
	}
	return len(answers), nil
}

// Submit grades the learner's answers and records a new attempt. The quota
// check and the insert share one transaction, and the attempt number is
// unique per learner and exam, so a concurrent double submit fails with
// Conflict instead of exceeding the quota.
func (s *Service) Submit(ctx context.Context, accountID, instanceID string, in SubmitInput) (SubmitResult, error) {
	lid, inst, exam, err := s.access(ctx, accountID, instanceID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.now().Unix()
	if !inst.Started(now) {
		return SubmitResult{}, apperr.Invalid("exam has not started yet")
	}
	late := inst.Ended(now)
	for _, a := range in.Assets {
		if strings.TrimSpace(a.Kind) == "" || strings.TrimSpace(a.FileURL) == "" {
			return SubmitResult{}, apperr.Invalid("assets need kind and fileUrl")
		}
		_, aInst, aLearner, err := storage.ParseSubmissionAsset(strings.TrimSpace(a.FileURL))
		if err != nil || aInst != inst.ID || aLearner != lid {
			return SubmitResult{}, apperr.Invalid("asset %q was not uploaded for this exam", a.FileURL)
		}
	}
	if in.DurationSec < 0 {
		return SubmitResult{}, apperr.Invalid("durationSec must not be negative")
	}

	var out SubmitResult
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		used, err := s.store.CountAttempts(ctx, tx, lid, exam.ID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if used >= inst.Attempt {
			return apperr.Invalid("no attempts remaining (%d of %d used)", used, inst.Attempt)
		}
		if err := s.validateAnswers(ctx, tx, exam.ID, in.Answers); err != nil {
			return err
		}
		if err := s.store.SaveAnswers(ctx, tx, lid, in.Answers, now); err != nil {
			return fmt.Errorf("save answers: %w", err)
		}
		items, err := s.store.GradingItems(ctx, tx, lid, exam.ID)
		if err != nil {
			return fmt.Errorf("load answers: %w", err)
		}
		sum, err := grading.Score(ctx, s.grader, items)
		if err != nil {
			return err
		}

		status := SubmissionSubmitted
		if late {
			status = SubmissionLate
		}
		resultStatus := ResultGraded
		if sum.ManualGradeCount > 0 {
			resultStatus = ResultPendingManual
		}
		feedback := submissionFeedback(late, sum.ManualGradeCount)
		sub := Submission{
			ID:          uuid.NewString(),
			LearnerID:   lid,
			ExamID:      exam.ID,
			InstanceID:  inst.ID,
			Status:      status,
			Score:       sum.Percent,
			Feedback:    feedback,
			Content:     in.Content,
			DurationSec: in.DurationSec,
			SubmittedAt: now,
		}
		for _, a := range in.Assets {
			sub.Assets = append(sub.Assets, Asset{ID: uuid.NewString(), Kind: a.Kind, FileURL: a.FileURL})
		}
		res := Result{
			ID:           uuid.NewString(),
			LearnerID:    lid,
			ExamID:       exam.ID,
			InstanceID:   inst.ID,
			SubmissionID: sub.ID,
			AttemptNo:    used + 1,
			Score:        sum.Percent,
			TotalScore:   sum.TotalScore,
			MaxScore:     sum.MaxScore,
			Status:       resultStatus,
			Feedback:     feedback,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.InsertAttempt(ctx, tx, sub, sum.Items, res); err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("another submission for this exam is in progress")
			}
			return fmt.Errorf("insert attempt: %w", err)
		}
		// The attempt holds the graded answers now.
		if err := s.store.ClearAnswers(ctx, tx, lid, exam.ID); err != nil {
			return fmt.Errorf("clear answers: %w", err)
		}
		if err := s.events.Append(ctx, tx, eventlog.TypeExamSubmitted, eventlog.Key(lid, exam.ID), map[string]any{
			"instanceId": inst.ID, "submissionId": sub.ID, "attemptNo": res.AttemptNo, "score": sum.Score, "isLate": late,
		}); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		out = SubmitResult{
			SubmissionID:     sub.ID,
			ResultID:         res.ID,
			AttemptNo:        res.AttemptNo,
			Status:           status,
			Score:            sum.Score,
			MaxScore:         sum.MaxScore,
			TotalScore:       sum.TotalScore,
			AutoGradedCount:  sum.AutoGradedCount,
			ManualGradeCount: sum.ManualGradeCount,
			IsLate:           late,
			Message:          completionMessage(sum.ManualGradeCount),
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	s.log.Info("exam submitted", "learner", lid, "exam", exam.ID, "attempt", out.AttemptNo, "score", out.Score, "late", late)
	return out, nil
}

func submissionFeedback(late bool, manual int) string {
	var notes []string
	if late {
		notes = append(notes, "Submitted after the end time.")
	}
	if manual > 0 {
		notes = append(notes, fmt.Sprintf("%d question(s) awaiting manual grading.", manual))
	}
	return strings.Join(notes, " ")
}

func completionMessage(manual int) string {
	if manual > 0 {
		return "Exam submitted. Some answers need manual grading; your final score will be updated after review."
	}
	return "Exam submitted and graded."
}

func (s *Service) GetResult(ctx context.Context, accountID, instanceID string) (ResultView, error) {
	lid, inst, exam, err := s.access(ctx, accountID, instanceID)
	if err != nil {
		return ResultView{}, err
	}
	res, err := s.store.LatestResult(ctx, lid, exam.ID)
	if errors.Is(err, ErrResultNotFound) {
		return ResultView{}, apperr.NotFound("no result for this exam yet")
	}
	if err != nil {
		return ResultView{}, fmt.Errorf("load result: %w", err)
	}
	sub, err := s.store.GetSubmission(ctx, res.SubmissionID)
	if err != nil {
		return ResultView{}, fmt.Errorf("load submission: %w", err)
	}
	used, err := s.store.CountAttempts(ctx, nil, lid, exam.ID)
	if err != nil {
		return ResultView{}, fmt.Errorf("count attempts: %w", err)
	}
	return ResultView{Result: res, Submission: sub, UsedAttempt: used, RemainingAttempt: remaining(inst.Attempt, used)}, nil
}

func (s *Service) GetHistory(ctx context.Context, accountID string) ([]HistoryEntry, error) {
	lid, err := s.learnerID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.History(ctx, lid)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

// Review rebuilds the exam tree from the latest submission, annotated with
// correctness and canonical answers. It is the only learner view that
// exposes them, and only once a result exists.
func (s *Service) Review(ctx context.Context, accountID, instanceID string) (Review, error) {
	lid, _, exam, err := s.access(ctx, accountID, instanceID)
	if err != nil {
		return Review{}, err
	}
	res, err := s.store.LatestResult(ctx, lid, exam.ID)
	if errors.Is(err, ErrResultNotFound) {
		return Review{}, apperr.NotFound("no result for this exam yet")
	}
	if err != nil {
		return Review{}, fmt.Errorf("load result: %w", err)
	}
	answers, err := s.store.SubmittedAnswers(ctx, res.SubmissionID)
	if err != nil {
		return Review{}, fmt.Errorf("load submitted answers: %w", err)
	}
	nodes, err := s.content.Hierarchy(ctx, exam.ID)
	if err != nil {
		return Review{}, fmt.Errorf("load hierarchy: %w", err)
	}
	return Review{Result: res, Sections: reviewSections(nodes, answers)}, nil
}

func reviewSections(nodes []content.SectionNode, answers map[string]submittedAnswer) []ReviewSection {
	out := make([]ReviewSection, 0, len(nodes))
	for _, n := range nodes {
		rs := ReviewSection{
			ID: n.ID, ParentID: n.ParentID, Type: n.Type, Title: n.Title, OrderIndex: n.OrderIndex, FileURL: n.FileURL,
			Questions: make([]ReviewQuestion, 0, len(n.Questions)),
		}
		for _, sq := range n.Questions {
			q := sq.Question
			rq := ReviewQuestion{
				ExamQuestionID: sq.ExamQuestionID,
				QuestionID:     q.ID,
				Content:        q.Content,
				Type:           q.Type,
				Point:          q.Point,
				CorrectAnswer:  q.CorrectAnswer,
			}
			for _, o := range q.Options {
				rq.Options = append(rq.Options, ReviewOption{ID: o.ID, Content: o.Content, IsCorrect: o.IsCorrect})
			}
			if a, ok := answers[sq.ExamQuestionID]; ok {
				rq.LearnerAnswer, rq.IsCorrect, rq.EarnedPoint, rq.NeedsManual = a.Answer, a.IsCorrect, a.EarnedPoint, a.NeedsManual
			}
			rs.Questions = append(rs.Questions, rq)
		}
		if len(n.Children) > 0 {
			rs.Children = reviewSections(n.Children, answers)
		}
		out = append(out, rs)
	}
	return out
}

// Retry clears the learner's drafts and ordering seed so they can start
// over. Earlier attempts stay recorded and keep counting against the quota.
func (s *Service) Retry(ctx context.Context, accountID, instanceID string) (RetryResult, error) {
	lid, inst, exam, err := s.access(ctx, accountID, instanceID)
	if err != nil {
		return RetryResult{}, err
	}
	now := s.now().Unix()
	if !inst.Started(now) || inst.Ended(now) || inst.Status == instance.StatusClosed {
		return RetryResult{}, apperr.Invalid("exam is not within its time window")
	}
	var out RetryResult
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		used, err := s.store.CountAttempts(ctx, tx, lid, exam.ID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if used >= inst.Attempt {
			return apperr.Invalid("no attempts remaining (%d of %d used)", used, inst.Attempt)
		}
		if err := s.store.ClearDraft(ctx, tx, lid, exam.ID, inst.ID); err != nil {
			return fmt.Errorf("clear draft: %w", err)
		}
		if err := s.events.Append(ctx, tx, eventlog.TypeExamRetried, eventlog.Key(lid, exam.ID), map[string]any{
			"instanceId": inst.ID, "usedAttempt": used,
		}); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		out = RetryResult{UsedAttempt: used, RemainingAttempt: remaining(inst.Attempt, used)}
		return nil
	})
	if err != nil {
		return RetryResult{}, err
	}
	s.log.Info("exam retry", "learner", lid, "exam", exam.ID, "used", out.UsedAttempt)
	return out, nil
}

// ---- instructor side ----

func (s *Service) ListResultsForExam(ctx context.Context, accountID, examID string) ([]ExamResultRow, error) {
	if _, err := s.owner.OwnedExam(ctx, accountID, examID); err != nil {
		return nil, err
	}
	out, err := s.store.ResultsForExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

// GradeResult sets a manual score (a percentage in [0,100]) and feedback,
// overwriting whatever auto-grading produced.
func (s *Service) GradeResult(ctx context.Context, accountID, resultID string, score float64, feedback string) (Result, error) {
	if err := grading.ValidateManualScore(score); err != nil {
		return Result{}, apperr.Invalid("%s", err.Error())
	}
	res, err := s.store.GetResult(ctx, resultID)
	if errors.Is(err, ErrResultNotFound) {
		return Result{}, apperr.NotFound("result not found")
	}
	if err != nil {
		return Result{}, fmt.Errorf("load result: %w", err)
	}
	exam, err := s.owner.OwnedExam(ctx, accountID, res.ExamID)
	if err != nil {
		return Result{}, err
	}
	prev := res.Score
	res.Score, res.Feedback, res.Status = score, feedback, ResultGraded
	res.TotalScore = grading.Points(score, res.MaxScore)
	res.GradedBy = exam.InstructorID
	res.UpdatedAt = s.now().Unix()
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.store.GradeResult(ctx, tx, res); err != nil {
			return fmt.Errorf("grade result: %w", err)
		}
		return s.events.Append(ctx, tx, eventlog.TypeResultGraded, eventlog.Key(res.LearnerID, res.ExamID), map[string]any{
			"resultId": res.ID, "previousScore": prev, "score": score, "gradedBy": res.GradedBy,
		})
	})
	if err != nil {
		return Result{}, err
	}
	s.log.Info("result graded", "result", res.ID, "from", prev, "to", score)
	return res, nil
}

// Events lists the audit trail of one learner on an exam the caller owns.
func (s *Service) Events(ctx context.Context, accountID, examID, learnerID string) ([]eventlog.Event, error) {
	if _, err := s.owner.OwnedExam(ctx, accountID, examID); err != nil {
		return nil, err
	}
	if learnerID == "" {
		return nil, apperr.Invalid("learnerId is required")
	}
	out, err := s.events.List(ctx, eventlog.Key(learnerID, examID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
