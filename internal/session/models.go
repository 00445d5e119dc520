package session

import (
	"encoding/json"

	"github.com/mind-engage/mindengage-training/internal/instance"
)

const (
	SubmissionSubmitted = "submitted"
	SubmissionLate      = "late"

	ResultGraded        = "graded"
	ResultPendingManual = "pending_manual"
)

type AnswerInput struct {
	ExamQuestionID string `json:"examQuestionId"`
	Answer         string `json:"answer"`
}

type AssetInput struct {
	Kind    string `json:"kind"`
	FileURL string `json:"fileUrl"`
}

type SubmitInput struct {
	Answers     []AnswerInput   `json:"answers"`
	DurationSec int             `json:"durationSec"`
	Content     json.RawMessage `json:"content"`
	Assets      []AssetInput    `json:"assets"`
}

type ExamSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type Available struct {
	Instance         instance.Instance `json:"instance"`
	Exam             ExamSummary       `json:"exam"`
	UsedAttempt      int               `json:"usedAttempt"`
	RemainingAttempt int               `json:"remainingAttempt"`
	HasDraft         bool              `json:"hasDraft"`
}

// Learner-facing tree: no canonical answers, no correctness flags.

type LearnerOption struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type LearnerQuestion struct {
	ExamQuestionID string          `json:"examQuestionId"`
	QuestionID     string          `json:"questionId"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	Point          float64         `json:"point"`
	Options        []LearnerOption `json:"options,omitempty"`
	LearnerAnswer  *string         `json:"learnerAnswer"`
}

type LearnerSection struct {
	ID         string            `json:"id"`
	ParentID   *string           `json:"parentId"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	OrderIndex int               `json:"orderIndex"`
	FileURL    string            `json:"fileUrl,omitempty"`
	Questions  []LearnerQuestion `json:"questions"`
	Children   []LearnerSection  `json:"children,omitempty"`
}

type ExamToDo struct {
	Instance         instance.Instance `json:"instance"`
	Exam             ExamSummary       `json:"exam"`
	UsedAttempt      int               `json:"usedAttempt"`
	RemainingAttempt int               `json:"remainingAttempt"`
	Sections         []LearnerSection  `json:"sections"`
}

type SubmitResult struct {
	SubmissionID     string  `json:"submissionId"`
	ResultID         string  `json:"resultId"`
	AttemptNo        int     `json:"attemptNo"`
	Status           string  `json:"status"`
	Score            string  `json:"score"`
	MaxScore         float64 `json:"maxScore"`
	TotalScore       float64 `json:"totalScore"`
	AutoGradedCount  int     `json:"autoGradedCount"`
	ManualGradeCount int     `json:"manualGradeCount"`
	IsLate           bool    `json:"isLate"`
	Message          string  `json:"message"`
}

// Result is one attempt's authoritative score. Score is a percentage.
type Result struct {
	ID           string  `json:"id"`
	LearnerID    string  `json:"learnerId"`
	ExamID       string  `json:"examId"`
	InstanceID   string  `json:"instanceId"`
	SubmissionID string  `json:"submissionId"`
	AttemptNo    int     `json:"attemptNo"`
	Score        float64 `json:"score"`
	TotalScore   float64 `json:"totalScore"`
	MaxScore     float64 `json:"maxScore"`
	Status       string  `json:"status"`
	Feedback     string  `json:"feedback"`
	GradedBy     string  `json:"gradedBy,omitempty"`
	CreatedAt    int64   `json:"createdAt"`
	UpdatedAt    int64   `json:"updatedAt"`
}

type Asset struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	FileURL string `json:"fileUrl"`
}

type Submission struct {
	ID          string          `json:"id"`
	LearnerID   string          `json:"learnerId"`
	ExamID      string          `json:"examId"`
	InstanceID  string          `json:"instanceId"`
	Status      string          `json:"status"`
	Score       float64         `json:"score"`
	Feedback    string          `json:"feedback"`
	Content     json.RawMessage `json:"content,omitempty"`
	DurationSec int             `json:"durationSec"`
	SubmittedAt int64           `json:"submittedAt"`
	Assets      []Asset         `json:"assets"`
}

type ResultView struct {
	Result           Result     `json:"result"`
	Submission       Submission `json:"submission"`
	UsedAttempt      int        `json:"usedAttempt"`
	RemainingAttempt int        `json:"remainingAttempt"`
}

type HistoryEntry struct {
	Result
	ExamTitle string `json:"examTitle"`
}

// ExamResultRow is a result as an instructor sees it in the exam roster.
type ExamResultRow struct {
	Result
	LearnerName string `json:"learnerName"`
}

type ReviewOption struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

type ReviewQuestion struct {
	ExamQuestionID string         `json:"examQuestionId"`
	QuestionID     string         `json:"questionId"`
	Content        string         `json:"content"`
	Type           string         `json:"type"`
	Point          float64        `json:"point"`
	Options        []ReviewOption `json:"options,omitempty"`
	CorrectAnswer  string         `json:"correctAnswer"`
	LearnerAnswer  string         `json:"learnerAnswer"`
	IsCorrect      *bool          `json:"isCorrect"`
	EarnedPoint    float64        `json:"earnedPoint"`
	NeedsManual    bool           `json:"needsManual"`
}

type ReviewSection struct {
	ID         string           `json:"id"`
	ParentID   *string          `json:"parentId"`
	Type       string           `json:"type"`
	Title      string           `json:"title"`
	OrderIndex int              `json:"orderIndex"`
	FileURL    string           `json:"fileUrl,omitempty"`
	Questions  []ReviewQuestion `json:"questions"`
	Children   []ReviewSection  `json:"children,omitempty"`
}

type Review struct {
	Result   Result          `json:"result"`
	Sections []ReviewSection `json:"sections"`
}

type RetryResult struct {
	UsedAttempt      int `json:"usedAttempt"`
	RemainingAttempt int `json:"remainingAttempt"`
}

// submittedAnswer is one graded row of a submission.
type submittedAnswer struct {
	Answer      string
	IsCorrect   *bool
	EarnedPoint float64
	NeedsManual bool
}
