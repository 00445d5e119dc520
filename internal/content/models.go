package content

import "github.com/mind-engage/mindengage-training/internal/grading"

const (
	ExamDraft     = "Draft"
	ExamPublished = "Published"
	ExamArchived  = "Archived"

	ExamTypeAssignment = "Assignment"
	ExamTypeExam       = "Exam"

	SectionListening = "Listening"
	SectionSpeaking  = "Speaking"
	SectionReading   = "Reading"
	SectionWriting   = "Writing"

	LevelEasy   = "Easy"
	LevelMedium = "Medium"
	LevelHard   = "Hard"

	QuestionActive   = "Active"
	QuestionInactive = "Inactive"
)

type Exam struct {
	ID           string `json:"id"`
	InstructorID string `json:"instructorId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Type         string `json:"type"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// Section is either a top-level section (ParentID nil) or a child of one.
// Deeper nesting is rejected on write.
type Section struct {
	ID         string  `json:"id"`
	ExamID     string  `json:"examId"`
	ParentID   *string `json:"parentId"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	OrderIndex int     `json:"orderIndex"`
	FileURL    string  `json:"fileUrl,omitempty"`
}

type Option struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

type Question struct {
	ID            string   `json:"id"`
	InstructorID  string   `json:"instructorId"`
	Content       string   `json:"content"`
	Type          string   `json:"type"`
	CorrectAnswer string   `json:"correctAnswer"`
	Topic         string   `json:"topic"`
	Level         string   `json:"level"`
	Point         float64  `json:"point"`
	Status        string   `json:"status"`
	Options       []Option `json:"options,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// ExamQuestion places a Question in a Section.
type ExamQuestion struct {
	ID         string `json:"id"`
	ExamID     string `json:"examId"`
	SectionID  string `json:"sectionId"`
	QuestionID string `json:"questionId"`
	OrderIndex int    `json:"orderIndex"`
}

// SectionQuestion is a question as it appears inside a section tree.
type SectionQuestion struct {
	ExamQuestionID string   `json:"examQuestionId"`
	OrderIndex     int      `json:"orderIndex"`
	Question       Question `json:"question"`
}

// SectionNode is one node of the two-level hierarchy. Children is always
// empty for child nodes.
type SectionNode struct {
	Section
	Questions []SectionQuestion `json:"questions"`
	Children  []SectionNode     `json:"children,omitempty"`
}

var (
	examTypes     = set(ExamTypeAssignment, ExamTypeExam)
	examStatuses  = set(ExamDraft, ExamPublished, ExamArchived)
	sectionTypes  = set(SectionListening, SectionSpeaking, SectionReading, SectionWriting)
	levels        = set(LevelEasy, LevelMedium, LevelHard)
	questionTypes = set(
		grading.TypeMultipleChoice, grading.TypeTrueFalse, grading.TypeFillInBlank,
		grading.TypeMatching, grading.TypeEssay, grading.TypeSpeaking,
	)
	questionStatuses = set(QuestionActive, QuestionInactive)
)

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}
