package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/content"
	"github.com/mind-engage/mindengage-training/internal/instance"
	"github.com/mind-engage/mindengage-training/internal/rbac"
	"github.com/mind-engage/mindengage-training/internal/session"
)

// MountInstructor registers content authoring, scheduling and result routes.
func MountInstructor(r chi.Router, cs *content.Service, is *instance.Service, ss *session.Service) {
	r.Group(func(er chi.Router) {
		er.Use(rbac.Require("exam:manage"))
		er.Get("/exams", ListExamsHandler(cs))
		er.Post("/exams", CreateExamHandler(cs))
		er.Get("/exams/{examID}", GetExamHandler(cs))
		er.Put("/exams/{examID}", UpdateExamHandler(cs))
		er.Delete("/exams/{examID}", DeleteExamHandler(cs))
		er.Post("/exams/{examID}/archive", ArchiveExamHandler(cs))
		er.Post("/exams/{examID}/unarchive", UnarchiveExamHandler(cs))
		er.Get("/exams/{examID}/sections", HierarchyHandler(cs))
		er.Post("/exams/{examID}/sections", CreateSectionHandler(cs))
		er.Put("/sections/{sectionID}", UpdateSectionHandler(cs))
		er.Delete("/sections/{sectionID}", DeleteSectionHandler(cs))
		er.Post("/sections/{sectionID}/questions", AddSectionQuestionHandler(cs))
		er.Delete("/sections/{sectionID}/questions/{questionID}", RemoveSectionQuestionHandler(cs))
		er.Put("/exam-questions/{examQuestionID}/order", ReorderExamQuestionHandler(cs))
	})

	r.Group(func(qr chi.Router) {
		qr.Use(rbac.Require("question:manage"))
		qr.Get("/questions", ListQuestionsHandler(cs))
		qr.Post("/questions", CreateQuestionHandler(cs))
		qr.Put("/questions/{questionID}", UpdateQuestionHandler(cs))
		qr.Delete("/questions/{questionID}", DeleteQuestionHandler(cs))
	})

	r.Group(func(ir chi.Router) {
		ir.Use(rbac.Require("instance:manage"))
		ir.Get("/exams/{examID}/instances", ListInstancesHandler(is))
		ir.Post("/exams/{examID}/instances", CreateInstancesHandler(is))
		ir.Put("/instances/{instanceID}", UpdateInstanceHandler(is))
		ir.Delete("/instances/{instanceID}", DeleteInstanceHandler(is))
		ir.Post("/instances/{instanceID}/open-now", OpenNowHandler(is))
		ir.Post("/instances/{instanceID}/close-now", CloseNowHandler(is))
	})

	r.With(rbac.Require("result:view-all")).Get("/exams/{examID}/results", ExamResultsHandler(ss))
	r.With(rbac.Require("result:grade")).Put("/results/{resultID}/grade", GradeResultHandler(ss))
	r.With(rbac.Require("event:view")).Get("/exams/{examID}/events", ExamEventsHandler(ss))
}

// ---- exams ----

func ListExamsHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cs.ListExams(r.Context(), accountID(r))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func CreateExamHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in content.ExamInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := cs.CreateExam(r.Context(), accountID(r), in)
		reply(w, r, http.StatusCreated, "exam created", out, err)
	}
}

func GetExamHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cs.GetExam(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func UpdateExamHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in content.ExamInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := cs.UpdateExam(r.Context(), accountID(r), chi.URLParam(r, "examID"), in)
		reply(w, r, http.StatusOK, "exam updated", out, err)
	}
}

func DeleteExamHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cs.DeleteExam(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "exam archived", out, err)
	}
}

func ArchiveExamHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cs.ArchiveExam(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "exam archived", out, err)
	}
}

func UnarchiveExamHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cs.UnarchiveExam(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "exam restored to draft", out, err)
	}
}

// ---- sections ----

func HierarchyHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cs.InstructorHierarchy(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func CreateSectionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in content.SectionInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := cs.CreateSection(r.Context(), accountID(r), chi.URLParam(r, "examID"), in)
		reply(w, r, http.StatusCreated, "section created", out, err)
	}
}

func UpdateSectionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in content.SectionInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := cs.UpdateSection(r.Context(), accountID(r), chi.URLParam(r, "sectionID"), in)
		reply(w, r, http.StatusOK, "section updated", out, err)
	}
}

func DeleteSectionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cs.DeleteSection(r.Context(), accountID(r), chi.URLParam(r, "sectionID"))
		reply(w, r, http.StatusOK, "section deleted", nil, err)
	}
}

func AddSectionQuestionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID string `json:"questionId"`
			OrderIndex *int   `json:"orderIndex"`
		}
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if req.QuestionID == "" {
			fail(w, r, apperr.Invalid("questionId is required"))
			return
		}
		out, err := cs.AddQuestionToSection(r.Context(), accountID(r), chi.URLParam(r, "sectionID"), req.QuestionID, req.OrderIndex)
		reply(w, r, http.StatusCreated, "question added to section", out, err)
	}
}

func RemoveSectionQuestionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cs.RemoveQuestionFromSection(r.Context(), accountID(r),
			chi.URLParam(r, "sectionID"), chi.URLParam(r, "questionID"))
		reply(w, r, http.StatusOK, "question removed from section", nil, err)
	}
}

func ReorderExamQuestionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderIndex *int `json:"orderIndex"`
		}
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if req.OrderIndex == nil {
			fail(w, r, apperr.Invalid("orderIndex is required"))
			return
		}
		out, err := cs.ReorderExamQuestion(r.Context(), accountID(r), chi.URLParam(r, "examQuestionID"), *req.OrderIndex)
		reply(w, r, http.StatusOK, "order updated", out, err)
	}
}

// ---- questions ----

func ListQuestionsHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := content.QuestionFilter{
			Topic:  q.Get("topic"),
			Type:   q.Get("type"),
			Level:  q.Get("level"),
			Status: q.Get("status"),
		}
		out, err := cs.ListQuestions(r.Context(), accountID(r), f)
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func CreateQuestionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in content.QuestionInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := cs.CreateQuestion(r.Context(), accountID(r), in)
		reply(w, r, http.StatusCreated, "question created", out, err)
	}
}

func UpdateQuestionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in content.QuestionInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := cs.UpdateQuestion(r.Context(), accountID(r), chi.URLParam(r, "questionID"), in)
		reply(w, r, http.StatusOK, "question updated", out, err)
	}
}

func DeleteQuestionHandler(cs *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cs.DeleteQuestion(r.Context(), accountID(r), chi.URLParam(r, "questionID"))
		reply(w, r, http.StatusOK, "question deactivated", nil, err)
	}
}

// ---- instances ----

func ListInstancesHandler(is *instance.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := is.List(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func CreateInstancesHandler(is *instance.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in instance.CreateInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := is.Create(r.Context(), accountID(r), chi.URLParam(r, "examID"), in)
		reply(w, r, http.StatusCreated, "exam instances created", out, err)
	}
}

func UpdateInstanceHandler(is *instance.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in instance.UpdateInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := is.Update(r.Context(), accountID(r), chi.URLParam(r, "instanceID"), in)
		reply(w, r, http.StatusOK, "exam instance updated", out, err)
	}
}

func DeleteInstanceHandler(is *instance.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := is.Delete(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		reply(w, r, http.StatusOK, "exam instance deleted", nil, err)
	}
}

func OpenNowHandler(is *instance.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opened, err := is.OpenNow(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		if err == nil && !opened {
			err = apperr.Invalid("only a Scheduled instance can be opened")
		}
		reply(w, r, http.StatusOK, "exam instance opened", nil, err)
	}
}

func CloseNowHandler(is *instance.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		closed, err := is.CloseNow(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		if err == nil && !closed {
			err = apperr.Invalid("only an Open instance can be closed")
		}
		reply(w, r, http.StatusOK, "exam instance closed", nil, err)
	}
}

// ---- results ----

func ExamResultsHandler(ss *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := ss.ListResultsForExam(r.Context(), accountID(r), chi.URLParam(r, "examID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func GradeResultHandler(ss *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Score    *float64 `json:"score"`
			Feedback string   `json:"feedback"`
		}
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if req.Score == nil {
			fail(w, r, apperr.Invalid("score is required"))
			return
		}
		out, err := ss.GradeResult(r.Context(), accountID(r), chi.URLParam(r, "resultID"), *req.Score, req.Feedback)
		reply(w, r, http.StatusOK, "result graded", out, err)
	}
}

func ExamEventsHandler(ss *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := ss.Events(r.Context(), accountID(r), chi.URLParam(r, "examID"), r.URL.Query().Get("learnerId"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}
