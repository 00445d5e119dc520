package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/session"
)

// MountLearner registers the learner exam session routes.
func MountLearner(r chi.Router, svc *session.Service) {
	r.Get("/instances", ListAvailableHandler(svc))
	r.Get("/instances/{instanceID}", GetExamToDoHandler(svc))
	r.Post("/instances/{instanceID}/answers", SaveAnswersHandler(svc))
	r.Post("/instances/{instanceID}/submit", SubmitHandler(svc))
	r.Get("/instances/{instanceID}/result", GetResultHandler(svc))
	r.Get("/instances/{instanceID}/review", ReviewHandler(svc))
	r.Post("/instances/{instanceID}/retry", RetryHandler(svc))
	r.Get("/results/history", HistoryHandler(svc))
}

func ListAvailableHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.ListAvailable(r.Context(), accountID(r))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func GetExamToDoHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.GetExamToDo(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func SaveAnswersHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers []session.AnswerInput `json:"answers"`
		}
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		n, err := svc.SaveAnswers(r.Context(), accountID(r), chi.URLParam(r, "instanceID"), req.Answers)
		reply(w, r, http.StatusOK, "answers saved", map[string]int{"saved": n}, err)
	}
}

func SubmitHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in session.SubmitInput
		if err := decode(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		out, err := svc.Submit(r.Context(), accountID(r), chi.URLParam(r, "instanceID"), in)
		reply(w, r, http.StatusCreated, out.Message, out, err)
	}
}

func GetResultHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.GetResult(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func ReviewHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Review(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func RetryHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Retry(r.Context(), accountID(r), chi.URLParam(r, "instanceID"))
		reply(w, r, http.StatusOK, "attempt reset", out, err)
	}
}

func HistoryHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.GetHistory(r.Context(), accountID(r))
		reply(w, r, http.StatusOK, "", out, err)
	}
}
