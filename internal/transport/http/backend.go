package http

import (
	"encoding/json"
	"net/http"

	"quiz-studio/internal/app"
	"quiz-studio/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Backend is a course backend serving both sides of the quiz contract.
type Backend interface {
	app.AuthoringAPI
	app.TakingAPI
}

// errorBody is the JSON error envelope shared with infra/httpapi.
type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type deletedBody struct {
	Deleted bool `json:"deleted"`
}

type reorderBody struct {
	QuestionIDs []string `json:"questionIds"`
}

// MountBackend exposes backend as the JSON API that infra/httpapi.Client speaks.
func MountBackend(r chi.Router, backend Backend) {
	h := backendHandler{backend: backend}

	r.Post("/lectures/{lectureID}/quizzes", h.createQuiz)
	r.Get("/quizzes/{quizID}", h.getQuiz)
	r.Put("/quizzes/{quizID}", h.updateQuiz)
	r.Get("/quizzes/{quizID}/instructor", h.getQuizForInstructor)
	r.Post("/quizzes/{quizID}/questions", h.createQuestion)
	r.Put("/quizzes/{quizID}/order", h.reorderQuestions)
	r.Post("/quizzes/{quizID}/submit", h.submitQuiz)
	r.Get("/quizzes/{quizID}/submissions", h.quizSubmissions)
	r.Get("/quizzes/{quizID}/users/{userID}/submissions", h.submissionHistory)
	r.Get("/quizzes/{quizID}/users/{userID}/submissions/latest", h.latestSubmission)
	r.Put("/questions/{questionID}", h.updateQuestion)
	r.Delete("/questions/{questionID}", h.deleteQuestion)
	r.Post("/questions/{questionID}/answers", h.createAnswer)
	r.Put("/answers/{answerID}", h.updateAnswer)
	r.Delete("/answers/{answerID}", h.deleteAnswer)
}

type backendHandler struct {
	backend Backend
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.ErrorCode(err) != "":
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("backend request failed")
	}
	respondJSON(w, status, errorBody{Code: domain.ErrorCode(err), Message: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Message: "invalid JSON body"})
		return false
	}
	return true
}

func (h backendHandler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var rec domain.QuizRecord
	if !decode(w, r, &rec) {
		return
	}
	out, err := h.backend.CreateQuiz(r.Context(), chi.URLParam(r, "lectureID"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

func (h backendHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	out, err := h.backend.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) getQuizForInstructor(w http.ResponseWriter, r *http.Request) {
	out, err := h.backend.GetQuizForInstructor(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	var rec domain.QuizRecord
	if !decode(w, r, &rec) {
		return
	}
	out, err := h.backend.UpdateQuiz(r.Context(), chi.URLParam(r, "quizID"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) createQuestion(w http.ResponseWriter, r *http.Request) {
	var rec domain.QuestionRecord
	if !decode(w, r, &rec) {
		return
	}
	out, err := h.backend.CreateQuestion(r.Context(), chi.URLParam(r, "quizID"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

func (h backendHandler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var rec domain.QuestionRecord
	if !decode(w, r, &rec) {
		return
	}
	out, err := h.backend.UpdateQuestion(r.Context(), chi.URLParam(r, "questionID"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	ok, err := h.backend.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, deletedBody{Deleted: ok})
}

func (h backendHandler) reorderQuestions(w http.ResponseWriter, r *http.Request) {
	var body reorderBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.backend.ReorderQuestions(r.Context(), chi.URLParam(r, "quizID"), body.QuestionIDs); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h backendHandler) createAnswer(w http.ResponseWriter, r *http.Request) {
	var rec domain.AnswerRecord
	if !decode(w, r, &rec) {
		return
	}
	out, err := h.backend.CreateAnswer(r.Context(), chi.URLParam(r, "questionID"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

func (h backendHandler) updateAnswer(w http.ResponseWriter, r *http.Request) {
	var rec domain.AnswerRecord
	if !decode(w, r, &rec) {
		return
	}
	out, err := h.backend.UpdateAnswer(r.Context(), chi.URLParam(r, "answerID"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) deleteAnswer(w http.ResponseWriter, r *http.Request) {
	ok, err := h.backend.DeleteAnswer(r.Context(), chi.URLParam(r, "answerID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, deletedBody{Deleted: ok})
}

func (h backendHandler) submitQuiz(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	req.QuizID = chi.URLParam(r, "quizID")
	out, err := h.backend.SubmitQuiz(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

func (h backendHandler) quizSubmissions(w http.ResponseWriter, r *http.Request) {
	out, err := h.backend.GetQuizSubmissions(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.SubmissionResult{}
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) submissionHistory(w http.ResponseWriter, r *http.Request) {
	out, err := h.backend.GetSubmissionHistory(r.Context(), chi.URLParam(r, "quizID"), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.SubmissionResult{}
	}
	respondJSON(w, http.StatusOK, out)
}

func (h backendHandler) latestSubmission(w http.ResponseWriter, r *http.Request) {
	out, err := h.backend.GetLatestSubmission(r.Context(), chi.URLParam(r, "quizID"), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
