package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"quiz-studio/internal/domain"
)

func TestBackendStudentViewHidesAnswerKey(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/quizzes/quiz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec domain.QuizRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, a := range rec.Questions[0].Answers {
		if a.IsCorrect {
			t.Fatalf("answer key leaked: %+v", a)
		}
	}
}

func TestBackendErrorEnvelope(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/quizzes/nope/instructor")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != "quiz_not_found" {
		t.Fatalf("unexpected body %+v", body)
	}

	bad, err := http.Post(server.URL+"/api/quizzes/quiz-1/questions", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", bad.StatusCode)
	}
}

func TestBackendSubmitAndLatest(t *testing.T) {
	server, _ := newTestServer(t)

	body, _ := json.Marshal(domain.SubmitRequest{
		UserID:  "u1",
		Answers: []domain.Answer{{QuestionID: "q1", SelectedOptionIDs: []string{"o2"}}},
	})
	resp, err := http.Post(server.URL+"/api/quizzes/quiz-1/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	latest, err := http.Get(server.URL + "/api/quizzes/quiz-1/users/u1/submissions/latest")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	defer latest.Body.Close()
	var sub domain.SubmissionResult
	if err := json.NewDecoder(latest.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Score != 1 || !sub.IsPassed || sub.QuizID != "quiz-1" {
		t.Fatalf("unexpected submission %+v", sub)
	}

	missing, err := http.Get(server.URL + "/api/quizzes/quiz-1/users/u2/submissions/latest")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without submissions, got %d", missing.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
