package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quiz-studio/internal/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestStoreAuthoringLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithIDs(sequentialIDs()))

	quiz, err := store.CreateQuiz(ctx, "lecture-1", domain.QuizRecord{Settings: domain.DefaultSettings()})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if quiz.LectureID != "lecture-1" || quiz.ID == "" {
		t.Fatalf("unexpected quiz %+v", quiz)
	}

	q1, err := store.CreateQuestion(ctx, quiz.ID, domain.QuestionRecord{Text: "first", Type: domain.SingleChoice, Points: 1, Position: 0})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	q2, _ := store.CreateQuestion(ctx, quiz.ID, domain.QuestionRecord{Text: "second", Type: domain.Text, Points: 2, Position: 1})

	a1, err := store.CreateAnswer(ctx, q1.ID, domain.AnswerRecord{Text: "yes", IsCorrect: true, Position: 0})
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	a2, _ := store.CreateAnswer(ctx, q1.ID, domain.AnswerRecord{Text: "no", Position: 1})

	if _, err := store.UpdateAnswer(ctx, a2.ID, domain.AnswerRecord{Text: "no!", IsCorrect: false, Position: 1}); err != nil {
		t.Fatalf("update answer: %v", err)
	}
	if err := store.ReorderQuestions(ctx, quiz.ID, []string{q2.ID, q1.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	got, _ := store.GetQuizForInstructor(ctx, quiz.ID)
	doc := got.ToQuiz()
	if len(doc.Questions) != 2 || doc.Questions[0].ID != q2.ID {
		t.Fatalf("expected reordered questions, got %+v", doc.Questions)
	}
	if doc.Questions[1].Options[1].Text != "no!" || !doc.Questions[1].Options[0].IsCorrect {
		t.Fatalf("unexpected options %+v", doc.Questions[1].Options)
	}

	ok, err := store.DeleteAnswer(ctx, a1.ID)
	if err != nil || !ok {
		t.Fatalf("delete answer: %v %v", ok, err)
	}
	ok, _ = store.DeleteAnswer(ctx, a1.ID)
	if ok {
		t.Fatalf("second delete should report false")
	}
	ok, _ = store.DeleteQuestion(ctx, q1.ID)
	if !ok {
		t.Fatalf("delete question should succeed")
	}
	if _, err := store.UpdateQuestion(ctx, q1.ID, domain.QuestionRecord{}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestStoreStudentViewAndSubmissions(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewStore(WithIDs(sequentialIDs()), WithClock(func() time.Time { return start.Add(time.Minute) }))
	store.Seed(domain.RecordFrom(sampleQuiz()))

	student, err := store.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	for _, q := range student.Questions {
		for _, a := range q.Answers {
			if a.IsCorrect {
				t.Fatalf("student view leaked the answer key")
			}
		}
	}

	if _, err := store.GetLatestSubmission(ctx, "quiz-1", "u1"); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected no submission yet, got %v", err)
	}

	sub, err := store.SubmitQuiz(ctx, domain.SubmitRequest{
		QuizID:    "quiz-1",
		UserID:    "u1",
		StartTime: start,
		Answers:   []domain.Answer{{QuestionID: "q1", SelectedOptionIDs: []string{"o2"}}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Score != 1 || sub.TotalPoints != 3 || !sub.EndTime.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected submission %+v", sub)
	}
	_, _ = store.SubmitQuiz(ctx, domain.SubmitRequest{QuizID: "quiz-1", UserID: "u2"})

	history, _ := store.GetSubmissionHistory(ctx, "quiz-1", "u1")
	if len(history) != 1 || history[0].ID != sub.ID {
		t.Fatalf("unexpected history %+v", history)
	}
	all, _ := store.GetQuizSubmissions(ctx, "quiz-1")
	if len(all) != 2 {
		t.Fatalf("expected 2 submissions for the quiz, got %d", len(all))
	}
}
