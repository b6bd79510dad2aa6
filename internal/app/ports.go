package app

import (
	"context"

	"quiz-studio/internal/domain"
)

// AuthoringAPI is the instructor-side quiz backend. Implementations return
// domain.ErrQuizNotFound when a quiz does not exist.
type AuthoringAPI interface {
	GetQuizForInstructor(ctx context.Context, quizID string) (domain.QuizRecord, error)
	CreateQuiz(ctx context.Context, lectureID string, quiz domain.QuizRecord) (domain.QuizRecord, error)
	// UpdateQuiz persists title and settings; questions in the record are ignored.
	UpdateQuiz(ctx context.Context, quizID string, quiz domain.QuizRecord) (domain.QuizRecord, error)
	CreateQuestion(ctx context.Context, quizID string, question domain.QuestionRecord) (domain.QuestionRecord, error)
	UpdateQuestion(ctx context.Context, questionID string, question domain.QuestionRecord) (domain.QuestionRecord, error)
	DeleteQuestion(ctx context.Context, questionID string) (bool, error)
	ReorderQuestions(ctx context.Context, quizID string, questionIDs []string) error
	CreateAnswer(ctx context.Context, questionID string, answer domain.AnswerRecord) (domain.AnswerRecord, error)
	UpdateAnswer(ctx context.Context, answerID string, answer domain.AnswerRecord) (domain.AnswerRecord, error)
	DeleteAnswer(ctx context.Context, answerID string) (bool, error)
	GetQuizSubmissions(ctx context.Context, quizID string) ([]domain.SubmissionResult, error)
}

// TakingAPI is the student-side quiz backend. GetQuiz strips the answer key.
type TakingAPI interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizRecord, error)
	SubmitQuiz(ctx context.Context, req domain.SubmitRequest) (domain.SubmissionResult, error)
	GetSubmissionHistory(ctx context.Context, quizID, userID string) ([]domain.SubmissionResult, error)
	// GetLatestSubmission returns domain.ErrSubmissionNotFound when there is none.
	GetLatestSubmission(ctx context.Context, quizID, userID string) (domain.SubmissionResult, error)
}

// QuizRepository loads quiz definitions for taking (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache drops a cached quiz after it changes.
type QuizCache interface {
	Invalidate(ctx context.Context, quizID string) error
}
