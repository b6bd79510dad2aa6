package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-studio/internal/domain"
	"quiz-studio/internal/grading"
)

// Store is an in-memory course backend implementing app.AuthoringAPI and
// app.TakingAPI. It backs the demo server and tests.
type Store struct {
	newID func() string
	now   func() time.Time

	mu      sync.RWMutex
	quizzes map[string]*domain.QuizRecord
	// questionQuiz and answerQuestion index child records by id.
	questionQuiz   map[string]string
	answerQuestion map[string]string
	submissions    map[string][]domain.SubmissionResult
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithIDs overrides id generation.
func WithIDs(newID func() string) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		newID:          domain.NewID,
		now:            time.Now,
		quizzes:        make(map[string]*domain.QuizRecord),
		questionQuiz:   make(map[string]string),
		answerQuestion: make(map[string]string),
		submissions:    make(map[string][]domain.SubmissionResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed stores rec as is, replacing any quiz with the same id.
func (s *Store) Seed(rec domain.QuizRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(cloneRecord(rec))
}

func (s *Store) putLocked(rec domain.QuizRecord) {
	for i := range rec.Questions {
		q := &rec.Questions[i]
		q.QuizID = rec.ID
		s.questionQuiz[q.ID] = rec.ID
		for j := range q.Answers {
			q.Answers[j].QuestionID = q.ID
			s.answerQuestion[q.Answers[j].ID] = q.ID
		}
	}
	s.quizzes[rec.ID] = &rec
}

func cloneRecord(rec domain.QuizRecord) domain.QuizRecord {
	return domain.DeepCopy(rec)
}

func (s *Store) GetQuizForInstructor(_ context.Context, quizID string) (domain.QuizRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizRecord{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	return cloneRecord(*rec), nil
}

func (s *Store) CreateQuiz(_ context.Context, lectureID string, quiz domain.QuizRecord) (domain.QuizRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := cloneRecord(quiz)
	rec.ID = s.newID()
	rec.LectureID = lectureID
	rec.UpdatedAt = s.now()
	for i := range rec.Questions {
		rec.Questions[i].ID = s.newID()
		for j := range rec.Questions[i].Answers {
			rec.Questions[i].Answers[j].ID = s.newID()
		}
	}
	s.putLocked(rec)
	return cloneRecord(rec), nil
}

func (s *Store) UpdateQuiz(_ context.Context, quizID string, quiz domain.QuizRecord) (domain.QuizRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizRecord{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	rec.Title = quiz.Title
	rec.Settings = quiz.Settings
	rec.UpdatedAt = s.now()
	return cloneRecord(*rec), nil
}

func (s *Store) questionLocked(questionID string) (*domain.QuizRecord, int, error) {
	quizID, ok := s.questionQuiz[questionID]
	if !ok {
		return nil, -1, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	rec := s.quizzes[quizID]
	for i := range rec.Questions {
		if rec.Questions[i].ID == questionID {
			return rec, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
}

func (s *Store) CreateQuestion(_ context.Context, quizID string, question domain.QuestionRecord) (domain.QuestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuestionRecord{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	q := question
	q.ID = s.newID()
	q.QuizID = quizID
	q.Answers = nil
	for j, a := range question.Answers {
		a.ID = s.newID()
		a.QuestionID = q.ID
		a.Position = j
		q.Answers = append(q.Answers, a)
		s.answerQuestion[a.ID] = q.ID
	}
	rec.Questions = append(rec.Questions, q)
	rec.UpdatedAt = s.now()
	s.questionQuiz[q.ID] = quizID
	return cloneQuestion(q), nil
}

func cloneQuestion(q domain.QuestionRecord) domain.QuestionRecord {
	out := q
	out.Answers = append([]domain.AnswerRecord(nil), q.Answers...)
	return out
}

func (s *Store) UpdateQuestion(_ context.Context, questionID string, question domain.QuestionRecord) (domain.QuestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, i, err := s.questionLocked(questionID)
	if err != nil {
		return domain.QuestionRecord{}, err
	}
	q := &rec.Questions[i]
	q.Text = question.Text
	q.Type = question.Type
	q.Explanation = question.Explanation
	q.Points = question.Points
	q.IsRequired = question.IsRequired
	q.Position = question.Position
	rec.UpdatedAt = s.now()
	return cloneQuestion(*q), nil
}

func (s *Store) DeleteQuestion(_ context.Context, questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, i, err := s.questionLocked(questionID)
	if err != nil {
		return false, nil
	}
	for _, a := range rec.Questions[i].Answers {
		delete(s.answerQuestion, a.ID)
	}
	rec.Questions = append(rec.Questions[:i], rec.Questions[i+1:]...)
	rec.UpdatedAt = s.now()
	delete(s.questionQuiz, questionID)
	return true, nil
}

// ReorderQuestions assigns positions following questionIDs. Questions not
// listed keep their relative order after the listed ones.
func (s *Store) ReorderQuestions(_ context.Context, quizID string, questionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.quizzes[quizID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	order := make(map[string]int, len(questionIDs))
	for i, id := range questionIDs {
		if s.questionQuiz[id] != quizID {
			return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		order[id] = i
	}
	sort.SliceStable(rec.Questions, func(i, j int) bool {
		pi, iok := order[rec.Questions[i].ID]
		pj, jok := order[rec.Questions[j].ID]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return rec.Questions[i].Position < rec.Questions[j].Position
		}
	})
	for i := range rec.Questions {
		rec.Questions[i].Position = i
	}
	rec.UpdatedAt = s.now()
	return nil
}

func (s *Store) CreateAnswer(_ context.Context, questionID string, answer domain.AnswerRecord) (domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, i, err := s.questionLocked(questionID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	a := answer
	a.ID = s.newID()
	a.QuestionID = questionID
	rec.Questions[i].Answers = append(rec.Questions[i].Answers, a)
	rec.UpdatedAt = s.now()
	s.answerQuestion[a.ID] = questionID
	return a, nil
}

func (s *Store) answerLocked(answerID string) (*domain.QuizRecord, *domain.QuestionRecord, int, error) {
	questionID, ok := s.answerQuestion[answerID]
	if !ok {
		return nil, nil, -1, fmt.Errorf("%w: %s", domain.ErrAnswerNotFound, answerID)
	}
	rec, i, err := s.questionLocked(questionID)
	if err != nil {
		return nil, nil, -1, err
	}
	q := &rec.Questions[i]
	for j := range q.Answers {
		if q.Answers[j].ID == answerID {
			return rec, q, j, nil
		}
	}
	return nil, nil, -1, fmt.Errorf("%w: %s", domain.ErrAnswerNotFound, answerID)
}

func (s *Store) UpdateAnswer(_ context.Context, answerID string, answer domain.AnswerRecord) (domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, q, j, err := s.answerLocked(answerID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	a := &q.Answers[j]
	a.Text = answer.Text
	a.IsCorrect = answer.IsCorrect
	a.Position = answer.Position
	rec.UpdatedAt = s.now()
	return *a, nil
}

func (s *Store) DeleteAnswer(_ context.Context, answerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, q, j, err := s.answerLocked(answerID)
	if err != nil {
		return false, nil
	}
	q.Answers = append(q.Answers[:j], q.Answers[j+1:]...)
	rec.UpdatedAt = s.now()
	delete(s.answerQuestion, answerID)
	return true, nil
}

func (s *Store) GetQuizSubmissions(_ context.Context, quizID string) ([]domain.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	out := make([]domain.SubmissionResult, len(s.submissions[quizID]))
	copy(out, s.submissions[quizID])
	return out, nil
}

// GetQuiz returns the quiz as served to students, without the answer key.
func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	rec, err := s.GetQuizForInstructor(ctx, quizID)
	if err != nil {
		return domain.QuizRecord{}, err
	}
	for i := range rec.Questions {
		rec.Questions[i].Explanation = ""
		for j := range rec.Questions[i].Answers {
			rec.Questions[i].Answers[j].IsCorrect = false
		}
	}
	return rec, nil
}

// SubmitQuiz grades against the stored answer key and appends to the history.
func (s *Store) SubmitQuiz(_ context.Context, req domain.SubmitRequest) (domain.SubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.quizzes[req.QuizID]
	if !ok {
		return domain.SubmissionResult{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, req.QuizID)
	}
	if req.EndTime.IsZero() {
		req.EndTime = s.now()
	}
	sub := grading.Record(s.newID(), rec.ToQuiz(), req)
	s.submissions[req.QuizID] = append(s.submissions[req.QuizID], sub)
	return sub, nil
}

// GetSubmissionHistory lists a user's submissions for a quiz, oldest first.
func (s *Store) GetSubmissionHistory(_ context.Context, quizID, userID string) ([]domain.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SubmissionResult
	for _, sub := range s.submissions[quizID] {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) GetLatestSubmission(ctx context.Context, quizID, userID string) (domain.SubmissionResult, error) {
	history, err := s.GetSubmissionHistory(ctx, quizID, userID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if len(history) == 0 {
		return domain.SubmissionResult{}, domain.ErrSubmissionNotFound
	}
	return history[len(history)-1], nil
}
