package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-studio/internal/domain"
	"quiz-studio/internal/grading"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store is the course backend on Postgres. It implements app.AuthoringAPI and
// app.TakingAPI over the quizzes, questions, answers and submissions tables.
type Store struct {
	pool  *pgxpool.Pool
	newID func() string
	now   func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, newID: domain.NewID, now: time.Now}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *Store) GetQuizForInstructor(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	return loadQuiz(ctx, s.pool, quizID)
}

func loadQuiz(ctx context.Context, q querier, quizID string) (domain.QuizRecord, error) {
	var (
		rec      domain.QuizRecord
		settings []byte
	)
	err := q.QueryRow(ctx,
		`SELECT id, lecture_id, title, settings, updated_at FROM quizzes WHERE id=$1`, quizID,
	).Scan(&rec.ID, &rec.LectureID, &rec.Title, &settings, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizRecord{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("load quiz: %w", err)
	}
	if err := json.Unmarshal(settings, &rec.Settings); err != nil {
		return domain.QuizRecord{}, fmt.Errorf("unmarshal settings: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, text, type, explanation, points, is_required, position
		   FROM questions WHERE quiz_id=$1 ORDER BY position, id`, quizID)
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("load questions: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var qr domain.QuestionRecord
		if err := rows.Scan(&qr.ID, &qr.Text, &qr.Type, &qr.Explanation, &qr.Points, &qr.IsRequired, &qr.Position); err != nil {
			rows.Close()
			return domain.QuizRecord{}, fmt.Errorf("scan question: %w", err)
		}
		qr.QuizID = quizID
		index[qr.ID] = len(rec.Questions)
		rec.Questions = append(rec.Questions, qr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.QuizRecord{}, fmt.Errorf("load questions: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT a.id, a.question_id, a.text, a.is_correct, a.position
		   FROM answers a JOIN questions q ON q.id = a.question_id
		  WHERE q.quiz_id=$1 ORDER BY a.position, a.id`, quizID)
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ar domain.AnswerRecord
		if err := rows.Scan(&ar.ID, &ar.QuestionID, &ar.Text, &ar.IsCorrect, &ar.Position); err != nil {
			return domain.QuizRecord{}, fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[ar.QuestionID]; ok {
			rec.Questions[i].Answers = append(rec.Questions[i].Answers, ar)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.QuizRecord{}, fmt.Errorf("load answers: %w", err)
	}
	return rec, nil
}

func (s *Store) CreateQuiz(ctx context.Context, lectureID string, quiz domain.QuizRecord) (domain.QuizRecord, error) {
	settings, err := json.Marshal(quiz.Settings)
	if err != nil {
		return domain.QuizRecord{}, err
	}
	quizID := s.newID()
	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO quizzes (id, lecture_id, title, settings, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			quizID, lectureID, quiz.Title, settings, s.now()); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		for i, q := range quiz.Questions {
			q.Position = i
			created, err := s.insertQuestion(ctx, tx, quizID, q)
			if err != nil {
				return err
			}
			for j, a := range q.Answers {
				a.Position = j
				if _, err := s.insertAnswer(ctx, tx, created.ID, a); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.QuizRecord{}, err
	}
	return s.GetQuizForInstructor(ctx, quizID)
}

func (s *Store) UpdateQuiz(ctx context.Context, quizID string, quiz domain.QuizRecord) (domain.QuizRecord, error) {
	settings, err := json.Marshal(quiz.Settings)
	if err != nil {
		return domain.QuizRecord{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET title=$2, settings=$3, updated_at=$4 WHERE id=$1`,
		quizID, quiz.Title, settings, s.now())
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.QuizRecord{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	return s.GetQuizForInstructor(ctx, quizID)
}

func (s *Store) touch(ctx context.Context, tx pgx.Tx, quizID string) error {
	_, err := tx.Exec(ctx, `UPDATE quizzes SET updated_at=$2 WHERE id=$1`, quizID, s.now())
	return err
}

func (s *Store) insertQuestion(ctx context.Context, tx pgx.Tx, quizID string, q domain.QuestionRecord) (domain.QuestionRecord, error) {
	q.ID = s.newID()
	q.QuizID = quizID
	_, err := tx.Exec(ctx,
		`INSERT INTO questions (id, quiz_id, text, type, explanation, points, is_required, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, quizID, q.Text, string(q.Type), q.Explanation, q.Points, q.IsRequired, q.Position)
	if err != nil {
		return domain.QuestionRecord{}, fmt.Errorf("insert question: %w", err)
	}
	q.Answers = nil
	return q, nil
}

func (s *Store) insertAnswer(ctx context.Context, tx pgx.Tx, questionID string, a domain.AnswerRecord) (domain.AnswerRecord, error) {
	a.ID = s.newID()
	a.QuestionID = questionID
	_, err := tx.Exec(ctx,
		`INSERT INTO answers (id, question_id, text, is_correct, position) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, questionID, a.Text, a.IsCorrect, a.Position)
	if err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("insert answer: %w", err)
	}
	return a, nil
}

func (s *Store) CreateQuestion(ctx context.Context, quizID string, question domain.QuestionRecord) (domain.QuestionRecord, error) {
	var out domain.QuestionRecord
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id=$1)`, quizID).Scan(&exists); err != nil {
			return fmt.Errorf("check quiz: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
		}
		created, err := s.insertQuestion(ctx, tx, quizID, question)
		if err != nil {
			return err
		}
		for j, a := range question.Answers {
			a.Position = j
			ar, err := s.insertAnswer(ctx, tx, created.ID, a)
			if err != nil {
				return err
			}
			created.Answers = append(created.Answers, ar)
		}
		out = created
		return s.touch(ctx, tx, quizID)
	})
	return out, err
}

func (s *Store) UpdateQuestion(ctx context.Context, questionID string, question domain.QuestionRecord) (domain.QuestionRecord, error) {
	var quizID string
	err := s.pool.QueryRow(ctx,
		`UPDATE questions SET text=$2, type=$3, explanation=$4, points=$5, is_required=$6, position=$7
		  WHERE id=$1 RETURNING quiz_id`,
		questionID, question.Text, string(question.Type), question.Explanation, question.Points, question.IsRequired, question.Position,
	).Scan(&quizID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionRecord{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if err != nil {
		return domain.QuestionRecord{}, fmt.Errorf("update question: %w", err)
	}
	out := question
	out.ID = questionID
	out.QuizID = quizID
	out.Answers = nil
	return out, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, questionID)
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReorderQuestions assigns positions in the order given. Every id must belong
// to the quiz; unlisted questions are moved after the listed ones.
func (s *Store) ReorderQuestions(ctx context.Context, quizID string, questionIDs []string) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE questions SET position = position + $2 WHERE quiz_id=$1`, quizID, len(questionIDs)); err != nil {
			return fmt.Errorf("shift questions: %w", err)
		}
		for i, id := range questionIDs {
			tag, err := tx.Exec(ctx, `UPDATE questions SET position=$3 WHERE id=$1 AND quiz_id=$2`, id, quizID, i)
			if err != nil {
				return fmt.Errorf("reorder questions: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
			}
		}
		return s.touch(ctx, tx, quizID)
	})
}

func (s *Store) CreateAnswer(ctx context.Context, questionID string, answer domain.AnswerRecord) (domain.AnswerRecord, error) {
	var out domain.AnswerRecord
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE id=$1)`, questionID).Scan(&exists); err != nil {
			return fmt.Errorf("check question: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
		}
		created, err := s.insertAnswer(ctx, tx, questionID, answer)
		out = created
		return err
	})
	return out, err
}

func (s *Store) UpdateAnswer(ctx context.Context, answerID string, answer domain.AnswerRecord) (domain.AnswerRecord, error) {
	var questionID string
	err := s.pool.QueryRow(ctx,
		`UPDATE answers SET text=$2, is_correct=$3, position=$4 WHERE id=$1 RETURNING question_id`,
		answerID, answer.Text, answer.IsCorrect, answer.Position,
	).Scan(&questionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnswerRecord{}, fmt.Errorf("%w: %s", domain.ErrAnswerNotFound, answerID)
	}
	if err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("update answer: %w", err)
	}
	out := answer
	out.ID = answerID
	out.QuestionID = questionID
	return out, nil
}

func (s *Store) DeleteAnswer(ctx context.Context, answerID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM answers WHERE id=$1`, answerID)
	if err != nil {
		return false, fmt.Errorf("delete answer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
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

// SubmitQuiz grades against the stored answer key and records the submission.
func (s *Store) SubmitQuiz(ctx context.Context, req domain.SubmitRequest) (domain.SubmissionResult, error) {
	rec, err := s.GetQuizForInstructor(ctx, req.QuizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if req.EndTime.IsZero() {
		req.EndTime = s.now()
	}
	if req.StartTime.IsZero() {
		req.StartTime = req.EndTime
	}
	sub := grading.Record(s.newID(), rec.ToQuiz(), req)
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, quiz_id, user_id, score, total_points, is_passed, start_time, end_time, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.QuizID, sub.UserID, sub.Score, sub.TotalPoints, sub.IsPassed, sub.StartTime, sub.EndTime, answers)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

const submissionColumns = `id, quiz_id, user_id, score, total_points, is_passed, start_time, end_time, answers`

func scanSubmission(row pgx.Row) (domain.SubmissionResult, error) {
	var (
		sub     domain.SubmissionResult
		answers []byte
	)
	if err := row.Scan(&sub.ID, &sub.QuizID, &sub.UserID, &sub.Score, &sub.TotalPoints, &sub.IsPassed, &sub.StartTime, &sub.EndTime, &answers); err != nil {
		return domain.SubmissionResult{}, err
	}
	if err := json.Unmarshal(answers, &sub.Answers); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("unmarshal submission answers: %w", err)
	}
	return sub, nil
}

func (s *Store) listSubmissions(ctx context.Context, sql string, args ...interface{}) ([]domain.SubmissionResult, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []domain.SubmissionResult
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) GetQuizSubmissions(ctx context.Context, quizID string) ([]domain.SubmissionResult, error) {
	return s.listSubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE quiz_id=$1 ORDER BY end_time, id`, quizID)
}

func (s *Store) GetSubmissionHistory(ctx context.Context, quizID, userID string) ([]domain.SubmissionResult, error) {
	return s.listSubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE quiz_id=$1 AND user_id=$2 ORDER BY end_time, id`, quizID, userID)
}

func (s *Store) GetLatestSubmission(ctx context.Context, quizID, userID string) (domain.SubmissionResult, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE quiz_id=$1 AND user_id=$2 ORDER BY end_time DESC, id DESC LIMIT 1`,
		quizID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubmissionResult{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("latest submission: %w", err)
	}
	return sub, nil
}
