// Package grading scores quiz answers against an answer key.
//
// Grade is pure: the same quiz and answers always produce the same result,
// which lets the same code serve local preview grading and the replay of a
// remotely graded submission.
package grading

import (
	"fmt"
	"math"

	"quiz-studio/internal/domain"
)

// scoreEpsilon absorbs float noise when comparing local and remote scores.
const scoreEpsilon = 1e-9

// Strategy grades one question of a given type.
type Strategy interface {
	Grade(q domain.Question, a domain.Answer) (correct *bool, earned float64)
}

var strategies = map[domain.QuestionType]Strategy{
	domain.SingleChoice:   singleStrategy{},
	domain.TrueFalse:      singleStrategy{},
	domain.MultipleChoice: multiStrategy{},
	domain.Text:           manualStrategy{},
}

// Grade scores answers against quiz. Answers for unknown questions are ignored;
// unanswered questions score zero.
func Grade(quiz domain.Quiz, answers []domain.Answer) domain.QuizResult {
	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	result := domain.QuizResult{Questions: make([]domain.QuestionResult, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		a := byQuestion[q.ID]
		qr := domain.QuestionResult{
			QuestionID:        q.ID,
			Points:            q.Points,
			SelectedOptionIDs: a.SelectedOptionIDs,
			TextAnswer:        a.TextAnswer,
		}
		if s, ok := strategies[q.Type]; ok {
			qr.Correct, qr.EarnedPoints = s.Grade(q, a)
		}
		if quiz.Settings.ShowCorrectAnswers {
			qr.CorrectOptionIDs = q.CorrectOptionIDs()
			qr.Explanation = q.Explanation
		}
		result.TotalScore += qr.EarnedPoints
		result.MaxScore += q.Points
		result.Questions = append(result.Questions, qr)
	}
	result.PercentageScore = Percentage(result.TotalScore, result.MaxScore)
	result.Passed = Passed(quiz.Settings, result.PercentageScore)
	return result
}

// Percentage returns score as a percentage of max, or 0 when max is 0.
func Percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score * 100 / max
}

// Passed applies the quiz pass threshold to a percentage score.
func Passed(settings domain.QuizSettings, percentage float64) bool {
	return !settings.RequirePassingScore || percentage >= settings.PassingScore
}

// FromSubmission interprets a remotely graded submission against the quiz it
// was taken on. The backend stays authoritative for score and pass/fail; the
// percentage is derived locally.
func FromSubmission(quiz domain.Quiz, sub domain.SubmissionResult) domain.QuizResult {
	byQuestion := make(map[string]domain.AnswerResult, len(sub.Answers))
	for _, a := range sub.Answers {
		byQuestion[a.QuestionID] = a
	}

	result := domain.QuizResult{Questions: make([]domain.QuestionResult, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		a := byQuestion[q.ID]
		qr := domain.QuestionResult{
			QuestionID:        q.ID,
			Correct:           a.IsCorrect,
			EarnedPoints:      a.EarnedPoints,
			Points:            q.Points,
			SelectedOptionIDs: a.SelectedOptionIDs,
			TextAnswer:        a.TextAnswer,
			CorrectOptionIDs:  a.CorrectOptionIDs,
			Explanation:       a.Explanation,
		}
		result.MaxScore += q.Points
		result.Questions = append(result.Questions, qr)
	}
	result.TotalScore = sub.Score
	if sub.TotalPoints > 0 {
		result.MaxScore = sub.TotalPoints
	}
	result.PercentageScore = Percentage(result.TotalScore, result.MaxScore)
	result.Passed = sub.IsPassed
	return result
}

// Verify replays a remote submission through Grade and reports a mismatch in
// the aggregate score or in any automatically graded question.
func Verify(quiz domain.Quiz, sub domain.SubmissionResult) error {
	answers := make([]domain.Answer, 0, len(sub.Answers))
	for _, a := range sub.Answers {
		answers = append(answers, domain.Answer{
			QuestionID:        a.QuestionID,
			SelectedOptionIDs: a.SelectedOptionIDs,
			TextAnswer:        a.TextAnswer,
		})
	}
	local := Grade(quiz, answers)

	remote := make(map[string]domain.AnswerResult, len(sub.Answers))
	for _, a := range sub.Answers {
		remote[a.QuestionID] = a
	}
	manual := 0.0
	for _, qr := range local.Questions {
		if qr.Correct == nil {
			manual += remote[qr.QuestionID].EarnedPoints
			continue
		}
		r := remote[qr.QuestionID]
		if math.Abs(r.EarnedPoints-qr.EarnedPoints) > scoreEpsilon {
			return fmt.Errorf("%w: question %s earned %v remotely, %v locally",
				domain.ErrScoreMismatch, qr.QuestionID, r.EarnedPoints, qr.EarnedPoints)
		}
	}
	if math.Abs(sub.Score-(local.TotalScore+manual)) > scoreEpsilon {
		return fmt.Errorf("%w: score %v remotely, %v locally", domain.ErrScoreMismatch, sub.Score, local.TotalScore+manual)
	}
	return nil
}
