package grading

import "quiz-studio/internal/domain"

// Record grades req against quiz and returns the result in the backend's
// submission form. Stores that grade server-side use it; the answer key
// travels back only when the quiz shows correct answers.
func Record(id string, quiz domain.Quiz, req domain.SubmitRequest) domain.SubmissionResult {
	res := Grade(quiz, req.Answers)
	out := domain.SubmissionResult{
		ID:          id,
		QuizID:      req.QuizID,
		UserID:      req.UserID,
		Score:       res.TotalScore,
		TotalPoints: res.MaxScore,
		IsPassed:    res.Passed,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Answers:     make([]domain.AnswerResult, 0, len(res.Questions)),
	}
	for _, qr := range res.Questions {
		out.Answers = append(out.Answers, domain.AnswerResult{
			QuestionID:        qr.QuestionID,
			IsCorrect:         qr.Correct,
			EarnedPoints:      qr.EarnedPoints,
			Explanation:       qr.Explanation,
			SelectedOptionIDs: append([]string(nil), qr.SelectedOptionIDs...),
			TextAnswer:        qr.TextAnswer,
			CorrectOptionIDs:  qr.CorrectOptionIDs,
		})
	}
	return out
}
