package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates an option ID is not part of its question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAnswerNotFound indicates a remote answer record does not exist.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrInvalidQuestionType is returned for a type outside the known variants.
	ErrInvalidQuestionType = errors.New("invalid question type")
	// ErrOptionFloor is returned when removing an option would leave fewer than two.
	ErrOptionFloor = errors.New("a question needs at least two options")
	// ErrFixedOptions is returned when adding or removing options on a question whose options are fixed.
	ErrFixedOptions = errors.New("options of this question type cannot be added or removed")
	// ErrInvalidPoints is returned for negative point values.
	ErrInvalidPoints = errors.New("points must not be negative")
	// ErrInvalidSetting is returned for an unknown settings field or a value of the wrong type.
	ErrInvalidSetting = errors.New("invalid quiz setting")
	// ErrInvalidPhase is returned when an attempt operation is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrRetakeNotAllowed is returned when the quiz does not allow another attempt.
	ErrRetakeNotAllowed = errors.New("retake not allowed")
	// ErrScoreMismatch is returned when a remote grading result disagrees with local grading.
	ErrScoreMismatch = errors.New("remote score does not match local grading")
	// ErrSubmissionNotFound is returned when no submission exists yet.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// errorCodes are the stable wire names of the sentinel errors.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrQuizNotFound, "quiz_not_found"},
	{ErrQuestionNotFound, "question_not_found"},
	{ErrOptionNotFound, "option_not_found"},
	{ErrAnswerNotFound, "answer_not_found"},
	{ErrSubmissionNotFound, "submission_not_found"},
	{ErrInvalidQuestionType, "invalid_question_type"},
	{ErrOptionFloor, "option_floor"},
	{ErrFixedOptions, "fixed_options"},
	{ErrInvalidPoints, "invalid_points"},
	{ErrInvalidSetting, "invalid_setting"},
	{ErrInvalidPhase, "invalid_phase"},
	{ErrRetakeNotAllowed, "retake_not_allowed"},
	{ErrScoreMismatch, "score_mismatch"},
}

// ErrorCode returns the wire name of the sentinel err wraps, or "" if none.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ""
}

// ErrorFromCode maps a wire name back to its sentinel, or nil if unknown.
func ErrorFromCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuizNotFound) || errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrOptionNotFound) || errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrSubmissionNotFound)
}
