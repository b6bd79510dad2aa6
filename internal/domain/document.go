package domain

import (
	"fmt"
	"strings"

	"github.com/jinzhu/copier"
)

// TotalPoints is the sum of all question points. It is always derived.
func (q Quiz) TotalPoints() float64 {
	total := 0.0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// HasValidQuestions reports whether at least one question has text and, for
// choice questions, at least one option with text.
func (q Quiz) HasValidQuestions() bool {
	for _, question := range q.Questions {
		if strings.TrimSpace(question.Text) == "" {
			continue
		}
		if question.Type == Text {
			return true
		}
		for _, opt := range question.Options {
			if strings.TrimSpace(opt.Text) != "" {
				return true
			}
		}
	}
	return false
}

// QuestionIndex returns the position of the question with id, or -1.
func (q Quiz) QuestionIndex(id string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

// Question looks up a question by id.
func (q Quiz) Question(id string) (Question, bool) {
	if i := q.QuestionIndex(id); i >= 0 {
		return q.Questions[i], true
	}
	return Question{}, false
}

// DeepCopy returns a copy of v that shares no slices, maps or pointers with it.
// It panics if copier rejects the value, which only happens for types it
// cannot walk; the document types are plain structs.
func DeepCopy[T any](v T) T {
	var out T
	if err := copier.CopyWithOption(&out, &v, copier.Option{DeepCopy: true}); err != nil {
		panic(fmt.Sprintf("domain: deep copy %T: %v", v, err))
	}
	return out
}

// Clone returns a deep copy that shares no slices with q.
func (q Quiz) Clone() Quiz { return DeepCopy(q) }

// Clone returns a deep copy of the question.
func (q Question) Clone() Question { return DeepCopy(q) }

// OptionIndex returns the position of the option with id, or -1.
func (q Question) OptionIndex(id string) int {
	return indexOfOption(q.Options, id)
}

// CorrectOptionIDs lists the ids of correct options in order.
func (q Question) CorrectOptionIDs() []string {
	var ids []string
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Answered reports whether the answer holds a selection or non-blank text.
func (a Answer) Answered() bool {
	return len(a.SelectedOptionIDs) > 0 || strings.TrimSpace(a.TextAnswer) != ""
}

// StripAnswerKey removes correctness and explanations, as served to students.
func (q Quiz) StripAnswerKey() Quiz {
	out := q.Clone()
	for i := range out.Questions {
		out.Questions[i].Explanation = ""
		for j := range out.Questions[i].Options {
			out.Questions[i].Options[j].IsCorrect = false
		}
	}
	return out
}
