package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a fresh client-side identifier.
func NewID() string {
	return uuid.NewString()
}

// Kind captures what a question variant is allowed to do with its options.
// Every QuestionType maps to exactly one Kind.
type Kind interface {
	Type() QuestionType
	// OptionsEditable reports whether options can be added or removed.
	OptionsEditable() bool
	// SingleCorrect reports whether exactly one option may be correct.
	SingleCorrect() bool
	// Shape derives this variant's options from a question of any variant.
	Shape(from Question, newID func() string) []Option
	// ToggleCorrect returns the options after the instructor toggles optionID.
	ToggleCorrect(opts []Option, optionID string) ([]Option, error)
	Validate(q Question) error
}

var kinds = map[QuestionType]Kind{
	SingleChoice:   singleChoiceKind{},
	MultipleChoice: multipleChoiceKind{},
	TrueFalse:      trueFalseKind{},
	Text:           textKind{},
}

// KindOf resolves the variant for t.
func KindOf(t QuestionType) (Kind, error) {
	k, ok := kinds[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQuestionType, t)
	}
	return k, nil
}

// NewQuestion builds a default question of type t: one point, required, and
// the minimal option set for its variant.
func NewQuestion(t QuestionType, newID func() string) (Question, error) {
	k, err := KindOf(t)
	if err != nil {
		return Question{}, err
	}
	q := Question{
		ID:         newID(),
		Type:       t,
		Points:     1,
		IsRequired: true,
	}
	q.Options = k.Shape(Question{Type: Text}, newID)
	return q, nil
}

// ValidateQuestion checks q against the rules of its variant.
func ValidateQuestion(q Question) error {
	k, err := KindOf(q.Type)
	if err != nil {
		return err
	}
	if q.Points < 0 {
		return ErrInvalidPoints
	}
	return k.Validate(q)
}

func blankOptions(n int, newID func() string) []Option {
	opts := make([]Option, n)
	for i := range opts {
		opts[i] = Option{ID: newID()}
	}
	return opts
}

func copyOptions(opts []Option) []Option {
	if opts == nil {
		return nil
	}
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

func indexOfOption(opts []Option, optionID string) int {
	for i := range opts {
		if opts[i].ID == optionID {
			return i
		}
	}
	return -1
}

type singleChoiceKind struct{}

func (singleChoiceKind) Type() QuestionType    { return SingleChoice }
func (singleChoiceKind) OptionsEditable() bool { return true }
func (singleChoiceKind) SingleCorrect() bool   { return true }

func (singleChoiceKind) Shape(from Question, newID func() string) []Option {
	if from.Type != SingleChoice && from.Type != MultipleChoice {
		return blankOptions(2, newID)
	}
	opts := copyOptions(from.Options)
	seen := false
	for i := range opts {
		if opts[i].IsCorrect {
			if seen {
				opts[i].IsCorrect = false
			}
			seen = true
		}
	}
	for len(opts) < 2 {
		opts = append(opts, Option{ID: newID()})
	}
	return opts
}

func (singleChoiceKind) ToggleCorrect(opts []Option, optionID string) ([]Option, error) {
	return exclusiveToggle(opts, optionID)
}

func (singleChoiceKind) Validate(q Question) error {
	if len(q.Options) < 2 {
		return ErrOptionFloor
	}
	return nil
}

type multipleChoiceKind struct{}

func (multipleChoiceKind) Type() QuestionType    { return MultipleChoice }
func (multipleChoiceKind) OptionsEditable() bool { return true }
func (multipleChoiceKind) SingleCorrect() bool   { return false }

func (multipleChoiceKind) Shape(from Question, newID func() string) []Option {
	if from.Type != SingleChoice && from.Type != MultipleChoice {
		return blankOptions(2, newID)
	}
	opts := copyOptions(from.Options)
	for len(opts) < 2 {
		opts = append(opts, Option{ID: newID()})
	}
	return opts
}

func (multipleChoiceKind) ToggleCorrect(opts []Option, optionID string) ([]Option, error) {
	i := indexOfOption(opts, optionID)
	if i < 0 {
		return nil, ErrOptionNotFound
	}
	out := copyOptions(opts)
	out[i].IsCorrect = !out[i].IsCorrect
	return out, nil
}

func (multipleChoiceKind) Validate(q Question) error {
	if len(q.Options) < 2 {
		return ErrOptionFloor
	}
	return nil
}

type trueFalseKind struct{}

func (trueFalseKind) Type() QuestionType    { return TrueFalse }
func (trueFalseKind) OptionsEditable() bool { return false }
func (trueFalseKind) SingleCorrect() bool   { return true }

func (trueFalseKind) Shape(from Question, newID func() string) []Option {
	if from.Type == TrueFalse && len(from.Options) == 2 {
		return copyOptions(from.Options)
	}
	return []Option{
		{ID: newID(), Text: TrueLabel, IsCorrect: true},
		{ID: newID(), Text: FalseLabel},
	}
}

func (trueFalseKind) ToggleCorrect(opts []Option, optionID string) ([]Option, error) {
	return exclusiveToggle(opts, optionID)
}

func (trueFalseKind) Validate(q Question) error {
	if len(q.Options) != 2 {
		return fmt.Errorf("%w: true/false needs exactly two options", ErrFixedOptions)
	}
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("true/false needs exactly one correct option, has %d", correct)
	}
	return nil
}

type textKind struct{}

func (textKind) Type() QuestionType    { return Text }
func (textKind) OptionsEditable() bool { return false }
func (textKind) SingleCorrect() bool   { return false }

func (textKind) Shape(Question, func() string) []Option { return nil }

func (textKind) ToggleCorrect([]Option, string) ([]Option, error) {
	return nil, ErrOptionNotFound
}

func (textKind) Validate(q Question) error {
	if len(q.Options) != 0 {
		return fmt.Errorf("%w: text questions have no options", ErrFixedOptions)
	}
	return nil
}

func exclusiveToggle(opts []Option, optionID string) ([]Option, error) {
	i := indexOfOption(opts, optionID)
	if i < 0 {
		return nil, ErrOptionNotFound
	}
	out := copyOptions(opts)
	for j := range out {
		out[j].IsCorrect = j == i
	}
	return out, nil
}
