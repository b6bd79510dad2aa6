package grading

import "quiz-studio/internal/domain"

type singleStrategy struct{}

// Grade: exactly one selection, and it is the correct option.
func (singleStrategy) Grade(q domain.Question, a domain.Answer) (*bool, float64) {
	correct := false
	if len(a.SelectedOptionIDs) == 1 {
		keys := q.CorrectOptionIDs()
		correct = len(keys) == 1 && keys[0] == a.SelectedOptionIDs[0]
	}
	return award(correct, q.Points)
}

// multiStrategy is all-or-nothing: the selection must equal the correct set.
type multiStrategy struct{}

func (multiStrategy) Grade(q domain.Question, a domain.Answer) (*bool, float64) {
	return award(setEqual(toSet(q.CorrectOptionIDs()), toSet(a.SelectedOptionIDs)), q.Points)
}

// manualStrategy leaves free-text answers for review.
type manualStrategy struct{}

func (manualStrategy) Grade(domain.Question, domain.Answer) (*bool, float64) {
	return nil, 0
}

func award(correct bool, points float64) (*bool, float64) {
	if correct {
		return &correct, points
	}
	return &correct, 0
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
