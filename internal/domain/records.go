package domain

import (
	"sort"
	"time"
)

// QuizRecord is a quiz as stored by the remote course backend.
type QuizRecord struct {
	ID        string           `json:"id"`
	LectureID string           `json:"lectureId,omitempty"`
	Title     string           `json:"title"`
	Settings  QuizSettings     `json:"settings"`
	Questions []QuestionRecord `json:"questions"`
	UpdatedAt time.Time        `json:"updatedAt,omitempty"`
}

// QuestionRecord is a server-side question with its answer records.
type QuestionRecord struct {
	ID          string         `json:"id"`
	QuizID      string         `json:"quizId,omitempty"`
	Text        string         `json:"text"`
	Type        QuestionType   `json:"type"`
	Explanation string         `json:"explanation,omitempty"`
	Points      float64        `json:"points"`
	IsRequired  bool           `json:"isRequired"`
	Position    int            `json:"position"`
	Answers     []AnswerRecord `json:"answers"`
}

// AnswerRecord is a server-side option of a question.
type AnswerRecord struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId,omitempty"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	Position   int    `json:"position"`
}

// SubmitRequest carries a finished attempt to the grading endpoint.
type SubmitRequest struct {
	QuizID    string    `json:"quizId"`
	UserID    string    `json:"userId,omitempty"`
	Answers   []Answer  `json:"answers"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// AnswerResult is the remote grading outcome of one question.
type AnswerResult struct {
	QuestionID        string   `json:"questionId"`
	IsCorrect         *bool    `json:"isCorrect"`
	EarnedPoints      float64  `json:"earnedPoints"`
	Explanation       string   `json:"explanation,omitempty"`
	SelectedOptionIDs []string `json:"selectedOptionIds,omitempty"`
	TextAnswer        string   `json:"textAnswer,omitempty"`
	CorrectOptionIDs  []string `json:"correctOptionIds,omitempty"`
}

// SubmissionResult is a graded submission as returned by the backend.
type SubmissionResult struct {
	ID          string         `json:"id"`
	QuizID      string         `json:"quizId"`
	UserID      string         `json:"userId,omitempty"`
	Score       float64        `json:"score"`
	TotalPoints float64        `json:"totalPoints"`
	IsPassed    bool           `json:"isPassed"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime"`
	Answers     []AnswerResult `json:"answers"`
}

// ToQuiz converts a backend record into a quiz whose local ids equal the
// remote ids. Questions and options are ordered by position.
func (r QuizRecord) ToQuiz() Quiz {
	records := make([]QuestionRecord, len(r.Questions))
	copy(records, r.Questions)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Position < records[j].Position })

	quiz := Quiz{
		ID:        r.ID,
		LectureID: r.LectureID,
		Title:     r.Title,
		Settings:  r.Settings,
		Questions: make([]Question, 0, len(records)),
	}
	for _, rec := range records {
		quiz.Questions = append(quiz.Questions, rec.ToQuestion())
	}
	return quiz
}

// ToQuestion converts a question record, ordering options by position.
func (r QuestionRecord) ToQuestion() Question {
	answers := make([]AnswerRecord, len(r.Answers))
	copy(answers, r.Answers)
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Position < answers[j].Position })

	q := Question{
		ID:          r.ID,
		RemoteID:    r.ID,
		Text:        r.Text,
		Type:        r.Type,
		Explanation: r.Explanation,
		Points:      r.Points,
		IsRequired:  r.IsRequired,
	}
	for _, a := range answers {
		q.Options = append(q.Options, Option{ID: a.ID, RemoteID: a.ID, Text: a.Text, IsCorrect: a.IsCorrect})
	}
	return q
}

// QuestionRecordFrom builds the record sent to the backend for q. Answers
// are not included; they are synced through the answer operations.
func QuestionRecordFrom(q Question, position int) QuestionRecord {
	return QuestionRecord{
		ID:          q.RemoteID,
		Text:        q.Text,
		Type:        q.Type,
		Explanation: q.Explanation,
		Points:      q.Points,
		IsRequired:  q.IsRequired,
		Position:    position,
	}
}

// AnswerRecordFrom builds the record sent to the backend for an option.
func AnswerRecordFrom(o Option, position int) AnswerRecord {
	return AnswerRecord{
		ID:        o.RemoteID,
		Text:      o.Text,
		IsCorrect: o.IsCorrect,
		Position:  position,
	}
}

// RecordFrom converts a whole quiz to its record form, answers included.
func RecordFrom(q Quiz) QuizRecord {
	rec := QuizRecord{
		ID:        q.ID,
		LectureID: q.LectureID,
		Title:     q.Title,
		Settings:  q.Settings,
	}
	for i, question := range q.Questions {
		qr := QuestionRecordFrom(question, i)
		if qr.ID == "" {
			qr.ID = question.ID
		}
		for j, opt := range question.Options {
			ar := AnswerRecordFrom(opt, j)
			if ar.ID == "" {
				ar.ID = opt.ID
			}
			qr.Answers = append(qr.Answers, ar)
		}
		rec.Questions = append(rec.Questions, qr)
	}
	return rec
}
