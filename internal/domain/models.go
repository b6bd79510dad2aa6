package domain

import "time"

// QuestionType tags which variant of question a Question is.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Text           QuestionType = "text"
)

// Labels used for the fixed true/false options.
const (
	TrueLabel  = "Đúng"
	FalseLabel = "Sai"
)

// DefaultPassingScore is applied to quizzes created with default settings.
const DefaultPassingScore = 70

// Option is one selectable answer of a choice question.
type Option struct {
	ID        string `json:"id" yaml:"id"`
	RemoteID  string `json:"remoteId,omitempty" yaml:"remoteId"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"isCorrect" yaml:"isCorrect"`
}

// Question is a single quiz item. Which fields are meaningful depends on Type,
// see Kind.
type Question struct {
	ID          string       `json:"id" yaml:"id"`
	RemoteID    string       `json:"remoteId,omitempty" yaml:"remoteId"`
	Text        string       `json:"text" yaml:"text"`
	Type        QuestionType `json:"type" yaml:"type"`
	Options     []Option     `json:"options" yaml:"options"`
	Explanation string       `json:"explanation,omitempty" yaml:"explanation"`
	Points      float64      `json:"points" yaml:"points"`
	IsRequired  bool         `json:"isRequired" yaml:"isRequired"`
}

// QuizSettings controls how a quiz is taken and graded.
type QuizSettings struct {
	RandomizeQuestions  bool    `json:"randomizeQuestions" yaml:"randomizeQuestions"`
	ShowCorrectAnswers  bool    `json:"showCorrectAnswers" yaml:"showCorrectAnswers"`
	AllowRetake         bool    `json:"allowRetake" yaml:"allowRetake"`
	RequirePassingScore bool    `json:"requirePassingScore" yaml:"requirePassingScore"`
	PassingScore        float64 `json:"passingScore" yaml:"passingScore"`
	// TimeLimit is in minutes; zero means unlimited.
	TimeLimit int `json:"timeLimit,omitempty" yaml:"timeLimit"`
}

// DefaultSettings returns the settings a freshly created quiz starts with.
func DefaultSettings() QuizSettings {
	return QuizSettings{
		ShowCorrectAnswers: true,
		AllowRetake:        true,
		PassingScore:       DefaultPassingScore,
	}
}

// Quiz is the authored definition of a test.
type Quiz struct {
	ID        string       `json:"id" yaml:"id"`
	LectureID string       `json:"lectureId,omitempty" yaml:"lectureId"`
	Title     string       `json:"title" yaml:"title"`
	Questions []Question   `json:"questions" yaml:"questions"`
	Settings  QuizSettings `json:"settings" yaml:"settings"`
}

// Answer is what a student gave for one question.
type Answer struct {
	QuestionID        string   `json:"questionId" yaml:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds,omitempty" yaml:"selectedOptionIds"`
	TextAnswer        string   `json:"textAnswer,omitempty" yaml:"textAnswer"`
}

// QuestionResult is the graded outcome of one question. Correct is nil when the
// question cannot be graded automatically.
type QuestionResult struct {
	QuestionID        string   `json:"questionId"`
	Correct           *bool    `json:"correct"`
	EarnedPoints      float64  `json:"earnedPoints"`
	Points            float64  `json:"points"`
	SelectedOptionIDs []string `json:"selectedOptionIds,omitempty"`
	TextAnswer        string   `json:"textAnswer,omitempty"`
	CorrectOptionIDs  []string `json:"correctOptionIds,omitempty"`
	Explanation       string   `json:"explanation,omitempty"`
}

// QuizResult aggregates the graded questions of one attempt.
type QuizResult struct {
	Questions       []QuestionResult `json:"questions"`
	TotalScore      float64          `json:"totalScore"`
	MaxScore        float64          `json:"maxScore"`
	PercentageScore float64          `json:"percentageScore"`
	Passed          bool             `json:"passed"`
}

// Submission is an immutable record of one finished attempt.
type Submission struct {
	ID          string     `json:"id"`
	QuizID      string     `json:"quizId"`
	UserID      string     `json:"userId,omitempty"`
	Answers     []Answer   `json:"answers"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Score       float64    `json:"score"`
	TotalPoints float64    `json:"totalPoints"`
	IsPassed    bool       `json:"isPassed"`
	Result      QuizResult `json:"result"`
}
