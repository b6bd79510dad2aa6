package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"quiz-studio/internal/debounce"
	"quiz-studio/internal/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CopySuffix is appended to the text of a duplicated question.
const CopySuffix = " (bản sao)"

// Direction moves a question towards the start (Up) or the end (Down).
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// Settings field names accepted by UpdateSettings.
const (
	SettingRandomizeQuestions  = "randomizeQuestions"
	SettingShowCorrectAnswers  = "showCorrectAnswers"
	SettingAllowRetake         = "allowRetake"
	SettingRequirePassingScore = "requirePassingScore"
	SettingPassingScore        = "passingScore"
	SettingTimeLimit           = "timeLimit"
)

// EditorOptions tune an Editor. Zero values get defaults.
type EditorOptions struct {
	Scheduler        debounce.Scheduler
	NewID            func() string
	Notifier         Notifier
	Logger           *zerolog.Logger
	TextDelay        time.Duration
	ExplanationDelay time.Duration
	SettingsDelay    time.Duration
	// Cache, when set, is invalidated after each change reaches the backend.
	Cache QuizCache
	// OnChange is called, outside the editor lock, after every local or
	// reconciled change.
	OnChange func(EditorSnapshot)
}

func (o *EditorOptions) withDefaults() {
	if o.Scheduler == nil {
		o.Scheduler = debounce.RealScheduler
	}
	if o.NewID == nil {
		o.NewID = domain.NewID
	}
	if o.Notifier == nil {
		o.Notifier = defaultNotifier()
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
	if o.TextDelay <= 0 {
		o.TextDelay = 600 * time.Millisecond
	}
	if o.ExplanationDelay <= 0 {
		o.ExplanationDelay = 800 * time.Millisecond
	}
	if o.SettingsDelay <= 0 {
		o.SettingsDelay = 600 * time.Millisecond
	}
}

// EditorSnapshot is the read model handed to presentation layers.
type EditorSnapshot struct {
	Quiz               domain.Quiz `json:"quiz"`
	TotalPoints        float64     `json:"totalPoints"`
	HasValidQuestions  bool        `json:"hasValidQuestions"`
	ExpandedQuestionID string      `json:"expandedQuestionId"`
}

// Editor is the Authoring Engine. It owns one quiz document; every mutation
// applies locally first and is then synced to the AuthoringAPI in the
// background, in the order the mutations happened.
type Editor struct {
	api       AuthoringAPI
	opts      EditorOptions
	log       zerolog.Logger
	debouncer *debounce.Debouncer

	mu       sync.Mutex
	quiz     domain.Quiz
	expanded string
	// remote maps local question/option ids to server-assigned ids.
	remote map[string]string

	queue syncQueue
}

// OpenEditor loads quizID for editing. When the quiz does not exist yet (or
// quizID is empty) a default quiz is created for lectureID. A load failure is
// returned as is; the caller has no quiz to edit.
func OpenEditor(ctx context.Context, api AuthoringAPI, lectureID, quizID string, opts EditorOptions) (*Editor, error) {
	opts.withDefaults()
	e := &Editor{
		api:       api,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "editor").Logger(),
		debouncer: debounce.New(opts.Scheduler),
		remote:    make(map[string]string),
	}

	var rec domain.QuizRecord
	var err error
	if quizID != "" {
		rec, err = api.GetQuizForInstructor(ctx, quizID)
	}
	switch {
	case quizID != "" && err == nil:
		e.quiz = rec.ToQuiz()
		for _, q := range e.quiz.Questions {
			if err := domain.ValidateQuestion(q); err != nil {
				e.log.Warn().Err(err).Str("questionId", q.ID).Msg("loaded question fails validation")
			}
			e.remote[q.ID] = q.RemoteID
			for _, o := range q.Options {
				e.remote[o.ID] = o.RemoteID
			}
		}
	case quizID == "" || errors.Is(err, domain.ErrQuizNotFound):
		if err := e.createDefault(ctx, lectureID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("open quiz %s: %w", quizID, err)
	}

	if len(e.quiz.Questions) > 0 {
		e.expanded = e.quiz.Questions[0].ID
	}
	e.log = e.log.With().Str("quizId", e.quiz.ID).Logger()
	e.queue.start(e)
	if len(e.quiz.Questions) > 0 && e.remote[e.quiz.Questions[0].ID] == "" {
		e.enqueueFor(e.quiz.Questions[0].ID, "createQuestion", e.createQuestionJob(e.quiz.Questions[0].ID), nil)
	}
	return e, nil
}

func (e *Editor) createDefault(ctx context.Context, lectureID string) error {
	q, err := domain.NewQuestion(domain.SingleChoice, e.opts.NewID)
	if err != nil {
		return err
	}
	quiz := domain.Quiz{LectureID: lectureID, Settings: domain.DefaultSettings()}
	rec, err := e.api.CreateQuiz(ctx, lectureID, domain.QuizRecord{
		LectureID: lectureID,
		Title:     quiz.Title,
		Settings:  quiz.Settings,
	})
	if err != nil {
		return fmt.Errorf("create quiz for lecture %s: %w", lectureID, err)
	}
	quiz.ID = rec.ID
	quiz.Questions = []domain.Question{q}
	e.quiz = quiz
	return nil
}

// Snapshot returns a copy of the current document.
func (e *Editor) Snapshot() EditorSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Editor) snapshotLocked() EditorSnapshot {
	quiz := e.quiz.Clone()
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		q.RemoteID = e.remote[q.ID]
		for j := range q.Options {
			q.Options[j].RemoteID = e.remote[q.Options[j].ID]
		}
	}
	return EditorSnapshot{
		Quiz:               quiz,
		TotalPoints:        quiz.TotalPoints(),
		HasValidQuestions:  quiz.HasValidQuestions(),
		ExpandedQuestionID: e.expanded,
	}
}

// changed takes a snapshot under the lock and releases it before notifying.
func (e *Editor) changed() domain.Quiz {
	snap := e.snapshotLocked()
	e.mu.Unlock()
	if e.opts.OnChange != nil {
		e.opts.OnChange(snap)
	}
	return snap.Quiz
}

func (e *Editor) questionLocked(id string) (*domain.Question, domain.Kind, error) {
	i := e.quiz.QuestionIndex(id)
	if i < 0 {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	q := &e.quiz.Questions[i]
	k, err := domain.KindOf(q.Type)
	if err != nil {
		return nil, nil, err
	}
	return q, k, nil
}

func textKey(questionID string) string        { return "q:" + questionID + ":text" }
func explanationKey(questionID string) string { return "q:" + questionID + ":explanation" }
func optionKey(questionID, optionID string) string {
	return "q:" + questionID + ":opt:" + optionID
}

const settingsKey = "settings"

// AddQuestion appends a default single-choice question and expands it.
func (e *Editor) AddQuestion() domain.Quiz {
	q, _ := domain.NewQuestion(domain.SingleChoice, e.opts.NewID)

	e.mu.Lock()
	e.quiz.Questions = append(e.quiz.Questions, q)
	e.expanded = q.ID
	e.enqueueFor(q.ID, "createQuestion", e.createQuestionJob(q.ID), nil)
	return e.changed()
}

// RemoveQuestion deletes a question. If it was expanded, the new first
// question (or none) is expanded.
func (e *Editor) RemoveQuestion(id string) (domain.Quiz, error) {
	e.mu.Lock()
	i := e.quiz.QuestionIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	e.quiz.Questions = append(e.quiz.Questions[:i], e.quiz.Questions[i+1:]...)
	if e.expanded == id {
		e.expanded = ""
		if len(e.quiz.Questions) > 0 {
			e.expanded = e.quiz.Questions[0].ID
		}
	}
	e.debouncer.CancelPrefix("q:" + id + ":")
	e.enqueueFor(id, "deleteQuestion", e.deleteQuestionJob(id), nil)
	return e.changed(), nil
}

// DuplicateQuestion appends a deep copy of a question with fresh ids.
func (e *Editor) DuplicateQuestion(id string) (domain.Quiz, error) {
	e.mu.Lock()
	src, _, err := e.questionLocked(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	dup := src.Clone()
	dup.ID = e.opts.NewID()
	dup.RemoteID = ""
	dup.Text += CopySuffix
	for j := range dup.Options {
		dup.Options[j].ID = e.opts.NewID()
		dup.Options[j].RemoteID = ""
	}
	e.quiz.Questions = append(e.quiz.Questions, dup)
	e.expanded = dup.ID
	e.enqueueFor(dup.ID, "createQuestion", e.createQuestionJob(dup.ID), nil)
	return e.changed(), nil
}

// UpdateQuestionText sets the question text; the remote update is debounced.
func (e *Editor) UpdateQuestionText(id, text string) (domain.Quiz, error) {
	e.mu.Lock()
	q, _, err := e.questionLocked(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	q.Text = text
	e.debounceUpdateQuestion(textKey(id), e.opts.TextDelay, id)
	return e.changed(), nil
}

// UpdateExplanation sets the explanation; the remote update is debounced.
func (e *Editor) UpdateExplanation(id, text string) (domain.Quiz, error) {
	e.mu.Lock()
	q, _, err := e.questionLocked(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	q.Explanation = text
	e.debounceUpdateQuestion(explanationKey(id), e.opts.ExplanationDelay, id)
	return e.changed(), nil
}

func (e *Editor) debounceUpdateQuestion(key string, delay time.Duration, id string) {
	e.debouncer.Do(key, delay, func() {
		e.enqueueFor(id, "updateQuestion", e.updateQuestionJob(id), nil)
	})
}

// UpdateQuestionType switches the question variant and re-derives its options.
func (e *Editor) UpdateQuestionType(id string, t domain.QuestionType) (domain.Quiz, error) {
	k, err := domain.KindOf(t)
	if err != nil {
		return domain.Quiz{}, err
	}

	e.mu.Lock()
	q, _, err := e.questionLocked(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	if q.Type == t {
		return e.changed(), nil
	}
	before := q.Clone()
	q.Options = k.Shape(*q, e.opts.NewID)
	q.Type = t
	after := q.Clone()
	for _, o := range before.Options {
		if after.OptionIndex(o.ID) < 0 {
			e.debouncer.Cancel(optionKey(id, o.ID))
		}
	}
	e.enqueueFor(id, "updateQuestion", e.updateQuestionJob(id), nil)
	e.enqueueFor(id, "syncOptions", e.syncOptionsJob(id, before.Options), nil)
	return e.changed(), nil
}

// AddOption appends a blank, incorrect option.
func (e *Editor) AddOption(questionID string) (domain.Quiz, error) {
	e.mu.Lock()
	q, k, err := e.questionLocked(questionID)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	if !k.OptionsEditable() {
		e.mu.Unlock()
		return domain.Quiz{}, domain.ErrFixedOptions
	}
	opt := domain.Option{ID: e.opts.NewID()}
	q.Options = append(q.Options, opt)
	e.enqueueFor(questionID, "createAnswer", e.createAnswerJob(questionID, opt.ID), nil)
	return e.changed(), nil
}

// RemoveOption deletes an option unless the question would keep fewer than two.
func (e *Editor) RemoveOption(questionID, optionID string) (domain.Quiz, error) {
	e.mu.Lock()
	q, k, err := e.questionLocked(questionID)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	if !k.OptionsEditable() {
		e.mu.Unlock()
		return domain.Quiz{}, domain.ErrFixedOptions
	}
	j := q.OptionIndex(optionID)
	if j < 0 {
		e.mu.Unlock()
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrOptionNotFound, optionID)
	}
	if len(q.Options) <= 2 {
		e.mu.Unlock()
		return domain.Quiz{}, domain.ErrOptionFloor
	}
	q.Options = append(q.Options[:j], q.Options[j+1:]...)
	e.debouncer.Cancel(optionKey(questionID, optionID))
	e.enqueueFor(questionID, "deleteAnswer", e.deleteAnswerJob(optionID), nil)
	return e.changed(), nil
}

// UpdateOptionText sets an option's text; the remote update is debounced per option.
func (e *Editor) UpdateOptionText(questionID, optionID, text string) (domain.Quiz, error) {
	e.mu.Lock()
	q, _, err := e.questionLocked(questionID)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	j := q.OptionIndex(optionID)
	if j < 0 {
		e.mu.Unlock()
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrOptionNotFound, optionID)
	}
	q.Options[j].Text = text
	e.debouncer.Do(optionKey(questionID, optionID), e.opts.TextDelay, func() {
		e.enqueueFor(questionID, "updateAnswer", e.updateAnswerJob(questionID, optionID), nil)
	})
	return e.changed(), nil
}

// ToggleOptionCorrect marks an option correct. Single-answer variants clear all
// siblings; multiple choice flips only this option. A failed remote update
// rolls the correctness flags back.
func (e *Editor) ToggleOptionCorrect(questionID, optionID string) (domain.Quiz, error) {
	e.mu.Lock()
	q, k, err := e.questionLocked(questionID)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	opts, err := k.ToggleCorrect(q.Options, optionID)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, fmt.Errorf("%w: %s", err, optionID)
	}
	before := q.Clone().Options
	q.Options = opts
	e.enqueueFor(questionID, "toggleCorrect", e.toggleCorrectJob(questionID, optionID, k.SingleCorrect()), func(error) {
		e.rollbackCorrectness(questionID, before)
	})
	return e.changed(), nil
}

func (e *Editor) rollbackCorrectness(questionID string, before []domain.Option) {
	e.mu.Lock()
	i := e.quiz.QuestionIndex(questionID)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	q := &e.quiz.Questions[i]
	for j := range q.Options {
		for _, prev := range before {
			if prev.ID == q.Options[j].ID {
				q.Options[j].IsCorrect = prev.IsCorrect
			}
		}
	}
	e.changed()
}

// UpdatePoints sets the question's points.
func (e *Editor) UpdatePoints(id string, points float64) (domain.Quiz, error) {
	if points < 0 || math.IsNaN(points) || math.IsInf(points, 0) {
		return domain.Quiz{}, domain.ErrInvalidPoints
	}
	e.mu.Lock()
	q, _, err := e.questionLocked(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	q.Points = points
	e.enqueueFor(id, "updateQuestion", e.updateQuestionJob(id), nil)
	return e.changed(), nil
}

// ToggleRequired flips whether the question must be answered. It is not
// synced on its own; the next question update carries it.
func (e *Editor) ToggleRequired(id string) (domain.Quiz, error) {
	e.mu.Lock()
	q, _, err := e.questionLocked(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	q.IsRequired = !q.IsRequired
	return e.changed(), nil
}

// MoveQuestion swaps a question with its neighbour. Moving past either end is
// a no-op. The new order is persisted.
func (e *Editor) MoveQuestion(id string, dir Direction) (domain.Quiz, error) {
	e.mu.Lock()
	i := e.quiz.QuestionIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	j := i + int(dir)
	if dir == 0 || j < 0 || j >= len(e.quiz.Questions) {
		return e.changed(), nil
	}
	e.quiz.Questions[i], e.quiz.Questions[j] = e.quiz.Questions[j], e.quiz.Questions[i]
	e.enqueue("reorderQuestions", e.reorderJob(), nil)
	return e.changed(), nil
}

// ExpandQuestion selects which question the UI shows expanded; "" collapses all.
func (e *Editor) ExpandQuestion(id string) (domain.Quiz, error) {
	e.mu.Lock()
	if id != "" && e.quiz.QuestionIndex(id) < 0 {
		e.mu.Unlock()
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
	}
	e.expanded = id
	return e.changed(), nil
}

// UpdateTitle sets the quiz title; it is persisted with the settings.
func (e *Editor) UpdateTitle(title string) domain.Quiz {
	e.mu.Lock()
	e.quiz.Title = title
	e.debounceUpdateQuiz()
	return e.changed()
}

// UpdateSettings sets one settings field. Every change is persisted, debounced.
// Numbers may arrive as any numeric type (JSON decodes them as float64).
func (e *Editor) UpdateSettings(field string, value any) (domain.Quiz, error) {
	e.mu.Lock()
	settings := e.quiz.Settings
	if err := applySetting(&settings, field, value); err != nil {
		e.mu.Unlock()
		return domain.Quiz{}, err
	}
	e.quiz.Settings = settings
	e.debounceUpdateQuiz()
	return e.changed(), nil
}

func (e *Editor) debounceUpdateQuiz() {
	e.debouncer.Do(settingsKey, e.opts.SettingsDelay, func() {
		e.enqueue("updateQuiz", e.updateQuizJob(), nil)
	})
}

func applySetting(s *domain.QuizSettings, field string, value any) error {
	switch field {
	case SettingRandomizeQuestions, SettingShowCorrectAnswers, SettingAllowRetake, SettingRequirePassingScore:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", domain.ErrInvalidSetting, field)
		}
		switch field {
		case SettingRandomizeQuestions:
			s.RandomizeQuestions = b
		case SettingShowCorrectAnswers:
			s.ShowCorrectAnswers = b
		case SettingAllowRetake:
			s.AllowRetake = b
		default:
			s.RequirePassingScore = b
		}
	case SettingPassingScore:
		n, ok := toFloat(value)
		if !ok || n < 0 || n > 100 {
			return fmt.Errorf("%w: passingScore must be between 0 and 100", domain.ErrInvalidSetting)
		}
		s.PassingScore = n
	case SettingTimeLimit:
		if value == nil {
			s.TimeLimit = 0
			return nil
		}
		n, ok := toFloat(value)
		if !ok || n < 0 || n != math.Trunc(n) {
			return fmt.Errorf("%w: timeLimit must be a whole number of minutes", domain.ErrInvalidSetting)
		}
		s.TimeLimit = int(n)
	default:
		return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidSetting, field)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Submissions lists what students submitted for this quiz.
func (e *Editor) Submissions(ctx context.Context) ([]domain.SubmissionResult, error) {
	e.mu.Lock()
	quizID := e.quiz.ID
	e.mu.Unlock()
	subs, err := e.api.GetQuizSubmissions(ctx, quizID)
	if err != nil {
		e.notifyFailure("getQuizSubmissions", err)
		return nil, err
	}
	return subs, nil
}

// Preview starts a local attempt over the current document, graded locally.
func (e *Editor) Preview(opts AttemptOptions) *Attempt {
	snap := e.Snapshot()
	opts.Grader = LocalGrader{NewID: e.opts.NewID}
	return NewAttempt(snap.Quiz.ID, StaticQuiz(snap.Quiz), opts)
}

// Flush sends debounced edits now and waits until every queued remote call
// has finished.
func (e *Editor) Flush() {
	e.debouncer.Flush()
	e.queue.wait()
}

// Wait blocks until every queued remote call has finished. Debounced edits
// still in their window are not sent.
func (e *Editor) Wait() {
	e.queue.wait()
}

// Close flushes pending edits and stops the sync worker.
func (e *Editor) Close() {
	e.debouncer.Flush()
	e.queue.close()
}
