package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-studio/internal/domain"
	"quiz-studio/internal/grading"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Phase is the state of an attempt.
type Phase string

const (
	PhaseLoading          Phase = "loading"
	PhaseInProgress       Phase = "in_progress"
	PhaseConfirmingSubmit Phase = "confirming_submit"
	PhaseSubmitting       Phase = "submitting"
	PhaseShowingResults   Phase = "showing_results"
	PhaseError            Phase = "error"
)

// Grader turns a finished attempt into a Submission, locally or remotely.
type Grader interface {
	GradeAttempt(ctx context.Context, quiz domain.Quiz, req domain.SubmitRequest) (domain.Submission, error)
}

// LocalGrader grades with the local Grading Function (instructor preview).
type LocalGrader struct {
	NewID func() string
}

func (g LocalGrader) GradeAttempt(_ context.Context, quiz domain.Quiz, req domain.SubmitRequest) (domain.Submission, error) {
	newID := g.NewID
	if newID == nil {
		newID = domain.NewID
	}
	res := grading.Grade(quiz, req.Answers)
	return domain.Submission{
		ID:          newID(),
		QuizID:      req.QuizID,
		UserID:      req.UserID,
		Answers:     req.Answers,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Score:       res.TotalScore,
		TotalPoints: res.MaxScore,
		IsPassed:    res.Passed,
		Result:      res,
	}, nil
}

// RemoteGrader sends the attempt to the grading endpoint.
type RemoteGrader struct {
	API TakingAPI
}

func (g RemoteGrader) GradeAttempt(ctx context.Context, quiz domain.Quiz, req domain.SubmitRequest) (domain.Submission, error) {
	sub, err := g.API.SubmitQuiz(ctx, req)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("submit quiz: %w", err)
	}
	start, end := sub.StartTime, sub.EndTime
	if start.IsZero() {
		start = req.StartTime
	}
	if end.IsZero() {
		end = req.EndTime
	}
	return domain.Submission{
		ID:          sub.ID,
		QuizID:      req.QuizID,
		UserID:      req.UserID,
		Answers:     req.Answers,
		StartTime:   start,
		EndTime:     end,
		Score:       sub.Score,
		TotalPoints: sub.TotalPoints,
		IsPassed:    sub.IsPassed,
		Result:      grading.FromSubmission(quiz, sub),
	}, nil
}

// StaticQuiz serves a fixed quiz, for previews of a document still being edited.
type StaticQuiz domain.Quiz

func (s StaticQuiz) GetQuiz(context.Context, string) (domain.Quiz, error) {
	return domain.Quiz(s).Clone(), nil
}

// SubmissionLog records graded submissions beyond the lifetime of an Attempt.
type SubmissionLog interface {
	Append(ctx context.Context, sub domain.Submission) error
}

// AttemptOptions tune an Attempt. Zero values get defaults.
type AttemptOptions struct {
	UserID   string
	Grader   Grader
	Log      SubmissionLog
	Notifier Notifier
	Logger   *zerolog.Logger
	Now      func() time.Time
	Rand     *rand.Rand
	// OnChange is called, outside the attempt lock, after every state change.
	OnChange func(AttemptState)
}

// AttemptState is the read model handed to presentation layers.
type AttemptState struct {
	QuizID             string             `json:"quizId"`
	Title              string             `json:"title"`
	Phase              Phase              `json:"phase"`
	Index              int                `json:"index"`
	Questions          []domain.Question  `json:"questions"`
	Answers            []domain.Answer    `json:"answers"`
	RemainingSeconds   int                `json:"remainingSeconds"`
	Timed              bool               `json:"timed"`
	UnansweredRequired int                `json:"unansweredRequired"`
	Result             *domain.QuizResult `json:"result,omitempty"`
	CanRetake          bool               `json:"canRetake"`
	Error              string             `json:"error,omitempty"`
}

// Attempt is the Taking Engine: one student's run through a quiz.
type Attempt struct {
	quizID  string
	quizzes QuizRepository
	opts    AttemptOptions
	log     zerolog.Logger

	mu          sync.Mutex
	phase       Phase
	quiz        domain.Quiz
	order       []int
	index       int
	answers     map[string]domain.Answer
	remaining   int
	startedAt   time.Time
	result      *domain.QuizResult
	submissions []domain.Submission
	loadErr     error
	closed      bool
}

func NewAttempt(quizID string, quizzes QuizRepository, opts AttemptOptions) *Attempt {
	if opts.Grader == nil {
		opts.Grader = LocalGrader{}
	}
	if opts.Notifier == nil {
		opts.Notifier = defaultNotifier()
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Attempt{
		quizID:  quizID,
		quizzes: quizzes,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "attempt").Str("quizId", quizID).Logger(),
		phase:   PhaseLoading,
		answers: make(map[string]domain.Answer),
	}
}

// Start loads the quiz and begins the attempt. A load failure moves the
// attempt to PhaseError; only a fresh Attempt can recover from it.
func (a *Attempt) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.phase != PhaseLoading {
		a.mu.Unlock()
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidPhase, a.phase)
	}
	a.mu.Unlock()

	quiz, err := a.quizzes.GetQuiz(ctx, a.quizID)

	a.mu.Lock()
	if err != nil {
		a.phase = PhaseError
		a.loadErr = err
		a.log.Error().Err(err).Msg("load quiz failed")
		a.changed()
		return fmt.Errorf("load quiz %s: %w", a.quizID, err)
	}
	a.quiz = quiz
	a.beginLocked()
	a.changed()
	return nil
}

// beginLocked resets answers and timer and enters PhaseInProgress.
func (a *Attempt) beginLocked() {
	a.order = make([]int, len(a.quiz.Questions))
	for i := range a.order {
		a.order[i] = i
	}
	if a.quiz.Settings.RandomizeQuestions {
		a.opts.Rand.Shuffle(len(a.order), func(i, j int) { a.order[i], a.order[j] = a.order[j], a.order[i] })
	}
	a.index = 0
	a.answers = make(map[string]domain.Answer)
	a.remaining = a.quiz.Settings.TimeLimit * 60
	a.startedAt = a.opts.Now()
	a.result = nil
	a.phase = PhaseInProgress
}

// State returns a snapshot of the attempt.
func (a *Attempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Attempt) stateLocked() AttemptState {
	st := AttemptState{
		QuizID:             a.quizID,
		Title:              a.quiz.Title,
		Phase:              a.phase,
		Index:              a.index,
		RemainingSeconds:   a.remaining,
		Timed:              a.quiz.Settings.TimeLimit > 0,
		UnansweredRequired: a.unansweredRequiredLocked(),
		CanRetake:          a.phase == PhaseShowingResults && a.quiz.Settings.AllowRetake,
	}
	for _, i := range a.order {
		q := a.quiz.Questions[i]
		st.Questions = append(st.Questions, q.Clone())
		if ans, ok := a.answers[q.ID]; ok {
			st.Answers = append(st.Answers, cloneAnswer(ans))
		}
	}
	if a.result != nil {
		res := *a.result
		st.Result = &res
	}
	if a.loadErr != nil {
		st.Error = a.loadErr.Error()
	}
	return st
}

func (a *Attempt) changed() {
	st := a.stateLocked()
	a.mu.Unlock()
	if a.opts.OnChange != nil {
		a.opts.OnChange(st)
	}
}

func cloneAnswer(ans domain.Answer) domain.Answer {
	out := ans
	out.SelectedOptionIDs = append([]string(nil), ans.SelectedOptionIDs...)
	return out
}

// Submissions returns the attempt's own submissions, oldest first.
func (a *Attempt) Submissions() []domain.Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Submission, len(a.submissions))
	copy(out, a.submissions)
	return out
}

func (a *Attempt) requirePhaseLocked(phases ...Phase) error {
	if a.closed {
		return fmt.Errorf("%w: attempt closed", domain.ErrInvalidPhase)
	}
	for _, p := range phases {
		if a.phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidPhase, a.phase)
}

// Next moves to the following question; no-op on the last one.
func (a *Attempt) Next() error { return a.JumpToOffset(1) }

// Previous moves to the preceding question; no-op on the first one.
func (a *Attempt) Previous() error { return a.JumpToOffset(-1) }

// JumpToOffset moves relative to the current question, clamped to bounds.
func (a *Attempt) JumpToOffset(delta int) error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseInProgress); err != nil {
		a.mu.Unlock()
		return err
	}
	a.index = clamp(a.index+delta, len(a.order))
	a.changed()
	return nil
}

// JumpTo moves to question index, clamped to bounds.
func (a *Attempt) JumpTo(index int) error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseInProgress); err != nil {
		a.mu.Unlock()
		return err
	}
	a.index = clamp(index, len(a.order))
	a.changed()
	return nil
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// SelectOption records a choice. Single-answer questions replace the
// selection; multiple choice toggles membership.
func (a *Attempt) SelectOption(questionID, optionID string) error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseInProgress); err != nil {
		a.mu.Unlock()
		return err
	}
	q, ok := a.quiz.Question(questionID)
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if q.OptionIndex(optionID) < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrOptionNotFound, optionID)
	}
	k, err := domain.KindOf(q.Type)
	if err != nil {
		a.mu.Unlock()
		return err
	}

	ans := a.answers[questionID]
	ans.QuestionID = questionID
	if k.SingleCorrect() {
		ans.SelectedOptionIDs = []string{optionID}
	} else {
		ans.SelectedOptionIDs = toggleID(ans.SelectedOptionIDs, optionID)
	}
	a.answers[questionID] = ans
	a.changed()
	return nil
}

func toggleID(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

// SetTextAnswer overwrites the free-text answer of a question.
func (a *Attempt) SetTextAnswer(questionID, text string) error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseInProgress); err != nil {
		a.mu.Unlock()
		return err
	}
	if _, ok := a.quiz.Question(questionID); !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	ans := a.answers[questionID]
	ans.QuestionID = questionID
	ans.TextAnswer = text
	a.answers[questionID] = ans
	a.changed()
	return nil
}

func (a *Attempt) unansweredRequiredLocked() int {
	n := 0
	for _, q := range a.quiz.Questions {
		if !q.IsRequired {
			continue
		}
		ans, ok := a.answers[q.ID]
		if !ok || !answered(q, ans) {
			n++
		}
	}
	return n
}

func answered(q domain.Question, ans domain.Answer) bool {
	if q.Type == domain.Text {
		return strings.TrimSpace(ans.TextAnswer) != ""
	}
	return len(ans.SelectedOptionIDs) > 0
}

// Tick advances the countdown by one second. When it reaches zero the attempt
// is submitted without asking for confirmation, once: if that submit fails the
// student retries by hand. Untimed attempts and attempts outside
// in_progress/confirming_submit ignore ticks.
func (a *Attempt) Tick(ctx context.Context) {
	a.mu.Lock()
	if !a.tickingLocked() {
		a.mu.Unlock()
		return
	}
	a.remaining--
	if a.remaining > 0 {
		a.changed()
		return
	}
	a.log.Info().Msg("time is up, submitting")
	a.submitLocked(ctx)
}

// RunTimer ticks once per second until ctx is done or the attempt stops
// accepting ticks.
func (a *Attempt) RunTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
			if !a.timerRunning() {
				return
			}
		}
	}
}

func (a *Attempt) timerRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tickingLocked()
}

func (a *Attempt) tickingLocked() bool {
	return !a.closed && a.quiz.Settings.TimeLimit > 0 && a.remaining > 0 &&
		(a.phase == PhaseInProgress || a.phase == PhaseConfirmingSubmit)
}

// RequestSubmit submits right away when every required question is answered,
// otherwise asks for confirmation first.
func (a *Attempt) RequestSubmit(ctx context.Context) error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseInProgress); err != nil {
		a.mu.Unlock()
		return err
	}
	if a.unansweredRequiredLocked() > 0 {
		a.phase = PhaseConfirmingSubmit
		a.changed()
		return nil
	}
	a.submitLocked(ctx)
	return nil
}

// CancelConfirm returns to the quiz; the timer keeps running.
func (a *Attempt) CancelConfirm() error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseConfirmingSubmit); err != nil {
		a.mu.Unlock()
		return err
	}
	a.phase = PhaseInProgress
	a.changed()
	return nil
}

// ConfirmSubmit submits despite unanswered required questions.
func (a *Attempt) ConfirmSubmit(ctx context.Context) error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseConfirmingSubmit); err != nil {
		a.mu.Unlock()
		return err
	}
	a.submitLocked(ctx)
	return nil
}

// submitLocked freezes answers and grades them. It is entered with a.mu held
// and releases it. A grading failure is reported once and returns the
// attempt to in_progress so the student can submit again.
func (a *Attempt) submitLocked(ctx context.Context) {
	a.phase = PhaseSubmitting
	req := domain.SubmitRequest{
		QuizID:    a.quizID,
		UserID:    a.opts.UserID,
		StartTime: a.startedAt,
		EndTime:   a.opts.Now(),
	}
	for _, i := range a.order {
		q := a.quiz.Questions[i]
		if ans, ok := a.answers[q.ID]; ok {
			req.Answers = append(req.Answers, cloneAnswer(ans))
		}
	}
	quiz := a.quiz.Clone()
	a.changed()

	sub, err := a.opts.Grader.GradeAttempt(ctx, quiz, req)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.phase = PhaseInProgress
		a.log.Warn().Err(err).Msg("submit failed")
		a.opts.Notifier.Notify(Notice{Severity: SeverityError, Op: "submitQuiz", Message: "Could not submit the quiz. Please try again."})
		a.changed()
		return
	}
	res := sub.Result
	a.result = &res
	a.submissions = append(a.submissions, sub)
	a.phase = PhaseShowingResults
	a.log.Info().Float64("score", sub.Score).Bool("passed", sub.IsPassed).Msg("quiz submitted")
	a.changed()

	if a.opts.Log != nil {
		if err := a.opts.Log.Append(ctx, sub); err != nil {
			a.log.Warn().Err(err).Str("submissionId", sub.ID).Msg("record submission failed")
		}
	}
}

// Retake starts a fresh attempt when the quiz allows it. Earlier submissions
// are kept untouched.
func (a *Attempt) Retake() error {
	a.mu.Lock()
	if err := a.requirePhaseLocked(PhaseShowingResults); err != nil {
		a.mu.Unlock()
		return err
	}
	if !a.quiz.Settings.AllowRetake {
		a.mu.Unlock()
		return domain.ErrRetakeNotAllowed
	}
	a.beginLocked()
	a.changed()
	return nil
}

// Close abandons an unfinished attempt; nothing is persisted. Timers stop
// and a grading call still in flight is ignored when it returns.
func (a *Attempt) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
