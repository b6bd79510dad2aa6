package app

import (
	"context"
	"fmt"
	"sync"

	"quiz-studio/internal/domain"
)

// job is one remote call. onErr runs (before the notice is sent) when run fails.
type job struct {
	op       string
	question string
	run      func(ctx context.Context) error
	onErr    func(error)
}

// syncQueue runs jobs one at a time, in submission order, on a single worker.
// Ordering means a question's create always lands before its updates.
type syncQueue struct {
	mu       sync.Mutex
	jobs     []job
	closed   bool
	wake     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
	// pending counts queued and running jobs per local question id.
	pending  map[string]int
	ctx      context.Context
	cancel   context.CancelFunc
}

func (s *syncQueue) start(e *Editor) {
	s.wake = make(chan struct{}, 1)
	s.done = make(chan struct{})
	s.pending = make(map[string]int)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.loop(e)
}

func (s *syncQueue) push(j job) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.jobs = append(s.jobs, j)
	if j.question != "" {
		s.pending[j.question]++
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *syncQueue) loop(e *Editor) {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.jobs) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		j := s.jobs[0]
		s.jobs = s.jobs[1:]
		s.mu.Unlock()

		e.runJob(s.ctx, j)
		s.mu.Lock()
		if j.question != "" {
			if s.pending[j.question]--; s.pending[j.question] <= 0 {
				delete(s.pending, j.question)
			}
		}
		s.mu.Unlock()
		s.inflight.Done()
	}
}

// pendingFor returns how many jobs for a question are queued or running.
func (s *syncQueue) pendingFor(questionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[questionID]
}

func (s *syncQueue) wait() {
	s.inflight.Wait()
}

func (s *syncQueue) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
	s.cancel()
}

func (e *Editor) enqueue(op string, run func(ctx context.Context) error, onErr func(error)) {
	e.enqueueFor("", op, run, onErr)
}

// enqueueFor queues a job that reads or writes one question.
func (e *Editor) enqueueFor(questionID, op string, run func(ctx context.Context) error, onErr func(error)) {
	if !e.queue.push(job{op: op, question: questionID, run: run, onErr: onErr}) {
		e.log.Debug().Str("op", op).Msg("editor closed, dropping remote call")
	}
}

func (e *Editor) runJob(ctx context.Context, j job) {
	err := j.run(ctx)
	if err == nil {
		e.invalidateCache(ctx)
		return
	}
	if j.onErr != nil {
		j.onErr(err)
	}
	e.notifyFailure(j.op, err)
}

var failureMessages = map[string]string{
	"createQuestion":     "Could not save the new question.",
	"updateQuestion":     "Could not save question changes.",
	"deleteQuestion":     "Could not delete the question.",
	"createAnswer":       "Could not save the new option.",
	"updateAnswer":       "Could not save option changes.",
	"deleteAnswer":       "Could not delete the option.",
	"syncOptions":        "Could not save the options for the new question type.",
	"toggleCorrect":      "Could not update the correct answer; the change was reverted.",
	"reorderQuestions":   "Could not save the question order.",
	"updateQuiz":         "Could not save quiz settings.",
	"refetchQuiz":        "Could not reload the quiz from the server.",
	"getQuizSubmissions": "Could not load submissions.",
}

func (e *Editor) notifyFailure(op string, err error) {
	e.log.Warn().Err(err).Str("op", op).Msg("remote call failed")
	msg, ok := failureMessages[op]
	if !ok {
		msg = "Could not save changes."
	}
	e.opts.Notifier.Notify(Notice{Severity: SeverityError, Op: op, Message: msg})
}

// remoteOf returns the server id for a local id.
func (e *Editor) remoteOf(localID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote[localID]
}

func (e *Editor) setRemote(localID, remoteID string) {
	e.mu.Lock()
	e.remote[localID] = remoteID
	e.mu.Unlock()
}

// currentQuestion returns a copy of the question, its position, and the
// quiz's server id.
func (e *Editor) currentQuestion(id string) (domain.Question, int, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.quiz.QuestionIndex(id)
	if i < 0 {
		return domain.Question{}, 0, "", false
	}
	return e.quiz.Questions[i].Clone(), i, e.quiz.ID, true
}

func (e *Editor) createQuestionJob(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		q, pos, quizID, ok := e.currentQuestion(id)
		if !ok || e.remoteOf(id) != "" {
			return nil
		}
		rec, err := e.api.CreateQuestion(ctx, quizID, domain.QuestionRecordFrom(q, pos))
		if err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		e.setRemote(id, rec.ID)

		for j, opt := range q.Options {
			if e.remoteOf(opt.ID) != "" {
				continue
			}
			ar, err := e.api.CreateAnswer(ctx, rec.ID, domain.AnswerRecordFrom(opt, j))
			if err != nil {
				return fmt.Errorf("create answer: %w", err)
			}
			e.setRemote(opt.ID, ar.ID)
		}
		return nil
	}
}

func (e *Editor) updateQuestionJob(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		q, pos, _, ok := e.currentQuestion(id)
		remoteID := e.remoteOf(id)
		if !ok || remoteID == "" {
			e.log.Debug().Str("questionId", id).Msg("question not synced, skipping update")
			return nil
		}
		rec := domain.QuestionRecordFrom(q, pos)
		rec.ID = remoteID
		if _, err := e.api.UpdateQuestion(ctx, remoteID, rec); err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		return nil
	}
}

func (e *Editor) deleteQuestionJob(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		remoteID := e.remoteOf(id)
		if remoteID == "" {
			return nil
		}
		ok, err := e.api.DeleteQuestion(ctx, remoteID)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if !ok {
			return fmt.Errorf("delete question %s: %w", remoteID, domain.ErrQuestionNotFound)
		}
		e.mu.Lock()
		delete(e.remote, id)
		e.mu.Unlock()
		return nil
	}
}

// option returns a copy of an option and its position within its question.
func (e *Editor) option(questionID, optionID string) (domain.Option, int, bool) {
	q, _, _, ok := e.currentQuestion(questionID)
	if !ok {
		return domain.Option{}, 0, false
	}
	j := q.OptionIndex(optionID)
	if j < 0 {
		return domain.Option{}, 0, false
	}
	return q.Options[j], j, true
}

func (e *Editor) createAnswerJob(questionID, optionID string) func(context.Context) error {
	return func(ctx context.Context) error {
		qRemote := e.remoteOf(questionID)
		if qRemote == "" || e.remoteOf(optionID) != "" {
			return nil
		}
		opt, pos, ok := e.option(questionID, optionID)
		if !ok {
			return nil
		}
		ar, err := e.api.CreateAnswer(ctx, qRemote, domain.AnswerRecordFrom(opt, pos))
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		e.setRemote(optionID, ar.ID)
		return nil
	}
}

func (e *Editor) updateAnswerJob(questionID, optionID string) func(context.Context) error {
	return func(ctx context.Context) error {
		return e.pushAnswer(ctx, questionID, optionID)
	}
}

func (e *Editor) pushAnswer(ctx context.Context, questionID, optionID string) error {
	remoteID := e.remoteOf(optionID)
	opt, pos, ok := e.option(questionID, optionID)
	if !ok || remoteID == "" {
		return nil
	}
	rec := domain.AnswerRecordFrom(opt, pos)
	rec.ID = remoteID
	if _, err := e.api.UpdateAnswer(ctx, remoteID, rec); err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	return nil
}

func (e *Editor) deleteAnswerJob(optionID string) func(context.Context) error {
	return func(ctx context.Context) error {
		remoteID := e.remoteOf(optionID)
		if remoteID == "" {
			return nil
		}
		ok, err := e.api.DeleteAnswer(ctx, remoteID)
		if err != nil {
			return fmt.Errorf("delete answer: %w", err)
		}
		if !ok {
			return fmt.Errorf("delete answer %s: %w", remoteID, domain.ErrAnswerNotFound)
		}
		e.mu.Lock()
		delete(e.remote, optionID)
		e.mu.Unlock()
		return nil
	}
}

// syncOptionsJob reconciles the remote answers of a question whose type
// changed: dropped options are deleted, new ones created, the rest updated.
func (e *Editor) syncOptionsJob(questionID string, before []domain.Option) func(context.Context) error {
	return func(ctx context.Context) error {
		q, _, _, ok := e.currentQuestion(questionID)
		qRemote := e.remoteOf(questionID)
		if !ok || qRemote == "" {
			return nil
		}
		for _, o := range before {
			if q.OptionIndex(o.ID) >= 0 {
				continue
			}
			if err := e.deleteAnswerJob(o.ID)(ctx); err != nil {
				return err
			}
		}
		for _, o := range q.Options {
			if e.remoteOf(o.ID) == "" {
				if err := e.createAnswerJob(questionID, o.ID)(ctx); err != nil {
					return err
				}
				continue
			}
			if err := e.pushAnswer(ctx, questionID, o.ID); err != nil {
				return err
			}
		}
		return nil
	}
}

// toggleCorrectJob pushes the toggled option first. For single-answer
// variants the siblings are cleared only after that succeeds, and the quiz is
// then refetched so local state matches the server.
func (e *Editor) toggleCorrectJob(questionID, optionID string, single bool) func(context.Context) error {
	return func(ctx context.Context) error {
		if e.remoteOf(optionID) == "" {
			return nil
		}
		if err := e.pushAnswer(ctx, questionID, optionID); err != nil {
			return err
		}
		if !single {
			return nil
		}

		q, _, _, ok := e.currentQuestion(questionID)
		if !ok {
			return nil
		}
		var siblingErr error
		for _, o := range q.Options {
			if o.ID == optionID {
				continue
			}
			remoteID := e.remoteOf(o.ID)
			if remoteID == "" {
				continue
			}
			rec := domain.AnswerRecordFrom(o, q.OptionIndex(o.ID))
			rec.ID = remoteID
			rec.IsCorrect = false
			if _, err := e.api.UpdateAnswer(ctx, remoteID, rec); err != nil {
				siblingErr = fmt.Errorf("clear sibling answer: %w", err)
				break
			}
		}
		if err := e.refetch(ctx, questionID); err != nil && siblingErr == nil {
			e.notifyFailure("refetchQuiz", err)
		}
		if siblingErr != nil {
			e.notifyFailure("updateAnswer", siblingErr)
		}
		return nil
	}
}

func (e *Editor) reorderJob() func(context.Context) error {
	return func(ctx context.Context) error {
		e.mu.Lock()
		quizID := e.quiz.ID
		ids := make([]string, 0, len(e.quiz.Questions))
		for _, q := range e.quiz.Questions {
			if r := e.remote[q.ID]; r != "" {
				ids = append(ids, r)
			}
		}
		e.mu.Unlock()
		if err := e.api.ReorderQuestions(ctx, quizID, ids); err != nil {
			return fmt.Errorf("reorder questions: %w", err)
		}
		return nil
	}
}

func (e *Editor) updateQuizJob() func(context.Context) error {
	return func(ctx context.Context) error {
		e.mu.Lock()
		rec := domain.QuizRecord{
			ID:        e.quiz.ID,
			LectureID: e.quiz.LectureID,
			Title:     e.quiz.Title,
			Settings:  e.quiz.Settings,
		}
		e.mu.Unlock()
		if _, err := e.api.UpdateQuiz(ctx, rec.ID, rec); err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		return nil
	}
}

// invalidateCache drops the quiz from the taking-side cache once a change has
// reached the backend.
func (e *Editor) invalidateCache(ctx context.Context) {
	if e.opts.Cache == nil {
		return
	}
	e.mu.Lock()
	quizID := e.quiz.ID
	e.mu.Unlock()
	if err := e.opts.Cache.Invalidate(ctx, quizID); err != nil {
		e.log.Warn().Err(err).Str("quizId", quizID).Msg("invalidate quiz cache")
	}
}

// refetch reloads the quiz after a single-answer toggle. Local edits stay
// authoritative; the server only settles the toggled question's correct
// answers, and only when no later job for that question is waiting.
func (e *Editor) refetch(ctx context.Context, toggled string) error {
	e.mu.Lock()
	quizID := e.quiz.ID
	e.mu.Unlock()
	rec, err := e.api.GetQuizForInstructor(ctx, quizID)
	if err != nil {
		return fmt.Errorf("refetch quiz: %w", err)
	}
	settle := ""
	if e.queue.pendingFor(toggled) <= 1 {
		settle = toggled
	}
	e.mu.Lock()
	e.reconcileLocked(rec, settle)
	e.changed()
	return nil
}

// reconcileLocked folds the server's quiz into local state, keeping local ids
// stable. Local fields win. Questions and options deleted on the server are
// dropped and ones created elsewhere are added; ones removed locally whose
// delete is still queued stay removed. For the settle question the server's
// correctness flags replace the local ones.
func (e *Editor) reconcileLocked(rec domain.QuizRecord, settle string) {
	server := rec.ToQuiz()
	tracked := make(map[string]bool, len(e.remote))
	for _, rid := range e.remote {
		tracked[rid] = true
	}
	byRemote := make(map[string]domain.Question, len(server.Questions))
	for _, q := range server.Questions {
		byRemote[q.ID] = q
	}

	matched := make(map[string]bool, len(server.Questions))
	merged := make([]domain.Question, 0, len(e.quiz.Questions))
	for _, local := range e.quiz.Questions {
		rid := e.remote[local.ID]
		if rid == "" {
			merged = append(merged, local)
			continue
		}
		srv, ok := byRemote[rid]
		if !ok {
			// gone on the server
			delete(e.remote, local.ID)
			continue
		}
		matched[rid] = true
		merged = append(merged, e.mergeQuestion(local, srv, local.ID == settle, tracked))
	}
	for _, srv := range server.Questions {
		if matched[srv.ID] || tracked[srv.ID] {
			continue
		}
		if err := domain.ValidateQuestion(srv); err != nil {
			e.log.Warn().Err(err).Str("questionId", srv.ID).Msg("server question fails validation")
		}
		for _, o := range srv.Options {
			e.remote[o.ID] = o.ID
		}
		e.remote[srv.ID] = srv.ID
		merged = append(merged, srv)
	}

	e.quiz.Questions = merged
	if e.expanded != "" && e.quiz.QuestionIndex(e.expanded) < 0 {
		e.expanded = ""
	}
}

func (e *Editor) mergeQuestion(local, srv domain.Question, settle bool, tracked map[string]bool) domain.Question {
	out := local.Clone()
	out.RemoteID = srv.ID

	serverByID := make(map[string]domain.Option, len(srv.Options))
	for _, so := range srv.Options {
		serverByID[so.ID] = so
	}
	known := make(map[string]bool, len(local.Options))
	out.Options = out.Options[:0]
	for _, lo := range local.Options {
		rid := e.remote[lo.ID]
		if rid == "" {
			out.Options = append(out.Options, lo)
			continue
		}
		so, ok := serverByID[rid]
		if !ok {
			delete(e.remote, lo.ID)
			continue
		}
		known[rid] = true
		if settle {
			lo.IsCorrect = so.IsCorrect
		}
		out.Options = append(out.Options, lo)
	}
	for _, so := range srv.Options {
		if known[so.ID] || tracked[so.ID] {
			continue
		}
		e.remote[so.ID] = so.ID
		out.Options = append(out.Options, so)
	}
	return out
}
