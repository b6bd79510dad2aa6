package app_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-studio/internal/app"
	"quiz-studio/internal/debounce"
	"quiz-studio/internal/domain"
	"quiz-studio/internal/infra/memory"

	"github.com/rs/zerolog"
)

type call struct {
	method string
	id     string
	text   string
}

// flakyAPI records calls into a memory store and fails chosen methods.
type flakyAPI struct {
	*memory.Store

	mu    sync.Mutex
	calls []call
	fail  map[string]error
	gates map[string]chan struct{}
}

func newFlakyAPI(store *memory.Store) *flakyAPI {
	return &flakyAPI{Store: store, fail: make(map[string]error), gates: make(map[string]chan struct{})}
}

// holdOn blocks calls to method until the returned release func is called.
func (f *flakyAPI) holdOn(method string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, method)
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *flakyAPI) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *flakyAPI) record(method, id, text string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, id: id, text: text})
	err, gate := f.fail[method], f.gates[method]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *flakyAPI) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *flakyAPI) GetQuizForInstructor(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	if err := f.record("GetQuizForInstructor", quizID, ""); err != nil {
		return domain.QuizRecord{}, err
	}
	return f.Store.GetQuizForInstructor(ctx, quizID)
}

func (f *flakyAPI) CreateQuestion(ctx context.Context, quizID string, q domain.QuestionRecord) (domain.QuestionRecord, error) {
	if err := f.record("CreateQuestion", quizID, q.Text); err != nil {
		return domain.QuestionRecord{}, err
	}
	return f.Store.CreateQuestion(ctx, quizID, q)
}

func (f *flakyAPI) UpdateQuestion(ctx context.Context, id string, q domain.QuestionRecord) (domain.QuestionRecord, error) {
	if err := f.record("UpdateQuestion", id, q.Text); err != nil {
		return domain.QuestionRecord{}, err
	}
	return f.Store.UpdateQuestion(ctx, id, q)
}

func (f *flakyAPI) UpdateAnswer(ctx context.Context, id string, a domain.AnswerRecord) (domain.AnswerRecord, error) {
	if err := f.record("UpdateAnswer", id, a.Text); err != nil {
		return domain.AnswerRecord{}, err
	}
	return f.Store.UpdateAnswer(ctx, id, a)
}

func (f *flakyAPI) ReorderQuestions(ctx context.Context, quizID string, ids []string) error {
	if err := f.record("ReorderQuestions", quizID, strings.Join(ids, ",")); err != nil {
		return err
	}
	return f.Store.ReorderQuestions(ctx, quizID, ids)
}

func (f *flakyAPI) UpdateQuiz(ctx context.Context, quizID string, rec domain.QuizRecord) (domain.QuizRecord, error) {
	if err := f.record("UpdateQuiz", quizID, rec.Title); err != nil {
		return domain.QuizRecord{}, err
	}
	return f.Store.UpdateQuiz(ctx, quizID, rec)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []app.Notice
}

func (r *noticeRecorder) Notify(n app.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) all() []app.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]app.Notice(nil), r.notices...)
}

func localIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("local-%d", n.Add(1)) }
}

type editorFixture struct {
	api     *flakyAPI
	store   *memory.Store
	sched   *debounce.ManualScheduler
	notices *noticeRecorder
	editor  *app.Editor
	quizID  string
}

// seededQuiz has one single-choice question q1 (o1 correct, o2) and one
// multiple-choice question q2.
func seededQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Chapter 1",
		Questions: []domain.Question{
			{
				ID: "q1", Text: "2 + 2?", Type: domain.SingleChoice, Points: 1, IsRequired: true,
				Options: []domain.Option{{ID: "o1", Text: "4", IsCorrect: true}, {ID: "o2", Text: "5"}},
			},
			{
				ID: "q2", Text: "Even numbers", Type: domain.MultipleChoice, Points: 2,
				Options: []domain.Option{{ID: "m1", Text: "2", IsCorrect: true}, {ID: "m2", Text: "3"}, {ID: "m3", Text: "4"}},
			},
		},
		Settings: domain.DefaultSettings(),
	}
}

func openFixture(t *testing.T, quizID string) *editorFixture {
	t.Helper()
	store := memory.NewStore()
	store.Seed(domain.RecordFrom(seededQuiz()))
	f := &editorFixture{
		api:     newFlakyAPI(store),
		store:   store,
		sched:   debounce.NewManualScheduler(),
		notices: &noticeRecorder{},
	}
	editor, err := app.OpenEditor(context.Background(), f.api, "lecture-1", quizID, app.EditorOptions{
		Scheduler: f.sched,
		NewID:     localIDs(),
		Notifier:  f.notices,
	})
	if err != nil {
		t.Fatalf("open editor: %v", err)
	}
	t.Cleanup(editor.Close)
	editor.Wait()
	f.editor = editor
	f.quizID = editor.Snapshot().Quiz.ID
	return f
}

func (f *editorFixture) remote(t *testing.T) domain.Quiz {
	t.Helper()
	rec, err := f.store.GetQuizForInstructor(context.Background(), f.quizID)
	if err != nil {
		t.Fatalf("load remote quiz: %v", err)
	}
	return rec.ToQuiz()
}

func TestOpenEditorCreatesDefaultQuiz(t *testing.T) {
	f := openFixture(t, "")

	snap := f.editor.Snapshot()
	if f.quizID == "" || f.quizID == "quiz-1" {
		t.Fatalf("expected a freshly created quiz, got %q", f.quizID)
	}
	if len(snap.Quiz.Questions) != 1 || snap.Quiz.Questions[0].Type != domain.SingleChoice {
		t.Fatalf("expected one default single choice question, got %+v", snap.Quiz.Questions)
	}
	if snap.ExpandedQuestionID != snap.Quiz.Questions[0].ID {
		t.Fatalf("first question should be expanded")
	}
	if snap.Quiz.LectureID != "lecture-1" || !snap.Quiz.Settings.AllowRetake {
		t.Fatalf("unexpected quiz defaults %+v", snap.Quiz)
	}

	remote := f.remote(t)
	if len(remote.Questions) != 1 || len(remote.Questions[0].Options) != 2 {
		t.Fatalf("default question should be synced with two options, got %+v", remote.Questions)
	}
	if snap.Quiz.Questions[0].RemoteID != remote.Questions[0].ID {
		t.Fatalf("remote id not tracked: %q vs %q", snap.Quiz.Questions[0].RemoteID, remote.Questions[0].ID)
	}
}

func TestOpenEditorUnknownQuizCreatesOne(t *testing.T) {
	f := openFixture(t, "does-not-exist")
	if f.quizID == "does-not-exist" || len(f.editor.Snapshot().Quiz.Questions) != 1 {
		t.Fatalf("expected lazily created quiz, got %+v", f.editor.Snapshot().Quiz)
	}
}

func TestOpenEditorLoadFailure(t *testing.T) {
	api := newFlakyAPI(memory.NewStore())
	boom := errors.New("backend down")
	api.failOn("GetQuizForInstructor", boom)

	_, err := app.OpenEditor(context.Background(), api, "lecture-1", "quiz-1", app.EditorOptions{Scheduler: debounce.NewManualScheduler()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestQuestionTextIsDebounced(t *testing.T) {
	f := openFixture(t, "quiz-1")

	for _, text := range []string{"a", "ab", "abc"} {
		quiz, err := f.editor.UpdateQuestionText("q1", text)
		if err != nil {
			t.Fatalf("update text: %v", err)
		}
		if quiz.Questions[0].Text != text {
			t.Fatalf("local text should update immediately, got %q", quiz.Questions[0].Text)
		}
		f.sched.Advance(100 * time.Millisecond)
	}

	f.sched.Advance(499 * time.Millisecond)
	f.editor.Wait()
	if got := f.api.callsTo("UpdateQuestion"); len(got) != 0 {
		t.Fatalf("no update expected inside the debounce window, got %+v", got)
	}

	f.sched.Advance(time.Millisecond)
	f.editor.Wait()
	got := f.api.callsTo("UpdateQuestion")
	if len(got) != 1 || got[0].text != "abc" || got[0].id != "q1" {
		t.Fatalf("expected exactly one update with the final text, got %+v", got)
	}
}

func TestExplanationAndOptionTextAreDebounced(t *testing.T) {
	f := openFixture(t, "quiz-1")

	_, _ = f.editor.UpdateExplanation("q1", "because")
	_, _ = f.editor.UpdateOptionText("q1", "o2", "five")
	_, _ = f.editor.UpdateOptionText("q1", "o2", "FIVE")

	f.sched.Advance(600 * time.Millisecond)
	f.editor.Wait()
	answers := f.api.callsTo("UpdateAnswer")
	if len(answers) != 1 || answers[0].text != "FIVE" {
		t.Fatalf("expected one option update, got %+v", answers)
	}
	if len(f.api.callsTo("UpdateQuestion")) != 0 {
		t.Fatalf("explanation should wait 800ms")
	}

	f.sched.Advance(200 * time.Millisecond)
	f.editor.Wait()
	if len(f.api.callsTo("UpdateQuestion")) != 1 {
		t.Fatalf("expected explanation update after 800ms")
	}
	if remote := f.remote(t); remote.Questions[0].Explanation != "because" || remote.Questions[0].Options[1].Text != "FIVE" {
		t.Fatalf("remote not updated: %+v", remote.Questions[0])
	}
}

func TestFlushSendsPendingEdits(t *testing.T) {
	f := openFixture(t, "quiz-1")
	_, _ = f.editor.UpdateQuestionText("q1", "flushed")
	f.editor.Flush()
	if remote := f.remote(t); remote.Questions[0].Text != "flushed" {
		t.Fatalf("flush should push pending text, got %q", remote.Questions[0].Text)
	}
}

func TestSingleChoiceToggleClearsSiblings(t *testing.T) {
	f := openFixture(t, "quiz-1")

	quiz, err := f.editor.ToggleOptionCorrect("q1", "o2")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got := quiz.Questions[0].CorrectOptionIDs(); len(got) != 1 || got[0] != "o2" {
		t.Fatalf("expected only o2 correct locally, got %v", got)
	}
	f.editor.Wait()

	updates := f.api.callsTo("UpdateAnswer")
	if len(updates) != 2 || updates[0].id != "o2" || updates[1].id != "o1" {
		t.Fatalf("expected the toggled option first, then its sibling, got %+v", updates)
	}
	if len(f.api.callsTo("GetQuizForInstructor")) != 2 {
		t.Fatalf("expected a refetch after clearing siblings")
	}
	remote := f.remote(t)
	if got := remote.Questions[0].CorrectOptionIDs(); len(got) != 1 || got[0] != "o2" {
		t.Fatalf("remote should have only o2 correct, got %v", got)
	}
	if got := f.editor.Snapshot().Quiz.Questions[0].CorrectOptionIDs(); len(got) != 1 || got[0] != "o2" {
		t.Fatalf("reconciled state should keep o2 correct, got %v", got)
	}
	if n := len(f.notices.all()); n != 0 {
		t.Fatalf("expected no notices, got %d", n)
	}
}

func TestToggleFailureRollsBack(t *testing.T) {
	f := openFixture(t, "quiz-1")
	f.api.failOn("UpdateAnswer", errors.New("boom"))

	if _, err := f.editor.ToggleOptionCorrect("q1", "o2"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	f.editor.Wait()

	q := f.editor.Snapshot().Quiz.Questions[0]
	if got := q.CorrectOptionIDs(); len(got) != 1 || got[0] != "o1" {
		t.Fatalf("expected rollback to o1, got %v", got)
	}
	notices := f.notices.all()
	if len(notices) != 1 || notices[0].Op != "toggleCorrect" || notices[0].Severity != app.SeverityError {
		t.Fatalf("expected exactly one toggle notice, got %+v", notices)
	}
}

func TestMultipleChoiceToggleFlipsOnlyOne(t *testing.T) {
	f := openFixture(t, "quiz-1")

	_, _ = f.editor.ToggleOptionCorrect("q2", "m3")
	quiz, _ := f.editor.ToggleOptionCorrect("q2", "m1")
	if got := quiz.Questions[1].CorrectOptionIDs(); len(got) != 1 || got[0] != "m3" {
		t.Fatalf("expected only m3 correct, got %v", got)
	}
	f.editor.Wait()
	if n := len(f.api.callsTo("UpdateAnswer")); n != 2 {
		t.Fatalf("expected one update per toggle, got %d", n)
	}
	if n := len(f.api.callsTo("GetQuizForInstructor")); n != 1 {
		t.Fatalf("multiple choice toggles should not refetch, got %d loads", n)
	}
}

func TestSingleChoiceNeverHasTwoCorrect(t *testing.T) {
	f := openFixture(t, "quiz-1")
	for _, id := range []string{"o2", "o1", "o2", "o2"} {
		quiz, err := f.editor.ToggleOptionCorrect("q1", id)
		if err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if n := len(quiz.Questions[0].CorrectOptionIDs()); n > 1 {
			t.Fatalf("single choice has %d correct options", n)
		}
	}
}

func TestOptionRules(t *testing.T) {
	f := openFixture(t, "quiz-1")

	if _, err := f.editor.RemoveOption("q1", "o1"); !errors.Is(err, domain.ErrOptionFloor) {
		t.Fatalf("expected option floor, got %v", err)
	}
	quiz, err := f.editor.AddOption("q1")
	if err != nil {
		t.Fatalf("add option: %v", err)
	}
	added := quiz.Questions[0].Options[2]
	if added.IsCorrect || added.Text != "" {
		t.Fatalf("new option should be blank and incorrect: %+v", added)
	}
	f.editor.Wait()
	if n := len(f.remote(t).Questions[0].Options); n != 3 {
		t.Fatalf("expected 3 remote options, got %d", n)
	}

	if _, err := f.editor.RemoveOption("q1", added.ID); err != nil {
		t.Fatalf("remove option: %v", err)
	}
	f.editor.Wait()
	if n := len(f.remote(t).Questions[0].Options); n != 2 {
		t.Fatalf("expected 2 remote options, got %d", n)
	}

	if _, err := f.editor.UpdateQuestionType("q1", domain.TrueFalse); err != nil {
		t.Fatalf("change type: %v", err)
	}
	if _, err := f.editor.AddOption("q1"); !errors.Is(err, domain.ErrFixedOptions) {
		t.Fatalf("true/false options are fixed, got %v", err)
	}
}

func TestChangeQuestionTypeSyncsOptions(t *testing.T) {
	f := openFixture(t, "quiz-1")

	quiz, err := f.editor.UpdateQuestionType("q2", domain.TrueFalse)
	if err != nil {
		t.Fatalf("change type: %v", err)
	}
	q := quiz.Questions[1]
	if len(q.Options) != 2 || q.Options[0].Text != domain.TrueLabel || !q.Options[0].IsCorrect || q.Options[1].Text != domain.FalseLabel {
		t.Fatalf("unexpected true/false options %+v", q.Options)
	}
	f.editor.Wait()
	remote := f.remote(t).Questions[1]
	if remote.Type != domain.TrueFalse || len(remote.Options) != 2 || remote.Options[0].Text != domain.TrueLabel {
		t.Fatalf("remote not reshaped: %+v", remote)
	}

	if _, err := f.editor.UpdateQuestionType("q2", domain.Text); err != nil {
		t.Fatalf("change type: %v", err)
	}
	f.editor.Wait()
	if remote := f.remote(t).Questions[1]; len(remote.Options) != 0 {
		t.Fatalf("text questions keep no options, got %+v", remote.Options)
	}

	if _, err := f.editor.UpdateQuestionType("q2", "essay"); !errors.Is(err, domain.ErrInvalidQuestionType) {
		t.Fatalf("expected invalid type, got %v", err)
	}
}

func TestAddDuplicateRemoveQuestions(t *testing.T) {
	f := openFixture(t, "quiz-1")

	quiz := f.editor.AddQuestion()
	added := quiz.Questions[2]
	if added.Type != domain.SingleChoice || f.editor.Snapshot().ExpandedQuestionID != added.ID {
		t.Fatalf("new question should be single choice and expanded: %+v", added)
	}

	quiz, err := f.editor.DuplicateQuestion("q1")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	dup := quiz.Questions[3]
	if dup.Text != "2 + 2?"+app.CopySuffix || dup.ID == "q1" || dup.Options[0].ID == "o1" {
		t.Fatalf("unexpected duplicate %+v", dup)
	}
	if got := dup.CorrectOptionIDs(); len(got) != 1 {
		t.Fatalf("duplicate should keep the answer key")
	}
	f.editor.Wait()
	if n := len(f.remote(t).Questions); n != 4 {
		t.Fatalf("expected 4 remote questions, got %d", n)
	}

	_, _ = f.editor.ExpandQuestion(dup.ID)
	if _, err := f.editor.RemoveQuestion(dup.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := f.editor.Snapshot().ExpandedQuestionID; got != "q1" {
		t.Fatalf("removing the expanded question should expand the first, got %q", got)
	}
	f.editor.Wait()
	if n := len(f.remote(t).Questions); n != 3 {
		t.Fatalf("expected 3 remote questions, got %d", n)
	}
	if _, err := f.editor.RemoveQuestion("missing"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveQuestionPersistsOrder(t *testing.T) {
	f := openFixture(t, "quiz-1")

	quiz, _ := f.editor.MoveQuestion("q1", app.Up)
	if quiz.Questions[0].ID != "q1" {
		t.Fatalf("moving the first question up is a no-op")
	}
	quiz, _ = f.editor.MoveQuestion("q1", app.Down)
	if quiz.Questions[0].ID != "q2" || quiz.Questions[1].ID != "q1" {
		t.Fatalf("expected swap, got %s,%s", quiz.Questions[0].ID, quiz.Questions[1].ID)
	}
	f.editor.Wait()

	reorders := f.api.callsTo("ReorderQuestions")
	if len(reorders) != 1 || reorders[0].text != "q2,q1" {
		t.Fatalf("expected one reorder call, got %+v", reorders)
	}
	if remote := f.remote(t); remote.Questions[0].ID != "q2" {
		t.Fatalf("remote order not persisted")
	}
}

func TestPointsAndTotals(t *testing.T) {
	f := openFixture(t, "quiz-1")

	if _, err := f.editor.UpdatePoints("q1", -1); !errors.Is(err, domain.ErrInvalidPoints) {
		t.Fatalf("expected invalid points, got %v", err)
	}
	if _, err := f.editor.UpdatePoints("q1", 4.5); err != nil {
		t.Fatalf("update points: %v", err)
	}
	snap := f.editor.Snapshot()
	if snap.TotalPoints != 6.5 {
		t.Fatalf("expected total 6.5, got %v", snap.TotalPoints)
	}
	if !snap.HasValidQuestions {
		t.Fatalf("seeded quiz has valid questions")
	}
	f.editor.Wait()
	if got := f.remote(t).Questions[0].Points; got != 4.5 {
		t.Fatalf("points not synced, got %v", got)
	}

	quiz, _ := f.editor.ToggleRequired("q1")
	if quiz.Questions[0].IsRequired {
		t.Fatalf("required should flip off")
	}
}

func TestSettingsArePersisted(t *testing.T) {
	f := openFixture(t, "quiz-1")

	if _, err := f.editor.UpdateSettings(app.SettingPassingScore, 120.0); !errors.Is(err, domain.ErrInvalidSetting) {
		t.Fatalf("expected invalid setting, got %v", err)
	}
	if _, err := f.editor.UpdateSettings("colour", true); !errors.Is(err, domain.ErrInvalidSetting) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	_, _ = f.editor.UpdateSettings(app.SettingRequirePassingScore, true)
	_, _ = f.editor.UpdateSettings(app.SettingPassingScore, 80.0)
	quiz, err := f.editor.UpdateSettings(app.SettingTimeLimit, 15)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	f.editor.UpdateTitle("Renamed")
	if quiz.Settings.TimeLimit != 15 || quiz.Settings.PassingScore != 80 {
		t.Fatalf("unexpected local settings %+v", quiz.Settings)
	}

	f.sched.Advance(600 * time.Millisecond)
	f.editor.Wait()
	if n := len(f.api.callsTo("UpdateQuiz")); n != 1 {
		t.Fatalf("expected one debounced quiz update, got %d", n)
	}
	remote := f.remote(t)
	if remote.Title != "Renamed" || !remote.Settings.RequirePassingScore || remote.Settings.PassingScore != 80 || remote.Settings.TimeLimit != 15 {
		t.Fatalf("remote settings not persisted: %+v", remote)
	}

	quiz, _ = f.editor.UpdateSettings(app.SettingTimeLimit, nil)
	if quiz.Settings.TimeLimit != 0 {
		t.Fatalf("nil time limit should clear it")
	}
}

func TestFailedCallSendsOneNotice(t *testing.T) {
	f := openFixture(t, "quiz-1")
	f.api.failOn("CreateQuestion", errors.New("boom"))

	quiz := f.editor.AddQuestion()
	f.editor.Wait()

	if n := len(f.editor.Snapshot().Quiz.Questions); n != len(quiz.Questions) {
		t.Fatalf("local question should stay after a failed create")
	}
	notices := f.notices.all()
	if len(notices) != 1 || notices[0].Op != "createQuestion" {
		t.Fatalf("expected one createQuestion notice, got %+v", notices)
	}
}

func TestRefetchKeepsPendingEdits(t *testing.T) {
	f := openFixture(t, "quiz-1")

	_, _ = f.editor.UpdateQuestionText("q1", "still typing")
	_, _ = f.editor.ToggleOptionCorrect("q1", "o2")
	f.editor.Wait()

	q := f.editor.Snapshot().Quiz.Questions[0]
	if q.Text != "still typing" {
		t.Fatalf("refetch overwrote a pending edit: %q", q.Text)
	}
	if q.ID != "q1" || q.Options[1].ID != "o2" {
		t.Fatalf("local ids should survive refetch: %+v", q)
	}
}

func TestPreviewGradesLocally(t *testing.T) {
	f := openFixture(t, "quiz-1")

	attempt := f.editor.Preview(app.AttemptOptions{UserID: "instructor"})
	if err := attempt.Start(context.Background()); err != nil {
		t.Fatalf("start preview: %v", err)
	}
	_ = attempt.SelectOption("q1", "o1")
	_ = attempt.SelectOption("q2", "m1")
	_ = attempt.SelectOption("q2", "m2")
	if err := attempt.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	st := attempt.State()
	if st.Phase != app.PhaseShowingResults || st.Result == nil || st.Result.TotalScore != 1 || st.Result.MaxScore != 3 {
		t.Fatalf("unexpected preview result %+v", st)
	}
	if subs, _ := f.store.GetQuizSubmissions(context.Background(), "quiz-1"); len(subs) != 0 {
		t.Fatalf("preview must not submit remotely, got %d submissions", len(subs))
	}
}

// The single-choice refetch runs while other edits are queued behind the
// toggle or held only locally. Each case checks those edits survive it.
func TestSingleChoiceRefetchKeepsLocalEdits(t *testing.T) {
	cases := []struct {
		name   string
		before func(e *app.Editor)
		after  func(e *app.Editor)
		check  func(t *testing.T, local, remote domain.Question)
	}{
		{
			name:   "required flag",
			before: func(e *app.Editor) { _, _ = e.ToggleRequired("q1") },
			check: func(t *testing.T, local, _ domain.Question) {
				if local.IsRequired {
					t.Fatalf("required flag reverted to the server value")
				}
			},
		},
		{
			name:  "points queued after the toggle",
			after: func(e *app.Editor) { _, _ = e.UpdatePoints("q1", 5) },
			check: func(t *testing.T, local, remote domain.Question) {
				if local.Points != 5 || remote.Points != 5 {
					t.Fatalf("points lost: local %v remote %v", local.Points, remote.Points)
				}
			},
		},
		{
			name:  "type change queued after the toggle",
			after: func(e *app.Editor) { _, _ = e.UpdateQuestionType("q1", domain.MultipleChoice) },
			check: func(t *testing.T, local, remote domain.Question) {
				if local.Type != domain.MultipleChoice || remote.Type != domain.MultipleChoice {
					t.Fatalf("type lost: local %s remote %s", local.Type, remote.Type)
				}
			},
		},
		{
			name:  "option added after the toggle",
			after: func(e *app.Editor) { _, _ = e.AddOption("q1") },
			check: func(t *testing.T, local, remote domain.Question) {
				if len(local.Options) != 3 || len(remote.Options) != 3 {
					t.Fatalf("new option lost: local %d remote %d", len(local.Options), len(remote.Options))
				}
				if local.Options[2].ID != "local-1" || local.Options[2].RemoteID == "" {
					t.Fatalf("new option should keep its local id and gain a remote one: %+v", local.Options[2])
				}
			},
		},
		{
			name:   "option removed after the toggle",
			before: func(e *app.Editor) {
				_, _ = e.AddOption("q1")
				e.Wait()
			},
			after: func(e *app.Editor) { _, _ = e.RemoveOption("q1", "local-1") },
			check: func(t *testing.T, local, remote domain.Question) {
				if len(local.Options) != 2 || len(remote.Options) != 2 {
					t.Fatalf("removed option came back: local %d remote %d", len(local.Options), len(remote.Options))
				}
			},
		},
		{
			name:  "second toggle on the same question",
			after: func(e *app.Editor) { _, _ = e.ToggleOptionCorrect("q1", "o1") },
			check: func(t *testing.T, local, remote domain.Question) {
				if got := local.CorrectOptionIDs(); len(got) != 1 || got[0] != "o1" {
					t.Fatalf("expected o1 correct locally, got %v", got)
				}
				if got := remote.CorrectOptionIDs(); len(got) != 1 || got[0] != "o1" {
					t.Fatalf("expected o1 correct remotely, got %v", got)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := openFixture(t, "quiz-1")
			release := f.api.holdOn("UpdateAnswer")
			defer release()

			if tc.before != nil {
				tc.before(f.editor)
			}
			if _, err := f.editor.ToggleOptionCorrect("q1", "o2"); err != nil {
				t.Fatalf("toggle: %v", err)
			}
			if tc.after != nil {
				tc.after(f.editor)
			}
			release()
			f.editor.Flush()

			if len(f.api.callsTo("GetQuizForInstructor")) < 2 {
				t.Fatalf("expected a refetch after the single-choice toggle")
			}
			if n := len(f.notices.all()); n != 0 {
				t.Fatalf("expected no notices, got %+v", f.notices.all())
			}
			tc.check(t, f.editor.Snapshot().Quiz.Questions[0], f.remote(t).Questions[0])
		})
	}
}

func TestRefetchKeepsQueuedEditsOnOtherQuestions(t *testing.T) {
	f := openFixture(t, "quiz-1")

	release := f.api.holdOn("UpdateAnswer")
	if _, err := f.editor.ToggleOptionCorrect("q1", "o2"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	_, _ = f.editor.UpdatePoints("q2", 7)
	release()
	f.editor.Wait()

	snap := f.editor.Snapshot().Quiz
	if got := snap.Questions[0].CorrectOptionIDs(); len(got) != 1 || got[0] != "o2" {
		t.Fatalf("toggled question should match the server, got %v", got)
	}
	if snap.Questions[1].Points != 7 || f.remote(t).Questions[1].Points != 7 {
		t.Fatalf("queued points on another question were lost: local %v", snap.Questions[1].Points)
	}
}

func TestSyncedEditsInvalidateTakingCache(t *testing.T) {
	store := memory.NewStore()
	store.Seed(domain.RecordFrom(seededQuiz()))
	cache := memory.NewQuizRepository(memory.SourceLoader{Source: store}, time.Hour)
	ctx := context.Background()
	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	editor, err := app.OpenEditor(ctx, store, "", "quiz-1", app.EditorOptions{
		Scheduler: debounce.NewManualScheduler(),
		Notifier:  &noticeRecorder{},
		Cache:     cache,
	})
	if err != nil {
		t.Fatalf("open editor: %v", err)
	}
	defer editor.Close()

	if _, err := editor.UpdatePoints("q1", 3); err != nil {
		t.Fatalf("update points: %v", err)
	}
	editor.Wait()

	quiz, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Questions[0].Points != 3 {
		t.Fatalf("taking side still sees the old quiz: %v points", quiz.Questions[0].Points)
	}
}

func TestOpenEditorWarnsOnInvalidQuestions(t *testing.T) {
	quiz := seededQuiz()
	quiz.Questions[0].Options = quiz.Questions[0].Options[:1]
	store := memory.NewStore()
	store.Seed(domain.RecordFrom(quiz))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	editor, err := app.OpenEditor(context.Background(), store, "", "quiz-1", app.EditorOptions{
		Scheduler: debounce.NewManualScheduler(),
		Notifier:  &noticeRecorder{},
		Logger:    &logger,
	})
	if err != nil {
		t.Fatalf("open editor: %v", err)
	}
	defer editor.Close()

	if !strings.Contains(buf.String(), "loaded question fails validation") || !strings.Contains(buf.String(), `"questionId":"q1"`) {
		t.Fatalf("expected a validation warning for q1, got %s", buf.String())
	}
	if len(editor.Snapshot().Quiz.Questions) != 2 {
		t.Fatalf("invalid questions stay editable")
	}
}
