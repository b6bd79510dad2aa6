package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"quiz-studio/internal/app"
	"quiz-studio/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TakeHandler serves /ws/take: one Attempt per connection.
type TakeHandler struct {
	taking    app.TakingAPI
	authoring app.AuthoringAPI
	quizzes   app.QuizRepository
	subLog    app.SubmissionLog
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewTakeHandler wires the student endpoint. authoring is only needed for
// preview mode and subLog may be nil.
func NewTakeHandler(taking app.TakingAPI, authoring app.AuthoringAPI, quizzes app.QuizRepository, subLog app.SubmissionLog, logger zerolog.Logger) *TakeHandler {
	return &TakeHandler{
		taking:    taking,
		authoring: authoring,
		quizzes:   quizzes,
		subLog:    subLog,
		log:       logger.With().Str("component", "ws_take").Logger(),
		upgrader:  newUpgrader(),
	}
}

type takePayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
}

type takeSession struct {
	quizID  string
	userID  string
	preview bool
	attempt *app.Attempt

	ctx         context.Context
	cancelTimer context.CancelFunc
}

// startTimer replaces any running countdown; a retake needs a fresh one.
func (t *takeSession) startTimer() {
	if t.cancelTimer != nil {
		t.cancelTimer()
	}
	var timerCtx context.Context
	timerCtx, t.cancelTimer = context.WithCancel(t.ctx)
	go t.attempt.RunTimer(timerCtx)
}

func (h *TakeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quizID := q.Get("quizId")
	userID := q.Get("userId")
	mode := q.Get("mode")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	if mode == "" {
		mode = "remote"
	}
	if mode != "remote" && mode != "preview" {
		http.Error(w, "mode must be remote or preview", http.StatusBadRequest)
		return
	}
	if mode == "preview" && h.authoring == nil {
		http.Error(w, "preview not available", http.StatusNotImplemented)
		return
	}
	if mode == "remote" && userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	session := newWSSession(conn, h.log)
	defer session.shutdown()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	opts := app.AttemptOptions{
		UserID:   userID,
		Notifier: session.notifier(),
		OnChange: resultForwarder(session),
	}

	var quizzes app.QuizRepository
	if mode == "preview" {
		rec, err := h.authoring.GetQuizForInstructor(ctx, quizID)
		if err != nil {
			session.sendError(err)
			return
		}
		quizzes = app.StaticQuiz(rec.ToQuiz())
		opts.Grader = app.LocalGrader{}
	} else {
		quizzes = h.quizzes
		opts.Grader = app.RemoteGrader{API: h.taking}
		opts.Log = h.subLog
	}

	ts := &takeSession{
		quizID:  quizID,
		userID:  userID,
		preview: mode == "preview",
		attempt: app.NewAttempt(quizID, quizzes, opts),
		ctx:     ctx,
	}
	defer ts.attempt.Close()

	if err := ts.attempt.Start(ctx); err != nil {
		session.sendError(err)
		return
	}
	session.send("state", ts.attempt.State())
	ts.startTimer()

	session.readLoop(func(msg inboundMessage) {
		if err := h.dispatch(ts, session, msg); err != nil {
			session.sendError(err)
		}
	})
}

// resultForwarder streams every state and emits "result" once per transition
// into showing_results.
func resultForwarder(s *wsSession) func(app.AttemptState) {
	var (
		mu   sync.Mutex
		last app.Phase
	)
	return func(state app.AttemptState) {
		mu.Lock()
		entered := state.Phase == app.PhaseShowingResults && last != app.PhaseShowingResults
		last = state.Phase
		mu.Unlock()

		s.send("state", state)
		if entered && state.Result != nil {
			s.send("result", state.Result)
		}
	}
}

func (h *TakeHandler) dispatch(ts *takeSession, s *wsSession, msg inboundMessage) error {
	var p takePayload
	if err := decodePayload(msg, &p); err != nil {
		return err
	}

	a := ts.attempt
	switch msg.Type {
	case "next":
		return a.Next()
	case "previous":
		return a.Previous()
	case "jumpTo":
		return a.JumpTo(p.Index)
	case "selectOption":
		return a.SelectOption(p.QuestionID, p.OptionID)
	case "setTextAnswer":
		return a.SetTextAnswer(p.QuestionID, p.Text)
	case "submit":
		return a.RequestSubmit(ts.ctx)
	case "confirmSubmit":
		return a.ConfirmSubmit(ts.ctx)
	case "cancelConfirm":
		return a.CancelConfirm()
	case "retake":
		if err := a.Retake(); err != nil {
			return err
		}
		ts.startTimer()
		return nil
	case "history":
		return h.sendHistory(ts, s)
	default:
		return fmt.Errorf("%w: %s", errUnsupported, msg.Type)
	}
}

func (h *TakeHandler) sendHistory(ts *takeSession, s *wsSession) error {
	if ts.preview {
		subs := ts.attempt.Submissions()
		if subs == nil {
			subs = []domain.Submission{}
		}
		s.send("history", subs)
		return nil
	}
	history, err := h.taking.GetSubmissionHistory(ts.ctx, ts.quizID, ts.userID)
	if err != nil {
		return err
	}
	if history == nil {
		history = []domain.SubmissionResult{}
	}
	s.send("history", history)
	return nil
}
