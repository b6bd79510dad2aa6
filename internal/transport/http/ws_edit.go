package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"quiz-studio/internal/app"
	"quiz-studio/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	errInvalidPayload = errors.New("invalid payload")
	errUnsupported    = errors.New("unsupported message type")
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, errUnsupported):
		return "unsupported"
	default:
		return domain.ErrorCode(err)
	}
}

// EditHandler serves /ws/edit: one Editor per connection.
type EditHandler struct {
	api      app.AuthoringAPI
	opts     app.EditorOptions
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewEditHandler builds the instructor endpoint. opts supplies debounce delays;
// notifier and change callback are set per connection.
func NewEditHandler(api app.AuthoringAPI, opts app.EditorOptions, logger zerolog.Logger) *EditHandler {
	return &EditHandler{
		api:      api,
		opts:     opts,
		log:      logger.With().Str("component", "ws_edit").Logger(),
		upgrader: newUpgrader(),
	}
}

type editPayload struct {
	QuestionID string              `json:"questionId"`
	OptionID   string              `json:"optionId"`
	Text       string              `json:"text"`
	Type       domain.QuestionType `json:"type"`
	Points     float64             `json:"points"`
	Direction  string              `json:"direction"`
	Title      string              `json:"title"`
	Field      string              `json:"field"`
	Value      any                 `json:"value"`
}

func (h *EditHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	lectureID := r.URL.Query().Get("lectureId")
	if quizID == "" && lectureID == "" {
		http.Error(w, "missing quizId or lectureId", http.StatusBadRequest)
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

	opts := h.opts
	opts.Notifier = session.notifier()
	opts.OnChange = func(snap app.EditorSnapshot) { session.send("snapshot", snap) }

	// the editor outlives the request context while it flushes on close
	editor, err := app.OpenEditor(context.WithoutCancel(r.Context()), h.api, lectureID, quizID, opts)
	if err != nil {
		session.sendError(err)
		return
	}
	defer editor.Close()

	session.send("snapshot", editor.Snapshot())
	session.readLoop(func(msg inboundMessage) {
		if err := h.dispatch(r.Context(), editor, session, msg); err != nil {
			session.sendError(err)
		}
	})
}

func (h *EditHandler) dispatch(ctx context.Context, e *app.Editor, s *wsSession, msg inboundMessage) error {
	var p editPayload
	if err := decodePayload(msg, &p); err != nil {
		return err
	}

	var err error
	switch msg.Type {
	case "addQuestion":
		e.AddQuestion()
	case "removeQuestion":
		_, err = e.RemoveQuestion(p.QuestionID)
	case "duplicateQuestion":
		_, err = e.DuplicateQuestion(p.QuestionID)
	case "updateQuestionText":
		_, err = e.UpdateQuestionText(p.QuestionID, p.Text)
	case "updateExplanation":
		_, err = e.UpdateExplanation(p.QuestionID, p.Text)
	case "updateQuestionType":
		_, err = e.UpdateQuestionType(p.QuestionID, p.Type)
	case "addOption":
		_, err = e.AddOption(p.QuestionID)
	case "removeOption":
		_, err = e.RemoveOption(p.QuestionID, p.OptionID)
	case "updateOptionText":
		_, err = e.UpdateOptionText(p.QuestionID, p.OptionID, p.Text)
	case "toggleOptionCorrect":
		_, err = e.ToggleOptionCorrect(p.QuestionID, p.OptionID)
	case "updatePoints":
		_, err = e.UpdatePoints(p.QuestionID, p.Points)
	case "toggleRequired":
		_, err = e.ToggleRequired(p.QuestionID)
	case "moveQuestion":
		dir, derr := parseDirection(p.Direction)
		if derr != nil {
			return derr
		}
		_, err = e.MoveQuestion(p.QuestionID, dir)
	case "expandQuestion":
		_, err = e.ExpandQuestion(p.QuestionID)
	case "updateTitle":
		e.UpdateTitle(p.Title)
	case "updateSettings":
		_, err = e.UpdateSettings(p.Field, p.Value)
	case "flush":
		e.Flush()
		s.send("flushed", struct{}{})
	case "submissions":
		subs, serr := e.Submissions(ctx)
		if serr != nil {
			// already reported as a notice
			return nil
		}
		if subs == nil {
			subs = []domain.SubmissionResult{}
		}
		s.send("submissions", subs)
	default:
		return fmt.Errorf("%w: %s", errUnsupported, msg.Type)
	}
	return err
}

func parseDirection(raw string) (app.Direction, error) {
	switch raw {
	case "up":
		return app.Up, nil
	case "down":
		return app.Down, nil
	default:
		return 0, fmt.Errorf("%w: direction must be up or down", errInvalidPayload)
	}
}
