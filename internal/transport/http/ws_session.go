package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"quiz-studio/internal/app"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// wsSession serializes all writes to one connection through a single writer
// goroutine. Engines push from their own goroutines via send.
type wsSession struct {
	conn *websocket.Conn
	log  zerolog.Logger

	out        chan outboundMessage[any]
	done       chan struct{}
	once       sync.Once
	writerDone chan struct{}
}

func newWSSession(conn *websocket.Conn, logger zerolog.Logger) *wsSession {
	s := &wsSession{
		conn:       conn,
		log:        logger,
		out:        make(chan outboundMessage[any], 32),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *wsSession) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("ws write failed")
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// send queues a message; it is dropped once the session is closed.
func (s *wsSession) send(typ string, payload any) {
	select {
	case s.out <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-s.done:
	}
}

func (s *wsSession) sendError(err error) {
	s.send("error", errorPayload{Code: errorCode(err), Message: err.Error()})
}

// notifier forwards engine notices to the client.
func (s *wsSession) notifier() app.Notifier {
	return app.NotifierFunc(func(n app.Notice) { s.send("notice", n) })
}

// readLoop decodes inbound messages until the peer goes away.
func (s *wsSession) readLoop(handle func(inboundMessage)) {
	for {
		var inbound inboundMessage
		if err := s.conn.ReadJSON(&inbound); err != nil {
			return
		}
		handle(inbound)
	}
}

func (s *wsSession) close() {
	s.once.Do(func() { close(s.done) })
}

// shutdown stops the writer and waits for it.
func (s *wsSession) shutdown() {
	s.close()
	<-s.writerDone
}

func decodePayload(msg inboundMessage, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return errInvalidPayload
	}
	return nil
}
