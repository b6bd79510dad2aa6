package app

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Severity of a user-facing notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a transient, non-blocking message for the user.
type Notice struct {
	Severity Severity `json:"severity"`
	Op       string   `json:"op"`
	Message  string   `json:"message"`
}

// Notifier receives notices. Engines send exactly one notice per failed remote call.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a zerolog logger. It is the default when no
// presentation layer is attached.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(notice Notice) {
	n.Logger.WithLevel(levelFor(notice.Severity)).
		Str("op", notice.Op).
		Msg(notice.Message)
}

func levelFor(s Severity) zerolog.Level {
	switch s {
	case SeverityError:
		return zerolog.ErrorLevel
	case SeverityWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func defaultNotifier() Notifier {
	return LogNotifier{Logger: log.Logger}
}
