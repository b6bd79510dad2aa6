package http

import (
	"net/http"
	"time"

	"quiz-studio/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the router needs. Backend is only mounted under
// /api when this process hosts the course backend itself.
type Deps struct {
	Authoring      app.AuthoringAPI
	Taking         app.TakingAPI
	Quizzes        app.QuizRepository
	Submissions    app.SubmissionLog
	Backend        Backend
	Editor         app.EditorOptions
	AllowedOrigins []string
	Logger         *zerolog.Logger
}

// NewRouter builds the HTTP surface: health check, the two websocket
// endpoints and optionally the REST backend.
func NewRouter(deps Deps) http.Handler {
	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	if deps.Authoring != nil {
		r.Get("/ws/edit", NewEditHandler(deps.Authoring, deps.Editor, logger).ServeWS)
	}
	if deps.Taking != nil && deps.Quizzes != nil {
		r.Get("/ws/take", NewTakeHandler(deps.Taking, deps.Authoring, deps.Quizzes, deps.Submissions, logger).ServeWS)
	}

	if deps.Backend != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(middleware.Timeout(30 * time.Second))
			MountBackend(api, deps.Backend)
		})
	}
	return r
}

func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
