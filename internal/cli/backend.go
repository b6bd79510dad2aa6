package cli

import (
	"context"
	"time"

	"quiz-studio/internal/app"
	"quiz-studio/internal/config"
	"quiz-studio/internal/domain"
	"quiz-studio/internal/infra/httpapi"
	"quiz-studio/internal/infra/memory"
	"quiz-studio/internal/infra/postgres"
	redisinfra "quiz-studio/internal/infra/redis"
	"quiz-studio/internal/logger"
	transport "quiz-studio/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// initLogging applies the config log section; the --log-level flag wins.
func initLogging(cfg config.Config) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(level, cfg.Log.Pretty)
}

// wiring is the set of collaborators shared by the server and the
// maintenance commands.
type wiring struct {
	backend transport.Backend
	// local is true when this process hosts the backend and should serve it.
	local       bool
	quizzes     app.QuizRepository
	submissions *redisinfra.SubmissionLog
	close       func()
}

// wire picks the course backend: a remote API when backend.baseUrl is set,
// postgres when postgres.url is set, otherwise a seeded in-memory store.
// Redis, when configured, fronts quiz loading and keeps the submission log.
func wire(ctx context.Context, cfg config.Config) (*wiring, error) {
	w := &wiring{close: func() {}}
	closers := []func(){}

	switch {
	case cfg.Backend.BaseURL != "":
		client, err := httpapi.New(httpapi.Options{
			BaseURL:           cfg.Backend.BaseURL,
			Timeout:           config.TTLDuration(cfg.Backend.Timeout, 10*time.Second),
			RequestsPerSecond: cfg.Backend.RequestsPerSecond,
			Burst:             cfg.Backend.Burst,
		})
		if err != nil {
			return nil, err
		}
		w.backend = client
		log.Info().Str("baseUrl", cfg.Backend.BaseURL).Msg("using remote course backend")
	case cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		w.backend = postgres.NewStore(pool)
		w.local = true
		log.Info().Msg("using postgres course backend")
	default:
		store := memory.NewStore()
		store.Seed(sampleQuiz())
		w.backend = store
		w.local = true
		log.Warn().Msg("no backend configured, serving an in-memory store with a sample quiz")
	}

	loader := memory.SourceLoader{Source: w.backend}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		w.quizzes = redisinfra.NewQuizRepository(client, loader, quizTTL)
		w.submissions = redisinfra.NewSubmissionLog(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		w.quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	w.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return w, nil
}

// sampleQuiz seeds the in-memory store so a fresh checkout has something to take.
func sampleQuiz() domain.QuizRecord {
	return domain.QuizRecord{
		ID:        "quiz-1",
		LectureID: "lecture-1",
		Title:     "Warm-up",
		Settings:  domain.DefaultSettings(),
		Questions: []domain.QuestionRecord{
			{
				ID:         "q1",
				Text:       "What is 2 + 2?",
				Type:       domain.SingleChoice,
				Points:     1,
				IsRequired: true,
				Position:   0,
				Answers: []domain.AnswerRecord{
					{ID: "q1-a", Text: "3", Position: 0},
					{ID: "q1-b", Text: "4", IsCorrect: true, Position: 1},
					{ID: "q1-c", Text: "5", Position: 2},
				},
			},
			{
				ID:       "q2",
				Text:     "Which of these are prime?",
				Type:     domain.MultipleChoice,
				Points:   2,
				Position: 1,
				Answers: []domain.AnswerRecord{
					{ID: "q2-a", Text: "2", IsCorrect: true, Position: 0},
					{ID: "q2-b", Text: "4", Position: 1},
					{ID: "q2-c", Text: "7", IsCorrect: true, Position: 2},
				},
			},
			{
				ID:       "q3",
				Text:     "Explain why 1 is not prime.",
				Type:     domain.Text,
				Points:   2,
				Position: 2,
			},
		},
	}
}
