package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-studio/internal/app"
	"quiz-studio/internal/config"
	transport "quiz-studio/internal/transport/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	w, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.close()

	deps := transport.Deps{
		Authoring:      w.backend,
		Taking:         w.backend,
		Quizzes:        w.quizzes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Editor: app.EditorOptions{
			TextDelay:        config.TTLDuration(cfg.Authoring.TextDebounce, 0),
			ExplanationDelay: config.TTLDuration(cfg.Authoring.ExplanationDebounce, 0),
			SettingsDelay:    config.TTLDuration(cfg.Authoring.SettingsDebounce, 0),
		},
	}
	if cache, ok := w.quizzes.(app.QuizCache); ok {
		deps.Editor.Cache = cache
	}
	if w.submissions != nil {
		deps.Submissions = w.submissions
	}
	if w.local {
		deps.Backend = w.backend
	}

	// no write timeout: websocket connections are long lived
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(deps),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz studio")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
