package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"quiz-studio/internal/config"
	"quiz-studio/internal/domain"

	"github.com/spf13/cobra"
)

// NewHistoryCmd prints a student's submissions for a quiz, from the redis
// submission log when configured and from the backend otherwise.
func NewHistoryCmd(configPath *string) *cobra.Command {
	var (
		quizID, userID string
		latest         bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a student's submissions for a quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			if quizID == "" || userID == "" {
				return errors.New("--quiz and --user are required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			initLogging(cfg)

			w, err := wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer w.close()

			v, err := w.history(cmd.Context(), quizID, userID, latest)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&latest, "latest", false, "only the most recent submission")
	return cmd
}

func (w *wiring) history(ctx context.Context, quizID, userID string, latest bool) (any, error) {
	switch {
	case w.submissions != nil && latest:
		return w.submissions.Latest(ctx, quizID, userID)
	case w.submissions != nil:
		return w.submissions.History(ctx, quizID, userID)
	case latest:
		return w.backend.GetLatestSubmission(ctx, quizID, userID)
	}
	history, err := w.backend.GetSubmissionHistory(ctx, quizID, userID)
	if history == nil {
		history = []domain.SubmissionResult{}
	}
	return history, err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
