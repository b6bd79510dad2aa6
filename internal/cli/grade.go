package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"quiz-studio/internal/domain"
	"quiz-studio/internal/grading"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// attemptFile is a quiz with the answer key plus one set of answers.
// JSON input works too since it is valid YAML.
type attemptFile struct {
	Quiz    domain.Quiz     `yaml:"quiz"`
	Answers []domain.Answer `yaml:"answers"`
}

// NewGradeCmd grades an attempt file offline and prints the result as JSON.
// With --submission it instead checks a remotely graded submission against
// the quiz's answer key.
func NewGradeCmd() *cobra.Command {
	var file, submission string
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a quiz attempt from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			if submission == "" {
				return gradeAttempt(in, cmd.OutOrStdout())
			}
			sf, err := os.Open(submission)
			if err != nil {
				return err
			}
			defer sf.Close()
			return verifySubmission(in, sf, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "attempt file, - for stdin")
	cmd.Flags().StringVar(&submission, "submission", "", "backend submission JSON to verify against the quiz")
	return cmd
}

func readAttempt(in io.Reader) (attemptFile, error) {
	var attempt attemptFile
	if err := yaml.NewDecoder(in).Decode(&attempt); err != nil {
		if errors.Is(err, io.EOF) {
			return attempt, errors.New("empty attempt file")
		}
		return attempt, fmt.Errorf("parse attempt: %w", err)
	}
	for _, q := range attempt.Quiz.Questions {
		if _, err := domain.KindOf(q.Type); err != nil {
			return attempt, fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	return attempt, nil
}

func gradeAttempt(in io.Reader, out io.Writer) error {
	attempt, err := readAttempt(in)
	if err != nil {
		return err
	}
	return writeJSON(out, grading.Grade(attempt.Quiz, attempt.Answers))
}

// verifySubmission replays sub against the quiz in the attempt file. The
// file's answers are ignored; the submission carries its own.
func verifySubmission(in, subIn io.Reader, out io.Writer) error {
	attempt, err := readAttempt(in)
	if err != nil {
		return err
	}
	var sub domain.SubmissionResult
	if err := json.NewDecoder(subIn).Decode(&sub); err != nil {
		return fmt.Errorf("parse submission: %w", err)
	}
	if err := grading.Verify(attempt.Quiz, sub); err != nil {
		return err
	}
	return writeJSON(out, grading.FromSubmission(attempt.Quiz, sub))
}
