package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-studio/internal/domain"

	"github.com/redis/go-redis/v9"
)

// SubmissionLog keeps an append-only list of graded submissions per quiz and
// user: RPUSH quiz:{quizID}:user:{userID}:submissions {json}.
type SubmissionLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSubmissionLog returns a log whose lists expire ttl after the last
// append; zero keeps them forever.
func NewSubmissionLog(client *redis.Client, ttl time.Duration) *SubmissionLog {
	return &SubmissionLog{client: client, ttl: ttl}
}

func (l *SubmissionLog) Append(ctx context.Context, sub domain.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	key := l.key(sub.QuizID, sub.UserID)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append submission: %w", err)
	}
	return nil
}

// History returns the user's submissions for a quiz, oldest first.
func (l *SubmissionLog) History(ctx context.Context, quizID, userID string) ([]domain.Submission, error) {
	raw, err := l.client.LRange(ctx, l.key(quizID, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	out := make([]domain.Submission, 0, len(raw))
	for _, item := range raw {
		var sub domain.Submission
		if err := json.Unmarshal([]byte(item), &sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

// Latest returns the most recent submission or domain.ErrSubmissionNotFound.
func (l *SubmissionLog) Latest(ctx context.Context, quizID, userID string) (domain.Submission, error) {
	item, err := l.client.LIndex(ctx, l.key(quizID, userID), -1).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("read submission: %w", err)
	}
	var sub domain.Submission
	if err := json.Unmarshal([]byte(item), &sub); err != nil {
		return domain.Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return sub, nil
}

func (l *SubmissionLog) key(quizID, userID string) string {
	return "quiz:" + quizID + ":user:" + userID + ":submissions"
}
