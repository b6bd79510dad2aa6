// Package httpapi talks to a remote course backend over its JSON API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-studio/internal/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Options configure a Client. Zero values get defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps outgoing calls; zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *zerolog.Logger
}

// Client implements app.AuthoringAPI and app.TakingAPI against a backend
// exposing the routes served by transport/http.MountBackend.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// APIError is a non-2xx response whose code did not map to a domain error.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("httpapi: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpapi: parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		base:    base,
		http:    opts.HTTPClient,
		limiter: limiter,
		log:     opts.Logger.With().Str("component", "httpapi").Str("baseUrl", base.String()).Logger(),
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	c.log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}
	if sentinel := domain.ErrorFromCode(body.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, body.Message)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrQuizNotFound, body.Message)
	}
	return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Message}
}

type deletedBody struct {
	Deleted bool `json:"deleted"`
}

func (c *Client) GetQuizForInstructor(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	var out domain.QuizRecord
	err := c.do(ctx, http.MethodGet, c.endpoint("quizzes", quizID, "instructor"), nil, &out)
	return out, err
}

func (c *Client) CreateQuiz(ctx context.Context, lectureID string, quiz domain.QuizRecord) (domain.QuizRecord, error) {
	var out domain.QuizRecord
	err := c.do(ctx, http.MethodPost, c.endpoint("lectures", lectureID, "quizzes"), quiz, &out)
	return out, err
}

func (c *Client) UpdateQuiz(ctx context.Context, quizID string, quiz domain.QuizRecord) (domain.QuizRecord, error) {
	var out domain.QuizRecord
	err := c.do(ctx, http.MethodPut, c.endpoint("quizzes", quizID), quiz, &out)
	return out, err
}

func (c *Client) CreateQuestion(ctx context.Context, quizID string, question domain.QuestionRecord) (domain.QuestionRecord, error) {
	var out domain.QuestionRecord
	err := c.do(ctx, http.MethodPost, c.endpoint("quizzes", quizID, "questions"), question, &out)
	return out, err
}

func (c *Client) UpdateQuestion(ctx context.Context, questionID string, question domain.QuestionRecord) (domain.QuestionRecord, error) {
	var out domain.QuestionRecord
	err := c.do(ctx, http.MethodPut, c.endpoint("questions", questionID), question, &out)
	return out, err
}

func (c *Client) DeleteQuestion(ctx context.Context, questionID string) (bool, error) {
	var out deletedBody
	err := c.do(ctx, http.MethodDelete, c.endpoint("questions", questionID), nil, &out)
	return out.Deleted, err
}

func (c *Client) ReorderQuestions(ctx context.Context, quizID string, questionIDs []string) error {
	body := struct {
		QuestionIDs []string `json:"questionIds"`
	}{QuestionIDs: questionIDs}
	return c.do(ctx, http.MethodPut, c.endpoint("quizzes", quizID, "order"), body, nil)
}

func (c *Client) CreateAnswer(ctx context.Context, questionID string, answer domain.AnswerRecord) (domain.AnswerRecord, error) {
	var out domain.AnswerRecord
	err := c.do(ctx, http.MethodPost, c.endpoint("questions", questionID, "answers"), answer, &out)
	return out, err
}

func (c *Client) UpdateAnswer(ctx context.Context, answerID string, answer domain.AnswerRecord) (domain.AnswerRecord, error) {
	var out domain.AnswerRecord
	err := c.do(ctx, http.MethodPut, c.endpoint("answers", answerID), answer, &out)
	return out, err
}

func (c *Client) DeleteAnswer(ctx context.Context, answerID string) (bool, error) {
	var out deletedBody
	err := c.do(ctx, http.MethodDelete, c.endpoint("answers", answerID), nil, &out)
	return out.Deleted, err
}

func (c *Client) GetQuizSubmissions(ctx context.Context, quizID string) ([]domain.SubmissionResult, error) {
	var out []domain.SubmissionResult
	err := c.do(ctx, http.MethodGet, c.endpoint("quizzes", quizID, "submissions"), nil, &out)
	return out, err
}

func (c *Client) GetQuiz(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	var out domain.QuizRecord
	err := c.do(ctx, http.MethodGet, c.endpoint("quizzes", quizID), nil, &out)
	return out, err
}

func (c *Client) SubmitQuiz(ctx context.Context, req domain.SubmitRequest) (domain.SubmissionResult, error) {
	var out domain.SubmissionResult
	err := c.do(ctx, http.MethodPost, c.endpoint("quizzes", req.QuizID, "submit"), req, &out)
	return out, err
}

func (c *Client) GetSubmissionHistory(ctx context.Context, quizID, userID string) ([]domain.SubmissionResult, error) {
	var out []domain.SubmissionResult
	err := c.do(ctx, http.MethodGet, c.endpoint("quizzes", quizID, "users", userID, "submissions"), nil, &out)
	return out, err
}

func (c *Client) GetLatestSubmission(ctx context.Context, quizID, userID string) (domain.SubmissionResult, error) {
	var out domain.SubmissionResult
	err := c.do(ctx, http.MethodGet, c.endpoint("quizzes", quizID, "users", userID, "submissions", "latest"), nil, &out)
	return out, err
}
