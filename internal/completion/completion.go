// Package completion is the client for the language-model completion API
// used by the recommendation flow. Any OpenAI-compatible chat completions
// endpoint works; the base URL and model are configurable.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/metrics"
)

const serviceName = "completion"

// Completer issues one system+user prompt and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config configures the completion client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is a Completer backed by the chat completions API.
type Client struct {
	client openai.Client
	model  string
	hasKey bool
	logger *slog.Logger
}

var _ Completer = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		hasKey: cfg.APIKey != "",
		logger: logger,
	}
}

// Complete sends the prompt and returns the first choice's text.
//
// A missing key or a 401/403 from the API is apperror.ErrAuthentication so
// callers can tell bad credentials apart from an outage (apperror.ErrUpstream).
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !c.hasKey {
		return "", apperror.Authentication(serviceName, errors.New("no API key configured"))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	metrics.UpstreamRequestDuration.WithLabelValues(serviceName).Observe(time.Since(start).Seconds())

	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			metrics.UpstreamRequestsTotal.WithLabelValues(serviceName, "http_error").Inc()
			if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
				return "", apperror.Authentication(serviceName, err)
			}
		} else {
			metrics.UpstreamRequestsTotal.WithLabelValues(serviceName, "network_error").Inc()
		}
		return "", apperror.Upstream(serviceName, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(serviceName, "ok").Inc()

	if len(resp.Choices) == 0 {
		return "", apperror.Upstream(serviceName, fmt.Errorf("reply has no choices"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("completion received",
		slog.String("model", c.model),
		slog.Int("chars", len(text)),
	)
	return text, nil
}
