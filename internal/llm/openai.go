// Package llm adapts hosted language model APIs to explain.Completer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/FranksOps/pagewatch/internal/explain"
)

// ensure OpenAI implements explain.Completer
var _ explain.Completer = (*OpenAI)(nil)

// Config configures the OpenAI chat completion client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient overrides the SDK's default client.
	HTTPClient *http.Client
}

// OpenAI issues single-turn chat completions.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates a client. Retries are disabled so a caller's timeout
// bounds exactly one request.
func NewOpenAI(cfg Config, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger.With("provider", "openai", "model", cfg.Model),
	}, nil
}

// Model returns the configured model identifier.
func (o *OpenAI) Model() string { return o.model }

// Complete sends system and user prompts and returns the first choice's text.
// An empty choice list yields an empty string, not an error.
func (o *OpenAI) Complete(ctx context.Context, system, user string, opts explain.Options) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		// max_tokens rather than max_completion_tokens: older compatible
		// servers behind a custom base URL only honour the former.
		req.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	o.logger.Debug("requesting chat completion", "prompt_chars", len(user))

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
