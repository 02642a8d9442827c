// Package explain turns a pair of page texts into a human-readable account of
// what changed. It asks a language model when one is configured and degrades
// to the deterministic diff summary on every failure.
package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/pagewatch/internal/diff"
)

const (
	ReasonNoChanges = "No textual changes detected"

	DefaultProvider       = "OpenAI"
	DefaultCredentialName = "OPENAI_API_KEY"
	DefaultMaxInputChars  = 50000
	DefaultTimeout        = 8 * time.Second
	DefaultMaxTokens      = 220
	DefaultTemperature    = 0.2

	systemPrompt = "You explain differences between two versions of a webpage in concise bullet points."
)

// Options tune a single completion request.
type Options struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Completer is the language model capability the generator needs.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts Options) (string, error)
}

// Result is the explanation of a change. Model and Reason are nil when not
// applicable; Meta is always the diff metadata, untouched.
type Result struct {
	Explanation  string    `json:"explanation"`
	UsedFallback bool      `json:"usedFallback"`
	Model        *string   `json:"model"`
	Reason       *string   `json:"reason"`
	Meta         diff.Meta `json:"meta"`
}

// Config configures a Generator.
type Config struct {
	// APIKey is the provider credential. Empty means "not configured".
	APIKey string
	// Model is the model identifier recorded on every attempted call.
	Model string
	// Provider names the vendor in fallback reasons, e.g. "OpenAI error: ...".
	Provider string
	// CredentialName names the missing credential, e.g. "OPENAI_API_KEY not set".
	CredentialName string
	// MaxInputChars bounds each text independently before prompting.
	MaxInputChars int
	Timeout       time.Duration
	MaxTokens     int
	// Temperature is passed through as is; zero is a valid setting.
	Temperature float64
}

func (c *Config) defaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.CredentialName == "" {
		c.CredentialName = DefaultCredentialName
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = DefaultMaxInputChars
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// Generator decides whether to call the language model for a change.
type Generator struct {
	cfg    Config
	client Completer
	logger *slog.Logger
}

// NewGenerator creates a Generator. client may be nil, in which case every
// explanation with changes falls back as if no credential were set.
func NewGenerator(cfg Config, client Completer, logger *slog.Logger) *Generator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{cfg: cfg, client: client, logger: logger}
}

// Explain never returns an error: provider failures, empty responses and a
// missing credential all become fallback results with a reason.
func (g *Generator) Explain(ctx context.Context, oldText, newText string) Result {
	d := diff.Texts(oldText, newText)

	if !d.HasChanges {
		return fallback(d, nil, ReasonNoChanges)
	}

	if g.cfg.APIKey == "" || g.client == nil {
		g.logger.Warn("language model credential not set, using fallback summary", "credential", g.cfg.CredentialName)
		return fallback(d, nil, g.cfg.CredentialName+" not set")
	}

	model := g.cfg.Model
	opts := Options{
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Timeout:     g.cfg.Timeout,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt := BuildPrompt(Truncate(oldText, g.cfg.MaxInputChars), Truncate(newText, g.cfg.MaxInputChars))
	out, err := g.client.Complete(callCtx, systemPrompt, prompt, opts)
	if err != nil {
		g.logger.Warn("language model call failed, using fallback summary", "provider", g.cfg.Provider, "model", model, "err", err)
		return fallback(d, &model, fmt.Sprintf("%s error: %s", g.cfg.Provider, err.Error()))
	}

	explanation := strings.TrimSpace(out)
	if explanation == "" {
		g.logger.Warn("language model returned empty response, using fallback summary", "provider", g.cfg.Provider, "model", model)
		return fallback(d, &model, g.cfg.Provider+" returned empty response")
	}

	return Result{
		Explanation:  explanation,
		UsedFallback: false,
		Model:        &model,
		Meta:         d.Meta,
	}
}

func fallback(d diff.Result, model *string, reason string) Result {
	return Result{
		Explanation:  d.Summary,
		UsedFallback: true,
		Model:        model,
		Reason:       &reason,
		Meta:         d.Meta,
	}
}
