package explain

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/pagewatch/internal/diff"
)

type fakeCompleter struct {
	out    string
	err    error
	calls  int
	system string
	user   string
	opts   Options
	block  bool
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string, opts Options) (string, error) {
	f.calls++
	f.system, f.user, f.opts = system, user, opts
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.out, f.err
}

func newTestGenerator(apiKey string, c Completer) *Generator {
	return NewGenerator(Config{APIKey: apiKey, Model: "gpt-4o-mini", Temperature: DefaultTemperature}, c, nil)
}

func TestExplain_NoChangesSkipsModel(t *testing.T) {
	fc := &fakeCompleter{out: "should not be used"}
	g := newTestGenerator("sk-test", fc)

	res := g.Explain(context.Background(), "Same text", "Same   text")

	assert.True(t, res.UsedFallback)
	assert.Nil(t, res.Model)
	require.NotNil(t, res.Reason)
	assert.Equal(t, ReasonNoChanges, *res.Reason)
	assert.Equal(t, diff.SummaryUnchanged, res.Explanation)
	assert.Equal(t, 0, fc.calls)
}

func TestExplain_NoCredential(t *testing.T) {
	fc := &fakeCompleter{out: "unused"}
	g := newTestGenerator("", fc)

	res := g.Explain(context.Background(), "Hello world", "Hello brave new world")

	assert.True(t, res.UsedFallback)
	assert.Nil(t, res.Model)
	require.NotNil(t, res.Reason)
	assert.Equal(t, "OPENAI_API_KEY not set", *res.Reason)
	assert.Contains(t, res.Explanation, "Text content changed")
	assert.NotContains(t, res.Explanation, "No significant")
	assert.Equal(t, 0, fc.calls)
}

func TestExplain_NilClientBehavesAsMissingCredential(t *testing.T) {
	g := newTestGenerator("sk-test", nil)
	res := g.Explain(context.Background(), "", "first")
	assert.True(t, res.UsedFallback)
	assert.Nil(t, res.Model)
	assert.Equal(t, diff.SummaryInitial, res.Explanation)
}

func TestExplain_ProviderError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection refused")}
	g := newTestGenerator("sk-test", fc)

	res := g.Explain(context.Background(), "Hello world", "Hello brave new world")

	assert.True(t, res.UsedFallback)
	require.NotNil(t, res.Model)
	assert.Equal(t, "gpt-4o-mini", *res.Model)
	require.NotNil(t, res.Reason)
	assert.Equal(t, "OpenAI error: connection refused", *res.Reason)
	assert.Contains(t, res.Explanation, "Text content changed")
}

func TestExplain_FallbacksLogAtWarn(t *testing.T) {
	cases := map[string]struct {
		apiKey string
		fc     *fakeCompleter
		msg    string
	}{
		"missing credential": {"", &fakeCompleter{}, "language model credential not set"},
		"provider error":     {"sk-test", &fakeCompleter{err: errors.New("connection refused")}, "language model call failed"},
		"empty response":     {"sk-test", &fakeCompleter{out: "   "}, "language model returned empty response"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			g := NewGenerator(Config{APIKey: tc.apiKey, Model: "gpt-4o-mini"}, tc.fc, logger)

			res := g.Explain(context.Background(), "Hello world", "Hello brave new world")
			require.True(t, res.UsedFallback)

			out := buf.String()
			assert.Contains(t, out, "level=WARN")
			assert.Contains(t, out, tc.msg)
			assert.NotContains(t, out, "level=ERROR")
		})
	}
}

func TestExplain_EmptyResponse(t *testing.T) {
	fc := &fakeCompleter{out: "  \n\t "}
	g := newTestGenerator("sk-test", fc)

	res := g.Explain(context.Background(), "a", "b")

	assert.True(t, res.UsedFallback)
	require.NotNil(t, res.Model)
	require.NotNil(t, res.Reason)
	assert.Equal(t, "OpenAI returned empty response", *res.Reason)
}

func TestExplain_Success(t *testing.T) {
	fc := &fakeCompleter{out: "\n- Added a greeting\n- Removed the footer\n"}
	g := newTestGenerator("sk-test", fc)

	res := g.Explain(context.Background(), "Hello world", "Hello brave new world")

	assert.False(t, res.UsedFallback)
	assert.Nil(t, res.Reason)
	require.NotNil(t, res.Model)
	assert.Equal(t, "gpt-4o-mini", *res.Model)
	assert.Equal(t, "- Added a greeting\n- Removed the footer", res.Explanation)
	assert.Equal(t, diff.Texts("Hello world", "Hello brave new world").Meta, res.Meta)

	assert.Equal(t, 1, fc.calls)
	assert.Contains(t, fc.system, "bullet points")
	assert.Contains(t, fc.user, "OLD:\n---\nHello world")
	assert.Contains(t, fc.user, "NEW:\n---\nHello brave new world")
	assert.Equal(t, DefaultMaxTokens, fc.opts.MaxTokens)
	assert.Equal(t, DefaultTemperature, fc.opts.Temperature)
	assert.Equal(t, DefaultTimeout, fc.opts.Timeout)
}

func TestExplain_InitialSnapshotRendersEmptyPlaceholder(t *testing.T) {
	fc := &fakeCompleter{out: "- New page"}
	g := newTestGenerator("sk-test", fc)

	res := g.Explain(context.Background(), "", "brand new page")

	assert.False(t, res.UsedFallback)
	assert.Contains(t, fc.user, "OLD:\n---\n(empty)")
}

func TestExplain_Timeout(t *testing.T) {
	fc := &fakeCompleter{block: true}
	g := NewGenerator(Config{APIKey: "sk-test", Model: "m", Timeout: 20 * time.Millisecond}, fc, nil)

	res := g.Explain(context.Background(), "a", "ab")

	assert.True(t, res.UsedFallback)
	require.NotNil(t, res.Reason)
	assert.True(t, strings.HasPrefix(*res.Reason, "OpenAI error: "))
	assert.Contains(t, *res.Reason, "deadline exceeded")
}

func TestExplain_TruncatesEachTextIndependently(t *testing.T) {
	fc := &fakeCompleter{out: "- big change"}
	g := NewGenerator(Config{APIKey: "k", Model: "m", MaxInputChars: 10}, fc, nil)

	g.Explain(context.Background(), strings.Repeat("o", 50), strings.Repeat("n", 5))

	assert.Contains(t, fc.user, "OLD:\n---\n"+strings.Repeat("o", 10)+"\n")
	assert.NotContains(t, fc.user, strings.Repeat("o", 11))
	assert.Contains(t, fc.user, "NEW:\n---\nnnnnn\n")
}

func TestExplain_CustomProviderNames(t *testing.T) {
	g := NewGenerator(Config{Provider: "Acme", CredentialName: "ACME_KEY"}, &fakeCompleter{}, nil)
	res := g.Explain(context.Background(), "x", "y")
	require.NotNil(t, res.Reason)
	assert.Equal(t, "ACME_KEY not set", *res.Reason)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
	out := Truncate("héllo", 2)
	assert.Equal(t, "hé", out)
	assert.True(t, utf8.ValidString(out))
}
