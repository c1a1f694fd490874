package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/ratelimit"
	"github.com/deusflow/newspulse/internal/retry"
)

var fastRetry = retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}

type stubProvider struct {
	name  string
	reply string
	err   error
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(context.Context, string, string, bool) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

func TestScoreUsesFirstWorkingProvider(t *testing.T) {
	broken := &stubProvider{name: "groq", err: errors.New("503")}
	good := &stubProvider{name: "gemini", reply: "```json\n{\"Score\": 0.6, \"Sentiment\": \"positive\", \"Summary\": \"Good news\", \"Keywords\": [\"growth\", \"ai\"]}\n```"}

	svc := NewService([]Provider{broken, nil, good}, WithRetry(fastRetry))
	res, err := svc.Score(context.Background(), "Acme", "Acme grew.")
	require.NoError(t, err)

	assert.Equal(t, 0.6, res.Score)
	assert.Equal(t, Positive, res.Sentiment)
	assert.Equal(t, "Good news", res.Summary)
	assert.Equal(t, []string{"growth", "ai"}, res.Keywords)
	assert.Equal(t, "gemini", res.Provider)
	assert.Equal(t, int32(2), broken.calls.Load())
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestScoreFallsBackOnInvalidReplies(t *testing.T) {
	outOfRange := &stubProvider{name: "groq", reply: `{"Score": 3, "Sentiment": "Positive", "Summary": "x", "Keywords": []}`}
	missing := &stubProvider{name: "gemini", reply: `{"Score": 0.2}`}

	svc := NewService([]Provider{outOfRange, missing}, WithRetry(fastRetry))
	res, err := svc.Score(context.Background(), "Acme", "Acme announced a breakthrough technology with strong growth.")
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Provider)
	assert.Greater(t, res.Score, 0.1)
}

func TestScoreRespectsBudget(t *testing.T) {
	p := &stubProvider{name: "groq", reply: `{"Score": 0.1, "Sentiment": "Neutral", "Summary": "", "Keywords": []}`}
	budget := ratelimit.NewBudget(map[string]int{"groq": 1}, 0)
	svc := NewService([]Provider{p}, WithBudget(budget), WithRetry(fastRetry))

	res, err := svc.Score(context.Background(), "Acme", "text")
	require.NoError(t, err)
	assert.Equal(t, "groq", res.Provider)

	res, err = svc.Score(context.Background(), "Acme", "text")
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Provider)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestScoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(nil).Score(ctx, "Acme", "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseResult(t *testing.T) {
	res, err := parseResult(`Here you go: {"score": "-0.4", "sentiment": "NEGATIVE", "summary": " Bad ", "keywords": "fine, lawsuit", "reasoning": "r"}`)
	require.NoError(t, err)
	assert.Equal(t, -0.4, res.Score)
	assert.Equal(t, Negative, res.Sentiment)
	assert.Equal(t, "Bad", res.Summary)
	assert.Equal(t, []string{"fine", "lawsuit"}, res.Keywords)
	assert.Equal(t, "r", res.Reasoning)

	res, err = parseResult(`{"Score": 0.05, "Sentiment": "mixed", "Summary": "", "Keywords": []}`)
	require.NoError(t, err)
	assert.Equal(t, Neutral, res.Sentiment)

	for _, bad := range []string{"", "no json", `{"Score": true, "Sentiment": "", "Summary": "", "Keywords": []}`, `{"Score": -1.5, "Sentiment": "", "Summary": "", "Keywords": []}`} {
		_, err := parseResult(bad)
		assert.Error(t, err, bad)
	}
}

func TestFallback(t *testing.T) {
	res := Fallback("Acme", "Acme faces a lawsuit and a security breach after the crash. Layoff news follows the bankruptcy filing.")
	assert.Equal(t, Negative, res.Sentiment)
	assert.Equal(t, -0.6, res.Score)
	assert.Contains(t, res.Summary, "concerning elements for Acme")

	res = Fallback("Acme", "")
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, Neutral, res.Sentiment)
	assert.Empty(t, res.Keywords)

	var long string
	for i := 0; i < 20; i++ {
		long += "growth success profit "
	}
	res = Fallback("Acme", long)
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, []string{"growth", "success", "profit"}, res.Keywords)
}

func TestFallbackPatternBonus(t *testing.T) {
	res := Fallback("Acme", "The firm will solve the problem quickly.")
	// solve +1, problem -1, pattern +2
	assert.Equal(t, 0.2, res.Score)
	assert.Equal(t, Positive, res.Sentiment)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, Positive, Label(0.11))
	assert.Equal(t, Neutral, Label(0.1))
	assert.Equal(t, Neutral, Label(-0.1))
	assert.Equal(t, Negative, Label(-0.11))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab... [truncated]", truncate("abcdef", 2))
}

func TestSummarizeCachesAndOrders(t *testing.T) {
	p := &stubProvider{name: "groq", reply: "  Overall fine.  "}
	store := cache.NewMemoryStore(time.Hour, 0)
	defer store.Close()
	svc := NewService([]Provider{p}, WithCache(store), WithRetry(fastRetry))

	in := []SummaryInput{{URL: "https://b", Summary: "B", Score: 0.2}, {URL: "https://a", Summary: "A", Score: 0.5}}
	out, err := svc.Summarize(context.Background(), "Acme", in)
	require.NoError(t, err)
	assert.Equal(t, "Overall fine.", out)

	reversed := []SummaryInput{in[1], in[0]}
	out, err = svc.Summarize(context.Background(), "Acme", reversed)
	require.NoError(t, err)
	assert.Equal(t, "Overall fine.", out)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestSummarizeWithoutProvider(t *testing.T) {
	_, err := NewService(nil).Summarize(context.Background(), "Acme", []SummaryInput{{URL: "u"}})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestOpenAIProviderAgainstCompatibleServer(t *testing.T) {
	var gotModel string
	var gotFormat any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)
		gotFormat = body["response_format"]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"{\"Score\":0.3,\"Sentiment\":\"Positive\",\"Summary\":\"ok\",\"Keywords\":[\"k\"]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "key", srv.URL+"/", "llama-3.1-8b-instant")
	require.NotNil(t, p)

	res, err := NewService([]Provider{p}, WithRetry(fastRetry)).Score(context.Background(), "Acme", "text")
	require.NoError(t, err)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, 0.3, res.Score)
	assert.Equal(t, "llama-3.1-8b-instant", gotModel)
	assert.NotNil(t, gotFormat)

	assert.Nil(t, NewOpenAIProvider("groq", "", "", "m"))
}

func TestGeminiResponseText(t *testing.T) {
	_, err := responseText(nil)
	assert.Error(t, err)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"Score":`), genai.Text(` 0.1}`)}},
	}}}
	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"Score": 0.1}`, text)

	p, err := NewGeminiProvider(context.Background(), "", "gemini-1.5-flash")
	assert.NoError(t, err)
	assert.Nil(t, p)
}
