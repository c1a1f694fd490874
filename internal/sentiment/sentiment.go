// Package sentiment scores how an article treats a company or person. It
// asks an LLM provider chain first and falls back to word-list scoring.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/ratelimit"
	"github.com/deusflow/newspulse/internal/retry"
)

var ErrNoProvider = errors.New("no LLM provider available")

const (
	Positive = "Positive"
	Neutral  = "Neutral"
	Negative = "Negative"

	maxArticleRunes = 2000
)

// Result is the scoring outcome for one article.
type Result struct {
	Score     float64  `json:"score"`
	Sentiment string   `json:"sentiment"`
	Summary   string   `json:"summary"`
	Keywords  []string `json:"keywords"`
	Reasoning string   `json:"reasoning,omitempty"`
	Provider  string   `json:"provider"`
}

// Provider is one LLM backend. Complete returns the raw model text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// SummaryInput is one article as seen by Summarize.
type SummaryInput struct {
	URL     string
	Summary string
	Score   float64
}

type Service struct {
	providers []Provider
	budget    *ratelimit.Budget
	retry     retry.RetryConfig
	cache     cache.Store
	log       *slog.Logger
}

type Option func(*Service)

func WithBudget(b *ratelimit.Budget) Option { return func(s *Service) { s.budget = b } }
func WithCache(c cache.Store) Option        { return func(s *Service) { s.cache = c } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.log = l } }
func WithRetry(cfg retry.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// NewService tries providers in the given order. Nil providers are ignored.
func NewService(providers []Provider, opts ...Option) *Service {
	s := &Service{
		retry: retry.RetryConfig{MaxAttempts: 3, Delay: 5 * time.Second, Backoff: true, MaxDelay: 30 * time.Second},
		log:   slog.Default(),
	}
	for _, p := range providers {
		if p != nil {
			s.providers = append(s.providers, p)
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HasProvider reports whether any LLM backend is configured.
func (s *Service) HasProvider() bool { return len(s.providers) > 0 }

const scoreSystemPrompt = `You are a financial news analyst. Return ONLY valid JSON with this exact format:

{
    "Score": 0.75,
    "Sentiment": "Positive",
    "Summary": "Brief summary here",
    "Keywords": ["keyword1", "keyword2", "keyword3"],
    "Reasoning": "Brief reasoning here"
}

Rules:
- Score is a number between -1.0 and 1.0
- Sentiment is exactly "Positive", "Neutral" or "Negative"
- No text before or after the JSON object

Scoring:
- 0.8 to 1.0: major breakthrough or strong advantage
- 0.4 to 0.7: innovation, problem solving, market strength
- 0.1 to 0.3: minor positive developments
- -0.1 to 0.1: no clear impact
- -0.3 to -0.1: minor concerns
- -0.7 to -0.4: significant problems
- -1.0 to -0.8: major failures

Articles about problems the company solves are usually positive. Focus on the impact on the named entity.`

func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "... [truncated]"
}

// Score rates text for entity. When every provider fails or none is
// configured the word-list heuristic answers instead, so the only error
// returned is ctx's.
func (s *Service) Score(ctx context.Context, entity, text string) (Result, error) {
	text = truncate(strings.TrimSpace(text), maxArticleRunes)
	user := fmt.Sprintf("Company: %s\nNews Article (truncated if too long):\n%s", entity, text)

	for _, p := range s.providers {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if s.budget != nil && !s.budget.CanUse(p.Name()) {
			s.log.Debug("Provider over budget", "provider", p.Name())
			continue
		}

		var res Result
		err := retry.WithRetry(ctx, s.retry, func() error {
			if s.budget != nil {
				if err := s.budget.Use(p.Name()); err != nil {
					return retry.Permanent(err)
				}
			}
			raw, err := p.Complete(ctx, scoreSystemPrompt, user, true)
			if err != nil {
				return err
			}
			res, err = parseResult(raw)
			return err
		})
		if err != nil {
			s.log.Warn("Sentiment provider failed", "provider", p.Name(), "err", err)
			continue
		}
		res.Provider = p.Name()
		metrics.SentimentScored.WithLabelValues(p.Name()).Inc()
		return res, nil
	}

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	metrics.SentimentScored.WithLabelValues("fallback").Inc()
	return Fallback(entity, text), nil
}

const summarySystemPrompt = "You are a helpful assistant that provides concise and accurate summaries."

// Summarize writes an overall summary of the articles about entity. The
// result is cached by entity and article set. ErrNoProvider means the
// caller has to build its own summary.
func (s *Service) Summarize(ctx context.Context, entity string, articles []SummaryInput) (string, error) {
	if len(articles) == 0 {
		return "", errors.New("no articles to summarize")
	}

	sorted := append([]SummaryInput(nil), articles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	urls := make([]string, len(sorted))
	for i, a := range sorted {
		urls[i] = a.URL
	}
	key := cache.Key(entity+"|"+strings.Join(urls, "|"), cache.ScopeSummary)
	if cached, ok := cache.Load[string](ctx, s.cache, key); ok && cached != "" {
		return cached, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial analyst. Provide a comprehensive summary of the following news articles about %s.\n", entity)
	b.WriteString("Consider the sentiment of each article and highlight key points, trends and significant events. ")
	b.WriteString("Focus on facts and avoid speculation. Keep the summary under 200 words.\n\nArticles:\n")
	for i, a := range sorted {
		fmt.Fprintf(&b, "%d. Summary: %s\n   Sentiment: %.2f\n\n", i+1, a.Summary, a.Score)
	}
	prompt := b.String()

	for _, p := range s.providers {
		if s.budget != nil && !s.budget.CanUse(p.Name()) {
			continue
		}
		var out string
		err := retry.WithRetry(ctx, s.retry, func() error {
			if s.budget != nil {
				if err := s.budget.Use(p.Name()); err != nil {
					return retry.Permanent(err)
				}
			}
			raw, err := p.Complete(ctx, summarySystemPrompt, prompt, false)
			if err != nil {
				return err
			}
			out = strings.TrimSpace(raw)
			if out == "" {
				return errors.New("empty summary")
			}
			return nil
		})
		if err != nil {
			s.log.Warn("Summary provider failed", "provider", p.Name(), "err", err)
			continue
		}
		cache.Save(ctx, s.cache, key, out)
		return out, nil
	}
	return "", ErrNoProvider
}

// Label maps a score onto Positive, Neutral or Negative.
func Label(score float64) string {
	switch {
	case score > 0.1:
		return Positive
	case score < -0.1:
		return Negative
	default:
		return Neutral
	}
}
