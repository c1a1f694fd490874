// Package news combines the RSS aggregator and NewsAPI into one article
// search, and adds sentiment analysis and interest recommendations on top.
package news

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/sentiment"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

var (
	ErrInvalidRange = errors.New("start date is after end date")
	ErrNoInterests  = errors.New("no interests given")
)

const dateLayout = "2006-01-02"

type FeedSearcher interface {
	SearchFeeds(ctx context.Context, query string, maxArticles int) ([]models.ArticleRecord, error)
}

type APISource interface {
	Enabled() bool
	Search(ctx context.Context, query string, n int) ([]models.ArticleRecord, error)
}

type Scorer interface {
	Score(ctx context.Context, entity, text string) (sentiment.Result, error)
	Summarize(ctx context.Context, entity string, articles []sentiment.SummaryInput) (string, error)
}

// Query is one search request. Dates are compared at day granularity and
// both bounds are inclusive.
type Query struct {
	Text        string
	MaxArticles int
	StartDate   *time.Time
	EndDate     *time.Time
}

type Options struct {
	Workers int // concurrent sentiment calls
	Logger  *slog.Logger
	Now     func() time.Time
}

type Service struct {
	feeds  FeedSearcher
	api    APISource
	scorer Scorer
	cache  cache.Store
	opts   Options
	log    *slog.Logger
}

// NewService wires the sources. api and store may be nil.
func NewService(feeds FeedSearcher, api APISource, scorer Scorer, store cache.Store, opts Options) *Service {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{feeds: feeds, api: api, scorer: scorer, cache: store, opts: opts, log: opts.Logger}
}

func day(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func (q Query) rangeKey() string {
	var start, end string
	if q.StartDate != nil {
		start = day(*q.StartDate)
	}
	if q.EndDate != nil {
		end = day(*q.EndDate)
	}
	return start + "_" + end
}

// GetNewsAbout searches feeds and NewsAPI for q.Text, removes duplicates,
// applies the date range and returns the newest articles first. Articles
// without a real publish date are kept and placed last.
func (s *Service) GetNewsAbout(ctx context.Context, q Query) ([]models.ArticleRecord, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, rss.ErrEmptyQuery
	}
	if q.MaxArticles <= 0 {
		q.MaxArticles = rss.DefaultMaxArticles
	}
	if q.StartDate != nil && q.EndDate != nil && day(*q.StartDate) > day(*q.EndDate) {
		return nil, ErrInvalidRange
	}

	key := cache.Key(q.Text+"_"+q.rangeKey(), cache.ScopeNewsAbout)
	if cached, ok := cache.Load[cache.Results[models.ArticleRecord]](ctx, s.cache, key); ok && cached.Covers(q.MaxArticles) {
		metrics.Global.RecordCacheLookup(true)
		s.log.Info("Using cached results", "query", q.Text, "range", q.rangeKey())
		return capRecords(cached.Items, q.MaxArticles), nil
	}
	metrics.Global.RecordCacheLookup(false)

	var all []models.ArticleRecord

	fromFeeds, err := s.feeds.SearchFeeds(ctx, q.Text, q.MaxArticles*2)
	if err != nil {
		if errors.Is(err, rss.ErrEmptyQuery) {
			return nil, err
		}
		s.log.Warn("RSS search failed", "query", q.Text, "err", err)
	}
	all = append(all, fromFeeds...)

	if s.api != nil && s.api.Enabled() {
		fromAPI, err := s.api.Search(ctx, q.Text, q.MaxArticles)
		if err != nil {
			s.log.Warn("Error fetching from NewsAPI", "query", q.Text, "err", err)
		}
		all = append(all, fromAPI...)
	}

	unique := Deduplicate(all)
	filtered := unique[:0]
	for _, a := range unique {
		if inRange(a, q.StartDate, q.EndDate) {
			filtered = append(filtered, a)
		}
	}
	SortByDate(filtered)

	if len(filtered) > 0 {
		cache.Save(ctx, s.cache, key, cache.Results[models.ArticleRecord]{Limit: q.MaxArticles, Items: filtered})
	}
	return capRecords(filtered, q.MaxArticles), nil
}

func capRecords(records []models.ArticleRecord, n int) []models.ArticleRecord {
	if len(records) > n {
		return records[:n]
	}
	return records
}

// contentKey identifies the same story published under different URLs.
func contentKey(title, description string) string {
	h := sha1.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title) + strings.TrimSpace(description))))
	return hex.EncodeToString(h.Sum(nil))
}

// Deduplicate keeps the first record per canonical URL, and the first per
// title and description when both are present.
func Deduplicate(records []models.ArticleRecord) []models.ArticleRecord {
	seenURL := make(map[string]struct{}, len(records))
	seenContent := make(map[string]struct{}, len(records))
	out := make([]models.ArticleRecord, 0, len(records))

	for _, r := range records {
		u := urlnorm.Canonical(r.URL)
		if u == "" {
			u = r.URL
		}
		if _, dup := seenURL[u]; dup {
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		seenURL[u] = struct{}{}

		if r.Title != "" && r.Description != "" {
			k := contentKey(r.Title, r.Description)
			if _, dup := seenContent[k]; dup {
				metrics.Global.IncrementDuplicatesFiltered()
				continue
			}
			seenContent[k] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

func inRange(a models.ArticleRecord, start, end *time.Time) bool {
	if !a.HasRealDate() {
		return true
	}
	d := day(*a.PublishDate)
	if start != nil && d < day(*start) {
		return false
	}
	if end != nil && d > day(*end) {
		return false
	}
	return true
}

// SortByDate orders newest first. Records whose date was defaulted or is
// missing go last in their original order.
func SortByDate(records []models.ArticleRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].HasRealDate(), records[j].HasRealDate()
		if ri != rj {
			return ri
		}
		if !ri {
			return false
		}
		return records[i].PublishDate.After(*records[j].PublishDate)
	})
}

// ScoredArticle is an article with its sentiment.
type ScoredArticle struct {
	models.ArticleRecord
	Sentiment sentiment.Result `json:"sentiment"`
}

type Analysis struct {
	Query           string          `json:"query"`
	Articles        []ScoredArticle `json:"articles"`
	AverageScore    float64         `json:"average_score"`
	Distribution    map[string]int  `json:"distribution"`
	Summary         string          `json:"summary"`
	SummaryProvider string          `json:"summary_provider"`
}

// Analyze scores every article for entity and builds an overall summary.
// The summary comes from the LLM when one answers and is otherwise put
// together from the leading sentences of the first articles.
func (s *Service) Analyze(ctx context.Context, entity string, articles []models.ArticleRecord) (*Analysis, error) {
	res := &Analysis{
		Query:        entity,
		Articles:     make([]ScoredArticle, len(articles)),
		Distribution: map[string]int{sentiment.Positive: 0, sentiment.Neutral: 0, sentiment.Negative: 0},
	}
	if len(articles) == 0 {
		return res, nil
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, a := range articles {
		g.Go(func() error {
			r, err := s.scorer.Score(ctx, entity, a.Title+"\n\n"+a.Content)
			if err != nil {
				return fmt.Errorf("scoring %s: %w", a.URL, err)
			}
			res.Articles[i] = ScoredArticle{ArticleRecord: a, Sentiment: r}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inputs := make([]sentiment.SummaryInput, len(res.Articles))
	total := 0.0
	for i, a := range res.Articles {
		total += a.Sentiment.Score
		res.Distribution[a.Sentiment.Sentiment]++
		summary := a.Sentiment.Summary
		if summary == "" {
			summary = a.Title
		}
		inputs[i] = sentiment.SummaryInput{URL: a.URL, Summary: summary, Score: a.Sentiment.Score}
	}
	res.AverageScore = total / float64(len(res.Articles))

	summary, err := s.scorer.Summarize(ctx, entity, inputs)
	if err == nil {
		res.Summary = summary
		res.SummaryProvider = "llm"
		return res, nil
	}
	if !errors.Is(err, sentiment.ErrNoProvider) {
		s.log.Warn("Summary failed, using extractive summary", "entity", entity, "err", err)
	}
	res.Summary = extractiveSummary(entity, res)
	res.SummaryProvider = "extractive"
	return res, nil
}

func extractiveSummary(entity string, a *Analysis) string {
	var parts []string
	for _, art := range a.Articles {
		if len(parts) == 3 {
			break
		}
		if s := leadSentences(art.Content); s != "" {
			parts = append(parts, s)
		}
	}
	head := fmt.Sprintf("Overall sentiment for %s is %s (average score %.2f across %d articles).",
		entity, strings.ToLower(sentiment.Label(a.AverageScore)), a.AverageScore, len(a.Articles))
	if len(parts) == 0 {
		return head
	}
	return head + " " + strings.Join(parts, " ")
}

// leadSentences returns the first two sentences of at least 25 characters.
func leadSentences(content string) string {
	c := strings.TrimSpace(content)
	if c == "" || strings.HasPrefix(c, models.PlaceholderContent) {
		return ""
	}
	var picked []string
	for _, s := range strings.Split(c, ".") {
		s = strings.Join(strings.Fields(s), " ")
		if len(s) < 25 {
			continue
		}
		picked = append(picked, s)
		if len(picked) >= 2 {
			break
		}
	}
	if len(picked) == 0 {
		r := []rune(c)
		if len(r) > 160 {
			return string(r[:160]) + "..."
		}
		return c
	}
	return strings.Join(picked, ". ") + "."
}

// Recommend gathers articles from the last 30 days for each interest,
// splitting maxArticles evenly between them.
func (s *Service) Recommend(ctx context.Context, interests []string, maxArticles int) ([]models.ArticleRecord, error) {
	var clean []string
	seen := map[string]bool{}
	for _, in := range interests {
		in = strings.TrimSpace(in)
		if in == "" || seen[strings.ToLower(in)] {
			continue
		}
		seen[strings.ToLower(in)] = true
		clean = append(clean, in)
	}
	if len(clean) == 0 {
		return nil, ErrNoInterests
	}
	if maxArticles <= 0 {
		maxArticles = rss.DefaultMaxArticles
	}
	per := maxArticles / len(clean)
	if per < 1 {
		per = 1
	}
	start := s.opts.Now().AddDate(0, 0, -30)

	slots := make([][]models.ArticleRecord, len(clean))
	var g errgroup.Group
	for i, interest := range clean {
		g.Go(func() error {
			got, err := s.GetNewsAbout(ctx, Query{Text: interest, MaxArticles: per, StartDate: &start})
			if err != nil {
				s.log.Warn("Recommendation search failed", "interest", interest, "err", err)
				return nil
			}
			slots[i] = got
			return nil
		})
	}
	_ = g.Wait()

	var merged []models.ArticleRecord
	for _, slot := range slots {
		merged = append(merged, slot...)
	}
	merged = Deduplicate(merged)
	SortByDate(merged)
	return capRecords(merged, maxArticles), nil
}

// FormatArticle renders a record for terminal output.
func FormatArticle(a models.ArticleRecord) string {
	var b strings.Builder
	b.WriteString(a.Title + "\n")
	b.WriteString("  " + a.URL + "\n")
	date := "unknown date"
	if a.HasRealDate() {
		date = a.PublishDate.Format(dateLayout)
	}
	fmt.Fprintf(&b, "  %s | %s\n", a.Source, date)
	if a.ImageURL != "" {
		b.WriteString("  image: " + a.ImageURL + "\n")
	}
	if s := leadSentences(a.Content); s != "" {
		b.WriteString("  " + s + "\n")
	}
	b.WriteString("──────────────────────────")
	return b.String()
}
