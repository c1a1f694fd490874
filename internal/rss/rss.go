// Package rss searches the registered feeds for entries that mention a
// name and turns each match into an article record.
package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/matcher"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/scraper"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

var ErrEmptyQuery = errors.New("empty query")

const (
	DefaultMaxArticles = 10
	defaultMinContent  = 200
)

// Registry is the part of the feed registry the aggregator needs.
type Registry interface {
	ListActiveFeeds(ctx context.Context) ([]models.FeedDescriptor, error)
	RecordPollResult(ctx context.Context, url string, pollErr error, checkedAt time.Time) error
}

type Fetcher interface {
	Get(ctx context.Context, rawURL, accept string, timeout time.Duration) (*fetch.Response, error)
}

type Extractor interface {
	ExtractText(ctx context.Context, url string) (*scraper.Page, error)
}

type ImageResolver interface {
	FromFeedEntry(ctx context.Context, item *gofeed.Item) (string, bool)
	FromLink(ctx context.Context, link string) (string, bool)
	ResolveBestImage(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool)
}

type Options struct {
	Workers         int           // feeds polled at once
	PageConcurrency int           // article pages fetched at once
	EntriesPerFeed  int           // entries looked at per feed
	MinContent      int           // feed text shorter than this is backfilled from the page
	FeedTimeout     time.Duration // per feed fetch
	Logger          *slog.Logger
	Now             func() time.Time
}

type Aggregator struct {
	registry  Registry
	fetcher   Fetcher
	extractor Extractor
	images    ImageResolver
	cache     cache.Store
	pages     *semaphore.Weighted
	opts      Options
	log       *slog.Logger
}

// New builds an Aggregator. extractor, images and store may be nil, in
// which case page backfill, image resolution or caching are skipped.
func New(reg Registry, f Fetcher, extractor Extractor, images ImageResolver, store cache.Store, opts Options) *Aggregator {
	if opts.Workers < 1 {
		opts.Workers = 6
	}
	if opts.PageConcurrency < 1 {
		opts.PageConcurrency = 5
	}
	if opts.EntriesPerFeed < 1 {
		opts.EntriesPerFeed = 20
	}
	if opts.MinContent < 1 {
		opts.MinContent = defaultMinContent
	}
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		registry:  reg,
		fetcher:   f,
		extractor: extractor,
		images:    images,
		cache:     store,
		pages:     semaphore.NewWeighted(int64(opts.PageConcurrency)),
		opts:      opts,
		log:       opts.Logger,
	}
}

// searchRun is the state shared by the feed workers of one search. It
// counts distinct canonical URLs so the dispatcher can stop launching feeds
// once enough articles exist; dedup across feeds happens at merge time, in
// feed order, so which worker finishes first never changes the result.
type searchRun struct {
	mu     sync.Mutex
	unique map[string]struct{}
	limit  int
}

func (r *searchRun) accept(canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unique[canonical] = struct{}{}
}

func (r *searchRun) full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unique) >= r.limit
}

// SearchFeeds returns up to maxArticles articles mentioning query, in feed order
// and then entry order. A cached result younger than the TTL is returned
// without polling.
func (a *Aggregator) SearchFeeds(ctx context.Context, query string, maxArticles int) ([]models.ArticleRecord, error) {
	pattern := matcher.Compile(query)
	if pattern == nil {
		return nil, ErrEmptyQuery
	}
	if maxArticles <= 0 {
		maxArticles = DefaultMaxArticles
	}
	start := time.Now()
	metrics.Global.IncrementSearches()

	key := cache.Key(query, cache.ScopeRSSSearch)
	if cached, ok := cache.Load[cache.Results[models.ArticleRecord]](ctx, a.cache, key); ok && cached.Covers(maxArticles) {
		metrics.Global.RecordCacheLookup(true)
		a.log.Info("RSS search served from cache", "query", query, "count", len(cached.Items))
		return capRecords(cached.Items, maxArticles), nil
	}
	metrics.Global.RecordCacheLookup(false)

	feeds, err := a.registry.ListActiveFeeds(ctx)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	run := &searchRun{unique: make(map[string]struct{}), limit: maxArticles}
	slots := make([][]models.ArticleRecord, len(feeds))

	var g errgroup.Group
	g.SetLimit(a.opts.Workers)
	for i, feed := range feeds {
		if ctx.Err() != nil || run.full() {
			break
		}
		g.Go(func() error {
			slots[i] = a.pollFeed(ctx, feed, pattern, run)
			return nil
		})
	}
	_ = g.Wait()

	var results []models.ArticleRecord
	seen := make(map[string]bool)
	for _, slot := range slots {
		for _, rec := range slot {
			u := canonicalOrRaw(rec.URL)
			if seen[u] {
				metrics.Global.IncrementDuplicatesFiltered()
				continue
			}
			seen[u] = true
			results = append(results, rec)
		}
	}
	complete := len(results) < maxArticles && ctx.Err() == nil
	results = capRecords(results, maxArticles)

	if len(results) > 0 {
		cache.Save(ctx, a.cache, key, cache.Results[models.ArticleRecord]{
			Limit:    maxArticles,
			Complete: complete,
			Items:    results,
		})
	}
	metrics.Global.AddArticles(len(results))
	metrics.Global.RecordProcessingTime(time.Since(start))
	metrics.Global.SetLastRun()

	a.log.Info("RSS search finished", "query", query, "feeds", len(feeds), "articles", len(results), "duration", time.Since(start))
	return results, nil
}

func canonicalOrRaw(u string) string {
	if c := urlnorm.Canonical(u); c != "" {
		return c
	}
	return u
}

func capRecords(records []models.ArticleRecord, n int) []models.ArticleRecord {
	if len(records) > n {
		return records[:n]
	}
	return records
}

// FetchFeed downloads and parses one feed.
func (a *Aggregator) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	resp, err := a.fetcher.Get(ctx, url, fetch.AcceptFeed, a.opts.FeedTimeout)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

func (a *Aggregator) pollFeed(ctx context.Context, feed models.FeedDescriptor, pattern *matcher.Pattern, run *searchRun) []models.ArticleRecord {
	parsed, err := a.FetchFeed(ctx, feed.URL)
	a.recordPoll(ctx, feed.URL, err)
	if err != nil {
		metrics.Global.IncrementFeedFailures()
		a.log.Warn("Error parsing RSS", "feed", feed.URL, "err", err)
		return nil
	}
	metrics.FeedsPolled.WithLabelValues("ok").Inc()

	items := parsed.Items
	if len(items) > a.opts.EntriesPerFeed {
		items = items[:a.opts.EntriesPerFeed]
	}

	var out []models.ArticleRecord
	seen := make(map[string]bool)
	for _, item := range items {
		if ctx.Err() != nil || len(out) >= run.limit {
			break
		}
		link := entryLink(item)
		if link == "" {
			continue
		}
		text := strings.ToLower(item.Title + " " + item.Description + " " + item.Content)
		if !pattern.Match(text) {
			continue
		}
		canonical := canonicalOrRaw(link)
		if seen[canonical] {
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		seen[canonical] = true
		out = append(out, a.buildRecord(ctx, item, link, parsed.Title))
		run.accept(canonical)
	}

	a.log.Debug("Feed processed", "feed", feed.URL, "entries", len(items), "matched", len(out))
	return out
}

// recordPoll writes feed health. Failures are logged only.
func (a *Aggregator) recordPoll(ctx context.Context, url string, pollErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.registry.RecordPollResult(ctx, url, pollErr, a.opts.Now()); err != nil {
		a.log.Warn("Can't record poll result", "feed", url, "err", err)
	}
}

func entryLink(item *gofeed.Item) string {
	for _, l := range append([]string{item.Link}, item.Links...) {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
			return l
		}
	}
	return ""
}

// buildRecord drafts a record from feed metadata and fills gaps from the
// article page when the feed text is short.
func (a *Aggregator) buildRecord(ctx context.Context, item *gofeed.Item, link, feedTitle string) models.ArticleRecord {
	rec := models.ArticleRecord{
		Title:       plainText(item.Title),
		URL:         link,
		Source:      strings.TrimSpace(feedTitle),
		Description: plainText(item.Description),
		Author:      entryAuthor(item),
	}
	if rec.Source == "" {
		rec.Source = models.SourceFromURL(link)
	}
	rec.Content = plainText(item.Content)
	if utf8.RuneCountInString(rec.Description) > utf8.RuneCountInString(rec.Content) {
		rec.Content = rec.Description
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		rec.PublishDate = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		rec.PublishDate = &t
	}
	rec.AddKeywords(item.Categories...)

	if a.images != nil {
		if img, ok := a.images.FromFeedEntry(ctx, item); ok {
			rec.ImageURL = img
		}
	}

	if utf8.RuneCountInString(rec.Content) < a.opts.MinContent {
		if page := a.loadPage(ctx, link); page != nil {
			if rec.ImageURL == "" && a.images != nil {
				if img, ok := a.images.ResolveBestImage(ctx, page.Doc, page.BaseURL); ok {
					page.Record.ImageURL = img
				}
			}
			backfill(&rec, page.Record)
		}
	} else if rec.ImageURL == "" && a.images != nil {
		if a.acquire(ctx) {
			if img, ok := a.images.FromLink(ctx, link); ok {
				rec.ImageURL = img
			}
			a.pages.Release(1)
		}
	}

	if rec.PublishDate == nil {
		now := a.opts.Now().UTC()
		rec.PublishDate = &now
		rec.DateFallback = true
	}
	rec.EnsureContent()
	return rec
}

func (a *Aggregator) acquire(ctx context.Context) bool {
	if err := a.pages.Acquire(ctx, 1); err != nil {
		return false
	}
	return true
}

func (a *Aggregator) loadPage(ctx context.Context, link string) *scraper.Page {
	if a.extractor == nil || !a.acquire(ctx) {
		return nil
	}
	defer a.pages.Release(1)

	page, err := a.extractor.ExtractText(ctx, link)
	if err != nil {
		a.log.Debug("Backfill skipped", "url", link, "err", err)
		return nil
	}
	return page
}

// backfill keeps feed values and only fills what is missing. Page content
// wins when it is longer than the feed text.
func backfill(rec *models.ArticleRecord, page models.ArticleRecord) {
	if !strings.HasPrefix(page.Content, models.PlaceholderContent) &&
		utf8.RuneCountInString(page.Content) > utf8.RuneCountInString(rec.Content) {
		rec.Content = page.Content
	}
	if rec.ImageURL == "" {
		rec.ImageURL = page.ImageURL
	}
	if rec.PublishDate == nil && page.PublishDate != nil {
		t := *page.PublishDate
		rec.PublishDate = &t
		rec.DateFallback = page.DateFallback
	}
	if rec.Title == "" {
		rec.Title = page.Title
	}
	if rec.Author == "" {
		rec.Author = page.Author
	}
	if rec.Description == "" {
		rec.Description = page.Description
	}
	rec.AddKeywords(page.Keywords...)
}

func entryAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	for _, p := range item.Authors {
		if p != nil && p.Name != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	return ""
}

// plainText drops markup from feed HTML fragments and collapses whitespace.
func plainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	var parts []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
