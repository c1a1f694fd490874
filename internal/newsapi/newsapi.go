// Package newsapi queries newsapi.org as a second article source next to
// the RSS feeds.
package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/scraper"
)

var ErrDisabled = errors.New("newsapi: no api key configured")

type Fetcher interface {
	Get(ctx context.Context, rawURL, accept string, timeout time.Duration) (*fetch.Response, error)
}

// Extractor fetches full article text for results whose API content is
// cut short.
type Extractor interface {
	Extract(ctx context.Context, url string) (*scraper.Page, error)
}

type Client struct {
	fetcher   Fetcher
	extractor Extractor
	apiKey    string
	baseURL   string
	timeout   time.Duration
	log       *slog.Logger
}

// New returns a client. extractor may be nil.
func New(f Fetcher, extractor Extractor, apiKey, baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		fetcher:   f,
		extractor: extractor,
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		log:       log,
	}
}

func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

type apiArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// Search returns up to n English articles about query, most relevant
// first.
func (c *Client) Search(ctx context.Context, query string, n int) ([]models.ArticleRecord, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = 10
	}
	if n > 100 {
		n = 100
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("pageSize", strconv.Itoa(n))
	params.Set("language", "en")
	params.Set("sortBy", "relevancy")
	params.Set("apiKey", c.apiKey)

	resp, err := c.fetcher.Get(ctx, c.baseURL+"/v2/everything?"+params.Encode(), fetch.AcceptJSON, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}

	var data apiResponse
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode newsapi response: %w", err)
	}
	if data.Status != "ok" {
		return nil, fmt.Errorf("newsapi error %s: %s", data.Code, data.Message)
	}

	records := make([]models.ArticleRecord, 0, len(data.Articles))
	for _, a := range data.Articles {
		if !strings.HasPrefix(a.URL, "http") {
			continue
		}
		records = append(records, c.toRecord(ctx, a))
	}
	c.log.Info("NewsAPI search finished", "query", query, "count", len(records), "total", data.TotalResults)
	return records, nil
}

// truncatedMarker is how the API ends shortened content, e.g. "[+1234 chars]".
const truncatedMarker = "[+"

func (c *Client) toRecord(ctx context.Context, a apiArticle) models.ArticleRecord {
	rec := models.ArticleRecord{
		Title:       strings.TrimSpace(a.Title),
		URL:         a.URL,
		Source:      models.SourceFromURL(a.URL),
		ImageURL:    a.URLToImage,
		Author:      strings.TrimSpace(a.Author),
		Description: strings.TrimSpace(a.Description),
		Content:     strings.TrimSpace(a.Content),
	}
	if i := strings.LastIndex(rec.Content, truncatedMarker); i > 0 {
		rec.Content = strings.TrimSpace(rec.Content[:i])
	}
	if t, err := dateparse.ParseAny(a.PublishedAt); err == nil {
		t = t.UTC()
		rec.PublishDate = &t
	}

	if c.extractor != nil {
		if page, err := c.extractor.Extract(ctx, a.URL); err == nil && page.BodyFound {
			rec.Content = page.Record.Content
			if rec.ImageURL == "" {
				rec.ImageURL = page.Record.ImageURL
			}
			rec.AddKeywords(page.Record.Keywords...)
		}
	}
	if rec.Content == "" {
		rec.Content = rec.Description
	}
	rec.EnsureContent()
	return rec
}
