package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrEmptyBody              = errors.New("empty body")
)

// Fetcher retrieves raw pages.
type Fetcher interface {
	Get(ctx context.Context, rawURL, accept string, timeout time.Duration) (*fetch.Response, error)
}

// ImageResolver picks the representative image of a parsed page.
type ImageResolver interface {
	ResolveBestImage(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool)
}

// Renderer returns JavaScript-rendered HTML for pages whose static markup
// carries no article body.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Page is the result of one extraction.
type Page struct {
	Record models.ArticleRecord
	// Doc is the unstripped page, kept for image resolution.
	Doc *goquery.Document
	// BodyFound is false when only the whole-page fallback produced text.
	BodyFound bool
	// BaseURL is the final URL after redirects, used to resolve relative links.
	BaseURL string
}

type Extractor struct {
	fetcher  Fetcher
	images   ImageResolver
	renderer Renderer
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Extractor)

func WithImageResolver(r ImageResolver) Option { return func(e *Extractor) { e.images = r } }
func WithRenderer(r Renderer) Option           { return func(e *Extractor) { e.renderer = r } }
func WithClock(now func() time.Time) Option    { return func(e *Extractor) { e.now = now } }
func WithLogger(l *slog.Logger) Option         { return func(e *Extractor) { e.log = l } }

// NewExtractor builds an Extractor. timeout bounds each page fetch.
func NewExtractor(f Fetcher, timeout time.Duration, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher: f,
		timeout: timeout,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract fetches url and builds an article record from it, including the
// page's best image.
func (e *Extractor) Extract(ctx context.Context, url string) (*Page, error) {
	page, err := e.ExtractText(ctx, url)
	if err != nil {
		return nil, err
	}
	if e.images != nil {
		if img, ok := e.images.ResolveBestImage(ctx, page.Doc, page.BaseURL); ok {
			page.Record.ImageURL = img
		}
	}
	return page, nil
}

// ExtractText is Extract without image resolution. Callers that may already
// have an image resolve it later from Page.Doc and Page.BaseURL.
func (e *Extractor) ExtractText(ctx context.Context, url string) (*Page, error) {
	page, err := e.extract(ctx, url)
	if err != nil {
		metrics.PagesExtracted.WithLabelValues("error").Inc()
		e.log.Warn("Can't extract article", "url", url, "err", err)
		return nil, err
	}
	metrics.PagesExtracted.WithLabelValues("ok").Inc()
	return page, nil
}

func (e *Extractor) extract(ctx context.Context, url string) (*Page, error) {
	resp, err := e.fetcher.Get(ctx, url, fetch.AcceptHTML, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, ErrEmptyBody
	}

	ct := resp.ContentType
	if ct == "" {
		ct = http.DetectContentType(resp.Body)
	}
	if !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, ct)
	}

	body, err := toUTF8(resp.Body, ct)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}

	base := resp.URL
	if base == "" {
		base = url
	}
	page, err := e.ExtractHTML(base, body)
	if err != nil {
		return nil, err
	}
	page.Record.URL = canonicalOr(url)

	if !page.BodyFound && e.renderer != nil {
		if rendered, rerr := e.renderer.Render(ctx, url); rerr == nil {
			if rp, perr := e.ExtractHTML(base, []byte(rendered)); perr == nil && rp.BodyFound {
				rp.Record.URL = page.Record.URL
				page = rp
			}
		} else {
			e.log.Debug("Renderer failed", "url", url, "err", rerr)
		}
	}

	page.BaseURL = base
	return page, nil
}

func toUTF8(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func canonicalOr(u string) string {
	if c := urlnorm.Canonical(u); c != "" {
		return c
	}
	return strings.TrimSpace(u)
}

// ExtractHTML runs the extraction pipeline on an already fetched page.
// It does no I/O and never resolves images.
func (e *Extractor) ExtractHTML(pageURL string, body []byte) (*Page, error) {
	raw, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	stripped, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	stripNonContent(stripped)

	content, found := extractBody(stripped, body, pageURL)

	rec := models.ArticleRecord{
		Title:       extractTitle(raw),
		Content:     content,
		URL:         canonicalOr(pageURL),
		Source:      models.SourceFromURL(pageURL),
		Description: extractDescription(raw),
		Author:      extractAuthor(raw),
	}
	rec.AddKeywords(extractKeywords(raw)...)

	if d, ok := extractPublishDate(raw); ok {
		rec.PublishDate = &d
	} else {
		// no date anywhere on the page; callers sort these as undated
		now := e.now().UTC()
		rec.PublishDate = &now
		rec.DateFallback = true
	}

	rec.EnsureContent()
	return &Page{Record: rec, Doc: raw, BodyFound: found, BaseURL: pageURL}, nil
}
