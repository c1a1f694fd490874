package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/fetch"
)

const articleHTML = `<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="Acme Corp Raises $10M">
<meta name="description" content="Acme raised money.">
<meta name="author" content="Jane Doe">
<meta name="keywords" content="funding, startups, Funding">
<meta property="article:published_time" content="2024-03-05T10:00:00Z">
</head><body>
<header><h1>Site Name</h1></header>
<nav><a href="/">Home</a></nav>
<article>
<h1>Acme Corp Raises $10M</h1>
<p>Acme Corp announced on Tuesday that it raised ten million dollars.</p>
<div class="social-share"><p>Share this on Twitter and Facebook now</p></div>
<p>Short.</p>
<h2>What comes next</h2>
<p>The company plans to hire fifty engineers over the next year.</p>
<div class="ad"><p>Buy our sponsored product today please</p></div>
</article>
<footer><p>Copyright notice for the whole site here</p></footer>
<script>var x = 1;</script>
</body></html>`

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newExtractor(opts ...Option) *Extractor {
	f := fetch.New(fetch.Options{RetryAttempts: 1, RetryDelay: time.Millisecond, Timeout: 2 * time.Second})
	return NewExtractor(f, 2*time.Second, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestExtractHTMLArticle(t *testing.T) {
	page, err := newExtractor().ExtractHTML("https://news.example.com/acme?utm_source=rss", []byte(articleHTML))
	require.NoError(t, err)

	rec := page.Record
	assert.True(t, page.BodyFound)
	assert.Equal(t, "Acme Corp Raises $10M", rec.Title)
	assert.Equal(t, "Acme raised money.", rec.Description)
	assert.Equal(t, "Jane Doe", rec.Author)
	assert.Equal(t, "news.example.com", rec.Source)
	assert.Equal(t, "https://news.example.com/acme", rec.URL)
	assert.Equal(t, []string{"funding", "startups"}, rec.Keywords)
	require.NotNil(t, rec.PublishDate)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), rec.PublishDate.UTC())
	assert.False(t, rec.DateFallback)

	assert.Equal(t, strings.Join([]string{
		"Acme Corp Raises $10M",
		"Acme Corp announced on Tuesday that it raised ten million dollars.",
		"What comes next",
		"The company plans to hire fifty engineers over the next year.",
	}, "\n\n"), rec.Content)
	assert.NotContains(t, rec.Content, "Share this")
	assert.NotContains(t, rec.Content, "sponsored")
	assert.NotContains(t, rec.Content, "Copyright")

	// the unstripped document still carries the header for image resolution
	assert.Equal(t, 1, page.Doc.Find("header").Length())
}

func TestExtractHTMLDensityFallback(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("Density scoring should pick this paragraph. ", 6))
	html := `<html><body><div class="wrapper">
<div class="menu-top"><a href="/">Home</a><a href="/about">About</a></div>
<div class="story-text-block">` + long + `</div>
</div></body></html>`

	page, err := newExtractor().ExtractHTML("https://example.com/x", []byte(html))
	require.NoError(t, err)
	assert.True(t, page.BodyFound)
	assert.Equal(t, long, page.Record.Content)
}

func TestExtractHTMLTitleFallbacks(t *testing.T) {
	page, err := newExtractor().ExtractHTML("https://example.com/x", []byte(`<html><head><title> Plain  Title </title></head><body><p>Body paragraph text here.</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Plain Title", page.Record.Title)

	page, err = newExtractor().ExtractHTML("https://example.com/x", []byte(`<html><body><h1>Heading Title</h1></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Heading Title", page.Record.Title)
}

// Pages without any date get the extraction time and are flagged so
// callers can sort them as undated instead of as the newest items.
func TestExtractHTMLDateFallsBackToNow(t *testing.T) {
	page, err := newExtractor().ExtractHTML("https://example.com/x", []byte(`<html><body><article><p>Some article body text long enough.</p></article></body></html>`))
	require.NoError(t, err)
	require.NotNil(t, page.Record.PublishDate)
	assert.Equal(t, fixedNow, *page.Record.PublishDate)
	assert.True(t, page.Record.DateFallback)
	assert.False(t, page.Record.HasRealDate())
}

func TestExtractHTMLVisibleDate(t *testing.T) {
	html := `<html><body><article><span class="date">March 5, 2024</span><p>Some article body text long enough.</p></article></body></html>`
	page, err := newExtractor().ExtractHTML("https://example.com/x", []byte(html))
	require.NoError(t, err)
	require.NotNil(t, page.Record.PublishDate)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *page.Record.PublishDate)
	assert.False(t, page.Record.DateFallback)
}

func TestExtractHTMLJSONLDDate(t *testing.T) {
	html := `<html><head><script type="application/ld+json">{"@type":"NewsArticle","datePublished":"2023-11-02T08:30:00+01:00",}</script></head>
<body><article><p>Some article body text long enough.</p></article></body></html>`
	page, err := newExtractor().ExtractHTML("https://example.com/x", []byte(html))
	require.NoError(t, err)
	require.NotNil(t, page.Record.PublishDate)
	assert.Equal(t, time.Date(2023, 11, 2, 7, 30, 0, 0, time.UTC), page.Record.PublishDate.UTC())
}

func TestExtractHTMLEmptyPageGetsPlaceholder(t *testing.T) {
	page, err := newExtractor().ExtractHTML("https://example.com/empty", []byte(`<html><body><nav>menu</nav></body></html>`))
	require.NoError(t, err)
	assert.False(t, page.BodyFound)
	assert.Equal(t, "No content available. Please visit the source: https://example.com/empty", page.Record.Content)
}

type fakeImages struct{ url string }

func (f fakeImages) ResolveBestImage(context.Context, *goquery.Document, string) (string, bool) {
	return f.url, f.url != ""
}

type fakeRenderer struct {
	html  string
	calls int
}

func (f *fakeRenderer) Render(context.Context, string) (string, error) {
	f.calls++
	return f.html, nil
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("html with image", func(t *testing.T) {
		srv := serve(t, "text/html; charset=utf-8", articleHTML)
		page, err := newExtractor(WithImageResolver(fakeImages{url: "https://cdn.example.com/hero.jpg"})).Extract(ctx, srv.URL+"/story")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/story", page.Record.URL)
		assert.Equal(t, "https://cdn.example.com/hero.jpg", page.Record.ImageURL)
		assert.Contains(t, page.Record.Content, "fifty engineers")
	})

	t.Run("non html rejected", func(t *testing.T) {
		srv := serve(t, "application/pdf", "%PDF-1.4 binary")
		_, err := newExtractor().Extract(ctx, srv.URL+"/doc.pdf")
		assert.ErrorIs(t, err, ErrUnsupportedContentType)
	})

	t.Run("empty body", func(t *testing.T) {
		srv := serve(t, "text/html", "   ")
		_, err := newExtractor().Extract(ctx, srv.URL)
		assert.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		_, err := newExtractor().Extract(ctx, srv.URL)
		assert.ErrorIs(t, err, fetch.ErrHTTPStatus)
	})

	t.Run("legacy charset decoded", func(t *testing.T) {
		srv := serve(t, "text/html; charset=iso-8859-1", "<html><body><article><p>Caf\xe9 society opens a new location downtown.</p></article></body></html>")
		page, err := newExtractor().Extract(ctx, srv.URL)
		require.NoError(t, err)
		assert.Contains(t, page.Record.Content, "Café society")
	})

	t.Run("renderer used when static body is empty", func(t *testing.T) {
		srv := serve(t, "text/html", `<html><body><div id="app"></div></body></html>`)
		r := &fakeRenderer{html: articleHTML}
		page, err := newExtractor(WithRenderer(r)).Extract(ctx, srv.URL+"/spa")
		require.NoError(t, err)
		assert.Equal(t, 1, r.calls)
		assert.True(t, page.BodyFound)
		assert.Contains(t, page.Record.Content, "ten million dollars")
		assert.Equal(t, srv.URL+"/spa", page.Record.URL)
	})

	t.Run("renderer skipped when static body found", func(t *testing.T) {
		srv := serve(t, "text/html", articleHTML)
		r := &fakeRenderer{html: "<html></html>"}
		_, err := newExtractor(WithRenderer(r)).Extract(ctx, srv.URL)
		require.NoError(t, err)
		assert.Zero(t, r.calls)
	})
}
