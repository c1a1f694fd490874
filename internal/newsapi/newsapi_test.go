package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/scraper"
)

const okBody = `{
  "status": "ok",
  "totalResults": 2,
  "articles": [
    {
      "source": {"id": null, "name": "Example"},
      "author": "Jane Roe",
      "title": "Acme raises funds",
      "description": "Acme raised money.",
      "url": "https://www.example.com/acme",
      "urlToImage": "https://img.example.com/acme.jpg",
      "publishedAt": "2024-03-05T10:00:00Z",
      "content": "Acme raised a new round today and plans to hire… [+1520 chars]"
    },
    {"title": "removed", "url": "removed"}
  ]
}`

func newClient(t *testing.T, handler http.HandlerFunc, extractor Extractor) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := fetch.New(fetch.Options{RetryAttempts: 1, Timeout: time.Second})
	return New(f, extractor, "secret", srv.URL, time.Second, nil)
}

func TestSearch(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Acme Corp", q.Get("q"))
		assert.Equal(t, "5", q.Get("pageSize"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "relevancy", q.Get("sortBy"))
		assert.Equal(t, "secret", q.Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}, nil)

	got, err := c.Search(context.Background(), "Acme Corp", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	assert.Equal(t, "Acme raises funds", rec.Title)
	assert.Equal(t, "example.com", rec.Source)
	assert.Equal(t, "https://img.example.com/acme.jpg", rec.ImageURL)
	assert.Equal(t, "Jane Roe", rec.Author)
	assert.Equal(t, "Acme raised a new round today and plans to hire…", rec.Content)
	require.NotNil(t, rec.PublishDate)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), *rec.PublishDate)
}

type fakeExtractor struct{ content string }

func (f fakeExtractor) Extract(_ context.Context, url string) (*scraper.Page, error) {
	return &scraper.Page{Record: models.ArticleRecord{URL: url, Content: f.content, Keywords: []string{"funding"}}, BodyFound: true}, nil
}

func TestSearchUsesExtractorForFullText(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody))
	}, fakeExtractor{content: "Full article text."})

	got, err := c.Search(context.Background(), "Acme", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Full article text.", got[0].Content)
	assert.Equal(t, []string{"funding"}, got[0].Keywords)
}

func TestSearchAPIError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	}, nil)

	_, err := c.Search(context.Background(), "Acme", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKeyInvalid")
}

func TestSearchHTTPError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	_, err := c.Search(context.Background(), "Acme", 10)
	assert.ErrorIs(t, err, fetch.ErrHTTPStatus)
}

func TestDisabled(t *testing.T) {
	c := New(nil, nil, "", "", time.Second, nil)
	assert.False(t, c.Enabled())
	_, err := c.Search(context.Background(), "Acme", 10)
	assert.ErrorIs(t, err, ErrDisabled)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}
