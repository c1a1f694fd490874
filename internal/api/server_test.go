package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/rss"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeNews struct {
	lastQuery     news.Query
	lastInterests []string
	lastMax       int
	articles      []models.ArticleRecord
	err           error
	analyzed      bool
}

func (f *fakeNews) GetNewsAbout(_ context.Context, q news.Query) ([]models.ArticleRecord, error) {
	f.lastQuery = q
	if strings.TrimSpace(q.Text) == "" {
		return nil, rss.ErrEmptyQuery
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return nil, news.ErrInvalidRange
	}
	return f.articles, f.err
}

func (f *fakeNews) Analyze(_ context.Context, entity string, articles []models.ArticleRecord) (*news.Analysis, error) {
	f.analyzed = true
	return &news.Analysis{Query: entity, AverageScore: 0.25, Summary: "fine", SummaryProvider: "extractive"}, nil
}

func (f *fakeNews) Recommend(_ context.Context, interests []string, maxArticles int) ([]models.ArticleRecord, error) {
	f.lastInterests = interests
	f.lastMax = maxArticles
	if len(interests) == 0 {
		return nil, news.ErrNoInterests
	}
	return f.articles, f.err
}

type fakeStatus struct{ healthy bool }

func (f fakeStatus) Healthy() bool { return f.healthy }
func (f fakeStatus) GetStats() map[string]interface{} {
	return map[string]interface{}{"is_healthy": f.healthy, "last_error": "boom", "last_run_time": "now"}
}

type fakeBudget struct{}

func (fakeBudget) GetStats() map[string]interface{} { return map[string]interface{}{"total": 3} }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSearch(t *testing.T) {
	published := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	svc := &fakeNews{articles: []models.ArticleRecord{{Title: "A", URL: "https://a.example/1", PublishDate: &published}}}
	r := NewServer(svc, WithStatus(fakeStatus{healthy: true})).Router()

	w := do(t, r, http.MethodPost, "/api/search", `{"query":"Acme","max_articles":500,"start_date":"2024-03-01","end_date":"2024-03-31"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Articles   []models.ArticleRecord `json:"articles"`
		TotalCount int                    `json:"total_count"`
		Sentiment  *news.Analysis         `json:"sentiment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, "https://a.example/1", resp.Articles[0].URL)
	assert.Nil(t, resp.Sentiment)
	assert.False(t, svc.analyzed)

	assert.Equal(t, "Acme", svc.lastQuery.Text)
	assert.Equal(t, maxArticlesCap, svc.lastQuery.MaxArticles)
	require.NotNil(t, svc.lastQuery.StartDate)
	assert.Equal(t, "2024-03-01", svc.lastQuery.StartDate.Format(dateLayout))
	assert.Equal(t, "2024-03-31", svc.lastQuery.EndDate.Format(dateLayout))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestSearchWithAnalysis(t *testing.T) {
	svc := &fakeNews{}
	r := NewServer(svc).Router()

	w := do(t, r, http.MethodPost, "/api/search", `{"query":"Acme","analyze":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.analyzed)
	assert.Equal(t, defaultArticles, svc.lastQuery.MaxArticles)
	assert.Contains(t, w.Body.String(), `"articles":[]`)
	assert.Contains(t, w.Body.String(), `"summary_provider":"extractive"`)
}

func TestSearchRejectsBadInput(t *testing.T) {
	r := NewServer(&fakeNews{}).Router()

	tests := map[string]string{
		"empty query":  `{"query":"   "}`,
		"bad date":     `{"query":"Acme","start_date":"03/01/2024"}`,
		"inverted":     `{"query":"Acme","start_date":"2024-04-01","end_date":"2024-03-01"}`,
		"invalid json": `{"query":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/search", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestSearchInternalError(t *testing.T) {
	r := NewServer(&fakeNews{err: errors.New("registry down")}).Router()

	w := do(t, r, http.MethodPost, "/api/search", `{"query":"Acme"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "registry down")
}

func TestRecommendations(t *testing.T) {
	svc := &fakeNews{articles: []models.ArticleRecord{{URL: "https://a.example/1"}}}
	r := NewServer(svc).Router()

	w := do(t, r, http.MethodGet, "/api/recommendations?interest=go&interest=rust&max=6", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"go", "rust"}, svc.lastInterests)
	assert.Equal(t, 6, svc.lastMax)
	assert.Contains(t, w.Body.String(), `"total_count":1`)

	w = do(t, r, http.MethodGet, "/api/recommendations", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/recommendations?interest=go&max=ten", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndStats(t *testing.T) {
	r := NewServer(&fakeNews{}, WithStatus(fakeStatus{healthy: true}), WithStats("llm_budget", fakeBudget{})).Router()

	w := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = do(t, r, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, map[string]any{"total": float64(3)}, stats["llm_budget"])
	assert.Equal(t, true, stats["is_healthy"])

	r = NewServer(&fakeNews{}, WithStatus(fakeStatus{healthy: false})).Router()
	w = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewServer(&fakeNews{}).Router()
	w := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "newspulse_search_duration_seconds")
}

func TestRequestIDPassthrough(t *testing.T) {
	r := NewServer(&fakeNews{}, WithStatus(fakeStatus{healthy: true})).Router()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
