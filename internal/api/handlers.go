package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/rss"
)

const (
	dateLayout      = "2006-01-02"
	maxArticlesCap  = 100
	defaultArticles = 10
)

type searchRequest struct {
	Query       string `json:"query"`
	MaxArticles int    `json:"max_articles"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Analyze     bool   `json:"analyze"`
}

type searchResponse struct {
	Articles   []models.ArticleRecord `json:"articles"`
	TotalCount int                    `json:"total_count"`
	Sentiment  *news.Analysis         `json:"sentiment,omitempty"`
}

func parseDay(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func clampMax(n int) int {
	switch {
	case n <= 0:
		return defaultArticles
	case n > maxArticlesCap:
		return maxArticlesCap
	}
	return n
}

// POST /api/search
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	start, err := parseDay("start_date", req.StartDate)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid date", err)
		return
	}
	end, err := parseDay("end_date", req.EndDate)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid date", err)
		return
	}

	began := time.Now()
	metrics.Global.IncrementSearches()
	articles, err := s.news.GetNewsAbout(c.Request.Context(), news.Query{
		Text:        req.Query,
		MaxArticles: clampMax(req.MaxArticles),
		StartDate:   start,
		EndDate:     end,
	})
	switch {
	case errors.Is(err, rss.ErrEmptyQuery), errors.Is(err, news.ErrInvalidRange):
		s.fail(c, http.StatusBadRequest, "invalid search", err)
		return
	case err != nil:
		metrics.Global.SetError(err.Error())
		s.fail(c, http.StatusInternalServerError, "search failed", err)
		return
	}
	if articles == nil {
		articles = []models.ArticleRecord{}
	}

	resp := searchResponse{Articles: articles, TotalCount: len(articles)}
	if req.Analyze {
		analysis, err := s.news.Analyze(c.Request.Context(), req.Query, articles)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "sentiment analysis failed", err)
			return
		}
		resp.Sentiment = analysis
	}

	metrics.Global.AddArticles(len(articles))
	metrics.Global.RecordProcessingTime(time.Since(began))
	metrics.Global.SetLastRun()
	c.JSON(http.StatusOK, resp)
}

// GET /api/recommendations?interest=a&interest=b&max=10
func (s *Server) handleRecommendations(c *gin.Context) {
	interests := c.QueryArray("interest")

	maxArticles := defaultArticles
	if v := c.Query("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "max must be an integer", err)
			return
		}
		maxArticles = clampMax(n)
	}

	articles, err := s.news.Recommend(c.Request.Context(), interests, maxArticles)
	if errors.Is(err, news.ErrNoInterests) {
		s.fail(c, http.StatusBadRequest, "at least one interest is required", err)
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "recommendations failed", err)
		return
	}
	if articles == nil {
		articles = []models.ArticleRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "total_count": len(articles)})
}
