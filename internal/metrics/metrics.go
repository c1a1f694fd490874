package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedsPolled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newspulse_feeds_polled_total",
		Help: "Feed polls by outcome",
	}, []string{"status"})

	PagesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newspulse_pages_extracted_total",
		Help: "Article page extractions by outcome",
	}, []string{"status"})

	ImagesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newspulse_images_resolved_total",
		Help: "Image resolutions by the strategy that produced them",
	}, []string{"strategy"})

	ImageProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newspulse_image_probes_total",
		Help: "Image accessibility probes by result",
	}, []string{"result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newspulse_cache_lookups_total",
		Help: "Result cache lookups by outcome",
	}, []string{"outcome"})

	SentimentScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newspulse_sentiment_scored_total",
		Help: "Sentiment scores by provider",
	}, []string{"provider"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newspulse_search_duration_seconds",
		Help:    "Duration of aggregated news searches",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
)

// Metrics is a process-local snapshot used by the /stats endpoint.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	SearchesServed     int64
	ArticlesCollected  int64
	DuplicatesFiltered int64
	FeedFailures       int64
	CacheHits          int64
	CacheMisses        int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementSearches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchesServed++
}

func (m *Metrics) AddArticles(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesCollected += int64(n)
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) IncrementFeedFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedFailures++
	FeedsPolled.WithLabelValues("error").Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.CacheHits++
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheMisses++
	CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	SearchDuration.Observe(duration.Seconds())
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"searches_served":            m.SearchesServed,
		"articles_collected":         m.ArticlesCollected,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"feed_failures":              m.FeedFailures,
		"cache_hits":                 m.CacheHits,
		"cache_misses":               m.CacheMisses,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
