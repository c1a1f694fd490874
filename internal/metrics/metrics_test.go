package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetStats(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.IncrementSearches()
	m.AddArticles(7)
	m.IncrementDuplicatesFiltered()
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordProcessingTime(100 * time.Millisecond)
	m.RecordProcessingTime(300 * time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats["searches_served"])
	assert.Equal(t, int64(7), stats["articles_collected"])
	assert.Equal(t, int64(1), stats["duplicates_filtered"])
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(2), stats["cache_misses"])
	assert.Equal(t, int64(300), stats["last_processing_time_ms"])
	assert.Equal(t, int64(200), stats["average_processing_time_ms"])
}

func TestHealthTransitions(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.SetError("feed down")
	assert.False(t, m.Healthy())
	assert.Equal(t, "feed down", m.GetStats()["last_error"])

	m.SetLastRun()
	assert.True(t, m.Healthy())
}
