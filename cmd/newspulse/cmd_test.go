package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/app"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/sentiment"
	"github.com/deusflow/newspulse/internal/storage"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestFeedsCommands(t *testing.T) {
	prev := application
	defer func() { application = prev }()
	application = &app.App{Registry: storage.NewMemoryRegistry()}

	out, err := run(t, feedsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "No feeds registered.")

	_, err = run(t, feedsAddCmd, "https://example.com/rss")
	require.NoError(t, err)
	_, err = run(t, feedsAddCmd, "not a url")
	assert.Error(t, err)

	out, err = run(t, feedsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/rss")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "never")

	_, err = run(t, feedsDisableCmd, "https://example.com/rss")
	require.NoError(t, err)
	out, err = run(t, feedsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "false")

	_, err = run(t, feedsDisableCmd, "https://missing.example/rss")
	assert.ErrorIs(t, err, storage.ErrFeedNotFound)
}

func TestParseDateFlag(t *testing.T) {
	d, err := parseDateFlag("start", "")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDateFlag("start", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *d)

	_, err = parseDateFlag("end", "5 March")
	assert.ErrorContains(t, err, "--end must be YYYY-MM-DD")
}

func TestWriteOutput(t *testing.T) {
	published := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	articles := []models.ArticleRecord{{Title: "Acme expands", URL: "https://a.example/1", Source: "a.example", PublishDate: &published}}
	analysis := &news.Analysis{
		AverageScore:    0.4,
		Distribution:    map[string]int{sentiment.Positive: 1, sentiment.Neutral: 0, sentiment.Negative: 0},
		Summary:         "Mostly good.",
		SummaryProvider: "extractive",
	}

	var text bytes.Buffer
	writeText(&text, "Acme", articles, analysis)
	assert.Contains(t, text.String(), `1 articles for "Acme"`)
	assert.Contains(t, text.String(), "1. Acme expands")
	assert.Contains(t, text.String(), "average 0.40 (positive 1, neutral 0, negative 0)")
	assert.Contains(t, text.String(), "Summary (extractive): Mostly good.")

	text.Reset()
	writeText(&text, "Nobody", nil, nil)
	assert.Equal(t, "No articles found for \"Nobody\"\n", text.String())

	var raw bytes.Buffer
	require.NoError(t, writeJSON(&raw, nil, nil))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, []any{}, decoded["articles"])
	assert.Equal(t, float64(0), decoded["total_count"])
	assert.NotContains(t, decoded, "sentiment")
}
