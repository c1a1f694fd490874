package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/sentiment"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search feeds and NewsAPI for articles about an entity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxArticles, _ := cmd.Flags().GetInt("max")
		asJSON, _ := cmd.Flags().GetBool("json")
		analyze, _ := cmd.Flags().GetBool("analyze")
		startFlag, _ := cmd.Flags().GetString("start")
		endFlag, _ := cmd.Flags().GetString("end")

		q := news.Query{Text: strings.Join(args, " "), MaxArticles: maxArticles}
		var err error
		if q.StartDate, err = parseDateFlag("start", startFlag); err != nil {
			return err
		}
		if q.EndDate, err = parseDateFlag("end", endFlag); err != nil {
			return err
		}

		ctx := cmd.Context()
		articles, err := application.News.GetNewsAbout(ctx, q)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		var analysis *news.Analysis
		if analyze {
			if analysis, err = application.News.Analyze(ctx, q.Text, articles); err != nil {
				return fmt.Errorf("sentiment analysis failed: %w", err)
			}
		}

		if asJSON {
			return writeJSON(cmd.OutOrStdout(), articles, analysis)
		}
		writeText(cmd.OutOrStdout(), q.Text, articles, analysis)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntP("max", "n", 10, "maximum number of articles")
	searchCmd.Flags().Bool("json", false, "print JSON instead of text")
	searchCmd.Flags().Bool("analyze", false, "add sentiment scores and a summary")
	searchCmd.Flags().String("start", "", "earliest publish date (YYYY-MM-DD)")
	searchCmd.Flags().String("end", "", "latest publish date (YYYY-MM-DD)")
}

func parseDateFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}

func writeJSON(w io.Writer, articles []models.ArticleRecord, analysis *news.Analysis) error {
	if articles == nil {
		articles = []models.ArticleRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Articles   []models.ArticleRecord `json:"articles"`
		TotalCount int                    `json:"total_count"`
		Sentiment  *news.Analysis         `json:"sentiment,omitempty"`
	}{articles, len(articles), analysis})
}

func writeText(w io.Writer, query string, articles []models.ArticleRecord, analysis *news.Analysis) {
	if len(articles) == 0 {
		fmt.Fprintf(w, "No articles found for %q\n", query)
		return
	}
	fmt.Fprintf(w, "%d articles for %q\n\n", len(articles), query)
	for i, a := range articles {
		fmt.Fprintf(w, "%d. %s\n", i+1, news.FormatArticle(a))
	}
	if analysis == nil {
		return
	}
	fmt.Fprintf(w, "\nSentiment: average %.2f (positive %d, neutral %d, negative %d)\n",
		analysis.AverageScore,
		analysis.Distribution[sentiment.Positive], analysis.Distribution[sentiment.Neutral], analysis.Distribution[sentiment.Negative])
	fmt.Fprintf(w, "Summary (%s): %s\n", analysis.SummaryProvider, analysis.Summary)
}
