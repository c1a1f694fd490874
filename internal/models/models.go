package models

import (
	"net/url"
	"strings"
	"time"
)

// PlaceholderContent is emitted when no body text could be recovered.
const PlaceholderContent = "No content available. Please visit the source: "

// ArticleRecord is one normalized article.
type ArticleRecord struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	// DateFallback is set when PublishDate was not found on the page and
	// was defaulted to the extraction time.
	DateFallback bool     `json:"date_fallback,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Author       string   `json:"author,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// EnsureContent fills empty content with the placeholder for the record URL.
func (a *ArticleRecord) EnsureContent() {
	if strings.TrimSpace(a.Content) == "" {
		a.Content = PlaceholderContent + a.URL
	}
}

// HasRealDate reports whether PublishDate came from the source itself.
func (a ArticleRecord) HasRealDate() bool {
	return a.PublishDate != nil && !a.DateFallback
}

// AddKeywords appends keywords not yet present, case-insensitively.
func (a *ArticleRecord) AddKeywords(kws ...string) {
	seen := make(map[string]struct{}, len(a.Keywords))
	for _, k := range a.Keywords {
		seen[strings.ToLower(k)] = struct{}{}
	}
	for _, k := range kws {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lk := strings.ToLower(k)
		if _, ok := seen[lk]; ok {
			continue
		}
		seen[lk] = struct{}{}
		a.Keywords = append(a.Keywords, k)
	}
}

// SourceFromURL returns the host of u without a leading "www.".
func SourceFromURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// FeedDescriptor is one configured RSS source.
type FeedDescriptor struct {
	URL         string     `json:"url" yaml:"url"`
	IsActive    bool       `json:"is_active" yaml:"active"`
	LastChecked *time.Time `json:"last_checked,omitempty" yaml:"last_checked,omitempty"`
	LastError   string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}
