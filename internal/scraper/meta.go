package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// metaContent returns the first non-empty content attribute among selectors.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("content")
			found = cleanText(v)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func extractTitle(doc *goquery.Document) string {
	if t := metaContent(doc, `meta[property="og:title"]`, `meta[name="og:title"]`, `meta[name="title"]`); t != "" {
		return t
	}
	for _, sel := range []string{"title", "h1"} {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func extractDescription(doc *goquery.Document) string {
	return metaContent(doc,
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		`meta[name="twitter:description"]`,
		`meta[property="twitter:description"]`,
	)
}

var authorSelectors = []string{
	`meta[name="author"]`,
	`meta[property="article:author"]`,
	`meta[name="parsely-author"]`,
	`meta[name="twitter:creator"]`,
	`[itemprop="author"] [itemprop="name"]`,
	`[itemprop="author"]`,
	`a[rel="author"]`,
	`.author-name`,
	`.author`,
	`.byline`,
}

func extractAuthor(doc *goquery.Document) string {
	for _, sel := range authorSelectors {
		var author string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, ok := s.Attr("content")
			if !ok {
				v = s.Text()
			}
			v = cleanText(v)
			// article:author is often a profile URL
			if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
				v = ""
			}
			author = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(v, "By "), "by "))
			return author == ""
		})
		if author != "" && len([]rune(author)) <= 100 {
			return author
		}
	}
	return ""
}

func extractKeywords(doc *goquery.Document) []string {
	var out []string
	doc.Find(`meta[name="keywords"], meta[name="news_keywords"]`).Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("content")
		for _, k := range strings.Split(v, ",") {
			if k = cleanText(k); k != "" {
				out = append(out, k)
			}
		}
	})
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if v, _ := s.Attr("content"); cleanText(v) != "" {
			out = append(out, cleanText(v))
		}
	})
	return out
}

var dateMetaSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[property="og:published_time"]`,
	`meta[name="pubdate"]`,
	`meta[name="publish_date"]`,
	`meta[name="publish-date"]`,
	`meta[name="date"]`,
	`meta[itemprop="datePublished"]`,
	`meta[name="DC.date.issued"]`,
	`meta[name="dc.date"]`,
}

var visibleDateSelectors = []string{
	"time[datetime]",
	"time[pubdate]",
	"[itemprop=datePublished]",
	".date",
	".published",
	".timestamp",
	".post-date",
	".entry-date",
}

var humanDateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

var ldDatePublished = regexp.MustCompile(`"datePublished"\s*:\s*"([^"]+)"`)

// extractPublishDate tries meta tags, JSON-LD, then visible date elements.
func extractPublishDate(doc *goquery.Document) (time.Time, bool) {
	for _, sel := range dateMetaSelectors {
		if v := metaContent(doc, sel); v != "" {
			if t, ok := parseISO(v); ok {
				return t, true
			}
		}
	}

	var found time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := ldDatePublished.FindStringSubmatch(s.Text()); m != nil {
			if t, ok := parseISO(m[1]); ok {
				found = t
				return false
			}
		}
		return true
	})
	if !found.IsZero() {
		return found, true
	}

	for _, sel := range visibleDateSelectors {
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr("datetime"); ok {
				if t, ok := parseHuman(v); ok {
					found = t
					return false
				}
			}
			if t, ok := parseHuman(s.Text()); ok {
				found = t
				return false
			}
			return true
		})
		if !found.IsZero() {
			return found, true
		}
	}
	return time.Time{}, false
}

func parseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return parseHuman(s)
}

func parseHuman(s string) (time.Time, bool) {
	s = cleanText(s)
	if s == "" || len(s) > 64 {
		return time.Time{}, false
	}
	for _, layout := range humanDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
