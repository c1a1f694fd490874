package scraper

import (
	"bytes"
	"math"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// contentSelectors are tried in order; the first container with text wins.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"[itemprop=articleBody]",
	"div.article",
	"div.article-body",
	"div.article__body",
	"div.article-content",
	"div.article__content",
	"div.article-text",
	"div.post",
	"div.post-content",
	"div.post__content",
	"div.entry",
	"div.entry-content",
	"div.entry__content",
	"div.story",
	"div.story-body",
	"div.story__content",
	"div.td-post-content",
	"div.elementor-widget-theme-post-content",
	"div.content",
	"div.main-content",
	"div.main",
	"div#content",
	"div#main",
	"div#article",
	"div#article-body",
}

const (
	minContainerChars = 25
	minDensityChars   = 100
	minDensity        = 0.1
	minParagraphChars = 10
)

// extractBody returns the article text and whether a real content block
// was identified (as opposed to the whole-page fallback).
func extractBody(doc *goquery.Document, raw []byte, pageURL string) (string, bool) {
	for _, sel := range contentSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 || utf8.RuneCountInString(strings.TrimSpace(s.Text())) < minContainerChars {
			continue
		}
		if text := assembleParagraphs(s); text != "" {
			return text, true
		}
	}

	if s := densest(doc); s != nil {
		if text := assembleParagraphs(s); text != "" {
			return text, true
		}
	}

	if text := readabilityText(raw, pageURL); text != "" {
		return text, true
	}

	return assembleParagraphs(doc.Find("body")), false
}

// densest scores block elements by text-to-markup ratio weighted by the
// square root of their text length.
func densest(doc *goquery.Document) *goquery.Selection {
	var (
		best      *goquery.Selection
		bestScore float64
	)
	doc.Find("div, section, article, main").Each(func(_ int, s *goquery.Selection) {
		textLen := utf8.RuneCountInString(strings.TrimSpace(s.Text()))
		if textLen < minDensityChars {
			return
		}
		markup, err := goquery.OuterHtml(s)
		if err != nil || len(markup) == 0 {
			return
		}
		density := float64(textLen) / float64(utf8.RuneCountInString(markup))
		if density <= minDensity {
			return
		}
		score := density * math.Sqrt(float64(textLen))
		if score > bestScore {
			best, bestScore = s, score
		}
	})
	return best
}

func readabilityText(raw []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil {
		return ""
	}
	text := joinLines(strings.Split(article.TextContent, "\n"))
	if utf8.RuneCountInString(text) < minDensityChars {
		return ""
	}
	return text
}

// assembleParagraphs prefers <p> and heading blocks; without any it falls
// back to the container's text split on block boundaries.
func assembleParagraphs(s *goquery.Selection) string {
	var blocks []string
	s.Find("p, h1, h2, h3, h4, h5, h6").Each(func(_ int, el *goquery.Selection) {
		text := cleanText(el.Text())
		if utf8.RuneCountInString(text) <= minParagraphChars || isJunkLine(text) {
			return
		}
		blocks = append(blocks, text)
	})
	if len(blocks) > 0 {
		return strings.Join(blocks, "\n\n")
	}

	var b strings.Builder
	for _, n := range s.Nodes {
		flatten(n, &b)
	}
	return joinLines(strings.Split(b.String(), "\n"))
}

func joinLines(lines []string) string {
	var out []string
	for _, l := range lines {
		l = cleanText(l)
		if l == "" || isJunkLine(l) {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n\n")
}

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "ul": {}, "ol": {}, "tr": {},
	"section": {}, "article": {}, "blockquote": {}, "figure": {},
	"figcaption": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"pre": {}, "table": {},
}

func flatten(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	_, block := blockTags[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(c, b)
	}
	if block {
		b.WriteByte('\n')
	}
}
