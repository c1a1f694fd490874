package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var strippedTags = []string{
	"script", "style", "noscript", "nav", "footer", "header", "iframe",
	"form", "button", "object", "embed", "video", "audio", "aside", "menu",
	"input", "select", "textarea", "template", "svg",
	"[aria-hidden=true]", "[hidden]",
}

// nonContentTokens are class/id tokens of navigation, promo and social blocks.
var nonContentTokens = map[string]struct{}{
	"nav": {}, "navbar": {}, "navigation": {}, "header": {}, "footer": {},
	"sidebar": {}, "menu": {}, "ad": {}, "ads": {}, "advert": {},
	"advertisement": {}, "sponsored": {}, "promo": {}, "social": {},
	"share": {}, "sharing": {}, "comment": {}, "comments": {}, "related": {},
	"recommended": {}, "popular": {}, "trending": {}, "newsletter": {},
	"subscribe": {}, "signup": {}, "login": {}, "search": {},
	"pagination": {}, "breadcrumb": {}, "breadcrumbs": {}, "cookie": {},
	"banner": {}, "modal": {}, "popup": {}, "overlay": {}, "tooltip": {},
	"notification": {}, "hidden": {},
}

var protectedTags = map[string]struct{}{
	"html": {}, "body": {}, "article": {}, "main": {},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func hasNonContentToken(s *goquery.Selection) bool {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	for _, tok := range nonAlnum.Split(strings.ToLower(class+" "+id), -1) {
		if _, ok := nonContentTokens[tok]; ok {
			return true
		}
	}
	return false
}

// stripNonContent removes chrome, scripts and promotional blocks, then
// drops elements left without text or media.
func stripNonContent(doc *goquery.Document) {
	doc.Find(strings.Join(strippedTags, ", ")).Remove()

	doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if _, ok := protectedTags[goquery.NodeName(s)]; ok {
			return
		}
		if hasNonContentToken(s) {
			s.Remove()
		}
	})

	all := doc.Find("body *")
	for i := all.Length() - 1; i >= 0; i-- {
		el := all.Eq(i)
		switch goquery.NodeName(el) {
		case "img", "picture", "source", "br", "hr":
			continue
		}
		if strings.TrimSpace(el.Text()) != "" {
			continue
		}
		if el.Find("img, picture").Length() > 0 {
			continue
		}
		el.Remove()
	}
}

var spaceRun = regexp.MustCompile(`[ \t\p{Zs}]+`)

// cleanText collapses runs of horizontal whitespace and trims.
func cleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// junkIndicators mark boilerplate lines that survive DOM stripping.
var junkIndicators = []string{
	"read more", "click here", "subscribe to", "sign up for", "follow us",
	"share this", "advertisement", "cookie", "all rights reserved",
	"newsletter", "related articles",
}

func isJunkLine(line string) bool {
	if len([]rune(line)) > 100 {
		return false
	}
	lower := strings.ToLower(line)
	for _, j := range junkIndicators {
		if strings.Contains(lower, j) {
			return true
		}
	}
	return false
}
