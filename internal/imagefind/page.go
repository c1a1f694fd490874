package imagefind

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/deusflow/newspulse/internal/imagecheck"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

type metaSource struct {
	selector string
	attr     string
}

var metaSources = []metaSource{
	{`meta[property="og:image"]`, "content"},
	{`meta[name="og:image"]`, "content"},
	{`meta[property="og:image:url"]`, "content"},
	{`meta[property="og:image:secure_url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[property="twitter:image"]`, "content"},
	{`meta[name="twitter:image:src"]`, "content"},
	{`meta[itemprop="image"]`, "content"},
	{`meta[property="article:image"]`, "content"},
	{`meta[name="thumbnail"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

// iconSources are tried last and bypass the non-content keyword filter.
var iconSources = []metaSource{
	{`link[rel="apple-touch-icon"]`, "href"},
	{`link[rel="icon"]`, "href"},
	{`meta[name="msapplication-TileImage"]`, "content"},
}

func collectAttrs(doc *goquery.Document, sources []metaSource) []string {
	var out []string
	for _, src := range sources {
		doc.Find(src.selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(src.attr); ok && strings.TrimSpace(v) != "" {
				out = append(out, strings.TrimSpace(v))
			}
		})
	}
	return out
}

func (r *Resolver) fromMeta(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool) {
	if img, ok := r.probeFirst(ctx, collectAttrs(doc, metaSources), pageURL, r.notRejected, r.probesPerTier); ok {
		return img, true
	}
	return r.probeFirst(ctx, collectAttrs(doc, iconSources), pageURL, nil, 1)
}

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	lineBreaks    = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")
)

// parseJSONLD decodes a JSON-LD block, retrying once with trailing commas
// and raw line breaks removed.
func parseJSONLD(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<!--"), "-->")
	raw = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "//<![CDATA["), "//]]>")
	if raw == "" {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}
	repaired := trailingComma.ReplaceAllString(lineBreaks.Replace(raw), "$1")
	if err := json.Unmarshal([]byte(repaired), &v); err == nil {
		return v, true
	}
	return nil, false
}

const maxLDDepth = 32

// ldImages collects values of the given fields anywhere in a JSON-LD tree.
// Object keys are visited in sorted order so results are deterministic.
func ldImages(v any, fields []string, depth int, out *[]string) {
	if depth > maxLDDepth {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		for _, f := range fields {
			if val, ok := t[f]; ok {
				ldImageValue(val, out)
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ldImages(t[k], fields, depth+1, out)
		}
	case []any:
		for _, item := range t {
			ldImages(item, fields, depth+1, out)
		}
	}
}

func ldImageValue(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			*out = append(*out, t)
		}
	case map[string]any:
		for _, k := range []string{"url", "contentUrl", "@id"} {
			if s, ok := t[k].(string); ok && s != "" {
				*out = append(*out, s)
				return
			}
		}
	case []any:
		for _, item := range t {
			ldImageValue(item, out)
		}
	}
}

func (r *Resolver) fromJSONLD(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool) {
	var images, logos []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		v, ok := parseJSONLD(s.Text())
		if !ok {
			r.log.Debug("Skipping malformed JSON-LD", "url", pageURL)
			return
		}
		ldImages(v, []string{"image", "thumbnailUrl"}, 0, &images)
		ldImages(v, []string{"logo"}, 0, &logos)
	})
	return r.probeFirst(ctx, append(images, logos...), pageURL, r.notRejected, r.probesPerTier)
}

// heroSelectors are ordered from header/hero containers to generic
// article-body images.
var heroSelectors = []string{
	"header img",
	".hero img",
	".hero-image img",
	".article-hero img",
	".article-header img",
	".post-header img",
	".entry-header img",
	".lead-image img",
	".lede img",
	"figure.lead img",
	"img.wp-post-image",
	".featured-image img",
	".post-thumbnail img",
	".entry-thumbnail img",
	".post-image img",
	".article-featured-image img",
	".td-post-featured-image img",
	".wp-block-image img",
	".elementor-widget-image img",
	"[itemprop=image] img",
	"article figure img",
	"article picture source",
	".article-body img",
	".article-content img",
	".entry-content img",
	".post-content img",
	".story-body img",
	"[itemprop=articleBody] img",
	"article img",
	"main img",
	"figure img",
	"picture source",
}

// skipKeywords exclude images whose own or parent class/id match.
var skipKeywords = []string{"ad", "banner", "logo", "icon", "avatar", "share", "social", "comment", "widget"}

var lazyAttrs = []string{
	"data-src", "data-lazy-src", "data-original", "data-url", "data-image",
	"data-img", "data-large", "data-full", "data-zoom",
}

type candidate struct {
	url    string
	width  int
	height int
	pos    int
}

func classAndID(n *html.Node) string {
	var parts []string
	for _, a := range n.Attr {
		if a.Key == "class" || a.Key == "id" {
			parts = append(parts, a.Val)
		}
	}
	return strings.Join(parts, " ")
}

func skipped(s *goquery.Selection) bool {
	if imagecheck.MatchesKeyword(classAndID(s.Get(0)), skipKeywords) {
		return true
	}
	if p := s.Parent(); p.Length() > 0 && imagecheck.MatchesKeyword(classAndID(p.Get(0)), skipKeywords) {
		return true
	}
	return false
}

// elementImageURL prefers lazy-load attributes over src, which often holds
// a placeholder.
func elementImageURL(s *goquery.Selection) string {
	for _, a := range lazyAttrs {
		if v, ok := s.Attr(a); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, a := range []string{"srcset", "data-srcset"} {
		if v, ok := s.Attr(a); ok {
			if u := largestFromSrcset(v); u != "" {
				return u
			}
		}
	}
	if v, ok := s.Attr("src"); ok {
		v = strings.TrimSpace(v)
		// tiny inline placeholders
		if urlnorm.IsDataURI(v) && len(v) < 200 {
			return ""
		}
		return v
	}
	return ""
}

// largestFromSrcset returns the entry with the largest w/x descriptor, or
// the last entry when none carry one.
func largestFromSrcset(srcset string) string {
	var (
		best     string
		bestSize float64
	)
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		size := 0.0
		if len(fields) > 1 {
			d := fields[1]
			if n, err := strconv.ParseFloat(strings.TrimRight(d, "wx"), 64); err == nil {
				size = n
			}
		}
		if best == "" || size >= bestSize {
			best, bestSize = fields[0], size
		}
	}
	return best
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

func atoiPrefix(s string) int {
	m := leadingDigits.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

var styleDim = regexp.MustCompile(`(?i)(?:^|;)\s*(width|height)\s*:\s*(\d+)px`)

func dimensions(s *goquery.Selection) (w, h int) {
	for _, a := range []string{"width", "data-width"} {
		if v, ok := s.Attr(a); ok && w == 0 {
			w = atoiPrefix(v)
		}
	}
	for _, a := range []string{"height", "data-height"} {
		if v, ok := s.Attr(a); ok && h == 0 {
			h = atoiPrefix(v)
		}
	}
	if style, ok := s.Attr("style"); ok {
		for _, m := range styleDim.FindAllStringSubmatch(style, -1) {
			n, _ := strconv.Atoi(m[2])
			if strings.EqualFold(m[1], "width") && w == 0 {
				w = n
			} else if strings.EqualFold(m[1], "height") && h == 0 {
				h = n
			}
		}
	}
	return w, h
}

func (r *Resolver) collectDOM(doc *goquery.Document) []candidate {
	var out []candidate
	seen := make(map[*html.Node]struct{})
	for _, sel := range heroSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if _, ok := seen[n]; ok {
				return
			}
			seen[n] = struct{}{}
			if skipped(s) {
				return
			}
			u := elementImageURL(s)
			if u == "" {
				return
			}
			w, h := dimensions(s)
			out = append(out, candidate{url: u, width: w, height: h, pos: len(out)})
		})
	}
	return out
}

// rank scores candidates by area times a linear per-position decay with a
// floor. Images whose known width and height are both under the minimum are
// dropped; a single known dimension stands in for the missing one, and
// images without dimensions count as minimum-sized.
func (r *Resolver) rank(cands []candidate) []string {
	type scored struct {
		url   string
		score float64
	}
	minDim := r.minDimension
	var kept []scored
	for _, c := range cands {
		w, h := c.width, c.height
		if w > 0 && h > 0 && w < minDim && h < minDim {
			continue
		}
		switch {
		case w > 0 && h > 0:
		case w > 0:
			h = w
		case h > 0:
			w = h
		default:
			w, h = minDim, minDim
		}
		score := float64(w*h) * math.Max(positionFloor, 1-positionStep*float64(c.pos))
		kept = append(kept, scored{url: c.url, score: score})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	out := make([]string, len(kept))
	for i, k := range kept {
		out[i] = k.url
	}
	return out
}

func (r *Resolver) fromDOM(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool) {
	ranked := r.rank(r.collectDOM(doc))
	return r.probeFirst(ctx, ranked, pageURL, r.checker.IsPlausible, r.probesPerTier)
}

var backgroundURL = regexp.MustCompile(`(?i)background(?:-image)?\s*:[^;]*url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

func (r *Resolver) fromBackground(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool) {
	var raw []string
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if !strings.Contains(strings.ToLower(style), "url(") || skipped(s) {
			return
		}
		for _, m := range backgroundURL.FindAllStringSubmatch(style, -1) {
			raw = append(raw, m[1])
		}
	})
	return r.probeFirst(ctx, raw, pageURL, r.checker.IsPlausible, r.probesPerTier)
}

func (r *Resolver) fromLargest(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool) {
	type sized struct {
		url  string
		area int
	}
	var all []sized
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		u := elementImageURL(s)
		if u == "" {
			return
		}
		w, h := dimensions(s)
		all = append(all, sized{url: u, area: w * h})
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].area > all[j].area })

	raw := make([]string, len(all))
	for i, s := range all {
		raw[i] = s.url
	}
	return r.probeFirst(ctx, raw, pageURL, r.checker.IsPlausible, r.probesPerTier)
}
