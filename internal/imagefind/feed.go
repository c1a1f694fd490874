package imagefind

import (
	"bytes"
	"context"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/metrics"
)

var imageExt = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {},
}

func hasImageExt(u string) bool {
	p := u
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	_, ok := imageExt[strings.ToLower(path.Ext(p))]
	return ok
}

func isImageMedia(e ext.Extension) bool {
	if strings.HasPrefix(e.Attrs["type"], "image/") || e.Attrs["medium"] == "image" {
		return true
	}
	return e.Attrs["type"] == "" && e.Attrs["medium"] == "" && hasImageExt(e.Attrs["url"])
}

// mediaCandidates walks media:content, media:group and media:thumbnail.
func mediaCandidates(item *gofeed.Item) (content, thumbs []string) {
	media, ok := item.Extensions["media"]
	if !ok {
		return nil, nil
	}
	var walkContent func(list []ext.Extension)
	walkContent = func(list []ext.Extension) {
		for _, c := range list {
			if isImageMedia(c) && c.Attrs["url"] != "" {
				content = append(content, c.Attrs["url"])
			}
			for _, t := range c.Children["thumbnail"] {
				if t.Attrs["url"] != "" {
					thumbs = append(thumbs, t.Attrs["url"])
				}
			}
		}
	}
	walkContent(media["content"])
	for _, g := range media["group"] {
		walkContent(g.Children["content"])
		for _, t := range g.Children["thumbnail"] {
			if t.Attrs["url"] != "" {
				thumbs = append(thumbs, t.Attrs["url"])
			}
		}
	}
	for _, t := range media["thumbnail"] {
		if t.Attrs["url"] != "" {
			thumbs = append(thumbs, t.Attrs["url"])
		}
	}
	return content, thumbs
}

// metadataCandidates returns structured image fields in priority order.
func metadataCandidates(item *gofeed.Item) []string {
	content, thumbs := mediaCandidates(item)
	out := append(content, thumbs...)

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || (enc.Type == "" && hasImageExt(enc.URL)) {
			out = append(out, enc.URL)
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		out = append(out, item.Image.URL)
	}
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		out = append(out, item.ITunesExt.Image)
	}
	for _, k := range []string{"image", "thumbnail"} {
		if v := item.Custom[k]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

// htmlCandidates ranks images embedded in entry HTML: hero-like classes
// first, logos and icons last.
func htmlCandidates(fragment string) []string {
	if !strings.Contains(fragment, "<") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	out := collectAttrs(doc, metaSources)

	type ranked struct {
		url  string
		rank int
	}
	var imgs []ranked
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		u := elementImageURL(s)
		if u == "" {
			return
		}
		hint := strings.ToLower(classAndID(s.Get(0)) + " " + s.AttrOr("alt", "") + " " + u)
		rank := 1
		switch {
		case containsAny(hint, "logo", "icon", "avatar", "favicon"):
			rank = 0
		case containsAny(hint, "featured", "hero", "main", "cover"):
			rank = 2
		}
		imgs = append(imgs, ranked{url: u, rank: rank})
	})
	sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].rank > imgs[j].rank })
	for _, i := range imgs {
		out = append(out, i.url)
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FromFeedEntry resolves an image from feed metadata only: media and
// enclosure fields, then images inside the entry HTML, then image links.
func (r *Resolver) FromFeedEntry(ctx context.Context, item *gofeed.Item) (string, bool) {
	if item == nil {
		return "", false
	}
	base := item.Link

	if img, ok := r.probeFirst(ctx, metadataCandidates(item), base, r.notRejected, r.probesPerTier); ok {
		metrics.ImagesResolved.WithLabelValues("feed_media").Inc()
		return img, true
	}

	var embedded []string
	embedded = append(embedded, htmlCandidates(item.Content)...)
	embedded = append(embedded, htmlCandidates(item.Description)...)
	for _, l := range item.Links {
		if hasImageExt(l) {
			embedded = append(embedded, l)
		}
	}
	if img, ok := r.probeFirst(ctx, embedded, base, r.checker.IsPlausible, r.probesPerTier); ok {
		metrics.ImagesResolved.WithLabelValues("feed_html").Inc()
		return img, true
	}
	return "", false
}

// ResolveFromFeedEntry tries feed metadata first and then fetches the
// entry's link and runs the page cascade on it.
func (r *Resolver) ResolveFromFeedEntry(ctx context.Context, item *gofeed.Item) (string, bool) {
	if img, ok := r.FromFeedEntry(ctx, item); ok {
		return img, true
	}
	if item == nil {
		return "", false
	}
	return r.FromLink(ctx, item.Link)
}

// FromLink loads link and runs the page cascade on it. It needs a page
// loader; without one it always reports no image.
func (r *Resolver) FromLink(ctx context.Context, link string) (string, bool) {
	if link == "" || r.loader == nil {
		return "", false
	}

	resp, err := r.loader.Get(ctx, link, fetch.AcceptHTML, r.pageTimeout)
	if err != nil {
		r.log.Debug("Can't load entry page for image", "url", link, "err", err)
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", false
	}
	base := resp.URL
	if base == "" {
		base = link
	}
	return r.ResolveBestImage(ctx, doc, base)
}
