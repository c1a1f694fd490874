// Package imagefind picks one representative image for an article, from a
// parsed page or from feed entry metadata, by walking a ranked cascade of
// strategies. Every returned URL has passed an accessibility probe.
package imagefind

import (
	"context"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newspulse/internal/cascade"
	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

// Checker classifies and probes candidate image URLs.
type Checker interface {
	IsRejected(u string) bool
	IsPlausible(u string) bool
	IsAccessible(ctx context.Context, u string) bool
}

// PageLoader fetches article pages for feed entries without image metadata.
type PageLoader interface {
	Get(ctx context.Context, rawURL, accept string, timeout time.Duration) (*fetch.Response, error)
}

const (
	defaultProbesPerTier = 3
	defaultMinDimension  = 200
	positionStep         = 0.05
	positionFloor        = 0.1
)

type Resolver struct {
	checker       Checker
	loader        PageLoader
	pageTimeout   time.Duration
	probesPerTier int
	minDimension  int
	log           *slog.Logger
}

type Option func(*Resolver)

// WithPageLoader enables fetching an entry's link when the feed carries no image.
func WithPageLoader(l PageLoader, timeout time.Duration) Option {
	return func(r *Resolver) {
		r.loader = l
		r.pageTimeout = timeout
	}
}

// WithProbesPerTier bounds network probes per cascade tier.
func WithProbesPerTier(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.probesPerTier = n
		}
	}
}

func WithMinDimension(px int) Option {
	return func(r *Resolver) {
		if px > 0 {
			r.minDimension = px
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func New(checker Checker, opts ...Option) *Resolver {
	r := &Resolver{
		checker:       checker,
		probesPerTier: defaultProbesPerTier,
		minDimension:  defaultMinDimension,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveBestImage runs meta tags, JSON-LD, DOM heuristics, inline
// background images and finally the largest page image.
func (r *Resolver) ResolveBestImage(ctx context.Context, doc *goquery.Document, pageURL string) (string, bool) {
	if doc == nil {
		return "", false
	}
	img, strategy, ok := cascade.First(ctx, r.log,
		cascade.Func("meta", func(ctx context.Context) (string, bool) { return r.fromMeta(ctx, doc, pageURL) }),
		cascade.Func("jsonld", func(ctx context.Context) (string, bool) { return r.fromJSONLD(ctx, doc, pageURL) }),
		cascade.Func("dom", func(ctx context.Context) (string, bool) { return r.fromDOM(ctx, doc, pageURL) }),
		cascade.Func("background", func(ctx context.Context) (string, bool) { return r.fromBackground(ctx, doc, pageURL) }),
		cascade.Func("largest", func(ctx context.Context) (string, bool) { return r.fromLargest(ctx, doc, pageURL) }),
	)
	if !ok {
		r.log.Debug("No suitable image found", "url", pageURL)
		return "", false
	}
	metrics.ImagesResolved.WithLabelValues(strategy).Inc()
	return img, true
}

// probeFirst absolutizes, deduplicates and filters raw candidates, then
// probes at most limit of them in order.
func (r *Resolver) probeFirst(ctx context.Context, raw []string, base string, filter func(string) bool, limit int) (string, bool) {
	seen := make(map[string]struct{}, len(raw))
	probes := 0
	for _, c := range raw {
		if probes >= limit || ctx.Err() != nil {
			break
		}
		abs, ok := urlnorm.Absolutize(c, base)
		if !ok {
			continue
		}
		key := urlnorm.Clean(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if filter != nil && !filter(abs) {
			continue
		}
		probes++
		if r.checker.IsAccessible(ctx, abs) {
			return abs, true
		}
		r.log.Debug("Image candidate not accessible", "image", abs)
	}
	return "", false
}

func (r *Resolver) notRejected(u string) bool { return !r.checker.IsRejected(u) }
