// Package imagecheck decides whether a URL plausibly points at a content
// image and, when asked, confirms it over the network.
package imagecheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {},
}

var trackingSubstrings = []string{
	"pixel", "tracking", "tracker", "beacon", "analytics", "doubleclick",
	"scorecardresearch", "spacer.", "blank.gif", "1x1", "/counter", "/stats",
}

// NonContentKeywords mark decorative or promotional images.
var NonContentKeywords = []string{"logo", "icon", "sprite", "favicon", "banner", "ad", "avatar"}

var imagePathIndicators = []string{"/image", "/img", "/media", "/upload", "/photo", "image=", "img=", "wp-content"}

var resizeParams = []string{"w", "h", "width", "height", "size", "format", "resize", "fit", "crop"}

// MatchesKeyword reports whether any keyword occurs in s as a token.
// Keywords of three letters or fewer must match a whole token (plural
// allowed) so "ad" does not hit "upload" or "header"; longer keywords also
// match as a token prefix or suffix ("logos", "sitelogo").
func MatchesKeyword(s string, keywords []string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range tokens {
		for _, kw := range keywords {
			if tok == kw || tok == kw+"s" {
				return true
			}
			if len(kw) <= 3 {
				if kw == "ad" && strings.HasPrefix(tok, "advert") {
					return true
				}
				continue
			}
			if strings.HasPrefix(tok, kw) && isDigits(tok[len(kw):]) || strings.HasSuffix(tok, kw) {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsRejected reports whether u looks like a tracking pixel or a
// non-content image. Data URIs are never rejected.
func IsRejected(u string) bool {
	if urlnorm.IsDataURI(u) {
		return false
	}
	lower := strings.ToLower(u)
	for _, s := range trackingSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return MatchesKeyword(stripHost(lower), NonContentKeywords)
}

func stripHost(u string) string {
	if p, err := url.Parse(u); err == nil && p.Host != "" {
		return p.EscapedPath() + "?" + p.RawQuery
	}
	return u
}

// IsPlausible is the fast, I/O-free check.
func IsPlausible(u string) bool {
	u = strings.TrimSpace(u)
	if len(u) < 5 {
		return false
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "data:image/") {
		return true
	}
	if !(strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//") || strings.HasPrefix(lower, "/") || strings.HasPrefix(lower, "./")) {
		return false
	}
	if IsRejected(u) {
		return false
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	if _, ok := imageExtensions[strings.ToLower(path.Ext(parsed.Path))]; ok {
		return true
	}
	for _, ind := range imagePathIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for _, p := range resizeParams {
			if q.Has(p) {
				return true
			}
		}
	}
	return false
}

// Validator confirms image candidates with HEAD/GET probes.
type Validator struct {
	client  *http.Client
	timeout time.Duration
	headers map[string]string
	log     *slog.Logger
}

// New creates a Validator with the given per-probe timeout.
func New(timeout time.Duration, userAgent string, log *slog.Logger) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Validator{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout: timeout,
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Referer":         "https://www.google.com/",
		},
		log: log,
	}
}

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func (v *Validator) IsPlausible(u string) bool { return IsPlausible(u) }
func (v *Validator) IsRejected(u string) bool  { return IsRejected(u) }

// IsAccessible probes u. Any failure means "not accessible".
func (v *Validator) IsAccessible(ctx context.Context, u string) bool {
	if strings.HasPrefix(strings.ToLower(u), "data:image/") {
		return true
	}
	if h := urlnorm.Host(u); h == "" {
		return false
	}

	ok, conclusive := v.head(ctx, u)
	if !conclusive {
		ok = v.get(ctx, u)
	}
	if ok {
		metrics.ImageProbes.WithLabelValues("ok").Inc()
	} else {
		metrics.ImageProbes.WithLabelValues("rejected").Inc()
	}
	return ok
}

func (v *Validator) newRequest(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	for k, val := range v.headers {
		req.Header.Set(k, val)
	}
	return req, nil
}

func (v *Validator) head(ctx context.Context, u string) (ok, conclusive bool) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := v.newRequest(ctx, http.MethodHead, u)
	if err != nil {
		return false, true
	}
	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Debug("HEAD probe failed", "url", u, "err", err)
		return false, ctx.Err() != nil
	}
	resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case resp.StatusCode == http.StatusOK && strings.HasPrefix(ct, "image/"):
		return true, true
	case resp.StatusCode == http.StatusOK && ct == "":
		return false, false
	case resp.StatusCode == http.StatusMethodNotAllowed,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		return false, false
	default:
		return false, true
	}
}

func (v *Validator) get(ctx context.Context, u string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := v.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Debug("GET probe failed", "url", u, "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if ct == "" {
		buf := make([]byte, 512)
		n, _ := io.ReadFull(resp.Body, buf)
		ct = http.DetectContentType(buf[:n])
	}
	return strings.HasPrefix(ct, "image/")
}
