// Package fetch is the outbound HTTP client shared by the feed poller and
// the article extractor.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/newspulse/internal/ratelimit"
	"github.com/deusflow/newspulse/internal/retry"
	"github.com/deusflow/newspulse/internal/urlnorm"
)

// ErrHTTPStatus indicates a response with a non-200 status code.
var ErrHTTPStatus = errors.New("HTTP status not OK")

// ErrTooManyRedirects indicates too many HTTP redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

const (
	defaultTimeout   = 20 * time.Second
	defaultMaxBody   = 5 * 1024 * 1024
	maxRedirects     = 5
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

const (
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	AcceptFeed = "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5"
	AcceptJSON = "application/json"
)

// StatusError carries the HTTP status of a failed response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d for %s", ErrHTTPStatus, e.Code, e.URL)
}

func (e *StatusError) Is(target error) bool { return target == ErrHTTPStatus }

// retryable reports whether a status is worth another attempt.
func retryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
}

type Options struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	HostRPS       float64
	HostBurst     int
	MaxBodyBytes  int64
	UserAgent     string
	Logger        *slog.Logger
}

type Client struct {
	http    *http.Client
	limiter *ratelimit.HostLimiter
	retry   retry.RetryConfig
	timeout time.Duration
	maxBody int64
	headers map[string]string
	log     *slog.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		http: &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		limiter: ratelimit.NewHostLimiter(opts.HostRPS, opts.HostBurst),
		retry: retry.RetryConfig{
			MaxAttempts: opts.RetryAttempts,
			Delay:       opts.RetryDelay,
			Backoff:     true,
			MaxDelay:    10 * time.Second,
		},
		timeout: opts.Timeout,
		maxBody: opts.MaxBodyBytes,
		headers: map[string]string{
			"User-Agent":                opts.UserAgent,
			"Accept-Language":           "en-US,en;q=0.9",
			"Referer":                   "https://www.google.com/",
			"DNT":                       "1",
			"Upgrade-Insecure-Requests": "1",
			"Cache-Control":             "max-age=0",
		},
		log: opts.Logger,
	}
}

// Get fetches rawURL with the browser header set, retrying transient
// failures. A timeout of zero uses the client default. Once a request is
// on the wire it runs to completion or its own timeout even if ctx is
// cancelled; cancellation only prevents new attempts.
func (c *Client) Get(ctx context.Context, rawURL, accept string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	host := urlnorm.Host(rawURL)
	if host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	var out *Response
	err := retry.WithRetry(ctx, c.retry, func() error {
		if err := ctx.Err(); err != nil {
			return retry.Permanent(err)
		}
		if err := c.limiter.Wait(ctx, host); err != nil {
			return retry.Permanent(fmt.Errorf("host rate limiter wait: %w", err))
		}

		resp, err := c.do(ctx, rawURL, accept, timeout)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !retryable(se.Code) {
				return retry.Permanent(err)
			}
			c.log.Debug("fetch attempt failed", "url", rawURL, "err", err)
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(parent context.Context, rawURL, accept string, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if accept == "" {
		accept = AcceptHTML
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
		Body:        body,
	}, nil
}
