// Package app wires configuration into the running components.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/newspulse/internal/api"
	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/config"
	"github.com/deusflow/newspulse/internal/fetch"
	"github.com/deusflow/newspulse/internal/imagecheck"
	"github.com/deusflow/newspulse/internal/imagefind"
	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/newsapi"
	"github.com/deusflow/newspulse/internal/ratelimit"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/scraper"
	"github.com/deusflow/newspulse/internal/sentiment"
	"github.com/deusflow/newspulse/internal/storage"
)

// Registry is the feed registry as used by the CLI and the aggregator.
type Registry interface {
	ListFeeds(ctx context.Context) ([]models.FeedDescriptor, error)
	ListActiveFeeds(ctx context.Context) ([]models.FeedDescriptor, error)
	AddFeed(ctx context.Context, url string) error
	SetActive(ctx context.Context, url string, active bool) error
	RecordPollResult(ctx context.Context, url string, pollErr error, checkedAt time.Time) error
}

type App struct {
	Config     *config.Config
	Registry   Registry
	Cache      cache.Store
	Aggregator *rss.Aggregator
	Sentiment  *sentiment.Service
	News       *news.Service
	Budget     *ratelimit.Budget

	log     *slog.Logger
	closers []func()
}

// New builds every component from cfg. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, log: logger.With("app")}

	reg, err := a.openRegistry(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Registry = reg
	a.Cache = a.openCache(ctx)

	client := fetch.New(fetch.Options{
		Timeout:       cfg.PageTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		HostRPS:       cfg.HostRateLimit,
		HostBurst:     cfg.HostRateBurst,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		UserAgent:     cfg.UserAgent,
		Logger:        logger.With("fetch"),
	})
	validator := imagecheck.New(cfg.ProbeTimeout, cfg.UserAgent, logger.With("imagecheck"))
	images := imagefind.New(validator,
		imagefind.WithPageLoader(client, cfg.PageTimeout),
		imagefind.WithProbesPerTier(cfg.ProbesPerTier),
		imagefind.WithLogger(logger.With("imagefind")),
	)
	extractor := scraper.NewExtractor(client, cfg.PageTimeout,
		scraper.WithImageResolver(images),
		scraper.WithLogger(logger.With("scraper")),
	)

	a.Aggregator = rss.New(reg, client, extractor, images, a.Cache, rss.Options{
		Workers:         cfg.FeedWorkers,
		PageConcurrency: cfg.PageWorkers,
		EntriesPerFeed:  cfg.EntriesPerFeed,
		FeedTimeout:     cfg.FeedTimeout,
		Logger:          logger.With("rss"),
	})

	a.Sentiment, err = a.sentimentService(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var apiSource news.APISource
	if cfg.NewsAPIKey != "" {
		apiSource = newsapi.New(client, extractor, cfg.NewsAPIKey, cfg.NewsAPIBase, cfg.PageTimeout, logger.With("newsapi"))
	}
	a.News = news.NewService(a.Aggregator, apiSource, a.Sentiment, a.Cache, news.Options{
		Workers: cfg.SentimentWorkers,
		Logger:  logger.With("news"),
	})

	a.log.Info("Application ready",
		"registry", cfg.RegistryBackend,
		"cache", cfg.CacheBackend,
		"newsapi", apiSource != nil,
		"llm", a.Sentiment.HasProvider())
	return a, nil
}

func (a *App) openRegistry(ctx context.Context) (Registry, error) {
	switch a.Config.RegistryBackend {
	case "postgres":
		pg, err := storage.NewPostgresRegistry(ctx, a.Config.DatabaseURL, logger.With("storage"))
		if err != nil {
			return nil, fmt.Errorf("open postgres registry: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	case "memory":
		return storage.NewMemoryRegistry(), nil
	default:
		fr, err := storage.OpenFileRegistry(a.Config.FeedsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("open feed registry: %w", err)
		}
		return fr, nil
	}
}

func (a *App) sentimentService(ctx context.Context) (*sentiment.Service, error) {
	cfg := a.Config
	var providers []sentiment.Provider
	limits := map[string]int{}

	if p := sentiment.NewOpenAIProvider("groq", cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel); p != nil {
		providers = append(providers, p)
		limits[p.Name()] = cfg.MaxLLMRequests
	}
	gp, err := sentiment.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if gp != nil {
		providers = append(providers, gp)
		limits[gp.Name()] = cfg.MaxLLMRequests
		a.closers = append(a.closers, gp.Close)
	}
	if len(providers) == 0 {
		a.log.Warn("No LLM provider configured, sentiment uses the word-list fallback")
	}

	a.Budget = ratelimit.NewBudget(limits, cfg.MaxLLMRequests)
	return sentiment.NewService(providers,
		sentiment.WithBudget(a.Budget),
		sentiment.WithCache(a.Cache),
		sentiment.WithLogger(logger.With("sentiment")),
	), nil
}

// Server returns the HTTP API bound to this application.
func (a *App) Server() *api.Server {
	return api.NewServer(a.News,
		api.WithStatus(metrics.Global),
		api.WithStats("llm_budget", a.Budget),
		api.WithLogger(logger.With("api")),
	)
}

// Serve runs the HTTP API until ctx is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	gin.SetMode(a.Config.GinMode)
	srv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           a.Server().Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	a.log.Info("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

// Close releases pools, clients and background loops in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
