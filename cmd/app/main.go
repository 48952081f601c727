package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snipr-audio/internal/config"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/domain/ports/repository"
	aiAdapters "snipr-audio/internal/infra/adapters/ai"
	"snipr-audio/internal/infra/adapters/document"
	"snipr-audio/internal/infra/adapters/extractor"
	"snipr-audio/internal/infra/adapters/speech"
	"snipr-audio/internal/infra/adapters/storage"
	tele "snipr-audio/internal/infra/adapters/telegram"
	"snipr-audio/internal/infra/api"
	"snipr-audio/internal/infra/auth"
	"snipr-audio/internal/infra/db/memory"
	pg "snipr-audio/internal/infra/db/postgres"
	"snipr-audio/internal/infra/logging"
	"snipr-audio/internal/infra/metrics"
	"snipr-audio/internal/infra/podcasts"
	red "snipr-audio/internal/infra/redis"
	"snipr-audio/internal/infra/rss"
	"snipr-audio/internal/infra/scheduler"
	"snipr-audio/internal/infra/worker"
	"snipr-audio/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Redis (optional in dev) ----
	var redisClient red.RedisClient
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer c.Close()
		redisClient = c
	} else {
		logger.Warn().Msg("redis not configured; rate limiting, feed cache and stale-recovery lock disabled")
	}

	// ---- Repositories ----
	var (
		pool  *pgxpool.Pool
		jobs  repository.ConversionJobRepository
		feeds repository.UserFeedRepository
	)
	if cfg.Database.URL != "" {
		p, err := pg.Connect(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
		jobs = pg.NewConversionJobRepo(pool, pg.NewTxManager(pool))
		if redisClient != nil {
			jobs = pg.NewConversionJobRepoCacheDecorator(jobs, redisClient, cfg.Redis.JobTTL)
		}
		feeds = pg.NewUserFeedRepo(pool)
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)
	} else {
		logger.Warn().Msg("database not configured; using in-memory repositories")
		jobs = memory.NewJobRepo()
		feeds = memory.NewFeedRepo()
	}

	var (
		limiter   adapter.RateLimiter
		feedCache adapter.FeedCache
	)
	if redisClient != nil {
		limiter = red.NewRateLimiter(redisClient)
		feedCache = red.NewFeedCache(redisClient)
	}

	// ---- Pipeline stages ----
	httpClient := &http.Client{Timeout: 30 * time.Second}
	summarizer, err := buildSummarizer(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	synth, err := buildSynthesizer(cfg.Speech, logger)
	if err != nil {
		return err
	}
	store, mediaDir, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return err
	}

	// ---- Use cases ----
	feedUC := usecase.NewFeedUseCase(feeds, feedCache, rss.NewRenderer(cfg.Feed.DefaultImage),
		cfg.Server.PublicBaseURL, cfg.Redis.TTL, logger)

	processor := worker.NewConversionProcessor(jobs, worker.Stages{
		Extractor:   extractor.New(httpClient, logger),
		Summarizer:  summarizer,
		Synthesizer: synth,
		Store:       store,
	}, feedUC, notifier, worker.ProcessorConfig{
		PollInterval: cfg.Worker.PollInterval,
		StaleAfter:   cfg.Worker.StaleAfter,
		MaxChunk:     cfg.Speech.MaxChunk,
		Voice:        voiceFrom(cfg.Speech),
	}, logger)

	jobUC := usecase.NewJobUseCase(jobs, feedUC, limiter, document.NewEPUBReader(logger), usecase.JobLimits{
		RateLimit:  cfg.Feed.RateLimit,
		RateWindow: cfg.Feed.RateWindow,
		ListLimit:  cfg.Feed.ListLimit,
	}, processor.Wake, logger)

	// ---- Stale recovery at startup and on a timer, then workers ----
	sweepStale := func(ctx context.Context) (int, error) {
		return recoverStale(ctx, processor, redisClient, logger)
	}
	if _, err := sweepStale(ctx); err != nil {
		logger.Error().Err(err).Msg("stale recovery failed")
	}
	staleSweeper := scheduler.NewScheduler("stale-jobs", cfg.Worker.StaleAfter/2, sweepStale, logger)
	staleSweeper.Start(ctx)
	defer staleSweeper.Stop()

	workers := worker.NewPool(cfg.Worker.Workers, logger)
	workers.Start(ctx)
	go processor.Start(ctx, workers)

	// ---- HTTP ----
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if cfg.Runtime.Dev {
		if cfg.Auth.JWTSecret == "" {
			verifier = auth.NewJWTVerifier("dev-secret", cfg.Auth.Issuer, cfg.Auth.Audience)
		}
		if tok, err := verifier.Mint(adapter.Principal{ID: "dev-user", Name: "Dev User"}, 24*time.Hour); err == nil {
			logger.Info().Str("token", tok).Msg("dev bearer token for owner dev-user")
		}
	}

	srv := api.NewServer(api.Deps{
		Jobs:           jobUC,
		Feeds:          feedUC,
		Podcasts:       podcasts.NewDirectory(cfg.Podcasts.Feeds, httpClient, cfg.Podcasts.CacheTTL, logger),
		Verifier:       verifier,
		Health:         healthCheck(pool, redisClient),
		MediaDir:       mediaDir,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	// workers observe ctx cancellation and record interrupted jobs before exiting
	workers.Stop()
	logger.Info().Msg("stopped")
	return nil
}

func buildSummarizer(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.Summarizer, error) {
	var providers []aiAdapters.Completer
	if cfg.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIConfig{
			APIKey:        cfg.OpenAIKey,
			BaseURL:       cfg.OpenAIBaseURL,
			Model:         cfg.DefaultModel,
			MaxTokens:     cfg.MaxOutputTokens,
			AzureEndpoint: cfg.AzureEndpoint,
			AzureAPIVer:   cfg.AzureAPIVersion,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, aiAdapters.NewLimitedCompleter(oa, cfg.ConcurrentLimit))
	}
	if cfg.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.GeminiModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, err
		}
		providers = append(providers, aiAdapters.NewLimitedCompleter(gm, cfg.ConcurrentLimit))
	}
	if strings.EqualFold(cfg.Provider, "noop") || len(providers) == 0 {
		logger.Warn().Msg("summarizer: noop, summaries fall back to the article title")
		return aiAdapters.NewNoopSummarizer(), nil
	}

	budget, err := aiAdapters.NewTokenBudget(cfg.DefaultModel, cfg.PromptTokens)
	if err != nil {
		logger.Warn().Err(err).Msg("tokenizer unavailable; truncating by characters")
	}
	llm := aiAdapters.NewMultiCompleter(cfg.Provider, providers, logger)
	logger.Info().Str("provider", cfg.Provider).Int("providers", len(providers)).Msg("summarizer ready")
	return aiAdapters.NewSummarizer(llm, budget, logger), nil
}

func buildSynthesizer(cfg config.SpeechConfig, logger *zerolog.Logger) (adapter.SpeechSynthesizer, error) {
	var engine adapter.SpeechEngine
	if strings.EqualFold(cfg.Provider, "noop") {
		logger.Warn().Msg("speech: noop engine, audio is placeholder bytes")
		engine = speech.NewNoopEngine()
	} else {
		az, err := speech.NewAzureEngine(cfg.Key, cfg.Region, cfg.Endpoint, &http.Client{})
		if err != nil {
			return nil, err
		}
		engine = az
	}
	return speech.NewSynthesizer(engine, voiceFrom(cfg), cfg.Timeout, logger), nil
}

// buildStore returns the artifact store and, for local storage, the directory
// to serve under /media/.
func buildStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.ArtifactStore, string, error) {
	opts := []storage.Option{storage.WithRetry(cfg.Storage.Attempts, cfg.Storage.BackoffBase)}
	if strings.EqualFold(cfg.Storage.Provider, "local") {
		base := strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/media"
		bucket := storage.NewLocalBucket(cfg.Storage.LocalDir, base)
		logger.Info().Str("dir", bucket.Dir()).Msg("storage: local directory")
		return storage.NewArtifactStore(bucket, logger, opts...), bucket.Dir(), nil
	}
	bucket, err := storage.NewGCSBucket(ctx, storage.GCSConfig{
		Bucket:          cfg.Storage.Bucket,
		CredentialsFile: cfg.Storage.CredentialsFile,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		PublicACL:       cfg.Storage.PublicACL,
	})
	if err != nil {
		return nil, "", err
	}
	logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("storage: gcs")
	return storage.NewArtifactStore(bucket, logger, opts...), "", nil
}

func buildNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) (adapter.JobNotifier, error) {
	if cfg.TelegramToken == "" || len(cfg.ChatIDs) == 0 {
		return tele.NewNoopNotifier(logger), nil
	}
	return tele.NewNotifier(cfg.TelegramToken, cfg.ChatIDs, cfg.OnlyFailures, logger)
}

func voiceFrom(cfg config.SpeechConfig) adapter.Voice {
	return adapter.Voice{VoiceID: cfg.Voice, Language: cfg.Language, Pitch: cfg.Pitch, Rate: cfg.Rate}
}

// recoverStale fails jobs stuck in processing past worker.stale_after. With
// redis configured only one replica sweeps at a time.
func recoverStale(ctx context.Context, p *worker.ConversionProcessor, client red.RedisClient, logger *zerolog.Logger) (int, error) {
	if client != nil {
		locker := red.NewLocker(client)
		token, err := locker.TryLock(ctx, red.StaleRecoveryKey, time.Minute)
		if errors.Is(err, red.ErrLockHeld) {
			logger.Debug().Msg("stale recovery running elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer func() { _ = locker.Unlock(context.Background(), red.StaleRecoveryKey, token) }()
	}
	return p.RecoverStale(ctx)
}

func healthCheck(pool *pgxpool.Pool, client red.RedisClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
		}
		if client != nil {
			return client.Ping(ctx)
		}
		return nil
	}
}
