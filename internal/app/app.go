package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/config"
	"github.com/gokatarajesh/exam-engine/internal/db"
	"github.com/gokatarajesh/exam-engine/internal/db/repository"
	"github.com/gokatarajesh/exam-engine/internal/exam"
	"github.com/gokatarajesh/exam-engine/internal/exam/scoring"
	"github.com/gokatarajesh/exam-engine/internal/logging"
	"github.com/gokatarajesh/exam-engine/internal/question"
	"github.com/gokatarajesh/exam-engine/internal/question/ai"
	"github.com/gokatarajesh/exam-engine/internal/report"
	"github.com/gokatarajesh/exam-engine/internal/server"
	ws "github.com/gokatarajesh/exam-engine/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	db    *sql.DB
	redis *redis.Client
	http  *http.Server

	manager   *exam.Manager
	prefetch  *question.FetcherWorker
	bgCancels []context.CancelFunc
}

// New bootstraps config, logger, the SQL store, Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	driver, err := db.ParseDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.Open(ctx, driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if err := db.Migrate(ctx, sqlDB, driver, nil); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	queries := repository.New(sqlDB)
	questionRepo := repository.NewQuestionRepository(queries)
	resultRepo := repository.NewResultRepository(queries)
	eventRepo := repository.NewEventRepository(queries)

	if _, err := catalog.Lookup(cfg.Exam.Profile); err != nil {
		return nil, fmt.Errorf("EXAM_PROFILE: %w", err)
	}
	rule, err := scoring.ParseCompositeRule(cfg.Exam.CompositeRule)
	if err != nil {
		return nil, fmt.Errorf("EXAM_COMPOSITE_RULE: %w", err)
	}
	scorer := scoring.NewEngine(scoring.Config{
		MinScale:  cfg.Exam.MinScale,
		MaxScale:  cfg.Exam.MaxScale,
		Composite: rule,
	})

	generator, err := newGenerator(ctx, cfg.AI, logger)
	if err != nil {
		return nil, err
	}
	questionSvc := question.NewService(question.ServiceOptions{
		Cache:     question.NewCache(redisClient, cfg.Questions.CacheTTL),
		Bank:      questionRepo,
		Generator: generator,
		Logger:    logger,
	})
	prefetch := question.NewFetcherWorker(questionSvc, cfg.Questions.PrefetchSize, logger, cfg.Questions.FetchTimeout)

	metrics := exam.NewMetrics(prometheus.DefaultRegisterer)
	wsHub := ws.NewHub(logger)
	wsHandler := exam.NewHandler(nil, wsHub, logger)

	snapshots := report.NewSnapshotStore(redisClient, cfg.Exam.SnapshotTTL, logger)
	publisher := report.NewPublisher(redisClient, cfg.Exam.EventsChannel, logger)
	recorder := report.NewRecorder(resultRepo, eventRepo, logger)
	// Persist first; the websocket push and notifications follow.
	sinks := report.NewFanout(logger).
		Observe(wsHandler, snapshots, publisher, recorder).
		ReportTo(recorder, wsHandler, publisher)

	manager := exam.NewManager(exam.ManagerOptions{
		DefaultProfile: cfg.Exam.Profile,
		Source:         questionSvc,
		Scorer:         scorer,
		Prefetcher:     prefetch,
		Locker:         exam.NewRedisLocker(redisClient),
		Observer:       sinks,
		Reporter:       sinks,
		Metrics:        metrics,
		TickInterval:   cfg.Exam.TickInterval,
		FetchTimeout:   cfg.Questions.FetchTimeout,
		ReportTimeout:  cfg.Exam.ReportTimeout,
		TTL:            cfg.Exam.SessionTTL,
		Strict:         cfg.Strict(),
	}, logger)
	wsHandler.SetManager(manager)

	httpHandlers := exam.NewHTTPHandlers(manager, resultRepo, logger).WithMirror(snapshots)
	apiServer := server.NewHTTPServer(cfg, logger, sqlDB, redisClient, prometheus.DefaultGatherer, server.ExamRoutes{
		Catalog:   httpHandlers.GetCatalog,
		Create:    httpHandlers.CreateExam,
		Get:       httpHandlers.GetExam,
		Abandon:   httpHandlers.AbandonExam,
		WebSocket: wsHandler.HandleWebSocket,
	})

	logger.Info().
		Str("driver", string(driver)).
		Str("profile", cfg.Exam.Profile).
		Str("composite_rule", rule.String()).
		Str("ai_provider", cfg.AI.Provider).
		Msg("exam engine wired")

	return &Application{
		cfg:       cfg,
		logger:    logger,
		db:        sqlDB,
		redis:     redisClient,
		http:      apiServer,
		manager:   manager,
		prefetch:  prefetch,
		bgCancels: make([]context.CancelFunc, 0, 1),
	}, nil
}

func newGenerator(ctx context.Context, cfg config.AI, logger zerolog.Logger) (question.Generator, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "http":
		if cfg.GeneratorURL == "" {
			return nil, fmt.Errorf("AI_GENERATOR_URL must be set for the http provider")
		}
		return ai.NewGenerator(ai.Config{
			GeneratorURL: cfg.GeneratorURL,
			GeneratorKey: cfg.GeneratorKey,
			Timeout:      cfg.HTTPTimeout,
		}, logger), nil
	case "gemini":
		gen, err := ai.NewGeminiGenerator(ctx, ai.GeminiConfig{APIKey: cfg.GeminiKey, Model: cfg.GeminiModel}, logger)
		if err != nil {
			return nil, fmt.Errorf("init gemini generator: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}
	a.prefetch.Stop()

	// Unfinished sessions are abandoned; their locks are released while
	// Redis is still reachable.
	a.manager.Close(shutdownCtx)

	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("database shutdown error")
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	go a.prefetch.Run()

	if interval := a.cfg.Exam.ReapInterval; interval > 0 {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go a.manager.RunReaper(bgCtx, interval)
	}
}
