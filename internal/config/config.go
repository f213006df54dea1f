package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"exam-engine"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Database  Database
	Redis     Redis
	Exam      Exam
	Questions Questions
	AI        AI
}

// Database selects the SQL backend for results, events and the curated bank.
type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"postgres"`
	DSN    string `env:"DB_DSN,notEmpty"`
}

// Redis holds cache + pub/sub configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Exam groups session and scoring defaults.
type Exam struct {
	Profile       string        `env:"EXAM_PROFILE" envDefault:"sat"`
	MinScale      int           `env:"EXAM_MIN_SCALE" envDefault:"200"`
	MaxScale      int           `env:"EXAM_MAX_SCALE" envDefault:"800"`
	CompositeRule string        `env:"EXAM_COMPOSITE_RULE" envDefault:"reading|writing,math"`
	TickInterval  time.Duration `env:"EXAM_TICK_INTERVAL" envDefault:"1s"`
	ReportTimeout time.Duration `env:"EXAM_REPORT_TIMEOUT" envDefault:"10s"`
	SessionTTL    time.Duration `env:"EXAM_SESSION_TTL" envDefault:"30m"`
	ReapInterval  time.Duration `env:"EXAM_REAP_INTERVAL" envDefault:"1m"`
	SnapshotTTL   time.Duration `env:"EXAM_SNAPSHOT_TTL" envDefault:"6h"`
	EventsChannel string        `env:"EXAM_EVENTS_CHANNEL" envDefault:"exam:events"`
}

// Questions configures the question source chain.
type Questions struct {
	FetchTimeout time.Duration `env:"QUESTION_FETCH_TIMEOUT" envDefault:"20s"`
	CacheTTL     time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"10m"`
	PrefetchSize int           `env:"QUESTION_PREFETCH_QUEUE" envDefault:"32"`
}

// AI configures the question generator used when the curated bank runs short.
type AI struct {
	Provider     string        `env:"AI_PROVIDER" envDefault:"none"`
	GeneratorURL string        `env:"AI_GENERATOR_URL" envDefault:""`
	GeneratorKey string        `env:"AI_GENERATOR_API_KEY" envDefault:""`
	GeminiKey    string        `env:"GEMINI_API_KEY" envDefault:""`
	GeminiModel  string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	HTTPTimeout  time.Duration `env:"AI_HTTP_TIMEOUT" envDefault:"15s"`
}

// Strict reports whether invariant violations should panic.
func (a *App) Strict() bool {
	return a.Env == "development" || a.Env == "test"
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Exam.MaxScale <= cfg.Exam.MinScale {
		return nil, fmt.Errorf("EXAM_MAX_SCALE (%d) must exceed EXAM_MIN_SCALE (%d)", cfg.Exam.MaxScale, cfg.Exam.MinScale)
	}
	if cfg.Exam.TickInterval <= 0 {
		return nil, fmt.Errorf("EXAM_TICK_INTERVAL must be positive")
	}
	return cfg, nil
}
