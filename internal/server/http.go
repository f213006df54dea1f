package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/config"
	"github.com/gokatarajesh/exam-engine/internal/logging"
)

// WSUpgrader handles WebSocket upgrades.
var WSUpgrader = websocket.Upgrader{
	// Candidates connect from the exam front end, which may be served from
	// another origin.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ExamRoutes are the exam endpoints. Nil handlers answer 501.
type ExamRoutes struct {
	Catalog   http.HandlerFunc
	Create    http.HandlerFunc
	Get       http.HandlerFunc
	Abandon   http.HandlerFunc
	WebSocket http.HandlerFunc
}

// NewHTTPServer wires base routes (health, metrics) and the exam API.
// db and redis may be nil when the service runs without them.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, db *sql.DB, redis *redis.Client, gatherer prometheus.Gatherer, routes ExamRoutes) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if err := pingDependencies(ctx, db, redis); err != nil {
			l := logging.FromContext(ctx)
			l.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	mux.HandleFunc("GET /v1/catalog", orNotImplemented(routes.Catalog))
	mux.HandleFunc("POST /v1/exams", orNotImplemented(routes.Create))
	mux.HandleFunc("GET /v1/exams/{id}", orNotImplemented(routes.Get))
	mux.HandleFunc("DELETE /v1/exams/{id}", orNotImplemented(routes.Abandon))
	mux.HandleFunc("/ws/exams", orNotImplemented(routes.WebSocket))

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(logger, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "handler not configured", http.StatusNotImplemented)
	}
}

// requestLogger attaches the service logger to every request context.
func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := logger.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		next.ServeHTTP(w, r.WithContext(logging.IntoContext(r.Context(), reqLogger)))
		reqLogger.Debug().Dur("elapsed", time.Since(start)).Msg("request served")
	})
}

func pingDependencies(ctx context.Context, db *sql.DB, redis *redis.Client) error {
	if db != nil {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
	}
	if redis != nil {
		if err := redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
