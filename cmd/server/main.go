// Command server runs the sanctions ingestion service: scheduled feed
// ingestion, the control API, and the metrics endpoint. Wiring lives here;
// the pipeline itself is in internal packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"amlwatch/internal/audit"
	"amlwatch/internal/ingest"
	ingestconfig "amlwatch/internal/ingest/config"
	"amlwatch/internal/ingest/fetcher"
	"amlwatch/internal/ingest/handler"
	"amlwatch/internal/ingest/metrics"
	"amlwatch/internal/ingest/ofac"
	"amlwatch/internal/ingest/ports"
	"amlwatch/internal/ingest/reconciler"
	"amlwatch/internal/ingest/scheduler"
	entitystore "amlwatch/internal/ingest/store/entity"
	"amlwatch/internal/ingest/store/freshness"
	"amlwatch/internal/platform/config"
	"amlwatch/internal/platform/httpserver"
	"amlwatch/internal/platform/kafka"
	"amlwatch/internal/platform/logger"
	"amlwatch/internal/platform/redis"
	"amlwatch/pkg/platform/httputil"
)

const outboxDrainInterval = 5 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestCfg := ingestconfig.FromEnv()

	// Persistence. Without a DSN the service runs fully in memory, which is
	// enough for local development against a live feed.
	var (
		db          *sql.DB
		entityStore ports.EntityStore
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("failed to ping postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		entityStore = entitystore.NewPostgres(db)
		log.Info("using postgres entity store")
	} else {
		entityStore = entitystore.New()
		log.Warn("POSTGRES_DSN not set, using in-memory entity store")
	}

	var cache ports.FreshnessCache
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = freshness.NewRedis(redisClient.Client, freshness.WithLogger(log))
		log.Info("using redis freshness cache")
	} else {
		cache = freshness.NewInMemory()
		log.Warn("REDIS_URL not set, using in-memory freshness cache")
	}

	// Audit trail: channel worker persisting run events, plus an optional
	// outbox publisher when both postgres and a broker are configured.
	inbox := make(chan audit.Event, 256)
	var auditStore audit.Store
	var outbox *audit.PostgresStore
	if db != nil {
		outbox = audit.NewPostgres(db)
		auditStore = outbox
	} else {
		auditStore = audit.NewInMemoryStore()
	}
	auditWorker := audit.NewWorker(auditStore, inbox, log)
	go func() {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", slog.String("error", err.Error()))
		}
	}()

	if len(cfg.KafkaBrokers) > 0 && outbox != nil {
		producer, err := kafka.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("failed to start kafka producer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer producer.Close()
		publisher := audit.NewKafkaPublisher(outbox, producer, outboxDrainInterval, log)
		go func() {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox publisher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	// Pipeline.
	ingestMetrics := metrics.New()
	engine := reconciler.New(entityStore,
		reconciler.WithLogger(log),
		reconciler.WithMetrics(ingestMetrics),
		reconciler.WithWorkers(ingestCfg.ReconcileWorkers),
	)
	runner := ingest.NewRunner(
		fetcher.New(fetcher.WithTimeout(ingestCfg.FetchTimeout)),
		cache,
		engine,
		ingestCfg,
		ingest.WithLogger(log),
		ingest.WithMetrics(ingestMetrics),
		ingest.WithAudit(audit.NewPublisher(inbox, log)),
	)
	sched := scheduler.New(runner, ingestCfg, scheduler.WithLogger(log))
	sched.Register(ofac.NewSource(ofac.WithLogger(log)))

	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped", slog.String("error", err.Error()))
		}
	}()

	// HTTP surface.
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	handler.New(sched, entityStore, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("starting amlwatch", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
