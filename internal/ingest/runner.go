// Package ingest orchestrates one full ingestion cycle per source: freshness
// gate, fetch, decode, reconcile, marker write.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"amlwatch/internal/audit"
	"amlwatch/internal/domain"
	ingestconfig "amlwatch/internal/ingest/config"
	"amlwatch/internal/ingest/metrics"
	"amlwatch/internal/ingest/ports"
	"amlwatch/internal/ingest/reconciler"
	dErrors "amlwatch/pkg/domain-errors"
)

const markerKeySuffix = ":ingestion-marker"

// marker is the freshness payload recording the last successful run.
type marker struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Reconciler folds a batch of normalized entities into the store.
type Reconciler interface {
	ReconcileBatch(ctx context.Context, source string, entities []*domain.Entity) (reconciler.BatchResult, error)
}

// Runner executes ingestion cycles. A cycle that finds a fresh marker is a
// recorded no-op: the fetch is never attempted.
type Runner struct {
	fetcher    ports.Fetcher
	cache      ports.FreshnessCache
	reconciler Reconciler
	cfg        *ingestconfig.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      *audit.Publisher

	now func() time.Time
}

type RunnerOption func(*Runner)

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithAudit(p *audit.Publisher) RunnerOption {
	return func(r *Runner) {
		r.audit = p
	}
}

func NewRunner(fetcher ports.Fetcher, cache ports.FreshnessCache, rec Reconciler, cfg *ingestconfig.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		fetcher:    fetcher,
		cache:      cache,
		reconciler: rec,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run performs one ingestion cycle for the source. The returned summary is
// valid even when err is non-nil.
func (r *Runner) Run(ctx context.Context, source ports.Source) (ports.RunSummary, error) {
	name := source.Name()
	tracer := otel.Tracer("amlwatch/ingest")
	ctx, span := tracer.Start(ctx, "ingest.run")
	span.SetAttributes(attribute.String("source", name))
	defer span.End()

	started := r.now().UTC()
	summary := ports.RunSummary{Source: name, StartedAt: started}
	logger := r.logger.With(slog.String("source", name))

	markerKey := name + markerKeySuffix
	if r.cache.IsFresh(ctx, markerKey, r.cfg.FreshnessMaxAge) {
		summary.Skipped = true
		summary.Duration = r.now().UTC().Sub(started)
		logger.Info("feed is fresh, skipping ingestion")
		span.SetAttributes(attribute.Bool("skipped", true))
		r.metrics.ObserveRun(name, "skipped", summary.Duration)
		r.audit.Emit(audit.Event{Source: name, Action: audit.ActionRunSkippedFresh})
		return summary, nil
	}

	logger.Info("starting ingestion run")
	r.audit.Emit(audit.Event{Source: name, Action: audit.ActionRunStarted})

	fetchStarted := r.now()
	raw, err := r.fetcher.Fetch(ctx, source.URL())
	r.metrics.ObserveFetch(name, time.Since(fetchStarted))
	if err != nil {
		return r.fail(span, logger, summary, started, err)
	}
	logger.Info("feed downloaded", slog.Int("bytes", len(raw)))

	entities, skippedRecords, err := source.Decode(raw, started)
	if err != nil {
		return r.fail(span, logger, summary, started, err)
	}
	summary.Parsed = len(entities)
	summary.SkippedRecords = skippedRecords

	result, err := r.reconciler.ReconcileBatch(ctx, name, entities)
	summary.Created = result.Created
	summary.Updated = result.Updated
	summary.Failed = result.Failed
	if err != nil {
		return r.fail(span, logger, summary, started, dErrors.Wrap(err, dErrors.CodeInternal, "reconcile batch"))
	}

	r.writeMarker(ctx, logger, markerKey, summary.Parsed)

	summary.Duration = r.now().UTC().Sub(started)
	logger.Info("ingestion run completed",
		slog.Int("parsed", summary.Parsed),
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped_records", summary.SkippedRecords),
		slog.Duration("duration", summary.Duration))
	r.metrics.ObserveRun(name, "completed", summary.Duration)
	r.audit.Emit(audit.Event{
		Source: name,
		Action: audit.ActionRunCompleted,
		Counts: &audit.RunCounts{
			Parsed:         summary.Parsed,
			Created:        summary.Created,
			Updated:        summary.Updated,
			Failed:         summary.Failed,
			SkippedRecords: summary.SkippedRecords,
		},
	})
	return summary, nil
}

// writeMarker records a successful run. A cache write failure costs one
// redundant run later, so it is logged and swallowed.
func (r *Runner) writeMarker(ctx context.Context, logger *slog.Logger, key string, count int) {
	payload, err := json.Marshal(marker{Timestamp: r.now().UTC(), Count: count})
	if err != nil {
		logger.Warn("failed to encode freshness marker", slog.String("error", err.Error()))
		return
	}
	if err := r.cache.Put(ctx, key, payload, r.cfg.MarkerTTL); err != nil {
		logger.Warn("failed to write freshness marker", slog.String("error", err.Error()))
	}
}

func (r *Runner) fail(span trace.Span, logger *slog.Logger, summary ports.RunSummary, started time.Time, err error) (ports.RunSummary, error) {
	summary.Duration = r.now().UTC().Sub(started)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	logger.Error("ingestion run failed", slog.String("error", err.Error()))
	r.metrics.ObserveRun(summary.Source, "failed", summary.Duration)
	r.audit.Emit(audit.Event{Source: summary.Source, Action: audit.ActionRunFailed, Reason: err.Error()})
	return summary, err
}
