// Package reconciler folds normalized feed entities into the canonical store.
// An incoming entity either creates a new record or merges into the one
// already holding its natural key. The store's uniqueness constraint is the
// arbiter under concurrency: a create that loses the race surfaces as a
// conflict and is retried as a merge.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"amlwatch/internal/domain"
	"amlwatch/internal/ingest/metrics"
	"amlwatch/internal/ingest/ports"
	dErrors "amlwatch/pkg/domain-errors"
)

// Action describes what the reconciler did with one incoming entity.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// BatchResult aggregates per-record outcomes of one batch.
type BatchResult struct {
	Created int
	Updated int
	Failed  int
}

type Engine struct {
	store   ports.EntityStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int

	now func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithWorkers bounds batch concurrency. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

func New(store ports.EntityStore, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		logger:  slog.Default(),
		workers: 4,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Reconcile stores one incoming entity, creating or merging as needed.
// The incoming entity is expected to carry exactly one sanction record and no
// ID; the reconciler owns identity assignment.
func (e *Engine) Reconcile(ctx context.Context, incoming *domain.Entity) (Action, error) {
	key := incoming.PrimaryKey()
	if key.ListSource == "" || key.EntryID == "" {
		return "", dErrors.New(dErrors.CodeRecordInvalid, "entity has no natural key")
	}

	existing, err := e.store.FindByNaturalKey(ctx, key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "lookup by natural key")
	}
	if existing != nil {
		if err := e.merge(ctx, existing, incoming); err != nil {
			return "", err
		}
		return ActionUpdated, nil
	}

	now := e.now().UTC()
	incoming.ID = uuid.NewString()
	incoming.CreatedAt = now
	incoming.LastUpdated = now

	err = e.store.Create(ctx, incoming)
	if err == nil {
		return ActionCreated, nil
	}
	if !dErrors.IsCode(err, dErrors.CodeConflict) {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create entity")
	}

	// Lost a create race for this key. Someone else holds it now, so fold
	// into their record instead.
	existing, ferr := e.store.FindByNaturalKey(ctx, key)
	if ferr != nil {
		return "", dErrors.Wrap(ferr, dErrors.CodeInternal, "re-lookup after create conflict")
	}
	if existing == nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create conflicted but key is unclaimed")
	}
	if err := e.merge(ctx, existing, incoming); err != nil {
		return "", err
	}
	return ActionUpdated, nil
}

// ReconcileBatch processes a slice of entities with bounded concurrency.
// Individual failures are logged and counted; they never abort the batch.
func (e *Engine) ReconcileBatch(ctx context.Context, source string, entities []*domain.Entity) (BatchResult, error) {
	var (
		mu     sync.Mutex
		result BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, entity := range entities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			action, err := e.Reconcile(gctx, entity)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				e.logger.Warn("reconciliation failed for record",
					slog.String("source", source),
					slog.String("entry_id", entity.PrimaryKey().EntryID),
					slog.String("error", err.Error()))
			case action == ActionCreated:
				result.Created++
			default:
				result.Updated++
			}
			return nil
		})
	}

	err := g.Wait()

	e.metrics.AddRecords(source, string(ActionCreated), result.Created)
	e.metrics.AddRecords(source, string(ActionUpdated), result.Updated)
	e.metrics.AddRecords(source, "failed", result.Failed)
	return result, err
}

// merge folds incoming into existing and persists the result. Feed-derived
// fields take the incoming values; accumulated state (identity, creation
// time, relationships, first-seen dates) stays with the existing record.
func (e *Engine) merge(ctx context.Context, existing, incoming *domain.Entity) error {
	existing.Name = incoming.Name
	existing.Type = incoming.Type
	existing.AlternateNames = incoming.AlternateNames
	existing.Identifiers = incoming.Identifiers
	existing.Addresses = incoming.Addresses
	existing.Biographic = incoming.Biographic
	existing.Sanctions = mergeSanctions(existing.Sanctions, incoming.Sanctions)
	existing.RecomputeRisk()
	existing.LastUpdated = e.now().UTC()

	if err := e.store.Update(ctx, existing); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update entity")
	}
	return nil
}

// mergeSanctions unions the two sets by natural key. An incoming record
// replaces the stored one except for DateAdded, which keeps the first time
// the entry was ever seen.
func mergeSanctions(existing, incoming []domain.SanctionRecord) []domain.SanctionRecord {
	out := make([]domain.SanctionRecord, len(existing))
	copy(out, existing)

	index := make(map[domain.NaturalKey]int, len(out))
	for i, s := range out {
		index[s.Key()] = i
	}

	for _, in := range incoming {
		if i, ok := index[in.Key()]; ok {
			firstSeen := out[i].DateAdded
			out[i] = in
			out[i].DateAdded = firstSeen
			continue
		}
		index[in.Key()] = len(out)
		out = append(out, in)
	}
	return out
}
