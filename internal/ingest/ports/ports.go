// Package ports defines shared interfaces for the ingest module.
// Interfaces are placed here when consumed by multiple packages to avoid
// duplication and to keep the pipeline mockable.
package ports

import (
	"context"
	"time"

	"amlwatch/internal/domain"
)

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks

// EntityStore is the single persistence surface for canonical entities. The
// store must enforce a uniqueness constraint per (listSource, entryId):
// Create for an already-stored natural key fails with a conflict error so the
// reconciler can retry as an update.
type EntityStore interface {
	// FindByNaturalKey returns the entity holding a sanction record with the
	// given key, or nil when no such entity exists.
	FindByNaturalKey(ctx context.Context, key domain.NaturalKey) (*domain.Entity, error)

	// Create persists a new entity and claims its natural keys atomically.
	Create(ctx context.Context, entity *domain.Entity) error

	// Update overwrites an existing entity and claims any natural keys added
	// by the merge.
	Update(ctx context.Context, entity *domain.Entity) error

	// Count returns the total number of stored entities.
	Count(ctx context.Context) (int64, error)

	// CountByType aggregates entity counts per type for the read-serving API.
	CountByType(ctx context.Context) (map[domain.EntityType]int64, error)
}

// FreshnessCache gates re-ingestion. Backend failures degrade to "absent" /
// "not fresh" rather than propagating: a broken cache may cause redundant
// ingestion, never incorrect ingestion.
type FreshnessCache interface {
	// Put stores value under key with an absolute expiry derived from ttl.
	// Replace-only semantics: an existing entry is overwritten whole.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// IsFresh reports whether an entry exists and its write timestamp is
	// within maxAge of now, independent of the entry's own TTL.
	IsFresh(ctx context.Context, key string, maxAge time.Duration) bool

	// Invalidate removes an entry unconditionally.
	Invalidate(ctx context.Context, key string) error
}

// Fetcher retrieves raw feed content. Bytes in, bytes out; no interpretation
// and no retry (retry policy belongs to the scheduler's cadence).
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source is one sanctions list: where to fetch it and how to decode its raw
// document into canonical entities. Additional lists (EU, UN, UK) plug in by
// supplying a new parser/mapper pair behind this interface.
type Source interface {
	Name() string
	URL() string

	// Decode parses the raw document and normalizes every usable entry.
	// Per-record normalization failures are skipped and counted; a document
	// that fails to parse at all returns a malformed-feed error.
	Decode(raw []byte, now time.Time) (entities []*domain.Entity, skipped int, err error)
}

// RunSummary is the outcome of one ingestion run for a single source.
type RunSummary struct {
	Source         string        `json:"source"`
	Skipped        bool          `json:"skipped"`
	Parsed         int           `json:"parsed"`
	Created        int           `json:"created"`
	Updated        int           `json:"updated"`
	Failed         int           `json:"failed"`
	SkippedRecords int           `json:"skipped_records"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Runner executes one complete fetch→parse→normalize→reconcile cycle.
type Runner interface {
	Run(ctx context.Context, source Source) (RunSummary, error)
}
