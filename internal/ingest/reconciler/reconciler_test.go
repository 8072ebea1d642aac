package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amlwatch/internal/domain"
	entitystore "amlwatch/internal/ingest/store/entity"
	dErrors "amlwatch/pkg/domain-errors"
)

func incomingEntity(entryID string, programs ...string) *domain.Entity {
	if len(programs) == 0 {
		programs = []string{"SDGT"}
	}
	e := &domain.Entity{
		Name:           "Party " + entryID,
		Type:           domain.TypeIndividual,
		AlternateNames: []string{"Alias " + entryID},
		Sanctions: []domain.SanctionRecord{{
			ListSource: "OFAC",
			ListName:   "SDN",
			EntryID:    entryID,
			DateAdded:  time.Now().UTC(),
			Status:     domain.StatusActive,
			Programs:   programs,
		}},
	}
	e.RecomputeRisk()
	return e
}

func TestEngine_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown key creates a new entity with an assigned id", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store)

		action, err := engine.Reconcile(ctx, incomingEntity("1001"))
		require.NoError(t, err)
		assert.Equal(t, ActionCreated, action)

		got, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "1001"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("known key merges instead of creating", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store)

		_, err := engine.Reconcile(ctx, incomingEntity("1001"))
		require.NoError(t, err)

		updated := incomingEntity("1001", "IRAN-WEAPONS")
		updated.Name = "Renamed Party"
		action, err := engine.Reconcile(ctx, updated)
		require.NoError(t, err)
		assert.Equal(t, ActionUpdated, action)

		got, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "1001"})
		require.NoError(t, err)
		assert.Equal(t, "Renamed Party", got.Name)
		assert.Equal(t, 80, got.RiskScore)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("merge keeps identity, creation time and first-seen date", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store)

		first := incomingEntity("2001")
		_, err := engine.Reconcile(ctx, first)
		require.NoError(t, err)

		stored, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "2001"})
		require.NoError(t, err)
		originalID := stored.ID
		originalCreated := stored.CreatedAt
		originalDateAdded := stored.Sanctions[0].DateAdded

		later := incomingEntity("2001")
		later.Sanctions[0].DateAdded = originalDateAdded.Add(48 * time.Hour)
		later.Sanctions[0].Reason = "redesignated"
		_, err = engine.Reconcile(ctx, later)
		require.NoError(t, err)

		got, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "2001"})
		require.NoError(t, err)
		assert.Equal(t, originalID, got.ID)
		assert.Equal(t, originalCreated, got.CreatedAt)
		assert.Equal(t, originalDateAdded, got.Sanctions[0].DateAdded, "first-seen date survives re-ingestion")
		assert.Equal(t, "redesignated", got.Sanctions[0].Reason, "other record fields take the incoming values")
	})

	t.Run("merge keeps existing relationships", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store)

		_, err := engine.Reconcile(ctx, incomingEntity("3001"))
		require.NoError(t, err)

		stored, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "3001"})
		require.NoError(t, err)
		stored.Relationships = []domain.Relationship{{RelatedEntityID: "other", RelationType: "linked-to"}}
		require.NoError(t, store.Update(ctx, stored))

		_, err = engine.Reconcile(ctx, incomingEntity("3001"))
		require.NoError(t, err)

		got, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "3001"})
		require.NoError(t, err)
		require.Len(t, got.Relationships, 1)
		assert.Equal(t, "other", got.Relationships[0].RelatedEntityID)
	})

	t.Run("merge unions sanction records from another list entry", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store)

		_, err := engine.Reconcile(ctx, incomingEntity("4001"))
		require.NoError(t, err)

		stored, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "4001"})
		require.NoError(t, err)
		stored.Sanctions = append(stored.Sanctions, domain.SanctionRecord{
			ListSource: "EU",
			ListName:   "Consolidated",
			EntryID:    "eu-17",
			DateAdded:  time.Now().UTC(),
			Status:     domain.StatusActive,
			Programs:   []string{"CYBER2"},
		})
		require.NoError(t, store.Update(ctx, stored))

		_, err = engine.Reconcile(ctx, incomingEntity("4001"))
		require.NoError(t, err)

		got, err := store.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "4001"})
		require.NoError(t, err)
		require.Len(t, got.Sanctions, 2)
		assert.Equal(t, []string{"SDGT", "CYBER2"}, got.Programs())
		assert.Equal(t, 65, got.RiskScore, "risk reflects programs across all records")
	})

	t.Run("entity without a natural key is rejected", func(t *testing.T) {
		engine := New(entitystore.New())
		_, err := engine.Reconcile(ctx, &domain.Entity{Name: "No Key"})
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeRecordInvalid, dErrors.CodeOf(err))
	})
}

// conflictingStore forces the lost-create race: the first lookup misses, the
// create conflicts, and the second lookup finds the winner's entity.
type conflictingStore struct {
	*entitystore.InMemoryStore
	mu      sync.Mutex
	tripped bool
	winner  *domain.Entity
}

func (s *conflictingStore) FindByNaturalKey(ctx context.Context, key domain.NaturalKey) (*domain.Entity, error) {
	s.mu.Lock()
	tripped := s.tripped
	s.mu.Unlock()
	if !tripped {
		return nil, nil
	}
	return s.InMemoryStore.FindByNaturalKey(ctx, key)
}

func (s *conflictingStore) Create(ctx context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tripped {
		s.tripped = true
		if err := s.InMemoryStore.Create(ctx, s.winner); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeConflict, "natural key already claimed")
	}
	return s.InMemoryStore.Create(ctx, entity)
}

func TestEngine_Reconcile_CreateConflictRetriesAsUpdate(t *testing.T) {
	ctx := context.Background()

	winner := incomingEntity("5001")
	winner.ID = "winner-id"
	winner.Name = "Winner"
	winner.CreatedAt = time.Now().UTC()
	winner.LastUpdated = winner.CreatedAt

	store := &conflictingStore{InMemoryStore: entitystore.New(), winner: winner}
	engine := New(store)

	loser := incomingEntity("5001")
	loser.Name = "Loser Revision"
	action, err := engine.Reconcile(ctx, loser)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, action)

	got, err := store.InMemoryStore.FindByNaturalKey(ctx, domain.NaturalKey{ListSource: "OFAC", EntryID: "5001"})
	require.NoError(t, err)
	assert.Equal(t, "winner-id", got.ID, "the race winner keeps its identity")
	assert.Equal(t, "Loser Revision", got.Name, "the retried update still lands")
}

func TestEngine_ReconcileBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("counts created, updated and failed", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store, WithWorkers(2))

		_, err := engine.Reconcile(ctx, incomingEntity("6001"))
		require.NoError(t, err)

		batch := []*domain.Entity{
			incomingEntity("6001"),
			incomingEntity("6002"),
			incomingEntity("6003"),
			{Name: "No Key"},
		}
		result, err := engine.ReconcileBatch(ctx, "ofac-sdn", batch)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Created: 2, Updated: 1, Failed: 1}, result)
	})

	t.Run("duplicate keys within a batch yield one entity", func(t *testing.T) {
		store := entitystore.New()
		engine := New(store, WithWorkers(4))

		batch := make([]*domain.Entity, 20)
		for i := range batch {
			batch[i] = incomingEntity("7001")
		}
		result, err := engine.ReconcileBatch(ctx, "ofac-sdn", batch)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Created)
		assert.Equal(t, 19, result.Updated)
		assert.Equal(t, 0, result.Failed)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		engine := New(entitystore.New())
		result, err := engine.ReconcileBatch(ctx, "ofac-sdn", nil)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{}, result)
	})
}
