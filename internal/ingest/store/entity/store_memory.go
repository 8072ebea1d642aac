// Package entity provides the persistence implementations for canonical
// entities. Both implementations enforce the same uniqueness contract: at
// most one entity per (listSource, entryId) across the whole store.
package entity

import (
	"context"
	"sync"

	"amlwatch/internal/domain"
	dErrors "amlwatch/pkg/domain-errors"
)

// InMemoryStore keeps entities in process memory. It favors clarity over
// performance and backs unit tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*domain.Entity
	byKey    map[domain.NaturalKey]string
}

// New constructs an empty in-memory entity store.
func New() *InMemoryStore {
	return &InMemoryStore{
		entities: make(map[string]*domain.Entity),
		byKey:    make(map[domain.NaturalKey]string),
	}
}

// FindByNaturalKey returns a copy of the entity holding the given sanction
// key, or nil when absent.
func (s *InMemoryStore) FindByNaturalKey(_ context.Context, key domain.NaturalKey) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	return cloneEntity(s.entities[id]), nil
}

// Create persists a new entity. The key registration and the entity write
// happen under one lock, which is the in-memory analogue of the database
// uniqueness constraint: a second Create for the same natural key fails with
// a conflict instead of storing a sibling.
func (s *InMemoryStore) Create(_ context.Context, entity *domain.Entity) error {
	if entity.ID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "entity has no id")
	}
	if len(entity.Sanctions) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "entity has no sanction records")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range entity.Sanctions {
		if _, taken := s.byKey[record.Key()]; taken {
			return dErrors.Newf(dErrors.CodeConflict, "natural key %s/%s already stored",
				record.ListSource, record.EntryID)
		}
	}
	if _, exists := s.entities[entity.ID]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "entity %s already stored", entity.ID)
	}

	stored := cloneEntity(entity)
	s.entities[stored.ID] = stored
	for _, record := range stored.Sanctions {
		s.byKey[record.Key()] = stored.ID
	}
	return nil
}

// Update overwrites an existing entity and claims any natural keys the merge
// added. Keys already claimed by a different entity fail with a conflict.
func (s *InMemoryStore) Update(_ context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[entity.ID]; !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "entity %s not stored", entity.ID)
	}
	for _, record := range entity.Sanctions {
		if owner, taken := s.byKey[record.Key()]; taken && owner != entity.ID {
			return dErrors.Newf(dErrors.CodeConflict, "natural key %s/%s owned by another entity",
				record.ListSource, record.EntryID)
		}
	}

	stored := cloneEntity(entity)
	s.entities[stored.ID] = stored
	for _, record := range stored.Sanctions {
		s.byKey[record.Key()] = stored.ID
	}
	return nil
}

// Count returns the number of stored entities.
func (s *InMemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entities)), nil
}

// CountByType aggregates entity counts per type.
func (s *InMemoryStore) CountByType(_ context.Context) (map[domain.EntityType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.EntityType]int64)
	for _, entity := range s.entities {
		out[entity.Type]++
	}
	return out, nil
}

// cloneEntity copies an entity deeply enough that callers cannot mutate
// stored state through returned pointers.
func cloneEntity(e *domain.Entity) *domain.Entity {
	if e == nil {
		return nil
	}
	clone := *e
	clone.AlternateNames = append([]string(nil), e.AlternateNames...)
	clone.Identifiers = append([]domain.Identifier(nil), e.Identifiers...)
	clone.Addresses = append([]domain.Address(nil), e.Addresses...)
	clone.Relationships = append([]domain.Relationship(nil), e.Relationships...)
	clone.Sanctions = make([]domain.SanctionRecord, len(e.Sanctions))
	for i, record := range e.Sanctions {
		clone.Sanctions[i] = record
		clone.Sanctions[i].Programs = append([]string(nil), record.Programs...)
	}
	if e.Biographic != nil {
		bio := *e.Biographic
		bio.Nationalities = append([]string(nil), e.Biographic.Nationalities...)
		bio.Citizenships = append([]string(nil), e.Biographic.Citizenships...)
		clone.Biographic = &bio
	}
	return &clone
}
