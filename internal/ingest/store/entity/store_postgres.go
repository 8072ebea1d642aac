package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"amlwatch/internal/domain"
	dErrors "amlwatch/pkg/domain-errors"
)

// PostgresStore persists entities in PostgreSQL. Natural keys live in the
// entity_keys table whose primary key (list_source, entry_id) is the
// uniqueness constraint the reconciler relies on: two workers racing to
// create the same key have one Create fail with a conflict, which the
// engine retries as an update.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed entity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// FindByNaturalKey returns the entity holding a sanction record with the
// given key, or nil when no such entity exists.
func (s *PostgresStore) FindByNaturalKey(ctx context.Context, key domain.NaturalKey) (*domain.Entity, error) {
	query := `
		SELECT e.id, e.name, e.type, e.alternate_names, e.identifiers, e.addresses,
		       e.biographic, e.sanctions, e.relationships, e.risk_score,
		       e.created_at, e.last_updated
		FROM entities e
		JOIN entity_keys k ON k.entity_id = e.id
		WHERE k.list_source = $1 AND k.entry_id = $2
	`
	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, key.ListSource, key.EntryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find entity by natural key: %w", err)
	}
	return entity, nil
}

// Create inserts the entity and claims its natural keys in one transaction.
func (s *PostgresStore) Create(ctx context.Context, entity *domain.Entity) error {
	if entity.ID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "entity has no id")
	}
	if len(entity.Sanctions) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "entity has no sanction records")
	}

	cols, err := marshalColumns(entity)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create entity: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, name, type, alternate_names, identifiers, addresses,
		                      biographic, sanctions, relationships, risk_score,
		                      created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		entity.ID, entity.Name, string(entity.Type),
		cols.alternateNames, cols.identifiers, cols.addresses,
		cols.biographic, cols.sanctions, cols.relationships,
		entity.RiskScore, entity.CreatedAt, entity.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}

	for _, record := range entity.Sanctions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_keys (list_source, entry_id, entity_id)
			VALUES ($1, $2, $3)
		`, record.ListSource, record.EntryID, entity.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return dErrors.Wrap(err, dErrors.CodeConflict,
					fmt.Sprintf("natural key %s/%s already stored", record.ListSource, record.EntryID))
			}
			return fmt.Errorf("claim natural key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "natural key already stored")
		}
		return fmt.Errorf("commit create entity: %w", err)
	}
	return nil
}

// Update overwrites the entity row and claims any new natural keys. Keys
// already present are left alone (they already point at this entity).
func (s *PostgresStore) Update(ctx context.Context, entity *domain.Entity) error {
	cols, err := marshalColumns(entity)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update entity: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET name = $2, type = $3, alternate_names = $4, identifiers = $5,
		    addresses = $6, biographic = $7, sanctions = $8, relationships = $9,
		    risk_score = $10, last_updated = $11
		WHERE id = $1
	`,
		entity.ID, entity.Name, string(entity.Type),
		cols.alternateNames, cols.identifiers, cols.addresses,
		cols.biographic, cols.sanctions, cols.relationships,
		entity.RiskScore, entity.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity rows affected: %w", err)
	}
	if rows == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "entity %s not stored", entity.ID)
	}

	for _, record := range entity.Sanctions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_keys (list_source, entry_id, entity_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (list_source, entry_id) DO NOTHING
		`, record.ListSource, record.EntryID, entity.ID)
		if err != nil {
			return fmt.Errorf("claim natural key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update entity: %w", err)
	}
	return nil
}

// Count returns the total number of stored entities.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

// CountByType aggregates entity counts per type.
func (s *PostgresStore) CountByType(ctx context.Context) (map[domain.EntityType]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM entities GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count entities by type: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.EntityType]int64)
	for rows.Next() {
		var entityType string
		var count int64
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		out[domain.EntityType(entityType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type counts: %w", err)
	}
	return out, nil
}

type jsonColumns struct {
	alternateNames []byte
	identifiers    []byte
	addresses      []byte
	biographic     []byte
	sanctions      []byte
	relationships  []byte
}

func marshalColumns(entity *domain.Entity) (jsonColumns, error) {
	var cols jsonColumns
	var err error

	if cols.alternateNames, err = marshalOrEmptyArray(entity.AlternateNames); err != nil {
		return cols, err
	}
	if cols.identifiers, err = marshalOrEmptyArray(entity.Identifiers); err != nil {
		return cols, err
	}
	if cols.addresses, err = marshalOrEmptyArray(entity.Addresses); err != nil {
		return cols, err
	}
	if cols.sanctions, err = marshalOrEmptyArray(entity.Sanctions); err != nil {
		return cols, err
	}
	if cols.relationships, err = marshalOrEmptyArray(entity.Relationships); err != nil {
		return cols, err
	}
	if entity.Biographic != nil {
		if cols.biographic, err = json.Marshal(entity.Biographic); err != nil {
			return cols, fmt.Errorf("marshal biographic: %w", err)
		}
	}
	return cols, nil
}

func marshalOrEmptyArray[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal entity column: %w", err)
	}
	return data, nil
}

type entityRow interface {
	Scan(dest ...any) error
}

func scanEntity(row entityRow) (*domain.Entity, error) {
	var entity domain.Entity
	var entityType string
	var alternateNames, identifiers, addresses, sanctions, relationships []byte
	var biographic []byte // nil when the column is NULL

	err := row.Scan(&entity.ID, &entity.Name, &entityType,
		&alternateNames, &identifiers, &addresses,
		&biographic, &sanctions, &relationships,
		&entity.RiskScore, &entity.CreatedAt, &entity.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	entity.Type = domain.EntityType(entityType)
	if err := json.Unmarshal(alternateNames, &entity.AlternateNames); err != nil {
		return nil, fmt.Errorf("unmarshal alternate names: %w", err)
	}
	if err := json.Unmarshal(identifiers, &entity.Identifiers); err != nil {
		return nil, fmt.Errorf("unmarshal identifiers: %w", err)
	}
	if err := json.Unmarshal(addresses, &entity.Addresses); err != nil {
		return nil, fmt.Errorf("unmarshal addresses: %w", err)
	}
	if err := json.Unmarshal(sanctions, &entity.Sanctions); err != nil {
		return nil, fmt.Errorf("unmarshal sanctions: %w", err)
	}
	if err := json.Unmarshal(relationships, &entity.Relationships); err != nil {
		return nil, fmt.Errorf("unmarshal relationships: %w", err)
	}
	if len(biographic) > 0 {
		entity.Biographic = &domain.Biographic{}
		if err := json.Unmarshal(biographic, entity.Biographic); err != nil {
			return nil, fmt.Errorf("unmarshal biographic: %w", err)
		}
	}
	return &entity, nil
}
