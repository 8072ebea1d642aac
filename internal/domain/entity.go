// Package domain holds the canonical sanctioned-entity model shared by the
// ingestion pipeline, the stores, and the read-serving API.
package domain

import "time"

// EntityType classifies a sanctioned party.
type EntityType string

const (
	TypeIndividual   EntityType = "Individual"
	TypeOrganization EntityType = "Organization"
	TypeVessel       EntityType = "Vessel"
	TypeAircraft     EntityType = "Aircraft"
	TypeOther        EntityType = "Other"
)

// SanctionStatus tracks the lifecycle of a list entry.
type SanctionStatus string

const (
	StatusActive   SanctionStatus = "Active"
	StatusRemoved  SanctionStatus = "Removed"
	StatusModified SanctionStatus = "Modified"
)

// Identifier is a document or registration number attached to an entity.
// Dates are kept as the source's free-form strings ("circa 1966" is a legal
// value in the feed) rather than parsed timestamps.
type Identifier struct {
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	Country    string `json:"country,omitempty"`
	IssueDate  string `json:"issue_date,omitempty"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

// Address is a postal address record.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Biographic carries person-only attributes. It is nil for anything that is
// not an Individual.
type Biographic struct {
	DateOfBirth   string   `json:"date_of_birth,omitempty"`
	PlaceOfBirth  string   `json:"place_of_birth,omitempty"`
	Nationalities []string `json:"nationalities,omitempty"`
	Citizenships  []string `json:"citizenships,omitempty"`
}

// SanctionRecord describes one list entry naming the entity.
// (ListSource, EntryID) is the natural key used for deduplication within the
// set and across entities.
type SanctionRecord struct {
	ListSource  string         `json:"list_source"`
	ListName    string         `json:"list_name"`
	EntryID     string         `json:"entry_id"`
	EntryURL    string         `json:"entry_url,omitempty"`
	DateAdded   time.Time      `json:"date_added"`
	DateRemoved *time.Time     `json:"date_removed,omitempty"`
	Status      SanctionStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Programs    []string       `json:"programs,omitempty"`
}

// Relationship is a weak reference to another entity. The referenced entity
// may not exist yet; it is a lookup relation, never an ownership edge.
type Relationship struct {
	RelatedEntityID string `json:"related_entity_id"`
	RelationType    string `json:"relation_type"`
	Description     string `json:"description,omitempty"`
}

// Entity is the canonical persistent record for a sanctioned party.
type Entity struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Type           EntityType       `json:"type"`
	AlternateNames []string         `json:"alternate_names,omitempty"`
	Identifiers    []Identifier     `json:"identifiers,omitempty"`
	Addresses      []Address        `json:"addresses,omitempty"`
	Biographic     *Biographic      `json:"biographic,omitempty"`
	Sanctions      []SanctionRecord `json:"sanctions"`
	Relationships  []Relationship   `json:"relationships,omitempty"`
	RiskScore      int              `json:"risk_score"`
	CreatedAt      time.Time        `json:"created_at"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// NaturalKey identifies a sanctions entry across ingestion runs.
type NaturalKey struct {
	ListSource string
	EntryID    string
}

// Key returns the natural key of a sanction record.
func (s SanctionRecord) Key() NaturalKey {
	return NaturalKey{ListSource: s.ListSource, EntryID: s.EntryID}
}

// PrimaryKey returns the natural key of the entity's first sanction record.
// Normalized entities always carry exactly one record; merged entities keep
// the original first.
func (e *Entity) PrimaryKey() NaturalKey {
	if len(e.Sanctions) == 0 {
		return NaturalKey{}
	}
	return e.Sanctions[0].Key()
}

// Programs returns the union of program tags across all sanction records,
// preserving first-seen order.
func (e *Entity) Programs() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range e.Sanctions {
		for _, p := range s.Programs {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
