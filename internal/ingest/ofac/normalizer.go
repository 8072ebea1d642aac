package ofac

import (
	"log/slog"
	"strings"
	"time"

	"amlwatch/internal/domain"
	dErrors "amlwatch/pkg/domain-errors"
	strutil "amlwatch/pkg/platform/strings"
)

const (
	// ListSource and ListName identify this feed in sanction records.
	ListSource = "OFAC"
	ListName   = "SDN"

	// entryURLTemplate links back to the official entry detail page.
	entryURLTemplate = "https://sanctionssearch.ofac.treas.gov/Details.aspx?id="

	primaryNameCategory = "Primary Name"
)

// sdnTypeMapping maps source type tags to the canonical entity type. Tags
// not listed here map to Other; an unknown tag never fails the batch.
var sdnTypeMapping = map[string]domain.EntityType{
	"Individual":   domain.TypeIndividual,
	"Entity":       domain.TypeOrganization,
	"Business":     domain.TypeOrganization,
	"Organization": domain.TypeOrganization,
	"Vessel":       domain.TypeVessel,
	"Aircraft":     domain.TypeAircraft,
}

// Normalize maps one feed entry into an unsaved canonical entity. The entity
// carries exactly one Active sanction record with dateAdded=now; the store ID
// is assigned later at creation time.
func Normalize(entry Entry, now time.Time) (*domain.Entity, error) {
	if entry.UID == "" {
		return nil, dErrors.New(dErrors.CodeRecordInvalid, "entry has no uid")
	}

	entityType := sdnTypeMapping[entry.SDNType]
	if entityType == "" {
		entityType = domain.TypeOther
	}

	name := displayName(entry.FirstName, entry.LastName, entry.EntireName)
	if name == "" {
		return nil, dErrors.Newf(dErrors.CodeRecordInvalid, "entry %s has no usable name", entry.UID)
	}

	entity := &domain.Entity{
		Name:           name,
		Type:           entityType,
		AlternateNames: alternateNames(entry.AKAs),
		Identifiers:    identifiers(entry.IDs),
		Addresses:      addresses(entry.Addresses),
		Sanctions: []domain.SanctionRecord{{
			ListSource: ListSource,
			ListName:   ListName,
			EntryID:    entry.UID,
			EntryURL:   entryURLTemplate + entry.UID,
			DateAdded:  now,
			Status:     domain.StatusActive,
			Reason:     entry.Remarks,
			Programs:   entry.Programs,
		}},
		CreatedAt:   now,
		LastUpdated: now,
	}

	if entityType == domain.TypeIndividual {
		entity.Biographic = biographic(entry)
	}

	entity.RecomputeRisk()
	return entity, nil
}

// NormalizeAll maps every entry in the batch, skipping and counting the ones
// that are unusable. One malformed entry never aborts its siblings.
func NormalizeAll(entries []Entry, now time.Time, logger *slog.Logger) ([]*domain.Entity, int) {
	out := make([]*domain.Entity, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		entity, err := Normalize(entry, now)
		if err != nil {
			skipped++
			if logger != nil {
				logger.Warn("skipping unusable feed entry",
					"source", ListSource,
					"uid", entry.UID,
					"error", err,
				)
			}
			continue
		}
		out = append(out, entity)
	}
	return out, skipped
}

// displayName joins individual given and family names, trimmed and
// single-space separated. Parties published with a single full-name field
// keep it as-is.
func displayName(first, last, entire string) string {
	if joined := strings.Join(strings.Fields(first+" "+last), " "); joined != "" {
		return joined
	}
	return strings.TrimSpace(entire)
}

func alternateNames(akas []AKA) []string {
	var out []string
	for _, aka := range akas {
		if aka.Category == primaryNameCategory {
			continue
		}
		if name := displayName(aka.FirstName, aka.LastName, aka.EntireName); name != "" {
			out = append(out, name)
		}
	}
	// The feed repeats aliases across aka categories.
	return strutil.DedupeAndTrim(out)
}

func identifiers(ids []ID) []domain.Identifier {
	var out []domain.Identifier
	for _, id := range ids {
		if id.IDNumber == "" {
			continue
		}
		out = append(out, domain.Identifier{
			Kind:       id.IDType,
			Value:      id.IDNumber,
			Country:    id.IDCountry,
			IssueDate:  id.IssueDate,
			ExpiryDate: id.ExpiryDate,
		})
	}
	return out
}

func addresses(addrs []Address) []domain.Address {
	var out []domain.Address
	for _, addr := range addrs {
		out = append(out, domain.Address{
			Street:     addr.Address1,
			City:       addr.City,
			State:      addr.StateOrProvince,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		})
	}
	return out
}

func biographic(entry Entry) *domain.Biographic {
	bio := &domain.Biographic{}
	if len(entry.DatesOfBirth) > 0 {
		bio.DateOfBirth = entry.DatesOfBirth[0].DateOfBirth
	}
	if len(entry.PlacesOfBirth) > 0 {
		bio.PlaceOfBirth = entry.PlacesOfBirth[0].PlaceOfBirth
	}
	for _, nat := range entry.Nationalities {
		if nat.Country != "" {
			bio.Nationalities = append(bio.Nationalities, nat.Country)
		}
	}
	for _, cit := range entry.Citizenships {
		if cit.Country != "" {
			bio.Citizenships = append(bio.Citizenships, cit.Country)
		}
	}
	if bio.DateOfBirth == "" && bio.PlaceOfBirth == "" &&
		len(bio.Nationalities) == 0 && len(bio.Citizenships) == 0 {
		return nil
	}
	return bio
}
