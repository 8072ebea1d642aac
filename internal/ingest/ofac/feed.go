// Package ofac parses and normalizes the OFAC SDN sanctions list. It is the
// reference parser/mapper pair; further lists (EU, UN, UK) follow the same
// shape behind ports.Source.
package ofac

import (
	"encoding/xml"

	dErrors "amlwatch/pkg/domain-errors"
)

// The feed types below declare every legally-repeatable element as a slice.
// encoding/xml then yields a one-element sequence for singleton occurrences
// instead of a bare scalar, which is the classic malformed-feed pitfall with
// schema-less parsers.

// List is the root of the SDN feed document.
type List struct {
	XMLName     xml.Name `xml:"sdnList"`
	PublishDate string   `xml:"publshInformation>Publish_Date"`
	RecordCount int      `xml:"publshInformation>Record_Count"`
	Entries     []Entry  `xml:"sdnEntry"`
}

// Entry is one sanctioned party as published by OFAC. Organizations carry
// their name in lastName or entireName; individuals split it across
// firstName/lastName.
type Entry struct {
	UID           string             `xml:"uid"`
	FirstName     string             `xml:"firstName"`
	LastName      string             `xml:"lastName"`
	EntireName    string             `xml:"entireName"`
	Title         string             `xml:"title"`
	SDNType       string             `xml:"sdnType"`
	Remarks       string             `xml:"remarks"`
	Programs      []string           `xml:"programList>program"`
	IDs           []ID               `xml:"idList>id"`
	AKAs          []AKA              `xml:"akaList>aka"`
	Addresses     []Address          `xml:"addressList>address"`
	Nationalities []Country          `xml:"nationalityList>nationality"`
	Citizenships  []Country          `xml:"citizenshipList>citizenship"`
	DatesOfBirth  []DateOfBirthItem  `xml:"dateOfBirthList>dateOfBirthItem"`
	PlacesOfBirth []PlaceOfBirthItem `xml:"placeOfBirthList>placeOfBirthItem"`
}

// ID is a document or registration number.
type ID struct {
	UID        string `xml:"uid"`
	IDType     string `xml:"idType"`
	IDNumber   string `xml:"idNumber"`
	IDCountry  string `xml:"idCountry"`
	IssueDate  string `xml:"issueDate"`
	ExpiryDate string `xml:"expirationDate"`
}

// AKA is an alias entry. The one flagged as the primary name is not an
// alternate name.
type AKA struct {
	UID        string `xml:"uid"`
	Type       string `xml:"type"`
	Category   string `xml:"category"`
	FirstName  string `xml:"firstName"`
	LastName   string `xml:"lastName"`
	EntireName string `xml:"entireName"`
}

// Address is a postal address entry.
type Address struct {
	UID             string `xml:"uid"`
	Address1        string `xml:"address1"`
	City            string `xml:"city"`
	StateOrProvince string `xml:"stateOrProvince"`
	PostalCode      string `xml:"postalCode"`
	Country         string `xml:"country"`
}

// Country is a nationality or citizenship entry.
type Country struct {
	UID       string `xml:"uid"`
	Country   string `xml:"country"`
	MainEntry bool   `xml:"mainEntry"`
}

// DateOfBirthItem carries a free-form date of birth ("12 Apr 1966",
// "circa 1962").
type DateOfBirthItem struct {
	UID         string `xml:"uid"`
	DateOfBirth string `xml:"dateOfBirth"`
	MainEntry   bool   `xml:"mainEntry"`
}

// PlaceOfBirthItem carries a free-form place of birth.
type PlaceOfBirthItem struct {
	UID          string `xml:"uid"`
	PlaceOfBirth string `xml:"placeOfBirth"`
	MainEntry    bool   `xml:"mainEntry"`
}

// Parse decodes a raw SDN document. A document that is not well-formed XML
// (or has the wrong root element) fails whole; missing optional fields do
// not.
func Parse(raw []byte) (*List, error) {
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeMalformed, "empty feed document")
	}
	var list List
	if err := xml.Unmarshal(raw, &list); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "parse SDN feed")
	}
	return &list, nil
}
