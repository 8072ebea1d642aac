package ofac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "amlwatch/pkg/domain-errors"
)

const sampleFeed = `<?xml version="1.0" encoding="utf-8"?>
<sdnList>
  <publshInformation>
    <Publish_Date>04/12/2024</Publish_Date>
    <Record_Count>2</Record_Count>
  </publshInformation>
  <sdnEntry>
    <uid>10001</uid>
    <firstName>Jane</firstName>
    <lastName>Doe</lastName>
    <sdnType>Individual</sdnType>
    <programList>
      <program>WEAPONS</program>
    </programList>
    <akaList>
      <aka>
        <uid>1</uid>
        <type>a.k.a.</type>
        <category>strong</category>
        <firstName>Janet</firstName>
        <lastName>Dough</lastName>
      </aka>
    </akaList>
    <idList>
      <id>
        <uid>2</uid>
        <idType>Passport</idType>
        <idNumber>X1234567</idNumber>
        <idCountry>Iran</idCountry>
      </id>
    </idList>
    <addressList>
      <address>
        <uid>3</uid>
        <address1>1 Main St</address1>
        <city>Tehran</city>
        <country>Iran</country>
      </address>
    </addressList>
    <nationalityList>
      <nationality>
        <uid>4</uid>
        <country>Iran</country>
        <mainEntry>true</mainEntry>
      </nationality>
    </nationalityList>
    <dateOfBirthList>
      <dateOfBirthItem>
        <uid>5</uid>
        <dateOfBirth>circa 1962</dateOfBirth>
        <mainEntry>true</mainEntry>
      </dateOfBirthItem>
    </dateOfBirthList>
  </sdnEntry>
  <sdnEntry>
    <uid>10002</uid>
    <lastName>ACME TRADING LLC</lastName>
    <sdnType>Entity</sdnType>
    <programList>
      <program>IRAN</program>
      <program>SDGT-TERROR</program>
    </programList>
  </sdnEntry>
</sdnList>`

func TestParse(t *testing.T) {
	t.Run("parses a well-formed feed", func(t *testing.T) {
		list, err := Parse([]byte(sampleFeed))
		require.NoError(t, err)
		assert.Equal(t, 2, list.RecordCount)
		require.Len(t, list.Entries, 2)
		assert.Equal(t, "10001", list.Entries[0].UID)
		assert.Equal(t, "Jane", list.Entries[0].FirstName)
		assert.Equal(t, "Entity", list.Entries[1].SDNType)
	})

	t.Run("singleton repeatable elements parse as one-element sequences", func(t *testing.T) {
		list, err := Parse([]byte(sampleFeed))
		require.NoError(t, err)

		entry := list.Entries[0]
		assert.Len(t, entry.Programs, 1)
		assert.Len(t, entry.AKAs, 1)
		assert.Len(t, entry.IDs, 1)
		assert.Len(t, entry.Addresses, 1)
		assert.Len(t, entry.Nationalities, 1)
		assert.Len(t, entry.DatesOfBirth, 1)
		assert.Equal(t, []string{"WEAPONS"}, entry.Programs)
	})

	t.Run("single entry still yields a sequence", func(t *testing.T) {
		doc := `<sdnList><sdnEntry><uid>1</uid><lastName>Solo</lastName><sdnType>Entity</sdnType></sdnEntry></sdnList>`
		list, err := Parse([]byte(doc))
		require.NoError(t, err)
		require.Len(t, list.Entries, 1)
		assert.Equal(t, "1", list.Entries[0].UID)
	})

	t.Run("missing optional fields are absent not fatal", func(t *testing.T) {
		doc := `<sdnList><sdnEntry><uid>1</uid><lastName>Bare</lastName><sdnType>Entity</sdnType></sdnEntry></sdnList>`
		list, err := Parse([]byte(doc))
		require.NoError(t, err)
		entry := list.Entries[0]
		assert.Empty(t, entry.Programs)
		assert.Empty(t, entry.AKAs)
		assert.Empty(t, entry.Addresses)
		assert.Empty(t, entry.Remarks)
	})

	t.Run("malformed document fails whole", func(t *testing.T) {
		_, err := Parse([]byte(`<sdnList><sdnEntry>`))
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeMalformed, dErrors.CodeOf(err))
	})

	t.Run("wrong root element fails whole", func(t *testing.T) {
		_, err := Parse([]byte(`<notSdn></notSdn>`))
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeMalformed, dErrors.CodeOf(err))
	})

	t.Run("empty document fails whole", func(t *testing.T) {
		_, err := Parse(nil)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeMalformed, dErrors.CodeOf(err))
	})
}
