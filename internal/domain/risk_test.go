package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskScore(t *testing.T) {
	t.Run("no programs yields base score", func(t *testing.T) {
		assert.Equal(t, 50, RiskScore(nil))
		assert.Equal(t, 50, RiskScore([]string{"UKRAINE-EO13662"}))
	})

	t.Run("single weapons program", func(t *testing.T) {
		assert.Equal(t, 70, RiskScore([]string{"WEAPONS"}))
	})

	t.Run("keyword match is case insensitive and substring based", func(t *testing.T) {
		assert.Equal(t, 70, RiskScore([]string{"NPWMD-WEAPONS"}))
		assert.Equal(t, 70, RiskScore([]string{"SDGT-TERRORISM"}))
	})

	t.Run("increments accumulate across programs", func(t *testing.T) {
		// 50 + 20 (TERROR) + 15 (CYBER) = 85
		assert.Equal(t, 85, RiskScore([]string{"SDGT-TERROR", "CYBER2"}))
	})

	t.Run("multiple keywords in one program all count", func(t *testing.T) {
		// 50 + 20 (WEAPONS) + 10 (IRAN) = 80
		assert.Equal(t, 80, RiskScore([]string{"IRAN-WEAPONS"}))
	})

	t.Run("score is clamped to 100", func(t *testing.T) {
		programs := []string{"WEAPONS", "TERROR", "CYBER", "NARCO", "IRAN", "DPRK", "SYRIA"}
		assert.Equal(t, 100, RiskScore(programs))
	})

	t.Run("monotonically non-decreasing as programs are added", func(t *testing.T) {
		programs := []string{"NARCO", "WEAPONS", "SYRIA", "TERROR", "CYBER", "DPRK", "IRAN"}
		prev := RiskScore(nil)
		for i := range programs {
			score := RiskScore(programs[:i+1])
			assert.GreaterOrEqual(t, score, prev, "adding %q must not lower the score", programs[i])
			assert.LessOrEqual(t, score, 100)
			prev = score
		}
	})

	t.Run("deterministic for same inputs", func(t *testing.T) {
		programs := []string{"DPRK", "CYBER"}
		assert.Equal(t, RiskScore(programs), RiskScore(programs))
	})
}

func TestEntityRecomputeRisk(t *testing.T) {
	e := &Entity{
		RiskScore: 99, // stale, must be recomputed
		Sanctions: []SanctionRecord{
			{ListSource: "OFAC", EntryID: "1", Programs: []string{"NARCO"}},
			{ListSource: "OFAC", EntryID: "2", Programs: []string{"NARCO", "DPRK"}},
		},
	}
	e.RecomputeRisk()
	// Programs deduplicate across records: NARCO (+15) and DPRK (+10).
	assert.Equal(t, 75, e.RiskScore)
}

func TestEntityPrograms(t *testing.T) {
	e := &Entity{
		Sanctions: []SanctionRecord{
			{Programs: []string{"A", "B"}},
			{Programs: []string{"B", "C"}},
		},
	}
	assert.Equal(t, []string{"A", "B", "C"}, e.Programs())
}
