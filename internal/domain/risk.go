package domain

import "strings"

// Risk scoring is a fixed keyword formula over sanction program tags. The
// same inputs always produce the same score, so ingestion can recompute it on
// every touch without drift.
const (
	riskBase = 50
	riskMax  = 100
)

// keyword increments applied per matched program tag. Country keywords are a
// fixed set; each contributes independently.
var riskKeywords = []struct {
	substr string
	points int
}{
	{"WEAPONS", 20},
	{"TERROR", 20},
	{"CYBER", 15},
	{"NARCO", 15},
	{"IRAN", 10},
	{"DPRK", 10},
	{"SYRIA", 10},
}

// RiskScore computes the risk score for a set of program tags: base 50 plus
// additive increments per matched keyword, cumulative across all programs,
// clamped to [0,100].
func RiskScore(programs []string) int {
	score := riskBase
	for _, program := range programs {
		upper := strings.ToUpper(program)
		for _, kw := range riskKeywords {
			if strings.Contains(upper, kw.substr) {
				score += kw.points
			}
		}
	}
	if score > riskMax {
		score = riskMax
	}
	return score
}

// RecomputeRisk refreshes the entity's risk score from its current sanction
// programs. Stale carried-over scores are never kept.
func (e *Entity) RecomputeRisk() {
	e.RiskScore = RiskScore(e.Programs())
}
