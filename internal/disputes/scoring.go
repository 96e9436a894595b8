package disputes

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

const (
	specialtyWeight = 50
	workloadWeight  = 30
	seniorityWeight = 10
)

// Candidate is a staff member with their assignment score.
type Candidate struct {
	Staff models.DisputeStaff
	Score decimal.Decimal
}

// Score ranks a staff member for a dispute category. Staff at or over
// capacity, or marked unavailable, are not eligible.
func Score(staff models.DisputeStaff, category enums.DisputeCategory) (decimal.Decimal, bool) {
	if !staff.Available || staff.MaxConcurrent <= 0 || staff.ActiveDisputes >= staff.MaxConcurrent {
		return decimal.Zero, false
	}

	score := decimal.NewFromInt(int64(staff.Role.Seniority() * seniorityWeight))
	for _, specialty := range staff.Specialties {
		if specialty == string(category) {
			score = score.Add(decimal.NewFromInt(specialtyWeight))
			break
		}
	}
	load := decimal.NewFromInt(int64(staff.ActiveDisputes)).Div(decimal.NewFromInt(int64(staff.MaxConcurrent)))
	score = score.Add(decimal.NewFromInt(1).Sub(load).Mul(decimal.NewFromInt(workloadWeight)))
	return score, true
}

// Rank returns eligible staff best first. Ties go to the lighter workload,
// then to the longer-serving staff record.
func Rank(staff []models.DisputeStaff, category enums.DisputeCategory) []Candidate {
	candidates := make([]Candidate, 0, len(staff))
	for _, member := range staff {
		score, ok := Score(member, category)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Staff: member, Score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if cmp := a.Score.Cmp(b.Score); cmp != 0 {
			return cmp > 0
		}
		if a.Staff.ActiveDisputes != b.Staff.ActiveDisputes {
			return a.Staff.ActiveDisputes < b.Staff.ActiveDisputes
		}
		return a.Staff.CreatedAt.Before(b.Staff.CreatedAt)
	})
	return candidates
}
