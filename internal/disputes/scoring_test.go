package disputes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

func TestScore(t *testing.T) {
	staff := models.DisputeStaff{
		Role:           enums.StaffRoleSenior,
		Specialties:    types.StringList{"damaged_item"},
		MaxConcurrent:  4,
		ActiveDisputes: 1,
		Available:      true,
	}

	score, ok := Score(staff, enums.DisputeCategoryDamagedItem)
	require.True(t, ok)
	assert.Equal(t, "92.5", score.String())

	score, ok = Score(staff, enums.DisputeCategoryPaymentIssue)
	require.True(t, ok)
	assert.Equal(t, "42.5", score.String())

	staff.ActiveDisputes = 4
	_, ok = Score(staff, enums.DisputeCategoryDamagedItem)
	assert.False(t, ok)

	staff.ActiveDisputes = 0
	staff.Available = false
	_, ok = Score(staff, enums.DisputeCategoryDamagedItem)
	assert.False(t, ok)
}

func TestRankPrefersSpecialistThenLighterLoad(t *testing.T) {
	generalist := models.DisputeStaff{Name: "generalist", Role: enums.StaffRoleSupervisor, MaxConcurrent: 10, Available: true}
	specialist := models.DisputeStaff{Name: "specialist", Role: enums.StaffRoleAgent, Specialties: types.StringList{"item_not_received"}, MaxConcurrent: 10, ActiveDisputes: 5, Available: true}
	full := models.DisputeStaff{Name: "full", Role: enums.StaffRoleSupervisor, Specialties: types.StringList{"item_not_received"}, MaxConcurrent: 2, ActiveDisputes: 2, Available: true}

	ranked := Rank([]models.DisputeStaff{generalist, full, specialist}, enums.DisputeCategoryItemNotReceived)
	require.Len(t, ranked, 2)
	assert.Equal(t, "specialist", ranked[0].Staff.Name)
	assert.Equal(t, "generalist", ranked[1].Staff.Name)
}
