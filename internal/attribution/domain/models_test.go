package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommissionForRoundsDown(t *testing.T) {
	plan := CommissionPlan{PlanType: PlanPercent, RateBps: 1250}
	assert.Equal(t, int64(1249), plan.CommissionFor(9999))
	assert.Equal(t, int64(0), plan.CommissionFor(7))
	assert.Equal(t, int64(0), plan.CommissionFor(-100))

	flat := CommissionPlan{PlanType: PlanFlat, FlatCents: 2500}
	assert.Equal(t, int64(2500), flat.CommissionFor(1))
}

func TestAssignmentCoversHalfOpenWindow(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	assignment := PlanAssignment{EffectiveFrom: from, EffectiveTo: &to}

	assert.True(t, assignment.Covers(from))
	assert.True(t, assignment.Covers(to.Add(-time.Second)))
	assert.False(t, assignment.Covers(to))
	assert.False(t, assignment.Covers(from.Add(-time.Second)))

	openEnded := PlanAssignment{EffectiveFrom: from}
	assert.True(t, openEnded.Covers(from.AddDate(5, 0, 0)))
}
