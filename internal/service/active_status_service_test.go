package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
)

func TestActiveStatusRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	recruit := f.member(t, "P", domain.GenealogyPotentialConsultant, &tm.M.ID, nil)
	f.seedHistory(t, tm.C1, march.AddMonths(-2), "100")
	f.seedHistory(t, recruit, march, "20")

	first, err := f.status.Run(f.ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Examined)
	assert.Equal(t, 2, first.Updated)

	c1 := f.get(t, tm.C1.ID)
	assert.Equal(t, domain.StatusActive3, c1.ActiveStatus)
	assert.Equal(t, 2, c1.MonthsSinceLastSale)
	assert.False(t, c1.SoldPreviousMonth)
	assert.True(t, c1.HasSale)
	assertDec(t, "100", c1.FourMonthsSales)

	p := f.get(t, recruit.ID)
	assert.Equal(t, domain.StatusActive1, p.ActiveStatus)
	assert.Equal(t, domain.GenealogyConsultant, p.Genealogy)

	second, err := f.status.Run(f.ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, c1.ActiveStatus, f.get(t, tm.C1.ID).ActiveStatus)

	audits, err := f.status.Audits(f.ctx, tm.C1.ID, 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, domain.StatusActive3, audits[0].ActiveStatus)
}

func TestActiveStatusLeavesFrozenMembers(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	blacklisted := domain.StatusBlacklisted
	_, err := f.members.Update(f.ctx, tm.C2.ID, UpdateMemberInput{ActiveStatus: &blacklisted})
	require.NoError(t, err)
	f.seedHistory(t, tm.C2, march, "10")

	_, err = f.status.Run(f.ctx, march)
	require.NoError(t, err)

	c2 := f.get(t, tm.C2.ID)
	assert.Equal(t, domain.StatusBlacklisted, c2.ActiveStatus)
	assert.True(t, c2.HasSale)
}
