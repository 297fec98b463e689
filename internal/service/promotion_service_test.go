package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
)

func TestPromoteCarriesRecruitsToNewManager(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)

	res, err := f.promotions.Promote(f.ctx, PromoteRequest{MemberID: tm.C1.ID, NewGenealogy: domain.GenealogyProspectiveManager, Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.GenealogyProspectiveManager, res.Member.Genealogy)
	require.Len(t, res.Affected, 1)
	assert.Equal(t, tm.C2.ID, res.Affected[0].ID)
	c2 := f.get(t, tm.C2.ID)
	require.NotNil(t, c2.RelatedProspectiveManagerID)
	assert.Equal(t, tm.C1.ID, *c2.RelatedProspectiveManagerID)

	_, err = f.promotions.Promote(f.ctx, PromoteRequest{MemberID: tm.C1.ID, NewGenealogy: domain.GenealogyManager, Actor: "admin"})
	require.NoError(t, err)

	c1 := f.get(t, tm.C1.ID)
	assert.Equal(t, domain.GenealogyManager, c1.Genealogy)
	assert.Equal(t, tm.D.ID, *c1.ManagerID)
	assert.Equal(t, tm.M.ID, *c1.PreviousManagerID)
	assert.Nil(t, c1.RelatedProspectiveManagerID)

	c2 = f.get(t, tm.C2.ID)
	assert.Equal(t, tm.C1.ID, *c2.ManagerID)
	assert.Equal(t, tm.M.ID, *c2.PreviousManagerID)
	assert.Equal(t, tm.D.ID, *c2.RelatedDistributorID)
	assert.Nil(t, c2.RelatedProspectiveManagerID)
}

func TestPromoteOneStepAtATime(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)

	_, err := f.promotions.Promote(f.ctx, PromoteRequest{MemberID: tm.C1.ID, NewGenealogy: domain.GenealogyManager})

	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.GenealogyConsultant, f.get(t, tm.C1.ID).Genealogy)
}

func TestSeatDistributorRepointsSubtree(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)

	_, err := f.promotions.Promote(f.ctx, PromoteRequest{MemberID: tm.M.ID, NewGenealogy: domain.GenealogyProspectiveDistributor})
	require.NoError(t, err)
	_, err = f.promotions.Promote(f.ctx, PromoteRequest{MemberID: tm.M.ID, NewGenealogy: domain.GenealogyDistributor})
	require.NoError(t, err)

	m := f.get(t, tm.M.ID)
	assert.Nil(t, m.ManagerID)
	assert.Equal(t, tm.D.ID, *m.PreviousManagerID)
	assert.Equal(t, tm.M.ID, *m.RelatedDistributorID)
	for _, id := range []int64{tm.C1.ID, tm.C2.ID} {
		assert.Equal(t, tm.M.ID, *f.get(t, id).RelatedDistributorID, "member %d", id)
	}
}

func TestMoveRejectsCycles(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	m2 := f.member(t, "M2", domain.GenealogyManager, &tm.M.ID, nil)

	_, err := f.promotions.Move(f.ctx, MoveRequest{MemberIDs: []int64{tm.M.ID}, ManagerID: m2.ID})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, tm.D.ID, *f.get(t, tm.M.ID).ManagerID)

	_, err = f.promotions.Move(f.ctx, MoveRequest{MemberIDs: []int64{tm.C1.ID}, ManagerID: tm.C2.ID})
	assert.True(t, domain.IsValidation(err), "consultants cannot manage")

	res, err := f.promotions.Move(f.ctx, MoveRequest{MemberIDs: []int64{tm.C1.ID}, ManagerID: m2.ID, Reason: "rebalance"})
	require.NoError(t, err)
	assert.Equal(t, m2.ID, *res.Member.ManagerID)
	assert.Equal(t, tm.M.ID, *res.Member.PreviousManagerID)
	assert.Equal(t, tm.D.ID, *res.Member.RelatedDistributorID)
}

func TestDemoteMovesTeam(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	m2 := f.member(t, "M2", domain.GenealogyManager, &tm.D.ID, nil)

	_, err := f.promotions.Demote(f.ctx, DemoteRequest{MemberID: tm.M.ID, NewGenealogy: domain.GenealogyConsultant})
	assert.True(t, domain.IsValidation(err), "team needs a destination")

	res, err := f.promotions.Demote(f.ctx, DemoteRequest{
		MemberID:     tm.M.ID,
		NewGenealogy: domain.GenealogyConsultant,
		MoveToID:     &m2.ID,
		ManagerID:    &m2.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GenealogyConsultant, res.Member.Genealogy)
	assert.Equal(t, m2.ID, *res.Member.ManagerID)
	for _, id := range []int64{tm.C1.ID, tm.C2.ID} {
		c := f.get(t, id)
		assert.Equal(t, m2.ID, *c.ManagerID)
		assert.Equal(t, tm.M.ID, *c.PreviousManagerID)
	}
}
