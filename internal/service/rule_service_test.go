package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
)

func TestConsultantWindowFailsClosed(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	rule := domain.PromotionRule{
		CurrentLevel:   domain.GenealogyConsultant,
		NextLevel:      domain.GenealogyProspectiveManager,
		SalesMonth:     3,
		OwnSalesValue:  decimal.NewFromInt(50),
		TeamSalesValue: decimal.Zero,
	}
	_, err := f.rules.Save(f.ctx, rule)
	require.NoError(t, err)

	jan, feb, apr := march.AddMonths(-2), march.AddMonths(-1), march.AddMonths(1)
	f.seedHistory(t, tm.C1, jan, "60")
	f.seedHistory(t, tm.C1, feb, "60")

	n, err := f.rules.Evaluate(f.ctx, feb, &tm.C1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.record(t, tm.C1.ID, feb).Flags.PersonalSalesPromotion, "two months of three")

	f.seedHistory(t, tm.C1, march, "60")
	_, err = f.rules.Evaluate(f.ctx, march, &tm.C1.ID)
	require.NoError(t, err)
	flags := f.record(t, tm.C1.ID, march).Flags
	assert.True(t, flags.PersonalSalesPromotion)
	assert.True(t, flags.Personal80)

	f.seedHistory(t, tm.C1, apr, "45")
	_, err = f.rules.Evaluate(f.ctx, apr, &tm.C1.ID)
	require.NoError(t, err)
	flags = f.record(t, tm.C1.ID, apr).Flags
	assert.False(t, flags.PersonalSalesPromotion)
	assert.True(t, flags.Personal80, "45 is 90% of 50")

	rule.ExcludedMonths = []time.Month{time.January}
	_, err = f.rules.Save(f.ctx, rule)
	require.NoError(t, err)
	_, err = f.rules.Evaluate(f.ctx, march, &tm.C1.ID)
	require.NoError(t, err)
	assert.False(t, f.record(t, tm.C1.ID, march).Flags.PersonalSalesPromotion, "excluded month leaves the window short")

	n, err = f.rules.Evaluate(f.ctx, march, &tm.C2.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "no history for the member")
}

func TestSaveRuleValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.rules.Save(f.ctx, domain.PromotionRule{CurrentLevel: domain.GenealogyConsultant})
	assert.True(t, domain.IsValidation(err))

	saved, err := f.rules.Save(f.ctx, domain.PromotionRule{CurrentLevel: domain.GenealogyManager, ManagerSalesMonth: 2})
	require.NoError(t, err)
	replaced, err := f.rules.Save(f.ctx, domain.PromotionRule{CurrentLevel: domain.GenealogyManager, ManagerSalesMonth: 3})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, replaced.ID)

	got, err := f.rules.Get(f.ctx, domain.GenealogyManager)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ManagerSalesMonth)
	all, err := f.rules.List(f.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPromotedManagerCountsTowardPromoter(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	_, err := f.members.Update(f.ctx, tm.M.ID, UpdateMemberInput{PromoterID: &tm.D.ID})
	require.NoError(t, err)
	m := f.get(t, tm.M.ID)

	_, err = f.rules.Save(f.ctx, domain.PromotionRule{
		CurrentLevel:      domain.GenealogyManager,
		ManagerSalesMonth: 1,
		TeamSalesValue:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = f.rules.Save(f.ctx, domain.PromotionRule{
		CurrentLevel:                     domain.GenealogyDistributor,
		PromotedManagers:                 1,
		PromotedManagersMonths:           1,
		PromotedManagerActiveConsultants: 1,
		PromotedTeamSalesMonth:           1,
		TeamSalesValuePerPromotedManager: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	f.seed(t, m, march, func(h *domain.HistoryRecord) {
		h.TeamBB = decimal.NewFromInt(150)
		h.ActiveDescendantCount = 2
	})

	_, err = f.rules.Evaluate(f.ctx, march, &m.ID)
	require.NoError(t, err)

	mf := f.record(t, m.ID, march).Flags
	assert.True(t, mf.TeamSalesPromotion)
	assert.True(t, mf.ManagerPromoteActiveConsultants)
	assert.True(t, mf.ManagerPromotedSalesAbove)

	df := f.record(t, tm.D.ID, march).Flags
	assert.Equal(t, 1, df.PBMPromotedActiveConsultants)
	assert.Equal(t, 1, df.PBMPromotedManagersTeamSalesAbove)
	assert.True(t, df.PBMPromotedManagersActivePromotion)
	assert.True(t, df.PBMTeamSalesAbove)
}

func TestActiveSFMUsesRetainedWindow(t *testing.T) {
	jan, feb := march.AddMonths(-2), march.AddMonths(-1)
	tests := []struct {
		name       string
		active     map[domain.Period]int
		wantSFM    bool
		wantActive bool
	}{
		{
			name:       "last two months retained",
			active:     map[domain.Period]int{jan: 1, feb: 2, march: 2},
			wantSFM:    true,
			wantActive: false,
		},
		{
			name:       "every month retained",
			active:     map[domain.Period]int{jan: 2, feb: 2, march: 2},
			wantSFM:    true,
			wantActive: true,
		},
		{
			name:       "short month inside the window",
			active:     map[domain.Period]int{jan: 2, feb: 1, march: 2},
			wantSFM:    false,
			wantActive: false,
		},
		{
			name:       "history shorter than the window",
			active:     map[domain.Period]int{march: 2},
			wantSFM:    false,
			wantActive: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tm := f.team(t)
			_, err := f.rules.Save(f.ctx, domain.PromotionRule{
				CurrentLevel:              domain.GenealogyConsultant,
				SalesMonth:                3,
				RetainedConsultants:       2,
				MonthsRetainedConsultants: 2,
			})
			require.NoError(t, err)
			for p, n := range tc.active {
				f.seed(t, tm.C1, p, func(h *domain.HistoryRecord) { h.ActiveDescendantCount = n })
			}

			_, err = f.rules.Evaluate(f.ctx, march, &tm.C1.ID)
			require.NoError(t, err)

			flags := f.record(t, tm.C1.ID, march).Flags
			assert.Equal(t, tc.wantSFM, flags.ActiveSFMPromotion)
			assert.Equal(t, tc.wantActive, flags.Active80, "80% is measured over the sales window")
		})
	}
}

func TestManagerTeamSalesWindowFailsClosed(t *testing.T) {
	jan, feb := march.AddMonths(-2), march.AddMonths(-1)
	tests := []struct {
		name string
		team map[domain.Period]string
		want bool
	}{
		{name: "full window above target", team: map[domain.Period]string{jan: "150", feb: "150", march: "150"}, want: true},
		{name: "one month below target", team: map[domain.Period]string{jan: "50", feb: "150", march: "150"}, want: false},
		{name: "window shorter than manager_sales_month", team: map[domain.Period]string{feb: "150", march: "150"}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tm := f.team(t)
			_, err := f.rules.Save(f.ctx, domain.PromotionRule{
				CurrentLevel:      domain.GenealogyManager,
				ManagerSalesMonth: 3,
				TeamSalesValue:    decimal.NewFromInt(100),
			})
			require.NoError(t, err)
			for p, v := range tc.team {
				f.seed(t, tm.M, p, func(h *domain.HistoryRecord) { h.TeamBB = decimal.RequireFromString(v) })
			}

			_, err = f.rules.Evaluate(f.ctx, march, &tm.M.ID)
			require.NoError(t, err)

			assert.Equal(t, tc.want, f.record(t, tm.M.ID, march).Flags.TeamSalesPromotion)
		})
	}
}
