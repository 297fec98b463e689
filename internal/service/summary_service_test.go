package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
)

func TestSummaryVerifyWaitsForEverySheet(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineFor(t, sheet, tm.C1.ID).ID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)

	sum, err := f.summaries.EnsureSummary(f.ctx, tm.D.ID, march)
	require.NoError(t, err)
	require.Len(t, sum.Lines, 1)
	assert.Equal(t, tm.M.ID, sum.Lines[0].ManagerID)
	assert.True(t, sum.Lines[0].TotalCaptured.IsZero(), "registered sheets do not count yet")

	_, err = f.summaries.Register(f.ctx, sum.ID)
	require.NoError(t, err)
	_, err = f.summaries.Capture(f.ctx, sum.ID, "clerk")
	require.NoError(t, err)

	_, err = f.summaries.Verify(f.ctx, sum.ID, "auditor")
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))

	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)
	verified, err := f.summaries.Verify(f.ctx, sum.ID, "auditor")
	require.NoError(t, err)
	assert.Equal(t, domain.StateVerified, verified.State)
	assertDec(t, "100", verified.Totals.TotalCaptured)
}

func TestSummaryActualSales(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	f.registeredSheet(t, tm.M.ID)
	sum, err := f.summaries.EnsureSummary(f.ctx, tm.D.ID, march)
	require.NoError(t, err)
	lineID := sum.Lines[0].ID

	updated, err := f.summaries.SetActualSales(f.ctx, sum.ID, lineID, decimal.NewFromInt(250), "cash")
	require.NoError(t, err)
	assertDec(t, "250", updated.Totals.ActualSales)
	assertDec(t, "-250", updated.Totals.SalesDifference)
	assert.Equal(t, 1, updated.Totals.ManagersWithSales)

	_, err = f.summaries.SetActualSales(f.ctx, sum.ID, lineID, decimal.NewFromInt(-1), "")
	assert.True(t, domain.IsValidation(err))

	again, err := f.summaries.EnsureSummary(f.ctx, tm.D.ID, march)
	require.NoError(t, err)
	assert.Equal(t, sum.ID, again.ID)
	require.Len(t, again.Lines, 1)
	assertDec(t, "250", again.Lines[0].ActualSales)
}

func TestEnsureSummaryNeedsDistributor(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)

	_, err := f.summaries.EnsureSummary(f.ctx, tm.M.ID, march)

	assert.True(t, domain.IsValidation(err))
}
