package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
)

func TestEnsureSheetListsActiveDownline(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	suspended := domain.StatusSuspended
	gone := f.member(t, "Gone", domain.GenealogyConsultant, &tm.M.ID, nil)
	_, err := f.members.Update(f.ctx, gone.ID, UpdateMemberInput{ActiveStatus: &suspended})
	require.NoError(t, err)
	f.member(t, "M2", domain.GenealogyManager, &tm.M.ID, nil)

	sheet, err := f.capture.EnsureSheet(f.ctx, tm.M.ID, march)
	require.NoError(t, err)

	require.Len(t, sheet.Lines, 2)
	assert.Equal(t, tm.C1.ID, sheet.Lines[0].ConsultantID)
	assert.Equal(t, tm.C2.ID, sheet.Lines[1].ConsultantID)
	assert.Equal(t, domain.StateNew, sheet.State)
	require.NotNil(t, sheet.DistributorID)
	assert.Equal(t, tm.D.ID, *sheet.DistributorID)

	again, err := f.capture.EnsureSheet(f.ctx, tm.M.ID, march)
	require.NoError(t, err)
	assert.Equal(t, sheet.ID, again.ID)

	_, err = f.capture.EnsureSheet(f.ctx, tm.C1.ID, march)
	assert.True(t, domain.IsValidation(err))
}

func TestCaptureAggregatesIntoAncestors(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)

	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineFor(t, sheet, tm.C2.ID).ID, tm.C2.ID, "100"), "clerk")
	require.NoError(t, err)
	captured, err := f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCaptured, captured.State)
	assert.False(t, captured.IsNoSales)

	assertDec(t, "100", f.record(t, tm.C2.ID, march).PersonalBB)
	for _, id := range []int64{tm.M.ID, tm.D.ID, tm.C1.ID} {
		rec := f.record(t, id, march)
		assertDec(t, "100", rec.TeamBB)
		assert.Equal(t, 1, rec.ActiveDescendantCount, "member %d", id)
	}
	c2 := f.get(t, tm.C2.ID)
	assert.True(t, c2.HasSale)
	require.NotNil(t, c2.FirstSaleDate)
	assert.Equal(t, march.Start(), *c2.FirstSaleDate)
}

func TestReaggregationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID

	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	err = f.store.WithTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		s, err := tx.GetSheet(ctx, sheet.ID, true)
		if err != nil {
			return err
		}
		_, err = f.capture.Aggregator.AggregateSheet(ctx, tx, s)
		return err
	})
	require.NoError(t, err)

	for _, id := range []int64{tm.M.ID, tm.D.ID} {
		rec := f.record(t, id, march)
		assertDec(t, "100", rec.TeamBB)
		assert.Equal(t, 1, rec.ActiveDescendantCount)
	}
	assertDec(t, "100", f.record(t, tm.C1.ID, march).PersonalBB)
}

func TestEditAfterCaptureMovesTheDelta(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID

	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	f.advance(2 * time.Hour)
	edited, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "40"), "auditor")
	require.NoError(t, err)
	assertDec(t, "40", edited.Totals.SubTotal)

	assertDec(t, "40", f.record(t, tm.C1.ID, march).PersonalBB)
	assertDec(t, "40", f.record(t, tm.M.ID, march).TeamBB)
	assert.Equal(t, 1, f.record(t, tm.M.ID, march).ActiveDescendantCount)

	events, err := f.history.Events(f.ctx, repository.EventFilter{Type: domain.EventCaptureEdited})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assertDec(t, "100", *events[0].OldTotal)
	assertDec(t, "40", *events[0].NewTotal)
	require.NotNil(t, events[0].ElapsedSec)
	assert.Equal(t, int64(7200), *events[0].ElapsedSec)
}

func TestNegativeAmountIsRejected(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "-5"), "clerk")

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assertDec(t, "100", f.record(t, tm.M.ID, march).TeamBB)
	stored, err := f.capture.Get(f.ctx, sheet.ID)
	require.NoError(t, err)
	assertDec(t, "100", lineFor(t, stored, tm.C1.ID).BBSales)
}

func TestConsultantChangeReversesOldContribution(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	c3 := f.member(t, "C3", domain.GenealogyConsultant, &tm.M.ID, nil)
	lineID := lineFor(t, sheet, tm.C1.ID).ID

	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, c3.ID, "100"), "clerk")
	require.NoError(t, err)

	assert.True(t, f.record(t, tm.C1.ID, march).PersonalBB.IsZero())
	assertDec(t, "100", f.record(t, c3.ID, march).PersonalBB)
	m := f.record(t, tm.M.ID, march)
	assertDec(t, "100", m.TeamBB)
	assert.Equal(t, 1, m.ActiveDescendantCount)
}

func TestUpsertLineGuards(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet, err := f.capture.EnsureSheet(f.ctx, tm.M.ID, march)
	require.NoError(t, err)

	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(0, tm.C1.ID, "10"), "clerk")
	assert.True(t, domain.IsPrecondition(err), "new sheet is not editable")

	_, err = f.capture.Register(f.ctx, sheet.ID)
	require.NoError(t, err)

	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(0, tm.C1.ID, "10"), "clerk")
	assert.True(t, domain.IsValidation(err), "second line for the same consultant")

	outsider := f.member(t, "Elsewhere", domain.GenealogyManager, &tm.D.ID, nil)
	stranger := f.member(t, "Stranger", domain.GenealogyConsultant, &outsider.ID, nil)
	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(0, stranger.ID, "10"), "clerk")
	assert.True(t, domain.IsValidation(err), "consultant outside the downline")

	_, err = f.capture.SetLocked(f.ctx, sheet.ID, true)
	require.NoError(t, err)
	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineFor(t, sheet, tm.C1.ID).ID, tm.C1.ID, "10"), "clerk")
	assert.True(t, domain.IsPrecondition(err), "locked sheet")
}

func TestSheetStatesOnlyMoveForward(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet, err := f.capture.EnsureSheet(f.ctx, tm.M.ID, march)
	require.NoError(t, err)

	_, err = f.capture.Verify(f.ctx, sheet.ID, "auditor")
	assert.True(t, domain.IsPrecondition(err))

	_, err = f.capture.Register(f.ctx, sheet.ID)
	require.NoError(t, err)
	_, err = f.capture.Verify(f.ctx, sheet.ID, "auditor")
	assert.True(t, domain.IsPrecondition(err), "registered cannot skip capture")

	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", true)
	require.NoError(t, err)
	verified, err := f.capture.Verify(f.ctx, sheet.ID, "auditor")
	require.NoError(t, err)
	assert.Equal(t, domain.StateVerified, verified.State)
	require.NotNil(t, verified.VerifiedDate)

	_, err = f.capture.Register(f.ctx, sheet.ID)
	assert.True(t, domain.IsPrecondition(err))
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", true)
	assert.True(t, domain.IsPrecondition(err))
}

func TestCaptureWithoutFiguresNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)

	_, err := f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))

	captured, err := f.capture.Capture(f.ctx, sheet.ID, "clerk", true)
	require.NoError(t, err)
	assert.True(t, captured.IsNoSales)
	assert.Equal(t, "clerk", captured.CapturedBy)
}

func TestCaptureTimerAccumulates(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)

	_, err := f.capture.Timer(f.ctx, sheet.ID, TimerStart, "clerk")
	require.NoError(t, err)
	_, err = f.capture.Timer(f.ctx, sheet.ID, TimerResume, "clerk")
	assert.True(t, domain.IsPrecondition(err), "resume while running")

	f.advance(time.Hour)
	_, err = f.capture.Timer(f.ctx, sheet.ID, TimerPause, "clerk")
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.capture.Timer(f.ctx, sheet.ID, TimerResume, "clerk")
	require.NoError(t, err)
	f.advance(30 * time.Minute)

	captured, err := f.capture.Capture(f.ctx, sheet.ID, "clerk", true)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, captured.CaptureTime, 1e-9)
	assert.False(t, captured.TimerRunning)

	var logged bool
	err = f.store.Read(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		logged, err = tx.HasCaptureTimeLog(ctx, sheet.ID)
		return err
	})
	require.NoError(t, err)
	assert.True(t, logged)

	_, err = f.capture.Timer(f.ctx, sheet.ID, "rewind", "clerk")
	assert.True(t, domain.IsValidation(err))
}

func TestDeleteLineWithdrawsContribution(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "60"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	after, err := f.capture.DeleteLine(f.ctx, sheet.ID, lineID, "clerk")
	require.NoError(t, err)

	assert.Len(t, after.Lines, 1)
	m := f.record(t, tm.M.ID, march)
	assert.True(t, m.TeamBB.IsZero())
	assert.Equal(t, 0, m.ActiveDescendantCount)
}

func TestDeleteSheetOnlyWhenNew(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet, err := f.capture.EnsureSheet(f.ctx, tm.M.ID, march)
	require.NoError(t, err)
	other, err := f.capture.EnsureSheet(f.ctx, tm.D.ID, march)
	require.NoError(t, err)
	_, err = f.capture.Register(f.ctx, other.ID)
	require.NoError(t, err)

	require.NoError(t, f.capture.DeleteSheet(f.ctx, sheet.ID))
	_, err = f.capture.Get(f.ctx, sheet.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.True(t, domain.IsPrecondition(f.capture.DeleteSheet(f.ctx, other.ID)))
}

func TestManagerCapturesOwnSales(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)

	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(0, tm.M.ID, "250"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	m := f.record(t, tm.M.ID, march)
	assertDec(t, "250", m.PersonalBB)
	assert.True(t, m.TeamBB.IsZero(), "own sales are not team sales")
	assert.Equal(t, 0, m.ActiveDescendantCount)
	d := f.record(t, tm.D.ID, march)
	assertDec(t, "250", d.TeamBB)
	assert.Equal(t, 1, d.ActiveDescendantCount)
}

func TestAncestorAttribution(t *testing.T) {
	// build returns the selling consultant, the members to credit and the members to leave alone.
	tests := []struct {
		name  string
		build func(t *testing.T, f *fixture, tm team) (seller int64, credited, untouched []int64)
	}{
		{
			name: "recruiter who is also the manager counts once",
			build: func(t *testing.T, f *fixture, tm team) (int64, []int64, []int64) {
				c := f.member(t, "C3", domain.GenealogyConsultant, &tm.M.ID, &tm.M.ID)
				return c.ID, []int64{tm.M.ID, tm.D.ID}, nil
			},
		},
		{
			name: "recruiter chain stops at the first manager",
			build: func(t *testing.T, f *fixture, tm team) (int64, []int64, []int64) {
				z := f.member(t, "Z", domain.GenealogyManager, &tm.D.ID, nil)
				y := f.member(t, "Y", domain.GenealogyConsultant, &z.ID, nil)
				x := f.member(t, "X", domain.GenealogyManager, &tm.D.ID, &y.ID)
				r1 := f.member(t, "R1", domain.GenealogyConsultant, &tm.M.ID, &x.ID)
				c := f.member(t, "C3", domain.GenealogyConsultant, &tm.M.ID, &r1.ID)
				return c.ID, []int64{tm.M.ID, tm.D.ID, r1.ID, x.ID}, []int64{y.ID, z.ID}
			},
		},
		{
			name: "consultant recruiters are all credited",
			build: func(t *testing.T, f *fixture, tm team) (int64, []int64, []int64) {
				c := f.member(t, "C3", domain.GenealogyConsultant, &tm.M.ID, &tm.C2.ID)
				return c.ID, []int64{tm.M.ID, tm.D.ID, tm.C2.ID, tm.C1.ID}, nil
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tm := f.team(t)
			seller, credited, untouched := tc.build(t, f, tm)
			sheet := f.registeredSheet(t, tm.M.ID)

			_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineFor(t, sheet, seller).ID, seller, "100"), "clerk")
			require.NoError(t, err)
			_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
			require.NoError(t, err)

			for _, id := range credited {
				rec := f.record(t, id, march)
				assertDec(t, "100", rec.TeamBB)
				assert.Equal(t, 1, rec.ActiveDescendantCount, "member %d", id)
			}
			for _, id := range untouched {
				rec := f.record(t, id, march)
				assert.True(t, rec.TeamBB.IsZero(), "member %d", id)
				assert.Equal(t, 0, rec.ActiveDescendantCount, "member %d", id)
			}
		})
	}
}

func TestDeleteAfterMoveWithdrawsFromCreditedAncestors(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	m2 := f.member(t, "M2", domain.GenealogyManager, &tm.D.ID, nil)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	_, err = f.promotions.Move(f.ctx, MoveRequest{MemberIDs: []int64{tm.C1.ID}, ManagerID: m2.ID, Reason: "rebalance"})
	require.NoError(t, err)
	_, err = f.capture.DeleteLine(f.ctx, sheet.ID, lineID, "clerk")
	require.NoError(t, err)

	for _, id := range []int64{tm.M.ID, m2.ID, tm.D.ID} {
		rec := f.record(t, id, march)
		assert.True(t, rec.TeamBB.IsZero(), "member %d team %s", id, rec.TeamBB)
		assert.Equal(t, 0, rec.ActiveDescendantCount, "member %d", id)
	}
}

func TestReaggregationAfterMoveFollowsTheHierarchy(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	m2 := f.member(t, "M2", domain.GenealogyManager, &tm.D.ID, nil)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	_, err = f.promotions.Move(f.ctx, MoveRequest{MemberIDs: []int64{tm.C1.ID}, ManagerID: m2.ID, Reason: "rebalance"})
	require.NoError(t, err)
	err = f.store.WithTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		s, err := tx.GetSheet(ctx, sheet.ID, true)
		if err != nil {
			return err
		}
		_, err = f.capture.Aggregator.AggregateSheet(ctx, tx, s)
		return err
	})
	require.NoError(t, err)

	old := f.record(t, tm.M.ID, march)
	assert.True(t, old.TeamBB.IsZero())
	assert.Equal(t, 0, old.ActiveDescendantCount)
	for _, id := range []int64{m2.ID, tm.D.ID} {
		rec := f.record(t, id, march)
		assertDec(t, "100", rec.TeamBB)
		assert.Equal(t, 1, rec.ActiveDescendantCount, "member %d", id)
	}
}

func TestEditAfterRecruiterChangeRebalancesAncestors(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C1.ID).ID
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "100"), "clerk")
	require.NoError(t, err)
	_, err = f.capture.Capture(f.ctx, sheet.ID, "clerk", false)
	require.NoError(t, err)

	r := f.member(t, "R", domain.GenealogyConsultant, &tm.M.ID, nil)
	_, err = f.members.Update(f.ctx, tm.C1.ID, UpdateMemberInput{RecruiterID: &r.ID})
	require.NoError(t, err)
	_, err = f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C1.ID, "40"), "clerk")
	require.NoError(t, err)

	assertDec(t, "40", f.record(t, tm.C1.ID, march).PersonalBB)
	for _, id := range []int64{tm.M.ID, tm.D.ID, r.ID} {
		rec := f.record(t, id, march)
		assertDec(t, "40", rec.TeamBB)
		assert.Equal(t, 1, rec.ActiveDescendantCount, "member %d", id)
	}
}

// lockRecorder notes the order in which history rows are locked.
type lockRecorder struct {
	repository.Tx
	locked []int64
}

func (r *lockRecorder) LockHistory(ctx context.Context, seed domain.HistoryRecord) (*domain.HistoryRecord, bool, error) {
	r.locked = append(r.locked, seed.MemberID)
	return r.Tx.LockHistory(ctx, seed)
}

func TestAncestorRowsLockInIDOrder(t *testing.T) {
	f := newFixture(t)
	tm := f.team(t)
	sheet := f.registeredSheet(t, tm.M.ID)
	lineID := lineFor(t, sheet, tm.C2.ID).ID
	_, err := f.capture.UpsertLine(f.ctx, sheet.ID, bb(lineID, tm.C2.ID, "100"), "clerk")
	require.NoError(t, err)

	rec := &lockRecorder{}
	err = f.store.WithTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		rec.Tx = tx
		s, err := tx.GetSheet(ctx, sheet.ID, true)
		if err != nil {
			return err
		}
		line, ok := s.Line(lineID)
		require.True(t, ok)
		_, err = f.capture.Aggregator.AggregateLine(ctx, rec, s, line)
		return err
	})
	require.NoError(t, err)

	require.Len(t, rec.locked, 4)
	assert.Equal(t, tm.C2.ID, rec.locked[0])
	assert.ElementsMatch(t, []int64{tm.M.ID, tm.D.ID, tm.C1.ID}, rec.locked[1:])
	assert.IsIncreasing(t, rec.locked[1:])
}
