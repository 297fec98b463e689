package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
)

var march = domain.Period{Year: 2025, Month: time.March}

// fixture wires every service over one in-memory store and a hand-driven clock.
type fixture struct {
	ctx   context.Context
	store *repository.MemoryStore
	now   time.Time

	members    MemberService
	capture    CaptureService
	summaries  SummaryService
	promotions PromotionService
	rules      RuleService
	prints     PrintService
	status     ActiveStatusService
	history    HistoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: repository.NewMemoryStore(),
		now:   time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.Now = clock

	evaluator := Evaluator{}
	f.members = MemberService{Store: f.store}
	f.capture = CaptureService{Store: f.store, Aggregator: Aggregator{Evaluator: evaluator, Now: clock}, Now: clock}
	f.summaries = SummaryService{Store: f.store, Now: clock}
	f.promotions = PromotionService{Store: f.store, Now: clock}
	f.rules = RuleService{Store: f.store, Evaluator: evaluator}
	f.prints = PrintService{Store: f.store, Limit: 3, Now: clock}
	f.status = ActiveStatusService{Store: f.store}
	f.history = HistoryService{Store: f.store}
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) member(t *testing.T, name string, g domain.Genealogy, managerID, recruiterID *int64) *domain.Member {
	t.Helper()
	m, err := f.members.Create(f.ctx, CreateMemberInput{
		Name:        name,
		Code:        name,
		Genealogy:   g,
		ManagerID:   managerID,
		RecruiterID: recruiterID,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) get(t *testing.T, id int64) *domain.Member {
	t.Helper()
	m, err := f.members.Get(f.ctx, id)
	require.NoError(t, err)
	return m
}

// record returns the member's history for p, or a zero record when none exists.
func (f *fixture) record(t *testing.T, memberID int64, p domain.Period) domain.HistoryRecord {
	t.Helper()
	items, err := f.history.List(f.ctx, repository.HistoryFilter{MemberID: &memberID, Period: &p})
	require.NoError(t, err)
	if len(items) == 0 {
		return domain.HistoryRecord{MemberID: memberID, Period: p, PersonalBB: decimal.Zero, TeamBB: decimal.Zero}
	}
	return items[0]
}

func (f *fixture) seed(t *testing.T, m *domain.Member, p domain.Period, mutate func(*domain.HistoryRecord)) {
	t.Helper()
	err := f.store.WithTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		h, _, err := tx.LockHistory(ctx, domain.NewHistoryRecord(m, p))
		if err != nil {
			return err
		}
		mutate(h)
		return tx.SaveHistory(ctx, h)
	})
	require.NoError(t, err)
}

func (f *fixture) seedHistory(t *testing.T, m *domain.Member, p domain.Period, personal string) {
	t.Helper()
	f.seed(t, m, p, func(h *domain.HistoryRecord) { h.PersonalBB = decimal.RequireFromString(personal) })
}

// team is a distributor D with manager M, and consultants C1 and C2 under M; C1 recruited C2.
type team struct {
	D, M, C1, C2 *domain.Member
}

func (f *fixture) team(t *testing.T) team {
	t.Helper()
	var tm team
	tm.D = f.member(t, "D", domain.GenealogyDistributor, nil, nil)
	tm.M = f.member(t, "M", domain.GenealogyManager, &tm.D.ID, nil)
	tm.C1 = f.member(t, "C1", domain.GenealogyConsultant, &tm.M.ID, nil)
	tm.C2 = f.member(t, "C2", domain.GenealogyConsultant, &tm.M.ID, &tm.C1.ID)
	return tm
}

// registeredSheet prepares and registers M's sheet for march.
func (f *fixture) registeredSheet(t *testing.T, managerID int64) *domain.CaptureSheet {
	t.Helper()
	sheet, err := f.capture.EnsureSheet(f.ctx, managerID, march)
	require.NoError(t, err)
	sheet, err = f.capture.Register(f.ctx, sheet.ID)
	require.NoError(t, err)
	return sheet
}

func lineFor(t *testing.T, sheet *domain.CaptureSheet, consultantID int64) domain.CaptureLine {
	t.Helper()
	for _, l := range sheet.Lines {
		if l.ConsultantID == consultantID {
			return l
		}
	}
	t.Fatalf("no line for member %d on sheet %d", consultantID, sheet.ID)
	return domain.CaptureLine{}
}

func bb(lineID, consultantID int64, amount string) LineInput {
	return LineInput{
		ID:           lineID,
		ConsultantID: consultantID,
		BBSales:      decimal.RequireFromString(amount),
		BBReturns:    decimal.Zero,
		PuerSales:    decimal.Zero,
		PuerReturns:  decimal.Zero,
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
