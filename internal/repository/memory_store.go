package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
)

// MemoryStore keeps everything in process. Units of work are serialized and
// roll back by discarding a copy. Used by tests and by STORE_DRIVER=memory.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	Now   func() time.Time
}

type printKey struct {
	kind domain.PrintKind
	id   int64
}

type auditKey struct {
	member int64
	period domain.Period
}

type memState struct {
	seq        int64
	members    map[int64]domain.Member
	sheets     map[int64]domain.CaptureSheet
	lines      map[int64]domain.CaptureLine
	summaries  map[int64]domain.DistributorSummary
	sumLines   map[int64]domain.DistributorLine
	history    map[int64]domain.HistoryRecord
	rules      map[domain.Genealogy]domain.PromotionRule
	events     []domain.Event
	prints     map[printKey]domain.PrintRecord
	timeLogs   map[int64]domain.CaptureTimeLog
	statusLogs map[auditKey]domain.StatusAudit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			members:    map[int64]domain.Member{},
			sheets:     map[int64]domain.CaptureSheet{},
			lines:      map[int64]domain.CaptureLine{},
			summaries:  map[int64]domain.DistributorSummary{},
			sumLines:   map[int64]domain.DistributorLine{},
			history:    map[int64]domain.HistoryRecord{},
			rules:      map[domain.Genealogy]domain.PromotionRule{},
			prints:     map[printKey]domain.PrintRecord{},
			timeLogs:   map[int64]domain.CaptureTimeLog{},
			statusLogs: map[auditKey]domain.StatusAudit{},
		},
		Now: time.Now,
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:        s.seq,
		members:    make(map[int64]domain.Member, len(s.members)),
		sheets:     make(map[int64]domain.CaptureSheet, len(s.sheets)),
		lines:      make(map[int64]domain.CaptureLine, len(s.lines)),
		summaries:  make(map[int64]domain.DistributorSummary, len(s.summaries)),
		sumLines:   make(map[int64]domain.DistributorLine, len(s.sumLines)),
		history:    make(map[int64]domain.HistoryRecord, len(s.history)),
		rules:      make(map[domain.Genealogy]domain.PromotionRule, len(s.rules)),
		events:     append([]domain.Event(nil), s.events...),
		prints:     make(map[printKey]domain.PrintRecord, len(s.prints)),
		timeLogs:   make(map[int64]domain.CaptureTimeLog, len(s.timeLogs)),
		statusLogs: make(map[auditKey]domain.StatusAudit, len(s.statusLogs)),
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.sheets {
		c.sheets[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.summaries {
		c.summaries[k] = v
	}
	for k, v := range s.sumLines {
		c.sumLines[k] = v
	}
	for k, v := range s.history {
		c.history[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.prints {
		c.prints[k] = v
	}
	for k, v := range s.timeLogs {
		c.timeLogs[k] = v
	}
	for k, v := range s.statusLogs {
		c.statusLogs[k] = v
	}
	return c
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, &memTx{s: work, now: m.Now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) Health(context.Context) error { return nil }

func (m *MemoryStore) Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return m.WithTx(ctx, fn)
}

type memTx struct {
	s   *memState
	now func() time.Time
}

func (t *memTx) nextID() int64 {
	t.s.seq++
	return t.s.seq
}

// Members

func (t *memTx) GetMember(_ context.Context, id int64) (*domain.Member, error) {
	m, ok := t.s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (t *memTx) ListMembers(_ context.Context, f MemberFilter) ([]domain.Member, error) {
	ids := map[int64]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	levels := map[domain.Genealogy]bool{}
	for _, g := range f.Genealogies {
		levels[g] = true
	}
	var out []domain.Member
	for _, m := range t.s.members {
		switch {
		case m.Archived && !f.IncludeArchived,
			len(ids) > 0 && !ids[m.ID],
			len(levels) > 0 && !levels[m.Genealogy],
			!matchID(f.ManagerID, m.ManagerID),
			!matchID(f.RecruiterID, m.RecruiterID),
			!matchID(f.PromoterID, m.PromoterID),
			!matchID(f.ProspectiveManagerID, m.RelatedProspectiveManagerID),
			!matchID(f.ProspectiveDistributorID, m.RelatedProspectiveDistributorID),
			!matchID(f.DistributorID, m.RelatedDistributorID),
			f.LastSaleBefore != nil && m.LastSaleDate != nil && !m.LastSaleDate.Before(*f.LastSaleBefore),
			f.UpdatedSince != nil && !m.UpdatedAt.After(*f.UpdatedSince):
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, f.Limit), nil
}

func matchID(want, got *int64) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (t *memTx) CreateMember(_ context.Context, m *domain.Member) error {
	m.ID = t.nextID()
	if m.ActiveStatus == "" {
		m.ActiveStatus = domain.StatusPotentialConsultant
	}
	m.CreatedAt = t.now()
	m.UpdatedAt = m.CreatedAt
	t.s.members[m.ID] = *m
	return nil
}

func (t *memTx) UpdateMember(_ context.Context, m *domain.Member) error {
	if _, ok := t.s.members[m.ID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = t.now()
	t.s.members[m.ID] = *m
	return nil
}

// Sheets

func (t *memTx) withLines(s domain.CaptureSheet) *domain.CaptureSheet {
	s.Lines = nil
	for _, l := range t.s.lines {
		if l.SheetID == s.ID {
			s.Lines = append(s.Lines, l)
		}
	}
	sort.Slice(s.Lines, func(i, j int) bool { return s.Lines[i].ID < s.Lines[j].ID })
	s.Recompute()
	return &s
}

func (t *memTx) GetSheet(_ context.Context, id int64, _ bool) (*domain.CaptureSheet, error) {
	s, ok := t.s.sheets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.withLines(s), nil
}

func (t *memTx) FindSheet(_ context.Context, managerID int64, p domain.Period) (*domain.CaptureSheet, error) {
	for _, s := range t.s.sheets {
		if s.ManagerID == managerID && s.Period == p {
			return t.withLines(s), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListSheets(_ context.Context, f SheetFilter) ([]domain.CaptureSheet, error) {
	var out []domain.CaptureSheet
	for _, s := range t.s.sheets {
		if !matchID(f.ManagerID, &s.ManagerID) || !matchID(f.DistributorID, s.DistributorID) ||
			(f.Period != nil && s.Period != *f.Period) || (f.State != nil && s.State != *f.State) {
			continue
		}
		out = append(out, *t.withLines(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.After(out[j].Period)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, f.Limit), nil
}

func (t *memTx) CreateSheet(ctx context.Context, s *domain.CaptureSheet) error {
	for _, existing := range t.s.sheets {
		if existing.ManagerID == s.ManagerID && existing.Period == s.Period {
			return fmt.Errorf("capture sheet for manager %d and %s: %w", s.ManagerID, s.Period, ErrConflict)
		}
	}
	s.ID = t.nextID()
	s.CreatedAt = t.now()
	s.UpdatedAt = s.CreatedAt
	header := *s
	header.Lines = nil
	t.s.sheets[s.ID] = header
	for i := range s.Lines {
		s.Lines[i].SheetID = s.ID
		if err := t.SaveLine(ctx, &s.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) UpdateSheet(_ context.Context, s *domain.CaptureSheet) error {
	if _, ok := t.s.sheets[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = t.now()
	header := *s
	header.Lines = nil
	t.s.sheets[s.ID] = header
	return nil
}

func (t *memTx) DeleteSheet(_ context.Context, id int64) error {
	if _, ok := t.s.sheets[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.sheets, id)
	for lid, l := range t.s.lines {
		if l.SheetID == id {
			delete(t.s.lines, lid)
		}
	}
	return nil
}

func (t *memTx) SaveLine(_ context.Context, l *domain.CaptureLine) error {
	if _, ok := t.s.sheets[l.SheetID]; !ok {
		return ErrNotFound
	}
	for _, v := range []decimal.Decimal{l.BBSales, l.BBReturns, l.PuerSales, l.PuerReturns} {
		if v.IsNegative() {
			return fmt.Errorf("capture line %d: negative amount: %w", l.ID, ErrConflict)
		}
	}
	if l.ID == 0 {
		l.ID = t.nextID()
	} else if existing, ok := t.s.lines[l.ID]; !ok || existing.SheetID != l.SheetID {
		return ErrNotFound
	}
	l.UpdatedAt = t.now()
	stored := *l
	stored.AggregatedAncestorIDs = append([]int64(nil), l.AggregatedAncestorIDs...)
	t.s.lines[l.ID] = stored
	return nil
}

func (t *memTx) DeleteLine(_ context.Context, sheetID, lineID int64) error {
	l, ok := t.s.lines[lineID]
	if !ok || l.SheetID != sheetID {
		return ErrNotFound
	}
	delete(t.s.lines, lineID)
	return nil
}

// Summaries

func (t *memTx) withSummaryLines(s domain.DistributorSummary) *domain.DistributorSummary {
	s.Lines = nil
	for _, l := range t.s.sumLines {
		if l.SummaryID != s.ID {
			continue
		}
		l.TotalCaptured = decimal.Zero
		if l.SheetID != nil {
			if sheet, ok := t.s.sheets[*l.SheetID]; ok && sheet.State.Aggregated() {
				l.TotalCaptured = t.withLines(sheet).Totals.SubTotal
			}
		}
		s.Lines = append(s.Lines, l)
	}
	sort.Slice(s.Lines, func(i, j int) bool { return s.Lines[i].ID < s.Lines[j].ID })
	s.Recompute()
	return &s
}

func (t *memTx) GetSummary(_ context.Context, id int64, _ bool) (*domain.DistributorSummary, error) {
	s, ok := t.s.summaries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.withSummaryLines(s), nil
}

func (t *memTx) FindSummary(_ context.Context, distributorID int64, p domain.Period) (*domain.DistributorSummary, error) {
	for _, s := range t.s.summaries {
		if s.DistributorID == distributorID && s.Period == p {
			return t.withSummaryLines(s), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListSummaries(_ context.Context, f SummaryFilter) ([]domain.DistributorSummary, error) {
	var out []domain.DistributorSummary
	for _, s := range t.s.summaries {
		if !matchID(f.DistributorID, &s.DistributorID) || (f.Period != nil && s.Period != *f.Period) ||
			(f.State != nil && s.State != *f.State) {
			continue
		}
		out = append(out, *t.withSummaryLines(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.After(out[j].Period)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, f.Limit), nil
}

func (t *memTx) CreateSummary(ctx context.Context, s *domain.DistributorSummary) error {
	for _, existing := range t.s.summaries {
		if existing.DistributorID == s.DistributorID && existing.Period == s.Period {
			return fmt.Errorf("distributor summary for %d and %s: %w", s.DistributorID, s.Period, ErrConflict)
		}
	}
	s.ID = t.nextID()
	s.CreatedAt = t.now()
	s.UpdatedAt = s.CreatedAt
	header := *s
	header.Lines = nil
	t.s.summaries[s.ID] = header
	for i := range s.Lines {
		s.Lines[i].SummaryID = s.ID
		if err := t.SaveSummaryLine(ctx, &s.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) UpdateSummary(_ context.Context, s *domain.DistributorSummary) error {
	if _, ok := t.s.summaries[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = t.now()
	header := *s
	header.Lines = nil
	t.s.summaries[s.ID] = header
	return nil
}

func (t *memTx) SaveSummaryLine(_ context.Context, l *domain.DistributorLine) error {
	if _, ok := t.s.summaries[l.SummaryID]; !ok {
		return ErrNotFound
	}
	if l.ActualSales.IsNegative() {
		return fmt.Errorf("distributor line %d: negative amount: %w", l.ID, ErrConflict)
	}
	if l.ID == 0 {
		for id, existing := range t.s.sumLines {
			if existing.SummaryID == l.SummaryID && existing.ManagerID == l.ManagerID {
				l.ID = id
			}
		}
		if l.ID == 0 {
			l.ID = t.nextID()
		}
	} else if existing, ok := t.s.sumLines[l.ID]; !ok || existing.SummaryID != l.SummaryID {
		return ErrNotFound
	}
	l.UpdatedAt = t.now()
	t.s.sumLines[l.ID] = *l
	return nil
}

// History

func (t *memTx) findHistory(memberID int64, p domain.Period) (domain.HistoryRecord, bool) {
	for _, h := range t.s.history {
		if h.MemberID == memberID && h.Period == p {
			return h, true
		}
	}
	return domain.HistoryRecord{}, false
}

func (t *memTx) LockHistory(_ context.Context, seed domain.HistoryRecord) (*domain.HistoryRecord, bool, error) {
	if h, ok := t.findHistory(seed.MemberID, seed.Period); ok {
		return &h, false, nil
	}
	h := domain.HistoryRecord{
		ID:              t.nextID(),
		MemberID:        seed.MemberID,
		Period:          seed.Period,
		PersonalBB:      decimal.Zero,
		PersonalPuer:    decimal.Zero,
		TeamBB:          decimal.Zero,
		TeamPuer:        decimal.Zero,
		TeamPromoted:    seed.TeamPromoted,
		ActiveStatus:    seed.ActiveStatus,
		Genealogy:       seed.Genealogy,
		ManagerID:       seed.ManagerID,
		ManagerCode:     seed.ManagerCode,
		DistributorCode: seed.DistributorCode,
		PromotedByID:    seed.PromotedByID,
		CreatedAt:       t.now(),
	}
	h.UpdatedAt = h.CreatedAt
	t.s.history[h.ID] = h
	return &h, true, nil
}

func (t *memTx) GetHistory(_ context.Context, memberID int64, p domain.Period) (*domain.HistoryRecord, error) {
	h, ok := t.findHistory(memberID, p)
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (t *memTx) SaveHistory(_ context.Context, h *domain.HistoryRecord) error {
	if _, ok := t.s.history[h.ID]; !ok {
		return ErrNotFound
	}
	h.UpdatedAt = t.now()
	t.s.history[h.ID] = *h
	return nil
}

func (t *memTx) ListHistory(_ context.Context, f HistoryFilter) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	for _, h := range t.s.history {
		switch {
		case !matchID(f.MemberID, &h.MemberID),
			f.Period != nil && h.Period != *f.Period,
			f.UpTo != nil && h.Period.After(*f.UpTo),
			f.Before != nil && !h.Period.Before(*f.Before),
			f.PersonalNonZero && h.PersonalSales().IsZero(),
			f.UpdatedSince != nil && !h.UpdatedAt.After(*f.UpdatedSince):
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.After(out[j].Period)
		}
		return out[i].MemberID < out[j].MemberID
	})
	return truncate(out, f.Limit), nil
}

// Rules

func (t *memTx) GetRule(_ context.Context, level domain.Genealogy) (*domain.PromotionRule, error) {
	r, ok := t.s.rules[level]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) ListRules(_ context.Context) ([]domain.PromotionRule, error) {
	out := make([]domain.PromotionRule, 0, len(t.s.rules))
	for _, r := range t.s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveRule(_ context.Context, r *domain.PromotionRule) error {
	if existing, ok := t.s.rules[r.CurrentLevel]; ok {
		r.ID = existing.ID
	} else {
		r.ID = t.nextID()
	}
	r.UpdatedAt = t.now()
	t.s.rules[r.CurrentLevel] = *r
	return nil
}

// Events

func (t *memTx) AppendEvent(_ context.Context, e *domain.Event) error {
	t.s.events = append(t.s.events, *e)
	return nil
}

func (t *memTx) ListEvents(_ context.Context, f EventFilter) ([]domain.Event, error) {
	var out []domain.Event
	for i := len(t.s.events) - 1; i >= 0; i-- {
		e := t.s.events[i]
		if (f.EntityType != "" && e.EntityType != f.EntityType) || !matchID(f.EntityID, &e.EntityID) ||
			(f.Type != "" && e.Type != f.Type) {
			continue
		}
		out = append(out, e)
	}
	return truncate(out, f.Limit), nil
}

// Prints

func (t *memTx) LockPrint(_ context.Context, kind domain.PrintKind, targetID int64) (*domain.PrintRecord, error) {
	key := printKey{kind: kind, id: targetID}
	p, ok := t.s.prints[key]
	if !ok {
		p = domain.PrintRecord{ID: t.nextID(), Kind: kind, TargetID: targetID, State: domain.PrintStatePrinted, UpdatedAt: t.now()}
		t.s.prints[key] = p
	}
	return &p, nil
}

func (t *memTx) SavePrint(_ context.Context, p *domain.PrintRecord) error {
	key := printKey{kind: p.Kind, id: p.TargetID}
	if _, ok := t.s.prints[key]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = t.now()
	t.s.prints[key] = *p
	return nil
}

// Audits

func (t *memTx) HasCaptureTimeLog(_ context.Context, sheetID int64) (bool, error) {
	_, ok := t.s.timeLogs[sheetID]
	return ok, nil
}

func (t *memTx) CreateCaptureTimeLog(_ context.Context, l *domain.CaptureTimeLog) error {
	if _, ok := t.s.timeLogs[l.SheetID]; ok {
		return fmt.Errorf("capture time log for sheet %d: %w", l.SheetID, ErrConflict)
	}
	l.ID = t.nextID()
	l.LoggedAt = t.now()
	t.s.timeLogs[l.SheetID] = *l
	return nil
}

func (t *memTx) UpsertStatusAudit(_ context.Context, a *domain.StatusAudit) error {
	key := auditKey{member: a.MemberID, period: a.Period}
	if existing, ok := t.s.statusLogs[key]; ok {
		a.ID = existing.ID
	} else {
		a.ID = t.nextID()
	}
	a.RecordedAt = t.now()
	t.s.statusLogs[key] = *a
	return nil
}

func (t *memTx) ListStatusAudits(_ context.Context, memberID int64, limit int) ([]domain.StatusAudit, error) {
	var out []domain.StatusAudit
	for _, a := range t.s.statusLogs {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.After(out[j].Period) })
	return truncate(out, limit), nil
}
