package repository

import (
	"context"
	"errors"
	"time"

	"payin-backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type MemberFilter struct {
	IDs                      []int64
	ManagerID                *int64
	RecruiterID              *int64
	PromoterID               *int64
	ProspectiveManagerID     *int64
	ProspectiveDistributorID *int64
	DistributorID            *int64
	Genealogies              []domain.Genealogy
	// LastSaleBefore also matches members that never sold.
	LastSaleBefore  *time.Time
	UpdatedSince    *time.Time
	IncludeArchived bool
	Limit           int
}

type SheetFilter struct {
	ManagerID     *int64
	DistributorID *int64
	Period        *domain.Period
	State         *domain.SheetState
	Limit         int
}

type SummaryFilter struct {
	DistributorID *int64
	Period        *domain.Period
	State         *domain.SheetState
	Limit         int
}

// HistoryFilter results are ordered newest period first, then member id.
type HistoryFilter struct {
	MemberID *int64
	Period   *domain.Period
	UpTo     *domain.Period
	Before   *domain.Period
	// PersonalNonZero keeps only periods with personal sales.
	PersonalNonZero bool
	UpdatedSince    *time.Time
	Limit           int
}

type EventFilter struct {
	EntityType string
	EntityID   *int64
	Type       domain.EventType
	Limit      int
}

type Members interface {
	GetMember(ctx context.Context, id int64) (*domain.Member, error)
	ListMembers(ctx context.Context, f MemberFilter) ([]domain.Member, error)
	CreateMember(ctx context.Context, m *domain.Member) error
	UpdateMember(ctx context.Context, m *domain.Member) error
}

type Sheets interface {
	// GetSheet loads the sheet with its lines; forUpdate row-locks the header.
	GetSheet(ctx context.Context, id int64, forUpdate bool) (*domain.CaptureSheet, error)
	FindSheet(ctx context.Context, managerID int64, p domain.Period) (*domain.CaptureSheet, error)
	ListSheets(ctx context.Context, f SheetFilter) ([]domain.CaptureSheet, error)
	CreateSheet(ctx context.Context, s *domain.CaptureSheet) error
	UpdateSheet(ctx context.Context, s *domain.CaptureSheet) error
	DeleteSheet(ctx context.Context, id int64) error
	SaveLine(ctx context.Context, l *domain.CaptureLine) error
	DeleteLine(ctx context.Context, sheetID, lineID int64) error
}

type Summaries interface {
	GetSummary(ctx context.Context, id int64, forUpdate bool) (*domain.DistributorSummary, error)
	FindSummary(ctx context.Context, distributorID int64, p domain.Period) (*domain.DistributorSummary, error)
	ListSummaries(ctx context.Context, f SummaryFilter) ([]domain.DistributorSummary, error)
	CreateSummary(ctx context.Context, s *domain.DistributorSummary) error
	UpdateSummary(ctx context.Context, s *domain.DistributorSummary) error
	SaveSummaryLine(ctx context.Context, l *domain.DistributorLine) error
}

type History interface {
	// LockHistory returns the (member, period) record, creating it from seed when absent,
	// and holds a row lock on it until the transaction ends.
	LockHistory(ctx context.Context, seed domain.HistoryRecord) (*domain.HistoryRecord, bool, error)
	GetHistory(ctx context.Context, memberID int64, p domain.Period) (*domain.HistoryRecord, error)
	SaveHistory(ctx context.Context, h *domain.HistoryRecord) error
	ListHistory(ctx context.Context, f HistoryFilter) ([]domain.HistoryRecord, error)
}

type Rules interface {
	GetRule(ctx context.Context, level domain.Genealogy) (*domain.PromotionRule, error)
	ListRules(ctx context.Context) ([]domain.PromotionRule, error)
	SaveRule(ctx context.Context, r *domain.PromotionRule) error
}

type Events interface {
	AppendEvent(ctx context.Context, e *domain.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error)
}

type Prints interface {
	// LockPrint returns the counter row for the report, creating it with a zero count.
	LockPrint(ctx context.Context, kind domain.PrintKind, targetID int64) (*domain.PrintRecord, error)
	SavePrint(ctx context.Context, p *domain.PrintRecord) error
}

type Audits interface {
	HasCaptureTimeLog(ctx context.Context, sheetID int64) (bool, error)
	CreateCaptureTimeLog(ctx context.Context, l *domain.CaptureTimeLog) error
	UpsertStatusAudit(ctx context.Context, a *domain.StatusAudit) error
	ListStatusAudits(ctx context.Context, memberID int64, limit int) ([]domain.StatusAudit, error)
}

// Tx is the unit of work every use case runs against.
type Tx interface {
	Members
	Sheets
	Summaries
	History
	Rules
	Events
	Prints
	Audits
}

// Store opens units of work. WithTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
