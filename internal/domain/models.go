package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enumerations
const (
	GenealogyDistributor            Genealogy = "distributor"
	GenealogyDistributorPartner     Genealogy = "distributor_partner"
	GenealogyProspectiveDistributor Genealogy = "prospective_distributor"
	GenealogyManager                Genealogy = "manager"
	GenealogyManagerPartner         Genealogy = "manager_partner"
	GenealogyProspectiveManager     Genealogy = "prospective_manager"
	GenealogyConsultant             Genealogy = "consultant"
	GenealogyPotentialConsultant    Genealogy = "potential_consultant"
	GenealogySupportOffice          Genealogy = "support_office"

	StatusPotentialConsultant ActiveStatus = "potential_consultant"
	StatusPayInSheetPending   ActiveStatus = "pay_in_sheet_pending"
	StatusActive1             ActiveStatus = "active1"
	StatusActive2             ActiveStatus = "active2"
	StatusActive3             ActiveStatus = "active3"
	StatusActive4             ActiveStatus = "active4"
	StatusActive5             ActiveStatus = "active5"
	StatusActive6             ActiveStatus = "active6"
	StatusInactive12          ActiveStatus = "inactive12"
	StatusInactive18          ActiveStatus = "inactive18"
	StatusSuspended           ActiveStatus = "suspended"
	StatusBlacklisted         ActiveStatus = "blacklisted"

	StateNew        SheetState = "new"
	StateRegistered SheetState = "registered"
	StateCaptured   SheetState = "captured"
	StateVerified   SheetState = "verified"

	PrintSheet   PrintKind = "sheet"
	PrintSummary PrintKind = "summary"

	PrintStatePrinted   PrintState = "printed"
	PrintStateReprinted PrintState = "reprinted"

	EventCaptureEdited   EventType = "capture_edited"
	EventSheetCaptured   EventType = "sheet_captured"
	EventSheetVerified   EventType = "sheet_verified"
	EventSummaryVerified EventType = "summary_verified"
	EventMemberPromoted  EventType = "member_promoted"
	EventMemberDemoted   EventType = "member_demoted"
	EventMemberMoved     EventType = "member_moved"
	EventReportReprinted EventType = "report_reprinted"
)

type Genealogy string
type ActiveStatus string
type SheetState string
type PrintKind string
type PrintState string
type EventType string

type Member struct {
	ID                              int64
	Name                            string
	Code                            string
	Genealogy                       Genealogy
	PreviousGenealogy               *Genealogy
	ManagerID                       *int64
	PreviousManagerID               *int64
	RecruiterID                     *int64
	PromoterID                      *int64
	RelatedDistributorID            *int64
	RelatedProspectiveManagerID     *int64
	RelatedProspectiveDistributorID *int64
	ActiveStatus                    ActiveStatus
	LastSaleDate                    *time.Time
	PreviousLastSaleDate            *time.Time
	FirstSaleDate                   *time.Time
	MonthsSinceLastSale             int
	MostRecentMonthsSales           int
	FourMonthsSales                 decimal.Decimal
	SoldPreviousMonth               bool
	HasSale                         bool
	PromotionDate                   *time.Time
	DemotionDate                    *time.Time
	MoveDate                        *time.Time
	Archived                        bool
	CreatedAt                       time.Time
	UpdatedAt                       time.Time
}

type CaptureSheet struct {
	ID               int64
	Name             string
	ManagerID        int64
	DistributorID    *int64
	Period           Period
	State            SheetState
	RegisteredDate   *time.Time
	CapturedBy       string
	CapturedDate     *time.Time
	VerifiedDate     *time.Time
	IsLocked         bool
	IsNoSales        bool
	CaptureStartDate *time.Time
	TimerStart       *time.Time
	TimerPause       *time.Time
	TimerRunning     bool
	CaptureTime      float64
	Lines            []CaptureLine
	Totals           SheetTotals
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CaptureLine struct {
	ID           int64
	SheetID      int64
	ConsultantID int64
	BBSales      decimal.Decimal
	BBReturns    decimal.Decimal
	PuerSales    decimal.Decimal
	PuerReturns  decimal.Decimal
	Comment      string

	// What this line last pushed into history, and the ancestors it credited.
	AggregatedConsultantID *int64
	AggregatedAncestorIDs  []int64
	AggregatedBB           decimal.Decimal
	AggregatedPuer         decimal.Decimal
	AggregatedActive       bool

	UpdatedAt time.Time
}

type SheetTotals struct {
	BBTotal             decimal.Decimal
	PuerTotal           decimal.Decimal
	SubTotal            decimal.Decimal
	ConsultantsCaptured int
	ConsultantsSales    int
}

type DistributorSummary struct {
	ID               int64
	Name             string
	DistributorID    int64
	Period           Period
	State            SheetState
	RegisteredDate   *time.Time
	CapturedBy       string
	CapturedDate     *time.Time
	VerifiedDate     *time.Time
	IsLocked         bool
	CaptureStartDate *time.Time
	TimerStart       *time.Time
	TimerPause       *time.Time
	TimerRunning     bool
	CaptureTime      float64
	Lines            []DistributorLine
	Totals           SummaryTotals
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type DistributorLine struct {
	ID            int64
	SummaryID     int64
	ManagerID     int64
	SheetID       *int64
	ActualSales   decimal.Decimal
	TotalCaptured decimal.Decimal
	Comment       string
	UpdatedAt     time.Time
}

type SummaryTotals struct {
	TotalCaptured     decimal.Decimal
	ActualSales       decimal.Decimal
	SalesDifference   decimal.Decimal
	ManagersWithSales int
}

type HistoryRecord struct {
	ID                    int64
	MemberID              int64
	Period                Period
	PersonalBB            decimal.Decimal
	PersonalPuer          decimal.Decimal
	TeamBB                decimal.Decimal
	TeamPuer              decimal.Decimal
	ActiveDescendantCount int
	TeamPromoted          int
	ActiveStatus          ActiveStatus
	Genealogy             Genealogy
	ManagerID             *int64
	ManagerCode           string
	DistributorCode       string
	PromotedByID          *int64
	Flags                 PromotionFlags
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type PromotionFlags struct {
	PersonalSalesPromotion             bool
	TeamSalesPromotion                 bool
	ActiveSFMPromotion                 bool
	Active80                           bool
	Personal80                         bool
	Team80                             bool
	ManagerPromoteActiveConsultants    bool
	ManagerPromotedSalesAbove          bool
	PBMPromotedActiveConsultants       int
	PBMPromotedManagersActivePromotion bool
	PBMPromotedManagersTeamSalesAbove  int
	PBMTeamSalesAbove                  bool
}

type PromotionRule struct {
	ID                               int64
	CurrentLevel                     Genealogy
	NextLevel                        Genealogy
	SalesMonth                       int
	OwnSalesValue                    decimal.Decimal
	TeamSalesValue                   decimal.Decimal
	TeamSalesValuePerPromotedManager decimal.Decimal
	RetainedConsultants              int
	MonthsRetainedConsultants        int
	PromotedManagers                 int
	PromotedManagersMonths           int
	PromotedManagerActiveConsultants int
	ManagerSalesMonth                int
	PromotedTeamSalesMonth           int
	ExcludedMonths                   []time.Month
	UpdatedAt                        time.Time
}

type Event struct {
	ID         string
	Type       EventType
	EntityType string
	EntityID   int64
	Actor      string
	Message    string
	OldTotal   *decimal.Decimal
	NewTotal   *decimal.Decimal
	ElapsedSec *int64
	Payload    map[string]any
	OccurredAt time.Time
}

type PrintRecord struct {
	ID        int64
	Kind      PrintKind
	TargetID  int64
	Count     int
	State     PrintState
	UpdatedAt time.Time
}

type CaptureTimeLog struct {
	ID                  int64
	SheetID             int64
	SheetName           string
	Actor               string
	CaptureStartDate    *time.Time
	CaptureTime         float64
	ConsultantsCaptured int
	ConsultantsSales    int
	LoggedAt            time.Time
}

type StatusAudit struct {
	ID                  int64
	MemberID            int64
	Period              Period
	ActiveStatus        ActiveStatus
	Genealogy           Genealogy
	MonthsSinceLastSale int
	LastSaleDate        *time.Time
	FourMonthsSales     decimal.Decimal
	RecordedAt          time.Time
}

// SaleNotification is handed to the messaging collaborator after capture.
type SaleNotification struct {
	MemberID int64
	SheetID  int64
	Period   Period
	Amount   decimal.Decimal
	Captured time.Time
}
