package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	SheetLinesPerPage   = 9
	SummaryLinesPerPage = 8
)

var stateOrder = map[SheetState]int{
	StateNew:        0,
	StateRegistered: 1,
	StateCaptured:   2,
	StateVerified:   3,
}

func (s SheetState) Valid() bool {
	_, ok := stateOrder[s]
	return ok
}

// CanAdvance allows exactly one forward step.
func (s SheetState) CanAdvance(to SheetState) bool {
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	target, ok := stateOrder[to]
	return ok && target == from+1
}

// Aggregated reports whether lines in this state feed history.
func (s SheetState) Aggregated() bool {
	return s == StateCaptured || s == StateVerified
}

// BBTotal is bb sales net of returns.
func (l CaptureLine) BBTotal() decimal.Decimal {
	return l.BBSales.Sub(l.BBReturns.Abs())
}

func (l CaptureLine) PuerTotal() decimal.Decimal {
	return l.PuerSales.Sub(l.PuerReturns.Abs())
}

func (l CaptureLine) SubTotal() decimal.Decimal {
	return l.BBTotal().Add(l.PuerTotal())
}

// HasEntry reports whether anything at all was written on the line.
func (l CaptureLine) HasEntry() bool {
	return !l.BBSales.IsZero() || !l.BBReturns.IsZero() || !l.PuerSales.IsZero() ||
		!l.PuerReturns.IsZero() || l.Comment != ""
}

// Validate rejects negative figures.
func (l CaptureLine) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"bb_sales", l.BBSales},
		{"bb_returns", l.BBReturns},
		{"puer_sales", l.PuerSales},
		{"puer_returns", l.PuerReturns},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return Invalid("capture line", l.ID, f.name, fmt.Sprintf("must not be negative (got %s)", f.value.String()))
		}
	}
	if l.ConsultantID == 0 {
		return Invalid("capture line", l.ID, "consultant_id", "is required")
	}
	return nil
}

// ComputeSheetTotals recomputes the derived totals from the lines.
func ComputeSheetTotals(lines []CaptureLine) SheetTotals {
	t := SheetTotals{BBTotal: decimal.Zero, PuerTotal: decimal.Zero, SubTotal: decimal.Zero}
	for _, l := range lines {
		t.BBTotal = t.BBTotal.Add(l.BBTotal())
		t.PuerTotal = t.PuerTotal.Add(l.PuerTotal())
		t.SubTotal = t.SubTotal.Add(l.SubTotal())
		if l.HasEntry() {
			t.ConsultantsCaptured++
		}
		if !l.SubTotal().IsZero() {
			t.ConsultantsSales++
		}
	}
	return t
}

// Recompute refreshes the sheet's derived fields after a mutation.
func (s *CaptureSheet) Recompute() {
	s.Totals = ComputeSheetTotals(s.Lines)
}

func SheetName(p Period, managerName, managerCode string) string {
	return fmt.Sprintf("%s / %s / %s", p.Name(), managerName, managerCode)
}

func SummaryName(p Period, distributorName, distributorCode string) string {
	return fmt.Sprintf("%s / %s / %s (Summary)", p.Name(), distributorName, distributorCode)
}

func (s *CaptureSheet) Line(id int64) (*CaptureLine, bool) {
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return &s.Lines[i], true
		}
	}
	return nil, false
}

// SalesDifference is what was captured minus what the distributor reports.
func (l DistributorLine) SalesDifference() decimal.Decimal {
	return l.TotalCaptured.Sub(l.ActualSales)
}

func ComputeSummaryTotals(lines []DistributorLine) SummaryTotals {
	t := SummaryTotals{TotalCaptured: decimal.Zero, ActualSales: decimal.Zero, SalesDifference: decimal.Zero}
	for _, l := range lines {
		t.TotalCaptured = t.TotalCaptured.Add(l.TotalCaptured)
		t.ActualSales = t.ActualSales.Add(l.ActualSales)
		if !l.ActualSales.IsZero() {
			t.ManagersWithSales++
		}
	}
	t.SalesDifference = t.TotalCaptured.Sub(t.ActualSales)
	return t
}

func (s *DistributorSummary) Recompute() {
	s.Totals = ComputeSummaryTotals(s.Lines)
}

func (s *DistributorSummary) Line(id int64) (*DistributorLine, bool) {
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return &s.Lines[i], true
		}
	}
	return nil, false
}

// PageTotal is one printed page of non-zero lines.
type PageTotal struct {
	Page      int
	Lines     int
	BBTotal   decimal.Decimal
	PuerTotal decimal.Decimal
	SubTotal  decimal.Decimal
}

// SheetPages splits the non-zero lines into printed pages.
func SheetPages(lines []CaptureLine) []PageTotal {
	var pages []PageTotal
	var cur *PageTotal
	for _, l := range lines {
		if l.SubTotal().IsZero() {
			continue
		}
		if cur == nil || cur.Lines == SheetLinesPerPage {
			pages = append(pages, PageTotal{Page: len(pages) + 1, BBTotal: decimal.Zero, PuerTotal: decimal.Zero, SubTotal: decimal.Zero})
			cur = &pages[len(pages)-1]
		}
		cur.Lines++
		cur.BBTotal = cur.BBTotal.Add(l.BBTotal())
		cur.PuerTotal = cur.PuerTotal.Add(l.PuerTotal())
		cur.SubTotal = cur.SubTotal.Add(l.SubTotal())
	}
	return pages
}

// SummaryPages splits the summary lines with actual sales into printed pages.
func SummaryPages(lines []DistributorLine) []PageTotal {
	var pages []PageTotal
	var cur *PageTotal
	for _, l := range lines {
		if l.ActualSales.IsZero() && l.TotalCaptured.IsZero() {
			continue
		}
		if cur == nil || cur.Lines == SummaryLinesPerPage {
			pages = append(pages, PageTotal{Page: len(pages) + 1, BBTotal: decimal.Zero, PuerTotal: decimal.Zero, SubTotal: decimal.Zero})
			cur = &pages[len(pages)-1]
		}
		cur.Lines++
		cur.SubTotal = cur.SubTotal.Add(l.ActualSales)
	}
	return pages
}
