package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCaptureLineTotals(t *testing.T) {
	l := CaptureLine{
		ConsultantID: 7,
		BBSales:      dec("100"),
		BBReturns:    dec("10"),
		PuerSales:    dec("50.5"),
		PuerReturns:  dec("0.5"),
	}

	assert.True(t, dec("90").Equal(l.BBTotal()))
	assert.True(t, dec("50").Equal(l.PuerTotal()))
	assert.True(t, dec("140").Equal(l.SubTotal()))
	assert.True(t, l.HasEntry())
	assert.False(t, CaptureLine{ConsultantID: 7}.HasEntry())
	assert.True(t, CaptureLine{ConsultantID: 7, Comment: "away"}.HasEntry())
}

func TestCaptureLineValidate(t *testing.T) {
	tests := []struct {
		name    string
		line    CaptureLine
		wantErr string
	}{
		{name: "ok", line: CaptureLine{ConsultantID: 1, BBSales: dec("5")}},
		{name: "negative bb sales", line: CaptureLine{ConsultantID: 1, BBSales: dec("-5")}, wantErr: "bb_sales"},
		{name: "negative puer returns", line: CaptureLine{ConsultantID: 1, PuerReturns: dec("-1")}, wantErr: "puer_returns"},
		{name: "missing consultant", line: CaptureLine{}, wantErr: "consultant_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.line.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestComputeSheetTotals(t *testing.T) {
	lines := []CaptureLine{
		{ConsultantID: 1, BBSales: dec("100"), PuerSales: dec("20")},
		{ConsultantID: 2, Comment: "no sales this month"},
		{ConsultantID: 3},
		{ConsultantID: 4, BBSales: dec("30"), BBReturns: dec("30")},
	}

	totals := ComputeSheetTotals(lines)

	assert.True(t, dec("100").Equal(totals.BBTotal))
	assert.True(t, dec("20").Equal(totals.PuerTotal))
	assert.True(t, dec("120").Equal(totals.SubTotal))
	assert.Equal(t, 3, totals.ConsultantsCaptured)
	assert.Equal(t, 1, totals.ConsultantsSales)
}

func TestSheetStateCanAdvance(t *testing.T) {
	tests := []struct {
		from, to SheetState
		want     bool
	}{
		{StateNew, StateRegistered, true},
		{StateRegistered, StateCaptured, true},
		{StateCaptured, StateVerified, true},
		{StateNew, StateCaptured, false},
		{StateRegistered, StateVerified, false},
		{StateVerified, StateRegistered, false},
		{StateCaptured, StateCaptured, false},
		{SheetState("draft"), StateRegistered, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvance(tt.to))
		})
	}
}

func TestSummaryTotals(t *testing.T) {
	s := DistributorSummary{Lines: []DistributorLine{
		{ManagerID: 1, TotalCaptured: dec("100"), ActualSales: dec("90")},
		{ManagerID: 2, TotalCaptured: dec("0"), ActualSales: dec("0")},
		{ManagerID: 3, TotalCaptured: dec("40"), ActualSales: dec("50")},
	}}
	s.Recompute()

	assert.True(t, dec("140").Equal(s.Totals.TotalCaptured))
	assert.True(t, dec("140").Equal(s.Totals.ActualSales))
	assert.True(t, s.Totals.SalesDifference.IsZero())
	assert.Equal(t, 2, s.Totals.ManagersWithSales)
	assert.True(t, dec("10").Equal(s.Lines[0].SalesDifference()))
	assert.True(t, dec("-10").Equal(s.Lines[2].SalesDifference()))
}

func TestSheetPages(t *testing.T) {
	var lines []CaptureLine
	for i := 1; i <= 10; i++ {
		lines = append(lines, CaptureLine{ConsultantID: int64(i), BBSales: dec("10")})
	}
	lines = append(lines, CaptureLine{ConsultantID: 11}, CaptureLine{ConsultantID: 12})

	pages := SheetPages(lines)

	require.Len(t, pages, 2)
	assert.Equal(t, SheetLinesPerPage, pages[0].Lines)
	assert.True(t, dec("90").Equal(pages[0].SubTotal))
	assert.Equal(t, 1, pages[1].Lines)
	assert.Equal(t, 2, pages[1].Page)
	assert.True(t, dec("10").Equal(pages[1].BBTotal))
}
