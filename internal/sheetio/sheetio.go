package sheetio

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"payin-backend/internal/domain"
)

const (
	linesSheet   = "Lines"
	historySheet = "History"
)

var lineHeader = []string{"Consultant ID", "Code", "Name", "BB Sales", "BB Returns", "Puer Sales", "Puer Returns", "Sub Total", "Comment"}

// Row is one line read back from an uploaded workbook.
type Row struct {
	Line         int
	ConsultantID int64
	BBSales      decimal.Decimal
	BBReturns    decimal.Decimal
	PuerSales    decimal.Decimal
	PuerReturns  decimal.Decimal
	Comment      string
}

// WriteSheet renders a capture sheet as a workbook whose Lines tab can be
// filled in and uploaded again.
func WriteSheet(w io.Writer, sheet *domain.CaptureSheet, members map[int64]domain.Member) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(linesSheet)
	if err != nil {
		return err
	}
	_ = f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	writeRow(f, linesSheet, 1, toAny(lineHeader))
	for i, l := range sheet.Lines {
		m := members[l.ConsultantID]
		writeRow(f, linesSheet, i+2, []any{
			l.ConsultantID,
			m.Code,
			m.Name,
			l.BBSales.InexactFloat64(),
			l.BBReturns.InexactFloat64(),
			l.PuerSales.InexactFloat64(),
			l.PuerReturns.InexactFloat64(),
			l.SubTotal().InexactFloat64(),
			l.Comment,
		})
	}
	total := len(sheet.Lines) + 2
	writeRow(f, linesSheet, total, []any{
		"", "", "Total",
		"", "", "", "",
		sheet.Totals.SubTotal.InexactFloat64(),
		fmt.Sprintf("%s | %s", sheet.Name, sheet.State),
	})

	_ = f.SetColWidth(linesSheet, "A", "A", 14)
	_ = f.SetColWidth(linesSheet, "B", "B", 12)
	_ = f.SetColWidth(linesSheet, "C", "C", 28)
	_ = f.SetColWidth(linesSheet, "D", "H", 13)
	_ = f.SetColWidth(linesSheet, "I", "I", 36)
	headerStyle(f, linesSheet, "A1", "I1")

	_, err = f.WriteTo(w)
	return err
}

// ReadLines parses the Lines tab of an uploaded workbook. Blank rows and the
// trailing total row are skipped; a malformed cell fails the whole upload.
func ReadLines(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.Invalid("workbook", 0, "file", err.Error())
	}
	defer f.Close()

	sheet := linesSheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.Invalid("workbook", 0, "file", err.Error())
	}
	if len(rows) == 0 {
		return nil, domain.Invalid("workbook", 0, "file", "no rows")
	}

	var out []Row
	for i, cells := range rows[1:] {
		line := i + 2
		id := strings.TrimSpace(cell(cells, 0))
		if id == "" {
			continue
		}
		consultantID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, domain.Invalid("workbook", 0, fmt.Sprintf("row %d consultant id", line), fmt.Sprintf("%q is not a number", id))
		}
		row := Row{Line: line, ConsultantID: consultantID, Comment: strings.TrimSpace(cell(cells, 8))}
		figures := []*decimal.Decimal{&row.BBSales, &row.BBReturns, &row.PuerSales, &row.PuerReturns}
		for j, dst := range figures {
			v, err := amount(cell(cells, 3+j))
			if err != nil {
				return nil, domain.Invalid("workbook", 0, fmt.Sprintf("row %d %s", line, strings.ToLower(lineHeader[3+j])), err.Error())
			}
			*dst = v
		}
		out = append(out, row)
	}
	return out, nil
}

// WriteHistory exports history records, one row per member and period.
func WriteHistory(w io.Writer, records []domain.HistoryRecord, members map[int64]domain.Member) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		return err
	}
	_ = f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	header := []string{"Period", "Member ID", "Code", "Name", "Genealogy", "Active Status", "Personal BB", "Personal Puer", "Team BB", "Team Puer", "Active Consultants", "Promoted Managers", "Manager Code", "Distributor Code"}
	writeRow(f, historySheet, 1, toAny(header))
	for i, h := range records {
		m := members[h.MemberID]
		writeRow(f, historySheet, i+2, []any{
			h.Period.String(),
			h.MemberID,
			m.Code,
			m.Name,
			h.Genealogy.Label(),
			string(h.ActiveStatus),
			h.PersonalBB.InexactFloat64(),
			h.PersonalPuer.InexactFloat64(),
			h.TeamBB.InexactFloat64(),
			h.TeamPuer.InexactFloat64(),
			h.ActiveDescendantCount,
			h.TeamPromoted,
			h.ManagerCode,
			h.DistributorCode,
		})
	}
	_ = f.SetColWidth(historySheet, "A", "B", 11)
	_ = f.SetColWidth(historySheet, "C", "C", 12)
	_ = f.SetColWidth(historySheet, "D", "D", 28)
	_ = f.SetColWidth(historySheet, "E", "F", 20)
	_ = f.SetColWidth(historySheet, "G", "N", 14)
	headerStyle(f, historySheet, "A1", "N1")

	_, err = f.WriteTo(w)
	return err
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for c, v := range values {
		name, _ := excelize.CoordinatesToCellName(c+1, row)
		_ = f.SetCellValue(sheet, name, v)
	}
}

func headerStyle(f *excelize.File, sheet, from, to string) {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	if err != nil {
		return
	}
	_ = f.SetCellStyle(sheet, from, to, style)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func cell(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	return cells[i]
}

var errNegative = errors.New("must not be negative")

func amount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not an amount", s)
	}
	if d.IsNegative() {
		return decimal.Zero, errNegative
	}
	return d, nil
}
