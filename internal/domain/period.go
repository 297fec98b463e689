package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period is one capture cycle: a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

func NewPeriod(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "2025-01" or a full "2025-01-15" date.
func ParsePeriod(s string) (Period, error) {
	if t, err := time.Parse(periodLayout, s); err == nil {
		return NewPeriod(t), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return NewPeriod(t), nil
}

// Start is the first day of the month in UTC; this is the stored form.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) String() string {
	return p.Start().Format(periodLayout)
}

// Name renders the human label, e.g. "January 2025".
func (p Period) Name() string {
	return p.Start().Format("January 2006")
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}

func (p Period) Before(o Period) bool { return p.Index() < o.Index() }
func (p Period) After(o Period) bool  { return p.Index() > o.Index() }

func (p Period) AddMonths(n int) Period {
	return NewPeriod(p.Start().AddDate(0, n, 0))
}

// MonthsBetween returns how many months b is after a.
func MonthsBetween(a, b Period) int {
	return b.Index() - a.Index()
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Period) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
