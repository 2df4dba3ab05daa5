// Package period models calendar months, the unit payments are declared for.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar month. Ordering is (Year, Month).
type Period struct {
	Year  int
	Month int
}

func New(year, month int) Period {
	return Period{Year: year, Month: month}
}

// Of returns the month containing t.
func Of(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

func (p Period) IsZero() bool {
	return p == Period{}
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) After(o Period) bool {
	return o.Before(p)
}

// AddMonths moves the period by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	idx := p.Year*12 + (p.Month - 1) + n
	return Period{Year: idx / 12, Month: idx%12 + 1}
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) MonthName() string {
	if p.Month < 1 || p.Month > 12 {
		return ""
	}
	return time.Month(p.Month).String()
}

// Label renders the period as "January 2026".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.MonthName(), p.Year)
}

// Parse accepts YYYY-MM.
func Parse(s string) (Period, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Period{}, fmt.Errorf("period %q: expected YYYY-MM", s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, fmt.Errorf("period %q: bad year: %w", s, err)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return Period{}, fmt.Errorf("period %q: bad month: %w", s, err)
	}
	p := Period{Year: y, Month: m}
	if !p.Valid() {
		return Period{}, fmt.Errorf("period %q: month out of range", s)
	}
	return p, nil
}

// Range returns every period from start to end inclusive, oldest first.
func Range(start, end Period) []Period {
	var out []Period
	for p := start; !p.After(end); p = p.AddMonths(1) {
		out = append(out, p)
	}
	return out
}
