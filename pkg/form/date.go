package form

import (
	"strconv"
	"strings"
	"time"
)

// PartialDate is a calendar date where some components may have been filled
// with defaults. Year, Month and Day always hold the resolved values; the Has
// flags record which of them were read from the text.
type PartialDate struct {
	Year, Month, Day          int
	HasYear, HasMonth, HasDay bool
}

// Time returns the date at midnight UTC.
func (d PartialDate) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func (d PartialDate) String() string {
	return d.Time().Format("2006-01-02")
}

// Precision counts the components read from the text.
func (d PartialDate) Precision() int {
	n := 0
	for _, ok := range []bool{d.HasYear, d.HasMonth, d.HasDay} {
		if ok {
			n++
		}
	}
	return n
}

// morePreciseThan compares (HasYear, HasMonth, HasDay) lexicographically.
func (d PartialDate) morePreciseThan(o PartialDate) bool {
	a := []bool{d.HasYear, d.HasMonth, d.HasDay}
	b := []bool{o.HasYear, o.HasMonth, o.HasDay}
	for i := range a {
		if a[i] != b[i] {
			return a[i]
		}
	}
	return false
}

// ParsePartialDate reads a month-day-year date from noisy OCR text. Components
// are separated by '-' when the text contains one and by '/' otherwise; a
// component that is not all digits counts as absent. Two-digit years below 50
// land in the 2000s, the rest in the 1900s. Missing or zero month and day
// default to 1. The year is required and the result must be a real calendar
// date with a four-digit year.
func ParsePartialDate(s string) (PartialDate, bool) {
	s = strings.TrimSpace(s)
	sep := "/"
	if strings.Contains(s, "-") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	var vals [3]int
	var present [3]bool
	for i := 0; i < len(vals) && i < len(parts); i++ {
		vals[i], present[i] = parseDigits(parts[i])
	}
	month, day, year := vals[0], vals[1], vals[2]
	if !present[2] {
		return PartialDate{}, false
	}
	if year < 100 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	d := PartialDate{
		Year:     year,
		Month:    1,
		Day:      1,
		HasYear:  true,
		HasMonth: present[0] && month != 0,
		HasDay:   present[1] && day != 0,
	}
	if d.HasMonth {
		d.Month = month
	}
	if d.HasDay {
		d.Day = day
	}
	if !d.valid() {
		return PartialDate{}, false
	}
	return d, true
}

func (d PartialDate) valid() bool {
	if d.Year < 1000 || d.Year > 9999 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	t := d.Time()
	return t.Year() == d.Year && int(t.Month()) == d.Month && t.Day() == d.Day
}

// parseDigits accepts only non-empty runs of ASCII digits.
func parseDigits(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ReconcileDate parses two readings of the same date region and keeps the one
// carrying more precision. When only one parses it wins; equal precision
// favours a.
func ReconcileDate(a, b string) (PartialDate, bool) {
	da, okA := ParsePartialDate(a)
	db, okB := ParsePartialDate(b)
	switch {
	case !okA:
		return db, okB
	case !okB:
		return da, true
	case db.morePreciseThan(da):
		return db, true
	default:
		return da, true
	}
}
