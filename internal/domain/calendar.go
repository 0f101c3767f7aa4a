package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a civil calendar date without a location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO date such as "2026-04-06".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DateRange is a closed interval of dates; both ends are included.
type DateRange struct {
	Start Date
	End   Date
}

// Contains reports whether d lies within the range, endpoints included.
func (r DateRange) Contains(d Date) bool {
	return r.Start.Compare(d) <= 0 && d.Compare(r.End) <= 0
}

// HolidayCalendar answers public holiday and school vacation membership.
// It is loaded once per run and read-only afterwards.
type HolidayCalendar struct {
	holidays  map[Date]string
	vacations []DateRange
}

// NewHolidayCalendar builds a calendar from holiday names by date and school
// vacation ranges. Inputs are copied.
func NewHolidayCalendar(holidays map[Date]string, vacations []DateRange) *HolidayCalendar {
	h := make(map[Date]string, len(holidays))
	for d, name := range holidays {
		h[d] = name
	}
	return &HolidayCalendar{
		holidays:  h,
		vacations: append([]DateRange(nil), vacations...),
	}
}

// IsPublicHoliday reports exact membership in the public holiday set.
func (c *HolidayCalendar) IsPublicHoliday(d Date) bool {
	if c == nil {
		return false
	}
	_, ok := c.holidays[d]
	return ok
}

// IsSchoolVacation reports whether d falls within any vacation range.
func (c *HolidayCalendar) IsSchoolVacation(d Date) bool {
	if c == nil {
		return false
	}
	for _, r := range c.vacations {
		if r.Contains(d) {
			return true
		}
	}
	return false
}

// HolidayCount returns the number of public holidays.
func (c *HolidayCalendar) HolidayCount() int {
	if c == nil {
		return 0
	}
	return len(c.holidays)
}

// VacationCount returns the number of vacation ranges.
func (c *HolidayCalendar) VacationCount() int {
	if c == nil {
		return 0
	}
	return len(c.vacations)
}

type publicHolidaysFile struct {
	Holidays []struct {
		Date string `json:"date"`
		Name string `json:"name"`
	} `json:"holidays"`
}

type schoolHolidaysFile struct {
	Vacations []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"vacations"`
}

// ParsePublicHolidays decodes public_holidays.json into holiday names by date.
func ParsePublicHolidays(data []byte) (map[Date]string, error) {
	var f publicHolidaysFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse public holidays: %w", err)
	}
	out := make(map[Date]string, len(f.Holidays))
	for _, h := range f.Holidays {
		d, err := ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("parse public holidays: %w", err)
		}
		out[d] = h.Name
	}
	return out, nil
}

// ParseSchoolVacations decodes school_holidays.json into inclusive ranges.
func ParseSchoolVacations(data []byte) ([]DateRange, error) {
	var f schoolHolidaysFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse school vacations: %w", err)
	}
	out := make([]DateRange, 0, len(f.Vacations))
	for _, v := range f.Vacations {
		start, err := ParseDate(v.Start)
		if err != nil {
			return nil, fmt.Errorf("parse school vacations: %w", err)
		}
		end, err := ParseDate(v.End)
		if err != nil {
			return nil, fmt.Errorf("parse school vacations: %w", err)
		}
		out = append(out, DateRange{Start: start, End: end})
	}
	return out, nil
}
