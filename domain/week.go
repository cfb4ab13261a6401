package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Week identifies an ISO-8601 calendar week.
type Week struct {
	Week int `json:"week"`
	Year int `json:"year"`
}

// WeekKey formats the partition key used for projects, tasks and meetings,
// e.g. "2026-W01".
func WeekKey(week, year int) string {
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Key returns the week key for w.
func (w Week) Key() string {
	return WeekKey(w.Week, w.Year)
}

// IsZero reports whether the week pointer was never set.
func (w Week) IsZero() bool {
	return w.Week == 0 || w.Year == 0
}

// Validate checks that the week exists in its ISO year.
func (w Week) Validate() error {
	if w.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidWeek, w.Year)
	}
	if w.Week < 1 || w.Week > WeeksInYear(w.Year) {
		return fmt.Errorf("%w: week %d of %d", ErrInvalidWeek, w.Week, w.Year)
	}
	return nil
}

// ISOWeek returns the ISO week containing t in t's location.
func ISOWeek(t time.Time) Week {
	year, week := t.ISOWeek()
	return Week{Week: week, Year: year}
}

// WeeksInYear returns 52 or 53. December 28th always falls in the last ISO
// week of its year.
func WeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// Start returns the Monday that opens the week, at midnight UTC.
func (w Week) Start() time.Time {
	jan4 := time.Date(w.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	firstMonday := jan4.AddDate(0, 0, -offset)
	return firstMonday.AddDate(0, 0, (w.Week-1)*7)
}

// Range returns the Monday and Sunday bounding the week.
func (w Week) Range() (time.Time, time.Time) {
	start := w.Start()
	return start, start.AddDate(0, 0, 6)
}

// Next returns the following week, rolling into the next year after the last
// week.
func (w Week) Next() Week {
	if w.Week+1 > WeeksInYear(w.Year) {
		return Week{Week: 1, Year: w.Year + 1}
	}
	return Week{Week: w.Week + 1, Year: w.Year}
}

// Prev returns the preceding week, rolling back into the last week of the
// previous year.
func (w Week) Prev() Week {
	if w.Week-1 < 1 {
		return Week{Week: WeeksInYear(w.Year - 1), Year: w.Year - 1}
	}
	return Week{Week: w.Week - 1, Year: w.Year}
}

// ParseWeekKey is the inverse of WeekKey.
func ParseWeekKey(key string) (Week, error) {
	yearPart, weekPart, ok := strings.Cut(key, "-W")
	if !ok {
		return Week{}, fmt.Errorf("%w: key %q", ErrInvalidWeek, key)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Week{}, fmt.Errorf("%w: key %q", ErrInvalidWeek, key)
	}
	week, err := strconv.Atoi(weekPart)
	if err != nil {
		return Week{}, fmt.Errorf("%w: key %q", ErrInvalidWeek, key)
	}
	w := Week{Week: week, Year: year}
	if err := w.Validate(); err != nil {
		return Week{}, err
	}
	return w, nil
}
