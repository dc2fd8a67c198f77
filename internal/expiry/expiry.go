// Package expiry selects the option expiration dates a run collects.
package expiry

import "time"

// DateLayout is the ISO 8601 calendar date format used by the chains endpoint.
const DateLayout = "2006-01-02"

// DefaultHorizonDays is how many days past today are considered.
const DefaultHorizonDays = 14

// DefaultWeekdays are the weekdays SPY lists expirations on.
var DefaultWeekdays = []time.Weekday{time.Monday, time.Wednesday, time.Friday}

// Select returns the dates in (today, today+horizonDays] that fall on one of the
// given weekdays, ascending. Today itself is never included. Only the calendar
// date of today in its own location matters.
func Select(today time.Time, horizonDays int, weekdays []time.Weekday) []string {
	want := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		want[d] = true
	}

	// Anchor at noon UTC so day arithmetic never crosses a DST boundary.
	y, m, d := today.Date()
	base := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)

	var dates []string
	for i := 1; i <= horizonDays; i++ {
		day := base.AddDate(0, 0, i)
		if want[day.Weekday()] {
			dates = append(dates, day.Format(DateLayout))
		}
	}
	return dates
}

// Default applies the 14 day horizon and Monday/Wednesday/Friday expirations.
func Default(today time.Time) []string {
	return Select(today, DefaultHorizonDays, DefaultWeekdays)
}
