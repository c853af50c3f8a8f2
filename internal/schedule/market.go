// Package schedule decides when trading sessions run: market-hours
// predicates plus the continuous loop that drives sessions while the
// market is open.
package schedule

import "time"

// US equity regular session, exchange-local.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// Market answers "is the exchange trading right now". The zero value is not
// usable; construct with NewMarket.
type Market struct {
	loc        *time.Location
	alwaysOpen bool
}

// NewMarket builds a market-hours predicate for the given exchange timezone.
// alwaysOpen bypasses the calendar entirely, for paper-trading dry runs
// outside regular hours.
func NewMarket(tz string, alwaysOpen bool) *Market {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		if fallback, err2 := time.LoadLocation("America/New_York"); err2 == nil {
			loc = fallback
		} else {
			// DST-agnostic last resort
			loc = time.FixedZone("ET", -5*60*60)
		}
	}
	return &Market{loc: loc, alwaysOpen: alwaysOpen}
}

// IsOpen reports whether the regular session is trading at the given
// instant. Weekends are closed; weekdays trade 09:30-16:00 exchange-local,
// inclusive start, exclusive end. Exchange holidays are not modeled; the
// brokerage rejects orders on those days anyway.
func (m *Market) IsOpen(now time.Time) bool {
	if m.alwaysOpen {
		return true
	}
	local := now.In(m.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, m.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMinute, 0, 0, m.loc)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the next instant the regular session begins strictly
// after now: today's 09:30 if it is still ahead on a weekday, otherwise
// 09:30 on the next weekday.
func (m *Market) NextOpen(now time.Time) time.Time {
	local := now.In(m.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, m.loc)
	for !candidate.After(local) || candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
