package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/overtime-engine/ot"
)

// Source supplies raw calendar rows. The sqlite store implements it.
type Source interface {
	CalendarEvents(ctx context.Context, from, to time.Time) ([]EventItem, error)
}

// Load fetches rows for [from, to] and consolidates them.
func Load(ctx context.Context, src Source, from, to time.Time) ([]EventItem, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", ot.ErrInvalidInput)
	}
	raw, err := src.CalendarEvents(ctx, civil(from), civil(to))
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar events: %w", err)
	}
	return Consolidate(raw)
}

// =============================================================================
// SCOPE
// =============================================================================

// AppliesTo reports whether the event covers stateCode. Leave rows belong to a
// person, not a state, and always apply. An empty stateCode matches everything.
func AppliesTo(ev EventItem, stateCode string) bool {
	if ev.Origin == OriginLeave || stateCode == "" {
		return true
	}
	if ev.StateCode != nil && (*ev.StateCode == ScopeAll || *ev.StateCode == stateCode) {
		return true
	}
	for _, c := range ev.StateCodes {
		if c == ScopeAll || c == stateCode {
			return true
		}
	}
	// A company row with no scope is company-wide.
	return ev.Origin == OriginCompany && ev.StateCode == nil && len(ev.StateCodes) == 0
}

// ForState keeps the events that apply to stateCode.
func ForState(events []EventItem, stateCode string) []EventItem {
	var out []EventItem
	for _, ev := range events {
		if AppliesTo(ev, stateCode) {
			out = append(out, ev)
		}
	}
	return out
}

// IsPublicHoliday reports whether a government or company holiday falls on
// date for stateCode. Leave does not make a public holiday.
func IsPublicHoliday(events []EventItem, date time.Time, stateCode string) bool {
	day := civil(date)
	for _, ev := range events {
		if ev.Origin == OriginLeave || !civil(ev.Date).Equal(day) {
			continue
		}
		if AppliesTo(ev, stateCode) {
			return true
		}
	}
	return false
}

// DayTypeFor classifies a work date for pay, with holidays taken from events.
func DayTypeFor(events []EventItem, date time.Time, stateCode string) ot.DayType {
	return ot.ClassifyDate(date, IsPublicHoliday(events, date, stateCode))
}
