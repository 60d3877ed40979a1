/*
Package calendar merges raw holiday and leave rows into a per-day view.

PURPOSE:
  Government holidays are published once per state. A national holiday scraped
  for thirteen states arrives as thirteen rows with the same date and
  description. Consolidate folds them into one row whose scope is the union of
  the states.

ALGORITHM:
  leave rows                  ──▶ pass through, one per record
  holiday / company rows      ──▶ group by (origin, date, description)
      group of 1              ──▶ pass through
      group of n > 1          ──▶ one synthetic row:
                                    id          = UUIDv5 of the group key
                                    StateCodes  = sorted union of member codes
                                    StateCode   = "ALL" | the only code | "MULTI"
                                    flags       = OR of members
                                    HolidayType = first non-nil
  output sorted by (date, description), then origin and id

  Running Consolidate on its own output returns the same list. The synthetic
  id depends only on the group key, so a different superset of rows may still
  produce a different id for the same day.

SEE ALSO:
  - source.go: loading rows and answering "is this a public holiday here?"
*/
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TYPES
// =============================================================================

type Origin string

const (
	OriginCompany Origin = "company" // set by HR for the whole company
	OriginHoliday Origin = "holiday" // government holiday, scoped per state
	OriginLeave   Origin = "leave"   // one employee's approved leave
)

const (
	ScopeAll   = "ALL"
	ScopeMulti = "MULTI"
)

// EventItem is one day shown on a calendar.
type EventItem struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	Description   string    `json:"description"`
	Origin        Origin    `json:"origin"`
	StateCode     *string   `json:"state_code,omitempty"`
	StateCodes    []string  `json:"state_codes"`
	HolidayType   *string   `json:"holiday_type,omitempty"`
	IsReplacement bool      `json:"is_replacement"`
	IsHRModified  bool      `json:"is_hr_modified"`
	EmployeeID    string    `json:"employee_id,omitempty"`
}

// ErrConsolidationKeyCollision means two different groups produced the same id.
var ErrConsolidationKeyCollision = errors.New("consolidation key collision")

type KeyCollisionError struct {
	ID    string
	Key   string
	Other string
}

func (e *KeyCollisionError) Error() string {
	return fmt.Sprintf("consolidated id %s produced by both %q and %q", e.ID, e.Key, e.Other)
}

func (e *KeyCollisionError) Unwrap() error { return ErrConsolidationKeyCollision }

// idNamespace seeds the synthetic ids. Changing it changes every merged id.
var idNamespace = uuid.MustParse("8f2c4b1e-6a0d-5c3e-9b7a-2d4e6f8a0c1b")

// =============================================================================
// CONSOLIDATE
// =============================================================================

// Consolidate merges state-scoped duplicates and sorts the result. The input
// slice is not modified.
func Consolidate(events []EventItem) ([]EventItem, error) {
	out := make([]EventItem, 0, len(events))
	groups := make(map[string][]EventItem)
	var order []string

	for _, ev := range events {
		if ev.Origin == OriginLeave {
			out = append(out, passThrough(ev))
			continue
		}
		k := groupKey(ev)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ev)
	}

	for _, k := range order {
		members := groups[k]
		if len(members) == 1 {
			out = append(out, passThrough(members[0]))
			continue
		}
		out = append(out, merge(k, members))
	}

	if err := checkCollisions(out); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func groupKey(ev EventItem) string {
	return strings.Join([]string{string(ev.Origin), civil(ev.Date).Format("2006-01-02"), ev.Description}, "|")
}

// passThrough copies a row, filling StateCodes from StateCode when empty.
func passThrough(ev EventItem) EventItem {
	c := clone(ev)
	if len(c.StateCodes) > 0 {
		return c
	}
	c.StateCodes = []string{}
	if c.StateCode != nil && *c.StateCode != "" {
		c.StateCodes = []string{*c.StateCode}
	}
	return c
}

func merge(key string, members []EventItem) EventItem {
	first := members[0]
	merged := EventItem{
		ID:          uuid.NewSHA1(idNamespace, []byte(key)).String(),
		Date:        first.Date,
		Description: first.Description,
		Origin:      first.Origin,
	}

	codes := make(map[string]bool)
	for _, m := range members {
		if m.StateCode != nil && *m.StateCode != "" {
			codes[*m.StateCode] = true
		}
		for _, c := range m.StateCodes {
			if c != "" {
				codes[c] = true
			}
		}
		merged.IsReplacement = merged.IsReplacement || m.IsReplacement
		merged.IsHRModified = merged.IsHRModified || m.IsHRModified
		if merged.HolidayType == nil && m.HolidayType != nil {
			ht := *m.HolidayType
			merged.HolidayType = &ht
		}
	}

	merged.StateCodes = make([]string, 0, len(codes))
	for c := range codes {
		merged.StateCodes = append(merged.StateCodes, c)
	}
	sort.Strings(merged.StateCodes)

	switch {
	case codes[ScopeAll]:
		merged.StateCode = strPtr(ScopeAll)
	case len(codes) == 1:
		merged.StateCode = strPtr(merged.StateCodes[0])
	case len(codes) > 1:
		merged.StateCode = strPtr(ScopeMulti)
	}
	// No codes at all leaves StateCode nil so a second pass keeps StateCodes empty.

	return merged
}

func checkCollisions(events []EventItem) error {
	keys := make(map[string]string, len(events))
	for _, ev := range events {
		if ev.Origin == OriginLeave {
			continue
		}
		k := groupKey(ev)
		if other, ok := keys[ev.ID]; ok && other != k {
			return &KeyCollisionError{ID: ev.ID, Key: k, Other: other}
		}
		keys[ev.ID] = k
	}
	return nil
}

func less(a, b EventItem) bool {
	ad, bd := civil(a.Date), civil(b.Date)
	if !ad.Equal(bd) {
		return ad.Before(bd)
	}
	if a.Description != b.Description {
		return a.Description < b.Description
	}
	if a.Origin != b.Origin {
		return a.Origin < b.Origin
	}
	return a.ID < b.ID
}

func clone(ev EventItem) EventItem {
	c := ev
	if ev.StateCode != nil {
		c.StateCode = strPtr(*ev.StateCode)
	}
	if ev.HolidayType != nil {
		c.HolidayType = strPtr(*ev.HolidayType)
	}
	if ev.StateCodes != nil {
		c.StateCodes = append([]string{}, ev.StateCodes...)
	}
	return c
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }
