package ot

import (
	"fmt"
	"time"
)

// =============================================================================
// SUBMISSION WINDOW - Which work dates may be claimed
// =============================================================================

const (
	dateLayout = "2006-01-02"

	// DefaultCutoffWindowDays is used when a policy leaves the window unset.
	DefaultCutoffWindowDays = 8

	ReasonFutureDate = "future date"
)

// Policy is the submission policy loaded from the persistence collaborator.
type Policy struct {
	CutoffWindowDays   int  `json:"cutoff_window_days"`
	GracePeriodEnabled bool `json:"grace_period_enabled"`
}

// DefaultPolicy is the 8-day window without grace period.
func DefaultPolicy() Policy {
	return Policy{CutoffWindowDays: DefaultCutoffWindowDays}
}

func (p Policy) windowDays() int {
	if p.CutoffWindowDays <= 0 {
		return DefaultCutoffWindowDays
	}
	return p.CutoffWindowDays
}

// WindowDecision is the outcome of a window check. Reason is empty when allowed.
type WindowDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanSubmit decides whether workDate may be claimed on today.
//
// Rules, in order:
//  1. a date after today is never claimable
//  2. with the grace period enabled any past date is claimable
//  3. otherwise the date must be on or after today minus the cutoff window
//
// Both dates are compared as calendar days; time of day is ignored.
func CanSubmit(workDate, today time.Time, policy Policy) WindowDecision {
	work := CivilDate(workDate)
	now := CivilDate(today)

	if work.After(now) {
		return WindowDecision{Reason: ReasonFutureDate}
	}
	if policy.GracePeriodEnabled {
		return WindowDecision{Allowed: true}
	}

	days := policy.windowDays()
	cutoff := now.AddDate(0, 0, -days)
	if work.Before(cutoff) {
		return WindowDecision{Reason: fmt.Sprintf("outside %d-day window", days)}
	}
	return WindowDecision{Allowed: true}
}

// CanSubmitRange applies CanSubmit to start, then end, and returns the first failure.
func CanSubmitRange(start, end, today time.Time, policy Policy) WindowDecision {
	if d := CanSubmit(start, today, policy); !d.Allowed {
		return d
	}
	return CanSubmit(end, today, policy)
}

// checkWindow turns a denied decision into a *WindowViolationError.
func checkWindow(workDate, today time.Time, policy Policy) error {
	d := CanSubmit(workDate, today, policy)
	if d.Allowed {
		return nil
	}
	return &WindowViolationError{
		WorkDate: CivilDate(workDate),
		Today:    CivilDate(today),
		Reason:   d.Reason,
	}
}

// CivilDate drops the time of day, keeping the calendar date as written in t's
// own location, and returns it at UTC midnight.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD work date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return t, nil
}
