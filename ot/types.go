/*
Package ot implements the overtime (OT) request lifecycle engine.

PURPOSE:
  Employees claim overtime sessions; supervisors, HR and management move each
  claim through a multi-stage approval pipeline; the engine prices the claim
  with the statutory ORP/HRP formulas. Persistence, notification and audit are
  collaborators reached through the interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status:  the 9 workflow states (closed enumeration)
  - Route:   A (direct supervisor only) or B (respective supervisor first)
  - Role:    who acts on a transition
  - DayType: weekday / saturday / sunday / public_holiday, drives the pay formula

DESIGN PRINCIPLES:
  1. Table-driven workflow: every legal move is one row in transitions.go
  2. Precision: money and hours use decimal.Decimal
  3. Append-only history: a rejected claim is never edited, it is resubmitted
     as a new record pointing at its parent
  4. Stateless core: Calculate, CanSubmit and Apply touch no shared state

SEE ALSO:
  - transitions.go: the transition table and Apply
  - rate.go:        RateCalculator
  - window.go:      SubmissionWindowValidator
  - service.go:     RequestLifecycleService
*/
package ot

import "fmt"

// =============================================================================
// STATUS - Closed set of workflow states
// =============================================================================

type Status string

const (
	StatusPendingVerification           Status = "pending_verification"
	StatusSupervisorConfirmed           Status = "supervisor_confirmed"
	StatusPendingRespectiveConfirmation Status = "pending_respective_supervisor_confirmation"
	StatusRespectiveSupervisorConfirmed Status = "respective_supervisor_confirmed"
	StatusPendingSupervisorVerification Status = "pending_supervisor_verification"
	StatusSupervisorVerified            Status = "supervisor_verified"
	StatusHRCertified                   Status = "hr_certified"
	StatusManagementApproved            Status = "management_approved"
	StatusRejected                      Status = "rejected"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusPendingVerification,
	StatusSupervisorConfirmed,
	StatusPendingRespectiveConfirmation,
	StatusRespectiveSupervisorConfirmed,
	StatusPendingSupervisorVerification,
	StatusSupervisorVerified,
	StatusHRCertified,
	StatusManagementApproved,
	StatusRejected,
}

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the normal flow. A management
// approval can still be reverted to hr_certified; a rejection never moves.
func (s Status) IsTerminal() bool {
	return s == StatusManagementApproved || s == StatusRejected
}

// ParseStatus converts stored or client text into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// =============================================================================
// ROUTE - Fixed at creation
// =============================================================================

type Route string

const (
	RouteA Route = "A" // direct supervisor confirms
	RouteB Route = "B" // respective supervisor confirms, direct supervisor verifies
)

// RouteFor selects the route from the respective supervisor choice.
func RouteFor(respectiveSupervisorID string) Route {
	if respectiveSupervisorID != "" {
		return RouteB
	}
	return RouteA
}

// InitialStatus is the status a fresh submission (or resubmission) starts in.
func (r Route) InitialStatus() Status {
	if r == RouteB {
		return StatusPendingRespectiveConfirmation
	}
	return StatusPendingVerification
}

func (r Route) IsValid() bool { return r == RouteA || r == RouteB }

// =============================================================================
// ROLE
// =============================================================================

type Role string

const (
	RoleNone                 Role = "none"
	RoleEmployee             Role = "employee"
	RoleSupervisor           Role = "supervisor"
	RoleRespectiveSupervisor Role = "respective_supervisor"
	RoleHR                   Role = "hr"
	RoleManagement           Role = "management"
	RoleSystem               Role = "system" // automatic hand-offs inside route B
)

// Roles lists every acting role, used by exhaustive table tests and parsing.
var Roles = []Role{
	RoleEmployee,
	RoleSupervisor,
	RoleRespectiveSupervisor,
	RoleHR,
	RoleManagement,
	RoleSystem,
}

func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if Role(s) == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Actor is whoever performs an action. Authentication happens upstream; the
// engine only checks the role against the transition table.
type Actor struct {
	ID   string
	Role Role
}

// =============================================================================
// DAY TYPE
// =============================================================================

type DayType string

const (
	DayWeekday       DayType = "weekday"
	DaySaturday      DayType = "saturday"
	DaySunday        DayType = "sunday"
	DayPublicHoliday DayType = "public_holiday"
)

func (d DayType) IsValid() bool {
	switch d {
	case DayWeekday, DaySaturday, DaySunday, DayPublicHoliday:
		return true
	}
	return false
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationType string

const (
	NotifySubmitted           NotificationType = "submitted"
	NotifyResubmitted         NotificationType = "resubmitted"
	NotifyAmended             NotificationType = "amended"
	NotifyRespectiveConfirmed NotificationType = "respective_supervisor_confirmed"
	NotifySupervisorConfirmed NotificationType = "supervisor_confirmed"
	NotifySupervisorVerified  NotificationType = "supervisor_verified"
	NotifyHRCertified         NotificationType = "hr_certified"
	NotifyManagementApproved  NotificationType = "management_approved"
	NotifyRejected            NotificationType = "rejected"
	NotifyReturned            NotificationType = "returned_by_hr"
	NotifyReverted            NotificationType = "reverted_by_management"
)
