/*
transitions.go - The approval state machine

PURPOSE:
  Every legal status change is one row of the table below. Apply is the only
  guard: a (route, from, to, role) combination not in the table fails with
  *InvalidTransitionError. There are no per-state types and no scattered
  conditionals.

ROUTES:

  Route A (no respective supervisor)
    pending_verification ──supervisor──▶ supervisor_confirmed ──hr──▶ hr_certified

  Route B (respective supervisor first)
    pending_respective_supervisor_confirmation
        ──respective_supervisor──▶ respective_supervisor_confirmed
        ──system──▶ pending_supervisor_verification
        ──supervisor──▶ supervisor_verified ──hr──▶ hr_certified

  Shared tail
    hr_certified ──management──▶ management_approved
    hr_certified ──hr──▶ route's initial pending status   (send back)
    management_approved ──management──▶ hr_certified       (correction loop)

  Every reviewer may reject at their own stage; rejected is final for the
  record and continues only as a resubmission (a new record). Service.Reject
  maps a rejection at hr_certified or management_approved onto the send-back
  edges above.

SEE ALSO:
  - service.go: applies these rows against stored records
*/
package ot

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// Transition is one legal edge. Route is empty when the edge exists on both routes.
type Transition struct {
	From  Status
	To    Status
	Role  Role
	Route Route
}

var transitions = []Transition{
	// Route A review
	{From: StatusPendingVerification, To: StatusSupervisorConfirmed, Role: RoleSupervisor, Route: RouteA},
	{From: StatusPendingVerification, To: StatusRejected, Role: RoleSupervisor, Route: RouteA},
	{From: StatusSupervisorConfirmed, To: StatusHRCertified, Role: RoleHR, Route: RouteA},
	{From: StatusSupervisorConfirmed, To: StatusRejected, Role: RoleHR, Route: RouteA},
	{From: StatusHRCertified, To: StatusPendingVerification, Role: RoleHR, Route: RouteA},

	// Route B review
	{From: StatusPendingRespectiveConfirmation, To: StatusRespectiveSupervisorConfirmed, Role: RoleRespectiveSupervisor, Route: RouteB},
	{From: StatusPendingRespectiveConfirmation, To: StatusRejected, Role: RoleRespectiveSupervisor, Route: RouteB},
	{From: StatusRespectiveSupervisorConfirmed, To: StatusPendingSupervisorVerification, Role: RoleSystem, Route: RouteB},
	{From: StatusPendingSupervisorVerification, To: StatusSupervisorVerified, Role: RoleSupervisor, Route: RouteB},
	{From: StatusPendingSupervisorVerification, To: StatusRejected, Role: RoleSupervisor, Route: RouteB},
	{From: StatusSupervisorVerified, To: StatusHRCertified, Role: RoleHR, Route: RouteB},
	{From: StatusSupervisorVerified, To: StatusRejected, Role: RoleHR, Route: RouteB},
	{From: StatusHRCertified, To: StatusPendingRespectiveConfirmation, Role: RoleHR, Route: RouteB},

	// Shared tail
	{From: StatusHRCertified, To: StatusManagementApproved, Role: RoleManagement},
	{From: StatusManagementApproved, To: StatusHRCertified, Role: RoleManagement},
}

// Transitions returns a copy of the table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

func (t Transition) appliesTo(route Route) bool {
	return t.Route == "" || t.Route == route
}

// Lookup finds the edge from -> to on the given route.
func Lookup(route Route, from, to Status) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.To == to && t.appliesTo(route) {
			return t, true
		}
	}
	return Transition{}, false
}

// Allowed lists the edges leaving from on the given route.
func Allowed(route Route, from Status) []Transition {
	var out []Transition
	for _, t := range transitions {
		if t.From == from && t.appliesTo(route) {
			out = append(out, t)
		}
	}
	return out
}

// =============================================================================
// APPLY - The single guard
// =============================================================================

// Apply checks that role may move req to the target status and returns the new
// status. It does not mutate req.
func Apply(req *Request, to Status, role Role) (Status, error) {
	invalid := &InvalidTransitionError{
		RequestID: req.ID,
		Route:     req.Route,
		From:      req.Status,
		To:        to,
		Role:      role,
		Required:  RoleNone,
	}
	if !req.Route.IsValid() || !req.Status.IsValid() || !to.IsValid() {
		return req.Status, invalid
	}

	t, ok := Lookup(req.Route, req.Status, to)
	if !ok {
		return req.Status, invalid
	}
	if t.Role != role {
		invalid.Required = t.Role
		return req.Status, invalid
	}
	return t.To, nil
}
