package ot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST - One claimed overtime session
// =============================================================================

// NoRemarksProvided is the rejection reason recorded when no reviewer left remarks.
const NoRemarksProvided = "No remarks provided"

const clockLayout = "15:04"

// Review records one reviewer stage.
type Review struct {
	ActorID string     `json:"actor_id,omitempty"`
	At      *time.Time `json:"at,omitempty"`
	Remarks string     `json:"remarks,omitempty"`
}

func (r Review) IsZero() bool { return r.ActorID == "" && r.At == nil && r.Remarks == "" }

// HistoryEntry captures why an ancestor was rejected. A resubmission carries
// its parent's history plus one entry for the parent itself.
type HistoryEntry struct {
	ParentRequestID string    `json:"parent_request_id"`
	RejectedByRole  Role      `json:"rejected_by_role"`
	RejectionReason string    `json:"rejection_reason"`
	At              time.Time `json:"at"`
}

type Request struct {
	ID           string
	TicketNumber string

	// Ownership
	EmployeeID             string
	SupervisorID           string
	RespectiveSupervisorID string

	// Work facts
	Date        time.Time
	StartTime   string
	EndTime     string
	TotalHours  decimal.Decimal
	DayType     DayType
	Reason      string
	Attachments []string

	// Monetary facts, derived only
	BasicSalary decimal.Decimal
	ORP         decimal.Decimal
	HRP         decimal.Decimal
	Amount      decimal.Decimal

	// Workflow
	Status            Status
	Route             Route
	RespectiveReview  Review
	SupervisorReview  Review
	HRReview          Review
	ManagementReview  Review
	RejectionStage    Role
	ParentRequestID   string
	ResubmissionCount int
	History           []HistoryEntry

	// RespectiveDenialRemarks is written only when the respective supervisor
	// rejects; a confirmation remark never lands here.
	RespectiveDenialRemarks string

	// Configuration references
	ThresholdID       string
	EligibilityRuleID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy, so stores never share slices with callers.
func (r *Request) Clone() *Request {
	c := *r
	c.Attachments = append([]string(nil), r.Attachments...)
	c.History = append([]HistoryEntry(nil), r.History...)
	c.RespectiveReview = r.RespectiveReview.clone()
	c.SupervisorReview = r.SupervisorReview.clone()
	c.HRReview = r.HRReview.clone()
	c.ManagementReview = r.ManagementReview.clone()
	return &c
}

func (rv Review) clone() Review {
	if rv.At != nil {
		at := *rv.At
		rv.At = &at
	}
	return rv
}

// ReviewFor returns a pointer to the stage record a role writes to.
func (r *Request) ReviewFor(role Role) *Review {
	switch role {
	case RoleRespectiveSupervisor:
		return &r.RespectiveReview
	case RoleSupervisor:
		return &r.SupervisorReview
	case RoleHR:
		return &r.HRReview
	case RoleManagement:
		return &r.ManagementReview
	}
	return nil
}

// RejectionReason picks the most relevant remark of a rejected request:
// respective supervisor denial, then supervisor, then HR, then management.
// A stage's remarks count only when that stage rejected; remarks left while
// confirming, certifying or approving are not a reason.
func (r *Request) RejectionReason() string {
	if strings.TrimSpace(r.RespectiveDenialRemarks) != "" {
		return r.RespectiveDenialRemarks
	}
	for _, role := range []Role{RoleSupervisor, RoleHR, RoleManagement} {
		if role != r.RejectionStage {
			continue
		}
		if rv := r.ReviewFor(role); strings.TrimSpace(rv.Remarks) != "" {
			return rv.Remarks
		}
	}
	return NoRemarksProvided
}

// applyRate copies a rate breakdown into the monetary fields.
func (r *Request) applyRate(b RateBreakdown) {
	r.BasicSalary = b.BasicSalary
	r.TotalHours = b.Hours
	r.DayType = b.DayType
	r.ORP = b.ORP
	r.HRP = b.HRP
	r.Amount = b.Amount
}

// =============================================================================
// SUBMIT INPUT
// =============================================================================

// SubmitInput carries what an employee enters. Money is never part of it; the
// salary comes from the employee record upstream.
type SubmitInput struct {
	EmployeeID             string          `json:"employee_id" validate:"required"`
	SupervisorID           string          `json:"supervisor_id" validate:"required,nefield=EmployeeID"`
	RespectiveSupervisorID string          `json:"respective_supervisor_id,omitempty" validate:"omitempty,nefield=SupervisorID"`
	Date                   time.Time       `json:"date" validate:"required"`
	StartTime              string          `json:"start_time" validate:"required,datetime=15:04"`
	EndTime                string          `json:"end_time" validate:"required,datetime=15:04"`
	DayType                DayType         `json:"day_type" validate:"required"`
	Reason                 string          `json:"reason" validate:"max=1000"`
	Attachments            []string        `json:"attachments,omitempty" validate:"dive,required"`
	BasicSalary            decimal.Decimal `json:"basic_salary"`
	ThresholdID            string          `json:"threshold_id,omitempty"`
	EligibilityRuleID      string          `json:"eligibility_rule_id,omitempty"`
}

// WorkedHours returns the session length in hours, rounded to 2 places. An
// end time before the start time means the session ran past midnight.
func WorkedHours(start, end string) (decimal.Decimal, error) {
	s, err := time.Parse(clockLayout, start)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: start time %q must be HH:MM", ErrInvalidInput, start)
	}
	e, err := time.Parse(clockLayout, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: end time %q must be HH:MM", ErrInvalidInput, end)
	}
	if e.Before(s) {
		e = e.Add(24 * time.Hour)
	}
	minutes := decimal.NewFromInt(int64(e.Sub(s) / time.Minute))
	return minutes.Div(decimal.NewFromInt(60)).Round(2), nil
}

// TicketNumber builds the human-readable ticket: OT-<work date>-<id prefix>.
func TicketNumber(id string, date time.Time) string {
	prefix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return fmt.Sprintf("OT-%s-%s", CivilDate(date).Format("20060102"), prefix)
}
