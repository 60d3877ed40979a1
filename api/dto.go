/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in ot/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  h.validate.Struct before touching the service. Money travels as decimal
  strings ("3000.00"), never as JSON floats.

SEE ALSO:
  - handlers.go: Uses these types
  - ot/request.go: SubmitInput, the domain form of SubmitRequest
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/ot"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitRequest is the body of submit, amend and resubmit. DayType may be left
// empty; it is then derived from the work date and the calendar for StateCode.
type SubmitRequest struct {
	EmployeeID             string          `json:"employee_id" validate:"required"`
	SupervisorID           string          `json:"supervisor_id" validate:"required"`
	RespectiveSupervisorID string          `json:"respective_supervisor_id,omitempty"`
	Date                   string          `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime              string          `json:"start_time" validate:"required,datetime=15:04"`
	EndTime                string          `json:"end_time" validate:"required,datetime=15:04"`
	DayType                ot.DayType      `json:"day_type,omitempty" validate:"omitempty,oneof=weekday saturday sunday public_holiday"`
	StateCode              string          `json:"state_code,omitempty"`
	Reason                 string          `json:"reason" validate:"max=1000"`
	Attachments            []string        `json:"attachments,omitempty"`
	BasicSalary            decimal.Decimal `json:"basic_salary"`
	ThresholdID            string          `json:"threshold_id,omitempty"`
	EligibilityRuleID      string          `json:"eligibility_rule_id,omitempty"`
}

// ActionRequest is the body of every single-record review action.
// Authentication happens upstream; the role is trusted as sent.
type ActionRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Role    string `json:"role" validate:"required"`
	Remarks string `json:"remarks" validate:"max=1000"`
}

// BatchApproveRequest is the body of the management bulk approval.
type BatchApproveRequest struct {
	ActionRequest
	IDs []string `json:"ids"`
}

// RateQuoteRequest prices a claim without storing it. Either Hours or both
// StartTime and EndTime must be set. Without DayType the date and state decide
// it through the calendar.
type RateQuoteRequest struct {
	BasicSalary decimal.Decimal  `json:"basic_salary"`
	DayType     ot.DayType       `json:"day_type,omitempty"`
	Date        string           `json:"date,omitempty" validate:"required_without=DayType"`
	StateCode   string           `json:"state_code,omitempty"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
	StartTime   string           `json:"start_time,omitempty" validate:"required_without=Hours"`
	EndTime     string           `json:"end_time,omitempty" validate:"required_without=Hours"`
}

// CalendarEventRequest adds one raw calendar row.
type CalendarEventRequest struct {
	ID            string  `json:"id,omitempty"`
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	Description   string  `json:"description" validate:"required"`
	Origin        string  `json:"origin" validate:"required,oneof=company holiday leave"`
	StateCode     *string `json:"state_code,omitempty"`
	HolidayType   *string `json:"holiday_type,omitempty"`
	IsReplacement bool    `json:"is_replacement"`
	IsHRModified  bool    `json:"is_hr_modified"`
	EmployeeID    string  `json:"employee_id,omitempty" validate:"required_if=Origin leave"`
}

// PolicyRequest replaces the submission policy.
type PolicyRequest struct {
	CutoffWindowDays   int  `json:"cutoff_window_days" validate:"min=1,max=366"`
	GracePeriodEnabled bool `json:"grace_period_enabled"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ReviewDTO is one reviewer stage.
type ReviewDTO struct {
	ActorID string     `json:"actor_id,omitempty"`
	At      *time.Time `json:"at,omitempty"`
	Remarks string     `json:"remarks,omitempty"`
}

// HistoryDTO describes one rejected ancestor.
type HistoryDTO struct {
	ParentRequestID string    `json:"parent_request_id"`
	RejectedByRole  string    `json:"rejected_by_role"`
	RejectionReason string    `json:"rejection_reason"`
	At              time.Time `json:"at"`
}

// RequestDTO represents an OT request in API responses.
type RequestDTO struct {
	ID                     string          `json:"id"`
	TicketNumber           string          `json:"ticket_number"`
	EmployeeID             string          `json:"employee_id"`
	SupervisorID           string          `json:"supervisor_id"`
	RespectiveSupervisorID string          `json:"respective_supervisor_id,omitempty"`
	Date                   string          `json:"date"`
	StartTime              string          `json:"start_time"`
	EndTime                string          `json:"end_time"`
	TotalHours             decimal.Decimal `json:"total_hours"`
	DayType                string          `json:"day_type"`
	Reason                 string          `json:"reason,omitempty"`
	Attachments            []string        `json:"attachments"`
	BasicSalary            decimal.Decimal `json:"basic_salary"`
	ORP                    decimal.Decimal `json:"orp"`
	HRP                    decimal.Decimal `json:"hrp"`
	Amount                 decimal.Decimal `json:"amount"`
	Status                 string          `json:"status"`
	Route                  string          `json:"route"`
	Terminal               bool            `json:"terminal"`
	RespectiveReview       *ReviewDTO      `json:"respective_review,omitempty"`
	SupervisorReview       *ReviewDTO      `json:"supervisor_review,omitempty"`
	HRReview               *ReviewDTO      `json:"hr_review,omitempty"`
	ManagementReview       *ReviewDTO      `json:"management_review,omitempty"`
	RejectionStage         string          `json:"rejection_stage,omitempty"`
	RejectionReason        string          `json:"rejection_reason,omitempty"`
	ParentRequestID        string          `json:"parent_request_id,omitempty"`
	ResubmissionCount      int             `json:"resubmission_count"`
	History                []HistoryDTO    `json:"history"`
	ThresholdID            string          `json:"threshold_id,omitempty"`
	EligibilityRuleID      string          `json:"eligibility_rule_id,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// ActionDTO is one legal next step for a request.
type ActionDTO struct {
	To   string `json:"to"`
	Role string `json:"role"`
}

// AuditEntryDTO is one audit row.
type AuditEntryDTO struct {
	ActorID string    `json:"actor_id"`
	Role    string    `json:"role"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Remarks string    `json:"remarks,omitempty"`
	At      time.Time `json:"at"`
}

// BatchResultDTO reports a bulk approval.
type BatchResultDTO struct {
	Requested int      `json:"requested"`
	Updated   int      `json:"updated"`
	Approved  []string `json:"approved"`
	Skipped   []string `json:"skipped,omitempty"`
}

// WindowResponse is the answer of the submission-window check.
type WindowResponse struct {
	Date   string    `json:"date"`
	Today  string    `json:"today"`
	Policy ot.Policy `json:"policy"`
	ot.WindowDecision
}

// CalendarResponse wraps the consolidated calendar.
type CalendarResponse struct {
	From   string               `json:"from"`
	To     string               `json:"to"`
	State  string               `json:"state,omitempty"`
	Events []calendar.EventItem `json:"events"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// TransitionErrorDetails is the Details payload of an invalid transition.
type TransitionErrorDetails struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Role     string `json:"role"`
	Required string `json:"required_role"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequestDTO(r *ot.Request) RequestDTO {
	dto := RequestDTO{
		ID:                     r.ID,
		TicketNumber:           r.TicketNumber,
		EmployeeID:             r.EmployeeID,
		SupervisorID:           r.SupervisorID,
		RespectiveSupervisorID: r.RespectiveSupervisorID,
		Date:                   r.Date.Format("2006-01-02"),
		StartTime:              r.StartTime,
		EndTime:                r.EndTime,
		TotalHours:             r.TotalHours,
		DayType:                string(r.DayType),
		Reason:                 r.Reason,
		Attachments:            r.Attachments,
		BasicSalary:            r.BasicSalary,
		ORP:                    r.ORP.Round(4),
		HRP:                    r.HRP.Round(4),
		Amount:                 r.Amount,
		Status:                 string(r.Status),
		Route:                  string(r.Route),
		Terminal:               r.Status.IsTerminal(),
		RespectiveReview:       toReviewDTO(r.RespectiveReview),
		SupervisorReview:       toReviewDTO(r.SupervisorReview),
		HRReview:               toReviewDTO(r.HRReview),
		ManagementReview:       toReviewDTO(r.ManagementReview),
		RejectionStage:         string(r.RejectionStage),
		ParentRequestID:        r.ParentRequestID,
		ResubmissionCount:      r.ResubmissionCount,
		History:                make([]HistoryDTO, 0, len(r.History)),
		ThresholdID:            r.ThresholdID,
		EligibilityRuleID:      r.EligibilityRuleID,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
	if dto.Attachments == nil {
		dto.Attachments = []string{}
	}
	if r.Status == ot.StatusRejected {
		dto.RejectionReason = r.RejectionReason()
	}
	for _, h := range r.History {
		dto.History = append(dto.History, HistoryDTO{
			ParentRequestID: h.ParentRequestID,
			RejectedByRole:  string(h.RejectedByRole),
			RejectionReason: h.RejectionReason,
			At:              h.At,
		})
	}
	return dto
}

func toReviewDTO(rv ot.Review) *ReviewDTO {
	if rv.IsZero() {
		return nil
	}
	return &ReviewDTO{ActorID: rv.ActorID, At: rv.At, Remarks: rv.Remarks}
}

func toRequestDTOs(reqs []ot.Request) []RequestDTO {
	out := make([]RequestDTO, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestDTO(&reqs[i]))
	}
	return out
}
