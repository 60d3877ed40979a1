/*
handlers.go - HTTP API handlers for the overtime engine

PURPOSE:
  Exposes the OT request lifecycle via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to ot.Service.

ENDPOINTS:
  Requests:
    POST   /api/requests                          Submit a claim
    GET    /api/requests                          List (employee_id, supervisor_id, status, limit)
    GET    /api/requests/{id}                     Get one request
    PUT    /api/requests/{id}                     Amend before first review
    POST   /api/requests/{id}/resubmit            New request from a rejected one
    GET    /api/requests/{id}/actions             Legal next steps
    GET    /api/requests/{id}/audit               Audit trail

  Review actions (body: actor_id, role, remarks):
    POST   /api/requests/{id}/confirm-respective  Route B respective supervisor
    POST   /api/requests/{id}/confirm             Route A supervisor
    POST   /api/requests/{id}/verify              Route B supervisor
    POST   /api/requests/{id}/certify             HR
    POST   /api/requests/{id}/approve             Management
    POST   /api/requests/{id}/reject              Any reviewer at its stage (send-back at hr_certified/management_approved)
    POST   /api/requests/{id}/return              HR back to the route's initial status
    POST   /api/requests/{id}/revert              Management back to HR
    POST   /api/requests/approve-batch            Management bulk approval

  Rates, window, calendar:
    POST   /api/rates/quote                       Price a claim without storing it
    GET    /api/submission-window?date=[&end=]    May this date be claimed today
    GET    /api/calendar?from=&to=[&state=]       Consolidated holidays
    POST   /api/calendar/events                   Add one raw calendar row

  Admin:
    GET    /api/policy                            Submission policy
    PUT    /api/policy                            Replace submission policy
    POST   /api/admin/reset                       Wipe the database (dev only)
    GET    /api/health                            Liveness + database ping

ERROR HANDLING:
  Domain errors are mapped by writeServiceError:
  - 400: Validation errors, invalid input, invalid rate input, empty batch
  - 403: Request belongs to another employee
  - 404: Request not found
  - 409: Concurrent modification (re-read and retry), duplicate, already resubmitted
  - 422: Invalid transition, submission window, not resubmittable/amendable
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The actor and role in the body are trusted as sent;
  only the system role is refused because it belongs to the engine.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ot/service.go: The lifecycle service
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/logger"
	"github.com/warp/overtime-engine/ot"
	"github.com/warp/overtime-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ot.Service
	Store   *sqlite.Store

	validate *validator.Validate
}

// NewHandler creates a new handler around a service backed by store.
func NewHandler(svc *ot.Service, store *sqlite.Store) *Handler {
	return &Handler{
		Service:  svc,
		Store:    store,
		validate: validator.New(),
	}
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a new OT request.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if !h.decode(w, r, &body) {
		return
	}

	in, err := h.submitInput(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	req, err := h.Service.Submit(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// ListRequests returns requests newest first.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sqlite.RequestFilter{
		EmployeeID:   q.Get("employee_id"),
		SupervisorID: q.Get("supervisor_id"),
	}
	if s := q.Get("status"); s != "" {
		status, err := ot.ParseStatus(s)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		filter.Status = status
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	reqs, err := h.Store.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// AmendRequest corrects work facts before the first review.
func (h *Handler) AmendRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if !h.decode(w, r, &body) {
		return
	}

	in, err := h.submitInput(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	req, err := h.Service.Amend(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ResubmitRequest creates a new request from a rejected one.
func (h *Handler) ResubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if !h.decode(w, r, &body) {
		return
	}

	in, err := h.submitInput(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	req, err := h.Service.Resubmit(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// ListActions returns the transitions currently open for a request.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.Service.Actions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dtos := make([]ActionDTO, 0, len(actions))
	for _, a := range actions {
		dtos = append(dtos, ActionDTO{To: string(a.To), Role: string(a.Role)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAuditTrail returns every recorded transition of a request, oldest first.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.Service.Get(ctx, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	entries, err := h.Store.AuditTrail(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audit trail", err)
		return
	}

	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, AuditEntryDTO{
			ActorID: e.ActorID,
			Role:    string(e.Role),
			From:    string(e.From),
			To:      string(e.To),
			Remarks: e.Remarks,
			At:      e.At,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REVIEW ACTIONS
// =============================================================================

type actionFunc func(ctx context.Context, id string, actor ot.Actor, remarks string) (*ot.Request, error)

func (h *Handler) ConfirmRespective(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.ConfirmRespective)
}

func (h *Handler) ConfirmRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.Confirm)
}

func (h *Handler) VerifyRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.Verify)
}

func (h *Handler) CertifyRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.Certify)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.Approve)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.Reject)
}

func (h *Handler) ReturnRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.ReturnToPending)
}

func (h *Handler) RevertRequest(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Service.Revert)
}

// act decodes the actor, runs one transition and writes the updated request.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn actionFunc) {
	var body ActionRequest
	if !h.decode(w, r, &body) {
		return
	}
	actor, err := actorFrom(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	req, err := fn(r.Context(), chi.URLParam(r, "id"), actor, body.Remarks)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ApproveBatch approves many hr_certified requests in one update.
func (h *Handler) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchApproveRequest
	if !h.decode(w, r, &body) {
		return
	}
	actor, err := actorFrom(body.ActionRequest)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.Service.ApproveBatch(r.Context(), body.IDs, actor, body.Remarks)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dto := BatchResultDTO{
		Requested: result.Requested,
		Updated:   result.Updated,
		Approved:  result.Approved,
	}
	if dto.Approved == nil {
		dto.Approved = []string{}
	}
	approved := make(map[string]bool, len(result.Approved))
	for _, id := range result.Approved {
		approved[id] = true
	}
	seen := make(map[string]bool, len(body.IDs))
	for _, id := range body.IDs {
		if id == "" || approved[id] || seen[id] {
			continue
		}
		seen[id] = true
		dto.Skipped = append(dto.Skipped, id)
	}

	writeJSON(w, http.StatusOK, dto)
}

func actorFrom(body ActionRequest) (ot.Actor, error) {
	role, err := ot.ParseRole(body.Role)
	if err != nil {
		return ot.Actor{}, err
	}
	if role == ot.RoleSystem {
		return ot.Actor{}, fmt.Errorf("%w: the system role is reserved", ot.ErrInvalidInput)
	}
	return ot.Actor{ID: body.ActorID, Role: role}, nil
}

// =============================================================================
// RATE, WINDOW AND CALENDAR
// =============================================================================

// QuoteRate prices a claim without creating a request.
func (h *Handler) QuoteRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body RateQuoteRequest
	if !h.decode(w, r, &body) {
		return
	}

	var hours decimal.Decimal
	if body.Hours != nil {
		hours = *body.Hours
	} else {
		worked, err := ot.WorkedHours(body.StartTime, body.EndTime)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		hours = worked
	}

	dayType := body.DayType
	if dayType == "" {
		date, err := ot.ParseDate(body.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		dayType, err = h.dayTypeFor(ctx, date, body.StateCode)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	breakdown, err := ot.Calculate(body.BasicSalary, dayType, hours)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// CheckSubmissionWindow answers whether date (or the range date..end) may be
// claimed today.
func (h *Handler) CheckSubmissionWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	date, err := ot.ParseDate(q.Get("date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	policy, err := h.Service.Policy(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load policy", err)
		return
	}

	today := h.Service.Now()
	var decision ot.WindowDecision
	if e := q.Get("end"); e != "" {
		end, err := ot.ParseDate(e)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		decision = ot.CanSubmitRange(date, end, today, policy)
	} else {
		decision = ot.CanSubmit(date, today, policy)
	}

	writeJSON(w, http.StatusOK, WindowResponse{
		Date:           date.Format("2006-01-02"),
		Today:          ot.CivilDate(today).Format("2006-01-02"),
		Policy:         policy,
		WindowDecision: decision,
	})
}

// GetCalendar returns consolidated calendar rows for a date range.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := ot.ParseDate(q.Get("from"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	to, err := ot.ParseDate(q.Get("to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	events, err := calendar.Load(r.Context(), h.Store, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	state := q.Get("state")
	if state != "" {
		events = calendar.ForState(events, state)
	}
	if events == nil {
		events = []calendar.EventItem{}
	}

	writeJSON(w, http.StatusOK, CalendarResponse{
		From:   from.Format("2006-01-02"),
		To:     to.Format("2006-01-02"),
		State:  state,
		Events: events,
	})
}

// CreateCalendarEvent stores one raw calendar row.
func (h *Handler) CreateCalendarEvent(w http.ResponseWriter, r *http.Request) {
	var body CalendarEventRequest
	if !h.decode(w, r, &body) {
		return
	}
	date, err := ot.ParseDate(body.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ev := calendar.EventItem{
		ID:            body.ID,
		Date:          date,
		Description:   body.Description,
		Origin:        calendar.Origin(body.Origin),
		StateCode:     body.StateCode,
		HolidayType:   body.HolidayType,
		IsReplacement: body.IsReplacement,
		IsHRModified:  body.IsHRModified,
		EmployeeID:    body.EmployeeID,
	}
	if err := h.Store.SaveCalendarEvent(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save calendar event", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *Handler) dayTypeFor(ctx context.Context, date time.Time, stateCode string) (ot.DayType, error) {
	events, err := calendar.Load(ctx, h.Store, date, date)
	if err != nil {
		return "", err
	}
	return calendar.DayTypeFor(events, date, stateCode), nil
}

// =============================================================================
// POLICY AND ADMIN
// =============================================================================

// GetPolicy returns the submission policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Service.Policy(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load policy", err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// UpdatePolicy replaces the submission policy.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var body PolicyRequest
	if !h.decode(w, r, &body) {
		return
	}

	policy := ot.Policy{CutoffWindowDays: body.CutoffWindowDays, GracePeriodEnabled: body.GracePeriodEnabled}
	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}

	logger.FromContext(r.Context()).Info().
		Int("cutoff_window_days", policy.CutoffWindowDays).
		Bool("grace_period_enabled", policy.GracePeriodEnabled).
		Msg("submission policy updated")
	writeJSON(w, http.StatusOK, policy)
}

// ResetDatabase clears all data (for demo purposes).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) submitInput(ctx context.Context, body SubmitRequest) (ot.SubmitInput, error) {
	date, err := ot.ParseDate(body.Date)
	if err != nil {
		return ot.SubmitInput{}, err
	}
	dayType := body.DayType
	if dayType == "" {
		dayType, err = h.dayTypeFor(ctx, date, body.StateCode)
		if err != nil {
			return ot.SubmitInput{}, err
		}
	}

	return ot.SubmitInput{
		EmployeeID:             body.EmployeeID,
		SupervisorID:           body.SupervisorID,
		RespectiveSupervisorID: body.RespectiveSupervisorID,
		Date:                   date,
		StartTime:              body.StartTime,
		EndTime:                body.EndTime,
		DayType:                dayType,
		Reason:                 body.Reason,
		Attachments:            body.Attachments,
		BasicSalary:            body.BasicSalary,
		ThresholdID:            body.ThresholdID,
		EligibilityRuleID:      body.EligibilityRuleID,
	}, nil
}

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a domain error to its status and machine code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		te *ot.InvalidTransitionError
		we *ot.WindowViolationError
	)

	switch {
	case errors.As(err, &te):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: te.Error(),
			Code:  "invalid_transition",
			Details: TransitionErrorDetails{
				From:     string(te.From),
				To:       string(te.To),
				Role:     string(te.Role),
				Required: string(te.Required),
			},
		})
	case errors.As(err, &we):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: we.Error(),
			Code:  "submission_window",
			Details: map[string]string{
				"work_date": we.WorkDate.Format("2006-01-02"),
				"today":     we.Today.Format("2006-01-02"),
				"reason":    we.Reason,
			},
		})
	case errors.Is(err, ot.ErrInvalidRateInput):
		writeCoded(w, http.StatusBadRequest, "invalid_rate_input", err)
	case ot.IsNotFound(err):
		writeCoded(w, http.StatusNotFound, "not_found", err)
	case ot.IsRetryable(err):
		writeCoded(w, http.StatusConflict, "concurrent_modification", err)
	case errors.Is(err, ot.ErrDuplicateRequest):
		writeCoded(w, http.StatusConflict, "duplicate", err)
	case errors.Is(err, ot.ErrAlreadyResubmitted):
		writeCoded(w, http.StatusConflict, "already_resubmitted", err)
	case errors.Is(err, ot.ErrNotOwner):
		writeCoded(w, http.StatusForbidden, "not_owner", err)
	case errors.Is(err, ot.ErrNotResubmittable):
		writeCoded(w, http.StatusUnprocessableEntity, "not_resubmittable", err)
	case errors.Is(err, ot.ErrNotAmendable):
		writeCoded(w, http.StatusUnprocessableEntity, "not_amendable", err)
	case errors.Is(err, ot.ErrEmptyBatch):
		writeCoded(w, http.StatusBadRequest, "empty_batch", err)
	case errors.Is(err, ot.ErrInvalidInput):
		writeCoded(w, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, calendar.ErrConsolidationKeyCollision):
		logger.FromContext(r.Context()).Error().Err(err).Msg("calendar consolidation failed")
		writeCoded(w, http.StatusInternalServerError, "consolidation_key_collision", err)
	default:
		logger.FromContext(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeCoded(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
