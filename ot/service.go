/*
service.go - RequestLifecycleService

PURPOSE:
  Orchestrates the state machine against stored requests. Each single-record
  action is its own unit of work:

    load ──▶ Apply (table guard) ──▶ stamp review ──▶ SaveRequest(CAS) ──▶ audit + notify

  Audit and notification run after a successful save and never fail the action.

SUBMISSION FLOW:
  SubmitInput ──▶ validate ──▶ window check ──▶ hours + rate ──▶ create in route's initial status

RESUBMISSION:
  A rejected request is never reopened. Resubmit creates a new record that
  points at the rejected one, increments the resubmission count and appends a
  history entry with the rejecting role and reason. The new work date is
  window-checked, not the parent's. Each rejected record has at most one
  child; stores refuse a second one with ErrAlreadyResubmitted.

BATCH APPROVAL:
  ApproveBatch pre-fetches and validates every id, then issues one set-based
  update filtered on hr_certified. A record that changed between the two steps
  is simply not matched; the result reports Updated < Requested and a warning
  is logged. There is no per-record rollback.

EXAMPLE:
  svc := ot.NewService(store, ot.WithNotifier(n), ot.WithLogger(log))
  req, err := svc.Submit(ctx, in)
  req, err = svc.Confirm(ctx, req.ID, ot.Actor{ID: "sup-1", Role: ot.RoleSupervisor}, "ok")
*/
package ot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store    Store
	Audit    AuditLog // optional
	Notifier Notifier // optional
	Log      zerolog.Logger
	Now      func() time.Time

	validate *validator.Validate
}

type Option func(*Service)

func WithAuditLog(a AuditLog) Option { return func(s *Service) { s.Audit = a } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.Notifier = n } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.Log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.Now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		Store:    store,
		Log:      zerolog.Nop(),
		Now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit creates a new request in the initial status of its route.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	req, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveRequest(ctx, req, ""); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.after(ctx, req, Actor{ID: in.EmployeeID, Role: RoleEmployee}, "", req.Status, in.Reason, NotifySubmitted)
	return req, nil
}

// Resubmit creates a new request from a rejected one. Work facts come from in;
// the route follows in.RespectiveSupervisorID, not the parent's route. A
// rejected request has at most one resubmission, so the chain never branches;
// a second attempt fails with ErrAlreadyResubmitted from the store.
func (s *Service) Resubmit(ctx context.Context, parentID string, in SubmitInput) (*Request, error) {
	parent, err := s.Store.LoadRequest(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Status != StatusRejected {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResubmittable, parent.ID, parent.Status)
	}
	if parent.EmployeeID != in.EmployeeID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, parent.ID)
	}

	req, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	req.ParentRequestID = parent.ID
	req.ResubmissionCount = parent.ResubmissionCount + 1
	req.History = append(append([]HistoryEntry(nil), parent.History...), HistoryEntry{
		ParentRequestID: parent.ID,
		RejectedByRole:  parent.RejectionStage,
		RejectionReason: parent.RejectionReason(),
		At:              req.CreatedAt,
	})

	if err := s.Store.SaveRequest(ctx, req, ""); err != nil {
		return nil, fmt.Errorf("failed to create resubmission: %w", err)
	}

	s.after(ctx, req, Actor{ID: in.EmployeeID, Role: RoleEmployee}, "", req.Status, in.Reason, NotifyResubmitted)
	return req, nil
}

// Amend lets the owner correct work facts before anyone has reviewed the
// request. The route and identity are kept; money is recomputed.
func (s *Service) Amend(ctx context.Context, id string, in SubmitInput) (*Request, error) {
	req, err := s.Store.LoadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.EmployeeID != in.EmployeeID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, id)
	}
	if req.Status != req.Route.InitialStatus() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAmendable, id, req.Status)
	}
	if RouteFor(in.RespectiveSupervisorID) != req.Route {
		return nil, fmt.Errorf("%w: route is fixed at creation", ErrInvalidInput)
	}

	fresh, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}

	prior := req.Status
	updated := req.Clone()
	updated.SupervisorID = fresh.SupervisorID
	updated.RespectiveSupervisorID = fresh.RespectiveSupervisorID
	updated.Date = fresh.Date
	updated.StartTime = fresh.StartTime
	updated.EndTime = fresh.EndTime
	updated.Reason = fresh.Reason
	updated.Attachments = fresh.Attachments
	updated.ThresholdID = fresh.ThresholdID
	updated.EligibilityRuleID = fresh.EligibilityRuleID
	updated.BasicSalary = fresh.BasicSalary
	updated.TotalHours = fresh.TotalHours
	updated.DayType = fresh.DayType
	updated.ORP = fresh.ORP
	updated.HRP = fresh.HRP
	updated.Amount = fresh.Amount
	updated.UpdatedAt = fresh.CreatedAt

	if err := s.Store.SaveRequest(ctx, updated, prior); err != nil {
		return nil, err
	}

	s.after(ctx, updated, Actor{ID: in.EmployeeID, Role: RoleEmployee}, prior, updated.Status, "amended", NotifyAmended)
	return updated, nil
}

// build validates input, gates the window and prices the claim.
func (s *Service) build(ctx context.Context, in SubmitInput) (*Request, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}

	policy, err := s.Store.LoadPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	now := s.Now()
	if err := checkWindow(in.Date, now, policy); err != nil {
		return nil, err
	}

	hours, err := WorkedHours(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}
	breakdown, err := Calculate(in.BasicSalary, in.DayType, hours)
	if err != nil {
		return nil, err
	}

	route := RouteFor(in.RespectiveSupervisorID)
	id := uuid.NewString()
	req := &Request{
		ID:                     id,
		TicketNumber:           TicketNumber(id, in.Date),
		EmployeeID:             in.EmployeeID,
		SupervisorID:           in.SupervisorID,
		RespectiveSupervisorID: in.RespectiveSupervisorID,
		Date:                   CivilDate(in.Date),
		StartTime:              in.StartTime,
		EndTime:                in.EndTime,
		Reason:                 in.Reason,
		Attachments:            append([]string(nil), in.Attachments...),
		Status:                 route.InitialStatus(),
		Route:                  route,
		ThresholdID:            in.ThresholdID,
		EligibilityRuleID:      in.EligibilityRuleID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	req.applyRate(breakdown)
	return req, nil
}

// =============================================================================
// REVIEW ACTIONS
// =============================================================================

// ConfirmRespective is the respective supervisor's confirmation on route B. The
// request is handed to the direct supervisor in the same save.
func (s *Service) ConfirmRespective(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifyRespectiveConfirmed,
		func(*Request) Status { return StatusRespectiveSupervisorConfirmed },
		StatusPendingSupervisorVerification)
}

// Confirm is the direct supervisor's confirmation on route A.
func (s *Service) Confirm(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifySupervisorConfirmed,
		func(*Request) Status { return StatusSupervisorConfirmed })
}

// Verify is the direct supervisor's verification on route B.
func (s *Service) Verify(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifySupervisorVerified,
		func(*Request) Status { return StatusSupervisorVerified })
}

// Certify is HR certification on either route.
func (s *Service) Certify(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifyHRCertified,
		func(*Request) Status { return StatusHRCertified })
}

// Approve is the management approval of a single request.
func (s *Service) Approve(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifyManagementApproved,
		func(*Request) Status { return StatusManagementApproved })
}

// Reject is the reviewer's "no" at its stage. Before certification it ends the
// request and records which role rejected it. At hr_certified an HR rejection
// sends the request back to the start of its route, and at management_approved
// a management rejection sends it back to HR; neither of those is final and
// they behave exactly like ReturnToPending and Revert.
func (s *Service) Reject(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifyRejected, rejectTarget)
}

// rejectTarget maps a rejection onto the edge the current status offers.
func rejectTarget(r *Request) Status {
	switch r.Status {
	case StatusHRCertified:
		return r.Route.InitialStatus()
	case StatusManagementApproved:
		return StatusHRCertified
	}
	return StatusRejected
}

// ReturnToPending is HR sending a certified request back to the start of its route.
func (s *Service) ReturnToPending(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifyReturned,
		func(r *Request) Status { return r.Route.InitialStatus() })
}

// Revert is management taking back an approval for HR recertification.
func (s *Service) Revert(ctx context.Context, id string, actor Actor, remarks string) (*Request, error) {
	return s.transition(ctx, id, actor, remarks, NotifyReverted,
		func(*Request) Status { return StatusHRCertified })
}

// transition runs one action: the actor's edge, then any system hand-offs,
// saved once against the status that was read.
func (s *Service) transition(
	ctx context.Context,
	id string,
	actor Actor,
	remarks string,
	notification NotificationType,
	target func(*Request) Status,
	handoffs ...Status,
) (*Request, error) {
	req, err := s.Store.LoadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	prior := req.Status

	next, err := Apply(req, target(req), actor.Role)
	if err != nil {
		return nil, err
	}

	updated := req.Clone()
	now := s.Now()
	updated.Status = next
	updated.UpdatedAt = now
	if rv := updated.ReviewFor(actor.Role); rv != nil {
		at := now
		*rv = Review{ActorID: actor.ID, At: &at, Remarks: remarks}
	}
	if next == StatusRejected {
		updated.RejectionStage = actor.Role
		if actor.Role == RoleRespectiveSupervisor {
			updated.RespectiveDenialRemarks = remarks
		}
	} else if notification == NotifyRejected {
		notification = sendBackNotice(next)
	}

	for _, h := range handoffs {
		if updated.Status, err = Apply(updated, h, RoleSystem); err != nil {
			return nil, err
		}
	}

	if err := s.Store.SaveRequest(ctx, updated, prior); err != nil {
		return nil, err
	}

	s.after(ctx, updated, actor, prior, updated.Status, remarks, notification)
	return updated, nil
}

// =============================================================================
// BATCH APPROVAL
// =============================================================================

type BatchResult struct {
	Requested int
	Updated   int
	// Approved lists the ids found in management_approved after the update.
	Approved []string
}

// ApproveBatch validates every id against the table and then approves them in
// one set-based update. Any missing or invalid id fails the whole call before
// anything is written.
func (s *Service) ApproveBatch(ctx context.Context, ids []string, actor Actor, remarks string) (*BatchResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	found, err := s.Store.LoadRequestsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	byID := make(map[string]*Request, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	for _, id := range ids {
		req, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
		}
		if _, err := Apply(req, StatusManagementApproved, actor.Role); err != nil {
			return nil, err
		}
	}

	at := s.Now()
	stamp := Review{ActorID: actor.ID, At: &at, Remarks: remarks}
	updated, err := s.Store.ApproveBatch(ctx, ids, stamp)
	if err != nil {
		return nil, fmt.Errorf("failed to approve batch: %w", err)
	}

	result := &BatchResult{Requested: len(ids), Updated: updated}
	if updated < len(ids) {
		s.Log.Warn().
			Int("requested", len(ids)).
			Int("updated", updated).
			Msg("batch approval matched fewer requests than were validated")
	}

	after, err := s.Store.LoadRequestsByIDs(ctx, ids)
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to reload approved batch")
		return result, nil
	}
	for i := range after {
		req := &after[i]
		if req.Status != StatusManagementApproved || !stampedBy(req.ManagementReview, stamp) {
			continue
		}
		result.Approved = append(result.Approved, req.ID)
		s.after(ctx, req, actor, StatusHRCertified, StatusManagementApproved, remarks, NotifyManagementApproved)
	}
	return result, nil
}

func sendBackNotice(to Status) NotificationType {
	if to == StatusHRCertified {
		return NotifyReverted
	}
	return NotifyReturned
}

func stampedBy(rv Review, stamp Review) bool {
	return rv.ActorID == stamp.ActorID && rv.At != nil && rv.At.Equal(*stamp.At)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// =============================================================================
// FAN-OUT
// =============================================================================

// after writes the audit entry and the notification. Failures are logged only.
func (s *Service) after(ctx context.Context, req *Request, actor Actor, from, to Status, remarks string, n NotificationType) {
	log := s.Log.With().
		Str("request_id", req.ID).
		Str("ticket", req.TicketNumber).
		Str("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Logger()

	if s.Audit != nil {
		entry := AuditEntry{
			ID:        uuid.NewString(),
			RequestID: req.ID,
			ActorID:   actor.ID,
			Role:      actor.Role,
			From:      from,
			To:        to,
			Remarks:   remarks,
			At:        req.UpdatedAt,
		}
		if err := s.Audit.Append(ctx, entry); err != nil {
			log.Error().Err(err).Msg("audit append failed")
		}
	}

	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, Notification{RequestID: req.ID, Type: n}); err != nil {
			log.Warn().Err(err).Str("notification", string(n)).Msg("notification failed")
		}
	}

	log.Info().Str("from", string(from)).Str("to", string(to)).Msg("request transitioned")
}

// Actions lists the statuses the request can move to next and who may move it.
func (s *Service) Actions(ctx context.Context, id string) ([]Transition, error) {
	req, err := s.Store.LoadRequest(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return Allowed(req.Route, req.Status), nil
}

// Get loads one request.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.Store.LoadRequest(ctx, id)
}

// Policy returns the current submission policy.
func (s *Service) Policy(ctx context.Context) (Policy, error) {
	return s.Store.LoadPolicy(ctx)
}

// CheckWindow reports whether date may be claimed today under the stored policy.
func (s *Service) CheckWindow(ctx context.Context, date time.Time) (WindowDecision, error) {
	policy, err := s.Store.LoadPolicy(ctx)
	if err != nil {
		return WindowDecision{}, err
	}
	return CanSubmit(date, s.Now(), policy), nil
}
