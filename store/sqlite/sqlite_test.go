package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/ot"
	"github.com/warp/overtime-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRequest(id string, status ot.Status) *ot.Request {
	at := time.Date(2025, time.March, 20, 9, 30, 0, 0, time.UTC)
	return &ot.Request{
		ID:                     id,
		TicketNumber:           "OT-20250319-ABCDEF",
		EmployeeID:             "emp-1",
		SupervisorID:           "sup-1",
		RespectiveSupervisorID: "resp-1",
		Date:                   time.Date(2025, time.March, 19, 0, 0, 0, 0, time.UTC),
		StartTime:              "18:00",
		EndTime:                "22:00",
		TotalHours:             decimal.RequireFromString("4"),
		DayType:                ot.DayPublicHoliday,
		Reason:                 "go-live support",
		Attachments:            []string{"timesheet.pdf"},
		BasicSalary:            decimal.RequireFromString("3000"),
		ORP:                    ot.ORP(decimal.RequireFromString("3000")),
		HRP:                    ot.HRP(decimal.RequireFromString("3000")),
		Amount:                 decimal.RequireFromString("230.77"),
		Status:                 status,
		Route:                  ot.RouteB,
		RespectiveReview:       ot.Review{ActorID: "resp-1", At: &at, Remarks: "ok"},
		History: []ot.HistoryEntry{
			{ParentRequestID: "old", RejectedByRole: ot.RoleHR, RejectionReason: "no evidence", At: at},
		},
		ResubmissionCount: 1,
		ThresholdID:       "thr-1",
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestStore_RequestRoundTrip(t *testing.T) {
	// GIVEN: a fully populated request
	// WHEN: stored and loaded back
	// THEN: every field survives, decimals exactly
	store := newTestStore(t)
	ctx := context.Background()

	in := sampleRequest("r-1", ot.StatusPendingSupervisorVerification)
	require.NoError(t, store.SaveRequest(ctx, in, ""))

	out, err := store.LoadRequest(ctx, "r-1")
	require.NoError(t, err)

	assert.Equal(t, in.TicketNumber, out.TicketNumber)
	assert.Equal(t, in.RespectiveSupervisorID, out.RespectiveSupervisorID)
	assert.True(t, in.Date.Equal(out.Date))
	assert.True(t, in.Amount.Equal(out.Amount))
	assert.True(t, in.ORP.Equal(out.ORP), "ORP keeps full precision")
	assert.True(t, in.HRP.Equal(out.HRP))
	assert.Equal(t, ot.DayPublicHoliday, out.DayType)
	assert.Equal(t, ot.RouteB, out.Route)
	assert.Equal(t, in.Attachments, out.Attachments)
	assert.Equal(t, "ok", out.RespectiveReview.Remarks)
	require.NotNil(t, out.RespectiveReview.At)
	assert.True(t, in.RespectiveReview.At.Equal(*out.RespectiveReview.At))
	require.Len(t, out.History, 1)
	assert.Equal(t, ot.RoleHR, out.History[0].RejectedByRole)
	assert.Equal(t, 1, out.ResubmissionCount)
	assert.Equal(t, "thr-1", out.ThresholdID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
}

func TestStore_RespectiveDenialRemarksRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := sampleRequest("r-1", ot.StatusRejected)
	in.RejectionStage = ot.RoleRespectiveSupervisor
	in.RespectiveDenialRemarks = "not on my project"
	require.NoError(t, store.SaveRequest(ctx, in, ""))

	out, err := store.LoadRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "not on my project", out.RespectiveDenialRemarks)
	assert.Equal(t, "not on my project", out.RejectionReason())
}

func TestStore_OneResubmissionPerParent(t *testing.T) {
	// GIVEN: a rejected request that already has a resubmission
	// WHEN: a second child of the same parent is inserted
	// THEN: the insert fails and the first child stays the only one
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRequest(ctx, sampleRequest("parent", ot.StatusRejected), ""))

	first := sampleRequest("child-1", ot.StatusPendingRespectiveConfirmation)
	first.ParentRequestID = "parent"
	require.NoError(t, store.SaveRequest(ctx, first, ""))

	second := sampleRequest("child-2", ot.StatusPendingRespectiveConfirmation)
	second.ParentRequestID = "parent"
	err := store.SaveRequest(ctx, second, "")
	assert.ErrorIs(t, err, ot.ErrAlreadyResubmitted)

	_, err = store.LoadRequest(ctx, "child-2")
	assert.True(t, ot.IsNotFound(err))
}

func TestStore_LoadRequest_NotFound(t *testing.T) {
	_, err := newTestStore(t).LoadRequest(context.Background(), "missing")
	assert.True(t, ot.IsNotFound(err))
}

func TestStore_SaveRequest_CompareAndSwap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRequest(ctx, sampleRequest("r-1", ot.StatusPendingSupervisorVerification), ""))

	err := store.SaveRequest(ctx, sampleRequest("r-1", ot.StatusPendingSupervisorVerification), "")
	assert.ErrorIs(t, err, ot.ErrDuplicateRequest)

	verified := sampleRequest("r-1", ot.StatusSupervisorVerified)
	verified.SupervisorReview = ot.Review{ActorID: "sup-1", Remarks: "fine"}
	require.NoError(t, store.SaveRequest(ctx, verified, ot.StatusPendingSupervisorVerification))

	// Stale writer
	stale := sampleRequest("r-1", ot.StatusRejected)
	err = store.SaveRequest(ctx, stale, ot.StatusPendingSupervisorVerification)
	assert.ErrorIs(t, err, ot.ErrConcurrentModification)

	got, err := store.LoadRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, ot.StatusSupervisorVerified, got.Status)
	assert.Equal(t, "fine", got.SupervisorReview.Remarks)

	// Update of an id that was never created
	err = store.SaveRequest(ctx, sampleRequest("ghost", ot.StatusHRCertified), ot.StatusSupervisorVerified)
	assert.True(t, ot.IsNotFound(err))
}

func TestStore_ApproveBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRequest(ctx, sampleRequest("r-1", ot.StatusHRCertified), ""))
	require.NoError(t, store.SaveRequest(ctx, sampleRequest("r-2", ot.StatusHRCertified), ""))
	require.NoError(t, store.SaveRequest(ctx, sampleRequest("r-3", ot.StatusSupervisorVerified), ""))

	at := time.Date(2025, time.March, 25, 12, 0, 0, 0, time.UTC)
	n, err := store.ApproveBatch(ctx, []string{"r-1", "r-2", "r-3", "missing"}, ot.Review{ActorID: "mgr-1", At: &at, Remarks: "batch"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reqs, err := store.LoadRequestsByIDs(ctx, []string{"r-1", "r-2", "r-3", "missing"})
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		if r.ID == "r-3" {
			assert.Equal(t, ot.StatusSupervisorVerified, r.Status)
			continue
		}
		assert.Equal(t, ot.StatusManagementApproved, r.Status)
		assert.Equal(t, "mgr-1", r.ManagementReview.ActorID)
		require.NotNil(t, r.ManagementReview.At)
		assert.True(t, at.Equal(*r.ManagementReview.At))
		assert.True(t, at.Equal(r.UpdatedAt))
	}

	n, err = store.ApproveBatch(ctx, nil, ot.Review{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ListRequests_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleRequest("r-1", ot.StatusHRCertified)
	b := sampleRequest("r-2", ot.StatusRejected)
	b.EmployeeID = "emp-2"
	b.CreatedAt = b.CreatedAt.Add(time.Hour)
	require.NoError(t, store.SaveRequest(ctx, a, ""))
	require.NoError(t, store.SaveRequest(ctx, b, ""))

	all, err := store.ListRequests(ctx, sqlite.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r-2", all[0].ID, "newest first")

	byStatus, err := store.ListRequests(ctx, sqlite.RequestFilter{Status: ot.StatusHRCertified})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "r-1", byStatus[0].ID)

	byEmployee, err := store.ListRequests(ctx, sqlite.RequestFilter{EmployeeID: "emp-2", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byEmployee, 1)
	assert.Equal(t, "r-2", byEmployee[0].ID)
}

// =============================================================================
// POLICY, AUDIT, OUTBOX
// =============================================================================

func TestStore_Policy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.LoadPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, ot.DefaultPolicy(), p, "default until saved")

	require.NoError(t, store.SavePolicy(ctx, ot.Policy{CutoffWindowDays: 10, GracePeriodEnabled: true}))
	require.NoError(t, store.SavePolicy(ctx, ot.Policy{CutoffWindowDays: 12}))

	p, err = store.LoadPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, ot.Policy{CutoffWindowDays: 12}, p)
}

func TestStore_SeedPolicy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wrote, err := store.SeedPolicy(ctx, ot.Policy{CutoffWindowDays: 14})
	require.NoError(t, err)
	assert.True(t, wrote)

	// A stored policy is never overwritten by the seed.
	wrote, err = store.SeedPolicy(ctx, ot.Policy{CutoffWindowDays: 3, GracePeriodEnabled: true})
	require.NoError(t, err)
	assert.False(t, wrote)

	p, err := store.LoadPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, ot.Policy{CutoffWindowDays: 14}, p)
}

func TestStore_AuditTrail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, ot.AuditEntry{RequestID: "r-1", ActorID: "emp-1", Role: ot.RoleEmployee, To: ot.StatusPendingVerification, At: t0}))
	require.NoError(t, store.Append(ctx, ot.AuditEntry{RequestID: "r-1", ActorID: "sup-1", Role: ot.RoleSupervisor, From: ot.StatusPendingVerification, To: ot.StatusSupervisorConfirmed, Remarks: "ok", At: t0.Add(time.Minute)}))
	require.NoError(t, store.Append(ctx, ot.AuditEntry{RequestID: "r-2", ActorID: "emp-2", Role: ot.RoleEmployee, To: ot.StatusPendingVerification, At: t0}))

	trail, err := store.AuditTrail(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, ot.Status(""), trail[0].From)
	assert.Equal(t, ot.StatusSupervisorConfirmed, trail[1].To)
	assert.Equal(t, "ok", trail[1].Remarks)
	assert.NotEmpty(t, trail[0].ID)
}

func TestStore_NotificationOutbox(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Notify(ctx, ot.Notification{RequestID: "r-1", Type: ot.NotifySubmitted}))
	require.NoError(t, store.Notify(ctx, ot.Notification{RequestID: "r-2", Type: ot.NotifyRejected}))

	pending, err := store.PendingNotifications(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, store.MarkDispatched(ctx, pending[0].ID, time.Now()))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.MarkFailed(ctx, pending[1].ID, errors.New("mailbox full")))
	}

	pending, err = store.PendingNotifications(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending, "dispatched and exhausted entries are skipped")

	pending, err = store.PendingNotifications(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Attempts)
	assert.Equal(t, "mailbox full", pending[0].LastError)
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestStore_CalendarEvents_ConsolidateFromStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sgr, jhr, religious := "SGR", "JHR", "religious"
	day := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveCalendarEvent(ctx, calendar.EventItem{ID: "h-1", Date: day, Description: "Hari Raya", Origin: calendar.OriginHoliday, StateCode: &sgr, HolidayType: &religious}))
	require.NoError(t, store.SaveCalendarEvent(ctx, calendar.EventItem{ID: "h-2", Date: day, Description: "Hari Raya", Origin: calendar.OriginHoliday, StateCode: &jhr, IsReplacement: true}))
	require.NoError(t, store.SaveCalendarEvent(ctx, calendar.EventItem{Date: day.AddDate(0, 1, 0), Description: "Out of range", Origin: calendar.OriginCompany}))

	events, err := calendar.Load(ctx, store, day.AddDate(0, 0, -1), day)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"JHR", "SGR"}, events[0].StateCodes)
	assert.True(t, events[0].IsReplacement)
	require.NotNil(t, events[0].HolidayType)
	assert.Equal(t, "religious", *events[0].HolidayType)
}

// =============================================================================
// SERVICE OVER SQLITE
// =============================================================================

func TestStore_ServiceLifecycle(t *testing.T) {
	// GIVEN: the service wired to sqlite as store, audit log and notifier
	// WHEN: a route A request goes through to management approval
	// THEN: every step is audited and queued for notification
	store := newTestStore(t)
	ctx := context.Background()
	svc := ot.NewService(store, ot.WithAuditLog(store), ot.WithNotifier(store), ot.WithClock(func() time.Time {
		return time.Date(2025, time.March, 20, 10, 0, 0, 0, time.UTC)
	}))

	req, err := svc.Submit(ctx, ot.SubmitInput{
		EmployeeID:   "emp-1",
		SupervisorID: "sup-1",
		Date:         time.Date(2025, time.March, 18, 0, 0, 0, 0, time.UTC),
		StartTime:    "19:00",
		EndTime:      "23:00",
		DayType:      ot.DayWeekday,
		BasicSalary:  decimal.RequireFromString("3000"),
	})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, req.ID, ot.Actor{ID: "sup-1", Role: ot.RoleSupervisor}, "")
	require.NoError(t, err)
	_, err = svc.Certify(ctx, req.ID, ot.Actor{ID: "hr-1", Role: ot.RoleHR}, "")
	require.NoError(t, err)

	res, err := svc.ApproveBatch(ctx, []string{req.ID}, ot.Actor{ID: "mgr-1", Role: ot.RoleManagement}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	got, err := store.LoadRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ot.StatusManagementApproved, got.Status)
	assert.True(t, decimal.RequireFromString("86.54").Equal(got.Amount))

	trail, err := store.AuditTrail(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 4)

	pending, err := store.PendingNotifications(ctx, 10, 3)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}
