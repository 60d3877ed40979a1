/*
Package sqlite provides a SQLite-backed persistence collaborator for the OT engine.

PURPOSE:
  Implements every storage interface the engine and the HTTP layer need:

  ot.Store:        OT requests + submission policy, compare-and-swap on status
  ot.AuditLog:     append-only audit trail
  ot.Notifier:     notification outbox (drained by api.Dispatcher)
  calendar.Source: raw holiday / leave rows

COMPARE-AND-SWAP:
  Every update is UPDATE ... WHERE id = ? AND status = ?. Zero rows affected
  on an existing id means another writer moved the request first and is
  reported as ot.ErrConcurrentModification.

KEY TABLES:
  ot_requests:      one row per request; money as decimal TEXT, reviews as JSON
  submission_policy single row (id = 1); absent means the default policy
  audit_log:        append-only status changes
  notifications:    outbox, dispatched_at NULL until sent
  calendar_events:  raw per-state holiday rows and leave rows

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Batch approval is a single UPDATE, so
  it is atomic at the database level as well.

WAL MODE:
  Opened with WAL like any file database. ":memory:" is pinned to a single
  connection, otherwise each pooled connection would see its own empty database.

USAGE:
  store, err := sqlite.New("./data/overtime.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ot.NewService(store, ot.WithAuditLog(store), ot.WithNotifier(store))

SEE ALSO:
  - ot/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/ot"
)

const (
	dateLayout = "2006-01-02"

	// fixed-width so that ORDER BY on the text column is chronological
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- OT requests
	CREATE TABLE IF NOT EXISTS ot_requests (
		id TEXT PRIMARY KEY,
		ticket_number TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		supervisor_id TEXT NOT NULL,
		respective_supervisor_id TEXT,
		work_date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		day_type TEXT NOT NULL,
		reason TEXT,
		attachments_json TEXT,
		basic_salary TEXT NOT NULL,
		orp TEXT NOT NULL,
		hrp TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		route TEXT NOT NULL,
		respective_review_json TEXT,
		supervisor_review_json TEXT,
		hr_review_json TEXT,
		management_review_json TEXT,
		rejection_stage TEXT,
		respective_denial_remarks TEXT,
		parent_request_id TEXT REFERENCES ot_requests(id),
		resubmission_count INTEGER NOT NULL DEFAULT 0,
		history_json TEXT,
		threshold_id TEXT,
		eligibility_rule_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ot_requests_employee
		ON ot_requests(employee_id, work_date);
	CREATE INDEX IF NOT EXISTS idx_ot_requests_status
		ON ot_requests(status);
	CREATE INDEX IF NOT EXISTS idx_ot_requests_supervisor_status
		ON ot_requests(supervisor_id, status);
	-- A rejected request has at most one resubmission
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ot_requests_parent_unique
		ON ot_requests(parent_request_id) WHERE parent_request_id IS NOT NULL;

	-- Submission policy (single row)
	CREATE TABLE IF NOT EXISTS submission_policy (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cutoff_window_days INTEGER NOT NULL,
		grace_period_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		role TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		remarks TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_request
		ON audit_log(request_id, at);

	-- Notification outbox
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		type TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TEXT NOT NULL,
		dispatched_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_pending
		ON notifications(created_at) WHERE dispatched_at IS NULL;

	-- Calendar rows (raw, one per state for government holidays)
	CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		description TEXT NOT NULL,
		origin TEXT NOT NULL,
		state_code TEXT,
		holiday_type TEXT,
		is_replacement BOOLEAN DEFAULT FALSE,
		is_hr_modified BOOLEAN DEFAULT FALSE,
		employee_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calendar_events_date
		ON calendar_events(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUEST STORE (ot.Store interface)
// =============================================================================

const requestColumns = `
	id, ticket_number, employee_id, supervisor_id, respective_supervisor_id,
	work_date, start_time, end_time, total_hours, day_type, reason, attachments_json,
	basic_salary, orp, hrp, amount, status, route,
	respective_review_json, supervisor_review_json, hr_review_json, management_review_json,
	rejection_stage, respective_denial_remarks, parent_request_id, resubmission_count, history_json,
	threshold_id, eligibility_rule_id, created_at, updated_at`

// LoadRequest returns one request or ot.ErrRequestNotFound.
func (s *Store) LoadRequest(ctx context.Context, id string) (*ot.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reqs, err := s.queryRequests(ctx, `SELECT `+requestColumns+` FROM ot_requests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: %s", ot.ErrRequestNotFound, id)
	}
	return &reqs[0], nil
}

// SaveRequest inserts when expectedPrior is empty, otherwise updates only if
// the stored status still equals expectedPrior.
func (s *Store) SaveRequest(ctx context.Context, req *ot.Request, expectedPrior ot.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := toRow(req)
	if err != nil {
		return err
	}

	if expectedPrior == "" {
		return s.insertRequest(ctx, row)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE ot_requests SET
			supervisor_id = ?, respective_supervisor_id = ?,
			work_date = ?, start_time = ?, end_time = ?, total_hours = ?, day_type = ?,
			reason = ?, attachments_json = ?,
			basic_salary = ?, orp = ?, hrp = ?, amount = ?,
			status = ?,
			respective_review_json = ?, supervisor_review_json = ?, hr_review_json = ?, management_review_json = ?,
			rejection_stage = ?, respective_denial_remarks = ?,
			threshold_id = ?, eligibility_rule_id = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`,
		row.SupervisorID, nullString(row.RespectiveSupervisorID),
		row.WorkDate, row.StartTime, row.EndTime, row.TotalHours, row.DayType,
		row.Reason, row.Attachments,
		row.BasicSalary, row.ORP, row.HRP, row.Amount,
		row.Status,
		row.RespectiveReview, row.SupervisorReview, row.HRReview, row.ManagementReview,
		nullString(row.RejectionStage), nullString(row.RespectiveDenialRemarks),
		nullString(row.ThresholdID), nullString(row.EligibilityRuleID),
		row.UpdatedAt,
		row.ID, string(expectedPrior),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM ot_requests WHERE id = ?`, row.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ot.ErrRequestNotFound, row.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read request status: %w", err)
	}
	return fmt.Errorf("%w: %s is %s, expected %s",
		ot.ErrConcurrentModification, row.ID, current, expectedPrior)
}

func (s *Store) insertRequest(ctx context.Context, row requestRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ot_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.TicketNumber, row.EmployeeID, row.SupervisorID, nullString(row.RespectiveSupervisorID),
		row.WorkDate, row.StartTime, row.EndTime, row.TotalHours, row.DayType, row.Reason, row.Attachments,
		row.BasicSalary, row.ORP, row.HRP, row.Amount, row.Status, row.Route,
		row.RespectiveReview, row.SupervisorReview, row.HRReview, row.ManagementReview,
		nullString(row.RejectionStage), nullString(row.RespectiveDenialRemarks),
		nullString(row.ParentRequestID), row.ResubmissionCount, row.History,
		nullString(row.ThresholdID), nullString(row.EligibilityRuleID), row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "parent_request_id") {
				return fmt.Errorf("%w: %s", ot.ErrAlreadyResubmitted, row.ParentRequestID)
			}
			return fmt.Errorf("%w: %s", ot.ErrDuplicateRequest, row.ID)
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// LoadRequestsByIDs returns the requests that exist. Missing ids are skipped.
func (s *Store) LoadRequestsByIDs(ctx context.Context, ids []string) ([]ot.Request, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM ot_requests WHERE id IN (` + placeholders(len(ids)) + `)`
	return s.queryRequests(ctx, query, stringArgs(ids)...)
}

// ApproveBatch moves the listed requests still in hr_certified to
// management_approved with one UPDATE and reports how many rows matched.
func (s *Store) ApproveBatch(ctx context.Context, ids []string, stamp ot.Review) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	review, err := json.Marshal(stamp)
	if err != nil {
		return 0, fmt.Errorf("failed to encode review: %w", err)
	}
	at := time.Now().UTC()
	if stamp.At != nil {
		at = *stamp.At
	}

	args := []any{string(ot.StatusManagementApproved), string(review), formatTime(at), string(ot.StatusHRCertified)}
	args = append(args, stringArgs(ids)...)

	res, err := s.db.ExecContext(ctx, `
		UPDATE ot_requests
		SET status = ?, management_review_json = ?, updated_at = ?
		WHERE status = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to approve batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to approve batch: %w", err)
	}
	return int(n), nil
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	EmployeeID   string
	SupervisorID string
	Status       ot.Status
	Limit        int
}

// ListRequests returns requests newest first.
func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]ot.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.SupervisorID != "" {
		where = append(where, "supervisor_id = ?")
		args = append(args, f.SupervisorID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM ot_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return s.queryRequests(ctx, query, args...)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]ot.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []ot.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// requestRow is the column form of ot.Request.
type requestRow struct {
	ID, TicketNumber, EmployeeID, SupervisorID, RespectiveSupervisorID string
	WorkDate, StartTime, EndTime, TotalHours, DayType, Reason          string
	Attachments                                                        string
	BasicSalary, ORP, HRP, Amount                                      string
	Status, Route                                                      string
	RespectiveReview, SupervisorReview, HRReview, ManagementReview     string
	RejectionStage, RespectiveDenialRemarks, ParentRequestID           string
	ResubmissionCount                                                  int
	History                                                            string
	ThresholdID, EligibilityRuleID                                     string
	CreatedAt, UpdatedAt                                               string
}

func toRow(req *ot.Request) (requestRow, error) {
	enc := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode request %s: %w", req.ID, err)
		}
		return string(b), nil
	}

	row := requestRow{
		ID:                      req.ID,
		TicketNumber:            req.TicketNumber,
		EmployeeID:              req.EmployeeID,
		SupervisorID:            req.SupervisorID,
		RespectiveSupervisorID:  req.RespectiveSupervisorID,
		WorkDate:                req.Date.Format(dateLayout),
		StartTime:               req.StartTime,
		EndTime:                 req.EndTime,
		TotalHours:              req.TotalHours.String(),
		DayType:                 string(req.DayType),
		Reason:                  req.Reason,
		BasicSalary:             req.BasicSalary.String(),
		ORP:                     req.ORP.String(),
		HRP:                     req.HRP.String(),
		Amount:                  req.Amount.String(),
		Status:                  string(req.Status),
		Route:                   string(req.Route),
		RejectionStage:          string(req.RejectionStage),
		RespectiveDenialRemarks: req.RespectiveDenialRemarks,
		ParentRequestID:         req.ParentRequestID,
		ResubmissionCount:       req.ResubmissionCount,
		ThresholdID:             req.ThresholdID,
		EligibilityRuleID:       req.EligibilityRuleID,
		CreatedAt:               formatTime(req.CreatedAt),
		UpdatedAt:               formatTime(req.UpdatedAt),
	}

	var err error
	if row.Attachments, err = enc(req.Attachments); err != nil {
		return row, err
	}
	if row.History, err = enc(req.History); err != nil {
		return row, err
	}
	if row.RespectiveReview, err = enc(req.RespectiveReview); err != nil {
		return row, err
	}
	if row.SupervisorReview, err = enc(req.SupervisorReview); err != nil {
		return row, err
	}
	if row.HRReview, err = enc(req.HRReview); err != nil {
		return row, err
	}
	if row.ManagementReview, err = enc(req.ManagementReview); err != nil {
		return row, err
	}
	return row, nil
}

func scanRequest(rows *sql.Rows) (ot.Request, error) {
	var (
		req                                                           ot.Request
		respectiveID, reason, attachments                             sql.NullString
		workDate, totalHours, dayType                                 string
		salary, orp, hrp, amount, status, route                       string
		respectiveRv, supervisorRv, hrRv, managementRv                sql.NullString
		rejectionStage, denialRemarks, parentID, history              sql.NullString
		thresholdID, eligibilityID                                    sql.NullString
		createdAt, updatedAt                                          string
	)

	err := rows.Scan(
		&req.ID, &req.TicketNumber, &req.EmployeeID, &req.SupervisorID, &respectiveID,
		&workDate, &req.StartTime, &req.EndTime, &totalHours, &dayType, &reason, &attachments,
		&salary, &orp, &hrp, &amount, &status, &route,
		&respectiveRv, &supervisorRv, &hrRv, &managementRv,
		&rejectionStage, &denialRemarks, &parentID, &req.ResubmissionCount, &history,
		&thresholdID, &eligibilityID, &createdAt, &updatedAt,
	)
	if err != nil {
		return req, fmt.Errorf("failed to scan request: %w", err)
	}

	req.RespectiveSupervisorID = respectiveID.String
	req.Reason = reason.String
	req.DayType = ot.DayType(dayType)
	req.Status = ot.Status(status)
	req.Route = ot.Route(route)
	req.RejectionStage = ot.Role(rejectionStage.String)
	req.RespectiveDenialRemarks = denialRemarks.String
	req.ParentRequestID = parentID.String
	req.ThresholdID = thresholdID.String
	req.EligibilityRuleID = eligibilityID.String
	req.Date, _ = time.Parse(dateLayout, workDate)
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)

	money := []struct {
		column string
		raw    string
		dst    *decimal.Decimal
	}{
		{"total_hours", totalHours, &req.TotalHours},
		{"basic_salary", salary, &req.BasicSalary},
		{"orp", orp, &req.ORP},
		{"hrp", hrp, &req.HRP},
		{"amount", amount, &req.Amount},
	}
	for _, m := range money {
		if *m.dst, err = parseDecimal(m.raw); err != nil {
			return req, fmt.Errorf("failed to scan request %s: %s: %w", req.ID, m.column, err)
		}
	}

	blobs := []struct {
		column string
		raw    sql.NullString
		dst    any
	}{
		{"attachments_json", attachments, &req.Attachments},
		{"history_json", history, &req.History},
		{"respective_review_json", respectiveRv, &req.RespectiveReview},
		{"supervisor_review_json", supervisorRv, &req.SupervisorReview},
		{"hr_review_json", hrRv, &req.HRReview},
		{"management_review_json", managementRv, &req.ManagementReview},
	}
	for _, b := range blobs {
		if err := decodeJSON(b.raw, b.dst); err != nil {
			return req, fmt.Errorf("failed to scan request %s: %s: %w", req.ID, b.column, err)
		}
	}

	return req, nil
}

// =============================================================================
// POLICY STORE
// =============================================================================

// LoadPolicy returns the stored policy, or the default when none was saved.
func (s *Store) LoadPolicy(ctx context.Context) (ot.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p ot.Policy
	err := s.db.QueryRowContext(ctx, `
		SELECT cutoff_window_days, grace_period_enabled FROM submission_policy WHERE id = 1
	`).Scan(&p.CutoffWindowDays, &p.GracePeriodEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return ot.DefaultPolicy(), nil
	}
	if err != nil {
		return ot.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}
	return p, nil
}

// SavePolicy replaces the submission policy.
func (s *Store) SavePolicy(ctx context.Context, p ot.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_policy (id, cutoff_window_days, grace_period_enabled, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cutoff_window_days = excluded.cutoff_window_days,
			grace_period_enabled = excluded.grace_period_enabled,
			updated_at = excluded.updated_at
	`, p.CutoffWindowDays, p.GracePeriodEnabled, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// SeedPolicy stores p only when no policy was saved yet. It reports whether
// it wrote.
func (s *Store) SeedPolicy(ctx context.Context, p ot.Policy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO submission_policy (id, cutoff_window_days, grace_period_enabled, updated_at)
		VALUES (1, ?, ?, ?)
	`, p.CutoffWindowDays, p.GracePeriodEnabled, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to seed policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// =============================================================================
// AUDIT LOG (ot.AuditLog interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, e ot.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, request_id, actor_id, role, from_status, to_status, remarks, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.RequestID, e.ActorID, string(e.Role), nullString(string(e.From)), string(e.To),
		nullString(e.Remarks), formatTime(e.At))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the entries for one request, oldest first.
func (s *Store) AuditTrail(ctx context.Context, requestID string) ([]ot.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, actor_id, role, from_status, to_status, remarks, at
		FROM audit_log
		WHERE request_id = ?
		ORDER BY at ASC, rowid ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ot.AuditEntry
	for rows.Next() {
		var (
			e             ot.AuditEntry
			role, to, at  string
			from, remarks sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ActorID, &role, &from, &to, &remarks, &at); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Role = ot.Role(role)
		e.From = ot.Status(from.String)
		e.To = ot.Status(to)
		e.Remarks = remarks.String
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// NOTIFICATION OUTBOX (ot.Notifier interface)
// =============================================================================

// OutboxEntry is a queued notification.
type OutboxEntry struct {
	ID        string
	RequestID string
	Type      ot.NotificationType
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Notify queues a notification. Delivery is the dispatcher's job.
func (s *Store) Notify(ctx context.Context, n ot.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, request_id, type, created_at) VALUES (?, ?, ?, ?)
	`, uuid.NewString(), n.RequestID, string(n.Type), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// PendingNotifications returns undispatched entries, oldest first, skipping
// those that already failed maxAttempts times.
func (s *Store) PendingNotifications(ctx context.Context, limit, maxAttempts int) ([]OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, type, attempts, last_error, created_at
		FROM notifications
		WHERE dispatched_at IS NULL AND attempts < ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var (
			e         OutboxEntry
			typ, at   string
			lastError sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &typ, &e.Attempts, &lastError, &at); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Type = ot.NotificationType(typ)
		e.LastError = lastError.String
		e.CreatedAt = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkDispatched records a successful delivery.
func (s *Store) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET dispatched_at = ?, attempts = attempts + 1 WHERE id = ?
	`, formatTime(at), id)
	return err
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET attempts = attempts + 1, last_error = ? WHERE id = ?
	`, cause.Error(), id)
	return err
}

// =============================================================================
// CALENDAR (calendar.Source interface)
// =============================================================================

// SaveCalendarEvent inserts or replaces one raw row.
func (s *Store) SaveCalendarEvent(ctx context.Context, ev calendar.EventItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	var stateCode, holidayType string
	if ev.StateCode != nil {
		stateCode = *ev.StateCode
	}
	if ev.HolidayType != nil {
		holidayType = *ev.HolidayType
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calendar_events
		(id, date, description, origin, state_code, holiday_type, is_replacement, is_hr_modified, employee_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Date.Format(dateLayout), ev.Description, string(ev.Origin),
		nullString(stateCode), nullString(holidayType), ev.IsReplacement, ev.IsHRModified,
		nullString(ev.EmployeeID), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save calendar event: %w", err)
	}
	return nil
}

// CalendarEvents returns raw rows dated within [from, to].
func (s *Store) CalendarEvents(ctx context.Context, from, to time.Time) ([]calendar.EventItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, description, origin, state_code, holiday_type, is_replacement, is_hr_modified, employee_id
		FROM calendar_events
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, description ASC, id ASC
	`, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar events: %w", err)
	}
	defer rows.Close()

	var out []calendar.EventItem
	for rows.Next() {
		var (
			ev                                 calendar.EventItem
			date, origin                       string
			stateCode, holidayType, employeeID sql.NullString
		)
		err := rows.Scan(&ev.ID, &date, &ev.Description, &origin, &stateCode, &holidayType,
			&ev.IsReplacement, &ev.IsHRModified, &employeeID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}
		ev.Date, _ = time.Parse(dateLayout, date)
		ev.Origin = calendar.Origin(origin)
		ev.EmployeeID = employeeID.String
		if stateCode.Valid {
			v := stateCode.String
			ev.StateCode = &v
		}
		if holidayType.Valid {
			v := holidayType.String
			ev.HolidayType = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"notifications", "audit_log", "ot_requests", "submission_policy", "calendar_events"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// decodeJSON leaves v untouched for NULL, empty or "null".
func decodeJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
