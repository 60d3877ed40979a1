/*
dispatcher.go - Notification outbox dispatcher

PURPOSE:
  Periodically drains the notification outbox written by the lifecycle
  service and hands each entry to a Sender. A transition never waits on
  delivery; the outbox row is written in the same request and delivered here.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Reads at most BatchSize undelivered rows per tick, oldest first
  - A failed send is counted; after MaxAttempts the row is left alone
  - Recipients are resolved from the request when the row is delivered

CONFIGURATION:
  - Interval:    How often to drain (default: 30s, 0 disables)
  - BatchSize:   Rows per tick (default: 50)
  - MaxAttempts: Attempts before a row is parked (default: 5)

USAGE:
  d := NewDispatcher(store, LogSender{Log: log})
  d.Start()
  // ... later
  d.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: PendingNotifications, MarkDispatched, MarkFailed
  - ot/service.go: after() queues the notification
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/overtime-engine/ot"
	"github.com/warp/overtime-engine/store/sqlite"
)

// Outbox is the queue side of the sqlite store.
type Outbox interface {
	PendingNotifications(ctx context.Context, limit, maxAttempts int) ([]sqlite.OutboxEntry, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// RequestLoader resolves the request an outbox row points at.
type RequestLoader interface {
	LoadRequest(ctx context.Context, id string) (*ot.Request, error)
}

// Message is one delivery.
type Message struct {
	RequestID  string
	Ticket     string
	Type       ot.NotificationType
	Recipients []string
	Subject    string
}

// Sender delivers a message. Mail, chat or push live behind it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes every message to the log. It is the default transport.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info().
		Str("request_id", msg.RequestID).
		Str("ticket", msg.Ticket).
		Str("notification", string(msg.Type)).
		Strs("recipients", msg.Recipients).
		Msg(msg.Subject)
	return nil
}

// DispatchStats counts the outcome of one drain.
type DispatchStats struct {
	Sent   int
	Failed int
}

// Dispatcher drains the outbox on a ticker.
type Dispatcher struct {
	Outbox      Outbox
	Requests    RequestLoader
	Sender      Sender
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Log         zerolog.Logger
	Now         func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDispatcher creates a dispatcher reading from and resolving against store.
func NewDispatcher(store *sqlite.Store, sender Sender) *Dispatcher {
	return &Dispatcher{
		Outbox:      store,
		Requests:    store,
		Sender:      sender,
		Interval:    30 * time.Second,
		BatchSize:   50,
		MaxAttempts: 5,
		Log:         zerolog.Nop(),
		Now:         time.Now,
	}
}

// Start begins draining in the background.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Interval <= 0 {
		d.Log.Info().Msg("notification dispatcher disabled")
		return
	}
	if d.ticker != nil {
		return
	}

	d.ticker = time.NewTicker(d.Interval)
	d.stop = make(chan struct{})
	d.wg.Add(1)

	go d.run()

	d.Log.Info().Dur("interval", d.Interval).Msg("notification dispatcher started")
}

// Stop stops the dispatcher and waits for an in-flight drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	close(d.stop)
	d.wg.Wait()
	d.ticker = nil
	d.Log.Info().Msg("notification dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	d.drain()

	for {
		select {
		case <-d.ticker.C:
			d.drain()
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) drain() {
	stats, err := d.RunNow(context.Background())
	if err != nil {
		d.Log.Error().Err(err).Msg("outbox drain failed")
		return
	}
	if stats.Sent > 0 || stats.Failed > 0 {
		d.Log.Info().Int("sent", stats.Sent).Int("failed", stats.Failed).Msg("outbox drained")
	}
}

// RunNow drains one batch immediately.
func (d *Dispatcher) RunNow(ctx context.Context) (DispatchStats, error) {
	var stats DispatchStats

	entries, err := d.Outbox.PendingNotifications(ctx, d.BatchSize, d.MaxAttempts)
	if err != nil {
		return stats, err
	}

	for _, e := range entries {
		log := d.Log.With().Str("outbox_id", e.ID).Str("request_id", e.RequestID).Logger()

		if err := d.deliver(ctx, e); err != nil {
			stats.Failed++
			log.Warn().Err(err).Int("attempt", e.Attempts+1).Msg("notification delivery failed")
			if err := d.Outbox.MarkFailed(ctx, e.ID, err); err != nil {
				log.Error().Err(err).Msg("failed to record delivery failure")
			}
			continue
		}

		stats.Sent++
		if err := d.Outbox.MarkDispatched(ctx, e.ID, d.Now()); err != nil {
			log.Error().Err(err).Msg("failed to mark notification dispatched")
		}
	}
	return stats, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e sqlite.OutboxEntry) error {
	req, err := d.Requests.LoadRequest(ctx, e.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load request: %w", err)
	}
	return d.Sender.Send(ctx, Message{
		RequestID:  req.ID,
		Ticket:     req.TicketNumber,
		Type:       e.Type,
		Recipients: Recipients(e.Type, req),
		Subject:    fmt.Sprintf("%s %s", req.TicketNumber, subjects[e.Type]),
	})
}

var subjects = map[ot.NotificationType]string{
	ot.NotifySubmitted:           "submitted for review",
	ot.NotifyResubmitted:         "resubmitted for review",
	ot.NotifyAmended:             "amended by the employee",
	ot.NotifyRespectiveConfirmed: "confirmed by respective supervisor",
	ot.NotifySupervisorConfirmed: "confirmed by supervisor",
	ot.NotifySupervisorVerified:  "verified by supervisor",
	ot.NotifyHRCertified:         "certified by HR",
	ot.NotifyManagementApproved:  "approved",
	ot.NotifyRejected:            "rejected",
	ot.NotifyReturned:            "returned by HR",
	ot.NotifyReverted:            "reverted by management",
}

// Recipients decides who hears about a notification. Group inboxes are
// addressed as "role:<role>".
func Recipients(t ot.NotificationType, req *ot.Request) []string {
	firstReviewer := req.SupervisorID
	if req.Route == ot.RouteB {
		firstReviewer = req.RespectiveSupervisorID
	}

	switch t {
	case ot.NotifySubmitted, ot.NotifyResubmitted, ot.NotifyAmended:
		return []string{firstReviewer}
	case ot.NotifyRespectiveConfirmed:
		return []string{req.SupervisorID}
	case ot.NotifySupervisorConfirmed, ot.NotifySupervisorVerified, ot.NotifyReverted:
		return []string{"role:" + string(ot.RoleHR)}
	case ot.NotifyHRCertified:
		return []string{"role:" + string(ot.RoleManagement)}
	case ot.NotifyReturned:
		return []string{req.EmployeeID, firstReviewer}
	default:
		return []string{req.EmployeeID}
	}
}
