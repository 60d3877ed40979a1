// Package memory provides an in-memory persistence collaborator for the OT engine.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/overtime-engine/ot"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ot.Store, ot.AuditLog and ot.Notifier.
type Memory struct {
	mu            sync.RWMutex
	requests      map[string]*ot.Request
	policy        ot.Policy
	audit         []ot.AuditEntry
	notifications []ot.Notification
}

func New() *Memory {
	return &Memory{
		requests: make(map[string]*ot.Request),
		policy:   ot.DefaultPolicy(),
	}
}

func (m *Memory) LoadRequest(_ context.Context, id string) (*ot.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ot.ErrRequestNotFound, id)
	}
	return req.Clone(), nil
}

// SaveRequest creates when expectedPrior is empty, otherwise compares the
// stored status with expectedPrior before overwriting. A parent gets one child.
func (m *Memory) SaveRequest(_ context.Context, req *ot.Request, expectedPrior ot.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.requests[req.ID]
	if expectedPrior == "" {
		if exists {
			return fmt.Errorf("%w: %s", ot.ErrDuplicateRequest, req.ID)
		}
		if req.ParentRequestID != "" {
			for _, other := range m.requests {
				if other.ParentRequestID == req.ParentRequestID {
					return fmt.Errorf("%w: %s", ot.ErrAlreadyResubmitted, req.ParentRequestID)
				}
			}
		}
		m.requests[req.ID] = req.Clone()
		return nil
	}

	if !exists {
		return fmt.Errorf("%w: %s", ot.ErrRequestNotFound, req.ID)
	}
	if current.Status != expectedPrior {
		return fmt.Errorf("%w: %s is %s, expected %s",
			ot.ErrConcurrentModification, req.ID, current.Status, expectedPrior)
	}
	m.requests[req.ID] = req.Clone()
	return nil
}

func (m *Memory) LoadRequestsByIDs(_ context.Context, ids []string) ([]ot.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ot.Request
	for _, id := range ids {
		if req, ok := m.requests[id]; ok {
			out = append(out, *req.Clone())
		}
	}
	return out, nil
}

// ApproveBatch applies the whole batch under one lock, matching only requests
// still in hr_certified.
func (m *Memory) ApproveBatch(_ context.Context, ids []string, stamp ot.Review) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := 0
	for _, id := range ids {
		req, ok := m.requests[id]
		if !ok || req.Status != ot.StatusHRCertified {
			continue
		}
		req.Status = ot.StatusManagementApproved
		req.ManagementReview = ot.Review{ActorID: stamp.ActorID, Remarks: stamp.Remarks}
		if stamp.At != nil {
			at := *stamp.At
			req.ManagementReview.At = &at
			req.UpdatedAt = at
		}
		updated++
	}
	return updated, nil
}

// ListRequests returns every request sorted by creation time.
func (m *Memory) ListRequests(_ context.Context) []ot.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ot.Request, 0, len(m.requests))
	for _, req := range m.requests {
		out = append(out, *req.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// =============================================================================
// POLICY
// =============================================================================

func (m *Memory) LoadPolicy(_ context.Context) (ot.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy, nil
}

func (m *Memory) SavePolicy(_ context.Context, p ot.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
	return nil
}

// =============================================================================
// AUDIT + NOTIFICATIONS
// =============================================================================

func (m *Memory) Append(_ context.Context, entry ot.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// AuditTrail returns the entries for one request in append order.
func (m *Memory) AuditTrail(_ context.Context, requestID string) ([]ot.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ot.AuditEntry
	for _, e := range m.audit {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Notify(_ context.Context, n ot.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// Notifications returns a copy of everything sent so far.
func (m *Memory) Notifications() []ot.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ot.Notification(nil), m.notifications...)
}
