// Package queue issues risk-prioritised tokens and maintains each facility
// department's service queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

var (
	ErrTokenNotFound     = errors.New("token not found")
	ErrInvalidTransition = errors.New("invalid token status transition")
)

// DefaultMinutesPerPatient is the per-position wait estimate.
const DefaultMinutesPerPatient = 15

// Config tunes the queue manager.
type Config struct {
	MinutesPerPatient int
	// Location defines calendar days for token numbering and the arrival
	// bonus. Defaults to UTC.
	Location *time.Location
}

type laneKey struct {
	facilityID string
	department string
}

// lane is one (facility, department) queue. All token fields that change
// after issue are guarded by mu.
type lane struct {
	mu       sync.Mutex
	waiting  []*Token // kept sorted by (priority desc, created_at asc)
	counters map[string]int
}

// Manager owns every token. Mutations of one (facility, department) queue are
// serialised by that queue's lock; different queues proceed in parallel.
// Tokens are never deleted.
type Manager struct {
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	notifier Notifier

	mu     sync.Mutex // guards lanes and tokens maps, never held with a lane lock
	lanes  map[laneKey]*lane
	tokens map[uuid.UUID]*Token
}

// NewManager creates an empty token manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	if cfg.MinutesPerPatient <= 0 {
		cfg.MinutesPerPatient = DefaultMinutesPerPatient
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Manager{
		cfg:    cfg,
		log:    log.With().Str("component", "queue").Logger(),
		now:    time.Now,
		lanes:  make(map[laneKey]*lane),
		tokens: make(map[uuid.UUID]*Token),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetNotifier registers the receiver of queue events. Call before the
// manager is shared.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// Priority combines the risk weight with an arrival bonus. The bonus is at
// most 14, so a higher tier always outranks a lower one.
func Priority(risk clinical.RiskTier, arrival time.Time) int {
	minutes := arrival.Hour()*60 + arrival.Minute()
	return risk.Weight()*1000 + (1440-minutes)/100
}

func (m *Manager) lane(facilityID, department string) *lane {
	key := laneKey{facilityID: facilityID, department: department}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lanes[key]
	if !ok {
		l = &lane{counters: make(map[string]int)}
		m.lanes[key] = l
	}
	return l
}

// findLane returns the queue for a key, or nil when nothing was ever issued there.
func (m *Manager) findLane(facilityID, department string) *lane {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lanes[laneKey{facilityID: facilityID, department: department}]
}

func (m *Manager) lookup(id uuid.UUID) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	return t, nil
}

// Issue creates a waiting token and re-ranks its queue.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*Token, error) {
	if err := validateIssue(req); err != nil {
		return nil, err
	}

	now := m.now().In(m.cfg.Location)
	l := m.lane(req.FacilityID, req.Department)

	l.mu.Lock()
	day := now.Format("2006-01-02")
	l.counters[day]++
	t := &Token{
		ID:          uuid.New(),
		TokenNumber: l.counters[day],
		PatientID:   req.PatientID,
		SessionID:   req.SessionID,
		Risk:        req.Risk,
		Department:  req.Department,
		FacilityID:  req.FacilityID,
		StaffID:     req.StaffID,
		Priority:    Priority(req.Risk, now),
		Status:      StatusWaiting,
		CreatedAt:   now,
	}
	l.waiting = append(l.waiting, t)
	m.rerank(l)
	out := *t
	waiting := l.waitingSnapshot()
	l.mu.Unlock()

	m.mu.Lock()
	m.tokens[t.ID] = t
	m.mu.Unlock()

	m.log.Info().
		Str("token_id", t.ID.String()).
		Int("token_number", out.TokenNumber).
		Str("hospital_id", out.FacilityID).
		Str("department", out.Department).
		Str("risk_level", string(out.Risk)).
		Int("priority", out.Priority).
		Int("queue_position", out.QueuePosition).
		Msg("token issued")
	m.notify(ctx, EventIssued, out, waiting)
	return &out, nil
}

func validateIssue(req IssueRequest) error {
	if strings.TrimSpace(req.PatientID) == "" {
		return fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(req.FacilityID) == "" {
		return fmt.Errorf("hospital_id is required")
	}
	if strings.TrimSpace(req.Department) == "" {
		return fmt.Errorf("department is required")
	}
	if !req.Risk.Valid() {
		return fmt.Errorf("invalid risk_level %q", req.Risk)
	}
	return nil
}

// rerank re-sorts the waiting set and reassigns positions 1..N. Caller holds l.mu.
func (m *Manager) rerank(l *lane) {
	sort.SliceStable(l.waiting, func(i, j int) bool {
		a, b := l.waiting[i], l.waiting[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	for i, t := range l.waiting {
		t.QueuePosition = i + 1
		t.EstimatedWaitMinutes = (i + 1) * m.cfg.MinutesPerPatient
	}
}

// DequeueNext calls the first waiting token of a queue for staffID. It
// returns nil when nobody is waiting.
func (m *Manager) DequeueNext(ctx context.Context, facilityID, department, staffID string) (*Token, error) {
	l := m.findLane(facilityID, department)
	if l == nil {
		return nil, nil
	}

	l.mu.Lock()
	if len(l.waiting) == 0 {
		l.mu.Unlock()
		return nil, nil
	}
	t := l.waiting[0]
	l.waiting = l.waiting[1:]

	now := m.now().In(m.cfg.Location)
	t.Status = StatusInProgress
	t.CalledAt = &now
	if staffID != "" {
		staff := staffID
		t.StaffID = &staff
	}
	t.QueuePosition = 0
	t.EstimatedWaitMinutes = 0
	m.rerank(l)
	out := *t
	waiting := l.waitingSnapshot()
	l.mu.Unlock()

	m.log.Info().
		Str("token_id", out.ID.String()).
		Str("hospital_id", facilityID).
		Str("department", department).
		Str("doctor_id", staffID).
		Msg("token called")
	m.notify(ctx, EventCalled, out, waiting)
	return &out, nil
}

// Complete finishes an in-progress token.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID) (*Token, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	l := m.lane(t.FacilityID, t.Department)

	l.mu.Lock()
	if t.Status != StatusInProgress {
		status := t.Status
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusCompleted)
	}
	now := m.now().In(m.cfg.Location)
	t.Status = StatusCompleted
	t.CompletedAt = &now
	out := *t
	waiting := l.waitingSnapshot()
	l.mu.Unlock()

	m.notify(ctx, EventCompleted, out, waiting)
	return &out, nil
}

// Cancel withdraws a waiting token and re-ranks the rest of its queue.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*Token, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	l := m.lane(t.FacilityID, t.Department)

	l.mu.Lock()
	if t.Status != StatusWaiting {
		status := t.Status
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusCancelled)
	}
	for i, w := range l.waiting {
		if w == t {
			l.waiting = append(l.waiting[:i], l.waiting[i+1:]...)
			break
		}
	}
	t.Status = StatusCancelled
	t.QueuePosition = 0
	t.EstimatedWaitMinutes = 0
	m.rerank(l)
	out := *t
	waiting := l.waitingSnapshot()
	l.mu.Unlock()

	m.notify(ctx, EventCancelled, out, waiting)
	return &out, nil
}

// Get returns a snapshot of one token.
func (m *Manager) Get(_ context.Context, id uuid.UUID) (*Token, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	out := m.snapshot(t)
	return &out, nil
}

func (m *Manager) snapshot(t *Token) Token {
	l := m.lane(t.FacilityID, t.Department)
	l.mu.Lock()
	defer l.mu.Unlock()
	return *t
}

// Queue returns the waiting tokens of a queue in position order.
func (m *Manager) Queue(_ context.Context, facilityID, department string) []Token {
	l := m.findLane(facilityID, department)
	if l == nil {
		return []Token{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitingSnapshot()
}

// PatientActiveToken returns the most recently issued waiting or in-progress
// token of a patient.
func (m *Manager) PatientActiveToken(_ context.Context, patientID string) (*Token, error) {
	m.mu.Lock()
	var mine []*Token
	for _, t := range m.tokens {
		if t.PatientID == patientID {
			mine = append(mine, t)
		}
	}
	m.mu.Unlock()

	var best *Token
	for _, t := range mine {
		s := m.snapshot(t)
		if s.Status != StatusWaiting && s.Status != StatusInProgress {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = &s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no active token for patient %s", ErrTokenNotFound, patientID)
	}
	return best, nil
}

// Stats summarises a queue. An unknown or empty queue yields zero counts.
func (m *Manager) Stats(_ context.Context, facilityID, department string) Stats {
	st := Stats{FacilityID: facilityID, Department: department}

	l := m.findLane(facilityID, department)
	if l == nil {
		return st
	}
	l.mu.Lock()
	for _, t := range l.waiting {
		st.TotalWaiting++
		switch t.Risk {
		case clinical.RiskHigh:
			st.HighRisk++
		case clinical.RiskMedium:
			st.MediumRisk++
		default:
			st.LowRisk++
		}
	}
	l.mu.Unlock()

	m.mu.Lock()
	var inLane []*Token
	for _, t := range m.tokens {
		if t.FacilityID == facilityID && t.Department == department {
			inLane = append(inLane, t)
		}
	}
	m.mu.Unlock()
	l.mu.Lock()
	for _, t := range inLane {
		if t.Status == StatusInProgress {
			st.InProgress++
		}
	}
	l.mu.Unlock()

	st.EstimatedWaitMinutes = st.TotalWaiting * m.cfg.MinutesPerPatient
	return st
}
