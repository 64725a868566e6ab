package queue

import "context"

// Event types published after a queue changes.
const (
	EventIssued    = "token.issued"
	EventCalled    = "token.called"
	EventCompleted = "token.completed"
	EventCancelled = "token.cancelled"
)

// Event describes one token transition together with the waiting list of
// its queue right after the transition.
type Event struct {
	Type       string  `json:"type"`
	FacilityID string  `json:"hospital_id"`
	Department string  `json:"department"`
	Token      Token   `json:"token"`
	Waiting    []Token `json:"waiting"`
}

// Notifier receives queue events. Notify is called without any queue lock
// held and must not block.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Topic names the event stream of one (facility, department) queue.
func Topic(facilityID, department string) string {
	return "queue:" + facilityID + ":" + department
}

func (l *lane) waitingSnapshot() []Token {
	out := make([]Token, len(l.waiting))
	for i, t := range l.waiting {
		out[i] = *t
	}
	return out
}

func (m *Manager) notify(ctx context.Context, typ string, tok Token, waiting []Token) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, Event{
		Type:       typ,
		FacilityID: tok.FacilityID,
		Department: tok.Department,
		Token:      tok,
		Waiting:    waiting,
	})
}
