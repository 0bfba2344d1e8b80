package services

import (
	"sync"
	"time"
)

// Wait statuses reported to blocked senders.
const (
	WaitStatusSent     = "sent"
	WaitStatusReplied  = "replied"
	WaitStatusLeft     = "sender_left"
	WaitStatusDeadline = "deadline_reached"
	WaitStatusCanceled = "cancelled"
)

// WaitResult is the outcome of a blocked send.
type WaitResult struct {
	Status         string `json:"status"`
	Reply          string `json:"reply,omitempty"`
	ReplyFrom      string `json:"reply_from,omitempty"`
	ReplyMessageID string `json:"reply_message_id,omitempty"`
	WaitedSeconds  int    `json:"waited_seconds"`
}

// Waiter is the registry handle for one blocked send. The handle owns the
// effective deadline; extensions move the deadline and signal the waiting
// goroutine through the extended channel.
type Waiter struct {
	SessionID     string
	AgentID       string
	SentMessageID string
	SentAt        time.Time

	mu       sync.Mutex
	deadline time.Time
	extended chan struct{} // capacity 1, coalesces signals
}

// Deadline returns the current effective deadline.
func (w *Waiter) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deadline
}

// Extended signals after each deadline move.
func (w *Waiter) Extended() <-chan struct{} { return w.extended }

// extend moves the deadline to max(now, deadline) + d.
func (w *Waiter) extend(now time.Time, d time.Duration) {
	w.mu.Lock()
	base := w.deadline
	if now.After(base) {
		base = now
	}
	w.deadline = base.Add(d)
	w.mu.Unlock()
	select {
	case w.extended <- struct{}{}:
	default:
	}
}

// WaiterRegistry holds the process-local blocked senders keyed by
// (session_id, agent_id). An entry exists only for the lifetime of a
// blocked request.
type WaiterRegistry struct {
	mu      sync.Mutex
	waiters map[string]*Waiter
}

func NewWaiterRegistry() *WaiterRegistry {
	return &WaiterRegistry{waiters: make(map[string]*Waiter)}
}

func waiterKey(sessionID, agentID string) string { return sessionID + "\x00" + agentID }

// Register replaces any previous waiter for the same (session, agent).
func (r *WaiterRegistry) Register(sessionID, agentID, sentMessageID string, sentAt, deadline time.Time) *Waiter {
	w := &Waiter{
		SessionID:     sessionID,
		AgentID:       agentID,
		SentMessageID: sentMessageID,
		SentAt:        sentAt,
		deadline:      deadline,
		extended:      make(chan struct{}, 1),
	}
	r.mu.Lock()
	r.waiters[waiterKey(sessionID, agentID)] = w
	r.mu.Unlock()
	return w
}

// Unregister removes the waiter if it is still the registered one.
func (r *WaiterRegistry) Unregister(w *Waiter) {
	k := waiterKey(w.SessionID, w.AgentID)
	r.mu.Lock()
	if r.waiters[k] == w {
		delete(r.waiters, k)
	}
	r.mu.Unlock()
}

// Extend pushes out the deadline of every waiter in the session except the
// acting agent's own. With a non-zero upTo, only waiters whose sent message
// is at or before upTo are extended (read receipts reach exactly the
// messages they cover). Returns the extension applied, 0 when no waiter
// matched.
func (r *WaiterRegistry) Extend(sessionID, excludeAgentID string, upTo time.Time, d time.Duration, now time.Time) int {
	r.mu.Lock()
	var matched []*Waiter
	for _, w := range r.waiters {
		if w.SessionID != sessionID || w.AgentID == excludeAgentID {
			continue
		}
		if !upTo.IsZero() && w.SentAt.After(upTo) {
			continue
		}
		matched = append(matched, w)
	}
	r.mu.Unlock()
	for _, w := range matched {
		w.extend(now, d)
	}
	if len(matched) == 0 {
		return 0
	}
	return int(d / time.Second)
}

// WaitingInfo is the observable state surfaced on Pending.
type WaitingInfo struct {
	AgentID       string
	SentMessageID string
	Deadline      time.Time
}

// Waiting returns a waiter in the session from any agent other than the
// caller, if one is currently blocked.
func (r *WaiterRegistry) Waiting(sessionID, excludeAgentID string) (*WaitingInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.waiters {
		if w.SessionID != sessionID || w.AgentID == excludeAgentID {
			continue
		}
		return &WaitingInfo{
			AgentID:       w.AgentID,
			SentMessageID: w.SentMessageID,
			Deadline:      w.Deadline(),
		}, true
	}
	return nil, false
}
