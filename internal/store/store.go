// Package store defines persistence operations required by services.
// Implementations live under internal/store/<driver>/.
package store

import (
	"context"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
)

type Store interface {
	Projects() Projects
	Agents() Agents
	APIKeys() APIKeys
	Contacts() Contacts
	Mail() Mail
	Chat() Chat
	Reservations() Reservations

	// Ping verifies connectivity to the durable store.
	Ping(ctx context.Context) error
}

type Projects interface {
	// EnsureBySlug finds a non-deleted project by slug or creates it.
	// The bool reports whether a row was created.
	EnsureBySlug(ctx context.Context, slug, name string) (*model.Project, bool, error)
	GetByID(ctx context.Context, projectID string) (*model.Project, error)
}

type Agents interface {
	// Create inserts a new agent; returns model.ErrConflict when the alias
	// is taken by a non-deleted agent of the project.
	Create(ctx context.Context, a *model.Agent) (*model.Agent, error)
	GetByID(ctx context.Context, projectID, agentID string) (*model.Agent, error)
	GetByAlias(ctx context.Context, projectID, alias string) (*model.Agent, error)
	// List returns non-deleted agents of the project ordered by alias.
	List(ctx context.Context, projectID string) ([]*model.Agent, error)
}

type APIKeys interface {
	Create(ctx context.Context, k *model.APIKey) (*model.APIKey, error)
	// GetActiveByHash looks up an is_active key by its full-key digest.
	// Lookup is by hash only; no prefix index is consulted.
	GetActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	// TouchLastUsed updates last_used_at opportunistically; failures are
	// the caller's to ignore.
	TouchLastUsed(ctx context.Context, keyHash string, at time.Time) error
}

type Contacts interface {
	// Add returns model.ErrConflict when the address already exists.
	Add(ctx context.Context, c *model.Contact) (*model.Contact, error)
	List(ctx context.Context, projectID string) ([]*model.Contact, error)
	// Remove is idempotent: deleting an absent contact is not an error.
	Remove(ctx context.Context, projectID, contactID string) error
	Exists(ctx context.Context, projectID, address string) (bool, error)
}

type Mail interface {
	Create(ctx context.Context, m *model.MailMessage) (*model.MailMessage, error)
	// Inbox returns the recipient's messages newest first.
	Inbox(ctx context.Context, projectID, agentID string, unreadOnly bool, limit int) ([]*model.MailMessage, error)
	Get(ctx context.Context, projectID, messageID string) (*model.MailMessage, error)
	// Ack sets read_at iff currently NULL and returns the effective
	// read_at. A second ack returns the original timestamp unchanged.
	Ack(ctx context.Context, projectID, messageID string, at time.Time) (time.Time, error)
	UnreadCount(ctx context.Context, projectID, agentID string) (int, error)
}

// SessionSummary is a session row joined with its participants.
type SessionSummary struct {
	SessionID    string
	CreatedAt    time.Time
	Participants []model.ChatParticipant
}

// PendingRow describes one session with unread messages for an agent.
type PendingRow struct {
	SessionID       string
	Participants    []string
	ParticipantIDs  []string
	LastMessage     string
	LastFromAlias   string
	LastFromAgentID string
	UnreadCount     int
	LastActivity    time.Time
}

type Chat interface {
	// EnsureSession atomically inserts or returns the session for
	// (project_id, participant_hash) and upserts the participant rows.
	EnsureSession(ctx context.Context, projectID, participantHash string, participants []model.ChatParticipant) (*model.ChatSession, error)
	GetSession(ctx context.Context, projectID, sessionID string) (*model.ChatSession, error)
	Participants(ctx context.Context, sessionID string) ([]model.ChatParticipant, error)
	GetParticipant(ctx context.Context, sessionID, agentID string) (*model.ChatParticipant, error)

	// AppendMessage persists the message and advances the sender's read
	// receipt to it (sending implies having read up to this point).
	AppendMessage(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error)
	GetMessage(ctx context.Context, sessionID, messageID string) (*model.ChatMessage, error)
	// History returns session messages in created_at ASC order bounded by
	// limit (the newest `limit` messages). With unreadOnly, only messages
	// from other agents after lastReadAt are returned.
	History(ctx context.Context, sessionID string, unreadOnly bool, lastReadAt *time.Time, selfAgentID string, limit int) ([]*model.ChatMessage, error)
	// MessagesAfter returns messages created strictly after the given
	// instant, ascending.
	MessagesAfter(ctx context.Context, sessionID string, after time.Time, limit int) ([]*model.ChatMessage, error)
	// LeaverIDs returns the subset of agentIDs whose most recent message
	// in the session carried sender_leaving.
	LeaverIDs(ctx context.Context, sessionID string, agentIDs []string) ([]string, error)

	Receipt(ctx context.Context, sessionID, agentID string) (*model.ReadReceipt, error)
	// AdvanceReceipt moves the agent's receipt up to the given message.
	// Returns the number of other-agent messages newly covered, or 0 with
	// advanced=false when the target is not newer than the stored cursor.
	// Returns model.ErrNotFound when the message is not in the session.
	AdvanceReceipt(ctx context.Context, sessionID, agentID, upToMessageID string, readAt time.Time) (marked int, advanced bool, err error)

	// SessionsForAgent returns sessions the agent participates in,
	// newest first, with participants sorted by alias.
	SessionsForAgent(ctx context.Context, projectID, agentID string) ([]*SessionSummary, error)
	// PendingForAgent returns sessions with unread messages for the
	// agent, most recent activity first.
	PendingForAgent(ctx context.Context, projectID, agentID string) ([]*PendingRow, error)
}

type Reservations interface {
	// Acquire atomically inserts the lease, overwriting an expired row.
	// When an unexpired row is held by anyone (the caller included), it
	// returns *model.ReservationConflictError.
	Acquire(ctx context.Context, r *model.Reservation, now time.Time) (*model.Reservation, error)
	// Renew extends an unexpired lease held by holderAgentID. Returns
	// model.ErrNotFound when no unexpired row exists, model.ErrForbidden
	// when another agent holds it.
	Renew(ctx context.Context, projectID, resourceKey, holderAgentID string, now, expiresAt time.Time) error
	// Release deletes an unexpired lease held by holderAgentID. Expired
	// or absent rows release idempotently (deleted=false). Another
	// agent's unexpired lease returns model.ErrForbidden.
	Release(ctx context.Context, projectID, resourceKey, holderAgentID string, now time.Time) (deleted bool, err error)
	// RevokeOwn bulk-deletes the holder's leases, optionally narrowed by
	// prefix. With a prefix matching only other agents' leases it returns
	// model.ErrForbidden.
	RevokeOwn(ctx context.Context, projectID, holderAgentID, prefix string) (int, error)
	// List returns unexpired leases, optionally filtered by key prefix,
	// ordered by resource_key.
	List(ctx context.Context, projectID, prefix string, now time.Time) ([]*model.Reservation, error)
}
