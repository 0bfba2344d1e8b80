package client

import "time"

// Signature holds sender-provided signing fields, relayed verbatim.
type Signature struct {
	FromDID      *string `json:"from_did,omitempty"`
	ToDID        *string `json:"to_did,omitempty"`
	Signature    *string `json:"signature,omitempty"`
	SigningKeyID *string `json:"signing_key_id,omitempty"`
}

// InitRequest bootstraps a project and agent identity.
type InitRequest struct {
	ProjectSlug string `json:"project_slug"`
	Alias       string `json:"alias,omitempty"`
	HumanName   string `json:"human_name,omitempty"`
	AgentType   string `json:"agent_type,omitempty"`
	AccessMode  string `json:"access_mode,omitempty"`
}

// InitResult carries the new identity and its plaintext API key. The key is
// never shown again.
type InitResult struct {
	ProjectID   string `json:"project_id"`
	ProjectSlug string `json:"project_slug"`
	AgentID     string `json:"agent_id"`
	Alias       string `json:"alias"`
	APIKey      string `json:"api_key"`
	Created     bool   `json:"created"`
}

// Identity is the resolved principal behind the client's API key.
type Identity struct {
	ProjectID   string `json:"project_id"`
	ProjectSlug string `json:"project_slug"`
	AgentID     string `json:"agent_id,omitempty"`
	Alias       string `json:"alias,omitempty"`
	HumanName   string `json:"human_name,omitempty"`
	AgentType   string `json:"agent_type,omitempty"`
}

// Agent is a registered identity in the project roster.
type Agent struct {
	AgentID    string    `json:"agent_id"`
	ProjectID  string    `json:"project_id"`
	Alias      string    `json:"alias"`
	HumanName  string    `json:"human_name,omitempty"`
	AgentType  string    `json:"agent_type"`
	AccessMode string    `json:"access_mode"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Online     bool      `json:"online"`
}

// Contact is an allow-list entry for contacts_only delivery.
type Contact struct {
	ContactID      string    `json:"contact_id"`
	ProjectID      string    `json:"project_id"`
	ContactAddress string    `json:"contact_address"`
	Label          *string   `json:"label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MailMessage is a durable point-to-point message.
type MailMessage struct {
	MessageID   string     `json:"message_id"`
	ProjectID   string     `json:"project_id"`
	FromAgentID string     `json:"from_agent_id"`
	ToAgentID   string     `json:"to_agent_id"`
	FromAlias   string     `json:"from_alias"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Priority    string     `json:"priority"`
	ThreadID    *string    `json:"thread_id,omitempty"`
	Signature   Signature  `json:"signature_fields,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// ChatMessage is one entry in a session transcript.
type ChatMessage struct {
	MessageID     string    `json:"message_id"`
	SessionID     string    `json:"session_id"`
	FromAgentID   string    `json:"from_agent_id"`
	FromAlias     string    `json:"from_alias"`
	Body          string    `json:"body"`
	SenderLeaving bool      `json:"sender_leaving"`
	HangOn        bool      `json:"hang_on"`
	Signature     Signature `json:"signature_fields,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WaitOutcome is the resolution of a send-and-wait call.
type WaitOutcome struct {
	Status         string `json:"status"`
	Reply          string `json:"reply,omitempty"`
	ReplyFrom      string `json:"reply_from,omitempty"`
	ReplyMessageID string `json:"reply_message_id,omitempty"`
	WaitedSeconds  int    `json:"waited_seconds"`
}

// CreateSessionResult is the response to starting (or re-joining) a session.
type CreateSessionResult struct {
	SessionID        string   `json:"session_id"`
	MessageID        string   `json:"message_id"`
	Participants     []string `json:"participants"`
	TargetsConnected []string `json:"targets_connected"`
	TargetsLeft      []string `json:"targets_left"`
	WaitOutcome
}

// SendMessageResult is the response to posting into a session.
type SendMessageResult struct {
	MessageID          string    `json:"message_id"`
	CreatedAt          time.Time `json:"created_at"`
	ExtendsWaitSeconds int       `json:"extends_wait_seconds"`
	WaitOutcome
}

// MarkReadResult reports how far the receipt advanced.
type MarkReadResult struct {
	Success             bool `json:"success"`
	MessagesMarked      int  `json:"messages_marked"`
	WaitExtendedSeconds int  `json:"wait_extended_seconds"`
}

// PendingSession summarizes a session with unread traffic for this agent.
type PendingSession struct {
	SessionID            string    `json:"session_id"`
	Participants         []string  `json:"participants"`
	LastMessage          string    `json:"last_message"`
	LastFrom             string    `json:"last_from"`
	UnreadCount          int       `json:"unread_count"`
	LastActivity         time.Time `json:"last_activity"`
	SenderWaiting        bool      `json:"sender_waiting"`
	TimeRemainingSeconds *int      `json:"time_remaining_seconds,omitempty"`
}

// PendingReport bundles the unread sessions with the waiting mail count.
type PendingReport struct {
	Sessions        []*PendingSession `json:"sessions"`
	MessagesWaiting int               `json:"messages_waiting"`
}

// SessionInfo is a roster entry from listing the agent's sessions.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reservation is a per-project named lease.
type Reservation struct {
	ProjectID     string         `json:"project_id"`
	ResourceKey   string         `json:"resource_key"`
	HolderAgentID string         `json:"holder_agent_id"`
	HolderAlias   string         `json:"holder_alias"`
	AcquiredAt    time.Time      `json:"acquired_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Metadata      map[string]any `json:"metadata"`
}
