package model

import "time"

// Agent status values.
const (
	AgentStatusActive       = "active"
	AgentStatusRetired      = "retired"
	AgentStatusDeregistered = "deregistered"
)

// Agent access modes.
const (
	AccessModeOpen         = "open"
	AccessModeContactsOnly = "contacts_only"
)

// Mail priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type Project struct {
	ProjectID string     `json:"project_id"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type Agent struct {
	AgentID    string     `json:"agent_id"`
	ProjectID  string     `json:"project_id"`
	Alias      string     `json:"alias"`
	HumanName  string     `json:"human_name,omitempty"`
	AgentType  string     `json:"agent_type"`
	AccessMode string     `json:"access_mode"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

type APIKey struct {
	APIKeyID   string     `json:"api_key_id"`
	ProjectID  string     `json:"project_id"`
	AgentID    *string    `json:"agent_id,omitempty"`
	KeyHash    string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

type Contact struct {
	ContactID      string    `json:"contact_id"`
	ProjectID      string    `json:"project_id"`
	ContactAddress string    `json:"contact_address"`
	Label          *string   `json:"label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MailMessage is a durable point-to-point message with at-most-once ack.
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

// Signature holds sender-provided signing fields. They are relayed verbatim;
// the core neither synthesizes nor validates them.
type Signature struct {
	FromDID      *string `json:"from_did,omitempty"`
	ToDID        *string `json:"to_did,omitempty"`
	Signature    *string `json:"signature,omitempty"`
	SigningKeyID *string `json:"signing_key_id,omitempty"`
}

type ChatSession struct {
	SessionID       string    `json:"session_id"`
	ProjectID       string    `json:"project_id"`
	ParticipantHash string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

type ChatParticipant struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Alias     string    `json:"alias"`
	JoinedAt  time.Time `json:"joined_at"`
}

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

type ReadReceipt struct {
	SessionID         string     `json:"session_id"`
	AgentID           string     `json:"agent_id"`
	LastReadMessageID *string    `json:"last_read_message_id,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
}

// Reservation is a per-project named lease. A row is held iff
// expires_at > now; expired rows may be overwritten by any acquirer.
type Reservation struct {
	ProjectID     string         `json:"project_id"`
	ResourceKey   string         `json:"resource_key"`
	HolderAgentID string         `json:"holder_agent_id"`
	HolderAlias   string         `json:"holder_alias"`
	AcquiredAt    time.Time      `json:"acquired_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Metadata      map[string]any `json:"metadata"`
}

// Held reports whether the reservation is unexpired at the given instant.
func (r *Reservation) Held(now time.Time) bool { return r.ExpiresAt.After(now) }
