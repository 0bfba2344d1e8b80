package postgres

import (
	"context"
	"database/sql"
)

// Schema is applied on startup. Every statement is idempotent so repeated
// boots against the same database are harmless.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    project_id  TEXT PRIMARY KEY,
    slug        TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS projects_slug_live
    ON projects (slug) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS agents (
    agent_id    TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(project_id),
    alias       TEXT NOT NULL,
    human_name  TEXT NOT NULL DEFAULT '',
    agent_type  TEXT NOT NULL DEFAULT '',
    access_mode TEXT NOT NULL DEFAULT 'open',
    status      TEXT NOT NULL DEFAULT 'active',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS agents_project_alias_live
    ON agents (project_id, alias) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS api_keys (
    api_key_id   TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL REFERENCES projects(project_id),
    agent_id     TEXT REFERENCES agents(agent_id),
    key_hash     TEXT NOT NULL UNIQUE,
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_used_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS contacts (
    contact_id      TEXT PRIMARY KEY,
    project_id      TEXT NOT NULL REFERENCES projects(project_id),
    contact_address TEXT NOT NULL,
    label           TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (project_id, contact_address)
);

CREATE TABLE IF NOT EXISTS mail_messages (
    message_id     TEXT PRIMARY KEY,
    project_id     TEXT NOT NULL REFERENCES projects(project_id),
    from_agent_id  TEXT NOT NULL,
    to_agent_id    TEXT NOT NULL,
    from_alias     TEXT NOT NULL,
    subject        TEXT NOT NULL DEFAULT '',
    body           TEXT NOT NULL DEFAULT '',
    priority       TEXT NOT NULL DEFAULT 'normal',
    thread_id      TEXT,
    from_did       TEXT,
    to_did         TEXT,
    signature      TEXT,
    signing_key_id TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    read_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS mail_inbox
    ON mail_messages (project_id, to_agent_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_sessions (
    session_id       TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL REFERENCES projects(project_id),
    participant_hash TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (project_id, participant_hash)
);

CREATE TABLE IF NOT EXISTS chat_participants (
    session_id TEXT NOT NULL REFERENCES chat_sessions(session_id),
    agent_id   TEXT NOT NULL,
    alias      TEXT NOT NULL,
    joined_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session_id, agent_id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
    message_id     TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL REFERENCES chat_sessions(session_id),
    from_agent_id  TEXT NOT NULL,
    from_alias     TEXT NOT NULL,
    body           TEXT NOT NULL,
    sender_leaving BOOLEAN NOT NULL DEFAULT FALSE,
    hang_on        BOOLEAN NOT NULL DEFAULT FALSE,
    from_did       TEXT,
    to_did         TEXT,
    signature      TEXT,
    signing_key_id TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_time
    ON chat_messages (session_id, created_at);

CREATE TABLE IF NOT EXISTS chat_read_receipts (
    session_id           TEXT NOT NULL REFERENCES chat_sessions(session_id),
    agent_id             TEXT NOT NULL,
    last_read_message_id TEXT,
    last_read_at         TIMESTAMPTZ,
    PRIMARY KEY (session_id, agent_id)
);

CREATE TABLE IF NOT EXISTS reservations (
    project_id      TEXT NOT NULL REFERENCES projects(project_id),
    resource_key    TEXT NOT NULL,
    holder_agent_id TEXT NOT NULL,
    holder_alias    TEXT NOT NULL,
    acquired_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at      TIMESTAMPTZ NOT NULL,
    metadata        JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (project_id, resource_key)
);
CREATE INDEX IF NOT EXISTS reservations_holder
    ON reservations (project_id, holder_agent_id);
`

// EnsureSchema applies the schema to the given database.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
