package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/aweb-dev/aweb/internal/model"
)

type mail struct{ db *sql.DB }

const mailCols = `message_id, project_id, from_agent_id, to_agent_id, from_alias,
    subject, body, priority, thread_id, from_did, to_did, signature, signing_key_id,
    created_at, read_at`

func scanMail(row interface{ Scan(...any) error }) (*model.MailMessage, error) {
	var out model.MailMessage
	if err := row.Scan(&out.MessageID, &out.ProjectID, &out.FromAgentID, &out.ToAgentID,
		&out.FromAlias, &out.Subject, &out.Body, &out.Priority, &out.ThreadID,
		&out.Signature.FromDID, &out.Signature.ToDID, &out.Signature.Signature,
		&out.Signature.SigningKeyID, &out.CreatedAt, &out.ReadAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *mail) Create(ctx context.Context, msg *model.MailMessage) (*model.MailMessage, error) {
	id := msg.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO mail_messages
            (message_id, project_id, from_agent_id, to_agent_id, from_alias,
             subject, body, priority, thread_id, from_did, to_did, signature, signing_key_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING created_at
    `, id, msg.ProjectID, msg.FromAgentID, msg.ToAgentID, msg.FromAlias,
		msg.Subject, msg.Body, msg.Priority, msg.ThreadID,
		msg.Signature.FromDID, msg.Signature.ToDID, msg.Signature.Signature, msg.Signature.SigningKeyID)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *msg
	out.MessageID = id
	out.CreatedAt = created
	return &out, nil
}

func (m *mail) Inbox(ctx context.Context, projectID, agentID string, unreadOnly bool, limit int) ([]*model.MailMessage, error) {
	q := `SELECT ` + mailCols + ` FROM mail_messages
        WHERE project_id=$1 AND to_agent_id=$2`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC LIMIT $3`
	rows, err := m.db.QueryContext(ctx, q, projectID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.MailMessage
	for rows.Next() {
		msg, err := scanMail(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, rows.Err()
}

func (m *mail) Get(ctx context.Context, projectID, messageID string) (*model.MailMessage, error) {
	row := m.db.QueryRowContext(ctx, `
        SELECT `+mailCols+` FROM mail_messages
        WHERE project_id=$1 AND message_id=$2
    `, projectID, messageID)
	out, err := scanMail(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return out, nil
}

// Ack sets read_at only when unset; COALESCE keeps the first ack's timestamp
// on replays.
func (m *mail) Ack(ctx context.Context, projectID, messageID string, at time.Time) (time.Time, error) {
	var readAt time.Time
	row := m.db.QueryRowContext(ctx, `
        UPDATE mail_messages SET read_at = COALESCE(read_at, $3)
        WHERE project_id=$1 AND message_id=$2
        RETURNING read_at
    `, projectID, messageID, at)
	if err := row.Scan(&readAt); err != nil {
		return time.Time{}, mapNoRows(err)
	}
	return readAt, nil
}

func (m *mail) UnreadCount(ctx context.Context, projectID, agentID string) (int, error) {
	var n int
	row := m.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM mail_messages
        WHERE project_id=$1 AND to_agent_id=$2 AND read_at IS NULL
    `, projectID, agentID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
