package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
)

type chat struct{ db *sql.DB }

// EnsureSession inserts the session keyed by participant hash, then re-reads
// it so concurrent creators converge on one row. Participant rows are
// upserted on every call; membership is fixed by the hash so the upsert is a
// no-op after the first.
func (c *chat) EnsureSession(ctx context.Context, projectID, participantHash string, participants []model.ChatParticipant) (*model.ChatSession, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO chat_sessions (session_id, project_id, participant_hash)
        VALUES ($1,$2,$3)
        ON CONFLICT (project_id, participant_hash) DO NOTHING
    `, uuid.New().String(), projectID, participantHash); err != nil {
		return nil, err
	}

	var out model.ChatSession
	row := tx.QueryRowContext(ctx, `
        SELECT session_id, project_id, participant_hash, created_at
        FROM chat_sessions WHERE project_id=$1 AND participant_hash=$2
    `, projectID, participantHash)
	if err := row.Scan(&out.SessionID, &out.ProjectID, &out.ParticipantHash, &out.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO chat_participants (session_id, agent_id, alias)
            VALUES ($1,$2,$3)
            ON CONFLICT (session_id, agent_id) DO NOTHING
        `, out.SessionID, p.AgentID, p.Alias); err != nil {
			return nil, err
		}
	}
	return &out, tx.Commit()
}

func (c *chat) GetSession(ctx context.Context, projectID, sessionID string) (*model.ChatSession, error) {
	var out model.ChatSession
	row := c.db.QueryRowContext(ctx, `
        SELECT session_id, project_id, participant_hash, created_at
        FROM chat_sessions WHERE project_id=$1 AND session_id=$2
    `, projectID, sessionID)
	if err := row.Scan(&out.SessionID, &out.ProjectID, &out.ParticipantHash, &out.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (c *chat) Participants(ctx context.Context, sessionID string) ([]model.ChatParticipant, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT session_id, agent_id, alias, joined_at
        FROM chat_participants WHERE session_id=$1 ORDER BY alias
    `, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.ChatParticipant
	for rows.Next() {
		var p model.ChatParticipant
		if err := rows.Scan(&p.SessionID, &p.AgentID, &p.Alias, &p.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (c *chat) GetParticipant(ctx context.Context, sessionID, agentID string) (*model.ChatParticipant, error) {
	var p model.ChatParticipant
	row := c.db.QueryRowContext(ctx, `
        SELECT session_id, agent_id, alias, joined_at
        FROM chat_participants WHERE session_id=$1 AND agent_id=$2
    `, sessionID, agentID)
	if err := row.Scan(&p.SessionID, &p.AgentID, &p.Alias, &p.JoinedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &p, nil
}

const chatMsgCols = `message_id, session_id, from_agent_id, from_alias, body,
    sender_leaving, hang_on, from_did, to_did, signature, signing_key_id, created_at`

func scanChatMsg(row interface{ Scan(...any) error }) (*model.ChatMessage, error) {
	var out model.ChatMessage
	if err := row.Scan(&out.MessageID, &out.SessionID, &out.FromAgentID, &out.FromAlias,
		&out.Body, &out.SenderLeaving, &out.HangOn, &out.Signature.FromDID,
		&out.Signature.ToDID, &out.Signature.Signature, &out.Signature.SigningKeyID,
		&out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendMessage persists the message and, in the same transaction, advances
// the sender's read receipt to it: sending implies having read everything up
// to the send.
func (c *chat) AppendMessage(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error) {
	id := m.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO chat_messages
            (message_id, session_id, from_agent_id, from_alias, body,
             sender_leaving, hang_on, from_did, to_did, signature, signing_key_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING created_at
    `, id, m.SessionID, m.FromAgentID, m.FromAlias, m.Body,
		m.SenderLeaving, m.HangOn, m.Signature.FromDID, m.Signature.ToDID,
		m.Signature.Signature, m.Signature.SigningKeyID)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO chat_read_receipts (session_id, agent_id, last_read_message_id, last_read_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (session_id, agent_id) DO UPDATE
            SET last_read_message_id=EXCLUDED.last_read_message_id,
                last_read_at=EXCLUDED.last_read_at
    `, m.SessionID, m.FromAgentID, id, created); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := *m
	out.MessageID = id
	out.CreatedAt = created
	return &out, nil
}

func (c *chat) GetMessage(ctx context.Context, sessionID, messageID string) (*model.ChatMessage, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT `+chatMsgCols+` FROM chat_messages
        WHERE session_id=$1 AND message_id=$2
    `, sessionID, messageID)
	out, err := scanChatMsg(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return out, nil
}

func (c *chat) History(ctx context.Context, sessionID string, unreadOnly bool, lastReadAt *time.Time, selfAgentID string, limit int) ([]*model.ChatMessage, error) {
	var rows *sql.Rows
	var err error
	if unreadOnly {
		q := `SELECT ` + chatMsgCols + ` FROM (
                SELECT ` + chatMsgCols + ` FROM chat_messages
                WHERE session_id=$1 AND from_agent_id<>$2`
		args := []any{sessionID, selfAgentID}
		if lastReadAt != nil {
			q += ` AND created_at > $4`
		}
		q += ` ORDER BY created_at DESC LIMIT $3
            ) sub ORDER BY created_at ASC`
		args = append(args, limit)
		if lastReadAt != nil {
			args = append(args, *lastReadAt)
		}
		rows, err = c.db.QueryContext(ctx, q, args...)
	} else {
		rows, err = c.db.QueryContext(ctx, `
            SELECT `+chatMsgCols+` FROM (
                SELECT `+chatMsgCols+` FROM chat_messages
                WHERE session_id=$1
                ORDER BY created_at DESC LIMIT $2
            ) sub ORDER BY created_at ASC
        `, sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.ChatMessage
	for rows.Next() {
		msg, err := scanChatMsg(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, rows.Err()
}

func (c *chat) MessagesAfter(ctx context.Context, sessionID string, after time.Time, limit int) ([]*model.ChatMessage, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT `+chatMsgCols+` FROM chat_messages
        WHERE session_id=$1 AND created_at > $2
        ORDER BY created_at ASC LIMIT $3
    `, sessionID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.ChatMessage
	for rows.Next() {
		msg, err := scanChatMsg(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, rows.Err()
}

func (c *chat) LeaverIDs(ctx context.Context, sessionID string, agentIDs []string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT DISTINCT ON (from_agent_id) from_agent_id, sender_leaving
        FROM chat_messages WHERE session_id=$1
        ORDER BY from_agent_id, created_at DESC, message_id DESC
    `, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	want := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = struct{}{}
	}
	var res []string
	for rows.Next() {
		var agentID string
		var leaving bool
		if err := rows.Scan(&agentID, &leaving); err != nil {
			return nil, err
		}
		if _, ok := want[agentID]; ok && leaving {
			res = append(res, agentID)
		}
	}
	return res, rows.Err()
}

func (c *chat) Receipt(ctx context.Context, sessionID, agentID string) (*model.ReadReceipt, error) {
	out := &model.ReadReceipt{SessionID: sessionID, AgentID: agentID}
	row := c.db.QueryRowContext(ctx, `
        SELECT last_read_message_id, last_read_at
        FROM chat_read_receipts WHERE session_id=$1 AND agent_id=$2
    `, sessionID, agentID)
	if err := row.Scan(&out.LastReadMessageID, &out.LastReadAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}

// AdvanceReceipt moves the cursor forward only. A target at or behind the
// stored cursor leaves the row untouched and reports advanced=false.
func (c *chat) AdvanceReceipt(ctx context.Context, sessionID, agentID, upToMessageID string, readAt time.Time) (int, bool, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var target time.Time
	row := tx.QueryRowContext(ctx, `
        SELECT created_at FROM chat_messages WHERE session_id=$1 AND message_id=$2
    `, sessionID, upToMessageID)
	if err := row.Scan(&target); err != nil {
		return 0, false, mapNoRows(err)
	}

	var lastReadAt *time.Time
	row = tx.QueryRowContext(ctx, `
        SELECT last_read_at FROM chat_read_receipts
        WHERE session_id=$1 AND agent_id=$2 FOR UPDATE
    `, sessionID, agentID)
	if err := row.Scan(&lastReadAt); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	if lastReadAt != nil && !target.After(*lastReadAt) {
		return 0, false, nil
	}

	var marked int
	countQ := `SELECT COUNT(*) FROM chat_messages
        WHERE session_id=$1 AND from_agent_id<>$2 AND created_at<=$3`
	args := []any{sessionID, agentID, target}
	if lastReadAt != nil {
		countQ += ` AND created_at>$4`
		args = append(args, *lastReadAt)
	}
	if err := tx.QueryRowContext(ctx, countQ, args...).Scan(&marked); err != nil {
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO chat_read_receipts (session_id, agent_id, last_read_message_id, last_read_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (session_id, agent_id) DO UPDATE
            SET last_read_message_id=EXCLUDED.last_read_message_id,
                last_read_at=EXCLUDED.last_read_at
    `, sessionID, agentID, upToMessageID, target); err != nil {
		return 0, false, err
	}
	return marked, true, tx.Commit()
}

func (c *chat) SessionsForAgent(ctx context.Context, projectID, agentID string) ([]*store.SessionSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT s.session_id, s.created_at, p.session_id, p.agent_id, p.alias, p.joined_at
        FROM chat_sessions s
        JOIN chat_participants me ON me.session_id=s.session_id AND me.agent_id=$2
        JOIN chat_participants p ON p.session_id=s.session_id
        WHERE s.project_id=$1
        ORDER BY s.created_at DESC, s.session_id, p.alias
    `, projectID, agentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []*store.SessionSummary
	var cur *store.SessionSummary
	for rows.Next() {
		var sid string
		var created time.Time
		var p model.ChatParticipant
		if err := rows.Scan(&sid, &created, &p.SessionID, &p.AgentID, &p.Alias, &p.JoinedAt); err != nil {
			return nil, err
		}
		if cur == nil || cur.SessionID != sid {
			cur = &store.SessionSummary{SessionID: sid, CreatedAt: created}
			res = append(res, cur)
		}
		cur.Participants = append(cur.Participants, p)
	}
	return res, rows.Err()
}

// PendingForAgent finds sessions holding messages from other agents past the
// caller's receipt. The LATERAL computes the unread count once per session
// and doubles as the filter.
func (c *chat) PendingForAgent(ctx context.Context, projectID, agentID string) ([]*store.PendingRow, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT s.session_id, u.unread, lm.body, lm.from_alias, lm.from_agent_id, lm.created_at
        FROM chat_sessions s
        JOIN chat_participants me ON me.session_id=s.session_id AND me.agent_id=$2
        LEFT JOIN chat_read_receipts r ON r.session_id=s.session_id AND r.agent_id=$2
        JOIN LATERAL (
            SELECT COUNT(*) AS unread FROM chat_messages c
            WHERE c.session_id=s.session_id AND c.from_agent_id<>$2
              AND (r.last_read_at IS NULL OR c.created_at>r.last_read_at)
        ) u ON u.unread > 0
        JOIN LATERAL (
            SELECT body, from_alias, from_agent_id, created_at
            FROM chat_messages c WHERE c.session_id=s.session_id
            ORDER BY created_at DESC, message_id DESC LIMIT 1
        ) lm ON TRUE
        WHERE s.project_id=$1
        ORDER BY lm.created_at DESC
    `, projectID, agentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []*store.PendingRow
	for rows.Next() {
		var pr store.PendingRow
		if err := rows.Scan(&pr.SessionID, &pr.UnreadCount, &pr.LastMessage,
			&pr.LastFromAlias, &pr.LastFromAgentID, &pr.LastActivity); err != nil {
			return nil, err
		}
		res = append(res, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, pr := range res {
		parts, err := c.Participants(ctx, pr.SessionID)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			pr.Participants = append(pr.Participants, p.Alias)
			pr.ParticipantIDs = append(pr.ParticipantIDs, p.AgentID)
		}
	}
	return res, nil
}
