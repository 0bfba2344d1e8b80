package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
)

type chat struct{ s *Store }

func (c *chat) EnsureSession(_ context.Context, projectID, participantHash string, parts []model.ChatParticipant) (*model.ChatSession, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	hk := key2(projectID, participantHash)
	if sid, ok := c.s.sessionByHash[hk]; ok {
		out := *c.s.sessions[sid]
		return &out, nil
	}
	sess := &model.ChatSession{
		SessionID:       uuid.New().String(),
		ProjectID:       projectID,
		ParticipantHash: participantHash,
		CreatedAt:       c.s.tick(),
	}
	c.s.sessions[sess.SessionID] = sess
	c.s.sessionByHash[hk] = sess.SessionID
	for _, p := range parts {
		p.SessionID = sess.SessionID
		p.JoinedAt = sess.CreatedAt
		c.s.participants[sess.SessionID] = append(c.s.participants[sess.SessionID], p)
	}
	out := *sess
	return &out, nil
}

func (c *chat) GetSession(_ context.Context, projectID, sessionID string) (*model.ChatSession, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	sess, ok := c.s.sessions[sessionID]
	if !ok || sess.ProjectID != projectID {
		return nil, model.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (c *chat) Participants(_ context.Context, sessionID string) ([]model.ChatParticipant, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.participantsLocked(sessionID), nil
}

func (c *chat) participantsLocked(sessionID string) []model.ChatParticipant {
	res := append([]model.ChatParticipant(nil), c.s.participants[sessionID]...)
	sort.Slice(res, func(i, j int) bool { return res[i].Alias < res[j].Alias })
	return res
}

func (c *chat) GetParticipant(_ context.Context, sessionID, agentID string) (*model.ChatParticipant, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, p := range c.s.participants[sessionID] {
		if p.AgentID == agentID {
			out := p
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (c *chat) AppendMessage(_ context.Context, m *model.ChatMessage) (*model.ChatMessage, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := *m
	if out.MessageID == "" {
		out.MessageID = uuid.New().String()
	}
	out.CreatedAt = c.s.tick()
	cp := out
	c.s.chatMsgs[out.SessionID] = append(c.s.chatMsgs[out.SessionID], &cp)

	// sending advances the sender's own receipt
	rk := key2(out.SessionID, out.FromAgentID)
	mid := out.MessageID
	at := out.CreatedAt
	c.s.receipts[rk] = &model.ReadReceipt{
		SessionID:         out.SessionID,
		AgentID:           out.FromAgentID,
		LastReadMessageID: &mid,
		LastReadAt:        &at,
	}
	return &out, nil
}

func (c *chat) GetMessage(_ context.Context, sessionID, messageID string) (*model.ChatMessage, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, msg := range c.s.chatMsgs[sessionID] {
		if msg.MessageID == messageID {
			out := *msg
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (c *chat) History(_ context.Context, sessionID string, unreadOnly bool, lastReadAt *time.Time, selfAgentID string, limit int) ([]*model.ChatMessage, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var res []*model.ChatMessage
	for _, msg := range c.s.chatMsgs[sessionID] {
		if unreadOnly {
			if msg.FromAgentID == selfAgentID {
				continue
			}
			if lastReadAt != nil && !msg.CreatedAt.After(*lastReadAt) {
				continue
			}
		}
		out := *msg
		res = append(res, &out)
	}
	if limit > 0 && len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}

func (c *chat) MessagesAfter(_ context.Context, sessionID string, after time.Time, limit int) ([]*model.ChatMessage, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var res []*model.ChatMessage
	for _, msg := range c.s.chatMsgs[sessionID] {
		if !msg.CreatedAt.After(after) {
			continue
		}
		out := *msg
		res = append(res, &out)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (c *chat) LeaverIDs(_ context.Context, sessionID string, agentIDs []string) ([]string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	latest := make(map[string]bool) // agent -> sender_leaving of latest message
	for _, msg := range c.s.chatMsgs[sessionID] {
		latest[msg.FromAgentID] = msg.SenderLeaving
	}
	var res []string
	for _, id := range agentIDs {
		if latest[id] {
			res = append(res, id)
		}
	}
	return res, nil
}

func (c *chat) Receipt(_ context.Context, sessionID, agentID string) (*model.ReadReceipt, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if r, ok := c.s.receipts[key2(sessionID, agentID)]; ok {
		out := *r
		return &out, nil
	}
	return &model.ReadReceipt{SessionID: sessionID, AgentID: agentID}, nil
}

func (c *chat) AdvanceReceipt(_ context.Context, sessionID, agentID, upToMessageID string, _ time.Time) (int, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var target *model.ChatMessage
	for _, msg := range c.s.chatMsgs[sessionID] {
		if msg.MessageID == upToMessageID {
			target = msg
			break
		}
	}
	if target == nil {
		return 0, false, model.ErrNotFound
	}

	rk := key2(sessionID, agentID)
	var lastReadAt *time.Time
	if r, ok := c.s.receipts[rk]; ok {
		lastReadAt = r.LastReadAt
	}
	if lastReadAt != nil && !target.CreatedAt.After(*lastReadAt) {
		return 0, false, nil
	}

	marked := 0
	for _, msg := range c.s.chatMsgs[sessionID] {
		if msg.FromAgentID == agentID {
			continue
		}
		if msg.CreatedAt.After(target.CreatedAt) {
			continue
		}
		if lastReadAt != nil && !msg.CreatedAt.After(*lastReadAt) {
			continue
		}
		marked++
	}

	mid := upToMessageID
	at := target.CreatedAt
	c.s.receipts[rk] = &model.ReadReceipt{
		SessionID:         sessionID,
		AgentID:           agentID,
		LastReadMessageID: &mid,
		LastReadAt:        &at,
	}
	return marked, true, nil
}

func (c *chat) SessionsForAgent(_ context.Context, projectID, agentID string) ([]*store.SessionSummary, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var res []*store.SessionSummary
	for sid, sess := range c.s.sessions {
		if sess.ProjectID != projectID {
			continue
		}
		member := false
		for _, p := range c.s.participants[sid] {
			if p.AgentID == agentID {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		res = append(res, &store.SessionSummary{
			SessionID:    sid,
			CreatedAt:    sess.CreatedAt,
			Participants: c.participantsLocked(sid),
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (c *chat) PendingForAgent(_ context.Context, projectID, agentID string) ([]*store.PendingRow, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var res []*store.PendingRow
	for sid, sess := range c.s.sessions {
		if sess.ProjectID != projectID {
			continue
		}
		member := false
		for _, p := range c.s.participants[sid] {
			if p.AgentID == agentID {
				member = true
				break
			}
		}
		if !member {
			continue
		}

		var lastReadAt *time.Time
		if r, ok := c.s.receipts[key2(sid, agentID)]; ok {
			lastReadAt = r.LastReadAt
		}
		msgs := c.s.chatMsgs[sid]
		unread := 0
		for _, msg := range msgs {
			if msg.FromAgentID == agentID {
				continue
			}
			if lastReadAt != nil && !msg.CreatedAt.After(*lastReadAt) {
				continue
			}
			unread++
		}
		if unread == 0 || len(msgs) == 0 {
			continue
		}
		last := msgs[len(msgs)-1]
		pr := &store.PendingRow{
			SessionID:       sid,
			LastMessage:     last.Body,
			LastFromAlias:   last.FromAlias,
			LastFromAgentID: last.FromAgentID,
			UnreadCount:     unread,
			LastActivity:    last.CreatedAt,
		}
		for _, p := range c.participantsLocked(sid) {
			pr.Participants = append(pr.Participants, p.Alias)
			pr.ParticipantIDs = append(pr.ParticipantIDs, p.AgentID)
		}
		res = append(res, pr)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].LastActivity.After(res[j].LastActivity) })
	return res, nil
}
