package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
)

const defaultInboxLimit = 50

// MailService persists point-to-point messages and serves per-recipient
// inboxes with at-most-once acknowledgment.
type MailService struct {
	store    store.Store
	identity *IdentityService
	bus      *events.Bus
	now      func() time.Time
}

func NewMailService(s store.Store, id *IdentityService, bus *events.Bus) *MailService {
	return &MailService{store: s, identity: id, bus: bus, now: time.Now}
}

// SendMailRequest addresses the recipient by id or alias.
type SendMailRequest struct {
	ToAgentID string
	ToAlias   string
	Subject   string
	Body      string
	Priority  string
	ThreadID  *string
	Signature model.Signature
}

func (s *MailService) Send(ctx context.Context, p *auth.Principal, req SendMailRequest) (*model.MailMessage, error) {
	if !p.Agent() {
		return nil, fmt.Errorf("%w: mail requires an agent-bound key", model.ErrForbidden)
	}
	sender, err := s.store.Agents().GetByID(ctx, p.ProjectID, p.AgentID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.identity.ResolveRecipient(ctx, p.ProjectID, req.ToAgentID, req.ToAlias)
	if err != nil {
		return nil, err
	}
	if recipient.Status != model.AgentStatusActive {
		return nil, fmt.Errorf("%w: agent %s is %s", model.ErrGone, recipient.Alias, recipient.Status)
	}
	if err := s.identity.CheckSendAllowed(ctx, recipient, sender); err != nil {
		return nil, err
	}

	priority := req.Priority
	switch priority {
	case "":
		priority = model.PriorityNormal
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		return nil, fmt.Errorf("%w: invalid priority %q", model.ErrValidation, priority)
	}
	if req.Body == "" {
		return nil, fmt.Errorf("%w: body is required", model.ErrValidation)
	}

	msg, err := s.store.Mail().Create(ctx, &model.MailMessage{
		ProjectID:   p.ProjectID,
		FromAgentID: sender.AgentID,
		ToAgentID:   recipient.AgentID,
		FromAlias:   sender.Alias,
		Subject:     req.Subject,
		Body:        req.Body,
		Priority:    priority,
		ThreadID:    req.ThreadID,
		Signature:   req.Signature,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.MailTopic(p.ProjectID, recipient.AgentID), events.Event{
		Type:      events.TypeMailArrived,
		MessageID: msg.MessageID,
		ProjectID: p.ProjectID,
		ToAgentID: recipient.AgentID,
		FromAlias: sender.Alias,
		Timestamp: msg.CreatedAt,
	})
	return msg, nil
}

func (s *MailService) Inbox(ctx context.Context, p *auth.Principal, unreadOnly bool, limit int) ([]*model.MailMessage, error) {
	if !p.Agent() {
		return nil, fmt.Errorf("%w: inbox requires an agent-bound key", model.ErrForbidden)
	}
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	return s.store.Mail().Inbox(ctx, p.ProjectID, p.AgentID, unreadOnly, limit)
}

// Ack marks the message read. Only the recipient may ack; a second ack is an
// idempotent no-op returning the original timestamp.
func (s *MailService) Ack(ctx context.Context, p *auth.Principal, messageID string) (time.Time, error) {
	if !p.Agent() {
		return time.Time{}, fmt.Errorf("%w: ack requires an agent-bound key", model.ErrForbidden)
	}
	msg, err := s.store.Mail().Get(ctx, p.ProjectID, messageID)
	if err != nil {
		return time.Time{}, err
	}
	if msg.ToAgentID != p.AgentID {
		// do not reveal other agents' mail ids
		return time.Time{}, model.ErrNotFound
	}
	return s.store.Mail().Ack(ctx, p.ProjectID, messageID, s.now().UTC())
}
