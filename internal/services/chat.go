package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/config"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
)

const (
	defaultHistoryLimit = 50
	streamReplayLimit   = 100
)

// ChatService owns sessions, messages, read receipts, and the blocking
// send-and-wait flow.
type ChatService struct {
	store    store.Store
	identity *IdentityService
	presence *Presence
	bus      *events.Bus
	waiters  *WaiterRegistry
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewChatService(s store.Store, id *IdentityService, pr *Presence, bus *events.Bus, waiters *WaiterRegistry, cfg *config.Config, log zerolog.Logger) *ChatService {
	return &ChatService{
		store:    s,
		identity: id,
		presence: pr,
		bus:      bus,
		waiters:  waiters,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// participantHash canonicalizes the session's alias set: case-sensitive
// sort, comma join, sha256. The digest exists only to make the session row
// unique; it is never exposed.
func participantHash(aliases []string) string {
	sorted := append([]string(nil), aliases...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

type CreateSessionRequest struct {
	ToAliases   []string
	Body        string
	Leaving     bool
	Signature   model.Signature
	WaitSeconds *int // nil: server default; 0: return immediately
}

type CreateSessionResult struct {
	SessionID        string
	MessageID        string
	Participants     []string
	TargetsConnected []string
	TargetsLeft      []string
	Wait             *WaitResult
}

func (s *ChatService) requireAgent(ctx context.Context, p *auth.Principal) (*model.Agent, error) {
	if !p.Agent() {
		return nil, fmt.Errorf("%w: chat requires an agent-bound key", model.ErrForbidden)
	}
	return s.store.Agents().GetByID(ctx, p.ProjectID, p.AgentID)
}

func (s *ChatService) CreateSession(ctx context.Context, p *auth.Principal, req CreateSessionRequest) (*CreateSessionResult, error) {
	sender, err := s.requireAgent(ctx, p)
	if err != nil {
		return nil, err
	}
	if req.Body == "" {
		return nil, fmt.Errorf("%w: message body is required", model.ErrValidation)
	}

	// resolve and dedupe the participant set
	byID := map[string]*model.Agent{sender.AgentID: sender}
	var recipients []*model.Agent
	for _, alias := range req.ToAliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		target, err := s.store.Agents().GetByAlias(ctx, p.ProjectID, alias)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", alias, err)
		}
		if _, seen := byID[target.AgentID]; seen {
			continue
		}
		byID[target.AgentID] = target
		recipients = append(recipients, target)
	}
	if len(byID) < 2 {
		return nil, fmt.Errorf("%w: a chat needs at least two distinct participants", model.ErrValidation)
	}
	for _, target := range recipients {
		if err := s.identity.CheckSendAllowed(ctx, target, sender); err != nil {
			return nil, err
		}
	}

	aliases := make([]string, 0, len(byID))
	participants := make([]model.ChatParticipant, 0, len(byID))
	for _, a := range byID {
		aliases = append(aliases, a.Alias)
		participants = append(participants, model.ChatParticipant{AgentID: a.AgentID, Alias: a.Alias})
	}
	sort.Strings(aliases)

	sess, err := s.store.Chat().EnsureSession(ctx, p.ProjectID, participantHash(aliases), participants)
	if err != nil {
		return nil, err
	}

	wait := s.waitDuration(req.WaitSeconds, s.cfg.ChatStartWaitSeconds)
	sub := s.subscribeIfWaiting(sess.SessionID, wait)
	defer sub.cancel()

	msg, err := s.appendAndPublish(ctx, sess.SessionID, sender, req.Body, req.Leaving, false, req.Signature)
	if err != nil {
		return nil, err
	}

	res := &CreateSessionResult{
		SessionID:    sess.SessionID,
		MessageID:    msg.MessageID,
		Participants: aliases,
	}
	recipientIDs := make([]string, 0, len(recipients))
	for _, target := range recipients {
		recipientIDs = append(recipientIDs, target.AgentID)
	}
	leavers, err := s.store.Chat().LeaverIDs(ctx, sess.SessionID, recipientIDs)
	if err != nil {
		return nil, err
	}
	left := make(map[string]bool, len(leavers))
	for _, id := range leavers {
		left[id] = true
	}
	for _, target := range recipients {
		if s.presence.Online(ctx, p.ProjectID, target.AgentID) || s.presence.WaitingOn(ctx, sess.SessionID, target.AgentID) {
			res.TargetsConnected = append(res.TargetsConnected, target.Alias)
		}
		if target.Status != model.AgentStatusActive || left[target.AgentID] {
			res.TargetsLeft = append(res.TargetsLeft, target.Alias)
		}
	}

	res.Wait = s.finishWait(ctx, sub, sess.SessionID, msg, wait, req.Leaving)
	return res, nil
}

type SendMessageRequest struct {
	Body        string
	HangOn      bool
	Leaving     bool
	Signature   model.Signature
	WaitSeconds *int
}

type SendMessageResult struct {
	MessageID          string
	CreatedAt          time.Time
	ExtendsWaitSeconds int
	Wait               *WaitResult
}

func (s *ChatService) SendMessage(ctx context.Context, p *auth.Principal, sessionID string, req SendMessageRequest) (*SendMessageResult, error) {
	sender, err := s.requireAgent(ctx, p)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberSession(ctx, p, sessionID); err != nil {
		return nil, err
	}
	if req.Body == "" {
		return nil, fmt.Errorf("%w: message body is required", model.ErrValidation)
	}

	wait := s.waitDuration(req.WaitSeconds, s.cfg.ChatSendWaitSeconds)
	if req.HangOn || req.Leaving {
		wait = 0 // control and goodbye messages never block
	}
	sub := s.subscribeIfWaiting(sessionID, wait)
	defer sub.cancel()

	msg, err := s.appendAndPublish(ctx, sessionID, sender, req.Body, req.Leaving, req.HangOn, req.Signature)
	if err != nil {
		return nil, err
	}

	res := &SendMessageResult{MessageID: msg.MessageID, CreatedAt: msg.CreatedAt}
	if req.HangOn {
		res.ExtendsWaitSeconds = s.cfg.HangOnExtensionSeconds
	}
	res.Wait = s.finishWait(ctx, sub, sessionID, msg, wait, req.Leaving)
	return res, nil
}

// appendAndPublish commits the message, extends hang-on deadlines, and
// publishes exactly one event for the write.
func (s *ChatService) appendAndPublish(ctx context.Context, sessionID string, sender *model.Agent, body string, leaving, hangOn bool, sig model.Signature) (*model.ChatMessage, error) {
	msg, err := s.store.Chat().AppendMessage(ctx, &model.ChatMessage{
		SessionID:     sessionID,
		FromAgentID:   sender.AgentID,
		FromAlias:     sender.Alias,
		Body:          body,
		SenderLeaving: leaving,
		HangOn:        hangOn,
		Signature:     sig,
	})
	if err != nil {
		return nil, err
	}

	extends := 0
	if hangOn {
		d := time.Duration(s.cfg.HangOnExtensionSeconds) * time.Second
		extends = s.cfg.HangOnExtensionSeconds
		s.waiters.Extend(sessionID, sender.AgentID, time.Time{}, d, s.now())
	}

	s.bus.Publish(events.ChatTopic(sessionID), events.Event{
		Type:               events.TypeMessage,
		SessionID:          sessionID,
		MessageID:          msg.MessageID,
		FromAgentID:        sender.AgentID,
		FromAlias:          sender.Alias,
		Body:               body,
		SenderLeaving:      leaving,
		HangOn:             hangOn,
		ExtendsWaitSeconds: extends,
		Signature:          sig,
		Timestamp:          msg.CreatedAt,
	})
	return msg, nil
}

// memberSession loads the session and verifies the caller participates.
func (s *ChatService) memberSession(ctx context.Context, p *auth.Principal, sessionID string) (*model.ChatSession, error) {
	sess, err := s.store.Chat().GetSession(ctx, p.ProjectID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Chat().GetParticipant(ctx, sessionID, p.AgentID); err != nil {
		return nil, fmt.Errorf("%w: not a participant of this session", model.ErrForbidden)
	}
	return sess, nil
}

func (s *ChatService) History(ctx context.Context, p *auth.Principal, sessionID string, unreadOnly bool, limit int) ([]*model.ChatMessage, error) {
	if _, err := s.memberSession(ctx, p, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var lastReadAt *time.Time
	if unreadOnly {
		receipt, err := s.store.Chat().Receipt(ctx, sessionID, p.AgentID)
		if err != nil {
			return nil, err
		}
		lastReadAt = receipt.LastReadAt
	}
	return s.store.Chat().History(ctx, sessionID, unreadOnly, lastReadAt, p.AgentID, limit)
}

type MarkReadResult struct {
	MessagesMarked      int
	WaitExtendedSeconds int
}

// MarkRead advances the caller's receipt monotonically. When the receipt
// covers a blocked sender's message, that sender's deadline is pushed out
// and the extension is reported back to the reader.
func (s *ChatService) MarkRead(ctx context.Context, p *auth.Principal, sessionID, upToMessageID string) (*MarkReadResult, error) {
	reader, err := s.requireAgent(ctx, p)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberSession(ctx, p, sessionID); err != nil {
		return nil, err
	}
	target, err := s.store.Chat().GetMessage(ctx, sessionID, upToMessageID)
	if err != nil {
		return nil, err
	}

	marked, advanced, err := s.store.Chat().AdvanceReceipt(ctx, sessionID, p.AgentID, upToMessageID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	res := &MarkReadResult{MessagesMarked: marked}
	if !advanced {
		return res, nil
	}

	d := time.Duration(s.cfg.HangOnExtensionSeconds) * time.Second
	res.WaitExtendedSeconds = s.waiters.Extend(sessionID, p.AgentID, target.CreatedAt, d, s.now())

	s.bus.Publish(events.ChatTopic(sessionID), events.Event{
		Type:               events.TypeReadReceipt,
		SessionID:          sessionID,
		ReaderAgentID:      reader.AgentID,
		ReaderAlias:        reader.Alias,
		UpToMessageID:      upToMessageID,
		ExtendsWaitSeconds: res.WaitExtendedSeconds,
		Timestamp:          s.now().UTC(),
	})
	return res, nil
}

// PendingSession is one unread conversation on the pending report.
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

// PendingReport is the poll answer: unread conversations plus the count of
// unacknowledged mail waiting in the inbox.
type PendingReport struct {
	Sessions        []*PendingSession `json:"sessions"`
	MessagesWaiting int               `json:"messages_waiting"`
}

func (s *ChatService) Pending(ctx context.Context, p *auth.Principal) (*PendingReport, error) {
	if !p.Agent() {
		return nil, fmt.Errorf("%w: chat requires an agent-bound key", model.ErrForbidden)
	}
	rows, err := s.store.Chat().PendingForAgent(ctx, p.ProjectID, p.AgentID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.store.Mail().UnreadCount(ctx, p.ProjectID, p.AgentID)
	if err != nil {
		return nil, err
	}
	res := make([]*PendingSession, 0, len(rows))
	now := s.now()
	for _, row := range rows {
		ps := &PendingSession{
			SessionID:    row.SessionID,
			Participants: row.Participants,
			LastMessage:  row.LastMessage,
			LastFrom:     row.LastFromAlias,
			UnreadCount:  row.UnreadCount,
			LastActivity: row.LastActivity,
		}
		if info, ok := s.waiters.Waiting(row.SessionID, p.AgentID); ok {
			ps.SenderWaiting = true
			remaining := int(info.Deadline.Sub(now) / time.Second)
			if remaining < 0 {
				remaining = 0
			}
			ps.TimeRemainingSeconds = &remaining
		}
		res = append(res, ps)
	}
	return &PendingReport{Sessions: res, MessagesWaiting: waiting}, nil
}

// SessionInfo is one row of the caller's session list.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *ChatService) ListSessions(ctx context.Context, p *auth.Principal) ([]*SessionInfo, error) {
	if !p.Agent() {
		return nil, fmt.Errorf("%w: chat requires an agent-bound key", model.ErrForbidden)
	}
	summaries, err := s.store.Chat().SessionsForAgent(ctx, p.ProjectID, p.AgentID)
	if err != nil {
		return nil, err
	}
	res := make([]*SessionInfo, 0, len(summaries))
	for _, sum := range summaries {
		info := &SessionInfo{SessionID: sum.SessionID, CreatedAt: sum.CreatedAt}
		for _, part := range sum.Participants {
			info.Participants = append(info.Participants, part.Alias)
		}
		res = append(res, info)
	}
	return res, nil
}

// --- streaming support ---

// OpenStream validates membership, registers the caller in the waiting set,
// and returns the live event channel plus a short replay of messages after
// the given instant.
func (s *ChatService) OpenStream(ctx context.Context, p *auth.Principal, sessionID string, after *time.Time) (<-chan events.Event, func(), []*model.ChatMessage, error) {
	if _, err := s.memberSession(ctx, p, sessionID); err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := s.bus.Subscribe(events.ChatTopic(sessionID))

	var replay []*model.ChatMessage
	if after != nil {
		var err error
		replay, err = s.store.Chat().MessagesAfter(ctx, sessionID, *after, streamReplayLimit)
		if err != nil {
			cancel()
			return nil, nil, nil, err
		}
	}

	ttl := time.Duration(s.cfg.ChatWaitingTTLSeconds) * time.Second
	if err := s.presence.MarkWaiting(ctx, sessionID, p.AgentID, ttl); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("waiting-set mark failed")
	}
	agentID := p.AgentID
	closeAll := func() {
		cancel()
		_ = s.presence.ClearWaiting(context.Background(), sessionID, agentID)
	}
	return ch, closeAll, replay, nil
}

// RefreshStream re-arms the caller's waiting-set TTL while a stream stays
// open.
func (s *ChatService) RefreshStream(ctx context.Context, sessionID, agentID string) {
	ttl := time.Duration(s.cfg.ChatWaitingTTLSeconds) * time.Second
	if err := s.presence.MarkWaiting(ctx, sessionID, agentID, ttl); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("waiting-set refresh failed")
	}
}

// --- send-and-wait ---

type subscription struct {
	ch     <-chan events.Event
	cancel func()
}

// subscribeIfWaiting opens the bus subscription before the message commits
// so a fast reply cannot slip between commit and subscribe.
func (s *ChatService) subscribeIfWaiting(sessionID string, wait time.Duration) subscription {
	if wait <= 0 {
		return subscription{cancel: func() {}}
	}
	ch, cancel := s.bus.Subscribe(events.ChatTopic(sessionID))
	return subscription{ch: ch, cancel: cancel}
}

func (s *ChatService) waitDuration(requested *int, defaultSeconds int) time.Duration {
	secs := defaultSeconds
	if requested != nil {
		secs = *requested
	}
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// finishWait runs the send-and-wait state machine. A zero wait (or a
// leaving sender) resolves immediately with status "sent".
func (s *ChatService) finishWait(ctx context.Context, sub subscription, sessionID string, sent *model.ChatMessage, wait time.Duration, leaving bool) *WaitResult {
	if wait <= 0 || leaving {
		return &WaitResult{Status: WaitStatusSent}
	}

	start := s.now()
	w := s.waiters.Register(sessionID, sent.FromAgentID, sent.MessageID, sent.CreatedAt, start.Add(wait))
	defer s.waiters.Unregister(w)

	waited := func() int { return int(s.now().Sub(start) / time.Second) }
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return &WaitResult{Status: WaitStatusCanceled, WaitedSeconds: waited()}

		case <-timer.C:
			if rem := w.Deadline().Sub(s.now()); rem > 0 {
				timer.Reset(rem)
				continue
			}
			return &WaitResult{Status: WaitStatusDeadline, WaitedSeconds: waited()}

		case <-w.Extended():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			rem := w.Deadline().Sub(s.now())
			if rem <= 0 {
				return &WaitResult{Status: WaitStatusDeadline, WaitedSeconds: waited()}
			}
			timer.Reset(rem)

		case evt, ok := <-sub.ch:
			if !ok {
				return &WaitResult{Status: WaitStatusCanceled, WaitedSeconds: waited()}
			}
			if evt.Type != events.TypeMessage {
				continue // receipt extensions arrive via the registry
			}
			if evt.MessageID == sent.MessageID || evt.FromAgentID == sent.FromAgentID {
				continue // replay skip
			}
			if evt.HangOn {
				continue // deadline already moved by the registry
			}
			status := WaitStatusReplied
			if evt.SenderLeaving {
				status = WaitStatusLeft
			}
			return &WaitResult{
				Status:         status,
				Reply:          evt.Body,
				ReplyFrom:      evt.FromAlias,
				ReplyMessageID: evt.MessageID,
				WaitedSeconds:  waited(),
			}
		}
	}
}
