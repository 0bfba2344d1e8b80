package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CreateSessionRequest opens (or re-joins) the session for the given alias
// set and posts the first message. A non-nil WaitSeconds blocks the call
// until a reply, the deadline, or the other side leaving.
type CreateSessionRequest struct {
	ToAliases   []string  `json:"to_aliases"`
	Body        string    `json:"body"`
	Leaving     bool      `json:"leaving,omitempty"`
	WaitSeconds *int      `json:"wait_seconds,omitempty"`
	Signature   Signature `json:"signature_fields,omitempty"`
}

// CreateSession starts or re-joins a chat session. The call may block for the
// server-side wait window; bound it with ctx.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	var out CreateSessionResult
	if err := c.doBlocking(ctx, http.MethodPost, "/v1/chat/sessions", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessageRequest posts into an existing session. HangOn extends the other
// side's wait instead of answering it; Leaving resolves their wait as
// sender_left.
type SendMessageRequest struct {
	Body        string    `json:"body"`
	HangOn      bool      `json:"hang_on,omitempty"`
	Leaving     bool      `json:"leaving,omitempty"`
	WaitSeconds *int      `json:"wait_seconds,omitempty"`
	Signature   Signature `json:"signature_fields,omitempty"`
}

// SendMessage posts a message into a session, optionally waiting for a reply.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req SendMessageRequest) (*SendMessageResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	var out SendMessageResult
	path := "/v1/chat/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.doBlocking(ctx, http.MethodPost, path, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns session messages in chronological order. limit <= 0 uses
// the server default.
func (c *Client) History(ctx context.Context, sessionID string, unreadOnly bool, limit int) ([]*ChatMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	query := map[string]string{}
	if unreadOnly {
		query["unread_only"] = "true"
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	var out struct {
		Messages []*ChatMessage `json:"messages"`
	}
	path := "/v1/chat/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out, query); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// MarkRead advances this agent's read receipt up to the given message.
func (c *Client) MarkRead(ctx context.Context, sessionID, upToMessageID string) (*MarkReadResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	body := map[string]string{"up_to_message_id": upToMessageID}
	var out MarkReadResult
	path := "/v1/chat/sessions/" + url.PathEscape(sessionID) + "/read"
	if err := c.do(ctx, http.MethodPost, path, body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pending lists sessions with unread traffic plus the unread mail count.
func (c *Client) Pending(ctx context.Context) (*PendingReport, error) {
	var out PendingReport
	if err := c.do(ctx, http.MethodGet, "/v1/chat/pending", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions lists every session this agent participates in.
func (c *Client) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	var out struct {
		Sessions []*SessionInfo `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/chat/sessions", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// StreamEvent is one SSE record from a session stream.
type StreamEvent struct {
	Type               string    `json:"type"`
	SessionID          string    `json:"session_id,omitempty"`
	MessageID          string    `json:"message_id,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	FromAlias          string    `json:"from_agent,omitempty"`
	Body               string    `json:"body,omitempty"`
	SenderLeaving      bool      `json:"sender_leaving,omitempty"`
	HangOn             bool      `json:"hang_on,omitempty"`
	ExtendsWaitSeconds int       `json:"extends_wait_seconds,omitempty"`
	ReaderAlias        string    `json:"reader_alias,omitempty"`
	UpToMessageID      string    `json:"up_to_message_id,omitempty"`
}

// Stream subscribes to a session's live event feed until deadline, ctx
// cancellation, or server close. Events are delivered on the returned
// channel, which is closed when the stream ends; a non-nil after replays
// messages created after that instant before live events.
func (c *Client) Stream(ctx context.Context, sessionID string, deadline time.Time, after *time.Time) (<-chan StreamEvent, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	r := c.blocking.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParam("deadline", deadline.UTC().Format(time.RFC3339))
	if after != nil {
		r.SetQueryParam("after", after.UTC().Format(time.RFC3339))
	}
	resp, err := r.Get("/v1/chat/sessions/" + url.PathEscape(sessionID) + "/stream")
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	raw := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer func() { _ = raw.Close() }()
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if err := json.NewDecoder(raw).Decode(apiErr); err != nil {
			apiErr.Message = "stream rejected"
		}
		return nil, apiErr
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer func() { _ = raw.Close() }()
		scanner := bufio.NewScanner(raw)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var evt StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
