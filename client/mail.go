package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// SendMailRequest addresses a durable message to one recipient by id or alias.
type SendMailRequest struct {
	ToAgentID string    `json:"to_agent_id,omitempty"`
	ToAlias   string    `json:"to_alias,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Priority  string    `json:"priority,omitempty"`
	ThreadID  *string   `json:"thread_id,omitempty"`
	Signature Signature `json:"signature_fields,omitempty"`
}

// SendMailResult acknowledges durable delivery.
type SendMailResult struct {
	MessageID   string `json:"message_id"`
	DeliveredAt string `json:"delivered_at"`
}

// SendMail delivers one durable message to a recipient's inbox.
func (c *Client) SendMail(ctx context.Context, req SendMailRequest) (*SendMailResult, error) {
	var out SendMailResult
	if err := c.do(ctx, http.MethodPost, "/v1/messages", &req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Inbox lists this agent's mail, newest first. limit <= 0 uses the server
// default.
func (c *Client) Inbox(ctx context.Context, unreadOnly bool, limit int) ([]*MailMessage, error) {
	query := map[string]string{}
	if unreadOnly {
		query["unread_only"] = "true"
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	var out struct {
		Messages []*MailMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/messages/inbox", nil, &out, query); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// AckMail marks one mail message read. Acking an already-read message is a
// no-op that returns the original read time.
func (c *Client) AckMail(ctx context.Context, messageID string) (time.Time, error) {
	if messageID == "" {
		return time.Time{}, fmt.Errorf("messageID cannot be empty")
	}
	var out struct {
		AcknowledgedAt string `json:"acknowledged_at"`
	}
	path := "/v1/messages/" + url.PathEscape(messageID) + "/ack"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out, nil); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, out.AcknowledgedAt)
}
