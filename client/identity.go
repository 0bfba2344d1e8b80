package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Introspect resolves the identity behind the client's API key.
func (c *Client) Introspect(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := c.do(ctx, http.MethodGet, "/v1/auth/introspect", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents returns the project roster with live presence flags.
func (c *Client) ListAgents(ctx context.Context) ([]*Agent, error) {
	var out struct {
		Agents []*Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agents", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// Heartbeat refreshes this agent's presence window.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/agents/heartbeat", struct{}{}, nil, nil)
}

// SuggestAliasPrefix returns a free classic-name prefix for a new alias.
func (c *Client) SuggestAliasPrefix(ctx context.Context) (string, error) {
	var out struct {
		AliasPrefix string `json:"alias_prefix"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/agents/suggest-alias-prefix", struct{}{}, &out, nil); err != nil {
		return "", err
	}
	return out.AliasPrefix, nil
}

// AddContact allow-lists a sender address for contacts_only delivery.
func (c *Client) AddContact(ctx context.Context, address, label string) (*Contact, error) {
	body := map[string]string{"contact_address": address, "label": label}
	var out Contact
	if err := c.do(ctx, http.MethodPost, "/v1/contacts", body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListContacts returns the project's allow-list.
func (c *Client) ListContacts(ctx context.Context) ([]*Contact, error) {
	var out struct {
		Contacts []*Contact `json:"contacts"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/contacts", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// RemoveContact deletes an allow-list entry by id.
func (c *Client) RemoveContact(ctx context.Context, contactID string) error {
	if contactID == "" {
		return fmt.Errorf("contactID cannot be empty")
	}
	path := "/v1/contacts/" + url.PathEscape(contactID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}
