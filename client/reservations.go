package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Acquire takes (or refreshes) the lease on resourceKey. ttlSeconds <= 0 uses
// the server default. A held lease by another agent returns a 409 APIError
// naming the holder.
func (c *Client) Acquire(ctx context.Context, resourceKey string, ttlSeconds int, metadata map[string]any) (*Reservation, error) {
	if resourceKey == "" {
		return nil, fmt.Errorf("resourceKey cannot be empty")
	}
	body := map[string]any{"resource_key": resourceKey}
	if ttlSeconds > 0 {
		body["ttl_seconds"] = ttlSeconds
	}
	if metadata != nil {
		body["metadata"] = metadata
	}
	var out Reservation
	if err := c.do(ctx, http.MethodPost, "/v1/reservations", body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Renew extends a lease this agent holds and returns the new expiry.
func (c *Client) Renew(ctx context.Context, resourceKey string, ttlSeconds int) (time.Time, error) {
	if resourceKey == "" {
		return time.Time{}, fmt.Errorf("resourceKey cannot be empty")
	}
	body := map[string]any{"resource_key": resourceKey}
	if ttlSeconds > 0 {
		body["ttl_seconds"] = ttlSeconds
	}
	var out struct {
		ExpiresAt string `json:"expires_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/reservations/renew", body, &out, nil); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, out.ExpiresAt)
}

// Release drops a lease. Releasing an absent lease is a no-op; released
// reports whether a row was actually removed.
func (c *Client) Release(ctx context.Context, resourceKey string) (bool, error) {
	if resourceKey == "" {
		return false, fmt.Errorf("resourceKey cannot be empty")
	}
	var out struct {
		Released bool `json:"released"`
	}
	body := map[string]string{"resource_key": resourceKey}
	if err := c.do(ctx, http.MethodPost, "/v1/reservations/release", body, &out, nil); err != nil {
		return false, err
	}
	return out.Released, nil
}

// Revoke releases every lease this agent holds under prefix ("" means all)
// and returns the count removed.
func (c *Client) Revoke(ctx context.Context, prefix string) (int, error) {
	var out struct {
		Revoked int `json:"revoked"`
	}
	body := map[string]string{"prefix": prefix}
	if err := c.do(ctx, http.MethodPost, "/v1/reservations/revoke", body, &out, nil); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ListReservations returns the project's live leases, optionally filtered by
// key prefix.
func (c *Client) ListReservations(ctx context.Context, prefix string) ([]*Reservation, error) {
	query := map[string]string{}
	if prefix != "" {
		query["prefix"] = prefix
	}
	var out struct {
		Reservations []*Reservation `json:"reservations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/reservations", nil, &out, query); err != nil {
		return nil, err
	}
	return out.Reservations, nil
}
