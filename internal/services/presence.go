package services

import (
	"context"
	"time"

	"github.com/aweb-dev/aweb/internal/kv"
)

// Presence tracks best-effort online status via TTL heartbeats in the
// ephemeral KV. Absence of a key is the only offline signal; presence is
// never consulted to gate delivery.
type Presence struct {
	kv  kv.KV
	ttl time.Duration
	now func() time.Time
}

func NewPresence(store kv.KV, ttlSeconds int) *Presence {
	return &Presence{kv: store, ttl: time.Duration(ttlSeconds) * time.Second, now: time.Now}
}

func presenceKey(projectID, agentID string) string {
	return "presence:" + projectID + ":" + agentID
}

func waitingKey(sessionID, agentID string) string {
	return "waiting:" + sessionID + ":" + agentID
}

// Heartbeat records the agent as online for the configured TTL.
func (p *Presence) Heartbeat(ctx context.Context, projectID, agentID string) error {
	ts := p.now().UTC().Format(time.RFC3339)
	return p.kv.Put(ctx, presenceKey(projectID, agentID), []byte(ts), p.ttl)
}

// Online reports whether the agent has an unexpired heartbeat. KV failures
// degrade to offline.
func (p *Presence) Online(ctx context.Context, projectID, agentID string) bool {
	_, ok, err := p.kv.Get(ctx, presenceKey(projectID, agentID))
	return err == nil && ok
}

// MarkWaiting records that the agent holds an open stream on the session.
func (p *Presence) MarkWaiting(ctx context.Context, sessionID, agentID string, ttl time.Duration) error {
	ts := p.now().UTC().Format(time.RFC3339)
	return p.kv.Put(ctx, waitingKey(sessionID, agentID), []byte(ts), ttl)
}

// ClearWaiting drops the stream marker.
func (p *Presence) ClearWaiting(ctx context.Context, sessionID, agentID string) error {
	return p.kv.Delete(ctx, waitingKey(sessionID, agentID))
}

// WaitingOn reports whether the agent holds a stream marker for the session.
func (p *Presence) WaitingOn(ctx context.Context, sessionID, agentID string) bool {
	_, ok, err := p.kv.Get(ctx, waitingKey(sessionID, agentID))
	return err == nil && ok
}
