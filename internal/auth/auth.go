// Package auth authenticates requests to a project-scoped principal.
// Two modes: Bearer keys looked up by full-key digest, and a signed
// proxy context for deployments that terminate auth upstream. Proxy
// mode never falls back to Bearer.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
)

// Principal is the authenticated scope of a request. AgentID is empty for
// project-scoped keys.
type Principal struct {
	ProjectID string `json:"project_id"`
	AgentID   string `json:"agent_id,omitempty"`
	APIKeyID  string `json:"api_key_id,omitempty"`
}

// Agent reports whether the principal acts as a specific agent.
func (p *Principal) Agent() bool { return p.AgentID != "" }

// Authenticator resolves a request to a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

// New picks the authenticator for the deployment. With proxy trust enabled
// every request must carry a valid signed context; Bearer is not consulted.
func New(s store.Store, trustProxy bool, internalSecret string) Authenticator {
	if trustProxy {
		return &proxyAuthenticator{secret: []byte(internalSecret)}
	}
	return &bearerAuthenticator{store: s, now: time.Now}
}

type bearerAuthenticator struct {
	store store.Store
	now   func() time.Time
}

func (b *bearerAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	raw, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}
	hash := HashKey(raw)
	key, err := b.store.APIKeys().GetActiveByHash(ctx, hash)
	if err != nil {
		// never reveal whether the prefix was close
		return nil, model.ErrUnauthenticated
	}
	// best-effort; an update failure must not fail the request
	_ = b.store.APIKeys().TouchLastUsed(ctx, hash, b.now())

	p := &Principal{ProjectID: key.ProjectID, APIKeyID: key.APIKeyID}
	if key.AgentID != nil {
		p.AgentID = *key.AgentID
	}
	return p, nil
}

// ExtractBearer pulls the key out of the Authorization header.
func ExtractBearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", model.ErrUnauthenticated
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", model.ErrUnauthenticated
	}
	return parts[1], nil
}
