package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/aweb-dev/aweb/internal/model"
)

// ContextHeader carries the signed auth context injected by a trusted
// front proxy.
const ContextHeader = "X-Aweb-Auth"

const contextVersion = "v2"

// Principal types accepted in a proxy context.
const (
	PrincipalTypeAgent   = "agent"
	PrincipalTypeProject = "project"
)

// SignContext produces the header value
// "v2:<project>:<type>:<id>:<actor>:<sig>" where sig is HMAC-SHA256 of the
// preceding fields under the shared internal secret.
func SignContext(secret []byte, projectID, principalType, principalID, actor string) string {
	payload := strings.Join([]string{contextVersion, projectID, principalType, principalID, actor}, ":")
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return payload + ":" + hex.EncodeToString(mac.Sum(nil))
}

type proxyAuthenticator struct {
	secret []byte
}

// Authenticate validates the signed context. Any malformed or unsigned
// context fails terminally; a Bearer header on the same request is ignored.
func (p *proxyAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Principal, error) {
	raw := r.Header.Get(ContextHeader)
	if raw == "" {
		return nil, model.ErrUnauthenticated
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 6 || parts[0] != contextVersion {
		return nil, model.ErrUnauthenticated
	}
	projectID, principalType, principalID, actor, sig := parts[1], parts[2], parts[3], parts[4], parts[5]

	payload := strings.Join(parts[:5], ":")
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(payload))
	want, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(mac.Sum(nil), want) {
		return nil, model.ErrUnauthenticated
	}

	switch principalType {
	case PrincipalTypeAgent:
		agentID := principalID
		if actor != "" {
			agentID = actor
		}
		return &Principal{ProjectID: projectID, AgentID: agentID}, nil
	case PrincipalTypeProject:
		return &Principal{ProjectID: projectID}, nil
	default:
		return nil, model.ErrUnauthenticated
	}
}
