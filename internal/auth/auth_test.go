package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store/memstore"
)

func TestGenerateKeyFormat(t *testing.T) {
	plaintext, hash, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(plaintext, KeyPrefix) {
		t.Fatalf("key %q missing prefix", plaintext)
	}
	if len(hash) != 64 {
		t.Fatalf("hash length %d, want 64 hex chars", len(hash))
	}
	if HashKey(plaintext) != hash {
		t.Fatal("hash does not match plaintext digest")
	}

	// two keys must not collide
	second, _, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if second == plaintext {
		t.Fatal("generated identical keys")
	}
}

func seedKey(t *testing.T, st *memstore.Store) (plaintext string, projectID, agentID string) {
	t.Helper()
	ctx := context.Background()
	project, _, err := st.Projects().EnsureBySlug(ctx, "acme", "acme")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	agent, err := st.Agents().Create(ctx, &model.Agent{
		ProjectID:  project.ProjectID,
		Alias:      "alice",
		AccessMode: model.AccessModeOpen,
	})
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	plaintext, hash, err := GenerateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	id := agent.AgentID
	if _, err := st.APIKeys().Create(ctx, &model.APIKey{
		ProjectID: project.ProjectID,
		AgentID:   &id,
		KeyHash:   hash,
	}); err != nil {
		t.Fatalf("api key: %v", err)
	}
	return plaintext, project.ProjectID, agent.AgentID
}

func TestBearerAuthenticate(t *testing.T) {
	st := memstore.New()
	plaintext, projectID, agentID := seedKey(t, st)
	a := New(st, false, "")

	r := httptest.NewRequest("GET", "/v1/agents", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)
	p, err := a.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.ProjectID != projectID || p.AgentID != agentID {
		t.Fatalf("wrong principal %+v", p)
	}
	if !p.Agent() {
		t.Fatal("expected agent-bound principal")
	}
}

func TestBearerRejectsUnknownKey(t *testing.T) {
	st := memstore.New()
	seedKey(t, st)
	a := New(st, false, "")

	for _, header := range []string{
		"",
		"Bearer",
		"Bearer awb_not-a-real-key",
		"Basic dXNlcjpwYXNz",
	} {
		r := httptest.NewRequest("GET", "/v1/agents", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, model.ErrUnauthenticated) {
			t.Fatalf("header %q: expected ErrUnauthenticated, got %v", header, err)
		}
	}
}

func TestProxyContextRoundtrip(t *testing.T) {
	secret := "internal-secret"
	a := New(nil, true, secret)

	r := httptest.NewRequest("GET", "/v1/agents", nil)
	r.Header.Set(ContextHeader, SignContext([]byte(secret), "p1", PrincipalTypeAgent, "a1", ""))
	p, err := a.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.ProjectID != "p1" || p.AgentID != "a1" {
		t.Fatalf("wrong principal %+v", p)
	}
}

func TestProxyActorOverridesPrincipal(t *testing.T) {
	secret := "internal-secret"
	a := New(nil, true, secret)

	r := httptest.NewRequest("GET", "/v1/agents", nil)
	r.Header.Set(ContextHeader, SignContext([]byte(secret), "p1", PrincipalTypeAgent, "svc", "a9"))
	p, err := a.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.AgentID != "a9" {
		t.Fatalf("actor not applied: %+v", p)
	}
}

func TestProxyProjectScope(t *testing.T) {
	secret := "internal-secret"
	a := New(nil, true, secret)

	r := httptest.NewRequest("GET", "/v1/agents", nil)
	r.Header.Set(ContextHeader, SignContext([]byte(secret), "p1", PrincipalTypeProject, "p1", ""))
	p, err := a.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Agent() {
		t.Fatalf("project principal must not be agent-bound: %+v", p)
	}
}

func TestProxyRejectsTamperedContext(t *testing.T) {
	secret := "internal-secret"
	a := New(nil, true, secret)

	signed := SignContext([]byte(secret), "p1", PrincipalTypeAgent, "a1", "")
	tampered := strings.Replace(signed, ":a1:", ":a2:", 1)

	r := httptest.NewRequest("GET", "/v1/agents", nil)
	r.Header.Set(ContextHeader, tampered)
	if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestProxyIgnoresBearerFallback(t *testing.T) {
	st := memstore.New()
	plaintext, _, _ := seedKey(t, st)
	a := New(st, true, "internal-secret")

	// valid Bearer key but no signed context: terminal failure
	r := httptest.NewRequest("GET", "/v1/agents", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)
	if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestProxyRejectsWrongSecretAndShape(t *testing.T) {
	a := New(nil, true, "right-secret")

	for _, raw := range []string{
		SignContext([]byte("wrong-secret"), "p1", PrincipalTypeAgent, "a1", ""),
		SignContext([]byte("right-secret"), "p1", "superuser", "a1", ""),
		"v1:p1:agent:a1::deadbeef",
		"v2:p1:agent:a1",
	} {
		r := httptest.NewRequest("GET", "/v1/agents", nil)
		r.Header.Set(ContextHeader, raw)
		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, model.ErrUnauthenticated) {
			t.Fatalf("context %q: expected ErrUnauthenticated, got %v", raw, err)
		}
	}
}
