package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/config"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/kv"
	"github.com/aweb-dev/aweb/internal/services"
	"github.com/aweb-dev/aweb/internal/store/memstore"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := memstore.New()
	cfg := config.NewForTesting()
	bus := events.NewBus(0)
	waiters := services.NewWaiterRegistry()
	presence := services.NewPresence(kv.NewMemory(), cfg.HeartbeatTTLSeconds)
	identity := services.NewIdentityService(st, presence)

	router := NewRouter(Deps{
		Auth:         auth.New(st, false, ""),
		Identity:     identity,
		Mail:         services.NewMailService(st, identity, bus),
		Chat:         services.NewChatService(st, identity, presence, bus, waiters, cfg, zerolog.Nop()),
		Reservations: services.NewReservationService(st, cfg),
		Store:        st,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, apiKey string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func initAgent(t *testing.T, srv *httptest.Server, slug, alias string) (apiKey, agentID string) {
	t.Helper()
	resp, out := doJSON(t, "POST", srv.URL+"/v1/init", "", map[string]string{
		"project_slug": slug,
		"alias":        alias,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return out["api_key"].(string), out["agent_id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, out := doJSON(t, "GET", srv.URL+"/v1/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", out["status"])
}

func TestInitAndIntrospect(t *testing.T) {
	srv := newTestServer(t)
	key, agentID := initAgent(t, srv, "acme", "alice")

	resp, out := doJSON(t, "GET", srv.URL+"/v1/auth/introspect", key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "acme", out["project_slug"])
	require.Equal(t, "alice", out["alias"])
	require.Equal(t, agentID, out["agent_id"])
}

func TestAuthRequiredOnProtectedRoutes(t *testing.T) {
	srv := newTestServer(t)
	initAgent(t, srv, "acme", "alice")

	resp, out := doJSON(t, "GET", srv.URL+"/v1/agents", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, out["error"])

	resp, _ = doJSON(t, "GET", srv.URL+"/v1/agents", "awb_bogus-key", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMailFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	aliceKey, _ := initAgent(t, srv, "acme", "alice")
	bobKey, _ := initAgent(t, srv, "acme", "bob")

	resp, sent := doJSON(t, "POST", srv.URL+"/v1/messages", aliceKey, map[string]any{
		"to_alias": "bob",
		"subject":  "status",
		"body":     "all green",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	messageID := sent["message_id"].(string)
	require.NotEmpty(t, messageID)
	require.NotEmpty(t, sent["delivered_at"])

	resp, inbox := doJSON(t, "GET", srv.URL+"/v1/messages/inbox?unread_only=true", bobKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := inbox["messages"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "all green", msgs[0].(map[string]any)["body"])

	// unacked mail shows up on the pending report
	resp, pending := doJSON(t, "GET", srv.URL+"/v1/chat/pending", bobKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), pending["messages_waiting"])

	// only the recipient can ack
	resp, _ = doJSON(t, "POST", srv.URL+"/v1/messages/"+messageID+"/ack", aliceKey, map[string]any{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, acked := doJSON(t, "POST", srv.URL+"/v1/messages/"+messageID+"/ack", bobKey, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := acked["acknowledged_at"].(string)

	// second ack is a no-op returning the original timestamp
	resp, again := doJSON(t, "POST", srv.URL+"/v1/messages/"+messageID+"/ack", bobKey, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, first, again["acknowledged_at"])

	resp, unread := doJSON(t, "GET", srv.URL+"/v1/messages/inbox?unread_only=true", bobKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, unread["messages"])
}

func TestChatFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	aliceKey, _ := initAgent(t, srv, "acme", "alice")
	bobKey, _ := initAgent(t, srv, "acme", "bob")

	resp, created := doJSON(t, "POST", srv.URL+"/v1/chat/sessions", aliceKey, map[string]any{
		"to_aliases":   []string{"bob"},
		"body":         "kickoff",
		"wait_seconds": 0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "sent", created["status"])
	sessionID := created["session_id"].(string)

	// same alias set from the other side reuses the session
	resp, again := doJSON(t, "POST", srv.URL+"/v1/chat/sessions", bobKey, map[string]any{
		"to_aliases":   []string{"alice"},
		"body":         "ack",
		"wait_seconds": 0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, sessionID, again["session_id"])

	resp, history := doJSON(t, "GET", srv.URL+"/v1/chat/sessions/"+sessionID+"/messages", aliceKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := history["messages"].([]any)
	require.Len(t, msgs, 2)

	lastID := msgs[1].(map[string]any)["message_id"].(string)
	resp, marked := doJSON(t, "POST", srv.URL+"/v1/chat/sessions/"+sessionID+"/read", aliceKey, map[string]any{
		"up_to_message_id": lastID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// alice's own receipt already covers her first message
	require.Equal(t, float64(1), marked["messages_marked"])

	resp, pending := doJSON(t, "GET", srv.URL+"/v1/chat/pending", aliceKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, pending["sessions"])
	require.Equal(t, float64(0), pending["messages_waiting"])
}

func TestChatStreamRejectsBadDeadline(t *testing.T) {
	srv := newTestServer(t)
	aliceKey, _ := initAgent(t, srv, "acme", "alice")
	initAgent(t, srv, "acme", "bob")

	resp, created := doJSON(t, "POST", srv.URL+"/v1/chat/sessions", aliceKey, map[string]any{
		"to_aliases":   []string{"bob"},
		"body":         "hi",
		"wait_seconds": 0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := created["session_id"].(string)

	base := srv.URL + "/v1/chat/sessions/" + sessionID + "/stream"
	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)

	for _, url := range []string{
		base,
		base + "?deadline=not-a-time",
		fmt.Sprintf("%s?deadline=%s", base, past),
	} {
		resp, _ := doJSON(t, "GET", url, aliceKey, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, url)
	}
}

func TestReservationConflictOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	aliceKey, aliceID := initAgent(t, srv, "acme", "alice")
	bobKey, _ := initAgent(t, srv, "acme", "bob")

	resp, lease := doJSON(t, "POST", srv.URL+"/v1/reservations", aliceKey, map[string]any{
		"resource_key": "files/main.go",
		"ttl_seconds":  600,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, aliceID, lease["holder_agent_id"])

	resp, conflict := doJSON(t, "POST", srv.URL+"/v1/reservations", bobKey, map[string]any{
		"resource_key": "files/main.go",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "alice", conflict["holder_alias"])
	require.Equal(t, "files/main.go", conflict["resource_key"])
	require.NotEmpty(t, conflict["expires_at"])

	resp, released := doJSON(t, "POST", srv.URL+"/v1/reservations/release", aliceKey, map[string]any{
		"resource_key": "files/main.go",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, released["released"])

	resp, list := doJSON(t, "GET", srv.URL+"/v1/reservations", bobKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, list["reservations"])
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	key, _ := initAgent(t, srv, "acme", "alice")

	// malformed JSON
	req, err := http.NewRequest("POST", srv.URL+"/v1/messages", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+key)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// bad alias on init
	resp2, _ := doJSON(t, "POST", srv.URL+"/v1/init", "", map[string]string{
		"project_slug": "acme",
		"alias":        "team/alice",
	})
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}
