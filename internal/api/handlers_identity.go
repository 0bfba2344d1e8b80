package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aweb-dev/aweb/internal/api/respond"
	"github.com/aweb-dev/aweb/internal/services"
)

// IdentityHandler serves bootstrap, introspection, agents, and contacts.
type IdentityHandler struct {
	svc *services.IdentityService
}

func NewIdentityHandler(svc *services.IdentityService) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

type initRequest struct {
	ProjectSlug string `json:"project_slug"`
	Alias       string `json:"alias"`
	HumanName   string `json:"human_name"`
	AgentType   string `json:"agent_type"`
	AccessMode  string `json:"access_mode"`
}

type initResponse struct {
	ProjectID   string `json:"project_id"`
	ProjectSlug string `json:"project_slug"`
	AgentID     string `json:"agent_id"`
	Alias       string `json:"alias"`
	APIKey      string `json:"api_key"`
	Created     bool   `json:"created"`
}

// Init bootstraps a project, agent, and key. Unauthenticated; the plaintext
// key appears in this response only.
func (h *IdentityHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.svc.Init(r.Context(), req.ProjectSlug, req.Alias, req.HumanName, req.AgentType, req.AccessMode)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, initResponse{
		ProjectID:   res.Project.ProjectID,
		ProjectSlug: res.Project.Slug,
		AgentID:     res.Agent.AgentID,
		Alias:       res.Agent.Alias,
		APIKey:      res.APIKey,
		Created:     res.Created,
	})
}

func (h *IdentityHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Introspect(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *IdentityHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.ListAgents(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *IdentityHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Heartbeat(r.Context(), PrincipalFrom(r.Context())); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"heartbeat": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *IdentityHandler) SuggestAliasPrefix(w http.ResponseWriter, r *http.Request) {
	prefix, err := h.svc.SuggestAliasPrefix(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"alias_prefix": prefix})
}

type addContactRequest struct {
	ContactAddress string `json:"contact_address"`
	Label          string `json:"label"`
}

func (h *IdentityHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	contact, err := h.svc.AddContact(r.Context(), PrincipalFrom(r.Context()), req.ContactAddress, req.Label)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, contact)
}

func (h *IdentityHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.svc.ListContacts(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

func (h *IdentityHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	contactID := mux.Vars(r)["contactId"]
	if err := h.svc.RemoveContact(r.Context(), PrincipalFrom(r.Context()), contactID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
