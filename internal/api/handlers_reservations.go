package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aweb-dev/aweb/internal/api/respond"
	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/services"
)

// ReservationHandler serves the lease endpoints.
type ReservationHandler struct {
	svc *services.ReservationService
}

func NewReservationHandler(svc *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{svc: svc}
}

type acquireRequest struct {
	ResourceKey string         `json:"resource_key"`
	TTLSeconds  int            `json:"ttl_seconds"`
	Metadata    map[string]any `json:"metadata"`
}

func (h *ReservationHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.svc.Acquire(r.Context(), PrincipalFrom(r.Context()), req.ResourceKey, req.TTLSeconds, req.Metadata)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, res)
}

type renewRequest struct {
	ResourceKey string `json:"resource_key"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

func (h *ReservationHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	expiresAt, err := h.svc.Renew(r.Context(), PrincipalFrom(r.Context()), req.ResourceKey, req.TTLSeconds)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

type releaseRequest struct {
	ResourceKey string `json:"resource_key"`
}

func (h *ReservationHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	released, err := h.svc.Release(r.Context(), PrincipalFrom(r.Context()), req.ResourceKey)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]bool{"released": released})
}

type revokeRequest struct {
	Prefix string `json:"prefix"`
}

func (h *ReservationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	n, err := h.svc.Revoke(r.Context(), PrincipalFrom(r.Context()), req.Prefix)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	res, err := h.svc.List(r.Context(), PrincipalFrom(r.Context()), prefix)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if res == nil {
		res = []*model.Reservation{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"reservations": res})
}
