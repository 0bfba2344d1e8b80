package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/aweb-dev/aweb/internal/api/respond"
	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/services"
)

// MailHandler serves the durable point-to-point message endpoints.
type MailHandler struct {
	svc *services.MailService
}

func NewMailHandler(svc *services.MailService) *MailHandler {
	return &MailHandler{svc: svc}
}

type sendMailRequest struct {
	ToAgentID string          `json:"to_agent_id"`
	ToAlias   string          `json:"to_alias"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	Priority  string          `json:"priority"`
	ThreadID  *string         `json:"thread_id"`
	Signature model.Signature `json:"signature_fields"`
}

func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	msg, err := h.svc.Send(r.Context(), PrincipalFrom(r.Context()), services.SendMailRequest{
		ToAgentID: req.ToAgentID,
		ToAlias:   req.ToAlias,
		Subject:   req.Subject,
		Body:      req.Body,
		Priority:  req.Priority,
		ThreadID:  req.ThreadID,
		Signature: req.Signature,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]any{
		"message_id":   msg.MessageID,
		"delivered_at": msg.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *MailHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := h.svc.Inbox(r.Context(), PrincipalFrom(r.Context()), unreadOnly, limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*model.MailMessage{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *MailHandler) Ack(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["messageId"]
	at, err := h.svc.Ack(r.Context(), PrincipalFrom(r.Context()), messageID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{
		"acknowledged_at": at.UTC().Format(time.RFC3339),
	})
}
