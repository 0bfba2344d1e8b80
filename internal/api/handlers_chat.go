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

// ChatHandler serves sessions, messages, receipts, and the SSE stream.
type ChatHandler struct {
	svc *services.ChatService
}

func NewChatHandler(svc *services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type createSessionRequest struct {
	ToAliases   []string        `json:"to_aliases"`
	Body        string          `json:"body"`
	Leaving     bool            `json:"leaving"`
	WaitSeconds *int            `json:"wait_seconds"`
	Signature   model.Signature `json:"signature_fields"`
}

type waitFields struct {
	Status         string `json:"status"`
	Reply          string `json:"reply,omitempty"`
	ReplyFrom      string `json:"reply_from,omitempty"`
	ReplyMessageID string `json:"reply_message_id,omitempty"`
	WaitedSeconds  int    `json:"waited_seconds"`
}

func waitFieldsFrom(w *services.WaitResult) waitFields {
	if w == nil {
		return waitFields{Status: services.WaitStatusSent}
	}
	return waitFields{
		Status:         w.Status,
		Reply:          w.Reply,
		ReplyFrom:      w.ReplyFrom,
		ReplyMessageID: w.ReplyMessageID,
		WaitedSeconds:  w.WaitedSeconds,
	}
}

type createSessionResponse struct {
	SessionID        string   `json:"session_id"`
	MessageID        string   `json:"message_id"`
	Participants     []string `json:"participants"`
	TargetsConnected []string `json:"targets_connected"`
	TargetsLeft      []string `json:"targets_left"`
	waitFields
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.svc.CreateSession(r.Context(), PrincipalFrom(r.Context()), services.CreateSessionRequest{
		ToAliases:   req.ToAliases,
		Body:        req.Body,
		Leaving:     req.Leaving,
		Signature:   req.Signature,
		WaitSeconds: req.WaitSeconds,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out := createSessionResponse{
		SessionID:        res.SessionID,
		MessageID:        res.MessageID,
		Participants:     res.Participants,
		TargetsConnected: res.TargetsConnected,
		TargetsLeft:      res.TargetsLeft,
		waitFields:       waitFieldsFrom(res.Wait),
	}
	if out.TargetsConnected == nil {
		out.TargetsConnected = []string{}
	}
	if out.TargetsLeft == nil {
		out.TargetsLeft = []string{}
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

type sendMessageRequest struct {
	Body        string          `json:"body"`
	HangOn      bool            `json:"hang_on"`
	Leaving     bool            `json:"leaving"`
	WaitSeconds *int            `json:"wait_seconds"`
	Signature   model.Signature `json:"signature_fields"`
}

type sendMessageResponse struct {
	MessageID          string    `json:"message_id"`
	CreatedAt          time.Time `json:"created_at"`
	ExtendsWaitSeconds int       `json:"extends_wait_seconds"`
	waitFields
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.svc.SendMessage(r.Context(), PrincipalFrom(r.Context()), sessionID, services.SendMessageRequest{
		Body:        req.Body,
		HangOn:      req.HangOn,
		Leaving:     req.Leaving,
		Signature:   req.Signature,
		WaitSeconds: req.WaitSeconds,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, sendMessageResponse{
		MessageID:          res.MessageID,
		CreatedAt:          res.CreatedAt,
		ExtendsWaitSeconds: res.ExtendsWaitSeconds,
		waitFields:         waitFieldsFrom(res.Wait),
	})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
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
	msgs, err := h.svc.History(r.Context(), PrincipalFrom(r.Context()), sessionID, unreadOnly, limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type markReadRequest struct {
	UpToMessageID string `json:"up_to_message_id"`
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.svc.MarkRead(r.Context(), PrincipalFrom(r.Context()), sessionID, req.UpToMessageID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"messages_marked":       res.MessagesMarked,
		"wait_extended_seconds": res.WaitExtendedSeconds,
	})
}

func (h *ChatHandler) Pending(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Pending(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if res.Sessions == nil {
		res.Sessions = []*services.PendingSession{}
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListSessions(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if res == nil {
		res = []*services.SessionInfo{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"sessions": res})
}
