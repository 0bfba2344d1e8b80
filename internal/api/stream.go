package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aweb-dev/aweb/internal/api/respond"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/model"
)

const streamKeepaliveInterval = 15 * time.Second

// Stream serves the session event feed as SSE. The deadline query parameter
// is required and must be in the future; the server closes the stream at the
// deadline, on client disconnect, or on write failure.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	rawDeadline := r.URL.Query().Get("deadline")
	if rawDeadline == "" {
		respond.WriteBadRequest(w, "deadline query parameter is required")
		return
	}
	deadline, err := time.Parse(time.RFC3339, rawDeadline)
	if err != nil {
		respond.WriteBadRequest(w, "deadline must be RFC3339")
		return
	}
	if !deadline.After(time.Now()) {
		respond.WriteBadRequest(w, "deadline must be in the future")
		return
	}

	var after *time.Time
	if rawAfter := r.URL.Query().Get("after"); rawAfter != "" {
		t, err := time.Parse(time.RFC3339, rawAfter)
		if err != nil {
			respond.WriteBadRequest(w, "after must be RFC3339")
			return
		}
		after = &t
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	p := PrincipalFrom(r.Context())
	ch, cancel, replay, err := h.svc.OpenStream(r.Context(), p, sessionID, after)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for _, msg := range replay {
		if err := writeFrame(w, flusher, replayEvent(sessionID, msg)); err != nil {
			return
		}
	}

	deadlineTimer := time.NewTimer(time.Until(deadline))
	defer deadlineTimer.Stop()
	keepalive := time.NewTicker(streamKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-deadlineTimer.C:
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			h.svc.RefreshStream(r.Context(), sessionID, p.AgentID)
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(w, flusher, evt); err != nil {
				return
			}
		}
	}
}

// writeFrame emits one "event:"/"data:" SSE record.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func replayEvent(sessionID string, msg *model.ChatMessage) events.Event {
	return events.Event{
		Type:          events.TypeMessage,
		SessionID:     sessionID,
		MessageID:     msg.MessageID,
		FromAgentID:   msg.FromAgentID,
		FromAlias:     msg.FromAlias,
		Body:          msg.Body,
		SenderLeaving: msg.SenderLeaving,
		HangOn:        msg.HangOn,
		Timestamp:     msg.CreatedAt,
	}
}
