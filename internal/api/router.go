// Package api wires the /v1 HTTP surface.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aweb-dev/aweb/internal/api/respond"
	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/services"
	"github.com/aweb-dev/aweb/internal/store"
)

// Deps carries everything the router needs.
type Deps struct {
	Auth         auth.Authenticator
	Identity     *services.IdentityService
	Mail         *services.MailService
	Chat         *services.ChatService
	Reservations *services.ReservationService
	Store        store.Store
}

// NewRouter builds the full route table. /v1/init and /v1/health are public;
// everything else sits behind the auth middleware.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(RecoveryMiddleware)

	identity := NewIdentityHandler(d.Identity)
	mail := NewMailHandler(d.Mail)
	chat := NewChatHandler(d.Chat)
	reservations := NewReservationHandler(d.Reservations)

	// public
	router.HandleFunc("/v1/health", healthHandler(d.Store)).Methods("GET")
	router.HandleFunc("/v1/init", identity.Init).Methods("POST")

	authed := router.PathPrefix("/v1").Subrouter()
	authed.Use(AuthMiddleware(d.Auth))

	// identity
	authed.HandleFunc("/auth/introspect", identity.Introspect).Methods("GET")
	authed.HandleFunc("/agents", identity.ListAgents).Methods("GET")
	authed.HandleFunc("/agents/heartbeat", identity.Heartbeat).Methods("POST")
	authed.HandleFunc("/agents/suggest-alias-prefix", identity.SuggestAliasPrefix).Methods("POST")
	authed.HandleFunc("/contacts", identity.AddContact).Methods("POST")
	authed.HandleFunc("/contacts", identity.ListContacts).Methods("GET")
	authed.HandleFunc("/contacts/{contactId}", identity.RemoveContact).Methods("DELETE")

	// mail
	authed.HandleFunc("/messages", mail.Send).Methods("POST")
	authed.HandleFunc("/messages/inbox", mail.Inbox).Methods("GET")
	authed.HandleFunc("/messages/{messageId}/ack", mail.Ack).Methods("POST")

	// chat
	authed.HandleFunc("/chat/sessions", chat.CreateSession).Methods("POST")
	authed.HandleFunc("/chat/sessions", chat.ListSessions).Methods("GET")
	authed.HandleFunc("/chat/pending", chat.Pending).Methods("GET")
	authed.HandleFunc("/chat/sessions/{sessionId}/messages", chat.History).Methods("GET")
	authed.HandleFunc("/chat/sessions/{sessionId}/messages", chat.SendMessage).Methods("POST")
	authed.HandleFunc("/chat/sessions/{sessionId}/read", chat.MarkRead).Methods("POST")
	authed.HandleFunc("/chat/sessions/{sessionId}/stream", chat.Stream).Methods("GET")

	// reservations
	authed.HandleFunc("/reservations", reservations.Acquire).Methods("POST")
	authed.HandleFunc("/reservations", reservations.List).Methods("GET")
	authed.HandleFunc("/reservations/renew", reservations.Renew).Methods("POST")
	authed.HandleFunc("/reservations/release", reservations.Release).Methods("POST")
	authed.HandleFunc("/reservations/revoke", reservations.Revoke).Methods("POST")

	return router
}

func healthHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			respond.WriteError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
