package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/config"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/kv"
	"github.com/aweb-dev/aweb/internal/store/memstore"
)

// fixture wires the full service stack over the in-process store.
type fixture struct {
	store    *memstore.Store
	kv       *kv.Memory
	bus      *events.Bus
	waiters  *WaiterRegistry
	presence *Presence
	identity *IdentityService
	mail     *MailService
	chat     *ChatService
	resv     *ReservationService
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	mem := kv.NewMemory()
	cfg := config.NewForTesting()
	bus := events.NewBus(0)
	waiters := NewWaiterRegistry()
	presence := NewPresence(mem, cfg.HeartbeatTTLSeconds)
	identity := NewIdentityService(st, presence)
	return &fixture{
		store:    st,
		kv:       mem,
		bus:      bus,
		waiters:  waiters,
		presence: presence,
		identity: identity,
		mail:     NewMailService(st, identity, bus),
		chat:     NewChatService(st, identity, presence, bus, waiters, cfg, zerolog.Nop()),
		resv:     NewReservationService(st, cfg),
		cfg:      cfg,
	}
}

// register bootstraps an agent in the given project and returns its
// principal.
func (f *fixture) register(t *testing.T, slug, alias string) *auth.Principal {
	t.Helper()
	res, err := f.identity.Init(context.Background(), slug, alias, "", "", "")
	if err != nil {
		t.Fatalf("init %s/%s: %v", slug, alias, err)
	}
	return &auth.Principal{ProjectID: res.Project.ProjectID, AgentID: res.Agent.AgentID}
}
