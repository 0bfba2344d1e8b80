package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
)

func TestMessageTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	s := New()
	// frozen clock: ordering must still be total
	frozen := time.Now()
	s.SetClock(func() time.Time { return frozen })

	sess, err := s.Chat().EnsureSession(ctx, "p1", "hash", []model.ChatParticipant{
		{AgentID: "a1", Alias: "alice"},
		{AgentID: "a2", Alias: "bob"},
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	var prev time.Time
	for i := 0; i < 5; i++ {
		msg, err := s.Chat().AppendMessage(ctx, &model.ChatMessage{
			SessionID:   sess.SessionID,
			FromAgentID: "a1",
			FromAlias:   "alice",
			Body:        "x",
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if !msg.CreatedAt.After(prev) {
			t.Fatalf("message %d not after previous: %v <= %v", i, msg.CreatedAt, prev)
		}
		prev = msg.CreatedAt
	}
}

func TestEnsureSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	parts := []model.ChatParticipant{
		{AgentID: "a1", Alias: "alice"},
		{AgentID: "a2", Alias: "bob"},
	}

	first, err := s.Chat().EnsureSession(ctx, "p1", "hash", parts)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := s.Chat().EnsureSession(ctx, "p1", "hash", parts)
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatal("hash hit must reuse the session")
	}

	got, err := s.Chat().Participants(ctx, first.SessionID)
	if err != nil || len(got) != 2 {
		t.Fatalf("participants duplicated: %v (%d)", err, len(got))
	}

	// a different project with the same hash is a separate session
	other, err := s.Chat().EnsureSession(ctx, "p2", "hash", parts)
	if err != nil {
		t.Fatalf("other project: %v", err)
	}
	if other.SessionID == first.SessionID {
		t.Fatal("sessions must be project-scoped")
	}
}

func TestAgentAliasUniquePerProject(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Agents().Create(ctx, &model.Agent{ProjectID: "p1", Alias: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Agents().Create(ctx, &model.Agent{ProjectID: "p1", Alias: "alice"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate alias: %v", err)
	}
	// same alias in another project is fine
	if _, err := s.Agents().Create(ctx, &model.Agent{ProjectID: "p2", Alias: "alice"}); err != nil {
		t.Fatalf("cross-project alias: %v", err)
	}
}

func TestAdvanceReceiptStoresTargetTime(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess, _ := s.Chat().EnsureSession(ctx, "p1", "hash", []model.ChatParticipant{
		{AgentID: "a1", Alias: "alice"},
		{AgentID: "a2", Alias: "bob"},
	})

	first, _ := s.Chat().AppendMessage(ctx, &model.ChatMessage{SessionID: sess.SessionID, FromAgentID: "a1", Body: "one"})
	second, _ := s.Chat().AppendMessage(ctx, &model.ChatMessage{SessionID: sess.SessionID, FromAgentID: "a1", Body: "two"})

	marked, advanced, err := s.Chat().AdvanceReceipt(ctx, sess.SessionID, "a2", second.MessageID, time.Now())
	if err != nil || !advanced || marked != 2 {
		t.Fatalf("advance: %v advanced=%v marked=%d", err, advanced, marked)
	}

	r, err := s.Chat().Receipt(ctx, sess.SessionID, "a2")
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if r.LastReadAt == nil || !r.LastReadAt.Equal(second.CreatedAt) {
		t.Fatalf("receipt time must be the message time, got %v", r.LastReadAt)
	}

	// rollback attempt
	marked, advanced, err = s.Chat().AdvanceReceipt(ctx, sess.SessionID, "a2", first.MessageID, time.Now())
	if err != nil || advanced || marked != 0 {
		t.Fatalf("rollback must be a no-op: %v advanced=%v marked=%d", err, advanced, marked)
	}

	if _, _, err := s.Chat().AdvanceReceipt(ctx, sess.SessionID, "a2", "ghost", time.Now()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown target: %v", err)
	}
}
