package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/model"
)

func TestMailSendAndInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	arrived, cancel := f.bus.Subscribe(events.MailTopic(bob.ProjectID, bob.AgentID))
	defer cancel()

	msg, err := f.mail.Send(ctx, alice, SendMailRequest{
		ToAlias:  "bob",
		Subject:  "deploy",
		Body:     "ship it",
		Priority: model.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.FromAlias != "alice" || msg.ToAgentID != bob.AgentID {
		t.Fatalf("bad routing %+v", msg)
	}

	evt := <-arrived
	if evt.Type != events.TypeMailArrived || evt.MessageID != msg.MessageID {
		t.Fatalf("bad event %+v", evt)
	}

	inbox, err := f.mail.Inbox(ctx, bob, false, 0)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Body != "ship it" {
		t.Fatalf("inbox wrong: %+v", inbox)
	}
	if inbox[0].ReadAt != nil {
		t.Fatal("fresh mail must be unread")
	}

	// the sender's inbox stays empty
	if senderInbox, _ := f.mail.Inbox(ctx, alice, false, 0); len(senderInbox) != 0 {
		t.Fatalf("sender inbox should be empty, got %d", len(senderInbox))
	}
}

func TestMailInboxUnreadFilterAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	first, _ := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob", Body: "one"})
	second, _ := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob", Body: "two"})

	inbox, err := f.mail.Inbox(ctx, bob, false, 0)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 2 || inbox[0].MessageID != second.MessageID {
		t.Fatalf("expected newest first, got %+v", inbox)
	}

	if _, err := f.mail.Ack(ctx, bob, first.MessageID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	unread, err := f.mail.Inbox(ctx, bob, true, 0)
	if err != nil {
		t.Fatalf("unread inbox: %v", err)
	}
	if len(unread) != 1 || unread[0].MessageID != second.MessageID {
		t.Fatalf("unread filter wrong: %+v", unread)
	}
}

func TestMailAckIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	msg, _ := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob", Body: "hi"})

	first, err := f.mail.Ack(ctx, bob, msg.MessageID)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	second, err := f.mail.Ack(ctx, bob, msg.MessageID)
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if !second.Equal(first) {
		t.Fatalf("second ack changed the timestamp: %v vs %v", first, second)
	}
}

func TestMailAckOnlyRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")
	carol := f.register(t, "acme", "charlie")

	msg, _ := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob", Body: "hi"})

	// neither sender nor a third party may ack; both see not-found
	for _, p := range []*auth.Principal{alice, carol} {
		if _, err := f.mail.Ack(ctx, p, msg.MessageID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if _, err := f.mail.Ack(ctx, bob, msg.MessageID); err != nil {
		t.Fatalf("recipient ack: %v", err)
	}
}

func TestMailCrossProjectIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	f.register(t, "acme", "bob")
	outsider := f.register(t, "rival", "bob")

	msg, _ := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob", Body: "secret"})

	if inbox, _ := f.mail.Inbox(ctx, outsider, false, 0); len(inbox) != 0 {
		t.Fatalf("cross-project leak: %+v", inbox)
	}
	if _, err := f.mail.Ack(ctx, outsider, msg.MessageID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-project ack: %v", err)
	}
}

func TestMailSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	f.register(t, "acme", "bob")

	if _, err := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("empty body: %v", err)
	}
	if _, err := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "bob", Body: "x", Priority: "asap"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("bad priority: %v", err)
	}
	if _, err := f.mail.Send(ctx, alice, SendMailRequest{Body: "x"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("missing recipient: %v", err)
	}
	if _, err := f.mail.Send(ctx, alice, SendMailRequest{ToAlias: "ghost", Body: "x"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown recipient: %v", err)
	}
}
