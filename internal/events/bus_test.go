package events

import "testing"

func TestPublishOrder(t *testing.T) {
	b := NewBus(8)
	ch, cancel := b.Subscribe(ChatTopic("s1"))
	defer cancel()

	for i := 0; i < 3; i++ {
		b.Publish(ChatTopic("s1"), Event{Type: TypeMessage, MessageID: string(rune('a' + i))})
	}
	for i := 0; i < 3; i++ {
		evt := <-ch
		if evt.MessageID != string(rune('a'+i)) {
			t.Fatalf("event %d out of order: %q", i, evt.MessageID)
		}
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	b := NewBus(1)
	ch, cancel := b.Subscribe(ChatTopic("s1"))
	defer cancel()

	b.Publish(ChatTopic("s2"), Event{Type: TypeMessage, MessageID: "other"})
	select {
	case evt := <-ch:
		t.Fatalf("received foreign event %v", evt)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBus(1)
	ch, cancel := b.Subscribe("t")
	if got := b.SubscriberCount("t"); got != 1 {
		t.Fatalf("count = %d", got)
	}
	cancel()
	if got := b.SubscriberCount("t"); got != 0 {
		t.Fatalf("count after cancel = %d", got)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBus(1)
	ch, cancel := b.Subscribe("t")
	defer cancel()

	// second publish overflows the buffer and must be dropped, not block
	b.Publish("t", Event{MessageID: "1"})
	b.Publish("t", Event{MessageID: "2"})

	evt := <-ch
	if evt.MessageID != "1" {
		t.Fatalf("got %q", evt.MessageID)
	}
	select {
	case evt := <-ch:
		t.Fatalf("expected overflow drop, got %q", evt.MessageID)
	default:
	}
}
