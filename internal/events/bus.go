// Package events carries chat and mail events from committed writes to
// stream subscribers and waiters. Delivery is in-process; per-topic publish
// order is preserved on every subscriber channel.
package events

import (
	"sync"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
)

type Type string

const (
	TypeMessage     Type = "message"
	TypeReadReceipt Type = "read_receipt"
	TypeMailArrived Type = "mail_arrived"
)

// Event is published exactly once per committed chat or mail write.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// message fields
	FromAgentID        string          `json:"-"`
	FromAlias          string          `json:"from_agent,omitempty"`
	Body               string          `json:"body,omitempty"`
	SenderLeaving      bool            `json:"sender_leaving,omitempty"`
	HangOn             bool            `json:"hang_on,omitempty"`
	ExtendsWaitSeconds int             `json:"extends_wait_seconds,omitempty"`
	Signature          model.Signature `json:"-"`

	// read_receipt fields
	ReaderAgentID string `json:"-"`
	ReaderAlias   string `json:"reader_alias,omitempty"`
	UpToMessageID string `json:"up_to_message_id,omitempty"`

	// mail_arrived fields
	ProjectID string `json:"project_id,omitempty"`
	ToAgentID string `json:"to_agent_id,omitempty"`
}

// ChatTopic keys chat events by session.
func ChatTopic(sessionID string) string { return "chat:" + sessionID }

// MailTopic keys mail-arrived events by recipient.
func MailTopic(projectID, agentID string) string { return "mail:" + projectID + ":" + agentID }

type subscriber struct {
	id int
	ch chan Event
}

// Bus is an in-process topic-keyed pub/sub. Publish never blocks: a
// subscriber whose buffer is full loses the event rather than stalling the
// committing writer. Events that are delivered arrive in publish order.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]subscriber
	nextID int
	buffer int
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{topics: make(map[string][]subscriber), buffer: buffer}
}

// Subscribe registers for a topic. The returned cancel func must be called
// to release the subscription; it closes the channel.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := subscriber{id: b.nextID, ch: make(chan Event, b.buffer)}
	b.topics[topic] = append(b.topics[topic], sub)

	id := sub.id
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.topics[topic]
		for i, s := range subs {
			if s.id == id {
				b.topics[topic] = append(subs[:i], subs[i+1:]...)
				close(s.ch)
				break
			}
		}
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}
	return sub.ch, cancel
}

// Publish fans evt out to every subscriber of topic.
func (b *Bus) Publish(topic string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.topics[topic] {
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports the current subscribers of a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
