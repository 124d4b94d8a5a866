// Package watch is the in-process subscription hub. Services publish an
// update whenever they mutate a record; connected clients hold one
// subscription per topic, so a client never feeds its own refresh back
// to itself.
package watch

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topic names one observable document or channel.
type Topic string

const (
	// GlobalNotifications carries notifications addressed to everyone.
	GlobalNotifications Topic = "notifications:global"
	// Settings carries system-settings changes.
	Settings Topic = "settings"
)

// ProfileTopic is the per-user profile document channel.
func ProfileTopic(userID string) Topic { return Topic("profile:" + userID) }

// NotificationsTopic is the per-user notification channel.
func NotificationsTopic(userID string) Topic { return Topic("notifications:" + userID) }

// Update is one published change.
type Update struct {
	Topic Topic     `json:"topic"`
	Kind  string    `json:"kind"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

// subscriberBuffer bounds how far behind a slow consumer may fall before
// updates are dropped. Dropping is safe: every update carries full state or
// is re-readable, so a consumer that misses one catches up on the next.
const subscriberBuffer = 16

type subscriber struct {
	ch     chan Update
	topics map[Topic]bool
}

// Hub fans published updates out to subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
	log  *zap.Logger
}

// NewHub constructs an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{subs: make(map[int]*subscriber), log: log}
}

// Subscribe registers interest in the given topics and returns the update
// channel plus a cancel function. Cancel closes the channel.
func (h *Hub) Subscribe(topics ...Topic) (<-chan Update, func()) {
	sub := &subscriber{
		ch:     make(chan Update, subscriberBuffer),
		topics: make(map[Topic]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers an update to every subscriber of its topic without
// blocking. A full subscriber buffer drops the update.
func (h *Hub) Publish(u Update) {
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.topics[u.Topic] {
			continue
		}
		select {
		case sub.ch <- u:
		default:
			h.log.Warn("dropping update for slow subscriber",
				zap.String("topic", string(u.Topic)),
				zap.String("kind", u.Kind))
		}
	}
}
