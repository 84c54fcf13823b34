// Package pubsub fans workspace change events out to live subscribers.
package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/lucsky/cuid"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/workspace"
)

// Topic names the kind of change an Event carries.
type Topic string

const (
	TopicWorkspaceUpdated Topic = "WORKSPACE_UPDATED"
	TopicRecentProfiles   Topic = "RECENT_PROFILES_UPDATED"
	TopicSettingsUpdated  Topic = "SETTINGS_UPDATED"
)

// Topics lists every topic in stream order.
var Topics = []Topic{TopicWorkspaceUpdated, TopicRecentProfiles, TopicSettingsUpdated}

// Event is one change notification. The payload field matching Type is set.
type Event struct {
	Seq       uint64                `json:"seq"`
	Type      Topic                 `json:"type"`
	Workspace *workspace.State      `json:"workspace,omitempty"`
	Recent    *models.RecentProfile `json:"recent,omitempty"`
	Settings  *Settings             `json:"settings,omitempty"`
}

// Settings is the payload of TopicSettingsUpdated.
type Settings struct {
	LockSource bool `json:"lockSource"`
}

// Subscriber receives the events of the topics it asked for on C.
type Subscriber struct {
	ID string
	C  chan Event

	topics  map[Topic]bool
	dropped atomic.Uint64
}

// Wants reports whether the subscriber listens to topic.
func (s *Subscriber) Wants(topic Topic) bool { return s.topics[topic] }

// Dropped counts events skipped because C was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Hub manages subscriptions and event distribution. Sends never block: a
// subscriber that falls behind loses events instead of stalling the engine.
type Hub struct {
	mu          sync.RWMutex
	seq         atomic.Uint64
	subscribers map[string]*Subscriber
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subscribers: make(map[string]*Subscriber)}
}

// Subscribe registers a subscriber for topics, or for every topic when none
// are given.
func (h *Hub) Subscribe(bufferSize int, topics ...Topic) *Subscriber {
	if len(topics) == 0 {
		topics = Topics
	}
	sub := &Subscriber{
		ID:     cuid.New(),
		C:      make(chan Event, bufferSize),
		topics: make(map[Topic]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Unknown subscribers are
// ignored.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	delete(h.subscribers, sub.ID)
	close(sub.C)
}

// PublishWorkspace announces a new workspace state.
func (h *Hub) PublishWorkspace(state *workspace.State) {
	h.publish(Event{Type: TopicWorkspaceUpdated, Workspace: state})
}

// PublishRecent announces a container that was loaded or saved.
func (h *Hub) PublishRecent(recent *models.RecentProfile) {
	h.publish(Event{Type: TopicRecentProfiles, Recent: recent})
}

// PublishSettings announces changed session preferences.
func (h *Hub) PublishSettings(settings Settings) {
	h.publish(Event{Type: TopicSettingsUpdated, Settings: &settings})
}

func (h *Hub) publish(ev Event) {
	// Holding the read lock keeps Unsubscribe from closing a channel
	// underneath a send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	ev.Seq = h.seq.Add(1)
	for _, sub := range h.subscribers {
		if !sub.topics[ev.Type] {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of subscribers listening to topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subscribers {
		if sub.topics[topic] {
			n++
		}
	}
	return n
}
