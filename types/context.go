package types

import (
	"sync"
	"time"
)

// DefaultIntentWindow bounds how many recent intents a conversation context
// retains.
const DefaultIntentWindow = 10

// ConversationContext carries per-session working state: the current topic,
// the task in flight, a bounded window of recent intents, and whether the
// agent is waiting on a confirmation. It lives and dies with the session and
// is never persisted to the long-term store.
type ConversationContext struct {
	mu sync.RWMutex

	SessionID           string    `json:"session_id"`
	Topic               string    `json:"topic,omitempty"`
	CurrentTask         string    `json:"current_task,omitempty"`
	RecentIntents       []string  `json:"recent_intents,omitempty"`
	PendingConfirmation bool      `json:"pending_confirmation"`
	UpdatedAt           time.Time `json:"updated_at"`

	intentWindow int
}

// NewConversationContext creates a context for one session.
func NewConversationContext(sessionID string) *ConversationContext {
	return &ConversationContext{
		SessionID:    sessionID,
		UpdatedAt:    time.Now(),
		intentWindow: DefaultIntentWindow,
	}
}

// SetTopic replaces the current topic.
func (c *ConversationContext) SetTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Topic = topic
	c.UpdatedAt = time.Now()
}

// SetTask replaces the task in flight.
func (c *ConversationContext) SetTask(task string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTask = task
	c.UpdatedAt = time.Now()
}

// PushIntent appends an intent, evicting the oldest when the window is full.
func (c *ConversationContext) PushIntent(intent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	window := c.intentWindow
	if window <= 0 {
		window = DefaultIntentWindow
	}
	c.RecentIntents = append(c.RecentIntents, intent)
	if len(c.RecentIntents) > window {
		c.RecentIntents = c.RecentIntents[len(c.RecentIntents)-window:]
	}
	c.UpdatedAt = time.Now()
}

// Intents returns a copy of the recent-intent window, oldest first.
func (c *ConversationContext) Intents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.RecentIntents...)
}

// SetPending marks or clears the pending-confirmation flag.
func (c *ConversationContext) SetPending(pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PendingConfirmation = pending
	c.UpdatedAt = time.Now()
}

// Snapshot returns a copy safe to serialize without holding the lock.
func (c *ConversationContext) Snapshot() ConversationContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConversationContext{
		SessionID:           c.SessionID,
		Topic:               c.Topic,
		CurrentTask:         c.CurrentTask,
		RecentIntents:       append([]string(nil), c.RecentIntents...),
		PendingConfirmation: c.PendingConfirmation,
		UpdatedAt:           c.UpdatedAt,
	}
}
