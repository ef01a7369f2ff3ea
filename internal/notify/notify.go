// Package notify is the user-facing notification sink: a bounded, in-memory
// feed of action outcomes the console UI polls. Success entries clear
// themselves after a short interval.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

type Message struct {
	ID     string    `json:"id"`
	Level  Level     `json:"level"`
	Action string    `json:"action,omitempty"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type Sink interface {
	Notify(ctx context.Context, msg Message)
}

// Center is the default Sink. It is lifecycle-scoped: timers it owns are
// cancelled by Stop, never left running process-wide.
type Center struct {
	mu         sync.Mutex
	messages   []Message
	max        int
	clearAfter time.Duration
	timers     map[string]*time.Timer
	stopped    bool
}

func NewCenter(max int, clearAfter time.Duration) *Center {
	if max <= 0 {
		max = 50
	}
	return &Center{
		max:        max,
		clearAfter: clearAfter,
		timers:     make(map[string]*time.Timer),
	}
}

func (c *Center) Notify(_ context.Context, msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	c.messages = append(c.messages, msg)
	if len(c.messages) > c.max {
		c.messages = c.messages[len(c.messages)-c.max:]
	}

	if msg.Level == LevelSuccess && c.clearAfter > 0 {
		id := msg.ID
		c.timers[id] = time.AfterFunc(c.clearAfter, func() { c.dismiss(id) })
	}
}

func (c *Center) dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, id)
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// Dismiss removes a message regardless of level.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.mu.Unlock()
	c.dismiss(id)
}

func (c *Center) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Stop cancels every pending auto-clear timer and rejects further messages.
func (c *Center) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
