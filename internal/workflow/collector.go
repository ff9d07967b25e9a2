package workflow

import (
	"errors"
	"sync"
	"time"
)

// ActionKind names a caller interaction with a pending prompt.
type ActionKind string

const (
	// ActionSelect picks an event from a listing prompt.
	ActionSelect ActionKind = "select"
	// ActionConfirm approves a confirmation prompt.
	ActionConfirm ActionKind = "confirm"
	// ActionCancel dismisses either prompt kind.
	ActionCancel ActionKind = "cancel"
	// ActionExport requests a ledger export from a listing prompt.
	ActionExport ActionKind = "export"
)

// Action is one caller interaction delivered to a pending prompt.
type Action struct {
	Kind    ActionKind `json:"kind"`
	EventID int64      `json:"event_id,omitempty"`
}

var (
	// ErrUnknownPrompt means no prompt is waiting under the given token.
	ErrUnknownPrompt = errors.New("no pending prompt for token")
	// ErrForeignActor means the prompt belongs to a different caller.
	ErrForeignActor = errors.New("prompt belongs to another caller")
)

type pendingPrompt struct {
	actorID string
	ch      chan Action
	timer   *time.Timer
}

// Collector routes caller actions to the workflow waiting on them. Each
// registered token accepts exactly one action: the first delivery wins and
// retires the prompt, and the prompt expires on its own after the timeout.
type Collector struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
}

func NewCollector() *Collector {
	return &Collector{pending: make(map[string]*pendingPrompt)}
}

// Register arms a prompt under token, scoped to actorID. The returned channel
// yields the winning action, or closes without a value when the prompt times
// out. Registering an already-armed token replaces the old prompt.
func (c *Collector) Register(token, actorID string, timeout time.Duration) <-chan Action {
	ch := make(chan Action, 1)
	p := &pendingPrompt{actorID: actorID, ch: ch}
	p.timer = time.AfterFunc(timeout, func() {
		c.expire(token, p)
	})

	c.mu.Lock()
	if old, ok := c.pending[token]; ok {
		old.timer.Stop()
		close(old.ch)
	}
	c.pending[token] = p
	c.mu.Unlock()

	return ch
}

// Deliver hands an action to the prompt registered under token. Actions from
// anyone but the registering actor are rejected, and a second action for the
// same prompt finds it already retired.
func (c *Collector) Deliver(token, actorID string, a Action) error {
	c.mu.Lock()
	p, ok := c.pending[token]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownPrompt
	}
	if p.actorID != actorID {
		c.mu.Unlock()
		return ErrForeignActor
	}
	delete(c.pending, token)
	c.mu.Unlock()

	p.timer.Stop()
	p.ch <- a
	close(p.ch)
	return nil
}

// expire retires p if it is still the prompt registered under token.
func (c *Collector) expire(token string, p *pendingPrompt) {
	c.mu.Lock()
	cur, ok := c.pending[token]
	if !ok || cur != p {
		c.mu.Unlock()
		return
	}
	delete(c.pending, token)
	c.mu.Unlock()

	close(p.ch)
}
