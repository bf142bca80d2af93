// Package transcript holds the ordered list of messages shown to the user and
// notifies subscribers when it changes.
package transcript

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nstogner/scholarmate/pkg/domain"
)

// ErrNotFound is returned when a message ID is not in the transcript.
var ErrNotFound = errors.New("message not found")

// Transcript is an in-memory, ordered message list. It is safe for
// concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message
	index    map[string]int

	subMu     sync.RWMutex
	subs      []chan string
	eventChan chan string
	closed    bool
}

// New creates an empty Transcript and starts its notification loop.
// Call Close to stop it.
func New() *Transcript {
	t := &Transcript{
		index:     make(map[string]int),
		eventChan: make(chan string, 100),
	}
	go t.broadcastLoop()
	return t
}

// Append adds a new message with the given role and returns a copy of it.
func (t *Transcript) Append(role domain.Role, content string) domain.Message {
	msg := domain.NewMessage(role, content)

	t.mu.Lock()
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	t.publish(msg.ID)
	return msg.Clone()
}

// Patch appends delta to the content of message id and replaces its
// metadata when metadata is non-empty.
func (t *Transcript) Patch(id, delta string, metadata *domain.GroundingMetadata) error {
	return t.update(id, func(m *domain.Message) {
		m.Apply(delta, metadata)
	})
}

// Fail marks message id as a failed completion.
func (t *Transcript) Fail(id, reason string) error {
	return t.update(id, func(m *domain.Message) {
		m.Fail(reason)
	})
}

func (t *Transcript) update(id string, fn func(*domain.Message)) error {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(&t.messages[i])
	t.mu.Unlock()

	t.publish(id)
	return nil
}

// Get returns a copy of message id.
func (t *Transcript) Get(id string) (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return t.messages[i].Clone(), true
}

// Messages returns a copy of all messages in order.
func (t *Transcript) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Clear removes every message. Subscribers receive an empty ID.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = nil
	t.index = make(map[string]int)
	t.mu.Unlock()

	t.publish("")
}

// Subscribe returns a channel that receives the ID of each changed message,
// or "" when the transcript was cleared. Slow subscribers miss events rather
// than block writers.
func (t *Transcript) Subscribe() <-chan string {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	ch := make(chan string, 64)
	if t.closed {
		close(ch)
		return ch
	}
	t.subs = append(t.subs, ch)
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (t *Transcript) Unsubscribe(ch <-chan string) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for i, sub := range t.subs {
		if sub == ch {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close stops the notification loop and closes every subscriber channel.
func (t *Transcript) Close() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.eventChan)
}

func (t *Transcript) broadcastLoop() {
	for id := range t.eventChan {
		t.subMu.RLock()
		for _, sub := range t.subs {
			// Non-blocking send
			select {
			case sub <- id:
			default:
			}
		}
		t.subMu.RUnlock()
	}

	t.subMu.Lock()
	for _, sub := range t.subs {
		close(sub)
	}
	t.subs = nil
	t.subMu.Unlock()
}

func (t *Transcript) publish(id string) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.eventChan <- id:
	default:
	}
}
