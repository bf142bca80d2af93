package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one turn in the visible transcript.
//
// Role and Timestamp are fixed at construction. Content of a model message
// grows as fragments arrive and is frozen once its exchange resolves.
type Message struct {
	ID        string             `json:"id"`
	Role      Role               `json:"role"`
	Content   string             `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
	IsError   bool               `json:"is_error,omitempty"`
	Error     string             `json:"error,omitempty"`
	Metadata  *GroundingMetadata `json:"grounding_metadata,omitempty"`
}

// NewMessage creates a message with a time-ordered UUIDv7 identifier.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Apply folds one stream fragment into the message: the delta is appended
// and the metadata replaces the current one only when it is non-empty.
func (m *Message) Apply(delta string, metadata *GroundingMetadata) {
	m.Content += delta
	if !metadata.IsEmpty() {
		m.Metadata = metadata.Clone()
	}
}

// Fail marks the message as a failed completion. Partial content is kept.
// Only the first call has an effect.
func (m *Message) Fail(reason string) {
	if m.IsError {
		return
	}
	m.IsError = true
	m.Error = reason
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Metadata = m.Metadata.Clone()
	return m
}

// Model represents an available LLM model.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}
