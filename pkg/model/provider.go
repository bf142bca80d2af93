package model

import (
	"context"

	"github.com/nstogner/scholarmate/pkg/domain"
)

// Tool identifies a built-in capability the remote model may use while answering.
type Tool string

const (
	// ToolGoogleSearch lets the model ground answers in web search results.
	ToolGoogleSearch Tool = "google_search"
)

// ChatConfig binds a chat session to a persona and a toolset at creation time.
type ChatConfig struct {
	// Model identifies which model to use (e.g. "gemini-2.5-flash").
	Model string
	// Instructions is the system prompt (persona).
	Instructions string
	// Tools is the fixed toolset available to the model.
	Tools []Tool
}

// Fragment is one partial response received from a streaming exchange.
type Fragment struct {
	// Text is the delta produced since the previous fragment. May be empty.
	Text string
	// Metadata holds citations attached to this fragment, or nil.
	Metadata *domain.GroundingMetadata
}

// Provider represents a service that provides LLMs (e.g. Gemini).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// StartChat establishes a new conversation context bound to cfg.
	// The returned Chat remembers prior turns sent through it.
	StartChat(ctx context.Context, cfg ChatConfig) (Chat, error)
}

// Chat is an established conversation context with the remote model.
type Chat interface {
	// SendStream submits text as the next user turn and opens a response stream.
	SendStream(ctx context.Context, text string) (ModelStream, error)
}

// ModelStream abstracts the stream of responses from the model.
type ModelStream interface {
	// Next blocks until the next fragment is available. It returns io.EOF
	// once the remote side signals completion.
	Next() (Fragment, error)

	// Close releases resources associated with this stream.
	Close() error
}
