// Package fake provides a scripted in-memory model.Provider for tests.
package fake

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/nstogner/scholarmate/pkg/domain"
	"github.com/nstogner/scholarmate/pkg/model"
)

// Reply scripts the outcome of one SendStream call.
type Reply struct {
	// Fragments are delivered in order by Next.
	Fragments []model.Fragment
	// Err is returned by Next after all fragments were delivered.
	Err error
	// OpenErr makes SendStream itself fail.
	OpenErr error
	// Block, when set, makes every Next wait until it is closed.
	Block <-chan struct{}
}

// Send records one SendStream call.
type Send struct {
	HandleID string
	Text     string
	// History holds the turns the handle had seen before this one.
	History []string
}

// Provider is a scripted model.Provider. Replies are consumed in order; once
// exhausted, a handle answers with what it remembers of its own history.
type Provider struct {
	Replies  []Reply
	StartErr error
	Models   []domain.Model

	mu      sync.Mutex
	next    int
	handles []string
	configs []model.ChatConfig
	sends   []Send
	open    int
	pulls   int
}

var _ model.Provider = (*Provider)(nil)

// Name returns the provider identifier.
func (p *Provider) Name() string { return "fake" }

// List returns the configured models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	return slices.Clone(p.Models), nil
}

// StartChat creates a new handle with its own empty history.
func (p *Provider) StartChat(ctx context.Context, cfg model.ChatConfig) (model.Chat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	id := fmt.Sprintf("handle-%d", len(p.handles)+1)
	p.handles = append(p.handles, id)
	p.configs = append(p.configs, cfg)
	return &chat{provider: p, id: id}, nil
}

// Handles returns the IDs of every handle created so far.
func (p *Provider) Handles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.handles)
}

// Configs returns the ChatConfig each handle was created with.
func (p *Provider) Configs() []model.ChatConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.configs)
}

// Sends returns every recorded SendStream call.
func (p *Provider) Sends() []Send {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sends)
}

// NextCalls returns how many times Next was called across all streams.
func (p *Provider) NextCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pulls
}

// OpenStreams returns the number of streams not yet closed.
func (p *Provider) OpenStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

type chat struct {
	provider *Provider
	id       string

	mu      sync.Mutex
	history []string
}

func (c *chat) SendStream(ctx context.Context, text string) (model.ModelStream, error) {
	c.mu.Lock()
	prior := slices.Clone(c.history)
	c.mu.Unlock()

	p := c.provider
	p.mu.Lock()
	p.sends = append(p.sends, Send{HandleID: c.id, Text: text, History: prior})
	var reply Reply
	if p.next < len(p.Replies) {
		reply = p.Replies[p.next]
		p.next++
	} else {
		reply = recall(prior)
	}
	if reply.OpenErr != nil {
		p.mu.Unlock()
		return nil, reply.OpenErr
	}
	p.open++
	p.mu.Unlock()

	c.mu.Lock()
	c.history = append(c.history, text)
	c.mu.Unlock()

	return &stream{ctx: ctx, provider: p, reply: reply}, nil
}

// recall answers from the handle's own memory, so a test can tell whether
// context leaked across handles.
func recall(prior []string) Reply {
	text := "I don't recall anything yet."
	if len(prior) > 0 {
		text = "You said: " + prior[len(prior)-1]
	}
	return Reply{Fragments: []model.Fragment{{Text: text}}}
}

type stream struct {
	ctx      context.Context
	provider *Provider
	reply    Reply
	pos      int
	closed   bool
}

func (s *stream) Next() (model.Fragment, error) {
	s.provider.mu.Lock()
	s.provider.pulls++
	s.provider.mu.Unlock()

	if s.reply.Block != nil {
		select {
		case <-s.reply.Block:
		case <-s.ctx.Done():
			return model.Fragment{}, s.ctx.Err()
		}
	}
	if err := s.ctx.Err(); err != nil {
		return model.Fragment{}, err
	}
	if s.pos < len(s.reply.Fragments) {
		f := s.reply.Fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.reply.Err != nil {
		return model.Fragment{}, s.reply.Err
	}
	return model.Fragment{}, io.EOF
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.mu.Lock()
	s.provider.open--
	s.provider.mu.Unlock()
	return nil
}
