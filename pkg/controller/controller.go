// Package controller drives chat exchanges for the front-ends. It owns the
// ordering of transcript updates around each streamed reply.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nstogner/scholarmate/pkg/chat"
	"github.com/nstogner/scholarmate/pkg/domain"
	"github.com/nstogner/scholarmate/pkg/transcript"
)

// FailureReply is recorded on a model message whose exchange failed.
const FailureReply = "Sorry, I encountered an error processing your request. Please try again."

// ErrEmptyMessage is returned by Submit for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Controller runs one exchange at a time against the current session and
// mirrors its progress into the transcript.
type Controller struct {
	sessions   *chat.SessionManager
	streamer   *chat.Streamer
	transcript *transcript.Transcript

	busy atomic.Bool
}

// New creates a new Controller.
func New(
	sessions *chat.SessionManager,
	streamer *chat.Streamer,
	transcript *transcript.Transcript,
) *Controller {
	return &Controller{
		sessions:   sessions,
		streamer:   streamer,
		transcript: transcript,
	}
}

// Start binds the first session. A failure is logged and left for the first
// Submit to retry.
func (c *Controller) Start(ctx context.Context) {
	c.sessions.Initialize(ctx)
}

// Transcript returns the transcript the controller writes to.
func (c *Controller) Transcript() *transcript.Transcript {
	return c.transcript
}

// Busy reports whether an exchange is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load() || c.streamer.Busy()
}

// Submit appends text as a user message followed by an empty model message,
// then streams the reply into the model message. It returns the final state
// of the model message.
//
// When the exchange fails the model message is marked errored with
// FailureReply and the error is returned alongside it.
func (c *Controller) Submit(ctx context.Context, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if !c.busy.CompareAndSwap(false, true) {
		return domain.Message{}, chat.ErrBusy
	}
	defer c.busy.Store(false)

	c.transcript.Append(domain.RoleUser, text)
	reply := c.transcript.Append(domain.RoleModel, "")

	err := c.streamer.SendAndStream(ctx, text, func(delta string, md *domain.GroundingMetadata) {
		if err := c.transcript.Patch(reply.ID, delta, md); err != nil {
			// The transcript was cleared mid-exchange.
			slog.Debug("Dropping fragment", "messageID", reply.ID, "error", err)
		}
	})
	if err != nil {
		slog.Error("Exchange failed", "messageID", reply.ID, "error", err)
		if ferr := c.transcript.Fail(reply.ID, FailureReply); ferr != nil {
			slog.Debug("Unable to mark message failed", "messageID", reply.ID, "error", ferr)
		}
	}

	if final, ok := c.transcript.Get(reply.ID); ok {
		reply = final
	}
	return reply, err
}

// NewChat discards the transcript and replaces the session. Prior context is
// not carried over.
func (c *Controller) NewChat(ctx context.Context) {
	slog.Info("Starting new chat")
	c.transcript.Clear()
	c.sessions.Initialize(ctx)
}
