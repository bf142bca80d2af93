package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/nstogner/scholarmate/pkg/domain"
)

// FragmentFunc receives each incremental text delta, in arrival order, with
// the fragment's grounding metadata or nil.
type FragmentFunc func(text string, metadata *domain.GroundingMetadata)

// Streamer performs request/response exchanges over the current session.
// Only one exchange may be in flight at a time.
type Streamer struct {
	sessions *SessionManager
	inflight atomic.Bool
}

// NewStreamer creates a Streamer bound to sessions.
func NewStreamer(sessions *SessionManager) *Streamer {
	return &Streamer{sessions: sessions}
}

// Busy reports whether an exchange is currently in flight.
func (s *Streamer) Busy() bool {
	return s.inflight.Load()
}

// SendAndStream sends text as a new user turn and delivers the response to
// onFragment as it arrives. The next fragment is not requested until
// onFragment returns.
//
// It returns nil once the stream is exhausted. Errors wrap ErrBusy,
// ErrSessionUnavailable or ErrStream. There is no retry.
func (s *Streamer) SendAndStream(ctx context.Context, text string, onFragment FragmentFunc) error {
	if !s.inflight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.inflight.Store(false)

	sess, err := s.sessions.CurrentOrInitialize(ctx)
	if err != nil {
		return err
	}

	slog.Debug("Sending message", "sessionID", sess.ID, "length", len(text))
	stream, err := sess.chat.SendStream(ctx, text)
	if err != nil {
		slog.Error("Error sending message", "sessionID", sess.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrStream, err)
	}
	defer stream.Close()

	fragments := 0
	for {
		f, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("Error reading response stream", "sessionID", sess.ID, "fragments", fragments, "error", err)
			return fmt.Errorf("%w: %w", ErrStream, err)
		}
		fragments++

		md := f.Metadata
		if md.IsEmpty() {
			md = nil
		}
		if onFragment != nil {
			onFragment(f.Text, md)
		}
	}

	slog.Debug("Response stream complete", "sessionID", sess.ID, "fragments", fragments)
	return nil
}
