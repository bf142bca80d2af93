package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nstogner/scholarmate/pkg/chat"
	"github.com/nstogner/scholarmate/pkg/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client frame types.
const (
	frameSend  = "send"
	frameReset = "reset"
)

// Server frame types.
const (
	frameMessage = "message"
	frameError   = "error"
)

type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type serverFrame struct {
	Type    string       `json:"type"`
	Message *messageView `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tr := s.controller.Transcript()
	updates := tr.Subscribe()
	defer tr.Unsubscribe(updates)

	// Frames not derived from the transcript, such as exchange errors.
	out := make(chan serverFrame, 16)

	// Send initial transcript state.
	sent := make(map[string]domain.Message)
	if err := s.syncTranscript(ws, sent); err != nil {
		slog.Error("Failed initial transcript sync", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: the only writer on ws.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case f := <-out:
				err = ws.WriteJSON(f)
			case _, ok := <-updates:
				if !ok {
					return
				}
				err = s.syncTranscript(ws, sent)
			case <-ticker.C:
				// Catches up on notifications dropped while we were slow.
				err = s.syncTranscript(ws, sent)
			}
			if err != nil {
				slog.Error("Failed websocket write", "error", err)
				return
			}
		}
	}()

	push := func(f serverFrame) {
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}

	// Reader loop: receives client commands.
	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}

		switch frame.Type {
		case frameSend:
			if s.controller.Busy() {
				push(serverFrame{Type: frameError, Error: chat.ErrBusy.Error()})
				continue
			}
			wg.Add(1)
			go func(text string) {
				defer wg.Done()
				if _, err := s.controller.Submit(ctx, text); err != nil {
					push(serverFrame{Type: frameError, Error: err.Error()})
				}
			}(frame.Content)
		case frameReset:
			if s.controller.Busy() {
				push(serverFrame{Type: frameError, Error: chat.ErrBusy.Error()})
				continue
			}
			s.controller.NewChat(ctx)
		default:
			push(serverFrame{Type: frameError, Error: "unknown frame type: " + frame.Type})
		}
	}

	cancel()
	wg.Wait()
}

// syncTranscript writes every message that is new or changed since it was
// last sent. When a sent message is gone the transcript was cleared, so a
// reset frame is written and the remaining messages are sent afresh.
func (s *Server) syncTranscript(ws *websocket.Conn, sent map[string]domain.Message) error {
	msgs := s.controller.Transcript().Messages()

	present := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		present[m.ID] = true
	}
	for id := range sent {
		if !present[id] {
			if err := ws.WriteJSON(serverFrame{Type: frameReset}); err != nil {
				return err
			}
			clear(sent)
			break
		}
	}

	for _, m := range msgs {
		if prev, ok := sent[m.ID]; ok && !changed(prev, m) {
			continue
		}
		v := newMessageView(m)
		if err := ws.WriteJSON(serverFrame{Type: frameMessage, Message: &v}); err != nil {
			return err
		}
		sent[m.ID] = m
	}
	return nil
}

// changed reports whether b differs from a in anything a client renders.
func changed(a, b domain.Message) bool {
	return a.Content != b.Content ||
		a.IsError != b.IsError ||
		a.Error != b.Error ||
		!slices.Equal(domain.UniqueSources(a.Metadata), domain.UniqueSources(b.Metadata)) ||
		!slices.Equal(searchQueries(a.Metadata), searchQueries(b.Metadata))
}

func searchQueries(md *domain.GroundingMetadata) []string {
	if md == nil {
		return nil
	}
	return md.WebSearchQueries
}
