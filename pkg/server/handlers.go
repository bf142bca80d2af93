package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nstogner/scholarmate/pkg/chat"
	"github.com/nstogner/scholarmate/pkg/controller"
	"github.com/nstogner/scholarmate/pkg/domain"
)

// messageView is a message as rendered to clients, with its citations
// de-duplicated for display.
type messageView struct {
	domain.Message
	Sources []domain.GroundingSource `json:"sources,omitempty"`
}

func newMessageView(m domain.Message) messageView {
	return messageView{Message: m, Sources: domain.UniqueSources(m.Metadata)}
}

type sendRequest struct {
	Content string `json:"content"`
}

type exchangeError struct {
	Error   string      `json:"error"`
	Message messageView `json:"message"`
}

// --- Transcript ---

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.controller.Transcript().Messages()
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, newMessageView(m))
	}
	s.jsonResponse(w, http.StatusOK, views)
}

// --- Exchanges ---

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	reply, err := s.controller.Submit(r.Context(), req.Content)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, newMessageView(reply))
	case errors.Is(err, controller.ErrEmptyMessage):
		s.errorResponse(w, http.StatusBadRequest, err)
	case errors.Is(err, chat.ErrBusy):
		s.errorResponse(w, http.StatusConflict, err)
	default:
		s.jsonResponse(w, http.StatusBadGateway, exchangeError{
			Error:   err.Error(),
			Message: newMessageView(reply),
		})
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.controller.Busy() {
		s.errorResponse(w, http.StatusConflict, chat.ErrBusy)
		return
	}
	s.controller.NewChat(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// --- Prompts ---

func (s *Server) handleStarters(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string][]controller.Prompt{
		"starters": controller.Starters,
		"features": controller.Features,
	})
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}
