package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
	"github.com/levhaolam/support-engine/internal/pipeline"
)

type contactPayload struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type chatRequest struct {
	Message        string          `json:"message"`
	SessionID      string          `json:"session_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Contact        *contactPayload `json:"contact,omitempty"`
	Channel        string          `json:"channel,omitempty"`
	TeamMode       *bool           `json:"team_mode,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	preq := pipeline.Request{
		Message:        req.Message,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Channel:        req.Channel,
		TeamMode:       req.TeamMode,
	}
	if req.Contact != nil {
		preq.Contact = &domain.ContactInfo{Email: req.Contact.Email, Name: req.Contact.Name}
	}

	result := s.cfg.Orchestrator.Process(r.Context(), preq)

	AddLogField(r.Context(), "session_id", result.SessionID)
	AddLogField(r.Context(), "category", string(result.Category))
	AddLogField(r.Context(), "decision", string(result.Decision))

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
