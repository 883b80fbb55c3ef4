package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
	"github.com/levhaolam/support-engine/internal/pipeline"
)

type chatwootSender struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Type  string `json:"type"`
}

type chatwootConversation struct {
	ID      int    `json:"id"`
	InboxID int    `json:"inbox_id"`
	Status  string `json:"status"`
	Channel string `json:"channel"`
}

type chatwootWebhookPayload struct {
	Event        string                `json:"event"`
	ID           int64                 `json:"id"`
	Content      string                `json:"content"`
	MessageType  string                `json:"message_type"`
	Private      bool                  `json:"private"`
	Sender       *chatwootSender       `json:"sender"`
	Conversation *chatwootConversation `json:"conversation"`
}

// handleChatwootWebhook bridges Chatwoot message_created events into the
// pipeline and dispatches the result back. Every outcome answers 200 so
// Chatwoot does not retry; the body carries the disposition.
func (s *Server) handleChatwootWebhook(w http.ResponseWriter, r *http.Request) {
	var payload chatwootWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if payload.Event != "message_created" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "event=" + payload.Event})
		return
	}
	if payload.MessageType != "incoming" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "not incoming message"})
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "empty content"})
		return
	}
	if payload.Private {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "private note"})
		return
	}

	if payload.Conversation == nil || payload.Conversation.ID == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": "no conversation_id"})
		return
	}
	conversationID := payload.Conversation.ID

	// Dedup runs after validation so a rejected delivery does not burn the
	// event id for a later, well-formed redelivery.
	if payload.ID != 0 && s.cfg.Dedup.Seen(payload.ID) {
		s.logger.Info("duplicate webhook delivery",
			slog.Int64("message_id", payload.ID))
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate", "message_id": payload.ID})
		return
	}

	channel := payload.Conversation.Channel
	if channel == "" {
		channel = "web"
	}

	req := pipeline.Request{
		Message:        payload.Content,
		SessionID:      fmt.Sprintf("cw_%d", conversationID),
		ConversationID: fmt.Sprintf("%d", conversationID),
		Channel:        channel,
	}
	if payload.Sender != nil && (payload.Sender.Email != "" || payload.Sender.Name != "") {
		req.Contact = &domain.ContactInfo{Email: payload.Sender.Email, Name: payload.Sender.Name}
	}

	s.logger.Info("processing webhook message",
		slog.Int("conversation_id", conversationID),
		slog.Int64("message_id", payload.ID))

	result := s.cfg.Orchestrator.Process(r.Context(), req)

	AddLogField(r.Context(), "session_id", result.SessionID)
	AddLogField(r.Context(), "decision", string(result.Decision))

	if s.cfg.Dispatcher != nil {
		if reason, failed := pipelineFailure(result); failed {
			s.cfg.Dispatcher.HandleFailure(r.Context(), conversationID, reason)
			writeJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": reason})
			return
		}
		s.cfg.Dispatcher.Dispatch(r.Context(), conversationID, result, channel)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "decision": string(result.Decision)})
}

// pipelineFailure distinguishes internal-failure escalations (which get an
// error note) from ordinary evaluation escalations (which get an AI draft).
func pipelineFailure(result *domain.PipelineResult) (string, bool) {
	if result.Decision != domain.DecisionEscalate {
		return "", false
	}
	reason, ok := result.Metadata["error"].(string)
	return reason, ok && reason != ""
}
