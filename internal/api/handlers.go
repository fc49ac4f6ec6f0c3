package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/practica-ai/practica/internal/dialogue"
	"github.com/practica-ai/practica/internal/models"
)

// EventRequest is the JSON body of POST /v1/events: one inbound user
// message. Audio is base64-encoded voice bytes; Text and Audio may both
// be present.
type EventRequest struct {
	BotID  string `json:"bot_id"`
	ChatID int64  `json:"chat_id"`
	UserID int64  `json:"user_id"`
	Text   string `json:"text,omitempty"`
	Audio  string `json:"audio,omitempty"`
}

// EventResult carries the replies produced for one event.
type EventResult struct {
	Replies []string `json:"replies"`
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.eventsHandler: processing event request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.eventsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.eventsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	ev := dialogue.Event{
		BotID:  req.BotID,
		ChatID: req.ChatID,
		UserID: req.UserID,
		Text:   req.Text,
	}
	if err := ev.Key().Validate(); err != nil {
		slog.Warn("Server.eventsHandler: invalid event identity", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if req.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			slog.Warn("Server.eventsHandler: invalid audio encoding", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid base64 audio"))
			return
		}
		ev.Audio = audio
	}

	replies, err := s.engine.Process(r.Context(), ev)
	if err != nil {
		slog.Error("Server.eventsHandler: event processing failed", "error", err, "botID", req.BotID, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process event"))
		return
	}

	slog.Debug("Server.eventsHandler: event processed", "botID", req.BotID, "userID", req.UserID, "replies", len(replies))
	writeJSONResponse(w, http.StatusOK, models.Success(EventResult{Replies: replies}))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
