package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"dm-relay/internal/chat"
	"dm-relay/internal/relay"
)

const maxBodyBytes = 64 << 10

// messageRequest is the wire form of an inbound chat message.
type messageRequest struct {
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	FromBot   bool      `json:"from_bot"`
	InGuild   bool      `json:"in_guild"`
	CreatedAt time.Time `json:"created_at"`
}

func (m messageRequest) validate() error {
	if strings.TrimSpace(m.SenderID) == "" {
		return errors.New("sender_id is required")
	}
	return nil
}

func (m messageRequest) message() chat.Message {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return chat.Message{SenderID: m.SenderID, Content: m.Content, FromBot: m.FromBot, InGuild: m.InGuild, CreatedAt: created}
}

type messageResponse struct {
	Handled    bool     `json:"handled"`
	SessionRef string   `json:"session_ref,omitempty"`
	Chunks     []string `json:"chunks"`
}

func newMessageResponse(res relay.Result) messageResponse {
	chunks := relay.Chunk(res.Reply, relay.MaxChunkLen)
	if chunks == nil {
		chunks = []string{}
	}
	return messageResponse{Handled: res.Handled, SessionRef: res.SessionRef, Chunks: chunks}
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.relay.Handle(r.Context(), req.message())
	if err != nil {
		log.Printf("ingress: handle message: %v", err)
		respondError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	respondJSON(w, http.StatusOK, newMessageResponse(res))
}

type transcriptEntry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Response   *string   `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
	SessionRef string    `json:"session_ref"`
}

func (h *Handler) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	entries, err := h.transcripts.ForUser(r.Context(), userID)
	if err != nil {
		log.Printf("ingress: transcript lookup: %v", err)
		respondError(w, http.StatusServiceUnavailable, "transcript store unavailable")
		return
	}
	out := make([]transcriptEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, transcriptEntry{ID: e.ID, Content: e.Content, Response: e.Response, Timestamp: e.Timestamp, SessionRef: e.SessionRef})
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ingress: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
