package domain

import "time"

// Role of a session message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session's context window.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one user's active conversation window. UserToken is an identity token, never the
// raw user id. ID doubles as the opaque session reference recorded in transcripts.
type Session struct {
	ID              string
	UserToken       string
	LookupKey       string // empty when the keyed lookup index is disabled or for legacy rows
	Messages        []Message
	LastInteraction time.Time
	// New is true for a session built by the store that has not been saved yet.
	New bool
}

// Append adds msgs and trims the window to the window most recent entries, oldest first.
func (s *Session) Append(window int, msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
	if window > 0 && len(s.Messages) > window {
		trimmed := make([]Message, window)
		copy(trimmed, s.Messages[len(s.Messages)-window:])
		s.Messages = trimmed
	}
}

// ActiveAt reports whether the session is still live at now for the given ttl.
func (s *Session) ActiveAt(now time.Time, ttl time.Duration) bool {
	if s.LastInteraction.IsZero() {
		return false
	}
	return !s.LastInteraction.Before(now.Add(-ttl))
}
