// Package chat holds the inbound message shape handed over by the chat-platform transport.
package chat

import "time"

// Message is one message as delivered by the chat platform. SenderID is the raw platform user
// id and is trusted as given; it must never be persisted or logged in plaintext.
type Message struct {
	SenderID  string
	Content   string
	FromBot   bool
	InGuild   bool
	CreatedAt time.Time
}

// Direct reports whether m is a direct message from a human user.
func (m Message) Direct() bool {
	return !m.FromBot && !m.InGuild
}
