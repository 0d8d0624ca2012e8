package domain

import "time"

// Entry is one exchange in the transcript log. UserToken is an identity token, never the raw id.
type Entry struct {
	ID        string
	UserToken string
	LookupKey string
	Content   string
	// Response is nil when no reply was produced.
	Response *string
	// Timestamp is the inbound message's creation time.
	Timestamp  time.Time
	SessionRef string
}
