package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cursor resumes a paginated history scan.
//
// At is the original creation time of the first message of the next page.
// MessageID pins the exact message when several share a millisecond; a
// cursor with a nil MessageID resumes at the first message of that
// millisecond.
type Cursor struct {
	At        time.Time `json:"at"`
	MessageID uuid.UUID `json:"message_id"`
}

// CursorAt returns a timestamp-only cursor.
func CursorAt(t time.Time) *Cursor {
	return &Cursor{At: t}
}

// CursorFor returns the cursor that resumes exactly at m.
func CursorFor(m *Message) *Cursor {
	return &Cursor{At: m.CreatedAt, MessageID: m.ID}
}

// Page is one page of room history, newest first.
type Page struct {
	Messages []*Message `json:"messages"`

	// Next is nil when the page reached the end of the room's history.
	Next *Cursor `json:"next,omitempty"`
}

// HasMore reports whether another page exists.
func (p *Page) HasMore() bool {
	return p.Next != nil
}
