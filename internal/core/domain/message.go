package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind is the closed set of message kinds.
type MessageKind uint8

const (
	KindText MessageKind = iota + 1
	KindFile
	KindAudio
	KindVideo
)

var kindNames = map[MessageKind]string{
	KindText:  "text",
	KindFile:  "file",
	KindAudio: "audio",
	KindVideo: "video",
}

// String returns the lowercase kind name.
func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k is one of the defined kinds.
func (k MessageKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseMessageKind parses a kind name (case-insensitive).
func ParseMessageKind(s string) (MessageKind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == want {
			return k, nil
		}
	}
	return 0, ErrInvalidContent.WithDetailsf("unknown message kind %q", s)
}

// Content is a message payload. Its kind is fixed by the constructor used,
// so a text kind always carries a text payload.
type Content struct {
	kind MessageKind
	body string
}

// TextContent returns a text payload.
func TextContent(text string) Content {
	return Content{kind: KindText, body: text}
}

// FileContent returns a file reference payload (e.g. a URI).
func FileContent(ref string) Content {
	return Content{kind: KindFile, body: ref}
}

// AudioContent returns an audio reference payload.
func AudioContent(ref string) Content {
	return Content{kind: KindAudio, body: ref}
}

// VideoContent returns a video reference payload.
func VideoContent(ref string) Content {
	return Content{kind: KindVideo, body: ref}
}

// NewContent builds the payload variant for kind.
// Returns ErrInvalidContent if kind is not a defined kind.
func NewContent(kind MessageKind, body string) (Content, error) {
	if !kind.Valid() {
		return Content{}, ErrInvalidContent.WithDetailsf("kind %d", kind)
	}
	return Content{kind: kind, body: body}, nil
}

// Kind returns the payload kind.
func (c Content) Kind() MessageKind {
	return c.kind
}

// Body returns the raw payload string regardless of kind.
func (c Content) Body() string {
	return c.body
}

// Text returns the text of a text payload.
func (c Content) Text() (string, bool) {
	if c.kind != KindText {
		return "", false
	}
	return c.body, true
}

// Ref returns the reference of a file, audio or video payload.
func (c Content) Ref() (string, bool) {
	if c.kind == KindText || !c.kind.Valid() {
		return "", false
	}
	return c.body, true
}

// IsZero reports whether the content was never set.
func (c Content) IsZero() bool {
	return c.kind == 0
}

// Message is a single chat message. It is immutable once created.
//
// The owning room is not part of the record; it is supplied when the
// message is saved.
type Message struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Sender    uuid.UUID `json:"sender"`
	Content   Content   `json:"-"`
}

// NewMessage creates a message from sender with a fresh ID and the current time.
func NewMessage(content Content, sender *User) *Message {
	return &Message{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		Sender:    sender.ID,
		Content:   content,
	}
}

// NewTextMessage creates a text message.
func NewTextMessage(text string, sender *User) *Message {
	return NewMessage(TextContent(text), sender)
}

// NewFileMessage creates a file message referencing ref.
func NewFileMessage(ref string, sender *User) *Message {
	return NewMessage(FileContent(ref), sender)
}

// NewAudioMessage creates an audio message referencing ref.
func NewAudioMessage(ref string, sender *User) *Message {
	return NewMessage(AudioContent(ref), sender)
}

// NewVideoMessage creates a video message referencing ref.
func NewVideoMessage(ref string, sender *User) *Message {
	return NewMessage(VideoContent(ref), sender)
}

// Kind returns the message kind, derived from its content.
func (m *Message) Kind() MessageKind {
	return m.Content.Kind()
}

// Equal reports whether both values identify the same message.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.ID == other.ID
}
