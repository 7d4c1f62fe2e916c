package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

// userView is the printed form of a user.
type userView struct {
	ID        string    `json:"id" yaml:"id"`
	Address   string    `json:"address" yaml:"address"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func newUserView(u *domain.User) userView {
	return userView{ID: u.ID.String(), Address: u.Address, CreatedAt: u.CreatedAt}
}

// roomView is the printed form of a room.
type roomView struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Owners    []string  `json:"owners" yaml:"owners"`
	Members   []string  `json:"members" yaml:"members"`
}

func newRoomView(r *domain.Room) roomView {
	return roomView{
		ID:        r.ID.String(),
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		Owners:    idStrings(r.Owners),
		Members:   idStrings(r.Members),
	}
}

func idStrings(s domain.IDSet) []string {
	ids := s.Sorted()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// messageView is the printed form of a message.
type messageView struct {
	ID        string    `json:"id" yaml:"id" table:"wide"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Sender    string    `json:"sender" yaml:"sender"`
	Kind      string    `json:"kind" yaml:"kind"`
	Body      string    `json:"body" yaml:"body"`
}

func newMessageView(m *domain.Message) messageView {
	return messageView{
		ID:        m.ID.String(),
		CreatedAt: m.CreatedAt,
		Sender:    m.Sender.String(),
		Kind:      m.Kind().String(),
		Body:      m.Content.Body(),
	}
}

// historyView is one or more pages of room history.
type historyView struct {
	Messages []messageView `json:"messages" yaml:"messages"`
	Next     string        `json:"next,omitempty" yaml:"next,omitempty"`
}

// FormatCursor renders a cursor as "<unix millis>:<message id>".
func FormatCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	if c.MessageID == uuid.Nil {
		return strconv.FormatInt(c.At.UnixMilli(), 10)
	}
	return fmt.Sprintf("%d:%s", c.At.UnixMilli(), c.MessageID)
}

// ParseCursor parses the output of FormatCursor. A bare millisecond
// timestamp yields a timestamp-only cursor.
func ParseCursor(s string) (*domain.Cursor, error) {
	ms, id, hasID := strings.Cut(strings.TrimSpace(s), ":")
	at, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetailsf("invalid cursor %q", s).WithCause(err)
	}
	cursor := domain.CursorAt(time.UnixMilli(at))
	if hasID {
		if cursor.MessageID, err = parseID(id, "cursor message id"); err != nil {
			return nil, err
		}
	}
	return cursor, nil
}
