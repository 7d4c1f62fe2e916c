package domain

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// IDSet is an unordered set of unique identifiers.
type IDSet map[uuid.UUID]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id. Adding an existing id is a no-op.
func (s IDSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

// Remove deletes id if present.
func (s IDSet) Remove(id uuid.UUID) {
	delete(s, id)
}

// Has reports whether id is in the set.
func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids.
func (s IDSet) Len() int {
	return len(s)
}

// Sorted returns the ids in ascending byte order.
func (s IDSet) Sorted() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Clone returns an independent copy of the set.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Equal reports whether both sets hold the same ids.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Room is a chat room.
//
// Owners and Members hold user IDs by value; the room never points back
// at User records.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Owners    IDSet     `json:"-"`
	Members   IDSet     `json:"-"`
}

// NewRoom creates a room owned by creator, who is also its first member.
func NewRoom(name string, creator *User) *Room {
	return &Room{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
		Owners:    NewIDSet(creator.ID),
		Members:   NewIDSet(creator.ID),
	}
}

// AddMember adds a user to the member set.
func (r *Room) AddMember(userID uuid.UUID) {
	if r.Members == nil {
		r.Members = NewIDSet()
	}
	r.Members.Add(userID)
}

// RemoveMember removes a user from the member set. Owners stay owners.
func (r *Room) RemoveMember(userID uuid.UUID) {
	r.Members.Remove(userID)
}

// AddOwner grants ownership; an owner is always a member as well.
func (r *Room) AddOwner(userID uuid.UUID) {
	if r.Owners == nil {
		r.Owners = NewIDSet()
	}
	r.Owners.Add(userID)
	r.AddMember(userID)
}

// RemoveOwner revokes ownership without removing membership.
func (r *Room) RemoveOwner(userID uuid.UUID) {
	r.Owners.Remove(userID)
}

// IsMember reports whether the user is a member.
func (r *Room) IsMember(userID uuid.UUID) bool {
	return r.Members.Has(userID)
}

// IsOwner reports whether the user is an owner.
func (r *Room) IsOwner(userID uuid.UUID) bool {
	return r.Owners.Has(userID)
}

// Equal reports whether both values identify the same room.
func (r *Room) Equal(other *Room) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Owners = r.Owners.Clone()
	c.Members = r.Members.Clone()
	return &c
}
