package memory

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/storage/codec"
	"github.com/volodymyrd/echarlar/internal/storage/keyenc"
	"github.com/volodymyrd/echarlar/pkg/cmap"
)

// DefaultShardCount is the shard count of the user and room maps.
const DefaultShardCount = 32

// btreeDegree is the B-tree node degree of the message index.
const btreeDegree = 32

type entry struct {
	key   []byte
	value []byte
}

func entryLess(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store is an in-memory Store.
type Store struct {
	users *cmap.Map[uuid.UUID, []byte]
	rooms *cmap.Map[uuid.UUID, []byte]

	// Message index ordered by keyenc message key.
	mu       sync.RWMutex
	messages *btree.BTreeG[entry]

	closed atomic.Bool
}

// Option configures the Store.
type Option func(*storeConfig)

type storeConfig struct {
	shards int
}

// WithShardCount sets the shard count of the user and room maps.
func WithShardCount(n int) Option {
	return func(c *storeConfig) {
		c.shards = n
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	cfg := storeConfig{shards: DefaultShardCount}
	for _, opt := range opts {
		opt(&cfg)
	}

	idBytes := func(id uuid.UUID) []byte { return id[:] }
	return &Store{
		users:    cmap.NewWithKeyFunc[uuid.UUID, []byte](cfg.shards, idBytes),
		rooms:    cmap.NewWithKeyFunc[uuid.UUID, []byte](cfg.shards, idBytes),
		messages: btree.NewG[entry](btreeDegree, entryLess),
	}
}

// FindUser returns the stored user or ErrNotFound.
func (s *Store) FindUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.findUser(id)
	if err != nil {
		return nil, domain.WithOp(err, "find_user", "user=%s", id)
	}
	return user, nil
}

func (s *Store) findUser(id uuid.UUID) (*domain.User, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	data, ok := s.users.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return codec.DecodeUser(data)
}

// SaveUser upserts a user by ID.
func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.WithOp(domain.ErrInvalidArgument.WithDetails("nil user"), "save_user", "")
	}
	if s.closed.Load() {
		return domain.WithOp(domain.ErrClosed, "save_user", "user=%s", user.ID)
	}
	data, err := codec.EncodeUser(user)
	if err != nil {
		return domain.WithOp(err, "save_user", "user=%s", user.ID)
	}
	s.users.Set(user.ID, data)
	return nil
}

// FindRoom returns the stored room or ErrNotFound.
func (s *Store) FindRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	room, err := s.findRoom(id)
	if err != nil {
		return nil, domain.WithOp(err, "find_room", "room=%s", id)
	}
	return room, nil
}

func (s *Store) findRoom(id uuid.UUID) (*domain.Room, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	data, ok := s.rooms.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return codec.DecodeRoom(data)
}

// SaveRoom upserts a room by ID.
func (s *Store) SaveRoom(ctx context.Context, room *domain.Room) error {
	if room == nil {
		return domain.WithOp(domain.ErrInvalidArgument.WithDetails("nil room"), "save_room", "")
	}
	if s.closed.Load() {
		return domain.WithOp(domain.ErrClosed, "save_room", "room=%s", room.ID)
	}
	data, err := codec.EncodeRoom(room)
	if err != nil {
		return domain.WithOp(err, "save_room", "room=%s", room.ID)
	}
	s.rooms.Set(room.ID, data)
	return nil
}

// SaveMessage stores message under room.
func (s *Store) SaveMessage(ctx context.Context, room *domain.Room, message *domain.Message) error {
	if room == nil || message == nil {
		return domain.WithOp(domain.ErrInvalidArgument.WithDetails("nil room or message"), "save_message", "")
	}
	return domain.WithOp(s.saveMessage(room.ID, message),
		"save_message", "room=%s message=%s", room.ID, message.ID)
}

func (s *Store) saveMessage(roomID uuid.UUID, message *domain.Message) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	key, err := keyenc.MessageKey(roomID, message.CreatedAt, message.ID)
	if err != nil {
		return err
	}
	data, err := codec.EncodeMessage(message)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages.ReplaceOrInsert(entry{key: key, value: data})
	s.mu.Unlock()
	return nil
}

// FindMessages returns up to limit messages of the room, newest first.
func (s *Store) FindMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error) {
	page, err := s.findMessages(ctx, roomID, limit, cursor)
	if err != nil {
		return nil, domain.WithOp(err, "find_messages", "room=%s", roomID)
	}
	return page, nil
}

func (s *Store) findMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument.WithDetailsf("limit must be positive, got %d", limit)
	}
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	from, err := keyenc.CursorKey(roomID, cursor)
	if err != nil {
		return nil, err
	}
	prefix := keyenc.RoomPrefix(roomID)

	page := &domain.Page{Messages: make([]*domain.Message, 0, min(limit, 64))}
	var scanErr error

	s.mu.RLock()
	s.messages.AscendGreaterOrEqual(entry{key: from}, func(e entry) bool {
		if !bytes.HasPrefix(e.key, prefix) {
			return false
		}
		if scanErr = ctx.Err(); scanErr != nil {
			return false
		}
		m, err := codec.DecodeMessage(e.value)
		if err != nil {
			scanErr = err
			return false
		}
		if len(page.Messages) == limit {
			page.Next = domain.CursorFor(m)
			return false
		}
		page.Messages = append(page.Messages, m)
		return true
	})
	s.mu.RUnlock()

	if scanErr != nil {
		return nil, scanErr
	}
	return page, nil
}

// Len returns the number of stored users, rooms and messages.
func (s *Store) Len() (users, rooms, messages int) {
	s.mu.RLock()
	messages = s.messages.Len()
	s.mu.RUnlock()
	return s.users.Count(), s.rooms.Count(), messages
}

// Close releases the store's contents. Closing twice is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.users.Clear()
	s.rooms.Clear()
	s.mu.Lock()
	s.messages.Clear(false)
	s.mu.Unlock()
	return nil
}
