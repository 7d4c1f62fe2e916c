package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/storage/codec"
	"github.com/volodymyrd/echarlar/internal/storage/keyenc"
)

// slowPageThreshold is the FindMessages latency above which a page is
// logged at debug level.
const slowPageThreshold = 50 * time.Millisecond

// KVStore implements Store on top of a partitioned KVEngine.
//
// Users and rooms are keyed by their raw 16 id bytes. Messages are keyed
// by keyenc.MessageKey so a forward scan of a room prefix yields the
// room's history newest first.
type KVStore struct {
	engine KVEngine
	logger *slog.Logger
	closed atomic.Bool
}

// NewKVStore wraps engine. The store takes ownership of the engine and
// closes it on Close.
func NewKVStore(engine KVEngine, logger *slog.Logger) *KVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{engine: engine, logger: logger}
}

// Engine returns the underlying engine.
func (s *KVStore) Engine() KVEngine {
	return s.engine
}

// FindUser returns the stored user or ErrNotFound.
func (s *KVStore) FindUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	data, err := s.get(ctx, PartitionUsers, id)
	if err != nil {
		return nil, domain.WithOp(err, "find_user", "user=%s", id)
	}
	user, err := codec.DecodeUser(data)
	if err != nil {
		return nil, domain.WithOp(err, "find_user", "user=%s", id)
	}
	return user, nil
}

// SaveUser upserts a user by ID.
func (s *KVStore) SaveUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.WithOp(domain.ErrInvalidArgument.WithDetails("nil user"), "save_user", "")
	}
	data, err := codec.EncodeUser(user)
	if err == nil {
		err = s.set(ctx, PartitionUsers, user.ID[:], data)
	}
	return domain.WithOp(err, "save_user", "user=%s", user.ID)
}

// FindRoom returns the stored room or ErrNotFound.
func (s *KVStore) FindRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	data, err := s.get(ctx, PartitionRooms, id)
	if err != nil {
		return nil, domain.WithOp(err, "find_room", "room=%s", id)
	}
	room, err := codec.DecodeRoom(data)
	if err != nil {
		return nil, domain.WithOp(err, "find_room", "room=%s", id)
	}
	return room, nil
}

// SaveRoom upserts a room by ID.
func (s *KVStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	if room == nil {
		return domain.WithOp(domain.ErrInvalidArgument.WithDetails("nil room"), "save_room", "")
	}
	data, err := codec.EncodeRoom(room)
	if err == nil {
		err = s.set(ctx, PartitionRooms, room.ID[:], data)
	}
	return domain.WithOp(err, "save_room", "room=%s", room.ID)
}

// SaveMessage stores message under room. Saving the same message twice
// overwrites the record in place.
func (s *KVStore) SaveMessage(ctx context.Context, room *domain.Room, message *domain.Message) error {
	if room == nil || message == nil {
		return domain.WithOp(domain.ErrInvalidArgument.WithDetails("nil room or message"), "save_message", "")
	}
	return domain.WithOp(s.saveMessage(ctx, room.ID, message),
		"save_message", "room=%s message=%s", room.ID, message.ID)
}

func (s *KVStore) saveMessage(ctx context.Context, roomID uuid.UUID, message *domain.Message) error {
	key, err := keyenc.MessageKey(roomID, message.CreatedAt, message.ID)
	if err != nil {
		return err
	}
	data, err := codec.EncodeMessage(message)
	if err != nil {
		return err
	}
	return s.set(ctx, PartitionMessages, key, data)
}

// FindMessages returns up to limit messages of the room, newest first.
//
// The scan starts at the cursor key (or the room prefix) and stops at the
// first record past limit; that record becomes the next cursor.
func (s *KVStore) FindMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error) {
	page, err := s.findMessages(ctx, roomID, limit, cursor)
	if err != nil {
		return nil, domain.WithOp(err, "find_messages", "room=%s", roomID)
	}
	return page, nil
}

func (s *KVStore) findMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error) {
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

	start := time.Now()
	page := &domain.Page{Messages: make([]*domain.Message, 0, min(limit, 64))}
	var decodeErr error

	err = s.engine.Scan(ctx, PartitionMessages, keyenc.RoomPrefix(roomID), from, func(key, value []byte) bool {
		m, err := codec.DecodeMessage(value)
		if err != nil {
			decodeErr = err
			return false
		}
		if len(page.Messages) == limit {
			page.Next = domain.CursorFor(m)
			return false
		}
		page.Messages = append(page.Messages, m)
		return true
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	if elapsed := time.Since(start); elapsed > slowPageThreshold {
		s.logger.Debug("slow message page",
			"room_id", roomID.String(),
			"limit", limit,
			"returned", len(page.Messages),
			"elapsed", elapsed)
	}

	return page, nil
}

// Close syncs and closes the engine. Closing twice is a no-op.
func (s *KVStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.engine.Close(); err != nil {
		return domain.WithOp(domain.ErrIO.WithCause(err), "close", "")
	}
	return nil
}

func (s *KVStore) get(ctx context.Context, partition string, id uuid.UUID) ([]byte, error) {
	if s.closed.Load() {
		return nil, domain.ErrClosed
	}
	data, err := s.engine.Get(ctx, partition, id[:])
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, s.mapErr(err)
	}
	return data, nil
}

func (s *KVStore) set(ctx context.Context, partition string, key, value []byte) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.engine.Set(ctx, partition, key, value); err != nil {
		return s.mapErr(err)
	}
	return nil
}

// mapErr translates engine errors into domain errors. Context errors
// pass through unchanged.
func (s *KVStore) mapErr(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrEngineClosed):
		return domain.ErrClosed
	case domain.GetErrorCode(err) != "":
		return err
	default:
		return domain.ErrIO.WithCause(err)
	}
}
