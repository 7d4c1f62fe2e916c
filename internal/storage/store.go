package storage

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/storage/memory"
)

// Store is the capability set every backing engine provides.
//
// Implementation requirements:
//   - Thread-safe: one handle is shared by concurrent readers and writers
//   - Durable: a save has reached the engine's durable log when it returns
//   - Atomic per key: a scan never observes a partially written record
//
// Errors are domain errors: ErrNotFound, ErrEncoding, ErrSerialization,
// ErrCorruptRecord, ErrIO, ErrInvalidArgument and ErrClosed.
type Store interface {
	// FindUser returns the stored user or ErrNotFound.
	FindUser(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// SaveUser upserts a user by ID.
	SaveUser(ctx context.Context, user *domain.User) error

	// FindRoom returns the stored room or ErrNotFound.
	FindRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error)

	// SaveRoom upserts a room by ID.
	SaveRoom(ctx context.Context, room *domain.Room) error

	// SaveMessage stores a message under room, keyed by creation time.
	SaveMessage(ctx context.Context, room *domain.Room, message *domain.Message) error

	// FindMessages returns up to limit messages of the room, newest first,
	// starting at cursor (or at the newest message when cursor is nil).
	// Page.Next is nil when the page reached the end of the history.
	FindMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error)

	// Close flushes and releases the store.
	Close() error
}

// Open opens or creates the store described by opts.
//
// All configuration problems and engine start failures are returned as
// domain.ErrOpen with a descriptive detail.
func Open(opts Options, logger *slog.Logger) (Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Engine() {
	case EngineMemory:
		logger.Info("memory store opened")
		return memory.New(), nil
	default:
		engine, err := NewBadgerEngine(KVConfigFromOptions(opts), logger)
		if err != nil {
			return nil, domain.ErrOpen.WithDetailsf("path %s", opts.Path()).WithCause(err)
		}
		return NewKVStore(engine, logger), nil
	}
}

var (
	_ Store = (*KVStore)(nil)
	_ Store = (*memory.Store)(nil)
)
