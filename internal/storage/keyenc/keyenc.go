// Package keyenc builds the sortable binary keys of the messages partition.
//
// A message key is
//
//	room_id (16) | '/' | reverse_rank (16, big-endian) | '/' | message_id (16)
//
// where reverse_rank = MaxUint128 - milliseconds since the Unix epoch.
// Ascending byte order therefore walks a room newest first, and the
// message ID suffix keeps two messages of the same millisecond apart.
//
// Elapsed milliseconds come from time.Time.UnixMilli, an int64, so every
// encodable instant fits in the low 64 bits of the rank and the high 64
// bits are always all ones. Instants before the epoch are rejected with
// domain.ErrEncoding rather than clamped.
package keyenc

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

// Key layout sizes.
const (
	IDSize   = 16
	RankSize = 16

	// Separator sits between key components. Components are fixed width,
	// so it never affects ordering.
	Separator byte = '/'

	// PrefixSize is the length of a room prefix.
	PrefixSize = IDSize + 1

	// SeekKeySize is the length of a room + rank partial key.
	SeekKeySize = PrefixSize + RankSize

	// KeySize is the length of a full message key.
	KeySize = SeekKeySize + 1 + IDSize
)

// Rank is a 128-bit big-endian reverse timestamp.
type Rank [RankSize]byte

// ReverseRank returns MaxUint128 - elapsed milliseconds of t.
func ReverseRank(t time.Time) (Rank, error) {
	var r Rank
	millis := t.UnixMilli()
	if millis < 0 {
		return r, domain.ErrEncoding.WithDetailsf("timestamp %s precedes the unix epoch", t.UTC().Format(time.RFC3339Nano))
	}
	binary.BigEndian.PutUint64(r[:8], math.MaxUint64)
	binary.BigEndian.PutUint64(r[8:], math.MaxUint64-uint64(millis))
	return r, nil
}

// RankTime inverts ReverseRank at millisecond precision.
func RankTime(r Rank) (time.Time, error) {
	if binary.BigEndian.Uint64(r[:8]) != math.MaxUint64 {
		return time.Time{}, domain.ErrEncoding.WithDetails("rank outside the encodable range")
	}
	millis := math.MaxUint64 - binary.BigEndian.Uint64(r[8:])
	if millis > math.MaxInt64 {
		return time.Time{}, domain.ErrEncoding.WithDetails("rank outside the encodable range")
	}
	return time.UnixMilli(int64(millis)), nil
}

// RoomPrefix returns the prefix shared by every message key of room.
func RoomPrefix(room uuid.UUID) []byte {
	k := make([]byte, 0, PrefixSize)
	k = append(k, room[:]...)
	return append(k, Separator)
}

// SeekKey returns the partial key room | '/' | rank(t). It sorts before
// every message key of room with the same rank.
func SeekKey(room uuid.UUID, t time.Time) ([]byte, error) {
	r, err := ReverseRank(t)
	if err != nil {
		return nil, err
	}
	k := make([]byte, 0, SeekKeySize)
	k = append(k, room[:]...)
	k = append(k, Separator)
	return append(k, r[:]...), nil
}

// MessageKey returns the full key for a message of room created at t.
func MessageKey(room uuid.UUID, t time.Time, message uuid.UUID) ([]byte, error) {
	k, err := SeekKey(room, t)
	if err != nil {
		return nil, err
	}
	k = append(k, Separator)
	return append(k, message[:]...), nil
}

// CursorKey returns the key a history scan resumes from. A cursor pinned to
// a message resumes exactly at that message; a bare timestamp resumes at
// the first message of that millisecond.
func CursorKey(room uuid.UUID, c *domain.Cursor) ([]byte, error) {
	if c == nil {
		return RoomPrefix(room), nil
	}
	if c.MessageID == uuid.Nil {
		return SeekKey(room, c.At)
	}
	return MessageKey(room, c.At, c.MessageID)
}

// ParseMessageKey splits a full message key. The returned time has
// millisecond precision.
func ParseMessageKey(key []byte) (room uuid.UUID, at time.Time, message uuid.UUID, err error) {
	if len(key) != KeySize || key[IDSize] != Separator || key[SeekKeySize] != Separator {
		return room, at, message, domain.ErrCorruptRecord.WithDetailsf("malformed message key of %d bytes", len(key))
	}
	copy(room[:], key[:IDSize])
	var r Rank
	copy(r[:], key[PrefixSize:SeekKeySize])
	if at, err = RankTime(r); err != nil {
		return room, at, message, err
	}
	copy(message[:], key[SeekKeySize+1:])
	return room, at, message, nil
}

// HasRoomPrefix reports whether key belongs to room.
func HasRoomPrefix(key []byte, room uuid.UUID) bool {
	return bytes.HasPrefix(key, RoomPrefix(room))
}
