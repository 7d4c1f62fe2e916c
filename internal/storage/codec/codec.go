// Package codec serializes users, rooms and messages into opaque binary records.
//
// A record is a two byte header {FormatVersion, kind} followed by a
// MessagePack body. The body encodes storage-side record structs rather
// than the domain types, so the domain model stays free of codec tags.
// Any header or shape mismatch on decode is reported as
// domain.ErrCorruptRecord; nothing is coerced to a default value.
package codec

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	msgpack "github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

// FormatVersion is the record format written by this package.
const FormatVersion byte = 1

// headerSize is the size of the {version, kind} prefix.
const headerSize = 2

// RecordKind tags the entity stored in a record.
type RecordKind byte

const (
	RecordUser    RecordKind = 'u'
	RecordRoom    RecordKind = 'r'
	RecordMessage RecordKind = 'm'
)

func (k RecordKind) String() string {
	switch k {
	case RecordUser:
		return "user"
	case RecordRoom:
		return "room"
	case RecordMessage:
		return "message"
	default:
		return fmt.Sprintf("record(%#x)", byte(k))
	}
}

type userRecord struct {
	ID          []byte `codec:"id"`
	Address     string `codec:"address"`
	CreatedSec  int64  `codec:"created_sec"`
	CreatedNsec int32  `codec:"created_nsec"`
}

type roomRecord struct {
	ID          []byte   `codec:"id"`
	Name        string   `codec:"name"`
	CreatedSec  int64    `codec:"created_sec"`
	CreatedNsec int32    `codec:"created_nsec"`
	Owners      [][]byte `codec:"owners"`
	Members     [][]byte `codec:"members"`
}

type messageRecord struct {
	ID          []byte `codec:"id"`
	CreatedSec  int64  `codec:"created_sec"`
	CreatedNsec int32  `codec:"created_nsec"`
	Sender      []byte `codec:"sender"`
	Kind        uint8  `codec:"kind"`
	Body        string `codec:"body"`
}

// EncodeUser serializes a user.
func EncodeUser(u *domain.User) ([]byte, error) {
	if u == nil {
		return nil, domain.ErrSerialization.WithDetails("nil user")
	}
	sec, nsec := splitTime(u.CreatedAt)
	return encode(RecordUser, &userRecord{
		ID:          idBytes(u.ID),
		Address:     u.Address,
		CreatedSec:  sec,
		CreatedNsec: nsec,
	})
}

// DecodeUser deserializes a user record.
func DecodeUser(data []byte) (*domain.User, error) {
	var rec userRecord
	if err := decode(RecordUser, data, &rec); err != nil {
		return nil, err
	}
	id, err := parseID("user id", rec.ID)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:        id,
		Address:   rec.Address,
		CreatedAt: time.Unix(rec.CreatedSec, int64(rec.CreatedNsec)),
	}, nil
}

// EncodeRoom serializes a room. Owner and member sets are written sorted
// so equal rooms encode to equal bytes.
func EncodeRoom(r *domain.Room) ([]byte, error) {
	if r == nil {
		return nil, domain.ErrSerialization.WithDetails("nil room")
	}
	sec, nsec := splitTime(r.CreatedAt)
	return encode(RecordRoom, &roomRecord{
		ID:          idBytes(r.ID),
		Name:        r.Name,
		CreatedSec:  sec,
		CreatedNsec: nsec,
		Owners:      setBytes(r.Owners),
		Members:     setBytes(r.Members),
	})
}

// DecodeRoom deserializes a room record.
func DecodeRoom(data []byte) (*domain.Room, error) {
	var rec roomRecord
	if err := decode(RecordRoom, data, &rec); err != nil {
		return nil, err
	}
	id, err := parseID("room id", rec.ID)
	if err != nil {
		return nil, err
	}
	owners, err := parseSet("owner", rec.Owners)
	if err != nil {
		return nil, err
	}
	members, err := parseSet("member", rec.Members)
	if err != nil {
		return nil, err
	}
	return &domain.Room{
		ID:        id,
		Name:      rec.Name,
		CreatedAt: time.Unix(rec.CreatedSec, int64(rec.CreatedNsec)),
		Owners:    owners,
		Members:   members,
	}, nil
}

// EncodeMessage serializes a message.
func EncodeMessage(m *domain.Message) ([]byte, error) {
	if m == nil {
		return nil, domain.ErrSerialization.WithDetails("nil message")
	}
	if !m.Kind().Valid() {
		return nil, domain.ErrSerialization.WithDetailsf("message %s has no content", m.ID)
	}
	sec, nsec := splitTime(m.CreatedAt)
	return encode(RecordMessage, &messageRecord{
		ID:          idBytes(m.ID),
		CreatedSec:  sec,
		CreatedNsec: nsec,
		Sender:      idBytes(m.Sender),
		Kind:        uint8(m.Kind()),
		Body:        m.Content.Body(),
	})
}

// DecodeMessage deserializes a message record.
func DecodeMessage(data []byte) (*domain.Message, error) {
	var rec messageRecord
	if err := decode(RecordMessage, data, &rec); err != nil {
		return nil, err
	}
	id, err := parseID("message id", rec.ID)
	if err != nil {
		return nil, err
	}
	sender, err := parseID("sender id", rec.Sender)
	if err != nil {
		return nil, err
	}
	content, err := domain.NewContent(domain.MessageKind(rec.Kind), rec.Body)
	if err != nil {
		return nil, domain.ErrCorruptRecord.WithDetailsf("message %s", id).WithCause(err)
	}
	return &domain.Message{
		ID:        id,
		CreatedAt: time.Unix(rec.CreatedSec, int64(rec.CreatedNsec)),
		Sender:    sender,
		Content:   content,
	}, nil
}

// PeekKind returns the record kind of an encoded record without decoding the body.
func PeekKind(data []byte) (RecordKind, error) {
	if len(data) < headerSize {
		return 0, domain.ErrCorruptRecord.WithDetailsf("record of %d bytes has no header", len(data))
	}
	if data[0] != FormatVersion {
		return 0, domain.ErrCorruptRecord.WithDetailsf("unsupported record format version %d", data[0])
	}
	return RecordKind(data[1]), nil
}

func encode(kind RecordKind, rec any) ([]byte, error) {
	var body []byte
	enc := msgpack.NewEncoderBytes(&body, newHandle())
	if err := enc.Encode(rec); err != nil {
		return nil, domain.ErrSerialization.WithDetails(kind.String()).WithCause(err)
	}
	out := make([]byte, 0, headerSize+len(body))
	out = append(out, FormatVersion, byte(kind))
	return append(out, body...), nil
}

func decode(kind RecordKind, data []byte, rec any) error {
	got, err := PeekKind(data)
	if err != nil {
		return err
	}
	if got != kind {
		return domain.ErrCorruptRecord.WithDetailsf("expected %s record, found %s", kind, got)
	}
	dec := msgpack.NewDecoderBytes(data[headerSize:], newHandle())
	if err := dec.Decode(rec); err != nil {
		return domain.ErrCorruptRecord.WithDetails(kind.String()).WithCause(err)
	}
	return nil
}

func newHandle() *msgpack.MsgpackHandle {
	return &msgpack.MsgpackHandle{}
}

func splitTime(t time.Time) (int64, int32) {
	return t.Unix(), int32(t.Nanosecond())
}

func idBytes(id uuid.UUID) []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

func parseID(field string, b []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, domain.ErrCorruptRecord.WithDetailsf("%s of %d bytes", field, len(b)).WithCause(err)
	}
	return id, nil
}

func setBytes(s domain.IDSet) [][]byte {
	sorted := s.Sorted()
	out := make([][]byte, len(sorted))
	for i, id := range sorted {
		out[i] = idBytes(id)
	}
	return out
}

func parseSet(field string, raw [][]byte) (domain.IDSet, error) {
	s := make(domain.IDSet, len(raw))
	for _, b := range raw {
		id, err := parseID(field, b)
		if err != nil {
			return nil, err
		}
		s.Add(id)
	}
	return s, nil
}
