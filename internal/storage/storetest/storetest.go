// Package storetest provides the contract suite every e-charlar store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

// Store is the method set under test.
type Store interface {
	FindUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	SaveUser(ctx context.Context, user *domain.User) error
	FindRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	SaveRoom(ctx context.Context, room *domain.Room) error
	SaveMessage(ctx context.Context, room *domain.Room, message *domain.Message) error
	FindMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error)
	Close() error
}

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) Store

// Base is the creation time of the first message the suite saves.
var Base = time.UnixMilli(1_700_000_000_000).UTC()

// Run runs the whole contract suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"UserRoundTrip", testUserRoundTrip},
		{"RoomRoundTrip", testRoomRoundTrip},
		{"MessageRoundTrip", testMessageRoundTrip},
		{"NotFound", testNotFound},
		{"ErrorContext", testErrorContext},
		{"Upsert", testUpsert},
		{"InvalidArguments", testInvalidArguments},
		{"ReturnedCopies", testReturnedCopies},
		{"ReverseChronological", testReverseChronological},
		{"PaginationCompleteness", testPaginationCompleteness},
		{"ExactPageSizing", testExactPageSizing},
		{"TieBreakStability", testTieBreakStability},
		{"EmptyRoom", testEmptyRoom},
		{"RoomIsolation", testRoomIsolation},
		{"TimestampCursor", testTimestampCursor},
		{"Scenario", testScenario},
		{"ConcurrentSaveAndScan", testConcurrentSaveAndScan},
		{"Close", testClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

// SaveHistory saves n text messages in room, the i-th created at
// Base + i*gap, alternating between senders. It returns them in save order.
func SaveHistory(t *testing.T, s Store, room *domain.Room, n int, gap time.Duration, senders ...*domain.User) []*domain.Message {
	t.Helper()
	if len(senders) == 0 {
		senders = []*domain.User{domain.NewUser("sender")}
	}

	ctx := context.Background()
	msgs := make([]*domain.Message, n)
	for i := 0; i < n; i++ {
		m := domain.NewTextMessage(fmt.Sprintf("message %d", i), senders[i%len(senders)])
		m.CreatedAt = Base.Add(time.Duration(i) * gap)
		if err := s.SaveMessage(ctx, room, m); err != nil {
			t.Fatalf("SaveMessage(%d): %v", i, err)
		}
		msgs[i] = m
	}
	return msgs
}

// WalkHistory pages through the whole room history with the given limit
// and returns every page.
func WalkHistory(t *testing.T, s Store, roomID uuid.UUID, limit int) []*domain.Page {
	t.Helper()

	ctx := context.Background()
	var pages []*domain.Page
	var cursor *domain.Cursor
	for {
		page, err := s.FindMessages(ctx, roomID, limit, cursor)
		if err != nil {
			t.Fatalf("FindMessages(page %d): %v", len(pages), err)
		}
		pages = append(pages, page)
		if page.Next == nil {
			return pages
		}
		if len(pages) > 10_000 {
			t.Fatal("pagination did not terminate")
		}
		cursor = page.Next
	}
}

func flatten(pages []*domain.Page) []*domain.Message {
	var out []*domain.Message
	for _, p := range pages {
		out = append(out, p.Messages...)
	}
	return out
}

// assertReversed checks that got is exactly saved in reverse order.
func assertReversed(t *testing.T, got, saved []*domain.Message) {
	t.Helper()
	if len(got) != len(saved) {
		t.Fatalf("got %d messages, want %d", len(got), len(saved))
	}
	for i, m := range got {
		want := saved[len(saved)-1-i]
		if !m.Equal(want) {
			t.Fatalf("message %d = %q, want %q", i, m.Content.Body(), want.Content.Body())
		}
	}
}

func newRoom(t *testing.T, s Store) *domain.Room {
	t.Helper()
	r := domain.NewRoom("room-"+uuid.NewString()[:8], domain.NewUser("owner"))
	if err := s.SaveRoom(context.Background(), r); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	return r
}

func testUserRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	u := domain.NewUser("alice@example.org")

	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	got, err := s.FindUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if !got.Equal(u) || got.Address != u.Address || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("FindUser = %+v, want %+v", got, u)
	}
}

func testRoomRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	owner := domain.NewUser("owner")
	r := domain.NewRoom("general", owner)
	r.AddMember(uuid.New())

	if err := s.SaveRoom(ctx, r); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	got, err := s.FindRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("FindRoom: %v", err)
	}
	if !got.Equal(r) || got.Name != r.Name {
		t.Errorf("FindRoom = %+v, want %+v", got, r)
	}
	if !got.IsOwner(owner.ID) || !got.IsMember(owner.ID) {
		t.Error("owner should be owner and member")
	}
	if !got.Members.Equal(r.Members) {
		t.Errorf("Members = %v, want %v", got.Members.Sorted(), r.Members.Sorted())
	}
}

func testMessageRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	room := newRoom(t, s)
	sender := domain.NewUser("sender")

	saved := []*domain.Message{
		domain.NewTextMessage("hi", sender),
		domain.NewFileMessage("file://a.pdf", sender),
		domain.NewAudioMessage("file://a.ogg", sender),
		domain.NewVideoMessage("file://a.mp4", sender),
	}
	for i, m := range saved {
		m.CreatedAt = Base.Add(time.Duration(i) * time.Second)
		if err := s.SaveMessage(ctx, room, m); err != nil {
			t.Fatalf("SaveMessage(%s): %v", m.Kind(), err)
		}
	}

	page, err := s.FindMessages(ctx, room.ID, len(saved), nil)
	if err != nil {
		t.Fatalf("FindMessages: %v", err)
	}
	assertReversed(t, page.Messages, saved)
	for i, m := range page.Messages {
		want := saved[len(saved)-1-i]
		if m.Kind() != want.Kind() || m.Content.Body() != want.Content.Body() || m.Sender != want.Sender {
			t.Errorf("message %d = %v %q, want %v %q", i, m.Kind(), m.Content.Body(), want.Kind(), want.Content.Body())
		}
		if !m.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("message %d CreatedAt = %s, want %s", i, m.CreatedAt, want.CreatedAt)
		}
	}
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.FindUser(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindUser(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindRoom(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindRoom(missing) err = %v, want ErrNotFound", err)
	}

	// A user id is not a room id.
	u := domain.NewUser("x")
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindRoom(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindRoom(user id) err = %v, want ErrNotFound", err)
	}
}

// AssertErrorContext fails t unless err matches want under errors.Is and
// its message names every one of parts.
func AssertErrorContext(t *testing.T, err, want error, parts ...string) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
		return
	}
	for _, part := range parts {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("err %q does not name %q", err, part)
		}
	}
}

func testErrorContext(t *testing.T, s Store) {
	ctx := context.Background()

	missing := uuid.New()
	_, err := s.FindUser(ctx, missing)
	AssertErrorContext(t, err, domain.ErrNotFound, "find_user", missing.String())
	_, err = s.FindRoom(ctx, missing)
	AssertErrorContext(t, err, domain.ErrNotFound, "find_room", missing.String())

	room := newRoom(t, s)
	m := domain.NewTextMessage("before the epoch", domain.NewUser("x"))
	m.CreatedAt = time.Unix(-10, 0)
	AssertErrorContext(t, s.SaveMessage(ctx, room, m), domain.ErrEncoding,
		"save_message", room.ID.String(), m.ID.String())

	_, err = s.FindMessages(ctx, room.ID, 10, domain.CursorAt(time.Unix(-10, 0)))
	AssertErrorContext(t, err, domain.ErrEncoding, "find_messages", room.ID.String())
	_, err = s.FindMessages(ctx, room.ID, 0, nil)
	AssertErrorContext(t, err, domain.ErrInvalidArgument, "find_messages", room.ID.String())

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = s.FindRoom(ctx, room.ID)
	AssertErrorContext(t, err, domain.ErrClosed, "find_room", room.ID.String())
	u := domain.NewUser("late")
	AssertErrorContext(t, s.SaveUser(ctx, u), domain.ErrClosed, "save_user", u.ID.String())
	m = domain.NewTextMessage("late", u)
	AssertErrorContext(t, s.SaveMessage(ctx, room, m), domain.ErrClosed,
		"save_message", room.ID.String(), m.ID.String())
}

func testUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	owner := domain.NewUser("owner")
	r := domain.NewRoom("before", owner)
	if err := s.SaveRoom(ctx, r); err != nil {
		t.Fatal(err)
	}

	joiner := uuid.New()
	r.Name = "after"
	r.AddMember(joiner)
	if err := s.SaveRoom(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindRoom(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "after" || !got.IsMember(joiner) {
		t.Errorf("FindRoom after upsert = %+v", got)
	}
}

func testInvalidArguments(t *testing.T, s Store) {
	ctx := context.Background()
	room := newRoom(t, s)

	checks := []struct {
		name string
		err  error
	}{
		{"SaveUser(nil)", s.SaveUser(ctx, nil)},
		{"SaveRoom(nil)", s.SaveRoom(ctx, nil)},
		{"SaveMessage(nil room)", s.SaveMessage(ctx, nil, domain.NewTextMessage("x", domain.NewUser("u")))},
		{"SaveMessage(nil message)", s.SaveMessage(ctx, room, nil)},
	}
	for _, c := range checks {
		if !errors.Is(c.err, domain.ErrInvalidArgument) {
			t.Errorf("%s err = %v, want ErrInvalidArgument", c.name, c.err)
		}
	}

	for _, limit := range []int{0, -1} {
		if _, err := s.FindMessages(ctx, room.ID, limit, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("FindMessages(limit=%d) err = %v, want ErrInvalidArgument", limit, err)
		}
	}

	before := domain.NewTextMessage("old", domain.NewUser("u"))
	before.CreatedAt = time.UnixMilli(-1)
	if err := s.SaveMessage(ctx, room, before); !errors.Is(err, domain.ErrEncoding) {
		t.Errorf("SaveMessage(before epoch) err = %v, want ErrEncoding", err)
	}
}

func testReturnedCopies(t *testing.T, s Store) {
	ctx := context.Background()
	r := newRoom(t, s)

	got, err := s.FindRoom(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Name = "mutated"
	got.AddMember(uuid.New())

	again, err := s.FindRoom(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Name != r.Name || again.Members.Len() != r.Members.Len() {
		t.Error("mutating a returned room changed the stored room")
	}

	r.Name = "local"
	again, _ = s.FindRoom(ctx, r.ID)
	if again.Name == "local" {
		t.Error("mutating a saved room without saving changed the stored room")
	}
}

func testReverseChronological(t *testing.T, s Store) {
	room := newRoom(t, s)
	saved := SaveHistory(t, s, room, 15, time.Millisecond)

	page, err := s.FindMessages(context.Background(), room.ID, len(saved), nil)
	if err != nil {
		t.Fatalf("FindMessages: %v", err)
	}
	assertReversed(t, page.Messages, saved)
	if page.Next != nil {
		t.Errorf("Next = %+v, want nil", page.Next)
	}
}

func testPaginationCompleteness(t *testing.T, s Store) {
	room := newRoom(t, s)
	const n = 23
	saved := SaveHistory(t, s, room, n, 3*time.Millisecond)

	for limit := 1; limit <= n; limit++ {
		pages := WalkHistory(t, s, room.ID, limit)
		all := flatten(pages)
		assertReversed(t, all, saved)

		seen := make(map[uuid.UUID]bool, n)
		for _, m := range all {
			if seen[m.ID] {
				t.Fatalf("limit %d: message %s visited twice", limit, m.ID)
			}
			seen[m.ID] = true
		}
	}
}

func testExactPageSizing(t *testing.T, s Store) {
	room := newRoom(t, s)
	const n = 20
	SaveHistory(t, s, room, n, time.Millisecond)

	for _, limit := range []int{1, 3, 7, 10, 20, 25} {
		pages := WalkHistory(t, s, room.ID, limit)

		wantPages := (n + limit - 1) / limit
		if len(pages) != wantPages {
			t.Fatalf("limit %d: %d pages, want %d", limit, len(pages), wantPages)
		}
		for i, p := range pages[:len(pages)-1] {
			if len(p.Messages) != limit {
				t.Errorf("limit %d: page %d has %d messages, want %d", limit, i, len(p.Messages), limit)
			}
			if !p.HasMore() {
				t.Errorf("limit %d: page %d should have a next cursor", limit, i)
			}
		}

		last := pages[len(pages)-1]
		want := n % limit
		if want == 0 || limit > n {
			want = min(limit, n)
		}
		if len(last.Messages) != want {
			t.Errorf("limit %d: last page has %d messages, want %d", limit, len(last.Messages), want)
		}
		if last.Next != nil {
			t.Errorf("limit %d: last page Next = %+v, want nil", limit, last.Next)
		}
	}
}

func testTieBreakStability(t *testing.T, s Store) {
	room := newRoom(t, s)
	const n = 9

	// All in the same millisecond.
	saved := SaveHistory(t, s, room, n, time.Microsecond)

	for _, limit := range []int{1, 2, 4, n} {
		all := flatten(WalkHistory(t, s, room.ID, limit))
		if len(all) != n {
			t.Fatalf("limit %d: got %d messages, want %d", limit, len(all), n)
		}

		seen := make(map[uuid.UUID]int, n)
		for _, m := range all {
			seen[m.ID]++
		}
		for _, m := range saved {
			if seen[m.ID] != 1 {
				t.Errorf("limit %d: message %s seen %d times, want 1", limit, m.ID, seen[m.ID])
			}
		}
	}
}

func testEmptyRoom(t *testing.T, s Store) {
	room := newRoom(t, s)

	page, err := s.FindMessages(context.Background(), room.ID, 10, nil)
	if err != nil {
		t.Fatalf("FindMessages: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Errorf("got %d messages, want 0", len(page.Messages))
	}
	if page.Next != nil {
		t.Errorf("Next = %+v, want nil", page.Next)
	}

	// A room that was never saved has no history either.
	page, err = s.FindMessages(context.Background(), uuid.New(), 10, nil)
	if err != nil || len(page.Messages) != 0 || page.Next != nil {
		t.Errorf("unknown room = %+v, %v", page, err)
	}
}

func testRoomIsolation(t *testing.T, s Store) {
	a, b := newRoom(t, s), newRoom(t, s)
	savedA := SaveHistory(t, s, a, 6, time.Millisecond)
	savedB := SaveHistory(t, s, b, 4, time.Millisecond)

	assertReversed(t, flatten(WalkHistory(t, s, a.ID, 4)), savedA)
	assertReversed(t, flatten(WalkHistory(t, s, b.ID, 4)), savedB)
}

func testTimestampCursor(t *testing.T, s Store) {
	room := newRoom(t, s)
	saved := SaveHistory(t, s, room, 10, 10*time.Millisecond)

	// Resuming at the 5th message's time yields it and everything older.
	page, err := s.FindMessages(context.Background(), room.ID, 100, domain.CursorAt(saved[4].CreatedAt))
	if err != nil {
		t.Fatalf("FindMessages: %v", err)
	}
	assertReversed(t, page.Messages, saved[:5])

	// A cursor newer than every message yields the whole history.
	page, err = s.FindMessages(context.Background(), room.ID, 100, domain.CursorAt(Base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("FindMessages: %v", err)
	}
	assertReversed(t, page.Messages, saved)
}

func testScenario(t *testing.T, s Store) {
	ctx := context.Background()

	u1, u2 := domain.NewUser("u1@example.org"), domain.NewUser("u2@example.org")
	for _, u := range []*domain.User{u1, u2} {
		if err := s.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}

	room := domain.NewRoom("R", u1)
	if err := s.SaveRoom(ctx, room); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	if room.Members.Len() != 1 || !room.IsOwner(u1.ID) {
		t.Fatalf("room should start with U1 as sole member and owner")
	}

	saved := SaveHistory(t, s, room, 20, 5*time.Millisecond, u1, u2)

	first, err := s.FindMessages(ctx, room.ID, 12, nil)
	if err != nil {
		t.Fatalf("FindMessages(page 1): %v", err)
	}
	if len(first.Messages) != 12 {
		t.Fatalf("page 1 has %d messages, want 12", len(first.Messages))
	}
	if first.Next == nil {
		t.Fatal("page 1 should have a next cursor")
	}

	second, err := s.FindMessages(ctx, room.ID, 12, first.Next)
	if err != nil {
		t.Fatalf("FindMessages(page 2): %v", err)
	}
	if len(second.Messages) != 8 {
		t.Fatalf("page 2 has %d messages, want 8", len(second.Messages))
	}
	if second.Next != nil {
		t.Errorf("page 2 Next = %+v, want nil", second.Next)
	}

	all := append(first.Messages, second.Messages...)
	assertReversed(t, all, saved)
	for i, m := range all {
		want := u1.ID
		if (len(saved)-1-i)%2 == 1 {
			want = u2.ID
		}
		if m.Sender != want {
			t.Errorf("message %d sender = %s, want %s", i, m.Sender, want)
		}
	}
}

func testConcurrentSaveAndScan(t *testing.T, s Store) {
	ctx := context.Background()
	room := newRoom(t, s)
	sender := domain.NewUser("sender")

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	errCh := make(chan error, writers+2)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m := domain.NewTextMessage(fmt.Sprintf("w%d-%d", w, i), sender)
				m.CreatedAt = Base.Add(time.Duration(w*perWriter+i) * time.Millisecond)
				if err := s.SaveMessage(ctx, room, m); err != nil {
					errCh <- err
					return
				}
			}
		}(w)
	}

	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				page, err := s.FindMessages(ctx, room.ID, 10, nil)
				if err != nil {
					errCh <- err
					return
				}
				for j := 1; j < len(page.Messages); j++ {
					if page.Messages[j].CreatedAt.After(page.Messages[j-1].CreatedAt) {
						errCh <- fmt.Errorf("page out of order at %d", j)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	all := flatten(WalkHistory(t, s, room.ID, 7))
	if len(all) != writers*perWriter {
		t.Errorf("got %d messages, want %d", len(all), writers*perWriter)
	}
}

func testClose(t *testing.T, s Store) {
	ctx := context.Background()
	u := domain.NewUser("x")
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := s.FindUser(ctx, u.ID); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("FindUser after Close err = %v, want ErrClosed", err)
	}
	if err := s.SaveUser(ctx, u); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("SaveUser after Close err = %v, want ErrClosed", err)
	}
	if _, err := s.FindMessages(ctx, uuid.New(), 1, nil); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("FindMessages after Close err = %v, want ErrClosed", err)
	}
}
