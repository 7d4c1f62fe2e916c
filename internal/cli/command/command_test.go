package command

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

func createUser(t *testing.T, dir, address string) userView {
	t.Helper()
	var u userView
	mustRunJSON(t, dir, &u, "user", "create", address)
	return u
}

func createRoom(t *testing.T, dir, name, owner string) roomView {
	t.Helper()
	var r roomView
	mustRunJSON(t, dir, &r, "room", "create", "--owner", owner, name)
	return r
}

func TestUserCreateGet(t *testing.T) {
	dir := t.TempDir()
	created := createUser(t, dir, "alice@example.org")

	var got userView
	mustRunJSON(t, dir, &got, "user", "get", created.ID)
	if got.ID != created.ID || got.Address != "alice@example.org" {
		t.Errorf("user get = %+v, want %+v", got, created)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestUserCommand_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want *domain.DomainError
	}{
		{"create without address", []string{"user", "create"}, domain.ErrInvalidArgument},
		{"get without id", []string{"user", "get"}, domain.ErrInvalidArgument},
		{"get malformed id", []string{"user", "get", "nope"}, domain.ErrInvalidArgument},
		{"get unknown id", []string{"user", "get", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, dir, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoomCreateGet(t *testing.T) {
	dir := t.TempDir()
	owner := createUser(t, dir, "alice")
	room := createRoom(t, dir, "general", owner.ID)

	if room.Name != "general" {
		t.Errorf("Name = %q, want general", room.Name)
	}
	if len(room.Owners) != 1 || room.Owners[0] != owner.ID {
		t.Errorf("Owners = %v, want [%s]", room.Owners, owner.ID)
	}
	if len(room.Members) != 1 || room.Members[0] != owner.ID {
		t.Errorf("Members = %v, want [%s]", room.Members, owner.ID)
	}

	var got roomView
	mustRunJSON(t, dir, &got, "room", "get", room.ID)
	if got.ID != room.ID || got.Name != room.Name {
		t.Errorf("room get = %+v, want %+v", got, room)
	}
}

func TestRoomCreate_UnknownOwner(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "room", "create", "--owner", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "general")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRoomJoin(t *testing.T) {
	dir := t.TempDir()
	alice := createUser(t, dir, "alice")
	bob := createUser(t, dir, "bob")
	carol := createUser(t, dir, "carol")
	room := createRoom(t, dir, "general", alice.ID)

	var joined roomView
	mustRunJSON(t, dir, &joined, "room", "join", "--user", bob.ID, room.ID)
	mustRunJSON(t, dir, &joined, "room", "join", "--user", carol.ID, "--owner", room.ID)

	var got roomView
	mustRunJSON(t, dir, &got, "room", "get", room.ID)

	wantMembers := []string{alice.ID, bob.ID, carol.ID}
	sort.Strings(wantMembers)
	if strings.Join(got.Members, ",") != strings.Join(wantMembers, ",") {
		t.Errorf("Members = %v, want %v", got.Members, wantMembers)
	}
	wantOwners := []string{alice.ID, carol.ID}
	sort.Strings(wantOwners)
	if strings.Join(got.Owners, ",") != strings.Join(wantOwners, ",") {
		t.Errorf("Owners = %v, want %v", got.Owners, wantOwners)
	}
}

func TestMessageSend(t *testing.T) {
	dir := t.TempDir()
	alice := createUser(t, dir, "alice")
	room := createRoom(t, dir, "general", alice.ID)

	var msg messageView
	mustRunJSON(t, dir, &msg, "message", "send", "--from", alice.ID, room.ID, "hello", "world")
	if msg.Body != "hello world" || msg.Kind != "text" || msg.Sender != alice.ID {
		t.Errorf("send = %+v", msg)
	}

	mustRunJSON(t, dir, &msg, "message", "send", "--from", alice.ID, "--kind", "file", room.ID, "s3://bucket/a.png")
	if msg.Kind != "file" {
		t.Errorf("Kind = %q, want file", msg.Kind)
	}

	out, err := runCLI(t, dir, "message", "send", "--from", alice.ID, room.ID, "table output")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, "id") || !strings.Contains(out, "table output") {
		t.Errorf("table output = %q, want id and body rows", out)
	}
}

func TestMessageSend_Errors(t *testing.T) {
	dir := t.TempDir()
	alice := createUser(t, dir, "alice")
	mallory := createUser(t, dir, "mallory")
	room := createRoom(t, dir, "general", alice.ID)

	tests := []struct {
		name string
		args []string
		want *domain.DomainError
	}{
		{"not a member", []string{"--from", mallory.ID, room.ID, "hi"}, domain.ErrInvalidArgument},
		{"missing body", []string{"--from", alice.ID, room.ID}, domain.ErrInvalidArgument},
		{"unknown kind", []string{"--from", alice.ID, "--kind", "sticker", room.ID, "hi"}, domain.ErrInvalidContent},
		{"unknown room", []string{"--from", alice.ID, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "hi"}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, dir, append([]string{"message", "send"}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMessageHistory(t *testing.T) {
	dir := t.TempDir()
	alice := createUser(t, dir, "alice")
	room := createRoom(t, dir, "general", alice.ID)

	const total = 5
	sent := make(map[string]bool)
	for i := 0; i < total; i++ {
		var msg messageView
		mustRunJSON(t, dir, &msg, "message", "send", "--from", alice.ID, room.ID, "msg")
		sent[msg.ID] = true
	}

	t.Run("follow cursors", func(t *testing.T) {
		seen := make(map[string]bool)
		cursor := ""
		for pages := 0; ; pages++ {
			if pages > total {
				t.Fatal("pagination did not terminate")
			}
			args := []string{"message", "history", "--limit", "2"}
			if cursor != "" {
				args = append(args, "--cursor", cursor)
			}
			args = append(args, room.ID)
			var page historyView
			mustRunJSON(t, dir, &page, args...)
			if len(page.Messages) > 2 {
				t.Fatalf("page has %d messages, want <= 2", len(page.Messages))
			}
			for _, m := range page.Messages {
				if seen[m.ID] {
					t.Fatalf("message %s returned twice", m.ID)
				}
				seen[m.ID] = true
			}
			if page.Next == "" {
				break
			}
			cursor = page.Next
		}
		if len(seen) != total {
			t.Errorf("saw %d messages, want %d", len(seen), total)
		}
	})

	t.Run("all", func(t *testing.T) {
		var all historyView
		mustRunJSON(t, dir, &all, "message", "history", "--limit", "2", "--all", room.ID)
		if len(all.Messages) != total {
			t.Fatalf("got %d messages, want %d", len(all.Messages), total)
		}
		if all.Next != "" {
			t.Errorf("Next = %q, want empty", all.Next)
		}
		for i, m := range all.Messages {
			if !sent[m.ID] {
				t.Errorf("unexpected message %s", m.ID)
			}
			if i > 0 && m.CreatedAt.After(all.Messages[i-1].CreatedAt) {
				t.Errorf("message %d is newer than message %d", i, i-1)
			}
		}
	})

	t.Run("table shows next cursor", func(t *testing.T) {
		out, err := runCLI(t, dir, "message", "history", "--limit", "1", room.ID)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if !strings.Contains(out, "BODY") || !strings.Contains(out, "next: --cursor ") {
			t.Errorf("table output = %q", out)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := runCLI(t, dir, "-o", "yaml", "message", "history", "--all", room.ID)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if !strings.HasPrefix(out, "messages:") || strings.Contains(out, "next:") {
			t.Errorf("yaml output = %q", out)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := runCLI(t, dir, "message", "history", "--limit", "0", room.ID)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestMessageHistory_EmptyRoom(t *testing.T) {
	dir := t.TempDir()
	alice := createUser(t, dir, "alice")
	room := createRoom(t, dir, "quiet", alice.ID)

	var page historyView
	mustRunJSON(t, dir, &page, "message", "history", room.ID)
	if len(page.Messages) != 0 || page.Next != "" {
		t.Errorf("history = %+v, want empty page", page)
	}
}
