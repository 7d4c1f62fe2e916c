package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"
)

// mapStore is an in-memory Source and Sink.
type mapStore struct {
	data map[string]map[string][]byte
}

func newMapStore(partitions ...string) *mapStore {
	s := &mapStore{data: make(map[string]map[string][]byte)}
	for _, p := range partitions {
		s.data[p] = make(map[string][]byte)
	}
	return s
}

func (s *mapStore) Partitions() []string {
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *mapStore) ScanAll(_ context.Context, fn func(partition string, key, value []byte) error) error {
	for _, p := range s.Partitions() {
		keys := make([]string, 0, len(s.data[p]))
		for k := range s.data[p] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := fn(p, []byte(k), s.data[p][k]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *mapStore) Set(_ context.Context, partition string, key, value []byte) error {
	if s.data[partition] == nil {
		s.data[partition] = make(map[string][]byte)
	}
	s.data[partition][string(key)] = append([]byte(nil), value...)
	return nil
}

func seeded() *mapStore {
	s := newMapStore("messages", "rooms", "users")
	ctx := context.Background()
	s.Set(ctx, "users", []byte("u1"), []byte("alice"))
	s.Set(ctx, "users", []byte("u2"), []byte("bob"))
	s.Set(ctx, "rooms", []byte("r1"), []byte("general"))
	s.Set(ctx, "messages", []byte("m1"), []byte("hello"))
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, dir string, enc EncryptionConfig) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Dir:        dir,
		Encryption: enc,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func assertSameData(t *testing.T, want, got *mapStore) {
	t.Helper()
	for p, kv := range want.data {
		for k, v := range kv {
			if !bytes.Equal(got.data[p][k], v) {
				t.Errorf("%s/%s = %q, want %q", p, k, got.data[p][k], v)
			}
		}
	}
}

func TestManager_CreateAndRestore(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir(), EncryptionConfig{})
	src := seeded()

	info, err := m.Create(ctx, src)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(info.ID, filePrefix) {
		t.Errorf("ID = %q, want prefix %q", info.ID, filePrefix)
	}
	if info.RecordCount() != 4 {
		t.Errorf("RecordCount = %d, want 4", info.RecordCount())
	}
	if info.Records["users"] != 2 {
		t.Errorf("users = %d, want 2", info.Records["users"])
	}
	if info.Encrypted {
		t.Error("plaintext snapshot reported as encrypted")
	}
	if len(info.Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(info.Checksum))
	}

	dst := newMapStore()
	restored, err := m.Restore(ctx, info.ID, dst)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.ID != info.ID {
		t.Errorf("restored %q, want %q", restored.ID, info.ID)
	}
	assertSameData(t, src, dst)
}

func TestManager_RestoreMergesIntoExisting(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir(), EncryptionConfig{})

	if _, err := m.Create(ctx, seeded()); err != nil {
		t.Fatal(err)
	}

	dst := newMapStore()
	dst.Set(ctx, "users", []byte("u1"), []byte("stale"))
	dst.Set(ctx, "users", []byte("u9"), []byte("carol"))

	if _, err := m.Restore(ctx, "", dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := string(dst.data["users"]["u1"]); got != "alice" {
		t.Errorf("u1 = %q, want overwritten by snapshot", got)
	}
	if got := string(dst.data["users"]["u9"]); got != "carol" {
		t.Errorf("u9 = %q, want untouched", got)
	}
}

func TestManager_Encrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	passphrase := []byte("correct horse battery")
	m := newTestManager(t, dir, EncryptionConfig{Passphrase: passphrase, Algorithm: "chacha20-poly1305"})
	src := seeded()

	info, err := m.Create(ctx, src)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !info.Encrypted || info.Algorithm != "chacha20-poly1305" {
		t.Errorf("info = %+v, want encrypted chacha20-poly1305", info)
	}

	raw, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("alice")) {
		t.Error("snapshot file contains plaintext value")
	}

	t.Run("same passphrase", func(t *testing.T) {
		dst := newMapStore()
		if _, err := m.Restore(ctx, info.ID, dst); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		assertSameData(t, src, dst)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		other := newTestManager(t, dir, EncryptionConfig{Passphrase: []byte("wrong passphrase")})
		_, err := other.Restore(ctx, info.ID, newMapStore())
		if !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("err = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("no passphrase", func(t *testing.T) {
		plain := newTestManager(t, dir, EncryptionConfig{})
		_, err := plain.Restore(ctx, info.ID, newMapStore())
		if !errors.Is(err, ErrEncrypted) {
			t.Errorf("err = %v, want ErrEncrypted", err)
		}
	})

	t.Run("inspect without passphrase", func(t *testing.T) {
		plain := newTestManager(t, dir, EncryptionConfig{})
		got, err := plain.Inspect(info.ID)
		if err != nil {
			t.Fatalf("Inspect: %v", err)
		}
		if !got.Encrypted || got.RecordCount() != 4 {
			t.Errorf("Inspect = %+v", got)
		}
	})
}

func TestManager_PlaintextRejectedWithPassphrase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	info, err := newTestManager(t, dir, EncryptionConfig{}).Create(ctx, seeded())
	if err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, dir, EncryptionConfig{Passphrase: []byte("some passphrase")})
	if _, err := m.Restore(ctx, info.ID, newMapStore()); !errors.Is(err, ErrNotEncrypted) {
		t.Errorf("err = %v, want ErrNotEncrypted", err)
	}
}

func TestManager_TamperedHeaderFailsAuthentication(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir(), EncryptionConfig{Passphrase: []byte("tamper-proof")})

	info, err := m.Create(ctx, seeded())
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	body := raw[:len(raw)-checksumSize]
	tampered := bytes.Replace(body, []byte(`"users":2`), []byte(`"users":3`), 1)
	if bytes.Equal(tampered, body) {
		t.Fatal("header field not found")
	}
	sum := sha256.Sum256(tampered)
	if err := os.WriteFile(info.Path, append(tampered, sum[:]...), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Restore(ctx, info.ID, newMapStore()); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("err = %v, want ErrDecryptionFailed", err)
	}
}

func TestManager_RecordCountBeyondData(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir(), EncryptionConfig{})

	info, err := m.Create(ctx, seeded())
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	body := raw[:len(raw)-checksumSize]
	inflated := bytes.Replace(body, []byte(`"users":2`), []byte(`"users":3`), 1)
	if bytes.Equal(inflated, body) {
		t.Fatal("header field not found")
	}
	sum := sha256.Sum256(inflated)
	if err := os.WriteFile(info.Path, append(inflated, sum[:]...), 0600); err != nil {
		t.Fatal(err)
	}

	_, err = m.Restore(ctx, info.ID, newMapStore())
	if err == nil || !strings.Contains(err.Error(), "decode record 5 of 5") {
		t.Errorf("err = %v, want decode failure of record 5", err)
	}
}

func TestManager_RestoreLatestSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir(), EncryptionConfig{})

	first := seeded()
	older, err := m.Create(ctx, first)
	if err != nil {
		t.Fatal(err)
	}

	second := newMapStore("users")
	second.Set(ctx, "users", []byte("u3"), []byte("dave"))
	newer, err := m.Create(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if newer.ID <= older.ID {
		t.Fatalf("IDs not ordered: %q then %q", older.ID, newer.ID)
	}

	raw, err := os.ReadFile(newer.Path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(magicBytes)+10] ^= 0xff
	if err := os.WriteFile(newer.Path, raw, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Inspect(newer.ID); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Inspect err = %v, want ErrChecksumMismatch", err)
	}

	dst := newMapStore()
	info, err := m.Restore(ctx, "", dst)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if info.ID != older.ID {
		t.Errorf("restored %q, want fallback to %q", info.ID, older.ID)
	}
	assertSameData(t, first, dst)

	if _, err := m.Restore(ctx, newer.ID, newMapStore()); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("explicit restore err = %v, want ErrChecksumMismatch", err)
	}
}

func TestManager_NotFound(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir(), EncryptionConfig{})

	if _, err := m.Restore(ctx, "", newMapStore()); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("latest err = %v, want ErrNoSnapshots", err)
	}
	if _, err := m.Restore(ctx, "snapshot-missing", newMapStore()); !errors.Is(err, ErrNotFound) {
		t.Errorf("restore err = %v, want ErrNotFound", err)
	}
	if _, err := m.Inspect("snapshot-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("inspect err = %v, want ErrNotFound", err)
	}
}

func TestManager_ListAndPrune(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := NewManager(Config{
		Dir:            dir,
		RetentionCount: 2,
		RetentionDays:  -1,
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		info, err := m.Create(ctx, seeded())
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, info.ID)
	}
	if err := os.WriteFile(dir+"/unrelated.txt", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	list, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 4 {
		t.Fatalf("List = %d snapshots, want 4", len(list))
	}
	for i, info := range list {
		if info.ID != ids[i] {
			t.Errorf("List[%d] = %q, want %q", i, info.ID, ids[i])
		}
		if info.RecordCount() != 4 {
			t.Errorf("List[%d] records = %d, want 4", i, info.RecordCount())
		}
	}

	removed, err := m.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Prune removed %d, want 2", removed)
	}

	list, _ = m.List()
	if len(list) != 2 || list[0].ID != ids[2] || list[1].ID != ids[3] {
		t.Errorf("after prune: %v", list)
	}
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("expected error for empty dir")
	}
	_, err := NewManager(Config{Dir: t.TempDir(), Encryption: EncryptionConfig{Passphrase: []byte("short")}})
	if !errors.Is(err, ErrPassphraseTooWeak) {
		t.Errorf("err = %v, want ErrPassphraseTooWeak", err)
	}
	_, err = NewManager(Config{Dir: t.TempDir(), Encryption: EncryptionConfig{Passphrase: []byte("long enough"), Algorithm: "rot13"}})
	if err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltLength)

	a, err := deriveKey([]byte("passphrase"), salt)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := deriveKey([]byte("passphrase"), salt)
	if !bytes.Equal(a, b) {
		t.Error("key derivation is not deterministic")
	}

	other := bytes.Repeat([]byte{2}, SaltLength)
	c, _ := deriveKey([]byte("passphrase"), other)
	if bytes.Equal(a, c) {
		t.Error("different salts produced the same key")
	}

	if _, err := deriveKey([]byte("passphrase"), []byte("short")); err == nil {
		t.Error("expected error for short salt")
	}

	ZeroKey(a)
	if !bytes.Equal(a, make([]byte, len(a))) {
		t.Error("ZeroKey left key material")
	}
}
