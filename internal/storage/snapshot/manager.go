package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/volodymyrd/echarlar/pkg/crypto/adaptive"
)

// Magic bytes identify snapshot files.
var magicBytes = []byte("ECHRSNAP")

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"
	checksumSize  = 32
	headerVersion = 1

	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNotFound         = errors.New("snapshot: not found")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
)

// Source is the store a snapshot is read from. ScanAll must yield every
// record from one consistent read view.
type Source interface {
	ScanAll(ctx context.Context, fn func(partition string, key, value []byte) error) error
}

// Sink is the store a snapshot is restored into.
type Sink interface {
	Set(ctx context.Context, partition string, key, value []byte) error
}

type header struct {
	Version   int               `json:"version"`
	CreatedAt int64             `json:"created_at"`
	Records   map[string]uint64 `json:"records"`
	Encrypted bool              `json:"encrypted"`
	Algorithm string            `json:"algorithm,omitempty"`
	Salt      []byte            `json:"salt,omitempty"`
}

type record struct {
	Partition string `codec:"p"`
	Key       []byte `codec:"k"`
	Value     []byte `codec:"v"`
}

// Config configures the snapshot manager.
type Config struct {
	Dir string

	RetentionCount int
	RetentionDays  int

	Encryption EncryptionConfig

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with the default retention.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Manager creates, lists, restores and prunes snapshots in one directory.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates the snapshot directory if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := cfg.Encryption.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{cfg: cfg, logger: logger}, nil
}

// Info contains metadata about a snapshot.
type Info struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Records   map[string]uint64 `json:"records,omitempty"`
	Encrypted bool              `json:"encrypted"`
	Algorithm string            `json:"algorithm,omitempty"`
	Size      int64             `json:"size"`
	Path      string            `json:"path"`
	Checksum  string            `json:"checksum,omitempty"`
}

// RecordCount returns the total number of records in the snapshot.
func (i *Info) RecordCount() uint64 {
	var n uint64
	for _, c := range i.Records {
		n += c
	}
	return n
}

// Create writes a snapshot of every partition of src.
func (m *Manager) Create(ctx context.Context, src Source) (*Info, error) {
	start := time.Now()

	// Records are encoded one by one as the scan yields them; the block is
	// a plain sequence of MessagePack records, counted in the header.
	var data bytes.Buffer
	counts := make(map[string]uint64)
	h := &msgpack.MsgpackHandle{}
	err := src.ScanAll(ctx, func(partition string, key, value []byte) error {
		var out []byte
		if err := msgpack.NewEncoderBytes(&out, h).Encode(record{Partition: partition, Key: key, Value: value}); err != nil {
			return fmt.Errorf("snapshot: encode %s record: %w", partition, err)
		}
		data.Write(out)
		counts[partition]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: scan: %w", err)
	}

	hdr := header{
		Version:   headerVersion,
		CreatedAt: start.UnixMilli(),
		Records:   counts,
	}
	var c *adaptive.Cipher
	if m.cfg.Encryption.Enabled() {
		salt, err := newSalt()
		if err != nil {
			return nil, err
		}
		if c, err = newCipher(m.cfg.Encryption.Passphrase, salt, m.cfg.Encryption.Algorithm); err != nil {
			return nil, err
		}
		hdr.Encrypted = true
		hdr.Algorithm = string(c.Type())
		hdr.Salt = salt
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}
	block := data.Bytes()
	if c != nil {
		if block, err = c.Seal(block, hdrJSON); err != nil {
			return nil, fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}

	id := m.generateID(start)
	sum, size, err := m.writeFile(id, hdrJSON, block)
	if err != nil {
		return nil, err
	}

	info := &Info{
		ID:        id,
		CreatedAt: time.UnixMilli(hdr.CreatedAt),
		Records:   counts,
		Encrypted: hdr.Encrypted,
		Algorithm: hdr.Algorithm,
		Size:      size,
		Path:      m.path(id),
		Checksum:  hex.EncodeToString(sum),
	}
	m.logger.Info("snapshot created",
		"id", id,
		"records", info.RecordCount(),
		"size", size,
		"encrypted", hdr.Encrypted,
		"elapsed", time.Since(start))
	return info, nil
}

// writeFile writes the snapshot to a temp file and renames it into place.
func (m *Manager) writeFile(id string, hdrJSON, data []byte) ([]byte, int64, error) {
	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	w := bufio.NewWriter(io.MultiWriter(file, hash))

	var lenBuf [4]byte
	w.Write(magicBytes)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrJSON)))
	w.Write(lenBuf[:])
	w.Write(hdrJSON)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	w.Write(lenBuf[:])
	w.Write(data)
	if err := w.Flush(); err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("snapshot: write: %w", err)
	}

	// The checksum trailer is not part of the hash.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, 0, fmt.Errorf("snapshot: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, 0, err
	}
	if err := os.Rename(tempPath, m.path(id)); err != nil {
		return nil, 0, fmt.Errorf("snapshot: rename: %w", err)
	}
	return sum, stat.Size(), nil
}

// Restore writes every record of snapshot id into dst. An empty id
// selects the latest valid snapshot. Existing keys in dst are
// overwritten; other keys are left alone.
func (m *Manager) Restore(ctx context.Context, id string, dst Sink) (*Info, error) {
	data, info, err := m.load(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	total := info.RecordCount()
	dec := msgpack.NewDecoderBytes(data, &msgpack.MsgpackHandle{})
	for i := uint64(0); i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r record
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("snapshot: decode record %d of %d: %w", i+1, total, err)
		}
		if err := dst.Set(ctx, r.Partition, r.Key, r.Value); err != nil {
			return nil, fmt.Errorf("snapshot: restore %s: %w", r.Partition, err)
		}
	}

	m.logger.Info("snapshot restored",
		"id", info.ID,
		"records", total,
		"elapsed", time.Since(start))
	return info, nil
}

// Inspect verifies snapshot id and returns its metadata without
// decrypting the data block.
func (m *Manager) Inspect(id string) (*Info, error) {
	_, _, info, err := m.readFile(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, err
}

// load returns the plaintext data block of snapshot id, or of the latest
// valid snapshot when id is empty.
func (m *Manager) load(id string) ([]byte, *Info, error) {
	if id != "" {
		data, info, err := m.loadFile(m.path(id))
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return data, info, err
	}

	snapshots, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		data, info, err := m.loadFile(snapshots[i].Path)
		if err == nil {
			return data, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			m.logger.Warn("skipping invalid snapshot", "id", snapshots[i].ID, "error", err)
			continue
		}
		return nil, nil, err
	}
	return nil, nil, ErrNoSnapshots
}

func (m *Manager) loadFile(path string) ([]byte, *Info, error) {
	hdr, data, info, err := m.readFile(path)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case hdr.Encrypted && !m.cfg.Encryption.Enabled():
		return nil, nil, ErrEncrypted
	case !hdr.Encrypted && m.cfg.Encryption.Enabled():
		return nil, nil, ErrNotEncrypted
	case hdr.Encrypted:
		c, err := newCipher(m.cfg.Encryption.Passphrase, hdr.Salt, hdr.Algorithm)
		if err != nil {
			return nil, nil, err
		}
		if data, err = c.Open(data, hdr.raw); err != nil {
			return nil, nil, ErrDecryptionFailed
		}
	}
	return data, info, nil
}

// rawHeader keeps the header bytes exactly as written; they are the
// additional data of the sealed block.
type rawHeader struct {
	header
	raw []byte
}

// readFile verifies the checksum and splits the file into header and
// data block.
func (m *Manager) readFile(path string) (*rawHeader, []byte, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+8+checksumSize {
		return nil, nil, nil, ErrChecksumMismatch
	}

	bodyLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, bodyLen, checksumSize), expected); err != nil {
		return nil, nil, nil, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, bodyLen)); err != nil {
		return nil, nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, bodyLen))
	hdr, err := readHeader(br)
	if err != nil {
		return nil, nil, nil, err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, nil, nil, err
	}
	data := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, nil, nil, err
	}

	info := hdr.info(path, stat.Size())
	info.Checksum = hex.EncodeToString(expected)
	return hdr, data, info, nil
}

func readHeader(r io.Reader) (*rawHeader, error) {
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, ErrInvalidMagic
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, fmt.Errorf("snapshot: empty header")
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	hdr := &rawHeader{raw: raw}
	if err := json.Unmarshal(raw, &hdr.header); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}
	return hdr, nil
}

func (h *rawHeader) info(path string, size int64) *Info {
	return &Info{
		ID:        strings.TrimSuffix(filepath.Base(path), fileExtension),
		CreatedAt: time.UnixMilli(h.CreatedAt),
		Records:   h.Records,
		Encrypted: h.Encrypted,
		Algorithm: h.Algorithm,
		Size:      size,
		Path:      path,
	}
}

// List lists snapshots oldest first. Metadata comes from the header
// only; checksums are not verified.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	sort.Strings(paths)

	infos := make([]*Info, 0, len(paths))
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		info := &Info{
			ID:   strings.TrimSuffix(filepath.Base(p), fileExtension),
			Path: p,
			Size: stat.Size(),
		}
		if f, err := os.Open(p); err == nil {
			if hdr, err := readHeader(bufio.NewReader(f)); err == nil {
				info = hdr.info(p, stat.Size())
			}
			f.Close()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Prune applies the retention policy and returns the number of deleted
// snapshots. The newest snapshot is always kept.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(infos) <= 1 {
		return 0, nil
	}

	keep := make(map[string]struct{}, len(infos))

	if m.cfg.RetentionCount > 0 {
		start := max(len(infos)-m.cfg.RetentionCount, 0)
		for _, info := range infos[start:] {
			keep[info.Path] = struct{}{}
		}
	}

	if m.cfg.RetentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
		for _, info := range infos {
			st, err := os.Stat(info.Path)
			if err != nil {
				continue
			}
			if st.ModTime().After(cutoff) {
				keep[info.Path] = struct{}{}
			}
		}
	}

	keep[infos[len(infos)-1].Path] = struct{}{}

	removed := 0
	for _, info := range infos {
		if _, ok := keep[info.Path]; ok {
			continue
		}
		if err := os.Remove(info.Path); err != nil {
			m.logger.Warn("snapshot prune failed", "id", info.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("snapshots pruned", "removed", removed, "kept", len(infos)-removed)
	}
	return removed, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.cfg.Dir, id+fileExtension)
}

func (m *Manager) generateID(t time.Time) string {
	ts := t.UTC().Format("20060102150405")
	prefix := filePrefix + ts + "-"
	seq := 0

	entries, _ := os.ReadDir(m.cfg.Dir)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), fileExtension))
		if err == nil && n > seq {
			seq = n
		}
	}

	return fmt.Sprintf("%s%04d", prefix, seq+1)
}
