package storage

import (
	"context"
	"errors"
	"time"
)

// Partition names. Each partition is an independently ordered keyspace
// inside one physical store.
const (
	PartitionUsers    = "users"
	PartitionRooms    = "rooms"
	PartitionMessages = "messages"
)

// Partitions lists every partition a store must hold.
var Partitions = []string{PartitionUsers, PartitionRooms, PartitionMessages}

// Common errors
var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrUnknownPartition = errors.New("unknown partition")
	ErrEngineClosed     = errors.New("kv engine closed")
)

// KVEngine defines the interface for an ordered, partitioned embedded
// key-value store.
//
// Implementation requirements:
// - Thread-safe: concurrent reads, writes and scans must be safe
// - Durable: a Set that returned survives a process restart
// - Ordered: Scan visits keys in ascending byte order
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, partition string, key []byte) ([]byte, error)

	// Set stores a key-value pair atomically.
	Set(ctx context.Context, partition string, key, value []byte) error

	// Scan visits the keys of partition that start with prefix, in
	// ascending order, beginning at the first key >= from.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, partition string, prefix, from []byte, fn func(key, value []byte) bool) error

	// ScanAll visits every key of every partition, partitions in sorted
	// order, from a single consistent read view. Keys and values handed to
	// fn are only valid during the call. An error from fn stops the scan
	// and is returned.
	ScanAll(ctx context.Context, fn func(partition string, key, value []byte) error) error

	// Partitions returns the names of the partitions located on open.
	Partitions() []string

	// Sync flushes pending writes to disk.
	Sync() error

	// GC triggers garbage collection (for LSM-based engines like Badger).
	// Returns the number of value log files rewritten.
	GC(ctx context.Context) (int, error)

	// Stats returns storage statistics.
	Stats(ctx context.Context) (*KVStats, error)

	// Close gracefully shuts down the KV engine.
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// LSMSize is the LSM tree size in bytes.
	LSMSize uint64

	// ValueLogSize is the value log size in bytes.
	ValueLogSize uint64

	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCRewrites is the total number of value log files rewritten by GC.
	GCRewrites uint64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory.
	Dir string

	// CreateIfMissing creates absent partitions on open.
	CreateIfMissing bool

	// Badger-specific configuration
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic value log GC runs.
	// Zero disables the background loop.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5 (rewrite a file when 50% of it is stale)
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// SyncWrites fsyncs after each write.
	// Default: true; saves must be durable when they return.
	SyncWrites bool
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:             dir,
		CreateIfMissing: DefaultCreateIfMissing,
		Badger:          DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:  DefaultGCInterval,
		GCThreshold: DefaultGCDiscardRatio,
		CacheSize:   DefaultCacheSize,
		SyncWrites:  DefaultSyncWrites,
	}
}

// KVConfigFromOptions maps validated store options onto a KVConfig.
func KVConfigFromOptions(opts Options) KVConfig {
	return KVConfig{
		Dir:             opts.Path(),
		CreateIfMissing: opts.CreateIfMissing(),
		Badger: BadgerConfig{
			GCInterval:  opts.GCInterval(),
			GCThreshold: opts.GCDiscardRatio(),
			CacheSize:   opts.CacheSize(),
			SyncWrites:  opts.SyncWrites(),
		},
	}
}
