package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// partitionMetaPrefix is the reserved keyspace holding one marker per
// partition. It starts with 0x00 so it sorts before, and never overlaps,
// any partition's data keys.
var partitionMetaPrefix = []byte("\x00meta/partition/")

// BadgerEngine implements KVEngine using Badger v3.
//
// Badger has no native column families, so every partition is a key
// prefix (name + 0x00) plus a marker key recorded when the partition is
// created. Open locates the markers of all partitions.
type BadgerEngine struct {
	db         *badger.DB
	cfg        BadgerConfig
	logger     *slog.Logger
	partitions map[string][]byte // name -> data key prefix

	// Metrics (internal counters)
	lastGCTime atomic.Int64  // Unix milliseconds
	gcRewrites atomic.Uint64 // Total value log files rewritten by GC

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsTotalSize    prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRewrites   prometheus.Counter

	// Shutdown
	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBadgerEngine opens or creates a Badger-based KV engine and locates
// its partitions.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Build Badger options
	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}

	badgerCfg := cfg.Badger
	if badgerCfg.CacheSize > 0 {
		opts.BlockCacheSize = badgerCfg.CacheSize
	}
	opts.SyncWrites = badgerCfg.SyncWrites

	// Open Badger DB
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	engine := &BadgerEngine{
		db:         db,
		cfg:        badgerCfg,
		logger:     logger,
		partitions: make(map[string][]byte, len(Partitions)),
		stopCh:     make(chan struct{}),
	}

	created, err := engine.locatePartitions(cfg.CreateIfMissing)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(created) > 0 {
		logger.Info("badger partitions created", "dir", cfg.Dir, "partitions", created)
	}

	// Start background GC loop
	engine.wg.Add(1)
	go engine.gcLoop()

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"cache_size", badgerCfg.CacheSize,
		"sync_writes", badgerCfg.SyncWrites,
		"gc_interval", badgerCfg.GCInterval)

	return engine, nil
}

// locatePartitions finds the marker of every partition, creating absent
// ones when create is set.
func (e *BadgerEngine) locatePartitions(create bool) ([]string, error) {
	var created []string

	err := e.db.Update(func(txn *badger.Txn) error {
		for _, name := range Partitions {
			marker := partitionMarker(name)
			_, err := txn.Get(marker)
			switch {
			case err == nil:
			case errors.Is(err, badger.ErrKeyNotFound):
				if !create {
					return fmt.Errorf("badger: partition %q not found", name)
				}
				stamp := make([]byte, 8)
				binary.BigEndian.PutUint64(stamp, uint64(time.Now().UnixMilli()))
				if err := txn.Set(marker, stamp); err != nil {
					return fmt.Errorf("badger: create partition %q: %w", name, err)
				}
				created = append(created, name)
			default:
				return fmt.Errorf("badger: locate partition %q: %w", name, err)
			}
			e.partitions[name] = partitionPrefix(name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func partitionMarker(name string) []byte {
	return append(append([]byte{}, partitionMetaPrefix...), name...)
}

func partitionPrefix(name string) []byte {
	return append([]byte(name), 0x00)
}

func (e *BadgerEngine) prefixFor(partition string) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	p, ok := e.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPartition, partition)
	}
	return p, nil
}

func join(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, partition string, key []byte) ([]byte, error) {
	prefix, err := e.prefixFor(partition)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(join(prefix, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, partition string, key, value []byte) error {
	prefix, err := e.prefixFor(partition)
	if err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(join(prefix, key), value)
	})
}

// Scan iterates over the keys of a partition that share prefix, starting
// at from. Keys and values handed to fn are copies owned by the caller.
func (e *BadgerEngine) Scan(ctx context.Context, partition string, prefix, from []byte, fn func(key, value []byte) bool) error {
	pp, err := e.prefixFor(partition)
	if err != nil {
		return err
	}

	full := join(pp, prefix)
	seek := full
	if len(from) > 0 {
		seek = join(pp, from)
	}

	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(full); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			if !fn(key[len(pp):], value) {
				break
			}
		}

		return nil
	})
}

// ScanAll walks every partition inside one read transaction, so the
// records it yields form a point-in-time cut of the store.
func (e *BadgerEngine) ScanAll(ctx context.Context, fn func(partition string, key, value []byte) error) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	names := e.Partitions()

	return e.db.View(func(txn *badger.Txn) error {
		for _, name := range names {
			pp := e.partitions[name]
			opts := badger.DefaultIteratorOptions
			opts.Prefix = pp
			it := txn.NewIterator(opts)

			for it.Seek(pp); it.ValidForPrefix(pp); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				item := it.Item()
				key := item.Key()[len(pp):]
				if err := item.Value(func(value []byte) error {
					return fn(name, key, value)
				}); err != nil {
					it.Close()
					return err
				}
			}
			it.Close()
		}
		return nil
	})
}

// Partitions returns the located partition names in sorted order.
func (e *BadgerEngine) Partitions() []string {
	names := make([]string, 0, len(e.partitions))
	for name := range e.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sync flushes pending writes to disk.
func (e *BadgerEngine) Sync() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.db.Sync()
}

// GC triggers value log garbage collection.
//
// Runs until Badger reports nothing left to rewrite.
// Returns the number of value log files rewritten.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	startTime := time.Now()

	rewrites := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return rewrites, fmt.Errorf("gc: %w", err)
		}
		rewrites++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRewrites.Add(uint64(rewrites))
	if e.metricsGCRewrites != nil {
		e.metricsGCRewrites.Add(float64(rewrites))
	}

	e.logger.Info("gc completed",
		"files_rewritten", rewrites,
		"elapsed", time.Since(startTime))

	return rewrites, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	lsm, vlog := e.db.Size()

	return &KVStats{
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		TotalSize:    uint64(lsm + vlog),
		LastGCTime:   e.lastGCTime.Load(),
		GCRewrites:   e.gcRewrites.Load(),
	}, nil
}

// Close syncs and shuts down the Badger engine. Closing twice is a no-op.
func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("shutting down badger engine")

	// Stop background loops
	close(e.stopCh)
	e.wg.Wait()

	if err := e.db.Sync(); err != nil {
		e.logger.Warn("badger sync before close failed", "error", err)
	}

	// Close DB
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	e.logger.Info("badger engine shutdown complete")
	return nil
}

// RegisterMetrics registers Badger metrics with Prometheus.
//
// This should be called once during initialization.
// Returns the engine for method chaining.
func (e *BadgerEngine) RegisterMetrics(registry prometheus.Registerer) *BadgerEngine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "echarlar",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "echarlar",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	e.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "echarlar",
		Subsystem: "badger",
		Name:      "total_size_bytes",
		Help:      "Badger total storage size in bytes (LSM + value log)",
	})

	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "echarlar",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})

	e.metricsGCRewrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "echarlar",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Total value log files rewritten by Badger garbage collection",
	})

	registry.MustRegister(
		e.metricsLSMSize,
		e.metricsValueLogSize,
		e.metricsTotalSize,
		e.metricsLastGCTime,
		e.metricsGCRewrites,
	)

	e.updateMetrics()

	// Start metrics updater
	e.wg.Add(1)
	go e.metricsUpdateLoop()

	return e
}

func (e *BadgerEngine) updateMetrics() {
	stats, err := e.Stats(context.Background())
	if err != nil {
		return
	}

	e.metricsLSMSize.Set(float64(stats.LSMSize))
	e.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	e.metricsTotalSize.Set(float64(stats.TotalSize))
	if stats.LastGCTime > 0 {
		e.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0) // Convert ms to seconds
	}
}

// metricsUpdateLoop periodically updates Prometheus metrics.
func (e *BadgerEngine) metricsUpdateLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.updateMetrics()
		case <-e.stopCh:
			return
		}
	}
}

// gcLoop runs periodic garbage collection.
func (e *BadgerEngine) gcLoop() {
	defer e.wg.Done()

	if e.cfg.GCInterval <= 0 {
		<-e.stopCh
		return
	}

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
