package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

// OptionName names a store option. The set is closed: Open rejects any
// name not listed below.
type OptionName string

const (
	// OptionPath is the store directory (string). Required by the badger engine.
	OptionPath OptionName = "path"

	// OptionEngine selects the backing engine (string): "badger" or "memory".
	OptionEngine OptionName = "engine"

	// OptionCreateIfMissing creates absent partitions on open (bool).
	OptionCreateIfMissing OptionName = "create_if_missing"

	// OptionSyncWrites fsyncs every write before it returns (bool).
	OptionSyncWrites OptionName = "sync_writes"

	// OptionCacheSize is the block cache size in bytes (int64).
	OptionCacheSize OptionName = "cache_size"

	// OptionGCInterval is the value log GC period (time.Duration, 0 disables).
	OptionGCInterval OptionName = "gc_interval"

	// OptionGCDiscardRatio is the value log GC discard ratio (float64, 0-1).
	OptionGCDiscardRatio OptionName = "gc_discard_ratio"
)

// Engine names.
const (
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// Default option values. There is deliberately no default path.
const (
	DefaultEngine          = EngineBadger
	DefaultCreateIfMissing = true
	DefaultSyncWrites      = true
	DefaultCacheSize       = int64(64 << 20) // 64MB
	DefaultGCInterval      = 10 * time.Minute
	DefaultGCDiscardRatio  = 0.5
)

var knownOptions = map[OptionName]string{
	OptionPath:            "string",
	OptionEngine:          "string",
	OptionCreateIfMissing: "bool",
	OptionSyncWrites:      "bool",
	OptionCacheSize:       "int64",
	OptionGCInterval:      "duration",
	OptionGCDiscardRatio:  "float64",
}

// Options maps option names to typed values.
type Options map[OptionName]any

// Validate checks names, value types and ranges. Every failure is an ErrOpen.
func (o Options) Validate() error {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, string(name))
	}
	sort.Strings(names)

	for _, n := range names {
		name := OptionName(n)
		want, ok := knownOptions[name]
		if !ok {
			return domain.ErrOpen.WithDetailsf("unknown option %q", name)
		}
		if err := checkType(name, want, o[name]); err != nil {
			return err
		}
	}

	switch engine := o.Engine(); engine {
	case EngineBadger:
		if strings.TrimSpace(o.Path()) == "" {
			return domain.ErrOpen.WithDetailsf("option %q is required by the %s engine", OptionPath, engine)
		}
	case EngineMemory:
	default:
		return domain.ErrOpen.WithDetailsf("unknown engine %q", engine)
	}

	if r := o.GCDiscardRatio(); r <= 0 || r >= 1 {
		return domain.ErrOpen.WithDetailsf("option %q must be in (0, 1), got %v", OptionGCDiscardRatio, r)
	}
	if o.CacheSize() <= 0 {
		return domain.ErrOpen.WithDetailsf("option %q must be positive", OptionCacheSize)
	}
	if o.GCInterval() < 0 {
		return domain.ErrOpen.WithDetailsf("option %q must not be negative", OptionGCInterval)
	}
	return nil
}

func checkType(name OptionName, want string, v any) error {
	ok := false
	switch want {
	case "string":
		_, ok = v.(string)
	case "bool":
		_, ok = v.(bool)
	case "int64":
		switch v.(type) {
		case int64, int:
			ok = true
		}
	case "duration":
		_, ok = v.(time.Duration)
	case "float64":
		_, ok = v.(float64)
	}
	if !ok {
		return domain.ErrOpen.WithDetailsf("option %q must be %s, got %T", name, want, v)
	}
	return nil
}

// Path returns the store directory, or "" if unset.
func (o Options) Path() string {
	s, _ := o[OptionPath].(string)
	return s
}

// Engine returns the engine name.
func (o Options) Engine() string {
	if s, ok := o[OptionEngine].(string); ok && s != "" {
		return strings.ToLower(s)
	}
	return DefaultEngine
}

// CreateIfMissing reports whether absent partitions are created.
func (o Options) CreateIfMissing() bool {
	if b, ok := o[OptionCreateIfMissing].(bool); ok {
		return b
	}
	return DefaultCreateIfMissing
}

// SyncWrites reports whether writes are fsynced before returning.
func (o Options) SyncWrites() bool {
	if b, ok := o[OptionSyncWrites].(bool); ok {
		return b
	}
	return DefaultSyncWrites
}

// CacheSize returns the block cache size in bytes.
func (o Options) CacheSize() int64 {
	switch v := o[OptionCacheSize].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return DefaultCacheSize
}

// GCInterval returns the value log GC period.
func (o Options) GCInterval() time.Duration {
	if d, ok := o[OptionGCInterval].(time.Duration); ok {
		return d
	}
	return DefaultGCInterval
}

// GCDiscardRatio returns the value log GC discard ratio.
func (o Options) GCDiscardRatio() float64 {
	if f, ok := o[OptionGCDiscardRatio].(float64); ok {
		return f
	}
	return DefaultGCDiscardRatio
}

// String renders the options for logging.
func (o Options) String() string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, string(name))
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%v", n, o[OptionName(n)])
	}
	return strings.Join(parts, " ")
}
