package config

import (
	"time"

	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/storage/snapshot"
)

// Default configuration values.
const (
	DefaultShutdownTimeout = 10 * time.Second

	DefaultStoragePath = "/var/lib/echarlar/data"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsRateLimit = 10.0
	DefaultMetricsRateBurst = 20

	DefaultBackupDir = "/var/lib/echarlar/backups"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			Engine:          storage.DefaultEngine,
			Path:            DefaultStoragePath,
			CreateIfMissing: storage.DefaultCreateIfMissing,
			SyncWrites:      storage.DefaultSyncWrites,
			CacheSize:       storage.DefaultCacheSize,
			GCInterval:      storage.DefaultGCInterval,
			GCDiscardRatio:  storage.DefaultGCDiscardRatio,
		},
		Metrics: MetricsSection{
			Path:      DefaultMetricsPath,
			RateLimit: DefaultMetricsRateLimit,
			RateBurst: DefaultMetricsRateBurst,
		},
		Backup: BackupSection{
			Dir:            DefaultBackupDir,
			RetentionCount: snapshot.DefaultRetentionCount,
			RetentionDays:  snapshot.DefaultRetentionDays,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
