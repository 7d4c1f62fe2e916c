package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/storage/snapshot"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// Verify validates the configuration and creates the storage directory.
func Verify(cfg *ServerConfig) error {
	if cfg.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	if err := verifyBackup(&cfg.Backup, &cfg.Storage); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyStorage(cfg *StorageSection) error {
	if err := StorageOptions(cfg).Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if strings.EqualFold(cfg.Engine, storage.EngineMemory) {
		return nil
	}
	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return fmt.Errorf("cannot create storage directory: %w", err)
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if cfg.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr %q: %w", cfg.Addr, err)
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", cfg.Path)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("metrics.rate_limit must not be negative, got %v", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return fmt.Errorf("metrics.rate_burst must be at least 1 when rate limiting, got %d", cfg.RateBurst)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("metrics.tls_cert_file and metrics.tls_key_file must be set together")
	}
	if cfg.TLSClientCAFile != "" && cfg.TLSCertFile == "" {
		return errors.New("metrics.tls_client_ca_file requires metrics.tls_cert_file")
	}
	return nil
}

func verifyBackup(cfg *BackupSection, st *StorageSection) error {
	if cfg.Interval < 0 {
		return fmt.Errorf("backup.interval must not be negative, got %v", cfg.Interval)
	}
	if cfg.Interval == 0 {
		return nil
	}
	if strings.EqualFold(st.Engine, storage.EngineMemory) {
		return errors.New("backup.interval requires the badger storage engine")
	}
	if cfg.Dir == "" {
		return errors.New("backup.dir is required when backups are enabled")
	}
	if err := SnapshotConfig(cfg).Encryption.Validate(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
		return nil
	}
	return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
}

// StorageOptions maps the storage section onto store options.
func StorageOptions(cfg *StorageSection) storage.Options {
	opts := storage.Options{
		storage.OptionEngine:          cfg.Engine,
		storage.OptionCreateIfMissing: cfg.CreateIfMissing,
		storage.OptionSyncWrites:      cfg.SyncWrites,
		storage.OptionCacheSize:       cfg.CacheSize,
		storage.OptionGCInterval:      cfg.GCInterval,
		storage.OptionGCDiscardRatio:  cfg.GCDiscardRatio,
	}
	if cfg.Path != "" {
		opts[storage.OptionPath] = cfg.Path
	}
	return opts
}

// SnapshotConfig maps the backup section onto a snapshot manager config.
func SnapshotConfig(cfg *BackupSection) snapshot.Config {
	sc := snapshot.Config{
		Dir:            cfg.Dir,
		RetentionCount: cfg.RetentionCount,
		RetentionDays:  cfg.RetentionDays,
	}
	if cfg.Passphrase != "" {
		sc.Encryption = snapshot.EncryptionConfig{
			Passphrase: []byte(cfg.Passphrase),
			Algorithm:  cfg.Algorithm,
		}
	}
	return sc
}
