package config

import "time"

// ServerConfig is the root configuration for echarlar-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Metrics MetricsSection `koanf:"metrics"`
	Backup  BackupSection  `koanf:"backup"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures process lifecycle.
type ServerSection struct {
	// ShutdownTimeout bounds the time shutdown hooks may take.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageSection configures the message store.
type StorageSection struct {
	// Engine is "badger" or "memory".
	Engine string `koanf:"engine"`

	// Path is the store directory. Required by the badger engine.
	Path string `koanf:"path"`

	CreateIfMissing bool          `koanf:"create_if_missing"`
	SyncWrites      bool          `koanf:"sync_writes"`
	CacheSize       int64         `koanf:"cache_size"`
	GCInterval      time.Duration `koanf:"gc_interval"`
	GCDiscardRatio  float64       `koanf:"gc_discard_ratio"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the listen address of the metrics server. Empty disables it.
	Addr string `koanf:"addr"`

	// Path is the HTTP path metrics are served on.
	Path string `koanf:"path"`

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the per-client burst size.
	RateBurst int `koanf:"rate_burst"`

	// TLSCertFile and TLSKeyFile enable HTTPS. Both files are reloaded
	// when they change.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// TLSClientCAFile requires client certificates signed by these CAs.
	TLSClientCAFile string `koanf:"tls_client_ca_file"`
}

// BackupSection configures periodic store snapshots (badger engine only).
type BackupSection struct {
	// Dir is the snapshot directory.
	Dir string `koanf:"dir"`

	// Interval is the time between snapshots. Zero disables them.
	Interval time.Duration `koanf:"interval"`

	RetentionCount int `koanf:"retention_count"`
	RetentionDays  int `koanf:"retention_days"`

	// Passphrase enables encryption. Prefer ECHARLAR_BACKUP__PASSPHRASE
	// over the config file.
	Passphrase string `koanf:"passphrase"`
	Algorithm  string `koanf:"algorithm"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
