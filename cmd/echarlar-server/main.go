package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/volodymyrd/echarlar/internal/infra/buildinfo"
	"github.com/volodymyrd/echarlar/internal/infra/confloader"
	"github.com/volodymyrd/echarlar/internal/infra/shutdown"
	"github.com/volodymyrd/echarlar/internal/infra/tlsroots"
	"github.com/volodymyrd/echarlar/internal/server/config"
	"github.com/volodymyrd/echarlar/internal/server/httpserver"
	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/storage/snapshot"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "echarlar-server",
		Usage:   "e-charlar message store server",
		Version: buildinfo.String(),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"ECHARLAR_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String("config"), out)
		},
	}
}

func serve(ctx context.Context, configFile string, logOutput io.Writer) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  logOutput,
		Service: "echarlar-server",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting echarlar-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", configFile)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := openStore(cfg, log, registry)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log.Slog())

	// Hooks run in reverse order: the store closes last.
	shutdownHandler.OnShutdown("store", func(ctx context.Context) error {
		log.Info("closing store")
		return store.Close()
	})

	if cfg.Metrics.Addr != "" {
		srv, stopTLS, err := startMetricsServer(cfg, store, registry, log)
		if err != nil {
			shutdownHandler.Shutdown()
			return err
		}
		shutdownHandler.OnShutdown("metrics", func(ctx context.Context) error {
			log.Info("shutting down metrics server")
			defer stopTLS()
			return srv.Shutdown(ctx)
		})
	}

	if cfg.Backup.Interval > 0 {
		sched, err := startBackups(cfg, store, log)
		if err != nil {
			shutdownHandler.Shutdown()
			return err
		}
		shutdownHandler.OnShutdown("backup", func(ctx context.Context) error {
			log.Info("stopping backups")
			return sched.Stop(ctx)
		})
	}

	if configFile != "" {
		w, err := watchConfig(configFile, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
				return w.Stop()
			})
		}
	}

	log.Info("server started", "engine", cfg.Storage.Engine, "path", cfg.Storage.Path)
	if err := shutdownHandler.WaitContext(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// openStore opens the configured store and wires its metrics.
func openStore(cfg *config.ServerConfig, log logger.Logger, registry prometheus.Registerer) (storage.Store, error) {
	opts := config.StorageOptions(&cfg.Storage)
	log.Info("opening store", "options", opts.String())

	store, err := storage.Open(opts, log.Component(logger.ComponentStore).Slog())
	if err != nil {
		return nil, err
	}

	if kv, ok := store.(*storage.KVStore); ok {
		if engine, ok := kv.Engine().(*storage.BadgerEngine); ok {
			engine.RegisterMetrics(registry)
		}
	}

	instrumented, err := storage.Instrument(store, registry)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("register store metrics: %w", err)
	}
	return instrumented, nil
}

func startMetricsServer(cfg *config.ServerConfig, store storage.Store, registry *prometheus.Registry, log logger.Logger) (*httpserver.Server, func(), error) {
	ln, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen: %w", err)
	}

	stopTLS := func() {}
	scheme := "http"
	if cfg.Metrics.TLSCertFile != "" {
		tlsCfg, stop, err := metricsTLS(&cfg.Metrics, log)
		if err != nil {
			ln.Close()
			return nil, nil, err
		}
		ln = tls.NewListener(ln, tlsCfg)
		stopTLS = stop
		scheme = "https"
	}

	srv := httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(httpserver.RouterConfig{
		MetricsPath: cfg.Metrics.Path,
		Registry:    registry,
		Store:       store,
		Logger:      log.Component(logger.ComponentHTTP),
		RateLimit:   cfg.Metrics.RateLimit,
		RateBurst:   cfg.Metrics.RateBurst,
	}))
	go func() {
		log.Info("metrics server listening",
			"addr", ln.Addr().String(),
			"scheme", scheme,
			"path", cfg.Metrics.Path)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return srv, stopTLS, nil
}

// metricsTLS loads the endpoint's key pair and client CAs and starts
// following certificate rotations.
func metricsTLS(cfg *config.MetricsSection, log logger.Logger) (*tls.Config, func(), error) {
	certs, err := tlsroots.NewWatcher(cfg.TLSCertFile, cfg.TLSKeyFile,
		tlsroots.WithLogger(log.Component(logger.ComponentTLS).Slog()))
	if err != nil {
		return nil, nil, err
	}

	var clientCAs *tlsroots.Pool
	if cfg.TLSClientCAFile != "" {
		if clientCAs, err = tlsroots.LoadPool(cfg.TLSClientCAFile); err != nil {
			return nil, nil, err
		}
	}

	stop := func() { certs.Stop() }
	if err := certs.Start(); err != nil {
		log.Warn("certificate reload disabled", "error", err)
	}
	return tlsroots.ServerConfig(certs, clientCAs), stop, nil
}

// startBackups schedules periodic snapshots of the badger store.
func startBackups(cfg *config.ServerConfig, store storage.Store, log logger.Logger) (*snapshot.Scheduler, error) {
	kv, ok := storage.Unwrap(store).(*storage.KVStore)
	if !ok {
		return nil, fmt.Errorf("backups require the %s engine", storage.EngineBadger)
	}

	sc := config.SnapshotConfig(&cfg.Backup)
	sc.Logger = log.Component(logger.ComponentBackup).Slog()
	m, err := snapshot.NewManager(sc)
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}

	sched := snapshot.NewScheduler(m, kv.Engine(), cfg.Backup.Interval)
	sched.Start()
	log.Info("backups scheduled",
		"dir", cfg.Backup.Dir,
		"interval", cfg.Backup.Interval,
		"encrypted", sc.Encryption.Enabled())
	return sched, nil
}

// watchConfig reloads log.level whenever the configuration file changes.
func watchConfig(configFile string, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Component(logger.ComponentConfig).Slog()))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(configFile); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(path string) {
		reloadLogLevel(path, log)
	})
	w.StartAsync()
	return w, nil
}

func reloadLogLevel(path string, log logger.Logger) {
	cfg := config.Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(cfg); err != nil {
		log.Warn("config reload failed", "path", path, "error", err)
		return
	}
	if !logger.ValidLevel(cfg.Log.Level) {
		log.Warn("config reload ignored invalid log level", "level", cfg.Log.Level)
		return
	}
	if cfg.Log.Level != logger.GetLevel() {
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level changed", "level", logger.GetLevel())
	}
}
