package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/volodymyrd/echarlar/internal/infra/buildinfo"
	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApp_Version(t *testing.T) {
	var out bytes.Buffer
	if err := newApp(&out).Run([]string{"echarlar-server", "--version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), buildinfo.Get().Version) {
		t.Errorf("--version output = %q", out.String())
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
storage:
  path: `+filepath.Join(dir, "data")+`
  sync_writes: false
  gc_interval: 0s
metrics:
  addr: 127.0.0.1:0
log:
  level: info
`)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, path, io.Discard) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve() = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}

	// The store was closed, so it can be reopened without create.
	s, err := storage.Open(storage.Options{
		storage.OptionPath:            filepath.Join(dir, "data"),
		storage.OptionCreateIfMissing: false,
	}, nil)
	if err != nil {
		t.Fatalf("reopen after serve: %v", err)
	}
	s.Close()
}

func TestServe_ScheduledBackups(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	path := writeConfig(t, `
storage:
  path: `+filepath.Join(dir, "data")+`
  sync_writes: false
  gc_interval: 0s
backup:
  dir: `+backupDir+`
  interval: 50ms
  retention_count: 2
log:
  level: warn
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := serve(ctx, path, io.Discard); err != nil {
		t.Fatalf("serve() = %v", err)
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	var snaps int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".snap") {
			snaps++
		}
	}
	if snaps == 0 {
		t.Error("no snapshots written")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  engine: rocksdb\n")
	if err := serve(context.Background(), path, io.Discard); err == nil {
		t.Fatal("serve() with invalid config should fail")
	}
}

func TestReloadLogLevel(t *testing.T) {
	defer logger.SetLevel("info")

	log, err := logger.New(logger.Config{Level: "info", Output: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	reloadLogLevel(writeConfig(t, "log:\n  level: debug\n"), log)
	if logger.GetLevel() != "debug" {
		t.Errorf("level = %q, want debug", logger.GetLevel())
	}

	reloadLogLevel(writeConfig(t, "log:\n  level: loud\n"), log)
	if logger.GetLevel() != "debug" {
		t.Errorf("invalid level should be ignored, got %q", logger.GetLevel())
	}
}
