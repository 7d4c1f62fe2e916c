package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/storage"
)

// SmallHistorySizes defines the per-room message counts for benchmarking.
var SmallHistorySizes = []int{1000, 5000}

// engines lists the engines every store benchmark runs against.
var engines = []string{storage.EngineMemory, storage.EngineBadger}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openStore opens a store of the given engine in a temp directory.
func openStore(b *testing.B, engine string) storage.Store {
	b.Helper()
	opts := storage.Options{
		storage.OptionEngine: engine,
	}
	if engine == storage.EngineBadger {
		opts[storage.OptionPath] = b.TempDir()
		opts[storage.OptionSyncWrites] = false
		opts[storage.OptionGCInterval] = time.Duration(0)
	}
	s, err := storage.Open(opts, quietLogger())
	if err != nil {
		b.Fatalf("open %s store: %v", engine, err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

// fixture is one room with its owner.
type fixture struct {
	owner *domain.User
	room  *domain.Room
}

func newFixture(ctx context.Context, b *testing.B, s storage.Store) *fixture {
	b.Helper()
	owner := domain.NewUser("bench@example.org")
	room := domain.NewRoom("bench", owner)
	if err := s.SaveUser(ctx, owner); err != nil {
		b.Fatal(err)
	}
	if err := s.SaveRoom(ctx, room); err != nil {
		b.Fatal(err)
	}
	return &fixture{owner: owner, room: room}
}

// prefill saves count messages one millisecond apart, oldest first.
func prefill(ctx context.Context, b *testing.B, s storage.Store, f *fixture, count int) {
	b.Helper()
	base := time.Now().Add(-time.Duration(count) * time.Millisecond)
	for i := 0; i < count; i++ {
		m := domain.NewTextMessage(fmt.Sprintf("message %d", i), f.owner)
		m.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		if err := s.SaveMessage(ctx, f.room, m); err != nil {
			b.Fatalf("prefill: %v", err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithEngines runs a benchmark function against every engine.
func runWithEngines(b *testing.B, benchFn func(b *testing.B, engine string)) {
	for _, engine := range engines {
		b.Run(engine, func(b *testing.B) {
			benchFn(b, engine)
		})
	}
}

// runWithSizes runs a benchmark function with various history sizes.
func runWithSizes(b *testing.B, sizes []int, benchFn func(b *testing.B, size int)) {
	for _, size := range sizes {
		b.Run(fmt.Sprintf("messages_%d", size), func(b *testing.B) {
			benchFn(b, size)
		})
	}
}
