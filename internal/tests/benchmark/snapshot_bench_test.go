package benchmark

import (
	"context"
	"testing"

	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/storage/snapshot"
)

func openBadger(b *testing.B) *storage.KVStore {
	b.Helper()
	return openStore(b, storage.EngineBadger).(*storage.KVStore)
}

// BenchmarkSnapshotCreate benchmarks snapshot creation at various scales.
func BenchmarkSnapshotCreate(b *testing.B) {
	runWithSizes(b, SmallHistorySizes, func(b *testing.B, size int) {
		ctx := context.Background()
		s := openBadger(b)
		prefill(ctx, b, s, newFixture(ctx, b, s), size)

		mgr, err := snapshot.NewManager(snapshot.Config{
			Dir:            b.TempDir(),
			RetentionCount: 3,
			Logger:         quietLogger(),
		})
		if err != nil {
			b.Fatalf("NewManager: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := mgr.Create(ctx, s.Engine()); err != nil {
				b.Fatalf("Create: %v", err)
			}
			if _, err := mgr.Prune(); err != nil {
				b.Fatalf("Prune: %v", err)
			}
		}
		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkSnapshotRestore benchmarks restoring into an empty store.
func BenchmarkSnapshotRestore(b *testing.B) {
	runWithSizes(b, SmallHistorySizes, func(b *testing.B, size int) {
		ctx := context.Background()
		src := openBadger(b)
		prefill(ctx, b, src, newFixture(ctx, b, src), size)

		mgr, err := snapshot.NewManager(snapshot.Config{Dir: b.TempDir(), Logger: quietLogger()})
		if err != nil {
			b.Fatal(err)
		}
		info, err := mgr.Create(ctx, src.Engine())
		if err != nil {
			b.Fatal(err)
		}

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			dst := openBadger(b)
			b.StartTimer()

			if _, err := mgr.Restore(ctx, info.ID, dst.Engine()); err != nil {
				b.Fatalf("Restore: %v", err)
			}
		}
	})
}
