package infra

import (
	"context"
	"testing"
	"time"

	"route-limiter/middleware/ratelimit/domain"
)

func TestMemoryAccessStore_LoadMissing(t *testing.T) {
	s := NewMemoryAccessStore()

	log, ok, err := s.Load(context.Background(), "ip1", "/home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || log != nil {
		t.Fatalf("expected not found, got %v", log)
	}
}

func TestMemoryAccessStore_SaveThenLoadRoundTrip(t *testing.T) {
	s := NewMemoryAccessStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	in := domain.AccessLog{t0, t0.Add(time.Second), t0.Add(1500 * time.Millisecond)}

	if err := s.Save(ctx, "ip1", "/home", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, ok, err := s.Load(ctx, "ip1", "/home")
	if err != nil || !ok {
		t.Fatalf("expected found, got ok=%v err=%v", ok, err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(out))
	}
	for i := range in {
		if !out[i].Equal(in[i]) {
			t.Fatalf("entry %d: expected %s, got %s", i, in[i], out[i])
		}
	}
}

func TestMemoryAccessStore_DoesNotAliasCallerSlices(t *testing.T) {
	s := NewMemoryAccessStore()
	ctx := context.Background()
	in := domain.AccessLog{time.Unix(1, 0)}
	_ = s.Save(ctx, "ip1", "/home", in)

	in[0] = time.Unix(99, 0)
	out, _, _ := s.Load(ctx, "ip1", "/home")
	if !out[0].Equal(time.Unix(1, 0)) {
		t.Fatalf("store kept a reference to the caller slice")
	}
}

func TestMemoryAccessStore_SaveKeepsOtherRoutes(t *testing.T) {
	s := NewMemoryAccessStore()
	ctx := context.Background()
	_ = s.Save(ctx, "ip1", "/home", domain.AccessLog{time.Unix(1, 0)})
	_ = s.Save(ctx, "ip1", "/random", domain.AccessLog{time.Unix(2, 0)})
	_ = s.Save(ctx, "ip1", "/home", domain.AccessLog{time.Unix(1, 0), time.Unix(3, 0)})

	rec, ok, err := s.Get(ctx, "ip1")
	if err != nil || !ok {
		t.Fatalf("expected record, ok=%v err=%v", ok, err)
	}
	if len(rec) != 2 || len(rec["/home"]) != 2 || len(rec["/random"]) != 1 {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestMemoryAccessStore_KeysSorted(t *testing.T) {
	s := NewMemoryAccessStore()
	ctx := context.Background()
	_ = s.Save(ctx, "ip2", "/home", domain.AccessLog{time.Unix(1, 0)})
	_ = s.Save(ctx, "ip1", "/home", domain.AccessLog{time.Unix(1, 0)})

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "ip1" || keys[1] != "ip2" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestMemoryAccessStore_CleanupRemovesIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewMemoryAccessStore(
		WithIdleTTL(time.Minute),
		WithCleanupEvery(0),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	_ = s.Save(ctx, "old", "/home", domain.AccessLog{now})
	now = now.Add(2 * time.Minute)
	_ = s.Save(ctx, "fresh", "/home", domain.AccessLog{now})

	s.Cleanup()

	if _, ok, _ := s.Load(ctx, "old", "/home"); ok {
		t.Fatalf("expected idle client to be removed")
	}
	if _, ok, _ := s.Load(ctx, "fresh", "/home"); !ok {
		t.Fatalf("expected active client to stay")
	}
}

func TestMemoryAccessStore_JanitorStopsWithContext(t *testing.T) {
	s := NewMemoryAccessStore(WithIdleTTL(time.Nanosecond), WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	_ = s.Save(ctx, "ip1", "/home", domain.AccessLog{time.Unix(1, 0)})

	s.StartJanitor(ctx)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if keys, _ := s.Keys(ctx); len(keys) == 0 {
			cancel()
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	t.Fatalf("expected janitor to clean idle client")
}
