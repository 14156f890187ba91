package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/isotools/drawscan/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func TestWait_DisabledPassesImmediately(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background(), "list"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("disabled limiter blocked for %v", elapsed)
	}
}

func TestWait_ThrottlesBeyondBurst(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 20, Burst: 1})
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), "download"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	// One token is free; the next two wait 50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected throttling, 3 calls finished in %v", elapsed)
	}
}

func TestWait_OperationsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	start := time.Now()
	if err := l.Wait(context.Background(), "list"); err != nil {
		t.Fatalf("Wait(list) error = %v", err)
	}
	if err := l.Wait(context.Background(), "download"); err != nil {
		t.Fatalf("Wait(download) error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("separate operations shared a bucket, took %v", elapsed)
	}
}

func TestWait_CanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	if err := l.Wait(context.Background(), "list"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "list"); err == nil {
		t.Fatal("Wait() succeeded despite exhausted bucket and canceled context")
	}
}
