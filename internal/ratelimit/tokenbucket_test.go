package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket_GetWithinCapacitySucceedsImmediately(t *testing.T) {
	b := NewTokenBucket(WithCapacity(10), WithInterval(time.Hour))
	defer b.Dispose()

	grant, err := b.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if grant != 5 {
		t.Fatalf("grant = %d, want 5", grant)
	}
	if b.Available() != 5 {
		t.Fatalf("Available() = %d, want 5", b.Available())
	}
}

func TestTokenBucket_GetExceedingAvailableGrantsPartial(t *testing.T) {
	b := NewTokenBucket(WithCapacity(3), WithInterval(time.Hour))
	defer b.Dispose()

	grant, err := b.Get(context.Background(), 10)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if grant != 3 {
		t.Fatalf("grant = %d, want 3 (capped at capacity)", grant)
	}
	if b.Available() != 0 {
		t.Fatalf("Available() = %d, want 0", b.Available())
	}
}

func TestTokenBucket_BlocksUntilRefillWhenExhausted(t *testing.T) {
	b := NewTokenBucket(WithCapacity(5), WithInterval(20*time.Millisecond))
	defer b.Dispose()

	if _, err := b.Get(context.Background(), 5); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}

	start := time.Now()
	grant, err := b.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if grant != 5 {
		t.Fatalf("grant = %d, want 5", grant)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("second Get() returned too fast: %v (expected to wait for refill)", elapsed)
	}
}

func TestTokenBucket_Return(t *testing.T) {
	b := NewTokenBucket(WithCapacity(10), WithInterval(time.Hour))
	defer b.Dispose()

	if _, err := b.Get(context.Background(), 10); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b.Return(4)
	if b.Available() != 4 {
		t.Fatalf("Available() = %d, want 4", b.Available())
	}
}

func TestTokenBucket_ReturnClampsAtCapacity(t *testing.T) {
	b := NewTokenBucket(WithCapacity(10), WithInterval(time.Hour))
	defer b.Dispose()

	b.Return(1000)
	if b.Available() != 10 {
		t.Fatalf("Available() = %d, want 10 (clamped)", b.Available())
	}
}

func TestTokenBucket_ReturnWakesQueuedGet(t *testing.T) {
	b := NewTokenBucket(WithCapacity(5), WithInterval(time.Hour))
	defer b.Dispose()

	if _, err := b.Get(context.Background(), 5); err != nil {
		t.Fatalf("drain Get() error = %v", err)
	}

	done := make(chan int64, 1)
	go func() {
		grant, _ := b.Get(context.Background(), 3)
		done <- grant
	}()
	time.Sleep(5 * time.Millisecond)

	b.Return(3)

	select {
	case grant := <-done:
		if grant != 3 {
			t.Fatalf("grant = %d, want 3", grant)
		}
	case <-time.After(time.Second):
		t.Fatal("queued Get() never unblocked after Return")
	}
}

func TestTokenBucket_ContextCancelUnblocksGet(t *testing.T) {
	b := NewTokenBucket(WithCapacity(1), WithInterval(time.Hour))
	defer b.Dispose()

	if _, err := b.Get(context.Background(), 1); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Get(ctx, 1)
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if b.QueueLength() != 0 {
		t.Fatalf("QueueLength() = %d, want 0 after cancellation", b.QueueLength())
	}
}

func TestTokenBucket_FIFOOrder(t *testing.T) {
	b := NewTokenBucket(WithCapacity(5), WithInterval(30*time.Millisecond))
	defer b.Dispose()

	if _, err := b.Get(context.Background(), 5); err != nil {
		t.Fatalf("drain Get() error = %v", err)
	}

	order := make(chan int, 2)
	go func() {
		b.Get(context.Background(), 5)
		order <- 1
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		b.Get(context.Background(), 5)
		order <- 2
	}()

	first := <-order
	if first != 1 {
		t.Fatalf("first to be satisfied = %d, want 1 (FIFO by arrival)", first)
	}
}

func TestTokenBucket_SetCapacityAppliesAtNextRefill(t *testing.T) {
	b := NewTokenBucket(WithCapacity(2), WithInterval(20*time.Millisecond))
	defer b.Dispose()

	b.SetCapacity(5)
	if b.Capacity() != 2 {
		t.Fatalf("Capacity() = %d, want 2 (unchanged before next refill)", b.Capacity())
	}

	time.Sleep(35 * time.Millisecond)
	if b.Capacity() != 5 {
		t.Fatalf("Capacity() = %d, want 5 after refill", b.Capacity())
	}
	if b.Available() != 5 {
		t.Fatalf("Available() = %d, want 5 after refill", b.Available())
	}
}

func TestTokenBucket_DisposeFailsQueued(t *testing.T) {
	b := NewTokenBucket(WithCapacity(1), WithInterval(time.Hour))
	if _, err := b.Get(context.Background(), 1); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := b.Get(context.Background(), 1)
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)

	b.Dispose()

	err := <-done
	if err != ErrDisposed {
		t.Fatalf("err = %v, want ErrDisposed", err)
	}

	if _, err := b.Get(context.Background(), 1); err != ErrDisposed {
		t.Fatalf("Get() after Dispose err = %v, want ErrDisposed", err)
	}
}
