package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoBoundsConcurrency(t *testing.T) {
	p := New(2)

	var (
		running int32
		peak    int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("observed %d concurrent tasks, pool size is 2", got)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := New(1)

	release := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			<-release
			return nil
		})
	}()

	// Give the first task time to occupy the only slot.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func() error { return nil })
	close(release)
	if err == nil {
		t.Fatal("expected context error while pool is saturated")
	}
}

func TestSizeCoercedToMinimumOne(t *testing.T) {
	if got := New(0).Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
}
