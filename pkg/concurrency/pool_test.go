package concurrency

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolSize(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Shutdown()

	if got := pool.Size(); got != 4 {
		t.Fatalf("Size() = %d, want 4", got)
	}
}

func TestWorkerPoolSizeClampsToOne(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Shutdown()

	if got := pool.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
}

func TestNilPoolSizeIsZero(t *testing.T) {
	var pool *WorkerPool
	if got := pool.Size(); got != 0 {
		t.Fatalf("Size() on nil pool = %d, want 0", got)
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	future := pool.Submit(func() (any, error) {
		return 42, nil
	})

	res, err := future.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.(int) != 42 {
		t.Fatalf("result = %v, want 42", res)
	}
}

func TestSubmitSurfacesError(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	wantErr := errors.New("boom")
	future := pool.Submit(func() (any, error) {
		return nil, wantErr
	})

	_, err := future.Wait()
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	future := pool.Submit(func() (any, error) {
		panic("kaboom")
	})

	_, err := future.Wait()
	if err == nil {
		t.Fatal("expected panic to surface as error, got nil")
	}

	// The pool goroutine must still be alive after a panic.
	future2 := pool.Submit(func() (any, error) { return "alive", nil })
	res, err := future2.Wait()
	if err != nil || res.(string) != "alive" {
		t.Fatalf("pool did not survive panic recovery: res=%v err=%v", res, err)
	}
}

func TestManyConcurrentSubmitters(t *testing.T) {
	pool := NewWorkerPool(8)
	defer pool.Shutdown()

	var counter int64
	const producers = 16
	const perProducer = 50

	done := make(chan struct{}, producers)
	for p := 0; p < producers; p++ {
		go func() {
			for i := 0; i < perProducer; i++ {
				f := pool.Submit(func() (any, error) {
					atomic.AddInt64(&counter, 1)
					return nil, nil
				})
				f.Wait()
			}
			done <- struct{}{}
		}()
	}
	for p := 0; p < producers; p++ {
		<-done
	}

	if got := atomic.LoadInt64(&counter); got != producers*perProducer {
		t.Fatalf("counter = %d, want %d", got, producers*perProducer)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Shutdown()
	pool.Shutdown() // must not panic or deadlock
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Shutdown()

	future := pool.Submit(func() (any, error) { return 1, nil })
	_, err := future.Wait()
	if err == nil {
		t.Fatal("expected error submitting after shutdown")
	}
}
