package scanner

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestChannelReader_ProcessesAllItems(t *testing.T) {
	ch := make(chan int, 10)
	var sum int64
	r := NewChannelReader("sum", ch, func(i int) error {
		atomic.AddInt64(&sum, int64(i))
		return nil
	}, nil)
	r.Start()

	for i := 1; i <= 5; i++ {
		ch <- i
	}
	close(ch)

	select {
	case <-r.Completed():
	case <-time.After(time.Second):
		t.Fatal("Completed() never resolved")
	}

	if got := atomic.LoadInt64(&sum); got != 15 {
		t.Fatalf("sum = %d, want 15", got)
	}
	if r.Err() != nil {
		t.Fatalf("Err() = %v, want nil", r.Err())
	}
}

func TestChannelReader_CapturesHandlerError(t *testing.T) {
	ch := make(chan int, 2)
	wantErr := errors.New("boom")

	var callbackErr error
	r := NewChannelReader("errs", ch, func(i int) error {
		if i == 2 {
			return wantErr
		}
		return nil
	}, func(err error) { callbackErr = err })
	r.Start()

	ch <- 1
	ch <- 2
	close(ch)

	<-r.Completed()

	if r.Err() != wantErr {
		t.Fatalf("Err() = %v, want %v", r.Err(), wantErr)
	}
	if callbackErr != wantErr {
		t.Fatalf("callback error = %v, want %v", callbackErr, wantErr)
	}
}

func TestChannelReader_MultipleReadersShareOneChannel(t *testing.T) {
	ch := make(chan int, 100)
	var total int64

	const readers = 4
	dones := make([]<-chan struct{}, readers)
	for i := 0; i < readers; i++ {
		r := NewChannelReader("w", ch, func(v int) error {
			atomic.AddInt64(&total, int64(v))
			return nil
		}, nil)
		r.Start()
		dones[i] = r.Completed()
	}

	for i := 1; i <= 20; i++ {
		ch <- i
	}
	close(ch)

	for _, d := range dones {
		select {
		case <-d:
		case <-time.After(time.Second):
			t.Fatal("a reader never completed")
		}
	}

	if total != 210 {
		t.Fatalf("total = %d, want 210 (1..20 summed)", total)
	}
}
