package irq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualCoalesces(t *testing.T) {
	m := NewManual()
	m.Trigger()
	m.Trigger()
	m.Trigger()

	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Wait = %v, want deadline (edges coalesced)", err)
	}
}

func TestManualClose(t *testing.T) {
	m := NewManual()
	m.Close()
	m.Close()
	if err := m.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Wait after Close = %v", err)
	}
}

func TestPollerFires(t *testing.T) {
	p := NewPoller(time.Millisecond)
	defer p.Close()
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := p.Wait(ctx)
		cancel()
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func TestRunForwardsEdges(t *testing.T) {
	m := NewManual()
	var count atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, m, func() { count.Add(1) })
	}()

	for i := 0; i < 5; i++ {
		want := int32(i + 1)
		m.Trigger()
		deadline := time.Now().Add(time.Second)
		for count.Load() < want {
			if time.Now().After(deadline) {
				t.Fatalf("edge %d not forwarded", i)
			}
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
}

func TestRunReturnsLineError(t *testing.T) {
	m := NewManual()
	m.Close()
	if err := Run(context.Background(), m, func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Run = %v, want ErrClosed", err)
	}
}
