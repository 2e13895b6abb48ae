package batcher

import (
	"context"
	"testing"
	"time"

	"github.com/rzbill/funnel/internal/event"
	"github.com/rzbill/funnel/internal/queue"
	"github.com/rzbill/funnel/pkg/id"
	"github.com/rzbill/funnel/pkg/log"
)

var gen = id.NewGenerator()

func quietLogger() log.Logger {
	return log.NewLogger(log.WithLevel(log.ErrorLevel), log.WithOutput(log.NullOutput{}))
}

func offer(t *testing.T, q *queue.Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := q.Offer(&event.Event{ID: gen.Next(), Payload: []byte{byte(i)}, ReceivedAt: time.Now()}); err != nil {
			t.Fatalf("offer: %v", err)
		}
	}
}

func collect(t *testing.T, out <-chan *event.Batch, timeout time.Duration) *event.Batch {
	t.Helper()
	select {
	case b := <-out:
		return b
	case <-time.After(timeout):
		t.Fatalf("no batch within %v", timeout)
		return nil
	}
}

func TestSizeTrigger(t *testing.T) {
	q := queue.New(10)
	b := New(Config{MaxSize: 5, MaxWait: time.Second}, q, quietLogger())
	go b.Run(context.Background())

	start := time.Now()
	offer(t, q, 5)
	batch := collect(t, b.Out(), time.Second)
	if batch.Len() != 5 {
		t.Fatalf("batch size: %d", batch.Len())
	}
	// Size trigger fires well before the 1s age trigger.
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("size trigger too slow: %v", time.Since(start))
	}
	if batch.Forced {
		t.Fatalf("normal batch must not be marked forced")
	}
}

func TestAgeTrigger(t *testing.T) {
	q := queue.New(10)
	b := New(Config{MaxSize: 5, MaxWait: 200 * time.Millisecond}, q, quietLogger())
	go b.Run(context.Background())

	start := time.Now()
	offer(t, q, 1)
	batch := collect(t, b.Out(), time.Second)
	if batch.Len() != 1 {
		t.Fatalf("batch size: %d", batch.Len())
	}
	elapsed := time.Since(start)
	if elapsed < 150*time.Millisecond {
		t.Fatalf("age trigger fired early: %v", elapsed)
	}
}

func TestBatchNeverExceedsMaxSize(t *testing.T) {
	q := queue.New(64)
	b := New(Config{MaxSize: 5, MaxWait: 50 * time.Millisecond}, q, quietLogger())
	go b.Run(context.Background())

	offer(t, q, 23)
	got := 0
	for got < 23 {
		batch := collect(t, b.Out(), time.Second)
		if batch.Len() > 5 {
			t.Fatalf("batch exceeds MaxSize: %d", batch.Len())
		}
		got += batch.Len()
	}
}

func TestOrderPreservedAcrossBatches(t *testing.T) {
	q := queue.New(64)
	b := New(Config{MaxSize: 4, MaxWait: 50 * time.Millisecond}, q, quietLogger())
	go b.Run(context.Background())

	offer(t, q, 10)
	var ids []string
	got := 0
	for got < 10 {
		batch := collect(t, b.Out(), time.Second)
		ids = append(ids, batch.EventIDs()...)
		got += batch.Len()
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("acceptance order broken at %d: %s >= %s", i, ids[i-1], ids[i])
		}
	}
}

func TestDrainSealsPartialBatch(t *testing.T) {
	q := queue.New(64)
	b := New(Config{MaxSize: 5, MaxWait: time.Hour}, q, quietLogger())
	go b.Run(context.Background())

	// 3 events reach the batcher's pending set, below MaxSize.
	offer(t, q, 3)
	time.Sleep(20 * time.Millisecond)
	b.Drain()
	b.Drain() // idempotent

	batch := collect(t, b.Out(), time.Second)
	if batch.Len() != 3 || !batch.Forced {
		t.Fatalf("want forced batch of 3, got len=%d forced=%v", batch.Len(), batch.Forced)
	}
	if _, ok := <-b.Out(); ok {
		t.Fatalf("expected lane closed after drain")
	}
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatalf("batcher did not report done")
	}
}

func TestDrainFoldsQueueLeftovers(t *testing.T) {
	q := queue.New(64)
	offer(t, q, 12)
	b := New(Config{MaxSize: 5, MaxWait: time.Hour}, q, quietLogger())
	b.Drain()
	go b.Run(context.Background())

	total := 0
	for batch := range b.Out() {
		if batch.Len() > 5 {
			t.Fatalf("folded batch exceeds MaxSize: %d", batch.Len())
		}
		total += batch.Len()
	}
	if total != 12 {
		t.Fatalf("drained %d of 12 events", total)
	}
}

func TestContextCancelDrains(t *testing.T) {
	q := queue.New(8)
	b := New(Config{MaxSize: 5, MaxWait: time.Hour}, q, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	offer(t, q, 2)
	time.Sleep(20 * time.Millisecond)
	cancel()

	total := 0
	for batch := range b.Out() {
		total += batch.Len()
	}
	if total != 2 {
		t.Fatalf("cancellation dropped events: got %d of 2", total)
	}
}

func TestQueueCloseEmptyFinishes(t *testing.T) {
	q := queue.New(8)
	b := New(Config{MaxSize: 5, MaxWait: time.Hour}, q, quietLogger())
	go b.Run(context.Background())
	q.Close()
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatalf("batcher did not stop on closed empty queue")
	}
}
