package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/funnel/internal/batcher"
	"github.com/rzbill/funnel/internal/filter"
	"github.com/rzbill/funnel/internal/journal"
	"github.com/rzbill/funnel/internal/queue"
	"github.com/rzbill/funnel/internal/sink"
	"github.com/rzbill/funnel/internal/submitter"
	"github.com/rzbill/funnel/pkg/backoff"
	"github.com/rzbill/funnel/pkg/log"
)

func quietLogger() log.Logger {
	return log.NewLogger(log.WithLevel(log.ErrorLevel), log.WithOutput(log.NullOutput{}))
}

// startPipeline runs p in the background and guarantees a bounded shutdown
// when the test ends.
func startPipeline(t *testing.T, p *Pipeline) {
	t.Helper()
	go p.Run(context.Background())
	t.Cleanup(func() { p.RequestShutdown(2 * time.Second) })
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", d, msg)
}

func submitN(t *testing.T, p *Pipeline, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r, err := p.Submit(context.Background(), []byte(fmt.Sprintf("ev-%d", i)), nil)
		require.NoError(t, err)
		ids = append(ids, r.EventID)
	}
	return ids
}

func TestBurstSealsFullBatchPromptly(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 10,
		Batch:         batcher.Config{MaxSize: 5, MaxWait: time.Second},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	start := time.Now()
	ids := submitN(t, p, 5)

	waitFor(t, time.Second, func() bool { return mock.Calls() == 1 }, "one submission")
	// Size trigger fires long before the 1s age trigger.
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, ids, mock.DeliveredEventIDs())
}

func TestSingleEventFlushedAtMaxWait(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 10,
		Batch:         batcher.Config{MaxSize: 100, MaxWait: 200 * time.Millisecond},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	start := time.Now()
	submitN(t, p, 1)

	waitFor(t, time.Second, func() bool { return mock.Calls() == 1 }, "age-triggered flush")
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "flushed before the age trigger")
	require.Len(t, mock.DeliveredEventIDs(), 1)
}

func TestBackpressureRejectsThenRecovers(t *testing.T) {
	release := make(chan struct{})
	mock := sink.NewMock().WithDelay(func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	p := New(Config{
		QueueCapacity: 3,
		Batch:         batcher.Config{MaxSize: 1, MaxWait: time.Hour},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	// With the sink wedged the queue must fill and start rejecting. Offers
	// keep landing until the batcher, the lane, and the queue are all full.
	accepted := 0
	sawFull := false
	for i := 0; i < 50; i++ {
		_, err := p.Submit(context.Background(), []byte("x"), nil)
		if err == queue.ErrFull {
			sawFull = true
			break
		}
		require.NoError(t, err)
		accepted++
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, sawFull, "queue never reported ErrFull")

	// Unblock the sink: everything accepted so far must drain through.
	close(release)
	waitFor(t, 2*time.Second, func() bool {
		return len(mock.DeliveredEventIDs()) == accepted
	}, "accepted events drained after recovery")

	// And new offers are accepted again.
	_, err := p.Submit(context.Background(), []byte("after"), nil)
	require.NoError(t, err)
}

func TestGraceExpiryReportsLostEvents(t *testing.T) {
	jrnl, err := journal.Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	defer jrnl.Close()

	// First batch acks, every later send wedges until the grace window
	// cancels it.
	var calls atomic.Int32
	mock := sink.NewMock().WithDelay(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	})
	p := New(Config{
		QueueCapacity: 32,
		Batch:         batcher.Config{MaxSize: 5, MaxWait: time.Hour},
	}, mock, jrnl, nil, quietLogger())
	startPipeline(t, p)

	ids := submitN(t, p, 20)
	waitFor(t, time.Second, func() bool { return int(calls.Load()) >= 2 }, "second batch in flight")

	p.RequestShutdown(150 * time.Millisecond)
	require.Equal(t, StateTerminated, p.State())

	delivered := mock.DeliveredEventIDs()
	require.Len(t, delivered, 5)

	records, err := jrnl.LostEvents(context.Background())
	require.NoError(t, err)
	lost := make(map[string]bool, len(records))
	for _, rec := range records {
		require.Equal(t, "deadline_exceeded", rec.Reason)
		lost[rec.EventID] = true
	}
	require.Len(t, lost, 15)

	// Delivered and lost partition the accepted set: no overlap, no gaps.
	for _, id := range delivered {
		require.False(t, lost[id], "event %s both delivered and reported lost", id)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range delivered {
		seen[id] = true
	}
	for id := range lost {
		seen[id] = true
	}
	for _, id := range ids {
		require.True(t, seen[id], "event %s vanished without a report", id)
	}
}

func TestShutdownFlushesEverything(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 64,
		Batch:         batcher.Config{MaxSize: 5, MaxWait: time.Hour},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	// 13 events: two full batches plus a partial that only a drain seals.
	ids := submitN(t, p, 13)
	p.RequestShutdown(2 * time.Second)

	require.Equal(t, ids, mock.DeliveredEventIDs())
	require.Equal(t, StateTerminated, p.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 16,
		Batch:         batcher.Config{MaxSize: 4, MaxWait: time.Hour},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	ids := submitN(t, p, 8)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			p.RequestShutdown(2 * time.Second)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("concurrent shutdown call did not return")
		}
	}

	// One drain, no duplicate submissions.
	require.Equal(t, ids, mock.DeliveredEventIDs())
	require.Equal(t, 2, mock.Calls())
}

func TestSubmitRejectedOnceDraining(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 8,
		Batch:         batcher.Config{MaxSize: 4, MaxWait: time.Hour},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	p.RequestShutdown(time.Second)
	_, err := p.Submit(context.Background(), []byte("late"), nil)
	require.ErrorIs(t, err, queue.ErrClosed)
}

func TestAcceptanceOrderPreservedEndToEnd(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 64,
		Batch:         batcher.Config{MaxSize: 4, MaxWait: 20 * time.Millisecond},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	ids := submitN(t, p, 25)
	p.RequestShutdown(2 * time.Second)

	got := mock.DeliveredEventIDs()
	require.Equal(t, ids, got, "delivery order must match acceptance order")
}

func TestRetryThenDeliverKeepsEventsIntact(t *testing.T) {
	mock := sink.NewMock().Script(
		sink.Retryable("unavailable", fmt.Errorf("503")),
		sink.Retryable("unavailable", fmt.Errorf("503")),
	)
	p := New(Config{
		QueueCapacity: 8,
		Batch:         batcher.Config{MaxSize: 3, MaxWait: time.Hour},
		Submit: submitter.Config{
			MaxAttempts: 5,
			Backoff:     backoff.Policy{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Factor: 2},
		},
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	ids := submitN(t, p, 3)
	waitFor(t, 2*time.Second, func() bool { return mock.Calls() == 3 }, "two retries then ack")
	require.Equal(t, ids, mock.DeliveredEventIDs())
}

func TestFilterRejectsAtTheGate(t *testing.T) {
	f, err := filter.New(`text.contains("keep")`)
	require.NoError(t, err)

	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 8,
		Batch:         batcher.Config{MaxSize: 1, MaxWait: time.Hour},
		Filter:        f,
	}, mock, nil, nil, quietLogger())
	startPipeline(t, p)

	_, err = p.Submit(context.Background(), []byte("drop me"), nil)
	require.ErrorIs(t, err, ErrFiltered)

	r, err := p.Submit(context.Background(), []byte("keep me"), nil)
	require.NoError(t, err)
	waitFor(t, time.Second, func() bool { return mock.Calls() == 1 }, "accepted event delivered")
	require.Equal(t, []string{r.EventID}, mock.DeliveredEventIDs())
}

func TestRunContextCancelDrains(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 16,
		Batch:         batcher.Config{MaxSize: 10, MaxWait: time.Hour},
		GraceWindow:   2 * time.Second,
	}, mock, nil, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(runDone)
	}()

	ids := submitN(t, p, 4)
	cancel()

	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
	require.NoError(t, p.AwaitTerminated(context.Background()))
	require.Equal(t, ids, mock.DeliveredEventIDs())
}

func TestStateTransitions(t *testing.T) {
	mock := sink.NewMock()
	p := New(Config{
		QueueCapacity: 8,
		Batch:         batcher.Config{MaxSize: 4, MaxWait: time.Hour},
	}, mock, nil, nil, quietLogger())
	require.Equal(t, StateRunning, p.State())
	startPipeline(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, p.AwaitTerminated(ctx), "await must respect its context while running")

	p.RequestShutdown(time.Second)
	require.Equal(t, StateTerminated, p.State())
	require.NoError(t, p.AwaitTerminated(context.Background()))
}
