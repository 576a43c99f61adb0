package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/platformcore/pkg/platform/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockedFor reports whether done stays open for d.
func blockedFor(done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return false
	case <-time.After(d):
		return true
	}
}

func TestBounded_PushPopRoundTrip(t *testing.T) {
	q := queue.NewBounded[int](4)
	ctx := context.Background()

	require.True(t, q.Push(ctx, 1))
	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, q.Len())
}

func TestBounded_FIFO(t *testing.T) {
	q := queue.NewBounded[int](3)
	ctx := context.Background()

	// Interleave pushes and pops so the ring buffer wraps several times.
	next := 0
	var got []int
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			require.True(t, q.Push(ctx, next))
			next++
		}
		for i := 0; i < 2; i++ {
			v, ok := q.Pop(ctx)
			require.True(t, ok)
			got = append(got, v)
		}
		v, ok := q.Pop(ctx)
		require.True(t, ok)
		got = append(got, v)
	}

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBounded_CapacityClamp(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"zero", 0, 1},
		{"negative", -3, 1},
		{"one", 1, 1},
		{"many", 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.NewBounded[string](tt.capacity)
			assert.Equal(t, tt.want, q.Cap())
		})
	}
}

func TestBounded_PushBlocksWhenFull(t *testing.T) {
	q := queue.NewBounded[int](2)
	ctx := context.Background()

	require.True(t, q.Push(ctx, 1))
	require.True(t, q.Push(ctx, 2))

	done := make(chan struct{})
	var pushed bool
	go func() {
		defer close(done)
		pushed = q.Push(ctx, 3)
	}()

	require.True(t, blockedFor(done, 50*time.Millisecond), "third push should block on a full queue")

	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after pop")
	}
	assert.True(t, pushed)

	v, _ = q.Pop(ctx)
	assert.Equal(t, 2, v)
	v, _ = q.Pop(ctx)
	assert.Equal(t, 3, v)
}

func TestBounded_CloseUnblocksPusher(t *testing.T) {
	q := queue.NewBounded[int](1)
	ctx := context.Background()
	require.True(t, q.Push(ctx, 1))

	done := make(chan bool, 1)
	go func() { done <- q.Push(ctx, 2) }()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case pushed := <-done:
		assert.False(t, pushed)
	case <-time.After(time.Second):
		t.Fatal("close did not wake the pusher")
	}

	// The item buffered before close is still retrievable.
	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestBounded_CloseUnblocksPopper(t *testing.T) {
	q := queue.NewBounded[int](1)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not wake the popper")
	}
}

func TestBounded_ClosedRejectsPush(t *testing.T) {
	q := queue.NewBounded[int](1)
	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Push(context.Background(), 3))
	assert.False(t, q.TryPush(3))

	_, ok := q.Pop(context.Background())
	assert.False(t, ok)
}

func TestBounded_DrainAfterClose(t *testing.T) {
	q := queue.NewBounded[int](8)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(ctx, i))
	}
	q.Close()

	for i := 0; i < 5; i++ {
		v, ok := q.Pop(ctx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestBounded_Cancellation(t *testing.T) {
	t.Run("blocked push returns false on cancel", func(t *testing.T) {
		q := queue.NewBounded[int](1)
		require.True(t, q.Push(context.Background(), 1))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan bool, 1)
		go func() { done <- q.Push(ctx, 2) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case pushed := <-done:
			assert.False(t, pushed)
		case <-time.After(time.Second):
			t.Fatal("cancel did not wake the pusher")
		}
		assert.Equal(t, 1, q.Len(), "cancelled push must not enqueue")
	})

	t.Run("blocked pop returns false on cancel", func(t *testing.T) {
		q := queue.NewBounded[int](1)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan bool, 1)
		go func() {
			_, ok := q.Pop(ctx)
			done <- ok
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("cancel did not wake the popper")
		}
		assert.False(t, q.Closed())
	})

	t.Run("deadline expires while waiting", func(t *testing.T) {
		q := queue.NewBounded[int](1)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, ok := q.Pop(ctx)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	})

	t.Run("cancelled context does not prevent immediate completion", func(t *testing.T) {
		q := queue.NewBounded[int](1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.True(t, q.Push(ctx, 7))
		v, ok := q.Pop(ctx)
		assert.True(t, ok)
		assert.Equal(t, 7, v)
	})
}

func TestBounded_TryPush(t *testing.T) {
	q := queue.NewBounded[int](2)

	assert.True(t, q.TryPush(1))
	assert.True(t, q.TryPush(2))
	assert.False(t, q.TryPush(3))
	assert.Equal(t, uint64(1), q.Drops())

	v, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, q.TryPush(3))
	assert.Equal(t, uint64(1), q.Drops())
}

func TestBounded_MultiProducerMultiConsumer(t *testing.T) {
	const (
		producers   = 4
		consumers   = 3
		perProducer = 250
	)
	q := queue.NewBounded[int](8)
	ctx := context.Background()

	var prodWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		prodWG.Add(1)
		go func(base int) {
			defer prodWG.Done()
			for i := 0; i < perProducer; i++ {
				if !q.Push(ctx, base+i) {
					t.Errorf("push failed before close")
					return
				}
			}
		}(p * perProducer)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
	)
	// Each consumer checks that values from a single producer arrive in order.
	var consWG sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consWG.Add(1)
		go func() {
			defer consWG.Done()
			last := make(map[int]int)
			for {
				v, ok := q.Pop(ctx)
				if !ok {
					return
				}
				producer := v / perProducer
				if prev, ok := last[producer]; ok && v <= prev {
					t.Errorf("producer %d out of order: %d after %d", producer, v, prev)
				}
				last[producer] = v
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	prodWG.Wait()
	q.Close()
	consWG.Wait()

	assert.Len(t, seen, producers*perProducer)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d delivered %d times", v, n)
	}
}
