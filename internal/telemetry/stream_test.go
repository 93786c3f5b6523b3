package telemetry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roadops/operator-console/pkg/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// counterSource stamps each delta with an increasing sequence number in
// Timestamp so ordering can be checked.
func counterSource() (Source, *atomic.Int64) {
	var n atomic.Int64
	return SourceFunc(func(time.Time) core.TelemetryDelta {
		v := n.Add(1)
		return core.TelemetryDelta{Rotation: core.Ptr(float64(v)), Timestamp: time.Unix(v, 0)}
	}), &n
}

func TestEmit_DeliversSameDeltaToAll(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var got []core.TelemetryDelta
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		s.Subscribe(func(d core.TelemetryDelta) {
			mu.Lock()
			got = append(got, d)
			mu.Unlock()
		})
	}

	s.Emit()

	require.Len(t, got, 3)
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[1], got[2])
	assert.Equal(t, 3, s.Subscribers())
}

func TestEmit_NoSubscribers(t *testing.T) {
	src, n := counterSource()
	s := New(src)

	s.Emit()

	assert.Equal(t, int64(1), n.Load())
}

func TestSubscribe_UnsubscribeIsIdempotent(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var a, b int
	unsubA := s.Subscribe(func(core.TelemetryDelta) { a++ })
	s.Subscribe(func(core.TelemetryDelta) { b++ })

	unsubA()
	unsubA()
	s.Emit()

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, s.Subscribers())
}

func TestSubscribe_SameHandlerTwiceIsTwoRegistrations(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	calls := 0
	h := func(core.TelemetryDelta) { calls++ }
	unsub1 := s.Subscribe(h)
	s.Subscribe(h)

	unsub1()
	s.Emit()

	assert.Equal(t, 1, calls)
}

func TestEmit_UnsubscribeDuringEmission(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var order []string
	var unsubB, unsubA func()
	unsubA = s.Subscribe(func(core.TelemetryDelta) {
		order = append(order, "a")
		unsubA()
		unsubB()
	})
	unsubB = s.Subscribe(func(core.TelemetryDelta) {
		order = append(order, "b")
	})
	s.Subscribe(func(core.TelemetryDelta) {
		order = append(order, "c")
	})

	s.Emit()
	s.Emit()

	assert.Equal(t, []string{"a", "c", "c"}, order)
}

func TestEmit_SubscribeDuringEmissionStartsNextTime(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	late := 0
	once := sync.Once{}
	s.Subscribe(func(core.TelemetryDelta) {
		once.Do(func() {
			s.Subscribe(func(core.TelemetryDelta) { late++ })
		})
	})

	s.Emit()
	assert.Equal(t, 0, late)
	s.Emit()
	assert.Equal(t, 1, late)
}

func TestStream_StartEmitsAndStopHalts(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var count atomic.Int64
	s.Subscribe(func(core.TelemetryDelta) { count.Add(1) })

	s.Start(2 * time.Millisecond)
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Equal(t, time.Duration(0), s.Interval())

	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, count.Load())
}

func TestStream_StopIsIdempotent(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	s.Stop()
	s.Start(time.Millisecond)
	s.Stop()
	s.Stop()

	assert.False(t, s.IsRunning())
}

func TestStream_StartReplacesInterval(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var count atomic.Int64
	s.Subscribe(func(core.TelemetryDelta) { count.Add(1) })

	s.Start(time.Hour)
	assert.Equal(t, time.Hour, s.Interval())

	s.Start(2 * time.Millisecond)
	assert.Equal(t, 2*time.Millisecond, s.Interval())
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, time.Millisecond)

	s.Stop()
	// goleak in TestMain fails the run if the hour-long timer goroutine survived.
}

func TestStream_IgnoresNonPositiveInterval(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	s.Start(0)
	s.Start(-time.Second)

	assert.False(t, s.IsRunning())
}

func TestStream_DeliveryIsFIFO(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var mu sync.Mutex
	var seen []int64
	s.Subscribe(func(d core.TelemetryDelta) {
		mu.Lock()
		seen = append(seen, d.Timestamp.Unix())
		mu.Unlock()
	})

	s.Start(time.Millisecond)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.Emit()
			}
		}()
	}
	wg.Wait()
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 100)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "delta %d delivered out of order", i)
	}
}

func TestStream_HaltFromHandler(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	var count atomic.Int64
	done := make(chan (<-chan struct{}), 1)
	s.Subscribe(func(core.TelemetryDelta) {
		if count.Add(1) == 1 {
			done <- s.Halt()
		}
	})

	s.Start(time.Millisecond)

	select {
	case exited := <-done:
		<-exited
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
	assert.False(t, s.IsRunning())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

func TestStream_HaltFromHandlerStillDeliversToAll(t *testing.T) {
	src, _ := counterSource()
	s := New(src)
	s.Start(time.Hour)

	var got []string
	s.Subscribe(func(core.TelemetryDelta) {
		got = append(got, "first")
		s.Halt()
	})
	s.Subscribe(func(core.TelemetryDelta) { got = append(got, "second") })
	s.Emit()

	assert.Equal(t, []string{"first", "second"}, got)
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStream_StopWaitsForHandlerInFlight(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	s.Subscribe(func(core.TelemetryDelta) {
		once.Do(func() {
			close(entered)
			<-release
			finished.Store(true)
		})
	})
	s.Start(time.Millisecond)
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}
	assert.True(t, finished.Load())
	assert.False(t, s.IsRunning())
}

func TestStream_ConcurrentStopsBothWait(t *testing.T) {
	src, _ := counterSource()
	s := New(src)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	s.Subscribe(func(core.TelemetryDelta) {
		once.Do(func() {
			close(entered)
			<-release
			finished.Store(true)
		})
	})
	s.Start(time.Millisecond)
	<-entered

	var wg sync.WaitGroup
	var early atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
			if !finished.Load() {
				early.Add(1)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Zero(t, early.Load())
}

func TestStream_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s := New(SourceFunc(func(now time.Time) core.TelemetryDelta {
		return core.TelemetryDelta{Timestamp: now}
	}), WithClock(func() time.Time { return fixed }))

	var got time.Time
	s.Subscribe(func(d core.TelemetryDelta) { got = d.Timestamp })
	s.Emit()

	assert.True(t, fixed.Equal(got))
}
