package progress_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/bgcheck/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func drain(s *progress.Stream) []progress.Update {
	var updates []progress.Update
	for update := range s.Updates() {
		updates = append(updates, update)
	}
	return updates
}

func TestStreamThrottles(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	s := progress.NewStream(progress.WithMinInterval(time.Second), progress.WithClock(clock.Now), progress.WithBuffer(16))

	assert.True(t, s.Emit(10, "scanning"))
	assert.False(t, s.Emit(20, "too soon"))

	clock.Advance(500 * time.Millisecond)
	assert.False(t, s.Emit(30, "still too soon"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, s.Emit(40, "pricing"))

	s.Finish("done")

	updates := drain(s)
	require.Len(t, updates, 3)
	assert.Equal(t, 10, updates[0].Percent)
	assert.Equal(t, 40, updates[1].Percent)
	assert.Equal(t, progress.Update{Percent: 100, Message: "done", Final: true}, updates[2])
}

func TestStreamNonDecreasing(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	s := progress.NewStream(progress.WithMinInterval(time.Second), progress.WithClock(clock.Now), progress.WithBuffer(16))

	s.Emit(50, "half")
	clock.Advance(time.Second)
	s.Emit(20, "backwards")
	clock.Advance(time.Second)
	s.Emit(150, "overflow")
	s.Finish("done")

	updates := drain(s)
	require.Len(t, updates, 4)

	previous := 0
	for _, update := range updates {
		assert.GreaterOrEqual(t, update.Percent, previous)
		previous = update.Percent
	}

	assert.Equal(t, 50, updates[1].Percent)
	assert.Equal(t, 99, updates[2].Percent)
	assert.Equal(t, 100, updates[3].Percent)
}

func TestStreamFinishWithFullBuffer(t *testing.T) {
	t.Parallel()

	s := progress.NewStream(progress.WithMinInterval(0), progress.WithBuffer(2))

	assert.True(t, s.Emit(10, "a"))
	assert.True(t, s.Emit(20, "b"))
	assert.False(t, s.Emit(30, "dropped"))

	s.Finish("done")
	s.Finish("ignored")

	updates := drain(s)
	require.Len(t, updates, 2)
	assert.Equal(t, 20, updates[0].Percent)
	assert.True(t, updates[1].Final)
	assert.Equal(t, 100, updates[1].Percent)

	assert.False(t, s.Emit(50, "after finish"))
}

func TestStreamConcurrentEmitters(t *testing.T) {
	t.Parallel()

	s := progress.NewStream(progress.WithMinInterval(0), progress.WithBuffer(4))

	var collected []progress.Update
	done := make(chan struct{})
	go func() {
		collected = drain(s)
		close(done)
	}()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				s.Emit(i*10+j, "working")
			}
		}()
	}
	wg.Wait()

	s.Finish("done")
	<-done

	require.NotEmpty(t, collected)
	assert.True(t, collected[len(collected)-1].Final)

	previous := 0
	for _, update := range collected {
		assert.GreaterOrEqual(t, update.Percent, previous)
		previous = update.Percent
	}
}

func TestNilStream(t *testing.T) {
	t.Parallel()

	var s *progress.Stream
	assert.False(t, s.Emit(10, "ignored"))
	s.Finish("ignored")
}

func TestRenderer(t *testing.T) {
	t.Parallel()

	s := progress.NewStream(progress.WithMinInterval(0))
	s.Emit(50, "pricing")
	s.Finish("done")

	var buf bytes.Buffer
	progress.NewRenderer(&buf).Render(s.Updates())

	assert.Contains(t, buf.String(), " 50% pricing")
	assert.Contains(t, buf.String(), "100% done\n")
	assert.Equal(t, "[===============               ]  50% x", progress.Line(progress.Update{Percent: 50, Message: "x"}))
}
