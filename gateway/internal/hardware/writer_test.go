package hardware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a clock that only moves when advanced.
type manualClock struct {
	ns atomic.Int64
}

func newManualClock() *manualClock {
	c := &manualClock{}
	c.ns.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *manualClock) now() time.Time          { return time.Unix(0, c.ns.Load()).UTC() }
func (c *manualClock) advance(d time.Duration) { c.ns.Add(int64(d)) }

func startWriter(t *testing.T, w *Writer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("writer did not stop")
		}
	}
}

func TestWriter_CommandsBeforeIntervalPoll(t *testing.T) {
	clock := newManualClock()
	out := &lineWriter{}
	w := NewWriter(time.Hour, 10*time.Millisecond)
	w.now = clock.now
	w.Attach(out)

	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Send(fmt.Sprintf("SET P%d ON", i%4+1)))
	}

	stop := startWriter(t, w)
	defer stop()

	require.Eventually(t, func() bool { return len(out.lines()) == 6 }, time.Second, 5*time.Millisecond)
	got := out.lines()
	assert.Equal(t, "?", got[5], "poll goes after every command queued before it")
	assert.Equal(t, 1, count(got, "?"))

	// No second poll while the clock stands still.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, count(out.lines(), "?"))
}

func TestWriter_ConcurrentSendersAtMostOnePollPerInterval(t *testing.T) {
	clock := newManualClock()
	out := &lineWriter{}
	w := NewWriter(time.Hour, 10*time.Millisecond)
	w.now = clock.now
	w.Attach(out)

	stop := startWriter(t, w)
	defer stop()

	const senders, perSender = 8, 25
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				assert.NoError(t, w.Send("SET V1 OFF"))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return count(out.lines(), "SET V1 OFF") == senders*perSender
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, count(out.lines(), "?"))
}

func TestWriter_PollsAgainAfterInterval(t *testing.T) {
	clock := newManualClock()
	out := &lineWriter{}
	w := NewWriter(time.Minute, 10*time.Millisecond)
	w.now = clock.now
	w.Attach(out)

	stop := startWriter(t, w)
	defer stop()

	require.Eventually(t, func() bool { return count(out.lines(), "?") == 1 }, time.Second, 5*time.Millisecond)
	clock.advance(time.Minute)
	require.Eventually(t, func() bool { return count(out.lines(), "?") == 2 }, time.Second, 5*time.Millisecond)
}

func TestWriter_SetPollInterval(t *testing.T) {
	w := NewWriter(time.Minute, time.Second)
	w.SetPollInterval(10 * time.Second)
	assert.Equal(t, 10*time.Second, w.PollInterval())

	w.SetPollInterval(0)
	assert.Equal(t, 10*time.Second, w.PollInterval(), "non-positive intervals are ignored")
}

func TestWriter_NoPortDiscardsCommands(t *testing.T) {
	clock := newManualClock()
	w := NewWriter(time.Hour, 10*time.Millisecond)
	w.now = clock.now

	require.NoError(t, w.Send("SET P1 ON"))
	stop := startWriter(t, w)
	defer stop()

	// The queued command and the first poll are both discarded.
	require.Eventually(t, func() bool { return w.dropped.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, w.written.Load())
}

func TestWriter_FlushesAcceptedCommandsOnShutdown(t *testing.T) {
	out := &lineWriter{}
	w := NewWriter(time.Hour, time.Hour)
	w.Attach(out)
	for _, cmd := range []string{"SET P1 ON", "SET V2 OFF", "SET P3 ON"} {
		require.NoError(t, w.Send(cmd))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, []string{"SET P1 ON", "SET V2 OFF", "SET P3 ON"}, out.lines())
	assert.ErrorIs(t, w.Send("SET P4 ON"), ErrWriterStopped)
	assert.Zero(t, w.Pending())
}

func TestWriter_EveryAcceptedSendIsWritten(t *testing.T) {
	out := &lineWriter{}
	w := NewWriter(time.Hour, 10*time.Millisecond)
	w.Attach(out)
	stop := startWriter(t, w)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if err := w.Send("SET P1 ON"); err != nil {
					assert.ErrorIs(t, err, ErrWriterStopped)
					return
				}
				accepted.Add(1)
			}
		}()
	}
	time.Sleep(time.Millisecond)
	stop()
	wg.Wait()

	assert.EqualValues(t, accepted.Load(), count(out.lines(), "SET P1 ON"))
}

func TestWriter_SendAfterStop(t *testing.T) {
	w := NewWriter(time.Hour, 10*time.Millisecond)
	stop := startWriter(t, w)
	stop()

	assert.ErrorIs(t, w.Send("SET P1 ON"), ErrWriterStopped)
	assert.Zero(t, w.Pending())
}
