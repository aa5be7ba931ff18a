package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func record(r *recorder, s string) Task {
	return func(ctx context.Context) { r.add(s) }
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func TestScheduler_RunsInTimeOrder(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}
	now := time.Now()

	s.ScheduleDelivery("a", now.Add(60*time.Millisecond), record(r, "third"))
	s.ScheduleDelivery("a", now.Add(10*time.Millisecond), record(r, "first"))
	s.ScheduleDelivery("a", now.Add(30*time.Millisecond), record(r, "second"))
	s.Wait()

	assert.Equal(t, []string{"first", "second", "third"}, r.list())
}

func TestScheduler_EqualTimesKeepSchedulingOrder(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}
	at := time.Now().Add(20 * time.Millisecond)

	want := []string{"d0", "s0", "d1", "s1", "d2", "s2"}
	for _, name := range want {
		s.ScheduleDelivery("a", at, record(r, name))
	}
	s.Wait()

	assert.Equal(t, want, r.list())
}

func TestScheduler_PastDueRunsImmediately(t *testing.T) {
	s := newTestScheduler(t)
	done := make(chan struct{})
	s.ScheduleDelivery("a", time.Now().Add(-time.Hour), func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("past-due task did not run")
	}
}

func TestScheduler_CancelAll(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}
	now := time.Now()

	s.ScheduleDelivery("a", now.Add(10*time.Millisecond), record(r, "a1"))
	s.ScheduleDelivery("a", now.Add(200*time.Millisecond), record(r, "a2"))
	s.ScheduleDelivery("a", now.Add(250*time.Millisecond), record(r, "a3"))
	s.ScheduleDelivery("b", now.Add(100*time.Millisecond), record(r, "b1"))

	require.Eventually(t, func() bool { return len(r.list()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, s.Pending("a"))

	voided := s.CancelAll("a")
	assert.Equal(t, 2, voided)
	assert.Equal(t, 0, s.Pending("a"))

	s.Wait()
	assert.Equal(t, []string{"a1", "b1"}, r.list())
}

func TestScheduler_CancelAllUnknown(t *testing.T) {
	s := newTestScheduler(t)
	assert.Equal(t, 0, s.CancelAll("nobody"))
}

func TestScheduler_RunningTaskSeesCancellation(t *testing.T) {
	s := newTestScheduler(t)
	started := make(chan struct{})
	observed := make(chan error, 1)

	s.ScheduleDelivery("a", time.Now(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
	})

	<-started
	s.CancelAll("a")

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("running task did not observe cancellation")
	}
}

func TestHandle_Cancel(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}
	now := time.Now()

	s.ScheduleDelivery("a", now.Add(10*time.Millisecond), record(r, "keep"))
	h := s.ScheduleDelivery("a", now.Add(20*time.Millisecond), record(r, "drop"))
	s.ScheduleDelivery("a", now.Add(30*time.Millisecond), record(r, "keep2"))

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	s.Wait()

	assert.Equal(t, []string{"keep", "keep2"}, r.list())
}

func TestHandle_CancelAfterRun(t *testing.T) {
	s := newTestScheduler(t)
	h := s.ScheduleDelivery("a", time.Now(), func(ctx context.Context) {})
	s.Wait()
	assert.False(t, h.Cancel())
}

func TestScheduler_PanicDoesNotStopLoop(t *testing.T) {
	s := newTestScheduler(t)
	r := &recorder{}
	now := time.Now()

	s.ScheduleDelivery("a", now.Add(5*time.Millisecond), func(ctx context.Context) { panic("boom") })
	s.ScheduleDelivery("a", now.Add(10*time.Millisecond), record(r, "after"))
	s.Wait()

	assert.Equal(t, []string{"after"}, r.list())
}

func TestScheduler_CloseVoidsEverything(t *testing.T) {
	s := New(zerolog.Nop())
	r := &recorder{}
	s.ScheduleDelivery("a", time.Now().Add(time.Hour), record(r, "never"))
	s.Close()

	h := s.ScheduleDelivery("a", time.Now(), record(r, "after-close"))
	assert.False(t, h.Cancel())
	assert.Empty(t, r.list())
}
