// Package scheduler runs timed tasks per conversation with strict ordering
// and atomic cancellation.
//
// Every conversation gets its own event loop. Tasks in a loop run one at a
// time in (due time, scheduling order), so two tasks due at the same instant
// still run in the order they were scheduled. CancelAll voids every task of
// a conversation that has not started yet.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Task is the work run when a scheduled time arrives. ctx is cancelled when
// the conversation is cancelled or the scheduler closes.
type Task func(ctx context.Context)

const (
	statePending int32 = iota
	stateCancelled
	stateStarted
)

type task struct {
	convID string
	at     time.Time
	seq    uint64
	fn     Task
	state  atomic.Int32
	index  int
}

// Handle cancels a single scheduled task.
type Handle struct {
	t *task
}

// Cancel voids the task. It reports whether the task was still pending;
// false means it already started or was cancelled before.
func (h Handle) Cancel() bool {
	if h.t == nil {
		return false
	}
	return h.t.state.CompareAndSwap(statePending, stateCancelled)
}

// At is the time the task is due.
func (h Handle) At() time.Time {
	if h.t == nil {
		return time.Time{}
	}
	return h.t.at
}

// Scheduler owns the per-conversation loops. It is safe for concurrent use.
type Scheduler struct {
	log zerolog.Logger

	mu     sync.Mutex
	loops  map[string]*loop
	seq    uint64
	closed bool

	wg conc.WaitGroup
}

type loop struct {
	convID string
	ctx    context.Context
	cancel context.CancelFunc
	queue  taskHeap
	wake   chan struct{}
}

// New returns an empty Scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		log:   logger.With().Str("component", "scheduler").Logger(),
		loops: make(map[string]*loop),
	}
}

// ScheduleDelivery queues fn to run at the given time for a conversation.
// Tasks due in the past run as soon as the loop reaches them. After Close
// the returned handle is already cancelled and fn never runs.
func (s *Scheduler) ScheduleDelivery(convID string, at time.Time, fn Task) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &task{convID: convID, at: at, seq: s.seq, fn: fn}
	if s.closed {
		t.state.Store(stateCancelled)
		return Handle{t: t}
	}

	l, ok := s.loops[convID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		l = &loop{
			convID: convID,
			ctx:    ctx,
			cancel: cancel,
			wake:   make(chan struct{}, 1),
		}
		s.loops[convID] = l
		s.wg.Go(func() { s.run(l) })
	}
	heap.Push(&l.queue, t)

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return Handle{t: t}
}

// CancelAll voids every pending task of a conversation and cancels the
// context of a task that is currently running. It returns the number of
// tasks voided.
func (s *Scheduler) CancelAll(convID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loops[convID]
	if !ok {
		return 0
	}
	delete(s.loops, convID)
	n := l.voidLocked()
	l.cancel()

	s.log.Debug().Str("conversation", convID).Int("voided", n).Msg("cancelled pending tasks")
	return n
}

// Pending returns how many tasks of a conversation have not started.
func (s *Scheduler) Pending(convID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loops[convID]
	if !ok {
		return 0
	}
	n := 0
	for _, t := range l.queue {
		if t.state.Load() == statePending {
			n++
		}
	}
	return n
}

// Wait blocks until every loop has drained. It must not be called
// concurrently with ScheduleDelivery.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels all conversations and waits for their loops to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, l := range s.loops {
		l.voidLocked()
		l.cancel()
		delete(s.loops, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// voidLocked marks queued tasks cancelled. Caller holds s.mu.
func (l *loop) voidLocked() int {
	n := 0
	for _, t := range l.queue {
		if t.state.CompareAndSwap(statePending, stateCancelled) {
			n++
		}
	}
	l.queue = nil
	return n
}

func (s *Scheduler) run(l *loop) {
	defer l.cancel()

	for {
		s.mu.Lock()
		for len(l.queue) > 0 && l.queue[0].state.Load() != statePending {
			heap.Pop(&l.queue)
		}
		if len(l.queue) == 0 || l.ctx.Err() != nil {
			if s.loops[l.convID] == l {
				delete(s.loops, l.convID)
			}
			s.mu.Unlock()
			return
		}
		next := l.queue[0]
		s.mu.Unlock()

		if wait := time.Until(next.at); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-l.ctx.Done():
				timer.Stop()
				return
			case <-l.wake:
				// Something was queued; the head may have changed.
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		if l.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		if len(l.queue) == 0 || l.queue[0] != next {
			s.mu.Unlock()
			continue
		}
		heap.Pop(&l.queue)
		s.mu.Unlock()

		if !next.state.CompareAndSwap(statePending, stateStarted) {
			continue
		}
		s.exec(l.ctx, next)
	}
}

func (s *Scheduler) exec(ctx context.Context, t *task) {
	var pc panics.Catcher
	pc.Try(func() { t.fn(ctx) })
	if r := pc.Recovered(); r != nil {
		s.log.Error().
			Str("conversation", t.convID).
			Err(r.AsError()).
			Msg("scheduled task panicked")
	}
}

// taskHeap orders tasks by due time, then by scheduling order.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
