// Package timer provides a queue of named recurring timers whose callbacks are
// all executed, one at a time, by a single run loop.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	verrors "vistara-analytics/pkg/errors"
)

// ID identifies a timer on its queue.
type ID uint64

type job struct {
	fn   func()
	done chan struct{}
}

type entry struct {
	name   string
	period time.Duration
	cancel context.CancelFunc
	waiter quartz.Waiter
}

// Queue owns a set of recurring timers. Ticks are produced by the clock and
// handed to the goroutine running RunLoop, so callbacks never run
// concurrently with each other and must not block.
type Queue struct {
	clock  quartz.Clock
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job

	mu     sync.Mutex
	nextID ID
	timers map[ID]*entry
}

// NewQueue creates an idle queue. Timers may be created before RunLoop runs;
// their first ticks wait for the loop.
func NewQueue(clock quartz.Clock, logger *logrus.Entry) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		clock:  clock,
		logger: logger.WithField("component", "timer-queue"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job),
		timers: make(map[ID]*entry),
	}
}

// CreateTimer registers fn to run every period until the timer is cancelled
// or the queue is closed.
func (q *Queue) CreateTimer(name string, period time.Duration, fn func()) (ID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return 0, verrors.ErrTimerQueueClosed
	}

	q.nextID++
	id := q.nextID

	ctx, cancel := context.WithCancel(q.ctx)
	waiter := q.clock.TickerFunc(ctx, period, func() error {
		q.dispatch(ctx, fn)

		return nil
	}, "timer", name)

	q.timers[id] = &entry{name: name, period: period, cancel: cancel, waiter: waiter}
	q.logger.Debugf("created timer %d (%s) every %s", id, name, period)

	return id, nil
}

// dispatch hands fn to the run loop and waits until it has been executed.
func (q *Queue) dispatch(ctx context.Context, fn func()) {
	j := job{fn: fn, done: make(chan struct{})}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return
	}

	select {
	case <-j.done:
	case <-ctx.Done():
	}
}

// CancelTimer stops a timer. Cancelling an unknown id is a no-op.
func (q *Queue) CancelTimer(id ID) {
	q.mu.Lock()
	e, ok := q.timers[id]
	delete(q.timers, id)
	q.mu.Unlock()

	if !ok {
		return
	}

	e.cancel()
	_ = e.waiter.Wait()
	q.logger.Debugf("cancelled timer %d (%s)", id, e.name)
}

// Count returns the number of live timers.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.timers)
}

// RunLoop executes timer callbacks until ctx is done or the queue is closed.
func (q *Queue) RunLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.ctx.Done():
			return
		case j := <-q.jobs:
			q.run(j)
		}
	}
}

func (q *Queue) run(j job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("timer callback panicked: %v", r)
		}
	}()

	j.fn()
}

// Close cancels every timer and stops the run loop.
func (q *Queue) Close() {
	q.mu.Lock()
	q.cancel()
	timers := q.timers
	q.timers = make(map[ID]*entry)
	q.mu.Unlock()

	for _, e := range timers {
		e.cancel()
		_ = e.waiter.Wait()
	}
}
