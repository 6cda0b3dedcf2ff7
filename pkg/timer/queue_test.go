package timer_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/timer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newQueue(t *testing.T) (*timer.Queue, *quartz.Mock, context.Context) {
	t.Helper()

	clock := quartz.NewMock(t)
	q := timer.NewQueue(clock, logrus.NewEntry(logrus.New()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	done := make(chan struct{})

	go func() {
		defer close(done)
		q.RunLoop(ctx)
	}()

	t.Cleanup(func() {
		q.Close()
		cancel()
		<-done
	})

	return q, clock, ctx
}

func TestQueue_firesOnPeriod(t *testing.T) {
	q, clock, ctx := newQueue(t)

	var fired atomic.Int32
	_, err := q.CreateTimer("report", time.Second, func() { fired.Add(1) })
	require.NoError(t, err)

	clock.Advance(999 * time.Millisecond).MustWait(ctx)
	assert.EqualValues(t, 0, fired.Load())

	clock.Advance(time.Millisecond).MustWait(ctx)
	assert.EqualValues(t, 1, fired.Load())

	clock.Advance(time.Second).MustWait(ctx)
	assert.EqualValues(t, 2, fired.Load())
}

func TestQueue_callbacksAreSerialised(t *testing.T) {
	q, clock, ctx := newQueue(t)

	var running, overlap atomic.Int32
	cb := func() {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		running.Add(-1)
	}

	for i := 0; i < 4; i++ {
		_, err := q.CreateTimer("t", 100*time.Millisecond, cb)
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond).MustWait(ctx)
	}

	assert.EqualValues(t, 0, overlap.Load())
}

func TestQueue_cancelTimer(t *testing.T) {
	q, clock, ctx := newQueue(t)

	var fired atomic.Int32
	id, err := q.CreateTimer("feature-flush", 500*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, q.Count())

	clock.Advance(500 * time.Millisecond).MustWait(ctx)
	q.CancelTimer(id)
	q.CancelTimer(id)
	assert.Equal(t, 0, q.Count())

	clock.Advance(500 * time.Millisecond).MustWait(ctx)
	assert.EqualValues(t, 1, fired.Load())
}

func TestQueue_closedRejectsTimers(t *testing.T) {
	q := timer.NewQueue(quartz.NewMock(t), logrus.NewEntry(logrus.New()))
	q.Close()

	_, err := q.CreateTimer("late", time.Second, func() {})
	assert.ErrorIs(t, err, verrors.ErrTimerQueueClosed)
}

func TestQueue_panicDoesNotStopLoop(t *testing.T) {
	q, clock, ctx := newQueue(t)

	var fired atomic.Int32
	_, err := q.CreateTimer("bad", time.Second, func() { panic("boom") })
	require.NoError(t, err)
	_, err = q.CreateTimer("good", time.Second, func() { fired.Add(1) })
	require.NoError(t, err)

	clock.Advance(time.Second).MustWait(ctx)
	clock.Advance(time.Second).MustWait(ctx)

	assert.EqualValues(t, 2, fired.Load())
}
