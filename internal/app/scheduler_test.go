package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"letters/api/internal/lifecycle"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (lifecycle.SweepReport, error) {
	c.calls.Add(1)
	return lifecycle.SweepReport{}, c.err
}

func TestSchedulerSweepsRepeatedly(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler := NewScheduler(sweeper, 5*time.Millisecond, zaptest.NewLogger(t))

	scheduler.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, time.Millisecond)
	scheduler.Stop()

	stopped := sweeper.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.calls.Load())

	// A second Stop is harmless.
	scheduler.Stop()
}

func TestSchedulerSurvivesErrorsAndCancellation(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("database unavailable")}
	scheduler := NewScheduler(sweeper, 5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler := NewScheduler(sweeper, 5*time.Millisecond, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a scheduler that never started")
	}

	scheduler.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sweeper.calls.Load())
}

func TestSchedulerStartTwiceRunsOneLoop(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler := NewScheduler(sweeper, time.Hour, zaptest.NewLogger(t))

	scheduler.Start(context.Background())
	scheduler.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	scheduler.Stop()
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
