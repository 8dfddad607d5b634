package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleOneShotRunsExactlyOnce(t *testing.T) {
	s := New()
	var runs int32
	var successes int32

	h := s.Schedule(context.Background(), Config{
		TaskName:  "oneshot",
		OnSuccess: func(name string, elapsed time.Duration) { atomic.AddInt32(&successes, 1) },
	}, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, 0)

	h.Wait()
	assert.EqualValues(t, 1, runs)
	assert.EqualValues(t, 1, successes)
}

func TestScheduleFixedRateRunsMultipleTimes(t *testing.T) {
	s := New()
	var runs int32

	h := s.Schedule(context.Background(), Config{TaskName: "periodic"}, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	h.Cancel()
	h.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestScheduleFixedDelayWaitsBetweenRuns(t *testing.T) {
	s := New()
	var runs int32

	h := s.ScheduleFixedDelay(context.Background(), Config{TaskName: "delayed"}, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	h.Cancel()
	h.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestScheduleReportsTaskErrorToOnError(t *testing.T) {
	s := New()
	errCh := make(chan error, 1)

	h := s.Schedule(context.Background(), Config{
		TaskName: "failing",
		OnError:  func(name string, err error, execution int) { errCh <- err },
	}, func(ctx context.Context) error {
		return assertErr{}
	}, 0)

	h.Wait()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected OnError to be called")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestScheduleCronRejectsInvalidExpression(t *testing.T) {
	s := New()
	_, err := s.ScheduleCron(context.Background(), Config{TaskName: "bad"}, func(ctx context.Context) error { return nil }, "60 * * * * *")
	require.Error(t, err)
}

func TestScheduleCronRunsAtNextFire(t *testing.T) {
	s := New()
	s.now = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 59, 0, time.UTC) }

	ran := make(chan struct{}, 1)
	h, err := s.ScheduleCron(context.Background(), Config{TaskName: "minutely"}, func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, "0 * * * * *")
	require.NoError(t, err)
	defer h.Cancel()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected cron task to run")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := New()
	h := s.Schedule(context.Background(), Config{TaskName: "x"}, func(ctx context.Context) error { return nil }, time.Hour)
	assert.NotPanics(t, func() {
		h.Cancel()
		h.Cancel()
	})
}
