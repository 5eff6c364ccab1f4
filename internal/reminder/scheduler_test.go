package reminder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"trackmyteam/internal/model"
	"trackmyteam/internal/pkg/lock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFireAlignsToBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 17, 42, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), nextFire(now, time.Hour))

	onBoundary := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), nextFire(onBoundary, time.Hour))

	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), nextFire(now, 15*time.Minute))
}

// blockingSweeper 返回一个发送时阻塞直到 release 关闭的扫描器。
func blockingSweeper(started chan<- struct{}, release <-chan struct{}) *Sweeper {
	n := &recordingNotifier{sendFn: func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}}
	src := staticSource(candidate(1, "Hold", "a@example.com", at(time.Now().Add(time.Hour))))
	return NewSweeper(src, n, nil, discardLogger(), Options{SendTimeout: 10 * time.Second, Workers: 1})
}

func TestRunOnceSkipsWhenAlreadyRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	s := NewScheduler(blockingSweeper(started, release), nil, time.Hour, 0, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background(), "test")
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first sweep did not start")
	}
	assert.True(t, s.Running())

	_, err := s.RunOnce(context.Background(), "overlap")
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Running())

	// 回到 Idle 后可以再次执行
	res, err := s.RunOnce(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestRunOnceSkipsWhenAnotherProcessHoldsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := lock.NewLocker(rdb)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	a := NewScheduler(blockingSweeper(started, release), locker, time.Hour, time.Minute, discardLogger())

	n := &recordingNotifier{}
	b := NewScheduler(newTestSweeper(staticSource(), n, nil), locker, time.Hour, time.Minute, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := a.RunOnce(context.Background(), "a")
		done <- err
	}()
	<-started

	_, err := b.RunOnce(context.Background(), "b")
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	require.NoError(t, <-done)

	_, err = b.RunOnce(context.Background(), "b")
	assert.NoError(t, err, "lock is released after the sweep")
}

func TestRunOnceUsesSingleNow(t *testing.T) {
	fixed := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	n := &recordingNotifier{}
	src := staticSource(
		candidate(1, "In", "in@example.com", at(fixed.Add(24*time.Hour-time.Second))),
		candidate(2, "Out", "out@example.com", at(fixed.Add(24*time.Hour))),
	)
	s := NewScheduler(newTestSweeper(src, n, nil), nil, time.Hour, 0, discardLogger())
	s.now = func() time.Time { return fixed }

	res, err := s.RunOnce(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, fixed, res.Now)
	assert.Equal(t, []string{"in@example.com"}, n.recipients())
}

func TestRunFiresOnIntervalAndStops(t *testing.T) {
	var loads atomic.Int32
	src := mockSource{listFn: func(context.Context) ([]model.ReminderCandidate, error) {
		loads.Add(1)
		return nil, nil
	}}
	s := NewScheduler(newTestSweeper(src, &recordingNotifier{}, nil), nil, 40*time.Millisecond, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return loads.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestManualRunIgnoresSlotClaims(t *testing.T) {
	n := &recordingNotifier{}
	guard := &mapGuard{}
	src := staticSource(candidate(3, "Ship", "a@example.com", at(baseNow.Add(5*time.Hour))))
	s := NewScheduler(newTestSweeper(src, n, guard), nil, time.Hour, 0, discardLogger())

	s.now = func() time.Time { return baseNow }
	res, err := s.RunOnce(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	// 同一时段内的手动触发照常发送
	s.now = func() time.Time { return baseNow.Add(30 * time.Minute) }
	res, err = s.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Zero(t, res.Duplicates)

	// 定时触发仍受认领约束
	res, err = s.RunOnce(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Equal(t, 1, res.Duplicates)

	assert.Len(t, n.sent, 2)
}

func TestRunOnceKeepsLockAliveDuringLongSweep(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := lock.NewLocker(rdb)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	ttl := 300 * time.Millisecond
	s := NewScheduler(blockingSweeper(started, release), locker, time.Hour, ttl, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background(), TriggerSchedule)
		done <- err
	}()
	<-started

	// miniredis 的过期时间只随 FastForward 推进，总共推进 3 倍 TTL
	for i := 0; i < 18; i++ {
		time.Sleep(50 * time.Millisecond)
		mr.FastForward(50 * time.Millisecond)
	}
	assert.True(t, mr.Exists(lockKey), "lock should survive a sweep longer than its ttl")

	_, err := locker.Acquire(context.Background(), lockKey, time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, mr.Exists(lockKey), "lock is released after the sweep")
}
