package reminder

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"trackmyteam/internal/pkg/lock"
	"trackmyteam/internal/pkg/metrics"
)

// ErrSweepInProgress 表示已有扫描在执行，本次触发被跳过。
var ErrSweepInProgress = errors.New("reminder sweep already in progress")

const lockKey = "trackmyteam:reminder:sweep"

// 触发来源。手动触发跳过时段认领，定时触发受其约束。
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Scheduler 按固定间隔触发扫描，触发时刻对齐到间隔的整数倍（UTC）。
//
// 状态只有 Idle 与 Running 两种。处于 Running 时到来的触发（定时或手动）
// 直接跳过并返回 ErrSweepInProgress，不排队；配置了 Locker 时，
// 其他进程持有锁同样视为 Running。扫描期间锁按 lockTTL/3 的周期续期，
// 扫描耗时超过 lockTTL 也不会让锁失效。
type Scheduler struct {
	sweeper  *Sweeper
	locker   *lock.Locker
	lockTTL  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
}

// NewScheduler 创建调度器。locker 为 nil 时只做进程内互斥。
func NewScheduler(sweeper *Sweeper, locker *lock.Locker, interval, lockTTL time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &Scheduler{
		sweeper:  sweeper,
		locker:   locker,
		lockTTL:  lockTTL,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run 阻塞运行调度循环，直到 ctx 被取消。
//
// 下一次触发时间在本次扫描结束后计算，扫描超过一个间隔时错过的触发被丢弃。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started", slog.String("interval", s.interval.String()))

	for {
		next := nextFire(s.now(), s.interval)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("reminder scheduler stopped")
			return
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx, TriggerSchedule); err != nil && !errors.Is(err, ErrSweepInProgress) {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("reminder sweep failed", slog.String("error", err.Error()))
		}
	}
}

// RunOnce 立即执行一次扫描。trigger 为 TriggerManual 时不检查时段认领，
// 其他取值都按定时扫描处理，并写入日志。
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return s.skip(trigger, "local")
	}
	defer s.running.Store(false)

	if s.locker != nil {
		lk, err := s.locker.Acquire(ctx, lockKey, s.lockTTL)
		switch {
		case errors.Is(err, lock.ErrNotAcquired):
			return s.skip(trigger, "remote")
		case err != nil:
			// 锁服务不可用时退化为进程内互斥
			s.logger.Warn("reminder lock unavailable, continue without it", slog.String("error", err.Error()))
		default:
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := lk.Release(releaseCtx); err != nil {
					s.logger.Warn("release reminder lock failed", slog.String("error", err.Error()))
				}
			}()
			stop := s.keepAlive(lk)
			defer stop()
		}
	}

	now := s.now()
	var (
		res Result
		err error
	)
	if trigger == TriggerManual {
		res, err = s.sweeper.SweepUnguarded(ctx, now)
	} else {
		res, err = s.sweeper.Sweep(ctx, now)
	}
	metrics.ReminderSweepDuration.Observe(res.Duration.Seconds())
	if err != nil {
		metrics.ReminderSweepsTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	metrics.ReminderSweepsTotal.WithLabelValues("completed").Inc()
	metrics.ReminderLastSweepTimestamp.Set(float64(now.Unix()))
	s.logger.Info("reminder sweep completed",
		slog.String("trigger", trigger),
		slog.Time("now", now),
		slog.Int("scanned", res.Scanned),
		slog.Int("matched", res.Matched),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("panics", res.Panics),
		slog.String("duration", res.Duration.String()))
	return res, nil
}

// keepAlive 在后台定期续期锁，返回的函数停止续期并等待后台协程退出。
func (s *Scheduler) keepAlive(lk *lock.Lock) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(s.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lk.Extend(ctx, s.lockTTL)
			cancel()
			switch {
			case err != nil:
				s.logger.Warn("extend reminder lock failed", slog.String("error", err.Error()))
			case !ok:
				s.logger.Warn("reminder lock lost during sweep")
				return
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// Running 报告当前进程是否有扫描在执行。
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) skip(trigger, holder string) (Result, error) {
	metrics.ReminderSweepsTotal.WithLabelValues("skipped").Inc()
	s.logger.Warn("reminder sweep skipped, previous sweep still running",
		slog.String("trigger", trigger),
		slog.String("holder", holder))
	return Result{}, ErrSweepInProgress
}

// nextFire 返回严格晚于 now 的下一个间隔边界。
func nextFire(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}
