// Package reminder 实现截止时间提醒扫描。
//
// 每次扫描在固定时刻 now 读取全部任务，截止时间落在 (now, now+lookahead)
// 内的任务各发送一封提醒。扫描不修改任何任务，也不记录"已提醒"，
// 因此任务在窗口内停留多久，就会在每次扫描时各收到一次提醒。
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"trackmyteam/internal/model"
	"trackmyteam/internal/pkg/metrics"
	"trackmyteam/internal/pkg/notify"
	"trackmyteam/internal/pkg/queue"
)

// CandidateSource 提供扫描所需的任务数据。
type CandidateSource interface {
	ListReminderCandidates(ctx context.Context) ([]model.ReminderCandidate, error)
}

// SlotGuard 在同一扫描时段内对同一任务只放行一次。
//
// 多个进程各自执行同一时段的扫描时，用它避免重复发送。
type SlotGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Options 控制扫描行为。
type Options struct {
	Lookahead   time.Duration // 提醒窗口长度
	SendTimeout time.Duration // 单次发送超时
	Workers     int           // 并发发送数
	Slot        time.Duration // 时段长度，通常等于调度间隔
}

// Result 汇总一次扫描。
type Result struct {
	Now        time.Time     `json:"now"`
	Scanned    int           `json:"scanned"`    // 读取的任务数
	Matched    int           `json:"matched"`    // 落在窗口内的任务数
	Sent       int           `json:"sent"`       // 发送成功数
	Failed     int           `json:"failed"`     // 发送失败数
	Duplicates int           `json:"duplicates"` // 本时段已由其他进程发送
	Panics     int           `json:"panics"`     // 发送过程中 panic 的次数，已计入 Failed
	Duration   time.Duration `json:"duration"`
}

// Sweeper 执行单次扫描，本身不做互斥，由 Scheduler 保证同一时刻只有一次扫描。
type Sweeper struct {
	source   CandidateSource
	notifier notify.Notifier
	guard    SlotGuard
	logger   *slog.Logger
	opts     Options
}

// NewSweeper 创建扫描器。guard 可为 nil。
func NewSweeper(source CandidateSource, notifier notify.Notifier, guard SlotGuard, logger *slog.Logger, opts Options) *Sweeper {
	if opts.Lookahead <= 0 {
		opts.Lookahead = 24 * time.Hour
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Slot <= 0 {
		opts.Slot = time.Hour
	}
	return &Sweeper{
		source:   source,
		notifier: notifier,
		guard:    guard,
		logger:   logger,
		opts:     opts,
	}
}

// InWindow 报告截止时间是否严格落在 (now, now+lookahead) 内。
func InWindow(deadline *time.Time, now time.Time, lookahead time.Duration) bool {
	if deadline == nil {
		return false
	}
	return deadline.After(now) && deadline.Before(now.Add(lookahead))
}

// Sweep 以 now 为基准执行一次完整扫描。
//
// 读取任务失败时返回错误且不发送任何提醒。单个任务发送失败只计数并记录日志，
// 不影响其他任务，也不重试。返回时每个匹配任务都已完成一次发送尝试，
// ctx 被取消时除外。本时段已被认领的任务计入 Duplicates，不再发送。
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	return s.sweep(ctx, now, true)
}

// SweepUnguarded 与 Sweep 相同，但不检查时段认领，每个匹配任务都会发送。
// 用于管理员手动触发。
func (s *Sweeper) SweepUnguarded(ctx context.Context, now time.Time) (Result, error) {
	return s.sweep(ctx, now, false)
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time, guarded bool) (Result, error) {
	start := time.Now()
	res := Result{Now: now}

	candidates, err := s.source.ListReminderCandidates(ctx)
	if err != nil {
		return res, fmt.Errorf("load tasks: %w", err)
	}
	res.Scanned = len(candidates)

	matches := make([]model.ReminderCandidate, 0)
	for _, c := range candidates {
		if InWindow(c.Deadline, now, s.opts.Lookahead) {
			matches = append(matches, c)
		}
	}
	res.Matched = len(matches)
	if len(matches) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	var sent, dup atomic.Int64
	guard := s.guard
	if !guarded {
		guard = nil
	}
	slot := now.Truncate(s.opts.Slot)

	q := queue.NewQueue(s.logger, s.opts.Workers, len(matches))
	q.SetErrorHandler(func(err error) {
		metrics.ReminderNotificationsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("reminder delivery failed", slog.String("error", err.Error()))
	})
	q.Start(ctx)

	var submitErr error
	for _, c := range matches {
		err := q.Submit(ctx, func(ctx context.Context) error {
			return s.deliver(ctx, guard, c, slot, &sent, &dup)
		})
		if err != nil {
			submitErr = err
			break
		}
	}
	q.Close()

	stats := q.Stats()
	res.Sent = int(sent.Load())
	res.Failed = int(stats.Failed)
	res.Panics = int(stats.Panics)
	res.Duplicates = int(dup.Load())
	res.Duration = time.Since(start)

	if submitErr != nil {
		return res, fmt.Errorf("dispatch reminders: %w", submitErr)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Sweeper) deliver(ctx context.Context, guard SlotGuard, c model.ReminderCandidate, slot time.Time, sent, dup *atomic.Int64) error {
	if guard != nil {
		key := fmt.Sprintf("task:%d:slot:%d", c.TaskID, slot.Unix())
		claimed, err := guard.Claim(ctx, key)
		switch {
		case err != nil:
			// 去重不可用时照常发送
			s.logger.Warn("reminder slot guard unavailable",
				slog.Uint64("task_id", uint64(c.TaskID)),
				slog.String("error", err.Error()))
		case !claimed:
			dup.Add(1)
			metrics.ReminderNotificationsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	subject, body := notify.BuildReminder(c.Title, *c.Deadline)
	if err := s.notifier.Send(sendCtx, c.OwnerEmail, subject, body); err != nil {
		return fmt.Errorf("task %d to %s: %w", c.TaskID, c.OwnerEmail, err)
	}

	sent.Add(1)
	metrics.ReminderNotificationsTotal.WithLabelValues("sent").Inc()
	s.logger.Debug("reminder sent", slog.Uint64("task_id", uint64(c.TaskID)), slog.String("to", c.OwnerEmail))
	return nil
}
