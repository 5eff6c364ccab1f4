// Package queue 提供固定大小的 worker 池。
//
// 提醒扫描为每次扫描创建一个池：提交全部发送任务后调用 Close，
// Close 返回时所有已提交的任务都已执行完毕。
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrClosed 表示池已关闭，不再接受任务。
var ErrClosed = errors.New("queue is closed")

// Job 表示一个可执行的异步任务。
type Job func(ctx context.Context) error

// ErrorHandler 在任务返回错误或 panic 时调用，可能被多个 worker 并发调用。
type ErrorHandler func(err error)

// Queue 是内存任务通道加固定 worker 池。
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg      sync.WaitGroup
	closed  atomic.Bool
	started atomic.Bool

	stats queueStats
}

type queueStats struct {
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

// Stats 统计信息快照。
type Stats struct {
	Submitted int64 // 已提交任务数
	Succeeded int64 // 成功任务数
	Failed    int64 // 失败任务数（含 panic）
	Panics    int64 // Panic 次数
}

// NewQueue 创建一个新的任务池。
//
// 参数:
//   - logger: 日志记录器
//   - workers: worker 数量（至少为 1）
//   - capacity: 缓冲容量（至少为 1）
func NewQueue(logger *slog.Logger, workers int, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler 设置错误处理回调函数，须在 Start 之前调用。
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start 启动 worker 池。ctx 会传给每个任务；ctx 取消后 worker 不再领取新任务。
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("worker stopped", slog.Int("worker_id", id))
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.execute(ctx, job, id)
		}
	}
}

// execute 执行单个任务，panic 被转换为失败。
func (q *Queue) execute(ctx context.Context, job Job, workerID int) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				q.stats.panics.Add(1)
				q.logger.Error("job panic recovered",
					slog.Int("worker_id", workerID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return job(ctx)
	}()

	if err != nil {
		q.stats.failed.Add(1)
		if q.errorHandler != nil {
			q.errorHandler(err)
		}
		return
	}
	q.stats.succeeded.Add(1)
}

// Submit 阻塞式提交，直到成功、池关闭或 ctx 被取消。
func (q *Queue) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if q.closed.Load() {
		return ErrClosed
	}

	select {
	case q.jobs <- job:
		q.stats.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收任务并等待 worker 处理完已提交的任务。
//
// Close 与 Submit 不能并发调用，提交方应在提交完毕后再调用 Close。
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.jobs)
		q.wg.Wait()
	}
}

// Stats 获取统计信息的快照。
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.stats.submitted.Load(),
		Succeeded: q.stats.succeeded.Load(),
		Failed:    q.stats.failed.Load(),
		Panics:    q.stats.panics.Load(),
	}
}
