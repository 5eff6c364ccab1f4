package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"trackmyteam/internal/api"
	"trackmyteam/internal/config"
	"trackmyteam/internal/pkg/logger"
	"trackmyteam/internal/pkg/metrics"
	"trackmyteam/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是独立提醒进程的入口函数。
//
// API 进程关闭内置调度器（REMINDER_ENABLED=false）时，由该进程负责定时扫描。
// 多个实例同时运行时依靠 Redis 锁保证同一时刻只有一次扫描。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.Env, cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenMySQL(cfg.MySQL.DSN)
	if err != nil {
		appLogger.Error("open mysql failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close(db)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Error("ping redis failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
	}

	metrics.InitMetrics(cfg.Reminder.Workers)
	sched := api.NewReminderScheduler(cfg, store.NewTaskStore(db), rdb, appLogger)

	metricsAddr := ":2112"
	if v := os.Getenv("REMINDER_METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("reminder metrics server started", slog.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				// 交给容器重启，保持状态干净
				appLogger.Error("PANIC in reminder loop", slog.Any("panic", r))
				os.Exit(1)
			}
		}()
		sched.Run(ctx)
	}()

	<-ctx.Done()
	appLogger.Info("shutting down reminder service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}

	select {
	case <-done:
		appLogger.Info("reminder service stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("reminder loop did not stop before shutdown timeout")
	}
}
