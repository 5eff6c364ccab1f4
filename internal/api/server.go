package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trackmyteam/internal/api/auth"
	"trackmyteam/internal/api/middleware"
	"trackmyteam/internal/config"
	"trackmyteam/internal/model"
	"trackmyteam/internal/pkg/dedup"
	"trackmyteam/internal/pkg/lock"
	"trackmyteam/internal/pkg/metrics"
	"trackmyteam/internal/pkg/notify"
	"trackmyteam/internal/pkg/ratelimit"
	"trackmyteam/internal/reminder"
	"trackmyteam/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端、提醒调度器以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	tokens    *auth.TokenManager
	users     *store.UserStore
	limiter   *ratelimit.Limiter
	taskStore TaskStore
	reminders ReminderTrigger
	sched     *reminder.Scheduler
}

// TaskStore 是任务接口依赖的存储。
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, id uint) (*model.Task, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Task, error)
	Save(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id uint) error
}

// ReminderTrigger 手动触发一次提醒扫描。
type ReminderTrigger interface {
	RunOnce(ctx context.Context, trigger string) (reminder.Result, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（配置了地址时）
// 3. 组装认证服务、提醒扫描器与调度器
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.OpenMySQL(cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = store.Close(db)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	} else {
		logger.Warn("redis disabled, reminder sweeps are only serialized within this process")
	}

	metrics.InitMetrics(cfg.Reminder.Workers)
	registerValidators()

	users := store.NewUserStore(db)
	tasks := store.NewTaskStore(db)
	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)

	sched := NewReminderScheduler(cfg, tasks, rdb, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		auth:      auth.NewHandler(auth.NewService(users, tokens, logger), logger),
		tokens:    tokens,
		users:     users,
		limiter:   ratelimit.NewLimiter(rdb, "trackmyteam:ratelimit:", cfg.Security.LoginRateLimit, cfg.Security.LoginRateBurst),
		taskStore: tasks,
		reminders: sched,
		sched:     sched,
	}
	s.registerRoutes()
	return s, nil
}

// NewReminderScheduler 按配置组装提醒扫描器与调度器。
//
// SMTP 未配置时使用只写日志的通知器；rdb 为 nil 时不启用跨进程锁与时段去重。
func NewReminderScheduler(cfg *config.Config, source reminder.CandidateSource, rdb *redis.Client, logger *slog.Logger) *reminder.Scheduler {
	var notifier notify.Notifier
	if cfg.Email.Enabled() {
		notifier = notify.NewEmailNotifier(&cfg.Email, logger)
	} else {
		logger.Warn("smtp not configured, reminders will only be logged")
		notifier = notify.NewLogNotifier(logger)
	}

	var (
		guard  reminder.SlotGuard
		locker *lock.Locker
	)
	if rdb != nil {
		// 键保留两个时段，足以覆盖同一时段内的并发扫描
		guard = dedup.NewDeduplicator(rdb, "trackmyteam:reminder:sent:", 2*cfg.Reminder.Interval)
		locker = lock.NewLocker(rdb)
	}

	sweeper := reminder.NewSweeper(source, notifier, guard, logger, reminder.Options{
		Lookahead:   cfg.Reminder.Lookahead,
		SendTimeout: cfg.Reminder.SendTimeout,
		Workers:     cfg.Reminder.Workers,
		Slot:        cfg.Reminder.Interval,
	})
	return reminder.NewScheduler(sweeper, locker, cfg.Reminder.Interval, cfg.Reminder.LockTTL, logger)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartScheduler 在后台启动提醒调度循环（配置关闭时不启动）。
func (s *Server) StartScheduler(ctx context.Context) {
	if s.sched == nil || !s.cfg.Reminder.Enabled {
		s.logger.Info("in-process reminder scheduler disabled")
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in reminder scheduler", slog.Any("panic", r))
			}
		}()
		s.sched.Run(ctx)
	}()
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var errs []error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := store.Close(s.db); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/api")
	api.POST("/auth/register", s.auth.Register)
	api.POST("/auth/login", middleware.LoginThrottle(s.loginLimiter(), s.logger), s.auth.Login)

	authed := api.Group("/")
	authed.Use(middleware.AuthMiddleware(s.tokens))
	authed.POST("/tasks", s.withIdentity(s.handleCreateTask))
	authed.GET("/tasks/mine", s.withIdentity(s.handleListMyTasks))
	authed.GET("/tasks/:id", s.withIdentity(s.handleGetTask))
	authed.PUT("/tasks/:id", s.withIdentity(s.handleUpdateTask))
	authed.DELETE("/tasks/:id", s.withIdentity(s.handleDeleteTask))

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.POST("/reminders/run", s.handleRunReminders)
}

func (s *Server) loginLimiter() middleware.Limiter {
	if !s.limiter.Enabled() {
		return nil
	}
	return s.limiter
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "mysql"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "redis"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRunReminders 立即执行一次扫描。手动扫描不受本时段已发送记录限制，
// 窗口内的任务都会再收到一次提醒；已有扫描在执行时返回 409。
func (s *Server) handleRunReminders(c *gin.Context) {
	// 请求断开不应中断已开始的扫描
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := s.reminders.RunOnce(ctx, reminder.TriggerManual)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
