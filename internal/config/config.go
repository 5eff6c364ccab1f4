package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
	Reminder ReminderConfig `json:"reminder"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env             string        `json:"env"`              // 运行环境: local / prod
	LogLevel        string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr        string        `json:"http_addr"`        // API 服务监听地址
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // 优雅退出等待时间（如 "10s"）
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
//
// Addr 为空表示不使用 Redis：提醒扫描退化为单进程互斥，登录限流关闭。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// Enabled 报告 SMTP 配置是否完整。
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.SMTPUser != "" && e.SMTPPass != ""
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret      string        `json:"jwt_secret"`       // JWT 签名密钥
	TokenTTL       time.Duration `json:"token_ttl"`        // 令牌有效期（如 "24h"）
	AdminUsername  string        `json:"admin_username"`   // 启动时确保存在的管理员（为空则跳过）
	AdminEmail     string        `json:"admin_email"`      // 管理员邮箱
	AdminPassword  string        `json:"admin_password"`   // 管理员初始密码
	LoginRateLimit float64       `json:"login_rate_limit"` // 登录限流速率（token/s，0 表示关闭）
	LoginRateBurst float64       `json:"login_rate_burst"` // 登录限流桶容量
}

// ReminderConfig 截止提醒扫描配置。
type ReminderConfig struct {
	Enabled     bool          `json:"enabled"`      // 是否在当前进程内运行调度器
	Interval    time.Duration `json:"interval"`     // 扫描间隔，触发时间对齐到间隔整数倍
	Lookahead   time.Duration `json:"lookahead"`    // 提醒窗口长度
	SendTimeout time.Duration `json:"send_timeout"` // 单封邮件发送超时
	Workers     int           `json:"workers"`      // 并发发送数
	LockTTL     time.Duration `json:"lock_ttl"`     // 跨进程扫描锁的过期时间，扫描期间按 1/3 周期续期
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
// 随后读取 .env（如果存在），最后由环境变量覆盖。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// .env 只补充尚未设置的环境变量
	_ = godotenv.Load()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 从默认值开始解析，布尔字段缺省时保持默认
	cfg := getDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:             "local",
			LogLevel:        "info",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/trackmyteam?parseTime=true&loc=UTC",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			JWTSecret:      "dev_secret_change_me",
			TokenTTL:       24 * time.Hour,
			AdminEmail:     "admin@trackmyteam.local",
			LoginRateLimit: 1,
			LoginRateBurst: 5,
		},
		Reminder: ReminderConfig{
			Enabled:     true,
			Interval:    time.Hour,
			Lookahead:   24 * time.Hour,
			SendTimeout: 30 * time.Second,
			Workers:     4,
			LockTTL:     30 * time.Minute,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.ShutdownTimeout <= 0 {
		cfg.App.ShutdownTimeout = defaults.App.ShutdownTimeout
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
	if cfg.Security.LoginRateBurst <= 0 {
		cfg.Security.LoginRateBurst = defaults.Security.LoginRateBurst
	}
	if cfg.Reminder.Interval <= 0 {
		cfg.Reminder.Interval = defaults.Reminder.Interval
	}
	if cfg.Reminder.Lookahead <= 0 {
		cfg.Reminder.Lookahead = defaults.Reminder.Lookahead
	}
	if cfg.Reminder.SendTimeout <= 0 {
		cfg.Reminder.SendTimeout = defaults.Reminder.SendTimeout
	}
	if cfg.Reminder.Workers <= 0 {
		cfg.Reminder.Workers = defaults.Reminder.Workers
	}
	if cfg.Reminder.LockTTL <= 0 {
		cfg.Reminder.LockTTL = defaults.Reminder.LockTTL
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("admin_password", "ADMIN_PASSWORD")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ShutdownTimeout = d
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.TokenTTL = d
		}
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		cfg.Security.AdminUsername = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.Security.AdminEmail = v
	}
	if v := viper.GetString("admin_password"); v != "" {
		cfg.Security.AdminPassword = v
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Security.LoginRateLimit = f
		}
	}
	if v := os.Getenv("LOGIN_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Security.LoginRateBurst = f
		}
	}

	if v := os.Getenv("REMINDER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reminder.Enabled = b
		}
	}
	if v := os.Getenv("REMINDER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reminder.Interval = d
		}
	}
	if v := os.Getenv("REMINDER_LOOKAHEAD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reminder.Lookahead = d
		}
	}
	if v := os.Getenv("REMINDER_SEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reminder.SendTimeout = d
		}
	}
	if v := os.Getenv("REMINDER_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Reminder.Workers = i
		}
	}
	if v := os.Getenv("REMINDER_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reminder.LockTTL = d
		}
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	// REDIS_ADDR=none 显式关闭 Redis
	if v := viper.GetString("redis_addr"); v != "" {
		if v == "none" {
			cfg.Redis.Addr = ""
		} else {
			cfg.Redis.Addr = v
		}
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	if dsn != "" {
		if parsed, err := mysql.ParseDSN(dsn); err == nil {
			return parsed
		}
	}
	cfg := mysql.NewConfig()
	cfg.User = "root"
	cfg.Net = "tcp"
	cfg.Addr = "localhost:3306"
	cfg.DBName = "trackmyteam"
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return parseDurationField("shutdown_timeout", aux.ShutdownTimeout, &a.ShutdownTimeout)
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		ShutdownTimeout: a.ShutdownTimeout.String(),
		Alias:           (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return parseDurationField("token_ttl", aux.TokenTTL, &s.TokenTTL)
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (r *ReminderConfig) UnmarshalJSON(data []byte) error {
	type Alias ReminderConfig
	aux := &struct {
		Interval    string `json:"interval"`
		Lookahead   string `json:"lookahead"`
		SendTimeout string `json:"send_timeout"`
		LockTTL     string `json:"lock_ttl"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := parseDurationField("interval", aux.Interval, &r.Interval); err != nil {
		return err
	}
	if err := parseDurationField("lookahead", aux.Lookahead, &r.Lookahead); err != nil {
		return err
	}
	if err := parseDurationField("send_timeout", aux.SendTimeout, &r.SendTimeout); err != nil {
		return err
	}
	return parseDurationField("lock_ttl", aux.LockTTL, &r.LockTTL)
}

func parseDurationField(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format: %w", name, err)
	}
	*dst = d
	return nil
}
