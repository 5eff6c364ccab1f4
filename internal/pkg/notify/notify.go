package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrDelivery 表示消息未能送达（传输失败、超时或配置缺失）。
var ErrDelivery = errors.New("notification delivery failed")

// Notifier 定义通知接口。
type Notifier interface {
	// Send 发送一条通知。
	//
	// 参数:
	//   ctx: 上下文，截止时间即本次发送的超时
	//   to: 接收地址
	//   subject: 标题
	//   body: 正文
	//
	// 返回值:
	//   error: 失败时包装 ErrDelivery
	Send(ctx context.Context, to, subject, body string) error
}

// DeadlineLayout 是提醒正文中截止时间的格式，保留到秒与时区。
const DeadlineLayout = time.RFC3339

// BuildReminder 生成截止提醒的标题与正文。
func BuildReminder(title string, deadline time.Time) (subject, body string) {
	subject = "Deadline Reminder: " + title
	body = fmt.Sprintf("Your task '%s' is due soon at %s", title, deadline.Format(DeadlineLayout))
	return subject, body
}

// LogNotifier 只记录日志，不实际发送。
//
// 未配置 SMTP 的本地环境使用它代替 EmailNotifier。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier 创建日志通知器。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send 记录一条通知。
func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	n.logger.Info("notification (log only)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}
