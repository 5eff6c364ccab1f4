package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"trackmyteam/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	send   func(ctx context.Context, m *gomail.Message) error
}

// defaultSendTimeout 在 ctx 没有截止时间时限制整个 SMTP 会话。
const defaultSendTimeout = 30 * time.Second

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
	n.send = n.deliver
	return n
}

// Send 发送纯文本邮件。
//
// 整个 SMTP 会话受 ctx 约束：连接的读写截止时间取 ctx 的截止时间，
// ctx 被取消时连接立即中断。返回时连接已关闭。
func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.from() == "" {
		return fmt.Errorf("%w: email config missing", ErrDelivery)
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: empty recipient", ErrDelivery)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from())
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.send(ctx, m); err != nil {
		return fmt.Errorf("%w: send email: %v", ErrDelivery, err)
	}

	n.logger.Debug("email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

func (n *EmailNotifier) from() string {
	if n.cfg.FromEmail != "" {
		return n.cfg.FromEmail
	}
	return n.cfg.SMTPUser
}

// deliver 用 gomail 生成报文，通过自行拨号的连接投递，以便给会话设置截止时间。
// 465 端口使用隐式 TLS，其他端口在服务器支持时升级 STARTTLS。
func (n *EmailNotifier) deliver(ctx context.Context, m *gomail.Message) error {
	addr := net.JoinHostPort(n.cfg.SMTPHost, strconv.Itoa(n.cfg.SMTPPort))
	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer raw.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSendTimeout)
	}
	if err := raw.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Now())
	})
	defer stop()

	tlsConfig := &tls.Config{ServerName: n.cfg.SMTPHost}
	conn := raw
	if n.cfg.SMTPPort == 465 {
		conn = tls.Client(raw, tlsConfig)
	}

	c, err := smtp.NewClient(conn, n.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if n.cfg.SMTPPort != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if n.cfg.SMTPPass != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(n.from()); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, to := range m.GetHeader("To") {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := m.WriteTo(w); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	return c.Quit()
}
