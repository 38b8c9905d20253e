// Package mailer delivers plain-text email over SMTP or just logs it.
package mailer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is one outgoing plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures the outbound relay.
type SMTPConfig struct {
	// Server is host or host:port of the relay; port defaults to 25.
	Server   string
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender sends through an SMTP relay using go-mail.
type SMTPSender struct {
	cfg    SMTPConfig
	host   string
	port   int
	logger *zap.Logger
}

// NewSMTPSender validates cfg and returns a sender. No connection is made until Send.
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server == "" {
		return nil, fmt.Errorf("smtp server not configured")
	}
	host, port := cfg.Server, 25
	if h, p, err := net.SplitHostPort(cfg.Server); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid smtp port %q", p)
		}
		host, port = h, n
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{cfg: cfg, host: host, port: port, logger: logger}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// LogSender only logs messages; used when sending is disabled.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email not sent (sending disabled)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
