// Package mail renders and delivers signing notification emails.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is one rendered notification ready for delivery.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

// Mailer delivers rendered messages. The outbox dispatcher is the only
// caller; delivery failures surface as errors so the event can be retried.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig parameterizes the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer delivers over SMTP via go-mail.
type SMTPMailer struct {
	client   *gomail.Client
	from     string
	fromName string
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp mailer requires a host")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp mailer requires a from address")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.From, fromName: cfg.FromName}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	mm := gomail.NewMsg()
	if err := mm.FromFormat(m.fromName, m.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := mm.AddToFormat(msg.ToName, msg.To); err != nil {
		return fmt.Errorf("set recipient %s: %w", msg.To, err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)

	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer stands in when no SMTP host is configured: messages are logged
// and counted as delivered, which keeps local development flowing.
type LogMailer struct {
	Logger *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info("mail suppressed, no smtp configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
