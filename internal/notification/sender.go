// Package notification composes and delivers customer-facing mail.
//
// ADR-0015 §20: nothing is sent on the request path — callers enqueue a
// dispatch job in their own transaction and the queue worker calls
// Sender. Bodies are plain text; template theming is a client concern.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/notification
package notification

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// Message is one rendered email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers rendered messages. SMTPSender is the production
// implementation; LogSender stands in when no relay is configured.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	client   *mail.Client
	from     string
	fromName string
}

// NewSMTPSender dials nothing yet; the connection is established per
// send so a flapping relay surfaces as a retryable job error instead of
// a boot failure.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	tlsPolicy := mail.TLSOpportunistic
	if cfg.StartTLS {
		tlsPolicy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(tlsPolicy),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Pass),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From, fromName: cfg.FromName}, nil
}

// Send delivers a single message.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.AddToFormat(m.ToName, m.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender records mail to the log instead of delivering it. Used in
// development when no SMTP relay is configured.
type LogSender struct{}

// Send logs the message metadata. Bodies carry single-use links and are
// deliberately not logged.
func (LogSender) Send(_ context.Context, m Message) error {
	logger.Info("mail suppressed (no smtp relay configured)",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
	)
	return nil
}

// compile-time checks
var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = LogSender{}
)
