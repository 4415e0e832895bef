// Package mail delivers invoice documents over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

const contentTypePDF gomail.ContentType = "application/pdf"

// SMTPConfig holds the connection settings of the outbound mail server
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSPolicy is mandatory, opportunistic or none
	TLSPolicy string
	Timeout   time.Duration
}

// SMTPMailer implements invoice.Mailer with go-mail
type SMTPMailer struct {
	config  SMTPConfig
	options []gomail.Option
	logger  *zap.Logger
}

// NewSMTPMailer validates the configuration and prepares client options.
// No connection is made until the first message is sent.
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	policy, err := parseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}

	// the port policy may rewrite the default port, so the explicit port comes after it
	options := []gomail.Option{
		gomail.WithTLSPortPolicy(policy),
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMTPMailer{
		config:  cfg,
		options: options,
		logger:  logger,
	}, nil
}

func parseTLSPolicy(s string) (gomail.TLSPolicy, error) {
	switch strings.ToLower(s) {
	case "", "mandatory":
		return gomail.TLSMandatory, nil
	case "opportunistic":
		return gomail.TLSOpportunistic, nil
	case "none":
		return gomail.NoTLS, nil
	default:
		return gomail.TLSMandatory, fmt.Errorf("unsupported smtp tls policy %q", s)
	}
}

// SendInvoice sends the invoice as a PDF attachment
func (m *SMTPMailer) SendInvoice(ctx context.Context, email *invoice.Email) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "smtp.send",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("server.address", m.config.Host),
		telemetry.WithAttribute("server.port", m.config.Port))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	msg, err := m.buildMessage(email)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(m.config.Host, m.options...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Warn("invoice email delivery failed",
			zap.String("order_id", email.OrderID.String()),
			zap.String("host", m.config.Host),
			zap.Error(err))
		return fmt.Errorf("failed to send invoice email: %w", err)
	}

	m.logger.Info("invoice email sent",
		zap.String("order_id", email.OrderID.String()),
		zap.Int("attachment_bytes", len(email.Attachment)))
	return nil
}

func (m *SMTPMailer) buildMessage(email *invoice.Email) (*gomail.Msg, error) {
	if email == nil {
		return nil, invoice.NewInvalidRequestError("email is required")
	}
	if email.To == "" {
		return nil, invoice.NewInvalidRequestError("recipient address is required")
	}
	if len(email.Attachment) == 0 {
		return nil, invoice.NewInvalidRequestError("invoice attachment is empty")
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.config.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, invoice.NewInvalidRequestError(fmt.Sprintf("invalid recipient address: %s", email.To))
	}
	msg.Subject(subject(email))
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextPlain, body(email))

	fileName := email.FileName
	if fileName == "" {
		fileName = invoice.ArtifactName(email.OrderID)
	}
	msg.AttachReadSeeker(fileName, bytes.NewReader(email.Attachment),
		gomail.WithFileContentType(contentTypePDF))
	return msg, nil
}

func subject(email *invoice.Email) string {
	return "Your invoice for order " + email.OrderID.String()
}

func body(email *invoice.Email) string {
	name := email.CustomerName
	if name == "" {
		name = "customer"
	}
	return fmt.Sprintf("Dear %s,\n\nplease find attached the invoice for your order %s.\n\nThank you for your purchase.\n",
		name, email.OrderID)
}

var _ invoice.Mailer = (*SMTPMailer)(nil)
