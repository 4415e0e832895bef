package mail

import (
	"context"
	"errors"

	"github.com/storefront/backend/internal/domain/invoice"
)

// ErrMailDisabled is returned when no SMTP server is configured
var ErrMailDisabled = errors.New("invoice email delivery is not configured")

// DisabledMailer rejects every message. It stands in for SMTPMailer when smtp.enabled is false.
type DisabledMailer struct{}

// SendInvoice always returns ErrMailDisabled
func (DisabledMailer) SendInvoice(context.Context, *invoice.Email) error {
	return ErrMailDisabled
}
