// Package invoice orchestrates invoice generation, storage, delivery and
// retention on top of the invoicing domain.
package invoice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain "github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

const serviceSpanName = "invoice_service"

// Error kinds recorded on the render and email metrics
const (
	ErrKindInvalidRequest = "invalid_request"
	ErrKindSinkWrite      = "sink_write"
	ErrKindTimeout        = "timeout"
	ErrKindDelivery       = "delivery"
	ErrKindInternal       = "internal"
)

// DeliveryError reports that an invoice email could not be handed to the mail server
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver invoice to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Service generates invoice documents for orders and manages their artifacts
type Service struct {
	orders   domain.OrderRepository
	records  domain.RecordRepository
	renderer domain.Renderer
	store    domain.ArtifactStore
	mailer   domain.Mailer
	logger   *zap.Logger

	metrics       *telemetry.InvoiceMetrics
	renderTimeout time.Duration
	urlExpiry     time.Duration
	now           func() time.Time
}

// Option configures optional Service behaviour
type Option func(*Service)

// WithMetrics records renders, emails and cleanups on m
func WithMetrics(m *telemetry.InvoiceMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRenderTimeout bounds one render-and-store; zero disables the bound
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Service) { s.renderTimeout = d }
}

// WithDownloadURLExpiry sets the lifetime of signed download links
func WithDownloadURLExpiry(d time.Duration) Option {
	return func(s *Service) { s.urlExpiry = d }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new invoice Service
func NewService(
	orders domain.OrderRepository,
	records domain.RecordRepository,
	renderer domain.Renderer,
	store domain.ArtifactStore,
	mailer domain.Mailer,
	log *zap.Logger,
	opts ...Option,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		orders:    orders,
		records:   records,
		renderer:  renderer,
		store:     store,
		mailer:    mailer,
		logger:    log,
		urlExpiry: 15 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate renders the order's invoice, stores it under its artifact name and
// upserts the invoice record. Regenerating overwrites the previous artifact.
func (s *Service) Generate(ctx context.Context, orderID uuid.UUID) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanName, "generate",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()

	order, err := s.orders.FindInvoiceSnapshot(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	record, err := s.generate(ctx, order)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return s.withDownloadURL(ctx, toInvoiceResponse(record)), nil
}

func (s *Service) generate(ctx context.Context, order *domain.Order) (*domain.Record, error) {
	ctx, _ = logger.WithOrderID(ctx, s.logger, order.ID.String())
	log := logger.WithLogger(ctx, s.logger)

	req := order.InvoiceRequest()
	if err := req.Validate(); err != nil {
		s.metrics.RecordRender(ctx, 0, 0, ErrKindInvalidRequest)
		log.Warn("order cannot be invoiced", zap.Error(err))
		return nil, err
	}

	renderCtx := ctx
	if s.renderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.renderTimeout)
		defer cancel()
	}

	name := domain.ArtifactName(order.ID)
	start := s.now()
	info, err := s.store.Write(renderCtx, name, func(w io.Writer) error {
		return s.renderer.Render(renderCtx, req, w)
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		kind := renderErrorKind(err)
		s.metrics.RecordRender(ctx, elapsed, 0, kind)
		log.Error("invoice render failed",
			zap.String("artifact", name),
			zap.String("error_kind", kind),
			zap.Error(err))
		return nil, err
	}
	s.metrics.RecordRender(ctx, elapsed, info.Size, "")

	record := domain.NewRecord(order.ID, info, s.now().UTC())
	previous, err := s.records.FindByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		// keep the delivery history of the order across regenerations
		record.ID = previous.ID
		record.EmailedAt = previous.EmailedAt
		record.EmailCount = previous.EmailCount
		record.LastEmailTo = previous.LastEmailTo
		telemetry.AddEvent(trace.SpanFromContext(ctx), "invoice.regenerated",
			"previous_generated_at", previous.GeneratedAt.UTC().Format(time.RFC3339),
			"email_count", previous.EmailCount)
	case !shared.HasCode(err, domain.ErrCodeNotFound):
		return nil, fmt.Errorf("failed to load invoice record: %w", err)
	}

	if err := s.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save invoice record: %w", err)
	}

	log.Info("invoice generated",
		zap.String("artifact", name),
		zap.Int64("bytes", info.Size),
		zap.Int("items", len(req.Items)),
		zap.Duration("elapsed", elapsed))
	return record, nil
}

func renderErrorKind(err error) string {
	switch {
	case domain.IsInvalidRequest(err):
		return ErrKindInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case domain.IsSinkWriteError(err):
		return ErrKindSinkWrite
	default:
		return ErrKindInternal
	}
}

// Open returns the stored invoice of an order for download
func (s *Service) Open(ctx context.Context, orderID uuid.UUID) (io.ReadCloser, *domain.ArtifactInfo, error) {
	rc, info, err := s.store.Open(ctx, domain.ArtifactName(orderID))
	if errors.Is(err, domain.ErrArtifactNotFound) {
		return nil, nil, shared.NewDomainError(domain.ErrCodeNotFound, "invoice not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open invoice: %w", err)
	}
	return rc, info, nil
}

// Get returns the invoice record of an order. Stores that sign URLs add a
// direct download link.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*InvoiceResponse, error) {
	record, err := s.records.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.withDownloadURL(ctx, toInvoiceResponse(record)), nil
}

func (s *Service) withDownloadURL(ctx context.Context, resp *InvoiceResponse) *InvoiceResponse {
	signer, ok := s.store.(domain.ArtifactURLSigner)
	if !ok {
		return resp
	}
	url, expiresAt, err := signer.DownloadURL(ctx, resp.ArtifactName, s.urlExpiry)
	if errors.Is(err, errors.ErrUnsupported) {
		return resp
	}
	if err != nil {
		logger.WithLogger(ctx, s.logger).Warn("failed to sign invoice download url",
			zap.String("artifact", resp.ArtifactName), zap.Error(err))
		return resp
	}
	resp.DownloadURL = url
	resp.DownloadURLExpiresAt = &expiresAt
	return resp
}

// List returns one page of invoice records, newest first
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	req = req.normalized()

	records, total, err := s.records.List(ctx, (req.Page-1)*req.PageSize, req.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	items := make([]InvoiceResponse, len(records))
	for i := range records {
		items[i] = *toInvoiceResponse(&records[i])
	}
	return &ListResponse{
		Items: items,
		Total: total,
		Page:  req.Page,
		Size:  req.PageSize,
	}, nil
}

// Email sends the order's invoice as an attachment, generating it first when
// no stored artifact exists. Mail server failures are returned as *DeliveryError.
func (s *Service) Email(ctx context.Context, orderID uuid.UUID, req EmailRequest) (*EmailResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanName, "email",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()

	resp, err := s.email(ctx, orderID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return resp, nil
}

func (s *Service) email(ctx context.Context, orderID uuid.UUID, req EmailRequest) (*EmailResponse, error) {
	order, err := s.orders.FindInvoiceSnapshot(ctx, orderID)
	if err != nil {
		return nil, err
	}

	to := strings.TrimSpace(req.To)
	if to == "" {
		to = order.CustomerEmail
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "a valid recipient email address is required")
	}

	record, attachment, err := s.loadOrGenerate(ctx, order)
	if err != nil {
		return nil, err
	}

	ctx, _ = logger.WithOrderID(ctx, s.logger, orderID.String())
	log := logger.WithLogger(ctx, s.logger)
	telemetry.SetAttribute(trace.SpanFromContext(ctx), telemetry.SpanAttrRecipient, recipientDomain(to))

	start := s.now()
	err = s.mailer.SendInvoice(ctx, &domain.Email{
		To:           to,
		CustomerName: order.CustomerName,
		OrderID:      order.ID,
		FileName:     record.ArtifactName,
		Attachment:   attachment,
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.RecordEmail(ctx, elapsed, ErrKindDelivery)
		log.Warn("invoice email failed", zap.String("recipient_domain", recipientDomain(to)), zap.Error(err))
		return nil, &DeliveryError{Recipient: to, Err: err}
	}
	s.metrics.RecordEmail(ctx, elapsed, "")

	sentAt := s.now().UTC()
	record.MarkEmailed(to, sentAt)
	if err := s.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save invoice record: %w", err)
	}

	log.Info("invoice emailed",
		zap.String("recipient_domain", recipientDomain(to)),
		zap.Int("email_count", record.EmailCount))
	return &EmailResponse{
		OrderID:    order.ID.String(),
		To:         to,
		SentAt:     sentAt,
		EmailCount: record.EmailCount,
	}, nil
}

// loadOrGenerate returns the order's record and artifact bytes, rendering the
// invoice when either is missing
func (s *Service) loadOrGenerate(ctx context.Context, order *domain.Order) (*domain.Record, []byte, error) {
	record, err := s.records.FindByOrderID(ctx, order.ID)
	if err != nil && !shared.HasCode(err, domain.ErrCodeNotFound) {
		return nil, nil, err
	}
	if record != nil {
		data, err := s.readArtifact(ctx, record.ArtifactName)
		if err == nil {
			return record, data, nil
		}
		if !errors.Is(err, domain.ErrArtifactNotFound) {
			return nil, nil, err
		}
	}

	if record, err = s.generate(ctx, order); err != nil {
		return nil, nil, err
	}
	data, err := s.readArtifact(ctx, record.ArtifactName)
	if err != nil {
		return nil, nil, err
	}
	return record, data, nil
}

func (s *Service) readArtifact(ctx context.Context, name string) ([]byte, error) {
	rc, _, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("failed to read invoice artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// CleanupArtifacts removes stored invoices older than retention
func (s *Service) CleanupArtifacts(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanName, "cleanup")
	defer span.End()

	removed, err := s.store.CleanupOlderThan(ctx, retention)
	s.metrics.RecordCleanup(ctx, removed)
	if err != nil {
		telemetry.RecordError(span, err)
		return removed, fmt.Errorf("failed to clean up invoice artifacts: %w", err)
	}
	if removed > 0 {
		s.logger.Info("expired invoice artifacts removed",
			zap.Int("removed", removed),
			zap.Duration("retention", retention))
	}
	return removed, nil
}

// recipientDomain keeps addresses out of logs and spans
func recipientDomain(addr string) string {
	if _, d, ok := strings.Cut(addr, "@"); ok {
		return d
	}
	return ""
}
