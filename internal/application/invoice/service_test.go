package invoice_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	app "github.com/storefront/backend/internal/application/invoice"
	domain "github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindInvoiceSnapshot(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Save(ctx context.Context, record *domain.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Record, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

func (m *MockRecordRepository) List(ctx context.Context, offset, limit int) ([]domain.Record, int64, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Record), args.Get(1).(int64), args.Error(2)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, req *domain.Request, sink io.Writer) error {
	args := m.Called(ctx, req, sink)
	if data, ok := args.Get(0).([]byte); ok {
		if _, err := sink.Write(data); err != nil {
			return &domain.SinkWriteError{Op: "write", Err: err}
		}
	}
	return args.Error(1)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendInvoice(ctx context.Context, email *domain.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// memoryStore publishes an artifact only when the write callback succeeds
type memoryStore struct {
	mu         sync.Mutex
	files      map[string][]byte
	cleanupAge time.Duration
	removed    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: map[string][]byte{}}
}

func (s *memoryStore) Write(ctx context.Context, name string, fn func(w io.Writer) error) (*domain.ArtifactInfo, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = buf.Bytes()
	return &domain.ArtifactInfo{Name: name, Size: int64(buf.Len()), ModifiedAt: time.Now()}, nil
}

func (s *memoryStore) Open(ctx context.Context, name string) (io.ReadCloser, *domain.ArtifactInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, nil, domain.ErrArtifactNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), &domain.ArtifactInfo{Name: name, Size: int64(len(data))}, nil
}

func (s *memoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name)
	return nil
}

func (s *memoryStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	s.cleanupAge = age
	return s.removed, nil
}

func (s *memoryStore) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

type signingStore struct {
	*memoryStore
	err error
}

func (s *signingStore) DownloadURL(ctx context.Context, name string, expiresIn time.Duration) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "https://invoices.example.com/" + name, fixedNow.Add(expiresIn), nil
}

// =============================================================================
// Fixtures
// =============================================================================

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	orders   *MockOrderRepository
	records  *MockRecordRepository
	renderer *MockRenderer
	mailer   *MockMailer
	store    *memoryStore
}

func newFixture() *fixture {
	return &fixture{
		orders:   new(MockOrderRepository),
		records:  new(MockRecordRepository),
		renderer: new(MockRenderer),
		mailer:   new(MockMailer),
		store:    newMemoryStore(),
	}
}

func (f *fixture) service(opts ...app.Option) *app.Service {
	return f.serviceWithStore(f.store, opts...)
}

func (f *fixture) serviceWithStore(store domain.ArtifactStore, opts ...app.Option) *app.Service {
	opts = append([]app.Option{app.WithClock(func() time.Time { return fixedNow })}, opts...)
	return app.NewService(f.orders, f.records, f.renderer, store, f.mailer, zap.NewNop(), opts...)
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.orders.AssertExpectations(t)
	f.records.AssertExpectations(t)
	f.renderer.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:            uuid.New(),
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Address:       "12 Analytical Row, London",
		Brand:         "Babbage",
		SerialNumber:  "DE-1",
		Items: []domain.LineItem{{
			Name:         "Difference Engine",
			Distributor:  "Babbage & Co",
			Model:        "DE-1",
			SerialNumber: "SN-001",
			Qty:          2,
			Price:        decimal.RequireFromString("10.50"),
			Total:        decimal.RequireFromString("21.00"),
		}},
		Total: decimal.RequireFromString("21.00"),
	}
}

var pdfBytes = []byte("%PDF-1.4 invoice")

func notFound() error {
	return shared.NewDomainError(domain.ErrCodeNotFound, "invoice not found")
}

// =============================================================================
// Generate
// =============================================================================

func TestGenerate_Success(t *testing.T) {
	f := newFixture()
	order := sampleOrder()
	name := domain.ArtifactName(order.ID)

	f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
	f.renderer.On("Render", mock.Anything, mock.MatchedBy(func(req *domain.Request) bool {
		return req.CustomerName == order.CustomerName && len(req.Items) == 1 && req.Total.Equal(order.Total)
	}), mock.Anything).Return(pdfBytes, nil)
	f.records.On("FindByOrderID", mock.Anything, order.ID).Return(nil, notFound())
	f.records.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.Record) bool {
		return r.OrderID == order.ID && r.ArtifactName == name && r.Size == int64(len(pdfBytes)) && r.EmailCount == 0
	})).Return(nil)

	resp, err := f.service().Generate(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, order.ID.String(), resp.OrderID)
	assert.Equal(t, name, resp.ArtifactName)
	assert.Equal(t, int64(len(pdfBytes)), resp.Size)
	assert.Equal(t, fixedNow, resp.GeneratedAt)
	assert.Empty(t, resp.DownloadURL)
	assert.True(t, f.store.has(name))
	f.assertExpectations(t)
}

func TestGenerate_KeepsDeliveryHistory(t *testing.T) {
	f := newFixture()
	order := sampleOrder()
	emailedAt := fixedNow.Add(-time.Hour)
	previous := &domain.Record{
		ID:          uuid.New(),
		OrderID:     order.ID,
		EmailedAt:   &emailedAt,
		EmailCount:  2,
		LastEmailTo: "ada@example.com",
	}

	f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return(pdfBytes, nil)
	f.records.On("FindByOrderID", mock.Anything, order.ID).Return(previous, nil)
	f.records.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.Record) bool {
		return r.ID == previous.ID && r.EmailCount == 2 && r.EmailedAt.Equal(emailedAt)
	})).Return(nil)

	resp, err := f.service().Generate(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, previous.ID.String(), resp.ID)
	assert.Equal(t, 2, resp.EmailCount)
	f.assertExpectations(t)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture, order *domain.Order)
		check   func(t *testing.T, err error)
		options []app.Option
	}{
		{
			name: "unknown order",
			setup: func(f *fixture, order *domain.Order) {
				f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).
					Return(nil, shared.NewDomainError(domain.ErrCodeNotFound, "order not found"))
			},
			check: func(t *testing.T, err error) {
				assert.True(t, shared.HasCode(err, domain.ErrCodeNotFound))
			},
		},
		{
			name: "invalid snapshot",
			setup: func(f *fixture, order *domain.Order) {
				order.CustomerName = " "
				f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsInvalidRequest(err))
			},
		},
		{
			name: "sink write failure",
			setup: func(f *fixture, order *domain.Order) {
				f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
				f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, &domain.SinkWriteError{Op: "write", Err: errors.New("disk full")})
			},
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsSinkWriteError(err))
			},
		},
		{
			name: "render timeout",
			setup: func(f *fixture, order *domain.Order) {
				f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
				f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).
					Run(func(args mock.Arguments) {
						<-args.Get(0).(context.Context).Done()
					}).
					Return(nil, context.DeadlineExceeded)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
			options: []app.Option{app.WithRenderTimeout(10 * time.Millisecond)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			order := sampleOrder()
			tt.setup(f, order)

			resp, err := f.service(tt.options...).Generate(context.Background(), order.ID)
			require.Error(t, err)
			assert.Nil(t, resp)
			tt.check(t, err)

			assert.False(t, f.store.has(domain.ArtifactName(order.ID)))
			f.records.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			f.assertExpectations(t)
		})
	}
}

func TestGenerate_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewInvoiceMetrics(telemetry.InvoiceMetricsConfig{Meter: provider.Meter("test")})
	require.NoError(t, err)

	f := newFixture()
	order := sampleOrder()
	f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return(pdfBytes, nil)
	f.records.On("FindByOrderID", mock.Anything, order.ID).Return(nil, notFound())
	f.records.On("Save", mock.Anything, mock.Anything).Return(nil)

	_, err = f.service(app.WithMetrics(metrics)).Generate(context.Background(), order.ID)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var renders int64
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name == "storefront_invoice_render_total" {
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				renders += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), renders)
}

// =============================================================================
// Get / Open / List
// =============================================================================

func TestGet(t *testing.T) {
	orderID := uuid.New()
	record := &domain.Record{ID: uuid.New(), OrderID: orderID, ArtifactName: domain.ArtifactName(orderID), Size: 42}

	t.Run("plain store has no download url", func(t *testing.T) {
		f := newFixture()
		f.records.On("FindByOrderID", mock.Anything, orderID).Return(record, nil)

		resp, err := f.service().Get(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), resp.Size)
		assert.Empty(t, resp.DownloadURL)
		assert.Nil(t, resp.DownloadURLExpiresAt)
	})

	t.Run("signing store adds download url", func(t *testing.T) {
		f := newFixture()
		f.records.On("FindByOrderID", mock.Anything, orderID).Return(record, nil)
		store := &signingStore{memoryStore: f.store}

		resp, err := f.serviceWithStore(store, app.WithDownloadURLExpiry(time.Hour)).Get(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, "https://invoices.example.com/"+record.ArtifactName, resp.DownloadURL)
		require.NotNil(t, resp.DownloadURLExpiresAt)
		assert.Equal(t, fixedNow.Add(time.Hour), *resp.DownloadURLExpiresAt)
	})

	t.Run("signing failure is not fatal", func(t *testing.T) {
		f := newFixture()
		f.records.On("FindByOrderID", mock.Anything, orderID).Return(record, nil)
		store := &signingStore{memoryStore: f.store, err: errors.New("no credentials")}

		resp, err := f.serviceWithStore(store).Get(context.Background(), orderID)
		require.NoError(t, err)
		assert.Empty(t, resp.DownloadURL)
	})

	t.Run("cache over a plain store skips signing quietly", func(t *testing.T) {
		f := newFixture()
		f.records.On("FindByOrderID", mock.Anything, orderID).Return(record, nil)
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		t.Cleanup(func() { _ = client.Close() })
		store := cache.NewCachedArtifactStore(f.store, client, cache.ArtifactCacheConfig{})

		core, logs := observer.New(zapcore.WarnLevel)
		svc := app.NewService(f.orders, f.records, f.renderer, store, f.mailer, zap.New(core))

		resp, err := svc.Get(context.Background(), orderID)
		require.NoError(t, err)
		assert.Empty(t, resp.DownloadURL)
		assert.Zero(t, logs.Len())
	})

	t.Run("missing record", func(t *testing.T) {
		f := newFixture()
		f.records.On("FindByOrderID", mock.Anything, orderID).Return(nil, notFound())

		_, err := f.service().Get(context.Background(), orderID)
		assert.True(t, shared.HasCode(err, domain.ErrCodeNotFound))
	})
}

func TestOpen(t *testing.T) {
	f := newFixture()
	svc := f.service()
	orderID := uuid.New()

	_, _, err := svc.Open(context.Background(), orderID)
	assert.True(t, shared.HasCode(err, domain.ErrCodeNotFound))

	_, err = f.store.Write(context.Background(), domain.ArtifactName(orderID), func(w io.Writer) error {
		_, err := w.Write(pdfBytes)
		return err
	})
	require.NoError(t, err)

	rc, info, err := svc.Open(context.Background(), orderID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, data)
	assert.Equal(t, int64(len(pdfBytes)), info.Size)
}

func TestList_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		req        app.ListRequest
		wantOffset int
		wantLimit  int
		wantPage   int
	}{
		{"defaults", app.ListRequest{}, 0, app.DefaultPageSize, 1},
		{"third page", app.ListRequest{Page: 3, PageSize: 10}, 20, 10, 3},
		{"page size capped", app.ListRequest{Page: 1, PageSize: 500}, 0, app.MaxPageSize, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			records := []domain.Record{{ID: uuid.New(), OrderID: uuid.New(), ArtifactName: "a.pdf"}}
			f.records.On("List", mock.Anything, tt.wantOffset, tt.wantLimit).Return(records, int64(31), nil)

			resp, err := f.service().List(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Len(t, resp.Items, 1)
			assert.Equal(t, int64(31), resp.Total)
			assert.Equal(t, tt.wantPage, resp.Page)
			assert.Equal(t, tt.wantLimit, resp.Size)
			f.assertExpectations(t)
		})
	}
}

// =============================================================================
// Email
// =============================================================================

func TestEmail_UsesStoredArtifact(t *testing.T) {
	f := newFixture()
	order := sampleOrder()
	name := domain.ArtifactName(order.ID)
	record := &domain.Record{ID: uuid.New(), OrderID: order.ID, ArtifactName: name, Size: int64(len(pdfBytes))}
	_, err := f.store.Write(context.Background(), name, func(w io.Writer) error {
		_, err := w.Write(pdfBytes)
		return err
	})
	require.NoError(t, err)

	f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
	f.records.On("FindByOrderID", mock.Anything, order.ID).Return(record, nil)
	f.mailer.On("SendInvoice", mock.Anything, mock.MatchedBy(func(e *domain.Email) bool {
		return e.To == "ada@example.com" && e.FileName == name && bytes.Equal(e.Attachment, pdfBytes) &&
			e.CustomerName == order.CustomerName
	})).Return(nil)
	f.records.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.Record) bool {
		return r.EmailCount == 1 && r.LastEmailTo == "ada@example.com" && r.EmailedAt != nil
	})).Return(nil)

	resp, err := f.service().Email(context.Background(), order.ID, app.EmailRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", resp.To)
	assert.Equal(t, 1, resp.EmailCount)
	assert.Equal(t, fixedNow, resp.SentAt)
	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestEmail_GeneratesMissingInvoice(t *testing.T) {
	f := newFixture()
	order := sampleOrder()

	f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
	f.records.On("FindByOrderID", mock.Anything, order.ID).Return(nil, notFound())
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return(pdfBytes, nil).Once()
	f.records.On("Save", mock.Anything, mock.Anything).Return(nil).Twice()
	f.mailer.On("SendInvoice", mock.Anything, mock.MatchedBy(func(e *domain.Email) bool {
		return e.To == "billing@example.org" && bytes.Equal(e.Attachment, pdfBytes)
	})).Return(nil)

	resp, err := f.service().Email(context.Background(), order.ID, app.EmailRequest{To: " billing@example.org "})
	require.NoError(t, err)
	assert.Equal(t, "billing@example.org", resp.To)
	assert.True(t, f.store.has(domain.ArtifactName(order.ID)))
	f.assertExpectations(t)
}

func TestEmail_Failures(t *testing.T) {
	t.Run("mailer failure is a delivery error", func(t *testing.T) {
		f := newFixture()
		order := sampleOrder()
		name := domain.ArtifactName(order.ID)
		_, err := f.store.Write(context.Background(), name, func(w io.Writer) error {
			_, err := w.Write(pdfBytes)
			return err
		})
		require.NoError(t, err)

		f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)
		f.records.On("FindByOrderID", mock.Anything, order.ID).
			Return(&domain.Record{ID: uuid.New(), OrderID: order.ID, ArtifactName: name}, nil)
		f.mailer.On("SendInvoice", mock.Anything, mock.Anything).Return(errors.New("554 rejected"))

		_, err = f.service().Email(context.Background(), order.ID, app.EmailRequest{})
		var delivery *app.DeliveryError
		require.ErrorAs(t, err, &delivery)
		assert.Equal(t, "ada@example.com", delivery.Recipient)
		f.records.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("no usable recipient", func(t *testing.T) {
		f := newFixture()
		order := sampleOrder()
		order.CustomerEmail = ""
		f.orders.On("FindInvoiceSnapshot", mock.Anything, order.ID).Return(order, nil)

		_, err := f.service().Email(context.Background(), order.ID, app.EmailRequest{})
		assert.True(t, shared.HasCode(err, shared.ErrInvalidInput.Code))
		f.mailer.AssertNotCalled(t, "SendInvoice", mock.Anything, mock.Anything)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		orderID := uuid.New()
		f.orders.On("FindInvoiceSnapshot", mock.Anything, orderID).
			Return(nil, shared.NewDomainError(domain.ErrCodeNotFound, "order not found"))

		_, err := f.service().Email(context.Background(), orderID, app.EmailRequest{To: "a@b.co"})
		assert.True(t, shared.HasCode(err, domain.ErrCodeNotFound))
	})
}

// =============================================================================
// Cleanup
// =============================================================================

func TestCleanupArtifacts(t *testing.T) {
	f := newFixture()
	f.store.removed = 3
	svc := f.service()

	removed, err := svc.CleanupArtifacts(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Zero(t, f.store.cleanupAge)

	removed, err = svc.CleanupArtifacts(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 72*time.Hour, f.store.cleanupAge)
}
