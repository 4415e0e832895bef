package integration

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	appinvoice "github.com/storefront/backend/internal/application/invoice"
	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/printing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

// outbox records every delivered email
type outbox struct {
	mu   sync.Mutex
	sent []invoice.Email
}

func (o *outbox) SendInvoice(_ context.Context, email *invoice.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, *email)
	return nil
}

type invoiceFlowSetup struct {
	DB      *TestDB
	Store   *printing.FileSystemArtifactStore
	Outbox  *outbox
	Service *appinvoice.Service
}

func newInvoiceFlowSetup(t *testing.T) *invoiceFlowSetup {
	t.Helper()

	tdb := NewSharedTestDB(t)

	store, err := printing.NewFileSystemArtifactStore(&printing.FileSystemArtifactStoreConfig{
		BasePath: t.TempDir(),
	})
	require.NoError(t, err)

	renderer, err := printing.NewInvoicePDFRenderer(printing.DefaultInvoiceRendererConfig())
	require.NoError(t, err)

	box := &outbox{}
	svc := appinvoice.NewService(
		persistence.NewGormOrderRepository(tdb.DB),
		persistence.NewGormInvoiceRecordRepository(tdb.DB),
		renderer,
		store,
		box,
		zap.NewNop(),
	)
	return &invoiceFlowSetup{DB: tdb, Store: store, Outbox: box, Service: svc}
}

func readArtifact(t *testing.T, store *printing.FileSystemArtifactStore, name string) []byte {
	t.Helper()
	rc, info, err := store.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)
	return data
}

func TestInvoiceFlow_GenerateStoresArtifactAndRecord(t *testing.T) {
	setup := newInvoiceFlowSetup(t)
	ctx := context.Background()

	orderID := setup.DB.CreateTestOrder("Jane Doe", "jane@example.com",
		TestItem{Name: "Espresso Machine", Distributor: "Brewline", Model: "EM-200", Serial: "BR-001", Qty: 1, Price: "499.00"},
		TestItem{Name: "Grinder", Distributor: "Brewline", Model: "GR-10", Serial: "BR-002", Qty: 2, Price: "89.50"},
	)

	resp, err := setup.Service.Generate(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID.String(), resp.OrderID)
	assert.Equal(t, invoice.ArtifactName(orderID), resp.ArtifactName)
	assert.Positive(t, resp.Size)

	data := readArtifact(t, setup.Store, resp.ArtifactName)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Equal(t, resp.Size, int64(len(data)))

	got, err := setup.Service.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, got.ID)
	assert.Zero(t, got.EmailCount)
}

func TestInvoiceFlow_RegenerateKeepsRecordAndEmailHistory(t *testing.T) {
	setup := newInvoiceFlowSetup(t)
	ctx := context.Background()

	orderID := setup.DB.CreateTestOrder("Sam Lee", "sam@example.com",
		TestItem{Name: "Kettle", Qty: 1, Price: "35.00"},
	)

	first, err := setup.Service.Generate(ctx, orderID)
	require.NoError(t, err)

	_, err = setup.Service.Email(ctx, orderID, appinvoice.EmailRequest{})
	require.NoError(t, err)

	second, err := setup.Service.Generate(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.EmailCount)
	assert.Equal(t, "sam@example.com", second.LastEmailTo)
}

func TestInvoiceFlow_EmailGeneratesMissingInvoice(t *testing.T) {
	setup := newInvoiceFlowSetup(t)
	ctx := context.Background()

	orderID := setup.DB.CreateTestOrder("Ana Ruiz", "ana@example.com",
		TestItem{Name: "Teapot", Distributor: "Clayworks", Qty: 3, Price: "12.25"},
	)

	resp, err := setup.Service.Email(ctx, orderID, appinvoice.EmailRequest{To: "billing@example.org"})
	require.NoError(t, err)
	assert.Equal(t, "billing@example.org", resp.To)
	assert.Equal(t, 1, resp.EmailCount)

	require.Len(t, setup.Outbox.sent, 1)
	sent := setup.Outbox.sent[0]
	assert.Equal(t, orderID, sent.OrderID)
	assert.Equal(t, invoice.ArtifactName(orderID), sent.FileName)
	assert.True(t, bytes.HasPrefix(sent.Attachment, []byte("%PDF-")))

	got, err := setup.Service.Get(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, got.EmailedAt)
	assert.Equal(t, "billing@example.org", got.LastEmailTo)
}

func TestInvoiceFlow_EmptyOrderRendersTotalsOnly(t *testing.T) {
	setup := newInvoiceFlowSetup(t)

	orderID := setup.DB.CreateTestOrder("No Items", "none@example.com")

	resp, err := setup.Service.Generate(context.Background(), orderID)
	require.NoError(t, err)
	data := readArtifact(t, setup.Store, resp.ArtifactName)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestInvoiceFlow_ManyItemsSpanPages(t *testing.T) {
	setup := newInvoiceFlowSetup(t)

	items := make([]TestItem, 120)
	for i := range items {
		items[i] = TestItem{Name: "Filter pack", Distributor: "Brewline", Model: "FP", Qty: 1, Price: "4.99"}
	}
	orderID := setup.DB.CreateTestOrder("Bulk Buyer", "bulk@example.com", items...)

	resp, err := setup.Service.Generate(context.Background(), orderID)
	require.NoError(t, err)

	data := readArtifact(t, setup.Store, resp.ArtifactName)
	assert.GreaterOrEqual(t, bytes.Count(data, []byte("/Type /Page\n")), 2)
}

func TestInvoiceFlow_UnknownOrder(t *testing.T) {
	setup := newInvoiceFlowSetup(t)

	_, err := setup.Service.Generate(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, shared.HasCode(err, invoice.ErrCodeNotFound))
}

func TestInvoiceFlow_ListNewestFirst(t *testing.T) {
	setup := newInvoiceFlowSetup(t)
	ctx := context.Background()

	older := setup.DB.CreateTestOrder("First", "first@example.com", TestItem{Name: "Mug", Qty: 1, Price: "8.00"})
	newer := setup.DB.CreateTestOrder("Second", "second@example.com", TestItem{Name: "Mug", Qty: 2, Price: "8.00"})

	_, err := setup.Service.Generate(ctx, older)
	require.NoError(t, err)
	_, err = setup.Service.Generate(ctx, newer)
	require.NoError(t, err)

	page, err := setup.Service.List(ctx, appinvoice.ListRequest{Page: 1, PageSize: 100})
	require.NoError(t, err)
	require.GreaterOrEqual(t, page.Total, int64(2))

	positions := map[string]int{}
	for i, item := range page.Items {
		positions[item.OrderID] = i
	}
	require.Contains(t, positions, older.String())
	require.Contains(t, positions, newer.String())
	assert.Less(t, positions[newer.String()], positions[older.String()])
}
