package invoice

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Renderer lays out a request and writes the finished document to sink.
// It returns only after the whole document has been written; a failed write
// surfaces as *SinkWriteError.
type Renderer interface {
	Render(ctx context.Context, req *Request, sink io.Writer) error
}

// ArtifactInfo describes a stored invoice document
type ArtifactInfo struct {
	Name       string
	// Size is -1 when the store cannot tell the length up front
	Size       int64
	ModifiedAt time.Time
}

// ArtifactStore keeps rendered invoices under their artifact name
type ArtifactStore interface {
	// Write runs fn against a fresh sink and publishes the artifact under name
	// only if fn succeeds. A failed fn leaves any previous artifact untouched.
	Write(ctx context.Context, name string, fn func(w io.Writer) error) (*ArtifactInfo, error)
	// Open returns the artifact content or ErrArtifactNotFound
	Open(ctx context.Context, name string) (io.ReadCloser, *ArtifactInfo, error)
	// Delete removes the artifact; deleting a missing artifact is not an error
	Delete(ctx context.Context, name string) error
	// CleanupOlderThan removes artifacts last written before now-age
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// ArtifactURLSigner is implemented by stores that can hand out time-limited
// direct download links
type ArtifactURLSigner interface {
	DownloadURL(ctx context.Context, name string, expiresIn time.Duration) (string, time.Time, error)
}

// Email is an outbound invoice message
type Email struct {
	To           string
	CustomerName string
	OrderID      uuid.UUID
	FileName     string
	Attachment   []byte
}

// Mailer delivers invoice emails
type Mailer interface {
	SendInvoice(ctx context.Context, email *Email) error
}

// OrderRepository loads the order snapshot an invoice is built from
type OrderRepository interface {
	// FindInvoiceSnapshot returns the order with its items in display order,
	// or a NOT_FOUND domain error
	FindInvoiceSnapshot(ctx context.Context, orderID uuid.UUID) (*Order, error)
}

// Record tracks the generated artifact of an order
type Record struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ArtifactName string
	Size         int64
	GeneratedAt  time.Time
	EmailedAt    *time.Time
	EmailCount   int
	LastEmailTo  string
}

// NewRecord creates a record for a freshly generated artifact
func NewRecord(orderID uuid.UUID, info *ArtifactInfo, generatedAt time.Time) *Record {
	return &Record{
		ID:           uuid.New(),
		OrderID:      orderID,
		ArtifactName: info.Name,
		Size:         info.Size,
		GeneratedAt:  generatedAt,
	}
}

// MarkEmailed records a successful delivery
func (r *Record) MarkEmailed(to string, at time.Time) {
	r.EmailedAt = &at
	r.EmailCount++
	r.LastEmailTo = to
}

// RecordRepository persists invoice records, one per order
type RecordRepository interface {
	// Save inserts the record or replaces the existing record of the same order
	Save(ctx context.Context, record *Record) error
	// FindByOrderID returns the order's record or a NOT_FOUND domain error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*Record, error)
	// List returns records newest first
	List(ctx context.Context, offset, limit int) ([]Record, int64, error)
}
