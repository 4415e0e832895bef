package invoice

import (
	"time"

	domain "github.com/storefront/backend/internal/domain/invoice"
)

// Pagination bounds of ListRequest
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// EmailRequest asks for an invoice to be mailed. An empty To falls back to the
// customer's address on file.
type EmailRequest struct {
	To string `json:"to" binding:"omitempty,email"`
}

// ListRequest selects one page of invoice records
type ListRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

func (r ListRequest) normalized() ListRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize < 1:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

// InvoiceResponse describes the stored invoice of an order
type InvoiceResponse struct {
	ID                   string     `json:"id"`
	OrderID              string     `json:"order_id"`
	ArtifactName         string     `json:"artifact_name"`
	Size                 int64      `json:"size"`
	GeneratedAt          time.Time  `json:"generated_at"`
	EmailedAt            *time.Time `json:"emailed_at,omitempty"`
	EmailCount           int        `json:"email_count"`
	LastEmailTo          string     `json:"last_email_to,omitempty"`
	DownloadURL          string     `json:"download_url,omitempty"`
	DownloadURLExpiresAt *time.Time `json:"download_url_expires_at,omitempty"`
}

// ListResponse is a page of invoice records, newest first
type ListResponse struct {
	Items []InvoiceResponse `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

// EmailResponse reports a successful delivery
type EmailResponse struct {
	OrderID    string    `json:"order_id"`
	To         string    `json:"to"`
	SentAt     time.Time `json:"sent_at"`
	EmailCount int       `json:"email_count"`
}

func toInvoiceResponse(r *domain.Record) *InvoiceResponse {
	return &InvoiceResponse{
		ID:           r.ID.String(),
		OrderID:      r.OrderID.String(),
		ArtifactName: r.ArtifactName,
		Size:         r.Size,
		GeneratedAt:  r.GeneratedAt,
		EmailedAt:    r.EmailedAt,
		EmailCount:   r.EmailCount,
		LastEmailTo:  r.LastEmailTo,
	}
}
