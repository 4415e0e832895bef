package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HeaderLabels are the table column headers. Order and cardinality are part of
// the document format.
var HeaderLabels = [ColumnCount]string{"Item", "Distributor", "Model", "Serial #", "Qty", "Price", "Total"}

// ColumnCount is the fixed number of table columns
const ColumnCount = 7

// LineItem is one invoice row as supplied by the order subsystem.
// Total is the caller's line total and is not derived from Qty and Price.
type LineItem struct {
	Name         string          `json:"name"`
	Distributor  string          `json:"distributor"`
	Model        string          `json:"model"`
	SerialNumber string          `json:"serial_number"`
	Qty          int             `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"`
}

// Cells returns the seven cell strings for the item, in header order
func (li LineItem) Cells(currency string) []string {
	return []string{
		li.Name,
		li.Distributor,
		li.Model,
		li.SerialNumber,
		strconv.Itoa(li.Qty),
		FormatMoney(li.Price, currency),
		FormatMoney(li.Total, currency),
	}
}

// Request is the immutable snapshot rendered into one invoice document
type Request struct {
	CustomerName string          `json:"customer_name"`
	Address      string          `json:"address"`
	Brand        string          `json:"brand"`
	SerialNumber string          `json:"serial_number"`
	Items        []LineItem      `json:"items"`
	Total        decimal.Decimal `json:"total"`
}

// Validate rejects requests that cannot be laid out. It runs before any output
// is produced so an invalid request never leaves a partial document behind.
func (r *Request) Validate() error {
	if r == nil {
		return NewInvalidRequestError("invoice request is required")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return NewInvalidRequestError("customer name is required")
	}
	if r.Total.IsNegative() {
		return NewInvalidRequestError("grand total cannot be negative")
	}
	for i, item := range r.Items {
		if err := item.validate(); err != nil {
			return NewInvalidRequestError(fmt.Sprintf("item %d: %s", i+1, err.Error()))
		}
	}
	return nil
}

func (li LineItem) validate() error {
	switch {
	case li.Qty < 0:
		return fmt.Errorf("quantity cannot be negative")
	case li.Price.IsNegative():
		return fmt.Errorf("price cannot be negative")
	case li.Total.IsNegative():
		return fmt.Errorf("line total cannot be negative")
	}
	return nil
}

// Order is the persisted order snapshot an invoice is generated from
type Order struct {
	ID            uuid.UUID
	CustomerName  string
	CustomerEmail string
	Address       string
	Brand         string
	SerialNumber  string
	Items         []LineItem
	Total         decimal.Decimal
	PlacedAt      time.Time
}

// InvoiceRequest converts the order into a render request. Totals are copied
// as stored; the order subsystem owns their rounding.
func (o *Order) InvoiceRequest() *Request {
	items := make([]LineItem, len(o.Items))
	copy(items, o.Items)
	return &Request{
		CustomerName: o.CustomerName,
		Address:      o.Address,
		Brand:        o.Brand,
		SerialNumber: o.SerialNumber,
		Items:        items,
		Total:        o.Total,
	}
}

// ArtifactName returns the deterministic file name of an order's invoice
func ArtifactName(orderID uuid.UUID) string {
	return "invoice_" + orderID.String() + ".pdf"
}
