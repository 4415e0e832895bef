package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appinvoice "github.com/storefront/backend/internal/application/invoice"
	domain "github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// InvoiceService is the application surface the invoice endpoints call
type InvoiceService interface {
	Generate(ctx context.Context, orderID uuid.UUID) (*appinvoice.InvoiceResponse, error)
	Get(ctx context.Context, orderID uuid.UUID) (*appinvoice.InvoiceResponse, error)
	List(ctx context.Context, req appinvoice.ListRequest) (*appinvoice.ListResponse, error)
	Open(ctx context.Context, orderID uuid.UUID) (io.ReadCloser, *domain.ArtifactInfo, error)
	Email(ctx context.Context, orderID uuid.UUID, req appinvoice.EmailRequest) (*appinvoice.EmailResponse, error)
}

// InvoiceHandler serves invoice generation, download and delivery
type InvoiceHandler struct {
	BaseHandler
	service InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// Generate godoc
// @Summary      Generate invoice
// @Description  Render (or re-render) the PDF invoice of an order and store it
// @Tags         invoices
// @Produce      json
// @Param        order_id path string true "Order ID (UUID)"
// @Success      201 {object} dto.Response{data=invoice.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{order_id}/invoice [post]
func (h *InvoiceHandler) Generate(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	resp, err := h.service.Generate(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get godoc
// @Summary      Get invoice
// @Description  Return the invoice record of an order, with a signed download URL when the store supports one
// @Tags         invoices
// @Produce      json
// @Param        order_id path string true "Order ID (UUID)"
// @Success      200 {object} dto.Response{data=invoice.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{order_id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	resp, err := h.service.Get(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// List godoc
// @Summary      List invoices
// @Description  Page through invoice records, newest first
// @Tags         invoices
// @Produce      json
// @Param        page      query int false "Page number" minimum(1)
// @Param        page_size query int false "Page size" minimum(1) maximum(100)
// @Success      200 {object} dto.Response{data=[]invoice.InvoiceResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	var req appinvoice.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, resp.Items, resp.Total, resp.Page, resp.Size)
}

// Download godoc
// @Summary      Download invoice
// @Description  Stream the stored invoice PDF
// @Tags         invoices
// @Produce      application/pdf
// @Param        order_id path string true "Order ID (UUID)"
// @Success      200 {file} file
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{order_id}/download [get]
func (h *InvoiceHandler) Download(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	rc, info, err := h.service.Open(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer rc.Close()

	headers := map[string]string{
		"Content-Disposition": `attachment; filename="` + info.Name + `"`,
		"Cache-Control":       "private, no-store",
	}
	if !info.ModifiedAt.IsZero() {
		headers["Last-Modified"] = info.ModifiedAt.UTC().Format(http.TimeFormat)
	}
	c.DataFromReader(http.StatusOK, info.Size, "application/pdf", rc, headers)
}

// Email godoc
// @Summary      Email invoice
// @Description  Send the invoice to the customer, or to the address in the body
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        order_id path string true "Order ID (UUID)"
// @Param        request body invoice.EmailRequest false "Recipient override"
// @Success      200 {object} dto.Response{data=invoice.EmailResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{order_id}/email [post]
func (h *InvoiceHandler) Email(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req appinvoice.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
		return
	}

	resp, err := h.service.Email(c.Request.Context(), orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *InvoiceHandler) orderID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("order_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.BadRequest(c, "Invalid order ID: "+strconv.Quote(raw))
		return uuid.Nil, false
	}
	return id, true
}
