package billing

import (
	"net/http"
	"strconv"
	"time"

	apphttp "leadgen_backend/internal/http"
	"leadgen_backend/platform/httpkit"
	"leadgen_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidInvoiceID = "invalid invoice id"
)

// ListInvoicesRequest filters GET /invoices.
type ListInvoicesRequest struct {
	BuyerID  *int64 `form:"buyerId" validate:"omitempty,min=1"`
	Status   string `form:"status" validate:"omitempty,oneof=draft sent paid overdue cancelled disputed"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// InvoiceResponse is the admin wire shape of one invoice.
type InvoiceResponse struct {
	ID               int64      `json:"id"`
	BuyerID          int64      `json:"buyerId"`
	InvoiceNumber    string     `json:"invoiceNumber"`
	PeriodStart      string     `json:"periodStart"`
	PeriodEnd        string     `json:"periodEnd"`
	TotalLeads       int        `json:"totalLeads"`
	AmountDueCents   int64      `json:"amountDueCents"`
	TaxAmountCents   int64      `json:"taxAmountCents"`
	TotalAmountCents int64      `json:"totalAmountCents"`
	Status           string     `json:"status"`
	DueDate          *string    `json:"dueDate,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ListInvoicesResponse is one page of invoices.
type ListInvoicesResponse struct {
	Items      []InvoiceResponse `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

// Module exposes the invoice read surface.
type Module struct {
	svc *Service
	val *validator.Validator
}

// NewModule creates the billing module.
func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{svc: svc, val: val}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "billing"
}

// RegisterRoutes mounts invoice routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/invoices")
	group.GET("", m.ListInvoices)
	group.GET("/:id", m.GetInvoice)
}

// ListInvoices handles GET /invoices.
func (m *Module) ListInvoices(c *gin.Context) {
	var req ListInvoicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := m.svc.ListInvoices(c.Request.Context(), ListParams{
		BuyerID:  req.BuyerID,
		Status:   req.Status,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]InvoiceResponse, 0, len(result.Items))
	for _, inv := range result.Items {
		items = append(items, mapInvoiceResponse(inv))
	}
	httpkit.OK(c, ListInvoicesResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// GetInvoice handles GET /invoices/:id.
func (m *Module) GetInvoice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidInvoiceID, nil)
		return
	}

	inv, err := m.svc.GetInvoice(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, mapInvoiceResponse(inv))
}

func mapInvoiceResponse(inv Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:               inv.ID,
		BuyerID:          inv.BuyerID,
		InvoiceNumber:    inv.InvoiceNumber,
		PeriodStart:      inv.PeriodStart.Format("2006-01-02"),
		PeriodEnd:        inv.PeriodEnd.Format("2006-01-02"),
		TotalLeads:       inv.TotalLeads,
		AmountDueCents:   inv.AmountDueCents,
		TaxAmountCents:   inv.TaxAmountCents,
		TotalAmountCents: inv.TotalAmountCents,
		Status:           inv.Status,
		PaidAt:           inv.PaidAt,
		CreatedAt:        inv.CreatedAt,
	}
	if inv.DueDate != nil {
		due := inv.DueDate.Format("2006-01-02")
		resp.DueDate = &due
	}
	return resp
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
