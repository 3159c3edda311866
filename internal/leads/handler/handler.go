// Package handler provides HTTP handlers for lead ingestion and the
// leads admin surface.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"leadgen_backend/internal/leads/service"
	"leadgen_backend/internal/leads/transport"
	"leadgen_backend/platform/httpkit"
	"leadgen_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
)

// IngestPipeline is the pipeline surface the handler drives: synchronous
// admission plus stage processing, and the manual re-drive.
type IngestPipeline interface {
	Ingest(ctx context.Context, req transport.SubmitLeadRequest, meta transport.RequestMeta) (transport.SubmitLeadResponse, error)
	Redeliver(ctx context.Context, leadID int64) (transport.RedeliverResponse, error)
}

// Handler handles HTTP requests for leads.
type Handler struct {
	pipeline IngestPipeline
	svc      *service.Service
	val      *validator.Validator
}

// New creates a new leads handler.
func New(pipeline IngestPipeline, svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{pipeline: pipeline, svc: svc, val: val}
}

// RegisterIngestRoutes mounts the public submission endpoints.
func (h *Handler) RegisterIngestRoutes(group *gin.RouterGroup) {
	group.POST("", h.SubmitLead)
	group.POST("/form", h.SubmitLeadForm)
}

// RegisterAdminRoutes mounts the admin read and re-drive endpoints.
func (h *Handler) RegisterAdminRoutes(group *gin.RouterGroup) {
	group.GET("", h.ListLeads)
	group.GET("/:id", h.GetLead)
	group.GET("/:id/deliveries", h.GetDeliveries)
	group.POST("/:id/deliver", h.Redeliver)
}

// SubmitLead handles POST /ingest with a JSON body.
func (h *Handler) SubmitLead(c *gin.Context) {
	var req transport.SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	h.submit(c, req)
}

// SubmitLeadForm handles POST /ingest/form with a form-encoded body, the
// shape embedded landing pages post natively.
func (h *Handler) SubmitLeadForm(c *gin.Context) {
	var req transport.SubmitLeadRequest
	if err := c.ShouldBind(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	h.submit(c, req)
}

func (h *Handler) submit(c *gin.Context, req transport.SubmitLeadRequest) {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	meta := transport.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	resp, err := h.pipeline.Ingest(c.Request.Context(), req, meta)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, resp)
}

// ListLeads handles GET /leads.
func (h *Handler) ListLeads(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}

// GetLead handles GET /leads/:id.
func (h *Handler) GetLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	resp, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}

// GetDeliveries handles GET /leads/:id/deliveries.
func (h *Handler) GetDeliveries(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	attempts, err := h.svc.Deliveries(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": attempts})
}

// Redeliver handles POST /leads/:id/deliver.
func (h *Handler) Redeliver(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	resp, err := h.pipeline.Redeliver(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, resp)
}

func (h *Handler) leadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return 0, false
	}
	return id, true
}
